package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"paysync/internal/application"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "paysync"

// Sync records sync progress in a private registry. It satisfies
// application.SyncObserver.
type Sync struct {
	registry *prometheus.Registry

	pages             prometheus.Counter
	entries           prometheus.Counter
	matched           prometheus.Counter
	inserted          prometheus.Counter
	amountsDefaulted  prometheus.Counter
	timestampsMissing prometheus.Counter
	runs              *prometheus.CounterVec
	runDuration       prometheus.Histogram
	lastLedger        prometheus.Gauge
	storedRows        prometheus.Gauge
}

var _ application.SyncObserver = (*Sync)(nil)

func NewSync() *Sync {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Sync{
		registry: reg,
		pages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "account_tx pages fetched and processed.",
		}),
		entries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_seen_total",
			Help:      "Transaction entries returned by account_tx.",
		}),
		matched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_matched_total",
			Help:      "Entries that matched the tracked currency and issuer.",
		}),
		inserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_inserted_total",
			Help:      "Payments newly written to the store.",
		}),
		amountsDefaulted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "amounts_defaulted_total",
			Help:      "Payments whose amount could not be parsed and was stored as 0.",
		}),
		timestampsMissing: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timestamps_missing_total",
			Help:      "Payments stored without a close time.",
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Completed sync runs by result.",
		}, []string{"result"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_run_duration_seconds",
			Help:      "Wall time of a sync run.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		lastLedger: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_ledger_index",
			Help:      "Highest ledger index seen or stored.",
		}),
		storedRows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_payments",
			Help:      "Rows in the payment table at last check.",
		}),
	}
}

func (s *Sync) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Sync) OnResume(point application.ResumePoint) {
	if !point.Genesis() {
		s.lastLedger.Set(float64(point.LastIndex))
	}
}

func (s *Sync) OnPage(stats application.PageStats) {
	s.pages.Inc()
	s.entries.Add(float64(stats.Entries))
	s.matched.Add(float64(stats.Matched))
	s.inserted.Add(float64(stats.Inserted))
	s.amountsDefaulted.Add(float64(stats.AmountsDefaulted))
	s.timestampsMissing.Add(float64(stats.TimestampsMissing))
}

func (s *Sync) OnRunComplete(summary application.RunSummary) {
	s.runs.WithLabelValues("success").Inc()
	s.runDuration.Observe(summary.Duration.Seconds())
	if summary.HighestLedger >= 0 {
		s.lastLedger.Set(float64(summary.HighestLedger))
	}
}

// OnRunFailed is called by the command layer; the syncer only reports success.
func (s *Sync) OnRunFailed(summary application.RunSummary) {
	s.runs.WithLabelValues("failure").Inc()
	s.runDuration.Observe(summary.Duration.Seconds())
}

func (s *Sync) SetStoredRows(count int64) {
	s.storedRows.Set(float64(count))
}

func (s *Sync) SetLastLedger(index int64) {
	s.lastLedger.Set(float64(index))
}

func (s *Sync) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Push sends the registry to a Pushgateway under the given job name.
func (s *Sync) Push(ctx context.Context, gatewayURL, job string) error {
	if strings.TrimSpace(gatewayURL) == "" {
		return errors.New("pushgateway url is required")
	}
	return push.New(gatewayURL, job).Gatherer(s.registry).PushContext(ctx)
}
