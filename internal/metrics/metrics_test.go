package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paysync/internal/application"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncObserver(t *testing.T) {
	m := NewSync()
	m.OnResume(application.ResumePoint{LastIndex: 40})
	assert.Equal(t, 40.0, testutil.ToFloat64(m.lastLedger))

	m.OnPage(application.PageStats{Entries: 10, Matched: 4, Inserted: 3, AmountsDefaulted: 1})
	m.OnPage(application.PageStats{Entries: 5, Matched: 2, Inserted: 2, TimestampsMissing: 1})
	m.OnRunComplete(application.RunSummary{HighestLedger: 77, Duration: time.Second})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pages))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.entries))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.matched))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.inserted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.amountsDefaulted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.timestampsMissing))
	assert.Equal(t, 77.0, testutil.ToFloat64(m.lastLedger))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("success")))

	m.OnRunFailed(application.RunSummary{Duration: time.Millisecond})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("failure")))
}

func TestGenesisResumeLeavesGauge(t *testing.T) {
	m := NewSync()
	m.OnResume(application.ResumePoint{LastIndex: application.GenesisIndex})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lastLedger))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewSync()
	m.SetStoredRows(12)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "paysync_stored_payments 12")
}

func TestPush(t *testing.T) {
	var gotPath string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	m := NewSync()
	require.NoError(t, m.Push(context.Background(), gateway.URL, "paysync_sync"))
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/paysync_sync"), gotPath)

	assert.Error(t, m.Push(context.Background(), " ", "paysync_sync"))
}
