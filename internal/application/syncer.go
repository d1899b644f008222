package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"paysync/internal/domain"
	"paysync/internal/ledger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultPageSize = 1000

type LedgerSource interface {
	AccountTx(ctx context.Context, req ledger.AccountTxRequest) (ledger.AccountTxPage, error)
}

// PaymentStore persists payments. StorePayments writes the whole slice in
// one transaction, ignores hashes that already exist and returns only the
// rows it actually inserted.
type PaymentStore interface {
	CursorStore
	StorePayments(ctx context.Context, payments []domain.Payment) ([]domain.Payment, error)
}

// PaymentPublisher announces newly stored payments.
type PaymentPublisher interface {
	PublishPayments(ctx context.Context, payments []domain.Payment) error
}

type SyncObserver interface {
	OnResume(point ResumePoint)
	OnPage(stats PageStats)
	OnRunComplete(summary RunSummary)
}

type SyncConfig struct {
	Account  string
	Filter   ledger.PaymentFilter
	PageSize int
}

type PageStats struct {
	Page              int
	Entries           int
	Matched           int
	Inserted          int
	AmountsDefaulted  int
	TimestampsMissing int
	HighestLedger     int64
}

type RunSummary struct {
	Resume            ResumePoint
	Pages             int
	Entries           int
	Matched           int
	Inserted          int
	AmountsDefaulted  int
	TimestampsMissing int
	HighestLedger     int64
	Duration          time.Duration
}

func (s *RunSummary) add(stats PageStats) {
	s.Pages++
	s.Entries += stats.Entries
	s.Matched += stats.Matched
	s.Inserted += stats.Inserted
	s.AmountsDefaulted += stats.AmountsDefaulted
	s.TimestampsMissing += stats.TimestampsMissing
	if stats.HighestLedger > s.HighestLedger {
		s.HighestLedger = stats.HighestLedger
	}
}

type Syncer struct {
	source    LedgerSource
	store     PaymentStore
	publisher PaymentPublisher
	observer  SyncObserver
	cfg       SyncConfig
}

var ErrNilDependency = errors.New("syncer dependencies must not be nil")

// NewSyncer wires a sync run. publisher and observer may be nil.
func NewSyncer(source LedgerSource, store PaymentStore, publisher PaymentPublisher, observer SyncObserver, cfg SyncConfig) (*Syncer, error) {
	if source == nil || store == nil {
		return nil, ErrNilDependency
	}
	if cfg.Account == "" {
		return nil, errors.New("sync account is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Syncer{source: source, store: store, publisher: publisher, observer: observer, cfg: cfg}, nil
}

// Run performs one synchronization pass. Pages are committed one at a time,
// so on error the returned summary covers the pages that were stored.
func (s *Syncer) Run(ctx context.Context) (RunSummary, error) {
	start := time.Now()
	point, err := Resume(ctx, s.store)
	if err != nil {
		return RunSummary{}, err
	}
	if point.Genesis() {
		slog.Info("payment table is empty, fetching from genesis", "account", s.cfg.Account)
	} else {
		slog.Info("resuming sync", "after_ledger", point.LastIndex, "account", s.cfg.Account)
	}
	slog.Info("tracking payments",
		"currency", s.cfg.Filter.Currency,
		"issuer", s.cfg.Filter.Issuer,
		"page_size", s.cfg.PageSize,
	)
	if s.observer != nil {
		s.observer.OnResume(point)
	}

	summary := RunSummary{Resume: point, HighestLedger: point.MinLedger()}
	var marker json.RawMessage
	for {
		select {
		case <-ctx.Done():
			summary.Duration = time.Since(start)
			return summary, ctx.Err()
		default:
		}

		page, err := s.source.AccountTx(ctx, ledger.AccountTxRequest{
			Account:        s.cfg.Account,
			LedgerIndexMin: point.MinLedger(),
			Limit:          s.cfg.PageSize,
			Marker:         marker,
		})
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("fetch page %d: %w", summary.Pages+1, err)
		}

		stats, err := s.processPage(ctx, summary.Pages+1, page)
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		summary.add(stats)
		if s.observer != nil {
			s.observer.OnPage(stats)
		}

		if !page.HasMarker() {
			break
		}
		marker = page.Marker
	}

	summary.Duration = time.Since(start)
	if s.observer != nil {
		s.observer.OnRunComplete(summary)
	}
	slog.Info("sync complete",
		"pages", summary.Pages,
		"entries", summary.Entries,
		"matched", summary.Matched,
		"inserted", summary.Inserted,
		"highest_ledger", summary.HighestLedger,
		"duration", summary.Duration,
	)
	return summary, nil
}

func (s *Syncer) processPage(ctx context.Context, number int, page ledger.AccountTxPage) (PageStats, error) {
	ctx, span := otel.Tracer("paysync/sync").Start(ctx, "sync.page")
	defer span.End()

	stats := PageStats{Page: number, Entries: len(page.Transactions)}
	payments := make([]domain.Payment, 0, len(page.Transactions))
	for _, entry := range page.Transactions {
		tx := entry.Tx
		if tx.LedgerIndex > stats.HighestLedger {
			stats.HighestLedger = tx.LedgerIndex
		}
		if !s.cfg.Filter.Match(tx) {
			continue
		}
		normalized := NormalizePayment(tx)
		if normalized.AmountDefaulted {
			stats.AmountsDefaulted++
			slog.Debug("amount defaulted to zero", "hash", tx.Hash)
		}
		if normalized.TimestampMissing {
			stats.TimestampsMissing++
		}
		payments = append(payments, normalized.Payment)
	}
	stats.Matched = len(payments)

	inserted, err := s.store.StorePayments(ctx, payments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stats, fmt.Errorf("store page %d: %w", number, err)
	}
	stats.Inserted = len(inserted)
	span.SetAttributes(
		attribute.Int("sync.page", number),
		attribute.Int("sync.entries", stats.Entries),
		attribute.Int("sync.matched", stats.Matched),
		attribute.Int("sync.inserted", stats.Inserted),
	)

	if s.publisher != nil && len(inserted) > 0 {
		if err := s.publisher.PublishPayments(ctx, inserted); err != nil {
			slog.Warn("publish payments failed", "page", number, "count", len(inserted), "err", err)
		}
	}

	slog.Info("sync page",
		"page", number,
		"entries", stats.Entries,
		"matched", stats.Matched,
		"inserted", stats.Inserted,
		"has_marker", page.HasMarker(),
	)
	return stats, nil
}
