package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paysync/internal/application"
	"paysync/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Repository struct {
	pool  *pgxpool.Pool
	table string
}

func NewRepository(ctx context.Context, dsn, table string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	if table == "" {
		return nil, errors.New("payments table is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := &Repository{pool: pool, table: table}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
  id BIGSERIAL PRIMARY KEY,
  ledger_index BIGINT NOT NULL,
  transaction_hash TEXT NOT NULL UNIQUE,
  from_address TEXT NOT NULL,
  to_address TEXT NOT NULL,
  memo TEXT NOT NULL DEFAULT '',
  amount BIGINT NOT NULL,
  transaction_timestamp TIMESTAMP NULL
);

CREATE INDEX IF NOT EXISTS %[1]s_ledger_index_idx ON %[1]s (ledger_index);
`, r.table)
	_, err := r.pool.Exec(ctx, ddl)
	return err
}

func (r *Repository) StorePayments(ctx context.Context, payments []domain.Payment) ([]domain.Payment, error) {
	if len(payments) == 0 {
		return nil, nil
	}
	ctx, span := startDBSpan(ctx, "postgres.StorePayments", attribute.Int("payment.count", len(payments)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	inserted, err := r.storePayments(ctx, payments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("payment.inserted", len(inserted)))
	return inserted, nil
}

func (r *Repository) storePayments(ctx context.Context, payments []domain.Payment) ([]domain.Payment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := fmt.Sprintf(`
INSERT INTO %s (
  ledger_index, transaction_hash, from_address, to_address,
  memo, amount, transaction_timestamp
) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (transaction_hash) DO NOTHING
`, r.table)

	inserted := make([]domain.Payment, 0, len(payments))
	for _, payment := range payments {
		var timestamp any
		if payment.Timestamp != nil {
			timestamp = payment.Timestamp.UTC()
		}
		tag, err := tx.Exec(ctx, q,
			payment.LedgerIndex, payment.Hash, payment.From, payment.To,
			payment.Memo, payment.Amount, timestamp,
		)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, payment)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return inserted, nil
}

func (r *Repository) MaxLedgerIndex(ctx context.Context) (int64, bool, error) {
	ctx, span := startDBSpan(ctx, "postgres.MaxLedgerIndex")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var max *int64
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT MAX(ledger_index) FROM %s`, r.table)).Scan(&max); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, false, err
	}
	if max == nil {
		return 0, false, nil
	}
	return *max, true, nil
}

func (r *Repository) CountPayments(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var count int64
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) QueryPayments(ctx context.Context, filter application.PaymentQueryFilter) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	clauses := make([]string, 0, 4)
	args := make([]any, 0, 5)
	next := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Address != "" {
		p := next(filter.Address)
		clauses = append(clauses, fmt.Sprintf("(from_address = %s OR to_address = %s)", p, p))
	}
	if filter.Hash != "" {
		clauses = append(clauses, "transaction_hash = "+next(filter.Hash))
	}
	if filter.FromLedger != nil {
		clauses = append(clauses, "ledger_index >= "+next(*filter.FromLedger))
	}
	if filter.ToLedger != nil {
		clauses = append(clauses, "ledger_index <= "+next(*filter.ToLedger))
	}

	query := fmt.Sprintf(`SELECT ledger_index, transaction_hash, from_address, to_address, memo, amount, transaction_timestamp FROM %s`, r.table)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY ledger_index ASC, id ASC LIMIT " + next(application.NormalizeLimit(filter.Limit))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		var (
			payment   domain.Payment
			timestamp *time.Time
		)
		if err := rows.Scan(&payment.LedgerIndex, &payment.Hash, &payment.From, &payment.To, &payment.Memo, &payment.Amount, &timestamp); err != nil {
			return nil, err
		}
		if timestamp != nil {
			value := timestamp.UTC()
			payment.Timestamp = &value
		}
		out = append(out, payment)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "postgresql"))
	return otel.Tracer("paysync/postgres").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}
