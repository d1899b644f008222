package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"paysync/internal/application"
	"paysync/internal/domain"

	gomysql "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository connects with a go-sql-driver DSN. parseTime is forced on so
// timestamps scan into time.Time.
func NewRepository(dsn, table string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	if table == "" {
		return nil, errors.New("payments table is required")
	}
	dsn, err := normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db, table); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db, table: table}, nil
}

func normalizeDSN(dsn string) (string, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func createSchema(db *sql.DB, table string) error {
	_, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		ledger_index BIGINT NOT NULL,
		transaction_hash VARCHAR(64) NOT NULL,
		from_address VARCHAR(35) NOT NULL,
		to_address VARCHAR(35) NOT NULL,
		memo MEDIUMTEXT NOT NULL,
		amount BIGINT NOT NULL,
		transaction_timestamp DATETIME NULL,
		PRIMARY KEY (id),
		UNIQUE KEY %s_hash_unique (transaction_hash),
		KEY %s_ledger_idx (ledger_index)
	)`, table, table, table))
	return err
}

func (r *Repository) StorePayments(ctx context.Context, payments []domain.Payment) ([]domain.Payment, error) {
	if len(payments) == 0 {
		return nil, nil
	}
	ctx, span := startDBSpan(ctx, "mysql.StorePayments", attribute.Int("payment.count", len(payments)))
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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT IGNORE INTO %s (ledger_index, transaction_hash, from_address, to_address, memo, amount, transaction_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, r.table))
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	defer stmt.Close()

	inserted := make([]domain.Payment, 0, len(payments))
	for _, payment := range payments {
		var timestamp any
		if payment.Timestamp != nil {
			timestamp = payment.Timestamp.UTC()
		}
		result, err := stmt.ExecContext(ctx, payment.LedgerIndex, payment.Hash, payment.From, payment.To, payment.Memo, payment.Amount, timestamp)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if affected > 0 {
			inserted = append(inserted, payment)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

func (r *Repository) MaxLedgerIndex(ctx context.Context) (int64, bool, error) {
	ctx, span := startDBSpan(ctx, "mysql.MaxLedgerIndex")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var max sql.NullInt64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT MAX(ledger_index) FROM %s`, r.table)).Scan(&max); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, false, err
	}
	if !max.Valid {
		return 0, false, nil
	}
	return max.Int64, true, nil
}

func (r *Repository) CountPayments(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var count int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) QueryPayments(ctx context.Context, filter application.PaymentQueryFilter) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	clauses := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if filter.Address != "" {
		clauses = append(clauses, "(from_address = ? OR to_address = ?)")
		args = append(args, filter.Address, filter.Address)
	}
	if filter.Hash != "" {
		clauses = append(clauses, "transaction_hash = ?")
		args = append(args, filter.Hash)
	}
	if filter.FromLedger != nil {
		clauses = append(clauses, "ledger_index >= ?")
		args = append(args, *filter.FromLedger)
	}
	if filter.ToLedger != nil {
		clauses = append(clauses, "ledger_index <= ?")
		args = append(args, *filter.ToLedger)
	}

	query := fmt.Sprintf(`SELECT ledger_index, transaction_hash, from_address, to_address, memo, amount, transaction_timestamp FROM %s`, r.table)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY ledger_index ASC, id ASC LIMIT ?"
	args = append(args, application.NormalizeLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var payment domain.Payment
		var timestamp sql.NullTime
		if err := rows.Scan(&payment.LedgerIndex, &payment.Hash, &payment.From, &payment.To, &payment.Memo, &payment.Amount, &timestamp); err != nil {
			return nil, err
		}
		if timestamp.Valid {
			value := timestamp.Time.UTC()
			payment.Timestamp = &value
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("paysync/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}
