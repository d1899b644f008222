package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"paysync/internal/application"
	"paysync/internal/domain"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db    *sql.DB
	table string
}

func NewRepository(dbPath, table string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if table == "" {
		return nil, errors.New("payments table is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps page transactions from tripping over SQLite's
	// database-level write lock.
	db.SetMaxOpenConns(1)
	if err := createSchema(db, table); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db, table: table}, nil
}

func createSchema(db *sql.DB, table string) error {
	schema := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ledger_index INTEGER NOT NULL,
			transaction_hash TEXT NOT NULL UNIQUE,
			from_address TEXT NOT NULL,
			to_address TEXT NOT NULL,
			memo TEXT NOT NULL DEFAULT '',
			amount INTEGER NOT NULL,
			transaction_timestamp TEXT NULL
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_ledger_index_idx ON %s (ledger_index)`, table, table),
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) StorePayments(ctx context.Context, payments []domain.Payment) ([]domain.Payment, error) {
	if len(payments) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (ledger_index, transaction_hash, from_address, to_address, memo, amount, transaction_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_hash) DO NOTHING`, r.table))
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	defer stmt.Close()

	inserted := make([]domain.Payment, 0, len(payments))
	for _, payment := range payments {
		var timestamp any
		if payment.Timestamp != nil {
			timestamp = payment.Timestamp.UTC().Format(time.RFC3339)
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
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var max sql.NullInt64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT MAX(ledger_index) FROM %s`, r.table)).Scan(&max); err != nil {
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
		var timestamp sql.NullString
		if err := rows.Scan(&payment.LedgerIndex, &payment.Hash, &payment.From, &payment.To, &payment.Memo, &payment.Amount, &timestamp); err != nil {
			return nil, err
		}
		if timestamp.Valid {
			parsed, err := time.Parse(time.RFC3339, timestamp.String)
			if err != nil {
				return nil, fmt.Errorf("parse transaction_timestamp %q: %w", timestamp.String, err)
			}
			parsed = parsed.UTC()
			payment.Timestamp = &parsed
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
