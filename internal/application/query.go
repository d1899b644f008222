package application

import (
	"context"

	"paysync/internal/domain"
)

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

type PaymentQueryFilter struct {
	Address    string
	Hash       string
	FromLedger *int64
	ToLedger   *int64
	Limit      int
}

type PaymentQueryStore interface {
	CursorStore
	QueryPayments(ctx context.Context, filter PaymentQueryFilter) ([]domain.Payment, error)
	CountPayments(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return DefaultQueryLimit
	}
	return limit
}
