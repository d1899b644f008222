package application

import (
	"context"
	"fmt"
)

// GenesisIndex is reported when nothing has been stored yet.
const GenesisIndex int64 = -1

type CursorStore interface {
	MaxLedgerIndex(ctx context.Context) (int64, bool, error)
}

// ResumePoint is where a run starts, derived from what is already stored.
type ResumePoint struct {
	LastIndex int64
}

// Genesis reports whether the store was empty.
func (p ResumePoint) Genesis() bool {
	return p.LastIndex < 0
}

// MinLedger is the inclusive lower bound for the next account_tx query.
// Transactions sharing LastIndex that were never stored are skipped.
func (p ResumePoint) MinLedger() int64 {
	return p.LastIndex + 1
}

func Resume(ctx context.Context, store CursorStore) (ResumePoint, error) {
	last, ok, err := store.MaxLedgerIndex(ctx)
	if err != nil {
		return ResumePoint{}, fmt.Errorf("read max ledger index: %w", err)
	}
	if !ok {
		return ResumePoint{LastIndex: GenesisIndex}, nil
	}
	return ResumePoint{LastIndex: last}, nil
}
