package storage

import (
	"context"
	"fmt"

	"paysync/internal/application"
	"paysync/internal/config"
	"paysync/internal/infrastructure/mysql"
	"paysync/internal/infrastructure/postgres"
	"paysync/internal/infrastructure/sqlite"
)

// Store is the full persistence surface used by the sync and serve commands.
type Store interface {
	application.PaymentStore
	application.PaymentQueryStore
	Close() error
}

type Config struct {
	Driver string
	DSN    string
	Table  string
}

// Open connects the configured driver. Driver names and table rules are the
// ones config.Validate enforces.
func Open(ctx context.Context, cfg Config) (Store, error) {
	table := cfg.Table
	if table == "" {
		table = config.DefaultPaymentsTable
	}
	if err := config.ValidateTable(table); err != nil {
		return nil, err
	}
	driver, err := config.NormalizeDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	switch driver {
	case config.DriverPostgres:
		repo, err := postgres.NewRepository(ctx, cfg.DSN, table)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return repo, nil
	case config.DriverMySQL:
		repo, err := mysql.NewRepository(cfg.DSN, table)
		if err != nil {
			return nil, fmt.Errorf("open mysql store: %w", err)
		}
		return repo, nil
	default:
		repo, err := sqlite.NewRepository(cfg.DSN, table)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return repo, nil
	}
}
