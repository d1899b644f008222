package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"paysync/internal/application"
	"paysync/internal/infrastructure/kafka"
	"paysync/internal/ledger"
	"paysync/internal/metrics"

	"github.com/urfave/cli/v2"
)

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one synchronization pass and exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-publish",
				Usage: "Skip Kafka publishing even when KAFKA_BROKERS is set",
			},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c.Context, "paysync-sync")
			if err != nil {
				return cli.Exit(fmt.Sprintf("config error: %v", err), 1)
			}
			defer rt.close()

			// runSync logs the failure; only the exit status is left to set.
			if err := runSync(c.Context, rt, !c.Bool("no-publish")); err != nil {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

// runSync performs one pass and logs its failure, if any, exactly once.
func runSync(ctx context.Context, rt *deps, publish bool) (err error) {
	cfg := rt.cfg
	var summary application.RunSummary
	defer func() {
		if err != nil {
			slog.Error("sync aborted",
				"pages_committed", summary.Pages,
				"inserted", summary.Inserted,
				"err", err,
			)
		}
	}()

	store, err := rt.openStore(ctx)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer store.Close()

	rpcClient, err := rt.rpcClient()
	if err != nil {
		return fmt.Errorf("rpc error: %w", err)
	}

	var publisher application.PaymentPublisher
	if publish && len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Account:  cfg.SyncAccount(),
			Currency: cfg.CurrencyCode,
			Issuer:   cfg.IssuerAddress,
		})
		if err != nil {
			return fmt.Errorf("kafka error: %w", err)
		}
		defer producer.Close()
		publisher = producer
	}

	syncMetrics := metrics.NewSync()
	syncer, err := application.NewSyncer(rpcClient, store, publisher, syncMetrics, application.SyncConfig{
		Account: cfg.SyncAccount(),
		Filter: ledger.PaymentFilter{
			Currency: cfg.CurrencyCode,
			Issuer:   cfg.IssuerAddress,
		},
		PageSize: cfg.PageSize,
	})
	if err != nil {
		return err
	}

	summary, runErr := syncer.Run(ctx)
	if runErr != nil {
		syncMetrics.OnRunFailed(summary)
	}

	if count, err := store.CountPayments(context.WithoutCancel(ctx)); err == nil {
		syncMetrics.SetStoredRows(count)
	}
	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := syncMetrics.Push(pushCtx, cfg.PushgatewayURL, "paysync_sync"); err != nil {
			slog.Warn("metrics push failed", "url", cfg.PushgatewayURL, "err", err)
		}
		cancel()
	}
	return runErr
}
