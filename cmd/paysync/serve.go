package main

import (
	"fmt"
	"log/slog"

	"paysync/internal/application"
	"paysync/internal/interfaces/httpapi"
	"paysync/internal/metrics"

	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the payment query API, health checks and metrics",
		Action: func(c *cli.Context) error {
			ctx := c.Context
			rt, err := setup(ctx, "paysync-api")
			if err != nil {
				return cli.Exit(fmt.Sprintf("config error: %v", err), 1)
			}
			defer rt.close()
			cfg := rt.cfg

			store, err := rt.openStore(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("db error: %v", err), 1)
			}
			defer store.Close()

			rpcClient, err := rt.rpcClient()
			if err != nil {
				return cli.Exit(fmt.Sprintf("rpc error: %v", err), 1)
			}

			apiMetrics := metrics.NewSync()
			if point, err := application.Resume(ctx, store); err == nil && !point.Genesis() {
				apiMetrics.SetLastLedger(point.LastIndex)
			}
			if count, err := store.CountPayments(ctx); err == nil {
				apiMetrics.SetStoredRows(count)
			}

			server, err := httpapi.NewServer(cfg, store, rpcClient, apiMetrics.Handler(), buildInfo())
			if err != nil {
				return cli.Exit(fmt.Sprintf("http server error: %v", err), 1)
			}

			slog.Info("http server listening", "addr", cfg.HTTPAddr)
			if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
				return cli.Exit(fmt.Sprintf("http server error: %v", err), 1)
			}
			slog.Info("http server stopped")
			return nil
		},
	}
}
