package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "paysync",
		Usage: "Mirror issued-token payments from an XRP Ledger account into a SQL table",
		Description: `paysync pages through account_tx for one account, keeps Payment
transactions in the tracked currency and issuer, and inserts them into a
relational table keyed by transaction hash. Runs are idempotent and resume
from the highest stored ledger index.

Configuration is read from the environment (see DB_DSN, STORE_DRIVER, RPC_URL).`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
		Commands: []*cli.Command{
			syncCommand(),
			serveCommand(),
			cursorCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("paysync failed", "err", err)
		cancel()
		os.Exit(1)
	}
}
