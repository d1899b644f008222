package main

import (
	"encoding/json"
	"fmt"

	"paysync/internal/application"

	"github.com/urfave/cli/v2"
)

func cursorCommand() *cli.Command {
	return &cli.Command{
		Name:  "cursor",
		Usage: "Print where the next sync run will resume",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c.Context, "paysync-cursor")
			if err != nil {
				return cli.Exit(fmt.Sprintf("config error: %v", err), 1)
			}
			defer rt.close()

			store, err := rt.openStore(c.Context)
			if err != nil {
				return cli.Exit(fmt.Sprintf("db error: %v", err), 1)
			}
			defer store.Close()

			point, err := application.Resume(c.Context, store)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			count, err := store.CountPayments(c.Context)
			if err != nil {
				return cli.Exit(fmt.Sprintf("count payments: %v", err), 1)
			}

			if c.Bool("json") {
				data, _ := json.Marshal(map[string]any{
					"account":           rt.cfg.SyncAccount(),
					"last_ledger_index": point.LastIndex,
					"genesis":           point.Genesis(),
					"ledger_index_min":  point.MinLedger(),
					"stored_payments":   count,
				})
				fmt.Fprintln(c.App.Writer, string(data))
				return nil
			}

			fmt.Fprintf(c.App.Writer, "Account:          %s\n", rt.cfg.SyncAccount())
			if point.Genesis() {
				fmt.Fprintf(c.App.Writer, "Last ledger:      none (table %s is empty)\n", rt.cfg.PaymentsTable)
			} else {
				fmt.Fprintf(c.App.Writer, "Last ledger:      %d\n", point.LastIndex)
			}
			fmt.Fprintf(c.App.Writer, "Next min ledger:  %d\n", point.MinLedger())
			fmt.Fprintf(c.App.Writer, "Stored payments:  %d\n", count)
			return nil
		},
	}
}
