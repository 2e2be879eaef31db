package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"gleaner/internal/batch"
	"gleaner/internal/ledger"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ledger progress and batch inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			led, err := ledger.Open(cfg.Paths.LedgerFile)
			if err != nil {
				if errors.Is(err, ledger.ErrLocked) {
					return fmt.Errorf("a run is in progress: %w", err)
				}
				return fmt.Errorf("open ledger: %w", err)
			}
			defer func() { _ = led.Close() }()

			cat, err := loadWorkingCatalog(cfg)
			if err != nil {
				return err
			}

			batches, err := batch.LoadAll(cfg.Paths.BatchDir)
			if err != nil {
				return err
			}
			successes, terminal, deferred := 0, 0, 0
			for _, b := range batches {
				successes += b.SuccessCount()
				terminal += b.TerminalCount()
				deferred += b.DeferredCount()
			}

			counts := led.CountByStatus()
			percent := 0.0
			if cat.Len() > 0 {
				percent = 100 * float64(led.Len()) / float64(cat.Len())
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Catalog", "Recorded", "Success", "Failed", "Next index", "Complete"},
				[][]string{{
					fmt.Sprintf("%d", cat.Len()),
					fmt.Sprintf("%d", led.Len()),
					fmt.Sprintf("%d", counts[ledger.StatusSuccess]),
					fmt.Sprintf("%d", counts[ledger.StatusFailed]),
					fmt.Sprintf("%d", led.NextResumeIndex()),
					fmt.Sprintf("%.1f%%", percent),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			fmt.Fprintln(out, renderTable(
				[]string{"Batch files", "Successes", "Terminal", "Deferred"},
				[][]string{{
					fmt.Sprintf("%d", len(batches)),
					fmt.Sprintf("%d", successes),
					fmt.Sprintf("%d", terminal),
					fmt.Sprintf("%d", deferred),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}
