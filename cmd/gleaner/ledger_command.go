package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"gleaner/internal/batch"
	"gleaner/internal/executor"
	"gleaner/internal/ledger"
	"gleaner/internal/merge"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger utilities",
	}
	ledgerCmd.AddCommand(newLedgerRebuildCommand(ctx))
	return ledgerCmd
}

func newLedgerRebuildCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the ledger from batch files",
		Long: `Rebuild reconstructs the progress ledger from the batch directory.
Use it when the ledger file is corrupt or lost; batch files are the
durable record and carry everything the ledger needs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if _, err := os.Stat(cfg.Paths.LedgerFile); err == nil && !force {
				return fmt.Errorf("ledger file already exists at %s (use --force to replace it)", cfg.Paths.LedgerFile)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("check ledger path: %w", err)
			}

			batches, err := batch.LoadAll(cfg.Paths.BatchDir)
			if err != nil {
				return err
			}
			result := merge.Merge(batches)

			if err := os.RemoveAll(cfg.Paths.LedgerFile); err != nil {
				return fmt.Errorf("remove old ledger: %w", err)
			}
			led, err := ledger.Open(cfg.Paths.LedgerFile)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer func() { _ = led.Close() }()

			refs := make(map[string]string)
			for _, b := range batches {
				for _, o := range b.Outcomes {
					if _, ok := refs[o.ItemID]; !ok {
						refs[o.ItemID] = batch.Filename(b.Number, b.RunRef)
					}
				}
			}

			recorded := 0
			for _, e := range result.Entries {
				var status ledger.Status
				switch {
				case e.Outcome.Status == executor.StatusSuccess:
					status = ledger.StatusSuccess
				case e.Outcome.Status == executor.StatusFailed && e.Outcome.Kind == executor.FailureTerminal:
					status = ledger.StatusFailed
				default:
					continue
				}
				if err := led.RecordOutcome(e.Outcome.ItemID, e.Outcome.Position, status, refs[e.Outcome.ItemID], e.Outcome.CompletedAt); err != nil {
					return err
				}
				recorded++
			}
			if err := led.Persist(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt ledger with %d records from %d batch files (next index %d)\n",
				recorded, len(batches), led.NextResumeIndex())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing ledger file")
	return cmd
}
