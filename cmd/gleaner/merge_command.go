package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gleaner/internal/batch"
	"gleaner/internal/merge"
	"gleaner/internal/store"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var (
		skipStore bool
		sourceDir string
		outFile   string
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Reconcile batch files into the merged export and store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if sourceDir == "" {
				sourceDir = cfg.Paths.BatchDir
			}
			if outFile == "" {
				outFile = cfg.Paths.MergedFile
			}

			batches, err := batch.LoadAll(sourceDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(batches) == 0 {
				fmt.Fprintln(out, "No batch files found; nothing to merge")
				return nil
			}

			result := merge.Merge(batches)
			now := time.Now()
			if err := merge.WriteMergedFile(outFile, result, now); err != nil {
				return err
			}

			inserted := 0
			if !skipStore {
				db, err := store.Open(cfg.Paths.StoreFile)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()

				inserted, err = db.Ingest(cmd.Context(), result.Entries)
				if err != nil {
					return err
				}
				if err := db.RecordMerge(cmd.Context(), now, len(batches), inserted, result.Summary); err != nil {
					return err
				}
			}

			s := result.Summary
			fmt.Fprintln(out, renderTable(
				[]string{"Batches", "Items", "Success", "Terminal", "Deferred", "Dupes", "Gaps", "Next index", "Stored"},
				[][]string{{
					fmt.Sprintf("%d", len(batches)),
					fmt.Sprintf("%d", s.TotalItems),
					fmt.Sprintf("%d", s.Successes),
					fmt.Sprintf("%d", s.TerminalFailures),
					fmt.Sprintf("%d", s.Deferred),
					fmt.Sprintf("%d", s.DuplicatesRemoved),
					fmt.Sprintf("%d", len(s.Gaps)),
					fmt.Sprintf("%d", s.NextResumeIndex),
					fmt.Sprintf("%d", inserted),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			if len(s.Gaps) > 0 {
				fmt.Fprintf(out, "Coverage gaps at positions: %s\n", formatGaps(s.Gaps))
			}
			fmt.Fprintf(out, "Merged export written to %s\n", outFile)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipStore, "skip-store", false, "Write the merged export without updating the transcript store")
	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "directory of batch files to merge (defaults to paths.batch_dir)")
	cmd.Flags().StringVar(&outFile, "out", "", "merged export path (defaults to paths.merged_file)")
	return cmd
}

// formatGaps prints the first few gap positions, eliding long runs.
func formatGaps(gaps []int) string {
	const show = 10
	parts := make([]string, 0, show+1)
	for i, gap := range gaps {
		if i == show {
			parts = append(parts, fmt.Sprintf("... and %d more", len(gaps)-show))
			break
		}
		parts = append(parts, fmt.Sprintf("%d", gap))
	}
	return strings.Join(parts, ", ")
}
