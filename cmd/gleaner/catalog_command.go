package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gleaner/internal/catalog"
	"gleaner/internal/executor"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog utilities",
	}
	catalogCmd.AddCommand(newCatalogInspectCommand(ctx))
	catalogCmd.AddCommand(newCatalogFilterCommand(ctx))
	return catalogCmd
}

func newCatalogFilterCommand(ctx *commandContext) *cobra.Command {
	var (
		minDuration int
		maxDuration int
		inPath      string
		outPath     string
	)
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Write a duration-filtered copy of the catalog",
		Long: `Applies the duration filter and writes the result as a new catalog
file. Pointing paths.catalog_file at the output skips re-filtering on
every run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if inPath == "" {
				inPath = cfg.Paths.CatalogFile
			}
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			if minDuration < 0 {
				minDuration = cfg.Catalog.MinDurationSeconds
			}
			if maxDuration < 0 {
				maxDuration = cfg.Catalog.MaxDurationSeconds
			}

			raw, err := catalog.Load(inPath)
			if err != nil {
				return err
			}
			filtered := raw.Filter(minDuration, maxDuration)
			if err := filtered.Save(outPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d of %d items to %s\n",
				filtered.Len(), raw.Len(), outPath)
			return nil
		},
	}
	cmd.Flags().IntVar(&minDuration, "min-duration", -1, "minimum duration in seconds (-1 uses config, 0 disables)")
	cmd.Flags().IntVar(&maxDuration, "max-duration", -1, "maximum duration in seconds (-1 uses config, 0 disables)")
	cmd.Flags().StringVar(&inPath, "in", "", "catalog file to read (defaults to paths.catalog_file)")
	cmd.Flags().StringVar(&outPath, "out", "", "file to write the filtered catalog to")
	return cmd
}

func newCatalogInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show catalog size before and after the duration filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			raw, err := catalog.Load(cfg.Paths.CatalogFile)
			if err != nil {
				return err
			}
			filtered := raw.Filter(cfg.Catalog.MinDurationSeconds, cfg.Catalog.MaxDurationSeconds)

			malformed := 0
			for _, item := range filtered.Items {
				if !executor.ValidItemID(item.ID) {
					malformed++
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Source", "Raw items", "After filter", "Malformed IDs"},
				[][]string{{
					raw.Source,
					fmt.Sprintf("%d", raw.Len()),
					fmt.Sprintf("%d", filtered.Len()),
					fmt.Sprintf("%d", malformed),
				}},
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}
