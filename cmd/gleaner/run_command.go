package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gleaner/internal/catalog"
	"gleaner/internal/config"
	"gleaner/internal/executor"
	"gleaner/internal/identity"
	"gleaner/internal/ledger"
	"gleaner/internal/logging"
	"gleaner/internal/orchestrator"
	"gleaner/internal/transcript"

	batchpkg "gleaner/internal/batch"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		startIndex int
		totalItems int
		batchSize  int
		noRotate   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the catalog in resumable batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cat, err := loadWorkingCatalog(cfg)
			if err != nil {
				return err
			}
			if cat.Len() == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty after filtering; nothing to do")
				return nil
			}

			led, err := ledger.Open(cfg.Paths.LedgerFile)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer func() { _ = led.Close() }()

			pool := identity.NewPool(cfg.Identity.Proxies)
			client, err := transcript.New(transcript.Config{
				Endpoint: cfg.Transcript.Endpoint,
				Language: cfg.Transcript.Language,
				Timeout:  time.Duration(cfg.Transcript.TimeoutSeconds) * time.Second,
			})
			if err != nil {
				return err
			}

			exec := executor.New(executorConfig(cfg), client, pool,
				logging.NewComponentLogger(logger, "executor"))

			var rotator identity.Rotator
			if cfg.Identity.RotationEnabled && !noRotate {
				rotator = buildRotator(cfg, pool)
			}

			o := orchestrator.New(cat, led, batchpkg.NewWriter(cfg.Paths.BatchDir), exec, rotator,
				logging.NewComponentLogger(logger, "orchestrator"))

			if batchSize <= 0 {
				batchSize = cfg.Workflow.BatchSize
			}
			result, runErr := o.Run(runCtx, orchestrator.Options{
				BatchSize:     batchSize,
				StartIndex:    startIndex,
				TotalItems:    totalItems,
				Stabilization: time.Duration(cfg.Identity.StabilizationSeconds) * time.Second,
			})

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Batches", "Successes", "Terminal", "Deferred", "Skipped", "Next index"},
				[][]string{{
					fmt.Sprintf("%d", result.BatchesWritten),
					fmt.Sprintf("%d", result.Successes),
					fmt.Sprintf("%d", result.TerminalFails),
					fmt.Sprintf("%d", result.Deferred),
					fmt.Sprintf("%d", result.Skipped),
					fmt.Sprintf("%d", result.NextResumeIndex),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return runErr
		},
	}

	cmd.Flags().IntVar(&startIndex, "start-index", -1, "Catalog position to start from (default: resume from ledger)")
	cmd.Flags().IntVar(&totalItems, "total", 0, "Maximum number of catalog positions to cover (0 = all)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Items per batch (default: from config)")
	cmd.Flags().BoolVar(&noRotate, "no-rotate", false, "Disable identity rotation between batches")
	return cmd
}

func loadWorkingCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.Load(cfg.Paths.CatalogFile)
	if err != nil {
		return nil, err
	}
	return cat.Filter(cfg.Catalog.MinDurationSeconds, cfg.Catalog.MaxDurationSeconds), nil
}

func executorConfig(cfg *config.Config) executor.Config {
	return executor.Config{
		MinDelay:          time.Duration(cfg.Executor.MinDelaySeconds * float64(time.Second)),
		MaxDelay:          time.Duration(cfg.Executor.MaxDelaySeconds * float64(time.Second)),
		BackoffFactor:     cfg.Executor.BackoffFactor,
		BackoffCap:        time.Duration(cfg.Executor.BackoffCapSeconds * float64(time.Second)),
		MaxRetries:        cfg.Executor.MaxRetries,
		BlockCooldown:     time.Duration(cfg.Executor.BlockCooldownSeconds) * time.Second,
		BlockCooldownStep: time.Duration(cfg.Executor.BlockCooldownStepSeconds) * time.Second,
	}
}

// buildRotator picks the rotation strategy: proxy pool first, then an
// external command, then an interactive prompt.
func buildRotator(cfg *config.Config, pool *identity.Pool) identity.Rotator {
	if pool.Len() > 0 {
		return &identity.PoolRotator{Pool: pool}
	}
	if cfg.Identity.RotateCommand != "" {
		return &identity.CommandRotator{Command: strings.Fields(cfg.Identity.RotateCommand)}
	}
	return &identity.PromptRotator{In: os.Stdin, Out: os.Stderr}
}
