package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gleaner/internal/batch"
	"gleaner/internal/catalog"
	"gleaner/internal/executor"
	"gleaner/internal/identity"
	"gleaner/internal/ledger"
	"gleaner/internal/logging"
)

var (
	// ErrInterrupted reports that the run stopped on a context
	// cancellation. Progress up to the last written batch is durable and
	// the run can be resumed.
	ErrInterrupted = errors.New("run interrupted")

	// ErrNoProgress reports that a batch settled nothing twice in a row,
	// including after an identity rotation.
	ErrNoProgress = errors.New("run made no progress")
)

// ItemExecutor runs a single item to its final outcome.
type ItemExecutor interface {
	Execute(ctx context.Context, item catalog.Item) (executor.Outcome, error)
}

// Options controls a run.
type Options struct {
	// BatchSize is the number of items per batch.
	BatchSize int

	// StartIndex forces the first catalog position to process. Negative
	// means resume from the ledger.
	StartIndex int

	// TotalItems caps how many positions past the start the run covers.
	// Zero means the rest of the catalog.
	TotalItems int

	// Stabilization is how long to wait after an identity rotation before
	// the next batch.
	Stabilization time.Duration
}

// Result summarizes a run.
type Result struct {
	RunRef          string
	BatchesWritten  int
	Successes       int
	TerminalFails   int
	Deferred        int
	Skipped         int
	NextResumeIndex int
}

// Orchestrator coordinates one extraction run.
type Orchestrator struct {
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	writer  *batch.Writer
	exec    ItemExecutor
	rotator identity.Rotator
	logger  *slog.Logger

	// sleep is a test seam for the post-rotation stabilization wait.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an orchestrator. rotator may be nil to disable rotation
// between batches.
func New(cat *catalog.Catalog, led *ledger.Ledger, writer *batch.Writer, exec ItemExecutor, rotator identity.Rotator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		catalog: cat,
		ledger:  led,
		writer:  writer,
		exec:    exec,
		rotator: rotator,
		logger:  logger,
		sleep:   sleepWithContext,
	}
}

// Run processes the catalog from the resolved start index until the item
// budget or the catalog ends. The returned Result is valid even when err is
// non-nil; on ErrInterrupted it reflects everything made durable before the
// interrupt.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	start := opts.StartIndex
	if start < 0 {
		start = o.ledger.NextResumeIndex()
	}
	end := o.catalog.Len()
	if opts.TotalItems > 0 && start+opts.TotalItems < end {
		end = start + opts.TotalItems
	}

	runRef := uuid.NewString()
	result := Result{RunRef: runRef, NextResumeIndex: start}
	logger := o.logger.With(logging.String("run_ref", runRef))
	logger.Info("starting run",
		logging.Int("start_index", start),
		logging.Int("end_index", end),
		logging.Int("batch_size", opts.BatchSize))

	batchNumber := 0
	retriedIndex := -1
	for start < end {
		if err := ctx.Err(); err != nil {
			return o.finish(result, logger, fmt.Errorf("%w: %v", ErrInterrupted, err))
		}
		batchNumber++
		items := o.catalog.Slice(start, min(opts.BatchSize, end-start))

		b, skipped, err := o.runBatch(ctx, batchNumber, runRef, start, items, logger)
		if err != nil {
			return o.finish(result, logger, err)
		}
		result.Skipped += skipped

		if !settled(b) {
			if retriedIndex == start {
				return o.finish(result, logger, fmt.Errorf("%w: batch at index %d settled nothing after rotation", ErrNoProgress, start))
			}
			retriedIndex = start
			logger.Warn("batch settled nothing, rotating and retrying",
				logging.Int("batch", batchNumber),
				logging.Int("start_index", start))
			if err := o.rotate(ctx, opts.Stabilization, logger); err != nil {
				return o.finish(result, logger, err)
			}
			continue
		}

		if err := o.persistBatch(b, runRef, logger); err != nil {
			return o.finish(result, logger, err)
		}
		result.BatchesWritten++
		result.Successes += b.SuccessCount()
		result.TerminalFails += b.TerminalCount()
		result.Deferred += b.DeferredCount()
		result.NextResumeIndex = o.ledger.NextResumeIndex()
		start += len(items)

		if start < end {
			if err := o.rotate(ctx, opts.Stabilization, logger); err != nil {
				return o.finish(result, logger, err)
			}
		}
	}
	return o.finish(result, logger, nil)
}

// runBatch executes one batch worth of items. Already-ledgered items are
// skipped without touching the executor and without joining the batch file.
func (o *Orchestrator) runBatch(ctx context.Context, number int, runRef string, start int, items []catalog.Item, logger *slog.Logger) (*batch.Batch, int, error) {
	b := &batch.Batch{Number: number, RunRef: runRef, StartIndex: start}
	skipped := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, skipped, fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		if o.ledger.IsProcessed(item.ID) {
			skipped++
			continue
		}
		outcome, err := o.exec.Execute(ctx, item)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, skipped, fmt.Errorf("%w: %v", ErrInterrupted, err)
			}
			return nil, skipped, fmt.Errorf("execute item %s: %w", item.ID, err)
		}
		b.Items = append(b.Items, item)
		b.Outcomes = append(b.Outcomes, outcome)
	}
	return b, skipped, nil
}

// settled reports whether a batch is worth persisting: at least one success,
// or attempts were made and none were deferred. An all-skipped batch also
// counts so a fully ledgered stretch still advances.
func settled(b *batch.Batch) bool {
	if len(b.Outcomes) == 0 {
		return true
	}
	if b.SuccessCount() > 0 {
		return true
	}
	return b.DeferredCount() == 0
}

// persistBatch writes the batch file, then records settled outcomes in the
// ledger. Deferred outcomes stay out of the ledger so gap-first resume
// revisits them.
func (o *Orchestrator) persistBatch(b *batch.Batch, runRef string, logger *slog.Logger) error {
	if len(b.Outcomes) == 0 {
		return nil
	}
	b.CompletedAt = time.Now().UTC()
	path, err := o.writer.Write(b)
	if err != nil {
		return err
	}
	for _, outcome := range b.Outcomes {
		var status ledger.Status
		switch {
		case outcome.Status == executor.StatusSuccess:
			status = ledger.StatusSuccess
		case outcome.Status == executor.StatusFailed && outcome.Kind == executor.FailureTerminal:
			status = ledger.StatusFailed
		default:
			continue
		}
		err := o.ledger.RecordOutcome(outcome.ItemID, outcome.Position, status, batch.Filename(b.Number, runRef), outcome.CompletedAt)
		if err != nil && !errors.Is(err, ledger.ErrDuplicateItem) {
			return err
		}
	}
	if err := o.ledger.Persist(); err != nil {
		return err
	}
	logger.Info("batch persisted",
		logging.Int("batch", b.Number),
		logging.String("path", path),
		logging.Int("successes", b.SuccessCount()),
		logging.Int("terminal", b.TerminalCount()),
		logging.Int("deferred", b.DeferredCount()))
	return nil
}

func (o *Orchestrator) rotate(ctx context.Context, stabilization time.Duration, logger *slog.Logger) error {
	if o.rotator == nil {
		return nil
	}
	label, err := o.rotator.Rotate(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		return fmt.Errorf("rotate identity: %w", err)
	}
	logger.Info("rotated identity", logging.String("identity", label))
	if err := o.sleep(ctx, stabilization); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	return nil
}

func (o *Orchestrator) finish(result Result, logger *slog.Logger, err error) (Result, error) {
	result.NextResumeIndex = o.ledger.NextResumeIndex()
	logger.Info("run finished",
		logging.Int("batches", result.BatchesWritten),
		logging.Int("successes", result.Successes),
		logging.Int("terminal", result.TerminalFails),
		logging.Int("deferred", result.Deferred),
		logging.Int("skipped", result.Skipped),
		logging.Int("next_resume_index", result.NextResumeIndex),
		logging.Bool("interrupted", errors.Is(err, ErrInterrupted)))
	return result, err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
