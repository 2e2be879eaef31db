package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gleaner/internal/batch"
	"gleaner/internal/catalog"
	"gleaner/internal/executor"
	"gleaner/internal/ledger"
	"gleaner/internal/orchestrator"
)

type fakeExecutor struct {
	outcome func(item catalog.Item, call int) (executor.Outcome, error)
	calls   int
}

func (f *fakeExecutor) Execute(_ context.Context, item catalog.Item) (executor.Outcome, error) {
	f.calls++
	return f.outcome(item, f.calls)
}

type countingRotator struct {
	calls int
}

func (r *countingRotator) Rotate(context.Context) (string, error) {
	r.calls++
	return fmt.Sprintf("identity-%d", r.calls), nil
}

func testCatalog(n int) *catalog.Catalog {
	cat := &catalog.Catalog{Source: "test"}
	for i := 0; i < n; i++ {
		cat.Items = append(cat.Items, catalog.Item{ID: itemID(i), Position: i, OriginalIndex: i})
	}
	return cat
}

func itemID(pos int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	c := alphabet[pos%len(alphabet)]
	id := make([]byte, 11)
	for i := range id {
		id[i] = c
	}
	return string(id)
}

func success(item catalog.Item) (executor.Outcome, error) {
	return executor.Outcome{
		ItemID: item.ID, Position: item.Position, Status: executor.StatusSuccess,
		Attempts: 1, Payload: &executor.Payload{Text: "t", WordCount: 1, SegmentCount: 1},
		CompletedAt: time.Now().UTC(),
	}, nil
}

func terminal(item catalog.Item) (executor.Outcome, error) {
	return executor.Outcome{
		ItemID: item.ID, Position: item.Position, Status: executor.StatusFailed,
		Kind: executor.FailureTerminal, Attempts: 1, Error: "not found",
		CompletedAt: time.Now().UTC(),
	}, nil
}

func deferred(item catalog.Item) (executor.Outcome, error) {
	return executor.Outcome{
		ItemID: item.ID, Position: item.Position, Status: executor.StatusFailed,
		Kind: executor.FailureRetriesExhausted, Attempts: 6, Error: "timeout",
		CompletedAt: time.Now().UTC(),
	}, nil
}

func openLedger(t *testing.T, dir string) *ledger.Ledger {
	t.Helper()
	led, err := ledger.Open(filepath.Join(dir, "ledger.json"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = led.Close() })
	return led
}

func TestRunProcessesCatalogInBatches(t *testing.T) {
	dir := t.TempDir()
	led := openLedger(t, dir)
	exec := &fakeExecutor{outcome: func(item catalog.Item, _ int) (executor.Outcome, error) {
		if item.Position == 1 || item.Position == 3 {
			return terminal(item)
		}
		return success(item)
	}}
	rotator := &countingRotator{}
	o := orchestrator.New(testCatalog(5), led, batch.NewWriter(dir), exec, rotator, nil)

	result, err := o.Run(context.Background(), orchestrator.Options{BatchSize: 2, StartIndex: -1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.BatchesWritten != 3 {
		t.Errorf("BatchesWritten = %d, want 3", result.BatchesWritten)
	}
	if result.Successes != 3 || result.TerminalFails != 2 || result.Deferred != 0 {
		t.Errorf("result = %+v", result)
	}
	if result.NextResumeIndex != 5 {
		t.Errorf("NextResumeIndex = %d, want 5", result.NextResumeIndex)
	}
	if led.Len() != 5 {
		t.Errorf("ledger has %d records, want 5", led.Len())
	}
	// Rotation runs between batches, not after the last one.
	if rotator.calls != 2 {
		t.Errorf("rotator calls = %d, want 2", rotator.calls)
	}

	batches, err := batch.LoadAll(dir)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("batch files = %d, want 3", len(batches))
	}
	if batches[0].StartIndex != 0 || batches[2].StartIndex != 4 {
		t.Errorf("batch starts = %d, %d", batches[0].StartIndex, batches[2].StartIndex)
	}
}

func TestRunResumesFromLedgerGap(t *testing.T) {
	dir := t.TempDir()
	led := openLedger(t, dir)
	for _, pos := range []int{0, 1, 3} {
		if err := led.RecordOutcome(itemID(pos), pos, ledger.StatusSuccess, "batch-old", time.Now()); err != nil {
			t.Fatalf("seed ledger: %v", err)
		}
	}

	exec := &fakeExecutor{outcome: func(item catalog.Item, _ int) (executor.Outcome, error) {
		return success(item)
	}}
	o := orchestrator.New(testCatalog(5), led, batch.NewWriter(dir), exec, nil, nil)

	result, err := o.Run(context.Background(), orchestrator.Options{BatchSize: 10, StartIndex: -1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Resume starts at the gap (2); position 3 is already ledgered and
	// skips without an executor call.
	if exec.calls != 2 {
		t.Errorf("executor calls = %d, want 2 (positions 2 and 4)", exec.calls)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	if led.Len() != 5 || result.NextResumeIndex != 5 {
		t.Errorf("ledger len = %d next = %d", led.Len(), result.NextResumeIndex)
	}
}

func TestRunInterruptDiscardsPartialBatch(t *testing.T) {
	dir := t.TempDir()
	led := openLedger(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	exec := &fakeExecutor{outcome: func(item catalog.Item, _ int) (executor.Outcome, error) {
		if item.Position == 2 {
			cancel()
			return executor.Outcome{}, context.Canceled
		}
		return success(item)
	}}
	o := orchestrator.New(testCatalog(5), led, batch.NewWriter(dir), exec, nil, nil)

	result, err := o.Run(ctx, orchestrator.Options{BatchSize: 2, StartIndex: -1})
	if !errors.Is(err, orchestrator.ErrInterrupted) {
		t.Fatalf("Run err = %v, want ErrInterrupted", err)
	}
	if result.BatchesWritten != 1 {
		t.Errorf("BatchesWritten = %d, want 1", result.BatchesWritten)
	}
	if led.Len() != 2 {
		t.Errorf("ledger len = %d, want 2 (partial batch discarded)", led.Len())
	}
	if result.NextResumeIndex != 2 {
		t.Errorf("NextResumeIndex = %d, want 2", result.NextResumeIndex)
	}
	batches, err := batch.LoadAll(dir)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(batches) != 1 {
		t.Errorf("batch files = %d, want 1", len(batches))
	}
}

func TestRunRetriesUnsettledBatchOnceThenStops(t *testing.T) {
	dir := t.TempDir()
	led := openLedger(t, dir)
	exec := &fakeExecutor{outcome: func(item catalog.Item, _ int) (executor.Outcome, error) {
		return deferred(item)
	}}
	rotator := &countingRotator{}
	o := orchestrator.New(testCatalog(4), led, batch.NewWriter(dir), exec, rotator, nil)

	_, err := o.Run(context.Background(), orchestrator.Options{BatchSize: 2, StartIndex: -1})
	if !errors.Is(err, orchestrator.ErrNoProgress) {
		t.Fatalf("Run err = %v, want ErrNoProgress", err)
	}
	if rotator.calls != 1 {
		t.Errorf("rotator calls = %d, want 1", rotator.calls)
	}
	if led.Len() != 0 {
		t.Errorf("ledger len = %d, want 0", led.Len())
	}
	batches, err := batch.LoadAll(dir)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("batch files = %d, want 0", len(batches))
	}
}

func TestRunDeferredItemsLeaveGaps(t *testing.T) {
	dir := t.TempDir()
	led := openLedger(t, dir)
	exec := &fakeExecutor{outcome: func(item catalog.Item, _ int) (executor.Outcome, error) {
		if item.Position == 1 {
			return deferred(item)
		}
		return success(item)
	}}
	o := orchestrator.New(testCatalog(4), led, batch.NewWriter(dir), exec, nil, nil)

	result, err := o.Run(context.Background(), orchestrator.Options{BatchSize: 4, StartIndex: -1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Deferred != 1 || result.Successes != 3 {
		t.Errorf("result = %+v", result)
	}
	if led.IsProcessed(itemID(1)) {
		t.Error("deferred item must not be ledgered")
	}
	if result.NextResumeIndex != 1 {
		t.Errorf("NextResumeIndex = %d, want 1 (gap at deferred item)", result.NextResumeIndex)
	}
}

func TestRunHonorsStartIndexAndTotalItems(t *testing.T) {
	dir := t.TempDir()
	led := openLedger(t, dir)
	exec := &fakeExecutor{outcome: func(item catalog.Item, _ int) (executor.Outcome, error) {
		return success(item)
	}}
	o := orchestrator.New(testCatalog(10), led, batch.NewWriter(dir), exec, nil, nil)

	result, err := o.Run(context.Background(), orchestrator.Options{BatchSize: 2, StartIndex: 4, TotalItems: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.calls != 3 {
		t.Errorf("executor calls = %d, want 3", exec.calls)
	}
	if result.Successes != 3 || result.BatchesWritten != 2 {
		t.Errorf("result = %+v", result)
	}
	for _, pos := range []int{4, 5, 6} {
		if !led.IsProcessed(itemID(pos)) {
			t.Errorf("position %d not ledgered", pos)
		}
	}
}
