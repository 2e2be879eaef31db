package batch_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gleaner/internal/batch"
	"gleaner/internal/catalog"
	"gleaner/internal/executor"
)

func sampleBatch(number, start int, runRef string) *batch.Batch {
	items := []catalog.Item{
		{ID: "aaaaaaaaaaa", Position: start},
		{ID: "bbbbbbbbbbb", Position: start + 1},
		{ID: "ccccccccccc", Position: start + 2},
	}
	outcomes := []executor.Outcome{
		{ItemID: items[0].ID, Position: items[0].Position, Status: executor.StatusSuccess,
			Payload: &executor.Payload{Text: "hello", WordCount: 1, SegmentCount: 1}},
		{ItemID: items[1].ID, Position: items[1].Position, Status: executor.StatusFailed,
			Kind: executor.FailureTerminal, Error: "not found"},
		{ItemID: items[2].ID, Position: items[2].Position, Status: executor.StatusFailed,
			Kind: executor.FailureRetriesExhausted, Error: "timeout"},
	}
	return &batch.Batch{
		Number:      number,
		RunRef:      runRef,
		StartIndex:  start,
		Items:       items,
		Outcomes:    outcomes,
		CompletedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCounts(t *testing.T) {
	b := sampleBatch(1, 0, "run-1")
	if got := b.SuccessCount(); got != 1 {
		t.Errorf("SuccessCount = %d, want 1", got)
	}
	if got := b.TerminalCount(); got != 1 {
		t.Errorf("TerminalCount = %d, want 1", got)
	}
	if got := b.DeferredCount(); got != 1 {
		t.Errorf("DeferredCount = %d, want 1", got)
	}
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := batch.NewWriter(dir)

	b := sampleBatch(3, 30, "run-abc")
	path, err := w.Write(b)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if want := filepath.Join(dir, "gleaner_batch_0003_run-abc.json"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}

	loaded, err := batch.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Number != 3 || loaded.StartIndex != 30 || loaded.ItemCount != 3 || loaded.Successes != 1 {
		t.Errorf("loaded header = %+v", loaded)
	}
	if len(loaded.Outcomes) != 3 || loaded.Outcomes[0].Payload == nil {
		t.Errorf("outcomes not preserved: %+v", loaded.Outcomes)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteRequiresRunRef(t *testing.T) {
	w := batch.NewWriter(t.TempDir())
	if _, err := w.Write(&batch.Batch{Number: 1}); err == nil {
		t.Fatal("expected error for missing run ref")
	}
}

func TestLoadAllOrdersByStartIndex(t *testing.T) {
	dir := t.TempDir()
	w := batch.NewWriter(dir)

	// Written out of order, from two different runs.
	for _, spec := range []struct {
		number, start int
		run           string
	}{
		{2, 30, "run-b"},
		{1, 0, "run-a"},
		{1, 30, "run-b"},
	} {
		if _, err := w.Write(sampleBatch(spec.number, spec.start, spec.run)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	batches, err := batch.LoadAll(dir)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("LoadAll len = %d, want 3", len(batches))
	}
	if batches[0].StartIndex != 0 {
		t.Errorf("first batch start = %d, want 0", batches[0].StartIndex)
	}
	if batches[1].StartIndex != 30 || batches[1].Number != 1 {
		t.Errorf("second batch = %d/%d, want start 30 number 1", batches[1].StartIndex, batches[1].Number)
	}
	if batches[2].Number != 2 {
		t.Errorf("third batch number = %d, want 2", batches[2].Number)
	}
}

func TestLoadAllMissingDir(t *testing.T) {
	batches, err := batch.LoadAll(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("LoadAll = %d batches, want 0", len(batches))
	}
}
