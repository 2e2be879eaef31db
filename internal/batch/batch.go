// Package batch persists completed batches as standalone JSON files.
//
// A batch file is the durable unit of work: it is written atomically once
// the whole batch has finished, never updated, and carries enough context
// (run ref, start index, per-item outcomes) for the merge step to rebuild
// global state from batch files alone.
package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gleaner/internal/catalog"
	"gleaner/internal/executor"
	"gleaner/internal/fileutil"
)

// Batch is one completed batch of item outcomes.
type Batch struct {
	Number      int                `json:"number"`
	RunRef      string             `json:"run_ref"`
	StartIndex  int                `json:"start_index"`
	ItemCount   int                `json:"item_count"`
	Successes   int                `json:"success_count"`
	Items       []catalog.Item     `json:"items"`
	Outcomes    []executor.Outcome `json:"outcomes"`
	CompletedAt time.Time          `json:"completed_at"`
}

// SuccessCount returns the number of outcomes with a payload.
func (b *Batch) SuccessCount() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Status == executor.StatusSuccess {
			n++
		}
	}
	return n
}

// TerminalCount returns the number of permanently failed outcomes.
func (b *Batch) TerminalCount() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Status == executor.StatusFailed && o.Kind == executor.FailureTerminal {
			n++
		}
	}
	return n
}

// DeferredCount returns the number of outcomes left for a later run.
func (b *Batch) DeferredCount() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Deferred() {
			n++
		}
	}
	return n
}

// Writer persists batches into a directory.
type Writer struct {
	dir string
}

// NewWriter returns a writer rooted at dir. The directory is created on the
// first Write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Filename returns the batch file name for a batch number and run ref.
func Filename(number int, runRef string) string {
	return fmt.Sprintf("gleaner_batch_%04d_%s.json", number, runRef)
}

// Write persists the batch atomically and returns the file path.
func (w *Writer) Write(b *Batch) (string, error) {
	if b.RunRef == "" {
		return "", fmt.Errorf("batch %d has no run ref", b.Number)
	}
	b.ItemCount = len(b.Items)
	b.Successes = b.SuccessCount()
	path := filepath.Join(w.dir, Filename(b.Number, b.RunRef))
	if err := fileutil.WriteJSONAtomic(path, b); err != nil {
		return "", fmt.Errorf("write batch %d: %w", b.Number, err)
	}
	return path, nil
}

// Load reads a single batch file.
func Load(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse batch %s: %w", path, err)
	}
	return &b, nil
}

// LoadAll reads every batch file in dir, ordered by start index then batch
// number so merge output is stable across runs. A missing directory yields
// an empty slice.
func LoadAll(dir string) ([]*Batch, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "gleaner_batch_*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan batch dir: %w", err)
	}
	batches := make([]*Batch, 0, len(paths))
	for _, path := range paths {
		b, err := Load(path)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool {
		if batches[i].StartIndex != batches[j].StartIndex {
			return batches[i].StartIndex < batches[j].StartIndex
		}
		return batches[i].Number < batches[j].Number
	})
	return batches, nil
}
