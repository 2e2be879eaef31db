package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"

	"gleaner/internal/fileutil"
)

// Status records the final disposition of an item.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

var (
	// ErrCorrupt reports that the ledger file exists but cannot be parsed.
	// The caller must not guess at progress; rebuild from batch files or
	// repair the ledger by hand.
	ErrCorrupt = errors.New("ledger file is corrupt")

	// ErrDuplicateItem reports an attempt to record an item that already
	// has a ledger entry.
	ErrDuplicateItem = errors.New("item already recorded")

	// ErrLocked reports that another process holds the ledger lock.
	ErrLocked = errors.New("ledger is locked by another process")
)

// Record is a single processed-item entry.
type Record struct {
	ItemID     string    `json:"item_id"`
	Position   int       `json:"position"`
	Status     Status    `json:"status"`
	BatchRef   string    `json:"batch_ref"`
	RecordedAt time.Time `json:"recorded_at"`
}

type fileFormat struct {
	LastProcessedIndex int               `json:"last_processed_index"`
	Records            map[string]Record `json:"records"`
}

// Ledger holds progress state for one catalog. Not safe for concurrent use
// within a process; the lock file guards against concurrent processes.
type Ledger struct {
	path    string
	lock    *flock.Flock
	records map[string]Record
}

// Open loads the ledger at path, creating an empty one if the file does not
// exist, and acquires an exclusive lock on a sibling .lock file. Close
// releases the lock.
func Open(path string) (*Ledger, error) {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	l := &Ledger{path: path, lock: lock, records: make(map[string]Record)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	for id, rec := range ff.Records {
		if rec.ItemID == "" {
			rec.ItemID = id
		}
		l.records[id] = rec
	}
	return l, nil
}

// Close releases the ledger lock. The in-memory state stays readable.
func (l *Ledger) Close() error {
	if l.lock == nil {
		return nil
	}
	err := l.lock.Unlock()
	l.lock = nil
	return err
}

// Len returns the number of recorded items.
func (l *Ledger) Len() int {
	return len(l.records)
}

// IsProcessed reports whether the item already has a ledger entry.
func (l *Ledger) IsProcessed(itemID string) bool {
	_, ok := l.records[itemID]
	return ok
}

// Record returns the entry for itemID, if any.
func (l *Ledger) Record(itemID string) (Record, bool) {
	rec, ok := l.records[itemID]
	return rec, ok
}

// RecordOutcome adds an entry for an item. First write wins: recording an
// item that already has an entry returns ErrDuplicateItem and leaves the
// existing entry untouched.
func (l *Ledger) RecordOutcome(itemID string, position int, status Status, batchRef string, at time.Time) error {
	if itemID == "" {
		return errors.New("empty item id")
	}
	if _, ok := l.records[itemID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateItem, itemID)
	}
	l.records[itemID] = Record{
		ItemID:     itemID,
		Position:   position,
		Status:     status,
		BatchRef:   batchRef,
		RecordedAt: at.UTC(),
	}
	return nil
}

// NextResumeIndex returns the lowest catalog position with no ledger entry.
// An empty ledger resumes at zero; a ledger with no gaps resumes one past
// the highest recorded position.
func (l *Ledger) NextResumeIndex() int {
	if len(l.records) == 0 {
		return 0
	}
	have := make(map[int]struct{}, len(l.records))
	max := -1
	for _, rec := range l.records {
		have[rec.Position] = struct{}{}
		if rec.Position > max {
			max = rec.Position
		}
	}
	for i := 0; i <= max; i++ {
		if _, ok := have[i]; !ok {
			return i
		}
	}
	return max + 1
}

// CountByStatus tallies recorded items per status.
func (l *Ledger) CountByStatus() map[Status]int {
	counts := make(map[Status]int, 2)
	for _, rec := range l.records {
		counts[rec.Status]++
	}
	return counts
}

// Records returns a copy of every ledger entry.
func (l *Ledger) Records() []Record {
	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	return out
}

// Persist writes the ledger to disk atomically. The on-disk
// last_processed_index mirrors NextResumeIndex minus one for compatibility
// with tooling that only reads the scalar.
func (l *Ledger) Persist() error {
	ff := fileFormat{
		LastProcessedIndex: l.NextResumeIndex() - 1,
		Records:            l.records,
	}
	if err := fileutil.WriteJSONAtomic(l.path, ff); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}
