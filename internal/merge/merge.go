// Package merge reconciles batch files into a single position-ordered view.
//
// Entries are sorted by position with a stable sort and deduplicated by item
// ID keeping the first occurrence, so when two batches disagree about an
// item the one at the lower position (or from the earlier batch at equal
// positions) wins. The summary reports coverage gaps within the covered
// position range, so shards with disjoint ranges reconcile independently.
package merge

import (
	"fmt"
	"sort"
	"time"

	"gleaner/internal/batch"
	"gleaner/internal/catalog"
	"gleaner/internal/executor"
	"gleaner/internal/fileutil"
)

// Entry pairs a catalog item with its recorded outcome.
type Entry struct {
	Item    catalog.Item     `json:"item"`
	Outcome executor.Outcome `json:"outcome"`
}

// Summary describes the reconciled state across all batches.
type Summary struct {
	TotalItems        int   `json:"total_items"`
	Successes         int   `json:"successes"`
	TerminalFailures  int   `json:"terminal_failures"`
	Deferred          int   `json:"deferred"`
	DuplicatesRemoved int   `json:"duplicates_removed"`
	Gaps              []int `json:"gaps,omitempty"`
	NextResumeIndex   int   `json:"next_resume_index"`
	MinPosition       int   `json:"min_position"`
	MaxPosition       int   `json:"max_position"`
}

// Result is the reconciled entry list plus its summary.
type Result struct {
	Entries []Entry
	Summary Summary
}

// Merge reconciles the given batches. Batch order matters only for breaking
// position ties; the output is ordered by position regardless of input
// order.
func Merge(batches []*batch.Batch) *Result {
	var entries []Entry
	for _, b := range batches {
		items := make(map[string]catalog.Item, len(b.Items))
		for _, item := range b.Items {
			items[item.ID] = item
		}
		for _, outcome := range b.Outcomes {
			item, ok := items[outcome.ItemID]
			if !ok {
				item = catalog.Item{ID: outcome.ItemID, Position: outcome.Position}
			}
			entries = append(entries, Entry{Item: item, Outcome: outcome})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Outcome.Position < entries[j].Outcome.Position
	})

	deduped := entries[:0]
	seen := make(map[string]struct{}, len(entries))
	duplicates := 0
	for _, e := range entries {
		if _, dup := seen[e.Item.ID]; dup {
			duplicates++
			continue
		}
		seen[e.Item.ID] = struct{}{}
		deduped = append(deduped, e)
	}

	return &Result{Entries: deduped, Summary: summarize(deduped, duplicates)}
}

func summarize(entries []Entry, duplicates int) Summary {
	s := Summary{TotalItems: len(entries), DuplicatesRemoved: duplicates}
	if len(entries) == 0 {
		return s
	}

	have := make(map[int]struct{}, len(entries))
	s.MinPosition = entries[0].Outcome.Position
	s.MaxPosition = entries[len(entries)-1].Outcome.Position
	for _, e := range entries {
		have[e.Outcome.Position] = struct{}{}
		switch {
		case e.Outcome.Status == executor.StatusSuccess:
			s.Successes++
		case e.Outcome.Deferred():
			s.Deferred++
		case e.Outcome.Status == executor.StatusFailed:
			s.TerminalFailures++
		}
	}

	// Gaps are scanned within the covered range only. A shard whose
	// positions start above zero is complete when min..max is covered.
	for i := s.MinPosition; i <= s.MaxPosition; i++ {
		if _, ok := have[i]; !ok {
			s.Gaps = append(s.Gaps, i)
		}
	}
	if len(s.Gaps) > 0 {
		s.NextResumeIndex = s.Gaps[0]
	} else {
		s.NextResumeIndex = s.MaxPosition + 1
	}
	return s
}

type mergedFile struct {
	GeneratedAt time.Time `json:"generated_at"`
	Summary     Summary   `json:"summary"`
	Entries     []Entry   `json:"entries"`
}

// WriteMergedFile exports the reconciled result as a single JSON document.
func WriteMergedFile(path string, result *Result, now time.Time) error {
	doc := mergedFile{
		GeneratedAt: now.UTC(),
		Summary:     result.Summary,
		Entries:     result.Entries,
	}
	if err := fileutil.WriteJSONAtomic(path, doc); err != nil {
		return fmt.Errorf("write merged file: %w", err)
	}
	return nil
}
