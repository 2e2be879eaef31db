package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gleaner/internal/fileutil"
)

// Item is a single unit of work from the catalog export.
type Item struct {
	ID              string    `json:"id"`
	Position        int       `json:"position"`
	Title           string    `json:"title,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	PublishedAt     time.Time `json:"published_at,omitempty"`

	// OriginalIndex is the item's position in the unfiltered catalog.
	// Equal to Position until a Filter reassigns positions.
	OriginalIndex int `json:"original_index"`
}

// Catalog is an ordered collection of items with contiguous positions
// starting at zero.
type Catalog struct {
	Source string
	Items  []Item
}

type fileFormat struct {
	Source string     `json:"source"`
	Items  []fileItem `json:"items"`
}

type fileItem struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	DurationSeconds int       `json:"duration_seconds"`
	PublishedAt     time.Time `json:"published_at"`
}

// Load reads a catalog export from path. Items receive positions in file
// order. Items with a blank ID are rejected rather than silently skipped so
// that positions never drift between runs against the same file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	items := make([]Item, 0, len(ff.Items))
	seen := make(map[string]int, len(ff.Items))
	for i, fi := range ff.Items {
		id := strings.TrimSpace(fi.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog %s: item %d has empty id", path, i)
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate id %q at indexes %d and %d", path, id, prev, i)
		}
		seen[id] = i
		items = append(items, Item{
			ID:              id,
			Position:        i,
			Title:           fi.Title,
			DurationSeconds: fi.DurationSeconds,
			PublishedAt:     fi.PublishedAt,
			OriginalIndex:   i,
		})
	}
	return &Catalog{Source: ff.Source, Items: items}, nil
}

// Save writes the catalog in the export format Load reads, so a filtered
// catalog can feed later runs directly.
func (c *Catalog) Save(path string) error {
	ff := fileFormat{Source: c.Source, Items: make([]fileItem, 0, len(c.Items))}
	for _, item := range c.Items {
		ff.Items = append(ff.Items, fileItem{
			ID:              item.ID,
			Title:           item.Title,
			DurationSeconds: item.DurationSeconds,
			PublishedAt:     item.PublishedAt,
		})
	}
	if err := fileutil.WriteJSONAtomic(path, ff); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

// Len returns the number of items in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// Filter returns a new catalog containing only items whose duration falls
// within [minSeconds, maxSeconds] inclusive. Positions are reassigned
// contiguously from zero; OriginalIndex is preserved. Bounds of zero disable
// that side of the check.
func (c *Catalog) Filter(minSeconds, maxSeconds int) *Catalog {
	out := &Catalog{Source: c.Source, Items: make([]Item, 0, len(c.Items))}
	for _, item := range c.Items {
		if minSeconds > 0 && item.DurationSeconds < minSeconds {
			continue
		}
		if maxSeconds > 0 && item.DurationSeconds > maxSeconds {
			continue
		}
		item.Position = len(out.Items)
		out.Items = append(out.Items, item)
	}
	return out
}

// Slice returns up to n items starting at position start. Out-of-range
// requests clamp to the catalog bounds and may return an empty slice.
func (c *Catalog) Slice(start, n int) []Item {
	if start < 0 {
		start = 0
	}
	if start >= len(c.Items) || n <= 0 {
		return nil
	}
	end := start + n
	if end > len(c.Items) {
		end = len(c.Items)
	}
	return c.Items[start:end]
}
