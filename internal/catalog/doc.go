// Package catalog loads the position-ordered list of work items the engine
// consumes.
//
// Positions are assigned 0-based in file order at load time and are the
// single source of truth for resume logic; item IDs are the dedup key.
// Filtering by duration produces a new catalog with positions reassigned
// sequentially so resume arithmetic stays simple, while the original index is
// preserved for reference back to the unfiltered export.
package catalog
