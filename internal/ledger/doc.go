// Package ledger tracks which catalog items have been processed so a run can
// resume where it left off.
//
// The ledger is a JSON file keyed by item ID, guarded by a sibling lock file
// so two runs never race on the same progress state. An item appears in the
// ledger only once its batch has been durably written; first write wins and
// later outcomes for the same item are ignored. Resume is gap-first: the
// next index to process is the lowest position with no record, which covers
// both the straightforward append case and holes left by reordered or
// partially failed batches.
package ledger
