// Package orchestrator drives an extraction run batch by batch.
//
// The batch is the durability unit: outcomes live only in memory until the
// batch file is written, then the ledger records the batch's settled items
// and persists. An interrupt between those points discards at most one
// batch of work, which the next run redoes. A batch that settles nothing
// rotates the network identity and retries the same index once before the
// run gives up, so a blocked identity cannot silently burn through the
// catalog.
package orchestrator
