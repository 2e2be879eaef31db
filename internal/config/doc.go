// Package config loads, normalizes, and validates gleaner's TOML
// configuration.
//
// Configuration sections by subsystem:
//   - Paths: catalog, ledger, batch directory, store, and log locations
//   - Catalog: duration filter bounds applied before engine ingestion
//   - Transcript: remote transcript endpoint and language
//   - Executor: pacing delays, retry bounds, backoff shape, block cooldowns
//   - Identity: proxy endpoints, rotation command, stabilization wait
//   - Workflow: batch size
//   - Logging: output format and level
//
// Load applies the embedded defaults, overlays the TOML file when present,
// expands ~ in paths, and validates the result. Validation failures are
// configuration errors: fatal at startup, never retried.
package config
