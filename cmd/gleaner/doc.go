// Package main hosts the gleaner CLI entrypoint and command graph.
//
// The Cobra-based command tree wires configuration resolution, logging setup,
// and signal handling around the internal packages: run drives the
// orchestrator, merge feeds the reconciler and transcript store, and the
// catalog/ledger/config utilities cover inspection and recovery. Exit codes
// distinguish clean completion (0), fatal errors (1), and interrupted but
// resumable runs (2).
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
