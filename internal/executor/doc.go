// Package executor runs individual fetch attempts under adaptive pacing,
// classifies failures, and retries with capped exponential backoff.
//
// Pacing adapts to the observed request rate over the trailing minute and
// doubles off the ceiling after a block. Blocks rotate to the next usable
// identity when the pool has one, otherwise the executor sits out an
// escalating cooldown. Terminal failures (content gone, private, disabled)
// fail fast without retries; everything else retries up to the configured
// limit and is then reported as exhausted so the caller can defer the item
// to a later run.
package executor
