package executor

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"gleaner/internal/catalog"
	"gleaner/internal/identity"
	"gleaner/internal/logging"
)

// transientRotateChance is the probability a transient retry moves to the
// next pool identity before backing off.
const transientRotateChance = 0.5

// Payload is the extracted content for a single item.
type Payload struct {
	Text         string `json:"text"`
	WordCount    int    `json:"word_count"`
	SegmentCount int    `json:"segment_count"`
}

// Status is the final disposition of an execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome captures one item's execution result, success or not.
type Outcome struct {
	ItemID      string      `json:"item_id"`
	Position    int         `json:"position"`
	Status      Status      `json:"status"`
	Kind        FailureKind `json:"kind,omitempty"`
	Attempts    int         `json:"attempts"`
	Error       string      `json:"error,omitempty"`
	IdentityID  string      `json:"identity_id,omitempty"`
	Payload     *Payload    `json:"payload,omitempty"`
	CompletedAt time.Time   `json:"completed_at"`
}

// Deferred reports whether the item should be retried by a later run rather
// than recorded in the ledger.
func (o Outcome) Deferred() bool {
	return o.Status == StatusFailed && o.Kind == FailureRetriesExhausted
}

// Fetcher retrieves the payload for one item using the given identity.
// identityID is the pool label; empty means a direct connection.
type Fetcher interface {
	Fetch(ctx context.Context, itemID, identityID string) (Payload, error)
}

// Config controls pacing and retry behavior. Zero values are replaced with
// conservative defaults in New.
type Config struct {
	MinDelay          time.Duration
	MaxDelay          time.Duration
	BackoffFactor     float64
	BackoffCap        time.Duration
	MaxRetries        int
	BlockCooldown     time.Duration
	BlockCooldownStep time.Duration

	// Test seams. Nil selects the real clock, context-aware sleep, and a
	// time-seeded source.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  *rand.Rand
}

// Executor runs fetches one at a time with adaptive pacing. Not safe for
// concurrent use; the rate ceiling only holds if requests are serialized.
type Executor struct {
	cfg     Config
	fetcher Fetcher
	pool    *identity.Pool
	logger  *slog.Logger

	requests          []time.Time
	consecutiveBlocks int
	recentlyBlocked   bool
}

// New builds an executor over the fetcher and identity pool.
func New(cfg Config, fetcher Fetcher, pool *identity.Pool, logger *slog.Logger) *Executor {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 3 * time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = 5 * cfg.MinDelay
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 2.5
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BlockCooldown <= 0 {
		cfg.BlockCooldown = 5 * time.Minute
	}
	if cfg.BlockCooldownStep <= 0 {
		cfg.BlockCooldownStep = 3 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepWithContext
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if pool == nil {
		pool = identity.NewPool(nil)
	}
	return &Executor{cfg: cfg, fetcher: fetcher, pool: pool, logger: logger}
}

// Execute fetches one item, retrying recoverable failures. The returned
// error is non-nil only when the context ends; every other result, including
// terminal failures and exhausted retries, is expressed in the Outcome.
func (e *Executor) Execute(ctx context.Context, item catalog.Item) (Outcome, error) {
	outcome := Outcome{ItemID: item.ID, Position: item.Position}

	if !ValidItemID(item.ID) {
		outcome.Status = StatusFailed
		outcome.Kind = FailureTerminal
		outcome.Error = "malformed item id"
		outcome.CompletedAt = e.cfg.Now().UTC()
		return outcome, nil
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		if attempt > e.cfg.MaxRetries {
			outcome.Status = StatusFailed
			outcome.Kind = FailureRetriesExhausted
			outcome.Attempts = attempt
			outcome.Error = lastErr.Error()
			outcome.CompletedAt = e.cfg.Now().UTC()
			e.logger.Warn("retries exhausted",
				logging.String("item_id", item.ID),
				logging.Int("attempts", attempt),
				logging.String("error", outcome.Error))
			return outcome, nil
		}
		if err := e.pace(ctx); err != nil {
			return outcome, err
		}

		identityID := e.pool.Current()
		e.recordRequest()
		payload, err := e.fetcher.Fetch(ctx, item.ID, identityID)
		if err == nil {
			e.consecutiveBlocks = 0
			e.recentlyBlocked = false
			outcome.Status = StatusSuccess
			outcome.Attempts = attempt + 1
			outcome.IdentityID = identityID
			outcome.Payload = &payload
			outcome.CompletedAt = e.cfg.Now().UTC()
			return outcome, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, ctxErr
		}
		lastErr = err

		kind := Classify(err)
		e.logger.Debug("fetch attempt failed",
			logging.String("item_id", item.ID),
			logging.Int("attempt", attempt+1),
			logging.String("kind", string(kind)),
			logging.Error(err))

		switch kind {
		case FailureTerminal:
			outcome.Status = StatusFailed
			outcome.Kind = FailureTerminal
			outcome.Attempts = attempt + 1
			outcome.IdentityID = identityID
			outcome.Error = err.Error()
			outcome.CompletedAt = e.cfg.Now().UTC()
			return outcome, nil
		case FailureBlocked:
			if err := e.handleBlock(ctx, identityID); err != nil {
				return outcome, err
			}
		default:
			// A fraction of transient retries move to a fresh identity
			// in case the current one is quietly degraded.
			if kind == FailureTransient && e.pool.Len() > 1 && e.cfg.Rand.Float64() < transientRotateChance {
				if next, rotErr := e.pool.Next(); rotErr == nil {
					e.logger.Debug("rotated identity on transient failure",
						logging.String("next", next))
				}
			}
			if err := e.cfg.Sleep(ctx, e.backoff(attempt+1)); err != nil {
				return outcome, err
			}
		}
	}
}

// pace sleeps long enough to keep the trailing-minute request rate inside
// the configured envelope, with a little additive jitter so the cadence
// never looks mechanical.
func (e *Executor) pace(ctx context.Context) error {
	rate := e.requestsLastMinute()
	var delay time.Duration
	switch {
	case e.recentlyBlocked:
		delay = 2 * e.cfg.MaxDelay
	case rate > 10:
		delay = e.cfg.MaxDelay
	case rate > 5:
		delay = 3 * e.cfg.MinDelay
	case rate > 3:
		delay = 2 * e.cfg.MinDelay
	default:
		delay = e.cfg.MinDelay
	}
	if ceiling := 2 * e.cfg.MaxDelay; delay > ceiling {
		delay = ceiling
	}
	jitter := time.Duration(200+e.cfg.Rand.Intn(301)) * time.Millisecond
	return e.cfg.Sleep(ctx, delay+jitter)
}

// backoff returns the delay before retry number attempt (1-based):
// exponential on the configured factor, capped, then scaled by a
// 0.8-1.2 jitter multiplier.
func (e *Executor) backoff(attempt int) time.Duration {
	base := float64(e.cfg.MinDelay) * math.Pow(e.cfg.BackoffFactor, float64(attempt))
	if limit := float64(e.cfg.BackoffCap); base > limit {
		base = limit
	}
	scale := 0.8 + 0.4*e.cfg.Rand.Float64()
	return time.Duration(base * scale)
}

// handleBlock rotates to the next identity when the pool has an alternative,
// otherwise waits out a cooldown escalating with consecutive blocks.
func (e *Executor) handleBlock(ctx context.Context, identityID string) error {
	e.recentlyBlocked = true
	e.consecutiveBlocks++
	e.pool.MarkFailed(identityID)
	if e.pool.Len() > 1 {
		next, err := e.pool.Next()
		if err != nil && !errors.Is(err, identity.ErrExhausted) {
			return err
		}
		e.logger.Info("rotated identity after block",
			logging.String("blocked", identityID),
			logging.String("next", next))
		return nil
	}
	cooldown := e.cfg.BlockCooldown + time.Duration(e.consecutiveBlocks-1)*e.cfg.BlockCooldownStep
	e.logger.Warn("blocked with no alternate identity, cooling down",
		logging.Duration("cooldown", cooldown))
	return e.cfg.Sleep(ctx, cooldown)
}

func (e *Executor) recordRequest() {
	now := e.cfg.Now()
	cutoff := now.Add(-time.Minute)
	kept := e.requests[:0]
	for _, ts := range e.requests {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.requests = append(kept, now)
}

func (e *Executor) requestsLastMinute() int {
	cutoff := e.cfg.Now().Add(-time.Minute)
	n := 0
	for _, ts := range e.requests {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
