package executor

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"
)

// Sentinel errors fetchers wrap their failures with. Classify falls back to
// message token matching for errors that arrive unwrapped from lower layers.
var (
	ErrBlocked     = errors.New("source identity blocked")
	ErrRateLimited = errors.New("rate limited")
	ErrTransient   = errors.New("transient failure")
	ErrUnavailable = errors.New("content unavailable")
)

// FailureKind describes why an item did not produce a payload.
type FailureKind string

const (
	FailureBlocked          FailureKind = "blocked"
	FailureRateLimited      FailureKind = "rate_limited"
	FailureTransient        FailureKind = "transient"
	FailureTerminal         FailureKind = "terminal"
	FailureRetriesExhausted FailureKind = "retries_exhausted"
)

var itemIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidItemID reports whether id has the canonical 11-character form.
func ValidItemID(id string) bool {
	return itemIDPattern.MatchString(id)
}

var (
	blockedTokens = []string{
		"403",
		"forbidden",
		"blocked",
		"captcha",
		"ip banned",
	}
	rateTokens = []string{
		"429",
		"rate limit",
		"too many requests",
	}
	terminalTokens = []string{
		"404",
		"not found",
		"unavailable",
		"disabled",
		"private",
		"removed",
		"no transcript",
	}
	transientTokens = []string{
		"timeout",
		"deadline exceeded",
		"client.timeout exceeded",
		"connection reset",
		"connection refused",
		"temporary failure",
		"awaiting headers",
		"502",
		"503",
		"504",
	}
)

// Classify maps a fetch error to a failure kind. Sentinel wrapping takes
// precedence over message inspection. Unrecognized errors classify as
// transient so a flaky dependency never permanently skips an item.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrBlocked):
		return FailureBlocked
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrUnavailable):
		return FailureTerminal
	case errors.Is(err, ErrTransient):
		return FailureTransient
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	message := strings.ToLower(err.Error())
	for _, token := range blockedTokens {
		if strings.Contains(message, token) {
			return FailureBlocked
		}
	}
	for _, token := range rateTokens {
		if strings.Contains(message, token) {
			return FailureRateLimited
		}
	}
	// Transient tokens win over terminal ones so "503 service unavailable"
	// never reads as content-gone.
	for _, token := range transientTokens {
		if strings.Contains(message, token) {
			return FailureTransient
		}
	}
	for _, token := range terminalTokens {
		if strings.Contains(message, token) {
			return FailureTerminal
		}
	}
	return FailureTransient
}
