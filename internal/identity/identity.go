// Package identity manages the pool of network identities the executor
// rotates through when the upstream blocks a source address.
//
// An identity is an opaque string label. For proxy-based setups the label is
// the proxy URL itself; for external VPN tooling the label is whatever the
// rotate command prints. The empty label means a direct connection.
package identity

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// ErrExhausted reports that every identity in the pool has been marked
// failed. The pool resets its failed set when this happens so a later Next
// call starts a fresh cycle.
var ErrExhausted = errors.New("identity pool exhausted")

// ErrDeclined reports that an interactive rotation was declined by the
// operator.
var ErrDeclined = errors.New("identity rotation declined")

// Pool cycles through a fixed set of identities, skipping ones marked
// failed. Safe for concurrent use.
type Pool struct {
	mu     sync.Mutex
	ids    []string
	cursor int
	failed map[string]struct{}
}

// NewPool builds a pool over the given identity labels. An empty list yields
// a pool whose Current is always the direct connection.
func NewPool(ids []string) *Pool {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	return &Pool{ids: clean, failed: make(map[string]struct{})}
}

// Len returns the number of identities in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

// Current returns the identity the pool is positioned on without advancing.
// Returns "" for an empty pool.
func (p *Pool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ids) == 0 {
		return ""
	}
	return p.ids[p.cursor%len(p.ids)]
}

// Next advances to the next identity that has not been marked failed. When
// every identity is failed the failed set is cleared and ErrExhausted is
// returned alongside the identity the fresh cycle starts on.
func (p *Pool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ids) == 0 {
		return "", nil
	}
	for i := 1; i <= len(p.ids); i++ {
		candidate := (p.cursor + i) % len(p.ids)
		if _, bad := p.failed[p.ids[candidate]]; bad {
			continue
		}
		p.cursor = candidate
		return p.ids[p.cursor], nil
	}
	p.failed = make(map[string]struct{})
	p.cursor = (p.cursor + 1) % len(p.ids)
	return p.ids[p.cursor], ErrExhausted
}

// MarkFailed records that an identity was blocked or otherwise unusable so
// Next skips it until the pool cycles through every alternative.
func (p *Pool) MarkFailed(id string) {
	if id == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[id] = struct{}{}
}

// Rotator switches the process to a new network identity and reports the
// label of the identity now in effect.
type Rotator interface {
	Rotate(ctx context.Context) (string, error)
}

// PoolRotator rotates by advancing a Pool. It satisfies proxy-based setups
// where switching identity is just picking the next proxy URL.
type PoolRotator struct {
	Pool *Pool
}

func (r *PoolRotator) Rotate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := r.Pool.Next()
	if errors.Is(err, ErrExhausted) {
		// A fresh cycle is still a rotation; the caller decides whether
		// revisiting identities is acceptable.
		return id, nil
	}
	return id, err
}

// CommandRotator rotates by running an external command (typically a VPN
// reconnect script). The first non-empty line of the command's stdout is the
// new identity label; empty output leaves the label blank.
type CommandRotator struct {
	Command []string
}

func (r *CommandRotator) Rotate(ctx context.Context) (string, error) {
	if len(r.Command) == 0 {
		return "", errors.New("rotate command not configured")
	}
	cmd := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("rotate command %s: %w", r.Command[0], err)
	}
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", nil
}

// PromptRotator asks the operator to switch identities manually and waits
// for confirmation. Entering "q" declines the rotation.
type PromptRotator struct {
	In  io.Reader
	Out io.Writer
}

func (r *PromptRotator) Rotate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(r.Out, "Switch network identity now, then press ENTER to continue (q to stop): ")
	reader := bufio.NewReader(r.In)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read rotation confirmation: %w", err)
	}
	if strings.EqualFold(strings.TrimSpace(line), "q") {
		return "", ErrDeclined
	}
	return "", nil
}
