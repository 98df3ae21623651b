// Package circuit stops sending pipeline stages to a provider that keeps
// failing. The factory keeps one breaker per provider, shared by every
// session in the process.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"floorplanner/pkg/agent/llmerrors"
	"floorplanner/pkg/logx"
)

// State of a breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config sets when a breaker opens and how it recovers.
type Config struct {
	FailureThreshold int           `json:"failure_threshold"` // consecutive failures that open the circuit
	SuccessThreshold int           `json:"success_threshold"` // half-open successes that close it again
	Timeout          time.Duration `json:"timeout"`           // how long it stays open before probing
}

// Disabled reports whether the config turns the breaker off.
func (c Config) Disabled() bool {
	return c.FailureThreshold <= 0
}

// DefaultConfig matches the config package defaults.
//
//nolint:gochecknoglobals
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 1,
	Timeout:          30 * time.Second,
}

// Error is returned instead of calling the provider while the circuit is open.
type Error struct {
	Provider   string
	State      State
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("circuit breaker is %s", e.State)
	}
	return fmt.Sprintf("circuit breaker for %s is %s (probe in %s)", e.Provider, e.State, e.RetryAfter.Round(time.Second))
}

// Counts is a point-in-time view of a breaker.
type Counts struct {
	State     State
	Failures  int
	Successes int
	OpenedAt  time.Time
}

// Breaker tracks the health of one provider.
//
//nolint:govet // grouped by role
type Breaker struct {
	provider string
	config   Config
	logger   *logx.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New creates a closed breaker for provider.
func New(provider string, config Config) *Breaker {
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &Breaker{
		provider: provider,
		config:   config,
		logger:   logx.NewLogger("circuit").With("provider", provider),
		now:      time.Now,
	}
}

// Allow returns nil when a call may go through, or an *Error while open.
// An open breaker past its timeout lets the next call through as a probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return nil
	}
	waited := b.now().Sub(b.openedAt)
	if waited >= b.config.Timeout {
		b.moveTo(HalfOpen)
		return nil
	}
	return &Error{Provider: b.provider, State: Open, RetryAfter: b.config.Timeout - waited}
}

// Record feeds the outcome of a call. Failures caused by the request itself
// (bad prompt, auth) or by the caller giving up do not count against the
// provider.
func (b *Breaker) Record(err error) {
	if err != nil && !countsAgainstProvider(err) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func countsAgainstProvider(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch llmerrors.TypeOf(err) {
	case llmerrors.ErrorTypeAuth, llmerrors.ErrorTypeBadPrompt:
		return false
	default:
		return true
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns the current state and counters.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{State: b.state, Failures: b.failures, Successes: b.successes, OpenedAt: b.openedAt}
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moveTo(Closed)
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.moveTo(Closed)
		}
	}
}

func (b *Breaker) onFailure() {
	b.failures++
	switch b.state {
	case Closed:
		if b.failures >= b.config.FailureThreshold {
			b.moveTo(Open)
		}
	case HalfOpen:
		b.moveTo(Open)
	}
}

// moveTo switches state and resets the counters. The caller holds b.mu.
func (b *Breaker) moveTo(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.successes = 0
	switch to {
	case Open:
		b.openedAt = b.now()
		b.logger.Warn("circuit %s -> %s after %d failures; pausing %s", from, to, b.failures, b.config.Timeout)
	case Closed:
		b.failures = 0
		b.logger.Info("circuit %s -> %s", from, to)
	default:
		b.logger.Info("circuit %s -> %s", from, to)
	}
}
