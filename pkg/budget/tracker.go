// Package budget tracks token consumption for one pipeline session.
package budget

import (
	"fmt"
	"sort"
	"sync"
)

// Config bounds a session's token spend.
type Config struct {
	// Limit is the total token allowance. Zero means unlimited.
	Limit int `json:"limit" yaml:"limit"`
	// WarningRatio is the usage fraction at which IsWarningLevel turns true.
	WarningRatio float64 `json:"warning_ratio" yaml:"warning_ratio"`
	// SummarizeRatio is the usage fraction at which prompts switch to a compact context.
	SummarizeRatio float64 `json:"summarize_ratio" yaml:"summarize_ratio"`
}

// DefaultConfig is used when no budget section is configured.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	Limit:          200000,
	WarningRatio:   0.75,
	SummarizeRatio: 0.9,
}

// Usage is the token count of one model call.
type Usage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Total returns input plus output.
func (u Usage) Total() int { return u.Input + u.Output }

// AgentUsage accumulates calls made by one agent.
type AgentUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Calls  int `json:"calls"`
}

// Total returns input plus output.
func (a AgentUsage) Total() int { return a.Input + a.Output }

// Snapshot is the serialisable state of a Tracker.
type Snapshot struct {
	Limit  int                   `json:"limit"`
	Agents map[string]AgentUsage `json:"agents"`
}

// Total returns the tokens recorded in the snapshot.
func (s Snapshot) Total() int {
	total := 0
	for _, a := range s.Agents {
		total += a.Total()
	}
	return total
}

// Tracker counts tokens per agent for a single session. It is safe for
// concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	cfg    Config
	agents map[string]*AgentUsage
	total  int
}

// NewTracker creates an empty tracker.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:    cfg,
		agents: make(map[string]*AgentUsage),
	}
}

// Limit returns the configured allowance (0 = unlimited).
func (t *Tracker) Limit() int {
	return t.cfg.Limit
}

// CanProceed reports whether a call estimated at tokens still fits.
func (t *Tracker) CanProceed(tokens int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.cfg.Limit <= 0 {
		return true
	}
	return t.total+tokens <= t.cfg.Limit
}

// Track records usage for agent. Negative counts are ignored so the total
// never decreases.
func (t *Tracker) Track(agent string, u Usage) {
	if u.Input < 0 {
		u.Input = 0
	}
	if u.Output < 0 {
		u.Output = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.agents[agent]
	if !ok {
		a = &AgentUsage{}
		t.agents[agent] = a
	}
	a.Input += u.Input
	a.Output += u.Output
	a.Calls++
	t.total += u.Total()
}

// TotalUsed returns all tokens recorded so far.
func (t *Tracker) TotalUsed() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

// Remaining returns the tokens left, or -1 when unlimited.
func (t *Tracker) Remaining() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.cfg.Limit <= 0 {
		return -1
	}
	if r := t.cfg.Limit - t.total; r > 0 {
		return r
	}
	return 0
}

// UsagePercent returns used/limit as a percentage, 0 when unlimited.
func (t *Tracker) UsagePercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.cfg.Limit <= 0 {
		return 0
	}
	return float64(t.total) / float64(t.cfg.Limit) * 100
}

// ShouldSummarize reports whether prompts should use the compact context.
func (t *Tracker) ShouldSummarize() bool {
	return t.atRatio(t.cfg.SummarizeRatio)
}

// IsWarningLevel reports whether usage has crossed the warning ratio.
func (t *Tracker) IsWarningLevel() bool {
	return t.atRatio(t.cfg.WarningRatio)
}

func (t *Tracker) atRatio(ratio float64) bool {
	if ratio <= 0 {
		return false
	}
	return t.UsagePercent() >= ratio*100
}

// AgentUsage returns the accumulated usage of one agent.
func (t *Tracker) AgentUsage(agent string) (AgentUsage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.agents[agent]
	if !ok {
		return AgentUsage{}, false
	}
	return *a, true
}

// Agents returns the names of agents with recorded usage, sorted.
func (t *Tracker) Agents() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.agents))
	for name := range t.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot copies the tracker state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Snapshot{Limit: t.cfg.Limit, Agents: make(map[string]AgentUsage, len(t.agents))}
	for name, a := range t.agents {
		s.Agents[name] = *a
	}
	return s
}

// Restore replaces the tracker state with s. The configured limit is kept.
func (t *Tracker) Restore(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agents = make(map[string]*AgentUsage, len(s.Agents))
	t.total = 0
	for name, a := range s.Agents {
		t.agents[name] = &a
		t.total += a.Total()
	}
}

// Reset clears all recorded usage.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agents = make(map[string]*AgentUsage)
	t.total = 0
}

// String summarises the tracker for logs.
func (t *Tracker) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.cfg.Limit <= 0 {
		return fmt.Sprintf("%d tokens (unlimited)", t.total)
	}
	return fmt.Sprintf("%d/%d tokens", t.total, t.cfg.Limit)
}
