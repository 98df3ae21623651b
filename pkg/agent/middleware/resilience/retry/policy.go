// Package retry provides retry logic with exponential backoff for resilient LLM calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"floorplanner/pkg/agent/llmerrors"
	"floorplanner/pkg/agent/middleware/resilience/circuit"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxRetries      int           `json:"max_retries"`      // Retries after the initial attempt
	BaseDelay       time.Duration `json:"base_delay"`       // Delay before the first retry
	MaxDelay        time.Duration `json:"max_delay"`        // Maximum delay between retries
	ExponentialBase float64       `json:"exponential_base"` // Multiplier for exponential backoff
	Jitter          bool          `json:"jitter"`           // Spread delays by up to 25% either way
}

// DefaultConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxRetries:      3,
	BaseDelay:       time.Second,
	MaxDelay:        30 * time.Second,
	ExponentialBase: 2.0,
	Jitter:          true,
}

const jitterFraction = 0.25

//nolint:gochecknoglobals // fixed classification tables
var (
	retryableStatus = map[int]bool{
		408: true, 429: true, 500: true, 502: true, 503: true, 504: true, 529: true,
	}

	retryableCodes = map[string]bool{
		// network
		"ECONNRESET": true, "ECONNREFUSED": true, "ETIMEDOUT": true, "EPIPE": true,
		"ENOTFOUND": true, "EAI_AGAIN": true, "ENETUNREACH": true, "EHOSTUNREACH": true,
		// provider
		"overloaded_error": true, "rate_limit_error": true, "api_error": true,
		"RESOURCE_EXHAUSTED": true, "UNAVAILABLE": true, "DEADLINE_EXCEEDED": true, "INTERNAL": true,
	}

	retryableErrnos = []syscall.Errno{
		syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ETIMEDOUT, syscall.EPIPE,
		syscall.ENETUNREACH, syscall.EHOSTUNREACH,
	}
)

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// IsRetryableError is the default classifier.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// The caller gave up; never retry.
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Let the breaker handle recovery.
	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		switch llmErr.Type {
		case llmerrors.ErrorTypeServiceUnavailable, llmerrors.ErrorTypeAuth, llmerrors.ErrorTypeBadPrompt:
			return false
		case llmerrors.ErrorTypeRateLimit, llmerrors.ErrorTypeEmptyResponse:
			return true
		}
		// Transient and unknown: the status and provider code decide.
		if llmErr.StatusCode != 0 {
			return retryableStatus[llmErr.StatusCode]
		}
		if llmErr.Code != "" && retryableCodes[llmErr.Code] {
			return true
		}
		if llmErr.IsRetryable() {
			return true
		}
		// Unknown llm errors fall through to inspect the cause.
	}

	// Per-request timeouts wrap DeadlineExceeded while the parent context is
	// still valid. Do checks the parent before sleeping.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	for _, errno := range retryableErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsNotFound || dnsErr.IsTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return hasRetryableCode(err.Error())
}

// hasRetryableCode looks for a known code token in an error string. Some SDKs
// only surface the code inside the message.
func hasRetryableCode(msg string) bool {
	for _, tok := range strings.FieldsFunc(msg, func(r rune) bool {
		return !(r == '_' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z')
	}) {
		if retryableCodes[tok] {
			return true
		}
	}
	return false
}

// CalculateDelay returns the sleep before retry number attempt (0 = first retry):
// min(MaxDelay, BaseDelay * ExponentialBase^attempt), optionally jittered by
// up to 25% and clamped to [0, MaxDelay].
func CalculateDelay(attempt int, cfg Config) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := cfg.ExponentialBase
	if base < 1 {
		base = 1
	}

	raw := float64(cfg.BaseDelay) * math.Pow(base, float64(attempt))
	if raw > float64(cfg.MaxDelay) || math.IsInf(raw, 0) {
		raw = float64(cfg.MaxDelay)
	}

	if cfg.Jitter && raw > 0 {
		//nolint:gosec // jitter does not need a CSPRNG
		raw += raw * jitterFraction * (2*rand.Float64() - 1)
		if raw > float64(cfg.MaxDelay) {
			raw = float64(cfg.MaxDelay)
		}
		if raw < 0 {
			raw = 0
		}
	}
	return time.Duration(raw)
}

// Policy encapsulates retry configuration and logic.
//
//nolint:govet // Simple struct, logical grouping preferred
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = IsRetryableError
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// CalculateDelay computes the delay before retry number attempt.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	return CalculateDelay(attempt, p.Config)
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
