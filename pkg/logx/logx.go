// Package logx provides structured logging functionality with context-aware debug logging.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger writes leveled log lines tagged with a component id and optional fields.
type Logger struct {
	agentID string
	fields  []field
}

type field struct {
	key   string
	value any
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // Which domains to enable debug for (nil = all)
}

//nolint:gochecknoglobals // process-wide log sink and debug switches
var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	// logWriter overrides stderr when set (tests).
	logWriter     io.Writer
	logWriterLock sync.Mutex
)

func init() { //nolint:gochecknoinits // Required for env var initialization
	initDebugFromEnv()
}

// initDebugFromEnv initializes debug configuration from environment variables.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	// DEBUG_DOMAINS=regulation-compliance,retry
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

// NewLogger creates a logger for the given component or agent id.
func NewLogger(agentID string) *Logger {
	return &Logger{agentID: agentID}
}

// SetOutput redirects all loggers to w. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	logWriterLock.Lock()
	defer logWriterLock.Unlock()
	logWriter = w
}

// SetDebugConfig configures global debug logging settings.
func SetDebugConfig(enabled bool, domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = enabled
	if len(domains) == 0 {
		debugConfig.Domains = nil
		return
	}
	debugConfig.Domains = make(map[string]bool)
	for _, domain := range domains {
		debugConfig.Domains[strings.TrimSpace(domain)] = true
	}
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

// With returns a child logger that appends key=value to every line.
func (l *Logger) With(key string, value any) *Logger {
	fields := make([]field, len(l.fields), len(l.fields)+1)
	copy(fields, l.fields)
	return &Logger{
		agentID: l.agentID,
		fields:  append(fields, field{key: key, value: value}),
	}
}

// WithFields returns a child logger carrying all entries of kv, sorted by key.
func (l *Logger) WithFields(kv map[string]any) *Logger {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	child := l
	for _, k := range keys {
		child = child.With(k, kv[k])
	}
	return child
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format(timestampFormat)
	message := fmt.Sprintf(format, args...)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] %s: %s", timestamp, l.agentID, level, message)
	for _, f := range l.fields {
		fmt.Fprintf(&sb, " %s=%v", f.key, f.value)
	}
	sb.WriteByte('\n')

	logWriterLock.Lock()
	defer logWriterLock.Unlock()
	w := logWriter
	if w == nil {
		w = os.Stderr
	}
	_, _ = io.WriteString(w, sb.String())
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabledForDomain(l.agentID) {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

func (l *Logger) GetAgentID() string {
	return l.agentID
}

func (l *Logger) WithAgentID(agentID string) *Logger {
	return &Logger{
		agentID: agentID,
		fields:  l.fields,
	}
}

// Debug logs a debug message with context and domain filtering.
//
//	logx.Debug(ctx, "retry", "attempt %d failed: %v", n, err)
//
// Environment variable control:
//
//	DEBUG=1                              # Enable debug for all domains
//	DEBUG=1 DEBUG_DOMAINS=retry,budget   # Enable debug for selected domains
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	logger := FromContext(ctx, domain)
	logger.log(LevelDebug, "[%s] %s", domain, fmt.Sprintf(format, args...))
}

// Global logging functions for convenience.
var defaultLogger = NewLogger("system") //nolint:gochecknoglobals

func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	err := logx.Errorf("setup failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
//
//	if err != nil { return logx.Wrap(err, "open session store") }
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
