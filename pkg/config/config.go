// Package config provides configuration loading, validation, and the model
// catalogue for the floor-plan pipeline. YAML and JSON files are accepted.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"floorplanner/pkg/logx"
)

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variables consulted for credentials and overrides.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
	EnvProvider        = "FLOORPLAN_PROVIDER"
	EnvModel           = "FLOORPLAN_MODEL"
	EnvPassword        = "FLOORPLAN_PASSWORD"
)

// Failure policies for a stage.
const (
	OnFailureHalt       = "halt"
	OnFailureUseDefault = "use_default"
)

// DataDir is where the session database and secrets file live by default.
const DataDir = ".floorplan"

// DefaultModel is used when neither the file nor the environment names one.
const DefaultModel = "claude-sonnet-4-5"

// RetryConfig mirrors the retry middleware settings in file form.
type RetryConfig struct {
	MaxRetries      int     `json:"max_retries" yaml:"max_retries"`
	BaseDelayMS     int     `json:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMS      int     `json:"max_delay_ms" yaml:"max_delay_ms"`
	ExponentialBase float64 `json:"exponential_base" yaml:"exponential_base"`
	Jitter          bool    `json:"jitter" yaml:"jitter"`
}

// BaseDelay returns BaseDelayMS as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns MaxDelayMS as a duration.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// CircuitBreakerConfig defines configuration for circuit breaker behavior.
type CircuitBreakerConfig struct {
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"` // 0 disables the breaker
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold"`
	TimeoutMS        int `json:"timeout_ms" yaml:"timeout_ms"`
}

// Timeout returns TimeoutMS as a duration.
func (c CircuitBreakerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ResilienceConfig holds per-request timeout and circuit breaker settings.
type ResilienceConfig struct {
	RequestTimeoutMS int                  `json:"request_timeout_ms" yaml:"request_timeout_ms"`
	CircuitBreaker   CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (r ResilienceConfig) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutMS) * time.Millisecond
}

// BudgetConfig bounds token spend per session.
type BudgetConfig struct {
	Limit               int     `json:"limit" yaml:"limit"`
	WarningRatio        float64 `json:"warning_ratio" yaml:"warning_ratio"`
	SummarizeRatio      float64 `json:"summarize_ratio" yaml:"summarize_ratio"`
	ReserveOutputTokens int     `json:"reserve_output_tokens" yaml:"reserve_output_tokens"`
}

// DatabaseConfig locates the session store. An empty path disables persistence.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// MetricsConfig toggles Prometheus collection.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// AgentConfig overrides settings for one pipeline stage.
type AgentConfig struct {
	OnFailure string `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Config is the full pipeline configuration.
type Config struct {
	Provider    string                 `json:"provider" yaml:"provider"`
	Model       string                 `json:"model" yaml:"model"`
	MaxTokens   int                    `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64                `json:"temperature" yaml:"temperature"`
	OllamaHost  string                 `json:"ollama_host" yaml:"ollama_host"`
	HaltEarly   bool                   `json:"halt_early" yaml:"halt_early"`
	Retry       RetryConfig            `json:"retry" yaml:"retry"`
	Resilience  ResilienceConfig       `json:"resilience" yaml:"resilience"`
	Budget      BudgetConfig           `json:"budget" yaml:"budget"`
	Database    DatabaseConfig         `json:"database" yaml:"database"`
	Metrics     MetricsConfig          `json:"metrics" yaml:"metrics"`
	Agents      map[string]AgentConfig `json:"agents,omitempty" yaml:"agents,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:       DefaultModel,
		MaxTokens:   4096,
		Temperature: 0.2,
		OllamaHost:  "http://localhost:11434",
		HaltEarly:   true,
		Retry: RetryConfig{
			MaxRetries:      3,
			BaseDelayMS:     1000,
			MaxDelayMS:      30000,
			ExponentialBase: 2,
			Jitter:          true,
		},
		Resilience: ResilienceConfig{
			RequestTimeoutMS: 120000,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 1,
				TimeoutMS:        30000,
			},
		},
		Budget: BudgetConfig{
			Limit:               200000,
			WarningRatio:        0.75,
			SummarizeRatio:      0.9,
			ReserveOutputTokens: 2000,
		},
		Database: DatabaseConfig{Path: filepath.Join(DataDir, "sessions.db")},
		Metrics:  MetricsConfig{Enabled: true},
	}
}

// Load reads a YAML or JSON file over the defaults, applies environment
// overrides, and validates. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return Config{}, err
		}
		logx.NewLogger("config").Debug("loaded %s", path)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (use .yaml, .yml or .json)", filepath.Ext(path))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvProvider); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(EnvOllamaHost); v != "" {
		cfg.OllamaHost = v
	}
}

// applyDefaults fills values a file may have zeroed out explicitly.
func applyDefaults(cfg *Config) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Provider == "" {
		if provider, err := GetModelProvider(cfg.Model); err == nil {
			cfg.Provider = provider
		}
	}
	if cfg.MaxTokens == 0 {
		info, _ := GetModelInfo(cfg.Model)
		cfg.MaxTokens = min(4096, info.MaxOutputTokens)
	}
	if cfg.Retry.ExponentialBase == 0 {
		cfg.Retry.ExponentialBase = 2
	}
	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
	case "":
		return fmt.Errorf("cannot determine provider for model %q; set provider explicitly", c.Model)
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if c.Retry.BaseDelayMS < 0 || c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return fmt.Errorf("retry delays must satisfy 0 <= base_delay_ms <= max_delay_ms")
	}
	if c.Retry.ExponentialBase < 1 {
		return fmt.Errorf("retry.exponential_base must be at least 1")
	}
	if c.Budget.Limit < 0 {
		return fmt.Errorf("budget.limit must not be negative")
	}
	for name, ratio := range map[string]float64{
		"budget.warning_ratio":   c.Budget.WarningRatio,
		"budget.summarize_ratio": c.Budget.SummarizeRatio,
	} {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	for name, agent := range c.Agents {
		switch agent.OnFailure {
		case "", OnFailureHalt, OnFailureUseDefault:
		default:
			return fmt.Errorf("agents.%s.on_failure: unknown policy %q", name, agent.OnFailure)
		}
		if agent.MaxTokens < 0 {
			return fmt.Errorf("agents.%s.max_tokens must not be negative", name)
		}
	}
	return nil
}

// AgentMaxTokens returns the output cap for a stage.
func (c *Config) AgentMaxTokens(agent string) int {
	if a, ok := c.Agents[agent]; ok && a.MaxTokens > 0 {
		return a.MaxTokens
	}
	return c.MaxTokens
}

// AgentOnFailure returns the configured failure policy for a stage, or "".
func (c *Config) AgentOnFailure(agent string) string {
	return c.Agents[agent].OnFailure
}
