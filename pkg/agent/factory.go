package agent

import (
	"fmt"
	"sync"

	"floorplanner/pkg/agent/internal/llmimpl/anthropic"
	"floorplanner/pkg/agent/internal/llmimpl/google"
	"floorplanner/pkg/agent/internal/llmimpl/ollama"
	"floorplanner/pkg/agent/internal/llmimpl/openaiofficial"
	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/agent/middleware/metrics"
	"floorplanner/pkg/agent/middleware/resilience/circuit"
	"floorplanner/pkg/agent/middleware/resilience/retry"
	"floorplanner/pkg/agent/middleware/resilience/timeout"
	"floorplanner/pkg/agent/middleware/validation"
	"floorplanner/pkg/config"
)

// LLMClientFactory creates LLM clients with properly configured middleware chains.
// Circuit breakers are shared per provider across all clients the factory hands out.
type LLMClientFactory struct {
	config          config.Config
	recorder        metrics.Recorder
	mu              sync.Mutex
	circuitBreakers map[string]*circuit.Breaker
}

// NewLLMClientFactory creates a factory. A nil recorder disables request metrics.
func NewLLMClientFactory(cfg config.Config, recorder metrics.Recorder) *LLMClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &LLMClientFactory{
		config:          cfg,
		recorder:        recorder,
		circuitBreakers: make(map[string]*circuit.Breaker),
	}
}

// NewClient is shorthand for NewLLMClientFactory(cfg, recorder).CreateClient(cfg.Model).
func NewClient(cfg config.Config, recorder metrics.Recorder) (llm.LLMClient, error) {
	return NewLLMClientFactory(cfg, recorder).CreateClient(cfg.Model)
}

// CreateClient builds the provider adapter for model and wraps it. An empty
// model uses the configured default.
func (f *LLMClientFactory) CreateClient(model string) (llm.LLMClient, error) {
	if model == "" {
		model = f.config.Model
	}

	provider := f.config.Provider
	if provider == "" {
		p, err := config.GetModelProvider(model)
		if err != nil {
			return nil, fmt.Errorf("failed to determine provider for model %s: %w", model, err)
		}
		provider = p
	}

	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	var raw llm.LLMClient
	switch provider {
	case config.ProviderAnthropic:
		raw = anthropic.NewClaudeClient(apiKey, model)
	case config.ProviderGoogle:
		raw = google.NewGeminiClientWithModel(apiKey, model)
	case config.ProviderOpenAI:
		raw = openaiofficial.NewOfficialClientWithModel(apiKey, model)
	case config.ProviderOllama:
		raw = ollama.NewOllamaClientWithModel(config.OllamaHost(&f.config), config.OllamaModelName(model))
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	return f.Wrap(raw, provider), nil
}

// Wrap applies the standard middleware chain to raw:
//
//	Metrics -> CircuitBreaker -> Retry -> EmptyResponse -> Timeout -> raw
//
// Retry sits outside the empty-response guard so an exhausted guard still
// counts as one retryable attempt, and the timeout bounds each single attempt.
func (f *LLMClientFactory) Wrap(raw llm.LLMClient, provider string) llm.LLMClient {
	retryPolicy := retry.NewPolicy(retry.Config{
		MaxRetries:      f.config.Retry.MaxRetries,
		BaseDelay:       f.config.Retry.BaseDelay(),
		MaxDelay:        f.config.Retry.MaxDelay(),
		ExponentialBase: f.config.Retry.ExponentialBase,
		Jitter:          f.config.Retry.Jitter,
	}, nil)

	middlewares := []llm.Middleware{
		metrics.Middleware(f.recorder, nil, config.CalculateCost),
	}
	if breaker := f.breakerFor(provider); breaker != nil {
		middlewares = append(middlewares, circuit.Middleware(breaker))
	}
	middlewares = append(middlewares,
		retry.Middleware(retryPolicy),
		validation.EmptyResponseMiddleware(),
		timeout.Middleware(f.config.Resilience.RequestTimeout()),
	)

	return llm.Chain(raw, middlewares...)
}

func (f *LLMClientFactory) breakerFor(provider string) *circuit.Breaker {
	cbCfg := circuit.Config{
		FailureThreshold: f.config.Resilience.CircuitBreaker.FailureThreshold,
		SuccessThreshold: f.config.Resilience.CircuitBreaker.SuccessThreshold,
		Timeout:          f.config.Resilience.CircuitBreaker.Timeout(),
	}
	if cbCfg.Disabled() {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.circuitBreakers[provider]; ok {
		return b
	}
	b := circuit.New(provider, cbCfg)
	f.circuitBreakers[provider] = b
	return b
}
