package config

import (
	"fmt"
	"os"
	"strings"
)

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels registry contains pricing and provider information for common models.
// Unknown models are inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	"claude-sonnet-4-5": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-sonnet-4-20250514": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-opus-4-1": {
		Provider:         ProviderAnthropic,
		InputCPM:         15.0,
		OutputCPM:        75.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  16384,
	},
	"claude-3-5-haiku-latest": {
		Provider:         ProviderAnthropic,
		InputCPM:         0.8,
		OutputCPM:        4.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
	"o4-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"gemini-2.0-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.10,
		OutputCPM:        0.40,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  8192,
	},
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	"gemini-2.5-pro": {
		Provider:         ProviderGoogle,
		InputCPM:         1.25,
		OutputCPM:        10.0,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"phi", ProviderOllama},
	{"gemma", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama}, // Explicit prefix like "ollama:qwen2.5"
}

// GetModelProvider returns the API provider for a given model.
// First checks KnownModels, then tries pattern matching.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a given model name and whether it
// was found in KnownModels. Unknown models get conservative defaults.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}
	provider, _ := GetModelProvider(modelName)
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// CalculateCost calculates the cost in USD for a given model and token usage.
// Unknown models cost 0.
func CalculateCost(modelName string, promptTokens, completionTokens int) float64 {
	info, exists := KnownModels[modelName]
	if !exists {
		return 0
	}
	inputCost := (float64(promptTokens) / 1_000_000.0) * info.InputCPM
	outputCost := (float64(completionTokens) / 1_000_000.0) * info.OutputCPM
	return inputCost + outputCost
}

// OllamaModelName strips the optional "ollama:" prefix.
func OllamaModelName(modelName string) string {
	return strings.TrimPrefix(modelName, "ollama:")
}

// GetAPIKey returns the API key for a given provider.
// Checks the secrets file first, then falls back to environment variables.
// Ollama needs no key and returns "".
func GetAPIKey(provider string) (string, error) {
	var names []string
	switch provider {
	case ProviderAnthropic:
		names = []string{EnvAnthropicAPIKey}
	case ProviderOpenAI:
		names = []string{EnvOpenAIAPIKey}
	case ProviderGoogle:
		names = []string{EnvGoogleAPIKey, EnvGeminiAPIKey}
	case ProviderOllama:
		return "", nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	for _, name := range names {
		if key, err := GetSecret(name); err == nil && key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", strings.Join(names, " or "))
}

// OllamaHost returns the configured Ollama endpoint, honouring OLLAMA_HOST.
func OllamaHost(cfg *Config) string {
	if v := os.Getenv(EnvOllamaHost); v != "" {
		return v
	}
	if cfg != nil && cfg.OllamaHost != "" {
		return cfg.OllamaHost
	}
	return "http://localhost:11434"
}
