package llm

import (
	"log/slog"
	"os"
	"strconv"
)

// ClientConfig controls the OpenAI-backed client.
type ClientConfig struct {
	// Model is the chat model used for all three call shapes.
	Model string

	// SystemPrompt is prepended to every generation as the system role.
	SystemPrompt string

	// TimeoutMs bounds a single Generate call.
	TimeoutMs int

	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64

	// MaxOutputTokens is the hard ceiling applied when the caller passes no
	// MaxTokens. Cost control; never unlimited.
	MaxOutputTokens int
}

// DefaultClientConfig returns production defaults with environment
// overrides:
//
//	SOMNUS_LLM_MODEL           (default "gpt-4o-mini")
//	SOMNUS_LLM_SYSTEM_PROMPT   (default Korean sleep-expert persona)
//	SOMNUS_LLM_TIMEOUT_MS      (default 10000)
//	SOMNUS_LLM_RPS             (default 4)
//	SOMNUS_LLM_MAX_TOKENS      (default 600)
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Model:             getEnvString("SOMNUS_LLM_MODEL", "gpt-4o-mini"),
		SystemPrompt:      getEnvString("SOMNUS_LLM_SYSTEM_PROMPT", defaultSystemPrompt),
		TimeoutMs:         getEnvInt("SOMNUS_LLM_TIMEOUT_MS", 10000),
		RequestsPerSecond: getEnvFloat("SOMNUS_LLM_RPS", 4),
		MaxOutputTokens:   getEnvInt("SOMNUS_LLM_MAX_TOKENS", 600),
	}
}

const defaultSystemPrompt = "당신은 10년 경력의 수면 전문가입니다. " +
	"매트리스, 베개 등 수면 제품에 대해 정확하고 친절하게 답하며, " +
	"제공된 제품 정보에 근거해서만 추천합니다."

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid float in environment, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}
