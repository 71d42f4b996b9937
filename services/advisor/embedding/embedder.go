package embedding

import (
	"context"
	"log/slog"
	"os"
	"strconv"
)

// Embedder turns text into a fixed-length vector. Implementations must be
// deterministic for identical input so cached vectors stay valid.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config controls the embedding backends.
type Config struct {
	// Model is the provider embedding model.
	Model string

	// Dimension is the vector length. The OpenAI backend requests this
	// dimension; the local backend produces exactly this many components.
	Dimension int

	// TimeoutMs bounds one provider call (single or batch).
	TimeoutMs int
}

// DefaultConfig returns defaults with environment overrides:
//
//	SOMNUS_EMBED_MODEL      (default "text-embedding-3-small")
//	SOMNUS_EMBED_DIM        (default 384)
//	SOMNUS_EMBED_TIMEOUT_MS (default 8000)
func DefaultConfig() Config {
	return Config{
		Model:     getEnvString("SOMNUS_EMBED_MODEL", "text-embedding-3-small"),
		Dimension: getEnvInt("SOMNUS_EMBED_DIM", 384),
		TimeoutMs: getEnvInt("SOMNUS_EMBED_TIMEOUT_MS", 8000),
	}
}

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
