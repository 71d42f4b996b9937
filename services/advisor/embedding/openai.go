// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/Somnus/services/advisor/llm"
)

// OpenAIEmbedder computes embeddings via the provider embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	config Config
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder builds an embedder sharing the vaulted API key.
func NewOpenAIEmbedder(vault *llm.KeyVault, cfg Config) (*OpenAIEmbedder, error) {
	if vault == nil {
		return nil, fmt.Errorf("key vault is required")
	}
	if cfg.Model == "" {
		cfg = DefaultConfig()
	}
	var client *openai.Client
	err := vault.Use(func(key string) error {
		client = openai.NewClient(key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("building embeddings client: %w", err)
	}
	return &OpenAIEmbedder{client: client, config: cfg}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.config.TimeoutMs)*time.Millisecond)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.config.Model),
		Dimensions: e.config.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings API call failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embeddings API returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.config.Dimension }
