// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIClient implements LLMClient against any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client  *openai.Client
	config  ClientConfig
	limiter *rate.Limiter
}

var _ LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from the vaulted key and the given config.
// SOMNUS_OPENAI_BASE_URL redirects calls to a compatible local endpoint
// (vLLM, Ollama's OpenAI facade) when set.
func NewOpenAIClient(vault *KeyVault, cfg ClientConfig) (*OpenAIClient, error) {
	if vault == nil {
		return nil, fmt.Errorf("key vault is required")
	}
	if cfg.Model == "" {
		cfg = DefaultClientConfig()
	}

	var client *openai.Client
	err := vault.Use(func(key string) error {
		clientCfg := openai.DefaultConfig(key)
		if base := getEnvString("SOMNUS_OPENAI_BASE_URL", ""); base != "" {
			clientCfg.BaseURL = base
			slog.Info("using OpenAI-compatible endpoint", "base_url", base)
		}
		client = openai.NewClientWithConfig(clientCfg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("building OpenAI client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &OpenAIClient{client: client, config: cfg, limiter: limiter}, nil
}

// Generate issues one bounded chat completion. The per-call timeout from the
// config applies unless the caller's context expires first.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter interrupted: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.config.TimeoutMs)*time.Millisecond)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.config.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	if params.MaxTokens != nil && *params.MaxTokens > 0 {
		req.MaxTokens = *params.MaxTokens
	} else {
		req.MaxTokens = c.config.MaxOutputTokens
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Model reports the configured chat model.
func (c *OpenAIClient) Model() string { return c.config.Model }
