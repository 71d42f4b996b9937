// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/AleutianAI/Somnus/services/advisor/storage/badger"
)

// CachedEmbedder wraps another Embedder with a persistent vector cache so
// repeated catalog texts and recurring queries skip provider calls.
//
// Cache keys include the model name and dimension: switching models never
// serves stale vectors. Cache failures degrade to the inner embedder and
// are logged, never surfaced.
type CachedEmbedder struct {
	inner  Embedder
	store  *badger.DB
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with the given cache store. A zero ttl
// keeps entries until the store evicts them.
func NewCachedEmbedder(inner Embedder, store *badger.DB, model string, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{
		inner:  inner,
		store:  store,
		ttl:    ttl,
		prefix: fmt.Sprintf("emb:%s:%d:", model, inner.Dimension()),
		logger: logger,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.lookup(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(key, vec)
	return vec, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, t := range texts {
		if vec, ok := c.lookup(c.key(t)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vectors {
		out[missingIdx[j]] = vec
		c.put(c.key(missing[j]), vec)
	}
	return out, nil
}

func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEmbedder) key(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte(c.prefix + hex.EncodeToString(sum[:]))
}

func (c *CachedEmbedder) lookup(key []byte) ([]float32, bool) {
	raw, ok, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("embedding cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	vec, err := decodeVector(raw)
	if err != nil {
		c.logger.Warn("embedding cache entry corrupt, ignoring", "error", err)
		return nil, false
	}
	if len(vec) != c.inner.Dimension() {
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) put(key []byte, vec []float32) {
	if err := c.store.Set(key, encodeVector(vec), c.ttl); err != nil {
		c.logger.Warn("embedding cache write failed", "error", err)
	}
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("vector payload length %d not a multiple of 4", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}
