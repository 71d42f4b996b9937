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
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalEmbedder is a deterministic, dependency-free embedder for offline
// mode and tests. It folds character bigrams and trigrams into a
// fixed-length bucket vector and L2-normalizes it, so cosine similarity
// over its output behaves sensibly for lexical overlap (including
// multi-byte scripts).
//
// It is NOT a semantic model; it exists so the full pipeline can run with
// zero provider calls.
type LocalEmbedder struct {
	dim int
}

var _ Embedder = (*LocalEmbedder)(nil)

// NewLocalEmbedder creates a local embedder with the given dimension.
// Dimensions below 8 are raised to 8.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim < 8 {
		dim = 8
	}
	return &LocalEmbedder{dim: dim}
}

func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *LocalEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *LocalEmbedder) Dimension() int { return e.dim }

func (e *LocalEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	runes := []rune(normalizeForHash(text))
	if len(runes) == 0 {
		return vec
	}

	addNgram := func(gram string) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(gram))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dim))
		// One hash bit decides the sign so buckets cancel rather than
		// saturate.
		if sum&(1<<63) == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}

	for i := 0; i < len(runes); i++ {
		if i+2 <= len(runes) {
			addNgram(string(runes[i : i+2]))
		}
		if i+3 <= len(runes) {
			addNgram(string(runes[i : i+3]))
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := 1.0 / math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return vec
}

func normalizeForHash(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	prevSpace := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteRune(' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
