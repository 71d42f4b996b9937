// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
)

// MemoryStore serves the catalog from an in-process immutable snapshot.
//
// # Description
//
// The local-first backend. Reads never lock: the live snapshot hangs off an
// atomic pointer and Replace swaps in a completely built new one, so a
// reload can never expose a half-updated catalog to an in-flight search.
//
// Scores are cosine similarity mapped to [0,1] via (cos+1)/2, which is the
// same "certainty" scale the Weaviate backend reports, so the two backends
// are interchangeable under the retriever.
//
// # Thread Safety
//
// Safe for concurrent use. Replace may run concurrently with reads.
type MemoryStore struct {
	snap   atomic.Pointer[snapshot]
	logger *slog.Logger
}

type snapshot struct {
	records []*ProductRecord
	byID    map[string]*ProductRecord
	dim     int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds a store over records. Records must carry embeddings
// of one consistent dimension and unique ids.
func NewMemoryStore(records []*ProductRecord, logger *slog.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MemoryStore{logger: logger}
	if err := s.Replace(records); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace atomically swaps the live snapshot for one built from records.
// On validation failure the previous snapshot stays live.
func (s *MemoryStore) Replace(records []*ProductRecord) error {
	snap, err := buildSnapshot(records)
	if err != nil {
		return &StoreError{Op: "reload", Message: "snapshot validation failed", Err: err}
	}
	s.snap.Store(snap)
	s.logger.Info("catalog snapshot swapped", "records", len(records), "dim", snap.dim)
	return nil
}

func buildSnapshot(records []*ProductRecord) (*snapshot, error) {
	snap := &snapshot{
		records: records,
		byID:    make(map[string]*ProductRecord, len(records)),
	}
	for _, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("record %q has empty id", r.Name)
		}
		if _, dup := snap.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate record id %q", r.ID)
		}
		if len(r.Embedding) == 0 {
			return nil, fmt.Errorf("record %q has no embedding", r.ID)
		}
		if snap.dim == 0 {
			snap.dim = len(r.Embedding)
		} else if len(r.Embedding) != snap.dim {
			return nil, fmt.Errorf("record %q embedding dimension %d != %d", r.ID, len(r.Embedding), snap.dim)
		}
		snap.byID[r.ID] = r
	}
	return snap, nil
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, topK int) ([]SearchHit, error) {
	return s.SearchFiltered(ctx, vector, topK, Filter{})
}

func (s *MemoryStore) SearchFiltered(_ context.Context, vector []float32, topK int, filter Filter) ([]SearchHit, error) {
	snap := s.snap.Load()
	if len(snap.records) == 0 {
		return nil, nil
	}
	if len(vector) != snap.dim {
		return nil, &StoreError{
			Op:      "search",
			Message: fmt.Sprintf("query vector dimension %d != index dimension %d", len(vector), snap.dim),
		}
	}

	hits := make([]SearchHit, 0, len(snap.records))
	for _, r := range snap.records {
		if !filter.IsZero() && !filter.Matches(r) {
			continue
		}
		cos := cosineSimilarity(vector, r.Embedding)
		hits = append(hits, SearchHit{ID: r.ID, Score: (cos + 1) / 2})
	}
	sortHits(hits)
	return capHits(hits, topK), nil
}

func (s *MemoryStore) SearchKeyword(_ context.Context, terms []string, topK int) ([]SearchHit, error) {
	snap := s.snap.Load()
	if len(snap.records) == 0 || len(terms) == 0 {
		return nil, nil
	}
	hits := make([]SearchHit, 0, len(snap.records))
	for _, r := range snap.records {
		score := scoreLexical(lexicalDoc(r), terms)
		if score <= 0 {
			continue
		}
		hits = append(hits, SearchHit{ID: r.ID, Score: score})
	}
	sortHits(hits)
	return capHits(hits, topK), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*ProductRecord, error) {
	snap := s.snap.Load()
	r, ok := snap.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	return len(s.snap.Load().records), nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	return ComputeStats(s.snap.Load().records), nil
}

// sortHits orders by score descending with id ascending as the
// deterministic tiebreak.
func sortHits(hits []SearchHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

func capHits(hits []SearchHit, topK int) []SearchHit {
	if topK > 0 && len(hits) > topK {
		return hits[:topK]
	}
	return hits
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
