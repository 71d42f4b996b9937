// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval runs the hybrid candidate search for one reasoning
// round.
//
// Three strategies run concurrently over the product store: nearest
// neighbors on the raw query embedding, nearest neighbors on the expanded
// query embedding (only when expansion produced terms), and the lexical
// keyword match. Their hits are merged per product by maximum normalized
// score, tagged with the winning strategy, and ordered deterministically.
// One failing strategy only narrows the merge; the retriever errors only
// when every attempted strategy failed.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/Somnus/services/advisor/catalog"
	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
	"github.com/AleutianAI/Somnus/services/advisor/embedding"
)

var tracer = otel.Tracer("somnus.advisor.retrieval")

// ErrAllStrategiesFailed reports that no retrieval strategy produced hits
// because every attempted one errored. Single-strategy failures degrade
// silently apart from a warning log.
var ErrAllStrategiesFailed = errors.New("all retrieval strategies failed")

// =============================================================================
// Types
// =============================================================================

// RankedCandidate is one merged retrieval result.
//
// # Description
//
// Score is the maximum normalized score any strategy gave the product, and
// Strategy names the strategy that produced that maximum. RankInStrategy
// is the product's 1-based position within the winning strategy's own hit
// list. Candidates are ephemeral within one reasoning round.
type RankedCandidate struct {
	ProductID      string                   `json:"product_id"`
	Product        *catalog.ProductRecord   `json:"product"`
	Score          float64                  `json:"score"`
	Strategy       datatypes.SourceStrategy `json:"strategy"`
	RankInStrategy int                      `json:"rank_in_strategy"`
}

// Config holds retrieval configuration.
type Config struct {
	// TopK is the default candidate budget per round, applied both per
	// strategy and to the merged result.
	// Default: 8 (SOMNUS_RETRIEVAL_TOP_K)
	TopK int
}

// DefaultConfig returns the retrieval configuration with env overrides.
func DefaultConfig() Config {
	return Config{
		TopK: getEnvInt("SOMNUS_RETRIEVAL_TOP_K", 8),
	}
}

// =============================================================================
// Implementation
// =============================================================================

// Strategy slots. Merge iterates in this order, so on score ties the raw
// strategy wins over expanded, and expanded over keyword.
const (
	idxRaw = iota
	idxExpanded
	idxKeyword
	strategyCount
)

type strategyRun struct {
	strategy  datatypes.SourceStrategy
	attempted bool
	hits      []catalog.SearchHit
	err       error
}

// HybridRetriever implements the multi-strategy search with max-merge.
//
// # Thread Safety
//
// HybridRetriever is safe for concurrent use; all state is read-only after
// construction.
type HybridRetriever struct {
	store    catalog.Store
	embedder embedding.Embedder
	config   Config
	logger   *slog.Logger
}

// NewHybridRetriever creates a retriever over store using embedder for the
// vector strategies.
func NewHybridRetriever(store catalog.Store, embedder embedding.Embedder, cfg Config, logger *slog.Logger) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	return &HybridRetriever{
		store:    store,
		embedder: embedder,
		config:   cfg,
		logger:   logger.With(slog.String("component", "hybrid_retriever")),
	}
}

// Retrieve runs the strategies for one round and returns merged candidates.
//
// # Description
//
// Returns at most topK candidates, deduplicated by product id, ordered by
// (score desc, rating desc, price asc, id asc). The expanded strategy only
// runs when the query carries expansion terms. A candidate whose id no
// longer resolves in the store is dropped with a warning.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - query: The round's query with expansion terms already attached.
//   - topK: Candidate budget; values <= 0 fall back to Config.TopK.
//
// # Outputs
//
//   - []RankedCandidate: Merged, ordered candidates. May be empty.
//   - error: ErrAllStrategiesFailed (wrapped) when nothing could run.
func (r *HybridRetriever) Retrieve(ctx context.Context, query datatypes.Query, topK int) ([]RankedCandidate, error) {
	ctx, span := tracer.Start(ctx, "RetrieveCandidates")
	defer span.End()

	if topK <= 0 {
		topK = r.config.TopK
	}

	runs := r.runStrategies(ctx, query, topK)

	attempted, failed := 0, 0
	var lastErr error
	for i := range runs {
		if !runs[i].attempted {
			continue
		}
		attempted++
		if runs[i].err != nil {
			failed++
			lastErr = runs[i].err
			r.logger.Warn("Retrieval strategy failed, continuing with the others",
				"strategy", string(runs[i].strategy), "error", runs[i].err)
		}
	}
	if failed == attempted {
		return nil, fmt.Errorf("%w: %v", ErrAllStrategiesFailed, lastErr)
	}

	candidates := r.resolve(ctx, mergeRuns(runs))
	sortCandidates(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	span.SetAttributes(
		attribute.Int("retrieval.strategies_failed", failed),
		attribute.Int("retrieval.candidates", len(candidates)),
		attribute.Bool("retrieval.expanded_ran", runs[idxExpanded].attempted),
	)
	r.logger.Info("Hybrid retrieval merged",
		"raw", len(runs[idxRaw].hits),
		"expanded", len(runs[idxExpanded].hits),
		"keyword", len(runs[idxKeyword].hits),
		"merged", len(candidates))
	return candidates, nil
}

// runStrategies executes the strategies concurrently, capturing hits and
// errors per slot. Closures return nil so one failure never cancels the
// siblings.
func (r *HybridRetriever) runStrategies(ctx context.Context, query datatypes.Query, topK int) []strategyRun {
	runs := make([]strategyRun, strategyCount)
	runs[idxRaw] = strategyRun{strategy: datatypes.StrategyRaw, attempted: true}
	runs[idxExpanded] = strategyRun{strategy: datatypes.StrategyExpanded, attempted: len(query.ExpandedTerms) > 0}
	runs[idxKeyword] = strategyRun{strategy: datatypes.StrategyKeyword, attempted: true}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runs[idxRaw].hits, runs[idxRaw].err = r.searchEmbedding(gctx, query.Raw, topK)
		return nil
	})
	if runs[idxExpanded].attempted {
		g.Go(func() error {
			runs[idxExpanded].hits, runs[idxExpanded].err = r.searchEmbedding(gctx, query.SearchText(), topK)
			return nil
		})
	}
	g.Go(func() error {
		terms := catalog.TokenizeQuery(query.SearchText())
		runs[idxKeyword].hits, runs[idxKeyword].err = r.store.SearchKeyword(gctx, terms, topK)
		return nil
	})
	_ = g.Wait()
	return runs
}

// searchEmbedding embeds text and runs nearest-neighbor search over it.
func (r *HybridRetriever) searchEmbedding(ctx context.Context, text string, topK int) ([]catalog.SearchHit, error) {
	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.store.Search(ctx, vector, topK)
}

// mergeRuns folds strategy hits into per-product maxima. Iteration order
// over the fixed slots keeps ties deterministic.
func mergeRuns(runs []strategyRun) []RankedCandidate {
	merged := make(map[string]*RankedCandidate)
	var ids []string
	for i := range runs {
		run := &runs[i]
		if !run.attempted || run.err != nil {
			continue
		}
		for rank, hit := range run.hits {
			existing, ok := merged[hit.ID]
			if !ok {
				merged[hit.ID] = &RankedCandidate{
					ProductID:      hit.ID,
					Score:          hit.Score,
					Strategy:       run.strategy,
					RankInStrategy: rank + 1,
				}
				ids = append(ids, hit.ID)
				continue
			}
			if hit.Score > existing.Score {
				existing.Score = hit.Score
				existing.Strategy = run.strategy
				existing.RankInStrategy = rank + 1
			}
		}
	}

	out := make([]RankedCandidate, 0, len(merged))
	for _, id := range ids {
		out = append(out, *merged[id])
	}
	return out
}

// resolve attaches live product records, dropping candidates whose id no
// longer resolves (a reload can retire ids between search and resolve).
func (r *HybridRetriever) resolve(ctx context.Context, candidates []RankedCandidate) []RankedCandidate {
	out := candidates[:0]
	for _, cand := range candidates {
		record, err := r.store.Get(ctx, cand.ProductID)
		if err != nil {
			r.logger.Warn("Dropping unresolvable candidate",
				"product_id", cand.ProductID, "error", err)
			continue
		}
		cand.Product = record
		out = append(out, cand)
	}
	return out
}

// sortCandidates orders by score desc, rating desc, price asc, id asc.
func sortCandidates(candidates []RankedCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Product != nil && b.Product != nil {
			if a.Product.Rating != b.Product.Rating {
				return a.Product.Rating > b.Product.Rating
			}
			if a.Product.Price != b.Product.Price {
				return a.Product.Price < b.Product.Price
			}
		}
		return a.ProductID < b.ProductID
	})
}

// getEnvInt returns an environment variable as int, or fallback if not set/invalid.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid integer in environment variable, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}
