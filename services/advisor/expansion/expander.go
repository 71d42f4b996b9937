// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package expansion widens a shopper query into additional Korean search
// terms before retrieval.
//
// The primary path asks the language model for domain synonyms and related
// vocabulary; when the model is unavailable, times out, or returns something
// unparseable, a static synonym table keyed on common mattress keywords
// takes over. Expansion is strictly best-effort: the expander never returns
// an error, and the Source field on the result tells the caller which path
// produced the terms so the turn can record its enhancements accurately.
package expansion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Somnus/services/advisor/llm"
	"github.com/AleutianAI/Somnus/services/advisor/storage/badger"
)

var tracer = otel.Tracer("somnus.advisor.expansion")

// =============================================================================
// Interfaces
// =============================================================================

// QueryExpander defines the interface for widening a query into search terms.
//
// # Description
//
// QueryExpander produces extra Korean search vocabulary for a shopper query
// ("허리 아픈 사람 매트리스" gains 요추, 척추, 체압분산, ...). The retriever
// runs a second embedding strategy over the combined text, so richer terms
// widen recall without touching the raw-query strategy.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type QueryExpander interface {
	// Expand widens query into additional search terms.
	//
	// # Description
	//
	// Produces up to MaxTerms deduplicated terms. Expansion never fails:
	// every degradation (model error, timeout, unparseable output) falls
	// back to the static synonym table and finally to an empty term set,
	// with the chosen path reported in the result's Source field.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and timeout.
	//   - query: The shopper's raw query text.
	//
	// # Outputs
	//
	//   - *ExpandedQuery: Original query, extra terms, and the source path.
	Expand(ctx context.Context, query string) *ExpandedQuery
}

// =============================================================================
// Types
// =============================================================================

// Source identifies which path produced the expansion terms.
type Source string

const (
	// SourceModel means the language model produced the terms.
	SourceModel Source = "gpt-synonyms"

	// SourceStatic means the built-in synonym table produced the terms.
	SourceStatic Source = "static-synonyms"

	// SourceNone means no expansion terms were produced.
	SourceNone Source = "none"
)

// ExpandedQuery contains the result of query expansion.
//
// # Description
//
// Terms never includes the original query; retrieval concatenates
// Original with Terms when building the expanded search text.
//
// # JSON Serialization
//
//	{
//	    "original": "허리 아픈 사람 매트리스",
//	    "terms": ["요추", "척추", "체압분산", "딱딱한 하드 매트리스 허리"],
//	    "source": "gpt-synonyms"
//	}
type ExpandedQuery struct {
	// Original is the shopper's query before expansion.
	Original string `json:"original"`

	// Terms contains the extra search terms, deduplicated, capped at
	// the configured maximum. Empty when Source is "none".
	Terms []string `json:"terms"`

	// Source reports which path produced Terms.
	Source Source `json:"source"`

	// CacheHit is true when Terms came from a previously cached
	// model expansion rather than a fresh call.
	CacheHit bool `json:"cache_hit,omitempty"`
}

// Enhanced reports whether the model (fresh or cached) produced the terms.
func (q *ExpandedQuery) Enhanced() bool {
	return q.Source == SourceModel
}

// Config holds configuration for query expansion.
//
// # Description
//
// Default values are provided by DefaultConfig(). All fields can be
// overridden via SOMNUS_EXPANSION_* environment variables.
type Config struct {
	// Enabled controls whether expansion runs at all. When false,
	// Expand returns the original query with no terms.
	// Default: true (SOMNUS_EXPANSION_ENABLED)
	Enabled bool

	// MaxTokens bounds the model response for one expansion call.
	// Default: 500 (SOMNUS_EXPANSION_MAX_TOKENS)
	MaxTokens int

	// TimeoutMs is the per-call timeout in milliseconds. An expansion
	// that misses the window degrades to the static table.
	// Default: 5000 (SOMNUS_EXPANSION_TIMEOUT_MS)
	TimeoutMs int

	// MaxTerms caps the number of terms in the result.
	// Default: 8 (SOMNUS_EXPANSION_MAX_TERMS)
	MaxTerms int

	// CacheTTL is how long a successful model expansion stays cached.
	// Default: 6h (SOMNUS_EXPANSION_CACHE_TTL_MIN)
	CacheTTL time.Duration
}

// DefaultConfig returns the expansion configuration with env overrides applied.
//
// # Outputs
//
//   - Config: Configuration with default or env-configured values.
func DefaultConfig() Config {
	return Config{
		Enabled:   getEnvBool("SOMNUS_EXPANSION_ENABLED", true),
		MaxTokens: getEnvInt("SOMNUS_EXPANSION_MAX_TOKENS", 500),
		TimeoutMs: getEnvInt("SOMNUS_EXPANSION_TIMEOUT_MS", 5000),
		MaxTerms:  getEnvInt("SOMNUS_EXPANSION_MAX_TERMS", 8),
		CacheTTL:  time.Duration(getEnvInt("SOMNUS_EXPANSION_CACHE_TTL_MIN", 360)) * time.Minute,
	}
}

// =============================================================================
// Implementation
// =============================================================================

// Per-keyword and related-term caps mirror the retrieval budget: a few
// strong synonyms per keyword beat a long tail of weak ones.
const (
	synonymsPerKeyword = 3
	relatedTermsLimit  = 3
)

// LLMQueryExpander implements QueryExpander with a model call plus fallbacks.
//
// # Description
//
// The expander asks the model for domain synonyms using a fixed few-shot
// prompt and assembles the reply into a capped term list. Successful model
// expansions are cached in the local KV store keyed on the normalized
// query, so repeated questions skip the provider entirely.
//
// # Thread Safety
//
// LLMQueryExpander is safe for concurrent use.
type LLMQueryExpander struct {
	generate llm.GenerateFunc
	config   Config
	cache    *badger.DB
	logger   *slog.Logger
}

var _ QueryExpander = (*LLMQueryExpander)(nil)

// NewLLMQueryExpander creates an expander backed by generate.
//
// # Inputs
//
//   - generate: Model generation closure. May be nil; the expander then
//     serves only static-table expansions.
//   - cfg: Expansion configuration, usually DefaultConfig().
//   - cache: Local KV store for successful expansions. May be nil to
//     disable caching.
//   - logger: Structured logger. May be nil.
//
// # Outputs
//
//   - *LLMQueryExpander: The configured expander.
func NewLLMQueryExpander(generate llm.GenerateFunc, cfg Config, cache *badger.DB, logger *slog.Logger) *LLMQueryExpander {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMQueryExpander{
		generate: generate,
		config:   cfg,
		cache:    cache,
		logger:   logger.With(slog.String("component", "query_expander")),
	}
}

// Expand widens query into additional search terms. It never returns an
// error: the model path degrades to the static synonym table and the
// static table degrades to an empty term set.
//
// # Inputs
//
//   - ctx: Context for cancellation; a per-call timeout is applied on top.
//   - query: The shopper's raw query text.
//
// # Outputs
//
//   - *ExpandedQuery: Never nil.
func (e *LLMQueryExpander) Expand(ctx context.Context, query string) *ExpandedQuery {
	ctx, span := tracer.Start(ctx, "ExpandQuery")
	defer span.End()

	result := e.expand(ctx, query)

	span.SetAttributes(
		attribute.String("expansion.source", string(result.Source)),
		attribute.Bool("expansion.cache_hit", result.CacheHit),
		attribute.Int("expansion.term_count", len(result.Terms)),
	)
	e.logger.Debug("query expanded",
		slog.String("source", string(result.Source)),
		slog.Int("terms", len(result.Terms)),
		slog.Bool("cache_hit", result.CacheHit))
	return result
}

func (e *LLMQueryExpander) expand(ctx context.Context, query string) *ExpandedQuery {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" || !e.config.Enabled {
		return &ExpandedQuery{Original: query, Source: SourceNone}
	}

	key := cacheKey(normalizeQuery(trimmed))
	if e.cache != nil {
		if terms, ok := e.lookupCache(key); ok {
			return &ExpandedQuery{Original: query, Terms: terms, Source: SourceModel, CacheHit: true}
		}
	}

	if e.generate == nil {
		return e.staticExpansion(query)
	}

	terms, err := e.expandWithModel(ctx, trimmed)
	if err != nil {
		e.logger.Warn("Query expansion degraded to static synonyms",
			"query", trimmed, "error", err)
		return e.staticExpansion(query)
	}

	if e.cache != nil {
		e.storeCache(key, terms)
	}
	return &ExpandedQuery{Original: query, Terms: terms, Source: SourceModel}
}

// expandWithModel runs one generation call and assembles the term list.
func (e *LLMQueryExpander) expandWithModel(ctx context.Context, query string) ([]string, error) {
	timeout := time.Duration(e.config.TimeoutMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	response, err := e.generate(ctx, synonymPrompt(query), e.config.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("expansion model call failed: %w", err)
	}

	payload, err := parseSynonymResponse(response)
	if err != nil {
		return nil, err
	}

	terms := assembleTerms(query, payload, e.config.MaxTerms)
	if len(terms) == 0 {
		return nil, fmt.Errorf("expansion response contained no usable terms")
	}
	return terms, nil
}

// staticExpansion builds the result from the built-in synonym table.
func (e *LLMQueryExpander) staticExpansion(query string) *ExpandedQuery {
	terms := staticSynonymsFor(query, e.config.MaxTerms)
	if len(terms) == 0 {
		return &ExpandedQuery{Original: query, Source: SourceNone}
	}
	return &ExpandedQuery{Original: query, Terms: terms, Source: SourceStatic}
}

// =============================================================================
// Prompt and Response Parsing
// =============================================================================

// synonymPayload is the JSON shape the prompt asks the model to emit.
type synonymPayload struct {
	MainKeywords  []string            `json:"main_keywords"`
	Synonyms      map[string][]string `json:"gpt_synonyms"`
	RelatedTerms  []string            `json:"related_terms"`
	SearchQueries []string            `json:"search_queries"`
}

// synonymPrompt builds the few-shot expansion prompt for one query.
func synonymPrompt(query string) string {
	return fmt.Sprintf(`매트리스 검색 전문가로서 사용자 쿼리를 분석하고 확장하세요.

Few-shot 예시:
입력: "허리 아픈 사람 매트리스"
출력: {
  "main_keywords": ["허리", "아픈", "매트리스"],
  "gpt_synonyms": {
    "허리": ["요추", "척추", "등", "허리통증", "요통"],
    "아픈": ["통증", "문제", "불편", "질환", "아픔"],
    "매트리스": ["침대", "베드", "수면용품", "잠자리"]
  },
  "related_terms": ["체압분산", "지지력", "딱딱한", "하드", "척추정렬"],
  "search_queries": [
    "허리 아픈 사람 매트리스",
    "요통 척추통증 매트리스",
    "허리디스크 체압분산 지지력",
    "딱딱한 하드 매트리스 허리"
  ]
}

반드시 유효한 JSON 형식으로만 응답하세요. 추가 설명은 하지 마세요.

쿼리 분석: %s`, query)
}

// parseSynonymResponse extracts the synonym payload from model output.
//
// # Description
//
// Tolerates markdown fences and prose around the JSON object by slicing
// from the first '{' to the last '}'. Payloads where every section is
// empty are rejected so the caller can fall back.
func parseSynonymResponse(response string) (*synonymPayload, error) {
	cleaned := response
	if idx := strings.Index(cleaned, "```json"); idx >= 0 {
		cleaned = cleaned[idx+len("```json"):]
		if end := strings.Index(cleaned, "```"); end >= 0 {
			cleaned = cleaned[:end]
		}
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in expansion response")
	}

	var payload synonymPayload
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal expansion response: %w", err)
	}
	if len(payload.Synonyms) == 0 && len(payload.RelatedTerms) == 0 && len(payload.SearchQueries) == 0 {
		return nil, fmt.Errorf("expansion response carried no synonym sections")
	}
	return &payload, nil
}

// assembleTerms flattens the payload into a deduplicated, capped term list.
//
// # Description
//
// Order is deterministic: synonyms follow the model's main_keywords order
// (remaining synonym keys sorted), then related terms, then full search
// queries. Per-keyword synonyms are capped at synonymsPerKeyword and
// related terms at relatedTermsLimit before the global maxTerms cap. The
// original query never appears in the output.
func assembleTerms(query string, payload *synonymPayload, maxTerms int) []string {
	if maxTerms <= 0 {
		return nil
	}

	seen := map[string]struct{}{normalizeQuery(query): {}}
	terms := make([]string, 0, maxTerms)
	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" || len(terms) >= maxTerms {
			return
		}
		norm := normalizeQuery(term)
		if _, dup := seen[norm]; dup {
			return
		}
		seen[norm] = struct{}{}
		terms = append(terms, term)
	}

	for _, keyword := range orderedSynonymKeys(payload) {
		synonyms := payload.Synonyms[keyword]
		for i, synonym := range synonyms {
			if i >= synonymsPerKeyword {
				break
			}
			add(synonym)
		}
	}
	for i, term := range payload.RelatedTerms {
		if i >= relatedTermsLimit {
			break
		}
		add(term)
	}
	for _, searchQuery := range payload.SearchQueries {
		add(searchQuery)
	}
	return terms
}

// orderedSynonymKeys returns synonym-map keys in main_keywords order first,
// then any remaining keys sorted. Map iteration order must not leak into
// the term list.
func orderedSynonymKeys(payload *synonymPayload) []string {
	ordered := make([]string, 0, len(payload.Synonyms))
	taken := make(map[string]bool, len(payload.Synonyms))
	for _, keyword := range payload.MainKeywords {
		if _, ok := payload.Synonyms[keyword]; ok && !taken[keyword] {
			ordered = append(ordered, keyword)
			taken[keyword] = true
		}
	}
	rest := make([]string, 0, len(payload.Synonyms))
	for keyword := range payload.Synonyms {
		if !taken[keyword] {
			rest = append(rest, keyword)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

// =============================================================================
// Expansion Cache
// =============================================================================

// cachedExpansion is the KV value stored for a successful model expansion.
type cachedExpansion struct {
	Terms []string `json:"terms"`
}

// cacheKey derives a fixed-length KV key from the normalized query.
func cacheKey(normalized string) []byte {
	sum := sha256.Sum256([]byte(normalized))
	return []byte("expansion/" + hex.EncodeToString(sum[:]))
}

func (e *LLMQueryExpander) lookupCache(key []byte) ([]string, bool) {
	raw, ok, err := e.cache.Get(key)
	if err != nil {
		e.logger.Warn("Expansion cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var entry cachedExpansion
	if err := json.Unmarshal(raw, &entry); err != nil || len(entry.Terms) == 0 {
		return nil, false
	}
	return entry.Terms, true
}

func (e *LLMQueryExpander) storeCache(key []byte, terms []string) {
	raw, err := json.Marshal(cachedExpansion{Terms: terms})
	if err != nil {
		return
	}
	if err := e.cache.Set(key, raw, e.config.CacheTTL); err != nil {
		e.logger.Warn("Expansion cache write failed", "error", err)
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// normalizeQuery lowercases and trims text for dedup and cache keys.
func normalizeQuery(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// getEnvBool returns an environment variable as bool, or fallback if not set/invalid.
func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Invalid boolean in environment variable, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return b
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
