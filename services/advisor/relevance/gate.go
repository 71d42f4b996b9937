// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relevance decides whether a query belongs to the sleep-product
// domain before any retrieval work is spent on it.
//
// The check is staged by cost: an allow-list pass, a block-list pass with
// category redirects, and only then one short model call for the ambiguous
// remainder. When the model cannot be consulted the gate fails open and
// lets the query through.
package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Somnus/services/advisor/llm"
)

var tracer = otel.Tracer("somnus.advisor.relevance")

// Verdict is the binary domain decision.
type Verdict string

const (
	VerdictInDomain    Verdict = "IN_DOMAIN"
	VerdictOutOfDomain Verdict = "OUT_OF_DOMAIN"
)

// Method records which stage produced the verdict.
type Method string

const (
	MethodLengthCheck Method = "length-check"
	MethodAllowList   Method = "allow-list"
	MethodBlockList   Method = "block-list"
	MethodLLMCheck    Method = "llm-check"
	MethodFailOpen    Method = "fail-open"
)

// Decision is the gate's full answer for one query.
//
// # Description
//
// Verdict and Method always carry values. Category and Redirect are set
// only for OUT_OF_DOMAIN decisions; Redirect is the Korean guidance the
// caller shows instead of a recommendation. Reason is log copy, not user
// copy.
type Decision struct {
	Verdict  Verdict
	Method   Method
	Category Category
	Reason   string
	Redirect string
}

// InDomain reports whether the query should proceed to retrieval.
func (d Decision) InDomain() bool {
	return d.Verdict == VerdictInDomain
}

// Config tunes the gate.
type Config struct {
	// MinQueryRunes rejects queries shorter than this many runes.
	MinQueryRunes int
	// TimeoutMs bounds the model call.
	TimeoutMs int
	// MaxTokens caps the model reply; the verdict JSON is tiny.
	MaxTokens int
	// CacheTTL and CachePurgeInterval control the decision cache. Repeat
	// queries are common in chat sessions and decisions do not go stale.
	CacheTTL           time.Duration
	CachePurgeInterval time.Duration
}

// DefaultConfig returns the defaults, with environment overrides.
func DefaultConfig() Config {
	return Config{
		MinQueryRunes:      getEnvInt("SOMNUS_RELEVANCE_MIN_QUERY_RUNES", 3),
		TimeoutMs:          getEnvInt("SOMNUS_RELEVANCE_TIMEOUT_MS", 4000),
		MaxTokens:          getEnvInt("SOMNUS_RELEVANCE_MAX_TOKENS", 80),
		CacheTTL:           time.Duration(getEnvInt("SOMNUS_RELEVANCE_CACHE_TTL_MIN", 60)) * time.Minute,
		CachePurgeInterval: 10 * time.Minute,
	}
}

// Gate is the staged domain checker.
//
// # Thread Safety
//
// Safe for concurrent use; the decision cache is.
type Gate struct {
	generate llm.GenerateFunc
	config   Config
	cache    *gocache.Cache
	logger   *slog.Logger
}

// NewGate builds a gate. A nil generate function disables the model stage;
// ambiguous queries then fail open as IN_DOMAIN.
func NewGate(generate llm.GenerateFunc, cfg Config, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		generate: generate,
		config:   cfg,
		cache:    gocache.New(cfg.CacheTTL, cfg.CachePurgeInterval),
		logger:   logger.With(slog.String("component", "relevance_gate")),
	}
}

// Check classifies one query. It never returns an error: every failure mode
// resolves to a Decision, and the expensive path is cached.
func (g *Gate) Check(ctx context.Context, query string) Decision {
	ctx, span := tracer.Start(ctx, "CheckRelevance")
	defer span.End()

	normalized := strings.ToLower(strings.TrimSpace(query))
	if cached, found := g.cache.Get(normalized); found {
		if d, ok := cached.(Decision); ok {
			span.SetAttributes(
				attribute.Bool("relevance.cache_hit", true),
				attribute.String("relevance.verdict", string(d.Verdict)),
			)
			return d
		}
	}

	d := g.decide(ctx, query, normalized)
	g.cache.Set(normalized, d, gocache.DefaultExpiration)

	span.SetAttributes(
		attribute.Bool("relevance.cache_hit", false),
		attribute.String("relevance.verdict", string(d.Verdict)),
		attribute.String("relevance.method", string(d.Method)),
	)
	g.logger.Debug("relevance decided",
		slog.String("verdict", string(d.Verdict)),
		slog.String("method", string(d.Method)),
		slog.String("reason", d.Reason))
	return d
}

func (g *Gate) decide(ctx context.Context, query, normalized string) Decision {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < g.config.MinQueryRunes {
		return Decision{
			Verdict:  VerdictOutOfDomain,
			Method:   MethodLengthCheck,
			Reason:   "질문이 너무 짧습니다",
			Redirect: tooShortRedirect,
		}
	}

	if matchAllow(normalized) {
		return Decision{
			Verdict: VerdictInDomain,
			Method:  MethodAllowList,
			Reason:  "매트리스 관련 키워드 발견",
		}
	}

	if matched, category, ok := matchBlock(normalized); ok {
		return Decision{
			Verdict:  VerdictOutOfDomain,
			Method:   MethodBlockList,
			Category: category,
			Reason:   fmt.Sprintf("무관한 키워드 발견: %s", strings.Join(matched, ", ")),
			Redirect: redirectFor(category, matched),
		}
	}

	return g.checkWithModel(ctx, query)
}

// checkWithModel asks the model for a binary verdict. Any failure fails
// open: losing one off-topic query costs less than refusing a real one.
func (g *Gate) checkWithModel(ctx context.Context, query string) Decision {
	failOpen := Decision{
		Verdict: VerdictInDomain,
		Method:  MethodFailOpen,
		Reason:  "관련성을 판단할 수 없어 통과 처리",
	}
	if g.generate == nil {
		return failOpen
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.config.TimeoutMs)*time.Millisecond)
	defer cancel()

	content, err := g.generate(ctx, verdictPrompt(query), g.config.MaxTokens)
	if err != nil {
		g.logger.Warn("relevance model check failed, failing open",
			slog.String("error", err.Error()))
		return failOpen
	}

	relevant, reason := parseVerdict(content)
	if relevant {
		return Decision{
			Verdict: VerdictInDomain,
			Method:  MethodLLMCheck,
			Reason:  reason,
		}
	}
	return Decision{
		Verdict:  VerdictOutOfDomain,
		Method:   MethodLLMCheck,
		Reason:   reason,
		Redirect: redirectFor(CategoryOther, nil),
	}
}

// verdictPrompt builds the short classification prompt. Few-shot lines pin
// the boundary cases the lists cannot catch.
func verdictPrompt(query string) string {
	return fmt.Sprintf(`매트리스/침대/수면과 관련된 질문인지 판단해주세요.

허용되는 질문:
- 매트리스, 침대, 수면, 잠자리 관련
- 침구류 (베개, 이불, 매트리스패드 등)
- 수면 건강 (허리, 목 통증 등과 매트리스 연관)

차단되는 질문:
- 다른 가구 (서랍장, 소파, 책상, 의자 등)
- 가전제품 (냉장고, TV, 에어컨 등)
- 매트리스와 무관한 모든 질문

예시:
- "허리 아픈 사람 매트리스" → 관련있음
- "딱딱한 침대 추천" → 관련있음
- "서랍장 추천해주세요" → 관련없음
- "배고파" → 관련없음

JSON 형식으로만 답하세요: {"relevant": true/false, "reason": "이유"}

질문: '%s'`, query)
}

type verdictPayload struct {
	Relevant bool   `json:"relevant"`
	Reason   string `json:"reason"`
}

// parseVerdict extracts the verdict JSON from model output. Models wrap
// JSON in prose and code fences, so the parse slices from the first brace
// to the last before unmarshaling, then falls back to a token scan.
func parseVerdict(content string) (bool, string) {
	cleaned := content
	if idx := strings.Index(cleaned, "```json"); idx >= 0 {
		cleaned = cleaned[idx+len("```json"):]
		if end := strings.Index(cleaned, "```"); end >= 0 {
			cleaned = cleaned[:end]
		}
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		var payload verdictPayload
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err == nil {
			reason := payload.Reason
			if reason == "" {
				reason = "모델 판단"
			}
			return payload.Relevant, reason
		}
	}

	// Unparseable output: scan for an affirmative token.
	lower := strings.ToLower(content)
	relevant := strings.Contains(lower, "true") || strings.Contains(lower, "관련있음")
	return relevant, "모델 응답 기반 판단"
}

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
