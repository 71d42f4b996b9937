// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent runs the reasoning loop that turns one user query into a
// grounded recommendation.
//
// The loop is a small state machine: START checks domain relevance and
// short-circuits off-topic queries with a redirect; RETRIEVING expands the
// action query and pulls ranked candidates through the hybrid retriever
// and the personalization pass; SYNTHESIZING generates a partial answer
// over the shown candidates; REFINING folds uncovered constraints back
// into the action query for another round. At most three rounds run, and
// the loop never finishes without an answer: generation failures degrade
// to a template built from the top candidate, and an empty candidate set
// becomes an explicit "no matching product" reply. Only a retrieval
// failure aborts the turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
	"github.com/AleutianAI/Somnus/services/advisor/expansion"
	"github.com/AleutianAI/Somnus/services/advisor/intent"
	"github.com/AleutianAI/Somnus/services/advisor/llm"
	"github.com/AleutianAI/Somnus/services/advisor/personalize"
	"github.com/AleutianAI/Somnus/services/advisor/relevance"
	"github.com/AleutianAI/Somnus/services/advisor/retrieval"
	"github.com/AleutianAI/Somnus/services/advisor/session"
)

var tracer = otel.Tracer("somnus.advisor.agent")

// ErrRetrievalFailed marks the one fatal turn outcome: the product store
// could not serve any candidates. Everything else degrades to an answer.
var ErrRetrievalFailed = errors.New("product retrieval failed")

// =============================================================================
// Interfaces
// =============================================================================

// DomainChecker decides whether a query belongs to the mattress domain.
type DomainChecker interface {
	Check(ctx context.Context, query string) relevance.Decision
}

// Retriever produces ranked candidates for one query.
type Retriever interface {
	Retrieve(ctx context.Context, query datatypes.Query, topK int) ([]retrieval.RankedCandidate, error)
}

// =============================================================================
// Configuration
// =============================================================================

// Config bounds the loop's rounds and external calls.
type Config struct {
	// MaxRounds caps retrieve/synthesize rounds per turn.
	// Default: 3 (SOMNUS_AGENT_MAX_ROUNDS)
	MaxRounds int

	// RetrieveTopK is passed to the retriever each round.
	// Default: 8 (SOMNUS_AGENT_RETRIEVE_TOP_K)
	RetrieveTopK int

	// ShowTopK is how many post-filter candidates ground the answer and
	// are reported back with the result.
	// Default: 3 (SOMNUS_AGENT_SHOW_TOP_K)
	ShowTopK int

	// GenMaxTokens caps the generation reply.
	// Default: 500 (SOMNUS_AGENT_GEN_MAX_TOKENS)
	GenMaxTokens int

	// GenTimeoutMs bounds each generation call.
	// Default: 12000 (SOMNUS_AGENT_GEN_TIMEOUT_MS)
	GenTimeoutMs int

	// RetryBackoffMs is the wait before the single generation retry.
	// Default: 500 (SOMNUS_AGENT_RETRY_BACKOFF_MS)
	RetryBackoffMs int
}

// DefaultConfig returns loop defaults with environment overrides.
func DefaultConfig() Config {
	return Config{
		MaxRounds:      getEnvInt("SOMNUS_AGENT_MAX_ROUNDS", 3),
		RetrieveTopK:   getEnvInt("SOMNUS_AGENT_RETRIEVE_TOP_K", 8),
		ShowTopK:       getEnvInt("SOMNUS_AGENT_SHOW_TOP_K", 3),
		GenMaxTokens:   getEnvInt("SOMNUS_AGENT_GEN_MAX_TOKENS", 500),
		GenTimeoutMs:   getEnvInt("SOMNUS_AGENT_GEN_TIMEOUT_MS", 12000),
		RetryBackoffMs: getEnvInt("SOMNUS_AGENT_RETRY_BACKOFF_MS", 500),
	}
}

// =============================================================================
// Types
// =============================================================================

// Deps are the loop's collaborators.
//
// Retriever is required. A nil Gate admits every query, a nil Expander
// skips expansion, a nil Scorer gets defaults, a nil Generate degrades
// every synthesis to the field template, and a nil Stop gets the default
// coverage-plus-confidence policy. Profile carries the standing
// constraints of a loaded sleeper profile and may be zero.
type Deps struct {
	Gate      DomainChecker
	Expander  expansion.QueryExpander
	Retriever Retriever
	Scorer    *personalize.Scorer
	Generate  llm.GenerateFunc
	Stop      StopPolicy
	Profile   datatypes.Constraints
}

// Result is one finished turn.
type Result struct {
	// Answer is the final text shown to the user. Never empty.
	Answer string

	// Steps is the ordered reasoning trace, empty for redirected turns.
	Steps []datatypes.ReasoningStep

	// Candidates are the final round's shown candidates in rank order.
	Candidates []retrieval.RankedCandidate

	// AvgSimilarity is the mean post-filter score of Candidates.
	AvgSimilarity float64

	// Enhancements is the persisted enhancement flag set, sorted.
	Enhancements []string

	// Constraints is the effective constraint set the turn ran under
	// (profile, then history, then the current query).
	Constraints datatypes.Constraints

	// Redirected reports an out-of-domain turn that never retrieved.
	Redirected bool

	// RedirectCategory is the matched block category, set only when
	// Redirected is true.
	RedirectCategory relevance.Category
}

// Rounds returns how many retrieve/synthesize rounds ran.
func (r *Result) Rounds() int {
	return len(r.Steps)
}

// Loop drives one turn through the state machine.
//
// # Thread Safety
//
// Safe for concurrent use across sessions; all per-turn state lives in Run.
type Loop struct {
	gate      DomainChecker
	expander  expansion.QueryExpander
	retriever Retriever
	scorer    *personalize.Scorer
	synth     *synthesizer
	stop      StopPolicy
	profile   datatypes.Constraints
	config    Config
	logger    *slog.Logger
}

// NewLoop wires the loop. It fails only on a missing retriever.
func NewLoop(deps Deps, cfg Config, logger *slog.Logger) (*Loop, error) {
	if deps.Retriever == nil {
		return nil, fmt.Errorf("agent: retriever is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "reasoning_loop"))

	if cfg.MaxRounds < 1 {
		cfg.MaxRounds = 1
	}
	if cfg.RetrieveTopK < 1 {
		cfg.RetrieveTopK = 8
	}
	if cfg.ShowTopK < 1 {
		cfg.ShowTopK = 3
	}

	scorer := deps.Scorer
	if scorer == nil {
		scorer = personalize.NewScorer(personalize.DefaultConfig(), logger)
	}
	stop := deps.Stop
	if stop == nil {
		stop = DefaultStopPolicy()
	}

	return &Loop{
		gate:      deps.Gate,
		expander:  deps.Expander,
		retriever: deps.Retriever,
		scorer:    scorer,
		synth:     &synthesizer{generate: deps.Generate, config: cfg, logger: logger},
		stop:      stop,
		profile:   deps.Profile,
		config:    cfg,
		logger:    logger,
	}, nil
}

// =============================================================================
// Implementation
// =============================================================================

// Run executes one turn.
//
// # Description
//
// The relevance gate runs first; an out-of-domain query terminates with
// its redirect message, zero rounds, zero retrieval calls. Otherwise the
// effective constraints are assembled (profile, then each history turn's
// query, then the current query; later budgets win) and up to MaxRounds
// rounds of expand → retrieve → filter/boost → synthesize run. The stop
// policy accepts an answer early; uncovered constraint terms drive the
// next round's action query. The final round's shown candidates define
// AvgSimilarity.
//
// # Outputs
//
//   - *Result: The finished turn. Answer is never empty on success.
//   - error: Only when retrieval itself failed (ErrRetrievalFailed).
func (l *Loop) Run(ctx context.Context, query string, history *session.Session) (*Result, error) {
	ctx, span := tracer.Start(ctx, "RunTurn")
	defer span.End()

	query = strings.TrimSpace(query)
	var flags []datatypes.Enhancement

	decision := l.checkDomain(ctx, query)
	if decision.Method == relevance.MethodLLMCheck {
		flags = append(flags, datatypes.EnhancementRelevanceLLMChecked)
	}
	if !decision.InDomain() {
		span.SetAttributes(attribute.Bool("turn.redirected", true))
		l.logger.Info("Query redirected as out of domain",
			slog.String("category", string(decision.Category)),
			slog.String("method", string(decision.Method)))
		return &Result{
			Answer:           decision.Redirect,
			Enhancements:     datatypes.EnhancementStrings(flags),
			Redirected:       true,
			RedirectCategory: decision.Category,
		}, nil
	}

	constraints := l.effectiveConstraints(query, history)
	if !l.profile.IsEmpty() {
		flags = append(flags, datatypes.EnhancementProfileConstraints)
	}
	if !constraints.IsEmpty() {
		flags = append(flags, datatypes.EnhancementPersonalization)
	}

	var (
		steps  []datatypes.ReasoningStep
		shown  []retrieval.RankedCandidate
		answer string
		gaps   []string
		action = query
	)

	for round := 0; round < l.config.MaxRounds; round++ {
		step := datatypes.ReasoningStep{
			RoundIndex: round,
			Thought:    roundThought(round, gaps),
			Action:     action,
		}

		terms := l.expandAction(ctx, action, &flags)
		q := datatypes.Query{Raw: action, ExpandedTerms: terms, Constraints: constraints}

		candidates, err := l.retriever.Retrieve(ctx, q, l.config.RetrieveTopK)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
		}
		if len(candidates) > 0 {
			flags = append(flags, datatypes.EnhancementHybridRetrieval)
		}

		ranked, relaxed := l.scorer.FilterAndBoost(candidates, constraints)
		if relaxed {
			flags = append(flags, datatypes.EnhancementBudgetRelaxed)
		}
		if len(ranked) == 0 {
			step.Observation = "조건에 맞는 후보 없음"
			step.PartialAnswer = noMatchAnswer
			steps = append(steps, step)
			shown = nil
			answer = noMatchAnswer
			break
		}

		shownRound := ranked[:min(l.config.ShowTopK, len(ranked))]
		step.Observation = observeCandidates(len(ranked), shownRound[0], relaxed)

		synthesis := l.synth.synthesize(ctx, query, shownRound, constraints)
		if synthesis.Degraded {
			flags = append(flags, datatypes.EnhancementDegradedGeneration)
		}
		step.PartialAnswer = synthesis.Answer
		steps = append(steps, step)
		shown = shownRound
		answer = synthesis.Answer

		stop, nextGaps := l.stop.ShouldStop(synthesis, constraints, shownRound)
		if stop || round == l.config.MaxRounds-1 {
			break
		}
		if len(nextGaps) == 0 {
			// Nothing concrete to refine with; the same action query would
			// repeat the round verbatim. Accept the answer.
			break
		}
		gaps = nextGaps
		action = refineQuery(query, gaps)
		l.logger.Debug("Refining action query",
			slog.Int("next_round", round+1),
			slog.String("gaps", strings.Join(gaps, ", ")))
	}

	avg := meanScore(shown)
	span.SetAttributes(
		attribute.Int("turn.rounds", len(steps)),
		attribute.Int("turn.candidates_shown", len(shown)),
		attribute.Float64("turn.avg_similarity", avg),
	)
	l.logger.Info("Turn completed",
		slog.Int("rounds", len(steps)),
		slog.Int("candidates_shown", len(shown)),
		slog.Float64("avg_similarity", avg))

	return &Result{
		Answer:        answer,
		Steps:         steps,
		Candidates:    shown,
		AvgSimilarity: avg,
		Enhancements:  datatypes.EnhancementStrings(flags),
		Constraints:   constraints,
	}, nil
}

// checkDomain runs the gate, admitting everything when no gate is wired.
func (l *Loop) checkDomain(ctx context.Context, query string) relevance.Decision {
	if l.gate == nil {
		return relevance.Decision{Verdict: relevance.VerdictInDomain, Method: relevance.MethodFailOpen}
	}
	return l.gate.Check(ctx, query)
}

// effectiveConstraints merges profile, history, and the current query.
// Later sources win on budget; tags accumulate.
func (l *Loop) effectiveConstraints(query string, history *session.Session) datatypes.Constraints {
	constraints := l.profile
	if history != nil {
		for _, turn := range history.Turns() {
			constraints = constraints.Merge(intent.ExtractConstraints(turn.UserQuery))
		}
	}
	return constraints.Merge(intent.ExtractConstraints(query))
}

// expandAction runs the expander and records which expansion path fired.
func (l *Loop) expandAction(ctx context.Context, action string, flags *[]datatypes.Enhancement) []string {
	if l.expander == nil {
		return nil
	}
	expanded := l.expander.Expand(ctx, action)
	if expanded == nil {
		return nil
	}
	switch expanded.Source {
	case expansion.SourceModel:
		*flags = append(*flags, datatypes.EnhancementGPTSynonyms)
	case expansion.SourceStatic:
		*flags = append(*flags, datatypes.EnhancementStaticSynonyms)
	}
	return expanded.Terms
}

// =============================================================================
// Helper Functions
// =============================================================================

func roundThought(round int, gaps []string) string {
	if round == 0 {
		return "질문 조건에 맞는 매트리스 후보를 검색한다."
	}
	return fmt.Sprintf("미충족 조건을 보강해 재검색한다: %s", strings.Join(gaps, ", "))
}

func observeCandidates(total int, top retrieval.RankedCandidate, relaxed bool) string {
	name := top.ProductID
	if top.Product != nil {
		name = top.Product.Name
	}
	obs := fmt.Sprintf("후보 %d개 확보, 최고 점수 %.2f (%s)", total, top.Score, name)
	if relaxed {
		obs += ", 예산 완화 적용"
	}
	return obs
}

func refineQuery(original string, gaps []string) string {
	return original + " " + strings.Join(gaps, " ")
}

func meanScore(candidates []retrieval.RankedCandidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	var sum float64
	for _, c := range candidates {
		sum += c.Score
	}
	return sum / float64(len(candidates))
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
