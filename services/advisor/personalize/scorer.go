// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package personalize re-ranks retrieval candidates against the shopper's
// constraints.
//
// The budget ceiling is the only hard criterion: candidates above it are
// dropped, and when that empties the set the ceiling relaxes in bounded
// +20% steps rather than returning nothing. Health and preference matches
// add small, capped score boosts that can reorder but never remove
// candidates. Sorting is stable so candidates with equal boosted scores
// keep the retrieval merge order.
package personalize

import (
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/AleutianAI/Somnus/services/advisor/catalog"
	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
	"github.com/AleutianAI/Somnus/services/advisor/retrieval"
)

// Firmness ordinals that satisfy the firm/soft preference tags.
const (
	firmThreshold = 4
	softThreshold = 2
)

// Config holds personalization weights and relaxation bounds.
type Config struct {
	// HealthBoost is the additive bonus per matched health tag.
	// Default: 0.10 (SOMNUS_PERSONALIZE_HEALTH_BOOST)
	HealthBoost float64

	// PreferenceBoost is the additive bonus per matched preference tag.
	// Default: 0.05 (SOMNUS_PERSONALIZE_PREF_BOOST)
	PreferenceBoost float64

	// MaxBoost caps the total bonus for one candidate so stacked tags
	// cannot override the retrieval ordering wholesale.
	// Default: 0.30 (SOMNUS_PERSONALIZE_MAX_BOOST)
	MaxBoost float64

	// RelaxStep is the fractional ceiling increase per relaxation step.
	// Default: 0.20 (SOMNUS_PERSONALIZE_RELAX_STEP)
	RelaxStep float64

	// MaxRelaxSteps bounds how often the ceiling may relax.
	// Default: 2 (SOMNUS_PERSONALIZE_MAX_RELAX_STEPS)
	MaxRelaxSteps int
}

// DefaultConfig returns personalization defaults with env overrides.
func DefaultConfig() Config {
	return Config{
		HealthBoost:     getEnvFloat("SOMNUS_PERSONALIZE_HEALTH_BOOST", 0.10),
		PreferenceBoost: getEnvFloat("SOMNUS_PERSONALIZE_PREF_BOOST", 0.05),
		MaxBoost:        getEnvFloat("SOMNUS_PERSONALIZE_MAX_BOOST", 0.30),
		RelaxStep:       getEnvFloat("SOMNUS_PERSONALIZE_RELAX_STEP", 0.20),
		MaxRelaxSteps:   getEnvInt("SOMNUS_PERSONALIZE_MAX_RELAX_STEPS", 2),
	}
}

// Scorer applies the constraint filter and boost pass.
//
// # Thread Safety
//
// Scorer is safe for concurrent use; it holds only configuration.
type Scorer struct {
	config Config
	logger *slog.Logger
}

// NewScorer creates a scorer with cfg.
func NewScorer(cfg Config, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		config: cfg,
		logger: logger.With(slog.String("component", "personalization")),
	}
}

// FilterAndBoost filters candidates by budget and boosts constraint
// matches.
//
// # Description
//
// Candidates priced above the budget ceiling are dropped. If that removes
// everything, the ceiling relaxes by RelaxStep per step (at most
// MaxRelaxSteps) until something survives; the returned flag reports that
// relaxation happened, including the case where even the relaxed ceiling
// left nothing. Survivors get additive boosts per matched health and
// preference tag, capped at MaxBoost and clamped so no score exceeds 1.
// The input slice is not mutated.
//
// # Inputs
//
//   - candidates: Merged retrieval candidates in merge order.
//   - constraints: The turn's constraints (profile already merged in).
//
// # Outputs
//
//   - []retrieval.RankedCandidate: Re-ranked survivors, stable among equal
//     boosted scores. Empty only when the (relaxed) budget excluded all.
//   - bool: True when the budget ceiling had to relax.
func (s *Scorer) FilterAndBoost(candidates []retrieval.RankedCandidate, constraints datatypes.Constraints) ([]retrieval.RankedCandidate, bool) {
	if len(candidates) == 0 {
		return nil, false
	}

	within, relaxed := s.applyBudget(candidates, constraints.BudgetCeiling)
	if len(within) == 0 {
		return nil, relaxed
	}

	boosted := make([]retrieval.RankedCandidate, len(within))
	copy(boosted, within)
	for i := range boosted {
		bonus := s.bonus(boosted[i].Product, constraints)
		if bonus == 0 {
			continue
		}
		score := boosted[i].Score + bonus
		if score > 1 {
			score = 1
		}
		boosted[i].Score = score
	}

	sort.SliceStable(boosted, func(i, j int) bool {
		return boosted[i].Score > boosted[j].Score
	})
	return boosted, relaxed
}

// applyBudget runs the hard ceiling filter with bounded relaxation.
func (s *Scorer) applyBudget(candidates []retrieval.RankedCandidate, ceiling *int) ([]retrieval.RankedCandidate, bool) {
	if ceiling == nil || *ceiling <= 0 {
		return candidates, false
	}

	within := underCeiling(candidates, *ceiling)
	if len(within) > 0 {
		return within, false
	}

	for step := 1; step <= s.config.MaxRelaxSteps; step++ {
		limit := int(math.Round(float64(*ceiling) * (1 + s.config.RelaxStep*float64(step))))
		within = underCeiling(candidates, limit)
		if len(within) > 0 {
			s.logger.Info("Budget ceiling relaxed to keep candidates",
				"ceiling", *ceiling, "relaxed_to", limit, "step", step)
			return within, true
		}
	}
	return nil, true
}

func underCeiling(candidates []retrieval.RankedCandidate, ceiling int) []retrieval.RankedCandidate {
	var out []retrieval.RankedCandidate
	for _, cand := range candidates {
		if cand.Product == nil || cand.Product.Price <= ceiling {
			out = append(out, cand)
		}
	}
	return out
}

// bonus computes the capped additive boost for one record.
func (s *Scorer) bonus(record *catalog.ProductRecord, constraints datatypes.Constraints) float64 {
	if record == nil {
		return 0
	}
	var b float64
	for _, tag := range constraints.HealthTags {
		if record.SuitsHealth(tag) {
			b += s.config.HealthBoost
		}
	}
	for _, tag := range constraints.PreferenceTags {
		if MatchesPreference(record, tag) {
			b += s.config.PreferenceBoost
		}
	}
	if b > s.config.MaxBoost {
		b = s.config.MaxBoost
	}
	return b
}

// MatchesPreference checks a preference tag against a record's features,
// with the firm/soft tags resolved against the firmness ordinal when no
// feature tag matches. Shared with the constraint-coverage check in the
// reasoning loop so both sides agree on what "addressed" means.
func MatchesPreference(record *catalog.ProductRecord, tag string) bool {
	if record == nil {
		return false
	}
	if record.HasFeature(tag) {
		return true
	}
	switch tag {
	case datatypes.TagFirm:
		return record.Firmness >= firmThreshold
	case datatypes.TagSoft:
		return record.Firmness <= softThreshold
	}
	return false
}

// getEnvFloat returns an environment variable as float64, or fallback if not set/invalid.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Invalid float in environment variable, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
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
