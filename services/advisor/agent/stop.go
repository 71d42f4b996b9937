// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"fmt"

	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
	"github.com/AleutianAI/Somnus/services/advisor/personalize"
	"github.com/AleutianAI/Somnus/services/advisor/retrieval"
)

// ConfidenceMarker is the trailer the generation prompt asks the model to
// emit when the recommendation satisfies every stated condition. It is an
// internal protocol token, stripped before the answer reaches the user.
const ConfidenceMarker = "[CONFIDENT]"

// Synthesis is one round's generation outcome.
type Synthesis struct {
	// Answer is the partial answer text with the confidence marker removed.
	Answer string

	// Confident reports whether the model emitted the confidence marker.
	Confident bool

	// Degraded reports that the answer came from the field template because
	// generation failed or was unavailable.
	Degraded bool
}

// StopPolicy decides after each SYNTHESIZING state whether the loop is done.
//
// # Description
//
// Implementations see the round's synthesis, the effective constraints, and
// the candidates that would be shown with the answer. They return whether
// to accept the answer as final and, when not stopping, the Korean terms
// for the constraints the shown candidates leave unaddressed; the loop
// folds those terms into the next action query.
type StopPolicy interface {
	ShouldStop(synthesis Synthesis, constraints datatypes.Constraints, shown []retrieval.RankedCandidate) (stop bool, gaps []string)
}

// coveragePolicy is the default stop heuristic: constraint coverage AND an
// explicit model confidence marker, both required. A degraded synthesis
// stops immediately since another retrieval round cannot repair generation.
type coveragePolicy struct{}

// DefaultStopPolicy returns the coverage-plus-confidence policy.
func DefaultStopPolicy() StopPolicy {
	return coveragePolicy{}
}

func (coveragePolicy) ShouldStop(synthesis Synthesis, constraints datatypes.Constraints, shown []retrieval.RankedCandidate) (bool, []string) {
	if synthesis.Degraded {
		return true, nil
	}
	gaps := uncoveredConstraints(constraints, shown)
	return synthesis.Confident && len(gaps) == 0, gaps
}

// uncoveredConstraints lists, as Korean query terms, every constraint no
// shown candidate addresses.
func uncoveredConstraints(constraints datatypes.Constraints, shown []retrieval.RankedCandidate) []string {
	var gaps []string

	if ceiling := constraints.BudgetCeiling; ceiling != nil && *ceiling > 0 {
		covered := false
		for _, cand := range shown {
			if cand.Product != nil && cand.Product.Price <= *ceiling {
				covered = true
				break
			}
		}
		if !covered {
			gaps = append(gaps, fmt.Sprintf("%d만원 이하", *ceiling/10000))
		}
	}

	for _, tag := range constraints.HealthTags {
		covered := false
		for _, cand := range shown {
			if cand.Product != nil && cand.Product.SuitsHealth(tag) {
				covered = true
				break
			}
		}
		if !covered {
			gaps = append(gaps, datatypes.KoreanForTag(tag))
		}
	}

	for _, tag := range constraints.PreferenceTags {
		covered := false
		for _, cand := range shown {
			if personalize.MatchesPreference(cand.Product, tag) {
				covered = true
				break
			}
		}
		if !covered {
			gaps = append(gaps, datatypes.KoreanForTag(tag))
		}
	}

	return gaps
}
