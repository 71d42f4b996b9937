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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
	"github.com/AleutianAI/Somnus/services/advisor/retrieval"
)

func ceilingOf(won int) *int {
	return &won
}

func TestStopConfidentAndCovered(t *testing.T) {
	suited := mkCand("suited", 450_000, 0.9)
	suited.Product.HealthSuitability = []string{datatypes.TagBackPain}
	constraints := datatypes.Constraints{
		BudgetCeiling: ceilingOf(500_000),
		HealthTags:    []string{datatypes.TagBackPain},
	}

	stop, gaps := DefaultStopPolicy().ShouldStop(
		Synthesis{Answer: "추천", Confident: true}, constraints,
		[]retrieval.RankedCandidate{suited})

	assert.True(t, stop)
	assert.Empty(t, gaps)
}

func TestStopMissingMarkerBlocks(t *testing.T) {
	suited := mkCand("suited", 450_000, 0.9)
	suited.Product.HealthSuitability = []string{datatypes.TagBackPain}
	constraints := datatypes.Constraints{HealthTags: []string{datatypes.TagBackPain}}

	stop, gaps := DefaultStopPolicy().ShouldStop(
		Synthesis{Answer: "추천", Confident: false}, constraints,
		[]retrieval.RankedCandidate{suited})

	assert.False(t, stop)
	assert.Empty(t, gaps)
}

func TestStopUncoveredBudget(t *testing.T) {
	constraints := datatypes.Constraints{BudgetCeiling: ceilingOf(500_000)}

	stop, gaps := DefaultStopPolicy().ShouldStop(
		Synthesis{Answer: "추천", Confident: true}, constraints,
		[]retrieval.RankedCandidate{mkCand("pricey", 900_000, 0.9)})

	assert.False(t, stop)
	assert.Equal(t, []string{"50만원 이하"}, gaps)
}

func TestStopUncoveredTags(t *testing.T) {
	constraints := datatypes.Constraints{
		HealthTags:     []string{datatypes.TagBackPain},
		PreferenceTags: []string{datatypes.TagFirm},
	}

	stop, gaps := DefaultStopPolicy().ShouldStop(
		Synthesis{Answer: "추천", Confident: true}, constraints,
		[]retrieval.RankedCandidate{mkCand("plain", 400_000, 0.9)})

	assert.False(t, stop)
	assert.Equal(t, []string{"허리", "딱딱한"}, gaps)
}

func TestStopFirmnessSatisfiesPreference(t *testing.T) {
	firm := mkCand("firm", 400_000, 0.9)
	firm.Product.Firmness = 5
	constraints := datatypes.Constraints{PreferenceTags: []string{datatypes.TagFirm}}

	stop, gaps := DefaultStopPolicy().ShouldStop(
		Synthesis{Answer: "추천", Confident: true}, constraints,
		[]retrieval.RankedCandidate{firm})

	assert.True(t, stop)
	assert.Empty(t, gaps)
}

func TestStopDegradedStopsImmediately(t *testing.T) {
	constraints := datatypes.Constraints{HealthTags: []string{datatypes.TagBackPain}}

	stop, gaps := DefaultStopPolicy().ShouldStop(
		Synthesis{Answer: "템플릿 답변", Degraded: true}, constraints,
		[]retrieval.RankedCandidate{mkCand("plain", 400_000, 0.9)})

	assert.True(t, stop)
	assert.Empty(t, gaps)
}

func TestStopNoConstraints(t *testing.T) {
	stop, gaps := DefaultStopPolicy().ShouldStop(
		Synthesis{Answer: "추천", Confident: true}, datatypes.Constraints{},
		[]retrieval.RankedCandidate{mkCand("any", 400_000, 0.9)})

	assert.True(t, stop)
	assert.Empty(t, gaps)
}
