// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent extracts shopping constraints from Korean query text.
//
// Extraction is deterministic keyword and pattern work: a 만원 amount
// becomes the budget ceiling, health phrases map to canonical condition
// tags, and preference phrases map to product tags. No model call is
// involved, so the extractor is free to run on every reasoning round.
package intent

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
)

// budgetPattern captures 만원 amounts, decimals included (49.9만원).
var budgetPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*만\s*원`)

// floorQualifiers mark an amount as a lower bound rather than a ceiling
// when they immediately follow it (50만원 이상).
var floorQualifiers = []string{"이상", "초과", "넘", "부터"}

// ExtractConstraints derives the turn's constraints from raw query text.
//
// # Description
//
// The budget ceiling is the largest 만원 amount in the query that is not
// qualified as a lower bound, converted to KRW ("50~80만원" keeps 800,000;
// "80만원 이상" alone keeps none). Health and preference tags come from the
// shared vocabulary tables.
//
// # Inputs
//
//   - query: Raw user text. Case folding is applied for Latin brand words.
//
// # Outputs
//
//   - datatypes.Constraints: Never nil slices are promised; empty fields
//     simply stay zero.
func ExtractConstraints(query string) datatypes.Constraints {
	lower := strings.ToLower(query)
	return datatypes.Constraints{
		BudgetCeiling:  BudgetCeiling(lower),
		HealthTags:     datatypes.HealthTagsIn(lower),
		PreferenceTags: datatypes.PreferenceTagsIn(lower),
	}
}

// BudgetCeiling extracts the budget ceiling in KRW from query text, or nil
// when no usable amount is stated.
func BudgetCeiling(query string) *int {
	matches := budgetPattern.FindAllStringSubmatchIndex(query, -1)
	var ceiling *int
	for _, m := range matches {
		amount, err := strconv.ParseFloat(query[m[2]:m[3]], 64)
		if err != nil || amount <= 0 {
			continue
		}
		if isFloorQualified(query[m[1]:]) {
			continue
		}
		won := int(math.Round(amount * 10_000))
		if ceiling == nil || won > *ceiling {
			ceiling = &won
		}
	}
	return ceiling
}

// isFloorQualified reports whether the text right after an amount marks it
// as a minimum.
func isFloorQualified(rest string) bool {
	rest = strings.TrimLeft(rest, " \t")
	for _, q := range floorQualifiers {
		if strings.HasPrefix(rest, q) {
			return true
		}
	}
	return false
}
