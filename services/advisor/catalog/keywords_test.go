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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTokenizeQuery verifies splitting, stop-term removal, and dedupe.
func TestTokenizeQuery(t *testing.T) {
	terms := TokenizeQuery("허리 디스크! 매트리스 추천해주세요, 매트리스 좀")
	assert.Equal(t, []string{"허리", "디스크", "매트리스"}, terms)

	assert.Empty(t, TokenizeQuery("  "))
	assert.Empty(t, TokenizeQuery("추천 해줘"))
}

// TestTermWeight verifies exact lookups, the substring fallback for
// agglutinated compounds, and the unknown-term default.
func TestTermWeight(t *testing.T) {
	assert.Equal(t, 5.0, termWeight("허리"))
	assert.Equal(t, 3.0, termWeight("매트리스"))
	assert.Equal(t, 1.0, termWeight("전혀모르는말"))

	// 허리에는 picks up the 허리 weight through the substring fallback.
	assert.Equal(t, 5.0, termWeight("허리에는"))
}

// TestTermWeightCompoundDeterministic pins the compound case: 허리디스크
// carries both 허리 (5.0) and 디스크 (4.5) as substrings, and the strongest
// must win on every call rather than whichever keyword the vocabulary map
// yields first.
func TestTermWeightCompoundDeterministic(t *testing.T) {
	for i := 0; i < 500; i++ {
		require.Equal(t, 5.0, termWeight("허리디스크"))
	}
}

// TestScoreLexical verifies the normalized weighted-hit score and that
// repeated scoring of the same document never drifts.
func TestScoreLexical(t *testing.T) {
	doc := "매트리스 이름: 편안 브랜드: 테스트 타입: 메모리폼"
	terms := TokenizeQuery("허리디스크 있는데 매트리스 추천해주세요")
	require.Equal(t, []string{"허리디스크", "있는데", "매트리스"}, terms)

	// Weights: 허리디스크 5.0 (miss), 있는데 1.0 (miss), 매트리스 3.0 (hit).
	first := scoreLexical(doc, terms)
	assert.InDelta(t, 3.0/9.0, first, 1e-9)

	for i := 0; i < 200; i++ {
		require.Equal(t, first, scoreLexical(doc, terms))
	}

	assert.Zero(t, scoreLexical("", terms))
	assert.Zero(t, scoreLexical(doc, nil))
}
