// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"reflect"
	"testing"

	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
)

// TestBudgetCeiling verifies 만원 amounts become KRW ceilings and lower
// bounds are ignored.
func TestBudgetCeiling(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
		none  bool
	}{
		{"plain ceiling", "50만원 이하로 가성비 좋은 매트리스 찾고 있어요", 500_000, false},
		{"statement", "예산은 150만원입니다", 1_500_000, false},
		{"range keeps max", "50~80만원 사이로 보여주세요", 800_000, false},
		{"floor only", "80만원 이상으로 보여주세요", 0, true},
		{"floor plus ceiling", "50만원 이상 100만원 이하", 1_000_000, false},
		{"decimal amount", "49.9만원 특가 상품 있나요", 499_000, false},
		{"spaced suffix", "30만 원 정도 생각하고 있어요", 300_000, false},
		{"no amount", "가격은 상관없어요", 0, true},
		{"zero amount", "0만원짜리는 없겠죠", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BudgetCeiling(tt.query)
			if tt.none {
				if got != nil {
					t.Fatalf("ceiling = %d, want none", *got)
				}
				return
			}
			if got == nil {
				t.Fatal("ceiling = nil, want a value")
			}
			if *got != tt.want {
				t.Errorf("ceiling = %d, want %d", *got, tt.want)
			}
		})
	}
}

// TestExtractConstraints verifies budget, health, and preference capture
// from one query.
func TestExtractConstraints(t *testing.T) {
	c := ExtractConstraints("허리 디스크 환자용 딱딱한 매트리스 50만원 이하")

	if c.BudgetCeiling == nil || *c.BudgetCeiling != 500_000 {
		t.Errorf("budget = %v, want 500000", c.BudgetCeiling)
	}
	if !reflect.DeepEqual(c.HealthTags, []string{datatypes.TagBackPain}) {
		t.Errorf("health = %v, want [%s]", c.HealthTags, datatypes.TagBackPain)
	}
	if !reflect.DeepEqual(c.PreferenceTags, []string{datatypes.TagFirm}) {
		t.Errorf("preferences = %v, want [%s]", c.PreferenceTags, datatypes.TagFirm)
	}
}

// TestExtractConstraintsSizes verifies size words land in preference tags.
func TestExtractConstraintsSizes(t *testing.T) {
	c := ExtractConstraints("신혼부부 킹사이즈 시원한 매트리스")

	want := []string{datatypes.TagCooling, datatypes.TagKing}
	if !reflect.DeepEqual(c.PreferenceTags, want) {
		t.Errorf("preferences = %v, want %v", c.PreferenceTags, want)
	}
	if len(c.HealthTags) != 0 {
		t.Errorf("health = %v, want empty", c.HealthTags)
	}
}

// TestExtractConstraintsEmpty verifies a neutral query yields no constraints.
func TestExtractConstraintsEmpty(t *testing.T) {
	c := ExtractConstraints("추천 부탁드립니다")
	if !c.IsEmpty() {
		t.Errorf("constraints = %+v, want empty", c)
	}
}

// TestProfileMergeOrder verifies the turn's statements override the saved
// profile while tag sets union.
func TestProfileMergeOrder(t *testing.T) {
	standing := 1_000_000
	profile := datatypes.SleeperProfile{
		BudgetCeiling:  &standing,
		HealthTags:     []string{"허리디스크"},
		PreferenceTags: []string{"쿨링"},
	}

	turn := ExtractConstraints("딱딱한 매트리스 50만원 이하")
	merged := profile.Constraints().Merge(turn)

	if merged.BudgetCeiling == nil || *merged.BudgetCeiling != 500_000 {
		t.Errorf("budget = %v, want the turn's 500000", merged.BudgetCeiling)
	}
	if !reflect.DeepEqual(merged.HealthTags, []string{datatypes.TagBackPain}) {
		t.Errorf("health = %v, want [%s]", merged.HealthTags, datatypes.TagBackPain)
	}
	want := []string{datatypes.TagCooling, datatypes.TagFirm}
	if !reflect.DeepEqual(merged.PreferenceTags, want) {
		t.Errorf("preferences = %v, want %v", merged.PreferenceTags, want)
	}
}
