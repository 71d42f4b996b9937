// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"testing"
)

// =============================================================================
// GetPersonality / SetPersonality Tests
// =============================================================================

func TestSetPersonality_AndGet(t *testing.T) {
	// Save original personality
	orig := GetPersonality()
	defer SetPersonality(orig)

	// Set a custom personality
	custom := Personality{
		Level:         PersonalityMinimal,
		Theme:         "custom",
		ShowTips:      false,
		NocturnalMode: false,
	}
	SetPersonality(custom)

	// Verify it was set
	retrieved := GetPersonality()
	if retrieved.Level != PersonalityMinimal {
		t.Errorf("expected level %v, got %v", PersonalityMinimal, retrieved.Level)
	}
	if retrieved.Theme != "custom" {
		t.Errorf("expected theme custom, got %v", retrieved.Theme)
	}
	if retrieved.ShowTips {
		t.Error("expected ShowTips false")
	}
	if retrieved.NocturnalMode {
		t.Error("expected NocturnalMode false")
	}
}

func TestSetPersonalityLevel_OnlyChangesLevel(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{
		Level:         PersonalityFull,
		Theme:         "keepme",
		ShowTips:      true,
		NocturnalMode: true,
	})

	SetPersonalityLevel(PersonalityMachine)

	got := GetPersonality()
	if got.Level != PersonalityMachine {
		t.Errorf("expected machine level, got %v", got.Level)
	}
	if got.Theme != "keepme" {
		t.Errorf("expected theme preserved, got %v", got.Theme)
	}
}

// =============================================================================
// ParsePersonalityLevel Tests
// =============================================================================

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		input string
		want  PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"f", PersonalityFull},
		{"FULL", PersonalityFull},
		{"standard", PersonalityStandard},
		{"std", PersonalityStandard},
		{"s", PersonalityStandard},
		{"minimal", PersonalityMinimal},
		{"min", PersonalityMinimal},
		{"m", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{"q", PersonalityMachine},
		{"unknown", PersonalityStandard},
		{"", PersonalityStandard},
	}

	for _, tt := range tests {
		if got := ParsePersonalityLevel(tt.input); got != tt.want {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// =============================================================================
// InitPersonality Tests
// =============================================================================

func TestInitPersonality_FromEnvironment(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	os.Setenv("SOMNUS_PERSONALITY", "minimal")
	defer os.Unsetenv("SOMNUS_PERSONALITY")

	InitPersonality()

	if got := GetPersonality().Level; got != PersonalityMinimal {
		t.Errorf("expected minimal from env, got %v", got)
	}
}

func TestInitPersonality_NonTerminal_Machine(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	os.Unsetenv("SOMNUS_PERSONALITY")

	// Under go test, stdout is not a character device.
	InitPersonality()

	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("expected machine in non-terminal context, got %v", got)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestShouldShowProgress(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)
	if ShouldShowProgress() {
		t.Error("machine mode should not show progress")
	}

	SetPersonalityLevel(PersonalityFull)
	if !ShouldShowProgress() {
		t.Error("full mode should show progress")
	}
}

func TestShouldShowColors(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)
	if ShouldShowColors() {
		t.Error("machine mode should not use colors")
	}

	SetPersonalityLevel(PersonalityStandard)
	if !ShouldShowColors() {
		t.Error("standard mode should use colors")
	}
}

func TestDefaultPersonality(t *testing.T) {
	p := DefaultPersonality()
	if p.Level != PersonalityFull {
		t.Errorf("expected full default, got %v", p.Level)
	}
	if !p.ShowTips || !p.NocturnalMode {
		t.Error("expected tips and nocturnal mode on by default")
	}
}
