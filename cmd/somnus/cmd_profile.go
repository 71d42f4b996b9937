// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/Somnus/pkg/ux"
	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
)

// runProfileCommand walks the user through building a sleeper profile
// and writes it as YAML. The saved file is what `chat --profile` and
// `ask --profile` load as standing constraints.
func runProfileCommand(cmd *cobra.Command, args []string) {
	var (
		name      string
		budgetRaw string
		health    []string
		prefs     []string
		save      bool
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Profile name").
				Placeholder("e.g. 우리집").
				Value(&name),
			huh.NewInput().
				Title("Budget ceiling in KRW (empty for none)").
				Placeholder("e.g. 500000 or 50만원").
				Validate(validateBudget).
				Value(&budgetRaw),
		),
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Health considerations").
				Options(
					huh.NewOption("허리 통증 · back pain", datatypes.TagBackPain),
					huh.NewOption("목 통증 · neck pain", datatypes.TagNeckPain),
					huh.NewOption("어깨 통증 · shoulder pain", datatypes.TagShoulderPain),
					huh.NewOption("관절 통증 · joint pain", datatypes.TagJointPain),
					huh.NewOption("임신 · pregnancy", datatypes.TagPregnancy),
				).
				Value(&health),
			huh.NewMultiSelect[string]().
				Title("Preferences").
				Options(
					huh.NewOption("딱딱한 · firm", datatypes.TagFirm),
					huh.NewOption("푹신한 · soft", datatypes.TagSoft),
					huh.NewOption("시원한 · cooling", datatypes.TagCooling),
					huh.NewOption("따뜻한 · warm", datatypes.TagWarm),
					huh.NewOption("흔들림 없는 · motion isolation", datatypes.TagMotionIsolation),
					huh.NewOption("가성비 · value", datatypes.TagValue),
					huh.NewOption("프리미엄 · premium", datatypes.TagPremium),
				).
				Value(&prefs),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Save profile to %s?", profileOut)).
				Value(&save),
		),
	)

	if err := form.Run(); err != nil {
		log.Fatalf("Profile wizard failed: %v", err)
	}
	if !save {
		ux.Info("Profile not saved.")
		return
	}

	profile := datatypes.SleeperProfile{
		Name:           strings.TrimSpace(name),
		HealthTags:     health,
		PreferenceTags: prefs,
	}
	if budget, ok := parseBudget(budgetRaw); ok {
		profile.BudgetCeiling = &budget
	}

	data, err := yaml.Marshal(profile)
	if err != nil {
		log.Fatalf("Failed to encode profile: %v", err)
	}
	if err := os.WriteFile(profileOut, data, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", profileOut, err)
	}

	ux.Success(fmt.Sprintf("Profile saved to %s", profileOut))
	if profile.BudgetCeiling != nil {
		ux.Info(fmt.Sprintf("Budget: %s", ux.FormatKRW(*profile.BudgetCeiling)))
	}
	ux.Info(fmt.Sprintf("Use it with: somnus chat --profile %s", profileOut))
}

// validateBudget accepts empty input, bare KRW numbers, comma-grouped
// numbers, and the 만원 shorthand.
func validateBudget(s string) error {
	if _, ok := parseBudget(s); !ok && strings.TrimSpace(s) != "" {
		return fmt.Errorf("enter a number like 500000 or 50만원")
	}
	return nil
}

// parseBudget normalizes a budget string to integer KRW. Returns false
// for empty or unparseable input.
func parseBudget(s string) (int, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	manwon := false
	s = strings.TrimSuffix(s, "원")
	if strings.HasSuffix(s, "만") {
		manwon = true
		s = strings.TrimSuffix(s, "만")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	if manwon {
		n *= 10_000
	}
	return int(n), true
}
