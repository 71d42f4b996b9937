// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// SleeperProfile is a saved shopper profile. The profile wizard writes it
// next to the config file and the agent folds it into every turn's
// constraints, with the turn's own statements taking precedence.
type SleeperProfile struct {
	// Name labels the profile in the CLI. Optional.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// BudgetCeiling is the standing budget in KRW. Optional.
	BudgetCeiling *int `json:"budget_ceiling,omitempty" yaml:"budget_ceiling,omitempty"`

	// HealthTags are standing health conditions, raw or canonical.
	HealthTags []string `json:"health_tags,omitempty" yaml:"health_tags,omitempty"`

	// PreferenceTags are standing product preferences, raw or canonical.
	PreferenceTags []string `json:"preference_tags,omitempty" yaml:"preference_tags,omitempty"`
}

// IsEmpty reports whether the profile carries no usable constraint.
func (p SleeperProfile) IsEmpty() bool {
	return p.BudgetCeiling == nil && len(p.HealthTags) == 0 && len(p.PreferenceTags) == 0
}

// Constraints converts the profile to turn constraints. Tags are run
// through NormalizeTag so hand-edited profiles still intersect catalog
// tags exactly.
func (p SleeperProfile) Constraints() Constraints {
	c := Constraints{BudgetCeiling: p.BudgetCeiling}
	for _, t := range p.HealthTags {
		if norm := NormalizeTag(t); norm != "" {
			c.HealthTags = append(c.HealthTags, norm)
		}
	}
	for _, t := range p.PreferenceTags {
		if norm := NormalizeTag(t); norm != "" {
			c.PreferenceTags = append(c.PreferenceTags, norm)
		}
	}
	return c
}
