package datatypes

import (
	"sort"
	"strings"
)

// SourceStrategy identifies which retrieval strategy produced a candidate's
// winning score after the merge.
type SourceStrategy string

const (
	StrategyRaw      SourceStrategy = "raw"
	StrategyExpanded SourceStrategy = "expanded"
	StrategyKeyword  SourceStrategy = "keyword"
)

// Constraints are the shopping preferences extracted from a turn plus any
// saved sleeper profile. A nil BudgetCeiling means no budget was stated.
type Constraints struct {
	// BudgetCeiling is the maximum acceptable price in KRW.
	BudgetCeiling *int `json:"budget_ceiling,omitempty"`

	// HealthTags are normalized condition tags (back-pain, neck-pain, ...).
	HealthTags []string `json:"health_tags,omitempty"`

	// PreferenceTags are normalized product preferences (firm, cooling,
	// motion-isolation, queen, ...).
	PreferenceTags []string `json:"preference_tags,omitempty"`
}

// IsEmpty reports whether no constraint of any kind was captured.
func (c Constraints) IsEmpty() bool {
	return c.BudgetCeiling == nil && len(c.HealthTags) == 0 && len(c.PreferenceTags) == 0
}

// Merge overlays o on top of c and returns the result. o's budget wins when
// both are set; tag sets are unioned. Neither receiver is mutated.
func (c Constraints) Merge(o Constraints) Constraints {
	out := Constraints{BudgetCeiling: c.BudgetCeiling}
	if o.BudgetCeiling != nil {
		out.BudgetCeiling = o.BudgetCeiling
	}
	out.HealthTags = unionTags(c.HealthTags, o.HealthTags)
	out.PreferenceTags = unionTags(c.PreferenceTags, o.PreferenceTags)
	return out
}

func unionTags(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, t := range append(append([]string{}, a...), b...) {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Query is the per-turn retrieval input: the user's raw text plus the
// derived expansion terms and constraints. It is rebuilt every turn and
// discarded afterwards; only the fields copied into the conversation turn
// survive.
type Query struct {
	Raw           string      `json:"raw"`
	ExpandedTerms []string    `json:"expanded_terms,omitempty"`
	Constraints   Constraints `json:"constraints"`
}

// SearchText returns the text submitted to the embedding model for the
// expanded strategy: the raw query followed by the expansion terms.
func (q Query) SearchText() string {
	if len(q.ExpandedTerms) == 0 {
		return q.Raw
	}
	return q.Raw + " " + strings.Join(q.ExpandedTerms, " ")
}

// ReasoningStep records one completed round of the reasoning loop.
// Steps are immutable once appended and RoundIndex is strictly increasing.
type ReasoningStep struct {
	RoundIndex    int    `json:"round_index"`
	Thought       string `json:"thought"`
	Action        string `json:"action"`
	Observation   string `json:"observation"`
	PartialAnswer string `json:"partial_answer,omitempty"`
}

// Enhancement flags which pipeline features actually ran for a turn. They
// are persisted with the turn so degraded answers are distinguishable from
// fully enhanced ones.
type Enhancement string

const (
	EnhancementGPTSynonyms         Enhancement = "gpt-synonyms"
	EnhancementStaticSynonyms      Enhancement = "static-synonyms"
	EnhancementHybridRetrieval     Enhancement = "hybrid-retrieval"
	EnhancementPersonalization     Enhancement = "personalization"
	EnhancementBudgetRelaxed       Enhancement = "budget-relaxed"
	EnhancementDegradedGeneration  Enhancement = "degraded-generation"
	EnhancementProfileConstraints  Enhancement = "profile-constraints"
	EnhancementRelevanceLLMChecked Enhancement = "llm-relevance-check"
)

// EnhancementStrings converts a flag set to the persisted string form,
// deduplicated and in stable order.
func EnhancementStrings(flags []Enhancement) []string {
	if len(flags) == 0 {
		return nil
	}
	seen := make(map[Enhancement]struct{}, len(flags))
	var out []string
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}
