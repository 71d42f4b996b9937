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
	"strings"
	"unicode"
)

// termWeights ranks the domain vocabulary for the lexical strategy. Higher
// weight means a hit on that term is a stronger relevance signal. Terms
// not listed score 1.0.
var termWeights = map[string]float64{
	// health signals dominate
	"허리":   5.0,
	"디스크":  4.5,
	"척추":   4.5,
	"요통":   4.5,
	"목":    3.5,
	"어깨":   3.0,
	"통증":   3.5,
	"자세":   2.5,
	"임산부":  3.0,
	"관절":   3.0,
	// construction and firmness
	"메모리폼":  4.0,
	"라텍스":   4.0,
	"스프링":   3.5,
	"하이브리드": 3.5,
	"딱딱":    3.5,
	"단단":    3.5,
	"하드":    3.0,
	"푹신":    3.0,
	"부드러":   3.0,
	"소프트":   2.5,
	// temperature and comfort
	"시원": 3.0,
	"쿨링": 3.0,
	"냉감": 2.5,
	"통풍": 2.5,
	"온열": 2.0,
	// product and value
	"매트리스": 3.0,
	"베개":   2.5,
	"토퍼":   2.5,
	"프레임":  2.0,
	"가성비":  2.5,
	"저렴":   2.0,
	"고급":   2.0,
	"만원":   2.0,
}

// stopTerms are query particles and filler that never describe products.
var stopTerms = map[string]struct{}{
	"추천":    {},
	"추천해주세요": {},
	"해주세요":  {},
	"주세요":   {},
	"해줘":    {},
	"주세용":   {},
	"좀":     {},
	"찾고":    {},
	"있어요":   {},
	"있습니다":  {},
	"어떤":    {},
	"어떻게":   {},
	"뭐가":    {},
	"무엇이":   {},
	"제일":    {},
	"가장":    {},
	"그리고":   {},
	"그런데":   {},
	"이하로":   {},
	"이하":    {},
	"이상":    {},
	"정도":    {},
}

// TokenizeQuery splits free text into scoring terms: whitespace separated,
// punctuation trimmed, stop terms removed. Duplicate terms are kept once.
func TokenizeQuery(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, stop := stopTerms[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// termWeight returns the vocabulary weight for a term, checking whether
// the term carries any weighted keyword as a substring (Korean queries
// agglutinate particles onto nouns, so exact-match lookup alone misses
// most hits). A compound like 허리디스크 carries several weighted keywords;
// the strongest wins so the result never depends on map iteration order.
func termWeight(term string) float64 {
	if w, ok := termWeights[term]; ok {
		return w
	}
	var best float64
	for kw, w := range termWeights {
		if w > best && strings.Contains(term, kw) {
			best = w
		}
	}
	if best == 0 {
		return 1.0
	}
	return best
}

// scoreLexical scores a record document against query terms. The result is
// normalized to [0,1]: the sum of weights for terms that hit, divided by
// the sum of weights for all query terms.
func scoreLexical(doc string, terms []string) float64 {
	if len(terms) == 0 || doc == "" {
		return 0
	}
	var hit, total float64
	for _, t := range terms {
		w := termWeight(t)
		total += w
		if strings.Contains(doc, t) {
			hit += w
		}
	}
	if total == 0 {
		return 0
	}
	return hit / total
}

// lexicalDoc builds the document string the lexical strategy scans.
func lexicalDoc(r *ProductRecord) string {
	parts := []string{r.Name, r.Brand, string(r.Type), r.SearchText}
	parts = append(parts, r.Features...)
	parts = append(parts, r.HealthSuitability...)
	return strings.Join(parts, " ")
}
