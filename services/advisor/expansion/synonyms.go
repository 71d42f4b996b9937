// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package expansion

import "strings"

// staticSynonymVocab maps common mattress-domain keywords to retrieval
// synonyms for the offline fallback path. Entries are checked in order by
// substring match against the lowercased query, so more specific keywords
// (허리디스크) come before their prefixes (허리).
var staticSynonymVocab = []struct {
	match    string
	synonyms []string
}{
	{"허리디스크", []string{"디스크", "척추", "체압분산", "지지력"}},
	{"허리", []string{"척추", "요추", "디스크"}},
	{"디스크", []string{"척추", "체압분산", "지지력"}},
	{"목", []string{"경추", "목통증"}},
	{"어깨", []string{"어깨결림", "통증"}},
	{"관절", []string{"체압분산", "통증"}},
	{"임산부", []string{"임신", "산모", "체압분산"}},
	{"딱딱한", []string{"단단한", "하드", "탄탄한"}},
	{"딱딱", []string{"단단한", "하드", "탄탄한"}},
	{"단단한", []string{"딱딱한", "하드", "지지력"}},
	{"푹신한", []string{"부드러운", "소프트", "안락한"}},
	{"푹신", []string{"부드러운", "소프트", "안락한"}},
	{"부드러운", []string{"푹신한", "소프트"}},
	{"시원한", []string{"쿨링", "냉감", "통풍"}},
	{"시원", []string{"쿨링", "냉감", "통풍"}},
	{"더위", []string{"쿨링", "냉감", "통풍"}},
	{"땀", []string{"통풍", "쿨링", "냉감"}},
	{"따뜻한", []string{"온열", "보온"}},
	{"부부", []string{"커플", "흔들림", "모션"}},
	{"신혼", []string{"커플", "퀸", "킹"}},
	{"가성비", []string{"저렴한", "합리적인", "실속"}},
	{"저렴한", []string{"가성비", "실속"}},
	{"프리미엄", []string{"고급", "호텔식"}},
	{"매트리스", []string{"침대", "베드", "잠자리"}},
}

// staticSynonymsFor returns table-driven expansion terms for query, capped
// at maxTerms. Matching is substring-based on the lowercased query; a term
// already present in the query is skipped.
func staticSynonymsFor(query string, maxTerms int) []string {
	if maxTerms <= 0 {
		return nil
	}
	lower := normalizeQuery(query)
	if lower == "" {
		return nil
	}

	seen := make(map[string]struct{})
	terms := make([]string, 0, maxTerms)
	for _, entry := range staticSynonymVocab {
		if !strings.Contains(lower, entry.match) {
			continue
		}
		for _, synonym := range entry.synonyms {
			if len(terms) >= maxTerms {
				return terms
			}
			norm := normalizeQuery(synonym)
			if _, dup := seen[norm]; dup || strings.Contains(lower, norm) {
				continue
			}
			seen[norm] = struct{}{}
			terms = append(terms, synonym)
		}
	}
	return terms
}
