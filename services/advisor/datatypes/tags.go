package datatypes

import "strings"

// Canonical constraint tags. Catalog ingestion and intent extraction both
// normalize to these so tag intersections are exact-match.
const (
	TagBackPain     = "back-pain"
	TagNeckPain     = "neck-pain"
	TagShoulderPain = "shoulder-pain"
	TagJointPain    = "joint-pain"
	TagPregnancy    = "pregnancy"

	TagFirm            = "firm"
	TagSoft            = "soft"
	TagCooling         = "cooling"
	TagWarm            = "warm"
	TagMotionIsolation = "motion-isolation"
	TagValue           = "value"
	TagPremium         = "premium"

	TagSingle = "single"
	TagDouble = "double"
	TagQueen  = "queen"
	TagKing   = "king"
)

// healthVocab maps Korean health phrases (and their common substrings) to
// canonical tags. Checked by substring so particles and compounds still hit
// (허리디스크, 허리가 아파요, ...).
var healthVocab = []struct {
	match string
	tag   string
}{
	{"허리", TagBackPain},
	{"디스크", TagBackPain},
	{"척추", TagBackPain},
	{"요통", TagBackPain},
	{"목", TagNeckPain},
	{"경추", TagNeckPain},
	{"어깨", TagShoulderPain},
	{"관절", TagJointPain},
	{"임산부", TagPregnancy},
	{"임신", TagPregnancy},
}

// preferenceVocab maps Korean preference phrases to canonical tags.
var preferenceVocab = []struct {
	match string
	tag   string
}{
	{"딱딱", TagFirm},
	{"단단", TagFirm},
	{"하드", TagFirm},
	{"푹신", TagSoft},
	{"부드러", TagSoft},
	{"소프트", TagSoft},
	{"시원", TagCooling},
	{"쿨링", TagCooling},
	{"냉감", TagCooling},
	{"통풍", TagCooling},
	{"따뜻", TagWarm},
	{"온열", TagWarm},
	{"흔들리지", TagMotionIsolation},
	{"모션", TagMotionIsolation},
	{"가성비", TagValue},
	{"저렴", TagValue},
	{"고급", TagPremium},
	{"프리미엄", TagPremium},
	{"싱글", TagSingle},
	{"더블", TagDouble},
	{"퀸", TagQueen},
	{"킹", TagKing},
}

// HealthTagsIn returns the canonical health tags present in text, in
// vocabulary order, deduplicated.
func HealthTagsIn(text string) []string {
	return tagsIn(text, healthVocab)
}

// PreferenceTagsIn returns the canonical preference tags present in text.
func PreferenceTagsIn(text string) []string {
	return tagsIn(text, preferenceVocab)
}

func tagsIn(text string, vocab []struct{ match, tag string }) []string {
	seen := make(map[string]struct{}, 4)
	var out []string
	for _, v := range vocab {
		if !strings.Contains(text, v.match) {
			continue
		}
		if _, dup := seen[v.tag]; dup {
			continue
		}
		seen[v.tag] = struct{}{}
		out = append(out, v.tag)
	}
	return out
}

// tagKorean holds one representative Korean search term per canonical tag,
// used when a tag has to be folded back into query text (refinement rounds,
// prompt summaries). Stems from the vocab tables are avoided here because a
// bare stem like 부드러 reads wrong in a query.
var tagKorean = map[string]string{
	TagBackPain:        "허리",
	TagNeckPain:        "목",
	TagShoulderPain:    "어깨",
	TagJointPain:       "관절",
	TagPregnancy:       "임산부",
	TagFirm:            "딱딱한",
	TagSoft:            "푹신한",
	TagCooling:         "시원한",
	TagWarm:            "따뜻한",
	TagMotionIsolation: "모션분리",
	TagValue:           "가성비",
	TagPremium:         "프리미엄",
	TagSingle:          "싱글",
	TagDouble:          "더블",
	TagQueen:           "퀸",
	TagKing:            "킹",
}

// KoreanForTag returns the representative Korean term for a canonical tag,
// or the tag itself when none is known.
func KoreanForTag(tag string) string {
	if k, ok := tagKorean[tag]; ok {
		return k
	}
	return tag
}

// NormalizeTag canonicalizes one catalog-side tag: known Korean phrases map
// to their canonical tag, everything else is lowercased and trimmed as-is.
func NormalizeTag(tag string) string {
	t := strings.TrimSpace(tag)
	if t == "" {
		return ""
	}
	for _, v := range healthVocab {
		if strings.Contains(t, v.match) {
			return v.tag
		}
	}
	for _, v := range preferenceVocab {
		if strings.Contains(t, v.match) {
			return v.tag
		}
	}
	return strings.ToLower(t)
}
