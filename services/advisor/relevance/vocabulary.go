// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relevance

import (
	"fmt"
	"sort"
	"strings"
)

// Category classifies why a query was blocked. The redirect copy depends on
// it: furniture questions get a nudge toward sleep furniture, everything
// else gets steered back to mattresses.
type Category string

const (
	CategoryFurniture  Category = "furniture"
	CategoryAppliances Category = "appliances"
	CategoryFood       Category = "food"
	CategoryWeather    Category = "weather"
	CategoryOther      Category = "other"
)

// allowTerms pass immediately. Only unambiguous sleep-product vocabulary
// belongs here; anything softer goes through the model check.
var allowTerms = []string{
	"매트리스", "침대", "베드", "잠자리", "수면", "잠", "자는",
	"메모리폼", "라텍스", "스프링", "본넬", "포켓스프링",
	"싱글", "더블", "퀸", "킹사이즈", "침대사이즈",
	"베개", "이불", "침구", "침실용품", "수면용품", "토퍼",
	// health complaints that in this domain read as mattress questions.
	// 목 alone is too loose (항목, 목표), so only its compounds qualify.
	"허리", "디스크", "척추", "요통", "목디스크", "거북목",
}

// blockTerms are unambiguously out of domain. Each maps to the category
// that picks the redirect message.
var blockTerms = map[string]Category{
	// other furniture
	"서랍장": CategoryFurniture, "옷장": CategoryFurniture, "붙박이장": CategoryFurniture,
	"화장대": CategoryFurniture, "책상": CategoryFurniture, "의자": CategoryFurniture,
	"소파": CategoryFurniture, "쇼파": CategoryFurniture, "테이블": CategoryFurniture,
	"식탁": CategoryFurniture, "다이닝테이블": CategoryFurniture, "선반": CategoryFurniture,
	"책장": CategoryFurniture, "진열장": CategoryFurniture, "수납장": CategoryFurniture,
	"신발장": CategoryFurniture, "행거": CategoryFurniture, "옷걸이": CategoryFurniture,
	"거울": CategoryFurniture, "스탠드": CategoryFurniture, "조명": CategoryFurniture,

	// appliances
	"냉장고": CategoryAppliances, "세탁기": CategoryAppliances, "에어컨": CategoryAppliances,
	"텔레비전": CategoryAppliances, "tv": CategoryAppliances, "전자레인지": CategoryAppliances,
	"오븐": CategoryAppliances, "청소기": CategoryAppliances, "공기청정기": CategoryAppliances,

	// food
	"배고파": CategoryFood, "밥": CategoryFood, "음식": CategoryFood, "먹는": CategoryFood,
	"식사": CategoryFood, "요리": CategoryFood, "맛있는": CategoryFood, "맛집": CategoryFood,
	"레시피": CategoryFood,

	// weather
	"날씨": CategoryWeather, "기온": CategoryWeather, "더위": CategoryWeather,
	"추위": CategoryWeather, "장마": CategoryWeather,

	// everything else that clearly is not a product question
	"영화": CategoryOther, "드라마": CategoryOther, "게임": CategoryOther,
	"소설": CategoryOther, "만화": CategoryOther, "축구": CategoryOther,
	"야구": CategoryOther, "농구": CategoryOther, "헬스": CategoryOther,
	"달리기": CategoryOther, "직장": CategoryOther, "회사": CategoryOther,
	"업무": CategoryOther, "회의": CategoryOther, "출근": CategoryOther,
	"연애": CategoryOther, "데이트": CategoryOther, "여행": CategoryOther,
	"휴가": CategoryOther, "관광": CategoryOther, "학교": CategoryOther,
	"시험": CategoryOther, "숙제": CategoryOther, "과제": CategoryOther,
	"투자": CategoryOther, "주식": CategoryOther, "부동산": CategoryOther,
	"대출": CategoryOther,
}

// matchAllow reports whether the lowercased query carries an allow term.
func matchAllow(query string) bool {
	for _, term := range allowTerms {
		if strings.Contains(query, term) {
			return true
		}
	}
	return false
}

// categoryPriority breaks ties when matched terms span categories; the
// furniture redirect carries the most useful nudge, so it wins.
var categoryPriority = []Category{
	CategoryFurniture, CategoryAppliances, CategoryFood, CategoryWeather, CategoryOther,
}

// matchBlock returns the matched block terms, sorted for deterministic
// output, and the highest-priority category among them.
func matchBlock(query string) ([]string, Category, bool) {
	var matched []string
	hitCategories := make(map[Category]bool, 2)
	for term, cat := range blockTerms {
		if strings.Contains(query, term) {
			matched = append(matched, term)
			hitCategories[cat] = true
		}
	}
	if len(matched) == 0 {
		return nil, "", false
	}
	sort.Strings(matched)
	for _, cat := range categoryPriority {
		if hitCategories[cat] {
			return matched, cat, true
		}
	}
	return matched, CategoryOther, true
}

// redirectFor builds the Korean guidance shown instead of a recommendation.
func redirectFor(category Category, matched []string) string {
	switch category {
	case CategoryFurniture:
		subject := "다른 가구"
		if len(matched) > 0 {
			subject = strings.Join(matched, ", ")
		}
		return fmt.Sprintf("죄송합니다. 저는 매트리스 전문 상담사입니다. %s와 같은 다른 가구는 추천드릴 수 없어요.\n\n매트리스, 침대, 또는 수면과 관련된 질문을 해주시면 도움을 드릴 수 있습니다! 😊", subject)
	case CategoryAppliances:
		return "죄송합니다. 가전제품은 제 전문 분야가 아니에요. 매트리스, 침대, 수면과 관련된 질문을 해주시면 도움드리겠습니다! 😊"
	case CategoryFood:
		return "죄송합니다. 음식 관련 질문에는 답변드리기 어려워요. 편안한 수면을 위한 매트리스 상담이 필요하시면 말씀해주세요! 😊"
	case CategoryWeather:
		return "죄송합니다. 날씨는 알려드릴 수 없지만, 계절에 맞는 매트리스나 침구 추천은 도와드릴 수 있어요! 😊"
	}
	return "죄송합니다. 저는 매트리스 전문 상담사입니다. 매트리스, 침대, 수면과 관련된 질문만 도움드릴 수 있어요.\n\n예를 들어 '허리에 좋은 매트리스', '예산 내 추천 매트리스' 같은 질문을 해주세요! 😊"
}

// tooShortRedirect is shown for queries below the minimum length.
const tooShortRedirect = "질문을 좀 더 구체적으로 해주세요. 매트리스에 대해 궁금한 점을 자세히 말씀해주시면 도움드리겠습니다! 😊"
