// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/Somnus/services/advisor/catalog"
	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
	"github.com/AleutianAI/Somnus/services/advisor/llm"
	"github.com/AleutianAI/Somnus/services/advisor/retrieval"
)

// noMatchAnswer is returned when no candidate survives the constraint
// filter even after budget relaxation.
const noMatchAnswer = "죄송합니다. 현재 조건에 맞는 매트리스를 찾을 수 없습니다. 조건을 조정해서 다시 검색해보시겠어요?"

// generationSystemPrompt is the consultation prompt. The %s verb receives
// the confidence marker the stop policy looks for.
const generationSystemPrompt = `15년 경력 매트리스 전문가로서 고객에게 최적화된 상담을 제공하세요.

Few-shot 응답 예시:

예시 1:
고객 질문: "허리 디스크 환자용 딱딱한 매트리스 추천"
검색 결과: 에이스 BPA 1000 하드 (69만원, 본넬스프링, 척추지지)
전문가 응답: "허리 디스크로 고생하고 계시는군요. '에이스 BPA 1000 하드'를 추천드립니다. 69만원으로 본넬스프링 구조의 딱딱한 타입이며, 척추지지력이 뛰어나 디스크 환자분들께 효과적입니다. 하드 타입이라 허리가 과도하게 꺾이지 않도록 도와주고, 체중 분산도 우수합니다."

예시 2:
고객 질문: "더위 타는 사람용 시원한 매트리스"
검색 결과: 퍼플 그리드 (180만원, 젤그리드, 쿨링)
전문가 응답: "더위를 많이 타시는군요. '퍼플 그리드'를 추천드립니다. 180만원으로 프리미엄이지만 젤그리드 기술로 탁월한 쿨링 효과를 제공합니다. 독특한 그리드 구조가 공기 순환을 극대화하여 여름철에도 시원하게 주무실 수 있습니다."

응답 가이드라인:
1. 고객 상황 공감 표현
2. 추천 매트리스명과 가격 명시
3. 핵심 특징 2-3개 설명
4. 고객 요구사항에 맞는 구체적 이유
5. 전문적이면서 친근한 톤, 재치있으면서 칭찬하는 톤
6. 300-400자 내외
7. 추천이 고객의 조건을 모두 충족한다고 판단되면 답변 맨 끝에 %s 를 붙이세요.`

// synthesizer turns ranked candidates into a consultation answer.
//
// # Limitations
//
// synthesize never returns an error: a generation failure is retried once
// after a short backoff and then degrades to a template built from the top
// candidate's fields, so the loop always has an answer to emit.
type synthesizer struct {
	generate llm.GenerateFunc
	config   Config
	logger   *slog.Logger
}

func (s *synthesizer) synthesize(ctx context.Context, userQuery string, shown []retrieval.RankedCandidate, constraints datatypes.Constraints) Synthesis {
	if len(shown) == 0 {
		return Synthesis{Answer: noMatchAnswer}
	}
	if s.generate == nil {
		return Synthesis{Answer: templatedAnswer(shown[0].Product), Degraded: true}
	}

	prompt := buildGenerationPrompt(userQuery, shown, constraints)
	raw, err := s.callWithRetry(ctx, prompt)
	if err != nil {
		s.logger.Warn("Answer generation degraded to the field template", "error", err)
		return Synthesis{Answer: templatedAnswer(shown[0].Product), Degraded: true}
	}

	answer, confident := extractConfidence(raw)
	if answer == "" {
		s.logger.Warn("Answer generation returned empty text, using the field template")
		return Synthesis{Answer: templatedAnswer(shown[0].Product), Degraded: true}
	}
	return Synthesis{Answer: answer, Confident: confident}
}

// callWithRetry makes the generation call with one backoff retry. A parent
// context cancellation suppresses the retry so an aborted turn stops
// issuing external calls.
func (s *synthesizer) callWithRetry(ctx context.Context, prompt string) (string, error) {
	timeout := time.Duration(s.config.GenTimeoutMs) * time.Millisecond

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	out, err := s.generate(callCtx, prompt, s.config.GenMaxTokens)
	cancel()
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", err
	}

	s.logger.Warn("Answer generation failed, retrying once", "error", err)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(time.Duration(s.config.RetryBackoffMs) * time.Millisecond):
	}

	callCtx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.generate(callCtx, prompt, s.config.GenMaxTokens)
}

// extractConfidence strips the confidence marker and reports its presence.
func extractConfidence(raw string) (string, bool) {
	confident := strings.Contains(raw, ConfidenceMarker)
	answer := strings.TrimSpace(strings.ReplaceAll(raw, ConfidenceMarker, ""))
	return answer, confident
}

// buildGenerationPrompt grounds the consultation in the top candidate with
// the runner-ups listed as alternatives.
func buildGenerationPrompt(userQuery string, shown []retrieval.RankedCandidate, constraints datatypes.Constraints) string {
	top := shown[0]
	rec := top.Product

	var b strings.Builder
	fmt.Fprintf(&b, generationSystemPrompt, ConfidenceMarker)
	fmt.Fprintf(&b, "\n\n고객 질문: %s\n\n추천 매트리스:\n", userQuery)
	fmt.Fprintf(&b, "- 이름: %s\n- 브랜드: %s\n- 가격: %d만원\n- 타입: %s\n",
		rec.Name, rec.Brand, rec.PriceManwon(), rec.Type.Korean())
	if len(rec.Features) > 0 {
		fmt.Fprintf(&b, "- 특징: %s\n", koreanTags(rec.Features, 3))
	}
	if len(rec.HealthSuitability) > 0 {
		fmt.Fprintf(&b, "- 추천대상: %s\n", koreanTags(rec.HealthSuitability, 2))
	}
	fmt.Fprintf(&b, "- 평점: %.1f\n- 유사도: %.3f\n", rec.Rating, top.Score)
	if review := rec.TopReview(); review != "" {
		fmt.Fprintf(&b, "- 대표 후기: %s\n", review)
	}

	var alternates []string
	for _, cand := range shown[1:] {
		if cand.Product == nil {
			continue
		}
		alternates = append(alternates, fmt.Sprintf("%s (%d만원)", cand.Product.Name, cand.Product.PriceManwon()))
	}
	if len(alternates) > 0 {
		fmt.Fprintf(&b, "\n대체 후보: %s\n", strings.Join(alternates, ", "))
	}

	if summary := constraintSummary(constraints); summary != "" {
		fmt.Fprintf(&b, "\n고객 요구사항: %s\n", summary)
	}
	return b.String()
}

// constraintSummary renders the effective constraints for the prompt, e.g.
// "예산 50만원 이하 | 건강: 허리 | 선호: 딱딱한".
func constraintSummary(constraints datatypes.Constraints) string {
	var parts []string
	if c := constraints.BudgetCeiling; c != nil && *c > 0 {
		parts = append(parts, fmt.Sprintf("예산 %d만원 이하", *c/10000))
	}
	if len(constraints.HealthTags) > 0 {
		parts = append(parts, "건강: "+koreanTags(constraints.HealthTags, len(constraints.HealthTags)))
	}
	if len(constraints.PreferenceTags) > 0 {
		parts = append(parts, "선호: "+koreanTags(constraints.PreferenceTags, len(constraints.PreferenceTags)))
	}
	return strings.Join(parts, " | ")
}

// templatedAnswer is the degraded answer built from catalog fields alone.
func templatedAnswer(rec *catalog.ProductRecord) string {
	if rec == nil {
		return noMatchAnswer
	}
	features := "우수한 품질"
	if len(rec.Features) > 0 {
		features = koreanTags(rec.Features, 2)
	}
	answer := fmt.Sprintf("%s을 추천드립니다. %d만원, 평점 %.1f점으로 %s가 특징이며, 고객님의 요구사항에 적합합니다.",
		rec.Name, rec.PriceManwon(), rec.Rating, features)
	if review := rec.TopReview(); review != "" {
		answer += fmt.Sprintf(" 실제 구매 후기: \"%s\"", review)
	}
	return answer
}

// koreanTags joins up to limit tags in their Korean display form.
func koreanTags(tags []string, limit int) string {
	n := min(limit, len(tags))
	out := make([]string, 0, n)
	for _, t := range tags[:n] {
		out = append(out, datatypes.KoreanForTag(t))
	}
	return strings.Join(out, ", ")
}
