// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// terminalChatUI Tests
// =============================================================================

func TestNewChatUIWithWriter(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	if ui == nil {
		t.Fatal("NewChatUIWithWriter returned nil")
	}
}

// -----------------------------------------------------------------------------
// Header Tests
// -----------------------------------------------------------------------------

func TestChatUI_Header_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	ui.Header(HeaderInfo{CatalogSize: 120, SessionID: "sess-123", Offline: true})

	output := buf.String()
	if !strings.Contains(output, "CHAT_START: catalog=120") {
		t.Errorf("expected CHAT_START: catalog=120, got %q", output)
	}
	if !strings.Contains(output, "session=sess-123") {
		t.Errorf("expected session=sess-123, got %q", output)
	}
	if !strings.Contains(output, "offline=true") {
		t.Errorf("expected offline=true, got %q", output)
	}
}

func TestChatUI_Header_MinimalMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMinimal)

	ui.Header(HeaderInfo{CatalogSize: 42, ResumedTurns: 3})

	output := buf.String()
	if !strings.Contains(output, "42 products") {
		t.Errorf("expected catalog count, got %q", output)
	}
	if !strings.Contains(output, "3 earlier turns") {
		t.Errorf("expected resume notice, got %q", output)
	}
	if !strings.Contains(output, "/help") {
		t.Errorf("expected command hint, got %q", output)
	}
}

func TestChatUI_Header_FullMode_Offline(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityFull)

	ui.Header(HeaderInfo{CatalogSize: 10, Offline: true})

	output := buf.String()
	if !strings.Contains(output, "Somnus") {
		t.Errorf("expected banner title, got %q", output)
	}
	if !strings.Contains(output, "Offline mode") {
		t.Errorf("expected offline notice, got %q", output)
	}
}

// -----------------------------------------------------------------------------
// Answer / Recommendations Tests
// -----------------------------------------------------------------------------

func TestChatUI_Answer_MachineMode_EscapesNewlines(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	ui.Answer("first line\nsecond line")

	output := buf.String()
	if !strings.Contains(output, `ANSWER: first line\nsecond line`) {
		t.Errorf("expected escaped newline, got %q", output)
	}
	if strings.Count(output, "\n") != 1 {
		t.Errorf("machine answer must be a single line, got %q", output)
	}
}

func TestChatUI_Recommendations_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	ui.Recommendations([]Recommendation{
		{Rank: 1, ProductID: "prod_001", Score: 0.874, PriceKRW: 1950000, Rating: 4.6, Strategy: "vector"},
		{Rank: 2, ProductID: "prod_007", Score: 0.512, PriceKRW: 89000, Rating: 4.1, Strategy: "keyword"},
	})

	output := buf.String()
	if !strings.Contains(output, "RECOMMEND: rank=1 id=prod_001 score=0.874") {
		t.Errorf("expected first citation line, got %q", output)
	}
	if !strings.Contains(output, "rank=2 id=prod_007") {
		t.Errorf("expected second citation line, got %q", output)
	}
}

func TestChatUI_Recommendations_MinimalMode_FormatsPrice(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMinimal)

	ui.Recommendations([]Recommendation{
		{Rank: 1, Name: "딥슬립 메모리폼 매트리스", Brand: "슬립앤슬립", PriceKRW: 1950000, Rating: 4.6},
	})

	output := buf.String()
	if !strings.Contains(output, "195만원") {
		t.Errorf("expected price in 만원, got %q", output)
	}
	if !strings.Contains(output, "딥슬립 메모리폼 매트리스") {
		t.Errorf("expected product name, got %q", output)
	}
}

func TestChatUI_Recommendations_Empty_PrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityFull)

	ui.Recommendations(nil)

	if buf.Len() != 0 {
		t.Errorf("expected no output for empty citations, got %q", buf.String())
	}
}

// -----------------------------------------------------------------------------
// Redirect / Enhancements Tests
// -----------------------------------------------------------------------------

func TestChatUI_Redirect_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	ui.Redirect("food", "음식 추천은 제 전문이 아니에요.")

	output := buf.String()
	if !strings.Contains(output, "REDIRECT: category=food") {
		t.Errorf("expected redirect line, got %q", output)
	}
}

func TestChatUI_Redirect_MinimalMode_ShowsMessage(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMinimal)

	ui.Redirect("food", "음식 추천은 제 전문이 아니에요.")

	if !strings.Contains(buf.String(), "음식 추천은 제 전문이 아니에요.") {
		t.Errorf("expected redirect message, got %q", buf.String())
	}
}

func TestChatUI_Enhancements_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	ui.Enhancements([]string{"gpt-synonyms", "budget-relaxed"})

	if !strings.Contains(buf.String(), "ENHANCEMENTS: gpt-synonyms,budget-relaxed") {
		t.Errorf("expected enhancement line, got %q", buf.String())
	}
}

func TestChatUI_Enhancements_MinimalMode_Silent(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMinimal)

	ui.Enhancements([]string{"gpt-synonyms"})

	if buf.Len() != 0 {
		t.Errorf("minimal mode should suppress enhancements, got %q", buf.String())
	}
}

// -----------------------------------------------------------------------------
// Status / History / Session Tests
// -----------------------------------------------------------------------------

func TestChatUI_Status_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	ui.Status(SessionStats{
		Turns:                5,
		EnhancedTurns:        2,
		AvgProcessingSeconds: 1.25,
		AvgSimilarity:        0.731,
		Redirects:            1,
	})

	output := buf.String()
	if !strings.Contains(output, "STATUS: turns=5 enhanced=2") {
		t.Errorf("expected status counters, got %q", output)
	}
	if !strings.Contains(output, "avg_similarity=0.731") {
		t.Errorf("expected similarity, got %q", output)
	}
}

func TestChatUI_HistoryEntry_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	when := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ui.HistoryEntry(1, when, "허리 아픈데 매트리스 추천", "딥슬립 메모리폼을 권해드려요.")

	output := buf.String()
	if !strings.Contains(output, "HISTORY: index=1") {
		t.Errorf("expected history line, got %q", output)
	}
	if !strings.Contains(output, "2025-06-01T12:00:00Z") {
		t.Errorf("expected RFC3339 timestamp, got %q", output)
	}
}

func TestChatUI_SessionSaved_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	ui.SessionSaved("sessions/somnus_session_20250601_120000.json", 4)

	output := buf.String()
	if !strings.Contains(output, "SESSION_SAVED: path=sessions/somnus_session_20250601_120000.json turns=4") {
		t.Errorf("expected save confirmation, got %q", output)
	}
}

func TestChatUI_SessionEnd_MachineMode_NilStats(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	ui.SessionEnd(nil)

	if !strings.Contains(buf.String(), "SESSION_END:") {
		t.Errorf("expected SESSION_END line, got %q", buf.String())
	}
}

func TestChatUI_SessionEnd_FullMode_WithStats(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityFull)

	ui.SessionEnd(&SessionStats{
		Turns:         3,
		AvgSimilarity: 0.8,
		Started:       time.Now().Add(-2 * time.Minute),
	})

	output := buf.String()
	if !strings.Contains(output, "Good night") {
		t.Errorf("expected closing banner, got %q", output)
	}
	if !strings.Contains(output, "Turns:          3") {
		t.Errorf("expected turn count, got %q", output)
	}
}

// -----------------------------------------------------------------------------
// Error / Help Tests
// -----------------------------------------------------------------------------

func TestChatUI_Error_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	ui.Error(errors.New("retrieval timed out"))

	if !strings.Contains(buf.String(), "ERROR: retrieval timed out") {
		t.Errorf("expected error line, got %q", buf.String())
	}
}

func TestChatUI_Help_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf, PersonalityMachine)

	ui.Help([]CommandHelp{
		{Command: "/status", Description: "Show session statistics"},
		{Command: "/quit", Description: "End the session"},
	})

	output := buf.String()
	if !strings.Contains(output, "COMMAND: /status") {
		t.Errorf("expected /status entry, got %q", output)
	}
	if !strings.Contains(output, "COMMAND: /quit") {
		t.Errorf("expected /quit entry, got %q", output)
	}
}

// =============================================================================
// Formatting Helper Tests
// =============================================================================

func TestFormatKRW(t *testing.T) {
	tests := []struct {
		won  int
		want string
	}{
		{1950000, "195만원"},
		{89000, "8.9만원"},
		{10000, "1만원"},
		{9900, "9,900원"},
		{500, "500원"},
		{125000, "12.5만원"},
	}
	for _, tt := range tests {
		if got := FormatKRW(tt.won); got != tt.want {
			t.Errorf("FormatKRW(%d) = %q, want %q", tt.won, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate_RespectsRunes(t *testing.T) {
	got := truncate("라텍스 베개는 목 통증 완화에 좋아요", 10)
	if len([]rune(got)) != 10 {
		t.Errorf("expected 10 runes, got %d (%q)", len([]rune(got)), got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}
}
