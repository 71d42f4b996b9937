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
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// =============================================================================
// Types
// =============================================================================

// HeaderInfo carries everything the chat banner displays.
type HeaderInfo struct {
	// CatalogSize is the number of products available for retrieval.
	CatalogSize int

	// SessionID identifies the session, empty for an anonymous session.
	SessionID string

	// ResumedTurns is the number of turns restored from a saved session,
	// zero for a fresh session.
	ResumedTurns int

	// Offline is true when the advisor runs without an LLM backend.
	Offline bool

	// Model names the chat model in use, empty when offline.
	Model string
}

// Recommendation is one product citation shown beneath an answer.
type Recommendation struct {
	Rank      int
	ProductID string
	Name      string
	Brand     string
	Category  string
	PriceKRW  int
	Rating    float64
	Score     float64
	Strategy  string
	Snippet   string
}

// CommandHelp describes one slash command for the help display.
type CommandHelp struct {
	Command     string
	Description string
}

// SessionStats summarizes a chat session for the end-of-session display.
type SessionStats struct {
	Turns                int
	EnhancedTurns        int
	AvgProcessingSeconds float64
	AvgSimilarity        float64
	Redirects            int
	Started              time.Time
}

// Duration returns the elapsed session time.
func (s *SessionStats) Duration() time.Duration {
	if s.Started.IsZero() {
		return 0
	}
	return time.Since(s.Started)
}

// =============================================================================
// ChatUI
// =============================================================================

// ChatUI renders the interactive advisor conversation.
//
// # Description
//
// Implementations switch on the active personality level: machine mode
// emits stable KEY: value lines for scripting, minimal mode plain text,
// and standard/full modes styled terminal output. All methods write
// synchronously; none of them block on user input.
type ChatUI interface {
	// Header prints the session banner once at startup.
	Header(info HeaderInfo)

	// Prompt prints the input prompt prefix.
	Prompt()

	// Answer prints the assistant's reply for one turn.
	Answer(text string)

	// Recommendations prints the product citations behind an answer.
	Recommendations(items []Recommendation)

	// Enhancements prints the pipeline enhancements that fired this turn.
	Enhancements(tags []string)

	// Redirect prints an off-domain redirect notice.
	Redirect(category, message string)

	// Status prints session statistics for the /status command.
	Status(stats SessionStats)

	// HistoryEntry prints one past turn for the /history command.
	HistoryEntry(index int, when time.Time, query, answer string)

	// Info prints a neutral informational line.
	Info(message string)

	// Error prints a non-fatal turn error.
	Error(err error)

	// SessionSaved confirms a session write.
	SessionSaved(path string, turns int)

	// SessionEnd prints the closing summary.
	SessionEnd(stats *SessionStats)

	// Help prints the slash-command reference.
	Help(commands []CommandHelp)
}

// terminalChatUI renders to a writer, stdout in production.
type terminalChatUI struct {
	w           io.Writer
	personality PersonalityLevel
}

// NewChatUI creates a ChatUI writing to stdout with the current
// personality.
func NewChatUI() ChatUI {
	return &terminalChatUI{w: os.Stdout, personality: GetPersonality().Level}
}

// NewChatUIWithWriter creates a ChatUI with an explicit writer and
// personality. Tests use this to capture output.
func NewChatUIWithWriter(w io.Writer, personality PersonalityLevel) ChatUI {
	return &terminalChatUI{w: w, personality: personality}
}

// =============================================================================
// Rendering
// =============================================================================

func (ui *terminalChatUI) Header(info HeaderInfo) {
	switch ui.personality {
	case PersonalityMachine:
		fmt.Fprintf(ui.w, "CHAT_START: catalog=%d session=%s resumed=%d offline=%t\n",
			info.CatalogSize, info.SessionID, info.ResumedTurns, info.Offline)
	case PersonalityMinimal:
		fmt.Fprintf(ui.w, "Somnus — sleep product advisor (%d products)\n", info.CatalogSize)
		if info.ResumedTurns > 0 {
			fmt.Fprintf(ui.w, "Resumed session with %d earlier turns.\n", info.ResumedTurns)
		}
		fmt.Fprintln(ui.w, "Type /help for commands, /quit to end.")
	default:
		title := Styles.Title.Render(string(IconMoon) + " Somnus")
		sub := Styles.Subtitle.Render("수면 용품 상담사 · sleep product advisor")
		lines := []string{title, sub, ""}
		lines = append(lines, fmt.Sprintf("Catalog: %s products",
			Styles.Bold.Render(fmt.Sprintf("%d", info.CatalogSize))))
		if info.Offline {
			lines = append(lines, Styles.Warning.Render("Offline mode: static expansion, local embeddings"))
		} else if info.Model != "" {
			lines = append(lines, "Model: "+Styles.Muted.Render(info.Model))
		}
		if info.SessionID != "" {
			lines = append(lines, "Session: "+Styles.Muted.Render(info.SessionID))
		}
		if info.ResumedTurns > 0 {
			lines = append(lines, Styles.Success.Render(
				fmt.Sprintf("Resumed with %d earlier turns", info.ResumedTurns)))
		}
		lines = append(lines, "", Styles.Muted.Render("Type /help for commands, /quit to end."))
		fmt.Fprintln(ui.w, Styles.Box.Width(62).Render(strings.Join(lines, "\n")))
	}
}

func (ui *terminalChatUI) Prompt() {
	switch ui.personality {
	case PersonalityMachine:
		// No prompt decoration; input comes over a pipe anyway.
	case PersonalityMinimal:
		fmt.Fprint(ui.w, "> ")
	default:
		fmt.Fprint(ui.w, Styles.Highlight.Render("you")+Styles.Muted.Render(" › "))
	}
}

func (ui *terminalChatUI) Answer(text string) {
	switch ui.personality {
	case PersonalityMachine:
		fmt.Fprintf(ui.w, "ANSWER: %s\n", strings.ReplaceAll(text, "\n", "\\n"))
	case PersonalityMinimal:
		fmt.Fprintf(ui.w, "\n%s\n\n", text)
	default:
		label := Styles.Subtitle.Render(string(IconMoon) + " somnus")
		fmt.Fprintf(ui.w, "\n%s\n%s\n\n", label, text)
	}
}

func (ui *terminalChatUI) Recommendations(items []Recommendation) {
	if len(items) == 0 {
		return
	}
	switch ui.personality {
	case PersonalityMachine:
		for _, r := range items {
			fmt.Fprintf(ui.w, "RECOMMEND: rank=%d id=%s score=%.3f price=%d rating=%.1f strategy=%s\n",
				r.Rank, r.ProductID, r.Score, r.PriceKRW, r.Rating, r.Strategy)
		}
	case PersonalityMinimal:
		for _, r := range items {
			fmt.Fprintf(ui.w, "%d. %s (%s) — %s, rating %.1f\n",
				r.Rank, r.Name, r.Brand, FormatKRW(r.PriceKRW), r.Rating)
		}
	default:
		for _, r := range items {
			head := fmt.Sprintf("%s %s %s",
				Styles.Bold.Render(fmt.Sprintf("%d.", r.Rank)),
				Styles.Highlight.Render(r.Name),
				Styles.Muted.Render("("+r.Brand+")"))
			fmt.Fprintln(ui.w, head)
			fmt.Fprintf(ui.w, "   %s · rating %.1f · match %s\n",
				FormatKRW(r.PriceKRW), r.Rating,
				Styles.Success.Render(fmt.Sprintf("%.0f%%", r.Score*100)))
			if r.Snippet != "" {
				fmt.Fprintf(ui.w, "   %s\n", Styles.Muted.Render("“"+truncate(r.Snippet, 70)+"”"))
			}
		}
		fmt.Fprintln(ui.w)
	}
}

func (ui *terminalChatUI) Enhancements(tags []string) {
	if len(tags) == 0 {
		return
	}
	switch ui.personality {
	case PersonalityMachine:
		fmt.Fprintf(ui.w, "ENHANCEMENTS: %s\n", strings.Join(tags, ","))
	case PersonalityMinimal:
		// Too noisy for minimal mode.
	default:
		fmt.Fprintf(ui.w, "%s %s\n", Styles.Muted.Render(string(IconStar)),
			Styles.Muted.Render("enhanced: "+strings.Join(tags, ", ")))
	}
}

func (ui *terminalChatUI) Redirect(category, message string) {
	switch ui.personality {
	case PersonalityMachine:
		fmt.Fprintf(ui.w, "REDIRECT: category=%s\n", category)
	case PersonalityMinimal:
		fmt.Fprintf(ui.w, "\n%s\n\n", message)
	default:
		fmt.Fprintf(ui.w, "\n%s %s\n%s\n\n", IconCloud,
			Styles.Warning.Render("Outside my lane ("+category+")"), message)
	}
}

func (ui *terminalChatUI) Status(stats SessionStats) {
	switch ui.personality {
	case PersonalityMachine:
		fmt.Fprintf(ui.w, "STATUS: turns=%d enhanced=%d avg_processing=%.2f avg_similarity=%.3f redirects=%d elapsed=%s\n",
			stats.Turns, stats.EnhancedTurns, stats.AvgProcessingSeconds,
			stats.AvgSimilarity, stats.Redirects, formatDuration(stats.Duration()))
	default:
		rows := []string{
			fmt.Sprintf("Turns:            %d", stats.Turns),
			fmt.Sprintf("Enhanced turns:   %d", stats.EnhancedTurns),
			fmt.Sprintf("Avg processing:   %.2fs", stats.AvgProcessingSeconds),
			fmt.Sprintf("Avg similarity:   %.3f", stats.AvgSimilarity),
			fmt.Sprintf("Redirects:        %d", stats.Redirects),
			fmt.Sprintf("Elapsed:          %s", formatDuration(stats.Duration())),
		}
		if ui.personality == PersonalityMinimal {
			fmt.Fprintln(ui.w, strings.Join(rows, "\n"))
			return
		}
		fmt.Fprintln(ui.w, Styles.InfoBox.Width(40).Render(
			Styles.Title.Render("Session status")+"\n"+strings.Join(rows, "\n")))
	}
}

func (ui *terminalChatUI) HistoryEntry(index int, when time.Time, query, answer string) {
	switch ui.personality {
	case PersonalityMachine:
		fmt.Fprintf(ui.w, "HISTORY: index=%d ts=%s query=%q\n",
			index, when.Format(time.RFC3339), query)
	case PersonalityMinimal:
		fmt.Fprintf(ui.w, "[%d] %s\n    %s\n", index, query, truncate(answer, 80))
	default:
		fmt.Fprintf(ui.w, "%s %s %s\n", Styles.Bold.Render(fmt.Sprintf("[%d]", index)),
			Styles.Muted.Render(formatRelativeTime(when)), query)
		fmt.Fprintf(ui.w, "    %s\n", Styles.Muted.Render(truncate(answer, 80)))
	}
}

func (ui *terminalChatUI) Info(message string) {
	switch ui.personality {
	case PersonalityMachine:
		fmt.Fprintf(ui.w, "INFO: %s\n", message)
	default:
		fmt.Fprintf(ui.w, "%s %s\n", Styles.Muted.Render("│"), message)
	}
}

func (ui *terminalChatUI) Error(err error) {
	switch ui.personality {
	case PersonalityMachine:
		fmt.Fprintf(ui.w, "ERROR: %v\n", err)
	case PersonalityMinimal:
		fmt.Fprintf(ui.w, "%s %v\n", IconError.Render(), err)
	default:
		fmt.Fprintf(ui.w, "%s %s\n", IconError.Render(),
			Styles.Error.Render(err.Error()))
	}
}

func (ui *terminalChatUI) SessionSaved(path string, turns int) {
	switch ui.personality {
	case PersonalityMachine:
		fmt.Fprintf(ui.w, "SESSION_SAVED: path=%s turns=%d\n", path, turns)
	default:
		fmt.Fprintf(ui.w, "%s Session saved to %s (%d turns)\n",
			IconSuccess.Render(), Styles.Bold.Render(path), turns)
	}
}

func (ui *terminalChatUI) SessionEnd(stats *SessionStats) {
	switch ui.personality {
	case PersonalityMachine:
		if stats == nil {
			fmt.Fprintln(ui.w, "SESSION_END:")
			return
		}
		fmt.Fprintf(ui.w, "SESSION_END: turns=%d enhanced=%d avg_similarity=%.3f duration=%s\n",
			stats.Turns, stats.EnhancedTurns, stats.AvgSimilarity,
			formatDuration(stats.Duration()))
	case PersonalityMinimal:
		if stats != nil && stats.Turns > 0 {
			fmt.Fprintf(ui.w, "Session ended: %d turns in %s.\n",
				stats.Turns, formatDuration(stats.Duration()))
		} else {
			fmt.Fprintln(ui.w, "Session ended.")
		}
	default:
		lines := []string{Styles.Title.Render(string(IconMoon) + " Good night")}
		if stats != nil && stats.Turns > 0 {
			lines = append(lines,
				fmt.Sprintf("Turns:          %d", stats.Turns),
				fmt.Sprintf("Enhanced:       %d", stats.EnhancedTurns),
				fmt.Sprintf("Avg similarity: %.3f", stats.AvgSimilarity),
				fmt.Sprintf("Duration:       %s", formatDuration(stats.Duration())),
			)
		}
		lines = append(lines, "", Styles.Muted.Render("편안한 밤 되세요 · sleep well"))
		fmt.Fprintln(ui.w, Styles.Box.Width(40).Render(strings.Join(lines, "\n")))
	}
}

func (ui *terminalChatUI) Help(commands []CommandHelp) {
	switch ui.personality {
	case PersonalityMachine:
		for _, c := range commands {
			fmt.Fprintf(ui.w, "COMMAND: %s\t%s\n", c.Command, c.Description)
		}
	case PersonalityMinimal:
		for _, c := range commands {
			fmt.Fprintf(ui.w, "%-10s %s\n", c.Command, c.Description)
		}
	default:
		var b strings.Builder
		b.WriteString(Styles.Title.Render("Commands"))
		for _, c := range commands {
			b.WriteString(fmt.Sprintf("\n%s  %s",
				Styles.Highlight.Render(fmt.Sprintf("%-10s", c.Command)),
				c.Description))
		}
		fmt.Fprintln(ui.w, Styles.InfoBox.Width(50).Render(b.String()))
	}
}

// =============================================================================
// Formatting helpers
// =============================================================================

// FormatKRW renders a won amount the way Korean listings do: whole
// 만원 (10,000 won) units when the price divides evenly, one decimal
// place otherwise, and plain comma-grouped won below 만원.
func FormatKRW(won int) string {
	if won < 10000 {
		return fmt.Sprintf("%s원", groupDigits(won))
	}
	man := float64(won) / 10000
	if won%10000 == 0 {
		return fmt.Sprintf("%.0f만원", man)
	}
	return fmt.Sprintf("%.1f만원", man)
}

func groupDigits(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
