// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package main: the advisor chat runner.
//
// advisorChatRunner drives the interactive loop: read a line, route
// slash commands, otherwise run the turn through the reasoning loop and
// render the answer with its product citations. The session log is the
// single source of truth for history and is saved on /save, /quit, EOF,
// and graceful shutdown.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/Somnus/pkg/ux"
	"github.com/AleutianAI/Somnus/services/advisor/agent"
	"github.com/AleutianAI/Somnus/services/advisor/retrieval"
	"github.com/AleutianAI/Somnus/services/advisor/session"
)

// turnService is the slice of *agent.Loop the runner needs. Tests stub
// it to script whole conversations without a catalog or LLM.
type turnService interface {
	Run(ctx context.Context, query string, history *session.Session) (*agent.Result, error)
}

var chatCommands = []ux.CommandHelp{
	{Command: "/help", Description: "Show this command reference"},
	{Command: "/status", Description: "Show session statistics"},
	{Command: "/history", Description: "Show past turns of this session"},
	{Command: "/clear", Description: "Drop the conversation history"},
	{Command: "/save", Description: "Save the session now"},
	{Command: "/quit", Description: "Save and end the session (/exit, /q)"},
}

// =============================================================================
// advisorChatRunner
// =============================================================================

// advisorChatRunner implements ChatRunner over the reasoning loop.
//
// # Thread Safety
//
// Run is single-use and single-goroutine. Close is safe from any
// goroutine and idempotent.
type advisorChatRunner struct {
	service  turnService
	ui       ux.ChatUI
	input    InputReader
	sess     *session.Session
	savePath string
	header   ux.HeaderInfo
	logger   *slog.Logger

	redirects int
	started   time.Time
	saved     bool // a successful explicit or exit save happened

	closeFn func() error
	closed  bool
	mu      sync.Mutex
}

// AdvisorChatRunnerConfig configures NewAdvisorChatRunner.
type AdvisorChatRunnerConfig struct {
	// SessionPath resumes from and saves to this file. Empty means a
	// fresh session saved under the sessions directory on exit.
	SessionPath string

	// SessionsDir receives the default-named save when SessionPath is
	// empty.
	SessionsDir string
}

// NewAdvisorChatRunner creates the production runner over a built
// runtime. The runtime is closed with the runner.
func NewAdvisorChatRunner(rt *advisorRuntime, cfg AdvisorChatRunnerConfig) (ChatRunner, error) {
	sess := session.New()
	resumed := 0
	if cfg.SessionPath != "" {
		loaded, err := session.Load(cfg.SessionPath)
		if err != nil && loaded == nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if err != nil {
			// Malformed file: report and continue with the fresh session
			// Load returned.
			ux.Warning(fmt.Sprintf("Session file unreadable, starting fresh: %v", err))
		}
		sess = loaded
		resumed = sess.Len()
	}

	savePath := cfg.SessionPath
	if savePath == "" {
		savePath = filepath.Join(cfg.SessionsDir, session.DefaultFilename(time.Now()))
	}

	return &advisorChatRunner{
		service:  rt.Loop,
		ui:       ux.NewChatUI(),
		input:    NewInteractiveInputReader(50),
		sess:     sess,
		savePath: savePath,
		logger:   rt.Slog(),
		header: ux.HeaderInfo{
			CatalogSize:  len(rt.Records),
			SessionID:    filepath.Base(savePath),
			ResumedTurns: resumed,
			Offline:      rt.Offline,
			Model:        rt.Model,
		},
		closeFn: rt.Close,
	}, nil
}

// NewAdvisorChatRunnerWithDeps creates a runner with injected
// dependencies for tests.
func NewAdvisorChatRunnerWithDeps(
	service turnService,
	ui ux.ChatUI,
	input InputReader,
	sess *session.Session,
	savePath string,
) *advisorChatRunner {
	return &advisorChatRunner{
		service:  service,
		ui:       ui,
		input:    input,
		sess:     sess,
		savePath: savePath,
		logger:   slog.Default(),
	}
}

// Run executes the interactive loop.
//
// # Description
//
// Prints the banner, then loops: cancelled context triggers graceful
// shutdown; EOF or an exit command saves and ends normally; slash
// commands are handled locally; everything else runs one turn. Turn
// errors are shown and the loop continues, so one failed retrieval
// never kills the session.
func (r *advisorChatRunner) Run(ctx context.Context) error {
	r.started = time.Now()
	r.ui.Header(r.header)

	if p, ok := r.input.(PromptingInputReader); ok {
		p.SetPrompt("you › ")
	}

	for {
		select {
		case <-ctx.Done():
			return r.handleShutdown(ctx)
		default:
		}

		if _, ok := r.input.(PromptingInputReader); !ok {
			r.ui.Prompt()
		}
		input, err := r.input.ReadLine()
		if err != nil {
			if err == io.EOF {
				r.finishSession()
				return nil
			}
			r.logger.Error("failed to read input", slog.Any("error", err))
			return fmt.Errorf("read input: %w", err)
		}

		if input == "" {
			continue
		}

		if isExitCommand(input) {
			r.finishSession()
			return nil
		}
		if input[0] == '/' {
			r.handleCommand(input)
			continue
		}

		if err := r.handleTurn(ctx, input); err != nil {
			if ctx.Err() != nil {
				return r.handleShutdown(ctx)
			}
			r.ui.Error(err)
			continue
		}
	}
}

// handleCommand routes one slash command.
func (r *advisorChatRunner) handleCommand(input string) {
	switch input {
	case "/help":
		r.ui.Help(chatCommands)
	case "/status":
		r.ui.Status(r.stats())
	case "/history":
		turns := r.sess.Turns()
		if len(turns) == 0 {
			r.ui.Info("No turns yet.")
			return
		}
		for i, t := range turns {
			r.ui.HistoryEntry(i+1, t.Timestamp, t.UserQuery, t.AIResponse)
		}
	case "/clear":
		r.sess.Reset()
		r.redirects = 0
		r.ui.Info("기록을 지웠어요 · history cleared")
	case "/save":
		r.saveSession()
	default:
		r.ui.Error(fmt.Errorf("unknown command %q, try /help", input))
	}
}

// handleTurn runs one query through the loop and renders the result.
func (r *advisorChatRunner) handleTurn(ctx context.Context, input string) error {
	spin := ux.NewSpinner("생각 중...").WithType(ux.SpinnerMoon)
	spin.Start()

	start := time.Now()
	result, err := r.service.Run(ctx, input, r.sess)
	spin.Stop()
	if err != nil {
		return err
	}

	r.sess.Append(session.Turn{
		UserQuery:        input,
		AIResponse:       result.Answer,
		ProcessingTime:   time.Since(start).Seconds(),
		AvgSimilarity:    result.AvgSimilarity,
		EnhancementsUsed: result.Enhancements,
	})

	if result.Redirected {
		r.redirects++
		r.ui.Redirect(string(result.RedirectCategory), result.Answer)
		return nil
	}

	r.ui.Answer(result.Answer)
	r.ui.Recommendations(citations(result.Candidates))
	r.ui.Enhancements(result.Enhancements)
	return nil
}

// stats folds the session summary and the runner's own counters into the
// display shape.
func (r *advisorChatRunner) stats() ux.SessionStats {
	sum := r.sess.Summarize()

	var simSum float64
	var simCount int
	for _, t := range r.sess.Turns() {
		if t.AvgSimilarity > 0 {
			simSum += t.AvgSimilarity
			simCount++
		}
	}
	avgSim := 0.0
	if simCount > 0 {
		avgSim = simSum / float64(simCount)
	}

	started := r.started
	if started.IsZero() {
		started = sum.SessionStart
	}
	return ux.SessionStats{
		Turns:                sum.TotalTurns,
		EnhancedTurns:        sum.EnhancedTurns,
		AvgProcessingSeconds: sum.AvgProcessingSeconds,
		AvgSimilarity:        avgSim,
		Redirects:            r.redirects,
		Started:              started,
	}
}

// saveSession writes the session file and confirms via the UI.
func (r *advisorChatRunner) saveSession() {
	if err := r.sess.Save(r.savePath); err != nil {
		r.ui.Error(fmt.Errorf("save session: %w", err))
		return
	}
	r.saved = true
	r.ui.SessionSaved(r.savePath, r.sess.Len())
}

// finishSession closes, saves, and prints the end-of-session summary.
// Empty sessions are not written to disk.
func (r *advisorChatRunner) finishSession() {
	r.sess.Close()
	if r.sess.Len() > 0 {
		r.saveSession()
	}
	stats := r.stats()
	r.ui.SessionEnd(&stats)
}

// handleShutdown runs when the context is cancelled (SIGINT/SIGTERM).
// Saving gets its own 5s budget so a hung disk never blocks exit.
func (r *advisorChatRunner) handleShutdown(ctx context.Context) error {
	r.logger.Info("graceful shutdown initiated",
		slog.Int("turns", r.sess.Len()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.finishSession()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		r.logger.Warn("session save timed out during shutdown")
	}

	return ctx.Err()
}

// Close releases the runtime. Idempotent.
func (r *advisorChatRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.closeFn != nil {
		return r.closeFn()
	}
	return nil
}

// citations converts ranked candidates to the display shape.
func citations(cands []retrieval.RankedCandidate) []ux.Recommendation {
	out := make([]ux.Recommendation, 0, len(cands))
	for i, c := range cands {
		rec := ux.Recommendation{
			Rank:      i + 1,
			ProductID: c.ProductID,
			Score:     c.Score,
			Strategy:  string(c.Strategy),
		}
		if p := c.Product; p != nil {
			rec.Name = p.Name
			rec.Brand = p.Brand
			rec.Category = string(p.Type)
			rec.PriceKRW = p.Price
			rec.Rating = p.Rating
			rec.Snippet = p.TopReview()
		}
		out = append(out, rec)
	}
	return out
}
