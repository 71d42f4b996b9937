// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds the append-only conversation log and its JSON
// persistence.
//
// A Session is an explicit value owned by whoever drives the interaction
// loop (CLI or HTTP handler); there is no package-level session. Turns are
// immutable once appended, appends are serialized by an internal mutex,
// and Save rewrites the whole file each time rather than appending to it.
// The package depends on nothing else in the service so any layer can
// record into it.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrMalformed indicates a persisted session file that could not be
// understood. Callers should report it and continue with the empty
// session Load returns alongside it.
var ErrMalformed = errors.New("session file malformed")

// =============================================================================
// Types
// =============================================================================

// Turn is one completed exchange, immutable after Append.
type Turn struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	UserQuery  string    `json:"user_query"`
	AIResponse string    `json:"ai_response"`

	// ProcessingTime is the wall-clock duration of the turn in seconds.
	ProcessingTime float64 `json:"processing_time"`

	// AvgSimilarity is the mean retrieval score of the shown candidates,
	// in [0, 1]. Zero when the turn produced no candidates.
	AvgSimilarity float64 `json:"avg_similarity"`

	// EnhancementsUsed lists the pipeline enhancements that fired during
	// the turn, e.g. "gpt-synonyms" or "budget-relaxed".
	EnhancementsUsed []string `json:"enhancements_used"`
}

// Summary condenses a session for status displays.
type Summary struct {
	TotalTurns           int
	EnhancedTurns        int
	EnhancementRate      float64
	AvgProcessingSeconds float64
	SessionStart         time.Time
}

// Session is an append-only log of turns with session timing.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Appends are serialized, so two
// turns can never interleave; processing two turns of the same session
// concurrently is still the caller's mistake, the lock just keeps the log
// coherent if they do.
type Session struct {
	mu    sync.Mutex
	start time.Time
	end   time.Time
	turns []Turn
}

// sessionFile is the persisted envelope.
type sessionFile struct {
	SessionStart        time.Time `json:"session_start"`
	SessionEnd          time.Time `json:"session_end"`
	TotalConversations  int       `json:"total_conversations"`
	ConversationHistory []Turn    `json:"conversation_history"`
}

// =============================================================================
// Lifecycle
// =============================================================================

// New creates an empty session starting now.
func New() *Session {
	return &Session{start: time.Now().UTC()}
}

// Append stamps and records one turn, returning the stored value.
//
// # Description
//
// The turn's ID and Timestamp are assigned here when empty so callers only
// fill the content fields. The enhancements slice is copied and normalized
// to an empty (never nil) slice, keeping the stored turn independent of
// the caller's buffers and the persisted field a JSON array.
func (s *Session) Append(turn Turn) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	enhancements := make([]string, len(turn.EnhancementsUsed))
	copy(enhancements, turn.EnhancementsUsed)
	turn.EnhancementsUsed = enhancements

	s.turns = append(s.turns, turn)
	return turn
}

// Turns returns a copy of the log in append order.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of appended turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Start returns when the session began.
func (s *Session) Start() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start
}

// End returns the Close stamp, or the zero time while the session is open.
func (s *Session) End() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end
}

// Close stamps the session end. Later calls keep the first stamp.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		s.end = time.Now().UTC()
	}
}

// Reset drops all turns and the end stamp, keeping the start time.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.end = time.Time{}
}

// Summarize computes display statistics over the current log.
func (s *Session) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{TotalTurns: len(s.turns), SessionStart: s.start}
	if len(s.turns) == 0 {
		return sum
	}
	var totalSeconds float64
	for _, t := range s.turns {
		totalSeconds += t.ProcessingTime
		if len(t.EnhancementsUsed) > 0 {
			sum.EnhancedTurns++
		}
	}
	sum.EnhancementRate = float64(sum.EnhancedTurns) / float64(sum.TotalTurns)
	sum.AvgProcessingSeconds = totalSeconds / float64(sum.TotalTurns)
	return sum
}

// =============================================================================
// Persistence
// =============================================================================

// Save writes the whole session to path as JSON.
//
// # Description
//
// The file is rewritten in full on every call: marshal, write to a temp
// file in the target directory, fsync, then rename over path so a crash
// mid-save never leaves a truncated session. The parent directory is
// created when missing. session_end in the file is the Close stamp when
// the session was closed, otherwise the save time.
func (s *Session) Save(path string) error {
	if path == "" {
		return fmt.Errorf("save session: path must not be empty")
	}

	s.mu.Lock()
	end := s.end
	if end.IsZero() {
		end = time.Now().UTC()
	}
	file := sessionFile{
		SessionStart:        s.start,
		SessionEnd:          end,
		TotalConversations:  len(s.turns),
		ConversationHistory: make([]Turn, len(s.turns)),
	}
	copy(file.ConversationHistory, s.turns)
	s.mu.Unlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync session: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}

	success = true
	return nil
}

// Load reads a persisted session from path.
//
// # Description
//
// A missing file is a fresh start: Load returns an empty session and no
// error. A file that exists but cannot be parsed, or whose
// total_conversations disagrees with the history length, returns an empty
// session together with an ErrMalformed-wrapped error so the caller can
// report it and keep going. Only I/O failures on an existing file return
// a nil session.
//
// # Outputs
//
//   - *Session: Never nil except on I/O failure.
//   - error: nil, ErrMalformed-wrapped, or the read error.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return New(), fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if file.TotalConversations != len(file.ConversationHistory) {
		return New(), fmt.Errorf("%w: total_conversations %d does not match %d recorded turns",
			ErrMalformed, file.TotalConversations, len(file.ConversationHistory))
	}

	s := &Session{
		start: file.SessionStart,
		end:   file.SessionEnd,
		turns: file.ConversationHistory,
	}
	if s.start.IsZero() {
		s.start = time.Now().UTC()
	}
	return s, nil
}

// DefaultFilename names a session file after its end time, matching the
// somnus_session_YYYYMMDD_HHMMSS.json convention the CLI saves under.
func DefaultFilename(t time.Time) string {
	return fmt.Sprintf("somnus_session_%s.json", t.Format("20060102_150405"))
}
