// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTurn(query, answer string) Turn {
	return Turn{
		UserQuery:        query,
		AIResponse:       answer,
		ProcessingTime:   1.25,
		AvgSimilarity:    0.82,
		EnhancementsUsed: []string{"gpt-synonyms", "hybrid-retrieval"},
	}
}

// =============================================================================
// Append Tests
// =============================================================================

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	s := New()

	stored := s.Append(Turn{UserQuery: "허리 아픈 사람 매트리스", AIResponse: "답변"})

	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.Timestamp.IsZero())

	turns := s.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, stored.ID, turns[0].ID)
}

func TestAppendKeepsOrder(t *testing.T) {
	s := New()
	queries := []string{"첫 번째 질문", "두 번째 질문", "세 번째 질문"}

	for _, q := range queries {
		s.Append(Turn{UserQuery: q, AIResponse: "답변"})
	}

	require.Equal(t, len(queries), s.Len())
	turns := s.Turns()
	for i, q := range queries {
		assert.Equal(t, q, turns[i].UserQuery)
	}
}

func TestAppendCopiesEnhancements(t *testing.T) {
	s := New()
	enhancements := []string{"gpt-synonyms"}

	s.Append(Turn{UserQuery: "질문", EnhancementsUsed: enhancements})
	enhancements[0] = "mutated"

	turns := s.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, []string{"gpt-synonyms"}, turns[0].EnhancementsUsed)
}

func TestAppendNormalizesNilEnhancements(t *testing.T) {
	s := New()

	stored := s.Append(Turn{UserQuery: "질문"})

	assert.NotNil(t, stored.EnhancementsUsed)
	assert.Empty(t, stored.EnhancementsUsed)
}

func TestConcurrentAppends(t *testing.T) {
	s := New()
	const n = 32

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(Turn{UserQuery: "동시 질문", AIResponse: "답변"})
		}()
	}
	wg.Wait()

	assert.Equal(t, n, s.Len())
}

// =============================================================================
// Persistence Tests
// =============================================================================

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New()
	first := s.Append(sampleTurn("허리 디스크 매트리스 추천", "첫 답변"))
	second := s.Append(sampleTurn("50만원 이하로요", "두 번째 답변"))
	s.Close()

	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	turns := loaded.Turns()
	for i, want := range []Turn{first, second} {
		assert.Equal(t, want.ID, turns[i].ID)
		assert.Equal(t, want.UserQuery, turns[i].UserQuery)
		assert.Equal(t, want.AIResponse, turns[i].AIResponse)
		assert.Equal(t, want.ProcessingTime, turns[i].ProcessingTime)
		assert.Equal(t, want.AvgSimilarity, turns[i].AvgSimilarity)
		assert.Equal(t, want.EnhancementsUsed, turns[i].EnhancementsUsed)
		assert.True(t, want.Timestamp.Equal(turns[i].Timestamp))
	}
	assert.True(t, s.Start().Equal(loaded.Start()))
	assert.True(t, s.End().Equal(loaded.End()))
}

func TestSaveWireSchema(t *testing.T) {
	s := New()
	s.Append(sampleTurn("질문", "답변"))
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, s.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &envelope))
	for _, key := range []string{"session_start", "session_end", "total_conversations", "conversation_history"} {
		assert.Contains(t, envelope, key)
	}

	var total int
	require.NoError(t, json.Unmarshal(envelope["total_conversations"], &total))
	assert.Equal(t, 1, total)

	var history []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(envelope["conversation_history"], &history))
	require.Len(t, history, 1)
	for _, key := range []string{"id", "timestamp", "user_query", "ai_response", "processing_time", "avg_similarity", "enhancements_used"} {
		assert.Contains(t, history[0], key)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	s := New()
	s.Append(sampleTurn("질문", "답변"))
	path := filepath.Join(t.TempDir(), "nested", "dir", "session.json")

	require.NoError(t, s.Save(path))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestSaveOverwrites(t *testing.T) {
	s := New()
	path := filepath.Join(t.TempDir(), "session.json")
	s.Append(sampleTurn("질문", "답변"))
	require.NoError(t, s.Save(path))

	s.Append(sampleTurn("추가 질문", "추가 답변"))
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "nope.json"))

	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 0, loaded.Len())
}

func TestLoadMalformedReportsAndEmpties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	loaded, err := Load(path)

	require.ErrorIs(t, err, ErrMalformed)
	require.NotNil(t, loaded)
	assert.Equal(t, 0, loaded.Len())
}

func TestLoadCountMismatchIsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mismatch.json")
	payload := `{
		"session_start": "2026-08-25T10:00:00Z",
		"session_end": "2026-08-25T10:05:00Z",
		"total_conversations": 5,
		"conversation_history": [
			{"id": "a", "timestamp": "2026-08-25T10:01:00Z", "user_query": "질문",
			 "ai_response": "답변", "processing_time": 1.0, "avg_similarity": 0.5,
			 "enhancements_used": []}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	loaded, err := Load(path)

	require.ErrorIs(t, err, ErrMalformed)
	require.NotNil(t, loaded)
	assert.Equal(t, 0, loaded.Len())
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestCloseStampsOnce(t *testing.T) {
	s := New()
	assert.True(t, s.End().IsZero())

	s.Close()
	first := s.End()
	require.False(t, first.IsZero())

	s.Close()
	assert.True(t, first.Equal(s.End()))
}

func TestResetKeepsStart(t *testing.T) {
	s := New()
	start := s.Start()
	s.Append(sampleTurn("질문", "답변"))
	s.Close()

	s.Reset()

	assert.Equal(t, 0, s.Len())
	assert.True(t, s.End().IsZero())
	assert.True(t, start.Equal(s.Start()))
}

func TestSummarize(t *testing.T) {
	s := New()
	s.Append(Turn{UserQuery: "질문1", ProcessingTime: 1.0, EnhancementsUsed: []string{"gpt-synonyms"}})
	s.Append(Turn{UserQuery: "질문2", ProcessingTime: 3.0})

	sum := s.Summarize()

	assert.Equal(t, 2, sum.TotalTurns)
	assert.Equal(t, 1, sum.EnhancedTurns)
	assert.InDelta(t, 0.5, sum.EnhancementRate, 1e-9)
	assert.InDelta(t, 2.0, sum.AvgProcessingSeconds, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	sum := New().Summarize()

	assert.Equal(t, 0, sum.TotalTurns)
	assert.Zero(t, sum.EnhancementRate)
	assert.Zero(t, sum.AvgProcessingSeconds)
}

func TestDefaultFilename(t *testing.T) {
	at := time.Date(2026, 8, 25, 13, 15, 7, 0, time.UTC)

	assert.Equal(t, "somnus_session_20260825_131507.json", DefaultFilename(at))
}
