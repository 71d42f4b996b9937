// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.String())
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
		{Level(-1), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.toSlogLevel())
		})
	}
}

func TestLevel_Ordering(t *testing.T) {
	// Debug < Info < Warn < Error
	assert.Less(t, LevelDebug, LevelInfo)
	assert.Less(t, LevelInfo, LevelWarn)
	assert.Less(t, LevelWarn, LevelError)
}

// =============================================================================
// Logger Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	require.NotNil(t, logger)
	require.NotNil(t, logger.slog)
	defer logger.Close()
}

func TestNew_AllLevels(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		t.Run(level.String(), func(t *testing.T) {
			logger := New(Config{Level: level, Quiet: true})
			require.NotNil(t, logger)
			defer logger.Close()
		})
	}
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "advisor",
		Quiet:   true,
	})
	require.NotNil(t, logger)
	defer logger.Close()

	require.NotNil(t, logger.file, "file handle expected when LogDir is set")

	files, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.NotEmpty(t, files, "log file should be created in LogDir")
	assert.True(t, strings.HasPrefix(files[0].Name(), "advisor_"))
	assert.True(t, strings.HasSuffix(files[0].Name(), ".log"))
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir: tmpDir,
		Quiet:  true,
	})
	require.NotNil(t, logger)
	defer logger.Close()

	// Falls back to "somnus" as the filename prefix.
	files, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	found := false
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "somnus_") {
			found = true
			break
		}
	}
	assert.True(t, found, "expected log file with 'somnus_' prefix")
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	logger := New(Config{
		LogDir: filepath.Join(string(os.PathSeparator), "proc", "somnus-no-such-dir", "deep"),
		Quiet:  true,
	})
	require.NotNil(t, logger, "constructor never fails on bad LogDir")
	defer logger.Close()

	// File logging silently disabled, logger still usable.
	assert.Nil(t, logger.file)
	logger.Info("still works")
}

func TestNew_WithExporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Exporter: exporter,
		Quiet:    true,
	})
	require.NotNil(t, logger)
	assert.NotNil(t, logger.exporter)
	defer logger.Close()
}

func TestDefault(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
	defer logger.Close()

	assert.Equal(t, LevelInfo, logger.config.Level)
	assert.Equal(t, "somnus", logger.config.Service)
}

// =============================================================================
// Logger Method Tests
// =============================================================================

// waitForEntries polls the buffered exporter until the async exports land.
func waitForEntries(t *testing.T, e *BufferedExporter, want int) []LogEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries := e.Entries()
		if len(entries) >= want {
			return entries
		}
		time.Sleep(10 * time.Millisecond)
	}
	return e.Entries()
}

func TestLogger_AllLevelsExport(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelDebug,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("retrieval round", "round", 1)
	logger.Info("turn completed", "session_id", "s-1")
	logger.Warn("generation retry", "attempt", 2)
	logger.Error("embedding request failed", "error", "timeout")

	entries := waitForEntries(t, exporter, 4)
	require.Len(t, entries, 4)

	byLevel := make(map[Level]LogEntry, 4)
	for _, e := range entries {
		byLevel[e.Level] = e
	}
	assert.Equal(t, "retrieval round", byLevel[LevelDebug].Message)
	assert.Equal(t, "turn completed", byLevel[LevelInfo].Message)
	assert.Equal(t, "s-1", byLevel[LevelInfo].Attrs["session_id"])
	assert.Equal(t, "generation retry", byLevel[LevelWarn].Message)
	assert.Equal(t, 2, byLevel[LevelWarn].Attrs["attempt"])
	assert.Equal(t, "embedding request failed", byLevel[LevelError].Message)
}

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn, // Only Warn and Error reach the exporter
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	entries := waitForEntries(t, exporter, 2)
	assert.Len(t, entries, 2)
}

func TestLogger_With(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	sessLogger := logger.With("session_id", "sess-42")
	require.NotNil(t, sessLogger)

	sessLogger.Info("turn started")

	entries := waitForEntries(t, exporter, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, "turn started", entries[0].Message)
}

func TestLogger_With_SharesResources(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "cli",
		Quiet:   true,
	})
	defer logger.Close()

	child := logger.With("child", true)
	assert.Same(t, logger.file, child.file, "child logger should share the file handle")
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	assert.NotNil(t, logger.Slog())
}

func TestLogger_Close_NoResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	assert.NoError(t, logger.Close())
}

func TestLogger_Close_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "cli",
		Quiet:   true,
	})

	logger.Info("catalog loaded", "products", 25)
	require.NoError(t, logger.Close())

	// File handle is closed; further writes must fail.
	if logger.file != nil {
		_, writeErr := logger.file.WriteString("after close")
		assert.Error(t, writeErr)
	}
}

func TestLogger_Close_ExporterFlushError(t *testing.T) {
	exporter := &errorExporter{flushErr: errors.New("flush failed")}
	logger := New(Config{
		Exporter: exporter,
		Quiet:    true,
	})

	err := logger.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush exporter")
}

func TestLogger_Close_ExporterCloseError(t *testing.T) {
	exporter := &errorExporter{closeErr: errors.New("close failed")}
	logger := New(Config{
		Exporter: exporter,
		Quiet:    true,
	})

	err := logger.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close exporter")
}

func TestLogger_Close_FirstErrorWins(t *testing.T) {
	exporter := &errorExporter{
		flushErr: errors.New("flush failed"),
		closeErr: errors.New("close failed"),
	}
	logger := New(Config{
		Exporter: exporter,
		Quiet:    true,
	})

	err := logger.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush")
}

func TestLogger_ExportErrorSilentlyDropped(t *testing.T) {
	exporter := &errorExporter{exportErr: errors.New("export failed")}
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	// Must not panic and must not surface the error.
	logger.Info("turn completed")
	time.Sleep(50 * time.Millisecond)
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent turn", "n", n)
		}(i)
	}
	wg.Wait()

	entries := waitForEntries(t, exporter, 100)
	assert.Len(t, entries, 100)
}

// =============================================================================
// multiHandler Tests
// =============================================================================

func TestMultiHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	h1 := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	h2 := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	// Enabled when any handler accepts the level.
	assert.True(t, mh.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, mh.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, mh.Enabled(context.Background(), slog.LevelWarn))
}

func TestMultiHandler_Enabled_NoneEnabled(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})

	mh := &multiHandler{handlers: []slog.Handler{h}}
	assert.False(t, mh.Enabled(context.Background(), slog.LevelDebug))
}

func TestMultiHandler_Handle_FansOut(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	mh := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&buf1, opts),
		slog.NewTextHandler(&buf2, opts),
	}}

	record := slog.Record{Level: slog.LevelInfo, Message: "session created"}
	require.NoError(t, mh.Handle(context.Background(), record))

	assert.NotZero(t, buf1.Len())
	assert.NotZero(t, buf2.Len())
}

func TestMultiHandler_Handle_LevelFiltering(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelError}),
	}}

	record := slog.Record{Level: slog.LevelInfo}
	_ = mh.Handle(context.Background(), record)

	assert.NotZero(t, buf1.Len(), "debug handler accepts Info")
	assert.Zero(t, buf2.Len(), "error-only handler skips Info")
}

func TestMultiHandler_Handle_PropagatesError(t *testing.T) {
	mh := &multiHandler{handlers: []slog.Handler{
		&errorHandler{err: errors.New("handler error")},
	}}

	record := slog.Record{Level: slog.LevelInfo}
	assert.Error(t, mh.Handle(context.Background(), record))
}

func TestMultiHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{slog.NewTextHandler(&buf, nil)}}

	withAttrs := mh.WithAttrs([]slog.Attr{slog.String("service", "advisor")})
	require.NotNil(t, withAttrs)
	assert.IsType(t, &multiHandler{}, withAttrs)

	withGroup := mh.WithGroup("turn")
	require.NotNil(t, withGroup)
	assert.IsType(t, &multiHandler{}, withGroup)
}

func TestMultiHandler_Empty(t *testing.T) {
	mh := &multiHandler{handlers: []slog.Handler{}}

	assert.False(t, mh.Enabled(context.Background(), slog.LevelInfo))
	assert.NoError(t, mh.Handle(context.Background(), slog.Record{}))
}

// =============================================================================
// Helper Function Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"~/.somnus/logs", filepath.Join(home, ".somnus/logs")},
		{"~", home},
		{"/var/log", "/var/log"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, expandPath(tt.input))
		})
	}
}

func TestArgsToMap(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want map[string]any
	}{
		{
			name: "empty",
			args: []any{},
			want: map[string]any{},
		},
		{
			name: "single pair",
			args: []any{"session_id", "s-1"},
			want: map[string]any{"session_id": "s-1"},
		},
		{
			name: "multiple pairs",
			args: []any{"k1", "v1", "k2", 42, "k3", true},
			want: map[string]any{"k1": "v1", "k2": 42, "k3": true},
		},
		{
			name: "odd count (ignores last)",
			args: []any{"k1", "v1", "orphan"},
			want: map[string]any{"k1": "v1"},
		},
		{
			name: "non-string key (skipped)",
			args: []any{123, "value", "validkey", "validvalue"},
			want: map[string]any{"validkey": "validvalue"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsToMap(tt.args)
			require.Len(t, got, len(tt.want))
			for k, v := range tt.want {
				assert.Equal(t, v, got[k])
			}
		})
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	assert.NoError(t, e.Export(context.Background(), LogEntry{Message: "dropped"}))
	assert.NoError(t, e.Flush(context.Background()))
	assert.NoError(t, e.Close())
}

func TestBufferedExporter_Export(t *testing.T) {
	e := NewBufferedExporter()
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelInfo,
		Message:   "catalog loaded",
		Service:   "advisor",
		Attrs:     map[string]any{"products": 25},
	}

	require.NoError(t, e.Export(context.Background(), entry))

	entries := e.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "catalog loaded", entries[0].Message)
	assert.Equal(t, "advisor", entries[0].Service)
	assert.Equal(t, 25, entries[0].Attrs["products"])
}

func TestBufferedExporter_Entries_ReturnsCopy(t *testing.T) {
	e := NewBufferedExporter()
	_ = e.Export(context.Background(), LogEntry{Message: "original"})

	entries1 := e.Entries()
	entries2 := e.Entries()

	entries1[0].Message = "modified"
	assert.Equal(t, "original", entries2[0].Message, "Entries() must return a copy")
}

func TestBufferedExporter_ConcurrentAccess(t *testing.T) {
	e := NewBufferedExporter()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Export(context.Background(), LogEntry{Message: "msg"})
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Entries()
		}()
	}
	wg.Wait()

	assert.Len(t, e.Entries(), 100)
}

func TestWriterExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelWarn,
		Message:   "degraded generation",
		Attrs:     map[string]any{"attempt": 3},
	}

	require.NoError(t, e.Export(context.Background(), entry))

	output := buf.String()
	assert.Contains(t, output, "degraded generation")
	assert.Contains(t, output, "WARN")

	assert.NoError(t, e.Flush(context.Background()))
	assert.NoError(t, e.Close())
}

func TestWriterExporter_ConcurrentAccess(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Export(context.Background(), LogEntry{Message: "msg"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, strings.Count(buf.String(), "\n"))
}

// =============================================================================
// Integration Tests
// =============================================================================

func TestLogger_FullIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	exporter := NewBufferedExporter()

	logger := New(Config{
		Level:    LevelDebug,
		LogDir:   tmpDir,
		Service:  "advisor",
		Exporter: exporter,
		Quiet:    true,
	})

	logger.Debug("expansion produced variants", "count", 3)
	logger.Info("session created", "session_id", "s-7")
	logger.Warn("generation retry", "attempt", 2)
	logger.Error("catalog reload failed", "error", "parse error")

	sessLogger := logger.With("session_id", "s-7")
	sessLogger.Info("turn completed")

	entries := waitForEntries(t, exporter, 5)
	require.NoError(t, logger.Close())

	assert.Len(t, entries, 5)

	files, _ := os.ReadDir(tmpDir)
	assert.NotEmpty(t, files, "log file should exist")
}

func TestLogger_FileContent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "serve",
		Quiet:   true,
	})

	logger.Info("turn completed", "session_id", "s-1")
	require.NoError(t, logger.Close())

	files, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	require.NoError(t, err)

	// File logs are always JSON regardless of Config.JSON.
	assert.Contains(t, string(content), "turn completed")
	assert.Contains(t, string(content), `"session_id":"s-1"`)
	assert.Contains(t, string(content), `"service":"serve"`)
}

// =============================================================================
// Test Doubles
// =============================================================================

// errorExporter returns configured errors from each method.
type errorExporter struct {
	exportErr error
	flushErr  error
	closeErr  error
}

func (e *errorExporter) Export(ctx context.Context, entry LogEntry) error { return e.exportErr }

func (e *errorExporter) Flush(ctx context.Context) error { return e.flushErr }

func (e *errorExporter) Close() error { return e.closeErr }

// errorHandler is a slog.Handler that always fails Handle.
type errorHandler struct {
	err error
}

func (h *errorHandler) Enabled(ctx context.Context, level slog.Level) bool { return true }

func (h *errorHandler) Handle(ctx context.Context, r slog.Record) error { return h.err }

func (h *errorHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *errorHandler) WithGroup(name string) slog.Handler { return h }
