// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"io"
	"testing"
)

// =============================================================================
// InputReader Tests
// =============================================================================

func TestStdinReader_ImplementsInterface(t *testing.T) {
	// StdinReader wraps os.Stdin which we can't easily mock
	// This test verifies the type implements the interface
	var _ InputReader = &StdinReader{}
}

func TestMockInputReader_ReadLine_ReturnsInputsInOrder(t *testing.T) {
	inputs := []string{"허리 아픈데 매트리스 추천해줘", "/status", "/quit"}
	reader := NewMockInputReader(inputs)

	for i, expected := range inputs {
		got, err := reader.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine() %d: unexpected error: %v", i, err)
		}
		if got != expected {
			t.Errorf("ReadLine() %d: got %q, want %q", i, got, expected)
		}
	}
}

func TestMockInputReader_ReadLine_ReturnsEOFWhenExhausted(t *testing.T) {
	reader := NewMockInputReader([]string{"only"})

	if _, err := reader.ReadLine(); err != nil {
		t.Fatalf("first ReadLine(): unexpected error: %v", err)
	}
	if _, err := reader.ReadLine(); err != io.EOF {
		t.Errorf("second ReadLine(): got %v, want io.EOF", err)
	}
}

func TestInteractiveInputReader_AddToHistory(t *testing.T) {
	reader := &InteractiveInputReader{
		history:      make([]string, 0, 3),
		historyIndex: -1,
		maxHistory:   3,
	}

	reader.addToHistory("one")
	reader.addToHistory("one") // immediate duplicate skipped
	reader.addToHistory("two")
	if len(reader.history) != 2 {
		t.Fatalf("history length = %d, want 2", len(reader.history))
	}

	reader.addToHistory("three")
	reader.addToHistory("four") // exceeds cap, oldest dropped
	if len(reader.history) != 3 {
		t.Fatalf("history length = %d, want 3 (capped)", len(reader.history))
	}
	if reader.history[0] != "two" {
		t.Errorf("oldest history entry = %q, want %q", reader.history[0], "two")
	}
}

// =============================================================================
// Exit Command Tests
// =============================================================================

func TestIsExitCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"/quit", true},
		{"/exit", true},
		{"/q", true},
		{"exit", true},
		{"quit", true},
		{"/help", false},
		{"", false},
		{"종료", false},
		{"quit please", false},
	}

	for _, tt := range tests {
		if got := isExitCommand(tt.input); got != tt.want {
			t.Errorf("isExitCommand(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
