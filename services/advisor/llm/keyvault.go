// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// MinMlockLimitKB is the smallest RLIMIT_MEMLOCK under which key material
// can be locked without risking an mlock failure at runtime.
const MinMlockLimitKB = 64

var (
	memguardInitOnce    sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// KeyVault holds the provider API key in a memguard locked buffer so the
// key never sits in ordinary garbage-collected memory between calls.
//
// # Description
//
// The vault resolves the key from, in order:
//  1. SOMNUS_OPENAI_API_KEY
//  2. OPENAI_API_KEY
//  3. the secrets file /run/secrets/openai_api_key
//
// # Thread Safety
//
// Safe for concurrent use after construction. Destroy is idempotent.
//
// # Limitations
//
//   - Use exposes the key as a transient string because the provider SDK
//     requires one; the copy lives only for the duration of the call.
type KeyVault struct {
	mu     sync.Mutex
	buffer *memguard.LockedBuffer
}

// ErrNoAPIKey indicates no key source yielded a usable key.
var ErrNoAPIKey = errors.New("no API key found in environment or secrets file")

// OpenKeyVault resolves and seals the API key.
func OpenKeyVault() (*KeyVault, error) {
	initMemguard()

	key := os.Getenv("SOMNUS_OPENAI_API_KEY")
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		data, err := os.ReadFile("/run/secrets/openai_api_key")
		if err == nil {
			key = strings.TrimSpace(string(data))
		}
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}

	// NewBufferFromBytes wipes the source slice after sealing.
	buf := memguard.NewBufferFromBytes([]byte(key))
	return &KeyVault{buffer: buf}, nil
}

// Use invokes fn with the key material. The string passed to fn must not be
// retained past the call.
func (v *KeyVault) Use(fn func(key string) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.buffer == nil || !v.buffer.IsAlive() {
		return errors.New("key vault is destroyed")
	}
	return fn(v.buffer.String())
}

// Destroy wipes the key material. Safe to call more than once.
func (v *KeyVault) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.buffer != nil && v.buffer.IsAlive() {
		v.buffer.Destroy()
	}
	v.buffer = nil
}

// initMemguard performs one-time memguard setup and records whether the
// process mlock limit is large enough for locked buffers.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if !mlockSufficient {
			slog.Warn("RLIMIT_MEMLOCK below recommended minimum; key locking may fall back to unlocked pages",
				"limit_kb", currentMlockLimitKB, "min_kb", MinMlockLimitKB)
		}
	})
}

// checkMlockLimit queries the kernel mlock resource limit.
// Returns (sufficient, limitKB); limitKB is -1 when unlimited.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}
