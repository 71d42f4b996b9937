// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a product id that does not resolve to a live
// record. A dangling candidate reference is a defect in the caller.
var ErrNotFound = errors.New("product not found")

// StoreError wraps a store backend failure. Store failures are fatal for
// the turn that issued them; the reasoning loop surfaces them distinctly
// instead of degrading.
type StoreError struct {
	// Op is the store operation that failed (search, get, ingest, reload).
	Op string

	// Message describes the failure.
	Message string

	// Retryable hints whether the same call may succeed shortly
	// (connection refused, timeout) versus a permanent condition
	// (dimension mismatch, schema missing).
	Retryable bool

	// Err is the underlying cause, if any.
	Err error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog store %s failed: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog store %s failed: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err is (or wraps) a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
