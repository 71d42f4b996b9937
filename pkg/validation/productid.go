// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries, file paths, or subprocess calls. Using these validators
// prevents injection attacks (GraphQL/where-filter injection, command
// injection, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// productIDPattern matches valid catalog product IDs.
// Allows: Unicode letters (catalog slugs carry Hangul), digits, underscores,
// dots, and hyphens after the first character.
// Max length: 64 characters (generated slugs cap at 48, imported IDs get slack)
var productIDPattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N}_.\-]{0,63}$`)

// ValidateProductID validates a catalog product ID to prevent filter injection.
//
// Valid IDs:
//   - 1-64 characters
//   - Unicode letters (Hangul slugs like product_시몬스_뷰티레스트)
//   - Digits 0-9
//   - Underscores (_), dots (.), and hyphens (-) after the first character
//
// Returns an error if the ID is invalid.
//
// Example:
//
//	if err := validation.ValidateProductID(id); err != nil {
//	    return nil, fmt.Errorf("invalid product id: %w", err)
//	}
//	// Safe to use in a Weaviate where filter
func ValidateProductID(id string) error {
	if id == "" {
		return fmt.Errorf("product id cannot be empty")
	}

	if !productIDPattern.MatchString(id) {
		return fmt.Errorf("invalid product id format: %q (must be 1-64 letters, digits, underscores, dots, or hyphens)", id)
	}

	return nil
}

// ValidateProductIDs validates multiple product IDs.
// Returns an error listing all invalid IDs if any fail validation.
func ValidateProductIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateProductID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid product ids: %v", invalid)
	}
	return nil
}

// SanitizeProductID trims and validates a product ID.
// Returns the trimmed ID if valid, or an error if invalid. IDs stay
// case-sensitive because catalog lookups are exact-match.
//
// Use this on IDs arriving from URL paths or CLI arguments:
//
//	safeID, err := validation.SanitizeProductID(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeID is trimmed and validated
func SanitizeProductID(id string) (string, error) {
	normalized := strings.TrimSpace(id)
	if err := ValidateProductID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
