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
// database queries, upstream API paths, or file paths. Using these validators
// prevents injection attacks (SQL injection, URL path manipulation, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// resourceIDPattern matches valid product and store identifiers.
// Allows: letters, digits, dots, hyphens, underscores.
// Max length: 64 characters (marketplace item ids are numeric strings up
// to 20 digits; local catalog ids are slugs).
var resourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// ValidateResourceID validates a product or store identifier before it is
// interpolated into an upstream URL path or a catalog query.
//
// Valid identifiers:
//   - 1-64 characters
//   - Letters A-Z a-z, digits 0-9
//   - Dots (.), hyphens (-), underscores (_) after the first character
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateResourceID(id); err != nil {
//	    return nil, fmt.Errorf("invalid product id: %w", err)
//	}
//	// Safe to use in a URL path segment
func ValidateResourceID(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !resourceIDPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier format: %q (must be 1-64 alphanumeric chars, dots, hyphens, or underscores)", id)
	}

	return nil
}

// ValidateResourceIDs validates multiple identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateResourceIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateResourceID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// SanitizeResourceID normalizes and validates an identifier.
// Returns the trimmed identifier if valid, or an error if invalid.
//
// Use this at API boundaries where surrounding whitespace is likely:
//
//	safeID, err := validation.SanitizeResourceID(userInput)
//	if err != nil {
//	    return err
//	}
func SanitizeResourceID(id string) (string, error) {
	normalized := strings.TrimSpace(id)
	if err := ValidateResourceID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
