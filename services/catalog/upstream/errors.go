// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package upstream

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianShop/services/catalog/resilience"
)

// -----------------------------------------------------------------------------
// Error Sentinel Values
// -----------------------------------------------------------------------------

// ErrCircuitOpen is returned when the failure gate rejected the call and
// the upstream was deliberately not attempted. It is the gate's own
// sentinel under a marketplace-facing name: errors.Is matches either.
var ErrCircuitOpen = resilience.ErrGateOpen

// ErrTimeout is returned when a call exceeded its deadline, either the
// per-attempt timeout or a caller-supplied one.
var ErrTimeout = errors.New("upstream request timed out")

// ErrNotFound is returned when the requested entity does not exist
// upstream. Callers with a local fallback should only surface it after
// both sources miss.
var ErrNotFound = errors.New("entity not found upstream")

// -----------------------------------------------------------------------------
// Typed Errors
// -----------------------------------------------------------------------------

// HTTPError reports a non-2xx HTTP status from the marketplace.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d", e.Status)
}

// APIError reports an application-level failure embedded in an otherwise
// successful (200) response, or a response whose body does not match the
// documented schema.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.Code, e.Message)
}

// TransportError reports a network-level failure reaching the marketplace:
// DNS resolution, connection refused, resets mid-body. These are retryable
// and count against the failure gate like any other upstream failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "upstream transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
