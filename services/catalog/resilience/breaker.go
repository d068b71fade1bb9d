// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience provides the failure-handling primitives that sit
// between the catalog resolver and the upstream marketplace API: a
// circuit breaker (FailureGate), a retry executor with exponential
// backoff and jitter (BackoffExecutor), and a short-TTL result cache.
//
// Each primitive is independently synchronized. No lock is ever held
// across two of them, so a slow sweep in the cache cannot delay a gate
// decision and vice versa.
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// GateState represents the state of a FailureGate.
//
// # States
//
//   - GateClosed: Normal operation, calls flow through
//   - GateOpen: Upstream is considered down, calls are rejected immediately
//   - GateHalfOpen: Testing whether the upstream recovered
//
// # State Diagram
//
//	   ┌─────────────────────────────────────┐
//	   │                                     │
//	   ▼                                     │
//	CLOSED ──[failure threshold]──► OPEN ───┘
//	   ▲                              │
//	   │                              │
//	   └──[successes]── HALF_OPEN ◄──┘
//	                    [reset window]
//
// Only GateHalfOpen may transition to GateClosed; only GateClosed and
// GateHalfOpen may transition to GateOpen.
type GateState int

const (
	// GateClosed is the normal operating state.
	GateClosed GateState = iota

	// GateOpen means the gate has tripped and calls are rejected.
	GateOpen

	// GateHalfOpen means the gate is probing for recovery.
	GateHalfOpen
)

// String returns a human-readable state name.
func (s GateState) String() string {
	switch s {
	case GateClosed:
		return "CLOSED"
	case GateOpen:
		return "OPEN"
	case GateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrGateOpen is returned by callers that consulted Allow and found the
// gate open. The gate itself never returns errors; this sentinel exists
// so every layer reports the "deliberately not attempted" case the same
// way.
var ErrGateOpen = errors.New("failure gate is open")

// GateConfig configures FailureGate behavior.
//
// # Example
//
//	cfg := resilience.GateConfig{
//	    FailureThreshold: 5,                // open after 5 consecutive failures
//	    SuccessThreshold: 2,                // close after 2 half-open successes
//	    ResetWindow:      60 * time.Second, // stay open for 60s
//	}
type GateConfig struct {
	// FailureThreshold is consecutive failures before opening the gate.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is consecutive half-open successes required to close.
	// Default: 2
	SuccessThreshold int

	// ResetWindow is how long the gate stays open before probing.
	// Default: 60 seconds
	ResetWindow time.Duration

	// OnStateChange is called when the state transitions.
	// Called asynchronously to avoid blocking callers.
	OnStateChange func(from, to GateState)
}

// DefaultGateConfig returns the default gate configuration.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ResetWindow:      60 * time.Second,
	}
}

// FailureGate implements the circuit breaker pattern for one upstream
// endpoint family.
//
// # Description
//
// The gate is a pure decision function: Allow reports whether a call may
// proceed, and RecordSuccess/RecordFailure feed the outcome back. It never
// blocks and never performs the call itself. The caller is responsible for
// checking Allow before invoking the BackoffExecutor and for recording the
// executor's overall outcome (not an individual attempt's outcome).
//
// # Thread Safety
//
// FailureGate is safe for concurrent use. Many resolution requests are
// expected to share a single gate per upstream endpoint family.
type FailureGate struct {
	config      GateConfig
	state       GateState
	failures    int
	successes   int
	lastFailure time.Time
	mu          sync.Mutex

	// now is swapped in tests to drive the reset window deterministically.
	now func() time.Time
}

// NewFailureGate creates a gate in the closed state. Zero config values
// fall back to DefaultGateConfig.
func NewFailureGate(config GateConfig) *FailureGate {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.ResetWindow <= 0 {
		config.ResetWindow = 60 * time.Second
	}

	return &FailureGate{
		config: config,
		state:  GateClosed,
		now:    time.Now,
	}
}

// Allow reports whether a call to the upstream may proceed.
//
// # Description
//
// In GateClosed it always returns true. In GateOpen it returns false until
// the reset window has elapsed since the last failure; when it has, the
// gate transitions to GateHalfOpen, resets the success counter, and returns
// true for this one probing call. In GateHalfOpen it returns true so that
// limited trial traffic can flow.
func (g *FailureGate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case GateClosed:
		return true

	case GateOpen:
		if g.now().Sub(g.lastFailure) > g.config.ResetWindow {
			g.successes = 0
			g.transitionTo(GateHalfOpen)
			return true
		}
		return false

	case GateHalfOpen:
		return true

	default:
		return false
	}
}

// RecordSuccess records that an upstream call succeeded overall.
func (g *FailureGate) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.successes++

	switch g.state {
	case GateClosed:
		g.failures = 0
	case GateHalfOpen:
		if g.successes >= g.config.SuccessThreshold {
			g.failures = 0
			g.successes = 0
			g.transitionTo(GateClosed)
		}
	}
}

// RecordFailure records that an upstream call failed overall.
func (g *FailureGate) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failures++
	g.successes = 0
	g.lastFailure = g.now()

	switch g.state {
	case GateClosed:
		if g.failures >= g.config.FailureThreshold {
			g.transitionTo(GateOpen)
		}
	case GateHalfOpen:
		// Any failure while probing trips the gate again.
		g.transitionTo(GateOpen)
	}
}

// transitionTo changes state and fires the OnStateChange callback.
// Callers must hold g.mu.
func (g *FailureGate) transitionTo(state GateState) {
	if g.state == state {
		return
	}

	old := g.state
	g.state = state

	if g.config.OnStateChange != nil {
		// Fire without the lock to prevent deadlocks in the callback.
		go g.config.OnStateChange(old, state)
	}
}

// State returns the current gate state.
func (g *FailureGate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Failures returns the current consecutive failure count.
func (g *FailureGate) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}

// Reset forces the gate back to the closed state, clearing all counters.
// Use when the upstream is known to have been fixed externally.
func (g *FailureGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.state
	g.state = GateClosed
	g.failures = 0
	g.successes = 0

	if old != GateClosed && g.config.OnStateChange != nil {
		go g.config.OnStateChange(old, GateClosed)
	}
}
