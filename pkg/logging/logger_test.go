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
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := tt.level.toSlogLevel(); got != tt.want {
			t.Errorf("Level(%d).toSlogLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	defer logger.Close()

	if logger.Slog() == nil {
		t.Fatal("Expected a usable slog.Logger")
	}
	if logger.file != nil {
		t.Error("No LogDir configured, file sink should be nil")
	}
}

// TestNew_WithLogDir tests that a configured LogDir produces today's
// JSON log file named after the service.
func TestNew_WithLogDir(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "orchestrator",
	})
	logger.Info("catalog resolver initialized", "db_path", ":memory:")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	name := "orchestrator_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Expected log file %s: %v", name, err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data[:bytes.IndexByte(data, '\n')], &entry); err != nil {
		t.Fatalf("File log line is not JSON: %v", err)
	}
	if entry["msg"] != "catalog resolver initialized" {
		t.Errorf("Unexpected msg: %v", entry["msg"])
	}
	if entry["service"] != "orchestrator" {
		t.Errorf("Every entry must carry the service attribute, got %v", entry["service"])
	}
	if entry["db_path"] != ":memory:" {
		t.Errorf("Expected db_path attribute, got %v", entry["db_path"])
	}
}

// TestNew_UnusableLogDirDegradesToStderr tests that a LogDir that cannot
// be created disables the file sink without failing construction.
func TestNew_UnusableLogDirDegradesToStderr(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	logger := New(Config{LogDir: filepath.Join(blocker, "logs")})
	defer logger.Close()

	if logger.file != nil {
		t.Error("Unusable LogDir should leave the file sink nil")
	}
	logger.Info("still logs to stderr")
}

func TestNew_ServiceDefaultsWhenEmpty(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{LogDir: dir})
	logger.Info("hello")
	logger.Close()

	name := "aleutian_" + time.Now().Format("2006-01-02") + ".log"
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("Expected default service name in file name: %v", err)
	}
}

// =============================================================================
// Level Filtering Tests
// =============================================================================

// TestLogger_LevelFiltering tests that entries below the configured level
// never reach the file sink.
func TestLogger_LevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "orchestrator",
	})
	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Error("kept as well")
	logger.Close()

	data := readLogFile(t, dir, "orchestrator")
	if strings.Contains(string(data), "dropped") {
		t.Error("Sub-threshold entries must be filtered")
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Errorf("Expected 2 entries in the file, got %d", got)
	}
}

// =============================================================================
// With Tests
// =============================================================================

func TestLogger_With(t *testing.T) {
	dir := t.TempDir()

	parent := New(Config{LogDir: dir, Service: "orchestrator"})
	child := parent.With("request_id", "req-42")
	child.Info("resolving")

	// Closing the child must not steal the parent's file sink.
	if err := child.Close(); err != nil {
		t.Fatalf("Child close failed: %v", err)
	}
	parent.Info("after child close")
	if err := parent.Close(); err != nil {
		t.Fatalf("Parent close failed: %v", err)
	}

	data := string(readLogFile(t, dir, "orchestrator"))
	if !strings.Contains(data, "req-42") {
		t.Error("Child attributes missing from file sink")
	}
	if !strings.Contains(data, "after child close") {
		t.Error("Parent must keep writing after the child is closed")
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestLogger_Close_Idempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Service: "orchestrator"})

	if err := logger.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second close must be a no-op, got %v", err)
	}
}

func TestLogger_Close_NoFileSink(t *testing.T) {
	logger := New(Config{})
	if err := logger.Close(); err != nil {
		t.Errorf("Close without a file sink must succeed, got %v", err)
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestLogger_ConcurrentUse(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "orchestrator"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent entry", "worker", n)
		}(i)
	}
	wg.Wait()
	logger.Close()

	data := readLogFile(t, dir, "orchestrator")
	if got := strings.Count(string(data), "concurrent entry"); got != 20 {
		t.Errorf("Expected 20 entries, got %d", got)
	}
}

// =============================================================================
// multiHandler Tests
// =============================================================================

func TestMultiHandler_FansOutToAllDestinations(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&a, nil),
		slog.NewJSONHandler(&b, nil),
	}}

	logger := slog.New(h)
	logger.Info("fan out")

	for name, buf := range map[string]*bytes.Buffer{"a": &a, "b": &b} {
		if !strings.Contains(buf.String(), "fan out") {
			t.Errorf("Destination %s missed the record", name)
		}
	}
}

// TestMultiHandler_RespectsPerDestinationLevels tests that a destination
// with a higher threshold is skipped while the others still receive the
// record.
func TestMultiHandler_RespectsPerDestinationLevels(t *testing.T) {
	var verbose, quiet bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&verbose, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelError}),
	}}

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled must be true when any destination accepts the level")
	}

	logger := slog.New(h)
	logger.Debug("debug only")

	if !strings.Contains(verbose.String(), "debug only") {
		t.Error("Verbose destination missed the record")
	}
	if quiet.Len() != 0 {
		t.Error("Quiet destination must filter sub-threshold records")
	}
}

func TestMultiHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	var h slog.Handler = &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&buf, nil),
	}}
	h = h.WithAttrs([]slog.Attr{slog.String("service", "orchestrator")})
	h = h.WithGroup("request")

	slog.New(h).Info("grouped", "id", "req-1")

	out := buf.String()
	if !strings.Contains(out, `"service":"orchestrator"`) {
		t.Errorf("WithAttrs lost on fan-out: %s", out)
	}
	if !strings.Contains(out, `"request"`) {
		t.Errorf("WithGroup lost on fan-out: %s", out)
	}
}

// =============================================================================
// Path Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory in this environment")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"~", home},
		{"/var/log/aleutian", "/var/log/aleutian"},
		{"relative/logs", "relative/logs"},
		{"~user/logs", "~user/logs"},
	}

	for _, tt := range tests {
		if got := expandPath(tt.in); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Helpers
// =============================================================================

// readLogFile reads today's log file for service from dir.
func readLogFile(t *testing.T, dir, service string) []byte {
	t.Helper()
	name := service + "_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return data
}
