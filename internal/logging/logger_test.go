// Package logging includes tests for the zap logger helpers.
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Development: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

func TestNewQuietWithoutFileIsNoop(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Quiet: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	logger.Info("swallowed")
}

func TestNewAppendsToLogFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lindol.log")
	logger, err := New(Options{Quiet: true, Path: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("file logger ready")
	logger.Sync() //nolint:errcheck // best-effort flush

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "file logger ready") {
		t.Fatalf("expected log line in file, got %q", data)
	}
}

func TestNewBadLogFilePathFails(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Path: filepath.Join(t.TempDir(), "missing", "lindol.log")}); err == nil {
		t.Fatal("expected error for unwritable log path")
	}
}
