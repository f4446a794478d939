package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sigilum/internal/config"
	"sigilum/internal/logging"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello")

	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "sigilum.log")); err != nil {
		t.Fatalf("expected sigilum.log to be created: %v", err)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerRendersComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "engine")
	logger.Info("trial finished", logging.Float64("score", 0.9), logging.String("reference", "firma a.png"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"INF [engine] trial finished", "score=0.9", `reference="firma a.png"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithTrial(logging.WithRunID(context.Background(), "run-1"), 7)
	logging.WithContext(ctx, logger).Info("context message", logging.Error(errors.New("boom")))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(content, &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload[logging.FieldRunID] != "run-1" {
		t.Fatalf("expected run id, got %v", payload)
	}
	if payload[logging.FieldTrial] != float64(7) {
		t.Fatalf("expected trial 7, got %v", payload[logging.FieldTrial])
	}
	if payload["msg"] != "context message" {
		t.Fatalf("unexpected msg %v", payload["msg"])
	}
}

func TestTeeToFileDuplicatesOutput(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.log")
	runPath := filepath.Join(dir, "run", "run.log")

	base, err := logging.New(logging.Options{Format: "console", Outputs: []string{basePath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	tee, err := logging.TeeToFile(base, runPath, "info")
	if err != nil {
		t.Fatalf("TeeToFile returned error: %v", err)
	}
	tee.Info("duplicated")

	for _, path := range []string{basePath, runPath} {
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if !strings.Contains(string(content), "duplicated") {
			t.Fatalf("expected message in %s, got %q", path, content)
		}
	}
}

func TestConsoleLoggerAddsSourceAtDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{Level: "debug", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.WithGroup("cache").Debug("lookup", logging.Bool("hit", true), logging.String("key", ""))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"DBG lookup (logger_test.go:", "cache.hit=true", `cache.key=""`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := logging.New(logging.Options{Level: "verbose"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := logging.New(logging.Options{Level: "WARNING", Outputs: []string{filepath.Join(t.TempDir(), "w.log")}}); err != nil {
		t.Fatalf("warning alias rejected: %v", err)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "duplicate signatures", "trial_signature_collision")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if !strings.Contains(string(content), `"`+key+`"`) {
			t.Fatalf("expected %s in %q", key, content)
		}
	}
}
