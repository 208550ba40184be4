package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerJSONToConsole(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "info"
	cfg.Format = "json"
	cfg.Output = &buf

	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	WithArtifact(WithRun(log, "run-1"), "out/me-320.webp", 320, "webp").Info("written")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "written" {
		t.Errorf("Expected message 'written', got %v", entry["message"])
	}
	if entry["run_id"] != "run-1" {
		t.Errorf("Expected run_id 'run-1', got %v", entry["run_id"])
	}
	if entry["width"] != float64(320) {
		t.Errorf("Expected width 320, got %v", entry["width"])
	}
}

func TestNewLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf

	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	log.Info("hidden")
	WithOperation(log, "generate").Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "operation=generate") {
		t.Errorf("expected warn line with operation field, got %q", out)
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "optimize-images.log")
	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.FilePath = logPath
	cfg.Console = false

	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	log.Debug("to file")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing entry: %q", string(data))
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	if _, err := NewLogger(cfg); err == nil {
		t.Fatal("Expected error for invalid level")
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("Expected default info level, got %v", log.GetLevel())
	}
	log.Error("dropped")
}
