package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// TestNewLoggerJSONIncludesComponent verifies handler selection and attrs.
func TestNewLoggerJSONIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(NewLogger("info", "json", &buf), "provisioner")
	logger.Info("state changed", "state", "ready")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if record["component"] != "provisioner" {
		t.Fatalf("component = %v, want provisioner", record["component"])
	}
	if record["state"] != "ready" {
		t.Fatalf("state = %v, want ready", record["state"])
	}
}

// TestNewLoggerFiltersBelowLevel checks level parsing.
func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "text", &buf)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	if ParseLevel("bogus") != slog.LevelInfo {
		t.Fatal("unknown level should default to info")
	}
}

// TestSanitizeURL strips query and fragment.
func TestSanitizeURL(t *testing.T) {
	got := SanitizeURL("https://cdn.example.com/v.mp4?sig=secret#t=1")
	if got != "https://cdn.example.com/v.mp4" {
		t.Fatalf("SanitizeURL = %q", got)
	}
}
