package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WARN, false)
	logger.SetOutput(&buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("entries below WARN were written: %q", out)
	}
	if !strings.Contains(out, "WARN: warn message") {
		t.Errorf("expected warn entry, got %q", out)
	}
}

func TestJSONFormatWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DEBUG, true)
	logger.SetOutput(&buf)

	logger.WithField("component", "controller").Info("state change", map[string]interface{}{
		"to": "processing",
	})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != "INFO" || entry.Message != "state change" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["component"] != "controller" || entry.Fields["to"] != "processing" {
		t.Errorf("fields not merged: %+v", entry.Fields)
	}
}

func TestWithFieldSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(INFO, false)
	child := parent.WithField("job_id", "abc")
	parent.SetOutput(&buf)

	child.Info("from child")
	if !strings.Contains(buf.String(), "from child") {
		t.Errorf("child logger did not follow parent output: %q", buf.String())
	}
	if len(parent.fields) != 0 {
		t.Errorf("WithField mutated parent fields: %v", parent.fields)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"DEBUG", DEBUG},
		{"Warning", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"bogus", INFO},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
