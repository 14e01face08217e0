package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{"debug", logrus.DebugLevel},
		{"INFO", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"bogus", logrus.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_EnvLevel(t *testing.T) {
	t.Setenv("SST_LOG_LEVEL", "debug")
	l := New(Options{Output: &bytes.Buffer{}})
	if l.Level() != logrus.DebugLevel {
		t.Errorf("expected debug from env, got %v", l.Level())
	}

	l = New(Options{Output: &bytes.Buffer{}, Level: "warn"})
	if l.Level() != logrus.WarnLevel {
		t.Errorf("explicit level should win over env, got %v", l.Level())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: "warn"})

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestLogger_WithFieldsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Format: "json", Level: "info"})

	l.WithFields(logrus.Fields{"feature": "item_grant"}).
		WithField("request_id", "r1").
		WithError(errors.New("boom")).
		Error("pass failed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if line["feature"] != "item_grant" || line["request_id"] != "r1" || line["error"] != "boom" {
		t.Errorf("missing structured fields: %v", line)
	}
	if line["msg"] != "pass failed" {
		t.Errorf("msg = %v", line["msg"])
	}
}

func TestLogger_ChildDoesNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Format: "json"})
	_ = l.WithField("feature", "x")

	l.Info("plain")
	if strings.Contains(buf.String(), `"feature"`) {
		t.Errorf("parent logger picked up child fields: %q", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	l := Discard()
	l.SetLevel("debug")
	if l.Level() != logrus.DebugLevel {
		t.Errorf("SetLevel(debug) -> %v", l.Level())
	}
}
