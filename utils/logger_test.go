package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.raw); got != tt.want {
			t.Errorf("ParseLevel(%q) = %d; want %d", tt.raw, got, tt.want)
		}
	}
}

func TestLoggerLevelAndPrefix(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewLoggerTo(&out, &errOut, LevelInfo).With("storage")

	l.Debug("hidden")
	l.Info("listing %d stored", 7)
	l.Error("boom")

	if strings.Contains(out.String(), "hidden") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(out.String(), "[storage] listing 7 stored") {
		t.Errorf("info line missing prefix: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "boom") {
		t.Errorf("error line not on error output: %q", errOut.String())
	}
}

func TestLoggerPrefixWithPercent(t *testing.T) {
	var out bytes.Buffer
	l := NewLoggerTo(&out, &out, LevelInfo).With("100% Amsterdam")

	l.Info("page %d done", 3)

	if !strings.Contains(out.String(), "[100% Amsterdam] page 3 done") {
		t.Errorf("prefix mangled: %q", out.String())
	}
	if strings.Contains(out.String(), "%!") {
		t.Errorf("format verbs leaked: %q", out.String())
	}
}
