package internal

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LogLevelWarn)

	logger.Info("hidden %d", 1)
	logger.Warn("fit %s slow", "nll")
	logger.Error("boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at WARN: %q", out)
	}
	if !strings.Contains(out, "level=warn") || !strings.Contains(out, `msg="fit nll slow"`) {
		t.Errorf("expected logfmt warn line, got %q", out)
	}
	if !strings.Contains(out, "level=error") {
		t.Errorf("expected error line, got %q", out)
	}
}

func TestLogger_WithAddsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LogLevelTrace).With("run", "abc")
	logger.Trace("step")

	out := buf.String()
	if !strings.Contains(out, "run=abc") || !strings.Contains(out, "trace=true") {
		t.Errorf("missing context keys: %q", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"ERROR": LogLevelError,
		"warn":  LogLevelWarn,
		"":      LogLevelInfo,
		"bogus": LogLevelInfo,
		"TRACE": LogLevelTrace,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %d, want %d", in, got, want)
		}
	}
}
