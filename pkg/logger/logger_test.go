package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHelpersAreNilSafe(t *testing.T) {
	prev := Log
	Log = nil
	defer func() { Log = prev }()
	Info("no_logger", "k", "v")
	Error("no_logger")
}

func TestInitToFiltersByLevel(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()
	var buf bytes.Buffer
	InitTo(&buf, "warn")
	Info("dropped_event")
	Warn("kept_event", "server", "acme")
	out := buf.String()
	if strings.Contains(out, "dropped_event") {
		t.Fatalf("info should be filtered: %s", out)
	}
	if !strings.Contains(out, "kept_event") || !strings.Contains(out, "server=acme") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRenderSummary(t *testing.T) {
	out := renderSummary("effective_config", []string{"addr: :8080"})
	if !strings.HasPrefix(out, "== Effective Config ==") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "- addr: :8080\n") {
		t.Fatalf("missing item: %q", out)
	}
}
