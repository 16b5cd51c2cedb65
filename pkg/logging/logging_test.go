package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWritesJSONAtRequestedLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("expected info message to be filtered out, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("expected warn message to appear, got %q", out)
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "not-a-real-level")

	if logger.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected fallback to info level, got %v", logger.GetLevel())
	}
}

func TestNewIsCaseInsensitive(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "DEBUG")

	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %v", logger.GetLevel())
	}
}

func TestNewConsoleProducesHumanReadableOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsole(&buf, "info")

	logger.Info().Str("index", "books").Msg("index created")

	out := buf.String()
	if !strings.Contains(out, "index created") {
		t.Errorf("expected message text in console output, got %q", out)
	}
}
