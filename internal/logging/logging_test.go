package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupJSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	if err := SetupWriter(&buf, "debug", "json"); err != nil {
		t.Fatalf("SetupWriter failed: %v", err)
	}
	log.Debug().Str("bot", "glados").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", buf.String(), err)
	}
	if entry["bot"] != "glados" || entry["message"] != "hello" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestSetupLevelFilters(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	if err := SetupWriter(&buf, "warn", "console"); err != nil {
		t.Fatalf("SetupWriter failed: %v", err)
	}
	log.Info().Msg("quiet")
	log.Warn().Msg("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestSetupRejectsUnknown(t *testing.T) {
	var buf bytes.Buffer
	if err := SetupWriter(&buf, "shouting", "json"); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := SetupWriter(&buf, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
