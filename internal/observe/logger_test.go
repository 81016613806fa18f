package observe

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelInfo, LogFormatJSON)
	log.Info("session started", "session_id", "abc")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "session started" {
		t.Errorf("msg = %v, want %q", rec["msg"], "session started")
	}
	if rec["session_id"] != "abc" {
		t.Errorf("session_id = %v, want %q", rec["session_id"], "abc")
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelWarn, LogFormatLogfmt)
	log.Info("hidden")
	log.Debug("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("below-level records were written: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestLogFormat_IsValid(t *testing.T) {
	t.Parallel()

	for _, f := range []LogFormat{"", LogFormatText, LogFormatJSON, LogFormatLogfmt} {
		if !f.IsValid() {
			t.Errorf("%q should be valid", f)
		}
	}
	if LogFormat("xml").IsValid() {
		t.Error(`"xml" should be invalid`)
	}
}
