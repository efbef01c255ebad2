package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWithCommitAbbreviates(t *testing.T) {
	var buf bytes.Buffer
	logger := WithCommit(NewLoggerTo(&buf, slog.LevelDebug, "resolver"), "0123456789abcdef0123456789abcdef01234567")
	logger.Debug("revision resolved", "event", "revision_resolved")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["commit"] != "0123456789ab" {
		t.Fatalf("expected abbreviated commit, got %v", record["commit"])
	}
	if record["component"] != "resolver" {
		t.Fatalf("expected component attribute, got %v", record["component"])
	}
}

func TestWithCommitEmpty(t *testing.T) {
	logger := Discard()
	if WithCommit(logger, "") != logger {
		t.Fatalf("expected logger unchanged for empty commit")
	}
}
