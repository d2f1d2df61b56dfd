package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("server started", "port", 9001)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "server started" {
		t.Errorf("msg = %v, want 'server started'", entry["msg"])
	}
	if entry["port"] != float64(9001) {
		t.Errorf("port = %v, want 9001", entry["port"])
	}
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "text", Output: &buf})

	log.Info("hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "k=v") {
		t.Errorf("text output missing fields: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Debug("dropped")
	log.Info("dropped too")
	if buf.Len() != 0 {
		t.Errorf("below-level entries were emitted: %q", buf.String())
	}

	log.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn entry was not emitted")
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("debug emitted at info level: %q", buf.String())
	}

	SetLevel("debug")
	defer SetLevel("info")

	log.Debug("kept")
	if buf.Len() == 0 {
		t.Error("debug entry not emitted after SetLevel(debug)")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.With("conn_id", "abc").Info("read")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["conn_id"] != "abc" {
		t.Errorf("conn_id = %v, want abc", entry["conn_id"])
	}
}
