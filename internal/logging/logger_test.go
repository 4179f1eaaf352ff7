package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "json"
	l := NewWithWriter(&buf, cfg)

	l.Info("login", "accessToken", "a-1", "refreshToken", "r-1", "password", "hunter2", "checksum", "abc", "email", "a@b.com")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	for _, key := range []string{"accessToken", "refreshToken", "password", "checksum"} {
		if line[key] != "[REDACTED]" {
			t.Errorf("%s = %v, want redacted", key, line[key])
		}
	}
	if line["email"] != "a@b.com" {
		t.Errorf("email = %v", line["email"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = WarnLevel
	l := NewWithWriter(&buf, cfg)

	l.Debug("debug line")
	l.Info("info line")
	l.Warn("warn line")
	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") || !strings.Contains(out, "warn line") {
		t.Fatalf("output = %q", out)
	}
}

func TestPlayerAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, DefaultConfig()).WithComponent("game").WithPlayer("Motoko")
	l.Info("You have a total of 5 starbux.")
	out := buf.String()
	if !strings.Contains(out, "component=game") || !strings.Contains(out, "player=Motoko") {
		t.Fatalf("output = %q", out)
	}
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, DefaultConfig())

	if err := l.LogOperation("messages", func() error { return nil }); err != nil {
		t.Fatalf("LogOperation: %v", err)
	}
	boom := errors.New("boom")
	if err := l.LogOperation("resources", func() error { return boom }); err != boom {
		t.Fatalf("LogOperation err = %v, want boom", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Operation completed") || !strings.Contains(out, "Operation failed") || !strings.Contains(out, "error=boom") {
		t.Fatalf("output = %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": DebugLevel, "INFO": InfoLevel, "warn": WarnLevel, "error": ErrorLevel} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel accepted an unknown level")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tachikoma.log")
	cfg := DefaultConfig()
	cfg.Output = path
	l, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.Info("written")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "written") {
		t.Fatalf("log file = %q, %v", data, err)
	}
}
