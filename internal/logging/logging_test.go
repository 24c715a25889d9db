package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogfmtOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Debug).(*logfmtLogger)
	logger.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	logger.With(F("component", "engine")).Info("record settled", F("id", "text_1"), F("detail", "two words"), Err(errors.New("boom")))

	got := buf.String()
	want := `ts=2024-01-02T03:04:05Z level=info msg="record settled" component=engine id=text_1 detail="two words" err=boom` + "\n"
	if got != want {
		t.Fatalf("unexpected line:\n got=%q\nwant=%q", got, want)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Warn)
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected filtered output: %q", buf.String())
	}
	if logger.Enabled(Debug) || !logger.Enabled(Error) {
		t.Fatalf("unexpected Enabled results")
	}
}

func TestNopDiscardsEverything(t *testing.T) {
	if Nop().Enabled(Error) {
		t.Fatalf("nop logger should not be enabled")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": Debug, " WARN ": Warn, "warning": Warn, "error": Error, "": Info, "verbose": Info}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestOpenAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sendme.log")
	logger, closer, err := Open(path, Info)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	logger.Info("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "msg=hello") {
		t.Fatalf("unexpected log file: %q", data)
	}
}

func TestSensitiveFieldsAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Debug)
	logger.With(F("Token", "eyJhbGciOi")).Info("login", F("password", "hunter2"), F("user", "alice"))

	got := buf.String()
	if strings.Contains(got, "eyJhbGciOi") || strings.Contains(got, "hunter2") {
		t.Fatalf("credentials leaked: %q", got)
	}
	if !strings.Contains(got, "Token=[redacted]") || !strings.Contains(got, "user=alice") {
		t.Fatalf("unexpected line: %q", got)
	}
}

func TestRotateMovesLargeLogAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sendme.log")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 64)), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := rotate(path, 128); err != nil {
		t.Fatalf("rotate below limit: %v", err)
	}
	if _, err := os.Stat(path + ".1"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no rotation below limit, got %v", err)
	}
	if err := rotate(path, 64); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected rotated file: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected current log moved, got %v", err)
	}
	if err := rotate(filepath.Join(t.TempDir(), "missing.log"), 1); err != nil {
		t.Fatalf("rotate missing file: %v", err)
	}
}
