package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		l, err := NewLogger(LogLevelInfo, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer l.Close()
		if l.level != LogLevelInfo {
			t.Errorf("level = %d, want %d", l.level, LogLevelInfo)
		}
		if l.file != nil {
			t.Error("file should be nil when no path given")
		}
	})

	t.Run("with file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.log")
		l, err := NewLogger(LogLevelDebug, path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer l.Close()
		if l.file == nil {
			t.Error("file should not be nil")
		}
		if l.fileLog == nil {
			t.Error("fileLog should not be nil")
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		_, err := NewLogger(LogLevelInfo, "/nonexistent/dir/test.log")
		if err == nil {
			t.Error("expected error for invalid path")
		}
	})
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.log")
	l, err := NewLogger(LogLevelInfo, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Error("an error: %d", 1)
	l.Info("an info")
	l.Verbose("a verbose line")
	l.Debug("a debug line")
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "ERROR: an error: 1") {
		t.Error("error line missing")
	}
	if !strings.Contains(out, "INFO: an info") {
		t.Error("info line missing")
	}
	if strings.Contains(out, "VERBOSE") || strings.Contains(out, "DEBUG") {
		t.Error("lines above the level must be filtered")
	}
}

func TestSetLevel(t *testing.T) {
	l, err := NewLogger(LogLevelError, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	l.SetLevel(LogLevelDebug)
	if got := l.GetLevel(); got != LogLevelDebug {
		t.Errorf("GetLevel = %d, want %d", got, LogLevelDebug)
	}
}
