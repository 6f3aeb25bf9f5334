package tui

import (
	"strings"
	"testing"

	"github.com/protoseclab/fuzzlab/internal/session"
)

func TestViewRendersIdleSession(t *testing.T) {
	ctrl := session.New(nil, nil, nil, nil)
	m := NewModel(ctrl)

	out := m.View()
	if !strings.Contains(out, "fuzzlab") {
		t.Fatal("header missing")
	}
	if !strings.Contains(out, "idle") {
		t.Fatalf("state missing from view: %q", out)
	}
	if !strings.Contains(out, "total 0") {
		t.Fatal("counters missing")
	}
}

func TestFormatElapsed(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{0, "00:00"},
		{59, "00:59"},
		{61, "01:01"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}
	for _, tc := range cases {
		if got := formatElapsed(tc.seconds); got != tc.want {
			t.Errorf("formatElapsed(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 20); got != "short" {
		t.Errorf("unexpected truncation: %q", got)
	}
	if got := truncate("a very long message indeed", 10); got != "a very ..." {
		t.Errorf("truncate = %q", got)
	}
}
