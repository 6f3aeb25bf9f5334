package tailer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/protoseclab/fuzzlab/internal/labapi"
)

// scriptedFetcher returns canned results in order, then empty reads.
type scriptedFetcher struct {
	mu        sync.Mutex
	script    []scriptStep
	positions []int64 // lastPosition values observed per call
}

type scriptStep struct {
	res *labapi.ReadLogResult
	err error
}

func (f *scriptedFetcher) ReadLog(ctx context.Context, protocol string, lastPosition int64) (*labapi.ReadLogResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = append(f.positions, lastPosition)
	if len(f.script) == 0 {
		return &labapi.ReadLogResult{Content: "", Position: lastPosition}, nil
	}
	step := f.script[0]
	f.script = f.script[1:]
	return step.res, step.err
}

func (f *scriptedFetcher) observed() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.positions))
	copy(out, f.positions)
	return out
}

func collectLines(t *testing.T, fetcher *scriptedFetcher, polls int) []string {
	t.Helper()
	var mu sync.Mutex
	var lines []string

	tl := New(fetcher, 10*time.Millisecond, nil)
	tl.Start(context.Background(), "sol", func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})

	deadline := time.After(2 * time.Second)
	for {
		fetcher.mu.Lock()
		n := len(fetcher.positions)
		fetcher.mu.Unlock()
		if n >= polls {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("tailer made only %d polls", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	tl.Stop()

	mu.Lock()
	defer mu.Unlock()
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

func TestTailerDeliversLinesAndSkipsBlanks(t *testing.T) {
	fetcher := &scriptedFetcher{script: []scriptStep{
		{res: &labapi.ReadLogResult{Content: "one\n\ntwo\n", Position: 9}},
	}}
	lines := collectLines(t, fetcher, 2)

	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestTailerCursorMonotonicAcrossFailures(t *testing.T) {
	fetcher := &scriptedFetcher{script: []scriptStep{
		{res: &labapi.ReadLogResult{Content: "a\n", Position: 100}},
		{err: errors.New("http 500")},
		{res: &labapi.ReadLogResult{Content: "b\n", Position: 200}},
	}}
	_ = collectLines(t, fetcher, 4)

	positions := fetcher.observed()
	// After the first successful read the cursor must never regress,
	// including across the failed poll.
	sawAdvance := false
	for i := 1; i < len(positions); i++ {
		if positions[i] < positions[i-1] {
			t.Fatalf("cursor regressed: %v", positions)
		}
		if positions[i] > positions[i-1] {
			sawAdvance = true
		}
	}
	if !sawAdvance {
		t.Fatalf("cursor never advanced: %v", positions)
	}
}

func TestTailerEmptyContentKeepsCursor(t *testing.T) {
	fetcher := &scriptedFetcher{script: []scriptStep{
		{res: &labapi.ReadLogResult{Content: "a\n", Position: 50}},
		// Backend reports a larger position with empty content; an
		// empty read must not advance the cursor.
		{res: &labapi.ReadLogResult{Content: "", Position: 999}},
	}}

	tl := New(fetcher, 10*time.Millisecond, nil)
	tl.Start(context.Background(), "mqtt", func(string) {})
	time.Sleep(60 * time.Millisecond)
	tl.Stop()

	if got := tl.Cursor(); got != 50 {
		t.Fatalf("expected cursor 50, got %d", got)
	}
}

func TestTailerStopIdempotentAndReset(t *testing.T) {
	fetcher := &scriptedFetcher{script: []scriptStep{
		{res: &labapi.ReadLogResult{Content: "x\n", Position: 10}},
	}}
	tl := New(fetcher, 10*time.Millisecond, nil)
	tl.Start(context.Background(), "sol", func(string) {})
	time.Sleep(30 * time.Millisecond)

	tl.Stop()
	tl.Stop() // second stop must be a no-op

	if tl.Cursor() == 0 {
		t.Fatal("cursor should have advanced before reset")
	}
	tl.Reset()
	if tl.Cursor() != 0 {
		t.Fatalf("reset must zero the cursor, got %d", tl.Cursor())
	}
}
