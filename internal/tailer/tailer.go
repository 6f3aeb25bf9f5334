// Package tailer polls the lab backend's incremental log-read endpoint
// and feeds new lines to a handler. Reads are best-effort: a failed
// poll is skipped and the next tick self-heals.
package tailer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/protoseclab/fuzzlab/internal/labapi"
	"github.com/protoseclab/fuzzlab/internal/logging"
)

// LogFetcher is the slice of the lab API the tailer needs.
type LogFetcher interface {
	ReadLog(ctx context.Context, protocol string, lastPosition int64) (*labapi.ReadLogResult, error)
}

// LineHandler receives one non-blank log line.
type LineHandler func(line string)

// Tailer drives periodic incremental reads of one protocol's log.
type Tailer struct {
	fetcher  LogFetcher
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	cursor  int64
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// New builds a tailer polling at the given interval.
func New(fetcher LogFetcher, interval time.Duration, logger *logging.Logger) *Tailer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Tailer{fetcher: fetcher, interval: interval, logger: logger}
}

// Start begins polling for the protocol, delivering each new non-blank
// line to handler. Calling Start while already running is a no-op.
func (t *Tailer) Start(ctx context.Context, protocol string, handler LineHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.running = true

	t.wg.Add(1)
	go t.loop(ctx, protocol, handler)
}

func (t *Tailer) loop(ctx context.Context, protocol string, handler LineHandler) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.poll(ctx, protocol, handler)
		}
	}
}

// poll performs one incremental read. Fetch failures leave the cursor
// unchanged and are logged at debug level only; no backoff is applied.
func (t *Tailer) poll(ctx context.Context, protocol string, handler LineHandler) {
	t.mu.Lock()
	cursor := t.cursor
	t.mu.Unlock()

	res, err := t.fetcher.ReadLog(ctx, protocol, cursor)
	if err != nil {
		if t.logger != nil {
			t.logger.Debug("log poll failed for %s: %v", protocol, err)
		}
		return
	}

	// The tailer may have been stopped while the request was in flight;
	// a defunct reader discards the response.
	if ctx.Err() != nil {
		return
	}
	if res.Content == "" {
		return
	}

	// The backend's position is authoritative, tolerating rotation and
	// rewriting on its side.
	t.mu.Lock()
	t.cursor = res.Position
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.LogPoll(protocol, len(res.Content), res.Position)
	}

	for _, line := range strings.Split(res.Content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		handler(line)
	}
}

// Stop cancels polling. It is idempotent and safe to call at any time.
func (t *Tailer) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.running = false
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

// Reset stops polling and zeroes the read cursor.
func (t *Tailer) Reset() {
	t.Stop()
	t.mu.Lock()
	t.cursor = 0
	t.mu.Unlock()
}

// Cursor returns the current read position.
func (t *Tailer) Cursor() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}
