// Package session owns the fuzzing run lifecycle: start/stop
// orchestration per protocol, pause/resume, crash-triggered auto-stop,
// elapsed-time and throughput bookkeeping, and the final history
// snapshot.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/protoseclab/fuzzlab/internal/fuzz"
	"github.com/protoseclab/fuzzlab/internal/history"
	"github.com/protoseclab/fuzzlab/internal/labapi"
	"github.com/protoseclab/fuzzlab/internal/logging"
	"github.com/protoseclab/fuzzlab/internal/tailer"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
)

// Backend is the slice of the lab API the controller depends on.
// *labapi.Client satisfies it.
type Backend interface {
	PreStartCleanup(ctx context.Context, protocol string) (*labapi.CleanupResult, error)
	WriteScript(ctx context.Context, protocol, content string, impls []string) (string, error)
	ExecuteCommand(ctx context.Context, protocol string, impls []string) (*labapi.ExecResult, error)
	StopProcess(ctx context.Context, pid int, protocol string) error
	StopAndCleanup(ctx context.Context, containerID, protocol string) error
	ReadLog(ctx context.Context, protocol string, lastPosition int64) (*labapi.ReadLogResult, error)
}

// Options configures one run.
type Options struct {
	Protocol   fuzz.Protocol
	Engine     string
	TargetHost string
	TargetPort int

	// SNMP replay input: a pre-parsed packet sequence and, when the
	// source log carried one, the authoritative summary histograms.
	Packets         []*fuzz.FuzzPacket
	SummaryVersions map[string]int
	SummaryTypes    map[string]int
	RatePPS         int
	LogEvery        int           // surface 1-in-N replayed packets
	CrashStopDelay  time.Duration // delay between crash detection and auto-stop
	PcapPath        string        // optional replay artifact

	// SOL/MQTT
	LaunchScript    string
	Implementations []string
	PollInterval    time.Duration
}

// recentCap bounds the UI log buffer.
const recentCap = 500

// Counters are the run-level aggregate counts shown live and persisted
// to history.
type Counters struct {
	Total   int
	Success int
	Timeout int
	Failed  int
	Crash   int
}

// Snapshot is a point-in-time view of the session for rendering.
type Snapshot struct {
	State          State
	Protocol       fuzz.Protocol
	ElapsedSeconds int64
	Throughput     int
	Counters       Counters
	DiffCount      int
	Crashed        bool
}

// Controller is the session state machine. It is the single writer of
// session state; parsers and the tailer feed it through callbacks it
// registers.
type Controller struct {
	backend Backend
	hist    *history.Store
	logger  *logging.Logger
	sink    fuzz.RecordSink

	mu         sync.Mutex
	state      State
	opts       Options
	strategy   strategy
	tail       *tailer.Tailer
	startTime  time.Time
	endTime    time.Time
	elapsed    int64
	throughput int

	counters Counters
	snmp     *fuzz.SNMPStats
	afl      *fuzz.AFLStats
	mqtt     *fuzz.MQTTStats

	crashed     bool
	crashDetail *fuzz.CrashEvent

	containerID string
	pid         int

	paused      bool
	elapsedStop context.CancelFunc
	done        chan struct{}

	recent []*fuzz.Record
}

// New creates an idle controller.
func New(backend Backend, hist *history.Store, logger *logging.Logger, sink fuzz.RecordSink) *Controller {
	return &Controller{
		backend: backend,
		hist:    hist,
		logger:  logger,
		sink:    sink,
		state:   StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done returns a channel closed when the current run completes. It is
// only valid between Start and the next Start.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Snapshot returns a copy of the live statistics for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:          c.state,
		Protocol:       c.opts.Protocol,
		ElapsedSeconds: c.elapsed,
		Throughput:     c.throughput,
		Counters:       c.counters,
		Crashed:        c.crashed,
	}
	if c.mqtt != nil {
		snap.DiffCount = c.mqtt.DiffCount
	}
	return snap
}

// Recent returns the bounded buffer of display records, oldest first.
func (c *Controller) Recent() []*fuzz.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*fuzz.Record, len(c.recent))
	copy(out, c.recent)
	return out
}

// MQTTStats exposes the live MQTT aggregate for rendering. Nil outside
// MQTT runs.
func (c *Controller) MQTTStats() *fuzz.MQTTStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mqtt
}

// Start validates input and launches the protocol-specific startup
// routine. On failure the controller reverts to idle; there is no
// automatic retry.
func (c *Controller) Start(ctx context.Context, opts Options) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateCompleted {
		c.mu.Unlock()
		return fmt.Errorf("cannot start: session is %s", c.state)
	}
	if !opts.Protocol.Valid() {
		c.mu.Unlock()
		return fmt.Errorf("unknown protocol %q", opts.Protocol)
	}
	// Input errors are rejected synchronously, before any state change.
	if opts.Protocol == fuzz.ProtocolSNMP && len(opts.Packets) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("snmp run requires a parsed packet sequence; load a fuzz log first")
	}
	applyDefaults(&opts)

	c.state = StateStarting
	c.opts = opts
	c.resetLocked()
	c.startTime = time.Now()
	c.done = make(chan struct{})
	c.tail = tailer.New(c.backend, opts.PollInterval, c.logger)

	switch opts.Protocol {
	case fuzz.ProtocolSNMP:
		c.strategy = &snmpStrategy{c: c}
	case fuzz.ProtocolSOL:
		c.strategy = &solStrategy{c: c}
	case fuzz.ProtocolMQTT:
		c.strategy = &mqttStrategy{c: c}
	}
	strat := c.strategy
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.LogSessionStart(string(opts.Protocol), opts.Engine, opts.TargetHost, opts.TargetPort)
	}

	if err := strat.start(ctx); err != nil {
		c.emit(fuzz.NewRecord(fuzz.SeverityError, fmt.Sprintf("startup failed: %v", err)))
		c.mu.Lock()
		c.state = StateIdle
		done := c.done
		c.done = nil
		c.mu.Unlock()
		if done != nil {
			close(done)
		}
		return err
	}

	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	c.startElapsedTicker()
	return nil
}

func applyDefaults(opts *Options) {
	if opts.RatePPS <= 0 {
		opts.RatePPS = 20
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = 5
	}
	if opts.CrashStopDelay <= 0 {
		opts.CrashStopDelay = 150 * time.Millisecond
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
}

// resetLocked zeroes per-run state. Caller holds the lock.
func (c *Controller) resetLocked() {
	c.counters = Counters{}
	c.snmp = fuzz.NewSNMPStats()
	c.afl = fuzz.NewAFLStats()
	c.mqtt = fuzz.NewMQTTStats()
	c.crashed = false
	c.crashDetail = nil
	c.containerID = ""
	c.pid = 0
	c.elapsed = 0
	c.throughput = 0
	c.paused = false
	c.recent = nil
}

// Pause suspends the SNMP replay loop and elapsed ticking. Log polling
// for SOL/MQTT deliberately continues while paused; only the replay
// loop and the clock stop.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return
	}
	c.state = StatePaused
	c.paused = true
}

// Resume reverses Pause.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return
	}
	c.state = StateRunning
	c.paused = false
}

// Stop tears the run down: clock, tailer, protocol-specific teardown,
// final statistics, history record. Safe to call when idle and safe to
// call repeatedly.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	switch c.state {
	case StateRunning, StatePaused, StateStarting:
	default:
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	c.endTime = time.Now()
	strat := c.strategy
	tail := c.tail
	stopClock := c.elapsedStop
	c.elapsedStop = nil
	c.mu.Unlock()

	if stopClock != nil {
		stopClock()
	}
	if tail != nil {
		tail.Stop()
	}
	if strat != nil {
		strat.stop(ctx)
	}

	c.finalize()

	c.mu.Lock()
	c.state = StateCompleted
	done := c.done
	c.done = nil
	c.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// finalize computes final derived statistics and writes the history
// record. Summary-level totals are preferred over running counters
// where both exist, since running counters may have been throttled for
// display while summaries reflect the complete dataset.
func (c *Controller) finalize() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.Protocol == fuzz.ProtocolSNMP && c.opts.SummaryVersions != nil {
		c.snmp.ApplySummary(c.opts.SummaryVersions, c.opts.SummaryTypes)
	}
	if c.opts.Protocol == fuzz.ProtocolMQTT && c.mqtt.TotalRequests > c.counters.Total {
		c.counters.Total = c.mqtt.TotalRequests
	}
	if c.opts.Protocol == fuzz.ProtocolSOL && c.afl.Snapshot != nil {
		s := c.afl.Snapshot
		c.counters.Total = s.PacketCount()
		c.counters.Success = s.SuccessCount()
		c.counters.Crash = s.CrashCount()
		c.throughput = s.Throughput()
	}

	duration := c.endTime.Sub(c.startTime).Seconds()
	rec := history.Record{
		ID:              history.NewRunID(c.opts.Protocol, c.startTime),
		StartTime:       c.startTime,
		EndTime:         c.endTime,
		Protocol:        c.opts.Protocol,
		Engine:          c.opts.Engine,
		TargetHost:      c.opts.TargetHost,
		TargetPort:      c.opts.TargetPort,
		DurationSeconds: duration,
		TotalPackets:    c.counters.Total,
		SuccessCount:    c.counters.Success,
		TimeoutCount:    c.counters.Timeout,
		FailedCount:     c.counters.Failed,
		CrashCount:      c.counters.Crash,
		Crashed:         c.crashed,
		CrashDetail:     c.crashDetail,
	}
	if c.counters.Total > 0 {
		rec.SuccessRate = float64(c.counters.Success) / float64(c.counters.Total)
	}
	switch c.opts.Protocol {
	case fuzz.ProtocolSNMP:
		rec.SNMP = c.snmp
	case fuzz.ProtocolSOL:
		rec.AFL = c.afl.Snapshot
	case fuzz.ProtocolMQTT:
		rec.MQTT = c.mqtt
	}

	if c.hist != nil {
		c.hist.Append(rec)
	}
}

// emit forwards a record to the sink and the bounded UI buffer.
func (c *Controller) emit(rec *fuzz.Record) {
	if rec == nil {
		return
	}
	c.mu.Lock()
	c.recent = append(c.recent, rec)
	if len(c.recent) > recentCap {
		c.recent = c.recent[len(c.recent)-recentCap:]
	}
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(rec)
	}
}

// handleCrash marks the session crashed and schedules an auto-stop
// after a short settle delay so pending display updates land first.
func (c *Controller) handleCrash(detail *fuzz.CrashEvent) {
	c.mu.Lock()
	alreadyCrashed := c.crashed
	c.crashed = true
	if c.crashDetail == nil {
		c.crashDetail = detail
	}
	delay := c.opts.CrashStopDelay
	c.mu.Unlock()

	if alreadyCrashed {
		return
	}
	msg := "crash detected"
	if detail != nil && detail.Message != "" {
		msg = "crash detected: " + detail.Message
	}
	c.emit(fuzz.NewRecord(fuzz.SeverityError, msg))

	time.AfterFunc(delay, func() {
		c.Stop(context.Background())
	})
}

// startElapsedTicker runs the 1-second session clock. The clock pauses
// with the session.
func (c *Controller) startElapsedTicker() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.elapsedStop = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				if !c.paused {
					c.elapsed++
				}
				c.mu.Unlock()
			}
		}
	}()
}
