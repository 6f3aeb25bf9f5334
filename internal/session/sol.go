package session

import (
	"context"
	"fmt"

	"github.com/protoseclab/fuzzlab/internal/fuzz"
	"github.com/protoseclab/fuzzlab/internal/parser"
)

// defaultSOLScript is the launch script staged when the caller supplies
// none. The backend substitutes its own paths when executing.
const defaultSOLScript = `#!/bin/sh
set -e
afl-fuzz -d -i /fuzz/in -o /fuzz/out -N tcp://target/554 -- /fuzz/target/sol_server
`

// solStrategy drives the containerized AFL-style pipeline. Cleanup of
// the previous run's container and output is front-loaded here, before
// launch, so users can inspect a completed run's artifacts until the
// next start purges them.
type solStrategy struct {
	c *Controller
}

func (s *solStrategy) start(ctx context.Context) error {
	c := s.c
	protocol := string(fuzz.ProtocolSOL)

	cleanup, err := c.backend.PreStartCleanup(ctx, protocol)
	if err != nil {
		return fmt.Errorf("pre-start cleanup: %w", err)
	}
	if cleanup.StoppedContainer != "" {
		c.emit(fuzz.NewRecord(fuzz.SeverityInfo, "removed stale container "+cleanup.StoppedContainer))
	}

	script := c.opts.LaunchScript
	if script == "" {
		script = defaultSOLScript
	}
	path, err := c.backend.WriteScript(ctx, protocol, script, c.opts.Implementations)
	if err != nil {
		return fmt.Errorf("write launch script: %w", err)
	}
	c.emit(fuzz.NewRecord(fuzz.SeverityInfo, "launch script staged at "+path))

	res, err := c.backend.ExecuteCommand(ctx, protocol, c.opts.Implementations)
	if err != nil {
		return fmt.Errorf("execute command: %w", err)
	}

	c.mu.Lock()
	c.containerID = res.ContainerID
	c.pid = res.PID
	tail := c.tail
	c.mu.Unlock()

	if res.ContainerID != "" {
		c.emit(fuzz.NewRecord(fuzz.SeverityInfo, "fuzzer container started: "+res.ContainerID))
	} else {
		c.emit(fuzz.NewRecord(fuzz.SeverityInfo, fmt.Sprintf("fuzzer process started: pid %d", res.PID)))
	}

	tail.Start(context.Background(), protocol, s.handleLine)
	return nil
}

func (s *solStrategy) handleLine(line string) {
	c := s.c
	parsed := parser.ParseAFLLine(line)

	if parsed.Kind != parser.AFLTelemetry {
		c.emit(parsed.Record)
		return
	}

	snap := parsed.Snapshot
	c.mu.Lock()
	c.afl.Replace(snap)
	c.counters.Total = snap.PacketCount()
	c.counters.Success = snap.SuccessCount()
	c.counters.Crash = snap.CrashCount()
	c.throughput = snap.Throughput()
	if snap.UniqueCrashes > 0 {
		// Crashes are findings for this pipeline, not a stop trigger;
		// the fuzzer keeps mutating past them.
		c.crashed = true
	}
	c.mu.Unlock()

	c.emit(fuzz.NewRecord(fuzz.SeverityInfo, parser.FormatAFLSnapshot(snap)))
}

func (s *solStrategy) stop(ctx context.Context) {
	c := s.c
	c.mu.Lock()
	containerID := c.containerID
	pid := c.pid
	c.mu.Unlock()

	// Output artifacts are preserved on stop; purging belongs to the
	// next run's pre-start cleanup.
	switch {
	case containerID != "":
		if err := c.backend.StopAndCleanup(ctx, containerID, string(fuzz.ProtocolSOL)); err != nil {
			c.emit(fuzz.NewRecord(fuzz.SeverityWarning, fmt.Sprintf("container teardown failed: %v", err)))
		}
	case pid != 0:
		if err := c.backend.StopProcess(ctx, pid, string(fuzz.ProtocolSOL)); err != nil {
			c.emit(fuzz.NewRecord(fuzz.SeverityWarning, fmt.Sprintf("process teardown failed: %v", err)))
		}
	}
}
