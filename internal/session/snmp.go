package session

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/protoseclab/fuzzlab/internal/fuzz"
)

// snmpStrategy replays a pre-parsed packet sequence client-side. There
// is no external process: the backend is not involved at all.
type snmpStrategy struct {
	c      *Controller
	cancel context.CancelFunc
	wg     sync.WaitGroup
	pcap   *pcapDumper
}

func (s *snmpStrategy) start(ctx context.Context) error {
	c := s.c

	if c.opts.PcapPath != "" {
		dumper, err := newPcapDumper(c.opts.PcapPath, c.opts.TargetHost, c.opts.TargetPort)
		if err != nil {
			return fmt.Errorf("open pcap artifact: %w", err)
		}
		s.pcap = dumper
	}

	replayCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.replay(replayCtx)

	c.emit(fuzz.NewRecord(fuzz.SeverityInfo,
		fmt.Sprintf("SNMP replay started: %d packets at %d pkt/s", len(c.opts.Packets), c.opts.RatePPS)))
	return nil
}

// replay iterates the packet sequence at the target rate, checking the
// paused and liveness flags before each packet. A crash packet triggers
// crash handling immediately rather than waiting for the next tick, and
// no further packets are processed.
func (s *snmpStrategy) replay(ctx context.Context) {
	defer s.wg.Done()
	c := s.c

	delay := time.Second / time.Duration(c.opts.RatePPS)
	finished := true

	for i, p := range c.opts.Packets {
		if !s.waitWhilePaused(ctx) {
			finished = false
			break
		}

		c.mu.Lock()
		c.counters.Total++
		c.snmp.CountPacket(p)
		switch p.Outcome {
		case fuzz.OutcomeSuccess:
			c.counters.Success++
		case fuzz.OutcomeTimeout:
			c.counters.Timeout++
		case fuzz.OutcomeFailed:
			c.counters.Failed++
		case fuzz.OutcomeCrash:
			c.counters.Crash++
		}
		c.throughput = c.opts.RatePPS
		logEvery := c.opts.LogEvery
		c.mu.Unlock()

		if s.pcap != nil && p.Hex != "" {
			// Artifact write failures do not interrupt the replay.
			_ = s.pcap.writePacket(p.Hex, time.Now())
		}

		isCrash := p.Outcome == fuzz.OutcomeCrash || p.IsCrashEvent()

		// Surfacing every packet would swamp the log panel; crash
		// packets always surface immediately.
		if isCrash {
			c.emit(packetRecord(p))
			c.handleCrash(p.Crash)
			finished = false
			break
		}
		if i%logEvery == 0 {
			c.emit(packetRecord(p))
		}

		select {
		case <-ctx.Done():
			finished = false
		case <-time.After(delay):
		}
		if ctx.Err() != nil {
			finished = false
			break
		}
	}

	if finished {
		c.emit(fuzz.NewRecord(fuzz.SeverityInfo, "SNMP replay finished"))
		go c.Stop(context.Background())
	}
}

// waitWhilePaused blocks while the session is paused. It returns false
// once the replay context is cancelled.
func (s *snmpStrategy) waitWhilePaused(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		s.c.mu.Lock()
		paused := s.c.paused
		s.c.mu.Unlock()
		if !paused {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (s *snmpStrategy) stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.pcap != nil {
		_ = s.pcap.close()
		s.pcap = nil
	}

	// Recompute throughput from what was actually replayed.
	c := s.c
	c.mu.Lock()
	duration := c.endTime.Sub(c.startTime).Seconds()
	if duration > 0 {
		c.throughput = int(math.Round(float64(c.counters.Total) / duration))
	}
	c.mu.Unlock()
}

func packetRecord(p *fuzz.FuzzPacket) *fuzz.Record {
	switch {
	case p.IsCrashEvent() || p.Outcome == fuzz.OutcomeCrash:
		msg := fmt.Sprintf("[%s] CRASH", p.ID)
		if p.Crash != nil && p.Crash.Message != "" {
			msg += ": " + p.Crash.Message
		}
		return fuzz.NewRecord(fuzz.SeverityError, msg)
	case p.Outcome == fuzz.OutcomeSuccess:
		return fuzz.NewRecord(fuzz.SeveritySuccess,
			fmt.Sprintf("[%s] %s/%s ok, %d bytes", p.ID, p.Version, p.Type, p.ResponseSize))
	case p.Outcome == fuzz.OutcomeTimeout:
		return fuzz.NewRecord(fuzz.SeverityWarning,
			fmt.Sprintf("[%s] %s/%s timeout", p.ID, p.Version, p.Type))
	case p.Outcome == fuzz.OutcomeFailed:
		msg := fmt.Sprintf("[%s] generation failed", p.ID)
		if p.FailReason != "" {
			msg += ": " + p.FailReason
		}
		return fuzz.NewRecord(fuzz.SeverityWarning, msg)
	}
	return fuzz.NewRecord(fuzz.SeverityInfo,
		fmt.Sprintf("[%s] %s/%s sent", p.ID, p.Version, p.Type))
}
