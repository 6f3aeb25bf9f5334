package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/protoseclab/fuzzlab/internal/fuzz"
	"github.com/protoseclab/fuzzlab/internal/parser"
)

// mqttStrategy wires the multi-broker differential fuzzer's log into
// the MQTT parser. Startup itself is thin: the fuzzer cluster is
// managed out-of-band, so starting a session means announcing it and
// beginning to tail.
type mqttStrategy struct {
	c      *Controller
	parser *parser.MQTTParser
}

func (m *mqttStrategy) start(ctx context.Context) error {
	c := m.c

	m.parser = parser.NewMQTTParser(c.mqtt)
	m.parser.OnComplete = func() {
		// The end-time line signals run completion; stop outside the
		// line-handler's lock.
		go c.Stop(context.Background())
	}

	msg := "MQTT differential fuzzing started"
	if len(c.opts.Implementations) > 0 {
		msg += ": brokers " + strings.Join(c.opts.Implementations, ", ")
	}
	c.emit(fuzz.NewRecord(fuzz.SeverityInfo, msg))

	c.mu.Lock()
	tail := c.tail
	c.mu.Unlock()
	tail.Start(context.Background(), string(fuzz.ProtocolMQTT), m.handleLine)
	return nil
}

func (m *mqttStrategy) handleLine(line string) {
	c := m.c

	c.mu.Lock()
	rec := m.parser.ParseLine(line)
	c.counters.Total = c.mqtt.TotalRequests
	c.counters.Crash = c.mqtt.CrashCount
	crashNow := c.mqtt.CrashCount > 0 && !c.crashed
	if crashNow {
		c.crashed = true
	}
	c.mu.Unlock()

	if crashNow {
		c.emit(fuzz.NewRecord(fuzz.SeverityError,
			fmt.Sprintf("broker crash reported (crash_number now %d)", c.Snapshot().Counters.Crash)))
	}
	c.emit(rec)
}

func (m *mqttStrategy) stop(ctx context.Context) {
	// Nothing to tear down: the controller already stopped the tailer
	// and the broker cluster outlives individual sessions.
}
