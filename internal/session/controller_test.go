package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/protoseclab/fuzzlab/internal/fuzz"
	"github.com/protoseclab/fuzzlab/internal/history"
	"github.com/protoseclab/fuzzlab/internal/labapi"
)

// fakeBackend records calls and serves scripted log reads.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	logs     []string // each element is one ReadLog content payload
	logPos   int
	execRes  labapi.ExecResult
	startErr error

	stoppedContainer string
	stoppedPID       int
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeBackend) PreStartCleanup(ctx context.Context, protocol string) (*labapi.CleanupResult, error) {
	f.record("cleanup")
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &labapi.CleanupResult{ClearedOutput: true}, nil
}

func (f *fakeBackend) WriteScript(ctx context.Context, protocol, content string, impls []string) (string, error) {
	f.record("write-script")
	return "/work/" + protocol + "/start.sh", nil
}

func (f *fakeBackend) ExecuteCommand(ctx context.Context, protocol string, impls []string) (*labapi.ExecResult, error) {
	f.record("execute")
	res := f.execRes
	return &res, nil
}

func (f *fakeBackend) StopProcess(ctx context.Context, pid int, protocol string) error {
	f.record("stop-process")
	f.mu.Lock()
	f.stoppedPID = pid
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) StopAndCleanup(ctx context.Context, containerID, protocol string) error {
	f.record("stop-and-cleanup")
	f.mu.Lock()
	f.stoppedContainer = containerID
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) ReadLog(ctx context.Context, protocol string, lastPosition int64) (*labapi.ReadLogResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logPos >= len(f.logs) {
		return &labapi.ReadLogResult{Content: "", Position: lastPosition}, nil
	}
	content := f.logs[f.logPos]
	f.logPos++
	return &labapi.ReadLogResult{Content: content, Position: lastPosition + int64(len(content))}, nil
}

func testController(t *testing.T, backend Backend) (*Controller, *history.Store) {
	t.Helper()
	store := history.NewStore(filepath.Join(t.TempDir(), "history.json"), 50, nil)
	ctrl := New(backend, store, nil, nil)
	return ctrl, store
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if c.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("state never reached %s, still %s", want, c.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func snmpPackets() []*fuzz.FuzzPacket {
	return []*fuzz.FuzzPacket{
		{ID: "1", Version: "v1", Type: "get", Outcome: fuzz.OutcomeSuccess, ResponseSize: 40, Hex: "3001"},
		{ID: "2", Version: "v2c", Type: "set", Outcome: fuzz.OutcomeTimeout, Hex: "3002"},
		{ID: "3", Version: "v1", Type: "get", Outcome: fuzz.OutcomeSuccess, ResponseSize: 41, Hex: "3003"},
	}
}

func TestStopWhenIdleIsNoOp(t *testing.T) {
	ctrl, store := testController(t, &fakeBackend{})
	ctrl.Stop(context.Background())

	if ctrl.State() != StateIdle {
		t.Fatalf("expected idle, got %s", ctrl.State())
	}
	if len(store.List()) != 0 {
		t.Fatal("stop while idle must not write a history record")
	}
}

func TestSNMPStartRequiresPackets(t *testing.T) {
	ctrl, _ := testController(t, &fakeBackend{})
	err := ctrl.Start(context.Background(), Options{Protocol: fuzz.ProtocolSNMP})
	if err == nil {
		t.Fatal("expected input error for empty packet sequence")
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("input error must not change state, got %s", ctrl.State())
	}
}

func TestSNMPReplayCompletesAndPersists(t *testing.T) {
	ctrl, store := testController(t, &fakeBackend{})

	err := ctrl.Start(context.Background(), Options{
		Protocol:        fuzz.ProtocolSNMP,
		Packets:         snmpPackets(),
		RatePPS:         1000,
		SummaryVersions: map[string]int{"v1": 2, "v2c": 1, "v3": 0},
		SummaryTypes:    map[string]int{"get": 2, "set": 1, "getnext": 0, "getbulk": 0},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, ctrl, StateCompleted)

	snap := ctrl.Snapshot()
	if snap.Counters.Total != 3 || snap.Counters.Success != 2 || snap.Counters.Timeout != 1 {
		t.Fatalf("unexpected counters: %+v", snap.Counters)
	}

	records := store.List()
	if len(records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(records))
	}
	rec := records[0]
	if rec.Protocol != fuzz.ProtocolSNMP || rec.Crashed {
		t.Fatalf("unexpected record: %+v", rec)
	}
	// Summary histograms are authoritative in the persisted record.
	if rec.SNMP == nil || rec.SNMP.VersionCounts["v1"] != 2 || rec.SNMP.TypeCounts["set"] != 1 {
		t.Fatalf("summary not applied to history: %+v", rec.SNMP)
	}
}

func TestSNMPCrashAutoStop(t *testing.T) {
	packets := []*fuzz.FuzzPacket{
		{ID: "1", Version: "v1", Type: "get", Outcome: fuzz.OutcomeSuccess},
		{ID: "2", Version: "v1", Type: "get", Outcome: fuzz.OutcomeCrash,
			Crash: &fuzz.CrashEvent{Message: "target down", LogPath: "/tmp/c.log"}},
		{ID: "3", Version: "v1", Type: "get", Outcome: fuzz.OutcomeSuccess},
	}
	ctrl, store := testController(t, &fakeBackend{})

	err := ctrl.Start(context.Background(), Options{
		Protocol:       fuzz.ProtocolSNMP,
		Packets:        packets,
		RatePPS:        1000,
		CrashStopDelay: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, ctrl, StateCompleted)

	snap := ctrl.Snapshot()
	if !snap.Crashed {
		t.Fatal("session must be flagged crashed")
	}
	// The packet after the crash is never processed.
	if snap.Counters.Total != 2 {
		t.Fatalf("expected 2 packets processed, got %d", snap.Counters.Total)
	}

	rec := store.List()[0]
	if !rec.Crashed || rec.CrashDetail == nil || rec.CrashDetail.Message != "target down" {
		t.Fatalf("crash detail not persisted: %+v", rec.CrashDetail)
	}
}

func TestSOLStartupSequenceAndTeardown(t *testing.T) {
	backend := &fakeBackend{
		execRes: labapi.ExecResult{ContainerID: "cafe01"},
		logs: []string{
			"# unix_time, cycles_done, cur_path, ...\n",
			"123456,5,10,20,3,1,45.2%,2,0,7,150.5,30,45\n",
		},
	}
	ctrl, store := testController(t, backend)

	err := ctrl.Start(context.Background(), Options{
		Protocol:     fuzz.ProtocolSOL,
		Engine:       "aflnet",
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	calls := backend.callList()
	want := []string{"cleanup", "write-script", "execute"}
	if len(calls) < 3 {
		t.Fatalf("startup calls missing: %v", calls)
	}
	for i, w := range want {
		if calls[i] != w {
			t.Fatalf("startup order wrong: %v", calls)
		}
	}

	// Wait for the telemetry line to arrive.
	deadline := time.After(2 * time.Second)
	for ctrl.Snapshot().Counters.Total != 10 {
		select {
		case <-deadline:
			t.Fatalf("telemetry never applied: %+v", ctrl.Snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}

	ctrl.Stop(context.Background())
	waitForState(t, ctrl, StateCompleted)

	backend.mu.Lock()
	stopped := backend.stoppedContainer
	backend.mu.Unlock()
	if stopped != "cafe01" {
		t.Fatalf("expected container teardown, got %q", stopped)
	}

	rec := store.List()[0]
	if rec.AFL == nil || rec.AFL.CurPath != 10 {
		t.Fatalf("final AFL snapshot not persisted: %+v", rec.AFL)
	}
	if rec.TotalPackets != 10 || rec.SuccessCount != 17 || rec.CrashCount != 2 {
		t.Fatalf("derived counters wrong: %+v", rec)
	}
}

func TestSOLStartupFailureRevertsToIdle(t *testing.T) {
	backend := &fakeBackend{startErr: errors.New("docker daemon unreachable")}
	ctrl, store := testController(t, backend)

	err := ctrl.Start(context.Background(), Options{Protocol: fuzz.ProtocolSOL})
	if err == nil {
		t.Fatal("expected startup failure")
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("failed startup must revert to idle, got %s", ctrl.State())
	}
	if len(store.List()) != 0 {
		t.Fatal("failed startup must not write history")
	}
}

func TestMQTTEndTimeLineCompletesRun(t *testing.T) {
	backend := &fakeBackend{
		logs: []string{
			"Fuzzing start time: 2024-07-06 00:00:01\n" +
				"protocol_version: 5, type: {Message Unexpected}, diff_range_broker: ['flashmq', 'mosquitto'], msg_type: PUBREL, direction: broker\n",
			"Fuzzing request number (client): 120\nFuzzing request number (broker): 80\n",
			"Fuzzing end time: 2024-07-06 00:10:00\n",
		},
	}
	ctrl, store := testController(t, backend)

	err := ctrl.Start(context.Background(), Options{
		Protocol:     fuzz.ProtocolMQTT,
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, ctrl, StateCompleted)

	rec := store.List()[0]
	if rec.MQTT == nil {
		t.Fatal("mqtt stats block missing from history")
	}
	if rec.MQTT.DiffCount != 1 || len(rec.MQTT.DiffReports) != 1 {
		t.Fatalf("diff report not captured: %+v", rec.MQTT)
	}
	if rec.MQTT.BrokerIssues["flashmq"] != 1 || rec.MQTT.BrokerIssues["mosquitto"] != 1 {
		t.Fatalf("broker issues wrong: %v", rec.MQTT.BrokerIssues)
	}
	// Summary totals win over throttled running counters.
	if rec.TotalPackets != 200 {
		t.Fatalf("expected total from request counts, got %d", rec.TotalPackets)
	}
}

func TestPauseOnlySuspendsReplay(t *testing.T) {
	ctrl, _ := testController(t, &fakeBackend{})

	packets := make([]*fuzz.FuzzPacket, 200)
	for i := range packets {
		packets[i] = &fuzz.FuzzPacket{ID: "1", Version: "v1", Type: "get", Outcome: fuzz.OutcomeSuccess}
	}
	err := ctrl.Start(context.Background(), Options{
		Protocol: fuzz.ProtocolSNMP,
		Packets:  packets,
		RatePPS:  100,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	ctrl.Pause()
	if ctrl.State() != StatePaused {
		t.Fatalf("expected paused, got %s", ctrl.State())
	}
	countAtPause := ctrl.Snapshot().Counters.Total
	time.Sleep(300 * time.Millisecond)
	// Allow for one packet already past the pause check.
	if got := ctrl.Snapshot().Counters.Total; got > countAtPause+1 {
		t.Fatalf("replay continued while paused: %d -> %d", countAtPause, got)
	}

	ctrl.Resume()
	time.Sleep(100 * time.Millisecond)
	if got := ctrl.Snapshot().Counters.Total; got <= countAtPause {
		t.Fatalf("replay did not resume: still %d", got)
	}

	ctrl.Stop(context.Background())
	waitForState(t, ctrl, StateCompleted)
	// Stopping twice is safe.
	ctrl.Stop(context.Background())
}
