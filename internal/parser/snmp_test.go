package parser

import (
	"reflect"
	"strings"
	"testing"

	"github.com/protoseclab/fuzzlab/internal/fuzz"
)

const sampleSNMPLog = `[1] 版本=v1, 类型=get
选择OIDs=['1.3.6.1.2.1.1.1.0']
报文HEX: 30290201
[发送] 43 字节
[接收成功] 42 字节
统计: {'v1': 1, 'v2c': 0, 'v3': 0}, {'get': 1, 'set': 0, 'getnext': 0, 'getbulk': 0}`

func TestParseSNMPLogBasic(t *testing.T) {
	res := ParseSNMPLog(sampleSNMPLog)

	if len(res.Packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(res.Packets))
	}
	p := res.Packets[0]
	if p.ID != "1" || p.Version != "v1" || p.Type != "get" {
		t.Fatalf("unexpected packet identity: %+v", p)
	}
	if p.Outcome != fuzz.OutcomeSuccess {
		t.Fatalf("expected success outcome, got %s", p.Outcome)
	}
	if p.ResponseSize != 42 {
		t.Fatalf("expected response size 42, got %d", p.ResponseSize)
	}
	if p.SendSize != 43 {
		t.Fatalf("expected send size 43, got %d", p.SendSize)
	}
	if len(p.OIDs) != 1 || p.OIDs[0] != "1.3.6.1.2.1.1.1.0" {
		t.Fatalf("unexpected OIDs: %v", p.OIDs)
	}
	if p.Hex != "30290201" {
		t.Fatalf("unexpected hex: %s", p.Hex)
	}

	if !res.HasSummary {
		t.Fatal("expected summary to be parsed")
	}
	if res.VersionCounts["v1"] != 1 || res.VersionCounts["v2c"] != 0 {
		t.Fatalf("unexpected version histogram: %v", res.VersionCounts)
	}
	if res.TypeCounts["get"] != 1 || res.TypeCounts["set"] != 0 {
		t.Fatalf("unexpected type histogram: %v", res.TypeCounts)
	}
}

func TestParseSNMPLogDeterministic(t *testing.T) {
	a := ParseSNMPLog(sampleSNMPLog)
	b := ParseSNMPLog(sampleSNMPLog)

	if len(a.Packets) != len(b.Packets) {
		t.Fatalf("packet counts differ: %d vs %d", len(a.Packets), len(b.Packets))
	}
	for i := range a.Packets {
		pa, pb := a.Packets[i], b.Packets[i]
		if pa.ID != pb.ID || pa.Outcome != pb.Outcome || pa.Hex != pb.Hex {
			t.Fatalf("packet %d differs between parses", i)
		}
	}
	if !reflect.DeepEqual(a.VersionCounts, b.VersionCounts) ||
		!reflect.DeepEqual(a.TypeCounts, b.TypeCounts) {
		t.Fatal("histograms differ between parses")
	}
}

func TestParseSNMPLogSummaryAuthoritative(t *testing.T) {
	// Two parsed packets, but the summary claims different totals: the
	// summary wins.
	log := `[1] 版本=v1, 类型=get
[接收成功] 10 字节
[2] 版本=v1, 类型=get
[接收超时]
统计: {'v1': 7, 'v2c': 2, 'v3': 0}, {'get': 5, 'set': 4, 'getnext': 0, 'getbulk': 0}`
	res := ParseSNMPLog(log)

	stats := fuzz.NewSNMPStats()
	for _, p := range res.Packets {
		stats.CountPacket(p)
	}
	if res.HasSummary {
		stats.ApplySummary(res.VersionCounts, res.TypeCounts)
	}

	if stats.VersionCounts["v1"] != 7 || stats.VersionCounts["v2c"] != 2 {
		t.Fatalf("summary should be authoritative, got %v", stats.VersionCounts)
	}
	if stats.TypeCounts["get"] != 5 || stats.TypeCounts["set"] != 4 {
		t.Fatalf("summary should be authoritative, got %v", stats.TypeCounts)
	}
}

func TestParseSNMPLogMalformedSummaryTolerated(t *testing.T) {
	log := `[1] 版本=v2c, 类型=set
[接收成功] 5 字节
统计: {'v1': broken, {'get': 1}`
	res := ParseSNMPLog(log)

	if res.HasSummary {
		t.Fatal("malformed summary must not be reported as parsed")
	}
	if len(res.Packets) != 1 || res.Packets[0].Version != "v2c" {
		t.Fatalf("packet parsing must survive a bad summary: %+v", res.Packets)
	}
}

func TestParseSNMPLogGenerationFailure(t *testing.T) {
	// Matching ID finalizes the in-progress packet; a mismatched ID
	// yields a standalone failed packet.
	log := `[3] 版本=v3, 类型=getbulk
[3] 生成失败: 编码错误
[9] 生成失败: 超出范围`
	res := ParseSNMPLog(log)

	if len(res.Packets) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(res.Packets))
	}
	if res.Packets[0].ID != "3" || res.Packets[0].Outcome != fuzz.OutcomeFailed {
		t.Fatalf("expected packet 3 failed, got %+v", res.Packets[0])
	}
	if res.Packets[0].FailReason != "编码错误" {
		t.Fatalf("unexpected fail reason: %q", res.Packets[0].FailReason)
	}
	if res.Packets[1].ID != "9" || res.Packets[1].Outcome != fuzz.OutcomeFailed {
		t.Fatalf("expected standalone failed packet 9, got %+v", res.Packets[1])
	}
}

func TestParseSNMPLogCrashLookahead(t *testing.T) {
	log := `[5] 版本=v1, 类型=set
报文HEX: deadbeef
[监控] 检测到崩溃: 目标无响应
可疑报文HEX: deadbeef
崩溃日志已导出: /tmp/crash_5.log
[接收超时]`
	res := ParseSNMPLog(log)

	var crash *fuzz.FuzzPacket
	var regular *fuzz.FuzzPacket
	for _, p := range res.Packets {
		if p.IsCrashEvent() {
			crash = p
		} else {
			regular = p
		}
	}
	if crash == nil {
		t.Fatal("expected a synthesized crash packet")
	}
	if crash.Crash == nil || crash.Crash.SuspectHex != "deadbeef" {
		t.Fatalf("crash payload not captured: %+v", crash.Crash)
	}
	if crash.Crash.LogPath != "/tmp/crash_5.log" {
		t.Fatalf("exported log path not captured: %+v", crash.Crash)
	}
	if regular == nil || regular.Outcome != fuzz.OutcomeCrash {
		t.Fatalf("in-progress packet must be marked crashed: %+v", regular)
	}
}

func TestParseSNMPLogCrashLookaheadBounded(t *testing.T) {
	var b strings.Builder
	b.WriteString("[监控] 检测到崩溃: 目标无响应\n")
	for i := 0; i < CrashLookaheadLines+5; i++ {
		b.WriteString("噪声行\n")
	}
	b.WriteString("崩溃日志已导出: /tmp/late.log\n")

	res := ParseSNMPLog(b.String())
	if len(res.Packets) != 1 || !res.Packets[0].IsCrashEvent() {
		t.Fatalf("expected lone crash packet, got %d packets", len(res.Packets))
	}
	if res.Packets[0].Crash.LogPath != "" {
		t.Fatal("log path beyond the lookahead window must not be captured")
	}
}
