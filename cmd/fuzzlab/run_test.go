package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/protoseclab/fuzzlab/internal/config"
	"github.com/protoseclab/fuzzlab/internal/fuzz"
)

const sampleFuzzLog = `[1] 版本=v1, 类型=get
选择OIDs=['1.3.6.1.2.1.1.1.0']
报文HEX: 302902010004067075626c6963
[发送] 43 字节
[接收成功] 60 字节
[2] 版本=v2c, 类型=set
报文HEX: 302a02010104067075626c6963
[发送] 44 字节
[接收超时]
统计: {'v1': 1, 'v2c': 1, 'v3': 0}, {'get': 1, 'set': 1, 'getnext': 0, 'getbulk': 0}
`

func TestBuildOptionsSNMP(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "fuzz.log")
	if err := os.WriteFile(input, []byte(sampleFuzzLog), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.CreateDefault()
	cfg.SNMP.PcapDir = "" // no artifact in tests
	flags := &runFlags{protocol: "snmp", input: input, rate: 50}

	opts, err := buildOptions(fuzz.ProtocolSNMP, flags, cfg)
	if err != nil {
		t.Fatalf("buildOptions: %v", err)
	}
	if len(opts.Packets) != 2 {
		t.Fatalf("expected 2 parsed packets, got %d", len(opts.Packets))
	}
	if opts.SummaryVersions == nil || opts.SummaryVersions["v1"] != 1 {
		t.Fatalf("summary not carried: %v", opts.SummaryVersions)
	}
	if opts.RatePPS != 50 {
		t.Fatalf("rate flag must override config, got %d", opts.RatePPS)
	}
	if opts.TargetHost != "127.0.0.1" || opts.TargetPort != 161 {
		t.Fatalf("snmp target defaults wrong: %s:%d", opts.TargetHost, opts.TargetPort)
	}
	if opts.PollInterval != 2*time.Second {
		t.Fatalf("poll interval default wrong: %v", opts.PollInterval)
	}
}

func TestBuildOptionsSNMPRequiresInput(t *testing.T) {
	cfg := config.CreateDefault()
	cfg.SNMP.InputLog = ""
	flags := &runFlags{protocol: "snmp"}

	if _, err := buildOptions(fuzz.ProtocolSNMP, flags, cfg); err == nil {
		t.Fatal("expected error when no fuzz log is configured")
	}
}

func TestBuildOptionsSOLDefaults(t *testing.T) {
	cfg := config.CreateDefault()
	cfg.SOL.Implementations = []string{"ipmitool"}
	flags := &runFlags{protocol: "sol"}

	opts, err := buildOptions(fuzz.ProtocolSOL, flags, cfg)
	if err != nil {
		t.Fatalf("buildOptions: %v", err)
	}
	if opts.Engine != "aflnet" {
		t.Fatalf("default engine wrong: %q", opts.Engine)
	}
	if len(opts.Implementations) != 1 || opts.Implementations[0] != "ipmitool" {
		t.Fatalf("implementations not taken from config: %v", opts.Implementations)
	}
}

func TestBuildOptionsMQTTTargetFromConfig(t *testing.T) {
	cfg := config.CreateDefault()
	flags := &runFlags{protocol: "mqtt"}

	opts, err := buildOptions(fuzz.ProtocolMQTT, flags, cfg)
	if err != nil {
		t.Fatalf("buildOptions: %v", err)
	}
	if opts.TargetHost != cfg.MQTT.Host || opts.TargetPort != cfg.MQTT.Port {
		t.Fatalf("mqtt target not taken from config: %s:%d", opts.TargetHost, opts.TargetPort)
	}
}
