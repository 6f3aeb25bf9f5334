package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateDefaultValidates(t *testing.T) {
	cfg := CreateDefault()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.History.MaxRecords != 50 {
		t.Fatalf("expected history cap 50, got %d", cfg.History.MaxRecords)
	}
	if cfg.Backend.PollIntervalMs != 2000 {
		t.Fatalf("expected 2s poll interval, got %dms", cfg.Backend.PollIntervalMs)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fuzzlab.yaml")
	content := `
backend:
  base_url: http://10.0.0.5:9999
  poll_interval_ms: 500
snmp:
  rate_pps: 100
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://10.0.0.5:9999" {
		t.Fatalf("base_url not applied: %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.PollIntervalMs != 500 {
		t.Fatalf("poll interval not applied: %d", cfg.Backend.PollIntervalMs)
	}
	if cfg.SNMP.RatePPS != 100 {
		t.Fatalf("rate not applied: %d", cfg.SNMP.RatePPS)
	}
	// Untouched sections keep defaults.
	if cfg.MQTT.Port != 1883 {
		t.Fatalf("mqtt defaults lost: %d", cfg.MQTT.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := CreateDefault()
	cfg.SNMP.RatePPS = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "rate_pps") {
		t.Fatalf("expected rate_pps error, got %v", err)
	}

	cfg = CreateDefault()
	cfg.Backend.BaseURL = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Fatalf("expected base_url error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "Configuration error") {
		t.Fatalf("expected wrapped config error, got %v", err)
	}
}
