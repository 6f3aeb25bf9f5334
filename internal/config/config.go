package config

// Configuration loading and validation for fuzzlab

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/protoseclab/fuzzlab/internal/errors"
)

// BackendConfig points the session controller at the lab backend.
type BackendConfig struct {
	BaseURL          string `yaml:"base_url"`
	PollIntervalMs   int    `yaml:"poll_interval_ms"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
}

// SNMPConfig controls the client-side SNMP replay.
type SNMPConfig struct {
	RatePPS          int    `yaml:"rate_pps"`  // target packets per second
	InputLog         string `yaml:"input_log"` // pre-generated fuzz log to replay
	PcapDir          string `yaml:"pcap_dir"`  // where replay .pcap artifacts go
	LogEvery         int    `yaml:"log_every"` // surface 1-in-N packets to the log panel
	CrashStopDelayMs int    `yaml:"crash_stop_delay_ms"`
}

// SOLConfig controls the containerized AFL-style pipeline.
type SOLConfig struct {
	Image           string   `yaml:"image"`
	ContainerName   string   `yaml:"container_name"`
	OutputDir       string   `yaml:"output_dir"`
	Implementations []string `yaml:"implementations,omitempty"`
}

// MQTTConfig controls the multi-broker differential pipeline.
type MQTTConfig struct {
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`
	Brokers []string `yaml:"brokers,omitempty"`
}

// HistoryConfig controls the run-history store.
type HistoryConfig struct {
	Path       string `yaml:"path"`
	MaxRecords int    `yaml:"max_records"`
}

// ServerConfig controls the lab backend (`fuzzlab serve`).
type ServerConfig struct {
	Listen  string `yaml:"listen"`
	WorkDir string `yaml:"work_dir"`
	LogDir  string `yaml:"log_dir"`
}

// Config is the root fuzzlab configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	SNMP    SNMPConfig    `yaml:"snmp"`
	SOL     SOLConfig     `yaml:"sol"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	History HistoryConfig `yaml:"history"`
	Server  ServerConfig  `yaml:"server"`
}

// CreateDefault returns a configuration with working defaults.
func CreateDefault() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".fuzzlab")
	return &Config{
		Backend: BackendConfig{
			BaseURL:          "http://127.0.0.1:8090",
			PollIntervalMs:   2000,
			RequestTimeoutMs: 10000,
		},
		SNMP: SNMPConfig{
			RatePPS:          20,
			PcapDir:          filepath.Join(base, "pcaps"),
			LogEvery:         5,
			CrashStopDelayMs: 150,
		},
		SOL: SOLConfig{
			Image:         "fuzzlab/aflnet-sol:latest",
			ContainerName: "fuzzlab-sol",
			OutputDir:     filepath.Join(base, "sol-output"),
		},
		MQTT: MQTTConfig{
			Host:    "127.0.0.1",
			Port:    1883,
			Brokers: []string{"hivemq", "vernemq", "emqx", "flashmq", "nanomq", "mosquitto"},
		},
		History: HistoryConfig{
			Path:       filepath.Join(base, "history.json"),
			MaxRecords: 50,
		},
		Server: ServerConfig{
			Listen:  "127.0.0.1:8090",
			WorkDir: filepath.Join(base, "work"),
			LogDir:  filepath.Join(base, "logs"),
		},
	}
}

// Load reads and validates a YAML config file. Unset fields fall back
// to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(err, path)
	}

	cfg := CreateDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must not be empty")
	}
	if c.Backend.PollIntervalMs <= 0 {
		return fmt.Errorf("backend.poll_interval_ms must be positive, got %d", c.Backend.PollIntervalMs)
	}
	if c.SNMP.RatePPS <= 0 {
		return fmt.Errorf("snmp.rate_pps must be positive, got %d", c.SNMP.RatePPS)
	}
	if c.SNMP.LogEvery <= 0 {
		return fmt.Errorf("snmp.log_every must be positive, got %d", c.SNMP.LogEvery)
	}
	if c.History.MaxRecords <= 0 {
		return fmt.Errorf("history.max_records must be positive, got %d", c.History.MaxRecords)
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port out of range: %d", c.MQTT.Port)
	}
	return nil
}

// ToYAML serializes the config for display or staging.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
