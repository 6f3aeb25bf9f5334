package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/protoseclab/fuzzlab/internal/config"
	"github.com/protoseclab/fuzzlab/internal/fuzz"
	"github.com/protoseclab/fuzzlab/internal/history"
	"github.com/protoseclab/fuzzlab/internal/labapi"
	"github.com/protoseclab/fuzzlab/internal/logging"
	"github.com/protoseclab/fuzzlab/internal/parser"
	"github.com/protoseclab/fuzzlab/internal/session"
	"github.com/protoseclab/fuzzlab/internal/tui"
)

type runFlags struct {
	protocol   string
	engine     string
	host       string
	port       int
	input      string
	rate       int
	configPath string
	impls      []string
	dashboard  bool
	verbose    bool
	debug      bool
	pcapOut    string
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a fuzzing session",
		Long: `Start a fuzzing session against the selected protocol.

Protocols:
  snmp  - Replays a pre-generated fuzz packet log against the target
          at a controlled rate, watching for crash markers.
  sol   - Launches an AFL-style fuzzer container through the lab
          backend and follows its telemetry.
  mqtt  - Launches the multi-broker differential fuzzer through the
          lab backend and collects differential reports.

Without --protocol an interactive setup form is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.protocol, "protocol", "P", "", "protocol to fuzz (snmp, sol, mqtt)")
	cmd.Flags().StringVar(&flags.engine, "engine", "", "fuzzing engine label (e.g. aflnet)")
	cmd.Flags().StringVar(&flags.host, "host", "", "target host")
	cmd.Flags().IntVar(&flags.port, "port", 0, "target port")
	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "SNMP fuzz log to replay")
	cmd.Flags().IntVar(&flags.rate, "rate", 0, "SNMP replay rate in packets per second")
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "config file path")
	cmd.Flags().StringSliceVar(&flags.impls, "impl", nil, "protocol implementations to include (sol)")
	cmd.Flags().BoolVar(&flags.dashboard, "dashboard", false, "show the live TUI dashboard")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose output")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "debug output")
	cmd.Flags().StringVar(&flags.pcapOut, "pcap", "", "write replayed SNMP datagrams to a pcap file")

	return cmd
}

func runSession(flags *runFlags) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}

	level := logging.LogLevelInfo
	if flags.verbose {
		level = logging.LogLevelVerbose
	}
	if flags.debug {
		level = logging.LogLevelDebug
	}
	logger, err := logging.NewLogger(level, "")
	if err != nil {
		return err
	}
	defer logger.Close()

	if flags.protocol == "" {
		if err := promptRunSetup(flags, cfg); err != nil {
			return err
		}
	}
	protocol := fuzz.Protocol(flags.protocol)
	if !protocol.Valid() {
		return fmt.Errorf("unknown protocol %q (want snmp, sol or mqtt)", flags.protocol)
	}

	opts, err := buildOptions(protocol, flags, cfg)
	if err != nil {
		return err
	}

	client := labapi.New(cfg.Backend.BaseURL,
		time.Duration(cfg.Backend.RequestTimeoutMs)*time.Millisecond)
	store := history.NewStore(cfg.History.Path, cfg.History.MaxRecords, logger)

	var sink fuzz.RecordSink
	if !flags.dashboard {
		sink = func(rec *fuzz.Record) {
			fmt.Printf("[%s] %-7s %s\n", rec.Time.Format("15:04:05"), rec.Severity, rec.Message)
		}
	}
	ctrl := session.New(client, store, logger, sink)

	ctx := context.Background()
	if err := ctrl.Start(ctx, opts); err != nil {
		return err
	}
	done := ctrl.Done()

	if flags.dashboard {
		if err := tui.Run(ctrl); err != nil {
			ctrl.Stop(ctx)
			return err
		}
	} else {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)

		select {
		case <-done:
		case <-sig:
			fmt.Println("\nstopping...")
			ctrl.Stop(ctx)
			<-done
		}
	}

	printSummary(ctrl, store)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		def := filepath.Join(home, ".fuzzlab", "config.yaml")
		if _, statErr := os.Stat(def); statErr == nil {
			return config.Load(def)
		}
	}
	return config.CreateDefault(), nil
}

// promptRunSetup collects missing run parameters interactively.
func promptRunSetup(flags *runFlags, cfg *config.Config) error {
	portStr := ""
	if flags.port > 0 {
		portStr = strconv.Itoa(flags.port)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Protocol").
				Options(
					huh.NewOption("SNMP packet replay", "snmp"),
					huh.NewOption("Serial-over-LAN (AFL container)", "sol"),
					huh.NewOption("MQTT differential fuzzing", "mqtt"),
				).
				Value(&flags.protocol),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Fuzz log to replay").
				Description("Pre-generated SNMP fuzz log").
				Value(&flags.input),
			huh.NewInput().
				Title("Target host").
				Value(&flags.host),
			huh.NewInput().
				Title("Target port").
				Value(&portStr),
		).WithHideFunc(func() bool { return flags.protocol != "snmp" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Engine").
				Description("Fuzzing engine label, e.g. aflnet").
				Value(&flags.engine),
			huh.NewMultiSelect[string]().
				Title("Implementations").
				Options(implOptions(cfg.SOL.Implementations)...).
				Value(&flags.impls),
		).WithHideFunc(func() bool { return flags.protocol != "sol" }),
	)

	if err := form.Run(); err != nil {
		return err
	}
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port %q", portStr)
		}
		flags.port = p
	}
	return nil
}

func implOptions(impls []string) []huh.Option[string] {
	if len(impls) == 0 {
		impls = []string{"ipmitool", "freeipmi", "openipmi"}
	}
	opts := make([]huh.Option[string], 0, len(impls))
	for _, impl := range impls {
		opts = append(opts, huh.NewOption(impl, impl))
	}
	return opts
}

func buildOptions(protocol fuzz.Protocol, flags *runFlags, cfg *config.Config) (session.Options, error) {
	opts := session.Options{
		Protocol:       protocol,
		Engine:         flags.engine,
		TargetHost:     flags.host,
		TargetPort:     flags.port,
		RatePPS:        cfg.SNMP.RatePPS,
		LogEvery:       cfg.SNMP.LogEvery,
		CrashStopDelay: time.Duration(cfg.SNMP.CrashStopDelayMs) * time.Millisecond,
		PollInterval:   time.Duration(cfg.Backend.PollIntervalMs) * time.Millisecond,
	}
	if flags.rate > 0 {
		opts.RatePPS = flags.rate
	}

	switch protocol {
	case fuzz.ProtocolSNMP:
		input := flags.input
		if input == "" {
			input = cfg.SNMP.InputLog
		}
		if input == "" {
			return opts, fmt.Errorf("snmp replay requires a fuzz log (--input)")
		}
		data, err := os.ReadFile(input)
		if err != nil {
			return opts, fmt.Errorf("read fuzz log: %w", err)
		}
		res := parser.ParseSNMPLog(string(data))
		opts.Packets = res.Packets
		if res.HasSummary {
			opts.SummaryVersions = res.VersionCounts
			opts.SummaryTypes = res.TypeCounts
		}
		if flags.host == "" {
			opts.TargetHost = "127.0.0.1"
		}
		if flags.port == 0 {
			opts.TargetPort = 161
		}
		opts.PcapPath = flags.pcapOut
		if opts.PcapPath == "" && cfg.SNMP.PcapDir != "" {
			if err := os.MkdirAll(cfg.SNMP.PcapDir, 0o755); err == nil {
				name := fmt.Sprintf("replay-%s.pcap", time.Now().Format("20060102-150405"))
				opts.PcapPath = filepath.Join(cfg.SNMP.PcapDir, name)
			}
		}

	case fuzz.ProtocolSOL:
		if opts.Engine == "" {
			opts.Engine = "aflnet"
		}
		opts.Implementations = flags.impls
		if len(opts.Implementations) == 0 {
			opts.Implementations = cfg.SOL.Implementations
		}

	case fuzz.ProtocolMQTT:
		if flags.host == "" {
			opts.TargetHost = cfg.MQTT.Host
		}
		if flags.port == 0 {
			opts.TargetPort = cfg.MQTT.Port
		}
	}
	return opts, nil
}

func printSummary(ctrl *session.Controller, store *history.Store) {
	snap := ctrl.Snapshot()
	fmt.Println()
	fmt.Printf("Session finished: %d packets, %d success, %d timeout, %d failed, %d crash\n",
		snap.Counters.Total, snap.Counters.Success, snap.Counters.Timeout,
		snap.Counters.Failed, snap.Counters.Crash)
	if snap.Crashed {
		fmt.Println("CRASH DETECTED during this run. See history for details.")
	}

	records := store.List()
	if len(records) > 0 {
		fmt.Printf("Saved as %s (use `fuzzlab history show %s`)\n", records[0].ID, records[0].ID)
	}
}
