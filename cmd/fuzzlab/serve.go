package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/protoseclab/fuzzlab/internal/logging"
	"github.com/protoseclab/fuzzlab/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lab backend",
		Long: `Run the lab backend service on the host that has access to docker
and the fuzzer images. Session controllers connect to it over HTTP to
launch fuzzers and follow their logs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			level := logging.LogLevelInfo
			if verbose {
				level = logging.LogLevelVerbose
			}
			logger, err := logging.NewLogger(level, "")
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(cfg.Server, logger).Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	return cmd
}
