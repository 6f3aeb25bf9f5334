package main

import (
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/protoseclab/fuzzlab/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past fuzzing runs",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	openStore := func() (*history.Store, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		return history.NewStore(cfg.History.Path, cfg.History.MaxRecords, nil), nil
	}

	cmd.AddCommand(newHistoryListCmd(openStore))
	cmd.AddCommand(newHistoryShowCmd(openStore))
	cmd.AddCommand(newHistoryDeleteCmd(openStore))
	cmd.AddCommand(newHistoryClearCmd(openStore))
	cmd.AddCommand(newHistoryExportCmd(openStore))

	return cmd
}

type storeOpener func() (*history.Store, error)

func newHistoryListCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			records := store.List()
			if len(records) == 0 {
				fmt.Println("no recorded runs")
				return nil
			}
			fmt.Printf("%-22s %-6s %-10s %8s %8s %7s\n",
				"ID", "PROTO", "DURATION", "PACKETS", "CRASHES", "CRASHED")
			for _, r := range records {
				crashed := ""
				if r.Crashed {
					crashed = "yes"
				}
				fmt.Printf("%-22s %-6s %9.1fs %8d %8d %7s\n",
					r.ID, r.Protocol, r.DurationSeconds, r.TotalPackets, r.CrashCount, crashed)
			}
			return nil
		},
	}
}

func newHistoryShowCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			rec := store.Get(args[0])
			if rec == nil {
				return fmt.Errorf("no run with id %q", args[0])
			}
			fmt.Print(history.ExportRecord(rec))
			return nil
		},
	}
}

func newHistoryDeleteCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			if !store.Delete(args[0]) {
				return fmt.Errorf("no run with id %q", args[0])
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func newHistoryClearCmd(open storeOpener) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			store, err := open()
			if err != nil {
				return err
			}
			store.DeleteAll()
			fmt.Println("history cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func newHistoryExportCmd(open storeOpener) *cobra.Command {
	var (
		outPath string
		copyOut bool
	)
	cmd := &cobra.Command{
		Use:   "export [id]",
		Short: "Export one run, or all runs, as a text report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}

			var report string
			if len(args) == 1 {
				rec := store.Get(args[0])
				if rec == nil {
					return fmt.Errorf("no run with id %q", args[0])
				}
				report = history.ExportRecord(rec)
			} else {
				report = history.ExportAll(store.List())
			}

			if copyOut {
				if err := clipboard.WriteAll(report); err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}
				fmt.Println("report copied to clipboard")
				return nil
			}
			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(report), 0o644); err != nil {
					return err
				}
				fmt.Printf("report written to %s\n", outPath)
				return nil
			}
			fmt.Print(report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the report to a file")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the report to the clipboard")
	return cmd
}
