// Command numcheck runs verification batches from the terminal against the
// same ledger the server uses.
//
// Usage:
//
//	numcheck check 08012345678 +2348023456789 --retry-hours 12
//	numcheck check --file numbers.csv --filter off --export xlsx
//	numcheck stats --session cli
//	numcheck normalize 0801-234-5678
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"numcheck/internal/platform/config"
	"numcheck/internal/platform/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "numcheck",
		Short:         "Check phone numbers against a messaging service and track retries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (overrides NUMCHECK_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	root.AddCommand(newNormalizeCmd(opts))
	return root
}

// load resolves configuration and a stderr logger for a command.
func (o *rootOptions) load(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	if o.configPath != "" {
		if err := os.Setenv("NUMCHECK_CONFIG", o.configPath); err != nil {
			return config.Config{}, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	return cfg, logger.NewWithWriter(cmd.ErrOrStderr(), level, cfg.Log.Format), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "numcheck: %v\n", err)
		stop()
		os.Exit(1)
	}
}
