package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/transit-mvp/pkg/config"
)

// cli holds the state shared by every subcommand.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "transit",
		Short: "Bus transit assistant",
		Long: `transit answers natural-language questions about buses, routes and
arrival times, and alerts subscribers before their bus reaches a stop.

Examples:
  # Serve the HTTP API
  transit serve

  # Ask a single question
  transit ask "When will B1 reach S1?"

  # Run the proactive notifier on its own
  transit notify`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to transit.yaml (searched in ., ./config and $HOME/.transit by default)")

	root.AddCommand(
		c.serveCmd(),
		c.notifyCmd(),
		c.workerCmd(),
		c.askCmd(),
		c.seedCmd(),
		c.subscribeCmd(),
	)
	return root
}

// load reads the configuration and installs the logger. Services log JSON to
// stdout; interactive commands log text to stderr.
func (c *cli) load(service bool) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = newLogger(service, cfg.Log.SlogLevel(), os.Stdout, os.Stderr)
	slog.SetDefault(c.logger)
	return nil
}

func newLogger(service bool, level slog.Level, stdout, stderr io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if service {
		return slog.New(slog.NewJSONHandler(stdout, opts))
	}
	return slog.New(slog.NewTextHandler(stderr, opts))
}
