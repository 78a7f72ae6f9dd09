package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/transit-mvp/engine/notify"
	"github.com/WessleyAI/transit-mvp/pkg/natsutil"
)

func (c *cli) notifyCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Run the proactive notifier",
		Long: `Scan active subscriptions on a fixed interval and alert subscribers
whose bus is due at their stop within the requested window.

Examples:
  # Run until interrupted
  transit notify

  # Run a single scan and exit
  transit notify --once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(true); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.notifier()
			if err != nil {
				return err
			}

			if once {
				st := n.Tick(ctx)
				c.logger.Info("notifier scan complete",
					"scanned", st.Scanned, "notified", st.Notified, "skipped", st.Skipped, "failed", st.Failed)
				fmt.Fprintf(cmd.OutOrStdout(), "scanned %d notified %d skipped %d failed %d\n",
					st.Scanned, st.Notified, st.Skipped, st.Failed)
				return nil
			}
			return ignoreCanceled(n.Run(ctx))
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run one scan and exit")
	return cmd
}

func (c *cli) workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver published notifications",
		Long: `Consume notification events published by the notifier on
{nats.subject_prefix}.{channel} and hand each one to final delivery.
Workers share a queue group, so each event is delivered once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(true); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			nc, err := natsutil.Connect(c.cfg.NATS.URL, "transit-worker", c.logger)
			if err != nil {
				return err
			}
			defer nc.Close()

			w := notify.NewWorker(nc, c.cfg.NATS.SubjectPrefix, notify.NewConsoleChannel(c.logger), c.logger)
			return ignoreCanceled(w.Run(ctx))
		},
	}
}

// ignoreCanceled treats a signal-driven shutdown as success.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
