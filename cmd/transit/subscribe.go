package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/engine/subscription"
)

func (c *cli) subscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Manage arrival alert subscriptions",
		Long: `Add, list and deactivate subscriptions in the configured store.

Examples:
  transit subscribe add --user u1 --bus B1 --stop S1 --before 300
  transit subscribe list
  transit subscribe deactivate 3`,
	}
	cmd.AddCommand(c.subscribeAddCmd(), c.subscribeListCmd(), c.subscribeDeactivateCmd())
	return cmd
}

// withStore loads configuration and runs f against an open store.
func (c *cli) withStore(f func(subscription.Store) error) error {
	if err := c.load(false); err != nil {
		return err
	}
	store, err := openSubscriptions(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return f(store)
}

func (c *cli) subscribeAddCmd() *cobra.Command {
	var (
		sub      domain.Subscription
		before   int
		channel  string
		once     bool
		delayMax int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sub.NotifyBeforeSec = domain.RawSeconds(strconv.Itoa(before))
			sub.Channel = domain.Channel(strings.ToLower(channel))
			if err := validChannel(sub.Channel); err != nil {
				return err
			}
			sub.Policy = domain.Policy{NotifyOnce: once, DelayThresholdSec: delayMax}
			if !sub.Complete() {
				return fmt.Errorf("--user, --bus and --stop are required")
			}
			return c.withStore(func(store subscription.Store) error {
				added, err := store.Add(cmd.Context(), sub)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "subscription %d: notify %s on %s when bus %s is within %ds of stop %s\n",
					added.ID, added.UserID, added.DeliveryChannel(), added.BusID, added.NotifyWindow(), added.StopID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&sub.UserID, "user", "", "Subscriber id")
	f.StringVar(&sub.BusID, "bus", "", "Bus id, e.g. B1")
	f.StringVar(&sub.StopID, "stop", "", "Stop id, e.g. S1")
	f.IntVar(&before, "before", domain.DefaultNotifyBeforeSec, "Alert when the ETA is at most this many seconds")
	f.StringVar(&channel, "channel", string(domain.ChannelConsole), "Delivery channel: console, sms, email or push")
	f.BoolVar(&once, "notify-once", false, "Alert at most once per user, bus and stop")
	f.IntVar(&delayMax, "delay-threshold", domain.DefaultDelayThresholdSec, "Policy delay threshold in seconds")
	return cmd
}

func validChannel(ch domain.Channel) error {
	switch ch {
	case domain.ChannelConsole, domain.ChannelSMS, domain.ChannelEmail, domain.ChannelPush:
		return nil
	}
	return fmt.Errorf("unknown channel %q", ch)
}

func (c *cli) subscribeListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(func(store subscription.Store) error {
				var (
					subs []domain.Subscription
					err  error
				)
				if all {
					subs, err = store.List(cmd.Context())
				} else {
					subs, err = store.ListActive(cmd.Context(), 0)
				}
				if err != nil {
					return err
				}
				printSubscriptions(cmd.OutOrStdout(), subs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "A", false, "Include inactive subscriptions")
	return cmd
}

func printSubscriptions(out io.Writer, subs []domain.Subscription) {
	if len(subs) == 0 {
		fmt.Fprintln(out, "No subscriptions found")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tBUS\tSTOP\tBEFORE\tCHANNEL\tONCE\tACTIVE")
	for _, s := range subs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%t\t%t\n",
			s.ID, s.UserID, s.BusID, s.StopID, s.NotifyWindow(), s.DeliveryChannel(), s.Policy.NotifyOnce, s.Active)
	}
	w.Flush()
}

func (c *cli) subscribeDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate ID",
		Short: "Deactivate a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid subscription id %q", args[0])
			}
			return c.withStore(func(store subscription.Store) error {
				if err := store.Deactivate(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "subscription %d deactivated\n", id)
				return nil
			})
		},
	}
}
