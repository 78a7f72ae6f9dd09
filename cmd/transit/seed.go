package main

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/transit-mvp/engine/fleet"
)

func (c *cli) seedCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import the fleet snapshot into Neo4j",
		Long: `Read buses and routes from the snapshot directory (buses.json|yaml,
routes.json|yaml) and MERGE them into Neo4j. Safe to run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(false); err != nil {
				return err
			}
			if dataDir == "" {
				dataDir = c.cfg.Fleet.DataDir
			}
			return c.seed(cmd.Context(), dataDir, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Snapshot directory (defaults to fleet.data_dir)")
	return cmd
}

func (c *cli) seed(ctx context.Context, dataDir string, progress io.Writer) error {
	snap, err := fleet.LoadSnapshot(dataDir)
	if err != nil {
		return err
	}

	a := &app{cfg: c.cfg, logger: c.logger}
	defer a.Close()
	sessions, err := a.openNeo4j(ctx)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(fleet.SeedCount(snap),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Seeding fleet"),
		progressbar.OptionClearOnFinish(),
	)
	if err := fleet.Seed(ctx, sessions, snap, func() { bar.Add(1) }); err != nil {
		return err
	}
	bar.Finish()

	c.logger.Info("fleet seeded", "routes", len(snap.Routes), "buses", len(snap.Buses), "neo4j", c.cfg.Neo4j.URL)
	fmt.Fprintf(progress, "seeded %d routes and %d buses\n", len(snap.Routes), len(snap.Buses))

	counts, err := fleet.NewNeo4jRegistry(sessions).NodeCounts(ctx)
	if err != nil {
		c.logger.Warn("node counts", "err", err)
		return nil
	}
	for _, label := range []string{"Route", "Stop", "Bus"} {
		fmt.Fprintf(progress, "  %-6s %d\n", label, counts[label])
	}
	return nil
}
