package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (c *cli) askCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Answer one question and exit",
		Long: `Run a single question through the answer pipeline.

Examples:
  transit ask "Where is B1?"
  transit ask --trace "When will B1 reach S1?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(false); err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ans := a.answers.Answer(cmd.Context(), strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if !full {
				fmt.Fprintln(out, ans.Answer)
				return nil
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(ans)
		},
	}
	cmd.Flags().BoolVar(&full, "trace", false, "Print the full answer with tool trace and retrieved context as JSON")
	return cmd
}
