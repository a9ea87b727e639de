package main

import (
	"fmt"
	"os"

	"github.com/probeworks/sounder/internal/wizard"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a run configuration interactively",
		Long: `Init walks through the settings for a benchmark batch and writes them
to a YAML run file that 'sounder run' accepts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ans, err := wizard.Collect(wizard.Options{
				In:  cmd.InOrStdin(),
				Out: cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(&ans.Run)
			if err != nil {
				return fmt.Errorf("encoding run config: %w", err)
			}
			if err := os.WriteFile(ans.Path, data, 0o644); err != nil {
				return fmt.Errorf("writing run config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", ans.Path)
			fmt.Fprintf(cmd.OutOrStdout(), "Run it with: sounder run %s\n", ans.Path)
			return nil
		},
	}
	return cmd
}
