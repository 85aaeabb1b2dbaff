package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy to the backup directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		report := a.engine.ApplyRetention()
		for _, name := range report.Deleted {
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "kept %d, deleted %d (%s)\n",
			report.Kept, len(report.Deleted), humanSize(report.DeletedBytes))
		return report.Err()
	},
}
