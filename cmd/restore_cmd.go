package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kebairia/markabak/internal/operations"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <artifact>",
	Short: "Replace the live database with a backup artifact",
	Long: `Restore decodes the artifact, checks the database it contains and
swaps it in for the live database. A bare file name is looked up in the
backup directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, operations.WithProgress(printProgress))
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		source := args[0]
		if filepath.Base(source) == source {
			source = filepath.Join(a.engine.BackupDir(), source)
		}
		if err := a.engine.RestoreBackup(ctx, source); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", source)
		return nil
	},
}
