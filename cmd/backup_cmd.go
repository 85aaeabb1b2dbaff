package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kebairia/markabak/internal/operations"
)

var (
	noEncrypt  bool
	noCompress bool
	automatic  bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a backup artifact of the live database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, operations.WithProgress(printProgress))
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		path, err := a.engine.CreateBackup(ctx, operations.BackupOptions{
			Encrypt:   !noEncrypt,
			Compress:  !noCompress,
			Automatic: automatic,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	backupCmd.Flags().BoolVar(&noEncrypt, "no-encrypt", false, "write an unencrypted artifact")
	backupCmd.Flags().BoolVar(&noCompress, "no-compress", false, "skip compression")
	backupCmd.Flags().BoolVar(&automatic, "auto", false, "mark the artifact as an automatic backup")
}
