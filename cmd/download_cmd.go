package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kebairia/markabak/internal/cloud"
	"github.com/kebairia/markabak/internal/operations"
)

var (
	downloadProvider string
	downloadRestore  bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <name>",
	Short: "Fetch an artifact from cloud storage into the backup directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, operations.WithProgress(printProgress))
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		provider := downloadProvider
		if provider == "" {
			names := a.transfer.Providers()
			if len(names) == 0 {
				return fmt.Errorf("%w: no cloud providers configured", cloud.ErrUnknownProvider)
			}
			provider = names[0]
		}

		path, err := a.engine.DownloadFromCloud(ctx, args[0], provider)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)

		if downloadRestore {
			return a.engine.RestoreBackup(ctx, path)
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadProvider, "provider", "p", "",
		"provider to download from (gcp, aws, minio); defaults to the first configured")
	downloadCmd.Flags().BoolVar(&downloadRestore, "restore", false, "restore the artifact after downloading")
}
