package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show backup records stored in the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		records, err := a.db.BackupHistory(ctx, historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(records)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILENAME\tTYPE\tSIZE\tCREATED\tBY")
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Filename, r.Type, humanSize(r.SizeBytes),
				r.CreatedAt.Local().Format(time.DateTime), r.CreatedBy)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum records to show, 0 for all")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON instead of a table")
}
