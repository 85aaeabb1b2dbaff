package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/kebairia/markabak/internal/retention"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local backup artifacts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		artifacts, err := a.engine.ListBackups()
		if err != nil {
			return err
		}
		if listJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(artifacts)
		}
		return writeArtifacts(cmd.OutOrStdout(), artifacts)
	},
}

func writeArtifacts(out io.Writer, artifacts []retention.Artifact) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
	for _, a := range artifacts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.Name, humanSize(a.Size), a.Modified.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON instead of a table")
}
