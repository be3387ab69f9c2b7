package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Job queue inspection commands",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print job counts per queue",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, app *App) error {
			perQueue, total, err := app.Dispatcher.Status(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tWAITING\tDELAYED\tACTIVE\tCOMPLETED\tFAILED")
			for _, name := range jobqueue.Queues {
				printCounts(w, name, perQueue[name])
			}
			printCounts(w, "total", total)
			return w.Flush()
		})
	},
}

func printCounts(w *tabwriter.Writer, name string, c jobqueue.Counts) {
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", name, c.Waiting, c.Delayed, c.Active, c.Completed, c.Failed)
}

func init() {
	queueCmd.AddCommand(queueStatusCmd)
	rootCmd.AddCommand(queueCmd)
}
