// Command workflow-core runs the workflow execution engine: submit and
// run a workflow definition, serve the health/metrics HTTP surface, or
// summarize the event stream (backfill/aggregate), per spec §6's CLI
// surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "workflow-core",
		Short: "Workflow execution engine",
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newBackfillCmd())
	root.AddCommand(newAggregateCmd())
	root.AddCommand(newWatchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
