// Command reportctl is an operator CLI for inspecting and replaying report
// worker state: dry-run the error classifier, dump a checkpointed pipeline
// state, or reconstruct an artifact from one without re-running the
// pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "reportctl",
		Short: "Operator CLI for the report worker's pipeline state",
	}

	root.AddCommand(newClassifyCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newReconstructCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
