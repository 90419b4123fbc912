package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiobjectives/report-worker/internal/classify"
)

// newClassifyCmd dry-runs the classifier against a raw error message,
// without needing a live failing pipeline to reproduce the message — useful
// when deciding whether a newly observed upstream error string needs to be
// added to classify's transient/permanent lists.
func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <message>",
		Short: "Classify a raw error message as transient or permanent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ce := classify.Classify(errors.New(args[0]))
			if ce == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "nil (no error)")
				return nil
			}
			transient := "permanent"
			if ce.Transient {
				transient = "transient"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "category=%s transient=%s message=%q\n", ce.Category, transient, ce.Message)
			return nil
		},
	}
}
