package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiobjectives/report-worker/internal/model"
)

// newInspectCmd summarizes a checkpointed pipeline state dumped to a JSON
// file — the same document statelock.RedisStore.SaveState writes — without
// requiring a live Redis connection.
func newInspectCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize a pipeline state JSON dump",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reportId:     %s\n", state.ReportID)
			fmt.Fprintf(out, "status:       %s\n", state.Status)
			fmt.Fprintf(out, "currentStep:  %s\n", state.CurrentStep)
			fmt.Fprintf(out, "updatedAt:    %s\n", state.UpdatedAt)
			fmt.Fprintf(out, "totalTokens:  %d\n", state.TotalTokens)
			fmt.Fprintln(out, "steps:")
			for _, step := range model.Plan(true) {
				analytics, ok := state.StepAnalytics[step]
				if !ok {
					fmt.Fprintf(out, "  %-12s not started\n", step)
					continue
				}
				fmt.Fprintf(out, "  %-12s %s\n", step, analytics.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "state", "", "path to a pipeline state JSON dump")
	cmd.MarkFlagRequired("state")
	return cmd
}

func loadState(path string) (*model.PipelineState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var state model.PipelineState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &state, nil
}
