package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiobjectives/report-worker/internal/artifact"
	"github.com/aiobjectives/report-worker/internal/model"
)

// newReconstructCmd rebuilds a report artifact from a checkpointed pipeline
// state without re-running the pipeline — the same save-only path the
// handler takes when it finds an orphaned artifact key, exposed here so an
// operator can replay it by hand against a state dump.
func newReconstructCmd() *cobra.Command {
	var statePath, detailsPath, instructionsPath, commentsPath string
	var cruxesEnabled bool

	cmd := &cobra.Command{
		Use:   "reconstruct",
		Short: "Rebuild a report artifact from a completed pipeline state dump",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState(statePath)
			if err != nil {
				return err
			}
			var details model.ReportDetails
			if err := readJSONFile(detailsPath, &details); err != nil {
				return fmt.Errorf("read report details: %w", err)
			}
			var instructions model.PipelineInstructions
			if err := readJSONFile(instructionsPath, &instructions); err != nil {
				return fmt.Errorf("read pipeline instructions: %w", err)
			}
			var comments []model.CommentRecord
			if commentsPath != "" {
				if err := readJSONFile(commentsPath, &comments); err != nil {
					return fmt.Errorf("read input comments: %w", err)
				}
			}

			a, counts, err := artifact.FromState(details, instructions, comments, state, cruxesEnabled)
			if err != nil {
				return fmt.Errorf("reconstruct artifact: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(a); err != nil {
				return fmt.Errorf("encode artifact: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "topics=%d subtopics=%d claims=%d people=%d\n",
				counts.Topics, counts.Subtopics, counts.Claims, counts.People)
			return nil
		},
	}

	cmd.Flags().StringVar(&statePath, "state", "", "path to a pipeline state JSON dump")
	cmd.Flags().StringVar(&detailsPath, "details", "", "path to a ReportDetails JSON file")
	cmd.Flags().StringVar(&instructionsPath, "instructions", "", "path to a PipelineInstructions JSON file")
	cmd.Flags().StringVar(&commentsPath, "comments", "", "path to the job's original []CommentRecord JSON input, for the people count (optional; omitted reports people=0)")
	cmd.Flags().BoolVar(&cruxesEnabled, "cruxes", false, "whether the run included the cruxes step")
	cmd.MarkFlagRequired("state")
	cmd.MarkFlagRequired("details")
	cmd.MarkFlagRequired("instructions")
	return cmd
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
