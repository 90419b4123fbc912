// Package pipeline defines the contract the job handler uses to drive the
// LLM-backed pipeline steps. The steps themselves — clustering, claim
// extraction, dedup, summarization, optional cruxes — are an external
// collaborator; this package only shapes how the handler calls into them
// and checkpoints their output.
package pipeline

import (
	"context"

	"github.com/aiobjectives/report-worker/internal/model"
)

// Input is the validated, job-derived input to one pipeline run.
type Input struct {
	ReportID        string
	UserID          string
	Comments        []model.CommentRecord
	Instructions    model.PipelineInstructions
	Model           string
	Options         model.PipelineOptions
	APIKey          string
	ResumeFromState bool
	LockValue       string
}

// Outputs is the final, structured product of a completed run.
type Outputs struct {
	SortedTree model.SortedTree
	Cruxes     interface{}
}

// Result is what Run returns. On failure State.Status is "failed" and the
// failing step is recorded in State.StepAnalytics; Outputs/ is nil.
type Result struct {
	Success bool
	State   *model.PipelineState
	Outputs *Outputs
	Err     error
}

// StateStore is the subset of statelock.Store the pipeline engine needs to
// persist a step's checkpoint before considering it complete. Declared here
// (not imported from internal/store/statelock) to keep this package's
// dependency surface to the contract it actually uses.
type StateStore interface {
	GetState(ctx context.Context, reportID string) (*model.PipelineState, *model.ClassifiedError)
	SaveState(ctx context.Context, state *model.PipelineState) *model.ClassifiedError
}

// Engine executes an ordered, configurable plan of pipeline steps. After
// each step it MUST persist (stepResult, stepAnalytics) via the StateStore
// before considering that step complete — a step marked complete implies
// its output is durable. When in.ResumeFromState is set, it MUST skip any
// step already marked complete in the loaded state and feed that step's
// stored result forward instead of re-running it.
type Engine interface {
	Run(ctx context.Context, store StateStore, in Input) Result
}
