package model

import "time"

// StepName identifies one stage of the pipeline plan.
type StepName string

// The fixed plan order. Cruxes only runs when JobMessage.Options.CruxesEnabled
// is set; the handler and pipeline engine both skip it otherwise.
const (
	StepClustering  StepName = "clustering"
	StepClaims      StepName = "claims"
	StepDedup       StepName = "sort_and_deduplicate"
	StepSummaries   StepName = "summaries"
	StepCruxes      StepName = "cruxes"
)

// Plan returns the ordered step sequence for a job, including cruxes only
// when requested.
func Plan(cruxesEnabled bool) []StepName {
	steps := []StepName{StepClustering, StepClaims, StepDedup, StepSummaries}
	if cruxesEnabled {
		steps = append(steps, StepCruxes)
	}
	return steps
}

// TerminalStep returns the last step of the plan — the one whose completed
// StepAnalytics status marks PipelineState.Status as completed.
func TerminalStep(cruxesEnabled bool) StepName {
	plan := Plan(cruxesEnabled)
	return plan[len(plan)-1]
}

// RunStatus is the overall status of a PipelineState.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// StepStatus is the per-step status recorded in StepAnalytics.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// StepResult is the durable output of one pipeline step, opaque to the
// handler beyond being forwarded to the next step or into the artifact.
type StepResult struct {
	Step StepName    `json:"step"`
	Data interface{} `json:"data"`
}

// StepAnalytics records timing/cost/token accounting for one step, plus its
// terminal status.
type StepAnalytics struct {
	Status       StepStatus `json:"status"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	DurationMS   int64      `json:"durationMs,omitempty"`
	Tokens       int64      `json:"tokens,omitempty"`
	Cost         float64    `json:"cost,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// PipelineState is the checkpointed, resumable record of one report's
// pipeline run. A step's entry in CompletedResults exists iff its
// StepAnalytics status is StepCompleted; the writers of the state keep the
// two maps in step, nothing here checks it.
type PipelineState struct {
	ReportID         string                     `json:"reportId"`
	Status           RunStatus                  `json:"status"`
	CurrentStep      StepName                   `json:"currentStep"`
	CompletedResults map[StepName]StepResult    `json:"completedResults"`
	StepAnalytics    map[StepName]StepAnalytics `json:"stepAnalytics"`
	TotalTokens      int64                      `json:"totalTokens"`
	TotalCost        float64                    `json:"totalCost"`
	TotalDurationMS  int64                      `json:"totalDurationMs"`
	UpdatedAt        time.Time                  `json:"updatedAt"`
}

// NewPipelineState returns a fresh, empty running state for reportID.
func NewPipelineState(reportID string) *PipelineState {
	return &PipelineState{
		ReportID:         reportID,
		Status:           RunRunning,
		CompletedResults: make(map[StepName]StepResult),
		StepAnalytics:    make(map[StepName]StepAnalytics),
	}
}

// StepCompleted reports whether step is already durably complete — the
// signal the pipeline engine uses to skip re-execution on resume.
func (s *PipelineState) StepCompleted(step StepName) bool {
	if s == nil {
		return false
	}
	a, ok := s.StepAnalytics[step]
	return ok && a.Status == StepCompleted
}

// Recompute sets Status to completed once the given plan's terminal step is
// completed in StepAnalytics, and recomputes the totals from StepAnalytics. Callers must
// call this after mutating CompletedResults/StepAnalytics directly, before
// persisting.
func (s *PipelineState) Recompute(terminal StepName) {
	var tokens int64
	var cost float64
	var duration int64
	for _, a := range s.StepAnalytics {
		tokens += a.Tokens
		cost += a.Cost
		duration += a.DurationMS
	}
	s.TotalTokens = tokens
	s.TotalCost = cost
	s.TotalDurationMS = duration

	if s.StepCompleted(terminal) {
		s.Status = RunCompleted
	}
}
