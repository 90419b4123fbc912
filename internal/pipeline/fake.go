package pipeline

import (
	"context"

	"github.com/aiobjectives/report-worker/internal/model"
)

// StepFunc is one scripted step in a Fake's plan.
type StepFunc func(ctx context.Context, in Input, prior map[model.StepName]model.StepResult) (model.StepResult, error)

// Fake is a fully scriptable, in-memory Engine used throughout the
// handler's tests — it never calls out to a real LLM backend.
type Fake struct {
	// Steps, in order. FailAt, if non-empty, causes the named step to
	// return its configured error instead of running its StepFunc.
	Steps  []model.StepName
	Funcs  map[model.StepName]StepFunc
	FailAt model.StepName
	FailErr error

	// Calls records which steps actually executed their StepFunc, for
	// tests asserting a completed step is never re-run on resume.
	Calls []model.StepName
}

var _ Engine = (*Fake)(nil)

// NewFake builds a Fake wired with the default clustering/claims/dedup/
// summaries[/cruxes] plan, each step stamping a trivial StepResult unless
// overridden via f.Funcs.
func NewFake(cruxesEnabled bool) *Fake {
	steps := model.Plan(cruxesEnabled)
	funcs := make(map[model.StepName]StepFunc, len(steps))
	for _, step := range steps {
		s := step
		funcs[s] = func(ctx context.Context, in Input, prior map[model.StepName]model.StepResult) (model.StepResult, error) {
			if s == model.StepDedup {
				return model.StepResult{Step: s, Data: defaultSortedTree()}, nil
			}
			if s == model.StepCruxes {
				return model.StepResult{Step: s, Data: []interface{}{"default crux"}}, nil
			}
			return model.StepResult{Step: s, Data: string(s) + "-result"}, nil
		}
	}
	return &Fake{Steps: steps, Funcs: funcs}
}

// defaultSortedTree is a minimal, schema-valid tree so tests exercising the
// full handler path through artifact construction don't need to script a
// realistic dedup step output themselves.
func defaultSortedTree() model.SortedTree {
	return model.SortedTree{
		{
			Name: "topic",
			Body: model.Topic{
				Speakers: []string{"speaker-1"},
				Counts:   model.Counts{Claims: 1, Speakers: 1},
				Topics: []model.NamedSubtopic{
					{
						Name: "subtopic",
						Body: model.Subtopic{
							Claims:   []string{"claim"},
							Speakers: []string{"speaker-1"},
							Counts:   model.Counts{Claims: 1, Speakers: 1},
						},
					},
				},
			},
		},
	}
}

// Run implements Engine.
func (f *Fake) Run(ctx context.Context, store StateStore, in Input) Result {
	state, cerr := store.GetState(ctx, in.ReportID)
	if cerr != nil {
		return Result{Success: false, Err: cerr}
	}
	if state == nil || !in.ResumeFromState {
		state = model.NewPipelineState(in.ReportID)
	}

	terminal := model.TerminalStep(in.Options.CruxesEnabled)

	for _, step := range f.Steps {
		if in.ResumeFromState && state.StepCompleted(step) {
			continue
		}

		if f.FailAt == step {
			state.StepAnalytics[step] = model.StepAnalytics{Status: model.StepFailed, ErrorMessage: f.FailErr.Error()}
			state.Status = model.RunFailed
			state.CurrentStep = step
			if err := store.SaveState(ctx, state); err != nil {
				return Result{Success: false, State: state, Err: err}
			}
			return Result{Success: false, State: state, Err: f.FailErr}
		}

		result, err := f.Funcs[step](ctx, in, state.CompletedResults)
		if err != nil {
			state.StepAnalytics[step] = model.StepAnalytics{Status: model.StepFailed, ErrorMessage: err.Error()}
			state.Status = model.RunFailed
			state.CurrentStep = step
			_ = store.SaveState(ctx, state)
			return Result{Success: false, State: state, Err: err}
		}

		f.Calls = append(f.Calls, step)
		state.CompletedResults[step] = result
		state.StepAnalytics[step] = model.StepAnalytics{Status: model.StepCompleted}
		state.CurrentStep = step
		state.Recompute(terminal)
		if cerr := store.SaveState(ctx, state); cerr != nil {
			return Result{Success: false, State: state, Err: cerr}
		}
	}

	outputs := &Outputs{}
	if tree, ok := state.CompletedResults[model.StepDedup]; ok {
		if st, ok := tree.Data.(model.SortedTree); ok {
			outputs.SortedTree = st
		}
	}
	if cx, ok := state.CompletedResults[model.StepCruxes]; ok {
		outputs.Cruxes = cx.Data
	}

	return Result{Success: true, State: state, Outputs: outputs}
}
