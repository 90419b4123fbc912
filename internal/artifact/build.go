// Package artifact composes the final, publishable report document from a
// completed pipeline run — either fresh off a successful Run, or
// reconstructed from a checkpointed PipelineState when only the publish
// step needs retrying. It owns the derived-field accounting (topic,
// subtopic, claim, and distinct-speaker counts) and the schema validation
// every artifact must pass before it is handed to the object store.
package artifact

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aiobjectives/report-worker/internal/model"
	"github.com/aiobjectives/report-worker/internal/pipeline"
)

var validate = validator.New()

// Counts is the derived tally reported back into ReportMetadata alongside
// the published artifact.
type Counts struct {
	Topics    int
	Subtopics int
	Claims    int
	People    int
}

// FromResult composes an Artifact from a just-completed pipeline.Result.
// comments is the job's original input — the source of truth for the
// distinct-speaker count, since the sorted tree a pipeline step produces may
// have dropped a claim (and its speaker) that the input still carries.
func FromResult(details model.ReportDetails, instructions model.PipelineInstructions, comments []model.CommentRecord, result pipeline.Result) (*model.Artifact, Counts, error) {
	if !result.Success || result.State == nil || result.Outputs == nil {
		return nil, Counts{}, fmt.Errorf("cannot build artifact from an incomplete pipeline result")
	}
	return build(details, instructions, comments, result.State, result.Outputs.SortedTree, result.Outputs.Cruxes)
}

// FromState reconstructs an Artifact directly from a checkpointed
// PipelineState whose terminal step is already complete — the save-only
// retry path, used when a prior attempt finished the pipeline but was
// interrupted before the artifact was published.
func FromState(details model.ReportDetails, instructions model.PipelineInstructions, comments []model.CommentRecord, state *model.PipelineState, cruxesEnabled bool) (*model.Artifact, Counts, error) {
	if state == nil || !state.StepCompleted(model.TerminalStep(cruxesEnabled)) {
		return nil, Counts{}, fmt.Errorf("pipeline state %q has not reached its terminal step", safeReportID(state))
	}
	dedup, ok := state.CompletedResults[model.StepDedup]
	if !ok {
		return nil, Counts{}, fmt.Errorf("pipeline state %q missing completed dedup step", state.ReportID)
	}
	tree, ok := dedup.Data.(model.SortedTree)
	if !ok {
		return nil, Counts{}, fmt.Errorf("pipeline state %q dedup step result is not a sorted tree", state.ReportID)
	}
	var cruxes interface{}
	if cruxesEnabled {
		if res, ok := state.CompletedResults[model.StepCruxes]; ok {
			cruxes = res.Data
		}
	}
	return build(details, instructions, comments, state, tree, cruxes)
}

func safeReportID(state *model.PipelineState) string {
	if state == nil {
		return ""
	}
	return state.ReportID
}

func build(details model.ReportDetails, instructions model.PipelineInstructions, comments []model.CommentRecord, state *model.PipelineState, tree model.SortedTree, cruxes interface{}) (*model.Artifact, Counts, error) {
	counts := countTree(tree)
	counts.People = countPeople(comments)

	a := &model.Artifact{
		Version:       model.ArtifactVersion,
		ReportDetails: details,
		SortedTree:    tree,
		Analytics: model.Analytics{
			TotalTokens:     state.TotalTokens,
			TotalCost:       state.TotalCost,
			TotalDurationMS: state.TotalDurationMS,
			StepAnalytics:   state.StepAnalytics,
		},
		Cruxes: cruxes,
		Prompts: model.PromptRecord{
			SystemInstructions:     instructions.System,
			ClusteringInstructions: instructions.Clustering,
			ExtractionInstructions: instructions.Extraction,
			DedupInstructions:      instructions.Dedup,
			SummariesInstructions:  instructions.Summaries,
			CruxInstructions:       instructions.Crux,
			OutputLanguage:         instructions.OutputLang,
		},
		CompletedAt: time.Now().UTC(),
	}

	if err := validate.Struct(a); err != nil {
		return nil, Counts{}, fmt.Errorf("artifact failed schema validation: %w", err)
	}

	return a, counts, nil
}

// countTree derives {topics, subtopics, claims} from a SortedTree in a
// single pass. People is not derived from the tree — a dedup/summary step
// can drop a claim, and its speaker with it, so it is computed separately
// by countPeople over the job's original input comments.
func countTree(tree model.SortedTree) Counts {
	counts := Counts{Topics: len(tree)}

	for _, topic := range tree {
		counts.Subtopics += len(topic.Body.Topics)
		for _, sub := range topic.Body.Topics {
			counts.Claims += len(sub.Body.Claims)
		}
	}

	return counts
}

// countPeople is the cardinality of distinct non-empty speaker values across
// the job's input comments.
func countPeople(comments []model.CommentRecord) int {
	speakers := make(map[string]struct{})
	for _, c := range comments {
		if c.Speaker != "" {
			speakers[c.Speaker] = struct{}{}
		}
	}
	return len(speakers)
}
