package artifact

import (
	"testing"

	"github.com/aiobjectives/report-worker/internal/model"
	"github.com/aiobjectives/report-worker/internal/pipeline"
)

func sampleTree() model.SortedTree {
	return model.SortedTree{
		{
			Name: "Economy",
			Body: model.Topic{
				Speakers: []string{"alice"},
				Counts:   model.Counts{Claims: 2, Speakers: 2},
				Topics: []model.NamedSubtopic{
					{
						Name: "Jobs",
						Body: model.Subtopic{
							Claims:   []string{"wages should rise", "jobs are scarce"},
							Speakers: []string{"alice", "bob"},
							Counts:   model.Counts{Claims: 2, Speakers: 2},
						},
					},
				},
			},
		},
		{
			Name: "Housing",
			Body: model.Topic{
				Speakers: []string{"carol"},
				Topics: []model.NamedSubtopic{
					{
						Name: "Rent",
						Body: model.Subtopic{
							Claims:   []string{"rent is too high"},
							Speakers: []string{"carol", ""},
						},
					},
				},
			},
		},
	}
}

func sampleComments() []model.CommentRecord {
	return []model.CommentRecord{
		{ID: "c1", Text: "wages should rise", Speaker: "alice"},
		{ID: "c2", Text: "jobs are scarce", Speaker: "bob"},
		{ID: "c3", Text: "rent is too high", Speaker: "carol"},
		{ID: "c4", Text: "me too", Speaker: ""},
		{ID: "c5", Text: "dropped before dedup", Speaker: "dave"},
	}
}

func sampleState(terminal model.StepName, tree model.SortedTree) *model.PipelineState {
	state := model.NewPipelineState("R1")
	state.CompletedResults[model.StepDedup] = model.StepResult{Step: model.StepDedup, Data: tree}
	state.StepAnalytics[model.StepDedup] = model.StepAnalytics{Status: model.StepCompleted}
	state.StepAnalytics[terminal] = model.StepAnalytics{Status: model.StepCompleted, Tokens: 100}
	state.Recompute(terminal)
	return state
}

func TestCountTree_DerivesTopicsSubtopicsAndClaims(t *testing.T) {
	counts := countTree(sampleTree())

	if counts.Topics != 2 {
		t.Errorf("Topics = %d, want 2", counts.Topics)
	}
	if counts.Subtopics != 2 {
		t.Errorf("Subtopics = %d, want 2", counts.Subtopics)
	}
	if counts.Claims != 3 {
		t.Errorf("Claims = %d, want 3", counts.Claims)
	}
}

func TestCountPeople_CountsDistinctNonEmptySpeakersAcrossComments(t *testing.T) {
	// alice, bob, carol, dave — blank speaker entries must not inflate the
	// count, and dave (whose claim never made it into the sorted tree) must
	// still be counted, since People is derived from the input, not the tree.
	if got := countPeople(sampleComments()); got != 4 {
		t.Errorf("countPeople() = %d, want 4", got)
	}
}

func TestFromResult_BuildsValidArtifact(t *testing.T) {
	tree := sampleTree()
	state := sampleState(model.StepSummaries, tree)
	result := pipeline.Result{
		Success: true,
		State:   state,
		Outputs: &pipeline.Outputs{SortedTree: tree},
	}

	a, counts, err := FromResult(
		model.ReportDetails{Title: "t", Description: "d", Question: "q", Filename: "f.json"},
		model.PipelineInstructions{System: "sys", Clustering: "c", Extraction: "e", Dedup: "dd", Summaries: "s"},
		sampleComments(),
		result,
	)
	if err != nil {
		t.Fatalf("FromResult returned error: %v", err)
	}
	if a.Version != model.ArtifactVersion {
		t.Errorf("Version = %q, want %q", a.Version, model.ArtifactVersion)
	}
	if counts.Topics != 2 {
		t.Errorf("Counts.Topics = %d, want 2", counts.Topics)
	}
	if counts.People != 4 {
		t.Errorf("Counts.People = %d, want 4 (derived from comments, not the tree)", counts.People)
	}
	if a.CompletedAt.IsZero() {
		t.Error("CompletedAt must be stamped")
	}
}

func TestFromResult_FailsOnIncompleteResult(t *testing.T) {
	_, _, err := FromResult(model.ReportDetails{}, model.PipelineInstructions{}, nil, pipeline.Result{Success: false})
	if err == nil {
		t.Fatal("FromResult must reject an unsuccessful pipeline result")
	}
}

// TestFromState_ReconstructsArtifactFromCompletedState exercises the
// round-trip property that reconstructing from a completed state yields an
// artifact satisfying the same schema a fresh FromResult build would.
func TestFromState_ReconstructsArtifactFromCompletedState(t *testing.T) {
	tree := sampleTree()
	state := sampleState(model.StepSummaries, tree)

	a, counts, err := FromState(
		model.ReportDetails{Title: "t", Description: "d", Question: "q", Filename: "f.json"},
		model.PipelineInstructions{System: "sys", Clustering: "c", Extraction: "e", Dedup: "dd", Summaries: "s"},
		sampleComments(),
		state,
		false,
	)
	if err != nil {
		t.Fatalf("FromState returned error: %v", err)
	}
	if len(a.SortedTree) != len(tree) {
		t.Errorf("SortedTree length = %d, want %d", len(a.SortedTree), len(tree))
	}
	if counts.People != 4 {
		t.Errorf("Counts.People = %d, want 4 (derived from comments, not the tree)", counts.People)
	}
}

func TestFromState_RejectsStateMissingTerminalStep(t *testing.T) {
	state := model.NewPipelineState("R1")
	_, _, err := FromState(model.ReportDetails{}, model.PipelineInstructions{}, nil, state, false)
	if err == nil {
		t.Fatal("FromState must reject a state whose terminal step never completed")
	}
}

func TestFromState_IncludesCruxesWhenEnabled(t *testing.T) {
	tree := sampleTree()
	state := sampleState(model.StepCruxes, tree)
	state.CompletedResults[model.StepCruxes] = model.StepResult{Step: model.StepCruxes, Data: []interface{}{"crux one"}}

	a, _, err := FromState(
		model.ReportDetails{Title: "t", Description: "d", Question: "q", Filename: "f.json"},
		model.PipelineInstructions{System: "sys", Clustering: "c", Extraction: "e", Dedup: "dd", Summaries: "s", Crux: "x"},
		sampleComments(),
		state,
		true,
	)
	if err != nil {
		t.Fatalf("FromState returned error: %v", err)
	}
	if a.Cruxes == nil {
		t.Error("Cruxes must be populated when cruxes are enabled and completed")
	}
}
