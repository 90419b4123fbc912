package model

import "time"

// ArtifactVersion is the published schema version written into every
// artifact's "version" field. Bump this, never repurpose it, if the shape
// changes in a backward-incompatible way.
const ArtifactVersion = "pipeline-worker-v1.0"

// ClaimGroup is a single claim attached to a subtopic.
type ClaimGroup struct {
	Claims  []string `json:"claims"`
	Speakers []string `json:"speakers"`
	Counts  Counts   `json:"counts"`
}

// Counts is the per-node {claims, speakers} tally used throughout SortedTree.
type Counts struct {
	Claims   int `json:"claims"`
	Speakers int `json:"speakers"`
}

// Subtopic is one named entry under a Topic.
type Subtopic struct {
	Name    string     `json:"-"`
	Claims  []string   `json:"claims"`
	Speakers []string  `json:"speakers"`
	Counts  Counts     `json:"counts"`
}

// Topic is one named entry of the SortedTree, holding its own subtopics.
type Topic struct {
	Name     string     `json:"-"`
	Topics   []NamedSubtopic `json:"topics"`
	Speakers []string        `json:"speakers"`
	Counts   Counts          `json:"counts"`
}

// NamedSubtopic pairs a subtopic's name with its body, mirroring the
// artifact's [name, body] tuple encoding (see SortedTree.MarshalJSON).
type NamedSubtopic struct {
	Name string
	Body Subtopic
}

// NamedTopic pairs a topic's name with its body.
type NamedTopic struct {
	Name string
	Body Topic
}

// SortedTree is the hierarchical topic/subtopic/claim structure produced by
// the pipeline's dedup step — an ordered list of [topicName, topicBody]
// pairs, preserved as a slice (not a map) because artifact consumers rely on
// topic order.
type SortedTree []NamedTopic

// Analytics is the artifact's cost/timing summary, derived from
// PipelineState at publish time.
type Analytics struct {
	TotalTokens     int64                      `json:"totalTokens"`
	TotalCost       float64                    `json:"totalCost"`
	TotalDurationMS int64                      `json:"totalDurationMs"`
	StepAnalytics   map[StepName]StepAnalytics `json:"stepAnalytics"`
}

// PromptRecord captures the instructions used to produce this run, so a
// report can always be traced back to the prompts that shaped it.
type PromptRecord struct {
	SystemInstructions     string `json:"systemInstructions"`
	ClusteringInstructions string `json:"clusteringInstructions"`
	ExtractionInstructions string `json:"extractionInstructions"`
	DedupInstructions      string `json:"dedupInstructions"`
	SummariesInstructions  string `json:"summariesInstructions"`
	CruxInstructions       string `json:"cruxInstructions,omitempty"`
	OutputLanguage         string `json:"outputLanguage,omitempty"`
}

// Artifact is the final JSON document published to the object store at key
// "{reportId}.json".
type Artifact struct {
	Version       string         `json:"version" validate:"required"`
	ReportDetails ReportDetails  `json:"reportDetails" validate:"required"`
	SortedTree    SortedTree     `json:"sortedTree" validate:"required"`
	Analytics     Analytics      `json:"analytics" validate:"required"`
	Cruxes        interface{}    `json:"cruxes,omitempty"`
	Prompts       PromptRecord   `json:"prompts" validate:"required"`
	CompletedAt   time.Time      `json:"completedAt" validate:"required"`
}
