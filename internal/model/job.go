// Package model holds the wire and storage shapes shared by every component
// of the report worker: the inbound job message, the checkpointed pipeline
// state, the published artifact, and the classified error sum type that
// crosses every adapter boundary.
package model

import "strings"

// CommentRecord is a single pipeline input element.
type CommentRecord struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
}

// Trimmed returns Text with surrounding whitespace removed; it must be
// non-empty for the CommentRecord to be valid pipeline input.
func (c CommentRecord) Trimmed() string {
	return strings.TrimSpace(c.Text)
}

// PipelineOptions carries the job-level switches that shape plan execution.
type PipelineOptions struct {
	CruxesEnabled bool   `json:"cruxesEnabled"`
	SortStrategy  string `json:"sortStrategy"`
}

// PipelineInstructions carries the per-step system prompts supplied by the
// job producer. System, Clustering, Extraction, Dedup and Summaries are
// required; Crux is only meaningful when PipelineOptions.CruxesEnabled is set.
type PipelineInstructions struct {
	System      string `json:"system"`
	Clustering  string `json:"clustering"`
	Extraction  string `json:"extraction"`
	Dedup       string `json:"dedup"`
	Summaries   string `json:"summaries"`
	Crux        string `json:"crux,omitempty"`
	OutputLang  string `json:"outputLanguage,omitempty"`
}

// ReportDetails is carried verbatim into the published artifact's header.
type ReportDetails struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Question    string `json:"question"`
	Filename    string `json:"filename"`
}

// JobMessage is the queue payload. It is created by an upstream producer,
// consumed at least once by the handler, and never mutated once received.
type JobMessage struct {
	ID            string                `json:"id"`
	ReportID      string                `json:"reportId"`
	UserID        string                `json:"userId"`
	RequestID     string                `json:"requestId,omitempty"`
	Comments      []CommentRecord       `json:"comments"`
	Instructions  PipelineInstructions  `json:"instructions"`
	Model         string                `json:"model"`
	Options       PipelineOptions       `json:"options"`
	APIKey        string                `json:"apiKey"`
	ReportDetails ReportDetails         `json:"reportDetails"`
}
