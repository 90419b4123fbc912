package metadatastore

import (
	"testing"

	"github.com/aiobjectives/report-worker/internal/model"
)

func strPtr(s string) *string                                { return &s }
func statusPtr(s model.MetadataStatus) *model.MetadataStatus { return &s }

func TestUpdate_Apply_OnlyOverwritesSuppliedFields(t *testing.T) {
	rec := &model.ReportMetadata{
		ID:    "R1",
		Title: "original title",
	}
	u := Update{
		Status:        statusPtr(model.MetadataCompleted),
		ReportDataURI: strPtr("gs://bucket/R1.json"),
	}
	u.apply(rec)

	if rec.Status != model.MetadataCompleted {
		t.Errorf("Status = %q, want %q", rec.Status, model.MetadataCompleted)
	}
	if rec.ReportDataURI != "gs://bucket/R1.json" {
		t.Errorf("ReportDataURI = %q, want gs://bucket/R1.json", rec.ReportDataURI)
	}
	if rec.Title != "original title" {
		t.Errorf("Title = %q, want untouched %q", rec.Title, "original title")
	}
}

func TestUpdate_Apply_AlwaysStampsLastStatusUpdate(t *testing.T) {
	rec := &model.ReportMetadata{ID: "R1"}
	before := rec.LastStatusUpdate

	Update{}.apply(rec)

	if !rec.LastStatusUpdate.After(before) {
		t.Error("apply() must always advance LastStatusUpdate")
	}
}
