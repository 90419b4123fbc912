// Package metadatastore implements the Metadata Store Adapter: the
// authoritative, document-store-resident record of each report's lifecycle,
// backed by SurrealDB. Get/Modify never surface a raw driver error — only a
// *model.ClassifiedError.
package metadatastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/aiobjectives/report-worker/internal/classify"
	"github.com/aiobjectives/report-worker/internal/model"
	"github.com/aiobjectives/report-worker/internal/obslog"
)

// Store is the contract the job handler depends on.
type Store interface {
	Get(ctx context.Context, reportID string) (*model.ReportMetadata, *model.ClassifiedError)
	Modify(ctx context.Context, reportID string, update Update) *model.ClassifiedError
}

// Update carries only the fields a caller wants changed; Modify reads the
// existing record, overlays exactly these fields onto it in Go, and writes
// the merged struct back — a concurrent writer's other fields are never
// clobbered by a blind replace.
type Update struct {
	UserID        *string
	Title         *string
	Description   *string
	ReportDataURI *string
	Status        *model.MetadataStatus
	NumTopics     *int
	NumSubtopics  *int
	NumClaims     *int
	NumPeople     *int
	ErrorMessage  *string
}

// apply overlays the supplied fields onto rec and stamps LastStatusUpdate.
func (u Update) apply(rec *model.ReportMetadata) {
	if u.UserID != nil {
		rec.UserID = *u.UserID
	}
	if u.Title != nil {
		rec.Title = *u.Title
	}
	if u.Description != nil {
		rec.Description = *u.Description
	}
	if u.ReportDataURI != nil {
		rec.ReportDataURI = *u.ReportDataURI
	}
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.NumTopics != nil {
		rec.NumTopics = *u.NumTopics
	}
	if u.NumSubtopics != nil {
		rec.NumSubtopics = *u.NumSubtopics
	}
	if u.NumClaims != nil {
		rec.NumClaims = *u.NumClaims
	}
	if u.NumPeople != nil {
		rec.NumPeople = *u.NumPeople
	}
	if u.ErrorMessage != nil {
		rec.ErrorMessage = *u.ErrorMessage
	}
	rec.LastStatusUpdate = time.Now().UTC()
}

// SurrealStore is the concrete Store backed by a SurrealDB table.
type SurrealStore struct {
	db     *surrealdb.DB
	table  string
	logger *obslog.Logger
}

var _ Store = (*SurrealStore)(nil)

// New wraps an already-connected, signed-in DB. table should already be
// environment-qualified; see config.MetadataConfig.CollectionFor.
func New(db *surrealdb.DB, table string, logger *obslog.Logger) *SurrealStore {
	return &SurrealStore{db: db, table: table, logger: logger}
}

func (s *SurrealStore) recordID(reportID string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(s.table, reportID)
}

// isNotFoundError mirrors the teacher's surrealdb not-found sentinel: the Go
// client surfaces no structured not-found error, just this substring on a
// failed single-record SELECT/UPSERT.
func isNotFoundError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Expected a single result output when using the ONLY keyword")
}

// classifySurrealErr falls back to the generic substring heuristics: unlike
// the mongo driver this package replaced, surrealdb.go carries no structured
// network/timeout/code API to check ahead of them.
func classifySurrealErr(err error) *model.ClassifiedError {
	return classify.Classify(err)
}

// Get fetches a ReportMetadata by reportId. A missing record is reported as
// a permanent ClassifiedError, not a nil/nil result, so the handler always
// branches on the same shape.
func (s *SurrealStore) Get(ctx context.Context, reportID string) (*model.ReportMetadata, *model.ClassifiedError) {
	rec, err := surrealdb.Select[model.ReportMetadata](ctx, s.db, s.recordID(reportID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, model.NewClassifiedError(false, model.CategoryInfrastructure, "report metadata not found: "+reportID, err)
		}
		return nil, classifySurrealErr(fmt.Errorf("metadata store get %s: %w", reportID, err))
	}
	if rec == nil {
		return nil, model.NewClassifiedError(false, model.CategoryInfrastructure, "report metadata not found: "+reportID, nil)
	}
	return rec, nil
}

// Modify performs a read-modify-write that never overwrites fields absent
// from update: Select the existing record (or start from a zero-value one
// stamped with reportID and CreatedDate, if this is the first write on job
// receipt), overlay only the supplied fields, then UPSERT the fully-merged
// record back — the same get-then-merge-then-CONTENT-upsert shape as the
// teacher's UserStore.Put, with the UPSERT attempted up to three times in
// all, whatever the error.
func (s *SurrealStore) Modify(ctx context.Context, reportID string, update Update) *model.ClassifiedError {
	rec, err := surrealdb.Select[model.ReportMetadata](ctx, s.db, s.recordID(reportID))
	if err != nil && !isNotFoundError(err) {
		return classifySurrealErr(fmt.Errorf("metadata store modify %s: select: %w", reportID, err))
	}
	if rec == nil {
		now := time.Now().UTC()
		rec = &model.ReportMetadata{ID: reportID, CreatedDate: &now}
	}
	update.apply(rec)

	sql := "UPSERT $rid CONTENT $record"
	vars := map[string]any{"rid": s.recordID(reportID), "record": rec}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := surrealdb.Query[[]model.ReportMetadata](ctx, s.db, sql, vars); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return classifySurrealErr(fmt.Errorf("metadata store modify %s: upsert after retries: %w", reportID, lastErr))
}
