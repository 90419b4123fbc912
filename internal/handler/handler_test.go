package handler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aiobjectives/report-worker/internal/model"
	"github.com/aiobjectives/report-worker/internal/obslog"
	"github.com/aiobjectives/report-worker/internal/pipeline"
	"github.com/aiobjectives/report-worker/internal/store/metadatastore"
)

// --- in-memory test doubles for the three store contracts ---

type memObjects struct {
	mu    sync.Mutex
	files map[string][]byte
	err   *model.ClassifiedError // injected failure for the next StoreFile/FileExists call
}

func newMemObjects() *memObjects { return &memObjects{files: map[string][]byte{}} }

func (m *memObjects) FileExists(ctx context.Context, name string) (bool, *model.ClassifiedError) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok, nil
}

func (m *memObjects) StoreFile(ctx context.Context, name string, data []byte, contentType string) (string, *model.ClassifiedError) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return "mem://" + name, nil
}

func (m *memObjects) DeleteFile(ctx context.Context, name string) *model.ClassifiedError {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

func (m *memObjects) HealthCheck(ctx context.Context) *model.ClassifiedError { return nil }

type memMetadata struct {
	mu      sync.Mutex
	records map[string]*model.ReportMetadata
}

func newMemMetadata() *memMetadata { return &memMetadata{records: map[string]*model.ReportMetadata{}} }

func (m *memMetadata) Get(ctx context.Context, reportID string) (*model.ReportMetadata, *model.ClassifiedError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[reportID]
	if !ok {
		return nil, model.NewClassifiedError(false, model.CategoryInfrastructure, "not found", nil)
	}
	cp := *rec
	return &cp, nil
}

func (m *memMetadata) Modify(ctx context.Context, reportID string, update metadatastore.Update) *model.ClassifiedError {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[reportID]
	if !ok {
		rec = &model.ReportMetadata{ID: reportID}
		m.records[reportID] = rec
	}
	if update.UserID != nil {
		rec.UserID = *update.UserID
	}
	if update.Title != nil {
		rec.Title = *update.Title
	}
	if update.Description != nil {
		rec.Description = *update.Description
	}
	if update.ReportDataURI != nil {
		rec.ReportDataURI = *update.ReportDataURI
	}
	if update.Status != nil {
		rec.Status = *update.Status
	}
	if update.NumTopics != nil {
		rec.NumTopics = *update.NumTopics
	}
	if update.NumSubtopics != nil {
		rec.NumSubtopics = *update.NumSubtopics
	}
	if update.NumClaims != nil {
		rec.NumClaims = *update.NumClaims
	}
	if update.NumPeople != nil {
		rec.NumPeople = *update.NumPeople
	}
	if update.ErrorMessage != nil {
		rec.ErrorMessage = *update.ErrorMessage
	}
	return nil
}

type memState struct {
	mu     sync.Mutex
	states map[string]*model.PipelineState
	locks  map[string]string
}

func newMemState() *memState {
	return &memState{states: map[string]*model.PipelineState{}, locks: map[string]string{}}
}

func (m *memState) GetState(ctx context.Context, reportID string) (*model.PipelineState, *model.ClassifiedError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[reportID], nil
}

func (m *memState) SaveState(ctx context.Context, state *model.PipelineState) *model.ClassifiedError {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[state.ReportID] = &cp
	return nil
}

func (m *memState) AcquireLock(ctx context.Context, reportID, fencingValue string, ttl time.Duration) (bool, *model.ClassifiedError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[reportID]; held {
		return false, nil
	}
	m.locks[reportID] = fencingValue
	return true, nil
}

func (m *memState) VerifyLock(ctx context.Context, reportID, fencingValue string) (bool, *model.ClassifiedError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[reportID] == fencingValue, nil
}

func (m *memState) ExtendLock(ctx context.Context, reportID, fencingValue string, ttl time.Duration) (bool, *model.ClassifiedError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[reportID] == fencingValue, nil
}

func (m *memState) ReleaseLock(ctx context.Context, reportID, fencingValue string) (bool, *model.ClassifiedError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[reportID] != fencingValue {
		return false, nil
	}
	delete(m.locks, reportID)
	return true, nil
}

func validJob(reportID string) model.JobMessage {
	return model.JobMessage{
		ID:       "msg-1",
		ReportID: reportID,
		UserID:   "user-1",
		APIKey:   "key",
		Comments: []model.CommentRecord{{ID: "c1", Text: "hello world"}},
		Instructions: model.PipelineInstructions{
			System: "sys", Clustering: "c", Extraction: "e", Dedup: "d", Summaries: "s",
		},
		ReportDetails: model.ReportDetails{Title: "t", Description: "d", Question: "q", Filename: "f.json"},
	}
}

func newTestHandler(objects *memObjects, metadata *memMetadata, state *memState, engine pipeline.Engine) *Handler {
	return New(objects, metadata, state, engine, obslog.Silent(), Config{LockTTL: time.Minute})
}

func TestHandle_HappyPath(t *testing.T) {
	objects, metadata, state := newMemObjects(), newMemMetadata(), newMemState()
	h := newTestHandler(objects, metadata, state, pipeline.NewFake(false))

	outcome := h.Handle(context.Background(), validJob("R1"))
	if outcome != model.OutcomeOK {
		t.Fatalf("Handle = %q, want %q", outcome, model.OutcomeOK)
	}
	if _, ok := objects.files["R1.json"]; !ok {
		t.Error("artifact was not published")
	}
	if _, held := state.locks["R1"]; held {
		t.Error("lock must be released after a successful run")
	}
}

func TestHandle_ValidationFailureReturnsPermanentWithoutLocking(t *testing.T) {
	objects, metadata, state := newMemObjects(), newMemMetadata(), newMemState()
	h := newTestHandler(objects, metadata, state, pipeline.NewFake(false))

	msg := validJob("R1")
	msg.Comments = nil

	outcome := h.Handle(context.Background(), msg)
	if outcome != model.OutcomePermanent {
		t.Fatalf("Handle = %q, want %q", outcome, model.OutcomePermanent)
	}
	if _, held := state.locks["R1"]; held {
		t.Error("validation failure must never acquire the lock")
	}
}

func TestHandle_MissingSystemInstructionsReturnsPermanentWithoutLocking(t *testing.T) {
	objects, metadata, state := newMemObjects(), newMemMetadata(), newMemState()
	fake := pipeline.NewFake(false)
	h := newTestHandler(objects, metadata, state, fake)

	msg := validJob("R1")
	msg.Instructions.System = ""

	outcome := h.Handle(context.Background(), msg)
	if outcome != model.OutcomePermanent {
		t.Fatalf("Handle = %q, want %q", outcome, model.OutcomePermanent)
	}
	if _, held := state.locks["R1"]; held {
		t.Error("missing systemInstructions must never acquire the lock")
	}
	if len(fake.Calls) != 0 {
		t.Error("missing systemInstructions must never reach the pipeline engine")
	}
	rec := metadata.records["R1"]
	if rec == nil || rec.Status != model.MetadataFailed {
		t.Fatalf("metadata record = %+v, want Status=failed", rec)
	}
}

func TestHandle_BusyLockReturnsOKWithoutRunningPipeline(t *testing.T) {
	objects, metadata, state := newMemObjects(), newMemMetadata(), newMemState()
	state.locks["R1"] = "some-other-holder"
	fake := pipeline.NewFake(false)
	h := newTestHandler(objects, metadata, state, fake)

	outcome := h.Handle(context.Background(), validJob("R1"))
	if outcome != model.OutcomeOK {
		t.Fatalf("Handle = %q, want %q", outcome, model.OutcomeOK)
	}
	if len(fake.Calls) != 0 {
		t.Error("pipeline must not run while another holder owns the lock")
	}
	if state.locks["R1"] != "some-other-holder" {
		t.Error("busy-lock path must not disturb the existing holder's lock")
	}
}

func TestHandle_IdempotentSkipWhenAlreadyCompleted(t *testing.T) {
	objects, metadata, state := newMemObjects(), newMemMetadata(), newMemState()
	objects.files["R1.json"] = []byte(`{}`)
	metadata.records["R1"] = &model.ReportMetadata{ID: "R1", Status: model.MetadataCompleted}
	fake := pipeline.NewFake(false)
	h := newTestHandler(objects, metadata, state, fake)

	outcome := h.Handle(context.Background(), validJob("R1"))
	if outcome != model.OutcomeOK {
		t.Fatalf("Handle = %q, want %q", outcome, model.OutcomeOK)
	}
	if len(fake.Calls) != 0 {
		t.Error("an already-completed report must never re-run the pipeline")
	}
}

func TestHandle_ResumesAfterStaleRunningState(t *testing.T) {
	objects, metadata, state := newMemObjects(), newMemMetadata(), newMemState()

	prior := model.NewPipelineState("R1")
	prior.Status = model.RunRunning
	prior.CompletedResults[model.StepClustering] = model.StepResult{Step: model.StepClustering, Data: "clustering-result"}
	prior.StepAnalytics[model.StepClustering] = model.StepAnalytics{Status: model.StepCompleted}
	prior.UpdatedAt = time.Now().Add(-time.Hour) // well past the 1-minute TTL
	state.states["R1"] = prior

	fake := pipeline.NewFake(false)
	h := newTestHandler(objects, metadata, state, fake)

	outcome := h.Handle(context.Background(), validJob("R1"))
	if outcome != model.OutcomeOK {
		t.Fatalf("Handle = %q, want %q", outcome, model.OutcomeOK)
	}
	for _, called := range fake.Calls {
		if called == model.StepClustering {
			t.Error("resume must skip a step already marked completed in the checkpointed state")
		}
	}
}

func TestHandle_LiveRunningStateIsSkipped(t *testing.T) {
	objects, metadata, state := newMemObjects(), newMemMetadata(), newMemState()

	prior := model.NewPipelineState("R1")
	prior.Status = model.RunRunning
	prior.UpdatedAt = time.Now()
	state.states["R1"] = prior

	fake := pipeline.NewFake(false)
	h := newTestHandler(objects, metadata, state, fake)

	outcome := h.Handle(context.Background(), validJob("R1"))
	if outcome != model.OutcomeOK {
		t.Fatalf("Handle = %q, want %q", outcome, model.OutcomeOK)
	}
	if len(fake.Calls) != 0 {
		t.Error("a fresh running state owned by a live holder must not be touched")
	}
}

func TestHandle_PipelineFailureMarksMetadataFailedAndReturnsOutcome(t *testing.T) {
	objects, metadata, state := newMemObjects(), newMemMetadata(), newMemState()
	fake := pipeline.NewFake(false)
	fake.FailAt = model.StepClaims
	fake.FailErr = errors.New("permission denied calling upstream")
	h := newTestHandler(objects, metadata, state, fake)

	outcome := h.Handle(context.Background(), validJob("R1"))
	if outcome != model.OutcomePermanent {
		t.Fatalf("Handle = %q, want %q", outcome, model.OutcomePermanent)
	}
	rec := metadata.records["R1"]
	if rec == nil || rec.Status != model.MetadataFailed {
		t.Fatalf("metadata record = %+v, want Status=failed", rec)
	}
	if _, held := state.locks["R1"]; held {
		t.Error("lock must be released even after a pipeline failure")
	}
}

func TestHandle_TransientPipelineFailureReturnsTransient(t *testing.T) {
	objects, metadata, state := newMemObjects(), newMemMetadata(), newMemState()
	fake := pipeline.NewFake(false)
	fake.FailAt = model.StepClaims
	fake.FailErr = errors.New("upstream unavailable, deadline exceeded")
	h := newTestHandler(objects, metadata, state, fake)

	outcome := h.Handle(context.Background(), validJob("R1"))
	if outcome != model.OutcomeTransient {
		t.Fatalf("Handle = %q, want %q", outcome, model.OutcomeTransient)
	}
}
