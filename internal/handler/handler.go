// Package handler implements the job handler state machine: the single
// writer of a report's lock and of its metadata completed/failed
// transitions. Grounded on the teacher's jobmanager.JobManager processor
// loop — dequeue, execute, classify the outcome, decide whether to
// re-enqueue — generalized here from a priority work queue to one delivered
// message at a time.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aiobjectives/report-worker/internal/artifact"
	"github.com/aiobjectives/report-worker/internal/classify"
	"github.com/aiobjectives/report-worker/internal/model"
	"github.com/aiobjectives/report-worker/internal/obslog"
	"github.com/aiobjectives/report-worker/internal/pipeline"
	"github.com/aiobjectives/report-worker/internal/store/metadatastore"
	"github.com/aiobjectives/report-worker/internal/store/objectstore"
	"github.com/aiobjectives/report-worker/internal/store/statelock"
)

var validate = validator.New()

// Config is the handler's tunable policy, sourced from internal/config.
type Config struct {
	LockTTL time.Duration
}

// Handler is the job handler state machine described by the component's
// life cycle: validate, acquire lock, check for an existing artifact, load
// checkpointed state, run (or resume) the pipeline, extend the lock,
// publish, and always release the lock on the way out.
type Handler struct {
	objects  objectstore.Store
	metadata metadatastore.Store
	state    statelock.Store
	engine   pipeline.Engine
	logger   *obslog.Logger
	cfg      Config
}

// New constructs a Handler.
func New(objects objectstore.Store, metadata metadatastore.Store, state statelock.Store, engine pipeline.Engine, logger *obslog.Logger, cfg Config) *Handler {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &Handler{objects: objects, metadata: metadata, state: state, engine: engine, logger: logger, cfg: cfg}
}

func artifactKey(reportID string) string { return reportID + ".json" }

// Handle processes one delivered JobMessage end-to-end and returns the
// outcome the queue adapter maps to ack/nack.
func (h *Handler) Handle(ctx context.Context, msg model.JobMessage) model.Outcome {
	log := h.logger.WithReportID(msg.ReportID)

	if err := h.validateJob(msg); err != nil {
		log.Warn().Err(err).Msg("handler: rejecting invalid job")
		h.markFailed(ctx, msg.ReportID, msg.UserID, msg.ReportDetails, "validation failed: "+err.Error())
		return model.OutcomePermanent
	}

	lockValue := msg.ID
	acquired, cerr := h.state.AcquireLock(ctx, msg.ReportID, lockValue, h.cfg.LockTTL)
	if cerr != nil {
		return h.outcomeFor(cerr)
	}
	if !acquired {
		log.Debug().Msg("handler: lock busy, skipping delivery")
		return model.OutcomeOK
	}
	defer h.releaseLock(ctx, msg.ReportID, lockValue, log)

	exists, cerr := h.objects.FileExists(ctx, artifactKey(msg.ReportID))
	if cerr != nil {
		if cerr.Transient {
			return model.OutcomeTransient
		}
		h.markFailed(ctx, msg.ReportID, msg.UserID, msg.ReportDetails, cerr.Error())
		return model.OutcomePermanent
	}
	if exists {
		rec, gerr := h.metadata.Get(ctx, msg.ReportID)
		if gerr == nil && rec != nil && rec.Status == model.MetadataCompleted {
			log.Debug().Msg("handler: artifact and metadata already completed, idempotent skip")
			return model.OutcomeOK
		}
		// Orphaned artifact: a prior attempt wrote the file but never
		// recorded completion. Do not re-run the pipeline — reconstruct
		// and publish from whatever state is checkpointed.
		return h.publishFromCheckpoint(ctx, msg, lockValue, log)
	}

	loaded, cerr := h.state.GetState(ctx, msg.ReportID)
	if cerr != nil {
		return h.outcomeFor(cerr)
	}

	resume := false
	switch {
	case loaded != nil && loaded.Status == model.RunCompleted:
		return h.publishState(ctx, msg, lockValue, loaded, log)
	case loaded != nil && loaded.Status == model.RunRunning && time.Since(loaded.UpdatedAt) < h.cfg.LockTTL:
		log.Debug().Msg("handler: another holder appears live on this state, skipping")
		return model.OutcomeOK
	case loaded != nil && loaded.Status == model.RunRunning:
		resume = true
	case loaded != nil && loaded.Status == model.RunFailed:
		resume = true
	default:
		resume = false
	}

	result := h.engine.Run(ctx, h.state, pipeline.Input{
		ReportID:        msg.ReportID,
		UserID:          msg.UserID,
		Comments:        msg.Comments,
		Instructions:    msg.Instructions,
		Model:           msg.Model,
		Options:         msg.Options,
		APIKey:          msg.APIKey,
		ResumeFromState: resume,
		LockValue:       lockValue,
	})
	if !result.Success {
		cerr := classify.Classify(result.Err)
		h.markFailed(ctx, msg.ReportID, msg.UserID, msg.ReportDetails, cerr.Error())
		return h.outcomeFor(cerr)
	}

	extended, cerr := h.state.ExtendLock(ctx, msg.ReportID, lockValue, h.cfg.LockTTL)
	if cerr != nil {
		return h.outcomeFor(cerr)
	}
	if !extended {
		h.markFailed(ctx, msg.ReportID, msg.UserID, msg.ReportDetails, "lock lost before publish")
		return model.OutcomeTransient
	}

	return h.publish(ctx, msg, result.State, result.Outputs)
}

// validateJob applies struct-tag validation plus the business rules that
// can't be expressed as tags: every comment must carry non-blank text, and
// every instruction the pipeline steps depend on must be present — catching
// a missing one here, before AcquireLock, means a malformed job never takes
// a lock or spends an API key before failing.
func (h *Handler) validateJob(msg model.JobMessage) error {
	if err := validate.Struct(struct {
		ReportID string `validate:"required"`
		UserID   string `validate:"required"`
		APIKey   string `validate:"required"`
	}{msg.ReportID, msg.UserID, msg.APIKey}); err != nil {
		return err
	}
	if len(msg.Comments) == 0 {
		return fmt.Errorf("job carries no comments")
	}
	for _, c := range msg.Comments {
		if c.Trimmed() == "" {
			return fmt.Errorf("comment %q is blank", c.ID)
		}
	}
	if err := validate.Struct(struct {
		System     string `validate:"required"`
		Clustering string `validate:"required"`
		Extraction string `validate:"required"`
		Dedup      string `validate:"required"`
		Summaries  string `validate:"required"`
	}{
		msg.Instructions.System,
		msg.Instructions.Clustering,
		msg.Instructions.Extraction,
		msg.Instructions.Dedup,
		msg.Instructions.Summaries,
	}); err != nil {
		return fmt.Errorf("missing required instructions: %w", err)
	}
	return nil
}

// publishFromCheckpoint handles the orphaned-artifact branch: the artifact
// key exists but metadata never recorded completion, so state (not the
// pipeline) is the source of truth for whether this report is actually done.
func (h *Handler) publishFromCheckpoint(ctx context.Context, msg model.JobMessage, lockValue string, log *obslog.Logger) model.Outcome {
	state, cerr := h.state.GetState(ctx, msg.ReportID)
	if cerr != nil {
		return h.outcomeFor(cerr)
	}
	if state == nil || state.Status != model.RunCompleted {
		log.Warn().Msg("handler: orphaned artifact with no completed checkpoint state")
		h.markFailed(ctx, msg.ReportID, msg.UserID, msg.ReportDetails, "orphaned artifact without completed pipeline state")
		return model.OutcomePermanent
	}
	return h.publishState(ctx, msg, lockValue, state, log)
}

// publishState is the save-only retry path: reconstruct the artifact
// directly from a completed PipelineState (never re-running the pipeline)
// and execute PUBLISH.
func (h *Handler) publishState(ctx context.Context, msg model.JobMessage, lockValue string, state *model.PipelineState, log *obslog.Logger) model.Outcome {
	a, counts, err := artifact.FromState(msg.ReportDetails, msg.Instructions, msg.Comments, state, msg.Options.CruxesEnabled)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to reconstruct artifact from checkpointed state")
		h.markFailed(ctx, msg.ReportID, msg.UserID, msg.ReportDetails, "artifact reconstruction failed: "+err.Error())
		return model.OutcomePermanent
	}
	return h.publishArtifact(ctx, msg, a, counts)
}

// publish builds the artifact from a freshly completed pipeline.Result and
// executes PUBLISH.
func (h *Handler) publish(ctx context.Context, msg model.JobMessage, state *model.PipelineState, outputs *pipeline.Outputs) model.Outcome {
	a, counts, err := artifact.FromResult(msg.ReportDetails, msg.Instructions, msg.Comments, pipeline.Result{Success: true, State: state, Outputs: outputs})
	if err != nil {
		h.markFailed(ctx, msg.ReportID, msg.UserID, msg.ReportDetails, "artifact construction failed: "+err.Error())
		return model.OutcomePermanent
	}
	return h.publishArtifact(ctx, msg, a, counts)
}

// publishArtifact implements PUBLISH: atomically write the artifact, then
// record completion in metadata, rolling back the artifact write if
// metadata cannot be updated so the two stores never disagree about whether
// this report is done.
func (h *Handler) publishArtifact(ctx context.Context, msg model.JobMessage, a *model.Artifact, counts artifact.Counts) model.Outcome {
	data, err := json.Marshal(a)
	if err != nil {
		h.markFailed(ctx, msg.ReportID, msg.UserID, msg.ReportDetails, "artifact marshal failed: "+err.Error())
		return model.OutcomePermanent
	}

	key := artifactKey(msg.ReportID)
	uri, cerr := h.objects.StoreFile(ctx, key, data, "application/json")
	if cerr != nil {
		return h.outcomeFor(cerr)
	}

	status := model.MetadataCompleted
	topics, subtopics, claims, people := counts.Topics, counts.Subtopics, counts.Claims, counts.People
	cerr = h.metadata.Modify(ctx, msg.ReportID, metadatastore.Update{
		UserID:        &msg.UserID,
		Title:         &msg.ReportDetails.Title,
		Description:   &msg.ReportDetails.Description,
		ReportDataURI: &uri,
		Status:        &status,
		NumTopics:     &topics,
		NumSubtopics:  &subtopics,
		NumClaims:     &claims,
		NumPeople:     &people,
	})
	if cerr != nil {
		if delErr := h.objects.DeleteFile(ctx, key); delErr != nil {
			h.logger.WithReportID(msg.ReportID).Warn().Err(delErr).Msg("handler: best-effort artifact rollback failed after metadata write failure")
		}
		return h.outcomeFor(cerr)
	}

	return model.OutcomeOK
}

// markFailed records a permanent failure in metadata. Best-effort: a
// failure to write the failure record itself is logged, not escalated —
// the handler's return value is already the authoritative outcome.
func (h *Handler) markFailed(ctx context.Context, reportID, userID string, details model.ReportDetails, reason string) {
	status := model.MetadataFailed
	if cerr := h.metadata.Modify(ctx, reportID, metadatastore.Update{
		UserID:       &userID,
		Title:        &details.Title,
		Description:  &details.Description,
		Status:       &status,
		ErrorMessage: &reason,
	}); cerr != nil {
		h.logger.WithReportID(reportID).Warn().Err(cerr).Msg("handler: failed to record failure in metadata")
	}
}

// releaseLock always runs on the way out, including under cancellation — a
// failed release is logged, never escalated, since it only means the lease
// already expired or was taken over by another holder.
func (h *Handler) releaseLock(ctx context.Context, reportID, lockValue string, log *obslog.Logger) {
	released, cerr := h.state.ReleaseLock(context.WithoutCancel(ctx), reportID, lockValue)
	if cerr != nil {
		log.Warn().Err(cerr).Msg("handler: releaseLock errored")
		return
	}
	if !released {
		log.Debug().Msg("handler: releaseLock was a no-op, lease already expired or taken over")
	}
}

func (h *Handler) outcomeFor(cerr *model.ClassifiedError) model.Outcome {
	if cerr.Transient {
		return model.OutcomeTransient
	}
	return model.OutcomePermanent
}
