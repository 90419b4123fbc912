// Package objectstore implements the Object Store Adapter: a content-keyed,
// atomically-published bucket on top of Google Cloud Storage. Every public
// method returns a *model.ClassifiedError so the handler never has to look
// at a raw GCS/gRPC error.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/aiobjectives/report-worker/internal/classify"
	"github.com/aiobjectives/report-worker/internal/model"
	"github.com/aiobjectives/report-worker/internal/obslog"
)

// Store is the contract the job handler depends on. It never surfaces a raw
// error — only *model.ClassifiedError.
type Store interface {
	FileExists(ctx context.Context, name string) (bool, *model.ClassifiedError)
	StoreFile(ctx context.Context, name string, data []byte, contentType string) (url string, err *model.ClassifiedError)
	DeleteFile(ctx context.Context, name string) *model.ClassifiedError
	HealthCheck(ctx context.Context) *model.ClassifiedError
}

// GCSStore is the concrete Store backed by a single GCS bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
	logger *obslog.Logger
}

var _ Store = (*GCSStore)(nil)

// New constructs a GCSStore over an already-authenticated client. Adapter
// construction (credentials, ADC) is the caller's (internal/app's)
// responsibility, not this package's.
func New(client *gcs.Client, bucket string, logger *obslog.Logger) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, logger: logger}
}

func (s *GCSStore) bkt() *gcs.BucketHandle {
	return s.client.Bucket(s.bucket)
}

// tempName derives the temp key used for an in-flight write to name. It
// uses a random UUID, not a timestamp, so concurrent writers publishing the
// same final name can never collide on their temp object.
func tempName(name string) string {
	return fmt.Sprintf("%s.tmp.%s", name, uuid.NewString())
}

// FileExists reports whether name is present in the bucket. It never treats
// "not present" as an error — only genuine infrastructure failures reach
// the returned *model.ClassifiedError.
func (s *GCSStore) FileExists(ctx context.Context, name string) (bool, *model.ClassifiedError) {
	_, err := s.bkt().Object(name).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	return false, classify.Classify(fmt.Errorf("object store attrs %s: %w", name, err))
}

// StoreFile atomically publishes data at key name: write to a random
// temp key, verify its size via Attrs, copy it to the final key, then
// delete the temp object. On any failure before the copy, name is left
// untouched; on a size mismatch the temp object is deleted and a
// verification error is returned rather than ever moving a bad object to
// the final key.
func (s *GCSStore) StoreFile(ctx context.Context, name string, data []byte, contentType string) (string, *model.ClassifiedError) {
	tmp := tempName(name)
	tempObj := s.bkt().Object(tmp)

	w := tempObj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		_ = tempObj.Delete(ctx)
		return "", classify.Classify(fmt.Errorf("object store write temp %s: %w", tmp, err))
	}
	if err := w.Close(); err != nil {
		return "", classify.Classify(fmt.Errorf("object store close temp %s: %w", tmp, err))
	}

	attrs, err := tempObj.Attrs(ctx)
	if err != nil {
		_ = tempObj.Delete(ctx)
		return "", classify.Classify(fmt.Errorf("object store verify temp %s: %w", tmp, err))
	}
	if attrs.Size != int64(len(data)) {
		_ = tempObj.Delete(ctx)
		return "", model.NewClassifiedError(false, model.CategoryInfrastructure,
			fmt.Sprintf("size verification failed for %s: wrote %d bytes, wanted %d", name, attrs.Size, len(data)), nil)
	}

	finalObj := s.bkt().Object(name)
	copier := finalObj.CopierFrom(tempObj)
	copier.ContentType = contentType
	if _, err := copier.Run(ctx); err != nil {
		_ = tempObj.Delete(ctx)
		return "", classify.Classify(fmt.Errorf("object store publish %s: %w", name, err))
	}

	if err := tempObj.Delete(ctx); err != nil {
		s.logger.Warn().Str("temp", tmp).Err(err).Msg("object store: failed to delete temp object after publish")
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// DeleteFile deletes name. A not-found delete is reported as a
// ClassifiedError like any other (callers that need idempotent delete
// should check FileExists first); the handler's rollback path tolerates
// this by only logging a failed best-effort delete.
func (s *GCSStore) DeleteFile(ctx context.Context, name string) *model.ClassifiedError {
	if err := s.bkt().Object(name).Delete(ctx); err != nil {
		return classify.Classify(fmt.Errorf("object store delete %s: %w", name, err))
	}
	return nil
}

// HealthCheck performs a lightweight bucket-accessibility probe, run once
// at startup per spec's exit-code contract.
func (s *GCSStore) HealthCheck(ctx context.Context) *model.ClassifiedError {
	if _, err := s.bkt().Attrs(ctx); err != nil {
		return classify.Classify(fmt.Errorf("object store health check: %w", err))
	}
	return nil
}
