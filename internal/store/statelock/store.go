// Package statelock implements the State / Lock Store: checkpointed
// pipeline state plus a distributed lock with a fencing value, backed by
// Redis. This is the system's only globally mutable coordination surface —
// acquire/extend/release are implemented as atomic Lua scripts so two
// workers can never both believe they hold the same lease.
package statelock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aiobjectives/report-worker/internal/classify"
	"github.com/aiobjectives/report-worker/internal/model"
	"github.com/aiobjectives/report-worker/internal/obslog"
)

// extendScript extends a lock's TTL only if the stored value still equals
// the caller's fencing value — the compare-and-extend that keeps a holder
// whose lease silently expired from succeeding at extending it.
const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

// releaseScript deletes a lock only if the stored value still equals the
// caller's fencing value — compare-and-delete.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Store is the contract the job handler depends on.
type Store interface {
	GetState(ctx context.Context, reportID string) (*model.PipelineState, *model.ClassifiedError)
	SaveState(ctx context.Context, state *model.PipelineState) *model.ClassifiedError
	AcquireLock(ctx context.Context, reportID, fencingValue string, ttl time.Duration) (bool, *model.ClassifiedError)
	VerifyLock(ctx context.Context, reportID, fencingValue string) (bool, *model.ClassifiedError)
	ExtendLock(ctx context.Context, reportID, fencingValue string, ttl time.Duration) (bool, *model.ClassifiedError)
	ReleaseLock(ctx context.Context, reportID, fencingValue string) (bool, *model.ClassifiedError)
}

// RedisStore is the concrete Store.
type RedisStore struct {
	client  redis.UniversalClient
	logger  *obslog.Logger
	extend  *redis.Script
	release *redis.Script
}

var _ Store = (*RedisStore)(nil)

// New constructs a RedisStore, loading the extend/release Lua scripts once
// so every call is a single EVALSHA round-trip.
func New(client redis.UniversalClient, logger *obslog.Logger) *RedisStore {
	return &RedisStore{
		client:  client,
		logger:  logger,
		extend:  redis.NewScript(extendScript),
		release: redis.NewScript(releaseScript),
	}
}

func stateKey(reportID string) string { return "state:" + reportID }
func lockKey(reportID string) string  { return "lock:" + reportID }

// GetState returns the checkpointed PipelineState for reportID, or
// (nil, nil) if none exists yet.
func (s *RedisStore) GetState(ctx context.Context, reportID string) (*model.PipelineState, *model.ClassifiedError) {
	raw, err := s.client.Get(ctx, stateKey(reportID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, classify.Classify(fmt.Errorf("state store get %s: %w", reportID, err))
	}
	var state model.PipelineState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, model.NewClassifiedError(false, model.CategoryUnknown, "corrupt pipeline state: "+reportID, err)
	}
	return &state, nil
}

// SaveState upserts state, server-stamping UpdatedAt so it strictly
// advances on every write regardless of the caller's clock.
func (s *RedisStore) SaveState(ctx context.Context, state *model.PipelineState) *model.ClassifiedError {
	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return model.NewClassifiedError(false, model.CategoryUnknown, "failed to marshal pipeline state", err)
	}
	if err := s.client.Set(ctx, stateKey(state.ReportID), raw, 0).Err(); err != nil {
		return classify.Classify(fmt.Errorf("state store save %s: %w", state.ReportID, err))
	}
	return nil
}

// AcquireLock succeeds iff no live lock exists for reportID: SET NX EX.
func (s *RedisStore) AcquireLock(ctx context.Context, reportID, fencingValue string, ttl time.Duration) (bool, *model.ClassifiedError) {
	ok, err := s.client.SetNX(ctx, lockKey(reportID), fencingValue, ttl).Result()
	if err != nil {
		return false, classify.Classify(fmt.Errorf("lock store acquire %s: %w", reportID, err))
	}
	return ok, nil
}

// VerifyLock checks whether the lock for reportID currently holds
// fencingValue — a cheap read-only check, not atomic with respect to a
// concurrent extend/release (callers needing atomicity use ExtendLock).
func (s *RedisStore) VerifyLock(ctx context.Context, reportID, fencingValue string) (bool, *model.ClassifiedError) {
	val, err := s.client.Get(ctx, lockKey(reportID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, classify.Classify(fmt.Errorf("lock store verify %s: %w", reportID, err))
	}
	return val == fencingValue, nil
}

// ExtendLock atomically extends the lock's TTL only if it still holds
// fencingValue. This is the primary defense against two workers both
// believing they own the lock: a holder whose lease silently expired gets
// false here, not a successful extend.
func (s *RedisStore) ExtendLock(ctx context.Context, reportID, fencingValue string, ttl time.Duration) (bool, *model.ClassifiedError) {
	res, err := s.extend.Run(ctx, s.client, []string{lockKey(reportID)}, fencingValue, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, classify.Classify(fmt.Errorf("lock store extend %s: %w", reportID, err))
	}
	return res == 1, nil
}

// ReleaseLock atomically deletes the lock only if it still holds
// fencingValue. A false return (lease already expired or taken over) is
// never an error — callers log it and move on.
func (s *RedisStore) ReleaseLock(ctx context.Context, reportID, fencingValue string) (bool, *model.ClassifiedError) {
	res, err := s.release.Run(ctx, s.client, []string{lockKey(reportID)}, fencingValue).Int64()
	if err != nil {
		return false, classify.Classify(fmt.Errorf("lock store release %s: %w", reportID, err))
	}
	return res == 1, nil
}
