// Package pubsubqueue implements queue.Adapter on top of
// cloud.google.com/go/pubsub — the concrete binding for spec.md §6's
// inbound queue contract.
package pubsubqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"cloud.google.com/go/pubsub"

	"github.com/aiobjectives/report-worker/internal/model"
	"github.com/aiobjectives/report-worker/internal/obslog"
	"github.com/aiobjectives/report-worker/internal/queue"
)

// Adapter subscribes to a single Pub/Sub subscription and dispatches each
// delivery through a queue.HandleFunc.
type Adapter struct {
	client       *pubsub.Client
	subscription string
	concurrency  int
	logger       *obslog.Logger
}

var _ queue.Adapter = (*Adapter)(nil)

// New constructs an Adapter over an already-authenticated client.
// concurrency caps in-flight message handlers per worker process, per
// spec.md §5's backpressure policy — Pub/Sub's own ReceiveSettings enforce
// it, so the handler never needs an internal semaphore.
func New(client *pubsub.Client, subscriptionID string, concurrency int, logger *obslog.Logger) *Adapter {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Adapter{client: client, subscription: subscriptionID, concurrency: concurrency, logger: logger}
}

// Subscribe blocks until ctx is canceled or Receive returns a fatal
// transport error.
func (a *Adapter) Subscribe(ctx context.Context, handle queue.HandleFunc) error {
	sub := a.client.Subscription(a.subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = a.concurrency

	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		var job model.JobMessage
		if err := json.Unmarshal(m.Data, &job); err != nil {
			a.logger.Error().Err(err).Msg("pubsubqueue: undecodable message, acking to avoid a permanent redelivery loop")
			m.Ack()
			return
		}

		if a.safeHandle(ctx, handle, job) {
			m.Ack()
		} else {
			m.Nack()
		}
	})
}

// safeHandle recovers from a panic in handle so one bad message can't take
// down the whole subscription, nacking the message for redelivery in that
// case — the same panic-recovery idiom as the teacher's jobmanager.safeGo,
// applied per-message instead of per-goroutine.
func (a *Adapter) safeHandle(ctx context.Context, handle queue.HandleFunc, job model.JobMessage) (ack bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Str("reportId", job.ReportID).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("pubsubqueue: recovered from panic handling message")
			ack = false
		}
	}()
	return shouldAck(handle(ctx, job))
}

// shouldAck implements the outcome→queue-action mapping from spec.md §4.F:
// ok and permanent both ack (a permanent outcome has already recorded the
// failure in metadata; redelivering it would only repeat a doomed job),
// transient nacks for redelivery. Any unrecognized outcome nacks, the safe
// default for a value this package doesn't understand.
func shouldAck(outcome model.Outcome) bool {
	return outcome == model.OutcomeOK || outcome == model.OutcomePermanent
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	if err := a.client.Close(); err != nil {
		return fmt.Errorf("pubsubqueue: close client: %w", err)
	}
	return nil
}
