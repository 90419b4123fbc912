// Package queue defines the inbound message contract the handler is driven
// by: a Subscribe loop that decodes each delivery into a model.JobMessage,
// calls the supplied HandleFunc, and translates its Outcome into the
// underlying transport's ack/nack.
package queue

import (
	"context"

	"github.com/aiobjectives/report-worker/internal/model"
)

// HandleFunc processes one decoded job and returns the outcome that
// determines whether the delivery is acked or nacked.
type HandleFunc func(ctx context.Context, msg model.JobMessage) model.Outcome

// Adapter is the contract every concrete transport (Pub/Sub, and any
// future broker) implements.
type Adapter interface {
	// Subscribe blocks, dispatching deliveries to handle until ctx is
	// canceled or an unrecoverable transport error occurs.
	Subscribe(ctx context.Context, handle HandleFunc) error
	Close() error
}
