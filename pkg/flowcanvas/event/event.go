// Package event is the in-process publish/subscribe bus that carries run
// reports, save notifications and tool events between flowcanvas components.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published by flowcanvas.
const (
	TypeRunStarted    = "run.started"
	TypeNodeFinished  = "node.finished"
	TypeRunFinished   = "run.finished"
	TypeWorkflowSaved = "workflow.saved"
	TypeSaveFailed    = "workflow.save_failed"
	TypeToolEvent     = "tool.event"
)

// Event is an immutable notification.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Tenant        string    `json:"tenant,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Data          any       `json:"data,omitempty"`
}

// Option configures event creation.
type Option func(*Event)

// WithCorrelationID groups the event with others, e.g. by run id.
func WithCorrelationID(id string) Option {
	return func(e *Event) { e.CorrelationID = id }
}

// WithTenant sets the tenant namespace.
func WithTenant(ns string) Option {
	return func(e *Event) { e.Tenant = ns }
}

// WithTimestamp overrides the creation time.
func WithTimestamp(t time.Time) Option {
	return func(e *Event) { e.Timestamp = t }
}

// New creates an event with a fresh UUID.
func New(eventType, source string, data any, opts ...Option) Event {
	e := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Handler processes a delivered event.
type Handler func(ctx context.Context, evt Event) error

// Publisher is the publishing half of a Bus.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Bus provides pub/sub event distribution.
type Bus interface {
	Publisher

	// Subscribe delivers events of the given types. No types means all.
	Subscribe(handler Handler, types ...string) Subscription

	// Close stops delivery to every subscription.
	Close() error
}

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe()
}
