package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies which part of the session state changed.
type EventKind string

// Possible event kinds
const (
	// KindThreadCreated fires when a new thread is stored.
	KindThreadCreated EventKind = "thread_created"

	// KindResponseAppended fires when a response entry is appended to a
	// thread's response sequence.
	KindResponseAppended EventKind = "response_appended"

	// KindResponseMerged fires when a response entry is replaced in place
	// with fresher state from the backend.
	KindResponseMerged EventKind = "response_merged"

	// KindAskingUpdated fires on every asking task state change observed by
	// the asking controller, terminal or not.
	KindAskingUpdated EventKind = "asking_updated"

	// KindRecommendationUpdated fires on every recommendation task state
	// change observed by a recommendation controller.
	KindRecommendationUpdated EventKind = "recommendation_updated"

	// KindActiveThreadChanged fires when the context-switch guard moves to a
	// different thread (or to none).
	KindActiveThreadChanged EventKind = "active_thread_changed"
)

// StateEvent describes one observable change to session state. It carries
// identifiers only; subscribers read current state from the store, which
// keeps handlers free of stale snapshots.
type StateEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Kind indicates what changed
	Kind EventKind `json:"kind"`

	// ThreadID is the affected thread, or uuid.Nil for project-scoped and
	// thread-less changes
	ThreadID uuid.UUID `json:"thread_id"`

	// ResponseID is the affected response for response events, else uuid.Nil
	ResponseID uuid.UUID `json:"response_id"`

	// At is the timestamp when the event was created
	At time.Time `json:"at"`
}

// NewStateEvent creates a new StateEvent of the given kind.
func NewStateEvent(kind EventKind, threadID, responseID uuid.UUID) *StateEvent {
	return &StateEvent{
		ID:         uuid.New(),
		Kind:       kind,
		ThreadID:   threadID,
		ResponseID: responseID,
		At:         time.Now(),
	}
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *StateEvent) error
}

// HandlerFunc adapts a plain function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *StateEvent) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *StateEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the store and controllers to publish state changes without
// direct knowledge of subscribers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *StateEvent) error
}
