// Package session implements the client-side orchestration engine for
// multi-turn conversations whose answers are computed asynchronously on a
// backend. It wires the per-task lifecycle controllers, the response
// convergence loop, and the context-switch guard around a shared thread
// store, and owns the context-generation counter that makes staleness checks
// deterministic.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/threadline/threadline/internal/backend"
	"github.com/threadline/threadline/internal/domain"
	"github.com/threadline/threadline/internal/events"
	"github.com/threadline/threadline/internal/poller"
	"github.com/threadline/threadline/internal/state"
)

// ErrStaleContext is returned when an operation completed after the context
// it was issued in stopped being active; its result was discarded. This is
// not a user-visible failure.
var ErrStaleContext = errors.New("session: context changed, result discarded")

// Config holds session tuning knobs.
type Config struct {
	// PollInterval is the fixed cadence for all status polling. Zero means
	// poller.DefaultInterval.
	PollInterval time.Duration
}

// Session is the facade over the orchestration engine: one backend client,
// one thread store, one asking controller, one response synchronizer, one
// project-scoped recommendation controller, and the guard that swaps
// thread-scoped state on navigation.
type Session struct {
	logger *slog.Logger
	cancel context.CancelFunc

	client  backend.Client
	gen     atomic.Int64
	emitter *events.InMemoryEventEmitter

	store       *state.ThreadStore
	asking      *AskingController
	responses   *ResponseSynchronizer
	projectRecs *RecommendationController
	guard       *Guard
}

// New creates a fully wired session.
func New(client backend.Client, cfg Config, logger *slog.Logger) *Session {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = poller.DefaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		logger: logger.With("component", "session"),
		cancel: cancel,
		client: client,
	}

	s.emitter = events.NewInMemoryEventEmitter(logger)
	s.store = state.NewThreadStore(s.emitter, logger)
	s.asking = NewAskingController(ctx, client, s.emitter, &s.gen, interval, logger)
	s.responses = NewResponseSynchronizer(ctx, client, s.store, &s.gen, interval, logger)
	s.projectRecs = NewRecommendationController(ctx, ProjectScope(client), s.emitter, &s.gen, interval, logger)

	newThreadRecs := func(threadID uuid.UUID) *RecommendationController {
		return NewRecommendationController(ctx, ThreadScope(client, threadID), s.emitter, &s.gen, interval, logger)
	}
	s.guard = NewGuard(s.asking, s.responses, newThreadRecs, s.emitter, &s.gen, logger)

	return s
}

// Subscribe registers a handler for state-change events. Handlers receive
// identifiers only and read current state from the store.
func (s *Session) Subscribe(handler events.EventHandler) {
	s.emitter.RegisterHandler(handler)
}

// Store exposes the session's thread store for reads. All writes go through
// the response synchronizer.
func (s *Session) Store() *state.ThreadStore {
	return s.store
}

// Asking returns the asking-task controller.
func (s *Session) Asking() *AskingController {
	return s.asking
}

// Responses returns the response synchronizer.
func (s *Session) Responses() *ResponseSynchronizer {
	return s.responses
}

// ProjectRecommendations returns the project-scoped recommendation
// controller. It is independent of any thread.
func (s *Session) ProjectRecommendations() *RecommendationController {
	return s.projectRecs
}

// ThreadRecommendations returns the recommendation controller for the active
// thread, or nil when no thread is selected.
func (s *Session) ThreadRecommendations() *RecommendationController {
	return s.guard.ActiveRecommendations()
}

// ActiveThread returns the active thread ID, or uuid.Nil.
func (s *Session) ActiveThread() uuid.UUID {
	return s.guard.Active()
}

// SwitchThread changes the active thread through the context-switch guard.
// uuid.Nil deselects.
func (s *Session) SwitchThread(threadID uuid.UUID) {
	s.guard.Switch(threadID)
}

// StartThread creates a new thread on the backend from the first accepted
// question/candidate pair, stores it, and makes it active.
func (s *Session) StartThread(ctx context.Context, input backend.ThreadInput) (domain.Thread, error) {
	thread, err := s.client.CreateThread(ctx, input)
	if err != nil {
		return domain.Thread{}, fmt.Errorf("create thread: %w", err)
	}

	if err := s.store.Put(ctx, thread); err != nil {
		return domain.Thread{}, fmt.Errorf("store thread: %w", err)
	}

	s.guard.Switch(thread.ID)
	return thread, nil
}

// Close stops every poller owned by the session. The worst a poller can be
// doing at this point is one in-flight fetch, whose result is discarded.
func (s *Session) Close() {
	s.guard.Switch(uuid.Nil)
	s.asking.Detach()
	s.responses.StopAll()
	s.projectRecs.Stop()
	s.cancel()
}
