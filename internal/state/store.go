// Package state holds the session's mutable conversation state. The
// ThreadStore is the only writer of thread response sequences; every
// mutation goes through the append and merge-by-id operations below, and
// every mutation is announced through the event emitter so renderers can
// subscribe without the store knowing about them.
package state

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/threadline/threadline/internal/domain"
	"github.com/threadline/threadline/internal/events"
)

// Common errors returned by the ThreadStore
var (
	ErrThreadNotFound   = errors.New("thread not found")
	ErrResponseNotFound = errors.New("response not found in thread")
)

// ThreadStore is an in-memory, mutex-guarded store of conversation threads.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[uuid.UUID]*domain.Thread
	emitter events.EventEmitter
	logger  *slog.Logger
}

// NewThreadStore creates a new ThreadStore. The emitter may be nil, in which
// case mutations are not announced.
func NewThreadStore(emitter events.EventEmitter, logger *slog.Logger) *ThreadStore {
	return &ThreadStore{
		threads: make(map[uuid.UUID]*domain.Thread),
		emitter: emitter,
		logger:  logger.With("component", "thread_store"),
	}
}

// Put stores a thread, replacing any previous thread with the same ID.
func (s *ThreadStore) Put(ctx context.Context, thread domain.Thread) error {
	if err := thread.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	t := thread
	t.Responses = append([]domain.Response(nil), thread.Responses...)
	s.threads[thread.ID] = &t
	s.mu.Unlock()

	s.emit(ctx, events.NewStateEvent(events.KindThreadCreated, thread.ID, uuid.Nil))
	return nil
}

// Get returns a copy of the thread with the given ID. Mutating the returned
// value does not affect stored state.
func (s *ThreadStore) Get(id uuid.UUID) (domain.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[id]
	if !ok {
		return domain.Thread{}, false
	}

	out := *t
	out.Responses = append([]domain.Response(nil), t.Responses...)
	return out, true
}

// AppendResponse appends a response entry to the end of the thread's
// response sequence. Entries are never inserted at a position; chronological
// order is preserved by construction.
func (s *ThreadStore) AppendResponse(ctx context.Context, threadID uuid.UUID, resp domain.Response) error {
	if err := resp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return ErrThreadNotFound
	}
	t.Responses = append(t.Responses, resp)
	s.mu.Unlock()

	s.logger.Debug("response appended",
		"thread_id", threadID,
		"response_id", resp.ID,
		"status", resp.Status)

	s.emit(ctx, events.NewStateEvent(events.KindResponseAppended, threadID, resp.ID))
	return nil
}

// MergeResponse locates the entry with resp.ID in the thread's response
// sequence and replaces it in place. All other entries are left untouched
// and the sequence length and order are invariant across merges. Returns
// ErrResponseNotFound if no entry matches.
func (s *ThreadStore) MergeResponse(ctx context.Context, threadID uuid.UUID, resp domain.Response) error {
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return ErrThreadNotFound
	}

	merged := false
	for i := range t.Responses {
		if t.Responses[i].ID == resp.ID {
			t.Responses[i] = resp
			merged = true
			break
		}
	}
	s.mu.Unlock()

	if !merged {
		return ErrResponseNotFound
	}

	s.logger.Debug("response merged",
		"thread_id", threadID,
		"response_id", resp.ID,
		"status", resp.Status)

	s.emit(ctx, events.NewStateEvent(events.KindResponseMerged, threadID, resp.ID))
	return nil
}

// FirstUnfinished returns the earliest response in the thread whose status
// is non-terminal, if any. The convergence loop polls exactly this entry, so
// at most one response per thread is actively polled at a time.
func (s *ThreadStore) FirstUnfinished(threadID uuid.UUID) (domain.Response, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return domain.Response{}, false
	}

	for _, r := range t.Responses {
		if !r.Status.Terminal() {
			return r, true
		}
	}
	return domain.Response{}, false
}

// Responses returns a copy of the thread's response sequence.
func (s *ThreadStore) Responses(threadID uuid.UUID) []domain.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	return append([]domain.Response(nil), t.Responses...)
}

func (s *ThreadStore) emit(ctx context.Context, event *events.StateEvent) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		// Subscriber failures never propagate into state mutation paths.
		s.logger.Warn("event handler error", "error", err, "event_kind", event.Kind)
	}
}
