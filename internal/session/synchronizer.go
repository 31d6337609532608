package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/threadline/threadline/internal/backend"
	"github.com/threadline/threadline/internal/domain"
	"github.com/threadline/threadline/internal/poller"
	"github.com/threadline/threadline/internal/state"
)

// convergence tracks the single response entry being polled for one thread.
// Fields are guarded by the synchronizer mutex.
type convergence struct {
	responseID uuid.UUID
	handle     *poller.Handle
	cancelled  bool
}

// ResponseSynchronizer owns creation of thread response entries and the
// convergence of their asynchronous detail into the thread's ordered
// response sequence. It is the only component that mutates the store, and it
// polls at most one non-terminal entry per thread at a time — the earliest
// unfinished one — bounding polling load per thread to one request in flight.
type ResponseSynchronizer struct {
	client   backend.Client
	store    *state.ThreadStore
	logger   *slog.Logger
	interval time.Duration
	rootCtx  context.Context
	gen      *atomic.Int64

	mu     sync.Mutex
	active map[uuid.UUID]*convergence
}

// NewResponseSynchronizer creates a synchronizer bound to the given store.
func NewResponseSynchronizer(
	rootCtx context.Context,
	client backend.Client,
	store *state.ThreadStore,
	gen *atomic.Int64,
	interval time.Duration,
	logger *slog.Logger,
) *ResponseSynchronizer {
	return &ResponseSynchronizer{
		client:   client,
		store:    store,
		logger:   logger.With("component", "response_synchronizer"),
		interval: interval,
		rootCtx:  rootCtx,
		gen:      gen,
		active:   make(map[uuid.UUID]*convergence),
	}
}

// CreateResponse synchronously creates a response entry on the backend,
// appends it to the thread's response sequence, and kicks the convergence
// loop. The append preserves chronological order; entries are never inserted
// at a position.
func (s *ResponseSynchronizer) CreateResponse(
	ctx context.Context,
	threadID uuid.UUID,
	input backend.ResponseInput,
) (domain.Response, error) {
	resp, err := s.client.CreateThreadResponse(ctx, threadID, input)
	if err != nil {
		return domain.Response{}, fmt.Errorf("create thread response: %w", err)
	}

	if err := s.store.AppendResponse(ctx, threadID, resp); err != nil {
		return domain.Response{}, fmt.Errorf("append response: %w", err)
	}

	s.Converge(threadID)
	return resp, nil
}

// Converge scans the thread's responses for the earliest entry whose status
// is non-terminal and starts polling it, unless a convergence is already
// running for the thread. Safe to call after any state change; redundant
// calls are no-ops.
func (s *ResponseSynchronizer) Converge(threadID uuid.UUID) {
	s.converge(threadID, s.gen.Load())
}

// converge runs one convergence step under the generation the chain was
// issued in. When a terminal merge chains to the next unfinished entry, the
// original generation is carried along so a context switch that lands
// between steps stops the chain instead of letting it restart with a fresh
// generation that would defeat the staleness check.
func (s *ResponseSynchronizer) converge(threadID uuid.UUID, gen int64) {
	s.mu.Lock()
	if _, ok := s.active[threadID]; ok {
		s.mu.Unlock()
		return
	}
	if gen != s.gen.Load() {
		// The active conversation changed since this chain was issued.
		s.mu.Unlock()
		return
	}

	resp, found := s.store.FirstUnfinished(threadID)
	if !found {
		s.mu.Unlock()
		return
	}

	conv := &convergence{responseID: resp.ID}
	s.active[threadID] = conv
	s.mu.Unlock()

	responseID := resp.ID

	fetch := func(ctx context.Context) (domain.Response, error) {
		return s.client.GetThreadResponse(ctx, responseID)
	}

	isDone := func(r domain.Response) bool {
		return r.Status == domain.ResponseStatusFinished || r.Status == domain.ResponseStatusFailed
	}

	onUpdate := func(r domain.Response, err error) {
		if err != nil {
			s.logger.Warn("response poll fetch failed, retrying",
				"thread_id", threadID, "response_id", responseID, "error", err)
			return
		}

		if gen != s.gen.Load() {
			// The active conversation changed while this fetch was in
			// flight; the stored state of the old thread must not be
			// overwritten by the late arrival.
			s.logger.Debug("stale response update discarded",
				"thread_id", threadID, "response_id", responseID)
			return
		}

		if err := s.store.MergeResponse(s.rootCtx, threadID, r); err != nil {
			s.logger.Warn("response merge failed",
				"thread_id", threadID, "response_id", responseID, "error", err)
			return
		}

		if r.Status == domain.ResponseStatusFinished || r.Status == domain.ResponseStatusFailed {
			s.mu.Lock()
			if s.active[threadID] == conv {
				delete(s.active, threadID)
			}
			s.mu.Unlock()

			// Chain to the next unfinished entry, if any.
			s.converge(threadID, gen)
		}
	}

	handle := poller.Start(s.rootCtx, s.interval, fetch, isDone, onUpdate)

	s.mu.Lock()
	if conv.cancelled {
		s.mu.Unlock()
		handle.Stop()
		return
	}
	conv.handle = handle
	s.mu.Unlock()

	s.logger.Debug("convergence started",
		"thread_id", threadID, "response_id", responseID)
}

// Stop halts the convergence loop for one thread, leaving the last-known
// entry state intact. No forced terminalization: a pending entry stays
// pending until the thread is revisited and converged again.
func (s *ResponseSynchronizer) Stop(threadID uuid.UUID) {
	s.mu.Lock()
	conv, ok := s.active[threadID]
	if ok {
		conv.cancelled = true
		delete(s.active, threadID)
	}
	var h *poller.Handle
	if conv != nil {
		h = conv.handle
	}
	s.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

// StopAll halts every running convergence loop.
func (s *ResponseSynchronizer) StopAll() {
	s.mu.Lock()
	handles := make([]*poller.Handle, 0, len(s.active))
	for id, conv := range s.active {
		conv.cancelled = true
		if conv.handle != nil {
			handles = append(handles, conv.handle)
		}
		delete(s.active, id)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}
