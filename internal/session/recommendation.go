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
	"github.com/threadline/threadline/internal/events"
	"github.com/threadline/threadline/internal/poller"
)

// RecommendationScope selects which recommendation endpoints a controller
// talks to. A scope instance belongs to either the whole project or exactly
// one thread; the two are never shared.
type RecommendationScope interface {
	// Trigger fires generation. The acknowledgment is fire-and-forget.
	Trigger(ctx context.Context) error

	// Fetch returns the scope's current recommendation task state.
	Fetch(ctx context.Context) (domain.RecommendationTask, error)

	// ThreadID is the owning thread, or uuid.Nil for the project scope.
	ThreadID() uuid.UUID
}

type projectScope struct {
	client backend.Client
}

// ProjectScope returns the project-wide recommendation scope.
func ProjectScope(client backend.Client) RecommendationScope {
	return projectScope{client: client}
}

func (s projectScope) Trigger(ctx context.Context) error {
	return s.client.GenerateProjectRecommendations(ctx)
}

func (s projectScope) Fetch(ctx context.Context) (domain.RecommendationTask, error) {
	return s.client.GetProjectRecommendations(ctx)
}

func (s projectScope) ThreadID() uuid.UUID { return uuid.Nil }

type threadScope struct {
	client   backend.Client
	threadID uuid.UUID
}

// ThreadScope returns the recommendation scope for one thread.
func ThreadScope(client backend.Client, threadID uuid.UUID) RecommendationScope {
	return threadScope{client: client, threadID: threadID}
}

func (s threadScope) Trigger(ctx context.Context) error {
	return s.client.GenerateThreadRecommendations(ctx, s.threadID)
}

func (s threadScope) Fetch(ctx context.Context) (domain.RecommendationTask, error) {
	return s.client.GetThreadRecommendations(ctx, s.threadID)
}

func (s threadScope) ThreadID() uuid.UUID { return s.threadID }

// RecommendationController owns the lifecycle of "suggest next question"
// generation for one scope. A failed status is terminal and displayed, but
// it never blocks a later Generate call: the user may retry.
type RecommendationController struct {
	scope    RecommendationScope
	logger   *slog.Logger
	emitter  events.EventEmitter
	interval time.Duration
	rootCtx  context.Context
	gen      *atomic.Int64

	mu     sync.Mutex
	seq    int64
	task   domain.RecommendationTask
	handle *poller.Handle
}

// NewRecommendationController creates a controller for the given scope.
func NewRecommendationController(
	rootCtx context.Context,
	scope RecommendationScope,
	emitter events.EventEmitter,
	gen *atomic.Int64,
	interval time.Duration,
	logger *slog.Logger,
) *RecommendationController {
	return &RecommendationController{
		scope:    scope,
		logger:   logger.With("component", "recommendation_controller", "thread_id", scope.ThreadID()),
		emitter:  emitter,
		interval: interval,
		rootCtx:  rootCtx,
		gen:      gen,
		task:     domain.RecommendationTask{Status: domain.RecommendationStatusNotStarted},
	}
}

// Snapshot returns a copy of the scope's last observed task state.
func (c *RecommendationController) Snapshot() domain.RecommendationTask {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.task
	out.Questions = append([]domain.RecommendedQuestion(nil), c.task.Questions...)
	return out
}

// Generate fires the generation trigger and then polls the scope's status
// until terminal.
func (c *RecommendationController) Generate(ctx context.Context) error {
	if err := c.scope.Trigger(ctx); err != nil {
		return fmt.Errorf("trigger recommendation generation: %w", err)
	}
	c.Fetch()
	return nil
}

// Fetch begins polling the scope's current status without triggering
// generation. Used on scope activation to resume observation of an
// already-in-flight or previously finished run without re-generating.
func (c *RecommendationController) Fetch() {
	c.mu.Lock()
	prev := c.handle
	c.handle = nil
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	gen := c.gen.Load()
	threadID := c.scope.ThreadID()

	isDone := func(t domain.RecommendationTask) bool {
		return t.Status.Terminal()
	}

	onUpdate := func(t domain.RecommendationTask, err error) {
		if err != nil {
			c.logger.Warn("recommendation poll fetch failed, retrying", "error", err)
			return
		}

		c.mu.Lock()
		if seq != c.seq || gen != c.gen.Load() {
			c.mu.Unlock()
			c.logger.Debug("stale recommendation update discarded")
			return
		}
		c.task = t
		c.mu.Unlock()

		c.emit(events.NewStateEvent(events.KindRecommendationUpdated, threadID, uuid.Nil))
	}

	handle := poller.Start(c.rootCtx, c.interval, c.scope.Fetch, isDone, onUpdate)

	c.mu.Lock()
	if seq != c.seq {
		// Superseded by a newer Fetch or a Stop while starting up.
		c.mu.Unlock()
		handle.Stop()
		return
	}
	c.handle = handle
	c.mu.Unlock()
}

// Stop halts polling, keeping the last observed state.
func (c *RecommendationController) Stop() {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.seq++
	c.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

func (c *RecommendationController) emit(event *events.StateEvent) {
	if c.emitter == nil {
		return
	}
	if err := c.emitter.EmitEvent(c.rootCtx, event); err != nil {
		c.logger.Warn("event handler error", "error", err, "event_kind", event.Kind)
	}
}
