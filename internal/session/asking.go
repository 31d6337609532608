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

// AskingPhase is the local lifecycle state of the asking controller:
// idle → submitted → polling → {finished, failed, stopped}.
type AskingPhase string

// Possible asking controller phases
const (
	AskingIdle      AskingPhase = "idle"
	AskingSubmitted AskingPhase = "submitted"
	AskingPolling   AskingPhase = "polling"
	AskingFinished  AskingPhase = "finished"
	AskingFailed    AskingPhase = "failed"
	AskingStopped   AskingPhase = "stopped"
)

// AskingSnapshot is a point-in-time copy of the controller's state.
type AskingSnapshot struct {
	Phase  AskingPhase
	TaskID uuid.UUID
	Task   domain.AskingTask

	// SubmitErr holds the error from a failed CreateAskingTask call; the
	// task never entered polling in that case.
	SubmitErr error
}

// AskingController owns the lifecycle of a single text-to-query generation
// request, from submission to candidate result. At most one asking task is
// tracked at a time: submitting while a previous task is still polling
// implicitly cancels the previous one.
type AskingController struct {
	client   backend.Client
	logger   *slog.Logger
	emitter  events.EventEmitter
	interval time.Duration
	rootCtx  context.Context
	gen      *atomic.Int64

	mu        sync.Mutex
	seq       int64 // submission sequence; bumping it stales prior task results
	phase     AskingPhase
	taskID    uuid.UUID
	threadID  uuid.UUID
	task      domain.AskingTask
	submitErr error
	handle    *poller.Handle
}

// NewAskingController creates an asking controller. rootCtx bounds the
// lifetime of all pollers the controller starts; gen is the session's
// context-generation counter used for staleness checks.
func NewAskingController(
	rootCtx context.Context,
	client backend.Client,
	emitter events.EventEmitter,
	gen *atomic.Int64,
	interval time.Duration,
	logger *slog.Logger,
) *AskingController {
	return &AskingController{
		client:   client,
		logger:   logger.With("component", "asking_controller"),
		emitter:  emitter,
		interval: interval,
		rootCtx:  rootCtx,
		gen:      gen,
		phase:    AskingIdle,
	}
}

// Snapshot returns a copy of the controller's current state.
func (c *AskingController) Snapshot() AskingSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := AskingSnapshot{
		Phase:     c.phase,
		TaskID:    c.taskID,
		Task:      c.task,
		SubmitErr: c.submitErr,
	}
	snap.Task.Candidates = append([]domain.Candidate(nil), c.task.Candidates...)
	return snap
}

// Submit creates a new asking task on the backend and polls it to a terminal
// state. Any task still being polled is cancelled first, so no two asking
// tasks are ever tracked concurrently by one controller.
func (c *AskingController) Submit(ctx context.Context, input backend.AskingInput) (uuid.UUID, error) {
	c.mu.Lock()
	prevHandle := c.handle
	prevID := c.taskID
	c.handle = nil
	c.mu.Unlock()

	if prevHandle != nil {
		prevHandle.Stop()
		if err := c.client.CancelAskingTask(ctx, prevID); err != nil {
			c.logger.Debug("best-effort cancel of superseded asking task failed",
				"task_id", prevID, "error", err)
		}
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.phase = AskingSubmitted
	c.taskID = uuid.Nil
	c.threadID = input.ThreadID
	c.task = domain.AskingTask{}
	c.submitErr = nil
	c.mu.Unlock()

	gen := c.gen.Load()

	taskID, err := c.client.CreateAskingTask(ctx, input)
	if err != nil {
		c.mu.Lock()
		if seq == c.seq {
			c.phase = AskingFailed
			c.submitErr = err
		}
		c.mu.Unlock()
		return uuid.Nil, fmt.Errorf("create asking task: %w", err)
	}

	c.mu.Lock()
	if seq != c.seq || gen != c.gen.Load() {
		// Superseded or context-switched while the create call was in
		// flight. The remote task is not ours to track anymore.
		c.mu.Unlock()
		c.logger.Debug("stale asking submission discarded", "task_id", taskID)
		return uuid.Nil, ErrStaleContext
	}

	c.taskID = taskID
	c.phase = AskingPolling
	c.handle = c.startPolling(taskID, input.ThreadID, seq, gen)
	c.mu.Unlock()

	c.logger.Info("asking task submitted", "task_id", taskID, "thread_id", input.ThreadID)
	return taskID, nil
}

func (c *AskingController) startPolling(taskID, threadID uuid.UUID, seq int64, gen int64) *poller.Handle {
	fetch := func(ctx context.Context) (domain.AskingTask, error) {
		return c.client.GetAskingTask(ctx, taskID)
	}

	isDone := func(t domain.AskingTask) bool {
		return t.Status.Terminal()
	}

	onUpdate := func(t domain.AskingTask, err error) {
		if err != nil {
			// Transport hiccup: not terminal, retried at the next tick.
			c.logger.Warn("asking poll fetch failed, retrying",
				"task_id", taskID, "error", err)
			return
		}

		c.mu.Lock()
		if seq != c.seq || gen != c.gen.Load() {
			c.mu.Unlock()
			c.logger.Debug("stale asking update discarded", "task_id", taskID)
			return
		}

		t.ID = taskID
		c.task = t
		switch t.Status {
		case domain.AskingStatusFinished:
			c.phase = AskingFinished
		case domain.AskingStatusFailed:
			c.phase = AskingFailed
		case domain.AskingStatusStopped:
			c.phase = AskingStopped
		default:
			c.phase = AskingPolling
		}
		c.mu.Unlock()

		c.emit(events.NewStateEvent(events.KindAskingUpdated, threadID, uuid.Nil))
	}

	return poller.Start(c.rootCtx, c.interval, fetch, isDone, onUpdate)
}

// Cancel stops polling and asks the backend to cancel the task. The local
// transition to stopped happens regardless of the remote outcome: a slow or
// absent backend acknowledgment must never block the caller. Late results
// from the cancelled task are discarded as stale.
func (c *AskingController) Cancel(ctx context.Context) {
	c.mu.Lock()
	h := c.handle
	id := c.taskID
	threadID := c.threadID
	c.handle = nil
	c.seq++
	c.phase = AskingStopped
	c.task.Status = domain.AskingStatusStopped
	c.mu.Unlock()

	if h != nil {
		h.Stop()
	}

	if id != uuid.Nil {
		if err := c.client.CancelAskingTask(ctx, id); err != nil {
			c.logger.Warn("remote cancel failed, local state stopped anyway",
				"task_id", id, "error", err)
		}
	}

	c.emit(events.NewStateEvent(events.KindAskingUpdated, threadID, uuid.Nil))
}

// Detach stops the controller's poller and resets it to idle without
// cancelling the remote task. Only the context-switch guard calls this: a
// navigation away drops local interest, it does not abort backend work.
func (c *AskingController) Detach() {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.seq++
	c.phase = AskingIdle
	c.taskID = uuid.Nil
	c.threadID = uuid.Nil
	c.task = domain.AskingTask{}
	c.submitErr = nil
	c.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

func (c *AskingController) emit(event *events.StateEvent) {
	if c.emitter == nil {
		return
	}
	if err := c.emitter.EmitEvent(c.rootCtx, event); err != nil {
		c.logger.Warn("event handler error", "error", err, "event_kind", event.Kind)
	}
}
