package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/threadline/threadline/internal/events"
)

// Guard observes the active thread identity and, on any change, halts every
// poller belonging to the previous context before the new context's pollers
// start. It is the single place permitted to stop pollers across component
// boundaries; the controllers never reach into each other.
type Guard struct {
	logger        *slog.Logger
	emitter       events.EventEmitter
	gen           *atomic.Int64
	asking        *AskingController
	responses     *ResponseSynchronizer
	newThreadRecs func(threadID uuid.UUID) *RecommendationController

	// switchMu serializes Switch end to end; mu guards only the active
	// fields so readers stay responsive while a switch is draining pollers.
	switchMu sync.Mutex

	mu         sync.Mutex
	active     uuid.UUID
	activeRecs *RecommendationController
}

// NewGuard creates a guard over the given controllers. newThreadRecs builds
// a fresh thread-scoped recommendation controller each time a thread becomes
// active; instances are never shared across scopes.
func NewGuard(
	asking *AskingController,
	responses *ResponseSynchronizer,
	newThreadRecs func(threadID uuid.UUID) *RecommendationController,
	emitter events.EventEmitter,
	gen *atomic.Int64,
	logger *slog.Logger,
) *Guard {
	return &Guard{
		logger:        logger.With("component", "context_switch_guard"),
		emitter:       emitter,
		gen:           gen,
		asking:        asking,
		responses:     responses,
		newThreadRecs: newThreadRecs,
	}
}

// Active returns the currently active thread ID, or uuid.Nil when no thread
// is selected.
func (g *Guard) Active() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// ActiveRecommendations returns the recommendation controller for the active
// thread, or nil when no thread is selected.
func (g *Guard) ActiveRecommendations() *RecommendationController {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeRecs
}

// Switch changes the active thread. uuid.Nil deselects. Switching to the
// already-active thread is a no-op. The switch is deterministic: the
// generation counter is bumped first, so any result issued under the old
// context fails its staleness check even if it lands mid-switch; then every
// poller of the previous context is stopped (stops block until in-flight
// updates drain) before the new context's pollers start.
//
// The change event is emitted after the guard's state mutex is released, so
// handlers may read Active and ActiveRecommendations. Handlers must not call
// Switch.
func (g *Guard) Switch(threadID uuid.UUID) {
	g.switchMu.Lock()
	defer g.switchMu.Unlock()

	g.mu.Lock()
	if threadID == g.active {
		g.mu.Unlock()
		return
	}
	prev := g.active
	prevRecs := g.activeRecs
	g.active = threadID
	g.activeRecs = nil
	g.gen.Add(1)
	g.mu.Unlock()

	// Detach drops local interest in the in-flight asking task without
	// cancelling it remotely, and discards its optimistic state.
	g.asking.Detach()

	if prev != uuid.Nil {
		g.responses.Stop(prev)
	}
	if prevRecs != nil {
		prevRecs.Stop()
	}

	if threadID != uuid.Nil {
		recs := g.newThreadRecs(threadID)
		g.mu.Lock()
		g.activeRecs = recs
		g.mu.Unlock()
		recs.Fetch()
		g.responses.Converge(threadID)
	}

	g.logger.Info("active thread changed", "previous", prev, "thread_id", threadID)

	if g.emitter != nil {
		event := events.NewStateEvent(events.KindActiveThreadChanged, threadID, uuid.Nil)
		if err := g.emitter.EmitEvent(context.Background(), event); err != nil {
			g.logger.Warn("event handler error", "error", err, "event_kind", event.Kind)
		}
	}
}
