// Package poller implements a generic repeat-until-done driver over an
// arbitrary status-fetch operation. A poller issues the first fetch
// immediately, then fetches on a fixed interval until the fetched state is
// terminal or the handle is stopped. Every successful fetch is delivered to
// the caller, terminal or not, so callers can render incremental progress.
package poller

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the poll cadence used when no interval is configured.
const DefaultInterval = time.Second

// Handle controls one running polling loop. Handles are independent:
// any number of them may run concurrently without interfering.
type Handle struct {
	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Start begins polling. fetch is invoked immediately and then once per
// interval. Each result is passed to onUpdate: a nil error with fresh state
// on success, or the fetch error with the zero state on a transport failure.
// Transport failures are not fatal; polling continues at the next tick. The
// loop exits when isDone returns true for a successfully fetched state, when
// the handle is stopped, or when ctx is cancelled.
//
// onUpdate calls are serialized; no call is ever in flight after Stop returns.
func Start[S any](
	ctx context.Context,
	interval time.Duration,
	fetch func(context.Context) (S, error),
	isDone func(S) bool,
	onUpdate func(S, error),
) *Handle {
	if interval <= 0 {
		interval = DefaultInterval
	}

	pctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			state, err := fetch(pctx)

			// The stopped check and the onUpdate call share the handle
			// mutex with Stop, so a result that raced with Stop is
			// discarded and Stop cannot return while an update is being
			// delivered.
			h.mu.Lock()
			if h.stopped {
				h.mu.Unlock()
				return
			}
			onUpdate(state, err)
			finished := err == nil && isDone(state)
			h.mu.Unlock()

			if finished {
				return
			}

			select {
			case <-pctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return h
}

// Stop halts the polling loop. It is idempotent: stopping an
// already-stopped handle is a no-op, never an error. Stop blocks until the
// loop has fully exited, so once it returns no further fetch is issued and
// no onUpdate call is in flight. A fetch already issued before Stop has its
// result discarded on arrival.
//
// Stop must not be called from inside the handle's own onUpdate callback.
func (h *Handle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.cancel()
	<-h.done
}

// Done returns a channel that is closed when the polling loop exits, whether
// by reaching a terminal state, by Stop, or by context cancellation.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
