package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threadline/threadline/internal/backend"
	"github.com/threadline/threadline/internal/domain"
	"github.com/threadline/threadline/internal/state"
)

func newSyncFixture(t *testing.T, client backend.Client) (*ResponseSynchronizer, *state.ThreadStore, *atomic.Int64) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var gen atomic.Int64
	store := state.NewThreadStore(nil, testLogger())
	s := NewResponseSynchronizer(ctx, client, store, &gen, testInterval, testLogger())
	t.Cleanup(s.StopAll)
	return s, store, &gen
}

func putThread(t *testing.T, store *state.ThreadStore) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, store.Put(context.Background(), domain.Thread{ID: id, BaseQuery: "SELECT 1"}))
	return id
}

func TestCreateResponseConvergesToFinished(t *testing.T) {
	responseID := uuid.New()
	mock := &mockBackend{
		createResponseFn: func(_ context.Context, _ uuid.UUID, input backend.ResponseInput) (domain.Response, error) {
			return domain.Response{ID: responseID, Question: input.Question, Status: domain.ResponseStatusPending}, nil
		},
	}

	var fetches atomic.Int64
	mock.getResponseFn = func(_ context.Context, id uuid.UUID) (domain.Response, error) {
		switch fetches.Add(1) {
		case 1:
			return domain.Response{ID: id, Question: "q", Status: domain.ResponseStatusGenerating}, nil
		default:
			return domain.Response{
				ID:       id,
				Question: "q",
				Status:   domain.ResponseStatusFinished,
				Detail:   &domain.ResponseDetail{SQL: "SELECT 1", Description: "one"},
			}, nil
		}
	}

	s, store, _ := newSyncFixture(t, mock)
	threadID := putThread(t, store)

	resp, err := s.CreateResponse(context.Background(), threadID, backend.ResponseInput{Question: "q", SQL: "SELECT 1"})
	require.NoError(t, err)
	assert.Equal(t, responseID, resp.ID)
	assert.Equal(t, domain.ResponseStatusPending, resp.Status)

	eventually(t, func() bool {
		got := store.Responses(threadID)
		return len(got) == 1 && got[0].Status == domain.ResponseStatusFinished
	}, "response should converge to finished")

	got := store.Responses(threadID)
	require.Len(t, got, 1, "merges never change sequence length")
	require.NotNil(t, got[0].Detail)
	assert.Equal(t, "SELECT 1", got[0].Detail.SQL)
}

func TestConvergencePollsEarliestUnfinishedOnly(t *testing.T) {
	var mu sync.Mutex
	polled := make(map[uuid.UUID]int)

	mock := &mockBackend{}
	mock.getResponseFn = func(_ context.Context, id uuid.UUID) (domain.Response, error) {
		mu.Lock()
		polled[id]++
		mu.Unlock()
		return domain.Response{ID: id, Question: "q", Status: domain.ResponseStatusGenerating}, nil
	}

	s, store, _ := newSyncFixture(t, mock)
	threadID := putThread(t, store)

	first := domain.Response{ID: uuid.New(), Question: "first", Status: domain.ResponseStatusPending}
	second := domain.Response{ID: uuid.New(), Question: "second", Status: domain.ResponseStatusPending}
	require.NoError(t, store.AppendResponse(context.Background(), threadID, first))
	require.NoError(t, store.AppendResponse(context.Background(), threadID, second))

	s.Converge(threadID)

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return polled[first.ID] >= 3
	}, "earliest entry should be polled")

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, polled[second.ID], "later entries wait their turn")
}

func TestConvergenceChainsToNextUnfinished(t *testing.T) {
	mock := &mockBackend{}
	mock.getResponseFn = func(_ context.Context, id uuid.UUID) (domain.Response, error) {
		return domain.Response{
			ID:       id,
			Question: "q",
			Status:   domain.ResponseStatusFinished,
			Detail:   &domain.ResponseDetail{SQL: "SELECT 1"},
		}, nil
	}

	s, store, _ := newSyncFixture(t, mock)
	threadID := putThread(t, store)

	first := domain.Response{ID: uuid.New(), Question: "first", Status: domain.ResponseStatusPending}
	second := domain.Response{ID: uuid.New(), Question: "second", Status: domain.ResponseStatusPending}
	require.NoError(t, store.AppendResponse(context.Background(), threadID, first))
	require.NoError(t, store.AppendResponse(context.Background(), threadID, second))

	s.Converge(threadID)

	eventually(t, func() bool {
		got := store.Responses(threadID)
		return got[0].Status == domain.ResponseStatusFinished &&
			got[1].Status == domain.ResponseStatusFinished
	}, "both entries should converge in turn")
}

func TestRedundantConvergeIsNoOp(t *testing.T) {
	mock := &mockBackend{}
	mock.getResponseFn = func(_ context.Context, id uuid.UUID) (domain.Response, error) {
		return domain.Response{ID: id, Question: "q", Status: domain.ResponseStatusGenerating}, nil
	}

	s, store, _ := newSyncFixture(t, mock)
	threadID := putThread(t, store)

	resp := domain.Response{ID: uuid.New(), Question: "q", Status: domain.ResponseStatusPending}
	require.NoError(t, store.AppendResponse(context.Background(), threadID, resp))

	s.Converge(threadID)
	s.Converge(threadID)
	s.Converge(threadID)

	eventually(t, func() bool {
		return store.Responses(threadID)[0].Status == domain.ResponseStatusGenerating
	}, "single convergence should still run")
}

func TestStopLeavesLastKnownStateIntact(t *testing.T) {
	var fetches atomic.Int64
	mock := &mockBackend{}
	mock.getResponseFn = func(_ context.Context, id uuid.UUID) (domain.Response, error) {
		fetches.Add(1)
		return domain.Response{ID: id, Question: "q", Status: domain.ResponseStatusGenerating}, nil
	}

	s, store, _ := newSyncFixture(t, mock)
	threadID := putThread(t, store)

	resp := domain.Response{ID: uuid.New(), Question: "q", Status: domain.ResponseStatusPending}
	require.NoError(t, store.AppendResponse(context.Background(), threadID, resp))
	s.Converge(threadID)

	eventually(t, func() bool {
		return store.Responses(threadID)[0].Status == domain.ResponseStatusGenerating
	}, "entry should be observed generating")

	s.Stop(threadID)
	after := fetches.Load()

	time.Sleep(10 * testInterval)
	assert.Equal(t, after, fetches.Load(), "no fetches after stop")
	assert.Equal(t, domain.ResponseStatusGenerating, store.Responses(threadID)[0].Status,
		"stop never forces a terminal status")
}

func TestStaleResultDiscardedAfterGenerationBump(t *testing.T) {
	release := make(chan struct{})
	var fetches atomic.Int64

	mock := &mockBackend{}
	mock.getResponseFn = func(_ context.Context, id uuid.UUID) (domain.Response, error) {
		if fetches.Add(1) == 1 {
			<-release
		}
		return domain.Response{
			ID:       id,
			Question: "q",
			Status:   domain.ResponseStatusFinished,
			Detail:   &domain.ResponseDetail{SQL: "SELECT 1"},
		}, nil
	}

	s, store, gen := newSyncFixture(t, mock)
	threadID := putThread(t, store)

	resp := domain.Response{ID: uuid.New(), Question: "q", Status: domain.ResponseStatusPending}
	require.NoError(t, store.AppendResponse(context.Background(), threadID, resp))
	s.Converge(threadID)

	// The context switches while the first fetch is still in flight.
	gen.Add(1)
	close(release)

	time.Sleep(10 * testInterval)
	assert.Equal(t, domain.ResponseStatusPending, store.Responses(threadID)[0].Status,
		"a result issued under the old context must not be merged")
}

func TestStopBeforeHandleAttachedIsSafe(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	mock := &mockBackend{}
	mock.getResponseFn = func(ctx context.Context, id uuid.UUID) (domain.Response, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-ctx.Done():
		}
		return domain.Response{ID: id, Question: "q", Status: domain.ResponseStatusGenerating}, nil
	}

	s, store, _ := newSyncFixture(t, mock)
	threadID := putThread(t, store)

	resp := domain.Response{ID: uuid.New(), Question: "q", Status: domain.ResponseStatusPending}
	require.NoError(t, store.AppendResponse(context.Background(), threadID, resp))

	go s.Converge(threadID)
	<-started
	s.Stop(threadID)
	close(release)

	time.Sleep(10 * testInterval)
	assert.Equal(t, domain.ResponseStatusPending, store.Responses(threadID)[0].Status)
}
