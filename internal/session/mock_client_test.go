package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/threadline/threadline/internal/backend"
	"github.com/threadline/threadline/internal/domain"
)

// testInterval keeps polling fast enough for tests to converge quickly.
const testInterval = 5 * time.Millisecond

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// mockBackend implements backend.Client with overridable function fields.
// Unset gets return backend.ErrNotFound; unset mutations succeed with zero
// values. Cancelled task IDs and trigger calls are recorded for assertions.
type mockBackend struct {
	mu sync.Mutex

	createAskingFn   func(ctx context.Context, input backend.AskingInput) (uuid.UUID, error)
	getAskingFn      func(ctx context.Context, taskID uuid.UUID) (domain.AskingTask, error)
	cancelAskingFn   func(ctx context.Context, taskID uuid.UUID) error
	createThreadFn   func(ctx context.Context, input backend.ThreadInput) (domain.Thread, error)
	createResponseFn func(ctx context.Context, threadID uuid.UUID, input backend.ResponseInput) (domain.Response, error)
	getResponseFn    func(ctx context.Context, responseID uuid.UUID) (domain.Response, error)
	genThreadRecsFn  func(ctx context.Context, threadID uuid.UUID) error
	getThreadRecsFn  func(ctx context.Context, threadID uuid.UUID) (domain.RecommendationTask, error)
	genProjectRecsFn func(ctx context.Context) error
	getProjectRecsFn func(ctx context.Context) (domain.RecommendationTask, error)

	cancelled       []uuid.UUID
	threadTriggers  []uuid.UUID
	projectTriggers int
}

var _ backend.Client = (*mockBackend)(nil)

func (m *mockBackend) CreateAskingTask(ctx context.Context, input backend.AskingInput) (uuid.UUID, error) {
	if m.createAskingFn != nil {
		return m.createAskingFn(ctx, input)
	}
	return uuid.New(), nil
}

func (m *mockBackend) GetAskingTask(ctx context.Context, taskID uuid.UUID) (domain.AskingTask, error) {
	if m.getAskingFn != nil {
		return m.getAskingFn(ctx, taskID)
	}
	return domain.AskingTask{}, backend.ErrNotFound
}

func (m *mockBackend) CancelAskingTask(ctx context.Context, taskID uuid.UUID) error {
	m.mu.Lock()
	m.cancelled = append(m.cancelled, taskID)
	m.mu.Unlock()
	if m.cancelAskingFn != nil {
		return m.cancelAskingFn(ctx, taskID)
	}
	return nil
}

func (m *mockBackend) CreateThread(ctx context.Context, input backend.ThreadInput) (domain.Thread, error) {
	if m.createThreadFn != nil {
		return m.createThreadFn(ctx, input)
	}
	return domain.Thread{ID: uuid.New(), BaseQuery: input.Question}, nil
}

func (m *mockBackend) CreateThreadResponse(ctx context.Context, threadID uuid.UUID, input backend.ResponseInput) (domain.Response, error) {
	if m.createResponseFn != nil {
		return m.createResponseFn(ctx, threadID, input)
	}
	return domain.Response{
		ID:       uuid.New(),
		Question: input.Question,
		Status:   domain.ResponseStatusPending,
	}, nil
}

func (m *mockBackend) GetThreadResponse(ctx context.Context, responseID uuid.UUID) (domain.Response, error) {
	if m.getResponseFn != nil {
		return m.getResponseFn(ctx, responseID)
	}
	return domain.Response{}, backend.ErrNotFound
}

func (m *mockBackend) GenerateThreadRecommendations(ctx context.Context, threadID uuid.UUID) error {
	m.mu.Lock()
	m.threadTriggers = append(m.threadTriggers, threadID)
	m.mu.Unlock()
	if m.genThreadRecsFn != nil {
		return m.genThreadRecsFn(ctx, threadID)
	}
	return nil
}

func (m *mockBackend) GetThreadRecommendations(ctx context.Context, threadID uuid.UUID) (domain.RecommendationTask, error) {
	if m.getThreadRecsFn != nil {
		return m.getThreadRecsFn(ctx, threadID)
	}
	return domain.RecommendationTask{Status: domain.RecommendationStatusNotStarted}, nil
}

func (m *mockBackend) GenerateProjectRecommendations(ctx context.Context) error {
	m.mu.Lock()
	m.projectTriggers++
	m.mu.Unlock()
	if m.genProjectRecsFn != nil {
		return m.genProjectRecsFn(ctx)
	}
	return nil
}

func (m *mockBackend) GetProjectRecommendations(ctx context.Context) (domain.RecommendationTask, error) {
	if m.getProjectRecsFn != nil {
		return m.getProjectRecsFn(ctx)
	}
	return domain.RecommendationTask{Status: domain.RecommendationStatusNotStarted}, nil
}

func (m *mockBackend) cancelledIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.cancelled...)
}

func (m *mockBackend) threadTriggerIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.threadTriggers...)
}

// askingSequence returns a GetAskingTask stub that walks the given states in
// order, one per call, then repeats the last state forever.
func askingSequence(states ...domain.AskingTask) func(context.Context, uuid.UUID) (domain.AskingTask, error) {
	var mu sync.Mutex
	i := 0
	return func(_ context.Context, _ uuid.UUID) (domain.AskingTask, error) {
		mu.Lock()
		defer mu.Unlock()
		state := states[i]
		if i < len(states)-1 {
			i++
		}
		return state, nil
	}
}

// recommendationSequence is askingSequence for recommendation task states.
func recommendationSequence(states ...domain.RecommendationTask) func(context.Context) (domain.RecommendationTask, error) {
	var mu sync.Mutex
	i := 0
	return func(_ context.Context) (domain.RecommendationTask, error) {
		mu.Lock()
		defer mu.Unlock()
		state := states[i]
		if i < len(states)-1 {
			i++
		}
		return state, nil
	}
}

// eventually polls cond until it holds or the test deadline trips.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, testInterval, msg)
}
