package events

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestEmitEventDeliversToAllHandlers(t *testing.T) {
	emitter := NewInMemoryEventEmitter(testLogger())

	var first, second []*StateEvent
	emitter.RegisterHandler(HandlerFunc(func(_ context.Context, e *StateEvent) error {
		first = append(first, e)
		return nil
	}))
	emitter.RegisterHandler(HandlerFunc(func(_ context.Context, e *StateEvent) error {
		second = append(second, e)
		return nil
	}))

	event := NewStateEvent(KindResponseMerged, uuid.New(), uuid.New())
	require.NoError(t, emitter.EmitEvent(context.Background(), event))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, event.ID, first[0].ID)
	assert.Equal(t, event.ID, second[0].ID)
}

func TestEmitEventContinuesPastFailingHandler(t *testing.T) {
	emitter := NewInMemoryEventEmitter(testLogger())

	handlerErr := errors.New("handler exploded")
	emitter.RegisterHandler(HandlerFunc(func(_ context.Context, _ *StateEvent) error {
		return handlerErr
	}))

	var delivered int
	emitter.RegisterHandler(HandlerFunc(func(_ context.Context, _ *StateEvent) error {
		delivered++
		return nil
	}))

	err := emitter.EmitEvent(context.Background(), NewStateEvent(KindAskingUpdated, uuid.New(), uuid.Nil))
	assert.ErrorIs(t, err, handlerErr)
	assert.Equal(t, 1, delivered, "failing handler must not block later handlers")
}

func TestEmitEventWithNoHandlers(t *testing.T) {
	emitter := NewInMemoryEventEmitter(testLogger())
	assert.NoError(t, emitter.EmitEvent(context.Background(), NewStateEvent(KindThreadCreated, uuid.New(), uuid.Nil)))
}

func TestNewStateEventPopulatesIdentity(t *testing.T) {
	threadID := uuid.New()
	responseID := uuid.New()

	event := NewStateEvent(KindResponseAppended, threadID, responseID)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, KindResponseAppended, event.Kind)
	assert.Equal(t, threadID, event.ThreadID)
	assert.Equal(t, responseID, event.ResponseID)
	assert.False(t, event.At.IsZero())
}
