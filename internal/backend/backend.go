// Package backend defines the RPC contract the orchestration core consumes.
// The interface is the boundary between the session engine and the external
// task-generation service; transport and schema details live behind it in
// internal/platform adapters.
package backend

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/threadline/threadline/internal/domain"
)

// Common errors returned by backend implementations.
var (
	// ErrNotFound is returned when the referenced task, thread, or response
	// does not exist on the backend.
	ErrNotFound = errors.New("backend: not found")
)

// AskingInput describes a new text-to-query generation request.
type AskingInput struct {
	// Question is the user's natural-language question.
	Question string `json:"question" validate:"required,min=1"`

	// ThreadID optionally scopes the question to an existing thread so the
	// backend can use prior turns as context. uuid.Nil means no thread.
	ThreadID uuid.UUID `json:"threadId,omitempty"`
}

// ThreadInput describes a new conversation thread.
type ThreadInput struct {
	// Question is the user's first question, which becomes the thread's
	// base query.
	Question string `json:"question" validate:"required,min=1"`

	// SQL is the accepted candidate query for the first question.
	SQL string `json:"sql" validate:"required,min=1"`
}

// ResponseInput describes a new response entry within a thread.
type ResponseInput struct {
	// Question is the user's follow-up question.
	Question string `json:"question" validate:"required,min=1"`

	// SQL is the accepted candidate query to answer it.
	SQL string `json:"sql" validate:"required,min=1"`
}

// Client is the abstract backend contract. Creation calls are synchronous;
// everything long-running is observed by polling the corresponding Get
// operation until it reports a terminal status. Implementations must be safe
// for concurrent use.
type Client interface {
	// CreateAskingTask submits a text-to-query generation request and
	// returns the opaque task ID to poll.
	CreateAskingTask(ctx context.Context, input AskingInput) (uuid.UUID, error)

	// GetAskingTask fetches the current state of an asking task.
	GetAskingTask(ctx context.Context, taskID uuid.UUID) (domain.AskingTask, error)

	// CancelAskingTask asks the backend to stop an in-flight asking task.
	// Cancellation is best effort; callers must not block local state on it.
	CancelAskingTask(ctx context.Context, taskID uuid.UUID) error

	// CreateThread creates a new conversation thread from the first
	// accepted question/candidate pair.
	CreateThread(ctx context.Context, input ThreadInput) (domain.Thread, error)

	// CreateThreadResponse creates a new response entry in a thread. The
	// returned response usually carries a non-terminal status; its detail
	// converges asynchronously.
	CreateThreadResponse(ctx context.Context, threadID uuid.UUID, input ResponseInput) (domain.Response, error)

	// GetThreadResponse fetches the current state of a response by its ID.
	GetThreadResponse(ctx context.Context, responseID uuid.UUID) (domain.Response, error)

	// GenerateThreadRecommendations triggers recommended-question generation
	// for a thread. The acknowledgment is fire-and-forget, not a task ID;
	// progress is observed via GetThreadRecommendations.
	GenerateThreadRecommendations(ctx context.Context, threadID uuid.UUID) error

	// GetThreadRecommendations fetches the thread-scoped recommendation
	// task state.
	GetThreadRecommendations(ctx context.Context, threadID uuid.UUID) (domain.RecommendationTask, error)

	// GenerateProjectRecommendations triggers recommended-question
	// generation for the whole project.
	GenerateProjectRecommendations(ctx context.Context) error

	// GetProjectRecommendations fetches the project-scoped recommendation
	// task state.
	GetProjectRecommendations(ctx context.Context) (domain.RecommendationTask, error)
}
