package domain

import (
	"errors"

	"github.com/google/uuid"
)

// Thread-specific validation errors
var (
	// ErrThreadIDEmpty is returned when a thread ID is empty or nil.
	ErrThreadIDEmpty = errors.New("thread ID cannot be empty")

	// ErrResponseIDEmpty is returned when a response ID is empty or nil.
	ErrResponseIDEmpty = errors.New("response ID cannot be empty")

	// ErrResponseQuestionEmpty is returned when a response has no question text.
	ErrResponseQuestionEmpty = errors.New("response question cannot be empty")
)

// ResponseStatus represents the lifecycle state of a thread response.
type ResponseStatus string

// Possible response status values
const (
	ResponseStatusPending    ResponseStatus = "pending"
	ResponseStatusGenerating ResponseStatus = "generating"
	ResponseStatusFinished   ResponseStatus = "finished"
	ResponseStatusFailed     ResponseStatus = "failed"
	ResponseStatusStopped    ResponseStatus = "stopped"
)

// Terminal reports whether the status is a final state that will never
// change again on the backend.
func (s ResponseStatus) Terminal() bool {
	switch s {
	case ResponseStatusFinished, ResponseStatusFailed, ResponseStatusStopped:
		return true
	}
	return false
}

// ResponseDetail holds the generated result of a finished response.
// It is populated only when the response reaches a terminal success status.
type ResponseDetail struct {
	SQL         string `json:"sql"`
	Description string `json:"description,omitempty"`
}

// Response is a single question/answer entry in a thread. It is created
// optimistically with a non-terminal status and converges to a terminal
// state as the backend finishes generating its detail.
type Response struct {
	ID       uuid.UUID       `json:"id"`
	Question string          `json:"question"`
	Status   ResponseStatus  `json:"status"`
	Detail   *ResponseDetail `json:"detail,omitempty"`
	Error    *TaskError      `json:"error,omitempty"`
}

// Validate checks if the Response has valid data.
// Returns an error if any field fails validation.
func (r *Response) Validate() error {
	if r.ID == uuid.Nil {
		return ErrResponseIDEmpty
	}

	if r.Question == "" {
		return ErrResponseQuestionEmpty
	}

	return nil
}

// Thread is an ordered conversation. Responses are strictly append-only;
// merges locate entries by ID and replace them in place, so the sequence
// order is insertion order forever.
type Thread struct {
	ID        uuid.UUID  `json:"id"`
	BaseQuery string     `json:"baseQuery"`
	Responses []Response `json:"responses"`
}

// Validate checks if the Thread has valid data.
func (t *Thread) Validate() error {
	if t.ID == uuid.Nil {
		return ErrThreadIDEmpty
	}

	return nil
}
