package domain

import (
	"github.com/google/uuid"
)

// AskingStatus represents the lifecycle state of an asking task on the
// backend. The intermediate states are observable so callers can surface
// generation progress.
type AskingStatus string

// Possible asking task status values, in the order the backend normally
// reports them.
const (
	AskingStatusUnderstanding AskingStatus = "understanding"
	AskingStatusSearching     AskingStatus = "searching"
	AskingStatusGenerating    AskingStatus = "generating"
	AskingStatusFinished      AskingStatus = "finished"
	AskingStatusFailed        AskingStatus = "failed"
	AskingStatusStopped       AskingStatus = "stopped"
)

// Terminal reports whether the status is a final state.
func (s AskingStatus) Terminal() bool {
	switch s {
	case AskingStatusFinished, AskingStatusFailed, AskingStatusStopped:
		return true
	}
	return false
}

// CandidateType distinguishes freshly generated SQL from a matched saved view.
type CandidateType string

// Possible candidate types
const (
	CandidateTypeSQL  CandidateType = "sql"
	CandidateTypeView CandidateType = "view"
)

// Candidate is one query variant produced by a finished asking task. A task
// may return several candidates when the question admits multiple
// interpretations.
type Candidate struct {
	Type CandidateType `json:"type"`
	SQL  string        `json:"sql"`
}

// AskingTask is the ephemeral state of one text-to-query generation request.
// It is identified by an opaque task ID and is not retained beyond its
// polling window; a successful terminal result is consumed exactly once to
// produce a Response.
type AskingTask struct {
	ID         uuid.UUID    `json:"id"`
	Status     AskingStatus `json:"status"`
	Type       string       `json:"type,omitempty"`
	Candidates []Candidate  `json:"candidates,omitempty"`
	Error      *TaskError   `json:"error,omitempty"`
}
