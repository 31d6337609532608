// Package domain defines the core conversation entities and errors.
package domain

import "fmt"

// TaskError is the structured failure detail a backend task reports when it
// reaches the failed status. It is attached to the failed entity and rendered
// where that entity is displayed; it never aborts sibling tasks.
type TaskError struct {
	Code         string   `json:"code"`
	ShortMessage string   `json:"shortMessage,omitempty"`
	Message      string   `json:"message"`
	Stacktrace   []string `json:"stacktrace,omitempty"`
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.ShortMessage != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.ShortMessage)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
