package domain

// RecommendationStatus represents the lifecycle state of a "recommended next
// question" generation task.
type RecommendationStatus string

// Possible recommendation task status values
const (
	RecommendationStatusNotStarted RecommendationStatus = "not_started"
	RecommendationStatusGenerating RecommendationStatus = "generating"
	RecommendationStatusFinished   RecommendationStatus = "finished"
	RecommendationStatusFailed     RecommendationStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s RecommendationStatus) Terminal() bool {
	return s == RecommendationStatusFinished || s == RecommendationStatusFailed
}

// RecommendedQuestion is one proactively suggested follow-up question.
type RecommendedQuestion struct {
	Question string `json:"question"`
	Category string `json:"category,omitempty"`
	SQL      string `json:"sql,omitempty"`
}

// RecommendationTask is the state of one recommendation generation run.
// An instance is scoped either to the whole project or to a single thread;
// both scopes share this shape but are independent instances.
type RecommendationTask struct {
	Status    RecommendationStatus  `json:"status"`
	Questions []RecommendedQuestion `json:"questions,omitempty"`
	Error     *TaskError            `json:"error,omitempty"`
}
