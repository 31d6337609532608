package simulator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/threadline/threadline/internal/backend"
	"github.com/threadline/threadline/internal/domain"
)

// runAsking steps one asking task through understanding → searching →
// generating → finished, spending phaseDelay in each non-terminal phase.
// Cancellation leaves the task in stopped, set by the cancel handler.
func (s *Server) runAsking(ctx context.Context, id uuid.UUID, question string) {
	phases := []domain.AskingStatus{
		domain.AskingStatusSearching,
		domain.AskingStatusGenerating,
	}

	for _, phase := range phases {
		if !s.sleep(ctx) {
			return
		}
		if !s.setAskingStatus(id, phase) {
			return
		}
	}

	if !s.sleep(ctx) {
		return
	}

	sql, err := s.gen.GenerateSQL(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.finishAsking(id, domain.AskingTask{
			Status: domain.AskingStatusFailed,
			Error: &domain.TaskError{
				Code:         "OTHERS",
				ShortMessage: "generation failed",
				Message:      err.Error(),
			},
		})
		return
	}

	s.finishAsking(id, domain.AskingTask{
		Status: domain.AskingStatusFinished,
		Type:   string(domain.CandidateTypeSQL),
		Candidates: []domain.Candidate{
			{Type: domain.CandidateTypeSQL, SQL: sql},
		},
	})
}

// setAskingStatus advances a task to a non-terminal phase. Returns false if
// the task was cancelled (or removed) in the meantime.
func (s *Server) setAskingStatus(id uuid.UUID, status domain.AskingStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.asking[id]
	if !ok || run.task.Status.Terminal() {
		return false
	}
	run.task.Status = status
	return true
}

func (s *Server) finishAsking(id uuid.UUID, terminal domain.AskingTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.asking[id]
	if !ok || run.task.Status.Terminal() {
		return
	}
	terminal.ID = id
	if terminal.Type == "" {
		terminal.Type = run.task.Type
	}
	run.task = terminal
}

// runResponse converges one response entry: pending → generating → finished
// with its detail, or failed if generation errors.
func (s *Server) runResponse(id uuid.UUID, input backend.ResponseInput) {
	ctx := context.Background()

	if !s.sleep(ctx) {
		return
	}
	s.setResponse(id, func(r *domain.Response) {
		r.Status = domain.ResponseStatusGenerating
	})

	if !s.sleep(ctx) {
		return
	}
	s.setResponse(id, func(r *domain.Response) {
		r.Status = domain.ResponseStatusFinished
		r.Detail = &domain.ResponseDetail{
			SQL:         input.SQL,
			Description: "Answer to: " + input.Question,
		}
	})
}

func (s *Server) setResponse(id uuid.UUID, mutate func(*domain.Response)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, ok := s.responses[id]
	if !ok || resp.Status.Terminal() {
		return
	}
	mutate(resp)
}

// runRecommendation produces recommended questions for a scope and hands the
// terminal task to publish.
func (s *Server) runRecommendation(topic string, publish func(domain.RecommendationTask)) {
	ctx := context.Background()

	if !s.sleep(ctx) {
		return
	}

	questions, err := s.gen.RecommendQuestions(ctx, topic, 3)
	if err != nil {
		publish(domain.RecommendationTask{
			Status: domain.RecommendationStatusFailed,
			Error: &domain.TaskError{
				Code:         "OTHERS",
				ShortMessage: "recommendation failed",
				Message:      err.Error(),
			},
		})
		return
	}

	publish(domain.RecommendationTask{
		Status:    domain.RecommendationStatusFinished,
		Questions: questions,
	})
}

// sleep waits one phase delay, returning false if ctx was cancelled first.
func (s *Server) sleep(ctx context.Context) bool {
	if s.phaseDelay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(s.phaseDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
