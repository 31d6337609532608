// Package simulator is an in-process reference implementation of the
// task-generation service contract. It serves the same HTTP/JSON surface the
// real service would, drives asking tasks through the full status ladder on
// timers, and exists so the orchestration engine can be exercised against a
// real transport boundary in demos and integration tests.
package simulator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/threadline/threadline/internal/backend"
	"github.com/threadline/threadline/internal/domain"
)

// askingRun is one in-flight asking task and its cancel hook.
type askingRun struct {
	task   domain.AskingTask
	cancel context.CancelFunc
}

// Server holds simulated service state. All maps are guarded by mu; the
// phase-stepping goroutines mutate task state through the setters below.
type Server struct {
	logger     *slog.Logger
	gen        Generator
	phaseDelay time.Duration
	validate   *validator.Validate

	mu         sync.Mutex
	asking     map[uuid.UUID]*askingRun
	threads    map[uuid.UUID]*domain.Thread
	responses  map[uuid.UUID]*domain.Response
	threadRecs map[uuid.UUID]*domain.RecommendationTask
	projectRec domain.RecommendationTask
}

// New creates a simulator. phaseDelay is how long each non-terminal task
// phase lasts; keep it small in tests.
func New(gen Generator, phaseDelay time.Duration, logger *slog.Logger) *Server {
	if gen == nil {
		gen = CannedGenerator{}
	}
	return &Server{
		logger:     logger.With("component", "simulator"),
		gen:        gen,
		phaseDelay: phaseDelay,
		validate:   validator.New(),
		asking:     make(map[uuid.UUID]*askingRun),
		threads:    make(map[uuid.UUID]*domain.Thread),
		responses:  make(map[uuid.UUID]*domain.Response),
		threadRecs: make(map[uuid.UUID]*domain.RecommendationTask),
		projectRec: domain.RecommendationTask{Status: domain.RecommendationStatusNotStarted},
	}
}

// Router returns the HTTP handler serving the backend contract.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/asking-tasks", s.handleCreateAskingTask)
		r.Get("/asking-tasks/{taskID}", s.handleGetAskingTask)
		r.Delete("/asking-tasks/{taskID}", s.handleCancelAskingTask)

		r.Post("/threads", s.handleCreateThread)
		r.Post("/threads/{threadID}/responses", s.handleCreateThreadResponse)
		r.Get("/responses/{responseID}", s.handleGetThreadResponse)

		r.Post("/threads/{threadID}/recommendations", s.handleGenerateThreadRecommendations)
		r.Get("/threads/{threadID}/recommendations", s.handleGetThreadRecommendations)
		r.Post("/recommendations", s.handleGenerateProjectRecommendations)
		r.Get("/recommendations", s.handleGetProjectRecommendations)
	})

	return r
}

func (s *Server) handleCreateAskingTask(w http.ResponseWriter, r *http.Request) {
	var input backend.AskingInput
	if !s.decode(w, r, &input) {
		return
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.asking[id] = &askingRun{
		task: domain.AskingTask{
			ID:     id,
			Status: domain.AskingStatusUnderstanding,
			Type:   string(domain.CandidateTypeSQL),
		},
		cancel: cancel,
	}
	s.mu.Unlock()

	go s.runAsking(ctx, id, input.Question)

	s.logger.Info("asking task created", "task_id", id)
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"taskId": id})
}

func (s *Server) handleGetAskingTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "taskID")
	if !ok {
		return
	}

	s.mu.Lock()
	run, found := s.asking[id]
	var task domain.AskingTask
	if found {
		task = run.task
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "asking task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelAskingTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "taskID")
	if !ok {
		return
	}

	s.mu.Lock()
	run, found := s.asking[id]
	if found && !run.task.Status.Terminal() {
		run.task.Status = domain.AskingStatusStopped
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "asking task not found")
		return
	}

	run.cancel()
	s.logger.Info("asking task cancelled", "task_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var input backend.ThreadInput
	if !s.decode(w, r, &input) {
		return
	}

	thread := domain.Thread{
		ID:        uuid.New(),
		BaseQuery: input.SQL,
	}

	s.mu.Lock()
	t := thread
	s.threads[thread.ID] = &t
	s.mu.Unlock()

	s.logger.Info("thread created", "thread_id", thread.ID)
	writeJSON(w, http.StatusCreated, thread)
}

func (s *Server) handleCreateThreadResponse(w http.ResponseWriter, r *http.Request) {
	threadID, ok := parseID(w, r, "threadID")
	if !ok {
		return
	}

	var input backend.ResponseInput
	if !s.decode(w, r, &input) {
		return
	}

	s.mu.Lock()
	_, found := s.threads[threadID]
	s.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	resp := domain.Response{
		ID:       uuid.New(),
		Question: input.Question,
		Status:   domain.ResponseStatusPending,
	}

	s.mu.Lock()
	rc := resp
	s.responses[resp.ID] = &rc
	s.mu.Unlock()

	go s.runResponse(resp.ID, input)

	s.logger.Info("thread response created", "thread_id", threadID, "response_id", resp.ID)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetThreadResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "responseID")
	if !ok {
		return
	}

	s.mu.Lock()
	resp, found := s.responses[id]
	var out domain.Response
	if found {
		out = *resp
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "response not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerateThreadRecommendations(w http.ResponseWriter, r *http.Request) {
	threadID, ok := parseID(w, r, "threadID")
	if !ok {
		return
	}

	s.mu.Lock()
	thread, found := s.threads[threadID]
	var topic string
	var alreadyRunning bool
	if found {
		topic = thread.BaseQuery
		if rec, exists := s.threadRecs[threadID]; exists &&
			rec.Status == domain.RecommendationStatusGenerating {
			alreadyRunning = true
		} else {
			s.threadRecs[threadID] = &domain.RecommendationTask{
				Status: domain.RecommendationStatusGenerating,
			}
		}
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	if !alreadyRunning {
		go s.runRecommendation(topic, func(task domain.RecommendationTask) {
			s.mu.Lock()
			t := task
			s.threadRecs[threadID] = &t
			s.mu.Unlock()
		})
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleGetThreadRecommendations(w http.ResponseWriter, r *http.Request) {
	threadID, ok := parseID(w, r, "threadID")
	if !ok {
		return
	}

	s.mu.Lock()
	rec, found := s.threadRecs[threadID]
	var out domain.RecommendationTask
	if found {
		out = *rec
	} else {
		out = domain.RecommendationTask{Status: domain.RecommendationStatusNotStarted}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerateProjectRecommendations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	alreadyRunning := s.projectRec.Status == domain.RecommendationStatusGenerating
	if !alreadyRunning {
		s.projectRec = domain.RecommendationTask{Status: domain.RecommendationStatusGenerating}
	}
	s.mu.Unlock()

	if !alreadyRunning {
		go s.runRecommendation("project", func(task domain.RecommendationTask) {
			s.mu.Lock()
			s.projectRec = task
			s.mu.Unlock()
		})
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleGetProjectRecommendations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := s.projectRec
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

// decode unmarshals and validates a JSON request body, writing a 400 and
// returning false when it is malformed.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
