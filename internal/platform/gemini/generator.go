// Package gemini implements the simulator's Generator interface on top of
// Google's Gemini API. It is selected when an API key is configured; the
// orchestration engine itself never talks to the LLM.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/threadline/threadline/internal/domain"
	"google.golang.org/genai"
)

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.0-flash"

// Generator produces SQL and recommended questions via the Gemini API.
type Generator struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// New creates a Generator. apiKey is required; model falls back to
// DefaultModelName when empty.
func New(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Generator{
		client: client,
		model:  model,
		logger: logger.With("component", "gemini_generator"),
	}, nil
}

// GenerateSQL asks the model for a single SQL statement answering the question.
func (g *Generator) GenerateSQL(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(
		"Write one ANSI SQL query answering the question below. "+
			"Respond with the SQL statement only, no markdown and no commentary.\n\nQuestion: %s",
		question)

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	sql := strings.TrimSpace(stripFences(result.Text()))
	if sql == "" {
		return "", fmt.Errorf("gemini returned empty SQL")
	}

	g.logger.Debug("generated sql", "question", question, "sql", sql)
	return sql, nil
}

// RecommendQuestions asks the model for follow-up questions about the topic.
func (g *Generator) RecommendQuestions(ctx context.Context, topic string, n int) ([]domain.RecommendedQuestion, error) {
	prompt := fmt.Sprintf(
		"Suggest %d follow-up analytics questions about: %s. "+
			`Respond with a JSON array of objects with keys "question" and "category", nothing else.`,
		n, topic)

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := strings.TrimSpace(stripFences(result.Text()))

	var questions []domain.RecommendedQuestion
	if err := json.Unmarshal([]byte(text), &questions); err != nil {
		return nil, fmt.Errorf("gemini returned unparseable recommendations: %w", err)
	}
	if len(questions) > n {
		questions = questions[:n]
	}
	return questions, nil
}

// stripFences removes a surrounding markdown code fence, which models emit
// despite instructions more often than not.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
