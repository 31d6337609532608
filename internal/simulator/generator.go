package simulator

import (
	"context"
	"fmt"
	"strings"

	"github.com/threadline/threadline/internal/domain"
)

// Generator produces the actual SQL and recommendation content for the
// simulated service. The default is the canned rule-based generator; an
// LLM-backed implementation can be plugged in instead.
type Generator interface {
	// GenerateSQL turns a natural-language question into a SQL candidate.
	GenerateSQL(ctx context.Context, question string) (string, error)

	// RecommendQuestions proposes up to n follow-up questions for a topic.
	RecommendQuestions(ctx context.Context, topic string, n int) ([]domain.RecommendedQuestion, error)
}

// CannedGenerator is a deterministic, dependency-free Generator. It keys off
// simple keyword heuristics, which is enough for demos and for tests that
// only care about task orchestration, not query quality.
type CannedGenerator struct{}

// GenerateSQL derives a plausible query from the question text.
func (CannedGenerator) GenerateSQL(_ context.Context, question string) (string, error) {
	table := subjectOf(question)
	q := strings.ToLower(question)

	switch {
	case strings.Contains(q, "how many") || strings.Contains(q, "count"):
		return fmt.Sprintf("SELECT COUNT(*) FROM %s", table), nil
	case strings.Contains(q, "average") || strings.Contains(q, "mean"):
		return fmt.Sprintf("SELECT AVG(amount) FROM %s", table), nil
	case strings.Contains(q, "top"):
		return fmt.Sprintf("SELECT * FROM %s ORDER BY amount DESC LIMIT 10", table), nil
	default:
		return fmt.Sprintf("SELECT * FROM %s LIMIT 100", table), nil
	}
}

// RecommendQuestions fills question templates around the topic.
func (CannedGenerator) RecommendQuestions(_ context.Context, topic string, n int) ([]domain.RecommendedQuestion, error) {
	subject := subjectOf(topic)
	all := []domain.RecommendedQuestion{
		{
			Question: fmt.Sprintf("How many %s were created this month?", subject),
			Category: "Trend",
			SQL:      fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE created_at >= date_trunc('month', now())", subject),
		},
		{
			Question: fmt.Sprintf("What are the top 10 %s by amount?", subject),
			Category: "Ranking",
			SQL:      fmt.Sprintf("SELECT * FROM %s ORDER BY amount DESC LIMIT 10", subject),
		},
		{
			Question: fmt.Sprintf("How do %s break down by category?", subject),
			Category: "Distribution",
			SQL:      fmt.Sprintf("SELECT category, COUNT(*) FROM %s GROUP BY category", subject),
		},
	}
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// subjectOf picks the longest word of the text as the presumed subject,
// defaulting to "records" when nothing usable is present.
func subjectOf(text string) string {
	subject := ""
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r < 'a' || r > 'z'
	}) {
		if len(w) > len(subject) {
			subject = w
		}
	}
	if subject == "" {
		return "records"
	}
	return subject
}
