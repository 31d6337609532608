package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/threadline/threadline/internal/backend"
	"github.com/threadline/threadline/internal/domain"
	"github.com/threadline/threadline/internal/events"
	"github.com/threadline/threadline/internal/platform/httpbackend"
	"github.com/threadline/threadline/internal/session"
)

var askTimeout time.Duration

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Run one conversation turn against a backend",
	Long: `Submits the question as an asking task, waits for query candidates, starts
a thread with the first candidate, converges the response detail, and prints
the generated SQL followed by recommended follow-up questions.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 2*time.Minute, "Overall deadline for the turn")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")

	ctx, cancel := context.WithTimeout(context.Background(), askTimeout)
	defer cancel()

	client := httpbackend.New(cfg.Backend.URL, log)
	sess := session.New(client, session.Config{
		PollInterval: time.Duration(cfg.Polling.IntervalMS) * time.Millisecond,
	}, log)
	defer sess.Close()

	// Every state change pokes this channel so the waits below re-check.
	changed := make(chan struct{}, 1)
	sess.Subscribe(events.HandlerFunc(func(_ context.Context, _ *events.StateEvent) error {
		select {
		case changed <- struct{}{}:
		default:
		}
		return nil
	}))

	if _, err := sess.Asking().Submit(ctx, backend.AskingInput{Question: question}); err != nil {
		return err
	}

	fmt.Printf("Asking: %s\n", question)

	var candidate domain.Candidate
	var lastStatus domain.AskingStatus
	err = waitFor(ctx, changed, func() (bool, error) {
		snap := sess.Asking().Snapshot()
		switch snap.Phase {
		case session.AskingFinished:
			if len(snap.Task.Candidates) == 0 {
				return false, errors.New("asking task finished without candidates")
			}
			candidate = snap.Task.Candidates[0]
			return true, nil
		case session.AskingFailed:
			if snap.Task.Error != nil {
				return false, snap.Task.Error
			}
			if snap.SubmitErr != nil {
				return false, snap.SubmitErr
			}
			return false, errors.New("asking task failed")
		case session.AskingStopped:
			return false, errors.New("asking task was stopped")
		default:
			if snap.Task.Status != "" && snap.Task.Status != lastStatus {
				lastStatus = snap.Task.Status
				fmt.Printf("  status: %s\n", lastStatus)
			}
			return false, nil
		}
	})
	if err != nil {
		return err
	}

	thread, err := sess.StartThread(ctx, backend.ThreadInput{Question: question, SQL: candidate.SQL})
	if err != nil {
		return err
	}

	resp, err := sess.Responses().CreateResponse(ctx, thread.ID, backend.ResponseInput{
		Question: question,
		SQL:      candidate.SQL,
	})
	if err != nil {
		return err
	}

	err = waitFor(ctx, changed, func() (bool, error) {
		for _, r := range sess.Store().Responses(thread.ID) {
			if r.ID != resp.ID {
				continue
			}
			switch r.Status {
			case domain.ResponseStatusFinished:
				return true, nil
			case domain.ResponseStatusFailed:
				if r.Error != nil {
					return false, r.Error
				}
				return false, errors.New("response generation failed")
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	final, _ := sess.Store().Get(thread.ID)
	for _, r := range final.Responses {
		if r.ID == resp.ID && r.Detail != nil {
			fmt.Printf("\nSQL:\n%s\n", r.Detail.SQL)
			if r.Detail.Description != "" {
				fmt.Printf("\n%s\n", r.Detail.Description)
			}
		}
	}

	// Recommendations converge independently; give them a bounded wait and
	// print whatever arrived.
	if recs := sess.ThreadRecommendations(); recs != nil {
		if err := recs.Generate(ctx); err != nil {
			log.Warn("recommendation trigger failed", "error", err)
		} else {
			_ = waitFor(ctx, changed, func() (bool, error) {
				return recs.Snapshot().Status.Terminal(), nil
			})
			task := recs.Snapshot()
			if task.Status == domain.RecommendationStatusFinished && len(task.Questions) > 0 {
				fmt.Println("\nYou could ask next:")
				for _, q := range task.Questions {
					fmt.Printf("  - %s\n", q.Question)
				}
			}
		}
	}

	return nil
}

// waitFor re-runs check after every state change until it reports done or
// errors, or until ctx expires.
func waitFor(ctx context.Context, changed <-chan struct{}, check func() (bool, error)) error {
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
