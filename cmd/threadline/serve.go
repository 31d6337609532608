package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/threadline/threadline/internal/platform/gemini"
	"github.com/threadline/threadline/internal/simulator"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference task-generation backend",
	Long: `Starts the in-process reference backend implementing the task-generation
service contract. SQL comes from the canned generator unless a Gemini API key
is configured, in which case the LLM-backed generator is used.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var gen simulator.Generator
	if cfg.LLM.GeminiAPIKey != "" {
		g, err := gemini.New(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.ModelName, log)
		if err != nil {
			return fmt.Errorf("init gemini generator: %w", err)
		}
		gen = g
		log.Info("using gemini generator", "model", cfg.LLM.ModelName)
	} else {
		gen = simulator.CannedGenerator{}
		log.Info("using canned generator")
	}

	sim := simulator.New(gen, time.Duration(cfg.Server.PhaseDelayMS)*time.Millisecond, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           sim.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("backend listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("backend stopped")
	return nil
}
