package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/threadline/threadline/internal/config"
	"github.com/threadline/threadline/internal/platform/logger"
)

var rootCmd = &cobra.Command{
	Use:   "threadline",
	Short: "Conversation orchestration over an asynchronous query-generation backend",
	Long: `Threadline orchestrates multi-turn conversations whose answers are computed
asynchronously: it submits text-to-query tasks, polls them to completion,
converges response details into ordered threads, and fetches recommended
follow-up questions.`,
	SilenceUsage: true,
}

// setup loads configuration and initializes logging; shared by subcommands.
func setup() (*config.Config, *slog.Logger, error) {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	log := logger.Setup(cfg.Server.LogLevel)
	return cfg, log, nil
}
