package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
	"github.com/alekspetrov/concierge/internal/config"
	"github.com/alekspetrov/concierge/internal/index"
	"github.com/alekspetrov/concierge/internal/llm"
	"github.com/alekspetrov/concierge/internal/logging"
	"github.com/alekspetrov/concierge/internal/mention"
	"github.com/alekspetrov/concierge/internal/poller"
	"github.com/alekspetrov/concierge/internal/repocontext"
	"github.com/alekspetrov/concierge/internal/stale"
	"github.com/alekspetrov/concierge/internal/triage"
)

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	return cmd
}

// run wires all components and blocks until the process is signalled.
// Only startup failures exit nonzero; everything after is retried in place.
func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logging.DefaultConfig()
	}
	if cfg.LogLevel != "" {
		logCfg.Level = cfg.LogLevel
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialise logging: %w", err)
	}
	logger := logging.WithComponent("main")

	forge := gitlab.NewClient(cfg.GitLabURL, cfg.GitLabToken)
	model, err := llm.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct model client: %w", err)
	}

	refreshInterval := time.Duration(cfg.IndexRefreshMinutes) * time.Minute
	indexes := index.NewRegistry(forge, cfg.DefaultBranch, refreshInterval)
	extractor := repocontext.New(forge, indexes, repocontext.Config{
		MaxContextSize: cfg.MaxContextSize,
		ContextLines:   cfg.ContextLines,
		DefaultBranch:  cfg.DefaultBranch,
	})

	cache := mention.NewCache()
	processor := mention.NewProcessor(forge, model, extractor, indexes, cache, cfg)
	reaper := stale.NewReaper(forge, cfg.BotUsername, cfg.StaleIssueDays)
	triager := triage.NewService(forge, model, cfg)
	engine := poller.NewEngine(forge, processor, reaper, triager, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := indexes.Start(ctx); err != nil {
		return fmt.Errorf("failed to schedule index refresh: %w", err)
	}
	go warmIndexes(ctx, forge, indexes, cfg.ReposToPoll, logger)

	logger.Info("Concierge starting",
		slog.String("gitlab_url", cfg.GitLabURL),
		slog.String("bot_username", cfg.BotUsername),
		slog.Int("projects", len(cfg.ReposToPoll)),
		slog.String("version", version))

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// warmIndexes builds each project's index once at startup so the first
// mentions already get indexed context. Failures are logged; the periodic
// refresh retries.
func warmIndexes(ctx context.Context, forge *gitlab.Client, indexes *index.Registry, paths []string, logger *slog.Logger) {
	for _, path := range paths {
		project, err := forge.GetProjectByPath(ctx, path)
		if err != nil {
			logger.Warn("Index warmup: failed to resolve project",
				slog.String("path", path), slog.Any("error", err))
			continue
		}
		if err := indexes.RefreshProject(ctx, project.ID); err != nil {
			logger.Warn("Index warmup failed",
				slog.String("path", path), slog.Any("error", err))
		}
	}
}
