// Command orchestratord runs the autonomous work orchestrator: the
// persistence store, kanban queue, broadcast hub, steering engine,
// agent orchestrator, scheduler, and API/WebSocket surface, wired
// together and served until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/twlines/maslow-sub003/internal/api"
	"github.com/twlines/maslow-sub003/internal/config"
	"github.com/twlines/maslow-sub003/internal/hub"
	"github.com/twlines/maslow-sub003/internal/kanban"
	"github.com/twlines/maslow-sub003/internal/orchestrator"
	"github.com/twlines/maslow-sub003/internal/scheduler"
	"github.com/twlines/maslow-sub003/internal/steering"
	"github.com/twlines/maslow-sub003/internal/store"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("orchestratord exited with error")
	}
}

func run(logger zerolog.Logger) error {
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	secret := cfg.MessageEncryptionKey
	if len(secret) == 0 {
		secret = []byte("orchestratord-dev-key-change-me")
		logger.Warn().Msg("no message-encryption-key configured; using an insecure development default")
	}
	st, err := store.New(db, secret, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	cfg.ApplyStoreDefaults(st)

	h := hub.New(logger)
	publisher := hub.NewKanbanPublisher(h)
	queue := kanban.NewQueue(st, publisher, logger)

	steerEngine, err := steering.NewEngine(st)
	if err != nil {
		return fmt.Errorf("build steering engine: %w", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		RepoRoot:            cfg.WorkspacePath,
		WorktreeDir:         ".worktrees",
		MainBranch:          "main",
		MaxConcurrentAgents: cfg.MaxConcurrentAgents,
	}, queue, st, h, steerEngine, logger)

	sched := scheduler.New(scheduler.Config{
		MaxConcurrentAgents: cfg.MaxConcurrentAgents,
		BlockedRetryMinutes: cfg.BlockedRetryMinutes,
		HeartbeatPath:       cfg.HeartbeatChecklistPath,
	}, queue, orch, st, h, logger)

	server := api.New(api.Config{
		WorkspacePath: cfg.WorkspacePath,
		AuthToken:     cfg.AuthToken,
	}, queue, st, orch, sched, h, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := sched.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start scheduler: %w", err)
	}

	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		orch.ShutdownAll()
		sched.Stop(shutdownCtx)
		cancel()
	}()

	logger.Info().
		Str("version", version).
		Str("commit", gitCommit).
		Str("listen", cfg.ListenAddr).
		Str("workspace", cfg.WorkspacePath).
		Msg("orchestratord starting")

	if err := server.Start(ctx, cfg.ListenAddr); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
