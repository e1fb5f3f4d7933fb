// Package scheduler implements the heartbeat engine (spec component
// F): a tick job that feeds backlog cards to the orchestrator, a
// synthesize job that merges verified branches, crash reconciliation
// on startup, and a checklist-driven set of reporting jobs read from a
// user-editable HEARTBEAT.md. Grounded on the teacher's
// BackgroundAgentManager (background.go) for the self-healing
// interval-loop shape, and on cklxx-elephant.ai's cron-based
// scheduler for the robfig/cron wiring.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/twlines/maslow-sub003/internal/hub"
	"github.com/twlines/maslow-sub003/internal/kanban"
	"github.com/twlines/maslow-sub003/internal/orchestrator"
	"github.com/twlines/maslow-sub003/internal/store"
)

// DefaultBlockedRetryMinutes is how long a blocked card sits before the
// tick sweep sends it back to the end of the backlog.
const DefaultBlockedRetryMinutes = 30

// Config configures the scheduler. Zero values fall back to defaults.
type Config struct {
	MaxConcurrentAgents int
	BlockedRetryMinutes int
	DefaultAgent        kanban.AgentKind
	HeartbeatPath       string // path to HEARTBEAT.md; empty disables checklist jobs
}

// Scheduler is the single periodic engine driving tick and synthesize,
// plus the HEARTBEAT.md checklist jobs. tickInProgress and
// synthInProgress are independent: the two jobs may run concurrently
// with each other but never with themselves.
type Scheduler struct {
	cfg    Config
	cron   *cron.Cron
	queue  *kanban.Queue
	orch   *orchestrator.Orchestrator
	store  *store.Store
	hub    *hub.Hub
	logger zerolog.Logger

	tickInProgress  atomic.Bool
	synthInProgress atomic.Bool
}

// New builds a Scheduler. Call Start to register jobs and begin firing.
func New(cfg Config, queue *kanban.Queue, orch *orchestrator.Orchestrator, st *store.Store, h *hub.Hub, logger zerolog.Logger) *Scheduler {
	if cfg.MaxConcurrentAgents <= 0 {
		cfg.MaxConcurrentAgents = orchestrator.DefaultMaxConcurrentAgents
	}
	if cfg.BlockedRetryMinutes <= 0 {
		cfg.BlockedRetryMinutes = DefaultBlockedRetryMinutes
	}
	if cfg.DefaultAgent == "" {
		cfg.DefaultAgent = kanban.AgentClaude
	}
	return &Scheduler{
		cfg:    cfg,
		cron:   cron.New(),
		queue:  queue,
		orch:   orch,
		store:  st,
		hub:    h,
		logger: logger,
	}
}

// Start runs startup reconciliation, registers every cron job, and
// starts the cron runner. It does not block.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reconcile(ctx); err != nil {
		s.logger.Error().Err(err).Msg("startup reconciliation failed")
	}

	if _, err := s.cron.AddFunc("*/10 * * * *", func() { s.tick(context.Background()) }); err != nil {
		return fmt.Errorf("register tick job: %w", err)
	}
	if _, err := s.cron.AddFunc("19,39 * * * *", func() { s.synthesize(context.Background()) }); err != nil {
		return fmt.Errorf("register synthesize job: %w", err)
	}
	s.registerHeartbeatJobs()

	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
	return nil
}

// Stop halts the cron runner, waiting for in-flight jobs to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out waiting for in-flight jobs")
	}
}

// tick is the core work-assignment pass: one spawn attempt per idle,
// non-busy project per firing, capped by the global concurrency limit.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.tickInProgress.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("heartbeat.skipped: tick already in progress")
		s.hub.Publish("heartbeat.skipped", map[string]string{"job": "tick", "reason": "tick_in_progress"})
		return
	}
	defer s.tickInProgress.Store(false)

	projects, err := s.store.ListProjects()
	if err != nil {
		s.logger.Error().Err(err).Msg("tick: list projects")
		return
	}
	running, err := s.queue.RunningCards()
	if err != nil {
		s.logger.Error().Err(err).Msg("tick: list running cards")
		return
	}
	globalRunning := len(running)
	busyProjects := make(map[string]bool, len(running))
	for _, c := range running {
		busyProjects[c.ProjectID] = true
	}

	for _, p := range projects {
		if p.Status != kanban.ProjectActive {
			continue
		}
		if busyProjects[p.ID] {
			continue
		}
		if globalRunning >= s.cfg.MaxConcurrentAgents {
			break
		}

		next, err := s.queue.GetNextCard(p.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("projectId", p.ID).Msg("tick: get next card")
			continue
		}
		if next == nil {
			continue
		}

		if _, err := s.orch.SpawnAgent(ctx, next.ID, p.ID, s.cfg.DefaultAgent); err != nil {
			s.logger.Warn().Err(err).Str("cardId", next.ID).Msg("tick: spawn failed, will retry next tick")
			continue
		}
		globalRunning++
	}

	s.retryBlockedCards()
}

// retryBlockedCards sends cards blocked for longer than
// BlockedRetryMinutes back to the end of the backlog so the queue
// keeps churning instead of stalling on one unresolved card.
func (s *Scheduler) retryBlockedCards() {
	blocked, err := s.store.ListCardsByAgentStatus(kanban.AgentStatusBlocked)
	if err != nil {
		s.logger.Error().Err(err).Msg("tick: list blocked cards")
		return
	}
	cutoff := time.Duration(s.cfg.BlockedRetryMinutes) * time.Minute
	for _, c := range blocked {
		if time.Since(c.UpdatedAt) < cutoff {
			continue
		}
		if _, err := s.queue.SkipToBack(c.ID); err != nil {
			s.logger.Error().Err(err).Str("cardId", c.ID).Msg("tick: retry blocked card")
			continue
		}
		s.hub.Publish("card.retry_scheduled", map[string]string{"cardId": c.ID})
	}
}

// Reconcile runs startup crash recovery: any card left agentStatus
// running from a prior process (the process died without a clean
// exit) is moved back to the backlog, and the worktree directory is
// garbage collected of anything not matched to a live process.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	survivors, err := s.store.ListCardsByAgentStatus(kanban.AgentStatusRunning)
	if err != nil {
		return fmt.Errorf("list crash-survivor cards: %w", err)
	}
	for _, c := range survivors {
		if _, err := s.queue.SkipToBack(c.ID); err != nil {
			s.logger.Error().Err(err).Str("cardId", c.ID).Msg("reconcile: skip to back failed")
			continue
		}
		if err := s.store.InsertAudit(&store.AuditEntry{
			EntityType: "card",
			EntityID:   c.ID,
			Action:     "reconcile.card_recovered",
		}); err != nil {
			s.logger.Error().Err(err).Msg("reconcile: audit write failed")
		}
		s.logger.Info().Str("cardId", c.ID).Msg("reconciled crash-survivor card to backlog")
	}

	removed, err := s.orch.Worktree().GCOrphans(ctx)
	if err != nil {
		return fmt.Errorf("worktree gc: %w", err)
	}
	if len(removed) > 0 {
		s.logger.Info().Int("count", len(removed)).Msg("reconcile: removed orphaned worktrees")
	}
	return nil
}
