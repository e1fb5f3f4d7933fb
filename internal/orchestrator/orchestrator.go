// Package orchestrator implements the agent orchestrator (spec
// component E): spawn-gating, worktree lifecycle, subprocess
// streaming, timeout enforcement, and exit handling (push + PR).
// Grounded on the teacher's orchestrator.go / agents/spawner.go /
// git/worktree.go, restructured from the teacher's multi-stage
// PM/Dev/QA/UX/Security pipeline onto the simplified backlog ->
// in_progress -> done board.
package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/twlines/maslow-sub003/internal/hub"
	"github.com/twlines/maslow-sub003/internal/kanban"
	"github.com/twlines/maslow-sub003/internal/steering"
	"github.com/twlines/maslow-sub003/internal/store"
)

// DefaultMaxConcurrentAgents is the default global running-agent cap,
// used when Config.MaxConcurrentAgents is not positive.
const DefaultMaxConcurrentAgents = 3

// DefaultAgentTimeout is used when a project has no agentTimeoutMinutes.
const DefaultAgentTimeout = 30 * time.Minute

// Config is the subset of operator configuration the orchestrator
// needs, read once at construction and safe to share across spawns.
type Config struct {
	RepoRoot            string
	WorktreeDir         string
	MainBranch          string
	MaxConcurrentAgents int
	AutoPush            bool // gh auth status gates this at runtime regardless
}

// Orchestrator coordinates agent spawns. One instance per process.
type Orchestrator struct {
	cfg     Config
	queue   *kanban.Queue
	store   *store.Store
	hub     *hub.Hub
	steer   *steering.Engine
	worktree *WorktreeManager
	merge   MergeStrategy
	logger  zerolog.Logger

	spawnMu sync.Mutex // the single-slot spawn-gating mutex

	mu        sync.Mutex
	processes map[string]*AgentProcess // keyed by cardID
}

// New builds an Orchestrator. Its merge strategy is the worktree
// manager's own SquashMerge.
func New(cfg Config, queue *kanban.Queue, st *store.Store, h *hub.Hub, steer *steering.Engine, logger zerolog.Logger) *Orchestrator {
	if cfg.MaxConcurrentAgents <= 0 {
		cfg.MaxConcurrentAgents = DefaultMaxConcurrentAgents
	}
	wt := NewWorktreeManager(cfg.RepoRoot, cfg.WorktreeDir, cfg.MainBranch)
	return &Orchestrator{
		cfg:      cfg,
		queue:    queue,
		store:    st,
		hub:      h,
		steer:    steer,
		worktree: wt,
		merge:    wt,
		logger:   logger,
		processes: make(map[string]*AgentProcess),
	}
}

// Worktree exposes the orchestrator's worktree manager for the
// scheduler's GC pass and synthesize merge step.
func (o *Orchestrator) Worktree() *WorktreeManager { return o.worktree }

// Merge exposes the configured merge strategy for the scheduler's
// synthesize phase.
func (o *Orchestrator) Merge() MergeStrategy { return o.merge }

// GetRunningAgents returns a safe snapshot of every tracked process.
func (o *Orchestrator) GetRunningAgents() []AgentProcess {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]AgentProcess, 0, len(o.processes))
	for _, p := range o.processes {
		out = append(out, p.Snapshot())
	}
	return out
}

// GetAgentLogs returns the tail of a card's bounded log ring.
func (o *Orchestrator) GetAgentLogs(cardID string, limit int) ([]string, error) {
	o.mu.Lock()
	p, ok := o.processes[cardID]
	o.mu.Unlock()
	if !ok {
		return nil, &NotFound{Kind: "agent process", ID: cardID}
	}
	if limit <= 0 {
		return p.Logs.Lines(), nil
	}
	return p.Logs.Tail(limit), nil
}

// SpawnAgent runs the five-check spawn gate atomically, then creates
// the worktree and starts the subprocess. The gating mutex is held
// across every check plus process registration and process start, so
// two concurrent callers can never both pass.
func (o *Orchestrator) SpawnAgent(ctx context.Context, cardID, projectID string, agent kanban.AgentKind) (*AgentProcess, error) {
	o.spawnMu.Lock()
	defer o.spawnMu.Unlock()

	running, err := o.queue.RunningCards()
	if err != nil {
		return nil, err
	}
	if len(running) >= o.cfg.MaxConcurrentAgents {
		return nil, &ConcurrencyLimitReached{Limit: o.cfg.MaxConcurrentAgents}
	}
	for _, c := range running {
		if c.ProjectID == projectID {
			return nil, &ProjectBusy{ProjectID: projectID}
		}
	}
	o.mu.Lock()
	_, busy := o.processes[cardID]
	o.mu.Unlock()
	if busy {
		return nil, &CardBusy{CardID: cardID}
	}

	card, err := o.queue.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	if card.Column != kanban.ColumnBacklog {
		return nil, &kanban.IllegalTransition{CardID: cardID, From: string(card.Column), Action: "spawnAgent"}
	}

	branch := GenerateBranchName("agent/"+string(agent)+"/", shortID(cardID), card.Title)
	worktreePath, err := o.worktree.CreateWorktree(ctx, cardID, branch)
	if err != nil {
		return nil, &WorktreeFailed{CardID: cardID, Err: err}
	}

	if _, err := o.queue.StartWork(cardID, agent); err != nil {
		_ = o.worktree.RemoveWorktree(ctx, worktreePath, true)
		return nil, err
	}

	spanID := uuid.NewString()
	timeout := o.agentTimeout(projectID)
	runCtx, cancel := context.WithTimeout(context.Background(), timeout)

	proc := &AgentProcess{
		CardID:       cardID,
		ProjectID:    projectID,
		Agent:        agent,
		SpanID:       spanID,
		WorktreePath: worktreePath,
		Branch:       branch,
		StartedAt:    time.Now(),
		Status:       kanban.AgentStatusRunning,
		Logs:         NewLogRing(),
		stopped:      &atomic.Bool{},
		cancel:       cancel,
	}
	o.mu.Lock()
	o.processes[cardID] = proc
	o.mu.Unlock()

	o.hub.Publish("agent.spawned", proc.Snapshot())
	o.auditf(card.ID, "agent.spawned", map[string]any{"agent": string(agent), "spanId": spanID})

	prompt := o.assemblePrompt(*card)
	go o.run(runCtx, proc, *card, prompt)

	return proc, nil
}

// assemblePrompt fetches the project, its documents and decisions, and
// sibling board state from the store so every §4.E section has real
// data to render instead of being permanently empty.
func (o *Orchestrator) assemblePrompt(card kanban.Card) string {
	steerBlock := ""
	if o.steer != nil {
		if block, err := o.steer.BuildPromptBlock(card.ProjectID); err == nil {
			steerBlock = block
		}
	}

	in := PromptInput{
		Card:          card,
		SteeringBlock: steerBlock,
	}

	if proj, err := o.store.GetProject(card.ProjectID); err == nil && proj != nil {
		in.ProjectName = proj.Name
		in.ProjectDesc = proj.Description
	} else if err != nil {
		o.logger.Warn().Err(err).Str("projectId", card.ProjectID).Msg("prompt: failed to load project")
	}

	docs := make(map[string]string, 3)
	for _, docType := range []string{"brief", "instructions", "assumptions"} {
		list, err := o.store.ListDocumentsByType(card.ProjectID, docType)
		if err != nil {
			o.logger.Warn().Err(err).Str("projectId", card.ProjectID).Str("docType", docType).Msg("prompt: failed to load document")
			continue
		}
		if len(list) > 0 {
			docs[docType] = list[0].Content
		}
	}
	in.Documents = docs

	if decisions, err := o.store.ListDecisions(card.ProjectID); err == nil {
		for _, d := range decisions {
			in.Decisions = append(in.Decisions, d.Title+": "+d.Reasoning)
		}
	} else {
		o.logger.Warn().Err(err).Str("projectId", card.ProjectID).Msg("prompt: failed to load decisions")
	}

	if inProgress, err := o.store.ListCardsByColumn(card.ProjectID, kanban.ColumnInProgress, 50, 0); err == nil {
		for _, c := range inProgress {
			if c.ID != card.ID {
				in.OtherInProgress = append(in.OtherInProgress, c)
			}
		}
	} else {
		o.logger.Warn().Err(err).Str("projectId", card.ProjectID).Msg("prompt: failed to load in-progress cards")
	}

	if done, err := o.store.ListCardsByColumn(card.ProjectID, kanban.ColumnDone, 50, 0); err == nil {
		sort.Slice(done, func(i, j int) bool {
			return cardCompletedAt(done[i]).After(cardCompletedAt(done[j]))
		})
		if len(done) > 10 {
			done = done[:10]
		}
		in.RecentDone = done
	} else {
		o.logger.Warn().Err(err).Str("projectId", card.ProjectID).Msg("prompt: failed to load done cards")
	}

	return BuildPrompt(in)
}

func cardCompletedAt(c kanban.Card) time.Time {
	if c.CompletedAt != nil {
		return *c.CompletedAt
	}
	return c.UpdatedAt
}

// run drives one agent subprocess to completion: builds the command,
// streams its stdout as JSONL into the card's log ring, waits for exit
// or timeout, and hands off to exit handling.
func (o *Orchestrator) run(ctx context.Context, proc *AgentProcess, card kanban.Card, prompt string) {
	cmd, err := buildCommand(ctx, proc.Agent, prompt, proc.WorktreePath)
	if err != nil {
		o.handleSpawnError(ctx, proc, card, err)
		return
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		o.handleSpawnError(ctx, proc, card, err)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		o.handleSpawnError(ctx, proc, card, err)
		return
	}
	cmd.Stdin = nil // closed immediately; some agents block if stdin stays open

	if err := cmd.Start(); err != nil {
		o.handleSpawnError(ctx, proc, card, err)
		return
	}

	var usage store.TokenUsage
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.streamLines(proc, stdout, "", &usage)
	}()
	go func() {
		defer wg.Done()
		o.streamLines(proc, stderr, "[stderr] ", nil)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	proc.EndedAt = time.Now()

	if proc.stopped.Load() {
		// StopAgent already moved the card to idle and saved its
		// context snapshot; the SIGTERM-driven exit here is expected
		// and must not be treated as a failure.
		o.cleanupWorktree(context.Background(), proc)
		o.forgetProcess(card.ID)
		o.PruneStale()
		return
	}
	if ctx.Err() == context.DeadlineExceeded {
		o.handleTimeout(proc, card)
		return
	}
	if waitErr != nil {
		o.handleFailure(proc, card, waitErr)
		return
	}
	o.handleSuccess(context.Background(), proc, card, usage)
}

// streamLines reads newline-delimited output, appending every line
// (prefixed for stderr) to the ring and publishing it as agent.log. A
// "result" JSONL frame is parsed into usage when usage is non-nil.
func (o *Orchestrator) streamLines(proc *AgentProcess, r io.Reader, prefix string, usage *store.TokenUsage) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := prefix + scanner.Text()
		proc.Logs.Append(line)
		o.hub.Publish("agent.log", map[string]string{"cardId": proc.CardID, "spanId": proc.SpanID, "line": line})

		if usage != nil && prefix == "" {
			parseResultFrame(scanner.Text(), proc, usage)
		}
	}
}

type resultFrame struct {
	Type        string `json:"type"`
	TotalCostUS float64 `json:"total_cost_usd"`
	ModelUsage  map[string]struct {
		InputTokens      int `json:"input_tokens"`
		OutputTokens     int `json:"output_tokens"`
		CacheReadTokens  int `json:"cache_read_input_tokens"`
		CacheWriteTokens int `json:"cache_creation_input_tokens"`
	} `json:"modelUsage"`
}

func parseResultFrame(line string, proc *AgentProcess, usage *store.TokenUsage) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return
	}
	var frame resultFrame
	if err := json.Unmarshal([]byte(line), &frame); err != nil || frame.Type != "result" {
		return
	}
	usage.CardID = proc.CardID
	usage.ProjectID = proc.ProjectID
	usage.Agent = string(proc.Agent)
	usage.CostUSD = frame.TotalCostUS
	for _, m := range frame.ModelUsage {
		usage.InputTokens += m.InputTokens
		usage.OutputTokens += m.OutputTokens
		usage.CacheReadTokens += m.CacheReadTokens
		usage.CacheWriteTokens += m.CacheWriteTokens
	}
}

func (o *Orchestrator) handleSpawnError(ctx context.Context, proc *AgentProcess, card kanban.Card, err error) {
	o.logger.Error().Err(err).Str("cardId", card.ID).Msg("agent spawn failed")
	o.transitionFailed(ctx, proc, card, "spawn error: "+err.Error())
}

func (o *Orchestrator) handleTimeout(proc *AgentProcess, card kanban.Card) {
	o.hub.Publish("agent.timeout", proc.Snapshot())
	o.auditf(card.ID, "agent.timeout", map[string]any{"spanId": proc.SpanID})
	o.transitionFailed(context.Background(), proc, card, "Timed out")
}

func (o *Orchestrator) handleFailure(proc *AgentProcess, card kanban.Card, err error) {
	tail := strings.Join(proc.Logs.Tail(20), "\n")
	o.hub.Publish("agent.failed", map[string]string{"cardId": card.ID, "error": err.Error(), "stderrTail": tail})
	o.transitionFailed(context.Background(), proc, card, err.Error())
}

func (o *Orchestrator) transitionFailed(ctx context.Context, proc *AgentProcess, card kanban.Card, reason string) {
	if _, err := o.queue.BlockCard(card.ID, reason); err != nil {
		o.logger.Error().Err(err).Msg("failed to record agent failure on card")
	}
	if _, err := o.queue.UpdateAgentStatus(card.ID, kanban.AgentStatusFailed, reason); err != nil {
		o.logger.Error().Err(err).Msg("failed to set failed status")
	}
	o.auditf(card.ID, "agent.failed", map[string]any{"reason": reason, "spanId": proc.SpanID})
	o.cleanupWorktree(ctx, proc)
	o.forgetProcess(card.ID)
	o.PruneStale()
}

// handleSuccess implements the exit-0 path: complete the card, push
// with retry+backoff if gh is authenticated, open a PR on push success,
// and clean up the worktree. Per §9 Open Question 1, a push failure
// after retries does not revert the card from completed — it is
// recorded as an audited "unpushed" state instead.
func (o *Orchestrator) handleSuccess(ctx context.Context, proc *AgentProcess, card kanban.Card, usage store.TokenUsage) {
	o.hub.Publish("agent.log", map[string]string{"cardId": card.ID, "spanId": proc.SpanID, "line": "completed successfully"})

	if usage.Agent != "" {
		if err := o.store.InsertTokenUsage(&usage); err != nil {
			o.logger.Error().Err(err).Msg("failed to record token usage")
		}
	}

	if _, err := o.queue.CompleteWork(card.ID, kanban.VerificationUnverified); err != nil {
		o.logger.Error().Err(err).Msg("failed to complete card")
	}
	o.auditf(card.ID, "agent.completed", map[string]any{"spanId": proc.SpanID})
	o.hub.Publish("agent.completed", proc.Snapshot())

	if ghAuthenticated(ctx) {
		pushed := o.pushWithRetry(ctx, proc)
		if pushed {
			o.createPullRequest(ctx, proc, card)
		} else {
			o.auditf(card.ID, "agent.push_failed", map[string]any{"branch": proc.Branch})
		}
	} else {
		o.auditf(card.ID, "agent.push_skipped", map[string]any{"reason": "gh not authenticated"})
	}

	o.cleanupWorktree(ctx, proc)
	o.forgetProcess(card.ID)
	o.PruneStale()
}

// pushWithRetry pushes the agent's branch, retrying up to 3 times with
// a 5s constant backoff, matching §4.E's exit-handling contract.
func (o *Orchestrator) pushWithRetry(ctx context.Context, proc *AgentProcess) bool {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Second), 3)
	err := backoff.Retry(func() error {
		return o.worktree.Push(ctx, proc.WorktreePath)
	}, b)
	if err != nil {
		o.logger.Warn().Err(err).Str("cardId", proc.CardID).Msg("push failed after retries")
		return false
	}
	return true
}

func (o *Orchestrator) createPullRequest(ctx context.Context, proc *AgentProcess, card kanban.Card) {
	title := card.Title
	body := card.Description
	if err := runGHPRCreate(ctx, proc.WorktreePath, title, body); err != nil {
		o.logger.Warn().Err(err).Str("cardId", card.ID).Msg("gh pr create failed")
		o.auditf(card.ID, "agent.pr_failed", map[string]any{"error": err.Error()})
		return
	}
	o.auditf(card.ID, "agent.pr_created", map[string]any{"branch": proc.Branch})
}

func (o *Orchestrator) cleanupWorktree(ctx context.Context, proc *AgentProcess) {
	smokeData := proc.WorktreePath + "/.smoke-data"
	_ = os.RemoveAll(smokeData)
	if err := o.worktree.RemoveWorktree(ctx, proc.WorktreePath, false); err != nil {
		o.logger.Warn().Err(err).Str("cardId", proc.CardID).Msg("worktree removal deferred to next GC pass")
	}
}

func (o *Orchestrator) forgetProcess(cardID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.processes, cardID)
}

// StopAgent cancels a running agent's context (triggering the
// SIGTERM -> grace -> SIGKILL sequence) and saves a best-effort context
// snapshot so the card can resume later.
func (o *Orchestrator) StopAgent(cardID string) error {
	o.mu.Lock()
	proc, ok := o.processes[cardID]
	o.mu.Unlock()
	if !ok {
		return &NotFound{Kind: "agent process", ID: cardID}
	}
	snapshot := strings.Join(proc.Logs.Tail(50), "\n")
	proc.stopped.Store(true)
	proc.cancel()
	_, err := o.queue.SaveContext(cardID, snapshot, "")
	if err != nil {
		return err
	}
	_, err = o.queue.UpdateAgentStatus(cardID, kanban.AgentStatusIdle, "")
	o.auditf(cardID, "agent.stopped", map[string]any{"spanId": proc.SpanID})
	o.hub.Publish("agent.stopped", proc.Snapshot())
	o.PruneStale()
	return err
}

// ShutdownAll saves a context snapshot for every running agent and
// cancels it: the subprocess gets SIGTERM and, if still running after
// sigtermGrace (5 s), is force-killed by its own cmd.Cancel/WaitDelay
// machinery. It returns without waiting for the agents to exit, and
// applies no longer shutdown-specific grace period.
func (o *Orchestrator) ShutdownAll() {
	o.mu.Lock()
	procs := make([]*AgentProcess, 0, len(o.processes))
	for _, p := range o.processes {
		procs = append(procs, p)
	}
	o.mu.Unlock()

	for _, p := range procs {
		snapshot := strings.Join(p.Logs.Tail(50), "\n")
		_, _ = o.queue.SaveContext(p.CardID, snapshot, "")
		p.stopped.Store(true)
		p.cancel()
	}
	o.PruneStale()
}

// PruneStale removes non-running process entries older than 1 hour,
// called after every terminal transition and during StopAgent/
// ShutdownAll per §4.E's pruning contract. Running agents are never
// pruned by this pass.
func (o *Orchestrator) PruneStale() {
	cutoff := time.Now().Add(-time.Hour)
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, p := range o.processes {
		if p.Status != kanban.AgentStatusRunning && !p.EndedAt.IsZero() && p.EndedAt.Before(cutoff) {
			delete(o.processes, id)
		}
	}
}

func (o *Orchestrator) auditf(cardID, action string, metadata map[string]any) {
	if err := o.store.InsertAudit(&store.AuditEntry{
		EntityType: "card",
		EntityID:   cardID,
		Action:     action,
		Metadata:   metadata,
	}); err != nil {
		o.logger.Error().Err(err).Str("action", action).Msg("failed to write audit entry")
	}
}

// agentTimeout resolves the per-spawn timeout from the project's
// configured agentTimeoutMinutes, falling back to DefaultAgentTimeout
// when the project can't be read or carries no override.
func (o *Orchestrator) agentTimeout(projectID string) time.Duration {
	proj, err := o.store.GetProject(projectID)
	if err != nil || proj == nil || proj.AgentTimeoutMinutes <= 0 {
		return DefaultAgentTimeout
	}
	return time.Duration(proj.AgentTimeoutMinutes) * time.Minute
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
