package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/twlines/maslow-sub003/internal/kanban"
)

// AgentProcess is a snapshot of one running (or recently terminated)
// agent subprocess. GetRunningAgents returns copies of these with Cancel
// stripped, per the "safe snapshot; child handles stripped" contract.
type AgentProcess struct {
	CardID       string
	ProjectID    string
	Agent        kanban.AgentKind
	SpanID       string
	WorktreePath string
	Branch       string
	StartedAt    time.Time
	EndedAt      time.Time
	Status       kanban.AgentStatus
	Logs         *LogRing `json:"-"`

	// stopped is set by StopAgent before cancel() so the run() goroutine
	// can tell a user-initiated stop apart from a timeout or crash once
	// cmd.Wait() returns its "killed by signal" error. A pointer so
	// Snapshot's shallow copy shares the same flag rather than vet-unsafe
	// copying of the atomic value itself.
	stopped *atomic.Bool
	cancel  context.CancelFunc
}

// Snapshot returns a copy of p with its cancel func stripped, safe to
// hand to callers outside the orchestrator.
func (p *AgentProcess) Snapshot() AgentProcess {
	cp := *p
	cp.cancel = nil
	return cp
}

// MergeStrategy performs the synthesize phase's branch integration.
// Pluggable per §9 Open Question 2: the core contract only requires
// single-flight execution and no-double-operate-on-a-card, not any
// particular merge algorithm. WorktreeManager.SquashMerge is the
// default implementation.
type MergeStrategy interface {
	Merge(ctx context.Context, branchName, commitMessage string) error
}
