package kanban

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CardStore is the subset of internal/store.Store the queue depends on.
// Declared here (rather than importing internal/store directly) so the
// state-machine logic stays testable against a fake.
type CardStore interface {
	CreateCard(c *Card) error
	GetCard(id string) (*Card, error)
	UpdateCard(c *Card) error
	ListCardsByColumn(projectID string, column Column, limit, offset int) ([]Card, error)
	GetNextEligibleCard(projectID string) (*Card, error)
	RunningCardForProject(projectID string) (*Card, error)
	ListCardsByAgentStatus(status AgentStatus) ([]Card, error)
	MoveCard(cardID string, column Column, position int) error
}

// EventKind tags the broadcast events the queue emits on every mutation.
type EventKind string

const (
	EventCardCreated       EventKind = "card.created"
	EventCardMoved         EventKind = "card.moved"
	EventCardStarted       EventKind = "card.started"
	EventCardCompleted     EventKind = "card.completed"
	EventCardBlocked       EventKind = "card.blocked"
	EventCardSkipped       EventKind = "card.skipped"
	EventCardContextSaved  EventKind = "card.context_saved"
	EventAgentStatusChange EventKind = "card.agent_status_changed"
)

// Event is one state-change notification published after a successful
// queue mutation. Publisher implementations forward it to spec §4.B's
// broadcast hub.
type Event struct {
	Kind EventKind
	Card Card
}

// Publisher accepts queue events for fan-out. internal/hub.Hub implements
// this; tests can pass a no-op.
type Publisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Queue is the pull-based work queue (spec component C): single-writer
// per project, WIP enforced by "at most one running card per project",
// backed by CardStore and announcing every mutation to a Publisher.
// Grounded on the teacher's kanban/state.go mutex-guarded State, adapted
// from its in-memory board to a store-backed one.
type Queue struct {
	store     CardStore
	publisher Publisher
	logger    zerolog.Logger

	mu        sync.Mutex
	projectMu map[string]*sync.Mutex
}

// NewQueue builds a Queue. publisher may be nil, in which case events
// are dropped.
func NewQueue(store CardStore, publisher Publisher, logger zerolog.Logger) *Queue {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Queue{
		store:     store,
		publisher: publisher,
		logger:    logger,
		projectMu: make(map[string]*sync.Mutex),
	}
}

func (q *Queue) lockFor(projectID string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.projectMu[projectID]
	if !ok {
		m = &sync.Mutex{}
		q.projectMu[projectID] = m
	}
	return m
}

// CreateCard adds a new card to a project's backlog.
func (q *Queue) CreateCard(c *Card) error {
	pm := q.lockFor(c.ProjectID)
	pm.Lock()
	defer pm.Unlock()

	if err := q.store.CreateCard(c); err != nil {
		return err
	}
	q.publisher.Publish(Event{Kind: EventCardCreated, Card: *c})
	return nil
}

// GetNextCard returns the next eligible backlog card for a project
// without mutating anything — callers decide whether to StartWork on it.
func (q *Queue) GetNextCard(projectID string) (*Card, error) {
	return q.store.GetNextEligibleCard(projectID)
}

// GetCard looks up a card by id without any state-machine side effects.
func (q *Queue) GetCard(cardID string) (*Card, error) {
	return q.store.GetCard(cardID)
}

// StartWork transitions a card from backlog to in_progress and marks
// its agent running, enforcing that a project has at most one running
// card at a time.
func (q *Queue) StartWork(cardID string, agent AgentKind) (*Card, error) {
	card, err := q.store.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	pm := q.lockFor(card.ProjectID)
	pm.Lock()
	defer pm.Unlock()

	if card.Column != ColumnBacklog {
		return nil, &IllegalTransition{CardID: cardID, From: string(card.Column), Action: "startWork"}
	}
	if running, err := q.store.RunningCardForProject(card.ProjectID); err != nil {
		return nil, err
	} else if running != nil && running.ID != card.ID {
		return nil, &IllegalTransition{CardID: cardID, From: string(card.Column), Action: "startWork: project already has a running card"}
	}

	now := time.Now()
	card.Column = ColumnInProgress
	card.AssignedAgent = agent
	card.AgentStatus = AgentStatusRunning
	card.StartedAt = &now
	card.BlockedReason = ""

	if err := q.store.UpdateCard(card); err != nil {
		return nil, err
	}
	q.publisher.Publish(Event{Kind: EventCardStarted, Card: *card})
	return card, nil
}

// CompleteWork transitions a running card to done, recording its final
// verification status.
func (q *Queue) CompleteWork(cardID string, verification VerificationStatus) (*Card, error) {
	card, err := q.store.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	pm := q.lockFor(card.ProjectID)
	pm.Lock()
	defer pm.Unlock()

	if !card.IsRunning() {
		return nil, &IllegalTransition{CardID: cardID, From: string(card.AgentStatus), Action: "completeWork"}
	}

	now := time.Now()
	card.Column = ColumnDone
	card.AgentStatus = AgentStatusCompleted
	card.VerificationStatus = verification
	card.CompletedAt = &now

	if err := q.store.UpdateCard(card); err != nil {
		return nil, err
	}
	q.publisher.Publish(Event{Kind: EventCardCompleted, Card: *card})
	return card, nil
}

// BlockCard marks a running card blocked, recording why. Blocked cards
// stay in in_progress; the scheduler's retry sweep revisits them.
func (q *Queue) BlockCard(cardID, reason string) (*Card, error) {
	card, err := q.UpdateAgentStatus(cardID, AgentStatusBlocked, reason)
	if err != nil {
		return nil, err
	}
	q.publisher.Publish(Event{Kind: EventCardBlocked, Card: *card})
	return card, nil
}

// skipPenalty is the modest priority penalty applied by SkipToBack so a
// repeatedly-skipped card doesn't immediately win getNext again.
const skipPenalty = 1

// SkipToBack moves a card to the end of its project's backlog with a
// modest priority penalty, used on crash-reconciliation and after a
// blocked-cooldown retry.
func (q *Queue) SkipToBack(cardID string) (*Card, error) {
	card, err := q.store.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	pm := q.lockFor(card.ProjectID)
	pm.Lock()
	defer pm.Unlock()

	siblings, err := q.store.ListCardsByColumn(card.ProjectID, ColumnBacklog, 10000, 0)
	if err != nil {
		return nil, err
	}
	position := 0
	if len(siblings) > 0 {
		position = siblings[len(siblings)-1].Position + 1
	}

	if err := q.store.MoveCard(cardID, ColumnBacklog, position); err != nil {
		return nil, err
	}

	card.Column = ColumnBacklog
	card.Position = position
	card.Priority += skipPenalty
	card.AssignedAgent = ""
	card.AgentStatus = AgentStatusIdle
	card.StartedAt = nil
	if err := q.store.UpdateCard(card); err != nil {
		return nil, err
	}
	q.publisher.Publish(Event{Kind: EventCardSkipped, Card: *card})
	return card, nil
}

// SaveContext records an agent's resumable context snapshot and last
// session id on a card, without altering its column or agent status.
func (q *Queue) SaveContext(cardID, snapshot, sessionID string) (*Card, error) {
	card, err := q.store.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	pm := q.lockFor(card.ProjectID)
	pm.Lock()
	defer pm.Unlock()

	card.ContextSnapshot = snapshot
	card.LastSessionID = sessionID
	if err := q.store.UpdateCard(card); err != nil {
		return nil, err
	}
	q.publisher.Publish(Event{Kind: EventCardContextSaved, Card: *card})
	return card, nil
}

// UpdateAgentStatus sets a card's agent sub-state directly, for
// transitions that don't change its column (e.g. running -> failed).
// reason is recorded as BlockedReason only when status is blocked.
func (q *Queue) UpdateAgentStatus(cardID string, status AgentStatus, reason string) (*Card, error) {
	card, err := q.store.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	pm := q.lockFor(card.ProjectID)
	pm.Lock()
	defer pm.Unlock()

	card.AgentStatus = status
	if status == AgentStatusBlocked {
		card.BlockedReason = reason
	}
	if err := q.store.UpdateCard(card); err != nil {
		return nil, err
	}
	q.publisher.Publish(Event{Kind: EventAgentStatusChange, Card: *card})
	return card, nil
}

// MoveCard relocates a card within or across columns, for manual board
// reordering via the API surface. Per the data model's invariant, moving
// a card out of in_progress clears its assigned agent and drops
// agentStatus to idle (or leaves a terminal status alone).
func (q *Queue) MoveCard(cardID string, column Column, position int) (*Card, error) {
	card, err := q.store.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	pm := q.lockFor(card.ProjectID)
	pm.Lock()
	defer pm.Unlock()

	leavingInProgress := card.Column == ColumnInProgress && column != ColumnInProgress
	if leavingInProgress {
		card.AssignedAgent = ""
		if !card.IsTerminal() {
			card.AgentStatus = AgentStatusIdle
		}
		if err := q.store.UpdateCard(card); err != nil {
			return nil, err
		}
	}

	if err := q.store.MoveCard(cardID, column, position); err != nil {
		return nil, err
	}
	updated, err := q.store.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	q.publisher.Publish(Event{Kind: EventCardMoved, Card: *updated})
	return updated, nil
}

// AssignAgent pre-registers an agent kind on a backlog card before
// spawn, the "optional fast-path" named in spec §4.C. It does not move
// the card or change its agentStatus — StartWork still performs the
// actual backlog -> in_progress transition and sets AssignedAgent to
// the agent it is given, replacing any pre-registered one.
func (q *Queue) AssignAgent(cardID string, agent AgentKind) (*Card, error) {
	card, err := q.store.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	pm := q.lockFor(card.ProjectID)
	pm.Lock()
	defer pm.Unlock()

	if card.Column != ColumnBacklog {
		return nil, &IllegalTransition{CardID: cardID, From: string(card.Column), Action: "assignAgent"}
	}

	card.AssignedAgent = agent
	if err := q.store.UpdateCard(card); err != nil {
		return nil, err
	}
	q.publisher.Publish(Event{Kind: EventAgentStatusChange, Card: *card})
	return card, nil
}

// RunningCards returns every card currently running, across all
// projects, for use by conflict checks and the orchestrator's
// concurrency accounting.
func (q *Queue) RunningCards() ([]Card, error) {
	cards, err := q.store.ListCardsByAgentStatus(AgentStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("list running cards: %w", err)
	}
	return cards, nil
}
