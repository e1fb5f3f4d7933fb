package kanban

import (
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fakeStore is a minimal in-memory CardStore, standing in for
// internal/store.Store so the state-machine logic in Queue can be
// tested without a database.
type fakeStore struct {
	cards map[string]*Card
}

func newFakeStore() *fakeStore {
	return &fakeStore{cards: make(map[string]*Card)}
}

func (f *fakeStore) CreateCard(c *Card) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Column = ColumnBacklog
	c.AgentStatus = AgentStatusIdle

	var max int
	for _, existing := range f.cards {
		if existing.ProjectID == c.ProjectID && existing.Column == ColumnBacklog && existing.Position >= max {
			max = existing.Position + 1
		}
	}
	c.Position = max

	cp := *c
	f.cards[c.ID] = &cp
	return nil
}

func (f *fakeStore) GetCard(id string) (*Card, error) {
	c, ok := f.cards[id]
	if !ok {
		return nil, &NotFoundStub{ID: id}
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) UpdateCard(c *Card) error {
	if _, ok := f.cards[c.ID]; !ok {
		return &NotFoundStub{ID: c.ID}
	}
	cp := *c
	f.cards[c.ID] = &cp
	return nil
}

func (f *fakeStore) ListCardsByColumn(projectID string, column Column, limit, offset int) ([]Card, error) {
	var out []Card
	for _, c := range f.cards {
		if c.ProjectID == projectID && c.Column == column {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) GetNextEligibleCard(projectID string) (*Card, error) {
	cards, err := f.ListCardsByColumn(projectID, ColumnBacklog, 1, 0)
	if err != nil || len(cards) == 0 {
		return nil, err
	}
	return &cards[0], nil
}

func (f *fakeStore) RunningCardForProject(projectID string) (*Card, error) {
	for _, c := range f.cards {
		if c.ProjectID == projectID && c.AgentStatus == AgentStatusRunning {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListCardsByAgentStatus(status AgentStatus) ([]Card, error) {
	var out []Card
	for _, c := range f.cards {
		if c.AgentStatus == status {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) MoveCard(cardID string, column Column, position int) error {
	c, ok := f.cards[cardID]
	if !ok {
		return &NotFoundStub{ID: cardID}
	}
	c.Column = column
	c.Position = position
	return nil
}

// NotFoundStub stands in for the store package's NotFoundError without
// importing internal/store (which would import internal/kanban back).
type NotFoundStub struct{ ID string }

func (e *NotFoundStub) Error() string { return "not found: " + e.ID }

type recordingPublisher struct {
	events []Event
}

func (p *recordingPublisher) Publish(e Event) { p.events = append(p.events, e) }

func newTestQueue() (*Queue, *fakeStore, *recordingPublisher) {
	store := newFakeStore()
	pub := &recordingPublisher{}
	return NewQueue(store, pub, zerolog.Nop()), store, pub
}

func TestStartWorkTransitionsBacklogToInProgress(t *testing.T) {
	q, _, _ := newTestQueue()
	card := &Card{ProjectID: "p1", Title: "a"}
	if err := q.CreateCard(card); err != nil {
		t.Fatalf("create: %v", err)
	}

	started, err := q.StartWork(card.ID, AgentClaude)
	if err != nil {
		t.Fatalf("start work: %v", err)
	}
	if started.Column != ColumnInProgress {
		t.Errorf("expected column in_progress, got %q", started.Column)
	}
	if started.AgentStatus != AgentStatusRunning {
		t.Errorf("expected agent status running, got %q", started.AgentStatus)
	}
	if started.StartedAt == nil {
		t.Error("expected startedAt to be set")
	}
}

func TestStartWorkRejectsSecondRunningCardInSameProject(t *testing.T) {
	q, _, _ := newTestQueue()
	a := &Card{ProjectID: "p1", Title: "a"}
	b := &Card{ProjectID: "p1", Title: "b"}
	if err := q.CreateCard(a); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := q.CreateCard(b); err != nil {
		t.Fatalf("create b: %v", err)
	}

	if _, err := q.StartWork(a.ID, AgentClaude); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if _, err := q.StartWork(b.ID, AgentCodex); err == nil {
		t.Fatal("expected illegal transition starting a second card in the same project")
	}
}

func TestStartWorkRejectsNonBacklogCard(t *testing.T) {
	q, _, _ := newTestQueue()
	card := &Card{ProjectID: "p1", Title: "a"}
	if err := q.CreateCard(card); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := q.StartWork(card.ID, AgentClaude); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := q.StartWork(card.ID, AgentClaude); err == nil {
		t.Fatal("expected illegal transition starting an already-running card")
	}
}

func TestCompleteWorkRequiresRunningCard(t *testing.T) {
	q, _, _ := newTestQueue()
	card := &Card{ProjectID: "p1", Title: "a"}
	if err := q.CreateCard(card); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := q.CompleteWork(card.ID, VerificationBranchPassed); err == nil {
		t.Fatal("expected illegal transition completing a backlog card")
	}

	if _, err := q.StartWork(card.ID, AgentClaude); err != nil {
		t.Fatalf("start: %v", err)
	}
	done, err := q.CompleteWork(card.ID, VerificationBranchPassed)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Column != ColumnDone || !done.IsTerminal() {
		t.Errorf("expected terminal done card, got column=%q status=%q", done.Column, done.AgentStatus)
	}
	if done.CompletedAt == nil {
		t.Error("expected completedAt to be set")
	}
}

func TestSkipToBackMovesCardToEndOfBacklogWithPenalty(t *testing.T) {
	q, _, _ := newTestQueue()
	a := &Card{ProjectID: "p1", Title: "a", Priority: 5}
	b := &Card{ProjectID: "p1", Title: "b"}
	if err := q.CreateCard(a); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := q.CreateCard(b); err != nil {
		t.Fatalf("create b: %v", err)
	}

	skipped, err := q.SkipToBack(a.ID)
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if skipped.Priority != 6 {
		t.Errorf("expected skip penalty applied, got priority %d", skipped.Priority)
	}
	if skipped.Position <= b.Position {
		t.Errorf("expected skipped card repositioned after sibling, got position %d vs %d", skipped.Position, b.Position)
	}
}

func TestGetNextCardIsIdempotentBeforeStartWork(t *testing.T) {
	q, _, _ := newTestQueue()
	card := &Card{ProjectID: "p1", Title: "a"}
	if err := q.CreateCard(card); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := q.GetNextCard("p1")
	if err != nil {
		t.Fatalf("get next 1: %v", err)
	}
	second, err := q.GetNextCard("p1")
	if err != nil {
		t.Fatalf("get next 2: %v", err)
	}
	if first == nil || second == nil || first.ID != second.ID {
		t.Fatalf("expected getNext to be idempotent, got %+v vs %+v", first, second)
	}
}

func TestRunningCardsAcrossProjects(t *testing.T) {
	q, _, _ := newTestQueue()
	a := &Card{ProjectID: "p1", Title: "a"}
	b := &Card{ProjectID: "p2", Title: "b"}
	if err := q.CreateCard(a); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := q.CreateCard(b); err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := q.StartWork(a.ID, AgentClaude); err != nil {
		t.Fatalf("start a: %v", err)
	}

	running, err := q.RunningCards()
	if err != nil {
		t.Fatalf("running cards: %v", err)
	}
	if len(running) != 1 || running[0].ID != a.ID {
		t.Fatalf("expected only card a running, got %+v", running)
	}
}

func TestBlockCardRecordsReasonAndPublishesEvent(t *testing.T) {
	q, _, pub := newTestQueue()
	card := &Card{ProjectID: "p1", Title: "a"}
	if err := q.CreateCard(card); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := q.StartWork(card.ID, AgentClaude); err != nil {
		t.Fatalf("start: %v", err)
	}

	blocked, err := q.BlockCard(card.ID, "waiting on human input")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if blocked.BlockedReason != "waiting on human input" {
		t.Errorf("expected blocked reason recorded, got %q", blocked.BlockedReason)
	}

	found := false
	for _, e := range pub.events {
		if e.Kind == EventCardBlocked {
			found = true
		}
	}
	if !found {
		t.Error("expected card.blocked event published")
	}
}

func TestAssignAgentPreRegistersOnBacklogCard(t *testing.T) {
	q, _, _ := newTestQueue()
	card := &Card{ProjectID: "p1", Title: "a"}
	if err := q.CreateCard(card); err != nil {
		t.Fatalf("create: %v", err)
	}

	assigned, err := q.AssignAgent(card.ID, AgentCodex)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.AssignedAgent != AgentCodex {
		t.Errorf("expected agent pre-registered, got %q", assigned.AssignedAgent)
	}
	if assigned.Column != ColumnBacklog {
		t.Errorf("expected assignAgent to leave the card in backlog, got %q", assigned.Column)
	}

	started, err := q.StartWork(card.ID, AgentCodex)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.AssignedAgent != AgentCodex {
		t.Errorf("expected pre-registered agent preserved through startWork, got %q", started.AssignedAgent)
	}
}

func TestAssignAgentRejectsNonBacklogCard(t *testing.T) {
	q, _, _ := newTestQueue()
	card := &Card{ProjectID: "p1", Title: "a"}
	if err := q.CreateCard(card); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := q.StartWork(card.ID, AgentClaude); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := q.AssignAgent(card.ID, AgentCodex); err == nil {
		t.Fatal("expected illegal transition pre-registering an agent on a running card")
	}
}

func TestMoveCardOutOfInProgressClearsAgentAndIdles(t *testing.T) {
	q, _, _ := newTestQueue()
	card := &Card{ProjectID: "p1", Title: "a"}
	if err := q.CreateCard(card); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := q.StartWork(card.ID, AgentClaude); err != nil {
		t.Fatalf("start: %v", err)
	}

	moved, err := q.MoveCard(card.ID, ColumnBacklog, 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.AssignedAgent != "" {
		t.Errorf("expected assignedAgent cleared leaving in_progress, got %q", moved.AssignedAgent)
	}
	if moved.AgentStatus != AgentStatusIdle {
		t.Errorf("expected agentStatus idle leaving in_progress, got %q", moved.AgentStatus)
	}
}

func TestMoveCardPreservesTerminalStatusLeavingInProgress(t *testing.T) {
	// A card can fail while its column is still in_progress (the
	// orchestrator's transitionFailed sets agentStatus=failed without
	// moving the column). Moving such a card out of in_progress must not
	// clobber the terminal status back to idle.
	q, _, _ := newTestQueue()
	card := &Card{ProjectID: "p1", Title: "a"}
	if err := q.CreateCard(card); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := q.StartWork(card.ID, AgentClaude); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := q.UpdateAgentStatus(card.ID, AgentStatusFailed, ""); err != nil {
		t.Fatalf("fail: %v", err)
	}

	moved, err := q.MoveCard(card.ID, ColumnBacklog, 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.AgentStatus != AgentStatusFailed {
		t.Errorf("expected terminal agentStatus left alone, got %q", moved.AgentStatus)
	}
	if moved.AssignedAgent != "" {
		t.Errorf("expected assignedAgent still cleared leaving in_progress, got %q", moved.AssignedAgent)
	}
}
