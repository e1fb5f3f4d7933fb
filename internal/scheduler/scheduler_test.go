package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/twlines/maslow-sub003/internal/hub"
	"github.com/twlines/maslow-sub003/internal/kanban"
	"github.com/twlines/maslow-sub003/internal/orchestrator"
	"github.com/twlines/maslow-sub003/internal/steering"
	"github.com/twlines/maslow-sub003/internal/store"
)

func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db, []byte("test-secret-key-material"), zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	h := hub.New(zerolog.Nop())
	publisher := hub.NewKanbanPublisher(h)
	queue := kanban.NewQueue(st, publisher, zerolog.Nop())

	engine, err := steering.NewEngine(st)
	if err != nil {
		t.Fatalf("new steering engine: %v", err)
	}

	orchCfg := orchestrator.Config{
		RepoRoot:    dir,
		WorktreeDir: ".worktrees", // never created in these tests, so GC is a no-op
		MainBranch:  "main",
	}
	orch := orchestrator.New(orchCfg, queue, st, h, engine, zerolog.Nop())

	return New(cfg, queue, orch, st, h, zerolog.Nop())
}

func mustCreateProject(t *testing.T, s *Scheduler) *kanban.Project {
	t.Helper()
	p := &kanban.Project{Name: "demo"}
	if err := s.store.CreateProject(p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestReconcileMovesCrashSurvivorsToBacklog(t *testing.T) {
	s := newTestScheduler(t, Config{})
	p := mustCreateProject(t, s)

	card := &kanban.Card{ProjectID: p.ID, Title: "in-flight work"}
	if err := s.store.CreateCard(card); err != nil {
		t.Fatalf("create card: %v", err)
	}
	card.Column = kanban.ColumnInProgress
	card.AgentStatus = kanban.AgentStatusRunning
	if err := s.store.UpdateCard(card); err != nil {
		t.Fatalf("update card: %v", err)
	}

	if err := s.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got, err := s.store.GetCard(card.ID)
	if err != nil {
		t.Fatalf("get card: %v", err)
	}
	if got.Column != kanban.ColumnBacklog {
		t.Fatalf("expected card reconciled to backlog, got column %q", got.Column)
	}
	if got.AgentStatus != kanban.AgentStatusIdle {
		t.Fatalf("expected agent status idle after reconciliation, got %q", got.AgentStatus)
	}

	entries, err := s.store.ListAuditForEntity("card", card.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Action == "reconcile.card_recovered" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected reconcile.card_recovered audit entry, got %+v", entries)
	}
}

func TestReconcileIsNoOpWithNoSurvivors(t *testing.T) {
	s := newTestScheduler(t, Config{})
	mustCreateProject(t, s)

	if err := s.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile with no survivors should not error: %v", err)
	}
}

func TestRetryBlockedCardsWithExpiredWindow(t *testing.T) {
	s := newTestScheduler(t, Config{})
	s.cfg.BlockedRetryMinutes = 0 // bypass New()'s positive-default floor to force immediate expiry
	p := mustCreateProject(t, s)

	card := &kanban.Card{ProjectID: p.ID, Title: "stuck a while"}
	if err := s.store.CreateCard(card); err != nil {
		t.Fatalf("create card: %v", err)
	}
	card.Column = kanban.ColumnInProgress
	card.AgentStatus = kanban.AgentStatusBlocked
	card.BlockedReason = "needs human input"
	if err := s.store.UpdateCard(card); err != nil {
		t.Fatalf("update card: %v", err)
	}

	s.retryBlockedCards()

	got, err := s.store.GetCard(card.ID)
	if err != nil {
		t.Fatalf("get card: %v", err)
	}
	if got.Column != kanban.ColumnBacklog {
		t.Fatalf("expected blocked card past its retry window skipped to backlog, got column %q", got.Column)
	}
}

func TestRetryBlockedCardsLeavesFreshOnesAlone(t *testing.T) {
	s := newTestScheduler(t, Config{BlockedRetryMinutes: 24 * 60})
	p := mustCreateProject(t, s)

	card := &kanban.Card{ProjectID: p.ID, Title: "just blocked"}
	if err := s.store.CreateCard(card); err != nil {
		t.Fatalf("create card: %v", err)
	}
	card.AgentStatus = kanban.AgentStatusBlocked
	card.BlockedReason = "still working on it"
	if err := s.store.UpdateCard(card); err != nil {
		t.Fatalf("update card: %v", err)
	}

	s.retryBlockedCards()

	got, err := s.store.GetCard(card.ID)
	if err != nil {
		t.Fatalf("get card: %v", err)
	}
	if got.AgentStatus != kanban.AgentStatusBlocked {
		t.Fatalf("expected recently blocked card left alone, got status %q", got.AgentStatus)
	}
}

func TestSubmitTaskBriefDerivesTitleAndUsesGivenProject(t *testing.T) {
	s := newTestScheduler(t, Config{})
	p := mustCreateProject(t, s)

	card, err := s.SubmitTaskBrief(context.Background(), TaskBrief{
		ProjectID: p.ID,
		Text:      "Fix the flaky upload test\nDetails go here.",
	})
	if err != nil {
		t.Fatalf("submit task brief: %v", err)
	}
	if card.Title != "Fix the flaky upload test" {
		t.Fatalf("expected title derived from first line, got %q", card.Title)
	}
	if card.ProjectID != p.ID {
		t.Fatalf("expected card on given project, got %q", card.ProjectID)
	}
}

func TestSubmitTaskBriefFallsBackToFirstActiveProject(t *testing.T) {
	s := newTestScheduler(t, Config{})
	p := mustCreateProject(t, s)

	card, err := s.SubmitTaskBrief(context.Background(), TaskBrief{Text: "no project given"})
	if err != nil {
		t.Fatalf("submit task brief: %v", err)
	}
	if card.ProjectID != p.ID {
		t.Fatalf("expected fallback to the only active project, got %q", card.ProjectID)
	}
}

func TestSubmitTaskBriefErrorsWithNoActiveProject(t *testing.T) {
	s := newTestScheduler(t, Config{})
	if _, err := s.SubmitTaskBrief(context.Background(), TaskBrief{Text: "orphan brief"}); err == nil {
		t.Fatalf("expected error when no active project exists")
	}
}

func TestParseHeartbeatChecklist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "HEARTBEAT.md")
	content := "# Heartbeat\n\n" +
		"- [x] Daily digest (10pm)\n" +
		"- [ ] Morning briefing (9am)\n" +
		"- [x] Evening reflection (8pm)\n" +
		"- [ ] Deadline scan (every 2h)\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write heartbeat file: %v", err)
	}

	enabled, err := parseHeartbeatChecklist(path)
	if err != nil {
		t.Fatalf("parse checklist: %v", err)
	}

	cases := map[string]bool{
		"daily digest":       true,
		"morning briefing":   false,
		"evening reflection": true,
		"deadline scan":      false,
	}
	for match, want := range cases {
		if enabled[match] != want {
			t.Errorf("job %q: got enabled=%v, want %v", match, enabled[match], want)
		}
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"short title", "short title"},
		{"first line\nsecond line", "first line"},
		{"  padded  \nrest", "padded"},
	}
	for _, tt := range tests {
		if got := deriveTitle(tt.in); got != tt.want {
			t.Errorf("deriveTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := ""
	for i := 0; i < 100; i++ {
		long += "x"
	}
	if got := deriveTitle(long); len(got) != maxDerivedTitleLen {
		t.Errorf("expected title truncated to %d chars, got %d", maxDerivedTitleLen, len(got))
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	b := time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)
	c := time.Date(2026, 8, 1, 0, 1, 0, 0, time.UTC)

	if !sameDay(a, b) {
		t.Error("expected same calendar day")
	}
	if sameDay(a, c) {
		t.Error("expected different calendar day")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abcdefghij"); got != "abcdefgh" {
		t.Errorf("shortID long = %q, want 8-char prefix", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID short = %q, want unchanged", got)
	}
}
