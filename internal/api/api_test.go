package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/twlines/maslow-sub003/internal/hub"
	"github.com/twlines/maslow-sub003/internal/kanban"
	"github.com/twlines/maslow-sub003/internal/orchestrator"
	"github.com/twlines/maslow-sub003/internal/scheduler"
	"github.com/twlines/maslow-sub003/internal/steering"
	"github.com/twlines/maslow-sub003/internal/store"
)

func newTestServer(t *testing.T) *Server {
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

	orch := orchestrator.New(orchestrator.Config{
		RepoRoot:    dir,
		WorktreeDir: ".worktrees",
		MainBranch:  "main",
	}, queue, st, h, engine, zerolog.Nop())

	sched := scheduler.New(scheduler.Config{}, queue, orch, st, h, zerolog.Nop())

	return New(Config{WorkspacePath: dir}, queue, st, orch, sched, h, zerolog.Nop())
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestCreateAndListProjects(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	body := bytes.NewBufferString(`{"name":"demo"}`)
	resp, err := http.Post(ts.URL+"/projects", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if !env.OK {
		t.Fatalf("expected ok envelope, got %+v", env)
	}

	listResp, err := http.Get(ts.URL + "/projects")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer listResp.Body.Close()
	listEnv := decodeEnvelope(t, listResp)
	projects, ok := listEnv.Data.([]any)
	if !ok || len(projects) != 1 {
		t.Fatalf("expected one project listed, got %+v", listEnv.Data)
	}
}

func TestCreateProjectRejectsMissingName(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/projects", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.OK {
		t.Fatalf("expected error envelope, got %+v", env)
	}
}

func TestCreateCardAndSubmitTaskBrief(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	projResp, err := http.Post(ts.URL+"/projects", "application/json", bytes.NewBufferString(`{"name":"demo"}`))
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	defer projResp.Body.Close()
	projEnv := decodeEnvelope(t, projResp)
	proj, ok := projEnv.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected project payload %+v", projEnv.Data)
	}
	projectID := proj["ID"].(string)

	cardResp, err := http.Post(ts.URL+"/projects/"+projectID+"/cards", "application/json", bytes.NewBufferString(`{"title":"write docs"}`))
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	defer cardResp.Body.Close()
	if cardResp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", cardResp.StatusCode)
	}

	briefResp, err := http.Post(ts.URL+"/heartbeat/submit", "application/json",
		bytes.NewBufferString(`{"projectId":"`+projectID+`","text":"fix the flaky test"}`))
	if err != nil {
		t.Fatalf("submit brief: %v", err)
	}
	defer briefResp.Body.Close()
	if briefResp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", briefResp.StatusCode)
	}
	briefEnv := decodeEnvelope(t, briefResp)
	card := briefEnv.Data.(map[string]any)
	if card["Title"] != "fix the flaky test" {
		t.Fatalf("expected derived title, got %+v", card["Title"])
	}
}

func TestSpawnAgentRejectsUnknownCwdField(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/agents/spawn", "application/json",
		bytes.NewBufferString(`{"projectId":"p","cardId":"c","cwd":"/etc"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown cwd field, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestQueryIntClamping(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/search?limit=99999", nil)
	if got := queryInt(req, "limit", defaultPage, minPage, maxPage); got != maxPage {
		t.Fatalf("expected clamp to %d, got %d", maxPage, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/search?days=0", nil)
	if got := queryInt(req, "days", defaultDays, minDays, maxDays); got != minDays {
		t.Fatalf("expected clamp to %d, got %d", minDays, got)
	}
}
