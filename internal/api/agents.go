package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/twlines/maslow-sub003/internal/kanban"
)

type spawnAgentRequest struct {
	ProjectID string           `json:"projectId"`
	CardID    string           `json:"cardId"`
	Agent     kanban.AgentKind `json:"agent"`
}

// handleSpawnAgent never reads a cwd from the request: decodeJSON
// rejects unknown fields, so a client-supplied "cwd" fails closed as a
// 400 rather than silently being accepted and ignored. The worktree
// path is always derived server-side from the configured workspace.
func (s *Server) handleSpawnAgent(w http.ResponseWriter, r *http.Request) {
	var req spawnAgentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ProjectID == "" || req.CardID == "" {
		respondError(w, http.StatusBadRequest, "projectId and cardId are required")
		return
	}
	agent := req.Agent
	if agent == "" {
		agent = kanban.AgentClaude
	}
	proc, err := s.orch.SpawnAgent(r.Context(), req.CardID, req.ProjectID, agent)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, proc.Snapshot())
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.orch.GetRunningAgents())
}

func (s *Server) handleStopAgent(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	if err := s.orch.StopAgent(cid); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"cardId": cid})
}

func (s *Server) handleAgentLogs(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	limit := queryInt(r, "limit", 0, 0, maxPage)
	logs, err := s.orch.GetAgentLogs(cid, limit)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}
