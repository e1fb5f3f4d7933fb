package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/twlines/maslow-sub003/internal/kanban"
)

type createProjectRequest struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	Color               string `json:"color"`
	AgentTimeoutMinutes int    `json:"agentTimeoutMinutes"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	p := &kanban.Project{
		Name:                req.Name,
		Description:         req.Description,
		Status:              kanban.ProjectActive,
		Color:               req.Color,
		AgentTimeoutMinutes: req.AgentTimeoutMinutes,
	}
	if err := s.store.CreateProject(p); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.store.GetProject(id)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
