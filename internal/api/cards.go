package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/twlines/maslow-sub003/internal/kanban"
)

type createCardRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
	Priority    int      `json:"priority"`
	Files       []string `json:"files"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	var req createCardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	card := &kanban.Card{
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Labels:      req.Labels,
		Priority:    req.Priority,
		Files:       req.Files,
	}
	if err := s.queue.CreateCard(card); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, card)
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	column := kanban.Column(r.URL.Query().Get("column"))
	if column == "" {
		column = kanban.ColumnBacklog
	}
	limit, offset := pagingParams(r)
	cards, err := s.store.ListCardsByColumn(projectID, column, limit, offset)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cards)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	card, err := s.queue.GetCard(cid)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

type updateCardRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Labels      *[]string `json:"labels"`
	Priority    *int      `json:"priority"`
	Files       *[]string `json:"files"`
}

// handleUpdateCard edits a card's descriptive metadata (title,
// description, labels, priority, file scope). State-machine
// transitions go through the dedicated skip/context endpoints and the
// scheduler, never through this generic PUT.
func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	var req updateCardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	card, err := s.store.GetCard(cid)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	if req.Title != nil {
		card.Title = *req.Title
	}
	if req.Description != nil {
		card.Description = *req.Description
	}
	if req.Labels != nil {
		card.Labels = *req.Labels
	}
	if req.Priority != nil {
		card.Priority = *req.Priority
	}
	if req.Files != nil {
		card.Files = *req.Files
	}
	if err := s.store.UpdateCard(card); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

func (s *Server) handleSkipCard(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	card, err := s.queue.SkipToBack(cid)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

type saveContextRequest struct {
	Snapshot  string `json:"snapshot"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleSaveContext(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	var req saveContextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	card, err := s.queue.SaveContext(cid, req.Snapshot, req.SessionID)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

type moveCardRequest struct {
	Column   kanban.Column `json:"column"`
	Position int           `json:"position"`
}

// handleMoveCard relocates a card within or across columns, enforcing
// the data model's "leaving in_progress clears the assigned agent"
// invariant via kanban.Queue.MoveCard.
func (s *Server) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	var req moveCardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Column == "" {
		respondError(w, http.StatusBadRequest, "column is required")
		return
	}
	card, err := s.queue.MoveCard(cid, req.Column, req.Position)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

type assignAgentRequest struct {
	Agent kanban.AgentKind `json:"agent"`
}

// handleAssignAgent pre-registers an agent on a backlog card ahead of
// spawn, the optional fast-path named in spec §4.C.
func (s *Server) handleAssignAgent(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	var req assignAgentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Agent == "" {
		respondError(w, http.StatusBadRequest, "agent is required")
		return
	}
	card, err := s.queue.AssignAgent(cid, req.Agent)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}
