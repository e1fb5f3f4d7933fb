package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/twlines/maslow-sub003/internal/store"
)

type createDecisionRequest struct {
	Title        string `json:"title"`
	Reasoning    string `json:"reasoning"`
	Alternatives string `json:"alternatives"`
	Tradeoffs    string `json:"tradeoffs"`
}

func (s *Server) handleCreateDecision(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	var req createDecisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	d := &store.Decision{
		ProjectID:    projectID,
		Title:        req.Title,
		Reasoning:    req.Reasoning,
		Alternatives: req.Alternatives,
		Tradeoffs:    req.Tradeoffs,
	}
	if err := s.store.CreateDecision(d); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	decisions, err := s.store.ListDecisions(projectID)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, decisions)
}

type reviseDecisionRequest struct {
	Reasoning string `json:"reasoning"`
}

func (s *Server) handleReviseDecision(w http.ResponseWriter, r *http.Request) {
	decID := mux.Vars(r)["decId"]
	var req reviseDecisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.store.ReviseDecision(decID, req.Reasoning); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": decID})
}
