package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/twlines/maslow-sub003/internal/store"
)

type createCorrectionRequest struct {
	Domain string `json:"domain"`
	Text   string `json:"text"`
}

func (s *Server) handleCreateCorrection(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	var req createCorrectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	c := &store.SteeringCorrection{ProjectID: projectID, Domain: req.Domain, Text: req.Text, Active: true}
	if err := s.store.CreateSteeringCorrection(c); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCorrections(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	corrections, err := s.store.ActiveSteeringCorrections(projectID)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, corrections)
}

func (s *Server) handleDeactivateCorrection(w http.ResponseWriter, r *http.Request) {
	corrID := mux.Vars(r)["corrId"]
	if err := s.store.DeactivateSteeringCorrection(corrID); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": corrID})
}
