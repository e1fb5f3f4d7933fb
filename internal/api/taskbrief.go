package api

import (
	"net/http"

	"github.com/twlines/maslow-sub003/internal/scheduler"
)

type submitTaskBriefRequest struct {
	ProjectID string `json:"projectId"`
	Text      string `json:"text"`
	Immediate bool   `json:"immediate"`
}

func (s *Server) handleSubmitTaskBrief(w http.ResponseWriter, r *http.Request) {
	var req submitTaskBriefRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	card, err := s.sched.SubmitTaskBrief(r.Context(), scheduler.TaskBrief{
		ProjectID: req.ProjectID,
		Text:      req.Text,
		Immediate: req.Immediate,
	})
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, card)
}
