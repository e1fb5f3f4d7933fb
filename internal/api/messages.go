package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/twlines/maslow-sub003/internal/store"
)

func (s *Server) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	conv, err := s.store.OpenConversation(projectID)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleCloseConversation(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["convId"]
	if err := s.store.CloseConversation(convID); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": convID})
}

type appendMessageRequest struct {
	ProjectID string         `json:"projectId"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["convId"]
	var req appendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Role == "" || req.Content == "" {
		respondError(w, http.StatusBadRequest, "role and content are required")
		return
	}
	m := &store.Message{
		ProjectID:      req.ProjectID,
		ConversationID: convID,
		Role:           req.Role,
		Content:        req.Content,
		Metadata:       req.Metadata,
	}
	if err := s.store.AppendMessage(m); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["convId"]
	messages, err := s.store.ListMessages(convID)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}
