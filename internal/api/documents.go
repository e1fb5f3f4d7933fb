package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/twlines/maslow-sub003/internal/store"
)

type createDocumentRequest struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	var req createDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Type == "" {
		respondError(w, http.StatusBadRequest, "type is required")
		return
	}
	doc := &store.ProjectDocument{ProjectID: projectID, Type: req.Type, Title: req.Title, Content: req.Content}
	if err := s.store.CreateDocument(doc); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	docType := r.URL.Query().Get("type")
	if docType == "" {
		respondError(w, http.StatusBadRequest, "type query parameter is required")
		return
	}
	docs, err := s.store.ListDocumentsByType(projectID, docType)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

type updateDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["docId"]
	doc, err := s.store.GetDocument(docID)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	var req updateDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	doc.Title = req.Title
	doc.Content = req.Content
	if err := s.store.UpdateDocument(doc); err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}
