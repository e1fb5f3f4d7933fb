package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}
	limit, _ := pagingParams(r)
	results, err := s.store.SearchFullText(query, limit)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleCardAudit(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	entries, err := s.store.ListAuditForEntity("card", cid)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleTokenUsage(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	total, err := s.store.TotalCostForProject(projectID)
	if err != nil {
		respondErrFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"projectId": projectID, "totalCostUSD": total})
}
