// Package api implements the API/WebSocket surface (spec component G):
// a gorilla/mux REST router exposing components A-F plus a
// gorilla/websocket endpoint that forwards the broadcast hub to
// connected clients. Grounded on ODSapper-CLIAIMONITOR's internal/server
// package (handlers.go, server.go, hub.go, middleware.go), the pack's
// example of this exact REST+WS shape, adapted from its agent-monitor
// domain onto the kanban board.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/twlines/maslow-sub003/internal/kanban"
	"github.com/twlines/maslow-sub003/internal/orchestrator"
	"github.com/twlines/maslow-sub003/internal/store"
)

// envelope is the uniform response shape every handler writes:
// {ok:true,data:...} on success, {ok:false,error:...} on failure.
type envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{OK: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{OK: false, Error: msg})
}

// respondErrFor maps a domain error to the taxonomy in §7 of the
// expanded spec: ConflictState -> 409, ResourceBusy -> 429, NotFound ->
// 404, Validation -> 400, Storage and anything unrecognized -> 500.
func respondErrFor(w http.ResponseWriter, err error) {
	var illegal *kanban.IllegalTransition
	var conflict *store.ConflictError
	var notFound *store.NotFoundError
	var orchNotFound *orchestrator.NotFound
	var projectBusy *orchestrator.ProjectBusy
	var cardBusy *orchestrator.CardBusy
	var concLimit *orchestrator.ConcurrencyLimitReached

	switch {
	case errors.As(err, &illegal):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &conflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &orchNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &projectBusy):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &cardBusy):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &concLimit):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
