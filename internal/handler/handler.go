// Package handler exposes the session and settlement services over a thin
// JSON HTTP API. Handlers only translate transport to service calls; all
// business-rule enforcement lives in the services.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"poker-ledger/internal/repository"
	"poker-ledger/internal/service"
)

// Handler holds the services behind the HTTP API.
type Handler struct {
	sessions    *service.SessionService
	settlements *service.SettlementService
	listLimit   int
}

// New creates a new Handler instance.
func New(sessions *service.SessionService, settlements *service.SettlementService, listLimit int) *Handler {
	return &Handler{
		sessions:    sessions,
		settlements: settlements,
		listLimit:   listLimit,
	}
}

// Routes registers all endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("GET /sessions", h.listSessions)
	mux.HandleFunc("GET /sessions/{id}", h.getSession)
	mux.HandleFunc("POST /sessions/{id}/complete", h.completeSession)
	mux.HandleFunc("POST /sessions/{id}/cancel", h.cancelSession)
	mux.HandleFunc("PUT /sessions/{id}/cost", h.setSessionCost)
	mux.HandleFunc("POST /sessions/{id}/join", h.join)
	mux.HandleFunc("GET /sessions/{id}/players/{playerID}/required-cashout", h.previewRequiredCashOut)

	mux.HandleFunc("POST /player-sessions/{id}/add-chips", h.addChips)
	mux.HandleFunc("POST /player-sessions/{id}/leave", h.leave)
	mux.HandleFunc("POST /player-sessions/{id}/rejoin", h.rejoin)
	mux.HandleFunc("GET /player-sessions/{id}/transactions", h.getLedger)

	mux.HandleFunc("POST /sessions/{id}/settlement/calculate", h.calculateSettlement)
	mux.HandleFunc("PUT /sessions/{id}/settlement", h.saveSettlement)
	mux.HandleFunc("GET /sessions/{id}/settlement", h.getSettlement)

	return mux
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

type errorResponse struct {
	Error          string `json:"error"`
	RequiredAmount *int64 `json:"required_amount,omitempty"`
}

// writeError maps service errors to HTTP statuses. A balance violation
// carries the system-suggested amount so the caller can retry with it.
func writeError(w http.ResponseWriter, err error) {
	var violation *service.BalanceViolationError
	if errors.As(err, &violation) {
		required := int64(violation.Required)
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:          violation.Error(),
			RequiredAmount: &required,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidDiscount),
		errors.Is(err, service.ErrBelowMinimumBuyIn):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyJoined),
		errors.Is(err, service.ErrPlayerNotActive),
		errors.Is(err, service.ErrPlayerAlreadyActive),
		errors.Is(err, service.ErrSessionNotOngoing),
		errors.Is(err, service.ErrSessionNotComplete),
		errors.Is(err, service.ErrPlayersStillActive):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrPlayerSessionNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Internal error")
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
