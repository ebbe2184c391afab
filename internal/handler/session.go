package handler

import (
	"net/http"
	"time"

	"poker-ledger/internal/model"
)

type sessionResponse struct {
	ID              int64      `json:"id"`
	Date            time.Time  `json:"date"`
	Location        string     `json:"location"`
	MinBuyIn        int64      `json:"min_buy_in"`
	Status          string     `json:"status"`
	SessionCost     *int64     `json:"session_cost,omitempty"`
	DiscountPercent int        `json:"discount_percent"`
}

func toSessionResponse(s *model.Session) sessionResponse {
	resp := sessionResponse{
		ID:              s.ID,
		Date:            s.Date,
		Location:        s.Location,
		MinBuyIn:        int64(s.MinBuyIn),
		Status:          s.Status,
		DiscountPercent: s.DiscountPercent,
	}
	if s.SessionCost != nil {
		cost := int64(*s.SessionCost)
		resp.SessionCost = &cost
	}
	return resp
}

type playerSessionResponse struct {
	ID           int64      `json:"id"`
	SessionID    int64      `json:"session_id"`
	PlayerID     int64      `json:"player_id"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	InitialBuyIn int64      `json:"initial_buy_in"`
	CurrentStack int64      `json:"current_stack"`
	Status       string     `json:"status"`
}

func toPlayerSessionResponse(ps *model.PlayerSession) playerSessionResponse {
	return playerSessionResponse{
		ID:           ps.ID,
		SessionID:    ps.SessionID,
		PlayerID:     ps.PlayerID,
		JoinedAt:     ps.JoinedAt,
		LeftAt:       ps.LeftAt,
		InitialBuyIn: int64(ps.InitialBuyIn),
		CurrentStack: int64(ps.CurrentStack),
		Status:       ps.Status,
	}
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date     *time.Time `json:"date"`
		Location string     `json:"location"`
		MinBuyIn int64      `json:"min_buy_in"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	date := time.Time{}
	if req.Date != nil {
		date = *req.Date
	}

	session, err := h.sessions.CreateSession(r.Context(), date, req.Location, model.Money(req.MinBuyIn))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListSessions(r.Context(), h.listLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, toSessionResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid session id")
		return
	}

	session, players, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	playerResp := make([]playerSessionResponse, 0, len(players))
	for _, ps := range players {
		playerResp = append(playerResp, toPlayerSessionResponse(ps))
	}

	writeJSON(w, http.StatusOK, struct {
		Session sessionResponse         `json:"session"`
		Players []playerSessionResponse `json:"players"`
	}{toSessionResponse(session), playerResp})
}

func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid session id")
		return
	}

	session, err := h.sessions.CompleteSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) cancelSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid session id")
		return
	}

	session, err := h.sessions.CancelSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) setSessionCost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid session id")
		return
	}

	var req struct {
		SessionCost     int64 `json:"session_cost"`
		DiscountPercent int   `json:"discount_percent"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	session, err := h.sessions.SetSessionCost(r.Context(), id, model.Money(req.SessionCost), req.DiscountPercent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid session id")
		return
	}

	var req struct {
		PlayerID int64 `json:"player_id"`
		BuyIn    int64 `json:"buy_in"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	ps, err := h.sessions.Join(r.Context(), id, req.PlayerID, model.Money(req.BuyIn))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlayerSessionResponse(ps))
}

func (h *Handler) previewRequiredCashOut(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid session id")
		return
	}
	playerID, err := pathID(r, "playerID")
	if err != nil {
		badRequest(w, "invalid player id")
		return
	}

	preview, err := h.sessions.PreviewRequiredCashOut(r.Context(), sessionID, playerID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := struct {
		IsLastPlayer    bool   `json:"is_last_player"`
		RequiredCashOut *int64 `json:"required_cash_out,omitempty"`
		Overdrawn       bool   `json:"overdrawn,omitempty"`
	}{
		IsLastPlayer: preview.IsLastPlayer,
		Overdrawn:    preview.Overdrawn,
	}
	if preview.IsLastPlayer {
		required := int64(preview.RequiredCashOut)
		resp.RequiredCashOut = &required
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) addChips(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid player session id")
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	ps, err := h.sessions.AddChips(r.Context(), id, model.Money(req.Amount))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayerSessionResponse(ps))
}

func (h *Handler) leave(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid player session id")
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	ps, summary, err := h.sessions.Leave(r.Context(), id, model.Money(req.Amount))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Player     playerSessionResponse `json:"player"`
		TotalBuyIn int64                 `json:"total_buy_in"`
		CashedOut  int64                 `json:"cashed_out"`
		ProfitLoss int64                 `json:"profit_loss"`
	}{
		Player:     toPlayerSessionResponse(ps),
		TotalBuyIn: int64(summary.TotalBuyIn),
		CashedOut:  int64(summary.CashedOut),
		ProfitLoss: int64(summary.ProfitLoss),
	})
}

func (h *Handler) rejoin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid player session id")
		return
	}

	var req struct {
		AdditionalBuyIn int64 `json:"additional_buy_in"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	ps, err := h.sessions.Rejoin(r.Context(), id, model.Money(req.AdditionalBuyIn))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayerSessionResponse(ps))
}

func (h *Handler) getLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid player session id")
		return
	}

	txs, err := h.sessions.GetLedger(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	type txResponse struct {
		ID        int64     `json:"id"`
		Type      string    `json:"type"`
		Amount    int64     `json:"amount"`
		Note      *string   `json:"note,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
	resp := make([]txResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, txResponse{
			ID:        tx.ID,
			Type:      tx.Type,
			Amount:    int64(tx.Amount),
			Note:      tx.Note,
			CreatedAt: tx.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
