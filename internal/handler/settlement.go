package handler

import (
	"net/http"

	"poker-ledger/internal/model"
)

type settlementLinePayload struct {
	PlayerID           int64 `json:"player_id"`
	OriginalProfitLoss int64 `json:"original_profit_loss"`
	DiscountAmount     int64 `json:"discount_amount"`
	AdjustedProfitLoss int64 `json:"adjusted_profit_loss"`
	SessionCostShare   int64 `json:"session_cost_share"`
	FinalAmount        int64 `json:"final_amount"`
}

func toLinePayloads(lines []model.SettlementLine) []settlementLinePayload {
	out := make([]settlementLinePayload, 0, len(lines))
	for _, line := range lines {
		out = append(out, settlementLinePayload{
			PlayerID:           line.PlayerID,
			OriginalProfitLoss: int64(line.OriginalProfitLoss),
			DiscountAmount:     int64(line.DiscountAmount),
			AdjustedProfitLoss: int64(line.AdjustedProfitLoss),
			SessionCostShare:   int64(line.SessionCostShare),
			FinalAmount:        int64(line.FinalAmount),
		})
	}
	return out
}

func fromLinePayloads(payloads []settlementLinePayload) []model.SettlementLine {
	out := make([]model.SettlementLine, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, model.SettlementLine{
			PlayerID:           p.PlayerID,
			OriginalProfitLoss: model.Money(p.OriginalProfitLoss),
			DiscountAmount:     model.Money(p.DiscountAmount),
			AdjustedProfitLoss: model.Money(p.AdjustedProfitLoss),
			SessionCostShare:   model.Money(p.SessionCostShare),
			FinalAmount:        model.Money(p.FinalAmount),
		})
	}
	return out
}

func (h *Handler) calculateSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid session id")
		return
	}

	// Absent fields fall back to the values stored on the session.
	req := struct {
		SessionCost     *int64 `json:"session_cost"`
		DiscountPercent *int   `json:"discount_percent"`
	}{}
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
	}

	cost := model.Money(-1)
	if req.SessionCost != nil {
		if *req.SessionCost < 0 {
			badRequest(w, "session cost must not be negative")
			return
		}
		cost = model.Money(*req.SessionCost)
	}
	discount := -1
	if req.DiscountPercent != nil {
		if *req.DiscountPercent < 0 {
			badRequest(w, "discount percent must not be negative")
			return
		}
		discount = *req.DiscountPercent
	}

	result, err := h.settlements.Calculate(r.Context(), id, cost, discount)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := struct {
		Lines      []settlementLinePayload `json:"lines"`
		Imbalanced bool                    `json:"imbalanced,omitempty"`
		Imbalance  int64                   `json:"imbalance,omitempty"`
	}{
		Lines:      toLinePayloads(result.Lines),
		Imbalanced: result.Imbalanced,
	}
	if result.Imbalanced {
		resp.Imbalance = int64(result.Imbalance)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) saveSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid session id")
		return
	}

	var req struct {
		Lines []settlementLinePayload `json:"lines"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := h.settlements.Save(r.Context(), id, fromLinePayloads(req.Lines)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Saved bool `json:"saved"`
	}{true})
}

func (h *Handler) getSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid session id")
		return
	}

	lines, err := h.settlements.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if lines == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no settlement saved for session"})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Lines []settlementLinePayload `json:"lines"`
	}{toLinePayloads(lines)})
}
