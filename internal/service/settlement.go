package service

import (
	"context"

	"poker-ledger/internal/engine"
	"poker-ledger/internal/model"
	"poker-ledger/internal/repository"
)

// SettlementResult is a computed settlement plus its advisory flags.
type SettlementResult struct {
	Lines []model.SettlementLine
	// Imbalanced warns that the ledger's profits and losses do not cancel
	// out. The settlement is still computed; a human decides what to do.
	Imbalanced bool
	Imbalance  model.Money
}

// SettlementService computes, saves and retrieves session settlements.
// Settlement is all-or-nothing per session: every player must have left the
// table and the session must be completed before a settlement runs.
type SettlementService struct {
	sessionRepo    *repository.SessionRepository
	playerRepo     *repository.PlayerSessionRepository
	txRepo         *repository.TransactionRepository
	settlementRepo *repository.SettlementRepository
}

// NewSettlementService creates a new SettlementService instance.
func NewSettlementService(
	sessionRepo *repository.SessionRepository,
	playerRepo *repository.PlayerSessionRepository,
	txRepo *repository.TransactionRepository,
	settlementRepo *repository.SettlementRepository,
) *SettlementService {
	return &SettlementService{
		sessionRepo:    sessionRepo,
		playerRepo:     playerRepo,
		txRepo:         txRepo,
		settlementRepo: settlementRepo,
	}
}

// Calculate runs the settlement for a completed session. sessionCost and
// discountPercent override the values stored on the session when given
// (cost < 0 or discountPercent < 0 mean "use the stored value").
func (s *SettlementService) Calculate(ctx context.Context, sessionID int64, sessionCost model.Money, discountPercent int) (*SettlementResult, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionCompleted {
		return nil, ErrSessionNotComplete
	}

	players, err := s.playerRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, ps := range players {
		if ps.Status == model.StatusActive {
			return nil, ErrPlayersStillActive
		}
	}

	if sessionCost < 0 {
		sessionCost = 0
		if session.SessionCost != nil {
			sessionCost = *session.SessionCost
		}
	}
	if discountPercent < 0 {
		discountPercent = session.DiscountPercent
	}
	if discountPercent > 100 {
		return nil, ErrInvalidDiscount
	}

	ledger, err := s.txRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	results := make([]engine.PlayerResult, 0, len(players))
	for _, ps := range players {
		if !ps.Settled() {
			continue
		}
		results = append(results, engine.PlayerResult{
			PlayerID:   ps.PlayerID,
			ProfitLoss: engine.ProfitLoss(ps, ledger[ps.ID]),
		})
	}

	settled := engine.Settle(results, sessionCost, discountPercent)
	return &SettlementResult{
		Lines:      settled.Lines,
		Imbalanced: settled.Imbalanced,
		Imbalance:  settled.Imbalance,
	}, nil
}

// Save persists the settlement lines for a session, replacing any prior
// saved record. No history is retained.
func (s *SettlementService) Save(ctx context.Context, sessionID int64, lines []model.SettlementLine) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != model.SessionCompleted {
		return ErrSessionNotComplete
	}
	return s.settlementRepo.Replace(ctx, sessionID, lines)
}

// Get retrieves the saved settlement for a session. A nil slice means no
// settlement was ever saved.
func (s *SettlementService) Get(ctx context.Context, sessionID int64) ([]model.SettlementLine, error) {
	if _, err := s.sessionRepo.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.settlementRepo.GetBySession(ctx, sessionID)
}
