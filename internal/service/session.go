// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"poker-ledger/internal/engine"
	"poker-ledger/internal/model"
	"poker-ledger/internal/pkg/lock"
	"poker-ledger/internal/repository"
)

// TxBeginner starts database transactions. Satisfied by pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Validation and state errors for session operations.
var (
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrInvalidDiscount     = errors.New("invalid discount: must be between 0 and 100")
	ErrBelowMinimumBuyIn   = errors.New("buy-in below session minimum")
	ErrAlreadyJoined       = errors.New("player already joined session")
	ErrPlayerNotActive     = errors.New("player is not active in session")
	ErrPlayerAlreadyActive = errors.New("player is already active in session")
	ErrSessionNotOngoing   = errors.New("session is not ongoing")
	ErrSessionNotComplete  = errors.New("session is not completed")
	ErrPlayersStillActive  = errors.New("players are still active in session")
)

// BalanceViolationError rejects a leave whose amount would break chip
// conservation for the last active player. It carries the computed required
// amount so the caller can retry with it.
type BalanceViolationError struct {
	Required model.Money
}

func (e *BalanceViolationError) Error() string {
	return fmt.Sprintf("cash-out breaks chip balance: required amount is %d", e.Required)
}

// ProfitLossSummary reports a player's net result at cash-out time.
type ProfitLossSummary struct {
	TotalBuyIn model.Money
	CashedOut  model.Money
	ProfitLoss model.Money
}

// CashOutPreview is the advisory balance hint for a player about to leave.
// RequiredCashOut is only enforced when IsLastPlayer is true.
type CashOutPreview struct {
	IsLastPlayer    bool
	RequiredCashOut model.Money
	// Overdrawn warns that cashed-out totals already exceed buy-ins; the
	// required amount was clamped to zero.
	Overdrawn bool
}

// SessionService handles the session lifecycle and the per-player state
// machine (join, add chips, leave, rejoin). Every stack mutation and its
// matching ledger transaction commit in one database transaction, so the
// denormalized stack never diverges from the ledger — not even when the
// second write fails.
type SessionService struct {
	db          TxBeginner
	sessionRepo *repository.SessionRepository
	playerRepo  *repository.PlayerSessionRepository
	txRepo      *repository.TransactionRepository
	sessionLock *lock.SessionLock

	defaultMinBuyIn model.Money
}

// NewSessionService creates a new SessionService instance.
func NewSessionService(
	db TxBeginner,
	sessionRepo *repository.SessionRepository,
	playerRepo *repository.PlayerSessionRepository,
	txRepo *repository.TransactionRepository,
	sessionLock *lock.SessionLock,
	defaultMinBuyIn model.Money,
) *SessionService {
	return &SessionService{
		db:              db,
		sessionRepo:     sessionRepo,
		playerRepo:      playerRepo,
		txRepo:          txRepo,
		sessionLock:     sessionLock,
		defaultMinBuyIn: defaultMinBuyIn,
	}
}

// CreateSession creates a new ongoing session. A non-positive minBuyIn falls
// back to the configured default.
func (s *SessionService) CreateSession(ctx context.Context, date time.Time, location string, minBuyIn model.Money) (*model.Session, error) {
	if minBuyIn <= 0 {
		minBuyIn = s.defaultMinBuyIn
	}
	if date.IsZero() {
		date = time.Now()
	}
	return s.sessionRepo.Create(ctx, date, location, minBuyIn)
}

// GetSession retrieves a session together with its player sessions.
func (s *SessionService) GetSession(ctx context.Context, sessionID int64) (*model.Session, []*model.PlayerSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	players, err := s.playerRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, players, nil
}

// ListSessions retrieves recent sessions.
func (s *SessionService) ListSessions(ctx context.Context, limit int) ([]*model.Session, error) {
	return s.sessionRepo.List(ctx, limit)
}

// SetSessionCost records the shared session cost and discount percentage.
// Both may be set before completion, for settlement previews.
func (s *SessionService) SetSessionCost(ctx context.Context, sessionID int64, cost model.Money, discountPercent int) (*model.Session, error) {
	if cost < 0 {
		return nil, ErrInvalidAmount
	}
	if discountPercent < 0 || discountPercent > 100 {
		return nil, ErrInvalidDiscount
	}
	return s.sessionRepo.SetCost(ctx, sessionID, cost, discountPercent)
}

// CompleteSession moves an ongoing session to completed. Every player must
// have left the table first.
func (s *SessionService) CompleteSession(ctx context.Context, sessionID int64) (*model.Session, error) {
	var completed *model.Session
	err := s.sessionLock.WithLock(sessionID, func() error {
		session, err := s.sessionRepo.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != model.SessionOngoing {
			return ErrSessionNotOngoing
		}

		players, err := s.playerRepo.ListBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, ps := range players {
			if ps.Status == model.StatusActive {
				return ErrPlayersStillActive
			}
		}

		completed, err = s.sessionRepo.UpdateStatus(ctx, sessionID, model.SessionCompleted)
		return err
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// CancelSession moves an ongoing session to cancelled.
func (s *SessionService) CancelSession(ctx context.Context, sessionID int64) (*model.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionOngoing {
		return nil, ErrSessionNotOngoing
	}
	return s.sessionRepo.UpdateStatus(ctx, sessionID, model.SessionCancelled)
}

// Join adds a player to an ongoing session with an initial buy-in. The
// buy-in must meet the session minimum, and a player can hold at most one
// player session per session.
func (s *SessionService) Join(ctx context.Context, sessionID, playerID int64, buyIn model.Money) (*model.PlayerSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionOngoing {
		return nil, ErrSessionNotOngoing
	}
	if buyIn < session.MinBuyIn {
		return nil, ErrBelowMinimumBuyIn
	}

	var ps *model.PlayerSession
	err = s.sessionLock.WithLock(sessionID, func() error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin join: %w", err)
		}
		defer tx.Rollback(ctx)

		ps, err = s.playerRepo.WithTx(tx).Create(ctx, sessionID, playerID, buyIn)
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyJoined) {
				return ErrAlreadyJoined
			}
			return err
		}

		_, err = s.txRepo.WithTx(tx).Create(ctx, ps.ID, model.TxTypeBuyIn, buyIn, nil)
		if err != nil {
			return fmt.Errorf("failed to record buy-in: %w", err)
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// AddChips records a rebuy for an active player: the stack grows by amount
// and a rebuy transaction is appended.
func (s *SessionService) AddChips(ctx context.Context, playerSessionID int64, amount model.Money) (*model.PlayerSession, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	ps, err := s.playerRepo.GetByID(ctx, playerSessionID)
	if err != nil {
		return nil, err
	}

	var updated *model.PlayerSession
	err = s.sessionLock.WithLock(ps.SessionID, func() error {
		// Re-read under the lock: the status may have changed.
		current, err := s.playerRepo.GetByID(ctx, playerSessionID)
		if err != nil {
			return err
		}
		if current.Status != model.StatusActive {
			return ErrPlayerNotActive
		}

		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin rebuy: %w", err)
		}
		defer tx.Rollback(ctx)

		updated, err = s.playerRepo.WithTx(tx).AddToStack(ctx, playerSessionID, amount)
		if err != nil {
			return err
		}

		_, err = s.txRepo.WithTx(tx).Create(ctx, playerSessionID, model.TxTypeRebuy, amount, nil)
		if err != nil {
			return fmt.Errorf("failed to record rebuy: %w", err)
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Leave cashes a player out with the counted chip amount. When the player is
// the sole remaining active player, the amount must match the computed
// required cash-out within the balance tolerance or the operation is
// rejected with a BalanceViolationError carrying the required amount — the
// engine never silently substitutes its own value for the caller's.
//
// The read-check-write sequence runs under the session lock so that two
// concurrent leaves cannot both observe themselves as the last player, and
// the stack overwrite commits together with its cash-out ledger row.
func (s *SessionService) Leave(ctx context.Context, playerSessionID int64, leaveAmount model.Money) (*model.PlayerSession, *ProfitLossSummary, error) {
	if leaveAmount < 0 {
		return nil, nil, ErrInvalidAmount
	}

	ps, err := s.playerRepo.GetByID(ctx, playerSessionID)
	if err != nil {
		return nil, nil, err
	}

	var updated *model.PlayerSession
	var summary *ProfitLossSummary
	err = s.sessionLock.WithLock(ps.SessionID, func() error {
		current, err := s.playerRepo.GetByID(ctx, playerSessionID)
		if err != nil {
			return err
		}
		if current.Status != model.StatusActive {
			return ErrPlayerNotActive
		}

		players, err := s.playerRepo.ListBySession(ctx, current.SessionID)
		if err != nil {
			return err
		}
		ledger, err := s.txRepo.ListBySession(ctx, current.SessionID)
		if err != nil {
			return err
		}

		report := engine.CheckBalance(players, ledger)
		if report.LastPlayer() && !engine.WithinTolerance(leaveAmount, report.RequiredCashOut) {
			return &BalanceViolationError{Required: report.RequiredCashOut}
		}

		status := model.StatusCashedOut
		if leaveAmount == 0 {
			status = model.StatusBusted
		}

		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin cash-out: %w", err)
		}
		defer tx.Rollback(ctx)

		updated, err = s.playerRepo.WithTx(tx).CashOut(ctx, playerSessionID, leaveAmount, status)
		if err != nil {
			return err
		}

		_, err = s.txRepo.WithTx(tx).Create(ctx, playerSessionID, model.TxTypeCashOut, leaveAmount, nil)
		if err != nil {
			return fmt.Errorf("failed to record cash-out: %w", err)
		}

		totalBuyIn, found, err := s.txRepo.WithTx(tx).SumBuyIns(ctx, playerSessionID)
		if err != nil {
			return err
		}
		if !found {
			totalBuyIn = current.InitialBuyIn
		}
		summary = &ProfitLossSummary{
			TotalBuyIn: totalBuyIn,
			CashedOut:  leaveAmount,
			ProfitLoss: leaveAmount - totalBuyIn,
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, summary, nil
}

// Rejoin returns a cashed-out or busted player to the table. The prior stack
// carries forward as the new starting stack; a positive additionalBuyIn is
// added on top and recorded as a rebuy.
func (s *SessionService) Rejoin(ctx context.Context, playerSessionID int64, additionalBuyIn model.Money) (*model.PlayerSession, error) {
	if additionalBuyIn < 0 {
		return nil, ErrInvalidAmount
	}

	ps, err := s.playerRepo.GetByID(ctx, playerSessionID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByID(ctx, ps.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionOngoing {
		return nil, ErrSessionNotOngoing
	}

	var updated *model.PlayerSession
	err = s.sessionLock.WithLock(ps.SessionID, func() error {
		current, err := s.playerRepo.GetByID(ctx, playerSessionID)
		if err != nil {
			return err
		}
		if !current.Settled() {
			return ErrPlayerAlreadyActive
		}

		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin rejoin: %w", err)
		}
		defer tx.Rollback(ctx)

		updated, err = s.playerRepo.WithTx(tx).Reactivate(ctx, playerSessionID, additionalBuyIn)
		if err != nil {
			return err
		}

		if additionalBuyIn > 0 {
			_, err = s.txRepo.WithTx(tx).Create(ctx, playerSessionID, model.TxTypeRebuy, additionalBuyIn, nil)
			if err != nil {
				return fmt.Errorf("failed to record rejoin rebuy: %w", err)
			}
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PreviewRequiredCashOut computes the advisory cash-out hint for a player.
// It always returns: when the player is not the last active one the amount
// is advisory only.
func (s *SessionService) PreviewRequiredCashOut(ctx context.Context, sessionID, playerID int64) (*CashOutPreview, error) {
	ps, err := s.playerRepo.GetBySessionAndPlayer(ctx, sessionID, playerID)
	if err != nil {
		return nil, err
	}

	players, err := s.playerRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.txRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	report := engine.CheckBalance(players, ledger)
	return &CashOutPreview{
		IsLastPlayer:    report.LastPlayer() && ps.Status == model.StatusActive,
		RequiredCashOut: report.RequiredCashOut,
		Overdrawn:       report.Overdrawn,
	}, nil
}

// GetLedger retrieves a player session's transaction history.
func (s *SessionService) GetLedger(ctx context.Context, playerSessionID int64) ([]model.Transaction, error) {
	if _, err := s.playerRepo.GetByID(ctx, playerSessionID); err != nil {
		return nil, err
	}
	return s.txRepo.ListByPlayerSession(ctx, playerSessionID)
}
