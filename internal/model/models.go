// Package model defines the data models for the poker ledger service.
package model

import "time"

// Money is a monetary amount in the session currency's minor unit (cents).
// All engine arithmetic is integer; rounding happens only where the
// settlement algorithm calls for it.
type Money int64

// Session represents one poker night.
type Session struct {
	ID              int64     `db:"id"`
	Date            time.Time `db:"date"`
	Location        string    `db:"location"`
	MinBuyIn        Money     `db:"min_buy_in"`
	Status          string    `db:"status"`
	SessionCost     *Money    `db:"session_cost"`
	DiscountPercent int       `db:"discount_percent"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Session statuses.
const (
	SessionOngoing   = "ongoing"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

// PlayerSession is one player's participation in one session.
// CurrentStack is denormalized: it always equals InitialBuyIn plus the net
// of chip adjustments, and every mutation updates row and ledger together.
type PlayerSession struct {
	ID           int64      `db:"id"`
	SessionID    int64      `db:"session_id"`
	PlayerID     int64      `db:"player_id"`
	JoinedAt     time.Time  `db:"joined_at"`
	LeftAt       *time.Time `db:"left_at"`
	InitialBuyIn Money      `db:"initial_buy_in"`
	CurrentStack Money      `db:"current_stack"`
	Status       string     `db:"status"`
}

// Player-session statuses. Busted is a cash-out with a zero stack; the
// settlement engine treats it exactly like CashedOut.
const (
	StatusActive    = "active"
	StatusCashedOut = "cashed_out"
	StatusBusted    = "busted"
)

// Settled reports whether the player has left the table (busted counts).
func (ps *PlayerSession) Settled() bool {
	return ps.Status == StatusCashedOut || ps.Status == StatusBusted
}

// Transaction is an append-only ledger record. Corrections are modeled as
// new transactions, never as updates.
type Transaction struct {
	ID              int64     `db:"id"`
	PlayerSessionID int64     `db:"player_session_id"`
	Type            string    `db:"type"`
	Amount          Money     `db:"amount"`
	Note            *string   `db:"note"`
	CreatedAt       time.Time `db:"created_at"`
}

// Transaction types.
const (
	TxTypeBuyIn   = "buy_in"   // created exactly once, at join
	TxTypeRebuy   = "rebuy"    // any number of times while active, or at rejoin
	TxTypeCashOut = "cash_out" // created exactly once, at leave
)

// BuyInTypes returns the transaction types that count towards a player's
// total buy-in for settlement purposes.
func BuyInTypes() []string {
	return []string{TxTypeBuyIn, TxTypeRebuy}
}

// SettlementLine is the final per-player accounting for one session:
// profit/loss, discount pre-adjustment, session-cost share and the
// resulting settled amount.
type SettlementLine struct {
	PlayerID           int64 `db:"player_id"`
	OriginalProfitLoss Money `db:"original_profit_loss"`
	DiscountAmount     Money `db:"discount_amount"`
	AdjustedProfitLoss Money `db:"adjusted_profit_loss"`
	SessionCostShare   Money `db:"session_cost_share"`
	FinalAmount        Money `db:"final_amount"`
}
