// Package engine implements the pure settlement and balance-integrity math
// for poker sessions. It performs no I/O: callers pass in player sessions and
// their ledger transactions, and get explicit results back.
//
// All amounts are integer minor units (model.Money). The only rounding in the
// package is the round-to-nearest, ties-away-from-zero division used by the
// settlement steps.
package engine

import (
	"poker-ledger/internal/model"
)

// Tolerance is the maximum accepted deviation, in minor units, between a
// manually entered amount and the computed one (0.01 currency units).
const Tolerance model.Money = 1

// TotalBuyIn returns the player's total buy-in for settlement purposes: the
// sum of all buy-in and rebuy transaction amounts. Rebuys across multiple
// leave/rejoin cycles all count. Ledgers with no buy-in transactions (legacy
// data) fall back to the recorded initial buy-in.
func TotalBuyIn(txs []model.Transaction, initialBuyIn model.Money) model.Money {
	var total model.Money
	found := false
	for _, tx := range txs {
		if tx.Type == model.TxTypeBuyIn || tx.Type == model.TxTypeRebuy {
			total += tx.Amount
			found = true
		}
	}
	if !found {
		return initialBuyIn
	}
	return total
}

// ProfitLoss returns the player's net result: current stack minus total
// buy-in per TotalBuyIn.
func ProfitLoss(ps *model.PlayerSession, txs []model.Transaction) model.Money {
	return ps.CurrentStack - TotalBuyIn(txs, ps.InitialBuyIn)
}

// BalanceReport is the result of checking chip conservation for a session.
type BalanceReport struct {
	// TotalBuyIns is the sum of every player's total buy-in.
	TotalBuyIns model.Money
	// TotalCashedOut is the sum of current stacks over players who have
	// left the table (cashed out or busted).
	TotalCashedOut model.Money
	// RequiredCashOut is the amount the remaining active players must cash
	// out with, in total, for chips in to equal chips out. Clamped to zero.
	RequiredCashOut model.Money
	// Overdrawn is set when the pre-clamp value was negative: cashed-out
	// totals already exceed buy-ins, which indicates a manual entry error
	// upstream. Surfaced as a warning, never corrected automatically.
	Overdrawn bool
	// ActiveCount is the number of players still active in the session.
	ActiveCount int
}

// LastPlayer reports whether exactly one active player remains, which is
// when RequiredCashOut becomes a hard constraint on leaving.
func (r BalanceReport) LastPlayer() bool {
	return r.ActiveCount == 1
}

// CheckBalance computes the chip-conservation state of a session. ledgers
// maps player-session id to that player's transactions; players with no
// entry fall back to their initial buy-in.
func CheckBalance(players []*model.PlayerSession, ledgers map[int64][]model.Transaction) BalanceReport {
	var report BalanceReport
	for _, ps := range players {
		report.TotalBuyIns += TotalBuyIn(ledgers[ps.ID], ps.InitialBuyIn)
		switch {
		case ps.Settled():
			report.TotalCashedOut += ps.CurrentStack
		case ps.Status == model.StatusActive:
			report.ActiveCount++
		}
	}

	required := report.TotalBuyIns - report.TotalCashedOut
	if required < 0 {
		report.Overdrawn = true
		required = 0
	}
	report.RequiredCashOut = required
	return report
}

// WithinTolerance reports whether amount is an acceptable cash-out against
// the required amount.
func WithinTolerance(amount, required model.Money) bool {
	diff := amount - required
	if diff < 0 {
		diff = -diff
	}
	return diff <= Tolerance
}
