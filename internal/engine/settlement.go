package engine

import (
	"poker-ledger/internal/model"
)

// PlayerResult is a cashed-out player's net result feeding the settlement.
type PlayerResult struct {
	PlayerID   int64
	ProfitLoss model.Money
}

// Settlement is the outcome of a settlement run.
type Settlement struct {
	Lines []model.SettlementLine
	// Imbalanced is set when total original profits and total original
	// losses differ by more than the tolerance. The calculation proceeds
	// regardless; the flag is advisory and must be surfaced to a human.
	Imbalanced bool
	// Imbalance is the absolute difference between profits and losses.
	Imbalance model.Money
}

// roundDiv returns num/den rounded to nearest, ties away from zero.
// den must be positive.
func roundDiv(num, den int64) int64 {
	if num >= 0 {
		return (num + den/2) / den
	}
	return -((-num + den/2) / den)
}

// Settle computes the final per-player settlement for a completed session.
//
// The order of operations is fixed:
//  1. discount = round(|profitLoss| * discountPercent / 100)
//  2. the discount shrinks profit and loss symmetrically toward zero
//  3. winners (adjusted > 0) pay the session cost in proportion to their
//     adjusted profit, share = round(sessionCost * proportion)
//  4. non-winners pay nothing and keep their adjusted result
//
// When no player has a positive adjusted profit the cost is not distributed
// at all: every share is zero. Rounding drift in the shares is accepted, not
// corrected.
func Settle(results []PlayerResult, sessionCost model.Money, discountPercent int) Settlement {
	lines := make([]model.SettlementLine, 0, len(results))

	var totalProfit, totalLoss model.Money
	for _, r := range results {
		if r.ProfitLoss > 0 {
			totalProfit += r.ProfitLoss
		} else {
			totalLoss -= r.ProfitLoss
		}

		line := model.SettlementLine{
			PlayerID:           r.PlayerID,
			OriginalProfitLoss: r.ProfitLoss,
		}
		switch {
		case r.ProfitLoss > 0:
			line.DiscountAmount = model.Money(roundDiv(int64(r.ProfitLoss)*int64(discountPercent), 100))
			line.AdjustedProfitLoss = r.ProfitLoss - line.DiscountAmount
		case r.ProfitLoss < 0:
			line.DiscountAmount = model.Money(roundDiv(int64(-r.ProfitLoss)*int64(discountPercent), 100))
			line.AdjustedProfitLoss = r.ProfitLoss + line.DiscountAmount
		default:
			// Zero result: discount is a no-op.
		}
		lines = append(lines, line)
	}

	var adjustedTotalProfit model.Money
	for _, line := range lines {
		if line.AdjustedProfitLoss > 0 {
			adjustedTotalProfit += line.AdjustedProfitLoss
		}
	}

	for i := range lines {
		line := &lines[i]
		if line.AdjustedProfitLoss > 0 && adjustedTotalProfit > 0 {
			line.SessionCostShare = model.Money(roundDiv(
				int64(sessionCost)*int64(line.AdjustedProfitLoss),
				int64(adjustedTotalProfit),
			))
		}
		line.FinalAmount = line.AdjustedProfitLoss - line.SessionCostShare
	}

	imbalance := totalProfit - totalLoss
	if imbalance < 0 {
		imbalance = -imbalance
	}

	return Settlement{
		Lines:      lines,
		Imbalanced: imbalance > Tolerance,
		Imbalance:  imbalance,
	}
}
