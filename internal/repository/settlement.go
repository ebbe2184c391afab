package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poker-ledger/internal/model"
)

// SettlementRepository persists settlement records. A session has at most
// one saved record; saving replaces the prior one wholesale.
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates a new SettlementRepository instance.
func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

// Replace saves the settlement lines for a session, deleting any previously
// saved record in the same transaction so that a reader never observes a
// partial overwrite.
func (r *SettlementRepository) Replace(ctx context.Context, sessionID int64, lines []model.SettlementLine) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin settlement save: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM settlement_lines WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear prior settlement: %w", err)
	}

	const insert = `
		INSERT INTO settlement_lines
			(session_id, position, player_id, original_profit_loss, discount_amount,
			 adjusted_profit_loss, session_cost_share, final_amount, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	for i, line := range lines {
		_, err := tx.Exec(ctx, insert,
			sessionID,
			i,
			line.PlayerID,
			line.OriginalProfitLoss,
			line.DiscountAmount,
			line.AdjustedProfitLoss,
			line.SessionCostShare,
			line.FinalAmount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert settlement line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit settlement save: %w", err)
	}
	return nil
}

// GetBySession retrieves the saved settlement for a session in saved order.
// Returns a nil slice when no settlement was ever saved.
func (r *SettlementRepository) GetBySession(ctx context.Context, sessionID int64) ([]model.SettlementLine, error) {
	const query = `
		SELECT player_id, original_profit_loss, discount_amount,
		       adjusted_profit_loss, session_cost_share, final_amount
		FROM settlement_lines
		WHERE session_id = $1
		ORDER BY position
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	defer rows.Close()

	var lines []model.SettlementLine
	for rows.Next() {
		var line model.SettlementLine
		err := rows.Scan(
			&line.PlayerID,
			&line.OriginalProfitLoss,
			&line.DiscountAmount,
			&line.AdjustedProfitLoss,
			&line.SessionCostShare,
			&line.FinalAmount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settlement lines: %w", err)
	}

	return lines, nil
}
