package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"poker-ledger/internal/model"
)

// TransactionRepository handles the append-only monetary ledger. Rows are
// never updated or deleted; corrections are new transactions.
type TransactionRepository struct {
	db Querier
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(db Querier) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *TransactionRepository) WithTx(tx pgx.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// Create appends a ledger transaction for a player session.
func (r *TransactionRepository) Create(ctx context.Context, playerSessionID int64, txType string, amount model.Money, note *string) (*model.Transaction, error) {
	const query = `
		INSERT INTO transactions (player_session_id, type, amount, note, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, player_session_id, type, amount, note, created_at
	`

	var tx model.Transaction
	err := r.db.QueryRow(ctx, query, playerSessionID, txType, amount, note).Scan(
		&tx.ID,
		&tx.PlayerSessionID,
		&tx.Type,
		&tx.Amount,
		&tx.Note,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &tx, nil
}

// ListByPlayerSession retrieves a player's ledger in insertion order.
func (r *TransactionRepository) ListByPlayerSession(ctx context.Context, playerSessionID int64) ([]model.Transaction, error) {
	const query = `
		SELECT id, player_session_id, type, amount, note, created_at
		FROM transactions
		WHERE player_session_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.Query(ctx, query, playerSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.PlayerSessionID,
			&tx.Type,
			&tx.Amount,
			&tx.Note,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// ListBySession retrieves the full ledger for a session, grouped by player
// session id. Used by the balance checker and the settlement calculator.
func (r *TransactionRepository) ListBySession(ctx context.Context, sessionID int64) (map[int64][]model.Transaction, error) {
	const query = `
		SELECT t.id, t.player_session_id, t.type, t.amount, t.note, t.created_at
		FROM transactions t
		JOIN player_sessions ps ON t.player_session_id = ps.id
		WHERE ps.session_id = $1
		ORDER BY t.created_at, t.id
	`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session ledger: %w", err)
	}
	defer rows.Close()

	ledger := make(map[int64][]model.Transaction)
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.PlayerSessionID,
			&tx.Type,
			&tx.Amount,
			&tx.Note,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		ledger[tx.PlayerSessionID] = append(ledger[tx.PlayerSessionID], tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session ledger: %w", err)
	}

	return ledger, nil
}

// SumBuyIns returns the sum of buy-in and rebuy transaction amounts for a
// player session, and whether any such transactions exist.
func (r *TransactionRepository) SumBuyIns(ctx context.Context, playerSessionID int64) (model.Money, bool, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM transactions
		WHERE player_session_id = $1 AND type IN ('buy_in', 'rebuy')
	`

	var total model.Money
	var count int64
	err := r.db.QueryRow(ctx, query, playerSessionID).Scan(&total, &count)
	if err != nil {
		return 0, false, fmt.Errorf("failed to sum buy-ins: %w", err)
	}

	return total, count > 0, nil
}
