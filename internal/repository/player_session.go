package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"poker-ledger/internal/model"
)

// ErrAlreadyJoined is returned when a player already has a player session in
// the target session.
var ErrAlreadyJoined = errors.New("player already joined session")

// PlayerSessionRepository handles player-session data persistence.
type PlayerSessionRepository struct {
	db Querier
}

// NewPlayerSessionRepository creates a new PlayerSessionRepository instance.
func NewPlayerSessionRepository(db Querier) *PlayerSessionRepository {
	return &PlayerSessionRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
// Stack mutations commit together with their ledger rows through it.
func (r *PlayerSessionRepository) WithTx(tx pgx.Tx) *PlayerSessionRepository {
	return &PlayerSessionRepository{db: tx}
}

const playerSessionColumns = `id, session_id, player_id, joined_at, left_at, initial_buy_in, current_stack, status`

func scanPlayerSession(row pgx.Row) (*model.PlayerSession, error) {
	var ps model.PlayerSession
	err := row.Scan(
		&ps.ID,
		&ps.SessionID,
		&ps.PlayerID,
		&ps.JoinedAt,
		&ps.LeftAt,
		&ps.InitialBuyIn,
		&ps.CurrentStack,
		&ps.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerSessionNotFound
		}
		return nil, err
	}
	return &ps, nil
}

// Create creates a player session in the active state with the initial
// buy-in as the starting stack. The (session, player) pair is unique;
// a second join surfaces ErrAlreadyJoined.
func (r *PlayerSessionRepository) Create(ctx context.Context, sessionID, playerID int64, buyIn model.Money) (*model.PlayerSession, error) {
	const query = `
		INSERT INTO player_sessions (session_id, player_id, joined_at, initial_buy_in, current_stack, status)
		VALUES ($1, $2, NOW(), $3, $3, 'active')
		ON CONFLICT (session_id, player_id) DO NOTHING
		RETURNING ` + playerSessionColumns

	ps, err := scanPlayerSession(r.db.QueryRow(ctx, query, sessionID, playerID, buyIn))
	if err != nil {
		if errors.Is(err, ErrPlayerSessionNotFound) {
			// DO NOTHING returned no row: the pair already exists.
			return nil, ErrAlreadyJoined
		}
		return nil, fmt.Errorf("failed to create player session: %w", err)
	}
	return ps, nil
}

// GetByID retrieves a player session by id.
func (r *PlayerSessionRepository) GetByID(ctx context.Context, id int64) (*model.PlayerSession, error) {
	const query = `SELECT ` + playerSessionColumns + ` FROM player_sessions WHERE id = $1`

	ps, err := scanPlayerSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrPlayerSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get player session: %w", err)
	}
	return ps, nil
}

// GetBySessionAndPlayer retrieves the player session for a (session, player)
// pair, or ErrPlayerSessionNotFound.
func (r *PlayerSessionRepository) GetBySessionAndPlayer(ctx context.Context, sessionID, playerID int64) (*model.PlayerSession, error) {
	const query = `SELECT ` + playerSessionColumns + ` FROM player_sessions WHERE session_id = $1 AND player_id = $2`

	ps, err := scanPlayerSession(r.db.QueryRow(ctx, query, sessionID, playerID))
	if err != nil {
		if errors.Is(err, ErrPlayerSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get player session: %w", err)
	}
	return ps, nil
}

// ListBySession retrieves every player session in a session, in join order.
func (r *PlayerSessionRepository) ListBySession(ctx context.Context, sessionID int64) ([]*model.PlayerSession, error) {
	const query = `SELECT ` + playerSessionColumns + ` FROM player_sessions WHERE session_id = $1 ORDER BY joined_at, id`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list player sessions: %w", err)
	}
	defer rows.Close()

	var players []*model.PlayerSession
	for rows.Next() {
		ps, err := scanPlayerSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player session: %w", err)
		}
		players = append(players, ps)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating player sessions: %w", err)
	}

	return players, nil
}

// AddToStack increases a player's current stack. The matching rebuy
// transaction is appended by the caller in the same unit of work.
func (r *PlayerSessionRepository) AddToStack(ctx context.Context, id int64, amount model.Money) (*model.PlayerSession, error) {
	const query = `
		UPDATE player_sessions
		SET current_stack = current_stack + $2
		WHERE id = $1
		RETURNING ` + playerSessionColumns

	ps, err := scanPlayerSession(r.db.QueryRow(ctx, query, id, amount))
	if err != nil {
		if errors.Is(err, ErrPlayerSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add to stack: %w", err)
	}
	return ps, nil
}

// CashOut marks a player session as left: status moves to cashed_out (or
// busted when the final stack is zero), left_at is stamped and the stack is
// overwritten with the counted amount.
func (r *PlayerSessionRepository) CashOut(ctx context.Context, id int64, amount model.Money, status string) (*model.PlayerSession, error) {
	const query = `
		UPDATE player_sessions
		SET status = $3, left_at = NOW(), current_stack = $2
		WHERE id = $1
		RETURNING ` + playerSessionColumns

	ps, err := scanPlayerSession(r.db.QueryRow(ctx, query, id, amount, status))
	if err != nil {
		if errors.Is(err, ErrPlayerSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to cash out player session: %w", err)
	}
	return ps, nil
}

// Reactivate returns a cashed-out player to the table. The prior stack is
// kept as the new starting stack; additionalBuyIn (may be zero) is added on
// top.
func (r *PlayerSessionRepository) Reactivate(ctx context.Context, id int64, additionalBuyIn model.Money) (*model.PlayerSession, error) {
	const query = `
		UPDATE player_sessions
		SET status = 'active', left_at = NULL, current_stack = current_stack + $2
		WHERE id = $1
		RETURNING ` + playerSessionColumns

	ps, err := scanPlayerSession(r.db.QueryRow(ctx, query, id, additionalBuyIn))
	if err != nil {
		if errors.Is(err, ErrPlayerSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to reactivate player session: %w", err)
	}
	return ps, nil
}
