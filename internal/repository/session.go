// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poker-ledger/internal/model"
)

// Common errors for repository operations.
var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrPlayerSessionNotFound = errors.New("player session not found")
)

// SessionRepository handles session data persistence.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, date, location, min_buy_in, status, session_cost, discount_percent, created_at, updated_at`

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID,
		&s.Date,
		&s.Location,
		&s.MinBuyIn,
		&s.Status,
		&s.SessionCost,
		&s.DiscountPercent,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Create creates a new session in the ongoing state.
func (r *SessionRepository) Create(ctx context.Context, date time.Time, location string, minBuyIn model.Money) (*model.Session, error) {
	const query = `
		INSERT INTO sessions (date, location, min_buy_in, status, discount_percent, created_at, updated_at)
		VALUES ($1, $2, $3, 'ongoing', 0, NOW(), NOW())
		RETURNING ` + sessionColumns

	s, err := scanSession(r.pool.QueryRow(ctx, query, date, location, minBuyIn))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// GetByID retrieves a session by id.
// Returns ErrSessionNotFound if the session does not exist.
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// UpdateStatus moves a session to a new lifecycle status.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id int64, status string) (*model.Session, error) {
	const query = `
		UPDATE sessions
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + sessionColumns

	s, err := scanSession(r.pool.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}
	return s, nil
}

// SetCost records the shared session cost and discount percentage. Both may
// be set before the session completes, for preview purposes.
func (r *SessionRepository) SetCost(ctx context.Context, id int64, cost model.Money, discountPercent int) (*model.Session, error) {
	const query = `
		UPDATE sessions
		SET session_cost = $2, discount_percent = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + sessionColumns

	s, err := scanSession(r.pool.QueryRow(ctx, query, id, cost, discountPercent))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to set session cost: %w", err)
	}
	return s, nil
}

// List retrieves sessions ordered by date, newest first.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*model.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions ORDER BY date DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}
