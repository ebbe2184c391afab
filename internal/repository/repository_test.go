// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"poker-ledger/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runMigrations applies the database schema
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id BIGSERIAL PRIMARY KEY,
			date TIMESTAMPTZ NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			min_buy_in BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'ongoing',
			session_cost BIGINT,
			discount_percent INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS player_sessions (
			id BIGSERIAL PRIMARY KEY,
			session_id BIGINT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			player_id BIGINT NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			left_at TIMESTAMPTZ,
			initial_buy_in BIGINT NOT NULL,
			current_stack BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			UNIQUE (session_id, player_id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			player_session_id BIGINT NOT NULL REFERENCES player_sessions(id) ON DELETE CASCADE,
			type VARCHAR(20) NOT NULL,
			amount BIGINT NOT NULL CHECK (amount >= 0),
			note TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS settlement_lines (
			session_id BIGINT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			position INT NOT NULL,
			player_id BIGINT NOT NULL,
			original_profit_loss BIGINT NOT NULL,
			discount_amount BIGINT NOT NULL,
			adjusted_profit_loss BIGINT NOT NULL,
			session_cost_share BIGINT NOT NULL,
			final_amount BIGINT NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (session_id, position)
		)
	`)
	return err
}

func createTestSession(t *testing.T, pool *pgxpool.Pool) *model.Session {
	repo := NewSessionRepository(pool)
	session, err := repo.Create(context.Background(), time.Now(), "home game", 10000)
	require.NoError(t, err)
	return session
}

// ============================================================================
// SessionRepository Tests
// ============================================================================

func TestSessionRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSessionRepository(pool)
	ctx := context.Background()

	session, err := repo.Create(ctx, time.Now(), "home game", 10000)
	require.NoError(t, err)
	assert.Equal(t, "home game", session.Location)
	assert.Equal(t, model.Money(10000), session.MinBuyIn)
	assert.Equal(t, model.SessionOngoing, session.Status)
	assert.Nil(t, session.SessionCost)
	assert.Equal(t, 0, session.DiscountPercent)

	fetched, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, fetched.ID)

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepository_StatusAndCost(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSessionRepository(pool)
	ctx := context.Background()
	session := createTestSession(t, pool)

	updated, err := repo.SetCost(ctx, session.ID, 2000, 10)
	require.NoError(t, err)
	require.NotNil(t, updated.SessionCost)
	assert.Equal(t, model.Money(2000), *updated.SessionCost)
	assert.Equal(t, 10, updated.DiscountPercent)

	completed, err := repo.UpdateStatus(ctx, session.ID, model.SessionCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, completed.Status)
}

// ============================================================================
// PlayerSessionRepository Tests
// ============================================================================

func TestPlayerSessionRepository_JoinFlow(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPlayerSessionRepository(pool)
	ctx := context.Background()
	session := createTestSession(t, pool)

	ps, err := repo.Create(ctx, session.ID, 42, 10000)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, ps.Status)
	assert.Equal(t, model.Money(10000), ps.InitialBuyIn)
	assert.Equal(t, model.Money(10000), ps.CurrentStack)
	assert.Nil(t, ps.LeftAt)

	// Second join of the same player is rejected
	_, err = repo.Create(ctx, session.ID, 42, 10000)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	// Rebuy grows the stack
	ps, err = repo.AddToStack(ctx, ps.ID, 5000)
	require.NoError(t, err)
	assert.Equal(t, model.Money(15000), ps.CurrentStack)

	// Cash-out overwrites the stack and stamps left_at
	ps, err = repo.CashOut(ctx, ps.ID, 20000, model.StatusCashedOut)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCashedOut, ps.Status)
	assert.Equal(t, model.Money(20000), ps.CurrentStack)
	assert.NotNil(t, ps.LeftAt)
}

func TestPlayerSessionRepository_ReactivatePreservesStack(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPlayerSessionRepository(pool)
	ctx := context.Background()
	session := createTestSession(t, pool)

	ps, err := repo.Create(ctx, session.ID, 7, 10000)
	require.NoError(t, err)

	ps, err = repo.CashOut(ctx, ps.ID, 15000, model.StatusCashedOut)
	require.NoError(t, err)

	// Rejoin with an additional buy-in: prior stack carries forward
	ps, err = repo.Reactivate(ctx, ps.ID, 5000)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, ps.Status)
	assert.Nil(t, ps.LeftAt)
	assert.Equal(t, model.Money(20000), ps.CurrentStack)
}

// ============================================================================
// TransactionRepository Tests
// ============================================================================

func TestTransactionRepository_Ledger(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	psRepo := NewPlayerSessionRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()
	session := createTestSession(t, pool)

	psA, err := psRepo.Create(ctx, session.ID, 1, 10000)
	require.NoError(t, err)
	psB, err := psRepo.Create(ctx, session.ID, 2, 10000)
	require.NoError(t, err)

	note := "chip count corrected"
	_, err = txRepo.Create(ctx, psA.ID, model.TxTypeBuyIn, 10000, nil)
	require.NoError(t, err)
	_, err = txRepo.Create(ctx, psA.ID, model.TxTypeRebuy, 5000, &note)
	require.NoError(t, err)
	_, err = txRepo.Create(ctx, psB.ID, model.TxTypeBuyIn, 10000, nil)
	require.NoError(t, err)
	_, err = txRepo.Create(ctx, psB.ID, model.TxTypeCashOut, 5000, nil)
	require.NoError(t, err)

	// Per-player listing in insertion order
	txs, err := txRepo.ListByPlayerSession(ctx, psA.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, model.TxTypeBuyIn, txs[0].Type)
	assert.Equal(t, model.TxTypeRebuy, txs[1].Type)
	require.NotNil(t, txs[1].Note)
	assert.Equal(t, note, *txs[1].Note)

	// Session-wide ledger grouped by player session
	ledger, err := txRepo.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, ledger[psA.ID], 2)
	assert.Len(t, ledger[psB.ID], 2)

	// Buy-in sum excludes the cash-out
	total, found, err := txRepo.SumBuyIns(ctx, psB.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, model.Money(10000), total)
}

func TestTransactionRepository_SumBuyInsEmpty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	psRepo := NewPlayerSessionRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()
	session := createTestSession(t, pool)

	ps, err := psRepo.Create(ctx, session.ID, 1, 10000)
	require.NoError(t, err)

	total, found, err := txRepo.SumBuyIns(ctx, ps.ID)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, model.Money(0), total)
}

// ============================================================================
// SettlementRepository Tests
// ============================================================================

func TestSettlementRepository_ReplaceIsIdempotentOverwrite(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSettlementRepository(pool)
	ctx := context.Background()
	session := createTestSession(t, pool)

	// Nothing saved yet
	lines, err := repo.GetBySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, lines)

	first := []model.SettlementLine{
		{PlayerID: 1, OriginalProfitLoss: 5000, AdjustedProfitLoss: 5000, SessionCostShare: 2000, FinalAmount: 3000},
		{PlayerID: 2, OriginalProfitLoss: -5000, AdjustedProfitLoss: -5000, FinalAmount: -5000},
	}
	require.NoError(t, repo.Replace(ctx, session.ID, first))

	second := []model.SettlementLine{
		{PlayerID: 1, OriginalProfitLoss: 5000, DiscountAmount: 2500, AdjustedProfitLoss: 2500, SessionCostShare: 2000, FinalAmount: 500},
		{PlayerID: 2, OriginalProfitLoss: -5000, DiscountAmount: 2500, AdjustedProfitLoss: -2500, FinalAmount: -2500},
		{PlayerID: 3, OriginalProfitLoss: 0},
	}
	require.NoError(t, repo.Replace(ctx, session.ID, second))

	// Only the second save is retrievable, in saved order
	lines, err = repo.GetBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, second, lines)
}

func TestPlayerSessionRepository_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPlayerSessionRepository(pool)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, 12345)
	assert.True(t, errors.Is(err, ErrPlayerSessionNotFound))
}
