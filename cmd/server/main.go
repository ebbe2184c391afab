// Package main is the entry point for the poker ledger service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"poker-ledger/internal/config"
	"poker-ledger/internal/handler"
	"poker-ledger/internal/model"
	"poker-ledger/internal/pkg/db"
	"poker-ledger/internal/pkg/lock"
	"poker-ledger/internal/repository"
	"poker-ledger/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	sessionRepo := repository.NewSessionRepository(dbPool.Pool)
	playerRepo := repository.NewPlayerSessionRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	settlementRepo := repository.NewSettlementRepository(dbPool.Pool)

	// Initialize session lock
	sessionLock := lock.NewSessionLock()

	// Initialize services
	sessionService := service.NewSessionService(
		dbPool.Pool,
		sessionRepo,
		playerRepo,
		txRepo,
		sessionLock,
		model.Money(cfg.Session.DefaultMinBuyIn),
	)
	settlementService := service.NewSettlementService(
		sessionRepo,
		playerRepo,
		txRepo,
		settlementRepo,
	)

	h := handler.New(sessionService, settlementService, cfg.Session.ListLimit)

	mux := h.Routes()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbPool.HealthCheck(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Server is starting...")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create sessions table
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
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(date DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: sessions table created")

	// Migration 2: Create player_sessions table
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
		);
		CREATE INDEX IF NOT EXISTS idx_player_sessions_session ON player_sessions(session_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: player_sessions table created")

	// Migration 3: Create transactions table (append-only ledger)
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			player_session_id BIGINT NOT NULL REFERENCES player_sessions(id) ON DELETE CASCADE,
			type VARCHAR(20) NOT NULL,
			amount BIGINT NOT NULL CHECK (amount >= 0),
			note TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_player_session ON transactions(player_session_id, created_at);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: transactions table created")

	// Migration 4: Create settlement_lines table
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
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: settlement_lines table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
