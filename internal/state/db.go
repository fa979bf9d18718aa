// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS vault_configs (
			config_id SERIAL PRIMARY KEY,
			vault_name VARCHAR(255) NOT NULL,
			version INTEGER NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			config JSONB NOT NULL,
			CONSTRAINT uq_vault_configs_name_version UNIQUE (vault_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_vault_configs_name_active ON vault_configs(vault_name, is_active, created_at DESC);

		-- Append-only history of strategist rate updates.
		CREATE TABLE IF NOT EXISTS update_records (
			vault_name VARCHAR(255) NOT NULL,
			update_id BIGINT NOT NULL,
			withdraw_rate DECIMAL(40, 18) NOT NULL,
			withdraw_fee_bps BIGINT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (vault_name, update_id)
		);
		CREATE INDEX IF NOT EXISTS idx_update_records_recorded ON update_records(vault_name, recorded_at DESC);

		-- Periodic snapshots of the vault's global scalars.
		CREATE TABLE IF NOT EXISTS vault_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			vault_name VARCHAR(255) NOT NULL,
			cycle_id UUID,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			redemption_rate DECIMAL(40, 18) NOT NULL,
			max_historical_rate DECIMAL(40, 18) NOT NULL,
			fees_owed_in_asset DECIMAL(40, 0) NOT NULL,
			last_update_total_shares DECIMAL(40, 0) NOT NULL,
			total_shares DECIMAL(40, 0) NOT NULL,
			pending_withdraw_assets DECIMAL(40, 0) NOT NULL,
			current_update_id BIGINT NOT NULL,
			next_withdraw_request_id BIGINT NOT NULL,
			paused BOOLEAN NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_vault_snapshots_timestamp ON vault_snapshots(vault_name, snapshot_timestamp DESC);

		-- Vault event log for external monitoring.
		CREATE TABLE IF NOT EXISTS vault_events (
			event_id SERIAL PRIMARY KEY,
			vault_name VARCHAR(255) NOT NULL,
			kind VARCHAR(64) NOT NULL,
			event_timestamp TIMESTAMPTZ NOT NULL,
			attributes JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_vault_events_kind ON vault_events(vault_name, kind, event_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_vault_events_timestamp ON vault_events(vault_name, event_timestamp DESC);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
