// ./internal/state/config_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/qvault-labs/qvm/internal/types"
)

// SaveVaultConfig persists a new config version and optionally activates it,
// deactivating any previously active version in the same transaction.
func SaveVaultConfig(vaultName string, cfg types.VaultConfig, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal vault config: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE vault_configs SET is_active = FALSE WHERE vault_name = $1 AND is_active = TRUE;`
		if _, err = tx.Exec(stmtDeactivate, vaultName); err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active config for %s: %w", vaultName, err)
		}
	}

	stmt := `
        INSERT INTO vault_configs (vault_name, version, is_active, config)
        VALUES ($1, $2, $3, $4)
        RETURNING config_id;`

	var configID int64
	err = tx.QueryRow(stmt, vaultName, cfg.Version, makeActive, payload).Scan(&configID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert vault config: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("vault", vaultName).
		Int("version", cfg.Version).
		Int64("config_id", configID).
		Bool("active", makeActive).
		Msg("Saved vault config")
	return configID, nil
}

// LoadActiveVaultConfig loads the currently active config for a vault,
// migrating older persisted shapes forward as needed.
func LoadActiveVaultConfig(vaultName string) (*types.VaultConfig, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT version, config
        FROM vault_configs
        WHERE vault_name = $1 AND is_active = TRUE
        ORDER BY created_at DESC
        LIMIT 1;`

	var version int
	var payload []byte
	err := DB.QueryRow(query, vaultName).Scan(&version, &payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no active vault config found for '%s'", vaultName)
		}
		return nil, fmt.Errorf("failed to scan active vault config for '%s': %w", vaultName, err)
	}

	cfg, err := MigrateVaultConfig(version, payload)
	if err != nil {
		return nil, err
	}
	log.Info().Str("vault", vaultName).Int("version", cfg.Version).Msg("Loaded active vault config")
	return cfg, nil
}

// MigrateVaultConfig upgrades a persisted config payload to the current
// struct shape, so a new binary can load rows written by older ones.
//
// Version 1 is the first persisted shape. Version 2 added the flat solver
// completion fee; older rows get a zero fee.
func MigrateVaultConfig(version int, payload []byte) (*types.VaultConfig, error) {
	cfg := &types.VaultConfig{}
	if err := json.Unmarshal(payload, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vault config version %d: %w", version, err)
	}
	if cfg.Version == 0 {
		cfg.Version = version
	}

	if version < 2 {
		if cfg.Fees.SolverCompletionFee.IsNil() {
			cfg.Fees.SolverCompletionFee = sdkmath.ZeroInt()
		}
		log.Info().Int("from", version).Msg("Migrated vault config to version 2 shape")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("migrated config version %d is invalid: %w", version, err)
	}
	return cfg, nil
}
