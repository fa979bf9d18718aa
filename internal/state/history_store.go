// ./internal/state/history_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/qvault-labs/qvm/internal/types"
)

// SaveUpdateRecord appends a strategist update to the history table. Records
// are immutable; a conflicting (vault, update_id) pair is an error.
func SaveUpdateRecord(vaultName string, rec types.UpdateRecord) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
        INSERT INTO update_records (vault_name, update_id, withdraw_rate, withdraw_fee_bps, recorded_at)
        VALUES ($1, $2, $3, $4, $5);`

	_, err := DB.Exec(stmt, vaultName, rec.UpdateID, rec.WithdrawRate.String(), rec.WithdrawFeeBps, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert update record %d: %w", rec.UpdateID, err)
	}

	log.Info().
		Str("vault", vaultName).
		Uint64("update_id", rec.UpdateID).
		Str("withdraw_rate", rec.WithdrawRate.String()).
		Msg("Saved update record")
	return nil
}

// GetUpdateRecord loads a single update record by id.
func GetUpdateRecord(vaultName string, updateID uint64) (*types.UpdateRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT update_id, withdraw_rate, withdraw_fee_bps, recorded_at
        FROM update_records
        WHERE vault_name = $1 AND update_id = $2;`

	rec := &types.UpdateRecord{}
	var rateStr string
	err := DB.QueryRow(query, vaultName, updateID).Scan(&rec.UpdateID, &rateStr, &rec.WithdrawFeeBps, &rec.Timestamp)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("update record %d not found for '%s'", updateID, vaultName)
		}
		return nil, fmt.Errorf("failed to scan update record %d: %w", updateID, err)
	}

	rec.WithdrawRate, err = sdkmath.LegacyNewDecFromStr(rateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored withdraw rate %q: %w", rateStr, err)
	}
	return rec, nil
}

// SaveSnapshot persists the vault scalars under a cycle id.
func SaveSnapshot(vaultName, cycleID string, s types.VaultScalars) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	stmt := `
        INSERT INTO vault_snapshots (
            vault_name, cycle_id, snapshot_timestamp,
            redemption_rate, max_historical_rate,
            fees_owed_in_asset, last_update_total_shares, total_shares, pending_withdraw_assets,
            current_update_id, next_withdraw_request_id, paused
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING snapshot_id;`

	var snapshotID int64
	err := DB.QueryRow(
		stmt,
		vaultName, cycleID, time.Now(),
		s.RedemptionRate.String(), s.MaxHistoricalRate.String(),
		s.FeesOwedInAsset.String(), s.LastUpdateTotalShares.String(), s.TotalShares.String(), s.PendingWithdrawAssets.String(),
		s.CurrentUpdateID, s.NextWithdrawRequestID, s.Paused,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert vault snapshot: %w", err)
	}

	log.Debug().
		Str("vault", vaultName).
		Int64("snapshot_id", snapshotID).
		Str("rate", s.RedemptionRate.String()).
		Msg("Saved vault snapshot")
	return snapshotID, nil
}

// LoadLatestSnapshot returns the most recent scalars snapshot for a vault,
// or nil when none has been recorded yet.
func LoadLatestSnapshot(vaultName string) (*types.VaultScalars, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT redemption_rate, max_historical_rate,
               fees_owed_in_asset, last_update_total_shares, total_shares, pending_withdraw_assets,
               current_update_id, next_withdraw_request_id, paused
        FROM vault_snapshots
        WHERE vault_name = $1
        ORDER BY snapshot_timestamp DESC
        LIMIT 1;`

	var rateStr, maxRateStr, feesStr, lastSharesStr, totalSharesStr, pendingStr string
	s := &types.VaultScalars{}
	err := DB.QueryRow(query, vaultName).Scan(
		&rateStr, &maxRateStr,
		&feesStr, &lastSharesStr, &totalSharesStr, &pendingStr,
		&s.CurrentUpdateID, &s.NextWithdrawRequestID, &s.Paused,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan latest snapshot for '%s': %w", vaultName, err)
	}

	if s.RedemptionRate, err = sdkmath.LegacyNewDecFromStr(rateStr); err != nil {
		return nil, fmt.Errorf("failed to parse stored redemption rate %q: %w", rateStr, err)
	}
	if s.MaxHistoricalRate, err = sdkmath.LegacyNewDecFromStr(maxRateStr); err != nil {
		return nil, fmt.Errorf("failed to parse stored max historical rate %q: %w", maxRateStr, err)
	}
	var ok bool
	if s.FeesOwedInAsset, ok = sdkmath.NewIntFromString(feesStr); !ok {
		return nil, fmt.Errorf("failed to parse stored fees owed %q", feesStr)
	}
	if s.LastUpdateTotalShares, ok = sdkmath.NewIntFromString(lastSharesStr); !ok {
		return nil, fmt.Errorf("failed to parse stored last update total shares %q", lastSharesStr)
	}
	if s.TotalShares, ok = sdkmath.NewIntFromString(totalSharesStr); !ok {
		return nil, fmt.Errorf("failed to parse stored total shares %q", totalSharesStr)
	}
	if s.PendingWithdrawAssets, ok = sdkmath.NewIntFromString(pendingStr); !ok {
		return nil, fmt.Errorf("failed to parse stored pending withdraw assets %q", pendingStr)
	}
	return s, nil
}
