package vault

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/qvault-labs/qvm/internal/escrow"
	"github.com/qvault-labs/qvm/internal/ledger"
	"github.com/qvault-labs/qvm/internal/types"
)

// Update is the strategist's periodic rate push. It distributes the fees
// accrued since the last update at the outgoing rate, accrues platform and
// performance fees for the next distribution, commits a new update record,
// and finally nets assets from the deposit escrow into the withdraw escrow
// to fund the coming batch of settlements.
//
// The whole call is atomic: every input is validated before the first state
// mutation, so a rejected update leaves nothing behind. Returns the id of
// the committed update record.
func (v *Vault) Update(caller string, newRate sdkmath.LegacyDec, newWithdrawFeeBps uint64, nettingAmount sdkmath.Int) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused {
		return 0, types.ErrPaused
	}
	if caller != v.cfg.Strategist {
		return 0, fmt.Errorf("%w: %s", types.ErrNotStrategist, caller)
	}
	if newRate.IsNil() || !newRate.IsPositive() {
		return 0, types.ErrInvalidRate
	}
	if newWithdrawFeeBps > v.cfg.MaxWithdrawFeeBps {
		return 0, fmt.Errorf("%w: %d > %d bps", types.ErrWithdrawFeeTooHigh, newWithdrawFeeBps, v.cfg.MaxWithdrawFeeBps)
	}
	if nettingAmount.IsNil() || nettingAmount.IsNegative() {
		return 0, fmt.Errorf("%w: netting of %s", types.ErrZeroAmount, nettingAmount.String())
	}

	now := v.clock.Now().Truncate(time.Second)
	if last, ok := v.updates[v.currentUpdateID]; ok && !now.After(last.Timestamp) {
		return 0, fmt.Errorf("%w: last update at %s", types.ErrSameBlockUpdate, last.Timestamp.Format(time.RFC3339))
	}
	if nettingAmount.GT(v.depositEscrow.Balance()) {
		return 0, fmt.Errorf("netting %s exceeds deposit escrow balance %s: %w",
			nettingAmount.String(), v.depositEscrow.Balance().String(), ledger.ErrInsufficientBalance)
	}

	oldRate := v.redemptionRate

	// Step 1: distribute pending fees at the outgoing rate. Converting before
	// the rate changes pins the fee valuation to the rate in force while the
	// fees accrued.
	if v.feesOwedInAsset.IsPositive() {
		if err := v.distributeFees(oldRate); err != nil {
			return 0, err
		}
	}
	v.feesOwedInAsset = sdkmath.ZeroInt()

	// Step 2: accrue the platform fee, prorated over wall-clock time since
	// the last update. It is distributed on the NEXT update, not this one.
	elapsed := int64(now.Sub(v.lastUpdateTime) / time.Second)
	if v.cfg.Fees.PlatformFeeBps > 0 && v.lastUpdateTotalShares.IsPositive() && elapsed > 0 {
		assetValue := oldRate.MulInt(v.lastUpdateTotalShares)
		platformFee := assetValue.
			MulTruncate(bpsDec(v.cfg.Fees.PlatformFeeBps)).
			MulInt64(elapsed).
			QuoTruncate(sdkmath.LegacyNewDec(types.SecondsPerYear)).
			TruncateInt()
		v.feesOwedInAsset = v.feesOwedInAsset.Add(platformFee)
	}

	// Step 3: accrue the performance fee on yield above the high-water mark.
	if newRate.GT(v.maxHistoricalRate) {
		if v.cfg.Fees.PerformanceFeeBps > 0 && v.lastUpdateTotalShares.IsPositive() {
			yield := newRate.Sub(v.maxHistoricalRate).MulInt(v.lastUpdateTotalShares)
			perfFee := yield.MulTruncate(bpsDec(v.cfg.Fees.PerformanceFeeBps)).TruncateInt()
			v.feesOwedInAsset = v.feesOwedInAsset.Add(perfFee)
		}
		v.maxHistoricalRate = newRate
	}

	// Step 4: commit the new record and scalars. The record's rate is already
	// net of the withdrawal fee in force at this update.
	v.currentUpdateID++
	netRate := newRate.MulTruncate(sdkmath.LegacyOneDec().Sub(bpsDec(newWithdrawFeeBps)))
	v.updates[v.currentUpdateID] = types.UpdateRecord{
		UpdateID:       v.currentUpdateID,
		WithdrawRate:   netRate,
		Timestamp:      now,
		WithdrawFeeBps: newWithdrawFeeBps,
	}
	v.redemptionRate = newRate
	v.lastUpdateTotalShares = v.shares.TotalSupply()
	v.lastUpdateTime = now
	v.pendingWithdrawAssets = sdkmath.ZeroInt()

	// Step 5: netting transfer. The balance was checked up front, so this
	// cannot fail after the commit above.
	if nettingAmount.IsPositive() {
		if err := v.depositEscrow.TransferTo(v.withdrawEscrow.Address(), nettingAmount); err != nil {
			return 0, fmt.Errorf("netting transfer failed: %w", err)
		}
	}

	v.logger.Info().
		Uint64("updateId", v.currentUpdateID).
		Str("rate", newRate.String()).
		Str("netWithdrawRate", netRate.String()).
		Uint64("withdrawFeeBps", newWithdrawFeeBps).
		Str("netting", nettingAmount.String()).
		Str("feesOwed", v.feesOwedInAsset.String()).
		Msg("Rate update committed")
	v.emit(types.EventRateUpdated, map[string]string{
		"update_id":         fmt.Sprintf("%d", v.currentUpdateID),
		"rate":              newRate.String(),
		"net_withdraw_rate": netRate.String(),
		"withdraw_fee_bps":  fmt.Sprintf("%d", newWithdrawFeeBps),
		"netting":           nettingAmount.String(),
	})
	return v.currentUpdateID, nil
}

// distributeFees converts the owed fee amount to shares at rate and mints
// them to the strategist and platform accounts by the configured ratio.
func (v *Vault) distributeFees(rate sdkmath.LegacyDec) error {
	feeShares := convertToShares(v.feesOwedInAsset, rate)
	if !feeShares.IsPositive() {
		return nil
	}
	strategistShares := feeShares.
		MulRaw(int64(v.cfg.FeeDistribution.StrategistRatioBps)).
		QuoRaw(types.BasisPointsDivisor)
	platformShares := feeShares.Sub(strategistShares)

	if strategistShares.IsPositive() {
		if err := v.shares.Mint(v.cfg.FeeDistribution.StrategistAccount, strategistShares); err != nil {
			return fmt.Errorf("strategist fee mint failed: %w", err)
		}
	}
	if platformShares.IsPositive() {
		if err := v.shares.Mint(v.cfg.FeeDistribution.PlatformAccount, platformShares); err != nil {
			return fmt.Errorf("platform fee mint failed: %w", err)
		}
	}
	v.logger.Info().
		Str("feesOwed", v.feesOwedInAsset.String()).
		Str("strategistShares", strategistShares.String()).
		Str("platformShares", platformShares.String()).
		Msg("Distributed accrued fees")
	return nil
}

// UpdateConfig replaces the vault configuration wholesale. Only the vault
// owner may call it, and an invalid replacement is rejected with the current
// config untouched.
func (v *Vault) UpdateConfig(caller string, newCfg types.VaultConfig) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.owner {
		return fmt.Errorf("%w: %s", types.ErrNotOwner, caller)
	}
	if newCfg.Version == 0 {
		newCfg.Version = v.cfg.Version + 1
	}
	if err := newCfg.Validate(); err != nil {
		return err
	}

	depositEscrow, err := escrow.NewAccount(newCfg.DepositAccount, v.asset)
	if err != nil {
		return err
	}
	withdrawEscrow, err := escrow.NewAccount(newCfg.WithdrawAccount, v.asset)
	if err != nil {
		return err
	}

	v.cfg = newCfg
	v.depositEscrow = depositEscrow
	v.withdrawEscrow = withdrawEscrow

	v.logger.Info().
		Int("version", newCfg.Version).
		Str("strategist", newCfg.Strategist).
		Msg("Vault config replaced")
	v.emit(types.EventConfigUpdated, map[string]string{
		"version":    fmt.Sprintf("%d", newCfg.Version),
		"strategist": newCfg.Strategist,
	})
	return nil
}
