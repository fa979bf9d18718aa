package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/qvault-labs/qvm/internal/types"
)

// Deposit pulls assets from caller into the deposit escrow account and mints
// shares to receiver at the current redemption rate, net of the deposit fee.
// Returns the share amount minted.
func (v *Vault) Deposit(caller, receiver string, assets sdkmath.Int) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkDeposit(caller, receiver, assets); err != nil {
		return sdkmath.ZeroInt(), err
	}

	fee := depositFee(assets, v.cfg.Fees.DepositFeeBps)
	shares := convertToShares(assets.Sub(fee), v.redemptionRate)
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s assets mints no shares", types.ErrZeroAmount, assets.String())
	}

	if err := v.asset.Transfer(caller, v.cfg.DepositAccount, assets); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("deposit transfer failed: %w", err)
	}
	if err := v.shares.Mint(receiver, shares); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("share mint failed: %w", err)
	}
	v.feesOwedInAsset = v.feesOwedInAsset.Add(fee)

	v.logger.Info().
		Str("caller", caller).
		Str("receiver", receiver).
		Str("assets", assets.String()).
		Str("fee", fee.String()).
		Str("shares", shares.String()).
		Msg("Deposit accepted")
	v.emit(types.EventDeposit, map[string]string{
		"caller":   caller,
		"receiver": receiver,
		"assets":   assets.String(),
		"fee":      fee.String(),
		"shares":   shares.String(),
	})
	return shares, nil
}

// Mint is the exact-output variant of Deposit: it pulls however many assets
// are needed (fee included) to mint exactly shares to receiver.
func (v *Vault) Mint(caller, receiver string, shares sdkmath.Int) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: mint of %s shares", types.ErrZeroAmount, shares.String())
	}
	grossAssets, fee, err := mintFee(shares, v.redemptionRate, v.cfg.Fees.DepositFeeBps)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := v.checkDeposit(caller, receiver, grossAssets); err != nil {
		return sdkmath.ZeroInt(), err
	}

	if err := v.asset.Transfer(caller, v.cfg.DepositAccount, grossAssets); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("deposit transfer failed: %w", err)
	}
	if err := v.shares.Mint(receiver, shares); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("share mint failed: %w", err)
	}
	v.feesOwedInAsset = v.feesOwedInAsset.Add(fee)

	v.logger.Info().
		Str("caller", caller).
		Str("receiver", receiver).
		Str("assets", grossAssets.String()).
		Str("fee", fee.String()).
		Str("shares", shares.String()).
		Msg("Mint accepted")
	v.emit(types.EventDeposit, map[string]string{
		"caller":   caller,
		"receiver": receiver,
		"assets":   grossAssets.String(),
		"fee":      fee.String(),
		"shares":   shares.String(),
	})
	return grossAssets, nil
}

// checkDeposit runs the shared validations for Deposit and Mint against the
// incoming gross asset amount.
func (v *Vault) checkDeposit(caller, receiver string, assets sdkmath.Int) error {
	if v.paused {
		return types.ErrPaused
	}
	if caller == "" || receiver == "" {
		return types.ErrZeroAddress
	}
	if assets.IsNil() || !assets.IsPositive() {
		return fmt.Errorf("%w: deposit of %s assets", types.ErrZeroAmount, assets.String())
	}
	if v.cfg.DepositCap.IsPositive() {
		totalAssets := convertToAssets(v.shares.TotalSupply(), v.redemptionRate)
		if totalAssets.Add(assets).GT(v.cfg.DepositCap) {
			return fmt.Errorf("%w: %s + %s exceeds cap %s",
				types.ErrDepositCapExceeded, totalAssets.String(), assets.String(), v.cfg.DepositCap.String())
		}
	}
	return nil
}

// CalculateDepositFee reports the fee charged on a deposit of assets.
func (v *Vault) CalculateDepositFee(assets sdkmath.Int) sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return depositFee(assets, v.cfg.Fees.DepositFeeBps)
}

// CalculateMintFee reports the gross asset amount and the fee portion needed
// to mint exactly shares at the current rate.
func (v *Vault) CalculateMintFee(shares sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return mintFee(shares, v.redemptionRate, v.cfg.Fees.DepositFeeBps)
}

func depositFee(assets sdkmath.Int, feeBps uint64) sdkmath.Int {
	if assets.IsNil() || !assets.IsPositive() || feeBps == 0 {
		return sdkmath.ZeroInt()
	}
	return assets.MulRaw(int64(feeBps)).QuoRaw(types.BasisPointsDivisor)
}

// mintFee inverts the deposit formula: given a target share amount, it
// returns the gross assets to pull and the fee inside them, both rounded up
// so the net amount always covers the shares.
func mintFee(shares sdkmath.Int, rate sdkmath.LegacyDec, feeBps uint64) (sdkmath.Int, sdkmath.Int, error) {
	if feeBps >= types.BasisPointsDivisor {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(),
			fmt.Errorf("%w: deposit fee of %d bps leaves nothing to mint with", types.ErrInvalidConfig, feeBps)
	}
	netAssets := rate.MulInt(shares).Ceil().TruncateInt()
	if feeBps == 0 {
		return netAssets, sdkmath.ZeroInt(), nil
	}
	keep := int64(types.BasisPointsDivisor - feeBps)
	gross := netAssets.MulRaw(types.BasisPointsDivisor).Add(sdkmath.NewInt(keep - 1)).QuoRaw(keep)
	return gross, gross.Sub(netAssets), nil
}
