package vault

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/qvault-labs/qvm/internal/ledger"
	"github.com/qvault-labs/qvm/internal/types"
)

func TestUpdateRequiresStrategist(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.clock.advance(time.Second)

	_, err := f.v.Update(acctAlice, sdkmath.LegacyOneDec(), 0, sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrNotStrategist)
}

func TestUpdateRejectsBadInput(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.clock.advance(time.Second)

	_, err := f.v.Update(acctStrategist, sdkmath.LegacyZeroDec(), 0, sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrInvalidRate)

	// Max withdraw fee in the default config is 500 bps.
	_, err = f.v.Update(acctStrategist, sdkmath.LegacyOneDec(), 501, sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrWithdrawFeeTooHigh)

	_, err = f.v.Update(acctStrategist, sdkmath.LegacyOneDec(), 0, sdkmath.NewInt(-1))
	require.ErrorIs(t, err, types.ErrZeroAmount)
}

func TestUpdateCommitsRecord(t *testing.T) {
	f := newFixture(t, defaultConfig())
	id := f.update("1.05", 100, 0)
	require.EqualValues(t, 1, id)

	s := f.v.Scalars()
	require.EqualValues(t, 1, s.CurrentUpdateID)
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("1.05"), s.RedemptionRate)
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("1.05"), s.MaxHistoricalRate)

	rec, err := f.v.UpdateRecord(1)
	require.NoError(t, err)
	require.EqualValues(t, 1, rec.UpdateID)
	require.EqualValues(t, 100, rec.WithdrawFeeBps)
	// The recorded rate is already net of the 100 bps withdrawal fee.
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("1.0395"), rec.WithdrawRate)

	_, err = f.v.UpdateRecord(2)
	require.ErrorIs(t, err, types.ErrUpdateNotFound)
}

func TestSameSecondUpdateRejected(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.update("1.0", 0, 0)

	_, err := f.v.Update(acctStrategist, sdkmath.LegacyOneDec(), 0, sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrSameBlockUpdate)
	require.EqualValues(t, 1, f.v.Scalars().CurrentUpdateID)

	f.clock.advance(time.Second)
	id, err := f.v.Update(acctStrategist, sdkmath.LegacyOneDec(), 0, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.EqualValues(t, 2, id)
	require.EqualValues(t, 2, f.v.Scalars().CurrentUpdateID)
}

func TestNettingMovesEscrowFunds(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 10_000)

	f.update("1.0", 0, 4_000)
	require.Equal(t, sdkmath.NewInt(6_000), f.asset.BalanceOf(acctDepositEsc))
	require.Equal(t, sdkmath.NewInt(4_000), f.asset.BalanceOf(acctWithdrawEsc))
}

func TestNettingOverdraftRejectsWholeUpdate(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 1_000)
	f.clock.advance(time.Second)

	_, err := f.v.Update(acctStrategist, sdkmath.LegacyMustNewDecFromStr("1.1"), 0, sdkmath.NewInt(1_001))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// Nothing moved: no record, old rate, escrow untouched.
	s := f.v.Scalars()
	require.EqualValues(t, 0, s.CurrentUpdateID)
	require.Equal(t, sdkmath.LegacyOneDec(), s.RedemptionRate)
	require.Equal(t, sdkmath.NewInt(1_000), f.asset.BalanceOf(acctDepositEsc))
}

func TestUpdateClearsPendingWithdrawAssets(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 10_000)

	_, err := f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(2_000), 0, false)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(2_000), f.v.Scalars().PendingWithdrawAssets)

	f.update("1.0", 0, 2_000)
	require.True(t, f.v.Scalars().PendingWithdrawAssets.IsZero())
}

func TestPerformanceFeeAboveHighWaterMark(t *testing.T) {
	cfg := defaultConfig()
	cfg.Fees.PerformanceFeeBps = 2_000
	f := newFixture(t, cfg)
	f.deposit(acctAlice, 10_000)

	// First update sets the share baseline; no performance fee yet.
	f.update("1.0", 0, 0)
	require.True(t, f.v.Scalars().FeesOwedInAsset.IsZero())

	// Rate climbs above the 1.0 high-water mark: 20% of the 1000 yield.
	f.update("1.1", 0, 0)
	s := f.v.Scalars()
	require.Equal(t, sdkmath.NewInt(200), s.FeesOwedInAsset)
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("1.1"), s.MaxHistoricalRate)

	// A drop below the mark accrues nothing and leaves the mark in place,
	// while the previously accrued fee is distributed at the outgoing rate.
	f.update("1.05", 0, 0)
	s = f.v.Scalars()
	require.True(t, s.FeesOwedInAsset.IsZero())
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("1.1"), s.MaxHistoricalRate)

	// 200 assets at rate 1.1 is 181 shares, split by the 50/50 ratio.
	require.Equal(t, sdkmath.NewInt(90), f.shares.BalanceOf(acctFeeStrat))
	require.Equal(t, sdkmath.NewInt(91), f.shares.BalanceOf(acctFeePlat))

	// Recovering to the mark exactly still accrues nothing.
	f.update("1.1", 0, 0)
	require.True(t, f.v.Scalars().FeesOwedInAsset.IsZero())
}

func TestPlatformFeeProratedOverTime(t *testing.T) {
	cfg := defaultConfig()
	cfg.Fees.PlatformFeeBps = 100
	f := newFixture(t, cfg)
	f.deposit(acctAlice, 10_000)

	f.update("1.0", 0, 0)

	// A full year at 100 bps on 10,000 assets accrues exactly 100.
	f.clock.advance(types.SecondsPerYear * time.Second)
	_, err := f.v.Update(acctStrategist, sdkmath.LegacyOneDec(), 0, sdkmath.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100), f.v.Scalars().FeesOwedInAsset)

	// The accrual is distributed on the following update.
	f.update("1.0", 0, 0)
	require.True(t, f.v.Scalars().FeesOwedInAsset.IsZero())
	require.Equal(t, sdkmath.NewInt(50), f.shares.BalanceOf(acctFeeStrat))
	require.Equal(t, sdkmath.NewInt(50), f.shares.BalanceOf(acctFeePlat))
}

func TestDepositFeeDistributedOnUpdate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Fees.DepositFeeBps = 100
	f := newFixture(t, cfg)
	f.deposit(acctAlice, 10_000)
	require.Equal(t, sdkmath.NewInt(100), f.v.Scalars().FeesOwedInAsset)

	f.update("1.0", 0, 0)
	require.True(t, f.v.Scalars().FeesOwedInAsset.IsZero())
	require.Equal(t, sdkmath.NewInt(50), f.shares.BalanceOf(acctFeeStrat))
	require.Equal(t, sdkmath.NewInt(50), f.shares.BalanceOf(acctFeePlat))
}

func TestUpdateConfigRequiresOwner(t *testing.T) {
	f := newFixture(t, defaultConfig())

	err := f.v.UpdateConfig(acctStrategist, defaultConfig())
	require.ErrorIs(t, err, types.ErrNotOwner)
}

func TestUpdateConfigReplacesWholesale(t *testing.T) {
	f := newFixture(t, defaultConfig())

	newCfg := defaultConfig()
	newCfg.Version = 0 // auto-increment
	newCfg.Strategist = "strategist-2"
	newCfg.MaxWithdrawFeeBps = 300
	require.NoError(t, f.v.UpdateConfig(acctOwner, newCfg))

	got := f.v.Config()
	require.Equal(t, 2, got.Version)
	require.Equal(t, "strategist-2", got.Strategist)

	// The old strategist lost update rights with the config swap.
	f.clock.advance(time.Second)
	_, err := f.v.Update(acctStrategist, sdkmath.LegacyOneDec(), 0, sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrNotStrategist)
	_, err = f.v.Update("strategist-2", sdkmath.LegacyOneDec(), 0, sdkmath.ZeroInt())
	require.NoError(t, err)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	f := newFixture(t, defaultConfig())

	bad := defaultConfig()
	bad.WithdrawLockup = 0
	err := f.v.UpdateConfig(acctOwner, bad)
	require.ErrorIs(t, err, types.ErrInvalidConfig)
	require.Equal(t, 1, f.v.Config().Version)
}
