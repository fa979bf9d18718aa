package vault

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/qvault-labs/qvm/internal/ledger"
	"github.com/qvault-labs/qvm/internal/types"
)

const (
	acctOwner       = "vault-owner"
	acctPauser      = "vault-pauser"
	acctStrategist  = "strategist"
	acctVault       = "vault-account"
	acctDepositEsc  = "deposit-escrow"
	acctWithdrawEsc = "withdraw-escrow"
	acctFeeStrat    = "fee-strategist"
	acctFeePlat     = "fee-platform"
	acctAlice       = "alice"
	acctBob         = "bob"
	acctSolver      = "solver"
)

// fakeClock is a manually advanced clock for deterministic tests.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	t      *testing.T
	v      *Vault
	shares *ledger.Ledger
	asset  *ledger.Ledger
	native *ledger.Ledger
	clock  *fakeClock
}

func defaultConfig() types.VaultConfig {
	return types.VaultConfig{
		Version:           1,
		DepositAccount:    acctDepositEsc,
		WithdrawAccount:   acctWithdrawEsc,
		Strategist:        acctStrategist,
		DepositCap:        sdkmath.ZeroInt(),
		MaxWithdrawFeeBps: 500,
		WithdrawLockup:    24 * time.Hour,
		Fees: types.FeeConfig{
			SolverCompletionFee: sdkmath.ZeroInt(),
		},
		FeeDistribution: types.FeeDistributionConfig{
			StrategistAccount:  acctFeeStrat,
			PlatformAccount:    acctFeePlat,
			StrategistRatioBps: 5000,
		},
	}
}

func newFixture(t *testing.T, cfg types.VaultConfig) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	shares := ledger.New("qvSHARE")
	asset := ledger.New("qvASSET")
	native := ledger.New("qvNATIVE")

	v, err := New(Config{
		VaultConfig: cfg,
		Owner:       acctOwner,
		Pauser:      acctPauser,
		Address:     acctVault,
		Shares:      shares,
		Asset:       asset,
		Native:      native,
		Clock:       clock,
	})
	require.NoError(t, err)

	return &fixture{t: t, v: v, shares: shares, asset: asset, native: native, clock: clock}
}

func (f *fixture) fundAsset(account string, amount int64) {
	f.t.Helper()
	require.NoError(f.t, f.asset.Mint(account, sdkmath.NewInt(amount)))
}

// deposit funds account with amount assets and deposits them all.
func (f *fixture) deposit(account string, amount int64) sdkmath.Int {
	f.t.Helper()
	f.fundAsset(account, amount)
	shares, err := f.v.Deposit(account, account, sdkmath.NewInt(amount))
	require.NoError(f.t, err)
	return shares
}

// update advances the clock one second and pushes a strategist update.
func (f *fixture) update(rate string, feeBps uint64, netting int64) uint64 {
	f.t.Helper()
	f.clock.advance(time.Second)
	id, err := f.v.Update(acctStrategist, sdkmath.LegacyMustNewDecFromStr(rate), feeBps, sdkmath.NewInt(netting))
	require.NoError(f.t, err)
	return id
}

func TestNewVaultValidatesDeps(t *testing.T) {
	cfg := defaultConfig()

	_, err := New(Config{VaultConfig: cfg})
	require.Error(t, err)

	badCfg := cfg
	badCfg.Strategist = ""
	_, err = New(Config{
		VaultConfig: badCfg,
		Owner:       acctOwner,
		Address:     acctVault,
		Shares:      ledger.New("s"),
		Asset:       ledger.New("a"),
		Native:      ledger.New("n"),
	})
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestInitialScalars(t *testing.T) {
	f := newFixture(t, defaultConfig())

	s := f.v.Scalars()
	require.Equal(t, sdkmath.LegacyOneDec(), s.RedemptionRate)
	require.Equal(t, sdkmath.LegacyOneDec(), s.MaxHistoricalRate)
	require.True(t, s.FeesOwedInAsset.IsZero())
	require.True(t, s.TotalShares.IsZero())
	require.True(t, s.PendingWithdrawAssets.IsZero())
	require.EqualValues(t, 0, s.CurrentUpdateID)
	require.EqualValues(t, 1, s.NextWithdrawRequestID)
	require.False(t, s.Paused)
}

func TestConversionRoundTrip(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 10_000)
	f.update("1.25", 0, 0)

	cases := []struct {
		assets, shares, back int64
	}{
		{1000, 800, 1000},
		{1001, 800, 1000},
		{3, 2, 2},
	}
	for _, tc := range cases {
		shares := f.v.ConvertToShares(sdkmath.NewInt(tc.assets))
		require.Equal(t, sdkmath.NewInt(tc.shares), shares)
		back := f.v.ConvertToAssets(shares)
		require.Equal(t, sdkmath.NewInt(tc.back), back)
		// Both directions floor, so a round trip never manufactures value.
		require.True(t, back.LTE(sdkmath.NewInt(tc.assets)))
	}
}

func TestPauseAuthorization(t *testing.T) {
	f := newFixture(t, defaultConfig())

	require.ErrorIs(t, f.v.Pause(acctAlice), types.ErrUnauthorized)
	require.NoError(t, f.v.Pause(acctPauser))
	require.True(t, f.v.Scalars().Paused)

	require.ErrorIs(t, f.v.Unpause(acctAlice), types.ErrUnauthorized)
	require.NoError(t, f.v.Unpause(acctOwner))
	require.False(t, f.v.Scalars().Paused)
}

func TestPauseBlocksOperations(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 1000)
	require.NoError(t, f.v.Pause(acctPauser))

	f.fundAsset(acctAlice, 100)
	_, err := f.v.Deposit(acctAlice, acctAlice, sdkmath.NewInt(100))
	require.ErrorIs(t, err, types.ErrPaused)

	_, err = f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(100), 0, false)
	require.ErrorIs(t, err, types.ErrPaused)

	f.clock.advance(time.Second)
	_, err = f.v.Update(acctStrategist, sdkmath.LegacyOneDec(), 0, sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrPaused)

	err = f.v.CompleteWithdraw(acctAlice, acctAlice)
	require.ErrorIs(t, err, types.ErrPaused)
}

func TestOwnersWithPending(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 1000)
	f.deposit(acctBob, 1000)

	require.Empty(t, f.v.OwnersWithPending())

	_, err := f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(100), 0, false)
	require.NoError(t, err)
	_, err = f.v.Redeem(acctBob, acctBob, acctBob, sdkmath.NewInt(100), 0, false)
	require.NoError(t, err)

	owners := f.v.OwnersWithPending()
	require.Len(t, owners, 2)
	require.ElementsMatch(t, []string{acctAlice, acctBob}, owners)
}
