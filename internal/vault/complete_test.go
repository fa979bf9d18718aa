package vault

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/qvault-labs/qvm/internal/ledger"
	"github.com/qvault-labs/qvm/internal/types"
)

func TestCompleteWithoutRequest(t *testing.T) {
	f := newFixture(t, defaultConfig())

	err := f.v.CompleteWithdraw(acctAlice, acctAlice)
	require.ErrorIs(t, err, types.ErrRequestNotFound)
	require.False(t, IsRetryable(err))
}

func TestCompleteBeforeUpdateRecorded(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 10_000)

	_, err := f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(1_000), 0, false)
	require.NoError(t, err)

	// The pricing update has not happened yet.
	err = f.v.CompleteWithdraw(acctAlice, acctAlice)
	require.ErrorIs(t, err, types.ErrNotClaimable)
	require.True(t, IsRetryable(err))
}

func TestCompleteRespectsLockup(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 10_000)

	_, err := f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(1_000), 0, false)
	require.NoError(t, err)
	f.update("1.0", 0, 1_000)

	err = f.v.CompleteWithdraw(acctAlice, acctAlice)
	require.ErrorIs(t, err, types.ErrNotClaimable)

	f.clock.advance(24 * time.Hour)
	require.NoError(t, f.v.CompleteWithdraw(acctAlice, acctAlice))
	require.Equal(t, sdkmath.NewInt(1_000), f.asset.BalanceOf(acctAlice))
}

func TestPayoutAtRecordedNetRate(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 10_000)
	f.update("1.0", 0, 0)

	// Tolerates up to 600 bps of loss; rate drops to 0.94 with a 100 bps fee.
	_, err := f.v.Redeem(acctAlice, acctAlice, acctBob, sdkmath.NewInt(1_000), 600, false)
	require.NoError(t, err)
	f.update("0.94", 100, 1_000)
	f.clock.advance(24 * time.Hour)

	require.NoError(t, f.v.CompleteWithdraw(acctAlice, acctAlice))

	// 1000 shares at the net rate 0.94 * 0.99 = 0.9306, floored.
	require.Equal(t, sdkmath.NewInt(930), f.asset.BalanceOf(acctBob))
	require.Equal(t, sdkmath.NewInt(70), f.asset.BalanceOf(acctWithdrawEsc))
	require.Empty(t, f.v.PendingRequests(acctAlice))
}

func TestRefundWhenLossExceedsTolerance(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 10_000)
	f.update("1.0", 0, 0)

	// Tolerates only 500 bps; the realized fee-exclusive loss is 600 bps, so
	// the request bounces back as shares net of the 100 bps withdrawal fee.
	_, err := f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(1_000), 500, false)
	require.NoError(t, err)
	f.update("0.94", 100, 1_000)
	f.clock.advance(24 * time.Hour)

	require.NoError(t, f.v.CompleteWithdraw(acctAlice, acctAlice))

	require.Equal(t, sdkmath.NewInt(9_990), f.shares.BalanceOf(acctAlice))
	// No assets left the withdraw escrow.
	require.Equal(t, sdkmath.NewInt(1_000), f.asset.BalanceOf(acctWithdrawEsc))
	require.True(t, f.asset.BalanceOf(acctAlice).IsZero())
	require.Empty(t, f.v.PendingRequests(acctAlice))
}

func TestFeeItselfIsNotLoss(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 10_000)
	f.update("1.0", 0, 0)

	// Zero tolerance, flat rate, 100 bps fee: the fee alone must not refund.
	_, err := f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(1_000), 0, false)
	require.NoError(t, err)
	f.update("1.0", 100, 1_000)
	f.clock.advance(24 * time.Hour)

	require.NoError(t, f.v.CompleteWithdraw(acctAlice, acctAlice))
	require.Equal(t, sdkmath.NewInt(990), f.asset.BalanceOf(acctAlice))
}

func TestPayoutRequiresFundedEscrow(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 10_000)
	f.update("1.0", 0, 0)

	_, err := f.v.Redeem(acctAlice, acctAlice, acctBob, sdkmath.NewInt(1_000), 0, false)
	require.NoError(t, err)
	// The pricing update arrives without netting, leaving the withdraw
	// escrow empty.
	f.update("1.0", 0, 0)
	f.clock.advance(24 * time.Hour)

	err = f.v.CompleteWithdraw(acctAlice, acctAlice)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	// The failed payout moved nothing and the request survives for a retry.
	require.True(t, f.asset.BalanceOf(acctBob).IsZero())
	require.Len(t, f.v.PendingRequests(acctAlice), 1)

	// Once a later update funds the escrow, the same request settles.
	f.update("1.0", 0, 1_000)
	require.NoError(t, f.v.CompleteWithdraw(acctAlice, acctAlice))
	require.Equal(t, sdkmath.NewInt(1_000), f.asset.BalanceOf(acctBob))
	require.Empty(t, f.v.PendingRequests(acctAlice))
}

func TestCompleteSettlesOldestFirst(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 10_000)
	f.update("1.0", 0, 0)

	for i := 0; i < 3; i++ {
		_, err := f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(100), 0, false)
		require.NoError(t, err)
	}
	f.update("1.0", 0, 300)
	f.clock.advance(24 * time.Hour)

	require.NoError(t, f.v.CompleteWithdraw(acctAlice, acctAlice))
	pending := f.v.PendingRequests(acctAlice)
	require.Len(t, pending, 2)
	require.EqualValues(t, 2, pending[0].RequestID)
	require.EqualValues(t, 3, pending[1].RequestID)
}

func TestSolverGating(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 10_000)
	f.update("1.0", 0, 0)

	_, err := f.v.Redeem(acctAlice, acctAlice, acctBob, sdkmath.NewInt(1_000), 0, false)
	require.NoError(t, err)
	f.update("1.0", 0, 1_000)
	f.clock.advance(24 * time.Hour)

	// Solver disabled: a third party may not complete, the receiver may.
	err = f.v.CompleteWithdraw(acctSolver, acctAlice)
	require.ErrorIs(t, err, types.ErrSolverNotAllowed)
	require.NoError(t, f.v.CompleteWithdraw(acctBob, acctAlice))
	require.Equal(t, sdkmath.NewInt(1_000), f.asset.BalanceOf(acctBob))
}

func TestSolverFeePaidToCompleter(t *testing.T) {
	cfg := defaultConfig()
	cfg.Fees.SolverCompletionFee = sdkmath.NewInt(50)
	f := newFixture(t, cfg)
	f.deposit(acctAlice, 10_000)
	require.NoError(t, f.native.Mint(acctAlice, sdkmath.NewInt(50)))
	f.update("1.0", 0, 0)

	_, err := f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(500), 0, true)
	require.NoError(t, err)
	f.update("1.0", 0, 500)
	f.clock.advance(24 * time.Hour)

	require.NoError(t, f.v.CompleteWithdraw(acctSolver, acctAlice))
	require.Equal(t, sdkmath.NewInt(50), f.native.BalanceOf(acctSolver))
	require.True(t, f.native.BalanceOf(acctVault).IsZero())
	require.Equal(t, sdkmath.NewInt(500), f.asset.BalanceOf(acctAlice))
}

func TestSolverFeeReturnedOnRefund(t *testing.T) {
	cfg := defaultConfig()
	cfg.Fees.SolverCompletionFee = sdkmath.NewInt(50)
	f := newFixture(t, cfg)
	f.deposit(acctAlice, 10_000)
	require.NoError(t, f.native.Mint(acctAlice, sdkmath.NewInt(50)))
	f.update("1.0", 0, 0)

	_, err := f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(500), 0, true)
	require.NoError(t, err)
	f.update("0.9", 0, 0)
	f.clock.advance(24 * time.Hour)

	// 1000 bps realized loss against zero tolerance: refund, fee goes back
	// to the payer, not to the completing solver.
	require.NoError(t, f.v.CompleteWithdraw(acctSolver, acctAlice))
	require.Equal(t, sdkmath.NewInt(50), f.native.BalanceOf(acctAlice))
	require.True(t, f.native.BalanceOf(acctSolver).IsZero())
	require.Equal(t, sdkmath.NewInt(10_000), f.shares.BalanceOf(acctAlice))
}

func TestBatchCompletionIsolation(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 1_000)
	f.deposit(acctBob, 1_000)

	_, err := f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(100), 0, true)
	require.NoError(t, err)
	f.update("1.0", 0, 100)

	// Bob's request is priced by the next update, which never comes.
	_, err = f.v.Redeem(acctBob, acctBob, acctBob, sdkmath.NewInt(100), 0, true)
	require.NoError(t, err)
	f.clock.advance(24 * time.Hour)

	skipped, err := f.v.CompleteWithdraws(acctSolver, []string{acctAlice, acctBob})
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	require.ErrorIs(t, skipped[acctBob], types.ErrNotClaimable)

	require.Equal(t, sdkmath.NewInt(100), f.asset.BalanceOf(acctAlice))
	require.Len(t, f.v.PendingRequests(acctBob), 1)
}

func TestBatchRejectsEmptyOwner(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.deposit(acctAlice, 1_000)
	_, err := f.v.Redeem(acctAlice, acctAlice, acctAlice, sdkmath.NewInt(100), 0, true)
	require.NoError(t, err)
	f.update("1.0", 0, 100)
	f.clock.advance(24 * time.Hour)

	_, err = f.v.CompleteWithdraws(acctSolver, []string{acctAlice, ""})
	require.ErrorIs(t, err, types.ErrZeroAddress)
	// The whole batch aborted: alice's request is still pending.
	require.Len(t, f.v.PendingRequests(acctAlice), 1)
}
