package vault

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/qvault-labs/qvm/internal/ledger"
	"github.com/qvault-labs/qvm/internal/types"
)

// CompleteWithdraw settles the oldest pending request of owner: it pays out
// assets at the net rate recorded by the request's update, or refunds shares
// when the realized loss exceeds the request's tolerance. Either way the
// request is terminated.
func (v *Vault) CompleteWithdraw(caller, owner string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.completeOldest(caller, owner)
}

// CompleteWithdraws settles the oldest pending request of each listed owner.
// Owners whose request is not ready (no request, record missing, lockup
// running) are skipped and stay pending; a malformed owner aborts the whole
// batch. Returns one error per skipped owner, keyed by owner.
func (v *Vault) CompleteWithdraws(caller string, owners []string) (map[string]error, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, owner := range owners {
		if owner == "" {
			return nil, fmt.Errorf("batch completion: %w", types.ErrZeroAddress)
		}
	}

	skipped := make(map[string]error)
	for _, owner := range owners {
		if err := v.completeOldest(caller, owner); err != nil {
			// Per-owner isolation: one stuck or non-ready request must not
			// starve the rest of the batch.
			skipped[owner] = err
			v.logger.Debug().Err(err).Str("owner", owner).Msg("Batch completion skipped owner")
		}
	}
	return skipped, nil
}

func (v *Vault) completeOldest(caller, owner string) error {
	if v.paused {
		return types.ErrPaused
	}
	if caller == "" || owner == "" {
		return types.ErrZeroAddress
	}

	tail := v.chainTail[owner]
	if tail == 0 {
		return fmt.Errorf("%w: owner %s", types.ErrRequestNotFound, owner)
	}
	req := v.requests[tail]

	rec, ok := v.updates[req.UpdateID]
	if !ok {
		return fmt.Errorf("%w: update %d not recorded yet", types.ErrNotClaimable, req.UpdateID)
	}
	if v.clock.Now().Before(rec.Timestamp.Add(v.cfg.WithdrawLockup)) {
		return fmt.Errorf("%w: lockup ends %s", types.ErrNotClaimable,
			rec.Timestamp.Add(v.cfg.WithdrawLockup).Format(time.RFC3339))
	}
	if !req.SolverEnabled && caller != req.Owner && caller != req.Receiver {
		return fmt.Errorf("%w: request %d", types.ErrSolverNotAllowed, req.RequestID)
	}

	lossBps := realizedLossBps(req.CreationRate, rec)
	if lossBps > int64(req.MaxLossBps) {
		return v.refundRequest(req, rec, lossBps)
	}
	return v.payoutRequest(caller, req, rec, lossBps)
}

// realizedLossBps measures the fee-exclusive shortfall between the rate the
// owner saw at request time and the net rate actually realized: the creation
// rate is netted by the same withdrawal fee before comparison, so the fee
// itself never counts as loss.
func realizedLossBps(creationRate sdkmath.LegacyDec, rec types.UpdateRecord) int64 {
	expectedNet := creationRate.MulTruncate(sdkmath.LegacyOneDec().Sub(bpsDec(rec.WithdrawFeeBps)))
	if !expectedNet.IsPositive() || rec.WithdrawRate.GTE(expectedNet) {
		return 0
	}
	return expectedNet.Sub(rec.WithdrawRate).
		QuoTruncate(expectedNet).
		MulInt64(types.BasisPointsDivisor).
		TruncateInt64()
}

// refundRequest hands the shares back instead of paying assets. The owner
// keeps skin in the game equal to the withdrawal fee that would have
// applied; the solver fee goes back to whoever originally paid it.
func (v *Vault) refundRequest(req *types.WithdrawRequest, rec types.UpdateRecord, lossBps int64) error {
	returnFee := req.SolverFee.IsPositive() && req.SolverFeePayer != ""
	if returnFee && v.native.BalanceOf(v.address).LT(req.SolverFee) {
		return fmt.Errorf("solver fee refund needs %s: %w", req.SolverFee.String(), ledger.ErrInsufficientBalance)
	}

	// Terminate the request before moving anything, so a settled request can
	// never be settled again. The transfers below were verified above.
	v.unlinkOldest(req.Owner)

	refundShares := req.Shares.
		MulRaw(int64(types.BasisPointsDivisor - rec.WithdrawFeeBps)).
		QuoRaw(types.BasisPointsDivisor)
	if refundShares.IsPositive() {
		if err := v.shares.Mint(req.Owner, refundShares); err != nil {
			return fmt.Errorf("refund mint failed: %w", err)
		}
	}
	if returnFee {
		if err := v.native.Transfer(v.address, req.SolverFeePayer, req.SolverFee); err != nil {
			return fmt.Errorf("solver fee refund failed: %w", err)
		}
	}

	reason := fmt.Sprintf("realized loss %d bps exceeds tolerance %d bps", lossBps, req.MaxLossBps)
	v.logger.Warn().
		Uint64("requestId", req.RequestID).
		Str("owner", req.Owner).
		Str("refundedShares", refundShares.String()).
		Int64("lossBps", lossBps).
		Uint64("maxLossBps", req.MaxLossBps).
		Msg("Withdraw refunded")
	v.emit(types.EventWithdrawRefunded, map[string]string{
		"request_id":      fmt.Sprintf("%d", req.RequestID),
		"owner":           req.Owner,
		"refunded_shares": refundShares.String(),
		"reason":          reason,
	})
	return nil
}

// payoutRequest pays the request at the recorded net rate and routes the
// solver fee to the completing caller. Both balances are verified before
// anything leaves escrow, so a failed payout leaves the request pending and
// the escrow untouched.
func (v *Vault) payoutRequest(caller string, req *types.WithdrawRequest, rec types.UpdateRecord, lossBps int64) error {
	assets := rec.WithdrawRate.MulInt(req.Shares).TruncateInt()
	if assets.GT(v.withdrawEscrow.Balance()) {
		return fmt.Errorf("withdraw payout needs %s, escrow holds %s: %w",
			assets.String(), v.withdrawEscrow.Balance().String(), ledger.ErrInsufficientBalance)
	}
	payFee := req.SolverEnabled && req.SolverFee.IsPositive()
	if payFee && v.native.BalanceOf(v.address).LT(req.SolverFee) {
		return fmt.Errorf("solver fee payment needs %s: %w", req.SolverFee.String(), ledger.ErrInsufficientBalance)
	}

	// Terminate the request before moving anything, so a settled request can
	// never be settled again. The transfers below were verified above.
	v.unlinkOldest(req.Owner)

	if assets.IsPositive() {
		if err := v.withdrawEscrow.TransferTo(req.Receiver, assets); err != nil {
			return fmt.Errorf("withdraw payout failed: %w", err)
		}
	}
	if payFee {
		if err := v.native.Transfer(v.address, caller, req.SolverFee); err != nil {
			return fmt.Errorf("solver fee payment failed: %w", err)
		}
	}

	v.logger.Info().
		Uint64("requestId", req.RequestID).
		Str("owner", req.Owner).
		Str("receiver", req.Receiver).
		Str("assets", assets.String()).
		Str("rate", rec.WithdrawRate.String()).
		Int64("lossBps", lossBps).
		Str("completedBy", caller).
		Msg("Withdraw completed")
	v.emit(types.EventWithdrawCompleted, map[string]string{
		"request_id": fmt.Sprintf("%d", req.RequestID),
		"owner":      req.Owner,
		"receiver":   req.Receiver,
		"assets":     assets.String(),
		"rate":       rec.WithdrawRate.String(),
	})
	return nil
}

// IsRetryable reports whether err is the "try again later" completion error
// rather than a terminal one.
func IsRetryable(err error) bool {
	return errors.Is(err, types.ErrNotClaimable)
}
