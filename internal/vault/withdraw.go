package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/qvault-labs/qvm/internal/ledger"
	"github.com/qvault-labs/qvm/internal/types"
)

// Withdraw queues a withdrawal worth assets at the current redemption rate.
// Shares are burned immediately; the assets are paid out (or the shares
// refunded) once the request's update record exists and its lockup has
// elapsed. Returns the new request id.
func (v *Vault) Withdraw(caller, owner, receiver string, assets sdkmath.Int, maxLossBps uint64, solverEnabled bool) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if assets.IsNil() || !assets.IsPositive() {
		return 0, fmt.Errorf("%w: withdraw of %s assets", types.ErrZeroAmount, assets.String())
	}
	shares := convertToShares(assets, v.redemptionRate)
	return v.requestWithdraw(caller, owner, receiver, shares, maxLossBps, solverEnabled)
}

// Redeem queues a withdrawal of an exact share amount. See Withdraw.
func (v *Vault) Redeem(caller, owner, receiver string, shares sdkmath.Int, maxLossBps uint64, solverEnabled bool) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.requestWithdraw(caller, owner, receiver, shares, maxLossBps, solverEnabled)
}

// requestWithdraw burns the shares, charges the solver fee when enabled, and
// appends the request to the owner's chain. The request is priced by the
// NEXT update (currentUpdateID + 1), never by the rate current right now;
// CreationRate is kept only as the reference point for the loss check.
//
// Every input, balance, and allowance is verified before the first mutation,
// so a rejected request leaves nothing behind.
func (v *Vault) requestWithdraw(caller, owner, receiver string, shares sdkmath.Int, maxLossBps uint64, solverEnabled bool) (uint64, error) {
	if v.paused {
		return 0, types.ErrPaused
	}
	if caller == "" || owner == "" || receiver == "" {
		return 0, types.ErrZeroAddress
	}
	if shares.IsNil() || !shares.IsPositive() {
		return 0, fmt.Errorf("%w: redeem of %s shares", types.ErrZeroAmount, shares.String())
	}
	if maxLossBps > types.BasisPointsDivisor {
		return 0, fmt.Errorf("%w: %d", types.ErrLossOutOfRange, maxLossBps)
	}
	if v.chainLen[owner] >= types.MaxPendingRequestsPerOwner {
		return 0, fmt.Errorf("%w: %s has %d pending", types.ErrTooManyRequests, owner, v.chainLen[owner])
	}
	if caller != owner {
		if allowed := v.shares.Allowance(owner, caller); allowed.LT(shares) {
			return 0, fmt.Errorf("%w: %s allowed %s of %s's shares, needs %s",
				types.ErrUnauthorized, caller, allowed.String(), owner, shares.String())
		}
	}
	if bal := v.shares.BalanceOf(owner); bal.LT(shares) {
		return 0, fmt.Errorf("%w: %s holds %s shares, redeem needs %s",
			ledger.ErrInsufficientBalance, owner, bal.String(), shares.String())
	}

	solverFee := sdkmath.ZeroInt()
	solverFeePayer := ""
	if solverEnabled && v.cfg.Fees.SolverCompletionFee.IsPositive() {
		solverFee = v.cfg.Fees.SolverCompletionFee
		solverFeePayer = caller
		if bal := v.native.BalanceOf(caller); bal.LT(solverFee) {
			return 0, fmt.Errorf("solver fee collection failed: %w: %s holds %s, fee is %s",
				ledger.ErrInsufficientBalance, caller, bal.String(), solverFee.String())
		}
	}

	// The balances were checked up front, so none of this can fail.
	if solverFee.IsPositive() {
		if err := v.native.Transfer(caller, v.address, solverFee); err != nil {
			return 0, fmt.Errorf("solver fee collection failed: %w", err)
		}
	}
	if caller != owner {
		if err := v.shares.SpendAllowance(owner, caller, shares); err != nil {
			return 0, fmt.Errorf("%w: %s", types.ErrUnauthorized, err)
		}
	}
	if err := v.shares.Burn(owner, shares); err != nil {
		return 0, fmt.Errorf("share burn failed: %w", err)
	}

	requestID := v.nextWithdrawRequestID
	v.nextWithdrawRequestID++

	req := &types.WithdrawRequest{
		RequestID:      requestID,
		Owner:          owner,
		Receiver:       receiver,
		Shares:         shares,
		MaxLossBps:     maxLossBps,
		SolverEnabled:  solverEnabled,
		SolverFee:      solverFee,
		SolverFeePayer: solverFeePayer,
		UpdateID:       v.currentUpdateID + 1,
		CreationRate:   v.redemptionRate,
		CreatedAt:      v.clock.Now(),
	}
	v.requests[requestID] = req
	v.linkRequest(req)

	v.pendingWithdrawAssets = v.pendingWithdrawAssets.Add(convertToAssets(shares, v.redemptionRate))

	v.logger.Info().
		Uint64("requestId", requestID).
		Str("owner", owner).
		Str("receiver", receiver).
		Str("shares", shares.String()).
		Uint64("maxLossBps", maxLossBps).
		Bool("solverEnabled", solverEnabled).
		Uint64("pricedByUpdate", req.UpdateID).
		Msg("Withdraw request queued")
	v.emit(types.EventWithdrawRequested, map[string]string{
		"request_id":   fmt.Sprintf("%d", requestID),
		"owner":        owner,
		"receiver":     receiver,
		"shares":       shares.String(),
		"max_loss_bps": fmt.Sprintf("%d", maxLossBps),
		"update_id":    fmt.Sprintf("%d", req.UpdateID),
	})
	return requestID, nil
}

// linkRequest appends req at the newest end of its owner's chain. NextID
// points from older to newer, so the oldest request (the chain tail) is
// always removable in O(1).
func (v *Vault) linkRequest(req *types.WithdrawRequest) {
	owner := req.Owner
	if head := v.chainHead[owner]; head != 0 {
		v.requests[head].NextID = req.RequestID
	} else {
		v.chainTail[owner] = req.RequestID
	}
	v.chainHead[owner] = req.RequestID
	v.chainLen[owner]++
}

// unlinkOldest removes the oldest request from owner's chain and from the
// request arena.
func (v *Vault) unlinkOldest(owner string) {
	tail := v.chainTail[owner]
	if tail == 0 {
		return
	}
	req := v.requests[tail]
	delete(v.requests, tail)
	if req.NextID != 0 {
		v.chainTail[owner] = req.NextID
	} else {
		delete(v.chainTail, owner)
		delete(v.chainHead, owner)
	}
	v.chainLen[owner]--
	if v.chainLen[owner] == 0 {
		delete(v.chainLen, owner)
	}
}
