package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// UpdateRecord is the immutable history entry written by every strategist
// update. WithdrawRate is the new redemption rate net of the withdrawal fee
// in force at that update, i.e. the rate at which requests priced against
// this update are actually paid.
type UpdateRecord struct {
	UpdateID       uint64            `json:"update_id"`
	WithdrawRate   sdkmath.LegacyDec `json:"withdraw_rate"`
	Timestamp      time.Time         `json:"timestamp"`
	WithdrawFeeBps uint64            `json:"withdraw_fee_bps"`
}

// WithdrawRequest is a pending withdrawal. Shares are burned the moment the
// request is created; the request is then terminated exactly once, either by
// an asset payout or a share refund.
//
// UpdateID names the update that will price the request: the first update at
// or after creation, never the rate current when the request was made.
// CreationRate is the gross redemption rate in force at creation and is the
// reference point for the loss-tolerance check at completion.
//
// NextID chains the owner's requests from older to newer; 0 terminates the
// chain.
type WithdrawRequest struct {
	RequestID      uint64            `json:"request_id"`
	Owner          string            `json:"owner"`
	Receiver       string            `json:"receiver"`
	Shares         sdkmath.Int       `json:"shares"`
	MaxLossBps     uint64            `json:"max_loss_bps"`
	SolverEnabled  bool              `json:"solver_enabled"`
	SolverFee      sdkmath.Int       `json:"solver_fee"`
	SolverFeePayer string            `json:"solver_fee_payer,omitempty"`
	UpdateID       uint64            `json:"update_id"`
	CreationRate   sdkmath.LegacyDec `json:"creation_rate"`
	CreatedAt      time.Time         `json:"created_at"`
	NextID         uint64            `json:"next_id"`
}

// VaultScalars is a read-only snapshot of the vault's global accounting
// state.
type VaultScalars struct {
	RedemptionRate        sdkmath.LegacyDec `json:"redemption_rate"`
	MaxHistoricalRate     sdkmath.LegacyDec `json:"max_historical_rate"`
	FeesOwedInAsset       sdkmath.Int       `json:"fees_owed_in_asset"`
	LastUpdateTotalShares sdkmath.Int       `json:"last_update_total_shares"`
	TotalShares           sdkmath.Int       `json:"total_shares"`
	PendingWithdrawAssets sdkmath.Int       `json:"pending_withdraw_assets"`
	CurrentUpdateID       uint64            `json:"current_update_id"`
	NextWithdrawRequestID uint64            `json:"next_withdraw_request_id"`
	Paused                bool              `json:"paused"`
}
