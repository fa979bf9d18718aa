package types

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// BasisPointsDivisor is the denominator for all bps-expressed fees and ratios.
const BasisPointsDivisor = 10_000

// SecondsPerYear is the proration base for the annualized platform fee.
const SecondsPerYear = 365 * 24 * 3600

// MaxPendingRequestsPerOwner caps the length of an owner's request chain.
const MaxPendingRequestsPerOwner = 32

// FeeConfig holds every fee the vault charges. All bps fields are out of
// BasisPointsDivisor; SolverCompletionFee is a flat amount of the native
// fee currency.
type FeeConfig struct {
	DepositFeeBps       uint64      `json:"deposit_fee_bps"`
	PlatformFeeBps      uint64      `json:"platform_fee_bps"`
	PerformanceFeeBps   uint64      `json:"performance_fee_bps"`
	SolverCompletionFee sdkmath.Int `json:"solver_completion_fee"`
}

// FeeDistributionConfig routes distributed fee shares between the strategist
// and the platform. StrategistRatioBps of every distribution goes to the
// strategist account, the remainder to the platform account.
type FeeDistributionConfig struct {
	StrategistAccount  string `json:"strategist_account"`
	PlatformAccount    string `json:"platform_account"`
	StrategistRatioBps uint64 `json:"strategist_ratio_bps"`
}

// VaultConfig is the full vault configuration. It is created once at boot and
// replaced wholesale by the owner thereafter; partial mutation is not
// supported.
type VaultConfig struct {
	Version int `json:"version"`

	DepositAccount  string `json:"deposit_account"`
	WithdrawAccount string `json:"withdraw_account"`
	Strategist      string `json:"strategist"`

	DepositCap        sdkmath.Int   `json:"deposit_cap"`
	MaxWithdrawFeeBps uint64        `json:"max_withdraw_fee_bps"`
	WithdrawLockup    time.Duration `json:"withdraw_lockup"`

	Fees            FeeConfig             `json:"fees"`
	FeeDistribution FeeDistributionConfig `json:"fee_distribution"`
}

// Validate rejects configurations the vault must never run with. A bad
// config is refused before any state changes.
func (c VaultConfig) Validate() error {
	if c.DepositAccount == "" {
		return fmt.Errorf("%w: deposit account is empty", ErrInvalidConfig)
	}
	if c.WithdrawAccount == "" {
		return fmt.Errorf("%w: withdraw account is empty", ErrInvalidConfig)
	}
	if c.Strategist == "" {
		return fmt.Errorf("%w: strategist is empty", ErrInvalidConfig)
	}
	if c.DepositCap.IsNil() || c.DepositCap.IsNegative() {
		return fmt.Errorf("%w: deposit cap must be zero (uncapped) or positive", ErrInvalidConfig)
	}
	if c.MaxWithdrawFeeBps > BasisPointsDivisor {
		return fmt.Errorf("%w: max withdraw fee %d exceeds %d bps", ErrInvalidConfig, c.MaxWithdrawFeeBps, BasisPointsDivisor)
	}
	if c.WithdrawLockup <= 0 {
		return fmt.Errorf("%w: withdraw lockup must be positive", ErrInvalidConfig)
	}
	if c.Fees.DepositFeeBps > BasisPointsDivisor {
		return fmt.Errorf("%w: deposit fee %d exceeds %d bps", ErrInvalidConfig, c.Fees.DepositFeeBps, BasisPointsDivisor)
	}
	if c.Fees.PlatformFeeBps > BasisPointsDivisor {
		return fmt.Errorf("%w: platform fee %d exceeds %d bps", ErrInvalidConfig, c.Fees.PlatformFeeBps, BasisPointsDivisor)
	}
	if c.Fees.PerformanceFeeBps > BasisPointsDivisor {
		return fmt.Errorf("%w: performance fee %d exceeds %d bps", ErrInvalidConfig, c.Fees.PerformanceFeeBps, BasisPointsDivisor)
	}
	if c.Fees.SolverCompletionFee.IsNil() || c.Fees.SolverCompletionFee.IsNegative() {
		return fmt.Errorf("%w: solver completion fee must be zero or positive", ErrInvalidConfig)
	}
	if c.FeeDistribution.StrategistAccount == "" {
		return fmt.Errorf("%w: fee distribution strategist account is empty", ErrInvalidConfig)
	}
	if c.FeeDistribution.PlatformAccount == "" {
		return fmt.Errorf("%w: fee distribution platform account is empty", ErrInvalidConfig)
	}
	if c.FeeDistribution.StrategistRatioBps > BasisPointsDivisor {
		return fmt.Errorf("%w: strategist ratio %d exceeds %d bps", ErrInvalidConfig, c.FeeDistribution.StrategistRatioBps, BasisPointsDivisor)
	}
	return nil
}
