/*
Package vault implements the tokenized vault engine: synchronous deposits,
asynchronous rate-checked withdrawals, and the strategist-driven rate and
fee accounting that connects them.

All state lives in a single Vault object. Every public operation takes the
vault mutex and either applies completely or leaves the state untouched.
*/
package vault

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/qvault-labs/qvm/internal/escrow"
	"github.com/qvault-labs/qvm/internal/ledger"
	"github.com/qvault-labs/qvm/internal/logger"
	"github.com/qvault-labs/qvm/internal/types"
)

// Vault is the share ledger, fee engine, and withdrawal queue behind one
// tokenized vault.
type Vault struct {
	mu     sync.Mutex
	logger zerolog.Logger
	clock  Clock
	events types.EventSink

	cfg    types.VaultConfig
	owner  string
	pauser string

	// address is the vault's own native-currency account; solver fees sit
	// here between request and completion.
	address string

	shares *ledger.Ledger
	asset  *ledger.Ledger
	native *ledger.Ledger

	depositEscrow  *escrow.Account
	withdrawEscrow *escrow.Account

	redemptionRate        sdkmath.LegacyDec
	maxHistoricalRate     sdkmath.LegacyDec
	feesOwedInAsset       sdkmath.Int
	lastUpdateTotalShares sdkmath.Int
	lastUpdateTime        time.Time
	pendingWithdrawAssets sdkmath.Int
	currentUpdateID       uint64
	nextWithdrawRequestID uint64
	paused                bool

	updates  map[uint64]types.UpdateRecord
	requests map[uint64]*types.WithdrawRequest

	// Per-owner request chain. chainHead is the newest request, chainTail the
	// oldest; WithdrawRequest.NextID points from older to newer so the oldest
	// request can be unlinked in O(1).
	chainHead map[string]uint64
	chainTail map[string]uint64
	chainLen  map[string]int
}

// Config holds the dependencies for creating a new Vault.
type Config struct {
	VaultConfig types.VaultConfig

	Owner   string
	Pauser  string
	Address string

	Shares *ledger.Ledger
	Asset  *ledger.Ledger
	Native *ledger.Ledger

	Clock  Clock
	Events types.EventSink
}

// New creates a vault with a redemption rate of 1.0 and an empty queue.
func New(cfg Config) (*Vault, error) {
	if err := validateVaultDeps(cfg); err != nil {
		return nil, fmt.Errorf("vault configuration validation failed: %w", err)
	}
	if err := cfg.VaultConfig.Validate(); err != nil {
		return nil, err
	}

	depositEscrow, err := escrow.NewAccount(cfg.VaultConfig.DepositAccount, cfg.Asset)
	if err != nil {
		return nil, err
	}
	withdrawEscrow, err := escrow.NewAccount(cfg.VaultConfig.WithdrawAccount, cfg.Asset)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	events := cfg.Events
	if events == nil {
		events = NewLogSink(logger.GetForComponent("vault_events"))
	}

	v := &Vault{
		logger:  logger.GetForComponent("vault_engine"),
		clock:   clock,
		events:  events,
		cfg:     cfg.VaultConfig,
		owner:   cfg.Owner,
		pauser:  cfg.Pauser,
		address: cfg.Address,
		shares:  cfg.Shares,
		asset:   cfg.Asset,
		native:  cfg.Native,

		depositEscrow:  depositEscrow,
		withdrawEscrow: withdrawEscrow,

		redemptionRate:        sdkmath.LegacyOneDec(),
		maxHistoricalRate:     sdkmath.LegacyOneDec(),
		feesOwedInAsset:       sdkmath.ZeroInt(),
		lastUpdateTotalShares: sdkmath.ZeroInt(),
		lastUpdateTime:        clock.Now().Truncate(time.Second),
		pendingWithdrawAssets: sdkmath.ZeroInt(),
		nextWithdrawRequestID: 1,

		updates:   make(map[uint64]types.UpdateRecord),
		requests:  make(map[uint64]*types.WithdrawRequest),
		chainHead: make(map[string]uint64),
		chainTail: make(map[string]uint64),
		chainLen:  make(map[string]int),
	}

	v.logger.Info().
		Str("strategist", v.cfg.Strategist).
		Str("depositAccount", v.cfg.DepositAccount).
		Str("withdrawAccount", v.cfg.WithdrawAccount).
		Msg("Vault created")

	return v, nil
}

func validateVaultDeps(cfg Config) error {
	if cfg.Owner == "" {
		return fmt.Errorf("owner cannot be empty")
	}
	if cfg.Address == "" {
		return fmt.Errorf("vault address cannot be empty")
	}
	if cfg.Shares == nil {
		return fmt.Errorf("share ledger cannot be nil")
	}
	if cfg.Asset == nil {
		return fmt.Errorf("asset ledger cannot be nil")
	}
	if cfg.Native == nil {
		return fmt.Errorf("native ledger cannot be nil")
	}
	return nil
}

// bpsDec converts basis points to the equivalent decimal fraction.
func bpsDec(bps uint64) sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecWithPrec(int64(bps), 4)
}

// convertToShares converts an asset amount to shares at rate, flooring.
func convertToShares(assets sdkmath.Int, rate sdkmath.LegacyDec) sdkmath.Int {
	return sdkmath.LegacyNewDecFromInt(assets).QuoTruncate(rate).TruncateInt()
}

// convertToAssets converts a share amount to assets at rate, flooring.
func convertToAssets(shares sdkmath.Int, rate sdkmath.LegacyDec) sdkmath.Int {
	return rate.MulInt(shares).TruncateInt()
}

// ConvertToShares reports how many shares an asset amount buys at the
// current redemption rate, before fees.
func (v *Vault) ConvertToShares(assets sdkmath.Int) sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return convertToShares(assets, v.redemptionRate)
}

// ConvertToAssets reports the asset value of a share amount at the current
// redemption rate.
func (v *Vault) ConvertToAssets(shares sdkmath.Int) sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return convertToAssets(shares, v.redemptionRate)
}

// Config returns the active vault configuration.
func (v *Vault) Config() types.VaultConfig {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cfg
}

// Scalars returns a snapshot of the vault's global accounting state.
func (v *Vault) Scalars() types.VaultScalars {
	v.mu.Lock()
	defer v.mu.Unlock()
	return types.VaultScalars{
		RedemptionRate:        v.redemptionRate,
		MaxHistoricalRate:     v.maxHistoricalRate,
		FeesOwedInAsset:       v.feesOwedInAsset,
		LastUpdateTotalShares: v.lastUpdateTotalShares,
		TotalShares:           v.shares.TotalSupply(),
		PendingWithdrawAssets: v.pendingWithdrawAssets,
		CurrentUpdateID:       v.currentUpdateID,
		NextWithdrawRequestID: v.nextWithdrawRequestID,
		Paused:                v.paused,
	}
}

// UpdateRecord returns the immutable record written at updateID.
func (v *Vault) UpdateRecord(updateID uint64) (types.UpdateRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok := v.updates[updateID]
	if !ok {
		return types.UpdateRecord{}, fmt.Errorf("%w: id %d", types.ErrUpdateNotFound, updateID)
	}
	return rec, nil
}

// Request returns the pending withdraw request with the given id.
func (v *Vault) Request(requestID uint64) (types.WithdrawRequest, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	req, ok := v.requests[requestID]
	if !ok {
		return types.WithdrawRequest{}, fmt.Errorf("%w: id %d", types.ErrRequestNotFound, requestID)
	}
	return *req, nil
}

// PendingRequests returns owner's pending requests oldest-first.
func (v *Vault) PendingRequests(owner string) []types.WithdrawRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []types.WithdrawRequest
	for id := v.chainTail[owner]; id != 0; {
		req, ok := v.requests[id]
		if !ok {
			break
		}
		out = append(out, *req)
		id = req.NextID
	}
	return out
}

// OwnersWithPending returns every owner that currently has at least one
// pending withdraw request. Order is not defined.
func (v *Vault) OwnersWithPending() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.chainTail))
	for owner := range v.chainTail {
		out = append(out, owner)
	}
	return out
}

// Pause stops every mutating entry point until Unpause. Only the owner or
// the designated pauser may flip the switch.
func (v *Vault) Pause(caller string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.owner && caller != v.pauser {
		return fmt.Errorf("%w: %s may not pause", types.ErrUnauthorized, caller)
	}
	v.paused = true
	v.logger.Warn().Str("caller", caller).Msg("Vault paused")
	v.emit(types.EventPaused, map[string]string{"caller": caller})
	return nil
}

// Unpause re-enables mutating entry points.
func (v *Vault) Unpause(caller string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.owner && caller != v.pauser {
		return fmt.Errorf("%w: %s may not unpause", types.ErrUnauthorized, caller)
	}
	v.paused = false
	v.logger.Info().Str("caller", caller).Msg("Vault unpaused")
	v.emit(types.EventUnpaused, map[string]string{"caller": caller})
	return nil
}

func (v *Vault) emit(kind string, attrs map[string]string) {
	v.events.Emit(types.Event{
		Kind:       kind,
		Timestamp:  v.clock.Now(),
		Attributes: attrs,
	})
}

// LogSink emits vault events into a zerolog logger. It is the default sink
// when no other is configured.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{logger: l}
}

func (s *LogSink) Emit(event types.Event) {
	evt := s.logger.Info().Str("kind", event.Kind).Time("at", event.Timestamp)
	for k, val := range event.Attributes {
		evt = evt.Str(k, val)
	}
	evt.Msg("vault event")
}
