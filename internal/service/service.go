package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qvault-labs/qvm/internal/logger"
	"github.com/qvault-labs/qvm/internal/state"
	"github.com/qvault-labs/qvm/internal/vault"
)

// Service is the background engine around a vault. Each cycle it persists a
// scalar snapshot for monitoring and, when a solver account is configured,
// sweeps claimable solver-enabled withdraw requests.
type Service struct {
	logger zerolog.Logger
	vault  *vault.Vault

	vaultName     string
	solverAccount string

	cycleCount int
}

// Config holds the configuration for creating a new Service instance
type Config struct {
	Vault     *vault.Vault
	VaultName string

	// SolverAccount, when non-empty, is the identity used to complete
	// solver-enabled requests. It collects the solver completion fee.
	SolverAccount string
}

// NewService creates a new service instance with dependency injection
func NewService(cfg Config) (*Service, error) {
	if err := validateServiceConfig(cfg); err != nil {
		return nil, fmt.Errorf("service configuration validation failed: %w", err)
	}

	svc := &Service{
		logger:        logger.GetForComponent("service_core"),
		vault:         cfg.Vault,
		vaultName:     cfg.VaultName,
		solverAccount: cfg.SolverAccount,
		cycleCount:    0,
	}

	svc.logger.Info().
		Str("vault", svc.vaultName).
		Bool("solverEnabled", svc.solverAccount != "").
		Msg("Service instance created successfully")

	return svc, nil
}

func validateServiceConfig(cfg Config) error {
	if cfg.Vault == nil {
		return fmt.Errorf("vault cannot be nil")
	}
	if cfg.VaultName == "" {
		return fmt.Errorf("vault name cannot be empty")
	}
	return nil
}

// RunLoop starts the main service loop with the specified interval
func (s *Service) RunLoop(ctx context.Context, interval time.Duration) {
	s.logger.Info().
		Dur("interval", interval).
		Msg("Starting service main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	s.cycleCount++
	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Service loop stopped due to context cancellation")
			return
		case <-ticker.C:
			s.cycleCount++
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes a single service cycle.
func (s *Service) RunCycle(ctx context.Context) {
	cycleStartTime := time.Now()

	// Cycle ID ties all log lines of one cycle together.
	cycleID := uuid.New().String()
	cycleLogger := s.logger.With().Str("cycle_id", cycleID).Int("cycle", s.cycleCount).Logger()

	cycleLogger.Info().Msg("--- Starting service cycle ---")

	scalars := s.vault.Scalars()
	cycleLogger.Info().
		Str("redemptionRate", scalars.RedemptionRate.String()).
		Str("totalShares", scalars.TotalShares.String()).
		Str("pendingWithdrawAssets", scalars.PendingWithdrawAssets.String()).
		Uint64("currentUpdateID", scalars.CurrentUpdateID).
		Bool("paused", scalars.Paused).
		Msg("Step 1: Vault state assessed")

	if snapshotID, err := state.SaveSnapshot(s.vaultName, cycleID, scalars); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save vault snapshot")
	} else {
		cycleLogger.Info().Int64("snapshot_id", snapshotID).Msg("Vault snapshot saved")
	}

	if s.solverAccount != "" && !scalars.Paused {
		s.sweepClaimable(cycleLogger)
	}

	cycleLogger.Info().
		Str("cycleDuration", time.Since(cycleStartTime).String()).
		Msg("--- Service cycle completed ---")
}

// sweepClaimable attempts to complete the oldest request of every owner with
// a pending chain, acting as the solver. Requests that are not yet claimable
// or not solver-enabled are skipped; the vault enforces both.
func (s *Service) sweepClaimable(cycleLogger zerolog.Logger) {
	owners := s.vault.OwnersWithPending()
	if len(owners) == 0 {
		cycleLogger.Debug().Msg("No pending withdraw requests to sweep")
		return
	}

	cycleLogger.Info().Int("owners", len(owners)).Msg("Step 2: Sweeping claimable withdraw requests")

	skipped, err := s.vault.CompleteWithdraws(s.solverAccount, owners)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Batch completion aborted")
		return
	}

	completed := len(owners) - len(skipped)
	for owner, skipErr := range skipped {
		if vault.IsRetryable(skipErr) {
			cycleLogger.Debug().Str("owner", owner).Err(skipErr).Msg("Request not yet claimable")
		} else {
			cycleLogger.Warn().Str("owner", owner).Err(skipErr).Msg("Request skipped")
		}
	}
	cycleLogger.Info().
		Int("completed", completed).
		Int("skipped", len(skipped)).
		Msg("Claimable sweep finished")
}
