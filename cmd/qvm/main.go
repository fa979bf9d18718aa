package main

import (
	"context"
	"os"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/qvault-labs/qvm/internal/config"
	"github.com/qvault-labs/qvm/internal/ledger"
	"github.com/qvault-labs/qvm/internal/logger"
	"github.com/qvault-labs/qvm/internal/service"
	"github.com/qvault-labs/qvm/internal/state"
	"github.com/qvault-labs/qvm/internal/types"
	"github.com/qvault-labs/qvm/internal/vault"
	"github.com/qvault-labs/qvm/internal/web"
)

const (
	LOOP_INTERVAL = 1 * time.Minute
)

// main is the entry point for the QVM daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("QVM Core Logic Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load the active vault config, falling back to the environment on first boot.
	vaultCfg, err := state.LoadActiveVaultConfig(config.VaultName)
	if err != nil {
		log.Warn().Err(err).Msg("No active vault config found, building from environment and saving.")
		built := buildVaultConfigFromEnv()
		if _, err := state.SaveVaultConfig(config.VaultName, built, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial vault config.")
		}
		vaultCfg = &built
	}
	log.Info().Int("version", vaultCfg.Version).Msg("Vault config loaded successfully.")

	// --- 2. Vault Initialization ---
	shares := ledger.New("qvSHARE")
	asset := ledger.New("qvASSET")
	native := ledger.New("qvNATIVE")

	v, err := vault.New(vault.Config{
		VaultConfig: *vaultCfg,
		Owner:       config.OwnerAccount,
		Pauser:      config.PauserAccount,
		Address:     config.VaultAccount,
		Shares:      shares,
		Asset:       asset,
		Native:      native,
		Events:      state.NewEventRecorder(config.VaultName),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize vault")
	}

	if snapshot, err := state.LoadLatestSnapshot(config.VaultName); err != nil {
		log.Error().Err(err).Msg("Failed to load latest vault snapshot")
	} else if snapshot != nil {
		log.Info().
			Str("redemptionRate", snapshot.RedemptionRate.String()).
			Uint64("currentUpdateID", snapshot.CurrentUpdateID).
			Msg("Latest persisted vault snapshot")
	}

	// --- Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, config.VaultName, v)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting QVM API server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 3. Create Service Instance with Dependency Injection ---
	svcConfig := service.Config{
		Vault:         v,
		VaultName:     config.VaultName,
		SolverAccount: os.Getenv("QVM_SOLVER_ACCOUNT"),
	}

	svc, err := service.NewService(svcConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create service instance")
	}

	log.Info().Msg("Service instance created successfully")

	// --- 4. Start Main Loop ---
	log.Info().Str("interval", LOOP_INTERVAL.String()).Msg("Starting QVM main loop")

	ctx := context.Background()
	svc.RunLoop(ctx, LOOP_INTERVAL)
}

// buildVaultConfigFromEnv assembles the initial vault config from the
// environment-loaded globals. Malformed numeric strings are fatal.
func buildVaultConfigFromEnv() types.VaultConfig {
	depositCap, ok := sdkmath.NewIntFromString(config.DepositCap)
	if !ok {
		log.Fatal().Str("value", config.DepositCap).Msg("QVM_DEPOSIT_CAP is not a valid integer")
	}
	solverFee, ok := sdkmath.NewIntFromString(config.SolverCompletionFee)
	if !ok {
		log.Fatal().Str("value", config.SolverCompletionFee).Msg("QVM_SOLVER_COMPLETION_FEE is not a valid integer")
	}

	return types.VaultConfig{
		Version:           1,
		DepositAccount:    config.DepositAccount,
		WithdrawAccount:   config.WithdrawAccount,
		Strategist:        config.StrategistAccount,
		DepositCap:        depositCap,
		MaxWithdrawFeeBps: config.MaxWithdrawFeeBps,
		WithdrawLockup:    config.WithdrawLockup,
		Fees: types.FeeConfig{
			DepositFeeBps:       config.DepositFeeBps,
			PlatformFeeBps:      config.PlatformFeeBps,
			PerformanceFeeBps:   config.PerformanceFeeBps,
			SolverCompletionFee: solverFee,
		},
		FeeDistribution: types.FeeDistributionConfig{
			StrategistAccount:  config.FeeStrategistAccount,
			PlatformAccount:    config.FeePlatformAccount,
			StrategistRatioBps: config.StrategistRatioBps,
		},
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
