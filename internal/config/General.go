package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment
// variables. These are populated at startup by LoadConfig.
var (
	// VaultName identifies this vault instance in logs and persistence.
	VaultName string

	// OwnerAccount may replace the vault config and pause the vault.
	OwnerAccount string
	// PauserAccount may pause/unpause without being the owner.
	PauserAccount string
	// StrategistAccount is the only identity allowed to push rate updates.
	StrategistAccount string

	// VaultAccount is the vault's own native-currency account.
	VaultAccount string
	// DepositAccount and WithdrawAccount are the two escrow accounts.
	DepositAccount  string
	WithdrawAccount string

	// FeeStrategistAccount and FeePlatformAccount receive distributed fee shares.
	FeeStrategistAccount string
	FeePlatformAccount   string

	// DepositCap is the maximum total asset value; "0" means uncapped.
	DepositCap string
	// MaxWithdrawFeeBps bounds the per-update withdrawal fee.
	MaxWithdrawFeeBps uint64
	// WithdrawLockup is the delay between a request's update and completion.
	WithdrawLockup time.Duration

	// Fee parameters, all in basis points except the flat solver fee.
	DepositFeeBps       uint64
	PlatformFeeBps      uint64
	PerformanceFeeBps   uint64
	SolverCompletionFee string
	StrategistRatioBps  uint64
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. All listed variables are required.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	if VaultName, err = getEnv("QVM_VAULT_NAME"); err != nil {
		return err
	}
	if OwnerAccount, err = getEnv("QVM_OWNER"); err != nil {
		return err
	}
	if PauserAccount, err = getEnv("QVM_PAUSER"); err != nil {
		return err
	}
	if StrategistAccount, err = getEnv("QVM_STRATEGIST"); err != nil {
		return err
	}
	if VaultAccount, err = getEnv("QVM_VAULT_ACCOUNT"); err != nil {
		return err
	}
	if DepositAccount, err = getEnv("QVM_DEPOSIT_ACCOUNT"); err != nil {
		return err
	}
	if WithdrawAccount, err = getEnv("QVM_WITHDRAW_ACCOUNT"); err != nil {
		return err
	}
	if FeeStrategistAccount, err = getEnv("QVM_FEE_STRATEGIST_ACCOUNT"); err != nil {
		return err
	}
	if FeePlatformAccount, err = getEnv("QVM_FEE_PLATFORM_ACCOUNT"); err != nil {
		return err
	}
	if DepositCap, err = getEnv("QVM_DEPOSIT_CAP"); err != nil {
		return err
	}
	if MaxWithdrawFeeBps, err = getEnvAsUint64("QVM_MAX_WITHDRAW_FEE_BPS"); err != nil {
		return err
	}
	if WithdrawLockup, err = getEnvAsDuration("QVM_WITHDRAW_LOCKUP"); err != nil {
		return err
	}
	if DepositFeeBps, err = getEnvAsUint64("QVM_DEPOSIT_FEE_BPS"); err != nil {
		return err
	}
	if PlatformFeeBps, err = getEnvAsUint64("QVM_PLATFORM_FEE_BPS"); err != nil {
		return err
	}
	if PerformanceFeeBps, err = getEnvAsUint64("QVM_PERFORMANCE_FEE_BPS"); err != nil {
		return err
	}
	if SolverCompletionFee, err = getEnv("QVM_SOLVER_COMPLETION_FEE"); err != nil {
		return err
	}
	if StrategistRatioBps, err = getEnvAsUint64("QVM_STRATEGIST_RATIO_BPS"); err != nil {
		return err
	}

	log.Debug().
		Str("VaultName", VaultName).
		Str("Strategist", StrategistAccount).
		Str("DepositAccount", DepositAccount).
		Str("WithdrawAccount", WithdrawAccount).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration
// (e.g. "72h"). Returns error if not set or invalid.
func getEnvAsDuration(key string) (time.Duration, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}
