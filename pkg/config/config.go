package config

import (
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
)

// Config holds the configuration for the settlement daemon
type Config struct {
	ChainID          *big.Int
	Permit2Address   common.Address
	ReactorAddress   common.Address
	SettlerAddress   common.Address
	OracleAddress    common.Address
	KeeperAddress    common.Address
	FillerAddress    common.Address
	ValidatorAddress common.Address
	FaucetEnabled    bool
	OracleRPCURL     string
	PollingInterval  time.Duration
	WorkerCount      int
	MetricsPort      string
	MetricsAPIKey    string
	CircuitBreaker   CircuitBreakerConfig
	LoggerConfig     LoggerConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment
func FromEnv() (*Config, error) {
	chainID, err := GetEnvChainID()
	if err != nil {
		return nil, err
	}

	permit2Address, err := GetEnvPermit2Address()
	if err != nil {
		return nil, err
	}

	reactorAddress, err := GetEnvReactorAddress()
	if err != nil {
		return nil, err
	}

	settlerAddress, err := GetEnvSettlerAddress()
	if err != nil {
		return nil, err
	}

	oracleAddress, err := GetEnvOracleAddress()
	if err != nil {
		return nil, err
	}

	keeperAddress, err := GetEnvKeeperAddress()
	if err != nil {
		return nil, err
	}

	fillerAddress, err := GetEnvFillerAddress()
	if err != nil {
		return nil, err
	}

	validatorAddress, err := GetEnvValidatorAddress()
	if err != nil {
		return nil, err
	}

	faucetEnabled, err := GetEnvFaucetEnabled()
	if err != nil {
		return nil, err
	}

	oracleRPCURL, err := GetEnvOracleRPCURL()
	if err != nil {
		return nil, err
	}

	pollingInterval, err := GetEnvPollingInterval()
	if err != nil {
		return nil, err
	}

	workerCount, err := GetEnvWorkerCount()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ChainID:          chainID,
		Permit2Address:   permit2Address,
		ReactorAddress:   reactorAddress,
		SettlerAddress:   settlerAddress,
		OracleAddress:    oracleAddress,
		KeeperAddress:    keeperAddress,
		FillerAddress:    fillerAddress,
		ValidatorAddress: validatorAddress,
		FaucetEnabled:    faucetEnabled,
		OracleRPCURL:     oracleRPCURL,
		PollingInterval:  pollingInterval,
		WorkerCount:      workerCount,
		MetricsPort:      metricsPort,
		MetricsAPIKey:    GetEnvMetricsAPIKey(),
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	addresses := map[string]common.Address{
		"PERMIT2_ADDRESS":   cfg.Permit2Address,
		"REACTOR_ADDRESS":   cfg.ReactorAddress,
		"SETTLER_ADDRESS":   cfg.SettlerAddress,
		"ORACLE_ADDRESS":    cfg.OracleAddress,
		"FILLER_ADDRESS":    cfg.FillerAddress,
		"VALIDATOR_ADDRESS": cfg.ValidatorAddress,
	}
	seen := make(map[common.Address]string, len(addresses))
	for name, addr := range addresses {
		if addr == (common.Address{}) {
			return fmt.Errorf("%s must not be the zero address", name)
		}
		if other, ok := seen[addr]; ok {
			return fmt.Errorf("%s and %s must differ", name, other)
		}
		seen[addr] = name
	}
	return nil
}
