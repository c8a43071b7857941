package config

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
)

const (
	// DefaultChainID is the chain the settlement engines sign for
	DefaultChainID = 1

	// DefaultPermit2Address is the canonical Permit2 deployment
	DefaultPermit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

	// DefaultReactorAddress is where the single chain reactor is deployed
	DefaultReactorAddress = "0x00000000000000000000000000000000000e1001"

	// DefaultSettlerAddress is where the cross-chain settler is deployed
	DefaultSettlerAddress = "0x00000000000000000000000000000000000e2002"

	// DefaultOracleAddress is where the settlement oracle is deployed
	DefaultOracleAddress = "0x00000000000000000000000000000000000e3003"

	// DefaultKeeperAddress is the caller the keeper finalizes and cancels as
	DefaultKeeperAddress = "0x00000000000000000000000000000000000e4004"

	// DefaultFillerAddress is where the daemon's direct fill contract is deployed
	DefaultFillerAddress = "0x00000000000000000000000000000000000e5005"

	// DefaultValidatorAddress is where the exclusive filler validator is deployed
	DefaultValidatorAddress = "0x00000000000000000000000000000000000e6006"

	// DefaultFaucetEnabled defines whether the token mint and approve routes are served
	DefaultFaucetEnabled = false

	// DefaultPollingInterval defines the default polling interval in seconds
	DefaultPollingInterval = 5

	// DefaultWorkerCount defines the default number of keeper workers
	DefaultWorkerCount = 5

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15

	// DefaultLogLevel defines the minimum level logged
	DefaultLogLevel = "info"

	// DefaultLogColoring defines whether log prefixes are colored
	DefaultLogColoring = true
)

// GetEnvChainID returns the chain id from environment variables
func GetEnvChainID() (*big.Int, error) {
	chainID := os.Getenv("CHAIN_ID")
	if chainID == "" {
		return big.NewInt(DefaultChainID), nil
	}

	id, ok := new(big.Int).SetString(chainID, 10)
	if !ok || id.Sign() <= 0 {
		return nil, fmt.Errorf("invalid CHAIN_ID value: %s, must be a positive integer", chainID)
	}
	return id, nil
}

// getEnvAddress reads an address variable, falling back to def
func getEnvAddress(name, def string) (common.Address, error) {
	value := os.Getenv(name)
	if value == "" {
		value = def
	}

	// Validate Ethereum address format
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s value: %s, must be a valid Ethereum address", name, value)
	}
	return common.HexToAddress(value), nil
}

// GetEnvPermit2Address returns the Permit2 address from environment variables
func GetEnvPermit2Address() (common.Address, error) {
	return getEnvAddress("PERMIT2_ADDRESS", DefaultPermit2Address)
}

// GetEnvReactorAddress returns the reactor address from environment variables
func GetEnvReactorAddress() (common.Address, error) {
	return getEnvAddress("REACTOR_ADDRESS", DefaultReactorAddress)
}

// GetEnvSettlerAddress returns the settler address from environment variables
func GetEnvSettlerAddress() (common.Address, error) {
	return getEnvAddress("SETTLER_ADDRESS", DefaultSettlerAddress)
}

// GetEnvOracleAddress returns the settlement oracle address from environment variables
func GetEnvOracleAddress() (common.Address, error) {
	return getEnvAddress("ORACLE_ADDRESS", DefaultOracleAddress)
}

// GetEnvKeeperAddress returns the keeper address from environment variables
func GetEnvKeeperAddress() (common.Address, error) {
	return getEnvAddress("KEEPER_ADDRESS", DefaultKeeperAddress)
}

// GetEnvFillerAddress returns the direct fill contract address from environment variables
func GetEnvFillerAddress() (common.Address, error) {
	return getEnvAddress("FILLER_ADDRESS", DefaultFillerAddress)
}

// GetEnvValidatorAddress returns the exclusive filler validator address from environment variables
func GetEnvValidatorAddress() (common.Address, error) {
	return getEnvAddress("VALIDATOR_ADDRESS", DefaultValidatorAddress)
}

// GetEnvFaucetEnabled returns whether the token faucet routes are served
func GetEnvFaucetEnabled() (bool, error) {
	return getEnvBool("FAUCET_ENABLED", DefaultFaucetEnabled)
}

// GetEnvOracleRPCURL returns the RPC url of the oracle chain, empty when the
// in-memory oracle is used
func GetEnvOracleRPCURL() (string, error) {
	rpcURL := os.Getenv("ORACLE_RPC_URL")
	if rpcURL == "" {
		return "", nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(rpcURL); err != nil {
		return "", fmt.Errorf("invalid ORACLE_RPC_URL value: %s, must be a valid URL", rpcURL)
	}
	return rpcURL, nil
}

// GetEnvPollingInterval returns the polling interval in seconds from environment variables
func GetEnvPollingInterval() (time.Duration, error) {
	pollingInterval := os.Getenv("POLLING_INTERVAL")
	if pollingInterval == "" {
		return time.Duration(DefaultPollingInterval) * time.Second, nil
	}

	interval, err := strconv.Atoi(pollingInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid POLLING_INTERVAL value: %s, must be an integer", pollingInterval)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("POLLING_INTERVAL must be greater than 0")
	}
	return time.Duration(interval) * time.Second, nil
}

// GetEnvWorkerCount returns the number of workers from environment variables
func GetEnvWorkerCount() (int, error) {
	workerCount := os.Getenv("WORKER_COUNT")
	if workerCount == "" {
		return DefaultWorkerCount, nil
	}

	count, err := strconv.Atoi(workerCount)
	if err != nil {
		return 0, fmt.Errorf("invalid WORKER_COUNT value: %s, must be an integer", workerCount)
	}
	if count <= 0 {
		return 0, fmt.Errorf("WORKER_COUNT must be greater than 0")
	}
	return count, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow*time.Second)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset*time.Second)
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = DefaultLogLevel
	}
	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return logger.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, error", level)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log output is colored from environment variables
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", DefaultLogColoring)
}

// GetEnvMetricsAPIKey returns the bearer key protecting /metrics, empty for none
func GetEnvMetricsAPIKey() string {
	return os.Getenv("METRICS_API_KEY")
}

func getEnvBool(name string, def bool) (bool, error) {
	value := os.Getenv(name)
	if value == "" {
		return def, nil
	}

	if value == "true" {
		return true, nil
	} else if value == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", name, value)
}

func getEnvDuration(name string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return def, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", name, value)
	}
	return parsed, nil
}
