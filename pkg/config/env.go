package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/speedrun-hq/rerunner/pkg/delay"
	"github.com/speedrun-hq/rerunner/pkg/logger"
	"github.com/speedrun-hq/rerunner/pkg/policy"
)

const (
	MarkerStoreMemory = "memory"
	MarkerStoreSQLite = "sqlite"

	// DefaultMaxRetries of zero retries without limit
	DefaultMaxRetries = 0

	// DefaultDelayKind is the delay used when DELAY_KIND is not set
	DefaultDelayKind = delay.KindProgressive

	// DefaultDelayIncrement defines the progressive delay step in seconds
	DefaultDelayIncrement = 5 * 60

	// DefaultDelayMax defines the progressive delay cap in seconds
	DefaultDelayMax = 3 * 60 * 60

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultQueueCapacity limits the number of pending retries
	DefaultQueueCapacity = 1000

	// DefaultQueueMaxPerTick limits how many due retries are submitted per tick
	DefaultQueueMaxPerTick = 10

	// DefaultRetryTick defines how often the retry queue is checked
	DefaultRetryTick = 10 * time.Second

	// DefaultMarkerStore keeps markers in memory
	DefaultMarkerStore = MarkerStoreMemory

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of submit failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15
)

// GetEnvPolicy returns the default retry policy from environment variables
func GetEnvPolicy() (policy.Config, error) {
	maxRetries, err := GetEnvMaxRetries()
	if err != nil {
		return policy.Config{}, err
	}

	retryOnUnstable, err := getEnvBool("RETRY_ON_UNSTABLE", false)
	if err != nil {
		return policy.Config{}, err
	}

	rerunWholeFanout, err := getEnvBool("RERUN_WHOLE_FANOUT", false)
	if err != nil {
		return policy.Config{}, err
	}

	checkRegexp, err := getEnvBool("CHECK_REGEXP", false)
	if err != nil {
		return policy.Config{}, err
	}

	delaySpec, err := GetEnvDelay()
	if err != nil {
		return policy.Config{}, err
	}

	return policy.Config{
		MaxRetries:         maxRetries,
		Delay:              &delaySpec,
		RerunWholeFanout:   rerunWholeFanout,
		CheckRegexp:        checkRegexp,
		RegexpForRerun:     os.Getenv("REGEXP_FOR_RERUN"),
		RetryOnInstability: retryOnUnstable,
	}, nil
}

// GetEnvMaxRetries returns the maximum number of retries from environment variables
func GetEnvMaxRetries() (int, error) {
	maxRetries := os.Getenv("MAX_RETRIES")
	if maxRetries == "" {
		return DefaultMaxRetries, nil
	}

	// negative values are accepted and mean unlimited, like zero
	maxRetriesInt, err := strconv.Atoi(maxRetries)
	if err != nil {
		return 0, fmt.Errorf("invalid MAX_RETRIES value: %s, must be an integer", maxRetries)
	}
	return maxRetriesInt, nil
}

// GetEnvDelay returns the delay strategy configuration from environment variables
func GetEnvDelay() (delay.Spec, error) {
	kind, err := delay.ParseKind(os.Getenv("DELAY_KIND"))
	if err != nil {
		return delay.Spec{}, fmt.Errorf("invalid DELAY_KIND value: %w", err)
	}

	seconds, err := getEnvSeconds("DELAY_SECONDS", 0)
	if err != nil {
		return delay.Spec{}, err
	}
	increment, err := getEnvSeconds("DELAY_INCREMENT", DefaultDelayIncrement)
	if err != nil {
		return delay.Spec{}, err
	}
	maxDelay, err := getEnvSeconds("DELAY_MAX", DefaultDelayMax)
	if err != nil {
		return delay.Spec{}, err
	}

	multiplier := 0.0
	if raw := os.Getenv("DELAY_MULTIPLIER"); raw != "" {
		multiplier, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return delay.Spec{}, fmt.Errorf("invalid DELAY_MULTIPLIER value: %s, must be a number", raw)
		}
	}

	spec := delay.Spec{Kind: kind, Max: maxDelay, Multiplier: multiplier}
	switch kind {
	case delay.KindFixed, delay.KindExponential:
		spec.Seconds = seconds
	default:
		spec.Increment = increment
	}
	if err := spec.Validate(); err != nil {
		return delay.Spec{}, err
	}
	return spec, nil
}

// GetEnvPolicyFile returns the per-job policies from the file named by POLICY_FILE
func GetEnvPolicyFile() (map[string]policy.Config, error) {
	path := os.Getenv("POLICY_FILE")
	if path == "" {
		return map[string]policy.Config{}, nil
	}
	return LoadPolicyFile(path)
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

// GetEnvSubmitURL returns the build host endpoint that receives resubmissions
func GetEnvSubmitURL() (string, error) {
	submitURL := os.Getenv("SUBMIT_URL")
	if submitURL == "" {
		return "", nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(submitURL); err != nil {
		return "", fmt.Errorf("invalid SUBMIT_URL value: %s, must be a valid URL", submitURL)
	}
	return submitURL, nil
}

// GetEnvQueue returns the retry queue configuration from environment variables
func GetEnvQueue() (QueueConfig, error) {
	capacity, err := getEnvPositiveInt("RETRY_QUEUE_CAPACITY", DefaultQueueCapacity)
	if err != nil {
		return QueueConfig{}, err
	}
	maxPerTick, err := getEnvPositiveInt("RETRY_MAX_PER_TICK", DefaultQueueMaxPerTick)
	if err != nil {
		return QueueConfig{}, err
	}

	tick := DefaultRetryTick
	if raw := os.Getenv("RETRY_TICK"); raw != "" {
		tick, err = time.ParseDuration(raw)
		if err != nil {
			return QueueConfig{}, fmt.Errorf("invalid RETRY_TICK value: %s, must be a valid duration string", raw)
		}
		if tick <= 0 {
			return QueueConfig{}, fmt.Errorf("RETRY_TICK must be greater than 0")
		}
	}

	return QueueConfig{Capacity: capacity, MaxPerTick: maxPerTick, Tick: tick}, nil
}

// GetEnvMarkerStore returns the marker store selection from environment variables
func GetEnvMarkerStore() (MarkerConfig, error) {
	store := os.Getenv("MARKER_STORE")
	if store == "" {
		store = DefaultMarkerStore
	}
	if store != MarkerStoreMemory && store != MarkerStoreSQLite {
		return MarkerConfig{}, fmt.Errorf("invalid MARKER_STORE value: %s, must be '%s' or '%s'",
			store, MarkerStoreMemory, MarkerStoreSQLite)
	}
	return MarkerConfig{Store: store, DBPath: os.Getenv("MARKER_DB_PATH")}, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	return getEnvPositiveInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
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
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return logger.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value: %w", err)
	}
	return level, nil
}

// GetEnvLogColoring returns whether log output is colored
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", true)
}

func getEnvBool(key string, def bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	if value == "true" {
		return true, nil
	} else if value == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, value)
}

func getEnvPositiveInt(key string, def int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}

func getEnvSeconds(key string, def int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer number of seconds", key, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be greater than or equal to 0", key)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}
