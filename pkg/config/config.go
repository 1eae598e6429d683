package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/speedrun-hq/rerunner/pkg/logger"
	"github.com/speedrun-hq/rerunner/pkg/policy"
)

// Config holds the configuration for the rerunner service
type Config struct {
	DefaultPolicy  policy.Config
	Policies       map[string]policy.Config
	MetricsPort    string
	SubmitURL      string
	Queue          QueueConfig
	Markers        MarkerConfig
	CircuitBreaker CircuitBreakerConfig
	LoggerConfig   LoggerConfig
}

// QueueConfig holds retry queue configuration
type QueueConfig struct {
	Capacity   int
	MaxPerTick int
	Tick       time.Duration
}

// MarkerConfig selects where retry markers are kept
type MarkerConfig struct {
	Store  string
	DBPath string
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

// PolicyFor returns the retry configuration of a job, the default policy unless the
// policy file overrides it
func (c *Config) PolicyFor(job string) policy.Config {
	if p, ok := c.Policies[job]; ok {
		return p
	}
	return c.DefaultPolicy
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	defaultPolicy, err := GetEnvPolicy()
	if err != nil {
		return nil, err
	}

	policies, err := GetEnvPolicyFile()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	submitURL, err := GetEnvSubmitURL()
	if err != nil {
		return nil, err
	}

	queue, err := GetEnvQueue()
	if err != nil {
		return nil, err
	}

	markers, err := GetEnvMarkerStore()
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
		DefaultPolicy: defaultPolicy,
		Policies:      policies,
		MetricsPort:   metricsPort,
		SubmitURL:     submitURL,
		Queue:         queue,
		Markers:       markers,
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
	if _, err := policy.New(cfg.DefaultPolicy); err != nil {
		return fmt.Errorf("invalid default retry policy: %w", err)
	}
	for job, p := range cfg.Policies {
		if _, err := policy.New(p); err != nil {
			return fmt.Errorf("invalid retry policy for job %s: %w", job, err)
		}
	}
	if cfg.SubmitURL == "" {
		return fmt.Errorf("SUBMIT_URL is required")
	}
	if cfg.Markers.Store == MarkerStoreSQLite && cfg.Markers.DBPath == "" {
		return fmt.Errorf("MARKER_DB_PATH is required when MARKER_STORE is %s", MarkerStoreSQLite)
	}
	return nil
}
