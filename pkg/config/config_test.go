package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/rerunner/pkg/delay"
	"github.com/speedrun-hq/rerunner/pkg/logger"
	"github.com/speedrun-hq/rerunner/pkg/policy"
)

func TestGetEnvPolicy(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p, err := GetEnvPolicy()
		require.NoError(t, err)
		assert.Equal(t, 0, p.MaxRetries)
		assert.False(t, p.RetryOnInstability)
		assert.False(t, p.RerunWholeFanout)
		assert.Equal(t, "", p.GatingPattern())
		require.NotNil(t, p.Delay)
		assert.Equal(t, delay.DefaultSpec(), *p.Delay)
	})

	t.Run("from environment", func(t *testing.T) {
		t.Setenv("MAX_RETRIES", "3")
		t.Setenv("RETRY_ON_UNSTABLE", "true")
		t.Setenv("RERUN_WHOLE_FANOUT", "true")
		t.Setenv("CHECK_REGEXP", "true")
		t.Setenv("REGEXP_FOR_RERUN", "Connection reset")
		t.Setenv("DELAY_KIND", "fixed")
		t.Setenv("DELAY_SECONDS", "45")

		p, err := GetEnvPolicy()
		require.NoError(t, err)
		assert.Equal(t, 3, p.MaxRetries)
		assert.True(t, p.RetryOnInstability)
		assert.True(t, p.RerunWholeFanout)
		assert.Equal(t, "Connection reset", p.GatingPattern())
		assert.Equal(t, delay.Spec{Kind: delay.KindFixed, Seconds: 45, Max: DefaultDelayMax}, *p.Delay)
	})

	t.Run("invalid values", func(t *testing.T) {
		cases := map[string]string{
			"MAX_RETRIES":       "many",
			"RETRY_ON_UNSTABLE": "yes",
			"DELAY_KIND":        "random",
			"DELAY_INCREMENT":   "-1",
			"DELAY_MULTIPLIER":  "fast",
		}
		for key, value := range cases {
			t.Run(key, func(t *testing.T) {
				t.Setenv(key, value)
				_, err := GetEnvPolicy()
				assert.Error(t, err)
			})
		}
	})
}

func TestGetEnvQueue(t *testing.T) {
	q, err := GetEnvQueue()
	require.NoError(t, err)
	assert.Equal(t, QueueConfig{Capacity: DefaultQueueCapacity, MaxPerTick: DefaultQueueMaxPerTick, Tick: DefaultRetryTick}, q)

	t.Setenv("RETRY_TICK", "250ms")
	t.Setenv("RETRY_QUEUE_CAPACITY", "5")
	q, err = GetEnvQueue()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, q.Tick)
	assert.Equal(t, 5, q.Capacity)

	t.Setenv("RETRY_QUEUE_CAPACITY", "0")
	_, err = GetEnvQueue()
	assert.Error(t, err)
}

func TestParsePolicies(t *testing.T) {
	data := []byte(`
jobs:
  nightly:
    max_retries: 3
    retry_on_instability: true
    check_regexp: true
    regexp_for_rerun: "disk full"
    delay:
      kind: fixed
      seconds: 60
  matrix:
    rerun_whole_fanout: true
`)
	policies, err := ParsePolicies(data)
	require.NoError(t, err)
	require.Len(t, policies, 2)

	nightly := policies["nightly"]
	assert.Equal(t, 3, nightly.MaxRetries)
	assert.True(t, nightly.RetryOnInstability)
	assert.Equal(t, "disk full", nightly.GatingPattern())
	assert.Equal(t, delay.Spec{Kind: delay.KindFixed, Seconds: 60}, *nightly.Delay)

	matrix := policies["matrix"]
	assert.True(t, matrix.RerunWholeFanout)
	assert.Nil(t, matrix.Delay)
	assert.Equal(t, delay.DefaultSpec(), matrix.DelaySpec())

	_, err = ParsePolicies([]byte("jobs: [not, a, map]"))
	assert.Error(t, err)
}

func TestParsePoliciesDelayCap(t *testing.T) {
	data := []byte(`
jobs:
  progressive:
    delay: {kind: progressive, increment: 60}
  exponential:
    delay: {kind: exponential, seconds: 30}
  uncapped:
    delay: {kind: progressive, increment: 60, max: 0}
  fixed:
    delay: {kind: fixed, seconds: 15}
`)
	policies, err := ParsePolicies(data)
	require.NoError(t, err)

	tests := []struct {
		job     string
		wantMax int
	}{
		{"progressive", DefaultDelayMax},
		{"exponential", DefaultDelayMax},
		{"uncapped", 0},
		{"fixed", 0},
	}
	for _, tt := range tests {
		t.Run(tt.job, func(t *testing.T) {
			require.NotNil(t, policies[tt.job].Delay)
			assert.Equal(t, tt.wantMax, policies[tt.job].Delay.Max)
		})
	}

	p, err := policy.New(policies["progressive"])
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, p.DelayFor(0))
	assert.Equal(t, 120*time.Second, p.DelayFor(1))
}

func TestGetEnvCircuitBreakerDurations(t *testing.T) {
	window, err := GetEnvCircuitBreakerWindow()
	require.NoError(t, err)
	assert.Equal(t, DefaultCircuitBreakerWindow*time.Second, window)

	t.Setenv("CIRCUIT_BREAKER_RESET", "2m")
	reset, err := GetEnvCircuitBreakerReset()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, reset)

	for _, value := range []string{"-5s", "0s", "soon"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("CIRCUIT_BREAKER_WINDOW", value)
			_, err := GetEnvCircuitBreakerWindow()
			assert.Error(t, err)

			t.Setenv("CIRCUIT_BREAKER_RESET", value)
			_, err = GetEnvCircuitBreakerReset()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policies.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte("jobs:\n  deploy:\n    max_retries: 1\n"), 0o600))

	t.Setenv("POLICY_FILE", policyPath)
	t.Setenv("MAX_RETRIES", "4")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SUBMIT_URL", "http://builds.internal:8080/resubmit")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.PolicyFor("deploy").MaxRetries)
	assert.Equal(t, 4, cfg.PolicyFor("other").MaxRetries)
	assert.Equal(t, logger.DebugLevel, cfg.LoggerConfig.Level)
	assert.Equal(t, MarkerStoreMemory, cfg.Markers.Store)

	t.Run("invalid gating pattern fails at load", func(t *testing.T) {
		t.Setenv("CHECK_REGEXP", "true")
		t.Setenv("REGEXP_FOR_RERUN", "[unclosed")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("submit url is required", func(t *testing.T) {
		t.Setenv("SUBMIT_URL", "")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("sqlite store needs a path", func(t *testing.T) {
		t.Setenv("MARKER_STORE", "sqlite")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}
