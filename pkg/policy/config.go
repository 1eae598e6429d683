package policy

import (
	"github.com/speedrun-hq/rerunner/pkg/delay"
)

// Config is the plain-data retry configuration of a job
type Config struct {
	// MaxRetries bounds automatic resubmissions; zero or less means unlimited
	MaxRetries         int         `json:"max_retries" yaml:"max_retries"`
	Delay              *delay.Spec `json:"delay,omitempty" yaml:"delay,omitempty"`
	RerunWholeFanout   bool        `json:"rerun_whole_fanout" yaml:"rerun_whole_fanout"`
	CheckRegexp        bool        `json:"check_regexp" yaml:"check_regexp"`
	RegexpForRerun     string      `json:"regexp_for_rerun,omitempty" yaml:"regexp_for_rerun,omitempty"`
	RetryOnInstability bool        `json:"retry_on_instability" yaml:"retry_on_instability"`
}

// DefaultConfig is unlimited retries with the default progressive delay and no gate
func DefaultConfig() Config {
	spec := delay.DefaultSpec()
	return Config{Delay: &spec}
}

// GatingPattern returns the pattern that gates retries, empty when the gate is off
func (c Config) GatingPattern() string {
	if !c.CheckRegexp {
		return ""
	}
	return c.RegexpForRerun
}

// DelaySpec returns the configured delay, falling back to the default progressive delay
func (c Config) DelaySpec() delay.Spec {
	if c.Delay == nil {
		return delay.DefaultSpec()
	}
	return *c.Delay
}
