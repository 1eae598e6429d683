package policy

import (
	"fmt"
	"regexp"
	"time"

	"github.com/speedrun-hq/rerunner/pkg/delay"
	"github.com/speedrun-hq/rerunner/pkg/logger"
	"github.com/speedrun-hq/rerunner/pkg/logscan"
	"github.com/speedrun-hq/rerunner/pkg/models"
)

// Decider decides whether a finished build is resubmitted.
// Policy is the standard implementation; hosts may supply their own.
type Decider interface {
	ShouldSchedule(result models.BuildResult, log logscan.Source, attempt int, sink logger.Logger) bool
	ShouldScheduleCombination(result models.BuildResult) bool
	DelayFor(attempt int) time.Duration
	RerunWholeFanout() bool
}

// Reason explains a Decision
type Reason string

const (
	ReasonEligible        Reason = "eligible"
	ReasonSuccess         Reason = "success"
	ReasonAborted         Reason = "aborted"
	ReasonUnstable        Reason = "unstable"
	ReasonPatternNotFound Reason = "pattern_not_found"
	ReasonMaxRetries      Reason = "max_retries_reached"
	// ReasonDeclined is used for deciders that only answer yes or no
	ReasonDeclined Reason = "declined"
)

// Decision is the audited outcome of Evaluate
type Decision struct {
	Schedule bool
	Reason   Reason
	Gate     logscan.GateResult
	// ScanErr is set when the gate was bypassed because the log could not be read
	ScanErr error
}

// GateBypassed reports whether the log gate was skipped because of a scan error
func (d Decision) GateBypassed() bool {
	return d.Gate == logscan.GateScanError
}

// Policy is the retry decision attached to a finished build. It is immutable.
type Policy struct {
	config             Config
	maxRetries         int
	delay              delay.Strategy
	rerunWholeFanout   bool
	pattern            *regexp.Regexp
	retryOnInstability bool
}

var _ Decider = (*Policy)(nil)

// New validates cfg and builds a Policy. An invalid gating pattern or delay is an error here,
// never at decision time.
func New(cfg Config) (*Policy, error) {
	strategy, err := cfg.DelaySpec().Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build delay: %w", err)
	}

	pattern, err := logscan.Compile(cfg.GatingPattern())
	if err != nil {
		return nil, err
	}

	return &Policy{
		config:             cfg,
		maxRetries:         cfg.MaxRetries,
		delay:              strategy,
		rerunWholeFanout:   cfg.RerunWholeFanout,
		pattern:            pattern,
		retryOnInstability: cfg.RetryOnInstability,
	}, nil
}

// NewWithDelay builds a Policy around an already constructed strategy. A nil strategy
// means the default progressive delay.
func NewWithDelay(cfg Config, strategy delay.Strategy) (*Policy, error) {
	strategy = delay.OrDefault(strategy)
	spec := delay.SpecOf(strategy)
	cfg.Delay = &spec

	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	p.delay = strategy
	return p, nil
}

// Config returns the configuration the policy was built from
func (p *Policy) Config() Config {
	return p.config
}

// MaxRetries returns the retry bound, zero or less meaning unlimited
func (p *Policy) MaxRetries() int {
	return p.maxRetries
}

// RetryOnInstability reports whether unstable builds are retried
func (p *Policy) RetryOnInstability() bool {
	return p.retryOnInstability
}

// RerunWholeFanout reports whether a fan-out is resubmitted through its parent
func (p *Policy) RerunWholeFanout() bool {
	return p.rerunWholeFanout
}

// GatingPattern returns the compiled gate, nil when there is none
func (p *Policy) GatingPattern() *regexp.Regexp {
	return p.pattern
}

// DelayFor returns the wait before retry number attempt (0-based)
func (p *Policy) DelayFor(attempt int) time.Duration {
	return p.delay.Delay(attempt)
}

// Delay returns the strategy
func (p *Policy) Delay() delay.Strategy {
	return p.delay
}

// ShouldSchedule decides whether a finished build is resubmitted.
// Log read failures are reported to sink and do not block the retry.
func (p *Policy) ShouldSchedule(result models.BuildResult, log logscan.Source, attempt int, sink logger.Logger) bool {
	return p.Evaluate(result, log, attempt, sink).Schedule
}

// Decide evaluates d, keeping the audit detail when d is a *Policy
func Decide(d Decider, result models.BuildResult, log logscan.Source, attempt int, sink logger.Logger) Decision {
	if p, ok := d.(*Policy); ok {
		return p.Evaluate(result, log, attempt, sink)
	}
	if d.ShouldSchedule(result, log, attempt, sink) {
		return Decision{Schedule: true, Reason: ReasonEligible}
	}
	return Decision{Reason: ReasonDeclined}
}

// Evaluate is ShouldSchedule with the reason and gate outcome attached
func (p *Policy) Evaluate(result models.BuildResult, log logscan.Source, attempt int, sink logger.Logger) Decision {
	if sink == nil {
		sink = &logger.EmptyLogger{}
	}

	if reason, ok := p.resultAllows(result); !ok {
		return Decision{Reason: reason}
	}

	gate, err := logscan.Gate(log, p.pattern)
	switch gate {
	case logscan.GateNotFound:
		sink.Debug("Pattern %q not found in build log, not rescheduling", p.pattern.String())
		return Decision{Reason: ReasonPatternNotFound, Gate: gate}
	case logscan.GateScanError:
		sink.Error("Error while parsing build log for pattern %q - forcing rebuild: %v", p.pattern.String(), err)
	}

	if !p.withinBudget(attempt) {
		return Decision{Reason: ReasonMaxRetries, Gate: gate, ScanErr: err}
	}
	return Decision{Schedule: true, Reason: ReasonEligible, Gate: gate, ScanErr: err}
}

// ShouldScheduleCombination decides whether one fan-out member is eligible for a rerun.
// Gate and retry budget are evaluated once for the parent, not per member.
func (p *Policy) ShouldScheduleCombination(result models.BuildResult) bool {
	return ShouldScheduleCombination(result, p.retryOnInstability)
}

// ShouldScheduleCombination is the member-level predicate without a Policy
func ShouldScheduleCombination(result models.BuildResult, retryOnInstability bool) bool {
	_, ok := resultAllows(result, retryOnInstability)
	return ok
}

func (p *Policy) resultAllows(result models.BuildResult) (Reason, bool) {
	return resultAllows(result, p.retryOnInstability)
}

func resultAllows(result models.BuildResult, retryOnInstability bool) (Reason, bool) {
	switch result {
	case models.ResultSuccess:
		return ReasonSuccess, false
	case models.ResultAborted:
		return ReasonAborted, false
	case models.ResultUnstable:
		if !retryOnInstability {
			return ReasonUnstable, false
		}
	}
	return ReasonEligible, true
}

func (p *Policy) withinBudget(attempt int) bool {
	if p.maxRetries <= 0 {
		return true
	}
	return attempt < p.maxRetries
}
