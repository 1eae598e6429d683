package rescheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/speedrun-hq/rerunner/pkg/circuitbreaker"
	"github.com/speedrun-hq/rerunner/pkg/logger"
	"github.com/speedrun-hq/rerunner/pkg/logscan"
	"github.com/speedrun-hq/rerunner/pkg/marker"
	"github.com/speedrun-hq/rerunner/pkg/metrics"
	"github.com/speedrun-hq/rerunner/pkg/models"
	"github.com/speedrun-hq/rerunner/pkg/policy"
	"github.com/speedrun-hq/rerunner/pkg/selector"
)

var (
	ErrFanoutMember = errors.New("fan-out members are decided through their parent")
	ErrQueueFull    = errors.New("retry queue full")
)

const intakeSize = 100

// PolicySource returns the retry configuration of a job
type PolicySource func(job string) policy.Config

// Options configures a Service
type Options struct {
	Store      marker.Store
	Submitter  Submitter
	Policies   PolicySource
	Breakers   *circuitbreaker.Registry
	Logger     logger.Logger
	Capacity   int
	MaxPerTick int
	Tick       time.Duration
}

// Service turns build completions into scheduled resubmissions
type Service struct {
	store      marker.Store
	submitter  Submitter
	policies   PolicySource
	breakers   *circuitbreaker.Registry
	logger     logger.Logger
	capacity   int
	maxPerTick int
	tick       time.Duration

	retryJobs chan models.RetryJob
	queued    atomic.Int64
	now       func() time.Time

	mu       sync.RWMutex
	deciders map[string]policy.Decider
	filters  map[string]selector.CombinationFilter
}

// NewService creates a new rescheduler service
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("marker store is required")
	}
	if opts.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if opts.Policies == nil {
		opts.Policies = func(string) policy.Config { return policy.DefaultConfig() }
	}
	if opts.Logger == nil {
		opts.Logger = &logger.EmptyLogger{}
	}
	if opts.Breakers == nil {
		opts.Breakers = circuitbreaker.NewRegistry(false, 1, time.Minute, time.Minute, opts.Logger)
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 1000
	}
	if opts.MaxPerTick <= 0 {
		opts.MaxPerTick = 10
	}
	if opts.Tick <= 0 {
		opts.Tick = 10 * time.Second
	}

	return &Service{
		store:      opts.Store,
		submitter:  opts.Submitter,
		policies:   opts.Policies,
		breakers:   opts.Breakers,
		logger:     opts.Logger,
		capacity:   opts.Capacity,
		maxPerTick: opts.MaxPerTick,
		tick:       opts.Tick,
		retryJobs:  make(chan models.RetryJob, intakeSize),
		now:        time.Now,
		deciders:   make(map[string]policy.Decider),
		filters:    make(map[string]selector.CombinationFilter),
	}, nil
}

// SetDecider replaces the attached policy of job with a host supplied decider
func (s *Service) SetDecider(job string, d policy.Decider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deciders[job] = d
}

// SetCombinationFilter narrows which failing fan-out members of job are rerun
func (s *Service) SetCombinationFilter(job string, f selector.CombinationFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters[job] = f
}

// QueueSize returns the number of retries waiting to be submitted
func (s *Service) QueueSize() int {
	return int(s.queued.Load())
}

// Store returns the marker store
func (s *Service) Store() marker.Store {
	return s.store
}

// Breakers returns the circuit breaker registry
func (s *Service) Breakers() *circuitbreaker.Registry {
	return s.breakers
}

// OnBuildFinished records the retry policy for build and, for standalone builds and fan-out
// parents, decides whether it is resubmitted.
func (s *Service) OnBuildFinished(ctx context.Context, build models.Build) (policy.Decision, error) {
	build.Normalize()
	if _, err := s.RecordCompletion(ctx, build, s.policies(build.Job)); err != nil {
		return policy.Decision{}, err
	}
	if build.IsFanoutMember() {
		return policy.Decision{}, nil
	}
	return s.HandleCompletion(ctx, build)
}

// RecordCompletion attaches the retry marker for build. Members of a fan-out attach to their
// parent and only the first sibling succeeds.
func (s *Service) RecordCompletion(ctx context.Context, build models.Build, cfg policy.Config) (marker.Outcome, error) {
	if _, err := policy.New(cfg); err != nil {
		return marker.AlreadyPresent, fmt.Errorf("invalid retry policy for %s: %w", build.Job, err)
	}

	outcome, err := s.store.Attach(ctx, marker.New(build.MarkerKey(), build.Job, cfg))
	if err != nil {
		return outcome, fmt.Errorf("failed to attach retry marker to %s: %w", build.MarkerKey(), err)
	}
	metrics.MarkersAttached.WithLabelValues(outcome.String()).Inc()
	s.logger.DebugWithJob(build.Job, "Retry marker for build %s: %s", build.MarkerKey(), outcome)
	return outcome, nil
}

// HandleCompletion decides whether a finished standalone build or fan-out parent is
// resubmitted and queues the retry.
func (s *Service) HandleCompletion(ctx context.Context, build models.Build) (policy.Decision, error) {
	if build.IsFanoutMember() {
		return policy.Decision{}, ErrFanoutMember
	}

	decider, err := s.deciderFor(ctx, build)
	if err != nil {
		return policy.Decision{}, err
	}
	if decider == nil {
		s.logger.DebugWithJob(build.Job, "No retry marker on build %s, not rescheduling", build.ID)
		return policy.Decision{}, nil
	}

	jobLog := logger.ForJob(s.logger, build.Job)
	var src logscan.Source
	if build.LogPath != "" {
		src = logscan.FileLog(build.LogPath)
	}

	decision := policy.Decide(decider, build.Result, src, build.RetryCount, jobLog)
	metrics.Decisions.WithLabelValues(build.Job, string(decision.Reason)).Inc()
	switch decision.Reason {
	case policy.ReasonEligible, policy.ReasonPatternNotFound, policy.ReasonMaxRetries:
		metrics.GateResults.WithLabelValues(build.Job, decision.Gate.String()).Inc()
	}
	if decision.GateBypassed() {
		metrics.LogScanErrors.WithLabelValues(build.Job).Inc()
	}

	if !decision.Schedule {
		if decision.Reason == policy.ReasonMaxRetries {
			s.logger.InfoWithJob(build.Job, "Max retries reached for build %s, giving up", build)
			metrics.MaxRetriesReached.WithLabelValues(build.Job).Inc()
		} else {
			s.logger.DebugWithJob(build.Job, "Not rescheduling build %s (%s)", build, decision.Reason)
		}
		return decision, nil
	}

	job := models.RetryJob{
		ID:         uuid.New().String(),
		Build:      build,
		RetryCount: build.RetryCount + 1,
		Delay:      decider.DelayFor(build.RetryCount),
	}
	job.NextAttempt = s.now().Add(job.Delay)

	if build.IsFanoutParent() {
		plan := selector.Select(decider, build.FanoutRun(), s.filterFor(build.Job))
		if plan.Empty() {
			// nothing failed individually: rerun the whole fan-out
			plan = models.RerunPlan{ResubmitParent: true}
		}
		if plan.FellBack {
			metrics.FanoutFallbacks.WithLabelValues(build.Job).Inc()
			s.logger.NoticeWithJob(build.Job, "Combination filter selected no failing member of %s, rerunning all failing members", build)
		}
		metrics.FanoutMembersSelected.Observe(float64(len(plan.Members)))
		job.Plan = &plan
	}

	if err := s.enqueue(job); err != nil {
		return decision, err
	}

	metrics.RetriesScheduled.WithLabelValues(build.Job).Inc()
	metrics.RetryDelay.WithLabelValues(build.Job).Observe(job.Delay.Seconds())
	s.logger.InfoWithJob(build.Job, "Scheduling retry #%d of build %s in %v", job.RetryCount, build, job.Delay)
	return decision, nil
}

// Forget removes the marker of a build record that the host deleted
func (s *Service) Forget(ctx context.Context, buildID string) error {
	return s.store.Detach(ctx, buildID)
}

func (s *Service) deciderFor(ctx context.Context, build models.Build) (policy.Decider, error) {
	m, ok, err := s.store.Get(ctx, build.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read retry marker of %s: %w", build.ID, err)
	}
	if !ok {
		return nil, nil
	}

	s.mu.RLock()
	override, overridden := s.deciders[build.Job]
	s.mu.RUnlock()
	if overridden {
		return override, nil
	}

	p, err := m.Decider()
	if err != nil {
		return nil, fmt.Errorf("invalid retry marker on %s: %w", build.ID, err)
	}
	return p, nil
}

func (s *Service) filterFor(job string) selector.CombinationFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters[job]
}

// enqueue hands job to the retry handler without waiting for it
func (s *Service) enqueue(job models.RetryJob) error {
	select {
	case s.retryJobs <- job:
		return nil
	default:
		s.logger.ErrorWithJob(job.Build.Job, "Retry intake full (%d jobs), dropping retry of build %s", cap(s.retryJobs), job.Build)
		metrics.DroppedRetries.WithLabelValues(job.Build.Job).Inc()
		return fmt.Errorf("%w: retry of build %s", ErrQueueFull, job.Build)
	}
}
