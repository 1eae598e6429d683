package circuitbreaker

import (
	"sync"
	"time"

	"github.com/speedrun-hq/rerunner/pkg/logger"
)

// CircuitBreaker stops resubmissions to the build host after repeated failures
type CircuitBreaker struct {
	name          string
	enabled       bool
	failureCount  int
	failureWindow time.Duration
	failThreshold int
	resetTimeout  time.Duration
	lastFailure   time.Time
	tripped       bool
	tripTime      time.Time
	logger        logger.Logger
	now           func() time.Time
	mu            sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, enabled bool, threshold int, window time.Duration, resetTimeout time.Duration, log logger.Logger) *CircuitBreaker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &CircuitBreaker{
		name:          name,
		enabled:       enabled,
		failThreshold: threshold,
		failureWindow: window,
		resetTimeout:  resetTimeout,
		logger:        log,
		now:           time.Now,
	}
}

// RecordFailure records a failure and trips the circuit if threshold is exceeded
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	// If the circuit is already tripped, check if it's time to try again
	if cb.tripped {
		if now.Sub(cb.tripTime) > cb.resetTimeout {
			cb.logger.InfoWithJob(cb.name, "Circuit breaker: attempting to reset after timeout")
			cb.tripped = false
			cb.failureCount = 0
		} else {
			return true
		}
	}

	// Reset failure count if outside window
	if now.Sub(cb.lastFailure) > cb.failureWindow {
		cb.failureCount = 0
	}

	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.failThreshold {
		cb.tripped = true
		cb.tripTime = now
		cb.logger.ErrorWithJob(cb.name, "Circuit breaker tripped: %d submit failures in window", cb.failureCount)
		return true
	}

	return false
}

// RecordSuccess clears the failure count after a successful resubmission
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.tripped {
		cb.failureCount = 0
	}
}

// IsOpen returns true if the circuit is open (tripped)
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	// If tripped but reset timeout has passed, try again
	if cb.tripped && cb.now().Sub(cb.tripTime) > cb.resetTimeout {
		cb.tripped = false
		cb.failureCount = 0
		return false
	}

	return cb.tripped
}

// Reset manually resets the circuit breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.tripped = false
	cb.failureCount = 0
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() (failureCount int, lastFailure time.Time, failureWindow time.Duration, failThreshold int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount, cb.lastFailure, cb.failureWindow, cb.failThreshold
}

// IsEnabled returns true if the circuit breaker is enabled
func (cb *CircuitBreaker) IsEnabled() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.enabled
}

// Registry hands out one breaker per job
type Registry struct {
	enabled      bool
	threshold    int
	window       time.Duration
	resetTimeout time.Duration
	logger       logger.Logger
	mu           sync.Mutex
	breakers     map[string]*CircuitBreaker
}

// NewRegistry creates a registry whose breakers share one configuration
func NewRegistry(enabled bool, threshold int, window, resetTimeout time.Duration, log logger.Logger) *Registry {
	return &Registry{
		enabled:      enabled,
		threshold:    threshold,
		window:       window,
		resetTimeout: resetTimeout,
		logger:       log,
		breakers:     make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker of job, creating it on first use
func (r *Registry) For(job string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[job]
	if !ok {
		cb = NewCircuitBreaker(job, r.enabled, r.threshold, r.window, r.resetTimeout, r.logger)
		r.breakers[job] = cb
	}
	return cb
}

// Lookup returns the breaker of job if one exists
func (r *Registry) Lookup(job string) (*CircuitBreaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[job]
	return cb, ok
}

// Snapshot returns the open state of every known breaker
func (r *Registry) Snapshot() map[string]bool {
	r.mu.Lock()
	breakers := make(map[string]*CircuitBreaker, len(r.breakers))
	for job, cb := range r.breakers {
		breakers[job] = cb
	}
	r.mu.Unlock()

	out := make(map[string]bool, len(breakers))
	for job, cb := range breakers {
		out[job] = cb.IsOpen()
	}
	return out
}
