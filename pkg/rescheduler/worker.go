package rescheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/speedrun-hq/rerunner/pkg/metrics"
	"github.com/speedrun-hq/rerunner/pkg/models"
)

// Run drains the retry queue until ctx is cancelled
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("Retry handler started")
	go s.metricsUpdater(ctx)
	s.retryHandler(ctx)
	s.logger.Info("Retry handler shutting down")
}

// retryHandler submits queued retries once their delay has elapsed
func (s *Service) retryHandler(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var retryQueue []models.RetryJob

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.retryJobs:
			if len(retryQueue) >= s.capacity {
				s.logger.ErrorWithJob(job.Build.Job, "Retry queue at capacity (%d jobs), dropping retry of build %s", s.capacity, job.Build)
				metrics.DroppedRetries.WithLabelValues(job.Build.Job).Inc()
				continue
			}
			retryQueue = append(retryQueue, job)
			sort.Slice(retryQueue, func(i, j int) bool {
				return retryQueue[i].NextAttempt.Before(retryQueue[j].NextAttempt)
			})
			s.queued.Store(int64(len(retryQueue)))
		case <-ticker.C:
			now := s.now()
			var remainingJobs []models.RetryJob
			processed := 0

			metrics.RetryQueueSize.Set(float64(len(retryQueue)))
			if len(retryQueue) > 0 {
				nextRetryIn := retryQueue[0].NextAttempt.Sub(now).Seconds()
				if nextRetryIn < 0 {
					nextRetryIn = 0
				}
				metrics.NextRetryIn.Set(nextRetryIn)
			}

			for _, job := range retryQueue {
				if job.NextAttempt.After(now) || processed >= s.maxPerTick {
					remainingJobs = append(remainingJobs, job)
					continue
				}

				if s.breakers.For(job.Build.Job).IsOpen() {
					s.logger.DebugWithJob(job.Build.Job, "Circuit breaker open, holding retry of build %s", job.Build)
					metrics.RetriesSkipped.WithLabelValues(job.Build.Job, "circuit_open").Inc()
					remainingJobs = append(remainingJobs, job)
					continue
				}

				processed++
				if retry, ok := s.submit(ctx, job, now); !ok {
					retry.NextAttempt = now.Add(s.tick)
					remainingJobs = append(remainingJobs, retry)
				}
			}

			retryQueue = remainingJobs
			s.queued.Store(int64(len(retryQueue)))

			if processed >= s.maxPerTick && len(retryQueue) > 0 {
				ticker.Reset(max(s.tick/10, time.Millisecond))
			} else if len(retryQueue) > 0 {
				waitTime := retryQueue[0].NextAttempt.Sub(now)
				if waitTime <= 0 || waitTime > s.tick {
					waitTime = s.tick
				}
				ticker.Reset(waitTime)
			} else {
				ticker.Reset(s.tick)
			}
		}
	}
}

// submit hands a due retry to the host. When only part of a fan-out could be submitted the
// returned job carries the members still outstanding.
func (s *Service) submit(ctx context.Context, job models.RetryJob, now time.Time) (models.RetryJob, bool) {
	breaker := s.breakers.For(job.Build.Job)

	if job.Plan != nil && !job.Plan.ResubmitParent && len(job.Plan.Members) > 0 {
		failed := s.submitMembers(ctx, job, now)
		if len(failed) == 0 {
			breaker.RecordSuccess()
			metrics.RetriesExecuted.WithLabelValues(job.Build.Job).Inc()
			return job, true
		}
		breaker.RecordFailure()
		plan := *job.Plan
		plan.Members = failed
		job.Plan = &plan
		return job, false
	}

	if err := s.submitter.Submit(ctx, models.NewSubmitRequest(job, now)); err != nil {
		s.logger.ErrorWithJob(job.Build.Job, "Failed to resubmit build %s: %v", job.Build, err)
		metrics.SubmitErrors.WithLabelValues(job.Build.Job).Inc()
		breaker.RecordFailure()
		return job, false
	}

	s.logger.InfoWithJob(job.Build.Job, "Resubmitted build %s (attempt #%d)", job.Build, job.RetryCount)
	breaker.RecordSuccess()
	metrics.RetriesExecuted.WithLabelValues(job.Build.Job).Inc()
	return job, true
}

// submitMembers resubmits each selected fan-out member and returns those the host rejected
func (s *Service) submitMembers(ctx context.Context, job models.RetryJob, now time.Time) []models.Combination {
	var (
		mu     sync.Mutex
		failed []models.Combination
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxPerTick)
	for _, member := range job.Plan.Members {
		g.Go(func() error {
			req := models.SubmitRequest{
				Job:        job.Build.Job,
				BuildID:    job.Build.ID,
				RetryCount: job.RetryCount,
				Rerun:      []string{member.Key()},
				RequestAt:  now,
			}
			if err := s.submitter.Submit(gctx, req); err != nil {
				s.logger.ErrorWithJob(job.Build.Job, "Failed to resubmit %s of build %s: %v", member, job.Build, err)
				metrics.SubmitErrors.WithLabelValues(job.Build.Job).Inc()
				mu.Lock()
				failed = append(failed, member)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		s.logger.InfoWithJob(job.Build.Job, "Resubmitted %d members of build %s (attempt #%d)", len(job.Plan.Members), job.Build, job.RetryCount)
	}
	return failed
}
