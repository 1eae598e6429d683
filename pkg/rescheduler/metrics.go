package rescheduler

import (
	"context"
	"time"

	"github.com/speedrun-hq/rerunner/pkg/metrics"
)

const metricsInterval = 30 * time.Second

// UpdateMetrics refreshes the gauges that are sampled rather than counted
func (s *Service) UpdateMetrics(ctx context.Context) {
	count, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Debug("Failed to count retry markers: %v", err)
	} else {
		metrics.MarkersStored.Set(float64(count))
	}

	open := 0
	for _, isOpen := range s.breakers.Snapshot() {
		if isOpen {
			open++
		}
	}
	metrics.CircuitsOpen.Set(float64(open))
	metrics.RetryQueueSize.Set(float64(s.QueueSize()))
}

// metricsUpdater samples gauges until ctx is cancelled
func (s *Service) metricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.UpdateMetrics(ctx)
		}
	}
}
