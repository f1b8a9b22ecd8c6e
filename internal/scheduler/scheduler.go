package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/cache"
)

// Scheduler keeps the default zone's forecast entry warm for the lifetime of
// the process. It is a latency optimization only; a cold cache just means the
// next request pays the live-fetch cost.
type Scheduler struct {
	scheduler *gocron.Scheduler
	warmer    *cache.Warmer
	zones     []string
	interval  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	started bool
}

// New creates a Scheduler that warms the given zones every interval.
func New(warmer *cache.Warmer, zones []string, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		warmer:    warmer,
		zones:     zones,
		interval:  interval,
		logger:    logger,
	}
}

// Start is idempotent: the first call triggers an immediate asynchronous warm
// and installs the recurring job; later calls are no-ops. Warm errors are
// logged, never propagated.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if len(s.zones) == 0 {
		if s.logger != nil {
			s.logger.Info("scheduler: no zones configured; nothing to warm")
		}
		s.started = true
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = cache.DefaultTTL
	}

	_, err := s.scheduler.Every(interval).StartImmediately().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.warmer.Warm(ctx, s.zones); err != nil && s.logger != nil {
			s.logger.Warn("scheduled forecast warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.started = true
	if s.logger != nil {
		s.logger.Info("scheduler started", zap.Strings("zones", s.zones), zap.Duration("interval", interval))
	}
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
