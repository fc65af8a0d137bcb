// Package jobs runs the periodic sweeps that keep experiments moving:
// buffer flushes, schedule transitions and the auto-optimization loop.
package jobs

import (
	"context"
	"time"

	"myContentLab/pkg/config"
	"myContentLab/pkg/logger"
	"myContentLab/pkg/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const optimizeLockKey = "content-lab:auto-optimize-lock"

// SweepService is the subset of the experiment service the sweeper
// drives.
type SweepService interface {
	FlushMetrics(ctx context.Context) error
	ScheduleExperiments(ctx context.Context) error
	AutoOptimizeCycle(ctx context.Context) error
}

// Sweeper owns the periodic background work. The flush and schedule
// sweeps are cheap and run on every instance; the auto-optimize sweep
// talks to external services, so a Redis lock keeps it to a single
// instance at a time.
type Sweeper struct {
	service SweepService
	redis   *redis.Client
	cfg     config.SweepConfig
}

func NewSweeper(service SweepService, redisClient *redis.Client, cfg config.SweepConfig) *Sweeper {
	return &Sweeper{
		service: service,
		redis:   redisClient,
		cfg:     cfg,
	}
}

// Run blocks until ctx is cancelled, firing each sweep on its own
// interval. A final flush runs on shutdown so buffered events survive
// a restart.
func (s *Sweeper) Run(ctx context.Context) {
	flushTicker := time.NewTicker(s.cfg.FlushInterval)
	scheduleTicker := time.NewTicker(s.cfg.ScheduleInterval)
	optimizeTicker := time.NewTicker(s.cfg.OptimizeInterval)
	defer flushTicker.Stop()
	defer scheduleTicker.Stop()
	defer optimizeTicker.Stop()

	logger.Info("sweeper started",
		"flush_interval", s.cfg.FlushInterval,
		"schedule_interval", s.cfg.ScheduleInterval,
		"optimize_interval", s.cfg.OptimizeInterval)

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.service.FlushMetrics(shutdownCtx); err != nil {
				logger.Error("final flush failed", "error", err)
			}
			cancel()
			logger.Info("sweeper stopped")
			return
		case <-flushTicker.C:
			s.sweep(ctx, "flush", s.service.FlushMetrics)
		case <-scheduleTicker.C:
			s.sweep(ctx, "schedule", s.service.ScheduleExperiments)
		case <-optimizeTicker.C:
			s.sweep(ctx, "optimize", s.withLock(s.service.AutoOptimizeCycle))
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, name string, fn func(context.Context) error) {
	start := time.Now()
	if err := fn(ctx); err != nil {
		logger.Error("sweep failed", "sweep", name, "error", err)
		return
	}
	metrics.SweepLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// withLock wraps a sweep in a best-effort distributed lock. Losing the
// race is normal in a multi-instance deployment and not an error.
func (s *Sweeper) withLock(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		token := uuid.NewString()
		acquired, err := s.redis.SetNX(ctx, optimizeLockKey, token, s.cfg.LockTTL).Result()
		if err != nil {
			return err
		}
		if !acquired {
			logger.Debug("optimize sweep held by another instance")
			return nil
		}
		defer func() {
			releaseCtx := context.WithoutCancel(ctx)
			// Only release a lock we still hold; if the TTL expired
			// mid-sweep another instance may own the key now.
			held, err := s.redis.Get(releaseCtx, optimizeLockKey).Result()
			if err == nil && held == token {
				err = s.redis.Del(releaseCtx, optimizeLockKey).Err()
			}
			if err != nil && err != redis.Nil {
				logger.Error("failed to release optimize lock", "error", err)
			}
		}()

		return fn(ctx)
	}
}
