package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Pruner drops expired results.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Scheduler periodically prunes the result store.
type Scheduler struct {
	scheduler *gocron.Scheduler
	pruner    Pruner
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a new Scheduler.
func New(pruner Pruner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		pruner:    pruner,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the prune job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.pruner == nil || s.interval <= 0 {
		s.logger.Info("scheduler: pruning disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce prunes the store a single time.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Warn("scheduler: prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("scheduler: pruned results", zap.Int("removed", n))
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
