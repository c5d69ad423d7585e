package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/gaiatryst-synopsis/internal/coherence"
)

// Cycler runs one fetch cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (coherence.Snapshot, error)
}

// Scheduler periodically runs fetch cycles on a fixed interval. The interval
// does not adapt to failures; a failed cycle simply waits for the next tick.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cycler    Cycler
	interval  time.Duration
	timeout   time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	job     *gocron.Job
	started bool
}

// New creates a new Scheduler. timeout bounds each cycle.
func New(interval, timeout time.Duration, cycler Cycler, logger zerolog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		cycler:    cycler,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the periodic job, runs it immediately and starts the
// underlying scheduler. Runs never overlap.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("scheduler: already started")
	}
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	job, err := s.scheduler.Every(s.interval).StartImmediately().SingletonMode().Do(func() {
		s.logger.Info().Msg("scheduler: running fetch job")
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Warn().Err(err).Msg("scheduler: fetch job failed")
			return
		}
		s.logger.Info().Msg("scheduler: completed fetch job")
	})
	if err != nil {
		return err
	}

	s.job = job
	s.started = true
	s.scheduler.StartAsync()

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler: started")
	return nil
}

// RunOnce runs a single cycle synchronously, bounded by the cycle timeout.
func (s *Scheduler) RunOnce(ctx context.Context) (coherence.Snapshot, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.cycler.RunCycle(ctx)
}

// NextRun returns when the job runs next, or the zero time if not started.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

// Interval returns the configured interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler != nil && s.started {
		s.scheduler.Stop()
		s.started = false
	}
}
