package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/internal/config"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduledJob struct {
	job      Job
	interval time.Duration
}

// Runner ticks each registered job on its own interval until stopped.
type Runner struct {
	cfg    config.WorkerConfig
	logger *zap.Logger
	jobs   []scheduledJob

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option is a function that configures a Runner.
type Option func(*Runner)

// WithJob registers a job to run every interval. When any job is registered
// through options the default sweep and health jobs are not added.
func WithJob(job Job, interval time.Duration) Option {
	return func(r *Runner) {
		r.jobs = append(r.jobs, scheduledJob{job: job, interval: interval})
	}
}

// NewRunner creates a runner for the expiry sweep and the health recompute.
func NewRunner(cfg config.WorkerConfig, sweeper Sweeper, health HealthRecomputer, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		logger: logger.Named("worker"),
	}
	for _, opt := range opts {
		opt(r)
	}

	if len(r.jobs) == 0 {
		r.registerJobs(sweeper, health)
	}
	return r
}

// registerJobs builds the default job set from configuration.
func (r *Runner) registerJobs(sweeper Sweeper, health HealthRecomputer) {
	if sweeper != nil {
		r.jobs = append(r.jobs, scheduledJob{job: NewSweepJob(sweeper, r.cfg.Actor), interval: r.cfg.SweepInterval})
	}
	if health != nil {
		r.jobs = append(r.jobs, scheduledJob{job: NewHealthJob(health, r.cfg.Concurrency), interval: r.cfg.HealthInterval})
	}
	r.logger.Info("Default jobs registered", zap.Int("count", len(r.jobs)))
}

// Start launches one goroutine per job. It returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("worker already running")
	}
	for _, sj := range r.jobs {
		if sj.interval <= 0 {
			return fmt.Errorf("job %s has non-positive interval %s", sj.job.Name(), sj.interval)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	for _, sj := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, sj)
	}
	r.logger.Info("Worker started", zap.Int("jobs", len(r.jobs)))
	return nil
}

// Stop cancels the job loops and waits for in-flight runs to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("Worker stopped")
}

// RunOnce runs every job a single time, in registration order.
func (r *Runner) RunOnce(ctx context.Context) error {
	var errs []error
	for _, sj := range r.jobs {
		if err := r.runJob(ctx, sj.job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sj.job.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) loop(ctx context.Context, sj scheduledJob) {
	defer r.wg.Done()
	ticker := time.NewTicker(sj.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.runJob(ctx, sj.job); err != nil && ctx.Err() == nil {
				r.logger.Error("Job failed", zap.String("job", sj.job.Name()), zap.Error(err))
			}
		}
	}
}

func (r *Runner) runJob(ctx context.Context, job Job) error {
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}
	start := time.Now()
	err := job.Run(ctx)
	r.logger.Debug("Job finished", zap.String("job", job.Name()), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	return err
}
