// internal/worker/worker_test.go
package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/worker"
)

// countingJob records how many times it ran and can block until released.
type countingJob struct {
	name    string
	runs    atomic.Int32
	err     error
	started chan struct{}
	release chan struct{}
}

func newCountingJob(name string) *countingJob {
	return &countingJob{name: name, started: make(chan struct{}, 100)}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	select {
	case j.started <- struct{}{}:
	default:
	}
	if j.release != nil {
		<-j.release
	}
	return j.err
}

type mockSweeper struct{ mock.Mock }

func (m *mockSweeper) SweepExpiry(ctx context.Context, actor, reason string) (*schemas.SweepResult, error) {
	args := m.Called(ctx, actor, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.SweepResult), args.Error(1)
}

type mockHealth struct{ mock.Mock }

func (m *mockHealth) RecomputeAll(ctx context.Context, concurrency int) (int, error) {
	args := m.Called(ctx, concurrency)
	return args.Int(0), args.Error(1)
}

func waitForRuns(t *testing.T, j *countingJob, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-j.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("job %s ran %d times, want at least %d", j.name, j.runs.Load(), n)
		}
	}
}

func TestRunner_TicksJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	fast := newCountingJob("fast")
	slow := newCountingJob("slow")
	r := worker.NewRunner(config.WorkerConfig{}, nil, nil, zap.NewNop(),
		worker.WithJob(fast, 5*time.Millisecond),
		worker.WithJob(slow, time.Hour),
	)

	require.NoError(t, r.Start(context.Background()))
	waitForRuns(t, fast, 3)
	r.Stop()

	assert.GreaterOrEqual(t, fast.runs.Load(), int32(3))
	assert.Zero(t, slow.runs.Load())
}

func TestRunner_StartTwice(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := worker.NewRunner(config.WorkerConfig{}, nil, nil, zap.NewNop(),
		worker.WithJob(newCountingJob("j"), time.Hour))
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Error(t, r.Start(context.Background()))
}

func TestRunner_RejectsZeroInterval(t *testing.T) {
	r := worker.NewRunner(config.WorkerConfig{}, nil, nil, zap.NewNop(),
		worker.WithJob(newCountingJob("j"), 0))
	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-positive interval")
}

func TestRunner_StopWaitsForInFlightJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	job := newCountingJob("blocking")
	job.release = make(chan struct{})
	r := worker.NewRunner(config.WorkerConfig{}, nil, nil, zap.NewNop(), worker.WithJob(job, 5*time.Millisecond))
	require.NoError(t, r.Start(context.Background()))
	waitForRuns(t, job, 1)

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(job.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the job finished")
	}
}

func TestRunner_LogsJobErrorsAndContinues(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zapcore.ErrorLevel)
	job := newCountingJob("flaky")
	job.err = errors.New("store unavailable")
	r := worker.NewRunner(config.WorkerConfig{}, nil, nil, zap.New(core), worker.WithJob(job, 5*time.Millisecond))

	require.NoError(t, r.Start(context.Background()))
	waitForRuns(t, job, 2)
	r.Stop()

	assert.GreaterOrEqual(t, logs.FilterMessage("Job failed").Len(), 1)
}

func TestRunner_RunOnceDefaultJobs(t *testing.T) {
	sweeper := &mockSweeper{}
	health := &mockHealth{}
	sweeper.On("SweepExpiry", mock.Anything, "system:scheduler", "scheduled expiry sweep").
		Return(&schemas.SweepResult{}, nil).Once()
	health.On("RecomputeAll", mock.Anything, 4).Return(0, errors.New("org org-1: boom")).Once()

	r := worker.NewRunner(config.WorkerConfig{
		SweepInterval:  time.Minute,
		HealthInterval: time.Minute,
		Concurrency:    4,
		JobTimeout:     time.Second,
	}, sweeper, health, zap.NewNop())

	err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health_recompute: org org-1: boom")
	sweeper.AssertExpectations(t)
	health.AssertExpectations(t)
}

func TestRunner_JobTimeoutBoundsContext(t *testing.T) {
	sweeper := &mockSweeper{}
	sweeper.On("SweepExpiry", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "ops-bot", "scheduled expiry sweep").Return(&schemas.SweepResult{}, nil).Once()

	r := worker.NewRunner(config.WorkerConfig{Actor: "ops-bot", JobTimeout: time.Second}, sweeper, nil, zap.NewNop())
	require.NoError(t, r.RunOnce(context.Background()))
	sweeper.AssertExpectations(t)
}

func TestNewHealthJob_ClampsConcurrency(t *testing.T) {
	health := &mockHealth{}
	health.On("RecomputeAll", mock.Anything, 1).Return(3, nil).Once()

	job := worker.NewHealthJob(health, 0)
	assert.Equal(t, "health_recompute", job.Name())
	require.NoError(t, job.Run(context.Background()))
	health.AssertExpectations(t)
}
