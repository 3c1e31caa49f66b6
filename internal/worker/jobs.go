package worker

import (
	"context"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

// Sweeper runs the expiry and action escalation sweep.
type Sweeper interface {
	SweepExpiry(ctx context.Context, actor, reason string) (*schemas.SweepResult, error)
}

// HealthRecomputer refreshes every organisation's health snapshot.
type HealthRecomputer interface {
	RecomputeAll(ctx context.Context, concurrency int) (int, error)
}

const scheduledSweepReason = "scheduled expiry sweep"

// SweepJob runs the expiry sweep under a system actor.
type SweepJob struct {
	sweeper Sweeper
	actor   string
}

func NewSweepJob(sweeper Sweeper, actor string) *SweepJob {
	if actor == "" {
		actor = "system:scheduler"
	}
	return &SweepJob{sweeper: sweeper, actor: actor}
}

func (j *SweepJob) Name() string { return "expiry_sweep" }

func (j *SweepJob) Run(ctx context.Context) error {
	_, err := j.sweeper.SweepExpiry(ctx, j.actor, scheduledSweepReason)
	return err
}

// HealthJob recomputes health for all organisations with bounded concurrency.
type HealthJob struct {
	health      HealthRecomputer
	concurrency int
}

func NewHealthJob(health HealthRecomputer, concurrency int) *HealthJob {
	if concurrency < 1 {
		concurrency = 1
	}
	return &HealthJob{health: health, concurrency: concurrency}
}

func (j *HealthJob) Name() string { return "health_recompute" }

func (j *HealthJob) Run(ctx context.Context) error {
	_, err := j.health.RecomputeAll(ctx, j.concurrency)
	return err
}
