// Package reassessment tracks when each target is due for reassessment and
// escalates overdue policies and actions.
package reassessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
)

// Scheduler owns reassessment policies, the sweeps and escalation resolution.
type Scheduler struct {
	store     schemas.Store
	publisher schemas.Publisher
	cfg       config.ReassessmentConfig
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a Scheduler.
func NewScheduler(store schemas.Store, publisher schemas.Publisher, cfg config.ReassessmentConfig, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("reassessment"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertRequest creates or overrides a policy.
type UpsertRequest struct {
	OrgID           string
	TargetID        string
	AssessmentType  schemas.AssessmentType
	FrequencyDays   int
	LastCompletedAt *time.Time
	Actor           string
	Reason          string
}

func (r UpsertRequest) validate(now time.Time) error {
	if r.OrgID == "" {
		return schemas.Invalid("org_id", "is required")
	}
	if r.TargetID == "" {
		return schemas.Invalid("target_id", "is required")
	}
	if !r.AssessmentType.Valid() {
		return schemas.Invalid("assessment_type", "unknown assessment type %q", r.AssessmentType)
	}
	if r.FrequencyDays < 1 {
		return schemas.Invalid("frequency_days", "must be at least 1 day, got %d", r.FrequencyDays)
	}
	if r.LastCompletedAt != nil && r.LastCompletedAt.After(now) {
		return schemas.Invalid("last_completed_at", "must not be in the future")
	}
	return requireOperator(r.Actor, r.Reason)
}

// ListPolicies returns an organisation's policies with their derived state.
func (s *Scheduler) ListPolicies(ctx context.Context, orgID string, assessmentType *schemas.AssessmentType) ([]schemas.ReassessmentPolicy, error) {
	if orgID == "" {
		return nil, schemas.Invalid("org_id", "is required")
	}
	if assessmentType != nil && !assessmentType.Valid() {
		return nil, schemas.Invalid("type", "unknown assessment type %q", *assessmentType)
	}
	policies, err := s.store.ListPolicies(ctx, orgID, assessmentType)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies for org %s: %w", orgID, err)
	}
	now := s.now()
	for i := range policies {
		Derive(&policies[i], now)
	}
	return policies, nil
}

// Upsert creates or overrides the policy for (target, type) and records an
// audit entry with the before and after state.
func (s *Scheduler) Upsert(ctx context.Context, req UpsertRequest) (*schemas.ReassessmentPolicy, error) {
	now := s.now()
	if err := req.validate(now); err != nil {
		return nil, err
	}

	var (
		policy *schemas.ReassessmentPolicy
		audit  *schemas.AuditRecord
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx schemas.Tx) error {
		existing, err := tx.GetPolicy(ctx, req.TargetID, req.AssessmentType)
		if err != nil && !errors.Is(err, schemas.ErrNotFound) {
			return fmt.Errorf("failed to load policy: %w", err)
		}

		action := AuditPolicyOverride
		var before any
		if existing == nil {
			action = AuditPolicyCreate
			policy = &schemas.ReassessmentPolicy{
				ID:             uuid.NewString(),
				OrgID:          req.OrgID,
				TargetID:       req.TargetID,
				AssessmentType: req.AssessmentType,
			}
		} else {
			if existing.OrgID != req.OrgID {
				return schemas.Invalid("target_id", "belongs to a different organisation")
			}
			snapshot := *existing
			before = snapshot
			policy = existing
		}

		policy.FrequencyDays = req.FrequencyDays
		if req.LastCompletedAt != nil {
			last := *req.LastCompletedAt
			policy.LastCompletedAt = &last
		}
		policy.NextDueAt = NextDue(policy.LastCompletedAt, policy.FrequencyDays)
		rearm(policy, now)
		policy.UpdatedAt = now

		if err := tx.UpsertPolicy(ctx, policy); err != nil {
			return fmt.Errorf("failed to save policy: %w", err)
		}

		audit, err = newAudit(action, req.Actor, req.Reason, "reassessment_policy", policy.ID, before, *policy, now)
		if err != nil {
			return err
		}
		if err := tx.InsertAudit(ctx, audit); err != nil {
			return fmt.Errorf("failed to record audit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Reassessment policy saved",
		zap.String("policy_id", policy.ID),
		zap.String("org_id", policy.OrgID),
		zap.String("target_id", policy.TargetID),
		zap.Int("frequency_days", policy.FrequencyDays),
		zap.String("actor", req.Actor))
	s.publishAudit(ctx, audit)

	Derive(policy, now)
	return policy, nil
}

// OnRunCompleted records a completion against the run's policy inside the
// caller's transaction, creating the policy with the default frequency for
// the assessment type if none exists. A target expired by an earlier sweep
// becomes active again.
func (s *Scheduler) OnRunCompleted(ctx context.Context, tx schemas.Tx, run *schemas.Run, completedAt time.Time) (*schemas.ReassessmentPolicy, error) {
	policy, err := tx.GetPolicy(ctx, run.TargetID, run.AssessmentType)
	switch {
	case errors.Is(err, schemas.ErrNotFound):
		freq := s.cfg.DefaultFrequencyDays[string(run.AssessmentType)]
		if freq < 1 {
			return nil, fmt.Errorf("no default reassessment frequency for %s", run.AssessmentType)
		}
		policy = &schemas.ReassessmentPolicy{
			ID:             uuid.NewString(),
			OrgID:          run.OrgID,
			TargetID:       run.TargetID,
			AssessmentType: run.AssessmentType,
			FrequencyDays:  freq,
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	last := completedAt
	policy.LastCompletedAt = &last
	policy.NextDueAt = NextDue(policy.LastCompletedAt, policy.FrequencyDays)
	rearm(policy, completedAt)
	policy.UpdatedAt = completedAt

	if err := tx.UpsertPolicy(ctx, policy); err != nil {
		return nil, fmt.Errorf("failed to save policy: %w", err)
	}
	reactivated, err := tx.ReactivateAssessment(ctx, run.TargetID, run.AssessmentType)
	if err != nil {
		return nil, fmt.Errorf("failed to reactivate assessment: %w", err)
	}
	if reactivated {
		s.logger.Info("Expired assessment reactivated",
			zap.String("target_id", run.TargetID), zap.String("assessment_type", string(run.AssessmentType)))
	}
	Derive(policy, completedAt)
	return policy, nil
}

func (s *Scheduler) publishAudit(ctx context.Context, rec *schemas.AuditRecord) {
	if rec == nil || s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAudit(ctx, *rec); err != nil {
		s.logger.Warn("Failed to publish audit record", zap.String("audit_id", rec.ID), zap.Error(err))
	}
}

func (s *Scheduler) publishEscalation(ctx context.Context, esc schemas.Escalation) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEscalation(ctx, esc); err != nil {
		s.logger.Warn("Failed to publish escalation", zap.String("escalation_id", esc.ID), zap.Error(err))
	}
}
