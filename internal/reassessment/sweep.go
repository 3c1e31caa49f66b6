package reassessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/observability"
)

type sweepBefore struct {
	OverduePolicies []string `json:"overdue_policies"`
	OverdueActions  []string `json:"overdue_actions"`
}

type sweepAfter struct {
	schemas.SweepResult
	Escalations []string `json:"escalations"`
}

// SweepExpiry escalates every overdue, not-yet-escalated policy (expiring its
// assessment) and every overdue action at or above the severity threshold.
// Already-escalated items are skipped, so repeated or concurrent sweeps
// produce no duplicate escalations.
func (s *Scheduler) SweepExpiry(ctx context.Context, actor, reason string) (*schemas.SweepResult, error) {
	if err := requireOperator(actor, reason); err != nil {
		return nil, err
	}
	now := s.now()
	threshold := schemas.Severity(s.cfg.ActionSeverityThreshold)
	policySeverity := schemas.Severity(s.cfg.PolicyEscalationSeverity)

	var (
		result      schemas.SweepResult
		escalations []schemas.Escalation
		audit       *schemas.AuditRecord
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx schemas.Tx) error {
		result = schemas.SweepResult{}
		escalations = escalations[:0]
		before := sweepBefore{OverduePolicies: []string{}, OverdueActions: []string{}}

		policies, err := tx.OverduePolicies(ctx, now)
		if err != nil {
			return fmt.Errorf("failed to load overdue policies: %w", err)
		}
		for _, p := range policies {
			marked, err := tx.MarkPolicyEscalated(ctx, p.ID, now)
			if err != nil {
				return fmt.Errorf("failed to mark policy %s escalated: %w", p.ID, err)
			}
			if !marked {
				continue
			}
			before.OverduePolicies = append(before.OverduePolicies, p.ID)

			expired, err := tx.ExpireAssessment(ctx, p.TargetID, p.AssessmentType, now)
			if err != nil {
				return fmt.Errorf("failed to expire assessment for target %s: %w", p.TargetID, err)
			}
			if expired {
				result.ExpiredCount++
			}

			esc := schemas.Escalation{
				ID:         uuid.NewString(),
				OrgID:      p.OrgID,
				SourceType: schemas.SourceReassessmentPolicy,
				SourceID:   p.ID,
				Severity:   policySeverity,
				Reason:     overduePolicyReason(p, now),
				Status:     schemas.EscalationOpen,
				CreatedAt:  now,
			}
			if err := tx.InsertEscalation(ctx, &esc); err != nil {
				return fmt.Errorf("failed to insert escalation for policy %s: %w", p.ID, err)
			}
			escalations = append(escalations, esc)
			result.EscalationCount++
		}

		actions, err := tx.OverdueActions(ctx, now, threshold)
		if err != nil {
			return fmt.Errorf("failed to load overdue actions: %w", err)
		}
		for _, a := range actions {
			if a.Severity.Rank() < threshold.Rank() {
				continue
			}
			marked, err := tx.MarkActionEscalated(ctx, a.ID, now)
			if err != nil {
				return fmt.Errorf("failed to mark action %s escalated: %w", a.ID, err)
			}
			if !marked {
				continue
			}
			before.OverdueActions = append(before.OverdueActions, a.ID)

			esc := schemas.Escalation{
				ID:         uuid.NewString(),
				OrgID:      a.OrgID,
				SourceType: schemas.SourceAction,
				SourceID:   a.ID,
				Severity:   a.Severity,
				Reason:     fmt.Sprintf("%s action %q is past due", a.Severity, a.Title),
				Status:     schemas.EscalationOpen,
				CreatedAt:  now,
			}
			if err := tx.InsertEscalation(ctx, &esc); err != nil {
				return fmt.Errorf("failed to insert escalation for action %s: %w", a.ID, err)
			}
			escalations = append(escalations, esc)
			result.ActionEscalationCount++
		}

		if len(escalations) == 0 {
			return nil
		}
		after := sweepAfter{SweepResult: result, Escalations: make([]string, 0, len(escalations))}
		for _, esc := range escalations {
			after.Escalations = append(after.Escalations, esc.ID)
		}
		audit, err = newAudit(AuditExpirySweep, actor, reason, "sweep", uuid.NewString(), before, after, now)
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

	observability.AssessmentsExpired.Add(float64(result.ExpiredCount))
	observability.SweepEscalations.WithLabelValues(schemas.SourceReassessmentPolicy).Add(float64(result.EscalationCount))
	observability.SweepEscalations.WithLabelValues(schemas.SourceAction).Add(float64(result.ActionEscalationCount))

	s.logger.Info("Expiry sweep finished",
		zap.String("actor", actor),
		zap.Int("expired", result.ExpiredCount),
		zap.Int("policy_escalations", result.EscalationCount),
		zap.Int("action_escalations", result.ActionEscalationCount))

	for _, esc := range escalations {
		s.publishEscalation(ctx, esc)
	}
	s.publishAudit(ctx, audit)
	return &result, nil
}

func overduePolicyReason(p schemas.ReassessmentPolicy, now time.Time) string {
	if p.NextDueAt == nil {
		return fmt.Sprintf("%s reassessment of %s is overdue", p.AssessmentType, p.TargetID)
	}
	return fmt.Sprintf("%s reassessment of %s overdue by %d day(s)",
		p.AssessmentType, p.TargetID, -DaysUntilDue(*p.NextDueAt, now))
}
