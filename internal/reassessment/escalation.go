package reassessment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

// ResolveEscalation closes an open escalation. Resolving one that is already
// resolved returns schemas.ErrAlreadyResolved.
func (s *Scheduler) ResolveEscalation(ctx context.Context, escalationID, actor, reason string) (*schemas.Escalation, error) {
	if escalationID == "" {
		return nil, schemas.Invalid("escalation_id", "is required")
	}
	if err := requireOperator(actor, reason); err != nil {
		return nil, err
	}
	now := s.now()

	var (
		resolved *schemas.Escalation
		audit    *schemas.AuditRecord
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx schemas.Tx) error {
		esc, err := tx.LockEscalation(ctx, escalationID)
		if err != nil {
			return fmt.Errorf("failed to load escalation %s: %w", escalationID, err)
		}
		if esc.Status == schemas.EscalationResolved {
			return schemas.ErrAlreadyResolved
		}
		before := *esc

		at := now
		esc.Status = schemas.EscalationResolved
		esc.ResolvedAt = &at
		esc.ResolvedBy = actor
		esc.Resolution = reason

		ok, err := tx.ResolveEscalation(ctx, esc)
		if err != nil {
			return fmt.Errorf("failed to resolve escalation %s: %w", escalationID, err)
		}
		if !ok {
			return schemas.ErrAlreadyResolved
		}

		audit, err = newAudit(AuditEscalationResolve, actor, reason, "escalation", esc.ID, before, *esc, now)
		if err != nil {
			return err
		}
		if err := tx.InsertAudit(ctx, audit); err != nil {
			return fmt.Errorf("failed to record audit: %w", err)
		}
		resolved = esc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Escalation resolved",
		zap.String("escalation_id", resolved.ID),
		zap.String("org_id", resolved.OrgID),
		zap.String("actor", actor))
	s.publishAudit(ctx, audit)
	return resolved, nil
}
