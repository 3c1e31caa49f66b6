package reassessment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Audit actions.
const (
	AuditPolicyCreate      = "policy.create"
	AuditPolicyOverride    = "policy.override"
	AuditExpirySweep       = "sweep.expiry"
	AuditEscalationResolve = "escalation.resolve"
)

// newAudit builds an audit record with before/after payloads. A nil side is
// left empty.
func newAudit(action, actor, reason, subjectType, subjectID string, before, after any, at time.Time) (*schemas.AuditRecord, error) {
	rec := &schemas.AuditRecord{
		ID:          uuid.NewString(),
		Action:      action,
		Actor:       actor,
		Reason:      reason,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		At:          at,
	}
	if before != nil {
		b, err := json.Marshal(before)
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit before payload: %w", err)
		}
		rec.Before = b
	}
	if after != nil {
		b, err := json.Marshal(after)
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit after payload: %w", err)
		}
		rec.After = b
	}
	return rec, nil
}

func requireOperator(actor, reason string) error {
	if actor == "" {
		return schemas.Invalid("actor", "is required")
	}
	if reason == "" {
		return schemas.Invalid("reason", "is required")
	}
	return nil
}
