package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

// pgTx implements schemas.Tx on top of a pgx transaction.
type pgTx struct {
	tx    pgx.Tx
	store *Store
}

var _ schemas.Tx = (*pgTx)(nil)

// LockRun loads a run with SELECT ... FOR UPDATE.
func (t *pgTx) LockRun(ctx context.Context, runID string) (*schemas.Run, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	run, err := scanRun(t.tx.QueryRow(ctx, `SELECT `+runColumns+` FROM assessment_runs WHERE id = $1 FOR UPDATE`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock run %s: %w", runID, classify(err))
	}
	return run, nil
}

// LoadAnswers reads canonical answers, falling back to the legacy response table.
func (t *pgTx) LoadAnswers(ctx context.Context, runID string, types map[string]schemas.AnswerType) ([]schemas.Answer, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	rows, err := t.tx.Query(ctx, `
		SELECT question_id, bool_value, maturity, evidence_type, evidence_pointer
		FROM run_answers WHERE run_id = $1 ORDER BY question_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers for run %s: %w", runID, classify(err))
	}
	defer rows.Close()

	var answers []schemas.Answer
	for rows.Next() {
		var (
			a            schemas.Answer
			maturity     *string
			evidenceType *string
			pointer      *string
		)
		if err := rows.Scan(&a.QuestionID, &a.Bool, &maturity, &evidenceType, &pointer); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		if maturity != nil {
			m := schemas.MaturityLevel(*maturity)
			a.Maturity = &m
		}
		if evidenceType != nil {
			a.Evidence = &schemas.Evidence{Type: schemas.EvidenceType(*evidenceType)}
			if pointer != nil {
				a.Evidence.Pointer = *pointer
			}
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load answers for run %s: %w", runID, classify(err))
	}
	if len(answers) > 0 {
		return answers, nil
	}
	return t.loadLegacyAnswers(ctx, runID, types)
}

// SaveAnswers replaces the stored answers for a run.
func (t *pgTx) SaveAnswers(ctx context.Context, runID string, answers []schemas.Answer) error {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	if _, err := t.tx.Exec(ctx, `DELETE FROM run_answers WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to clear answers for run %s: %w", runID, classify(err))
	}
	if len(answers) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(answers))
	for _, a := range answers {
		var maturity, evidenceType, pointer *string
		if a.Maturity != nil {
			m := string(*a.Maturity)
			maturity = &m
		}
		if a.Evidence != nil {
			et := string(a.Evidence.Type)
			evidenceType = &et
			if a.Evidence.Pointer != "" {
				p := a.Evidence.Pointer
				pointer = &p
			}
		}
		rows = append(rows, []any{runID, a.QuestionID, a.Bool, maturity, evidenceType, pointer})
	}

	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"run_answers"},
		[]string{"run_id", "question_id", "bool_value", "maturity", "evidence_type", "evidence_pointer"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to save answers for run %s: %w", runID, classify(err))
	}
	return nil
}

// CompletedHistory returns completed runs newest first.
func (t *pgTx) CompletedHistory(ctx context.Context, targetID string, assessmentType schemas.AssessmentType, limit int) ([]schemas.Run, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	rows, err := t.tx.Query(ctx, `
		SELECT `+runColumns+` FROM assessment_runs
		WHERE target_id = $1 AND assessment_type = $2 AND status = 'completed'
		ORDER BY version DESC, completed_at DESC, id DESC
		LIMIT $3`, targetID, string(assessmentType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s/%s: %w", targetID, assessmentType, classify(err))
	}
	defer rows.Close()

	var runs []schemas.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load history for %s/%s: %w", targetID, assessmentType, classify(err))
	}
	return runs, nil
}

// MarkRunCompleted writes the computed fields under a status guard.
func (t *pgTx) MarkRunCompleted(ctx context.Context, run *schemas.Run) error {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	dims, err := json.Marshal(run.DimensionScores)
	if err != nil {
		return fmt.Errorf("failed to encode dimension scores: %w", err)
	}
	flags, err := json.Marshal(run.RiskFlags)
	if err != nil {
		return fmt.Errorf("failed to encode risk flags: %w", err)
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE assessment_runs SET
			status = 'completed',
			dimension_scores = $2,
			overall_score = $3,
			risk_flags = $4,
			drift_from_previous = $5,
			drift_flag = $6,
			stability = $7,
			completed_at = $8
		WHERE id = $1 AND status = 'in_progress'`,
		run.ID, dims, run.OverallScore, flags, run.DriftFromPrevious, run.DriftFlag,
		string(run.Stability), run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", run.ID, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return schemas.ErrAlreadyCompleted
	}
	return nil
}

// InsertDriftEvent appends a drift event. A second event for the same run is a conflict.
func (t *pgTx) InsertDriftEvent(ctx context.Context, ev *schemas.DriftEvent) error {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	_, err := t.tx.Exec(ctx, `
		INSERT INTO drift_events (id, run_id, org_id, target_id, assessment_type, delta, material, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.RunID, ev.OrgID, ev.TargetID, string(ev.AssessmentType), ev.Delta, ev.Material, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert drift event for run %s: %w", ev.RunID, classify(err))
	}
	return nil
}

// GetPolicy loads and locks the policy for a (target, type) pair.
func (t *pgTx) GetPolicy(ctx context.Context, targetID string, assessmentType schemas.AssessmentType) (*schemas.ReassessmentPolicy, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	p, err := scanPolicy(t.tx.QueryRow(ctx, `
		SELECT `+policyColumns+` FROM reassessment_policies
		WHERE target_id = $1 AND assessment_type = $2
		FOR UPDATE`, targetID, string(assessmentType)))
	if err != nil {
		return nil, fmt.Errorf("failed to get policy for %s/%s: %w", targetID, assessmentType, classify(err))
	}
	return p, nil
}

// UpsertPolicy inserts or overwrites the policy for its (target, type) pair.
func (t *pgTx) UpsertPolicy(ctx context.Context, p *schemas.ReassessmentPolicy) error {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	_, err := t.tx.Exec(ctx, `
		INSERT INTO reassessment_policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (target_id, assessment_type) DO UPDATE SET
			frequency_days = EXCLUDED.frequency_days,
			last_completed_at = EXCLUDED.last_completed_at,
			next_due_at = EXCLUDED.next_due_at,
			escalated_at = EXCLUDED.escalated_at,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.OrgID, p.TargetID, string(p.AssessmentType), p.FrequencyDays,
		p.LastCompletedAt, p.NextDueAt, p.EscalatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert policy for %s/%s: %w", p.TargetID, p.AssessmentType, classify(err))
	}
	return nil
}

// OverduePolicies locks overdue, unescalated policies. Rows held by a
// concurrent sweep are skipped.
func (t *pgTx) OverduePolicies(ctx context.Context, now time.Time) ([]schemas.ReassessmentPolicy, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	rows, err := t.tx.Query(ctx, `
		SELECT `+policyColumns+` FROM reassessment_policies
		WHERE next_due_at < $1 AND escalated_at IS NULL
		ORDER BY next_due_at, id
		FOR UPDATE SKIP LOCKED`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load overdue policies: %w", classify(err))
	}
	policies, err := collectPolicies(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to load overdue policies: %w", err)
	}
	return policies, nil
}

// MarkPolicyEscalated stamps escalated_at if it is still unset.
func (t *pgTx) MarkPolicyEscalated(ctx context.Context, policyID string, at time.Time) (bool, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	tag, err := t.tx.Exec(ctx, `
		UPDATE reassessment_policies SET escalated_at = $2, updated_at = $2
		WHERE id = $1 AND escalated_at IS NULL`, policyID, at)
	if err != nil {
		return false, fmt.Errorf("failed to escalate policy %s: %w", policyID, classify(err))
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireAssessment marks the assessed target expired at at, if it is not already.
func (t *pgTx) ExpireAssessment(ctx context.Context, targetID string, assessmentType schemas.AssessmentType, at time.Time) (bool, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	tag, err := t.tx.Exec(ctx, `
		UPDATE assessment_targets SET status = 'expired', expired_at = $3
		WHERE target_id = $1 AND assessment_type = $2 AND status <> 'expired'`,
		targetID, string(assessmentType), at.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to expire %s/%s: %w", targetID, assessmentType, classify(err))
	}
	return tag.RowsAffected() == 1, nil
}

// ReactivateAssessment returns an expired target to active.
func (t *pgTx) ReactivateAssessment(ctx context.Context, targetID string, assessmentType schemas.AssessmentType) (bool, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	tag, err := t.tx.Exec(ctx, `
		UPDATE assessment_targets SET status = 'active', expired_at = NULL
		WHERE target_id = $1 AND assessment_type = $2 AND status = 'expired'`,
		targetID, string(assessmentType))
	if err != nil {
		return false, fmt.Errorf("failed to reactivate %s/%s: %w", targetID, assessmentType, classify(err))
	}
	return tag.RowsAffected() == 1, nil
}

// severitiesAtOrAbove lists the severities ranked at or above floor.
func severitiesAtOrAbove(floor schemas.Severity) []string {
	var out []string
	for _, s := range []schemas.Severity{schemas.SeverityLow, schemas.SeverityMedium, schemas.SeverityHigh, schemas.SeverityCritical} {
		if s.Rank() >= floor.Rank() {
			out = append(out, string(s))
		}
	}
	return out
}

// OverdueActions locks open, unescalated actions past due at or above minSeverity.
func (t *pgTx) OverdueActions(ctx context.Context, now time.Time, minSeverity schemas.Severity) ([]schemas.Action, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	rows, err := t.tx.Query(ctx, `
		SELECT id, org_id, title, severity, due_at, escalated_at FROM actions
		WHERE status = 'open' AND escalated_at IS NULL AND due_at < $1 AND severity = ANY($2)
		ORDER BY due_at, id
		FOR UPDATE SKIP LOCKED`, now, severitiesAtOrAbove(minSeverity))
	if err != nil {
		return nil, fmt.Errorf("failed to load overdue actions: %w", classify(err))
	}
	defer rows.Close()

	var actions []schemas.Action
	for rows.Next() {
		var (
			a        schemas.Action
			severity string
		)
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Title, &severity, &a.DueAt, &a.EscalatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		a.Severity = schemas.Severity(severity)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load overdue actions: %w", classify(err))
	}
	return actions, nil
}

// MarkActionEscalated stamps escalated_at on an open action if it is still unset.
func (t *pgTx) MarkActionEscalated(ctx context.Context, actionID string, at time.Time) (bool, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	tag, err := t.tx.Exec(ctx, `
		UPDATE actions SET escalated_at = $2
		WHERE id = $1 AND status = 'open' AND escalated_at IS NULL`, actionID, at)
	if err != nil {
		return false, fmt.Errorf("failed to escalate action %s: %w", actionID, classify(err))
	}
	return tag.RowsAffected() == 1, nil
}

// InsertEscalation records a new open escalation.
func (t *pgTx) InsertEscalation(ctx context.Context, esc *schemas.Escalation) error {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	_, err := t.tx.Exec(ctx, `
		INSERT INTO escalations (id, org_id, source_type, source_id, severity, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		esc.ID, esc.OrgID, esc.SourceType, esc.SourceID, string(esc.Severity), esc.Reason, string(esc.Status), esc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert escalation for %s %s: %w", esc.SourceType, esc.SourceID, classify(err))
	}
	return nil
}

// LockEscalation loads an escalation with a row lock.
func (t *pgTx) LockEscalation(ctx context.Context, escalationID string) (*schemas.Escalation, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	var (
		esc              schemas.Escalation
		severity, status string
		resolvedBy       *string
		resolution       *string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, org_id, source_type, source_id, severity, reason, status,
			created_at, resolved_at, resolved_by, resolution
		FROM escalations WHERE id = $1 FOR UPDATE`, escalationID).Scan(
		&esc.ID, &esc.OrgID, &esc.SourceType, &esc.SourceID, &severity, &esc.Reason, &status,
		&esc.CreatedAt, &esc.ResolvedAt, &resolvedBy, &resolution,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock escalation %s: %w", escalationID, classify(err))
	}
	esc.Severity = schemas.Severity(severity)
	esc.Status = schemas.EscalationStatus(status)
	if resolvedBy != nil {
		esc.ResolvedBy = *resolvedBy
	}
	if resolution != nil {
		esc.Resolution = *resolution
	}
	return &esc, nil
}

// ResolveEscalation closes an open escalation. False means it was no longer open.
func (t *pgTx) ResolveEscalation(ctx context.Context, esc *schemas.Escalation) (bool, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	tag, err := t.tx.Exec(ctx, `
		UPDATE escalations SET status = 'resolved', resolved_at = $2, resolved_by = $3, resolution = $4
		WHERE id = $1 AND status = 'open'`,
		esc.ID, esc.ResolvedAt, esc.ResolvedBy, esc.Resolution)
	if err != nil {
		return false, fmt.Errorf("failed to resolve escalation %s: %w", esc.ID, classify(err))
	}
	return tag.RowsAffected() == 1, nil
}

// InsertAudit appends an audit record.
func (t *pgTx) InsertAudit(ctx context.Context, rec *schemas.AuditRecord) error {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	_, err := t.tx.Exec(ctx, `
		INSERT INTO audit_log (id, action, actor, reason, subject_type, subject_id, before, after, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Action, rec.Actor, rec.Reason, rec.SubjectType, rec.SubjectID,
		nullableJSON(rec.Before), nullableJSON(rec.After), rec.At)
	if err != nil {
		return fmt.Errorf("failed to insert audit record %s: %w", rec.Action, classify(err))
	}
	return nil
}

// nullableJSON stores empty payloads as SQL NULL.
func nullableJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
