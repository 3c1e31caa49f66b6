package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed schema.sql
var schemaSQL string

// DBPool defines the subset of pgxpool.Pool the store relies on, so tests can
// swap in pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store is the PostgreSQL implementation of schemas.Store.
type Store struct {
	pool         DBPool
	logger       *zap.Logger
	queryTimeout time.Duration
}

var _ schemas.Store = (*Store)(nil)

// New creates a store and verifies the database connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger, queryTimeout time.Duration) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", classify(err))
	}
	return &Store{
		pool:         pool,
		logger:       logger.Named("store"),
		queryTimeout: queryTimeout,
	}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool DBPool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", classify(err))
	}
	return nil
}

// bound applies the per-call query timeout.
func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// WithTx runs fn in one transaction, committing only if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx schemas.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	// Rollback is a no-op once the transaction has been committed.
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, &pgTx{tx: tx, store: s}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}

// classify maps driver errors onto the shared sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", schemas.ErrUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %w", schemas.ErrConflict, err)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08",
			pgErr.Code == "57P01", pgErr.Code == "40001", pgErr.Code == "40P01":
			return fmt.Errorf("%w: %w", schemas.ErrUnavailable, err)
		}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", schemas.ErrUnavailable, err)
	}
	return err
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const runColumns = `id, org_id, target_id, assessment_type, version, status,
	dimension_scores, overall_score, risk_flags, drift_from_previous, drift_flag,
	stability, created_at, completed_at`

func scanRun(row rowScanner) (*schemas.Run, error) {
	var (
		r              schemas.Run
		assessmentType string
		status         string
		stability      *string
		dims           []byte
		flags          []byte
	)
	if err := row.Scan(
		&r.ID, &r.OrgID, &r.TargetID, &assessmentType, &r.Version, &status,
		&dims, &r.OverallScore, &flags, &r.DriftFromPrevious, &r.DriftFlag,
		&stability, &r.CreatedAt, &r.CompletedAt,
	); err != nil {
		return nil, err
	}
	r.AssessmentType = schemas.AssessmentType(assessmentType)
	r.Status = schemas.RunStatus(status)
	if stability != nil {
		r.Stability = schemas.Stability(*stability)
	}
	if len(dims) > 0 {
		if err := json.Unmarshal(dims, &r.DimensionScores); err != nil {
			return nil, fmt.Errorf("failed to decode dimension scores for run %s: %w", r.ID, err)
		}
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &r.RiskFlags); err != nil {
			return nil, fmt.Errorf("failed to decode risk flags for run %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

// GetRun reads a run outside any transaction.
func (s *Store) GetRun(ctx context.Context, runID string) (*schemas.Run, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	run, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM assessment_runs WHERE id = $1`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, classify(err))
	}
	return run, nil
}

// ListOrganisations returns the distinct organisations with runs.
func (s *Store) ListOrganisations(ctx context.Context) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT DISTINCT org_id FROM assessment_runs ORDER BY org_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organisations: %w", classify(err))
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			return nil, fmt.Errorf("failed to scan organisation: %w", err)
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list organisations: %w", classify(err))
	}
	return orgs, nil
}

// LatestScores picks the newest completed run per (target, type) using the
// same ordering as the drift history.
func (s *Store) LatestScores(ctx context.Context, orgID string, since time.Time) ([]schemas.TargetScore, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (target_id, assessment_type)
			target_id, assessment_type, overall_score,
			COALESCE(jsonb_array_length(risk_flags), 0), completed_at
		FROM assessment_runs
		WHERE org_id = $1 AND status = 'completed' AND completed_at >= $2
		ORDER BY target_id, assessment_type, version DESC, completed_at DESC, id DESC`,
		orgID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest scores for org %s: %w", orgID, classify(err))
	}
	defer rows.Close()

	var scores []schemas.TargetScore
	for rows.Next() {
		var (
			ts             schemas.TargetScore
			assessmentType string
		)
		if err := rows.Scan(&ts.TargetID, &assessmentType, &ts.OverallScore, &ts.RiskFlagCount, &ts.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan target score: %w", err)
		}
		ts.AssessmentType = schemas.AssessmentType(assessmentType)
		scores = append(scores, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load latest scores for org %s: %w", orgID, classify(err))
	}
	return scores, nil
}

// OpenEscalationCounts groups an organisation's open escalations by severity.
func (s *Store) OpenEscalationCounts(ctx context.Context, orgID string) (map[schemas.Severity]int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT severity, COUNT(*) FROM escalations
		WHERE org_id = $1 AND status = 'open'
		GROUP BY severity`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to count escalations for org %s: %w", orgID, classify(err))
	}
	defer rows.Close()

	counts := make(map[schemas.Severity]int)
	for rows.Next() {
		var (
			severity string
			n        int
		)
		if err := rows.Scan(&severity, &n); err != nil {
			return nil, fmt.Errorf("failed to scan escalation count: %w", err)
		}
		counts[schemas.Severity(severity)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count escalations for org %s: %w", orgID, classify(err))
	}
	return counts, nil
}

// ActionCounts summarises open actions relative to now.
func (s *Store) ActionCounts(ctx context.Context, orgID string, now time.Time) (schemas.ActionCounts, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var counts schemas.ActionCounts
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE due_at < $2),
			COUNT(*) FILTER (WHERE due_at < $2 AND severity = 'critical')
		FROM actions
		WHERE org_id = $1 AND status = 'open'`, orgID, now).
		Scan(&counts.Open, &counts.Overdue, &counts.CriticalOverdue)
	if err != nil {
		return schemas.ActionCounts{}, fmt.Errorf("failed to count actions for org %s: %w", orgID, classify(err))
	}
	return counts, nil
}

// DriftEventsSince returns drift events created at or after since, oldest first.
func (s *Store) DriftEventsSince(ctx context.Context, orgID string, since time.Time) ([]schemas.DriftEvent, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, org_id, target_id, assessment_type, delta, material, created_at
		FROM drift_events
		WHERE org_id = $1 AND created_at >= $2
		ORDER BY created_at, id`, orgID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load drift events for org %s: %w", orgID, classify(err))
	}
	defer rows.Close()

	var events []schemas.DriftEvent
	for rows.Next() {
		var (
			ev             schemas.DriftEvent
			assessmentType string
		)
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.OrgID, &ev.TargetID, &assessmentType, &ev.Delta, &ev.Material, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan drift event: %w", err)
		}
		ev.AssessmentType = schemas.AssessmentType(assessmentType)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load drift events for org %s: %w", orgID, classify(err))
	}
	return events, nil
}

const snapshotColumns = `org_id, status, org_base, sys_base, base_health,
	p_rel, p_act, p_drift, p_exp, health_score,
	open_actions, overdue_actions, critical_overdue_actions, computed_at`

// GetHealthSnapshot reads the cached snapshot for an organisation.
func (s *Store) GetHealthSnapshot(ctx context.Context, orgID string) (*schemas.HealthSnapshot, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var (
		snap   schemas.HealthSnapshot
		status string
	)
	err := s.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM health_snapshots WHERE org_id = $1`, orgID).Scan(
		&snap.OrgID, &status, &snap.OrgBase, &snap.SysBase, &snap.BaseHealth,
		&snap.Penalties.Relationship, &snap.Penalties.ActionBacklog, &snap.Penalties.Drift, &snap.Penalties.Explainability,
		&snap.HealthScore, &snap.Open, &snap.Overdue, &snap.CriticalOverdue, &snap.ComputedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get health snapshot for org %s: %w", orgID, classify(err))
	}
	snap.Status = schemas.HealthStatus(status)
	return &snap, nil
}

// UpsertHealthSnapshot replaces the snapshot row atomically.
func (s *Store) UpsertHealthSnapshot(ctx context.Context, snap *schemas.HealthSnapshot) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO health_snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (org_id) DO UPDATE SET
			status = EXCLUDED.status,
			org_base = EXCLUDED.org_base,
			sys_base = EXCLUDED.sys_base,
			base_health = EXCLUDED.base_health,
			p_rel = EXCLUDED.p_rel,
			p_act = EXCLUDED.p_act,
			p_drift = EXCLUDED.p_drift,
			p_exp = EXCLUDED.p_exp,
			health_score = EXCLUDED.health_score,
			open_actions = EXCLUDED.open_actions,
			overdue_actions = EXCLUDED.overdue_actions,
			critical_overdue_actions = EXCLUDED.critical_overdue_actions,
			computed_at = EXCLUDED.computed_at`,
		snap.OrgID, string(snap.Status), snap.OrgBase, snap.SysBase, snap.BaseHealth,
		snap.Penalties.Relationship, snap.Penalties.ActionBacklog, snap.Penalties.Drift, snap.Penalties.Explainability,
		snap.HealthScore, snap.Open, snap.Overdue, snap.CriticalOverdue, snap.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert health snapshot for org %s: %w", snap.OrgID, classify(err))
	}
	return nil
}

const policyColumns = `id, org_id, target_id, assessment_type, frequency_days,
	last_completed_at, next_due_at, escalated_at, updated_at`

func scanPolicy(row rowScanner) (*schemas.ReassessmentPolicy, error) {
	var (
		p              schemas.ReassessmentPolicy
		assessmentType string
	)
	if err := row.Scan(&p.ID, &p.OrgID, &p.TargetID, &assessmentType, &p.FrequencyDays,
		&p.LastCompletedAt, &p.NextDueAt, &p.EscalatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.AssessmentType = schemas.AssessmentType(assessmentType)
	return &p, nil
}

func collectPolicies(rows pgx.Rows) ([]schemas.ReassessmentPolicy, error) {
	defer rows.Close()
	var policies []schemas.ReassessmentPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, *p)
	}
	return policies, classify(rows.Err())
}

// ListPolicies lists an organisation's policies, optionally for one assessment type.
func (s *Store) ListPolicies(ctx context.Context, orgID string, assessmentType *schemas.AssessmentType) ([]schemas.ReassessmentPolicy, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var typeFilter *string
	if assessmentType != nil {
		t := string(*assessmentType)
		typeFilter = &t
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+policyColumns+` FROM reassessment_policies
		WHERE org_id = $1 AND ($2::text IS NULL OR assessment_type = $2)
		ORDER BY next_due_at NULLS LAST, target_id, assessment_type`, orgID, typeFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies for org %s: %w", orgID, classify(err))
	}
	policies, err := collectPolicies(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies for org %s: %w", orgID, err)
	}
	return policies, nil
}
