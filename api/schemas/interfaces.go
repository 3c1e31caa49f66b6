package schemas

import (
	"context"
	"time"
)

// -- Storage Interfaces --

// Store is the persistence contract consumed by the engine. Reads outside a
// transaction see committed data only.
type Store interface {
	// WithTx runs fn inside a single transaction. Returning an error rolls
	// everything back, so a computation is persisted in full or not at all.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetRun(ctx context.Context, runID string) (*Run, error)
	// ListOrganisations returns every organisation with at least one run.
	ListOrganisations(ctx context.Context) ([]string, error)

	// LatestScores returns the latest completed run per (target, type) completed at or after since.
	LatestScores(ctx context.Context, orgID string, since time.Time) ([]TargetScore, error)
	OpenEscalationCounts(ctx context.Context, orgID string) (map[Severity]int, error)
	ActionCounts(ctx context.Context, orgID string, now time.Time) (ActionCounts, error)
	DriftEventsSince(ctx context.Context, orgID string, since time.Time) ([]DriftEvent, error)

	GetHealthSnapshot(ctx context.Context, orgID string) (*HealthSnapshot, error)
	// UpsertHealthSnapshot replaces the snapshot row in one statement.
	UpsertHealthSnapshot(ctx context.Context, snap *HealthSnapshot) error

	ListPolicies(ctx context.Context, orgID string, assessmentType *AssessmentType) ([]ReassessmentPolicy, error)
}

// Tx exposes the transactional operations. Methods that lock rows do so
// until the surrounding transaction ends.
type Tx interface {
	// LockRun loads the run and holds a row lock on it.
	LockRun(ctx context.Context, runID string) (*Run, error)
	// LoadAnswers reads the stored answers for a run. types maps question ids
	// to answer types so legacy responses can be interpreted.
	LoadAnswers(ctx context.Context, runID string, types map[string]AnswerType) ([]Answer, error)
	SaveAnswers(ctx context.Context, runID string, answers []Answer) error
	// CompletedHistory returns up to limit completed runs for the target,
	// newest first (version, then completed_at, then id).
	CompletedHistory(ctx context.Context, targetID string, assessmentType AssessmentType, limit int) ([]Run, error)
	// MarkRunCompleted performs the in_progress -> completed transition and
	// returns ErrAlreadyCompleted if another writer got there first.
	MarkRunCompleted(ctx context.Context, run *Run) error
	InsertDriftEvent(ctx context.Context, ev *DriftEvent) error

	GetPolicy(ctx context.Context, targetID string, assessmentType AssessmentType) (*ReassessmentPolicy, error)
	UpsertPolicy(ctx context.Context, p *ReassessmentPolicy) error
	// OverduePolicies returns locked, not-yet-escalated policies due before now.
	OverduePolicies(ctx context.Context, now time.Time) ([]ReassessmentPolicy, error)
	MarkPolicyEscalated(ctx context.Context, policyID string, at time.Time) (bool, error)
	ExpireAssessment(ctx context.Context, targetID string, assessmentType AssessmentType, at time.Time) (bool, error)
	// ReactivateAssessment clears an expiry once the target is reassessed.
	ReactivateAssessment(ctx context.Context, targetID string, assessmentType AssessmentType) (bool, error)

	// OverdueActions returns locked, open, not-yet-escalated actions due before now at or above minSeverity.
	OverdueActions(ctx context.Context, now time.Time, minSeverity Severity) ([]Action, error)
	MarkActionEscalated(ctx context.Context, actionID string, at time.Time) (bool, error)

	InsertEscalation(ctx context.Context, esc *Escalation) error
	LockEscalation(ctx context.Context, escalationID string) (*Escalation, error)
	ResolveEscalation(ctx context.Context, esc *Escalation) (bool, error)

	InsertAudit(ctx context.Context, rec *AuditRecord) error
}

// -- Event Interfaces --

// Publisher fans engine events out to downstream consumers after commit.
type Publisher interface {
	PublishEscalation(ctx context.Context, esc Escalation) error
	PublishDrift(ctx context.Context, ev DriftEvent) error
	PublishAudit(ctx context.Context, rec AuditRecord) error
	Close() error
}
