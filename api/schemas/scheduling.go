package schemas

import (
	"encoding/json"
	"time"
)

// DriftEvent is an append-only record of a score change between consecutive
// completed runs of the same target.
type DriftEvent struct {
	ID             string         `json:"id"`
	RunID          string         `json:"run_id"`
	OrgID          string         `json:"org_id"`
	TargetID       string         `json:"target_id"`
	AssessmentType AssessmentType `json:"assessment_type"`
	Delta          int            `json:"delta"`
	Material       bool           `json:"material"`
	CreatedAt      time.Time      `json:"created_at"`
}

// PolicyState is the reassessment state of a (target, assessment type) pair.
type PolicyState string

const (
	PolicyNone      PolicyState = "no_policy"
	PolicyScheduled PolicyState = "scheduled"
	PolicyOnTime    PolicyState = "on_time"
	PolicyOverdue   PolicyState = "overdue"
	PolicyEscalated PolicyState = "escalated"
)

// ReassessmentPolicy governs how often a target must be reassessed.
// IsOverdue, DaysUntilDue and State are derived on read.
type ReassessmentPolicy struct {
	ID              string         `json:"id"`
	OrgID           string         `json:"org_id"`
	TargetID        string         `json:"target_id"`
	AssessmentType  AssessmentType `json:"assessment_type"`
	FrequencyDays   int            `json:"frequency_days"`
	LastCompletedAt *time.Time     `json:"last_completed_at"`
	NextDueAt       *time.Time     `json:"next_due_at"`
	EscalatedAt     *time.Time     `json:"escalated_at,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`

	IsOverdue    bool        `json:"is_overdue"`
	DaysUntilDue *int        `json:"days_until_due"`
	State        PolicyState `json:"state"`
}

// Severity grades actions and escalations.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Action is a remediation item owned outside the engine.
type Action struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"org_id"`
	Title       string     `json:"title"`
	Severity    Severity   `json:"severity"`
	DueAt       *time.Time `json:"due_at"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
}

// ActionCounts summarises an organisation's action backlog.
type ActionCounts struct {
	Open            int `json:"open_actions"`
	Overdue         int `json:"overdue_actions"`
	CriticalOverdue int `json:"critical_overdue_actions"`
}

// EscalationStatus is open until an operator resolves it.
type EscalationStatus string

const (
	EscalationOpen     EscalationStatus = "open"
	EscalationResolved EscalationStatus = "resolved"
)

// Escalation source types.
const (
	SourceReassessmentPolicy = "reassessment_policy"
	SourceAction             = "action"
)

// Escalation is raised by the sweeps for overdue policies and actions.
type Escalation struct {
	ID         string           `json:"id"`
	OrgID      string           `json:"org_id"`
	SourceType string           `json:"source_type"`
	SourceID   string           `json:"source_id"`
	Severity   Severity         `json:"severity"`
	Reason     string           `json:"reason"`
	Status     EscalationStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
	ResolvedBy string           `json:"resolved_by,omitempty"`
	Resolution string           `json:"resolution,omitempty"`
}

// AuditRecord captures an operator-triggered state change.
type AuditRecord struct {
	ID          string          `json:"id"`
	Action      string          `json:"action"`
	Actor       string          `json:"actor"`
	Reason      string          `json:"reason"`
	SubjectType string          `json:"subject_type"`
	SubjectID   string          `json:"subject_id"`
	Before      json.RawMessage `json:"before,omitempty"`
	After       json.RawMessage `json:"after,omitempty"`
	At          time.Time       `json:"at"`
}

// SweepResult reports what an expiry sweep changed.
type SweepResult struct {
	ExpiredCount          int `json:"expired_count"`
	EscalationCount       int `json:"escalation_count"`
	ActionEscalationCount int `json:"action_escalation_count"`
}
