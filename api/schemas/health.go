package schemas

import "time"

// HealthStatus distinguishes a computed score from "no data yet".
type HealthStatus string

const (
	HealthOK          HealthStatus = "ok"
	HealthUnavailable HealthStatus = "unavailable"
)

// HealthPenalties are the four non-negative terms subtracted from base health.
type HealthPenalties struct {
	Relationship   float64 `json:"p_rel"`
	ActionBacklog  float64 `json:"p_act"`
	Drift          float64 `json:"p_drift"`
	Explainability float64 `json:"p_exp"`
}

// Total sums all penalty terms.
func (p HealthPenalties) Total() float64 {
	return p.Relationship + p.ActionBacklog + p.Drift + p.Explainability
}

// HealthSnapshot is the derived, rebuildable health cache for an organisation.
type HealthSnapshot struct {
	OrgID      string          `json:"org_id"`
	Status     HealthStatus    `json:"status"`
	OrgBase    *float64        `json:"org_base"`
	SysBase    *float64        `json:"sys_base"`
	BaseHealth *float64        `json:"base_health"`
	Penalties  HealthPenalties `json:"penalties"`
	// HealthScore is nil when Status is HealthUnavailable.
	HealthScore *int `json:"health_score"`
	ActionCounts
	ComputedAt time.Time `json:"computed_at"`
}

// HealthView is a snapshot as served to readers.
type HealthView struct {
	Snapshot HealthSnapshot `json:"snapshot"`
	Stale    bool           `json:"stale"`
}

// TargetScore is the latest completed run score for one target.
type TargetScore struct {
	TargetID       string         `json:"target_id"`
	AssessmentType AssessmentType `json:"assessment_type"`
	OverallScore   int            `json:"overall_score"`
	RiskFlagCount  int            `json:"risk_flag_count"`
	CompletedAt    time.Time      `json:"completed_at"`
}
