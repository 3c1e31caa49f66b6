package server

import (
	"time"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CompleteRunRequest carries the answers for a run. An empty list scores the stored answers.
type CompleteRunRequest struct {
	Answers []schemas.Answer `json:"answers"`
}

// UpsertPolicyRequest creates or overrides a reassessment policy.
type UpsertPolicyRequest struct {
	OrgID           string     `json:"org_id" binding:"required"`
	TargetID        string     `json:"target_id" binding:"required"`
	AssessmentType  string     `json:"assessment_type" binding:"required,oneof=organisation_survey system_assessment"`
	FrequencyDays   int        `json:"frequency_days" binding:"required,min=1"`
	LastCompletedAt *time.Time `json:"last_completed_at"`
	Actor           string     `json:"actor" binding:"required"`
	Reason          string     `json:"reason" binding:"required"`
}

// OperatorRequest identifies who triggered an audited action and why.
type OperatorRequest struct {
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// PoliciesQuery filters the policy listing.
type PoliciesQuery struct {
	Type string `form:"type" binding:"omitempty,oneof=organisation_survey system_assessment"`
}

// PoliciesResponse wraps the policy listing.
type PoliciesResponse struct {
	Policies []schemas.ReassessmentPolicy `json:"policies"`
}

// StatusResponse is returned by /healthz.
type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
