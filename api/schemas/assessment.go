package schemas

import (
	"time"
)

// -- Trust Dimensions --

// Dimension is one of the five fixed trust categories questions and scores are bucketed into.
type Dimension string

const (
	DimensionTransparency   Dimension = "transparency"
	DimensionInclusion      Dimension = "inclusion"
	DimensionConfidence     Dimension = "confidence"
	DimensionExplainability Dimension = "explainability"
	DimensionRisk           Dimension = "risk"
)

// Dimensions lists every trust dimension in reporting order.
var Dimensions = []Dimension{
	DimensionTransparency,
	DimensionInclusion,
	DimensionConfidence,
	DimensionExplainability,
	DimensionRisk,
}

// Valid reports whether d is one of the fixed dimensions.
func (d Dimension) Valid() bool {
	for _, known := range Dimensions {
		if d == known {
			return true
		}
	}
	return false
}

// -- Answers --

// AnswerType declares how a question is answered.
type AnswerType string

const (
	AnswerBoolean  AnswerType = "boolean"
	AnswerMaturity AnswerType = "maturity"
)

// MaturityLevel is the ordered 5-point maturity scale.
type MaturityLevel string

const (
	MaturityNone      MaturityLevel = "none"
	MaturityAdHoc     MaturityLevel = "ad_hoc"
	MaturityDefined   MaturityLevel = "defined"
	MaturityEnforced  MaturityLevel = "enforced"
	MaturityAutomated MaturityLevel = "automated"
)

var maturityOrder = []MaturityLevel{MaturityNone, MaturityAdHoc, MaturityDefined, MaturityEnforced, MaturityAutomated}

// Rank returns the 0-based position of m on the scale, or -1 if m is unknown.
func (m MaturityLevel) Rank() int {
	for i, level := range maturityOrder {
		if m == level {
			return i
		}
	}
	return -1
}

// EvidenceType tags the kind of evidence attached to an answer.
type EvidenceType string

const (
	EvidenceLink     EvidenceType = "link"
	EvidenceTicket   EvidenceType = "ticket_ref"
	EvidenceLog      EvidenceType = "log_ref"
	EvidenceRunbook  EvidenceType = "runbook_ref"
	EvidencePolicy   EvidenceType = "policy_ref"
	EvidenceDocument EvidenceType = "document_ref"
)

// Strong reports whether the type is verifiable when it carries a pointer.
func (e EvidenceType) Strong() bool {
	switch e {
	case EvidenceLink, EvidenceTicket, EvidenceLog, EvidenceRunbook, EvidencePolicy:
		return true
	}
	return false
}

// Valid reports whether e is a known evidence type.
func (e EvidenceType) Valid() bool {
	return e.Strong() || e == EvidenceDocument
}

// Evidence backs an answer. Pointer is a concrete locator such as a URL or ticket id.
type Evidence struct {
	Type    EvidenceType `json:"type" yaml:"type"`
	Pointer string       `json:"pointer,omitempty" yaml:"pointer,omitempty"`
}

// AssessmentType distinguishes organisational surveys from AI-system assessments.
type AssessmentType string

const (
	AssessmentOrganisationSurvey AssessmentType = "organisation_survey"
	AssessmentSystem             AssessmentType = "system_assessment"
)

// Valid reports whether t is a known assessment type.
func (t AssessmentType) Valid() bool {
	return t == AssessmentOrganisationSurvey || t == AssessmentSystem
}

// Question is an immutable question definition from the question bank.
type Question struct {
	ID        string     `json:"id" yaml:"id"`
	Dimension Dimension  `json:"dimension" yaml:"dimension"`
	Type      AnswerType `json:"type" yaml:"type"`
	// Weight is the fraction of the dimension this question carries.
	Weight float64 `json:"weight" yaml:"weight"`
	Text   string  `json:"text,omitempty" yaml:"text,omitempty"`
}

// Answer holds one respondent answer. Exactly one of Bool or Maturity is set,
// matching the question's AnswerType.
type Answer struct {
	QuestionID string         `json:"question_id"`
	Bool       *bool          `json:"bool,omitempty"`
	Maturity   *MaturityLevel `json:"maturity,omitempty"`
	Evidence   *Evidence      `json:"evidence,omitempty"`
}

// -- Runs --

// RunStatus tracks a run through draft -> in_progress -> completed.
type RunStatus string

const (
	RunDraft      RunStatus = "draft"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
)

// Stability classifies how settled a target's recent scores are.
type Stability string

const (
	StabilityProvisional Stability = "provisional"
	StabilityStable      Stability = "stable"
	StabilityVolatile    Stability = "volatile"
)

// RiskFlag is a qualitative flag derived from specific answers.
type RiskFlag struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Run is one versioned pass through an assessment for one target. Scores,
// flags and drift fields are only defined once Status is RunCompleted.
type Run struct {
	ID             string         `json:"id"`
	OrgID          string         `json:"org_id"`
	TargetID       string         `json:"target_id"`
	AssessmentType AssessmentType `json:"assessment_type"`
	Version        int            `json:"version"`
	Status         RunStatus      `json:"status"`

	DimensionScores   map[Dimension]int `json:"dimension_scores,omitempty"`
	OverallScore      *int              `json:"overall_score,omitempty"`
	RiskFlags         []RiskFlag        `json:"risk_flags,omitempty"`
	DriftFromPrevious *int              `json:"drift_from_previous"`
	DriftFlag         bool              `json:"drift_flag"`
	Stability         Stability         `json:"stability,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CompletionResult is returned to callers of run completion.
type CompletionResult struct {
	RunID             string            `json:"run_id"`
	Version           int               `json:"version"`
	DimensionScores   map[Dimension]int `json:"dimension_scores"`
	OverallScore      int               `json:"overall_score"`
	RiskFlags         []RiskFlag        `json:"risk_flags"`
	DriftFromPrevious *int              `json:"drift_from_previous"`
	DriftFlag         bool              `json:"drift_flag"`
	DimensionDrift    map[Dimension]int `json:"dimension_drift,omitempty"`
	Stability         Stability         `json:"stability"`
}
