package scoring

import (
	"math"
	"strings"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

// Evidence caps. An answer can never score above the cap its evidence earns.
const (
	NoEvidenceCap     = 0.4
	WeakEvidenceCap   = 0.6
	StrongEvidenceCap = 1.0
)

// OverallDimensionWeight is the fixed equal share of each dimension.
const OverallDimensionWeight = 0.2

var maturityValues = map[schemas.MaturityLevel]float64{
	schemas.MaturityNone:      0.00,
	schemas.MaturityAdHoc:     0.25,
	schemas.MaturityDefined:   0.50,
	schemas.MaturityEnforced:  0.75,
	schemas.MaturityAutomated: 1.00,
}

// BaseValue is the face value of an answer before the evidence cap.
func BaseValue(a *schemas.Answer, t schemas.AnswerType) float64 {
	if a == nil {
		return 0
	}
	switch t {
	case schemas.AnswerBoolean:
		if a.Bool != nil && *a.Bool {
			return 1.0
		}
	case schemas.AnswerMaturity:
		if a.Maturity != nil {
			return maturityValues[*a.Maturity]
		}
	}
	return 0
}

// EvidenceCap returns the cap earned by e, independent of the answer value.
func EvidenceCap(e *schemas.Evidence) float64 {
	if e == nil || (e.Type == "" && strings.TrimSpace(e.Pointer) == "") {
		return NoEvidenceCap
	}
	if e.Type.Strong() && strings.TrimSpace(e.Pointer) != "" {
		return StrongEvidenceCap
	}
	return WeakEvidenceCap
}

// Score converts one answer into [0,1]. A missing answer scores 0.
func Score(a *schemas.Answer, t schemas.AnswerType) float64 {
	if a == nil {
		return 0
	}
	return math.Min(BaseValue(a, t), EvidenceCap(a.Evidence))
}

// DimensionScore is round(100 * sum(score * weight)) over the questions in d.
// Unanswered questions stay in the sum at 0.
func DimensionScore(questions []schemas.Question, answers map[string]schemas.Answer, d schemas.Dimension) int {
	var sum float64
	for _, q := range questions {
		if q.Dimension != d {
			continue
		}
		var answer *schemas.Answer
		if a, ok := answers[q.ID]; ok {
			answer = &a
		}
		sum += Score(answer, q.Type) * q.Weight
	}
	return clampScore(roundHalfUp(sum * 100))
}

// DimensionScores computes every fixed dimension. Dimensions without
// questions score 0.
func DimensionScores(questions []schemas.Question, answers map[string]schemas.Answer) map[schemas.Dimension]int {
	scores := make(map[schemas.Dimension]int, len(schemas.Dimensions))
	for _, d := range schemas.Dimensions {
		scores[d] = DimensionScore(questions, answers, d)
	}
	return scores
}

// OverallScore weights the five dimensions equally. Missing dimensions count as 0.
func OverallScore(scores map[schemas.Dimension]int) int {
	var sum float64
	for _, d := range schemas.Dimensions {
		sum += float64(scores[d]) * OverallDimensionWeight
	}
	return clampScore(roundHalfUp(sum))
}

// roundHalfUp rounds to the nearest integer with ties going up. The epsilon
// keeps values like 54.499999999 produced by float sums from rounding down
// when the exact decimal is .5.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5 + 1e-9))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
