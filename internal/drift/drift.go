// Package drift compares a newly completed run against the target's
// completed history and classifies how settled its scores are.
package drift

import (
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
)

// Result describes the drift of one run relative to its predecessor.
type Result struct {
	// Delta is new - previous overall score, nil when there is no prior completed run.
	Delta *int
	// DimensionDeltas holds per-dimension deltas, nil when Delta is nil.
	DimensionDeltas map[schemas.Dimension]int
	// Record reports whether |Delta| reaches the audit threshold.
	Record bool
	// Material reports whether |Delta| reaches the materiality threshold.
	Material  bool
	Stability schemas.Stability
	// Variance is the population variance over the stability window, nil while provisional.
	Variance *float64
}

// Detector applies the configured drift policy.
type Detector struct {
	cfg config.DriftConfig
}

// NewDetector creates a Detector.
func NewDetector(cfg config.DriftConfig) *Detector {
	return &Detector{cfg: cfg}
}

// HistoryDepth is how many prior completed runs Detect needs.
func (d *Detector) HistoryDepth() int {
	if d.cfg.StabilityWindow > 1 {
		return d.cfg.StabilityWindow - 1
	}
	return 1
}

// Detect compares current with history. history holds prior completed runs
// of the same target, newest first, and must not contain current.
func (d *Detector) Detect(current schemas.Run, history []schemas.Run) Result {
	var res Result

	if len(history) > 0 && history[0].OverallScore != nil && current.OverallScore != nil {
		prev := history[0]
		delta := *current.OverallScore - *prev.OverallScore
		res.Delta = &delta
		res.Record = abs(delta) >= d.cfg.AuditThreshold
		res.Material = abs(delta) >= d.cfg.MaterialityThreshold

		res.DimensionDeltas = make(map[schemas.Dimension]int, len(schemas.Dimensions))
		for _, dim := range schemas.Dimensions {
			res.DimensionDeltas[dim] = current.DimensionScores[dim] - prev.DimensionScores[dim]
		}
	}

	scores := make([]int, 0, len(history)+1)
	if current.OverallScore != nil {
		scores = append(scores, *current.OverallScore)
	}
	for _, r := range history {
		if r.OverallScore != nil {
			scores = append(scores, *r.OverallScore)
		}
	}
	res.Stability, res.Variance = d.Classify(scores)
	return res
}

// Classify maps overall scores, newest first, to a stability class. It is the
// only place stability is decided, so stored and recomputed values agree.
func (d *Detector) Classify(scores []int) (schemas.Stability, *float64) {
	window := d.cfg.StabilityWindow
	if len(scores) < window {
		return schemas.StabilityProvisional, nil
	}
	v := Variance(scores[:window])
	if v <= d.cfg.StableVariance {
		return schemas.StabilityStable, &v
	}
	return schemas.StabilityVolatile, &v
}

// Event builds the DriftEvent for a recorded result, or nil when the result
// does not warrant one.
func (d *Detector) Event(run schemas.Run, res Result, at time.Time) *schemas.DriftEvent {
	if res.Delta == nil || !res.Record {
		return nil
	}
	return &schemas.DriftEvent{
		ID:             uuid.NewString(),
		RunID:          run.ID,
		OrgID:          run.OrgID,
		TargetID:       run.TargetID,
		AssessmentType: run.AssessmentType,
		Delta:          *res.Delta,
		Material:       res.Material,
		CreatedAt:      at,
	}
}

// Variance is the population variance of xs.
func Variance(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		diff := float64(x) - mean
		sq += diff * diff
	}
	return sq / float64(len(xs))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
