// Package health turns an organisation's recent scores, backlog, drift and
// risk flags into a single health snapshot.
package health

import (
	"math"
	"time"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
	"github.com/xkilldash9x/trustscore/internal/scoring"
)

// Blend modes for combining the organisational and system bases.
const (
	BlendEqual    = "equal"
	BlendCount    = "count"
	BlendWeighted = "weighted"
)

// Inputs is everything Compute needs, fetched before the call.
type Inputs struct {
	OrgID           string
	Scores          []schemas.TargetScore
	OpenEscalations map[schemas.Severity]int
	Actions         schemas.ActionCounts
	DriftEvents     []schemas.DriftEvent
}

// Compute builds a snapshot. It is pure: the same inputs always give the same
// snapshot. With no scores at all the snapshot is HealthUnavailable and
// carries no health score, which is distinct from a score of 0.
func Compute(cfg config.HealthConfig, in Inputs, now time.Time) schemas.HealthSnapshot {
	snap := schemas.HealthSnapshot{
		OrgID:        in.OrgID,
		ActionCounts: in.Actions,
		ComputedAt:   now,
	}

	var orgScores, sysScores []int
	sysFlags := 0
	for _, s := range in.Scores {
		switch s.AssessmentType {
		case schemas.AssessmentOrganisationSurvey:
			orgScores = append(orgScores, s.OverallScore)
		case schemas.AssessmentSystem:
			sysScores = append(sysScores, s.OverallScore)
			sysFlags += s.RiskFlagCount
		}
	}
	snap.OrgBase = mean(orgScores)
	snap.SysBase = mean(sysScores)

	p := cfg.Penalties
	snap.Penalties = schemas.HealthPenalties{
		Relationship:   relationshipPenalty(p, in.OpenEscalations),
		ActionBacklog:  capAt(float64(in.Actions.Overdue)*p.OverdueActionWeight+float64(in.Actions.CriticalOverdue)*p.CriticalOverdueWeight, p.ActionCap),
		Drift:          driftPenalty(p, in.DriftEvents),
		Explainability: explainabilityPenalty(p, sysFlags, len(sysScores)),
	}

	snap.BaseHealth = blend(cfg, snap.OrgBase, snap.SysBase, len(orgScores), len(sysScores))
	if snap.BaseHealth == nil {
		snap.Status = schemas.HealthUnavailable
		return snap
	}

	score := int(math.Round(clamp(*snap.BaseHealth-snap.Penalties.Total(), 0, 100)))
	snap.Status = schemas.HealthOK
	snap.HealthScore = &score
	return snap
}

func blend(cfg config.HealthConfig, org, sys *float64, nOrg, nSys int) *float64 {
	switch {
	case org == nil && sys == nil:
		return nil
	case org == nil:
		return sys
	case sys == nil:
		return org
	}

	var v float64
	switch cfg.Blend {
	case BlendCount:
		v = (*org*float64(nOrg) + *sys*float64(nSys)) / float64(nOrg+nSys)
	case BlendWeighted:
		v = (*org*cfg.OrgWeight + *sys*cfg.SysWeight) / (cfg.OrgWeight + cfg.SysWeight)
	default:
		v = (*org + *sys) / 2
	}
	return &v
}

func relationshipPenalty(p config.PenaltyConfig, open map[schemas.Severity]int) float64 {
	var total float64
	for sev, n := range open {
		total += float64(n) * p.EscalationWeights[string(sev)]
	}
	return capAt(total, p.RelationshipCap)
}

func driftPenalty(p config.PenaltyConfig, events []schemas.DriftEvent) float64 {
	var magnitude float64
	for _, ev := range events {
		magnitude += math.Abs(float64(ev.Delta))
	}
	return capAt(magnitude*p.DriftPerPoint, p.DriftCap)
}

// explainabilityPenalty scales the share of possible risk flags actually
// raised across the latest system assessments.
func explainabilityPenalty(p config.PenaltyConfig, flags, systemRuns int) float64 {
	if systemRuns == 0 {
		return 0
	}
	density := float64(flags) / float64(systemRuns*len(scoring.RiskRules))
	return capAt(density*p.ExplainabilityScale, p.ExplainabilityCap)
}

func mean(xs []int) *float64 {
	if len(xs) == 0 {
		return nil
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	m := sum / float64(len(xs))
	return &m
}

func capAt(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
