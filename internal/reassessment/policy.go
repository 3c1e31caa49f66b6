package reassessment

import (
	"math"
	"time"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

const day = 24 * time.Hour

// NextDue is last + frequencyDays, or nil if the target was never completed.
func NextDue(last *time.Time, frequencyDays int) *time.Time {
	if last == nil {
		return nil
	}
	next := last.Add(time.Duration(frequencyDays) * day)
	return &next
}

// DaysUntilDue is ceil((next - now) / 1 day). It goes negative once overdue.
func DaysUntilDue(next, now time.Time) int {
	return int(math.Ceil(float64(next.Sub(now)) / float64(day)))
}

// Derive fills the read-side fields of p as seen at now.
func Derive(p *schemas.ReassessmentPolicy, now time.Time) {
	p.NextDueAt = NextDue(p.LastCompletedAt, p.FrequencyDays)
	if p.NextDueAt == nil {
		p.IsOverdue = false
		p.DaysUntilDue = nil
		p.State = schemas.PolicyScheduled
		return
	}

	days := DaysUntilDue(*p.NextDueAt, now)
	p.DaysUntilDue = &days
	p.IsOverdue = p.NextDueAt.Before(now)
	switch {
	case p.IsOverdue && p.EscalatedAt != nil:
		p.State = schemas.PolicyEscalated
	case p.IsOverdue:
		p.State = schemas.PolicyOverdue
	default:
		p.State = schemas.PolicyOnTime
	}
}

// rearm clears a stale escalation once the policy is no longer overdue, so
// the next lapse escalates again.
func rearm(p *schemas.ReassessmentPolicy, now time.Time) {
	if p.NextDueAt == nil || !p.NextDueAt.Before(now) {
		p.EscalatedAt = nil
	}
}
