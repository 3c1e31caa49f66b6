package reassessment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestNextDue(t *testing.T) {
	assert.Nil(t, NextDue(nil, 90))

	last := date(2026, 1, 1, 0)
	next := NextDue(&last, 90)
	require.NotNil(t, next)
	assert.Equal(t, date(2026, 4, 1, 0), *next)
}

func TestDaysUntilDue(t *testing.T) {
	next := date(2026, 4, 1, 0)
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"a day and a half early rounds up", date(2026, 3, 30, 12), 2},
		{"exactly due", next, 0},
		{"one hour early", date(2026, 3, 31, 23), 1},
		{"one hour late", date(2026, 4, 1, 1), 0},
		{"one day late", date(2026, 4, 2, 0), -1},
		{"two and a half days late", date(2026, 4, 3, 12), -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntilDue(next, tt.now))
		})
	}
}

func TestDerive(t *testing.T) {
	last := date(2026, 1, 1, 0)
	escalated := date(2026, 4, 5, 0)

	tests := []struct {
		name        string
		policy      schemas.ReassessmentPolicy
		now         time.Time
		wantState   schemas.PolicyState
		wantOverdue bool
		wantDays    *int
	}{
		{
			name:      "never completed is scheduled",
			policy:    schemas.ReassessmentPolicy{FrequencyDays: 90},
			now:       date(2026, 3, 1, 0),
			wantState: schemas.PolicyScheduled,
		},
		{
			name:      "on time",
			policy:    schemas.ReassessmentPolicy{FrequencyDays: 90, LastCompletedAt: &last},
			now:       date(2026, 3, 22, 0),
			wantState: schemas.PolicyOnTime,
			wantDays:  intPtr(10),
		},
		{
			name:      "due now is not overdue",
			policy:    schemas.ReassessmentPolicy{FrequencyDays: 90, LastCompletedAt: &last},
			now:       date(2026, 4, 1, 0),
			wantState: schemas.PolicyOnTime,
			wantDays:  intPtr(0),
		},
		{
			name:        "overdue",
			policy:      schemas.ReassessmentPolicy{FrequencyDays: 90, LastCompletedAt: &last},
			now:         date(2026, 4, 11, 0),
			wantState:   schemas.PolicyOverdue,
			wantOverdue: true,
			wantDays:    intPtr(-10),
		},
		{
			name:        "escalated",
			policy:      schemas.ReassessmentPolicy{FrequencyDays: 90, LastCompletedAt: &last, EscalatedAt: &escalated},
			now:         date(2026, 4, 11, 0),
			wantState:   schemas.PolicyEscalated,
			wantOverdue: true,
			wantDays:    intPtr(-10),
		},
		{
			name:      "stale escalation on a current policy reads as on time",
			policy:    schemas.ReassessmentPolicy{FrequencyDays: 365, LastCompletedAt: &last, EscalatedAt: &escalated},
			now:       date(2026, 4, 11, 0),
			wantState: schemas.PolicyOnTime,
			wantDays:  intPtr(265),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.policy
			Derive(&p, tt.now)
			assert.Equal(t, tt.wantState, p.State)
			assert.Equal(t, tt.wantOverdue, p.IsOverdue)
			assert.Equal(t, tt.wantDays, p.DaysUntilDue)
		})
	}
}

func intPtr(v int) *int { return &v }
