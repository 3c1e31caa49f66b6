package reassessment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/trustscore/api/schemas"
)

func openEscalation() *schemas.Escalation {
	return &schemas.Escalation{
		ID:         "esc-1",
		OrgID:      "org-1",
		SourceType: schemas.SourceAction,
		SourceID:   "act-1",
		Severity:   schemas.SeverityCritical,
		Status:     schemas.EscalationOpen,
		CreatedAt:  fixedNow.AddDate(0, 0, -2),
	}
}

func TestResolveEscalation(t *testing.T) {
	s, store, pub := setupScheduler(t)
	store.On("WithTx", mock.Anything).Return(nil)
	store.Tx.On("LockEscalation", mock.Anything, "esc-1").Return(openEscalation(), nil)
	store.Tx.On("ResolveEscalation", mock.Anything, mock.MatchedBy(func(e *schemas.Escalation) bool {
		return e.Status == schemas.EscalationResolved && e.ResolvedBy == "bob" && e.ResolvedAt != nil
	})).Return(true, nil)
	var audit *schemas.AuditRecord
	store.Tx.On("InsertAudit", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		audit = args.Get(1).(*schemas.AuditRecord)
	}).Return(nil)
	pub.On("PublishAudit", mock.Anything, mock.Anything).Return(nil)

	esc, err := s.ResolveEscalation(context.Background(), "esc-1", "bob", "keys rotated, ticket SEC-44")
	require.NoError(t, err)
	assert.Equal(t, schemas.EscalationResolved, esc.Status)
	assert.Equal(t, "keys rotated, ticket SEC-44", esc.Resolution)
	assert.Equal(t, fixedNow, *esc.ResolvedAt)

	require.NotNil(t, audit)
	assert.Equal(t, AuditEscalationResolve, audit.Action)
	assert.Equal(t, "escalation", audit.SubjectType)
	assert.Equal(t, "esc-1", audit.SubjectID)
	assert.Contains(t, string(audit.Before), `"status":"open"`)
	assert.Contains(t, string(audit.After), `"status":"resolved"`)
	pub.AssertExpectations(t)
}

func TestResolveEscalation_AlreadyResolved(t *testing.T) {
	s, store, pub := setupScheduler(t)
	resolved := openEscalation()
	resolved.Status = schemas.EscalationResolved

	store.On("WithTx", mock.Anything).Return(nil)
	store.Tx.On("LockEscalation", mock.Anything, "esc-1").Return(resolved, nil)

	_, err := s.ResolveEscalation(context.Background(), "esc-1", "bob", "again")
	assert.ErrorIs(t, err, schemas.ErrAlreadyResolved)
	assert.ErrorIs(t, err, schemas.ErrConflict)
	store.Tx.AssertNotCalled(t, "InsertAudit", mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "PublishAudit", mock.Anything, mock.Anything)
}

func TestResolveEscalation_LostConditionalUpdate(t *testing.T) {
	s, store, _ := setupScheduler(t)
	store.On("WithTx", mock.Anything).Return(nil)
	store.Tx.On("LockEscalation", mock.Anything, "esc-1").Return(openEscalation(), nil)
	store.Tx.On("ResolveEscalation", mock.Anything, mock.Anything).Return(false, nil)

	_, err := s.ResolveEscalation(context.Background(), "esc-1", "bob", "done")
	assert.ErrorIs(t, err, schemas.ErrAlreadyResolved)
}

func TestResolveEscalation_NotFound(t *testing.T) {
	s, store, _ := setupScheduler(t)
	store.On("WithTx", mock.Anything).Return(nil)
	store.Tx.On("LockEscalation", mock.Anything, "nope").Return(nil, schemas.ErrNotFound)

	_, err := s.ResolveEscalation(context.Background(), "nope", "bob", "done")
	assert.ErrorIs(t, err, schemas.ErrNotFound)
}

func TestResolveEscalation_Validation(t *testing.T) {
	s, store, _ := setupScheduler(t)
	for _, tc := range []struct{ id, actor, reason string }{
		{"", "bob", "r"},
		{"esc-1", "", "r"},
		{"esc-1", "bob", ""},
	} {
		_, err := s.ResolveEscalation(context.Background(), tc.id, tc.actor, tc.reason)
		assert.ErrorIs(t, err, schemas.ErrValidation)
	}
	store.AssertNotCalled(t, "WithTx", mock.Anything)
}
