// File: internal/mocks/mocks_test.go
package mocks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
)

// Compile-time checks that the mocks satisfy their contracts.
var (
	_ config.Interface  = (*MockConfig)(nil)
	_ schemas.Store     = (*MockStore)(nil)
	_ schemas.Tx        = (*MockTx)(nil)
	_ schemas.Publisher = (*MockPublisher)(nil)
)

func TestMockStore_WithTxRunsCallback(t *testing.T) {
	store := NewMockStore()
	store.On("WithTx", mock.Anything).Return(nil)
	store.Tx.On("InsertAudit", mock.Anything, mock.Anything).Return(nil)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx schemas.Tx) error {
		return tx.InsertAudit(ctx, &schemas.AuditRecord{ID: "a"})
	})

	assert.NoError(t, err)
	store.AssertExpectations(t)
	store.Tx.AssertExpectations(t)
}

func TestMockStore_WithTxBeginError(t *testing.T) {
	store := NewMockStore()
	boom := errors.New("begin failed")
	store.On("WithTx", mock.Anything).Return(boom)

	called := false
	err := store.WithTx(context.Background(), func(context.Context, schemas.Tx) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestMockStore_NilReturns(t *testing.T) {
	store := NewMockStore()
	store.On("GetRun", mock.Anything, "missing").Return(nil, schemas.ErrNotFound)

	run, err := store.GetRun(context.Background(), "missing")
	assert.Nil(t, run)
	assert.ErrorIs(t, err, schemas.ErrNotFound)
}
