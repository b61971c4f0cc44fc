package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	commits     int
	rollbacks   int
	commitErr   error
	rollbackErr error
}

func (f *fakeTx) Commit() error {
	f.commits++
	return f.commitErr
}

func (f *fakeTx) Rollback() error {
	f.rollbacks++
	return f.rollbackErr
}

type fakeQueries struct{ tx *fakeTx }

func beginWith(tx *fakeTx) func(context.Context) (*fakeTx, error) {
	return func(context.Context) (*fakeTx, error) { return tx, nil }
}

func bind(tx *fakeTx) fakeQueries { return fakeQueries{tx: tx} }

func TestInTxCommitsOnSuccess(t *testing.T) {
	tx := &fakeTx{}
	var got fakeQueries
	err := InTx(context.Background(), beginWith(tx), bind, func(q fakeQueries) error {
		got = q
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, tx, got.tx)
	assert.Equal(t, 1, tx.commits)
	assert.Equal(t, 0, tx.rollbacks)
}

func TestInTxRollsBackOnError(t *testing.T) {
	tx := &fakeTx{}
	boom := errors.New("boom")
	err := InTx(context.Background(), beginWith(tx), bind, func(fakeQueries) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, tx.commits)
	assert.Equal(t, 1, tx.rollbacks)
}

func TestInTxJoinsRollbackFailure(t *testing.T) {
	lost := errors.New("connection lost")
	tx := &fakeTx{rollbackErr: lost}
	boom := errors.New("boom")
	err := InTx(context.Background(), beginWith(tx), bind, func(fakeQueries) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, lost)
}

func TestInTxIgnoresRollbackOfFinishedTx(t *testing.T) {
	tx := &fakeTx{rollbackErr: sql.ErrTxDone}
	boom := errors.New("boom")
	err := InTx(context.Background(), beginWith(tx), bind, func(fakeQueries) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, sql.ErrTxDone)
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	tx := &fakeTx{}
	assert.PanicsWithValue(t, "kaboom", func() {
		_ = InTx(context.Background(), beginWith(tx), bind, func(fakeQueries) error { panic("kaboom") })
	})
	assert.Equal(t, 0, tx.commits)
	assert.Equal(t, 1, tx.rollbacks)
}

func TestInTxCommitFailure(t *testing.T) {
	broken := errors.New("serialization failure")
	tx := &fakeTx{commitErr: broken}
	err := InTx(context.Background(), beginWith(tx), bind, func(fakeQueries) error { return nil })
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, 0, tx.rollbacks)
}

func TestInTxBeginFailure(t *testing.T) {
	refused := errors.New("refused")
	called := false
	err := InTx(context.Background(),
		func(context.Context) (*fakeTx, error) { return nil, refused },
		bind,
		func(fakeQueries) error { called = true; return nil },
	)
	assert.ErrorIs(t, err, refused)
	assert.False(t, called)
}
