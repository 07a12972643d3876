package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/model"
)

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// savepointTx fails every statement with err and counts savepoint outcomes.
type savepointTx struct {
	pgx.Tx
	err       error
	begins    int
	commits   int
	rollbacks int
}

func (tx *savepointTx) Begin(context.Context) (pgx.Tx, error) {
	tx.begins++
	return tx, nil
}

func (tx *savepointTx) Commit(context.Context) error {
	tx.commits++
	return nil
}

func (tx *savepointTx) Rollback(context.Context) error {
	tx.rollbacks++
	return nil
}

func (tx *savepointTx) QueryRow(context.Context, string, ...any) pgx.Row { return errRow{tx.err} }

func (tx *savepointTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, tx.err
}

func overlap() error {
	return &pgconn.PgError{Code: apperr.PgExclusionViolation, ConstraintName: "appointments_no_overlap"}
}

func TestCreateOverlapRollsBackSavepoint(t *testing.T) {
	tx := &savepointTx{err: overlap()}
	err := NewBookingRepository().Create(context.Background(), tx, &model.Appointment{TenantID: "t1"})
	require.True(t, IsConflict(err))
	require.Equal(t, 1, tx.begins)
	require.Equal(t, 1, tx.rollbacks)
	require.Zero(t, tx.commits)
}

func TestRescheduleOverlapRollsBackSavepoint(t *testing.T) {
	tx := &savepointTx{err: overlap()}
	now := time.Now()
	err := NewBookingRepository().Reschedule(context.Background(), tx, "t1", "a1", "s1", now, now.Add(time.Hour))
	require.True(t, IsConflict(err))
	require.Equal(t, 1, tx.rollbacks)
}

func TestRescheduleCommitsSavepoint(t *testing.T) {
	tx := &savepointTx{}
	now := time.Now()
	require.NoError(t, NewBookingRepository().Reschedule(context.Background(), tx, "t1", "a1", "", now, now.Add(time.Hour)))
	require.Equal(t, 1, tx.commits)
	require.Zero(t, tx.rollbacks)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(overlap()))
	require.False(t, IsConflict(&pgconn.PgError{Code: apperr.PgUniqueViolation}))
	require.False(t, IsConflict(errors.New("boom")))
	require.False(t, IsConflict(nil))
}
