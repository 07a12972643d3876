package crud

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

type rowResult struct {
	raw string
	err error
}

func (r rowResult) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = []byte(r.raw)
	return nil
}

// scriptedTx answers QueryRow from results in order. Savepoints are the
// same transaction.
type scriptedTx struct {
	pgx.Tx
	results   []rowResult
	sql       []string
	args      [][]any
	commits   int
	rollbacks int
}

func (tx *scriptedTx) Begin(context.Context) (pgx.Tx, error) { return tx, nil }

func (tx *scriptedTx) Commit(context.Context) error {
	tx.commits++
	return nil
}

func (tx *scriptedTx) Rollback(context.Context) error {
	tx.rollbacks++
	return nil
}

func (tx *scriptedTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	tx.sql = append(tx.sql, sql)
	tx.args = append(tx.args, args)
	r := tx.results[0]
	tx.results = tx.results[1:]
	return r
}

func missingColumn(col string) error {
	return &pgconn.PgError{
		Code:    apperr.PgUndefinedColumn,
		Message: `column "` + col + `" of relation "invoices" does not exist`,
	}
}

func TestCreateRetriesWithoutMissingOptionalColumn(t *testing.T) {
	res := resource(t, "invoices")
	tx := &scriptedTx{results: []rowResult{
		{err: missingColumn("notes")},
		{raw: `{"id":"i1","number":"A-1","total_cents":900}`},
	}}
	in := Input{"number": "A-1", "total_cents": int64(900), "notes": "paid by card"}

	row, err := NewStore().Create(context.Background(), tx, res, "u1", in)
	require.NoError(t, err)
	require.Equal(t, "A-1", row["number"])

	require.Len(t, tx.sql, 2)
	require.Contains(t, tx.sql[0], "notes")
	require.NotContains(t, tx.sql[1], "notes")
	require.Equal(t, []any{"u1", "A-1", int64(900)}, tx.args[1])
	require.Equal(t, 1, tx.rollbacks)
	require.Equal(t, 1, tx.commits)
	require.Contains(t, in, "notes", "caller input is not modified")
}

func TestCreateDoesNotRetryRequiredColumn(t *testing.T) {
	res := resource(t, "invoices")
	tx := &scriptedTx{results: []rowResult{{err: missingColumn("number")}}}

	_, err := NewStore().Create(context.Background(), tx, res, "u1", Input{"number": "A-1", "total_cents": int64(900)})
	require.Error(t, err)
	require.Len(t, tx.sql, 1)
	require.Equal(t, 0, tx.commits)
}

func TestCreateInsertsSortedColumns(t *testing.T) {
	res := resource(t, "invoices")
	tx := &scriptedTx{results: []rowResult{{raw: `{"id":"i1"}`}}}

	_, err := NewStore().Create(context.Background(), tx, res, "u1", Input{"total_cents": int64(5), "number": "B-2"})
	require.NoError(t, err)
	require.True(t, strings.Contains(tx.sql[0], "(user_id, number, total_cents)"), tx.sql[0])
	require.Equal(t, []any{"u1", "B-2", int64(5)}, tx.args[0])
}
