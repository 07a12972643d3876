package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

type Row = map[string]any

// ListQuery is a parsed list request. Filters and Sort only ever hold
// column names taken from the Resource, never raw user input.
type ListQuery struct {
	Filters map[string]any
	Search  string
	Sort    string
	Desc    bool
	Page    int
	PerPage int
}

type Store struct{}

func NewStore() *Store { return &Store{} }

func (res *Resource) singular() string {
	return strings.TrimSuffix(res.Name, "s")
}

func (res *Resource) selectExpr() string {
	expr := "to_jsonb(t)"
	for _, h := range res.Hidden {
		expr += " - '" + h + "'"
	}
	return expr
}

func decodeRow(raw []byte) (Row, error) {
	var row Row
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}

func scanRow(row pgx.Row, what string) (Row, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return nil, apperr.FromDB(err, what)
	}
	return decodeRow(raw)
}

func sortedKeys(in Input) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Create inserts in a savepoint. When the insert fails because one of the
// resource's optional columns does not exist, it is retried once without
// the optional columns.
func (s *Store) Create(ctx context.Context, tx pgx.Tx, res *Resource, tenantID string, in Input) (Row, error) {
	row, err := s.insert(ctx, tx, res, tenantID, in)
	if err == nil {
		return row, nil
	}
	col, ok := apperr.UndefinedColumn(err)
	if !ok || !contains(res.OptionalColumns, col) {
		return nil, apperr.FromDB(err, res.singular())
	}
	trimmed := make(Input, len(in))
	for k, v := range in {
		if !contains(res.OptionalColumns, k) {
			trimmed[k] = v
		}
	}
	row, err = s.insert(ctx, tx, res, tenantID, trimmed)
	if err != nil {
		return nil, apperr.FromDB(err, res.singular())
	}
	return row, nil
}

func (s *Store) insert(ctx context.Context, tx pgx.Tx, res *Resource, tenantID string, in Input) (Row, error) {
	cols := []string{"user_id"}
	marks := []string{"$1"}
	args := []any{tenantID}
	for _, k := range sortedKeys(in) {
		args = append(args, in[k])
		cols = append(cols, k)
		marks = append(marks, "$"+strconv.Itoa(len(args)))
	}
	sql := `INSERT INTO ` + res.Table + ` AS t (` + strings.Join(cols, ", ") + `)
		VALUES (` + strings.Join(marks, ", ") + `)
		RETURNING ` + res.selectExpr()

	sp, err := tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := sp.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		_ = sp.Rollback(ctx)
		return nil, err
	}
	if err := sp.Commit(ctx); err != nil {
		return nil, err
	}
	return decodeRow(raw)
}

func (s *Store) baseWhere(res *Resource) string {
	where := "t.user_id = $1"
	if res.SoftDelete {
		where += " AND t.deleted_at IS NULL"
	}
	return where
}

func (s *Store) Get(ctx context.Context, tx pgx.Tx, res *Resource, tenantID, id string) (Row, error) {
	return scanRow(tx.QueryRow(ctx, `
		SELECT `+res.selectExpr()+`
		FROM `+res.Table+` t
		WHERE `+s.baseWhere(res)+` AND t.id = $2
	`, tenantID, id), res.singular())
}

func (s *Store) List(ctx context.Context, tx pgx.Tx, res *Resource, tenantID string, q ListQuery) ([]Row, int64, error) {
	where := []string{s.baseWhere(res)}
	args := []any{tenantID}

	filterKeys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		filterKeys = append(filterKeys, k)
	}
	sort.Strings(filterKeys)
	for _, k := range filterKeys {
		v := q.Filters[k]
		if v == nil {
			where = append(where, "t."+k+" IS NULL")
			continue
		}
		args = append(args, v)
		where = append(where, "t."+k+" = $"+strconv.Itoa(len(args)))
	}
	if q.Search != "" && len(res.Searchable) > 0 {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		mark := "$" + strconv.Itoa(len(args))
		var ors []string
		for _, c := range res.Searchable {
			ors = append(ors, "t."+c+"::text ILIKE "+mark)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	whereSQL := strings.Join(where, " AND ")

	var total int64
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM `+res.Table+` t WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "t." + q.Sort
	if q.Desc {
		order += " DESC"
	}
	args = append(args, q.PerPage, (q.Page-1)*q.PerPage)
	rows, err := tx.Query(ctx, `
		SELECT `+res.selectExpr()+`
		FROM `+res.Table+` t
		WHERE `+whereSQL+`
		ORDER BY `+order+`, t.id
		LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, 0, err
	}
	out := make([]Row, 0, len(raws))
	for _, raw := range raws {
		row, err := decodeRow(raw)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, row)
	}
	return out, total, nil
}

// Update sets only the provided columns.
func (s *Store) Update(ctx context.Context, tx pgx.Tx, res *Resource, tenantID, id string, in Input) (Row, error) {
	args := []any{tenantID, id}
	var sets []string
	for _, k := range sortedKeys(in) {
		args = append(args, in[k])
		sets = append(sets, k+" = $"+strconv.Itoa(len(args)))
	}
	sets = append(sets, "updated_at = now()")
	return scanRow(tx.QueryRow(ctx, `
		UPDATE `+res.Table+` AS t
		SET `+strings.Join(sets, ", ")+`
		WHERE `+s.baseWhere(res)+` AND t.id = $2
		RETURNING `+res.selectExpr(), args...), res.singular())
}

// Delete soft-deletes when the resource supports it and hard is false.
func (s *Store) Delete(ctx context.Context, tx pgx.Tx, res *Resource, tenantID, id string, hard bool) error {
	var sql string
	if res.SoftDelete && !hard {
		sql = `UPDATE ` + res.Table + ` AS t SET deleted_at = now() WHERE ` + s.baseWhere(res) + ` AND t.id = $2`
	} else {
		sql = `DELETE FROM ` + res.Table + ` AS t WHERE t.user_id = $1 AND t.id = $2`
	}
	tag, err := tx.Exec(ctx, sql, tenantID, id)
	if err != nil {
		return apperr.FromDB(err, res.singular())
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(res.singular() + " not found")
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
