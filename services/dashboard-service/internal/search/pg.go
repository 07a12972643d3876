package search

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/db"
)

// Postgres searches records and clients with ILIKE inside a tenant
// transaction.
type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres { return &Postgres{pool: pool} }

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// fallbackSQL returns the UNION query for q. $1 is the tenant and $2 the
// pattern; the caller appends limit and offset.
func fallbackSQL(q Query) (string, []any) {
	args := []any{q.TenantID, likePattern(q.Text)}
	var parts []string
	if q.Resource == "" || q.Resource == "records" {
		where := `user_id = $1 AND deleted_at IS NULL AND (title ILIKE $2 OR data::text ILIKE $2)`
		if q.EntityType != "" {
			args = append(args, q.EntityType)
			where += ` AND entity_type = $` + strconv.Itoa(len(args))
		}
		parts = append(parts, `
			SELECT id::text, 'records' AS resource, entity_type, COALESCE(NULLIF(title, ''), entity_type) AS title,
				left(data::text, 160) AS snippet, updated_at
			FROM records WHERE `+where)
	}
	if q.Resource == "" || q.Resource == "clients" {
		parts = append(parts, `
			SELECT id::text, 'clients' AS resource, '' AS entity_type, name AS title,
				concat_ws(' ', email, phone) AS snippet, updated_at
			FROM clients
			WHERE user_id = $1 AND deleted_at IS NULL AND (name ILIKE $2 OR email ILIKE $2 OR phone ILIKE $2)`)
	}
	sql := `SELECT id, resource, entity_type, title, snippet, count(*) OVER () FROM (` +
		strings.Join(parts, " UNION ALL ") +
		`) s ORDER BY updated_at DESC, id LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	return sql, args
}

func (p *Postgres) Search(ctx context.Context, q Query) ([]Result, int64, error) {
	sql, args := fallbackSQL(q)
	args = append(args, q.Limit, q.Offset)
	var out []Result
	var total int64
	err := p.pool.WithTenant(ctx, q.TenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r Result
			if err := rows.Scan(&r.ID, &r.Resource, &r.EntityType, &r.Title, &r.Snippet, &total); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, total, err
}

// LoadDocuments reads every live record and client of a tenant for a full
// reindex.
func (p *Postgres) LoadDocuments(ctx context.Context, tenantID string) ([]Document, error) {
	var docs []Document
	err := p.pool.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		for _, resource := range []string{"records", "clients"} {
			hidden := ""
			if resource == "clients" {
				hidden = " - 'access_code_hash'"
			}
			rows, err := tx.Query(ctx, `SELECT to_jsonb(t)`+hidden+` FROM `+resource+` t WHERE t.user_id = $1 AND t.deleted_at IS NULL`, tenantID)
			if err != nil {
				return err
			}
			raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
			if err != nil {
				return err
			}
			for _, raw := range raws {
				row, err := decodeRow(raw)
				if err != nil {
					return err
				}
				docs = append(docs, DocumentFromRow(tenantID, resource, row))
			}
		}
		return nil
	})
	return docs, err
}
