// Package search indexes clients and records in Meilisearch and answers
// dashboard search, falling back to Postgres ILIKE when Meilisearch is
// unconfigured or unhealthy.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/crud"
)

type Query struct {
	TenantID   string
	Text       string
	Resource   string // "records", "clients" or empty for both
	EntityType string
	Limit      int
	Offset     int
}

type Result struct {
	ID         string `json:"id"`
	Resource   string `json:"resource"`
	EntityType string `json:"entity_type,omitempty"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet,omitempty"`
}

type Response struct {
	Results []Result `json:"results"`
	Total   int64    `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Document is what gets stored in the index.
type Document struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Resource   string `json:"resource"`
	EntityType string `json:"entity_type,omitempty"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	StageID    string `json:"stage_id,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
}

type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int64, error)
}

func str(row crud.Row, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case json.Number:
		return v.String()
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// flatten joins the scalar leaves of a JSON value in key order so free-form
// record data is searchable as text.
func flatten(v any, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flatten(t[k], out)
		}
	case []any:
		for _, e := range t {
			flatten(e, out)
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			*out = append(*out, s)
		}
	case json.Number:
		*out = append(*out, t.String())
	case bool:
		*out = append(*out, fmt.Sprint(t))
	}
}

// DocumentFromRow builds the index document for a CRUD row.
func DocumentFromRow(tenantID, resource string, row crud.Row) Document {
	doc := Document{
		ID:       str(row, "id"),
		UserID:   tenantID,
		Resource: resource,
		StageID:  str(row, "stage_id"),
		ClientID: str(row, "client_id"),
	}
	var parts []string
	switch resource {
	case "clients":
		doc.Title = str(row, "name")
		for _, k := range []string{"email", "phone", "notes"} {
			if s := str(row, k); s != "" {
				parts = append(parts, s)
			}
		}
		flatten(row["tags"], &parts)
	default:
		doc.EntityType = str(row, "entity_type")
		doc.Title = str(row, "title")
		if doc.Title == "" {
			doc.Title = doc.EntityType
		}
		flatten(row["data"], &parts)
	}
	doc.Text = strings.Join(parts, " ")
	return doc
}

func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
