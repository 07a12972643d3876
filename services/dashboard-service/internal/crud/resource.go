// Package crud serves many tenant-scoped tables through one declarative
// Resource description: create, get, list with filters and pagination,
// partial update, and soft or hard delete.
package crud

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/validation"
)

type Kind int

const (
	Text Kind = iota
	Int
	Bool
	Time
	JSON
	UUID
)

type Column struct {
	Name  string
	Kind  Kind
	Rules string // validator tags, applied to non-null values
}

type Resource struct {
	Name            string
	Table           string
	Columns         []Column
	Required        []string
	Filterable      []string
	Sortable        []string
	Searchable      []string
	Hidden          []string // never returned
	OptionalColumns []string // may be missing on older schemas
	DefaultSort     string
	SoftDelete      bool
	ReadOnly        bool
	Indexed         bool // mirrored into the search index
}

func (res *Resource) column(name string) (Column, bool) {
	for _, c := range res.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Input is a validated column -> value map ready for SQL.
type Input map[string]any

// Decode checks a JSON object against the resource. Unknown keys are
// rejected. When partial is false every Required column must be present.
func (res *Resource) Decode(body map[string]any, partial bool) (Input, error) {
	if len(body) == 0 {
		return nil, apperr.BadRequest("request body is empty")
	}
	in := make(Input, len(body))
	for key, raw := range body {
		col, ok := res.column(key)
		if !ok {
			return nil, apperr.Badf("unknown field %q", key)
		}
		v, err := coerce(col, raw)
		if err != nil {
			return nil, err
		}
		if v == nil && contains(res.Required, key) {
			return nil, apperr.Badf("%s is required", key)
		}
		if v != nil && col.Rules != "" {
			check := v
			if b, ok := v.([]byte); ok {
				check = string(b)
			}
			if err := validation.Var(key, check, col.Rules); err != nil {
				return nil, err
			}
		}
		in[key] = v
	}
	if !partial {
		for _, req := range res.Required {
			if _, ok := in[req]; !ok {
				return nil, apperr.Badf("%s is required", req)
			}
		}
	}
	return in, nil
}

// coerce converts a decoded JSON value (numbers as json.Number) into the
// Go value pgx sends for the column.
func coerce(col Column, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch col.Kind {
	case Text:
		s, ok := raw.(string)
		if !ok {
			return nil, apperr.Badf("%s must be a string", col.Name)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		return s, nil
	case UUID:
		s, ok := raw.(string)
		if !ok {
			return nil, apperr.Badf("%s must be a uuid", col.Name)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, apperr.Badf("%s must be a uuid", col.Name)
		}
		return s, nil
	case Int:
		switch n := raw.(type) {
		case json.Number:
			v, err := n.Int64()
			if err != nil {
				return nil, apperr.Badf("%s must be an integer", col.Name)
			}
			return v, nil
		case float64:
			if n != float64(int64(n)) {
				return nil, apperr.Badf("%s must be an integer", col.Name)
			}
			return int64(n), nil
		case string:
			v, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
			if err != nil {
				return nil, apperr.Badf("%s must be an integer", col.Name)
			}
			return v, nil
		}
		return nil, apperr.Badf("%s must be an integer", col.Name)
	case Bool:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case string:
			v, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, apperr.Badf("%s must be a boolean", col.Name)
			}
			return v, nil
		}
		return nil, apperr.Badf("%s must be a boolean", col.Name)
	case Time:
		s, ok := raw.(string)
		if !ok {
			return nil, apperr.Badf("%s must be an RFC 3339 time", col.Name)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), nil
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t, nil
		}
		return nil, apperr.Badf("%s must be an RFC 3339 time", col.Name)
	case JSON:
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, apperr.Badf("%s is not valid json", col.Name)
		}
		return b, nil
	}
	return nil, fmt.Errorf("column %s has unknown kind %d", col.Name, col.Kind)
}

// FilterValue parses a query string filter for col.
func FilterValue(col Column, raw string) (any, error) {
	if col.Kind == JSON {
		return nil, apperr.Badf("cannot filter on %s", col.Name)
	}
	return coerce(col, raw)
}
