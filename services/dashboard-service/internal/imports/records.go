package imports

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/crud"
)

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type Report struct {
	Inserted int        `json:"inserted"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

type Options struct {
	EntityType   string
	Mapping      map[string]string
	KeepUnmapped bool
}

// Validate checks the options against the uploaded headers. Headers the
// mapping does not mention are treated as skipped.
func (o Options) Validate(headers []string) error {
	if o.EntityType == "" {
		return apperr.BadRequest("entity_type is required")
	}
	if !dataKey.MatchString(o.EntityType) {
		return apperr.BadRequest("entity_type must be lowercase letters, digits and underscores")
	}
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}
	used := map[string]string{}
	for h, f := range o.Mapping {
		if !known[h] {
			return apperr.Badf("mapping refers to unknown column %q", h)
		}
		if !ValidTarget(f) {
			return apperr.Badf("invalid target %q for column %q", f, h)
		}
		if f == FieldSkip {
			continue
		}
		if prev, dup := used[f]; dup {
			return apperr.Badf("columns %q and %q both map to %q", prev, h, f)
		}
		used[f] = h
	}
	return nil
}

// ParseAmount reads "$1,234.50", "1234.5" or "-12" as cents.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return -1
	}, s)
	if s == "" || s == "-" {
		return 0, fmt.Errorf("not a number")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.Abs(f) > 1e12 {
		return 0, fmt.Errorf("amount out of range")
	}
	cents := int64(math.Round(f * 100))
	if neg {
		cents = -cents
	}
	return cents, nil
}

// Build converts table rows into validated record inputs. Rows that carry
// no mapped value are skipped; invalid rows are reported and left out.
// Row numbers in errors are 1-based spreadsheet rows, the header being 1.
func Build(res *crud.Resource, t Table, o Options) ([]crud.Input, Report) {
	rep := Report{Errors: []RowError{}}
	var out []crud.Input
	for i, row := range t.Rows {
		line := i + 2
		body := map[string]any{"entity_type": o.EntityType}
		data := map[string]any{}
		extra := map[string]any{}
		mapped := false
		var rowErr string
		for c, h := range t.Headers {
			v := row[c]
			target := o.Mapping[h]
			if target == FieldSkip {
				if o.KeepUnmapped && v != "" {
					extra[h] = v
				}
				continue
			}
			if v == "" {
				continue
			}
			mapped = true
			switch target {
			case FieldTitle, FieldStage:
				body[target] = v
			case FieldAmount:
				cents, err := ParseAmount(v)
				if err != nil {
					rowErr = fmt.Sprintf("%s: %v", h, err)
				}
				body[target] = json.Number(strconv.FormatInt(cents, 10))
			default:
				data[target] = v
			}
		}
		if !mapped {
			rep.Skipped++
			continue
		}
		if rowErr != "" {
			rep.Errors = append(rep.Errors, RowError{Row: line, Message: rowErr})
			continue
		}
		if len(extra) > 0 {
			data["extra"] = extra
		}
		if _, ok := body[FieldTitle]; !ok {
			if n, ok := data["name"].(string); ok {
				body[FieldTitle] = n
			}
		}
		body["data"] = data
		in, err := res.Decode(body, false)
		if err != nil {
			rep.Errors = append(rep.Errors, RowError{Row: line, Message: apperr.As(err).Message})
			continue
		}
		out = append(out, in)
	}
	return out, rep
}

var insertColumns = []string{"entity_type", "title", "data", "stage_id", "amount_cents"}

// insertBatch writes up to BatchSize rows with one multi-row INSERT and
// returns the created rows.
func insertBatch(ctx context.Context, tx pgx.Tx, tenantID string, batch []crud.Input) ([]crud.Row, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	args := []any{tenantID}
	values := make([]string, 0, len(batch))
	for _, in := range batch {
		marks := []string{"$1"}
		for _, col := range insertColumns {
			args = append(args, in[col])
			mark := "$" + strconv.Itoa(len(args))
			if col == "data" {
				mark += "::jsonb"
			}
			marks = append(marks, mark)
		}
		values = append(values, "("+strings.Join(marks, ", ")+")")
	}
	rows, err := tx.Query(ctx, `
		INSERT INTO records AS t (user_id, `+strings.Join(insertColumns, ", ")+`)
		VALUES `+strings.Join(values, ",\n")+`
		RETURNING to_jsonb(t)`, args...)
	if err != nil {
		return nil, err
	}
	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}
	out := make([]crud.Row, 0, len(raws))
	for _, raw := range raws {
		var row crud.Row
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Insert writes inputs in batches inside tx.
func Insert(ctx context.Context, tx pgx.Tx, tenantID string, inputs []crud.Input) ([]crud.Row, error) {
	var created []crud.Row
	for start := 0; start < len(inputs); start += BatchSize {
		end := min(start+BatchSize, len(inputs))
		rows, err := insertBatch(ctx, tx, tenantID, inputs[start:end])
		if err != nil {
			return nil, apperr.FromDB(err, "record")
		}
		created = append(created, rows...)
	}
	return created, nil
}
