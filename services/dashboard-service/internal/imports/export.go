package imports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/xuri/excelize/v2"

	"github.com/md-rashed-zaman/bizdash/services/dashboard-service/internal/crud"
)

const (
	exportSheet = "Records"
	MaxExport   = 10000
)

var exportColumns = []string{"id", "entity_type", "title", "stage_id", "amount_cents", "created_at"}

// LoadRecords reads live records for export, newest first.
func LoadRecords(ctx context.Context, tx pgx.Tx, tenantID, entityType string) ([]crud.Row, error) {
	rows, err := tx.Query(ctx, `
		SELECT to_jsonb(t)
		FROM records t
		WHERE t.user_id = $1 AND t.deleted_at IS NULL AND ($2 = '' OR t.entity_type = $2)
		ORDER BY t.created_at DESC, t.id
		LIMIT $3`, tenantID, entityType, MaxExport)
	if err != nil {
		return nil, err
	}
	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}
	out := make([]crud.Row, 0, len(raws))
	for _, raw := range raws {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var row crud.Row
		if err := dec.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// dataKeys is the sorted union of the top-level data keys across rows.
func dataKeys(rows []crud.Row) []string {
	set := map[string]bool{}
	for _, row := range rows {
		if m, ok := row["data"].(map[string]any); ok {
			for k := range m {
				set[k] = true
			}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool:
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// WriteXLSX renders rows as a workbook: fixed record columns first, then
// one column per data key.
func WriteXLSX(rows []crud.Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	keys := dataKeys(rows)
	headers := append(append([]string{}, exportColumns...), keys...)

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(exportSheet, "A1", last, bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, row := range rows {
		data, _ := row["data"].(map[string]any)
		values := make([]any, 0, len(headers))
		for _, c := range exportColumns {
			values = append(values, cellValue(row[c]))
		}
		for _, k := range keys {
			values = append(values, cellValue(data[k]))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// exportName is the attachment filename for an export.
func exportName(entityType string) string {
	if entityType == "" {
		return "records.xlsx"
	}
	return strings.ReplaceAll(entityType, "_", "-") + ".xlsx"
}
