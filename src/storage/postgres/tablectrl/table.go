package tablectrl

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// bookkeeping columns added during ingestion, hidden from generated SQL
var bookkeepingColumns = map[string]struct{}{
	"id":          {},
	"source_file": {},
}

type TableService struct {
	db *gorm.DB
}

func NewTableService(db *gorm.DB) *TableService {
	return &TableService{db: db}
}

func (s *TableService) Columns(ctx context.Context, table string) ([]string, error) {
	var names []string
	result := s.db.WithContext(ctx).
		Raw(`SELECT column_name FROM information_schema.columns WHERE table_schema = 'public' AND table_name = ? ORDER BY ordinal_position`, table).
		Scan(&names)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list columns of %q: %v", table, result.Error)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("table %q has no columns", table)
	}

	columns := make([]string, 0, len(names))
	for _, name := range names {
		if _, skip := bookkeepingColumns[name]; skip {
			continue
		}
		columns = append(columns, name)
	}
	return columns, nil
}

func (s *TableService) Select(ctx context.Context, query string) ([]string, []map[string]interface{}, error) {
	rows, err := s.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to execute query: %v", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read result columns: %v", err)
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %v", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate rows: %v", err)
	}

	return columns, out, nil
}

// normalize turns driver byte slices into strings so formatted results
// stay readable.
func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
