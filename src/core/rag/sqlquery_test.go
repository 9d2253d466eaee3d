package rag_test

import (
	"testing"

	"ragmix/src/core/rag"
)

func TestSanitizeSQL(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		table string
		limit int
		want  string
	}{
		{
			name:  "plain select passes through",
			raw:   `SELECT region, SUM(revenue) FROM "sales_data_1" GROUP BY region;`,
			table: "sales_data_1",
			limit: 10,
			want:  `SELECT region, SUM(revenue) FROM "sales_data_1" GROUP BY region`,
		},
		{
			name:  "markdown fencing stripped",
			raw:   "```sql\nSELECT * FROM \"sales_data_1\";\n```",
			table: "sales_data_1",
			limit: 10,
			want:  `SELECT * FROM "sales_data_1"`,
		},
		{
			name:  "only first statement kept",
			raw:   `SELECT a FROM "t"; DROP TABLE "t";`,
			table: "t",
			limit: 5,
			want:  `SELECT a FROM "t"`,
		},
		{
			name:  "backticks become double quotes",
			raw:   "SELECT `region` FROM `sales_data_1`;",
			table: "sales_data_1",
			limit: 10,
			want:  `SELECT "region" FROM "sales_data_1"`,
		},
		{
			name:  "lowercase select accepted",
			raw:   `select count(*) from "t";`,
			table: "t",
			limit: 5,
			want:  `select count(*) from "t"`,
		},
		{
			name:  "delete replaced by fallback scan",
			raw:   `DELETE FROM "sales_data_1";`,
			table: "sales_data_1",
			limit: 10,
			want:  `SELECT * FROM "sales_data_1" LIMIT 10`,
		},
		{
			name:  "drop replaced by fallback scan",
			raw:   `DROP TABLE "sales_data_1";`,
			table: "sales_data_1",
			limit: 3,
			want:  `SELECT * FROM "sales_data_1" LIMIT 3`,
		},
		{
			name:  "update replaced by fallback scan",
			raw:   `UPDATE "t" SET a = 1;`,
			table: "t",
			limit: 3,
			want:  `SELECT * FROM "t" LIMIT 3`,
		},
		{
			name:  "commentary before statement replaced",
			raw:   `Here is the query you asked for: SELECT * FROM "t";`,
			table: "t",
			limit: 3,
			want:  `SELECT * FROM "t" LIMIT 3`,
		},
		{
			name:  "empty reply replaced",
			raw:   "",
			table: "t",
			limit: 7,
			want:  `SELECT * FROM "t" LIMIT 7`,
		},
		{
			name:  "whitespace only replaced",
			raw:   "   \n\t  ",
			table: "t",
			limit: 7,
			want:  `SELECT * FROM "t" LIMIT 7`,
		},
		{
			name:  "missing semicolon still accepted",
			raw:   `SELECT a FROM "t"`,
			table: "t",
			limit: 5,
			want:  `SELECT a FROM "t"`,
		},
		{
			name:  "leading whitespace trimmed",
			raw:   "\n\n  SELECT a FROM \"t\";",
			table: "t",
			limit: 5,
			want:  `SELECT a FROM "t"`,
		},
		{
			name:  "fenced non select replaced",
			raw:   "```sql\nTRUNCATE TABLE \"t\";\n```",
			table: "t",
			limit: 5,
			want:  `SELECT * FROM "t" LIMIT 5`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rag.SanitizeSQL(tt.raw, tt.table, tt.limit); got != tt.want {
				t.Errorf("SanitizeSQL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestEnsureLimit(t *testing.T) {
	tests := []struct {
		name  string
		query string
		limit int
		want  string
	}{
		{
			name:  "appends when missing",
			query: `SELECT * FROM "t"`,
			limit: 50,
			want:  `SELECT * FROM "t" LIMIT 50`,
		},
		{
			name:  "keeps existing limit",
			query: `SELECT * FROM "t" LIMIT 5`,
			limit: 50,
			want:  `SELECT * FROM "t" LIMIT 5`,
		},
		{
			name:  "keeps lowercase limit",
			query: `select * from "t" limit 5`,
			limit: 50,
			want:  `select * from "t" limit 5`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rag.EnsureLimit(tt.query, tt.limit); got != tt.want {
				t.Errorf("EnsureLimit(%q, %d) = %q, want %q", tt.query, tt.limit, got, tt.want)
			}
		})
	}
}

func TestFallbackTableName(t *testing.T) {
	if got := rag.FallbackTableName(rag.ModalityCSV, 42); got != "csv_data_42" {
		t.Errorf("FallbackTableName(csv, 42) = %q, want %q", got, "csv_data_42")
	}
	if got := rag.FallbackTableName(rag.ModalityXLSX, 7); got != "xlsx_data_7" {
		t.Errorf("FallbackTableName(xlsx, 7) = %q, want %q", got, "xlsx_data_7")
	}
}
