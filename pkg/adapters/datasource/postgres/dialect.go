package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Dialect generates PostgreSQL catalog and profiling statements.
type Dialect struct{}

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// QuoteIdentifier safely quotes a PostgreSQL identifier.
func (Dialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (d Dialect) QualifiedTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

func (Dialect) ListSchemasSQL() string {
	return `SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		  AND schema_name NOT LIKE 'pg_temp_%'
		  AND schema_name NOT LIKE 'pg_toast_temp_%'
		ORDER BY schema_name`
}

func (Dialect) ListTablesSQL() string {
	return `SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name`
}

func (Dialect) ColumnsSQL() string {
	return `SELECT column_name, data_type, is_nullable, ordinal_position, column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`
}

func (Dialect) RowEstimateSQL() string {
	return `SELECT GREATEST(c.reltuples, 0)::bigint AS estimate
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2`
}

func (d Dialect) CountSQL(schema, table string) string {
	return fmt.Sprintf("SELECT COUNT(*) AS estimate FROM %s", d.QualifiedTable(schema, table))
}

func (d Dialect) SampleSQL(schema, table string, limit int, tableSample bool, percent float64) string {
	from := d.QualifiedTable(schema, table)
	if tableSample {
		from = fmt.Sprintf("%s TABLESAMPLE SYSTEM (%s)", from, formatPercent(percent))
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", from, limit)
}

func (d Dialect) ColumnStatsSQL(source, column string, numeric bool) string {
	col := d.QuoteIdentifier(column)
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT COUNT(*) AS total, COUNT(%s) AS non_null, COUNT(DISTINCT %s) AS distinct_count", col, col)
	if numeric {
		fmt.Fprintf(&b, ", MIN(%s)::float8 AS min_value, MAX(%s)::float8 AS max_value, AVG(%s)::float8 AS avg_value", col, col, col)
	}
	fmt.Fprintf(&b, " FROM (%s) AS _sample", source)
	return b.String()
}

func (d Dialect) TopValuesSQL(source, column string, limit int) string {
	col := d.QuoteIdentifier(column)
	return fmt.Sprintf(
		"SELECT %s::text AS value, COUNT(*) AS count FROM (%s) AS _sample WHERE %s IS NOT NULL GROUP BY %s ORDER BY count DESC, value LIMIT %d",
		col, source, col, col, limit,
	)
}

// numericTypes covers both information_schema spellings (real, double
// precision) and the pg_type aliases.
var numericTypes = map[string]bool{
	"smallint": true, "integer": true, "bigint": true, "numeric": true, "decimal": true,
	"real": true, "double precision": true,
	"int2": true, "int4": true, "int8": true, "float4": true, "float8": true,
}

func (Dialect) IsNumericType(dataType string) bool {
	return numericTypes[strings.ToLower(strings.TrimSpace(dataType))]
}

func formatPercent(p float64) string {
	if p <= 0 {
		p = 0.01
	}
	if p > 100 {
		p = 100
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", p), "0"), ".")
}
