package mssql

import (
	"fmt"
	"strings"
)

// Dialect generates SQL Server catalog and profiling statements.
type Dialect struct{}

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

// QuoteIdentifier quotes like QUOTENAME: square brackets with ] doubled.
func (Dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d Dialect) QualifiedTable(schema, table string) string {
	if schema == "" {
		schema = "dbo"
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

func (Dialect) ListSchemasSQL() string {
	return `SELECT s.name AS schema_name
		FROM sys.schemas s
		WHERE s.name NOT IN ('sys', 'INFORMATION_SCHEMA', 'guest')
		  AND s.name NOT LIKE 'db[_]%'
		ORDER BY s.name`
}

func (Dialect) ListTablesSQL() string {
	return `SELECT TABLE_SCHEMA AS table_schema, TABLE_NAME AS table_name, TABLE_TYPE AS table_type
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1
		ORDER BY TABLE_NAME`
}

func (Dialect) ColumnsSQL() string {
	return `SELECT COLUMN_NAME AS column_name, DATA_TYPE AS data_type, IS_NULLABLE AS is_nullable,
		       ORDINAL_POSITION AS ordinal_position, COLUMN_DEFAULT AS column_default
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION`
}

func (Dialect) RowEstimateSQL() string {
	return `SELECT SUM(p.rows) AS estimate
		FROM sys.partitions p
		JOIN sys.tables t ON t.object_id = p.object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		WHERE s.name = @p1 AND t.name = @p2 AND p.index_id IN (0, 1)`
}

func (d Dialect) CountSQL(schema, table string) string {
	return fmt.Sprintf("SELECT COUNT_BIG(*) AS estimate FROM %s", d.QualifiedTable(schema, table))
}

func (d Dialect) SampleSQL(schema, table string, limit int, tableSample bool, percent float64) string {
	from := d.QualifiedTable(schema, table)
	if tableSample {
		from = fmt.Sprintf("%s TABLESAMPLE SYSTEM (%s PERCENT)", from, formatPercent(percent))
	}
	return fmt.Sprintf("SELECT TOP (%d) * FROM %s", limit, from)
}

func (d Dialect) ColumnStatsSQL(source, column string, numeric bool) string {
	col := d.QuoteIdentifier(column)
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT COUNT_BIG(*) AS total, COUNT_BIG(%s) AS non_null, COUNT_BIG(DISTINCT %s) AS distinct_count", col, col)
	if numeric {
		fmt.Fprintf(&b, ", CAST(MIN(%s) AS FLOAT) AS min_value, CAST(MAX(%s) AS FLOAT) AS max_value, AVG(CAST(%s AS FLOAT)) AS avg_value", col, col, col)
	}
	fmt.Fprintf(&b, " FROM (%s) AS _sample", source)
	return b.String()
}

func (d Dialect) TopValuesSQL(source, column string, limit int) string {
	col := d.QuoteIdentifier(column)
	return fmt.Sprintf(
		"SELECT TOP (%d) CAST(%s AS NVARCHAR(4000)) AS [value], COUNT_BIG(*) AS [count] FROM (%s) AS _sample WHERE %s IS NOT NULL GROUP BY %s ORDER BY COUNT_BIG(*) DESC",
		limit, col, source, col, col,
	)
}

func (Dialect) IsNumericType(dataType string) bool {
	return isNumericType(dataType)
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
