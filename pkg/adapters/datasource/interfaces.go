package datasource

import (
	"context"
	"time"
)

// MaxQueryLimit is the absolute cap on rows returned by one query.
const MaxQueryLimit = 1000

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryRequest is a validated SELECT plus paging and safety bounds. Adapters
// wrap SQL with their own LIMIT/OFFSET syntax.
type QueryRequest struct {
	SQL        string
	Params     []any
	Limit      int
	Offset     int
	CountTotal bool
	Timeout    time.Duration
}

// QueryExecutionResult contains query results. TotalRows is -1 when unknown.
type QueryExecutionResult struct {
	Columns   []ColumnInfo     `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	TotalRows int64            `json:"total_rows"`
}

// QueryExecutor runs already-validated statements inside a read-only
// transaction that is always rolled back.
type QueryExecutor interface {
	Query(ctx context.Context, req QueryRequest) (*QueryExecutionResult, error)
}

// Dialect produces the catalog and profiling SQL of one database type. Every
// statement it returns is a single SELECT so it passes read-only validation.
type Dialect interface {
	// Placeholder returns the positional parameter marker for position n (1-based).
	Placeholder(n int) string
	QuoteIdentifier(name string) string
	QualifiedTable(schema, table string) string

	ListSchemasSQL() string
	// ListTablesSQL takes the schema as parameter 1.
	ListTablesSQL() string
	// ColumnsSQL takes schema and table as parameters 1 and 2.
	ColumnsSQL() string
	// RowEstimateSQL takes schema and table as parameters 1 and 2 and returns one row with column "estimate".
	RowEstimateSQL() string
	CountSQL(schema, table string) string

	// SampleSQL selects up to limit rows. With tableSample the adapter may
	// use its block sampling clause at the given percent.
	SampleSQL(schema, table string, limit int, tableSample bool, percent float64) string
	// ColumnStatsSQL returns total, non_null, distinct_count and, for numeric
	// columns, min_value, max_value and avg_value over source (a sample subquery).
	ColumnStatsSQL(source, column string, numeric bool) string
	// TopValuesSQL returns value and count columns ordered by count descending.
	TopValuesSQL(source, column string, limit int) string

	IsNumericType(dataType string) bool
}
