package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource"
)

// QueryExecutor runs validated statements against SQL Server. go-mssqldb has
// no read-only transaction mode, so statements run in a transaction that is
// always rolled back, on a session opened with ApplicationIntent=ReadOnly.
type QueryExecutor struct {
	db *sql.DB
}

// NewQueryExecutor creates a SQL Server query executor using the connection manager.
// If connMgr is nil, opens an unmanaged connection (tests).
func NewQueryExecutor(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, key string) (*QueryExecutor, error) {
	open := func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open("sqlserver", cfg.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("open SQL auth connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("connection test failed: %w", err)
		}
		return db, nil
	}

	if connMgr == nil {
		db, err := open(ctx)
		if err != nil {
			return nil, err
		}
		return &QueryExecutor{db: db}, nil
	}

	connector, err := connMgr.GetOrCreate(ctx, key, func(ctx context.Context) (datasource.PoolConnector, error) {
		db, err := open(ctx)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(int(connMgr.PoolMaxConns()))
		db.SetMaxIdleConns(int(connMgr.PoolMinConns()))
		db.SetConnMaxIdleTime(connMgr.TTL())
		return datasource.NewMSSQLPoolWrapper(db), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	db, err := datasource.GetMSSQLDB(connector)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{db: db}, nil
}

var leadingWith = regexp.MustCompile(`(?i)^\s*WITH\b`)

// Query runs req.SQL with paging. Statements starting with WITH cannot be
// nested in a derived table on SQL Server, so those are paged while reading
// and their total is reported as unknown.
func (e *QueryExecutor) Query(ctx context.Context, req datasource.QueryRequest) (*datasource.QueryExecutionResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // always discarded

	if req.Timeout > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCK_TIMEOUT %d", req.Timeout.Milliseconds())); err != nil {
			return nil, fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	limit := req.Limit
	if limit <= 0 || limit > datasource.MaxQueryLimit {
		limit = datasource.MaxQueryLimit
	}

	cte := leadingWith.MatchString(req.SQL)
	query, skip := req.SQL, req.Offset
	if !cte {
		query, skip = wrapLimit(req.SQL, limit, req.Offset), 0
	}

	result, err := collectRows(ctx, tx, query, req.Params, skip, limit)
	if err != nil {
		return nil, err
	}

	result.TotalRows = -1
	if req.CountTotal && !cte {
		var total int64
		countSQL := fmt.Sprintf("SELECT COUNT_BIG(*) FROM (%s) AS _counted", req.SQL)
		if err := tx.QueryRowContext(ctx, countSQL, req.Params...).Scan(&total); err == nil {
			result.TotalRows = total
		}
	}

	return result, nil
}

func wrapLimit(query string, limit, offset int) string {
	if offset > 0 {
		return fmt.Sprintf("SELECT * FROM (%s) AS _limited ORDER BY (SELECT NULL) OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", query, offset, limit)
	}
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", limit, query)
}

func collectRows(ctx context.Context, tx *sql.Tx, query string, params []any, skip, limit int) (*datasource.QueryExecutionResult, error) {
	rows, err := tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]datasource.ColumnInfo, len(columnTypes))
	for i, ct := range columnTypes {
		columns[i] = datasource.ColumnInfo{
			Name: ct.Name(),
			Type: strings.ToUpper(ct.DatabaseTypeName()),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if skip > 0 {
			skip--
			continue
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = normalizeValue(col.Type, values[i])
		}
		resultRows = append(resultRows, rowMap)

		if len(resultRows) >= limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// normalizeValue converts driver values into JSON-friendly Go values.
func normalizeValue(dbType string, v any) any {
	switch val := v.(type) {
	case []byte:
		if dbType == "UNIQUEIDENTIFIER" {
			var id mssqldb.UniqueIdentifier
			if err := id.Scan(val); err == nil {
				return id.String()
			}
		}
		if decodesAsString(dbType) {
			return string(val)
		}
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
