package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource"
)

// QueryExecutor runs validated statements against PostgreSQL inside a
// READ ONLY transaction that is always rolled back.
type QueryExecutor struct {
	pool *pgxpool.Pool
}

// NewQueryExecutor creates a PostgreSQL query executor using the connection manager.
// If connMgr is nil, creates an unmanaged pool (tests).
func NewQueryExecutor(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, key string) (*QueryExecutor, error) {
	connStr := cfg.ConnectionString()

	if connMgr == nil {
		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return &QueryExecutor{pool: pool}, nil
	}

	connector, err := connMgr.GetOrCreate(ctx, key, func(ctx context.Context) (datasource.PoolConnector, error) {
		poolConfig, err := pgxpool.ParseConfig(connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}
		poolConfig.MaxConns = connMgr.PoolMaxConns()
		poolConfig.MinConns = connMgr.PoolMinConns()
		poolConfig.MaxConnIdleTime = connMgr.TTL()

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return datasource.NewPostgresPoolWrapper(pool), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	pool, err := datasource.GetPostgresPool(connector)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{pool: pool}, nil
}

// NewQueryExecutorFromPool wraps an existing pool.
func NewQueryExecutorFromPool(pool *pgxpool.Pool) *QueryExecutor {
	return &QueryExecutor{pool: pool}
}

// Query runs req.SQL wrapped with LIMIT/OFFSET. When req.CountTotal is set the
// total row count is computed in the same transaction; if counting fails the
// total is reported as -1.
func (e *QueryExecutor) Query(ctx context.Context, req datasource.QueryRequest) (*datasource.QueryExecutionResult, error) {
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only, always discarded

	if req.Timeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", req.Timeout.Milliseconds())); err != nil {
			return nil, fmt.Errorf("failed to set statement timeout: %w", err)
		}
	}

	result, err := collectRows(ctx, tx, wrapLimit(req), req.Params)
	if err != nil {
		return nil, err
	}

	result.TotalRows = -1
	if req.CountTotal {
		var total int64
		countSQL := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS _counted", req.SQL)
		if err := tx.QueryRow(ctx, countSQL, req.Params...).Scan(&total); err == nil {
			result.TotalRows = total
		}
	}

	return result, nil
}

func wrapLimit(req datasource.QueryRequest) string {
	limit := req.Limit
	if limit <= 0 || limit > datasource.MaxQueryLimit {
		limit = datasource.MaxQueryLimit
	}
	if req.Offset > 0 {
		return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d OFFSET %d", req.SQL, limit, req.Offset)
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", req.SQL, limit)
}

func collectRows(ctx context.Context, tx pgx.Tx, query string, params []any) (*datasource.QueryExecutionResult, error) {
	rows, err := tx.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{
			Name: fd.Name,
			Type: pgTypeNameFromOID(fd.DataTypeOID),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
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

// normalizeValue converts pgx values into JSON-friendly Go values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if f, err := val.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return new(big.Float).SetInt(val.Int).String()
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(val)
	default:
		return v
	}
}

func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case 16:
		return "BOOL"
	case 17:
		return "BYTEA"
	case 18:
		return "CHAR"
	case 20:
		return "INT8"
	case 21:
		return "INT2"
	case 23:
		return "INT4"
	case 25:
		return "TEXT"
	case 26:
		return "OID"
	case 114:
		return "JSON"
	case 142:
		return "XML"
	case 700:
		return "FLOAT4"
	case 701:
		return "FLOAT8"
	case 790:
		return "MONEY"
	case 1042:
		return "BPCHAR"
	case 1043:
		return "VARCHAR"
	case 1082:
		return "DATE"
	case 1083:
		return "TIME"
	case 1114:
		return "TIMESTAMP"
	case 1184:
		return "TIMESTAMPTZ"
	case 1186:
		return "INTERVAL"
	case 1266:
		return "TIMETZ"
	case 1700:
		return "NUMERIC"
	case 2950:
		return "UUID"
	case 3802:
		return "JSONB"
	// Array types
	case 1000:
		return "BOOL[]"
	case 1005:
		return "INT2[]"
	case 1007:
		return "INT4[]"
	case 1016:
		return "INT8[]"
	case 1009:
		return "TEXT[]"
	case 1015:
		return "VARCHAR[]"
	case 1021:
		return "FLOAT4[]"
	case 1022:
		return "FLOAT8[]"
	case 2951:
		return "UUID[]"
	case 3807:
		return "JSONB[]"
	default:
		return "UNKNOWN"
	}
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
