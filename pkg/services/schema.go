package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/observability"
)

const maxTopValues = 100

// SchemaService introspects and profiles target tables. It never opens its
// own connections: every statement goes through QueryService.Run.
type SchemaService interface {
	ListSchemas(ctx context.Context, connectionID string) ([]string, error)
	ListTables(ctx context.Context, connectionID, schema string) ([]models.TableInfo, error)
	GetColumns(ctx context.Context, connectionID, schema, table string) ([]models.ColumnInfo, error)

	// ProfileTable samples the table and computes per-column statistics.
	// maxDistinct <= 0 uses the configured default.
	ProfileTable(ctx context.Context, connectionID, schema, table string, maxDistinct int) (*models.TableProfile, error)

	// SampleRows returns up to n rows of the table.
	SampleRows(ctx context.Context, connectionID, schema, table string, n int) (*datasource.QueryExecutionResult, error)
}

type schemaService struct {
	connections ConnectionOpener
	query       QueryService
	cfg         config.ProfilingConfig
	logger      *zap.Logger
}

// NewSchemaService creates a new schema introspector.
func NewSchemaService(connections ConnectionOpener, query QueryService, cfg config.ProfilingConfig, logger *zap.Logger) SchemaService {
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = 10000
	}
	if cfg.SampleThresholdRows <= 0 {
		cfg.SampleThresholdRows = 100000
	}
	if cfg.MaxDistinct <= 0 {
		cfg.MaxDistinct = 10
	}
	if cfg.ColumnConcurrency <= 0 {
		cfg.ColumnConcurrency = 4
	}
	return &schemaService{
		connections: connections,
		query:       query,
		cfg:         cfg,
		logger:      logger.Named("schema"),
	}
}

var _ SchemaService = (*schemaService)(nil)

func (s *schemaService) ListSchemas(ctx context.Context, connectionID string) ([]string, error) {
	conn, err := s.connections.Open(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	res, err := s.query.Run(ctx, conn, datasource.QueryRequest{SQL: conn.Dialect.ListSchemasSQL()})
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	schemas := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		schemas = append(schemas, toString(row["schema_name"]))
	}
	return schemas, nil
}

func (s *schemaService) ListTables(ctx context.Context, connectionID, schema string) ([]models.TableInfo, error) {
	conn, err := s.connections.Open(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	res, err := s.query.Run(ctx, conn, datasource.QueryRequest{
		SQL:    conn.Dialect.ListTablesSQL(),
		Params: []any{schema},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]models.TableInfo, 0, len(res.Rows))
	for _, row := range res.Rows {
		tables = append(tables, models.TableInfo{
			Schema: toString(row["table_schema"]),
			Name:   toString(row["table_name"]),
			Type:   toString(row["table_type"]),
		})
	}
	return tables, nil
}

func (s *schemaService) GetColumns(ctx context.Context, connectionID, schema, table string) ([]models.ColumnInfo, error) {
	conn, err := s.connections.Open(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return s.columns(ctx, conn, schema, table)
}

func (s *schemaService) columns(ctx context.Context, conn *datasource.Connection, schema, table string) ([]models.ColumnInfo, error) {
	res, err := s.query.Run(ctx, conn, datasource.QueryRequest{
		SQL:    conn.Dialect.ColumnsSQL(),
		Params: []any{schema, table},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%w: table %s.%s", apperrors.ErrNotFound, schema, table)
	}

	columns := make([]models.ColumnInfo, 0, len(res.Rows))
	for _, row := range res.Rows {
		col := models.ColumnInfo{
			Name:            toString(row["column_name"]),
			DataType:        toString(row["data_type"]),
			IsNullable:      strings.EqualFold(toString(row["is_nullable"]), "YES"),
			OrdinalPosition: int(toInt64(row["ordinal_position"])),
		}
		if def := row["column_default"]; def != nil {
			v := toString(def)
			col.Default = &v
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func (s *schemaService) ProfileTable(ctx context.Context, connectionID, schema, table string, maxDistinct int) (*models.TableProfile, error) {
	if maxDistinct <= 0 {
		maxDistinct = s.cfg.MaxDistinct
	}
	if maxDistinct > maxTopValues {
		maxDistinct = maxTopValues
	}

	ctx, span := observability.StartSpan(ctx, "schema.profile_table",
		attribute.String("connection.id", connectionID),
		attribute.String("table", schema+"."+table))
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	conn, err := s.connections.Open(ctx, connectionID)
	if err != nil {
		spanErr = err
		return nil, err
	}

	columns, err := s.columns(ctx, conn, schema, table)
	if err != nil {
		spanErr = err
		return nil, err
	}

	estimate := s.estimateRows(ctx, conn, schema, table)
	useSample := estimate > int64(s.cfg.SampleThresholdRows)
	percent := 0.0
	if useSample {
		// Block sampling is approximate; oversample and let LIMIT trim.
		percent = math.Min(100, float64(s.cfg.SampleRows)*150/float64(estimate))
	}
	source := conn.Dialect.SampleSQL(schema, table, s.cfg.SampleRows, useSample, percent)

	profile := &models.TableProfile{
		Schema:           schema,
		Table:            table,
		RowCountEstimate: estimate,
		UsedTableSample:  useSample,
		Columns:          make([]models.ColumnProfile, len(columns)),
		ProfiledAt:       time.Now().UTC(),
	}

	totals := make([]int64, len(columns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ColumnConcurrency)
	for i, col := range columns {
		g.Go(func() error {
			profile.Columns[i], totals[i] = s.profileColumn(gctx, conn, source, col, maxDistinct)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		spanErr = err
		return nil, fmt.Errorf("failed to profile %s.%s: %w", schema, table, err)
	}

	for _, total := range totals {
		if total > profile.SampledRows {
			profile.SampledRows = total
		}
	}

	s.logger.Debug("Profiled table",
		zap.String("connection_id", connectionID),
		zap.String("table", schema+"."+table),
		zap.Int64("row_estimate", estimate),
		zap.Bool("table_sample", useSample),
		zap.Int("columns", len(columns)))

	return profile, nil
}

// estimateRows prefers catalog statistics and falls back to COUNT(*).
func (s *schemaService) estimateRows(ctx context.Context, conn *datasource.Connection, schema, table string) int64 {
	res, err := s.query.Run(ctx, conn, datasource.QueryRequest{
		SQL:    conn.Dialect.RowEstimateSQL(),
		Params: []any{schema, table},
		Limit:  1,
	})
	if err == nil && len(res.Rows) > 0 {
		if n := toInt64(res.Rows[0]["estimate"]); n > 0 {
			return n
		}
	}

	res, err = s.query.Run(ctx, conn, datasource.QueryRequest{SQL: conn.Dialect.CountSQL(schema, table), Limit: 1})
	if err != nil || len(res.Rows) == 0 {
		s.logger.Warn("Could not estimate row count",
			zap.String("table", schema+"."+table), zap.Error(err))
		return -1
	}
	return toInt64(res.Rows[0]["estimate"])
}

// profileColumn returns the column statistics and the number of sampled rows
// they were computed over. Failures are recorded on the profile.
func (s *schemaService) profileColumn(ctx context.Context, conn *datasource.Connection, source string, col models.ColumnInfo, maxDistinct int) (models.ColumnProfile, int64) {
	numeric := conn.Dialect.IsNumericType(col.DataType)
	profile := models.ColumnProfile{
		Name:       col.Name,
		DataType:   col.DataType,
		IsNullable: col.IsNullable,
		TopValues:  []models.ValueCount{},
	}

	stats, err := s.query.Run(ctx, conn, datasource.QueryRequest{
		SQL:   conn.Dialect.ColumnStatsSQL(source, col.Name, numeric),
		Limit: 1,
	})
	if err != nil || len(stats.Rows) == 0 {
		profile.Error = errorText(err, "no statistics returned")
		return profile, 0
	}

	row := stats.Rows[0]
	total := toInt64(row["total"])
	nonNull := toInt64(row["non_null"])
	profile.DistinctCount = toInt64(row["distinct_count"])
	if total > 0 {
		profile.NullFraction = float64(total-nonNull) / float64(total)
	}
	if numeric {
		profile.Min = toFloatPtr(row["min_value"])
		profile.Max = toFloatPtr(row["max_value"])
		profile.Avg = toFloatPtr(row["avg_value"])
	}

	top, err := s.query.Run(ctx, conn, datasource.QueryRequest{
		SQL:   conn.Dialect.TopValuesSQL(source, col.Name, maxDistinct),
		Limit: maxDistinct,
	})
	if err != nil {
		profile.Error = errorText(err, "")
		return profile, total
	}
	for _, r := range top.Rows {
		profile.TopValues = append(profile.TopValues, models.ValueCount{
			Value: toString(r["value"]),
			Count: toInt64(r["count"]),
		})
	}
	return profile, total
}

func (s *schemaService) SampleRows(ctx context.Context, connectionID, schema, table string, n int) (*datasource.QueryExecutionResult, error) {
	if n <= 0 {
		n = s.cfg.PromptSampleRows
	}
	if n <= 0 || n > datasource.MaxQueryLimit {
		n = datasource.MaxQueryLimit
	}

	conn, err := s.connections.Open(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	res, err := s.query.Run(ctx, conn, datasource.QueryRequest{
		SQL:   conn.Dialect.SampleSQL(schema, table, n, false, 0),
		Limit: n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s.%s: %w", schema, table, err)
	}
	return res, nil
}

func errorText(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
