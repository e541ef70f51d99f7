package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/logging"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/observability"
	sqlsafety "github.com/ekaya-inc/ekaya-dictionary/pkg/sql"
)

// ConnectionOpener resolves connection ids to executors.
// *datasource.ConnectionRegistry satisfies it.
type ConnectionOpener interface {
	IDs() []string
	Open(ctx context.Context, id string) (*datasource.Connection, error)
}

// QueryError is a validation or execution failure carried as a value.
type QueryError struct {
	Code    apperrors.Code
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// QueryService is the single gate between callers and target databases.
// Every statement is validated as a lone SELECT before any executor sees it.
type QueryService interface {
	// Execute runs a read-only query for an external caller. It never returns
	// an error; failures come back as QueryResult{OK: false}.
	Execute(ctx context.Context, connectionID, sql string, page, pageSize int) *models.QueryResult

	// ExecuteWithParams is Execute with positional parameters; string
	// parameters are screened for injection first.
	ExecuteWithParams(ctx context.Context, connectionID, sql string, params []any, page, pageSize int) *models.QueryResult

	// Run validates and executes a statement on an open connection. Used by
	// the schema introspector so generated catalog SQL takes the same path.
	// Failures are returned as *QueryError.
	Run(ctx context.Context, conn *datasource.Connection, req datasource.QueryRequest) (*datasource.QueryExecutionResult, error)
}

type queryService struct {
	connections ConnectionOpener
	cfg         config.QueryConfig
	logger      *zap.Logger
}

// NewQueryService creates a new query service.
func NewQueryService(connections ConnectionOpener, cfg config.QueryConfig, logger *zap.Logger) QueryService {
	if cfg.MaxRows <= 0 || cfg.MaxRows > datasource.MaxQueryLimit {
		cfg.MaxRows = datasource.MaxQueryLimit
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 100
	}
	if cfg.StatementTimeoutSeconds <= 0 {
		cfg.StatementTimeoutSeconds = 30
	}
	return &queryService{
		connections: connections,
		cfg:         cfg,
		logger:      logger.Named("query"),
	}
}

var _ QueryService = (*queryService)(nil)

func (s *queryService) Execute(ctx context.Context, connectionID, sql string, page, pageSize int) *models.QueryResult {
	return s.ExecuteWithParams(ctx, connectionID, sql, nil, page, pageSize)
}

func (s *queryService) ExecuteWithParams(ctx context.Context, connectionID, sql string, params []any, page, pageSize int) *models.QueryResult {
	page, pageSize = s.normalizePaging(page, pageSize)

	validation := sqlsafety.ValidateReadOnly(sql)
	if validation.Error != nil {
		s.logger.Info("Rejected unsafe query",
			zap.String("connection_id", connectionID),
			zap.String("sql", logging.SanitizeQuery(sql)),
			zap.Error(validation.Error))
		return models.QueryFailure(apperrors.CodeUnsafeQuery, validation.Error.Error())
	}

	if flagged := sqlsafety.CheckParameters(params); flagged != nil {
		s.logger.Warn("Rejected query parameter",
			zap.String("connection_id", connectionID),
			zap.Int("position", flagged.Position),
			zap.String("fingerprint", flagged.Fingerprint))
		return models.QueryFailure(apperrors.CodeUnsafeQuery, flagged.Error())
	}

	conn, err := s.connections.Open(ctx, connectionID)
	if err != nil {
		return models.QueryFailure(apperrors.CodeExecutionError, logging.SanitizeError(err))
	}

	start := time.Now()
	res, err := s.execute(ctx, conn, datasource.QueryRequest{
		SQL:        validation.NormalizedSQL,
		Params:     params,
		Limit:      pageSize,
		Offset:     (page - 1) * pageSize,
		CountTotal: true,
	})
	if err != nil {
		var qe *QueryError
		if errors.As(err, &qe) {
			return models.QueryFailure(qe.Code, qe.Message)
		}
		return models.QueryFailure(apperrors.CodeExecutionError, logging.SanitizeError(err))
	}

	return &models.QueryResult{
		OK:                true,
		Columns:           toQueryColumns(res.Columns),
		Rows:              res.Rows,
		RowCount:          res.RowCount,
		TotalRowsEstimate: res.TotalRows,
		ExecutionTimeMs:   time.Since(start).Milliseconds(),
		Page:              page,
		PageSize:          pageSize,
	}
}

func (s *queryService) Run(ctx context.Context, conn *datasource.Connection, req datasource.QueryRequest) (*datasource.QueryExecutionResult, error) {
	validation := sqlsafety.ValidateReadOnly(req.SQL)
	if validation.Error != nil {
		return nil, &QueryError{Code: apperrors.CodeUnsafeQuery, Message: validation.Error.Error()}
	}
	req.SQL = validation.NormalizedSQL
	return s.execute(ctx, conn, req)
}

// execute applies the row cap and statement timeout and converts driver
// failures into sanitized EXECUTION_ERROR values.
func (s *queryService) execute(ctx context.Context, conn *datasource.Connection, req datasource.QueryRequest) (*datasource.QueryExecutionResult, error) {
	if req.Limit <= 0 || req.Limit > s.cfg.MaxRows {
		req.Limit = s.cfg.MaxRows
	}
	timeout := s.cfg.StatementTimeout()
	req.Timeout = timeout

	ctx, span := observability.StartSpan(ctx, "query.execute",
		attribute.String("connection.id", conn.ID),
		attribute.String("connection.type", conn.Type),
		attribute.Int("query.limit", req.Limit))
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := conn.Executor.Query(ctx, req)
	if err != nil {
		spanErr = err
		msg := logging.SanitizeDriverError(err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("query exceeded statement timeout of %s", timeout)
		}
		s.logger.Warn("Query execution failed",
			zap.String("connection_id", conn.ID),
			zap.String("sql", logging.SanitizeQuery(req.SQL)),
			zap.String("error", msg))
		return nil, &QueryError{Code: apperrors.CodeExecutionError, Message: msg}
	}

	if len(res.Rows) > req.Limit {
		res.Rows = res.Rows[:req.Limit]
		res.RowCount = req.Limit
	}
	return res, nil
}

func (s *queryService) normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxRows {
		pageSize = s.cfg.MaxRows
	}
	return page, pageSize
}

func toQueryColumns(cols []datasource.ColumnInfo) []models.QueryColumn {
	out := make([]models.QueryColumn, len(cols))
	for i, c := range cols {
		out[i] = models.QueryColumn{Name: c.Name, Type: c.Type}
	}
	return out
}
