package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/logging"
)

// registerExecuteQueryTool adds execute_query. Rejections and driver failures
// come back as the QueryResult error fields, not as tool errors.
func registerExecuteQueryTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"execute_query",
		mcp.WithDescription(
			"Run a single read-only SELECT against a registered connection. "+
				"Write statements, multiple statements and comments containing write keywords are rejected with UNSAFE_QUERY. "+
				"Results are paged; page_size is capped at 1000 rows.",
		),
		mcp.WithString("connection_id", mcp.Required(), mcp.Description("Connection id from the registry")),
		mcp.WithString("sql", mcp.Required(), mcp.Description("The SELECT statement to run")),
		mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
		mcp.WithNumber("page_size", mcp.Description("Rows per page (default 100, max 1000)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		connectionID, err := req.RequireString("connection_id")
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}
		sql, err := req.RequireString("sql")
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}

		result := deps.Queries.Execute(ctx, connectionID, sql,
			getOptionalInt(req, "page", 1), getOptionalInt(req, "page_size", 0))
		if !result.OK {
			deps.Logger.Debug("execute_query returned an error result",
				zap.String("connection_id", connectionID),
				zap.String("sql", logging.SanitizeQuery(sql)),
				zap.String("code", string(result.ErrorCode)))
		}
		return jsonResult(result)
	})
}
