package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

type listTablesResult struct {
	ConnectionID string             `json:"connection_id"`
	Tables       []models.TableInfo `json:"tables"`
}

// registerListTablesTool adds list_tables. Without a schema argument every
// schema of the connection is listed.
func registerListTablesTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"list_tables",
		mcp.WithDescription("List the tables and views of a registered connection, optionally limited to one schema."),
		mcp.WithString("connection_id", mcp.Required(), mcp.Description("Connection id from the registry")),
		mcp.WithString("schema", mcp.Description("Optional schema name")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		connectionID, err := req.RequireString("connection_id")
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}

		schemas := []string{getOptionalString(req, "schema")}
		if schemas[0] == "" {
			schemas, err = deps.Schema.ListSchemas(ctx, connectionID)
			if err != nil {
				if result := asErrorResult(err); result != nil {
					return result, nil
				}
				return nil, fmt.Errorf("failed to list schemas: %w", err)
			}
		}

		out := listTablesResult{ConnectionID: connectionID, Tables: []models.TableInfo{}}
		for _, schema := range schemas {
			tables, err := deps.Schema.ListTables(ctx, connectionID, schema)
			if err != nil {
				if result := asErrorResult(err); result != nil {
					return result, nil
				}
				return nil, fmt.Errorf("failed to list tables in %s: %w", schema, err)
			}
			out.Tables = append(out.Tables, tables...)
		}
		return jsonResult(out)
	})
}

// registerProfileTableTool adds profile_table.
func registerProfileTableTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"profile_table",
		mcp.WithDescription(
			"Profile a table: row estimate, per-column null fraction, distinct counts, "+
				"numeric min/max/avg and the most frequent values. Large tables are sampled.",
		),
		mcp.WithString("connection_id", mcp.Required(), mcp.Description("Connection id from the registry")),
		mcp.WithString("schema", mcp.Required(), mcp.Description("Schema name")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
		mcp.WithNumber("max_distinct", mcp.Description("How many top values to return per column")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		connectionID, err := req.RequireString("connection_id")
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}
		schema, err := req.RequireString("schema")
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}
		table, err := req.RequireString("table")
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}

		profile, err := deps.Schema.ProfileTable(ctx, connectionID, schema, table, getOptionalInt(req, "max_distinct", 0))
		if err != nil {
			if result := asErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to profile %s.%s: %w", schema, table, err)
		}
		return jsonResult(profile)
	})
}
