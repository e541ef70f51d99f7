package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

const defaultSearchLimit = 50

type searchDictionaryResult struct {
	Entries   []*models.DictionaryEntry `json:"entries"`
	Total     int                       `json:"total"`
	Truncated bool                      `json:"truncated"`
}

// registerSearchDictionaryTool adds search_dictionary.
func registerSearchDictionaryTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"search_dictionary",
		mcp.WithDescription(
			"Search data dictionary entries. Filters narrow by database, schema and table; "+
				"query matches column names, business names, descriptions and tags case-insensitively.",
		),
		mcp.WithString("database", mcp.Description("Connection id the entries were generated for")),
		mcp.WithString("schema", mcp.Description("Schema name")),
		mcp.WithString("table", mcp.Description("Table name")),
		mcp.WithString("query", mcp.Description("Free-text search")),
		mcp.WithBoolean("active_only", mcp.Description("Only active versions (default true)")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries returned (default 50)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entries, err := deps.Dictionary.List(ctx, models.DictionaryFilter{
			DatabaseName: getOptionalString(req, "database"),
			SchemaName:   getOptionalString(req, "schema"),
			TableName:    getOptionalString(req, "table"),
			ActiveOnly:   getOptionalBool(req, "active_only", true),
		})
		if err != nil {
			if result := asErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("failed to search dictionary: %w", err)
		}

		matched := filterEntries(entries, getOptionalString(req, "query"))
		limit := getOptionalInt(req, "limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}

		out := searchDictionaryResult{Entries: matched, Total: len(matched)}
		if len(matched) > limit {
			out.Entries = matched[:limit]
			out.Truncated = true
		}
		return jsonResult(out)
	})
}

func filterEntries(entries []*models.DictionaryEntry, query string) []*models.DictionaryEntry {
	query = strings.ToLower(query)
	if query == "" {
		return entries
	}
	out := make([]*models.DictionaryEntry, 0, len(entries))
	for _, e := range entries {
		if entryMatches(e, query) {
			out = append(out, e)
		}
	}
	return out
}

func entryMatches(e *models.DictionaryEntry, query string) bool {
	fields := []string{e.ColumnName, e.BusinessName, e.BusinessDescription, e.TechnicalDescription}
	fields = append(fields, e.Tags...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}
