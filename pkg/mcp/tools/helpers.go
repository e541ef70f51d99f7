package tools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, _ := args[key].(string)
	return strings.TrimSpace(val)
}

// getOptionalInt reads a JSON number argument. Missing or non-numeric values
// return def.
func getOptionalInt(req mcp.CallToolRequest, key string, def int) int {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return def
	}
	val, ok := args[key].(float64)
	if !ok {
		return def
	}
	return int(val)
}

func getOptionalBool(req mcp.CallToolRequest, key string, def bool) bool {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return def
	}
	val, ok := args[key].(bool)
	if !ok {
		return def
	}
	return val
}

// getStringList reads an array argument, keeping only non-empty strings.
func getStringList(req mcp.CallToolRequest, key string) []string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
