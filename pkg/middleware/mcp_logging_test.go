package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func runMCP(t *testing.T, reqBody, respBody string) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The body must still be readable downstream.
		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, reqBody, string(got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respBody))
	})

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
	MCPRequestLogger(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), req)
	return logs
}

func TestMCPRequestLogger(t *testing.T) {
	t.Run("successful tool call", func(t *testing.T) {
		logs := runMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list_tables","arguments":{"connection_id":"warehouse"}}}`,
			`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"[]"}]}}`)

		require.Equal(t, 2, logs.Len())
		assert.Equal(t, "MCP request", logs.All()[0].Message)
		assert.Equal(t, "list_tables", logs.All()[0].ContextMap()["tool"])
		assert.Equal(t, "MCP response success", logs.All()[1].Message)
	})

	t.Run("json-rpc error", func(t *testing.T) {
		logs := runMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`,
			`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"tool not found"}}`)

		require.Equal(t, 2, logs.Len())
		assert.Equal(t, "MCP response error", logs.All()[1].Message)
		assert.Equal(t, int64(-32602), logs.All()[1].ContextMap()["error_code"])
	})

	t.Run("tool error result", func(t *testing.T) {
		logs := runMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"execute_query","arguments":{"sql":"DELETE FROM users"}}}`,
			`{"jsonrpc":"2.0","id":1,"result":{"isError":true,"content":[{"type":"text","text":"{}"}]}}`)

		require.Equal(t, 2, logs.Len())
		assert.Equal(t, "MCP tool error result", logs.All()[1].Message)
	})

	t.Run("non-json reply logs only the request", func(t *testing.T) {
		logs := runMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
			"event: message\ndata: {}\n\n")

		assert.Equal(t, 1, logs.Len())
	})
}

func TestSanitizeArguments(t *testing.T) {
	longSQL := "SELECT " + strings.Repeat("a, ", 100) + "b FROM t"
	args := map[string]any{
		"api_key":       "sk-live",
		"db_password":   "hunter2",
		"sql":           longSQL,
		"connection_id": "warehouse",
		"page_size":     float64(10),
		"notes":         strings.Repeat("x", 300),
	}

	got := sanitizeArguments(args)

	assert.Equal(t, "[REDACTED]", got["api_key"])
	assert.Equal(t, "[REDACTED]", got["db_password"])
	assert.Less(t, len(got["sql"].(string)), len(longSQL))
	assert.Equal(t, "warehouse", got["connection_id"])
	assert.Equal(t, float64(10), got["page_size"])
	assert.Len(t, got["notes"].(string), maxLoggedArgLen+3)
	assert.Nil(t, sanitizeArguments(nil))
}
