package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/logging"
)

// maxLoggedArgLen bounds string tool arguments in logs.
const maxLoggedArgLen = 200

// MCPRequestLogger returns middleware that logs MCP tools/call traffic: the tool
// name, sanitized arguments, and whether the JSON-RPC reply carried an error.
// A nil logger passes requests through untouched.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil {
				logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
			}
			toolName := rpcReq.Params.Name

			logger.Debug("MCP request",
				zap.String("method", rpcReq.Method),
				zap.String("tool", toolName),
				zap.Any("arguments", sanitizeArguments(rpcReq.Params.Arguments)),
			)

			recorder := &mcpResponseRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			var rpcResp jsonRPCResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &rpcResp); err != nil {
				// Streamed (SSE) replies are not plain JSON.
				return
			}

			switch {
			case rpcResp.Error != nil:
				logger.Debug("MCP response error",
					zap.String("tool", toolName),
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", rpcResp.Error.Message),
					zap.Duration("duration", duration))
			case rpcResp.Result.IsError:
				logger.Debug("MCP tool error result",
					zap.String("tool", toolName),
					zap.Duration("duration", duration))
			default:
				logger.Debug("MCP response success",
					zap.String("tool", toolName),
					zap.Duration("duration", duration))
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mcpResponseRecorder struct {
	http.ResponseWriter
	body *bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// sanitizeArguments redacts secret-looking keys, runs SQL through the query
// sanitizer and truncates long strings.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	sensitiveKeywords := []string{"password", "secret", "token", "api_key", "credential"}
	result := make(map[string]any, len(args))

	for k, v := range args {
		lowerKey := strings.ToLower(k)
		redact := false
		for _, keyword := range sensitiveKeywords {
			if strings.Contains(lowerKey, keyword) {
				redact = true
				break
			}
		}
		if redact {
			result[k] = "[REDACTED]"
			continue
		}

		str, ok := v.(string)
		switch {
		case ok && lowerKey == "sql":
			result[k] = logging.SanitizeQuery(str)
		case ok:
			result[k] = logging.TruncateString(str, maxLoggedArgLen)
		default:
			result[k] = v
		}
	}

	return result
}
