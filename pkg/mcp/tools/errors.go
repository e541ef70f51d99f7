package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

// ErrorResponse is a structured error returned as a tool result so the caller
// can see and act on it.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorResult creates a tool result containing a structured error.
// System failures should be returned as Go errors instead.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(ErrorResponse{Error: true, Code: code, Message: message})
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// asErrorResult converts caller-correctable service errors to tool results.
// It returns nil for errors that should surface as JSON-RPC failures.
func asErrorResult(err error) *mcp.CallToolResult {
	var qe *services.QueryError
	switch {
	case errors.As(err, &qe):
		return NewErrorResult(string(qe.Code), qe.Message)
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", err.Error())
	case errors.Is(err, apperrors.ErrUnknownConnection):
		return NewErrorResult("unknown_connection", err.Error())
	case errors.Is(err, apperrors.ErrUnknownProvider):
		return NewErrorResult("unknown_provider", err.Error())
	case errors.Is(err, apperrors.ErrInvalidInput):
		return NewErrorResult("invalid_input", err.Error())
	}
	return nil
}

// jsonResult marshals v as the text content of a tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
