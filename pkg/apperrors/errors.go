package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrSeedRecipeProtected = errors.New("seed recipe can only be deleted with force")
	ErrVersionConflict     = errors.New("dictionary version conflict")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrUnknownProvider     = errors.New("unknown llm provider")
	ErrJobRunning          = errors.New("job is running")
)

// Code is a stable machine-readable error code carried in results and responses.
type Code string

const (
	CodeUnsafeQuery     Code = "UNSAFE_QUERY"
	CodeExecutionError  Code = "EXECUTION_ERROR"
	CodeRenderError     Code = "RENDER_ERROR"
	CodeLLMError        Code = "LLM_ERROR"
	CodeParseError      Code = "PARSE_ERROR"
	CodeVersionConflict Code = "VERSION_CONFLICT"
	CodeIngestionError  Code = "INGESTION_ERROR"
	CodeCancelled       Code = "CANCELLED"
)
