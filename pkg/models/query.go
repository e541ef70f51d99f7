package models

import "github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"

// QueryColumn describes one result column.
type QueryColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult is the outcome of a validated read-only query. Exactly one of the
// success fields or ErrorCode/ErrorMessage is meaningful, selected by OK.
type QueryResult struct {
	OK                bool             `json:"ok"`
	Columns           []QueryColumn    `json:"columns,omitempty"`
	Rows              []map[string]any `json:"rows,omitempty"`
	RowCount          int              `json:"row_count"`
	TotalRowsEstimate int64            `json:"total_rows_estimate"`
	ExecutionTimeMs   int64            `json:"execution_time_ms"`
	Page              int              `json:"page,omitempty"`
	PageSize          int              `json:"page_size,omitempty"`
	ErrorCode         apperrors.Code   `json:"error_code,omitempty"`
	ErrorMessage      string           `json:"error_message,omitempty"`
}

// QueryFailure builds a failed result.
func QueryFailure(code apperrors.Code, msg string) *QueryResult {
	return &QueryResult{OK: false, ErrorCode: code, ErrorMessage: msg, TotalRowsEstimate: -1}
}

// ColumnNames returns the column names in result order.
func (r *QueryResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}
