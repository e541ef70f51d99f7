package models

import "time"

// TableInfo is a table or view discovered in a target database.
type TableInfo struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

// ColumnInfo is a column discovered in a target database.
type ColumnInfo struct {
	Name            string  `json:"name"`
	DataType        string  `json:"data_type"`
	IsNullable      bool    `json:"is_nullable"`
	OrdinalPosition int     `json:"ordinal_position"`
	Default         *string `json:"default,omitempty"`
}

// ValueCount is a frequent value and how often it occurs in the sample.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// ColumnProfile holds sampled statistics for one column.
type ColumnProfile struct {
	Name          string       `json:"name"`
	DataType      string       `json:"data_type"`
	IsNullable    bool         `json:"is_nullable"`
	NullFraction  float64      `json:"null_fraction"`
	DistinctCount int64        `json:"distinct_count"`
	Min           *float64     `json:"min,omitempty"`
	Max           *float64     `json:"max,omitempty"`
	Avg           *float64     `json:"avg,omitempty"`
	TopValues     []ValueCount `json:"top_values"`
	Error         string       `json:"error,omitempty"`
}

// TableProfile holds sampled statistics for a table.
type TableProfile struct {
	Schema           string          `json:"schema"`
	Table            string          `json:"table"`
	RowCountEstimate int64           `json:"row_count_estimate"`
	SampledRows      int64           `json:"sampled_rows"`
	UsedTableSample  bool            `json:"used_table_sample"`
	Columns          []ColumnProfile `json:"columns"`
	ProfiledAt       time.Time       `json:"profiled_at"`
}
