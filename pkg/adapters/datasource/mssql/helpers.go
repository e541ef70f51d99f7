package mssql

import (
	"strings"
)

// isNumericType returns true if the type is a numeric type in SQL Server.
func isNumericType(sqlType string) bool {
	switch strings.ToUpper(strings.TrimSpace(sqlType)) {
	case "TINYINT", "SMALLINT", "INT", "BIGINT",
		"DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY",
		"FLOAT", "REAL":
		return true
	}
	return false
}

// decodesAsString reports whether the driver returns the type as []byte text.
func decodesAsString(sqlType string) bool {
	switch strings.ToUpper(strings.TrimSpace(sqlType)) {
	case "CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "TEXT", "NTEXT", "XML",
		"DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}
