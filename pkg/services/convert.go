package services

import (
	"fmt"
	"strconv"
	"time"
)

// Target drivers return catalog values as assorted Go types; these helpers
// coerce them for schema and profile rows.

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int:
		return int64(t)
	case uint32:
		return int64(t)
	case float64:
		return int64(t)
	case float32:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return int64(f)
		}
	case []byte:
		return toInt64(string(t))
	}
	return 0
}

func toFloatPtr(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case int:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		f = parsed
	case []byte:
		return toFloatPtr(string(t))
	default:
		return nil
	}
	return &f
}
