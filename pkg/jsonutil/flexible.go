package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// Try string first
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// Try number
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	// Try boolean
	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	// Fallback: return raw string representation
	return string(raw)
}

// FlexibleStringList converts a json.RawMessage to a list of strings. LLMs
// answer list fields as arrays of mixed scalars, a single scalar, or a
// comma-separated string; all are accepted. Empty items are dropped.
func FlexibleStringList(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s := strings.TrimSpace(FlexibleStringValue(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	single := FlexibleStringValue(raw)
	var out []string
	for _, part := range strings.Split(single, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FirstString returns the FlexibleStringValue of the first key present and
// non-empty in obj. LLMs drift between synonyms such as "description" and
// "business_description".
func FirstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if raw, ok := obj[k]; ok {
			if s := strings.TrimSpace(FlexibleStringValue(raw)); s != "" {
				return s
			}
		}
	}
	return ""
}
