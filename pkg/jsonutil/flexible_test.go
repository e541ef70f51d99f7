package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name  string
		input json.RawMessage
		want  string
	}{
		{
			name:  "string value",
			input: json.RawMessage(`"hello"`),
			want:  "hello",
		},
		{
			name:  "integer value",
			input: json.RawMessage(`42`),
			want:  "42",
		},
		{
			name:  "float value",
			input: json.RawMessage(`3.14`),
			want:  "3.14",
		},
		{
			name:  "boolean true",
			input: json.RawMessage(`true`),
			want:  "true",
		},
		{
			name:  "boolean false",
			input: json.RawMessage(`false`),
			want:  "false",
		},
		{
			name:  "null value",
			input: json.RawMessage(`null`),
			want:  "",
		},
		{
			name:  "empty raw message",
			input: json.RawMessage{},
			want:  "",
		},
		{
			name:  "nil raw message",
			input: nil,
			want:  "",
		},
		{
			name:  "large integer preserves precision",
			input: json.RawMessage(`9007199254740992`),
			want:  "9007199254740992",
		},
		{
			name:  "nested object falls back to raw string",
			input: json.RawMessage(`{"key":"value"}`),
			want:  `{"key":"value"}`,
		},
		{
			name:  "array falls back to raw string",
			input: json.RawMessage(`[1,2,3]`),
			want:  `[1,2,3]`,
		},
		{
			name:  "negative integer",
			input: json.RawMessage(`-7`),
			want:  "-7",
		},
		{
			name:  "zero",
			input: json.RawMessage(`0`),
			want:  "0",
		},
		{
			name:  "empty string",
			input: json.RawMessage(`""`),
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStringValue(tt.input)
			if got != tt.want {
				t.Errorf("FlexibleStringValue(%s) = %q, want %q", string(tt.input), got, tt.want)
			}
		})
	}
}

func TestFlexibleStringList(t *testing.T) {
	tests := []struct {
		name  string
		input json.RawMessage
		want  []string
	}{
		{"array of strings", json.RawMessage(`["a", "b"]`), []string{"a", "b"}},
		{"mixed scalars", json.RawMessage(`["x", 1, true, null, ""]`), []string{"x", "1", "true"}},
		{"single string", json.RawMessage(`"PII"`), []string{"PII"}},
		{"comma separated", json.RawMessage(`"PII, contact ,"`), []string{"PII", "contact"}},
		{"number", json.RawMessage(`7`), []string{"7"}},
		{"null", json.RawMessage(`null`), nil},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStringList(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("FlexibleStringList(%s) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("FlexibleStringList(%s)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFirstString(t *testing.T) {
	obj := map[string]json.RawMessage{
		"description":          json.RawMessage(`"fallback"`),
		"business_description": json.RawMessage(`"  "`),
		"name":                 json.RawMessage(`12`),
	}

	if got := FirstString(obj, "business_description", "description"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
	if got := FirstString(obj, "name"); got != "12" {
		t.Errorf("expected 12, got %q", got)
	}
	if got := FirstString(obj, "missing"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
