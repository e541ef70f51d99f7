// Package prompts holds the built-in analysis templates and the helpers that
// turn table profiles into prompt text.
package prompts

import "strings"

// Template placeholders. Substitution is literal: no escaping, no other
// placeholder syntax, and unknown {names} are left as they are.
const (
	PlaceholderSchemaSummary = "{schema_summary}"
	PlaceholderSampleRows    = "{sample_rows}"
)

// Render substitutes the two placeholders in a single pass, so text inserted
// for one placeholder is never rescanned for the other.
func Render(template, schemaSummary, sampleRows string) string {
	return strings.NewReplacer(
		PlaceholderSchemaSummary, schemaSummary,
		PlaceholderSampleRows, sampleRows,
	).Replace(template)
}
