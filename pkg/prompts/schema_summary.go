package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

// maxTopValueLen truncates long top values so one free-text column cannot
// dominate the prompt.
const maxTopValueLen = 60

// EntityName converts a table name to an entity name.
// Examples: "public.users" -> "User", "order_items" -> "OrderItem", "categories" -> "Category"
func EntityName(tableName string) string {
	name := tableName
	if idx := strings.LastIndex(tableName, "."); idx >= 0 {
		name = tableName[idx+1:]
	}

	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	if len(parts) == 0 {
		return ""
	}
	parts[len(parts)-1] = inflection.Singular(parts[len(parts)-1])

	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// BuildSchemaSummary renders a table profile as the {schema_summary} text.
func BuildSchemaSummary(profile *models.TableProfile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Table: %s.%s (entity: %s)\n", profile.Schema, profile.Table, EntityName(profile.Table))
	if profile.RowCountEstimate >= 0 {
		fmt.Fprintf(&b, "Estimated rows: %d\n", profile.RowCountEstimate)
	}
	if profile.SampledRows > 0 {
		method := "first rows"
		if profile.UsedTableSample {
			method = "random table sample"
		}
		fmt.Fprintf(&b, "Statistics from %d sampled rows (%s)\n", profile.SampledRows, method)
	}
	b.WriteString("Columns:\n")

	for _, col := range profile.Columns {
		fmt.Fprintf(&b, "- %s %s", col.Name, col.DataType)
		if col.IsNullable {
			fmt.Fprintf(&b, " nullable (%.1f%% null)", col.NullFraction*100)
		} else {
			b.WriteString(" not null")
		}
		if col.Error != "" {
			b.WriteString(", statistics unavailable\n")
			continue
		}
		fmt.Fprintf(&b, ", ~%d distinct", col.DistinctCount)
		if col.Min != nil && col.Max != nil {
			fmt.Fprintf(&b, ", range %s..%s", formatNumber(*col.Min), formatNumber(*col.Max))
		}
		if col.Avg != nil {
			fmt.Fprintf(&b, ", avg %s", formatNumber(*col.Avg))
		}
		if len(col.TopValues) > 0 {
			values := make([]string, len(col.TopValues))
			for i, v := range col.TopValues {
				values[i] = fmt.Sprintf("%q (%d)", truncate(v.Value, maxTopValueLen), v.Count)
			}
			fmt.Fprintf(&b, ", top values: %s", strings.Join(values, ", "))
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatSampleRows renders rows as a pipe-separated table for {sample_rows}.
// Column order follows columns; when columns is empty the keys of the first
// row are used in sorted order.
func FormatSampleRows(columns []string, rows []map[string]any, maxCellLen int) string {
	if len(rows) == 0 {
		return "(no rows)"
	}
	if len(columns) == 0 {
		for k := range rows[0] {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}
	if maxCellLen <= 0 {
		maxCellLen = 80
	}

	var b strings.Builder
	b.WriteString(strings.Join(columns, " | "))
	b.WriteString("\n")
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = formatCell(row[c], maxCellLen)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCell(v any, maxLen int) string {
	if v == nil {
		return "NULL"
	}
	s := fmt.Sprint(v)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "/")
	return truncate(s, maxLen)
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.4g", f)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
