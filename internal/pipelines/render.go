package pipelines

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	headerPrefix = "{{_header}}"
	rowPrefix    = "{{_row}}"
	emptyPrefix  = "{{_empty}}"

	// MaxTemplateRows caps {{_row}} expansion.
	MaxTemplateRows = 30
	// MaxBulletRows caps the generic dump.
	MaxBulletRows = 20
)

// Result is what Render formats. Affected is negative for read-only queries.
type Result struct {
	Columns  []string
	Rows     []map[string]any
	Affected int64
}

func (r Result) isMutation() bool { return r.Affected >= 0 }

// Render formats r with tmpl, or with the generic bullet dump when tmpl is
// empty. description heads the bullet dump.
func Render(tmpl, description string, r Result) string {
	if strings.TrimSpace(tmpl) != "" {
		return RenderTemplate(tmpl, r)
	}
	return RenderBullets(description, r)
}

// RenderTemplate expands a line template. Only the first line carrying each
// prefix is used; other lines are ignored.
func RenderTemplate(tmpl string, r Result) string {
	var header, row, empty string
	var hasHeader, hasRow, hasEmpty bool
	for _, line := range strings.Split(tmpl, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case !hasHeader && strings.HasPrefix(line, headerPrefix):
			header, hasHeader = strings.TrimPrefix(line, headerPrefix), true
		case !hasRow && strings.HasPrefix(line, rowPrefix):
			row, hasRow = strings.TrimPrefix(line, rowPrefix), true
		case !hasEmpty && strings.HasPrefix(line, emptyPrefix):
			empty, hasEmpty = strings.TrimPrefix(line, emptyPrefix), true
		}
	}

	if len(r.Rows) == 0 {
		if r.Affected > 0 {
			if header != "" {
				return substituteCounts(header, r.Affected, r.Affected)
			}
			return affectedMessage(r.Affected)
		}
		if empty != "" {
			return empty
		}
		return "No results."
	}

	count := int64(len(r.Rows))
	affected := count
	if r.isMutation() {
		count, affected = r.Affected, r.Affected
	}

	var b strings.Builder
	b.WriteString(substituteCounts(header, count, affected))
	for _, values := range r.Rows[:min(len(r.Rows), MaxTemplateRows)] {
		line := row
		for key, val := range values {
			line = strings.ReplaceAll(line, "{{"+key+"}}", formatValue(val))
		}
		b.WriteString("\n")
		b.WriteString(line)
	}
	if extra := len(r.Rows) - MaxTemplateRows; extra > 0 {
		fmt.Fprintf(&b, "\n...and %d more", extra)
	}
	return strings.TrimSpace(b.String())
}

func substituteCounts(s string, count, affected int64) string {
	s = strings.ReplaceAll(s, "{{_count}}", strconv.FormatInt(count, 10))
	return strings.ReplaceAll(s, "{{_affected}}", strconv.FormatInt(affected, 10))
}

func affectedMessage(n int64) string {
	return fmt.Sprintf("Done. %d row(s) affected.", n)
}

// RenderBullets is the fallback format: a counted header and one
// "• key: value" line per row, nulls omitted.
func RenderBullets(description string, r Result) string {
	if len(r.Rows) == 0 {
		if r.Affected > 0 {
			return affectedMessage(r.Affected)
		}
		return "No results for: " + description
	}

	count := int64(len(r.Rows))
	if r.isMutation() {
		count = r.Affected
	}
	noun := "results"
	if count == 1 {
		noun = "result"
	}

	lines := []string{fmt.Sprintf("%s (%d %s):", description, count, noun)}
	for _, values := range r.Rows[:min(len(r.Rows), MaxBulletRows)] {
		var parts []string
		for _, key := range columnOrder(r.Columns, values) {
			val, ok := values[key]
			if !ok || val == nil {
				continue
			}
			parts = append(parts, key+": "+formatValue(val))
		}
		lines = append(lines, "• "+strings.Join(parts, ", "))
	}
	if extra := len(r.Rows) - MaxBulletRows; extra > 0 {
		lines = append(lines, fmt.Sprintf("...and %d more", extra))
	}
	return strings.Join(lines, "\n")
}

// columnOrder returns the select-list order when known, otherwise the row's
// keys sorted.
func columnOrder(columns []string, row map[string]any) []string {
	if len(columns) > 0 {
		return columns
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// formatValue renders a column value the way a person would read it.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	case driver.Valuer:
		if dv, err := x.Value(); err == nil {
			return formatValue(dv)
		}
	case map[string]any, []any:
		if data, err := json.Marshal(x); err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}
