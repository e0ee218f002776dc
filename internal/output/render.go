package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/evetools/esigate/internal/observability"
)

// Palette holds the colors used for styled output.
type Palette struct {
	Primary    string
	Foreground string
	Muted      string
	Success    string
	Warning    string
	Error      string
}

// DefaultPalette returns the built-in dark-terminal palette.
func DefaultPalette() Palette {
	return Palette{
		Primary:    "#7AA2F7",
		Foreground: "#C0CAF5",
		Muted:      "#737AA2",
		Success:    "#9ECE6A",
		Warning:    "#E0AF68",
		Error:      "#F7768E",
	}
}

// Renderer handles styled terminal output.
type Renderer struct {
	styled bool

	Summary lipgloss.Style
	Muted   lipgloss.Style
	Data    lipgloss.Style
	Error   lipgloss.Style
	Hint    lipgloss.Style
	Warning lipgloss.Style
	Success lipgloss.Style
}

// NewRenderer creates a renderer with the default palette.
// Styling is enabled when writing to a TTY, or when forceStyled is true,
// and always disabled when NO_COLOR is set.
func NewRenderer(w io.Writer, forceStyled bool) *Renderer {
	return NewRendererWithPalette(w, forceStyled, DefaultPalette())
}

// NewRendererWithPalette creates a renderer with a specific palette (for testing).
func NewRendererWithPalette(w io.Writer, forceStyled bool, p Palette) *Renderer {
	styled := (isTTY(w) || forceStyled) && os.Getenv("NO_COLOR") == ""

	// lipgloss.NewRenderer doesn't pass the profile through in this
	// version, so the global one is set instead.
	if styled {
		lipgloss.SetColorProfile(2) // TrueColor
	} else {
		lipgloss.SetColorProfile(0) // Ascii
	}

	r := &Renderer{styled: styled}
	if !styled {
		plain := lipgloss.NewStyle()
		r.Summary, r.Muted, r.Data, r.Error = plain, plain, plain, plain
		r.Hint, r.Warning, r.Success = plain, plain, plain
		return r
	}

	r.Summary = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Primary)).Bold(true)
	r.Muted = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted))
	r.Data = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Foreground))
	r.Error = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)).Bold(true)
	r.Hint = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)).Italic(true)
	r.Warning = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Warning)).Bold(true)
	r.Success = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Success)).Bold(true)
	return r
}

// RenderResponse renders a success response to the writer.
func (r *Renderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString(r.summaryStyle(resp.Summary).Render(resp.Summary))
		b.WriteString("\n\n")
	}

	r.renderData(&b, NormalizeData(resp.Data))

	if len(resp.Breadcrumbs) > 0 {
		b.WriteString("\n")
		r.renderBreadcrumbs(&b, resp.Breadcrumbs)
	}

	if stats := extractStats(resp.Meta); stats != nil {
		b.WriteString("\n")
		r.renderStats(&b, stats)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response to the writer.
func (r *Renderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	style := r.Error
	if resp.Code == CodeErrorLimit || resp.Code == CodeRetry {
		style = r.Warning
	}
	b.WriteString(style.Render("Error: " + resp.Error))
	b.WriteString("\n")

	if resp.Hint != "" {
		b.WriteString(r.Hint.Render("Hint: " + resp.Hint))
		b.WriteString("\n")
	}

	if resp.Data != nil {
		b.WriteString("\n")
		r.renderData(&b, NormalizeData(resp.Data))
	}

	if stats := extractStats(resp.Meta); stats != nil {
		r.renderStats(&b, stats)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// summaryStyle colors verdict summaries by outcome.
func (r *Renderer) summaryStyle(summary string) lipgloss.Style {
	lower := strings.ToLower(summary)
	switch {
	case strings.Contains(lower, "offline"):
		return r.Error
	case strings.Contains(lower, "error limit"), strings.Contains(lower, "retry"):
		return r.Warning
	case strings.Contains(lower, "healthy"):
		return r.Success
	default:
		return r.Summary
	}
}

func (r *Renderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case map[string]any:
		r.renderObject(b, d)
	case []any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		if rows, ok := objectRows(d); ok {
			r.renderTable(b, rows)
			return
		}
		for _, item := range d {
			b.WriteString(r.Data.Render("• " + formatCell(item)))
			b.WriteString("\n")
		}
	case nil:
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")
	default:
		b.WriteString(r.Data.Render(formatCell(d)))
		b.WriteString("\n")
	}
}

// Field priority for object rendering (lower = higher priority)
var fieldPriority = map[string]int{
	"health":             1,
	"is_online":          2,
	"error_limit_remain": 3,
	"error_limit_reset":  4,
	"retry_in":           5,
	"in_downtime":        6,
	"key":                1,
	"value":              2,
	"source":             3,
	"path":               1,
	"exists":             2,
	"observed_at":        20,
}

func sortFields(keys []string) {
	priority := func(k string) int {
		if p, ok := fieldPriority[k]; ok {
			return p
		}
		return 50
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := priority(keys[i]), priority(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})
}

var mutedFields = map[string]bool{
	"observed_at": true,
	"source":      true,
}

func (r *Renderer) renderObject(b *strings.Builder, data map[string]any) {
	keys := make([]string, 0, len(data))
	for k, v := range data {
		if _, nested := v.(map[string]any); nested {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")
		return
	}

	sortFields(keys)

	maxLen := 0
	for _, k := range keys {
		if l := lipgloss.Width(formatHeader(k)); l > maxLen {
			maxLen = l
		}
	}

	for _, k := range keys {
		label := r.Muted.Render(fmt.Sprintf("%-*s: ", maxLen, formatHeader(k)))
		value := formatCell(data[k])
		if mutedFields[k] {
			value = r.Muted.Render(value)
		} else {
			value = r.Data.Render(value)
		}
		b.WriteString(label + value + "\n")
	}
}

// objectRows reports whether every item is an object.
func objectRows(items []any) ([]map[string]any, bool) {
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		rows = append(rows, m)
	}
	return rows, true
}

// renderTable renders a list of objects as a borderless table with one
// column per key.
func (r *Renderer) renderTable(b *strings.Builder, rows []map[string]any) {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for k, v := range row {
			if _, nested := v.(map[string]any); nested || seen[k] {
				continue
			}
			seen[k] = true
			cols = append(cols, k)
		}
	}
	sortFields(cols)

	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = formatHeader(c)
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := r.Data
			switch {
			case row == table.HeaderRow:
				style = r.Muted.Bold(true)
			case col < len(cols) && mutedFields[cols[col]]:
				style = r.Muted
			}
			return style
		})
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = formatCell(row[c])
		}
		t.Row(cells...)
	}

	b.WriteString(t.String())
	b.WriteString("\n")
}

func (r *Renderer) renderBreadcrumbs(b *strings.Builder, crumbs []Breadcrumb) {
	b.WriteString(r.Muted.Render("Next:"))
	b.WriteString("\n")
	for _, bc := range crumbs {
		cmd := r.Muted.Render("  " + bc.Cmd)
		if bc.Description != "" {
			cmd += r.Muted.Render("  # " + bc.Description)
		}
		b.WriteString(cmd + "\n")
	}
}

// renderStats renders session statistics in a compact one-liner.
func (r *Renderer) renderStats(b *strings.Builder, stats map[string]any) {
	parts := observability.SessionMetricsFromMap(stats).FormatParts()
	if len(parts) > 0 {
		b.WriteString(r.Muted.Render("Stats: "+strings.Join(parts, " | ")) + "\n")
	}
}

func formatHeader(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		switch w {
		case "esi", "url":
			words[i] = strings.ToUpper(w)
		default:
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return "unknown"
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case string:
		return v
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatCell(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// extractStats pulls stats from response meta if present.
func extractStats(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	switch stats := meta["stats"].(type) {
	case map[string]any:
		return stats
	case observability.SessionMetrics:
		return stats.ToMap()
	default:
		return nil
	}
}
