package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown formats every table of report as a markdown section.
func RenderMarkdown(report Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Fund data report\n\n_Generated %s_\n", report.GeneratedAt.Format("2006-01-02 15:04 MST"))
	for _, t := range report.Tables {
		fmt.Fprintf(&b, "\n## %s\n\n", t.Name)
		if len(t.Rows) == 0 {
			b.WriteString("_no data_\n")
			continue
		}
		writeRow(&b, t.Header)
		writeRow(&b, strings.Split(strings.Repeat("---,", len(t.Header)-1)+"---", ","))
		for _, row := range t.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = formatCell(v)
			}
			writeRow(&b, cells)
		}
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(strings.ReplaceAll(c, "|", `\|`))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return fmt.Sprintf("%.4f", x)
	default:
		return fmt.Sprint(x)
	}
}

// TerminalWriter prints the report as markdown, styled with glamour unless Raw is set.
type TerminalWriter struct {
	Out io.Writer
	// Raw prints plain markdown, for pipes and files.
	Raw bool
	// Style is a glamour style name; empty picks one from the terminal background.
	Style string
	Width int
}

func (w *TerminalWriter) Write(_ context.Context, report Report) error {
	md := RenderMarkdown(report)
	if w.Raw {
		_, err := io.WriteString(w.Out, md)
		return err
	}

	width := w.Width
	if width <= 0 {
		width = 100
	}
	style := glamour.WithAutoStyle()
	if w.Style != "" {
		style = glamour.WithStylePath(w.Style)
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	_, err = io.WriteString(w.Out, out)
	return err
}
