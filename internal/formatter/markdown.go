package formatter

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"ao3extract/internal/models"
)

func renderMarkdown(results []models.ResultRecord, opts Options) string {
	labels := newLabelFormatter()

	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n", heading(opts.Title, len(results)))

	for i, rec := range results {
		fmt.Fprintf(&sb, "\n## %d. %s\n\n", i+1, escapeInline(rec.Title))

		if rec.NotFound {
			fmt.Fprintf(&sb, "> **%s**\n\n", NotFoundNotice)
		}

		fmt.Fprintf(&sb, "<%s>\n\n", rec.Link())

		if summary := strings.TrimSpace(rec.Summary); summary != "" {
			fmt.Fprintf(&sb, "%s\n", escapeInline(summary))
		}

		if len(rec.Stats) == 0 {
			continue
		}

		rows := [][]string{{"Label", "Value"}}
		for _, attr := range rec.Stats {
			rows = append(rows, []string{labels.format(attr.Label), attr.Value})
		}

		sb.WriteString("\n")

		for _, line := range alignTable(rows) {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// alignTable renders rows as a markdown table whose columns line up by
// display width, so wide (CJK) characters do not skew the layout. The
// first row is the header.
func alignTable(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}

	colCount := 0
	for _, row := range rows {
		colCount = max(colCount, len(row))
	}

	cells := make([][]string, len(rows))
	colWidths := make([]int, colCount)

	for i, row := range rows {
		cells[i] = make([]string, colCount)

		for j := range colCount {
			if j < len(row) {
				cells[i][j] = escapeCell(row[j])
			}

			colWidths[j] = max(colWidths[j], runewidth.StringWidth(cells[i][j]))
		}
	}

	// Separator needs at least three dashes.
	for i := range colWidths {
		colWidths[i] = max(colWidths[i], 3)
	}

	result := make([]string, 0, len(rows)+1)
	result = append(result, tableRow(cells[0], colWidths))

	separator := make([]string, colCount)
	for j, width := range colWidths {
		separator[j] = strings.Repeat("-", width)
	}

	result = append(result, tableRow(separator, colWidths))

	for _, row := range cells[1:] {
		result = append(result, tableRow(row, colWidths))
	}

	return result
}

func tableRow(cells []string, widths []int) string {
	var sb strings.Builder

	sb.WriteString("|")

	for j, content := range cells {
		sb.WriteString(" ")
		sb.WriteString(content)

		if padding := widths[j] - runewidth.StringWidth(content); padding > 0 {
			sb.WriteString(strings.Repeat(" ", padding))
		}

		sb.WriteString(" |")
	}

	return sb.String()
}

func escapeCell(s string) string {
	s = strings.Join(strings.Fields(s), " ")

	return strings.ReplaceAll(s, "|", `\|`)
}

func escapeInline(s string) string {
	return strings.NewReplacer("\n", " ", "<", "&lt;", ">", "&gt;").Replace(s)
}
