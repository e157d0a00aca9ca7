// ABOUTME: Width-aware text tables for terminal output
// ABOUTME: Column widths use display width so CJK and emoji labels stay aligned

package render

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// minColumnWidth is the narrowest a column is squeezed to before truncation.
const minColumnWidth = 3

// Table renders header and rows as a pipe-delimited table no wider than
// width (0 means unlimited). Over-wide cells are truncated with an ellipsis.
func Table(header []string, rows [][]string, width int) string {
	cols := len(header)
	for _, r := range rows {
		cols = max(cols, len(r))
	}
	if cols == 0 {
		return ""
	}

	all := make([][]string, 0, len(rows)+1)
	all = append(all, pad(header, cols))
	for _, r := range rows {
		all = append(all, pad(r, cols))
	}

	widths := make([]int, cols)
	for _, r := range all {
		for i, cell := range r {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	if width > 0 {
		widths = fitColumnWidths(widths, width-(3*cols+1))
	}

	var b strings.Builder
	writeRow(&b, all[0], widths)
	writeSeparator(&b, widths)
	for _, r := range all[1:] {
		writeRow(&b, r, widths)
	}
	return b.String()
}

func pad(row []string, cols int) []string {
	if len(row) >= cols {
		return row
	}
	out := make([]string, cols)
	copy(out, row)
	return out
}

func writeRow(b *strings.Builder, row []string, widths []int) {
	b.WriteString("|")
	for i, cell := range row {
		cell = runewidth.Truncate(cell, widths[i], "…")
		b.WriteString(" ")
		b.WriteString(runewidth.FillRight(cell, widths[i]))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

func writeSeparator(b *strings.Builder, widths []int) {
	b.WriteString("|")
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2))
		b.WriteString("|")
	}
	b.WriteString("\n")
}

// fitColumnWidths shrinks the widest columns first until the total fits.
func fitColumnWidths(widths []int, maxContent int) []int {
	total := 0
	for _, w := range widths {
		total += w
	}
	for total > maxContent {
		widest := 0
		for i, w := range widths {
			if w > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minColumnWidth {
			break
		}
		widths[widest]--
		total--
	}
	return widths
}
