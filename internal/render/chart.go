// ABOUTME: Renderer-neutral chart helpers: pagination, cells, pie shares and bars
// ABOUTME: Shared by the terminal renderer and the HTML transcript export

package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/2389/insight-chat/internal/store"
	"github.com/2389/insight-chat/internal/visualization"
)

const (
	// NoDataText replaces a chart without rows.
	NoDataText = "No data to display"
	// DefaultPageSize is how many chart rows are shown per page.
	DefaultPageSize = 10
	// pieFallbackKey is the value field used by a pie without data keys.
	pieFallbackKey = "value"
	barWidth       = 20
)

// PieKey returns the field a pie chart reads its values from.
func PieKey(spec *store.ChartSpec) string {
	if spec == nil || len(spec.DataKeys) == 0 || spec.DataKeys[0] == "" {
		return pieFallbackKey
	}
	return spec.DataKeys[0]
}

// Page returns up to limit rows starting at offset, and how many rows remain
// after them.
func Page(spec *store.ChartSpec, offset, limit int) ([]store.Row, int) {
	if spec == nil || offset >= len(spec.Rows) {
		return nil, 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	offset = max(offset, 0)
	end := min(offset+limit, len(spec.Rows))
	return spec.Rows[offset:end], len(spec.Rows) - end
}

// LoadMoreText is the pagination prompt, e.g. "Load more (12 remaining)".
func LoadMoreText(remaining int) string {
	return fmt.Sprintf("Load more (%d remaining)", remaining)
}

// Header returns the column titles for a chart table.
func Header(spec *store.ChartSpec) []string {
	if spec.ChartType == store.ChartPie {
		return []string{store.NameField, PieKey(spec), "share"}
	}
	return append([]string{store.NameField}, spec.DataKeys...)
}

// Cells formats rows for a chart table. Pie shares are computed against all
// rows of the spec, not just the page.
func Cells(spec *store.ChartSpec, rows []store.Row) [][]string {
	out := make([][]string, 0, len(rows))
	if spec.ChartType == store.ChartPie {
		key := PieKey(spec)
		total := pieTotal(spec)
		for _, r := range rows {
			out = append(out, []string{r.Name(), visualization.FormatNumber(r[key]), share(r[key], total)})
		}
		return out
	}
	for _, r := range rows {
		cells := []string{r.Name()}
		for _, k := range spec.DataKeys {
			cells = append(cells, visualization.FormatNumber(r[k]))
		}
		out = append(out, cells)
	}
	return out
}

// PieLabel formats a pie slice as "name: value (pct%)".
func PieLabel(spec *store.ChartSpec, r store.Row) string {
	key := PieKey(spec)
	return fmt.Sprintf("%s: %s (%s)", r.Name(), visualization.FormatNumber(r[key]), share(r[key], pieTotal(spec)))
}

func pieTotal(spec *store.ChartSpec) float64 {
	key := PieKey(spec)
	var total float64
	for _, r := range spec.Rows {
		if v, ok := visualization.Numeric(r[key]); ok && v > 0 {
			total += v
		}
	}
	return total
}

func share(v any, total float64) string {
	f, ok := visualization.Numeric(v)
	if !ok || total <= 0 {
		return visualization.NoValue
	}
	return fmt.Sprintf("%.0f%%", math.Round(f/total*100))
}

// Bar draws value as a bar scaled so that peak fills barWidth cells.
func Bar(v any, peak float64) string {
	f, ok := visualization.Numeric(v)
	if !ok || peak <= 0 || f <= 0 {
		return ""
	}
	n := int(math.Round(f / peak * barWidth))
	return strings.Repeat("█", max(n, 1))
}

// Peak returns the largest numeric value of key across all rows.
func Peak(spec *store.ChartSpec, key string) float64 {
	var peak float64
	for _, r := range spec.Rows {
		if v, ok := visualization.Numeric(r[key]); ok && v > peak {
			peak = v
		}
	}
	return peak
}
