// ABOUTME: Tests for chart tables, pagination, terminal output and HTML export
// ABOUTME: Terminal tests use the plain theme and disable color for stable output

package render

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/insight-chat/internal/store"
)

func noColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func monthlySpec(n int, chartType store.ChartType) *store.ChartSpec {
	rows := make([]store.Row, n)
	for i := range rows {
		rows[i] = store.Row{"name": fmt.Sprintf("M%02d", i+1), "revenue": float64((i + 1) * 100)}
	}
	return &store.ChartSpec{ChartType: chartType, DataKeys: []string{"revenue"}, Rows: rows}
}

func pieSpec() *store.ChartSpec {
	return &store.ChartSpec{
		ChartType: store.ChartPie,
		DataKeys:  []string{"sales"},
		Rows: []store.Row{
			{"name": "North", "sales": 1200.0},
			{"name": "South", "sales": 600.0},
			{"name": "West", "sales": 200.0},
		},
	}
}

func TestTable_Alignment(t *testing.T) {
	out := Table([]string{"name", "revenue"}, [][]string{{"Jan", "1.2K"}, {"東京", "900"}}, 0)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "| name | revenue |", lines[0])
	assert.Equal(t, "|------|---------|", lines[1])
	assert.Equal(t, "| Jan  | 1.2K    |", lines[2])
	assert.Equal(t, "| 東京 | 900     |", lines[3])
}

func TestTable_TruncatesToWidth(t *testing.T) {
	out := Table([]string{"name"}, [][]string{{strings.Repeat("x", 50)}}, 20)
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 20, "line %q", line)
	}
	assert.Contains(t, out, "…")
}

func TestPage(t *testing.T) {
	spec := monthlySpec(23, store.ChartLine)

	rows, remaining := Page(spec, 0, 10)
	assert.Len(t, rows, 10)
	assert.Equal(t, 13, remaining)

	rows, remaining = Page(spec, 20, 10)
	assert.Len(t, rows, 3)
	assert.Equal(t, 0, remaining)

	rows, remaining = Page(spec, 30, 10)
	assert.Empty(t, rows)
	assert.Equal(t, 0, remaining)

	assert.Equal(t, "Load more (13 remaining)", LoadMoreText(13))
}

func TestPieLabels(t *testing.T) {
	spec := pieSpec()
	assert.Equal(t, "North: 1.2K (60%)", PieLabel(spec, spec.Rows[0]))
	assert.Equal(t, "South: 600 (30%)", PieLabel(spec, spec.Rows[1]))
	assert.Equal(t, "West: 200 (10%)", PieLabel(spec, spec.Rows[2]))

	assert.Equal(t, []string{"name", "sales", "share"}, Header(spec))
	assert.Equal(t, []string{"South", "600", "30%"}, Cells(spec, spec.Rows[1:2])[0])
}

func TestPieKeyFallback(t *testing.T) {
	assert.Equal(t, "value", PieKey(&store.ChartSpec{ChartType: store.ChartPie}))
	assert.Equal(t, "sales", PieKey(pieSpec()))
}

func TestCells_MissingValues(t *testing.T) {
	spec := &store.ChartSpec{
		ChartType: store.ChartLine,
		DataKeys:  []string{"revenue", "cost"},
		Rows:      []store.Row{{"name": "Jan", "revenue": 2_500_000.0}},
	}
	assert.Equal(t, [][]string{{"Jan", "2.5M", "—"}}, Cells(spec, spec.Rows))
}

func TestBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("█", barWidth), Bar(50.0, 50))
	assert.Equal(t, strings.Repeat("█", barWidth/2), Bar(25.0, 50))
	assert.Equal(t, "█", Bar(0.1, 50), "tiny positive values still show")
	assert.Empty(t, Bar("n/a", 50))
	assert.Empty(t, Bar(-3.0, 50))
}

func newPlainTerminal(t *testing.T, pageSize int) (*Terminal, *bytes.Buffer) {
	t.Helper()
	noColor(t)
	var buf bytes.Buffer
	term, err := NewTerminal(&buf, TerminalOptions{Theme: PlainTheme, Width: 80, PageSize: pageSize})
	require.NoError(t, err)
	return term, &buf
}

func TestTerminal_ChartPaging(t *testing.T) {
	term, buf := newPlainTerminal(t, 10)
	msg := store.Message{
		ID:     "m1",
		Sender: store.SenderAssistant,
		Kind:   store.KindChart,
		Text:   "Revenue by month",
		Chart:  monthlySpec(23, store.ChartLine),
	}

	cursor := term.Message(msg)
	require.NotNil(t, cursor)
	assert.Equal(t, "m1", cursor.MessageID)
	assert.Equal(t, 13, cursor.Remaining())
	out := buf.String()
	assert.Contains(t, out, "Revenue by month")
	assert.Contains(t, out, "M10")
	assert.NotContains(t, out, "M11")
	assert.Contains(t, out, "Load more (13 remaining)")

	buf.Reset()
	assert.True(t, term.More(cursor))
	assert.Contains(t, buf.String(), "M20")
	assert.Contains(t, buf.String(), "Load more (3 remaining)")

	buf.Reset()
	assert.True(t, term.More(cursor))
	assert.Contains(t, buf.String(), "M23")
	assert.NotContains(t, buf.String(), "Load more")

	assert.False(t, term.More(cursor))
}

func TestTerminal_SmallChartNeedsNoCursor(t *testing.T) {
	term, buf := newPlainTerminal(t, 10)
	cursor := term.Message(store.Message{
		Sender: store.SenderAssistant,
		Kind:   store.KindChart,
		Text:   "Share",
		Chart:  pieSpec(),
	})
	assert.Nil(t, cursor)
	assert.Contains(t, buf.String(), "North: 1.2K (60%)")
}

func TestTerminal_BarChartHasBars(t *testing.T) {
	term, buf := newPlainTerminal(t, 10)
	term.Message(store.Message{
		Sender: store.SenderAssistant,
		Kind:   store.KindChart,
		Chart:  monthlySpec(2, store.ChartBar),
	})
	assert.Contains(t, buf.String(), strings.Repeat("█", barWidth))
}

func TestTerminal_NoData(t *testing.T) {
	term, buf := newPlainTerminal(t, 10)
	term.Message(store.Message{Sender: store.SenderAssistant, Kind: store.KindChart, Text: "Empty"})
	assert.Contains(t, buf.String(), NoDataText)
}

func TestTerminal_TextUserAndError(t *testing.T) {
	term, buf := newPlainTerminal(t, 10)

	term.Message(store.Message{Sender: store.SenderUser, Kind: store.KindText, Text: "Show revenue"})
	term.Message(store.Message{Sender: store.SenderAssistant, Kind: store.KindText, Text: "Revenue grew"})
	term.Message(store.Message{Sender: store.SenderAssistant, Kind: store.KindError, Text: "Sorry, an error occurred"})

	out := buf.String()
	assert.Contains(t, out, "you › Show revenue")
	assert.Contains(t, out, "Revenue grew")
	assert.Contains(t, out, "bot › Sorry, an error occurred")
}

func TestTerminal_MarkdownTheme(t *testing.T) {
	noColor(t)
	var buf bytes.Buffer
	term, err := NewTerminal(&buf, TerminalOptions{Theme: "notty", Width: 60})
	require.NoError(t, err)

	term.Message(store.Message{
		Sender: store.SenderAssistant,
		Kind:   store.KindText,
		Text:   "Top regions:\n\n```sql\nSELECT region FROM sales\n```",
	})
	assert.Contains(t, buf.String(), "SELECT region FROM sales")
}

func TestTerminal_Conversations(t *testing.T) {
	term, buf := newPlainTerminal(t, 10)
	now := time.Now()
	convs := []store.Conversation{
		{ID: "a", Title: "First", CreatedAt: now, Messages: make([]store.Message, 1)},
		{ID: "b", Title: "Second", CreatedAt: now.Add(time.Second), Messages: make([]store.Message, 3)},
	}
	term.Conversations(convs, "b")

	lines := strings.Split(buf.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[2], "First")
	assert.NotContains(t, lines[2], "*")
	assert.Contains(t, lines[3], "* | 2 | Second")

	buf.Reset()
	term.Conversations(nil, "")
	assert.Contains(t, buf.String(), "No conversations")
}

func TestExportHTML(t *testing.T) {
	conv := store.Conversation{
		ID:        "c1",
		Title:     "Revenue <review>",
		CreatedAt: time.Now(),
		Messages: []store.Message{
			{ID: "m0", Sender: store.SenderAssistant, Kind: store.KindText, Text: store.SeedText},
			{ID: "m1", Sender: store.SenderUser, Kind: store.KindText, Text: "Show **revenue** <script>alert(1)</script>"},
			{ID: "m2", Sender: store.SenderAssistant, Kind: store.KindChart, Text: "Share", Chart: pieSpec()},
			{ID: "m3", Sender: store.SenderAssistant, Kind: store.KindError, Text: "Sorry <b>broken</b>"},
			{ID: "m4", Sender: store.SenderAssistant, Kind: store.KindChart, Text: "Nothing"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportHTML(&buf, conv))
	out := buf.String()

	assert.Contains(t, out, "<title>Revenue &lt;review&gt;</title>")
	assert.Contains(t, out, "<strong>revenue</strong>")
	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "<li>North: 1.2K (60%)</li>")
	assert.Contains(t, out, "<td>South</td>")
	assert.Contains(t, out, `<p class="error">Sorry &lt;b&gt;broken&lt;/b&gt;</p>`)
	assert.Contains(t, out, NoDataText)
}
