// ABOUTME: Terminal renderer for conversations: markdown text, red errors, chart tables
// ABOUTME: Charts page through rows; a Cursor remembers where the next page starts

package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"github.com/2389/insight-chat/internal/store"
)

// PlainTheme disables markdown styling.
const PlainTheme = "plain"

// TerminalOptions configures a Terminal.
type TerminalOptions struct {
	Theme    string // glamour style name, "auto", or PlainTheme
	Width    int
	PageSize int
}

// Terminal writes messages to a line-oriented terminal.
type Terminal struct {
	out      io.Writer
	md       *glamour.TermRenderer
	width    int
	pageSize int

	user  *color.Color
	bot   *color.Color
	err   *color.Color
	muted *color.Color
}

// Cursor tracks the next unseen page of a chart message.
type Cursor struct {
	MessageID string
	spec      *store.ChartSpec
	offset    int
}

// Remaining returns how many rows have not been shown yet.
func (c *Cursor) Remaining() int {
	if c == nil || c.spec == nil {
		return 0
	}
	return max(len(c.spec.Rows)-c.offset, 0)
}

// NewTerminal creates a renderer writing to out.
func NewTerminal(out io.Writer, opts TerminalOptions) (*Terminal, error) {
	t := &Terminal{
		out:      out,
		width:    opts.Width,
		pageSize: opts.PageSize,
		user:     color.New(color.FgCyan, color.Bold),
		bot:      color.New(color.FgGreen, color.Bold),
		err:      color.New(color.FgRed),
		muted:    color.New(color.FgHiBlack),
	}
	if t.width <= 0 {
		t.width = 80
	}
	if t.pageSize <= 0 {
		t.pageSize = DefaultPageSize
	}

	if opts.Theme != PlainTheme {
		style := glamour.WithAutoStyle()
		if opts.Theme != "" && opts.Theme != "auto" {
			style = glamour.WithStylePath(opts.Theme)
		}
		md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(t.width))
		if err != nil {
			return nil, fmt.Errorf("creating markdown renderer: %w", err)
		}
		t.md = md
	}
	return t, nil
}

// Message prints one message. For a chart with more rows than fit on a
// page it returns a Cursor for More; otherwise nil.
func (t *Terminal) Message(msg store.Message) *Cursor {
	switch {
	case msg.Sender == store.SenderUser:
		fmt.Fprintf(t.out, "%s %s\n", t.user.Sprint("you ›"), msg.Text)
	case msg.Kind == store.KindError:
		fmt.Fprintf(t.out, "%s %s\n", t.bot.Sprint("bot ›"), t.err.Sprint(msg.Text))
	case msg.Kind == store.KindChart:
		fmt.Fprintf(t.out, "%s %s\n", t.bot.Sprint("bot ›"), msg.Text)
		return t.chart(msg)
	default:
		fmt.Fprintf(t.out, "%s\n%s", t.bot.Sprint("bot ›"), t.markdown(msg.Text))
	}
	return nil
}

// More prints the next page of a chart. It reports false when nothing was
// left to show.
func (t *Terminal) More(c *Cursor) bool {
	if c.Remaining() == 0 {
		return false
	}
	t.page(c)
	return true
}

// Transcript prints every message of a conversation under its title.
// Charts show their first page only.
func (t *Terminal) Transcript(conv store.Conversation) *Cursor {
	fmt.Fprintf(t.out, "%s\n\n", t.bot.Sprint("── "+conv.Title+" ──"))
	var last *Cursor
	for _, m := range conv.Messages {
		if c := t.Message(m); c != nil {
			last = c
		}
	}
	return last
}

// Conversations prints the conversation list in creation order, marking the
// active one.
func (t *Terminal) Conversations(convs []store.Conversation, activeID string) {
	if len(convs) == 0 {
		fmt.Fprintln(t.out, t.muted.Sprint("No conversations. Use /new to start one."))
		return
	}
	header := []string{"", "#", "title", "messages", "created"}
	rows := make([][]string, 0, len(convs))
	for i, c := range convs {
		mark := ""
		if c.ID == activeID {
			mark = "*"
		}
		rows = append(rows, []string{
			mark,
			fmt.Sprint(i + 1),
			c.Title,
			fmt.Sprint(len(c.Messages)),
			c.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprint(t.out, Table(header, rows, t.width))
}

// Notice prints a muted informational line.
func (t *Terminal) Notice(format string, args ...any) {
	fmt.Fprintln(t.out, t.muted.Sprintf(format, args...))
}

// Warning prints a non-fatal warning.
func (t *Terminal) Warning(format string, args ...any) {
	fmt.Fprintln(t.out, color.YellowString("! "+format, args...))
}

func (t *Terminal) chart(msg store.Message) *Cursor {
	if msg.Chart == nil || len(msg.Chart.Rows) == 0 {
		fmt.Fprintln(t.out, t.muted.Sprint(NoDataText))
		return nil
	}
	c := &Cursor{MessageID: msg.ID, spec: msg.Chart}
	fmt.Fprintln(t.out, t.muted.Sprintf("%s chart", msg.Chart.ChartType))
	t.page(c)
	if c.Remaining() == 0 {
		return nil
	}
	return c
}

func (t *Terminal) page(c *Cursor) {
	spec := c.spec
	rows, remaining := Page(spec, c.offset, t.pageSize)
	c.offset += len(rows)

	if spec.ChartType == store.ChartPie {
		for _, r := range rows {
			fmt.Fprintf(t.out, "  %s %s\n", PieLabel(spec, r), Bar(r[PieKey(spec)], Peak(spec, PieKey(spec))))
		}
	} else {
		header := Header(spec)
		cells := Cells(spec, rows)
		// single-series bar charts get an inline bar column
		if spec.ChartType == store.ChartBar && len(spec.DataKeys) == 1 {
			key := spec.DataKeys[0]
			peak := Peak(spec, key)
			header = append(header, "")
			for i, r := range rows {
				cells[i] = append(cells[i], Bar(r[key], peak))
			}
		}
		fmt.Fprint(t.out, Table(header, cells, t.width))
	}

	if remaining > 0 {
		fmt.Fprintln(t.out, t.muted.Sprint(LoadMoreText(remaining)+" · /more"))
	}
}

func (t *Terminal) markdown(text string) string {
	if t.md == nil {
		return text + "\n"
	}
	styled, err := t.md.Render(text)
	if err != nil {
		return text + "\n"
	}
	if !strings.HasSuffix(styled, "\n") {
		styled += "\n"
	}
	return styled
}
