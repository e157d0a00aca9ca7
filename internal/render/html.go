// ABOUTME: Standalone HTML transcript export of a conversation
// ABOUTME: Text messages go through goldmark; charts become tables with pie labels

package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/insight-chat/internal/store"
)

type htmlChart struct {
	Type   string
	Header []string
	Rows   [][]string
	Labels []string
}

type htmlMessage struct {
	Sender string
	Kind   string
	Time   string
	Body   template.HTML
	Text   string
	Chart  *htmlChart
	NoData bool
}

type htmlTranscript struct {
	Title      string
	Created    string
	ExportedAt string
	Messages   []htmlMessage
}

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 860px; margin: 2rem auto; color: #1e293b; }
.msg { padding: .75rem 1rem; margin: .75rem 0; border-radius: 8px; }
.user { background: #dbeafe; }
.assistant { background: #f1f5f9; }
.error { color: #dc2626; }
.meta { font-size: .75rem; color: #64748b; }
table { border-collapse: collapse; margin-top: .5rem; }
th, td { border: 1px solid #cbd5e1; padding: .25rem .6rem; text-align: left; }
.nodata { font-style: italic; color: #64748b; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Created {{.Created}} · exported {{.ExportedAt}}</p>
{{range .Messages}}<div class="msg {{.Sender}}">
<div class="meta">{{.Sender}} · {{.Time}}</div>
{{if eq .Kind "error"}}<p class="error">{{.Text}}</p>
{{else if eq .Kind "chart"}}<p>{{.Text}}</p>
{{if .NoData}}<p class="nodata">No data to display</p>{{else}}{{with .Chart}}<p class="meta">{{.Type}} chart</p>
{{if .Labels}}<ul>{{range .Labels}}<li>{{.}}</li>{{end}}</ul>{{end}}
<table>
<tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>{{end}}{{end}}
{{else}}{{.Body}}
{{end}}</div>
{{end}}</body>
</html>
`))

// ExportHTML writes a self-contained HTML page for conv. Markdown in text
// messages is converted; raw HTML in messages is not passed through.
func ExportHTML(w io.Writer, conv store.Conversation) error {
	data := htmlTranscript{
		Title:      conv.Title,
		Created:    conv.CreatedAt.Local().Format(time.DateTime),
		ExportedAt: time.Now().Format(time.DateTime),
		Messages:   make([]htmlMessage, 0, len(conv.Messages)),
	}

	for _, m := range conv.Messages {
		hm := htmlMessage{
			Sender: string(m.Sender),
			Kind:   string(m.Kind),
			Time:   m.CreatedAt.Local().Format(time.DateTime),
			Text:   m.Text,
		}
		switch m.Kind {
		case store.KindChart:
			if m.Chart == nil || len(m.Chart.Rows) == 0 {
				hm.NoData = true
				break
			}
			hc := &htmlChart{
				Type:   string(m.Chart.ChartType),
				Header: Header(m.Chart),
				Rows:   Cells(m.Chart, m.Chart.Rows),
			}
			if m.Chart.ChartType == store.ChartPie {
				for _, r := range m.Chart.Rows {
					hc.Labels = append(hc.Labels, PieLabel(m.Chart, r))
				}
			}
			hm.Chart = hc
		case store.KindText:
			var buf bytes.Buffer
			if err := goldmark.Convert([]byte(m.Text), &buf); err != nil {
				return fmt.Errorf("converting message %s: %w", m.ID, err)
			}
			hm.Body = template.HTML(buf.String())
		}
		data.Messages = append(data.Messages, hm)
	}

	if err := transcriptTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("rendering transcript: %w", err)
	}
	return nil
}
