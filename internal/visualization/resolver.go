// ABOUTME: Resolves service replies into store messages with a canonical ChartSpec
// ABOUTME: Applies chart type defaulting, data key cleanup and the empty-data fallback

package visualization

import (
	"strings"

	"github.com/2389/insight-chat/internal/store"
	"github.com/2389/insight-chat/internal/transport"
)

// DefaultChartType is used when a reply names no chart type or an unknown one.
const DefaultChartType = store.ChartLine

// Resolve turns a decoded reply into the assistant message to append. A
// chart reply without rows or without usable data keys becomes a text
// message carrying the caption. The result always satisfies the store's
// chart invariant.
func Resolve(reply transport.Reply) store.NewMessage {
	msg := store.NewMessage{
		Sender: store.SenderAssistant,
		Text:   reply.Text,
	}

	switch reply.Kind {
	case transport.ReplyError:
		msg.Kind = store.KindError
	case transport.ReplyChart:
		spec, ok := ResolveChart(reply.Chart)
		if !ok {
			msg.Kind = store.KindText
			return msg
		}
		msg.Kind = store.KindChart
		msg.Chart = spec
	case transport.ReplyText:
		msg.Kind = store.KindText
	default:
		msg.Kind = store.KindText
	}
	return msg
}

// ResolveChart builds a ChartSpec from a payload. It reports false when the
// payload has no rows or no usable data keys.
func ResolveChart(p *transport.ChartPayload) (*store.ChartSpec, bool) {
	if p == nil || len(p.Rows) == 0 {
		return nil, false
	}

	chartType := ChartTypeOf(p.ChartType)
	keys := DataKeys(p.DataKeys)
	if len(keys) == 0 {
		return nil, false
	}
	// a pie series has one value per row
	if chartType == store.ChartPie {
		keys = keys[:1]
	}

	rows := make([]store.Row, len(p.Rows))
	for i, r := range p.Rows {
		rows[i] = store.Row(r)
	}

	return &store.ChartSpec{
		ChartType: chartType,
		DataKeys:  keys,
		Rows:      rows,
	}, true
}

// ChartTypeOf maps a declared chart type onto a known one, defaulting to line.
func ChartTypeOf(declared string) store.ChartType {
	t := store.ChartType(strings.ToLower(strings.TrimSpace(declared)))
	if t.Valid() {
		return t
	}
	return DefaultChartType
}

// DataKeys drops blank keys and removes duplicates, keeping the first
// occurrence of each. Keys keep their spelling so they still name the row
// fields, which are passed through untouched.
func DataKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
