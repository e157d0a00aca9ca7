// ABOUTME: Reply payload of the analysis service decoded into a tagged union
// ABOUTME: Accepts the current "kind" discriminator and the legacy "type" field

package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrEmptyReply is returned when a reply body carries neither a
// discriminator nor text.
var ErrEmptyReply = errors.New("empty reply")

// ReplyKind discriminates the reply variants.
type ReplyKind string

const (
	ReplyText  ReplyKind = "text"
	ReplyChart ReplyKind = "chart"
	ReplyError ReplyKind = "error"
)

// ChartPayload is the unvalidated chart part of a reply, as sent by the
// service. Interpreting it is the visualization resolver's job.
type ChartPayload struct {
	ChartType string
	DataKeys  []string
	Rows      []map[string]any
}

// Reply is one answer from the analysis service. Chart is set only when
// Kind is ReplyChart, and may still be empty.
type Reply struct {
	Kind  ReplyKind
	Text  string
	Chart *ChartPayload
}

// wireReply mirrors the JSON body: {sender, kind|type, text, chartType,
// dataKeys, chartData}.
type wireReply struct {
	Sender    string           `json:"sender"`
	Kind      string           `json:"kind"`
	Type      string           `json:"type,omitempty"`
	Text      string           `json:"text"`
	ChartType string           `json:"chartType,omitempty"`
	DataKeys  []string         `json:"dataKeys,omitempty"`
	ChartData []map[string]any `json:"chartData,omitempty"`
}

// UnmarshalJSON decodes the wire form. "kind" wins over "type"; an unknown
// or missing discriminator decodes as text. A null body, or one with no
// discriminator and no text, is rejected with ErrEmptyReply.
func (r *Reply) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return ErrEmptyReply
	}
	var w wireReply
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	disc := w.Kind
	if disc == "" {
		disc = w.Type
	}
	if strings.TrimSpace(disc) == "" && w.Text == "" {
		return ErrEmptyReply
	}

	*r = Reply{Text: w.Text}
	switch ReplyKind(strings.ToLower(strings.TrimSpace(disc))) {
	case ReplyChart:
		r.Kind = ReplyChart
		r.Chart = &ChartPayload{
			ChartType: w.ChartType,
			DataKeys:  w.DataKeys,
			Rows:      w.ChartData,
		}
	case ReplyError:
		r.Kind = ReplyError
	default:
		r.Kind = ReplyText
	}
	return nil
}

// MarshalJSON encodes the reply in the wire form, used by the fake service.
// Both discriminators are written so older clients reading "type" still work.
func (r Reply) MarshalJSON() ([]byte, error) {
	w := wireReply{
		Sender: "bot",
		Kind:   string(r.Kind),
		Text:   r.Text,
	}
	if r.Kind == "" {
		w.Kind = string(ReplyText)
	}
	w.Type = w.Kind
	if r.Chart != nil {
		w.ChartType = r.Chart.ChartType
		w.DataKeys = r.Chart.DataKeys
		w.ChartData = r.Chart.Rows
	}
	return json.Marshal(w)
}

// HistoryEntry is one prior turn sent with a query.
type HistoryEntry struct {
	Role    string `json:"role"` // "user" or "bot"
	Content string `json:"content"`
}
