// ABOUTME: Conversation and message types for the conversation state store
// ABOUTME: Defines the canonical ChartSpec and the invariants every message must hold

package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// ErrMalformedMessage is returned when a message would violate the
// well-formed-or-absent chart invariant.
var ErrMalformedMessage = errors.New("malformed message")

const (
	// DefaultTitle is used when a conversation is created without a title.
	DefaultTitle = "New Analysis"
	// SeedText is the assistant greeting every conversation starts with.
	SeedText = "How can I help you?"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Role returns the wire role used in request history: "user" or "bot".
func (s Sender) Role() string {
	if s == SenderUser {
		return "user"
	}
	return "bot"
}

// Kind is the message body variant.
type Kind string

const (
	KindText  Kind = "text"
	KindChart Kind = "chart"
	KindError Kind = "error"
)

// ChartType selects the series form of a chart.
type ChartType string

const (
	ChartLine ChartType = "line"
	ChartBar  ChartType = "bar"
	ChartPie  ChartType = "pie"
)

// Valid reports whether t is one of the known chart types.
func (t ChartType) Valid() bool {
	switch t {
	case ChartLine, ChartBar, ChartPie:
		return true
	}
	return false
}

// NameField is the row field holding the category / x-axis label.
const NameField = "name"

// Row is one record of chart data: a "name" field plus one value per data key.
type Row map[string]any

// Name returns the row's label, or "" when absent.
func (r Row) Name() string {
	v, ok := r[NameField]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ChartSpec is the canonical, renderer-agnostic description of a visualization.
type ChartSpec struct {
	ChartType ChartType `json:"chartType"`
	DataKeys  []string  `json:"dataKeys"`
	Rows      []Row     `json:"rows"`
}

// Validate checks the spec is complete: a known type, at least one unique
// data key and at least one row. Row contents are not inspected.
func (c *ChartSpec) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: chart spec missing", ErrMalformedMessage)
	}
	if !c.ChartType.Valid() {
		return fmt.Errorf("%w: unknown chart type %q", ErrMalformedMessage, c.ChartType)
	}
	if len(c.DataKeys) == 0 {
		return fmt.Errorf("%w: chart has no data keys", ErrMalformedMessage)
	}
	seen := make(map[string]struct{}, len(c.DataKeys))
	for _, k := range c.DataKeys {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: blank data key", ErrMalformedMessage)
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate data key %q", ErrMalformedMessage, k)
		}
		seen[k] = struct{}{}
	}
	if len(c.Rows) == 0 {
		return fmt.Errorf("%w: chart has no rows", ErrMalformedMessage)
	}
	return nil
}

func (c *ChartSpec) clone() *ChartSpec {
	if c == nil {
		return nil
	}
	rows := make([]Row, len(c.Rows))
	for i, r := range c.Rows {
		rows[i] = maps.Clone(r)
	}
	return &ChartSpec{
		ChartType: c.ChartType,
		DataKeys:  slices.Clone(c.DataKeys),
		Rows:      rows,
	}
}

// Message is one turn in a conversation.
type Message struct {
	ID        string     `json:"id"`
	Sender    Sender     `json:"sender"`
	Kind      Kind       `json:"kind"`
	Text      string     `json:"text"`
	Chart     *ChartSpec `json:"chart,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (m Message) clone() Message {
	m.Chart = m.Chart.clone()
	return m
}

// NewMessage is the caller-supplied part of a message; the store assigns
// the id and timestamp.
type NewMessage struct {
	Sender Sender
	Kind   Kind
	Text   string
	Chart  *ChartSpec
}

// normalize enforces the chart invariant: a chart is attached exactly when
// Kind is chart, and then it must validate.
func (n NewMessage) normalize() (NewMessage, error) {
	switch n.Sender {
	case SenderUser, SenderAssistant:
	default:
		return n, fmt.Errorf("%w: unknown sender %q", ErrMalformedMessage, n.Sender)
	}

	switch n.Kind {
	case KindChart:
		if err := n.Chart.Validate(); err != nil {
			return n, err
		}
		n.Chart = n.Chart.clone()
	case KindText, KindError:
		n.Chart = nil
	default:
		return n, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, n.Kind)
	}
	return n, nil
}

// Conversation is a titled, ordered sequence of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.clone()
	}
	return out
}

// UserMessageCount returns the number of user-authored messages.
func (c Conversation) UserMessageCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Sender == SenderUser {
			n++
		}
	}
	return n
}
