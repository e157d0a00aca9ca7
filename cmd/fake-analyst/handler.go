// ABOUTME: Canned analysis service: accepts multipart or JSON queries, answers text/chart/error
// ABOUTME: Keywords in the query pick the reply so demos and E2E tests can drive every path

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/2389/insight-chat/internal/auth"
	"github.com/2389/insight-chat/internal/transport"
)

const maxRequestBytes = 1 << 20

// query is one parsed request from the client.
type query struct {
	Text           string                   `json:"query"`
	ConversationID string                   `json:"conversation_id"`
	History        []transport.HistoryEntry `json:"history"`
}

type analyst struct {
	delay  time.Duration
	logger *slog.Logger
}

func newAnalyst(delay time.Duration, logger *slog.Logger) *analyst {
	if logger == nil {
		logger = slog.Default()
	}
	return &analyst{delay: delay, logger: logger.With("component", "analyst")}
}

// routes wires the chat endpoint, behind bearer auth when verifier is set.
func (a *analyst) routes(verifier auth.TokenVerifier) http.Handler {
	var chat http.Handler = http.HandlerFunc(a.handleChat)
	if verifier != nil {
		chat = auth.RequireToken(verifier)(chat)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", chat)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func (a *analyst) handleChat(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	a.logger.Info("query received",
		"conversation_id", q.ConversationID,
		"subject", auth.SubjectFromContext(r.Context()),
		"history", len(q.History),
		"query", q.Text)

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-r.Context().Done():
			return
		}
	}

	status, body := answer(q)
	writeJSON(w, status, body)
}

// parseQuery accepts the client's multipart form or a JSON body.
func parseQuery(w http.ResponseWriter, r *http.Request) (query, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return query{}, fmt.Errorf("invalid content type: %w", err)
	}

	var q query
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			return query{}, fmt.Errorf("invalid JSON body: %w", err)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxRequestBytes); err != nil {
			return query{}, fmt.Errorf("invalid form: %w", err)
		}
		q.Text = r.FormValue("query")
		q.ConversationID = r.FormValue("conversation_id")
		if raw := r.FormValue("history"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &q.History); err != nil {
				return query{}, fmt.Errorf("invalid history: %w", err)
			}
		}
	default:
		return query{}, fmt.Errorf("unsupported content type %q", mediaType)
	}

	if strings.TrimSpace(q.Text) == "" {
		return query{}, fmt.Errorf("query is required")
	}
	return q, nil
}

// answer picks the canned reply for q.
func answer(q query) (int, any) {
	lower := strings.ToLower(q.Text)
	switch {
	case strings.Contains(lower, "crash"), strings.Contains(lower, "500"):
		return http.StatusInternalServerError, map[string]string{"detail": "analysis backend unavailable"}
	case strings.Contains(lower, "outage"):
		return http.StatusInternalServerError, map[string]string{}
	case strings.Contains(lower, "error"):
		return http.StatusOK, transport.Reply{
			Kind: transport.ReplyError,
			Text: "I couldn't run that query against the sales data.",
		}
	case strings.Contains(lower, "empty"):
		return http.StatusOK, transport.Reply{
			Kind:  transport.ReplyChart,
			Text:  "No rows matched that filter.",
			Chart: &transport.ChartPayload{ChartType: "bar", DataKeys: []string{"sales"}},
		}
	case strings.Contains(lower, "pie"), strings.Contains(lower, "share"):
		return http.StatusOK, transport.Reply{
			Kind:  transport.ReplyChart,
			Text:  "Sales share by region",
			Chart: &transport.ChartPayload{ChartType: "pie", DataKeys: []string{"sales"}, Rows: regionRows()},
		}
	case strings.Contains(lower, "bar"), strings.Contains(lower, "compare"):
		return http.StatusOK, transport.Reply{
			Kind:  transport.ReplyChart,
			Text:  "Sales and target by region",
			Chart: &transport.ChartPayload{ChartType: "bar", DataKeys: []string{"sales", "target"}, Rows: regionRows()},
		}
	case strings.Contains(lower, "chart"), strings.Contains(lower, "trend"):
		return http.StatusOK, transport.Reply{
			Kind:  transport.ReplyChart,
			Text:  "Monthly sales over the last two years",
			Chart: &transport.ChartPayload{ChartType: "line", DataKeys: []string{"sales"}, Rows: monthlyRows(24)},
		}
	default:
		return http.StatusOK, transport.Reply{
			Kind: transport.ReplyText,
			Text: textReply(q),
		}
	}
}

func textReply(q query) string {
	return fmt.Sprintf("You asked: **%s**\n\n"+
		"This conversation has %d earlier messages. Try asking for a `trend`, a `bar` comparison or a `pie` of regional share.\n\n"+
		"```sql\nSELECT region, SUM(amount) FROM sales GROUP BY region;\n```\n",
		q.Text, len(q.History))
}

func regionRows() []map[string]any {
	return []map[string]any{
		{"name": "North", "sales": 1_250_000, "target": 1_100_000},
		{"name": "South", "sales": 830_500, "target": 900_000},
		{"name": "East", "sales": 412_250, "target": 400_000},
		{"name": "West", "sales": 96_400, "target": 150_000},
	}
}

func monthlyRows(n int) []map[string]any {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]map[string]any, 0, n)
	for i := range n {
		rows = append(rows, map[string]any{
			"name":  start.AddDate(0, i, 0).Format("Jan 2006"),
			"sales": 40_000 + 2_500*i + (i%3)*1_200,
		})
	}
	return rows
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
