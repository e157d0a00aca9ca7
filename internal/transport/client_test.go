// ABOUTME: Tests for the analysis service client against an httptest server
// ABOUTME: Covers both body encodings, auth headers, error details and decode failures

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/insight-chat/internal/auth"
)

// capturedRequest records what the fake service received.
type capturedRequest struct {
	contentType    string
	authorization  string
	query          string
	conversationID string
	history        []HistoryEntry
}

func newFakeService(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.contentType = r.Header.Get("Content-Type")
		got.authorization = r.Header.Get("Authorization")

		if r.Header.Get("Content-Type") == "application/json" {
			var req struct {
				Query          string         `json:"query"`
				ConversationID string         `json:"conversation_id"`
				History        []HistoryEntry `json:"history"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding json body: %v", err)
			}
			got.query, got.conversationID, got.history = req.Query, req.ConversationID, req.History
		} else {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parsing multipart body: %v", err)
			}
			got.query = r.FormValue("query")
			got.conversationID = r.FormValue("conversation_id")
			if err := json.Unmarshal([]byte(r.FormValue("history")), &got.history); err != nil {
				t.Errorf("decoding history field: %v", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

var sampleHistory = []HistoryEntry{
	{Role: "user", Content: "Show revenue"},
	{Role: "bot", Content: "Here it is"},
}

func TestSubmitQuery_MultipartDefault(t *testing.T) {
	srv, got := newFakeService(t, http.StatusOK, `{"sender":"bot","type":"text","text":"Revenue is up"}`)
	c := NewClient(Config{URL: srv.URL}, nil)

	reply, err := c.SubmitQuery(context.Background(), "How is revenue?", "conv-1", sampleHistory)
	require.NoError(t, err)

	assert.Contains(t, got.contentType, "multipart/form-data")
	assert.Equal(t, "How is revenue?", got.query)
	assert.Equal(t, "conv-1", got.conversationID)
	assert.Equal(t, sampleHistory, got.history)
	assert.Empty(t, got.authorization)

	assert.Equal(t, ReplyText, reply.Kind)
	assert.Equal(t, "Revenue is up", reply.Text)
	assert.Nil(t, reply.Chart)
}

func TestSubmitQuery_JSONEncoding(t *testing.T) {
	srv, got := newFakeService(t, http.StatusOK, `{"kind":"text","text":"ok"}`)
	c := NewClient(Config{URL: srv.URL, Encoding: EncodingJSON}, nil)

	_, err := c.SubmitQuery(context.Background(), "q", "conv-2", nil)
	require.NoError(t, err)

	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, "q", got.query)
	assert.Equal(t, "conv-2", got.conversationID)
	assert.NotNil(t, got.history, "history is sent as an empty list, never null")
	assert.Empty(t, got.history)
}

func TestSubmitQuery_StaticToken(t *testing.T) {
	srv, got := newFakeService(t, http.StatusOK, `{"kind":"text","text":"ok"}`)
	c := NewClient(Config{
		URL:    srv.URL,
		Token:  "static-token",
		Signer: auth.NewServiceTokens([]byte("unused")),
	}, nil)

	_, err := c.SubmitQuery(context.Background(), "q", "c", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer static-token", got.authorization)
}

func TestSubmitQuery_SignedToken(t *testing.T) {
	srv, got := newFakeService(t, http.StatusOK, `{"kind":"text","text":"ok"}`)
	tokens := auth.NewServiceTokens([]byte("shared-secret"))
	c := NewClient(Config{URL: srv.URL, Signer: tokens, Subject: "analyst-1"}, nil)

	_, err := c.SubmitQuery(context.Background(), "q", "c", nil)
	require.NoError(t, err)

	tok, errMsg := auth.ExtractBearerToken(got.authorization)
	require.Empty(t, errMsg)
	sub, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "analyst-1", sub)
}

func TestSubmitQuery_ChartReply(t *testing.T) {
	body := `{"sender":"bot","kind":"chart","text":"Monthly revenue","chartType":"bar",
		"dataKeys":["revenue","cost"],
		"chartData":[{"name":"Jan","revenue":1200,"cost":800},{"name":"Feb","revenue":1500,"cost":900}]}`
	srv, _ := newFakeService(t, http.StatusOK, body)
	c := NewClient(Config{URL: srv.URL}, nil)

	reply, err := c.SubmitQuery(context.Background(), "q", "c", nil)
	require.NoError(t, err)

	assert.Equal(t, ReplyChart, reply.Kind)
	assert.Equal(t, "Monthly revenue", reply.Text)
	require.NotNil(t, reply.Chart)
	assert.Equal(t, "bar", reply.Chart.ChartType)
	assert.Equal(t, []string{"revenue", "cost"}, reply.Chart.DataKeys)
	require.Len(t, reply.Chart.Rows, 2)
	assert.Equal(t, "Jan", reply.Chart.Rows[0]["name"])
	assert.Equal(t, 1200.0, reply.Chart.Rows[0]["revenue"])
}

func TestSubmitQuery_ErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
		wantReason string
	}{
		{"string detail", 500, `{"detail":"db unreachable"}`, "db unreachable", "db unreachable"},
		{"structured detail", 422, `{"detail":[{"msg":"field required"}]}`, `[{"msg":"field required"}]`, `[{"msg":"field required"}]`},
		{"no detail", 502, `<html>bad gateway</html>`, "", "HTTP error! Status: 502"},
		{"null detail", 503, `{"detail":null}`, "", "HTTP error! Status: 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newFakeService(t, tt.status, tt.body)
			c := NewClient(Config{URL: srv.URL}, nil)

			reply, err := c.SubmitQuery(context.Background(), "q", "c", nil)
			require.Error(t, err)
			assert.Nil(t, reply)

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.wantDetail, httpErr.Detail)
			assert.Equal(t, tt.wantReason, Reason(err))
		})
	}
}

func TestSubmitQuery_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"truncated", `{"kind":`},
		{"null", `null`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newFakeService(t, http.StatusOK, tt.body)
			c := NewClient(Config{URL: srv.URL}, nil)

			reply, err := c.SubmitQuery(context.Background(), "q", "c", nil)
			require.Error(t, err)
			assert.Nil(t, reply)
			assert.Contains(t, err.Error(), "decoding reply")

			var httpErr *HTTPError
			assert.False(t, errors.As(err, &httpErr))
		})
	}
}

func TestSubmitQuery_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{URL: url}, nil)
	_, err := c.SubmitQuery(context.Background(), "q", "c", nil)
	require.Error(t, err)
	assert.Contains(t, Reason(err), "sending request")
}

func TestSubmitQuery_ContextDeadline(t *testing.T) {
	// The handler never reads the body, so the server cannot notice the
	// client going away; release unblocks it before srv.Close waits.
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := NewClient(Config{URL: srv.URL}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.SubmitQuery(ctx, "q", "c", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitQuery_UnsupportedEncoding(t *testing.T) {
	c := NewClient(Config{URL: "http://127.0.0.1:1", Encoding: "xml"}, nil)
	_, err := c.SubmitQuery(context.Background(), "q", "c", nil)
	assert.ErrorContains(t, err, "unsupported encoding")
}
