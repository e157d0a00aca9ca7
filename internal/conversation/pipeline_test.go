// ABOUTME: Tests for the send pipeline: rejections, titling, history, reconcile
// ABOUTME: Uses a mock submitter and an httptest-backed transport for end-to-end flows

package conversation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/insight-chat/internal/kv"
	"github.com/2389/insight-chat/internal/store"
	"github.com/2389/insight-chat/internal/transport"
)

// mockSubmitter implements QuerySubmitter for testing
type mockSubmitter struct {
	mu      sync.Mutex
	reply   *transport.Reply
	err     error
	calls   int
	lastReq struct {
		query          string
		conversationID string
		history        []transport.HistoryEntry
	}
	// release, when set, blocks SubmitQuery until closed
	release chan struct{}
	started chan struct{}
}

func (m *mockSubmitter) SubmitQuery(ctx context.Context, query, conversationID string, history []transport.HistoryEntry) (*transport.Reply, error) {
	m.mu.Lock()
	m.calls++
	m.lastReq.query = query
	m.lastReq.conversationID = conversationID
	m.lastReq.history = history
	release, started := m.release, m.started
	m.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.reply, m.err
}

func (m *mockSubmitter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestPipeline(t *testing.T, sub QuerySubmitter) (*Pipeline, *store.ConversationStore, string) {
	t.Helper()
	s := store.New(kv.NewMemoryStore())
	id := s.CreateConversation(context.Background(), "")
	return New(s, sub, time.Minute, nil), s, id
}

func textReply(text string) *transport.Reply {
	return &transport.Reply{Kind: transport.ReplyText, Text: text}
}

func TestSend_RejectionsHaveNoSideEffects(t *testing.T) {
	sub := &mockSubmitter{reply: textReply("unused")}
	p, s, id := newTestPipeline(t, sub)
	ctx := context.Background()

	tests := []struct {
		name    string
		convID  string
		input   string
		wantErr error
	}{
		{"empty input", id, "", ErrBlankInput},
		{"whitespace input", id, "  \n\t ", ErrBlankInput},
		{"no active conversation", "", "hello", ErrNoActiveConversation},
		{"dangling conversation", "gone", "hello", ErrNoActiveConversation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := p.Send(ctx, tt.convID, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, msg)
			assert.False(t, p.Busy())
		})
	}

	assert.Equal(t, 0, sub.callCount())
	conv, _ := s.Conversation(id)
	assert.Len(t, conv.Messages, 1)
	assert.Equal(t, store.DefaultTitle, conv.Title)
}

func TestSend_TitlesOnlyOnFirstMessage(t *testing.T) {
	sub := &mockSubmitter{reply: textReply("ok")}
	p, s, id := newTestPipeline(t, sub)
	ctx := context.Background()

	long := "Compare revenue across every region for the last twelve months, broken down by product line"
	_, err := p.Send(ctx, id, long)
	require.NoError(t, err)

	conv, _ := s.Conversation(id)
	assert.Equal(t, long, conv.Title, "title is the raw first input, uncapped")

	_, err = p.Send(ctx, id, "and last year?")
	require.NoError(t, err)

	conv, _ = s.Conversation(id)
	assert.Equal(t, long, conv.Title)
}

func TestSend_HistoryExcludesSeedAndCurrent(t *testing.T) {
	sub := &mockSubmitter{reply: textReply("first answer")}
	p, _, id := newTestPipeline(t, sub)
	ctx := context.Background()

	_, err := p.Send(ctx, id, "first question")
	require.NoError(t, err)
	assert.Empty(t, sub.lastReq.history)
	assert.NotNil(t, sub.lastReq.history)

	sub.reply = textReply("second answer")
	_, err = p.Send(ctx, id, "second question")
	require.NoError(t, err)

	assert.Equal(t, "second question", sub.lastReq.query)
	assert.Equal(t, id, sub.lastReq.conversationID)
	assert.Equal(t, []transport.HistoryEntry{
		{Role: "user", Content: "first question"},
		{Role: "bot", Content: "first answer"},
	}, sub.lastReq.history)
}

func TestSend_ChartReplyEndToEnd(t *testing.T) {
	sub := &mockSubmitter{reply: &transport.Reply{
		Kind: transport.ReplyChart,
		Text: "Monthly revenue",
		Chart: &transport.ChartPayload{
			DataKeys: []string{"revenue"},
			Rows: []map[string]any{
				{"name": "Jan", "revenue": 1200.0},
				{"name": "Feb", "revenue": 1500.0},
			},
		},
	}}
	p, s, id := newTestPipeline(t, sub)

	msg, err := p.Send(context.Background(), id, "Show revenue by month")
	require.NoError(t, err)
	require.NotNil(t, msg)

	conv, _ := s.Conversation(id)
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, store.SenderUser, conv.Messages[1].Sender)
	assert.Equal(t, "Show revenue by month", conv.Messages[1].Text)

	third := conv.Messages[2]
	assert.Equal(t, msg.ID, third.ID)
	assert.Equal(t, store.SenderAssistant, third.Sender)
	assert.Equal(t, store.KindChart, third.Kind)
	require.NotNil(t, third.Chart)
	assert.Equal(t, store.ChartLine, third.Chart.ChartType)
	assert.Equal(t, []string{"revenue"}, third.Chart.DataKeys)
	assert.Len(t, third.Chart.Rows, 2)
	assert.Equal(t, "Show revenue by month", conv.Title)
	assert.False(t, p.Busy())
}

func TestSend_ServerErrorEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"db unreachable"}`))
	}))
	t.Cleanup(srv.Close)

	client := transport.NewClient(transport.Config{URL: srv.URL}, nil)
	p, s, id := newTestPipeline(t, client)

	msg, err := p.Send(context.Background(), id, "Show revenue by month")
	require.NoError(t, err, "transport failures are reconciled, not returned")

	conv, _ := s.Conversation(id)
	require.Len(t, conv.Messages, 3)
	third := conv.Messages[2]
	assert.Equal(t, msg.ID, third.ID)
	assert.Equal(t, store.KindError, third.Kind)
	assert.Equal(t, store.SenderAssistant, third.Sender)
	assert.Contains(t, third.Text, "db unreachable")
	assert.Equal(t, "Sorry, an error occurred: db unreachable. Please check server connection.", third.Text)
	assert.False(t, p.Busy())
}

func TestSend_EmptyReplyBecomesErrorMessage(t *testing.T) {
	for _, body := range []string{`null`, `{}`} {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}))
			t.Cleanup(srv.Close)

			client := transport.NewClient(transport.Config{URL: srv.URL}, nil)
			p, s, id := newTestPipeline(t, client)

			_, err := p.Send(context.Background(), id, "Show revenue by month")
			require.NoError(t, err)

			conv, _ := s.Conversation(id)
			require.Len(t, conv.Messages, 3)
			last := conv.Messages[2]
			assert.Equal(t, store.KindError, last.Kind)
			assert.Equal(t, ErrorText("decoding reply: empty reply"), last.Text)
		})
	}
}

func TestSend_FailureReasons(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"status only", &transport.HTTPError{StatusCode: 503}, "HTTP error! Status: 503"},
		{"raw error", errors.New("connection refused"), "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &mockSubmitter{err: tt.err}
			p, _, id := newTestPipeline(t, sub)

			msg, err := p.Send(context.Background(), id, "q")
			require.NoError(t, err)
			assert.Equal(t, store.KindError, msg.Kind)
			assert.Equal(t, ErrorText(tt.want), msg.Text)
			assert.Equal(t, 1, sub.callCount(), "failures are not retried")
		})
	}
}

func TestSend_ServiceReportedError(t *testing.T) {
	sub := &mockSubmitter{reply: &transport.Reply{Kind: transport.ReplyError, Text: "query too broad"}}
	p, _, id := newTestPipeline(t, sub)

	msg, err := p.Send(context.Background(), id, "q")
	require.NoError(t, err)
	assert.Equal(t, store.KindError, msg.Kind)
	assert.Equal(t, "query too broad", msg.Text)
}

func TestSend_TimeoutBecomesErrorMessage(t *testing.T) {
	sub := &mockSubmitter{release: make(chan struct{})}
	s := store.New(kv.NewMemoryStore())
	id := s.CreateConversation(context.Background(), "")
	p := New(s, sub, 50*time.Millisecond, nil)

	msg, err := p.Send(context.Background(), id, "q")
	require.NoError(t, err)
	assert.Equal(t, store.KindError, msg.Kind)
	assert.Equal(t, ErrorText("no response within 50ms"), msg.Text)
	assert.False(t, p.Busy())
}

func TestSend_DropsWhileBusy(t *testing.T) {
	sub := &mockSubmitter{
		reply:   textReply("done"),
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	p, s, id := newTestPipeline(t, sub)
	ctx := context.Background()

	type result struct {
		msg *store.Message
		err error
	}
	first := make(chan result, 1)
	go func() {
		msg, err := p.Send(ctx, id, "first")
		first <- result{msg, err}
	}()

	<-sub.started
	assert.True(t, p.Busy())

	msg, err := p.Send(ctx, id, "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Nil(t, msg)

	close(sub.release)
	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, "done", r.msg.Text)

	assert.Equal(t, 1, sub.callCount())
	assert.False(t, p.Busy())

	conv, _ := s.Conversation(id)
	require.Len(t, conv.Messages, 3, "the dropped send appended nothing")
	assert.Equal(t, "first", conv.Messages[1].Text)
}

func TestSend_ConversationDeletedMidFlight(t *testing.T) {
	sub := &mockSubmitter{
		reply:   textReply("late"),
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	p, s, id := newTestPipeline(t, sub)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Send(context.Background(), id, "q")
		errCh <- err
	}()

	<-sub.started
	require.NoError(t, s.DeleteConversation(context.Background(), id))
	close(sub.release)

	assert.ErrorIs(t, <-errCh, store.ErrNotFound)
	assert.False(t, p.Busy())
}

func TestHistory(t *testing.T) {
	assert.Empty(t, History(nil))

	msgs := []store.Message{
		{Sender: store.SenderAssistant, Text: store.SeedText},
		{Sender: store.SenderUser, Text: "q"},
		{Sender: store.SenderAssistant, Kind: store.KindChart, Text: "caption"},
		{Sender: store.SenderAssistant, Kind: store.KindError, Text: "Sorry"},
	}
	assert.Equal(t, []transport.HistoryEntry{
		{Role: "user", Content: "q"},
		{Role: "bot", Content: "caption"},
		{Role: "bot", Content: "Sorry"},
	}, History(msgs))
}
