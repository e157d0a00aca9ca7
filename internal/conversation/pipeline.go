// ABOUTME: Pipeline runs one send/receive round trip against the analysis service
// ABOUTME: Record first, then act: the user message is stored before the remote call

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/2389/insight-chat/internal/store"
	"github.com/2389/insight-chat/internal/transport"
	"github.com/2389/insight-chat/internal/visualization"
)

// Send rejections. None of them has side effects.
var (
	ErrBlankInput           = errors.New("input is blank")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrBusy                 = errors.New("a request is already in flight")
)

// ConversationStore defines what the pipeline needs from storage
type ConversationStore interface {
	Conversation(conversationID string) (store.Conversation, bool)
	AppendMessage(ctx context.Context, conversationID string, msg store.NewMessage) (store.Message, error)
	RenameConversation(ctx context.Context, conversationID, title string) error
}

// QuerySubmitter defines what the pipeline needs from the transport layer
type QuerySubmitter interface {
	SubmitQuery(ctx context.Context, query, conversationID string, history []transport.HistoryEntry) (*transport.Reply, error)
}

// Pipeline sends user input to the analysis service and records the
// exchange. At most one request is in flight; sends while busy are dropped.
type Pipeline struct {
	store     ConversationStore
	submitter QuerySubmitter
	timeout   time.Duration
	logger    *slog.Logger
	busy      atomic.Bool
}

// New creates a Pipeline. A zero timeout leaves the remote call unbounded.
func New(store ConversationStore, submitter QuerySubmitter, timeout time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     store,
		submitter: submitter,
		timeout:   timeout,
		logger:    logger.With("component", "pipeline"),
	}
}

// Busy reports whether a request is in flight.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// Send records input as a user message, submits it and appends the
// assistant's reply, or an error message when the call fails. It returns
// the appended assistant message.
//
// Transport failures are not returned: they become an error-kind message in
// the conversation. Returned errors are rejections (ErrBlankInput,
// ErrNoActiveConversation, ErrBusy) or a store failure.
func (p *Pipeline) Send(ctx context.Context, conversationID, input string) (*store.Message, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrBlankInput
	}
	if conversationID == "" {
		return nil, ErrNoActiveConversation
	}
	conv, ok := p.store.Conversation(conversationID)
	if !ok {
		return nil, ErrNoActiveConversation
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Debug("send dropped while busy", "conversation_id", conversationID)
		return nil, ErrBusy
	}
	defer p.busy.Store(false)

	// History is taken before the new message is appended.
	history := History(conv.Messages)

	// 1. Record the user message first
	userMsg, err := p.store.AppendMessage(ctx, conversationID, store.NewMessage{
		Sender: store.SenderUser,
		Kind:   store.KindText,
		Text:   input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record message: %w", err)
	}
	if len(conv.Messages) == 1 {
		if err := p.store.RenameConversation(ctx, conversationID, input); err != nil {
			p.logger.Warn("failed to title conversation", "conversation_id", conversationID, "error", err)
		}
	}

	p.logger.Debug("user message recorded",
		"conversation_id", conversationID,
		"message_id", userMsg.ID,
		"history", len(history))

	// 2. Submit
	reply, err := p.submit(ctx, input, conversationID, history)

	// 3. Reconcile. Recording the outcome must survive caller cancellation.
	recordCtx := context.WithoutCancel(ctx)
	var outcome store.NewMessage
	if err != nil {
		reason := p.reason(err)
		p.logger.Warn("query failed", "conversation_id", conversationID, "error", err)
		outcome = store.NewMessage{
			Sender: store.SenderAssistant,
			Kind:   store.KindError,
			Text:   ErrorText(reason),
		}
	} else {
		outcome = visualization.Resolve(*reply)
	}

	msg, err := p.store.AppendMessage(recordCtx, conversationID, outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to record reply: %w", err)
	}

	p.logger.Debug("reply recorded",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"kind", msg.Kind)
	return &msg, nil
}

func (p *Pipeline) submit(ctx context.Context, query, conversationID string, history []transport.HistoryEntry) (*transport.Reply, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	reply, err := p.submitter.SubmitQuery(ctx, query, conversationID, history)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, errors.New("empty reply")
	}
	return reply, nil
}

func (p *Pipeline) reason(err error) string {
	if p.timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("no response within %s", p.timeout)
	}
	return transport.Reason(err)
}

// ErrorText is the assistant message shown when a query fails.
func ErrorText(reason string) string {
	return fmt.Sprintf("Sorry, an error occurred: %s. Please check server connection.", reason)
}

// History converts prior messages to request history, skipping the seed
// message. Chart messages contribute their caption.
func History(messages []store.Message) []transport.HistoryEntry {
	if len(messages) <= 1 {
		return []transport.HistoryEntry{}
	}
	out := make([]transport.HistoryEntry, 0, len(messages)-1)
	for _, m := range messages[1:] {
		out = append(out, transport.HistoryEntry{
			Role:    m.Sender.Role(),
			Content: m.Text,
		})
	}
	return out
}
