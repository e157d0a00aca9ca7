// ABOUTME: In-memory fan-out of store changes to interested observers
// ABOUTME: Subscribers register per conversation id, or for all with an empty id

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/insight-chat/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// AllConversations subscribes to changes of every conversation.
const AllConversations = ""

// Broadcaster provides in-memory pub/sub for store changes. It implements
// store.Notifier, so a ConversationStore can publish to it directly.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan store.Change // conversationID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

var _ store.Notifier = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan store.Change),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for changes to conversationID (AllConversations for
// every change). The subscription is cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan store.Change, string) {
	subID := uuid.New().String()
	ch := make(chan store.Change, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan store.Change)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Publish delivers a change to subscribers of its conversation and to
// AllConversations subscribers. Non-blocking: changes are dropped for
// subscribers whose channels are full.
func (b *Broadcaster) Publish(change store.Change) {
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send; every send is non-blocking.
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.deliverLocked(change.ConversationID, change)
	if change.ConversationID != AllConversations {
		b.deliverLocked(AllConversations, change)
	}
}

func (b *Broadcaster) deliverLocked(key string, change store.Change) {
	for _, ch := range b.subscribers[key] {
		select {
		case ch <- change:
		default:
			b.logger.Debug("dropped change for slow subscriber",
				"conversation_id", change.ConversationID,
				"kind", change.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}

	b.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for convID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, convID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
