// ABOUTME: ConversationStore owns all conversations and the active conversation id
// ABOUTME: Every mutation writes through to the kv layer and notifies observers

package store

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/insight-chat/internal/kv"
)

// ChangeKind describes what a mutation did.
type ChangeKind string

const (
	ChangeCreated       ChangeKind = "created"
	ChangeAppended      ChangeKind = "appended"
	ChangeRenamed       ChangeKind = "renamed"
	ChangeDeleted       ChangeKind = "deleted"
	ChangeActivated     ChangeKind = "activated"
	ChangePersistFailed ChangeKind = "persist_failed"
)

// Change is published to the Notifier after each mutation.
type Change struct {
	Kind           ChangeKind
	ConversationID string
	MessageID      string
	Err            error // set for ChangePersistFailed
}

// Notifier receives store changes. Publish must not block.
type Notifier interface {
	Publish(change Change)
}

// Option configures a ConversationStore.
type Option func(*ConversationStore)

// WithNotifier sets the observer notified after each mutation.
func WithNotifier(n Notifier) Option {
	return func(s *ConversationStore) { s.notifier = n }
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *ConversationStore) {
		if l != nil {
			s.logger = l.With("component", "store")
		}
	}
}

// ConversationStore is the single source of truth for conversations.
//
// It assumes one logical writer; the mutex only keeps readers on other
// goroutines (renderers, observers) from seeing torn state.
type ConversationStore struct {
	mu            sync.RWMutex
	kv            kv.Store
	notifier      Notifier
	logger        *slog.Logger
	conversations map[string]*Conversation
	activeID      string
	degraded      bool
	lastCreated   time.Time
}

// New creates an empty store persisting to kvStore. Call Hydrate to load
// previously saved state.
func New(kvStore kv.Store, opts ...Option) *ConversationStore {
	s := &ConversationStore{
		kv:            kvStore,
		logger:        slog.Default().With("component", "store"),
		conversations: make(map[string]*Conversation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateConversation creates a conversation holding only the seed message,
// makes it active and persists. It does not fail: when storage is
// unavailable the conversation exists in memory only.
func (s *ConversationStore) CreateConversation(ctx context.Context, title string) string {
	if title == "" {
		title = DefaultTitle
	}

	s.mu.Lock()
	now := time.Now()
	// keep creation order strict for listing
	if !now.After(s.lastCreated) {
		now = s.lastCreated.Add(time.Nanosecond)
	}
	s.lastCreated = now

	conv := &Conversation{
		ID:    uuid.New().String(),
		Title: title,
		Messages: []Message{{
			ID:        uuid.New().String(),
			Sender:    SenderAssistant,
			Kind:      KindText,
			Text:      SeedText,
			CreatedAt: now,
		}},
		CreatedAt: now,
	}
	s.conversations[conv.ID] = conv
	s.activeID = conv.ID
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.logger.Debug("conversation created", "conversation_id", conv.ID, "title", title)
	s.notify(Change{Kind: ChangeCreated, ConversationID: conv.ID}, err)
	return conv.ID
}

// AppendMessage appends a message to the end of a conversation and returns
// the finalized copy. It returns ErrNotFound for an unknown conversation and
// ErrMalformedMessage when the chart invariant would be violated.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID string, nm NewMessage) (Message, error) {
	nm, err := nm.normalize()
	if err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return Message{}, ErrNotFound
	}

	msg := Message{
		ID:        uuid.New().String(),
		Sender:    nm.Sender,
		Kind:      nm.Kind,
		Text:      nm.Text,
		Chart:     nm.Chart,
		CreatedAt: time.Now(),
	}
	conv.Messages = append(conv.Messages, msg)
	persistErr := s.persistLocked(ctx)
	s.mu.Unlock()

	s.logger.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"sender", msg.Sender,
		"kind", msg.Kind)
	s.notify(Change{Kind: ChangeAppended, ConversationID: conversationID, MessageID: msg.ID}, persistErr)
	return msg.clone(), nil
}

// RenameConversation overwrites the title. It always rewrites, even when the
// title is unchanged.
func (s *ConversationStore) RenameConversation(ctx context.Context, conversationID, title string) error {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	conv.Title = title
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeRenamed, ConversationID: conversationID}, err)
	return nil
}

// DeleteConversation removes a conversation. If it was active the active id
// is cleared; no other conversation is selected in its place.
func (s *ConversationStore) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if _, ok := s.conversations[conversationID]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.conversations, conversationID)
	if s.activeID == conversationID {
		s.activeID = ""
	}
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.logger.Debug("conversation deleted", "conversation_id", conversationID)
	s.notify(Change{Kind: ChangeDeleted, ConversationID: conversationID}, err)
	return nil
}

// SetActiveConversationID selects a conversation, or none with "". The id is
// not validated; a stale id reads back as no active conversation.
func (s *ConversationStore) SetActiveConversationID(ctx context.Context, conversationID string) {
	s.mu.Lock()
	s.activeID = conversationID
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeActivated, ConversationID: conversationID}, err)
}

// ActiveConversationID returns the active id, or "" when none is set or the
// stored id no longer names a conversation.
func (s *ConversationStore) ActiveConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[s.activeID]; !ok {
		return ""
	}
	return s.activeID
}

// ActiveConversation returns a copy of the active conversation.
func (s *ConversationStore) ActiveConversation() (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[s.activeID]
	if !ok {
		return Conversation{}, false
	}
	return conv.clone(), true
}

// Conversation returns a copy of the conversation with the given id.
func (s *ConversationStore) Conversation(conversationID string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return Conversation{}, false
	}
	return conv.clone(), true
}

// Conversations returns copies of all conversations in creation order.
func (s *ConversationStore) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.clone())
	}
	slices.SortFunc(out, func(a, b Conversation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of conversations.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// Degraded reports whether the most recent write to durable storage failed.
func (s *ConversationStore) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

func (s *ConversationStore) notify(change Change, persistErr error) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(change)
	if persistErr != nil {
		s.notifier.Publish(Change{
			Kind:           ChangePersistFailed,
			ConversationID: change.ConversationID,
			Err:            persistErr,
		})
	}
}
