// ABOUTME: Write-through persistence and startup hydration for ConversationStore
// ABOUTME: Two fixed keys: the JSON store root and the active conversation id

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Keys under which the store is persisted.
const (
	ConversationsKey = "insight.conversations"
	ActiveKey        = "insight.active_conversation"
)

// persistTimeout bounds a single write-through so a stuck backend cannot
// hold the store lock forever.
const persistTimeout = 5 * time.Second

// persistLocked writes the full root and the active id. Failures are logged
// and returned for notification; the in-memory state is never rolled back.
// Caller must hold s.mu.
func (s *ConversationStore) persistLocked(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	// Detached from caller cancellation, like the reconcile step it follows.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	err := s.writeLocked(saveCtx)
	if err != nil {
		s.logger.Warn("failed to persist conversations, continuing in memory",
			"error", err,
			"conversations", len(s.conversations))
		s.degraded = true
		return err
	}
	if s.degraded {
		s.logger.Info("durable storage recovered")
	}
	s.degraded = false
	return nil
}

func (s *ConversationStore) writeLocked(ctx context.Context) error {
	root, err := json.Marshal(s.conversations)
	if err != nil {
		return fmt.Errorf("encoding conversations: %w", err)
	}

	var errs []error
	if err := s.kv.Set(ctx, ConversationsKey, string(root)); err != nil {
		errs = append(errs, err)
	}
	if s.activeID == "" {
		if err := s.kv.Delete(ctx, ActiveKey); err != nil {
			errs = append(errs, err)
		}
	} else if err := s.kv.Set(ctx, ActiveKey, s.activeID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Hydrate replaces the in-memory state with what durable storage holds. A
// missing, unreadable or corrupt root yields an empty store; a missing
// active id yields none. Hydrate never fails.
func (s *ConversationStore) Hydrate(ctx context.Context) {
	conversations := s.loadConversations(ctx)
	activeID := s.loadActiveID(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = conversations
	s.activeID = activeID
	s.lastCreated = time.Time{}
	for _, c := range conversations {
		if c.CreatedAt.After(s.lastCreated) {
			s.lastCreated = c.CreatedAt
		}
	}

	s.logger.Debug("conversations hydrated",
		"conversations", len(conversations),
		"active_conversation_id", activeID)
}

func (s *ConversationStore) loadConversations(ctx context.Context) map[string]*Conversation {
	empty := make(map[string]*Conversation)
	if s.kv == nil {
		return empty
	}

	raw, ok, err := s.kv.Get(ctx, ConversationsKey)
	if err != nil {
		s.logger.Warn("failed to read conversations, starting empty", "error", err)
		return empty
	}
	if !ok || raw == "" {
		return empty
	}

	var decoded map[string]*Conversation
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		s.logger.Warn("corrupt conversations entry, starting empty", "error", err)
		return empty
	}

	out := make(map[string]*Conversation, len(decoded))
	for key, c := range decoded {
		if c == nil {
			continue
		}
		if c.ID == "" {
			c.ID = key
		}
		out[c.ID] = c
	}
	return out
}

func (s *ConversationStore) loadActiveID(ctx context.Context) string {
	if s.kv == nil {
		return ""
	}
	id, ok, err := s.kv.Get(ctx, ActiveKey)
	if err != nil {
		s.logger.Warn("failed to read active conversation id", "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return id
}
