// Package store holds the conversation state of the client.
//
// # Model
//
//   - Conversation: id, title and an append-only list of messages. Every
//     conversation starts with one assistant seed message.
//   - Message: sender (user, assistant), kind (text, chart, error), text and,
//     for chart messages only, a ChartSpec.
//   - ChartSpec: chart type, ordered unique data keys and the row records.
//
// # ConversationStore
//
// ConversationStore is constructed once per session, hydrated from a kv.Store
// and then mutated only through its methods:
//
//	s := store.New(kvStore, store.WithNotifier(broadcaster), store.WithLogger(logger))
//	s.Hydrate(ctx)
//	id := s.CreateConversation(ctx, "")
//	msg, err := s.AppendMessage(ctx, id, store.NewMessage{...})
//
// Reads return deep copies, so callers can never reach into the store's
// state directly.
//
// # Persistence
//
// Every mutation writes the whole root (a JSON object keyed by conversation
// id) and the active id through to the kv layer under two fixed keys. Write
// failures are logged and swallowed: the in-memory mutation stands, Degraded
// reports true and a ChangePersistFailed change is published so a UI can show
// a non-fatal warning.
//
// # Errors
//
//   - ErrNotFound: the conversation does not exist
//   - ErrMalformedMessage: a chart message without a complete ChartSpec
package store
