// Package conversation runs the message round trip and fans out store changes.
//
// # Pipeline
//
// The Pipeline coordinates one send:
//
//	p := conversation.New(convStore, transportClient, cfg.Service.Timeout, logger)
//	msg, err := p.Send(ctx, convStore.ActiveConversationID(), input)
//
// Key principle: record first, then act. Each accepted send
//
//  1. appends the user message (and titles a fresh conversation with it)
//  2. submits the query with the prior history, excluding the seed message
//  3. appends the resolved reply, or one error message on failure
//
// Blank input, a missing conversation and a send while another is in flight
// are rejected without touching the store. Failed queries are never retried.
//
// # Broadcaster
//
// Broadcaster implements store.Notifier and fans changes out to channel
// subscribers, either per conversation or for all of them:
//
//	b := conversation.NewBroadcaster(logger)
//	s := store.New(kvStore, store.WithNotifier(b))
//	changes, _ := b.Subscribe(ctx, conversation.AllConversations)
package conversation
