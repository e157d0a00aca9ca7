// ABOUTME: Interactive chat loop: readline-style input, slash commands, one query in flight
// ABOUTME: Replies arrive on a channel so the prompt stays usable while the service thinks

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/insight-chat/internal/conversation"
	"github.com/2389/insight-chat/internal/render"
	"github.com/2389/insight-chat/internal/store"
)

func newChatCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the analysis service",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if url != "" {
				a.cfg.Service.URL = url
			}
			term, err := a.terminal(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "insight connected to %s\n", a.cfg.Service.URL)
			switch {
			case a.cfg.Service.Token != "":
				fmt.Fprintln(cmd.OutOrStdout(), "Auth: static token")
			case a.cfg.Service.JWTSecret != "":
				fmt.Fprintln(cmd.OutOrStdout(), "Auth: signed per-request JWT")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Type a question and press Enter. /help for commands. Ctrl+C to quit.")
			fmt.Fprintln(cmd.OutOrStdout())

			s := newSession(a, term, cmd.OutOrStdout())
			if err := s.run(cmd.Context(), cmd.InOrStdin()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\nGoodbye!")
			return nil
		}),
	}
	cmd.Flags().StringVar(&url, "url", "", "analysis service endpoint (overrides config)")
	return cmd
}

const selectPrompt = "Select a conversation to begin (/use <n>) or start one with /new."

// sendResult is what a finished Send reports back to the loop.
type sendResult struct {
	conversationID string
	msg            *store.Message
	err            error
}

// session is one interactive chat. Only the loop goroutine touches its
// fields; the in-flight send reports back through replies.
type session struct {
	store        *store.ConversationStore
	pipeline     *conversation.Pipeline
	broadcaster  *conversation.Broadcaster
	term         *render.Terminal
	out          io.Writer
	defaultTitle string

	cursor  *render.Cursor
	pending bool
	replies chan sendResult
	warned  bool
}

func newSession(a *app, term *render.Terminal, out io.Writer) *session {
	return &session{
		store:        a.store,
		pipeline:     conversation.New(a.store, a.client(), a.cfg.Service.Timeout, a.logger),
		broadcaster:  a.broadcaster,
		term:         term,
		out:          out,
		defaultTitle: a.cfg.UI.DefaultTitle,
		replies:      make(chan sendResult, 1),
	}
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	changes, subID := s.broadcaster.Subscribe(ctx, conversation.AllConversations)
	defer s.broadcaster.Unsubscribe(conversation.AllConversations, subID)

	s.start(ctx)

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			readErr <- err
			return
		}
		readErr <- io.EOF
	}()

	s.prompt()
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil

		case err := <-readErr:
			s.drain()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)

		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.observe(change)

		case res := <-s.replies:
			s.deliver(res)
			s.prompt()

		case line := <-lines:
			if s.handle(ctx, strings.TrimSpace(line)) {
				s.drain()
				return nil
			}
			s.prompt()
		}
	}
}

// start makes sure there is something to talk to: an empty store gets a
// fresh conversation, otherwise the active one is replayed.
func (s *session) start(ctx context.Context) {
	if s.store.Len() == 0 {
		s.store.CreateConversation(ctx, s.defaultTitle)
	}
	conv, ok := s.store.ActiveConversation()
	if !ok {
		s.term.Conversations(s.store.Conversations(), "")
		s.term.Notice(selectPrompt)
		return
	}
	s.cursor = s.term.Transcript(conv)
}

// handle processes one input line. It reports true when the user asked to
// quit.
func (s *session) handle(ctx context.Context, input string) bool {
	if input == "" {
		return false
	}
	if !strings.HasPrefix(input, "/") {
		s.send(ctx, input)
		return false
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		printHelp(s.out)
	case "/new":
		id := s.store.CreateConversation(ctx, arg)
		if conv, ok := s.store.Conversation(id); ok {
			s.cursor = s.term.Transcript(conv)
		}
	case "/list":
		s.term.Conversations(s.store.Conversations(), s.store.ActiveConversationID())
	case "/use":
		s.use(ctx, arg)
	case "/rename":
		s.rename(ctx, arg)
	case "/delete":
		s.delete(ctx, arg)
	case "/more":
		if !s.term.More(s.cursor) {
			s.term.Notice("Nothing more to show.")
		}
	case "/export":
		s.export(arg)
	default:
		s.term.Notice("Unknown command %s. /help for commands.", cmd)
	}
	return false
}

// send hands input to the pipeline on its own goroutine. While a reply is
// pending further questions are dropped, never queued.
func (s *session) send(ctx context.Context, input string) {
	if s.pending {
		s.term.Notice("Still waiting for the previous reply.")
		return
	}
	conversationID := s.store.ActiveConversationID()
	if _, ok := s.store.Conversation(conversationID); !ok {
		s.term.Notice(selectPrompt)
		return
	}

	s.pending = true
	s.term.Notice("thinking…")
	go func() {
		msg, err := s.pipeline.Send(ctx, conversationID, input)
		s.replies <- sendResult{conversationID: conversationID, msg: msg, err: err}
	}()
}

// deliver prints a finished send. Replies to a conversation that is no
// longer active are announced rather than printed inline.
func (s *session) deliver(res sendResult) {
	s.pending = false
	switch {
	case errors.Is(res.err, conversation.ErrBusy):
		s.term.Notice("Still waiting for the previous reply.")
	case errors.Is(res.err, conversation.ErrNoActiveConversation):
		s.term.Notice(selectPrompt)
	case errors.Is(res.err, conversation.ErrBlankInput):
	case res.err != nil:
		s.term.Warning("%v", res.err)
	case res.conversationID != s.store.ActiveConversationID():
		title := res.conversationID
		if conv, ok := s.store.Conversation(res.conversationID); ok {
			title = conv.Title
		}
		s.term.Notice("Reply recorded in %q.", title)
	default:
		s.cursor = s.term.Message(*res.msg)
	}
}

// drain waits for an in-flight send so its outcome is recorded before the
// store closes.
func (s *session) drain() {
	if s.pending {
		s.deliver(<-s.replies)
	}
}

// observe warns once each time persistence starts failing.
func (s *session) observe(change store.Change) {
	if change.Kind != store.ChangePersistFailed {
		if s.warned && !s.store.Degraded() {
			s.warned = false
			s.term.Notice("Storage recovered; conversations are being saved again.")
		}
		return
	}
	if s.warned {
		return
	}
	s.warned = true
	s.term.Warning("Conversations are not being saved: %v", change.Err)
}

func (s *session) use(ctx context.Context, ref string) {
	if ref == "" {
		s.term.Notice("Usage: /use <n|id>")
		return
	}
	conv, err := findConversation(s.store.Conversations(), ref)
	if err != nil {
		s.term.Warning("%v", err)
		return
	}
	s.store.SetActiveConversationID(ctx, conv.ID)
	s.cursor = s.term.Transcript(conv)
}

func (s *session) rename(ctx context.Context, title string) {
	if title == "" {
		s.term.Notice("Usage: /rename <title>")
		return
	}
	id := s.store.ActiveConversationID()
	if err := s.store.RenameConversation(ctx, id, title); err != nil {
		s.term.Notice(selectPrompt)
		return
	}
	s.term.Notice("Renamed to %q.", title)
}

func (s *session) delete(ctx context.Context, ref string) {
	id := s.store.ActiveConversationID()
	if ref != "" {
		conv, err := findConversation(s.store.Conversations(), ref)
		if err != nil {
			s.term.Warning("%v", err)
			return
		}
		id = conv.ID
	}
	conv, ok := s.store.Conversation(id)
	if !ok {
		s.term.Notice("Nothing to delete.")
		return
	}
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		s.term.Warning("%v", err)
		return
	}
	s.term.Notice("Deleted %q.", conv.Title)
	if s.store.ActiveConversationID() == "" {
		s.cursor = nil
		s.term.Notice(selectPrompt)
	}
}

func (s *session) export(path string) {
	if path == "" {
		s.term.Notice("Usage: /export <file.html>")
		return
	}
	conv, ok := s.store.ActiveConversation()
	if !ok {
		s.term.Notice(selectPrompt)
		return
	}
	if err := exportConversation(path, conv); err != nil {
		s.term.Warning("%v", err)
		return
	}
	s.term.Notice("Exported %q to %s.", conv.Title, path)
}

func (s *session) prompt() {
	if conv, ok := s.store.ActiveConversation(); ok {
		fmt.Fprintf(s.out, "[%s]> ", conv.Title)
		return
	}
	fmt.Fprint(s.out, "> ")
}

// printHelp displays available commands.
func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /new [title]      Start a new conversation")
	fmt.Fprintln(out, "  /list             List conversations (* marks the active one)")
	fmt.Fprintln(out, "  /use <n|id>       Switch to a conversation")
	fmt.Fprintln(out, "  /rename <title>   Rename the active conversation")
	fmt.Fprintln(out, "  /delete [n|id]    Delete a conversation (default: active)")
	fmt.Fprintln(out, "  /more             Show the next page of the last chart")
	fmt.Fprintln(out, "  /export <file>    Save the active conversation as HTML")
	fmt.Fprintln(out, "  /help             Show this help")
	fmt.Fprintln(out, "  /quit             Exit")
}

// exportConversation writes conv as a standalone HTML page.
func exportConversation(path string, conv store.Conversation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := render.ExportHTML(f, conv); err != nil {
		f.Close()
		return fmt.Errorf("exporting conversation: %w", err)
	}
	return f.Close()
}
