// ABOUTME: Non-interactive subcommands over the saved conversations
// ABOUTME: list, rename, delete and export address conversations by list number or id

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/insight-chat/internal/store"
)

var errUnknownConversation = errors.New("no such conversation")

// minPrefixLen is the shortest id prefix accepted as a reference.
const minPrefixLen = 4

// findConversation resolves ref as a 1-based list number, a full id or a
// unique id prefix.
func findConversation(convs []store.Conversation, ref string) (store.Conversation, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(convs) {
			return store.Conversation{}, fmt.Errorf("%w: #%d (have %d)", errUnknownConversation, n, len(convs))
		}
		return convs[n-1], nil
	}

	var match []store.Conversation
	for _, c := range convs {
		if c.ID == ref {
			return c, nil
		}
		if len(ref) >= minPrefixLen && strings.HasPrefix(c.ID, ref) {
			match = append(match, c)
		}
	}
	switch len(match) {
	case 0:
		return store.Conversation{}, fmt.Errorf("%w: %s", errUnknownConversation, ref)
	case 1:
		return match[0], nil
	default:
		return store.Conversation{}, fmt.Errorf("ambiguous conversation id %q matches %d conversations", ref, len(match))
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved conversations",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			term, err := a.terminal(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			term.Conversations(a.store.Conversations(), a.store.ActiveConversationID())
			return nil
		}),
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <n|id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			conv, err := findConversation(a.store.Conversations(), args[0])
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			if err := a.store.RenameConversation(cmd.Context(), conv.ID, title); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %q to %q\n", conv.Title, title)
			return nil
		}),
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <n|id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			conv, err := findConversation(a.store.Conversations(), args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeleteConversation(cmd.Context(), conv.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", conv.Title)
			return nil
		}),
	}
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export [n|id]",
		Short: "Export a conversation as a standalone HTML page",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			var conv store.Conversation
			if len(args) == 1 {
				found, err := findConversation(a.store.Conversations(), args[0])
				if err != nil {
					return err
				}
				conv = found
			} else {
				active, ok := a.store.ActiveConversation()
				if !ok {
					return errors.New("no active conversation; name one to export")
				}
				conv = active
			}

			path := output
			if path == "" {
				path = conv.ID + ".html"
			}
			if err := exportConversation(path, conv); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %q to %s\n", conv.Title, path)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <id>.html)")
	return cmd
}
