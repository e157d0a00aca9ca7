// ABOUTME: insight CLI: chat with the analysis service and manage saved conversations
// ABOUTME: Loads config, sets up logging, opens the kv backend and hydrates the store

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/insight-chat/internal/auth"
	"github.com/2389/insight-chat/internal/config"
	"github.com/2389/insight-chat/internal/conversation"
	"github.com/2389/insight-chat/internal/kv"
	"github.com/2389/insight-chat/internal/logging"
	"github.com/2389/insight-chat/internal/render"
	"github.com/2389/insight-chat/internal/store"
	"github.com/2389/insight-chat/internal/transport"
)

var configPath string

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	cobra.CheckErr(err)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "insight",
		Short:         "insight is a terminal client for the sales analysis assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $INSIGHT_CONFIG or ~/.config/insight/config.yaml)")

	root.AddCommand(
		newChatCmd(),
		newListCmd(),
		newRenameCmd(),
		newDeleteCmd(),
		newExportCmd(),
	)
	return root
}

// app holds everything a subcommand needs once config has been loaded.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	kv          kv.Store
	store       *store.ConversationStore
	broadcaster *conversation.Broadcaster
	logCloser   io.Closer
}

// openApp loads configuration and hydrates the conversation store. The
// caller must Close the result.
func openApp(ctx context.Context, stderr io.Writer) (*app, error) {
	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	return openAppWithConfig(ctx, cfg, stderr)
}

func openAppWithConfig(ctx context.Context, cfg *config.Config, stderr io.Writer) (*app, error) {
	logger, logCloser, err := logging.Setup(cfg.Logging, stderr)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}

	kvStore, err := kv.Open(ctx, cfg.KVOptions())
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}

	broadcaster := conversation.NewBroadcaster(logger)
	st := store.New(kvStore, store.WithNotifier(broadcaster), store.WithLogger(logger))
	st.Hydrate(ctx)

	logger.Debug("store hydrated",
		"backend", cfg.Storage.Backend,
		"conversations", st.Len(),
		"active", st.ActiveConversationID())

	return &app{
		cfg:         cfg,
		logger:      logger,
		kv:          kvStore,
		store:       st,
		broadcaster: broadcaster,
		logCloser:   logCloser,
	}, nil
}

// Close releases the storage backend and the log file.
func (a *app) Close() {
	a.broadcaster.Close()
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("failed to close storage", "error", err)
	}
	a.logCloser.Close()
}

// client builds the transport for the configured service. A JWT secret
// mints a short-lived token per request unless a static token is set.
func (a *app) client() *transport.Client {
	svc := a.cfg.Service
	cfg := transport.Config{
		URL:      svc.URL,
		Encoding: transport.Encoding(svc.Encoding),
		Token:    svc.Token,
		Subject:  svc.Subject,
	}
	if svc.JWTSecret != "" {
		cfg.Signer = auth.NewServiceTokens([]byte(svc.JWTSecret))
	}
	return transport.NewClient(cfg, a.logger)
}

func (a *app) terminal(out io.Writer) (*render.Terminal, error) {
	return render.NewTerminal(out, render.TerminalOptions{
		Theme:    a.cfg.UI.Theme,
		Width:    a.cfg.UI.Width,
		PageSize: a.cfg.UI.PageSize,
	})
}

// withApp adapts a subcommand body that needs an open app.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}
