// ABOUTME: Minimal fake analysis service for demos and E2E testing of the insight client
// ABOUTME: Usage: fake-analyst [--addr localhost:8000] [--jwt-secret s] [--delay 1s]

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2389/insight-chat/internal/auth"
	"github.com/2389/insight-chat/internal/logging"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	addr      string
	jwtSecret string
	delay     time.Duration
	logLevel  string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	cobra.CheckErr(err)
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "fake-analyst",
		Short:        "Serve canned analysis replies on /api/chat",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(logging.NewColorHandler(os.Stderr, logging.ParseLevel(opts.logLevel)))

			ln, err := net.Listen("tcp", opts.addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", opts.addr, err)
			}
			return serve(cmd.Context(), ln, opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "localhost:8000", "listen address")
	cmd.Flags().StringVar(&opts.jwtSecret, "jwt-secret", os.Getenv("INSIGHT_JWT_SECRET"), "require HS256 bearer tokens signed with this secret")
	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "wait this long before answering")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	return cmd
}

// serve runs the service on ln until ctx is cancelled, then shuts down
// gracefully.
func serve(ctx context.Context, ln net.Listener, opts options, logger *slog.Logger) error {
	var verifier auth.TokenVerifier
	if opts.jwtSecret != "" {
		verifier = auth.NewServiceTokens([]byte(opts.jwtSecret))
	}

	srv := &http.Server{
		Handler:           newAnalyst(opts.delay, logger).routes(verifier),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("fake analyst listening",
		"addr", ln.Addr().String(),
		"auth", verifier != nil,
		"delay", opts.delay)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		// ctx is already cancelled here; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
