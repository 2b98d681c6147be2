package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flitsinc/agentboard/internal/api"
	"github.com/flitsinc/agentboard/internal/tracing"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Seed the roster and serve the dashboard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides AGENTBOARD_HTTP_ADDR)")
	return cmd
}

func serve(ctx context.Context, addr string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}

	shutdownTracing, err := tracing.Setup(ctx, a.cfg.Trace)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(tctx)
	}()

	if err := a.registry.Seed(ctx); err != nil {
		return fmt.Errorf("seed roster: %w", err)
	}
	if a.cfg.APIKey == "" {
		a.logger.Warn("AGENTBOARD_API_KEY is not set; write endpoints will refuse requests")
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	apiServer := &api.Server{
		Store:     a.store,
		Registry:  a.registry,
		Log:       a.log,
		Missions:  a.missions,
		Messages:  a.messages,
		Policies:  a.policies,
		Status:    a.status,
		APIKey:    a.cfg.APIKey,
		RateLimit: a.cfg.RateLimit,
		Logger:    a.logger,
		StartedAt: time.Now(),
	}
	apiHandler := apiServer.Handler(serverCtx)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/status.json", apiHandler)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return serverCtx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("agentboard listening", "addr", listener.Addr().String(), "db", a.cfg.DBPath)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	serverCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown", "error", err)
	}
	_ = httpServer.Close()
	return nil
}
