// Package api provides HTTP handlers and the main API server logic for GutCheck.
//
// It exposes RESTful endpoints for conversation turns, conversation lifecycle
// management, and the helpline directory. The API integrates the flow, store,
// and genai modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gutcheck/gutcheck/internal/flow"
	"github.com/gutcheck/gutcheck/internal/genai"
	"github.com/gutcheck/gutcheck/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// shutdownTimeout bounds how long in-flight requests may drain on shutdown.
const shutdownTimeout = 10 * time.Second

// Opts holds configuration for the API server.
type Opts struct {
	Addr          string
	DefaultRegion string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithDefaultRegion sets the helpline region assumed when a profile has none.
func WithDefaultRegion(region string) Option {
	return func(o *Opts) { o.DefaultRegion = region }
}

// Server bundles the conversation core behind the HTTP surface.
type Server struct {
	flow *flow.ConversationFlow
	st   store.Store
	addr string
}

// NewServer creates an API server around an assembled conversation flow.
func NewServer(conversationFlow *flow.ConversationFlow, st store.Store, opts ...Option) *Server {
	options := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&options)
	}
	slog.Debug("Server.NewServer: creating API server", "addr", options.Addr)
	return &Server{
		flow: conversationFlow,
		st:   st,
		addr: options.Addr,
	}
}

// routes registers all endpoint handlers on a fresh mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/conversations/", s.conversationsHandler)
	mux.HandleFunc("/profiles/", s.profilesHandler)
	mux.HandleFunc("/helplines", s.helplinesHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run assembles the full service from module options and serves until the
// process receives an interrupt or termination signal.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	options := Opts{Addr: DefaultAddr, DefaultRegion: flow.DefaultRegion}
	for _, opt := range apiOpts {
		opt(&options)
	}

	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	genaiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize completion client: %w", err)
	}

	deps := flow.Dependencies{
		StateManager: flow.NewStoreBasedStateManager(st),
		Profiles:     st,
	}
	conversationFlow := flow.NewConversationFlow(deps, genaiClient, flow.WithDefaultRegion(options.DefaultRegion))

	server := NewServer(conversationFlow, st, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx)
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Serve: API server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Server.Serve: shutdown signal received, draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Serve: graceful shutdown failed", "error", err)
			return err
		}
		return <-errCh
	}
}
