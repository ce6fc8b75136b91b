// ABOUTME: Gateway orchestrator that wires tool packs, the MCP server and the HTTP listener
// ABOUTME: Manages store, tailscale node, health endpoints and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/quip-gateway/internal/auth"
	"github.com/2389/quip-gateway/internal/builtins"
	"github.com/2389/quip-gateway/internal/config"
	"github.com/2389/quip-gateway/internal/mcp"
	"github.com/2389/quip-gateway/internal/packs"
	"github.com/2389/quip-gateway/internal/store"
)

// Gateway orchestrates the quip-gateway server components.
type Gateway struct {
	config      *config.Config
	store       *store.SQLiteStore // nil when call recording is disabled
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// packRegistry holds every servable tool
	packRegistry *packs.Registry

	// packRouter validates arguments and invokes handlers
	packRouter *packs.Router

	// dispatcher handles JSON-RPC messages for every transport
	dispatcher *mcp.Dispatcher

	// mcpServer serves /mcp and the discovery routes
	mcpServer *mcp.Server

	// mcpEndpoint is the advertised MCP URL (e.g., "http://localhost:8080/mcp")
	mcpEndpoint string
}

// initStore opens the call store, or returns nil when no database path is configured.
func initStore(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	if cfg.Database.Path == "" {
		logger.Info("database.path not set, tool call recording disabled")
		return nil, nil
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return s, nil
}

// initVerifier builds the token verifier, or returns nil when auth is disabled.
func initVerifier(cfg *config.Config, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret not set, MCP and API endpoints are unauthenticated")
		return nil, nil
	}
	v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	return v, nil
}

// registerBuiltinPacks registers every builtin pack not listed in tools.disabled.
func registerBuiltinPacks(registry *packs.Registry, cfg *config.Config, logger *slog.Logger) error {
	retryMax := config.DefaultRetryMax
	if cfg.Tools.RetryMax != nil {
		retryMax = *cfg.Tools.RetryMax
	}
	client := builtins.NewClient(builtins.ClientConfig{
		Timeout:   cfg.Tools.RequestTimeout,
		RetryMax:  retryMax,
		UserAgent: cfg.Tools.UserAgent,
		Logger:    logger,
	})

	ep := cfg.Tools.Endpoints
	endpoints := builtins.Endpoints{
		DadJokes:      ep.DadJokes,
		OfficialJokes: ep.OfficialJokes,
		ChuckNorris:   ep.ChuckNorris,
		JokeAPI:       ep.JokeAPI,
		CatFacts:      ep.CatFacts,
		UselessFacts:  ep.UselessFacts,
	}

	for _, pack := range []*packs.BuiltinPack{
		builtins.JokesPack(client, endpoints),
		builtins.FactsPack(client, endpoints),
	} {
		if slices.Contains(cfg.Tools.Disabled, pack.ID) {
			logger.Info("builtin pack disabled", "pack_id", pack.ID)
			continue
		}
		if err := registry.RegisterPack(pack); err != nil {
			return fmt.Errorf("registering %s pack: %w", pack.ID, err)
		}
	}
	return nil
}

// determineMCPEndpoint resolves the advertised MCP URL from config.
func determineMCPEndpoint(cfg *config.Config) string {
	if cfg.Tailscale.Enabled {
		scheme := "http"
		if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
			scheme = "https"
		}
		return scheme + "://" + cfg.Tailscale.Hostname + "/mcp"
	}
	return "http://" + cfg.Server.HTTPAddr + "/mcp"
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	mode, err := mcp.ParseMode(cfg.Transport.Mode)
	if err != nil {
		return nil, err
	}

	s, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	gw, err := build(cfg, mode, s, logger)
	if err != nil {
		if s != nil {
			_ = s.Close()
		}
		return nil, err
	}
	return gw, nil
}

func build(cfg *config.Config, mode mcp.Mode, s *store.SQLiteStore, logger *slog.Logger) (*Gateway, error) {
	verifier, err := initVerifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	packRegistry := packs.NewRegistry(logger.With("component", "pack-registry"))
	packRouter := packs.NewRouter(packs.RouterConfig{
		Registry: packRegistry,
		Logger:   logger.With("component", "pack-router"),
	})
	if err := registerBuiltinPacks(packRegistry, cfg, logger.With("component", "builtins")); err != nil {
		return nil, err
	}

	dispatcherCfg := mcp.DispatcherConfig{
		Registry:         packRegistry,
		Router:           packRouter,
		Logger:           logger.With("component", "dispatcher"),
		ServerName:       cfg.Server.Name,
		ServerVersion:    cfg.Server.Version,
		BatchConcurrency: cfg.Transport.BatchConcurrency,
	}
	if s != nil {
		dispatcherCfg.Recorder = s
	}
	dispatcher, err := mcp.NewDispatcher(dispatcherCfg)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Dispatcher:         dispatcher,
		Registry:           packRegistry,
		Logger:             logger.With("component", "mcp"),
		Mode:               mode,
		KeepaliveInterval:  cfg.Transport.KeepaliveInterval,
		SessionIdleTimeout: cfg.Transport.SessionIdleTimeout,
		TokenVerifier:      verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	gw := &Gateway{
		config:       cfg,
		store:        s,
		logger:       logger.With("component", "gateway"),
		packRegistry: packRegistry,
		packRouter:   packRouter,
		dispatcher:   dispatcher,
		mcpServer:    mcpServer,
		mcpEndpoint:  determineMCPEndpoint(cfg),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	gw.registerStatsRoutes(mux, verifier)
	gw.mcpServer.RegisterRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("gateway configured",
		"mode", mode,
		"tools", packRegistry.Count(),
		"recording", s != nil,
		"auth", verifier != nil,
		"mcp_endpoint", gw.mcpEndpoint,
	)

	return gw, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// MCPEndpoint returns the advertised MCP URL.
func (g *Gateway) MCPEndpoint() string {
	return g.mcpEndpoint
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer serves HTTP in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "mcp_endpoint", g.mcpEndpoint)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the gateway and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown closes open MCP sessions, then stops the HTTP server, the
// tailscale node and the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	// Streams hold their requests open; end them before draining HTTP.
	g.mcpServer.Close()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}

	g.packRegistry.Close()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once at least one tool is registered.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	tools := g.packRegistry.Count()
	if tools == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no tools registered"))
		return
	}
	stats := g.mcpServer.Stats()
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d tools, %d sessions)", tools, stats.OpenSessions)
}
