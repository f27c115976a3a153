// ABOUTME: Gateway orchestrator that wires stores, the dispatch engine and HTTP routes
// ABOUTME: Manages listeners (TCP or tailnet), background janitors and shutdown

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/coven-concierge/internal/admin"
	"github.com/2389/coven-concierge/internal/auth"
	"github.com/2389/coven-concierge/internal/config"
	"github.com/2389/coven-concierge/internal/conversation"
	"github.com/2389/coven-concierge/internal/dedupe"
	"github.com/2389/coven-concierge/internal/metrics"
	"github.com/2389/coven-concierge/internal/reply"
	"github.com/2389/coven-concierge/internal/session"
	"github.com/2389/coven-concierge/internal/store"
	"github.com/2389/coven-concierge/internal/whatsapp"
)

const (
	// dedupeTTL covers the platform's redelivery horizon for one message.
	dedupeTTL      = 10 * time.Minute
	dedupeCapacity = 100_000

	// janitorInterval is how often expired SQLite sessions are purged.
	janitorInterval = 10 * time.Minute
)

// Sender delivers a reply to a user on the messaging channel.
type Sender interface {
	Send(ctx context.Context, to string, r reply.Reply) error
}

// Gateway owns every long-lived component of concierge-gateway.
type Gateway struct {
	config      *config.Config
	catalog     *store.SQLiteStore
	sessions    session.Store
	redis       redis.UniversalClient // nil unless the redis backend is selected
	janitor     *session.SQLiteStore  // nil unless the sqlite backend is selected
	engine      *conversation.Engine
	metrics     *metrics.Metrics
	feed        *conversation.Feed
	dedupe      *dedupe.Window
	limiter     *clientLimiter
	sender      Sender
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// stopJanitor ends the session purge loop
	stopJanitor context.CancelFunc
}

// New creates a Gateway from configuration. Stores are opened and the
// catalog seed, if configured, is imported before New returns.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	catalog, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening record store: %w", err)
	}

	gw := &Gateway{
		config:  cfg,
		catalog: catalog,
		metrics: metrics.New(),
		feed:    conversation.NewFeed(logger),
		dedupe:  dedupe.NewWindow(dedupeTTL, dedupeCapacity, time.Minute),
		limiter: newClientLimiter(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests),
		logger:  logger.With("component", "gateway"),
	}

	if err := gw.seedCatalog(); err != nil {
		gw.closeComponents()
		return nil, err
	}

	if err := gw.initSessions(logger); err != nil {
		gw.closeComponents()
		return nil, err
	}

	gw.engine = conversation.New(gw.sessions, catalog, conversation.Options{
		SupportMessage: cfg.Support.Message,
		CatalogTimeout: cfg.Catalog.Timeout,
		Observer:       gw.metrics,
	}, logger)

	if cfg.WhatsApp.Enabled {
		gw.sender = whatsapp.NewClient(whatsapp.Config{
			APIURL:        cfg.WhatsApp.APIURL,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			AccessToken:   cfg.WhatsApp.AccessToken,
		}, logger)
	}

	guard, err := adminGuard(cfg.Admin, logger)
	if err != nil {
		gw.closeComponents()
		return nil, err
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(guard),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// seedCatalog imports catalog.seed_file when configured.
func (g *Gateway) seedCatalog() error {
	path := g.config.Catalog.SeedFile
	if path == "" {
		return nil
	}
	seed, err := store.LoadSeed(path)
	if err != nil {
		return fmt.Errorf("loading catalog seed: %w", err)
	}
	if err := seed.Apply(context.Background(), g.catalog); err != nil {
		return fmt.Errorf("applying catalog seed: %w", err)
	}
	g.logger.Info("catalog seeded", "file", path, "products", len(seed.Products), "faqs", len(seed.FAQs))
	return nil
}

// initSessions opens the configured session backend.
func (g *Gateway) initSessions(logger *slog.Logger) error {
	opts := session.Options{
		TTL:          g.config.Session.TTL,
		HistoryLimit: g.config.Session.HistoryLimit,
		OpTimeout:    g.config.Session.OpTimeout,
	}

	switch g.config.Session.Backend {
	case config.BackendSQLite:
		s, err := session.NewSQLiteStore(g.catalog.DB(), opts, logger)
		if err != nil {
			return fmt.Errorf("opening sqlite session store: %w", err)
		}
		g.sessions = s
		g.janitor = s
	case config.BackendRedis:
		g.redis = redis.NewClient(&redis.Options{
			Addr:     g.config.Redis.Addr,
			Password: g.config.Redis.Password,
			DB:       g.config.Redis.DB,
		})
		g.sessions = session.NewRedisStore(g.redis, opts, logger)

		// Redis may come up after us; readiness reports it until then.
		ctx, cancel := context.WithTimeout(context.Background(), g.config.Session.OpTimeout)
		defer cancel()
		if err := g.sessions.Ping(ctx); err != nil {
			g.logger.Warn("redis not reachable at startup", "addr", g.config.Redis.Addr, "error", err)
		}
	default:
		return fmt.Errorf("unknown session backend %q", g.config.Session.Backend)
	}

	g.logger.Info("session store ready", "backend", g.config.Session.Backend, "ttl", opts.TTL)
	return nil
}

// adminGuard builds the admin auth middleware. It returns nil when no admin
// credentials are configured.
func adminGuard(cfg config.AdminConfig, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	var keys *auth.APIKeyVerifier
	if cfg.APIKeyHash != "" {
		v, err := auth.NewAPIKeyVerifier(cfg.APIKeyHash)
		if err != nil {
			return nil, fmt.Errorf("admin.api_key_hash: %w", err)
		}
		keys = v
	}

	var tokens auth.TokenVerifier
	if cfg.JWTSecret != "" {
		tokens = auth.NewJWTVerifier([]byte(cfg.JWTSecret))
	}

	if keys == nil && tokens == nil {
		return nil, nil
	}
	return auth.AdminMiddleware(keys, tokens, logger), nil
}

// routes builds the HTTP handler tree.
func (g *Gateway) routes(guard func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(g.logger))
	r.Use(chiMiddleware.Recoverer)

	// Health endpoints - no auth, no rate limit
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	if g.config.Metrics.Enabled {
		r.Method(http.MethodGet, g.config.Metrics.Path, g.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(g.limiter.Middleware(func(req *http.Request) {
			g.metrics.WebhookMessage("rate_limited")
			g.logger.Warn("rate limited", "remote", req.RemoteAddr, "path", req.URL.Path)
		}))

		if g.config.WhatsApp.Enabled {
			r.Get("/webhook", g.handleWebhookVerify)
			r.Post("/webhook", g.handleWebhook)
		}

		r.Group(func(r chi.Router) {
			if guard != nil {
				r.Use(guard)
			} else {
				g.logger.Warn("no admin credentials configured: /api/dispatch is unauthenticated and /admin is disabled")
			}
			r.Post("/api/dispatch", g.handleDispatch)
		})

		if guard != nil {
			admin.NewHandler(g.sessions, g.catalog, g.feed, g.logger).RegisterRoutes(r, guard)
		}
	})

	return r
}

// requestLogger logs each request through slog with chi's request id.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"request_id", chiMiddleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}

// Handler exposes the route tree, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// setupTCPListener creates the standard TCP listener.
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
				"http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	if g.janitor != nil {
		janitorCtx, cancel := context.WithCancel(context.Background())
		g.stopJanitor = cancel
		go g.janitor.RunJanitor(janitorCtx, janitorInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "coven-concierge", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and returns the HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	switch {
	case tsCfg.Funnel:
		// Meta can only reach the webhook through Funnel.
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeComponents releases stores and background loops. Safe on a
// partially built gateway.
func (g *Gateway) closeComponents() []error {
	var errs []error
	if g.stopJanitor != nil {
		g.stopJanitor()
	}
	if g.dedupe != nil {
		g.dedupe.Close()
	}
	if g.feed != nil {
		g.feed.Close()
	}
	if g.redis != nil {
		errs = appendCloseError(errs, "redis close", g.redis.Close())
	}
	if g.catalog != nil {
		errs = appendCloseError(errs, "store close", g.catalog.Close())
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	errs = append(errs, g.closeComponents()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// handleReady returns 200 OK when both the session and record stores answer.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), g.config.Session.OpTimeout)
	defer cancel()

	if err := g.sessions.Ping(ctx); err != nil {
		g.logger.Warn("readiness: session store", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("session store unavailable"))
		return
	}
	if err := g.catalog.Ping(ctx); err != nil {
		g.logger.Warn("readiness: record store", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("record store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
