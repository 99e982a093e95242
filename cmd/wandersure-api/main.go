// Package main is the entry point for the wandersure-api server.
// Note: traveller accounts and conversation state live with the agent
// frontends; this service is the platform core their tool calls land on.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wandersure/wandersure-api/internal/auth"
	"github.com/wandersure/wandersure-api/internal/config"
	"github.com/wandersure/wandersure-api/internal/constants"
	"github.com/wandersure/wandersure-api/internal/database"
	"github.com/wandersure/wandersure-api/internal/http/handlers"
	"github.com/wandersure/wandersure-api/internal/http/mw"
	"github.com/wandersure/wandersure-api/internal/http/routes"
	"github.com/wandersure/wandersure-api/internal/logging"
	"github.com/wandersure/wandersure-api/internal/mcp"
	"github.com/wandersure/wandersure-api/internal/repository"
	"github.com/wandersure/wandersure-api/internal/service"
	"github.com/wandersure/wandersure-api/internal/shutdown"
	"github.com/wandersure/wandersure-api/internal/version"
	"github.com/wandersure/wandersure-api/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	// Log version info first thing
	v := version.Get()
	logger.Info("starting wandersure-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize the transactional store
	db, err := database.New(cfg.DatabaseURL, cfg.TursoURL, cfg.TursoAuthToken)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Run migrations (with logging for each migration applied)
	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if schemaVersion, err := database.SchemaVersion(db); err != nil {
		logger.Warn("failed to read schema version", "error", err)
	} else if schemaVersion != "" {
		logger.Info("database schema ready", "schema_version", schemaVersion)
	}

	// Initialize repositories
	repos := repository.NewRepositories(db)

	// Initialize services
	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer services.Close()

	// Sweep payments whose checkout window closed while the server was down.
	// The background worker only covers windows from now on.
	if count, err := services.Payment.ExpireStale(context.Background()); err != nil {
		logger.Warn("startup expiry sweep failed", "error", err)
	} else if count > 0 {
		logger.Info("expired stale payments from previous runs", "count", count)
	}

	// Agent key overlay from S3 (optional)
	var keyLoader *config.AgentKeyLoader
	if cfg.S3Configured() {
		s3Client, err := config.NewS3Client(context.Background(), cfg)
		if err != nil {
			logger.Error("failed to create S3 client", "error", err)
			os.Exit(1)
		}
		keyLoader = config.NewAgentKeyLoader(s3Client, cfg.ConfigBucket, logger)
		if err := keyLoader.Refresh(context.Background()); err != nil {
			logger.Warn("initial agent key load failed", "error", err)
		}
		logger.Info("agent key overlay enabled", "bucket", cfg.ConfigBucket, "keys", keyLoader.Count())
	}

	verifier := auth.NewVerifier(cfg.ServiceAuthSecret, cfg.AgentAPIKeys, keyLoader, logger)

	// Start the payment expiry worker
	ctx, cancel := context.WithCancel(context.Background())
	expiryWorker := worker.New(services.Payment, worker.Config{
		PollInterval: cfg.ExpiryPollInterval,
	}, logger)
	expiryWorker.Start(ctx)

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)

	// Idle monitor for scale-to-zero deployments (inert unless IDLE_TIMEOUT
	// is set). Pending payments are safe across a stop: Stripe re-delivers
	// webhooks and the expiry sweep catches up on the next start.
	idle := shutdown.NewIdleMonitor(shutdown.IdleConfig{
		Timeout:      cfg.IdleTimeout,
		ExcludePaths: []string{"/healthz", "/readyz"},
		Logger:       logger,
	})
	router.Use(idle.Middleware)
	idle.Start()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())
	router.Use(mw.CacheHeaders(mw.DefaultCacheConfig()))

	// Request timeout middleware with different timeouts per endpoint class.
	// Claims insights and upstream pricing sit on slow LLM and partner calls;
	// MCP sessions are long-lived streams managed by client disconnect.
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          cfg.RequestTimeout,
		Extended:         cfg.ExtendedRequestTimeout,
		ExtendedPatterns: []string{"/claims-insights", "/quotation"},
		SkipPatterns:     []string{"/mcp"},
	}))
	router.Use(mw.ExtendWriteDeadline([]string{"/claims-insights", "/quotation", "/mcp"}, cfg.ExtendedRequestTimeout))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "X-API-Version", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit - prevent large payload attacks
	router.Use(middleware.RequestSize(constants.MaxRequestBodyBytes))

	// Global rate limit by IP (fallback for unauthenticated requests)
	router.Use(mw.RateLimitByIP(constants.GlobalIPRateLimitPerMinute))

	// Authenticate early when a credential is present so the per-client rate
	// limit keys on the agent, not its egress IP. Enforcement happens per
	// operation in the Huma auth middleware, which reuses this identity.
	router.Use(mw.OptionalAuth(verifier))
	router.Use(mw.RateLimitByClient(mw.DefaultRateLimitConfig()))

	// Global concurrency throttle - prevent system overload
	router.Use(middleware.Throttle(constants.ThrottleLimit))

	// Handlers take interfaces; a missing service must stay a nil interface
	// so the handlers' own unavailability checks fire.
	var (
		policyRouter   handlers.PolicyRouter
		conceptSearch  handlers.ConceptSearcher
		claimsAnalyzer handlers.ClaimsAnalyzer
		pricingClient  handlers.PricingClient
		memoryStore    handlers.MemoryStore
	)
	if services.Routing != nil {
		policyRouter = services.Routing
	}
	if services.Concepts != nil {
		conceptSearch = services.Concepts
	}
	if services.Claims != nil {
		claimsAnalyzer = services.Claims
	}
	if services.Quotation != nil {
		pricingClient = services.Quotation
	}
	if services.Memory != nil {
		memoryStore = services.Memory
	}

	h := &routes.Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(db, services).Readyz,
		Search:      handlers.NewSearchHandler(policyRouter, conceptSearch),
		Claims:      handlers.NewClaimsHandler(claimsAnalyzer),
		Quotation:   handlers.NewQuotationHandler(pricingClient),
		Memory:      handlers.NewMemoryHandler(memoryStore),
		Purchase:    handlers.NewPurchaseHandler(services.Payment),
	}

	// Main API with OpenAPI docs. Per-operation auth and scopes are enforced
	// by the Huma middleware from each operation's security metadata.
	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAuth(api, verifier))
	routes.Register(api, h)

	// Stripe webhook mounts raw: signature verification needs the exact
	// request body, which must not pass through Huma's parsing.
	stripeWebhook := handlers.NewStripeWebhookHandler(cfg.StripeWebhookSecret, cfg.IsProduction(), services.Payment, logger)
	router.Post("/webhook/stripe", stripeWebhook.HandleWebhook)

	// MCP tool surface for external LLM agents
	if cfg.MCPEnabled {
		deps := mcp.Deps{Payments: services.Payment}
		if services.Routing != nil {
			deps.Router = services.Routing
		}
		if services.Concepts != nil {
			deps.Concepts = services.Concepts
		}
		if services.Claims != nil {
			deps.Claims = services.Claims
		}
		if services.Quotation != nil {
			deps.Quotes = services.Quotation
		}
		if services.Memory != nil {
			deps.Memory = services.Memory
		}

		mcpServer := mcp.New(deps, logger)
		router.Group(func(r chi.Router) {
			r.Use(mw.Auth(verifier))
			r.Mount("/mcp", mcpServer.Handler())
		})
		logger.Info("mcp endpoint enabled", "path", "/mcp")
	}

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on signal or idle timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			logger.Info("shutdown signal received", "signal", sig.String())
		case <-idle.ShutdownChan():
			logger.Info("shutting down after idle timeout")
		}

		// Stop background work first
		cancel()
		expiryWorker.Stop()
		idle.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	// Start server
	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "environment", cfg.Environment)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
