// Package service contains the business logic layer.
// Note: user accounts and conversations live with the agent frontends; the
// UserID values flowing through here are opaque tenant keys supplied per
// request.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wandersure/wandersure-api/internal/claims"
	"github.com/wandersure/wandersure-api/internal/concepts"
	"github.com/wandersure/wandersure-api/internal/config"
	"github.com/wandersure/wandersure-api/internal/crypto"
	"github.com/wandersure/wandersure-api/internal/llm"
	"github.com/wandersure/wandersure-api/internal/memory"
	"github.com/wandersure/wandersure-api/internal/quotation"
	"github.com/wandersure/wandersure-api/internal/repository"
	"github.com/wandersure/wandersure-api/internal/routing"
	"github.com/wandersure/wandersure-api/internal/vectorstore"
)

// Services holds all service instances. Fields stay nil when the backing
// store or API they need is not configured; callers report that as
// unavailable rather than failing startup.
type Services struct {
	Payment   *PaymentService
	Routing   *routing.Engine
	Concepts  *concepts.Service
	Claims    *claims.Orchestrator
	Quotation *quotation.Client
	Memory    *memory.Client

	vectorStore  *vectorstore.Store
	claimsExec   *claims.Executor
	conceptStore *concepts.RedisStore
}

// NewServices creates all service instances.
func NewServices(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	ctx := context.Background()

	// Sealer first - selection payloads carry traveller PII that never
	// lands in storage as plaintext.
	sealer, err := crypto.NewEncryptor(cfg.PIIEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	llmClient := llm.New(llm.Config{
		Provider:    cfg.LLMProvider,
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		MaxRetries:  cfg.LLMMaxRetries,
		MaxInflight: cfg.LLMMaxInflight,
	}, logger)

	// The router and the concept index share one embedder and its cache.
	embedder, err := vectorstore.NewCachingEmbedder(llmClient, cfg.EmbeddingModel, cfg.EmbeddingDimensions, cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	svcs := &Services{}

	if cfg.VectorDatabaseURL != "" {
		store, err := vectorstore.New(ctx, cfg.VectorDatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create vector store: %w", err)
		}
		svcs.vectorStore = store
		svcs.Routing = routing.New(llmClient, vectorstore.NewService(store, embedder, logger), routing.Config{
			RouterModel: cfg.LLMRouterModel,
			MaxRetries:  cfg.MaxRoutingRetries,
		}, logger)
	} else {
		logger.Warn("structured policy search NOT configured - VECTOR_DATABASE_URL is empty")
	}

	if cfg.RedisURL != "" {
		conceptStore, err := concepts.NewRedisStore(cfg.RedisURL, logger)
		if err != nil {
			svcs.Close()
			return nil, fmt.Errorf("failed to create concept store: %w", err)
		}
		svcs.conceptStore = conceptStore
		svcs.Concepts = concepts.NewService(conceptStore, embedder, concepts.ServiceConfig{
			MinMemoryChars:  cfg.ConceptMinMemoryChars,
			RefreshInterval: cfg.ConceptRefreshInterval,
		}, logger)

		// Build the first index snapshot asynchronously (non-blocking startup).
		go func() {
			if err := svcs.Concepts.Load(context.Background()); err != nil {
				logger.Warn("failed to load concept index on startup", "error", err)
			} else {
				logger.Info("concept index loaded")
			}
		}()
	} else {
		logger.Warn("concept search NOT configured - REDIS_URL is empty")
	}

	if svcs.Routing != nil || svcs.Concepts != nil {
		// One embedding call confirms the deployed model really produces
		// vectors of the dimension the stores are built for.
		go func() {
			if err := embedder.AssertDimensions(context.Background()); err != nil {
				logger.Error("embedding dimension check failed", "error", err)
			}
		}()
	}

	if cfg.ClaimsDatabaseURL != "" {
		executor, err := claims.NewExecutor(ctx, cfg.ClaimsDatabaseURL, logger)
		if err != nil {
			svcs.Close()
			return nil, fmt.Errorf("failed to create claims executor: %w", err)
		}
		executor.SetQueryTimeout(cfg.ClaimsQueryTimeout)
		svcs.claimsExec = executor
		svcs.Claims = claims.NewOrchestrator(llmClient, executor, claims.Config{
			PlannerModel:  cfg.LLMPlannerModel,
			SQLModel:      cfg.LLMSQLModel,
			SynthModel:    cfg.LLMSynthModel,
			MaxTopics:     cfg.ClaimsMaxTopics,
			WorkerLimit:   cfg.ClaimsWorkerLimit,
			PlanTimeout:   cfg.ClaimsPlanTimeout,
			SQLGenTimeout: cfg.ClaimsSQLGenTimeout,
			SynthTimeout:  cfg.ClaimsSynthTimeout,
		}, logger)
	} else {
		logger.Warn("claims insights NOT configured - CLAIMS_DATABASE_URL is empty")
	}

	var issuance IssuanceClient
	if cfg.QuotationAPIURL != "" {
		quotationClient := quotation.New(quotation.Config{
			BaseURL: cfg.QuotationAPIURL,
			APIKey:  cfg.QuotationAPIKey,
			Timeout: cfg.QuotationTimeout,
			Logger:  logger,
		})
		svcs.Quotation = quotationClient
		issuance = quotationClient
	} else {
		logger.Warn("quotation API NOT configured - quotes and policy issuance unavailable")
	}

	if cfg.MemoryAPIURL != "" {
		svcs.Memory = memory.New(memory.Config{
			BaseURL: cfg.MemoryAPIURL,
			APIKey:  cfg.MemoryAPIKey,
			Logger:  logger,
		})
	} else {
		logger.Warn("memory service NOT configured - MEMORY_API_URL is empty")
	}

	checkout := NewStripeCheckout(StripeCheckoutConfig{
		SecretKey:  cfg.StripeSecretKey,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
		Logger:     logger,
	})
	svcs.Payment = NewPaymentService(cfg, repos, checkout, issuance, sealer, logger)

	return svcs, nil
}

// PingStores verifies the configured read stores are reachable. Used by the
// readiness probe.
func (s *Services) PingStores(ctx context.Context) error {
	if s.vectorStore != nil {
		if err := s.vectorStore.Ping(ctx); err != nil {
			return err
		}
	}
	if s.claimsExec != nil {
		if err := s.claimsExec.Ping(ctx); err != nil {
			return err
		}
	}
	if s.conceptStore != nil {
		if err := s.conceptStore.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the connection pools owned by the services.
func (s *Services) Close() {
	if s.vectorStore != nil {
		s.vectorStore.Close()
	}
	if s.claimsExec != nil {
		s.claimsExec.Close()
	}
	if s.conceptStore != nil {
		_ = s.conceptStore.Close()
	}
}
