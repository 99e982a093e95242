package concepts

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wandersure/wandersure-api/internal/errs"
	"github.com/wandersure/wandersure-api/internal/vectorstore"
)

const (
	defaultMinMemoryChars  = 100
	defaultRefreshInterval = 10 * time.Minute
	refreshTimeout         = time.Minute
)

// NodeLoader supplies the graph nodes for index builds.
type NodeLoader interface {
	LoadNodes(ctx context.Context, minMemoryChars int) ([]Node, error)
}

// ServiceConfig tunes the concept service.
type ServiceConfig struct {
	MinMemoryChars  int           // default 100
	RefreshInterval time.Duration // default 10m
}

// Service answers concept searches from an in-process index snapshot,
// rebuilt from the store once the snapshot goes stale.
type Service struct {
	store           NodeLoader
	embedder        vectorstore.Embedder
	logger          *slog.Logger
	minMemoryChars  int
	refreshInterval time.Duration

	mu         sync.RWMutex
	index      *Index
	loadedAt   time.Time
	refreshing atomic.Bool
}

// NewService wires the store and embedder together. Call Load before serving.
func NewService(store NodeLoader, embedder vectorstore.Embedder, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.MinMemoryChars <= 0 {
		cfg.MinMemoryChars = defaultMinMemoryChars
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:           store,
		embedder:        embedder,
		logger:          logger,
		minMemoryChars:  cfg.MinMemoryChars,
		refreshInterval: cfg.RefreshInterval,
	}
}

// Load rebuilds the index from the store.
func (s *Service) Load(ctx context.Context) error {
	nodes, err := s.store.LoadNodes(ctx, s.minMemoryChars)
	if err != nil {
		return err
	}
	ix := NewIndex(nodes)

	s.mu.Lock()
	s.index = ix
	s.loadedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("concept index loaded", "nodes", ix.Len())
	return nil
}

// Search returns the top-k concept memories for query.
func (s *Service) Search(ctx context.Context, query string, k int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "query must not be empty")
	}
	if k < vectorstore.MinSearchK || k > vectorstore.MaxSearchK {
		return nil, errs.Newf(errs.KindInvalidArgument, "k must be in [%d, %d], got %d",
			vectorstore.MinSearchK, vectorstore.MaxSearchK, k)
	}

	s.maybeRefresh(ctx)

	s.mu.RLock()
	ix := s.index
	s.mu.RUnlock()
	if ix == nil {
		return nil, errs.New(errs.KindUnavailable, "concept index not loaded")
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return ix.Search(vec, k), nil
}

// maybeRefresh rebuilds a stale index in the background. Single flight; a
// failed rebuild keeps the previous snapshot serving.
func (s *Service) maybeRefresh(ctx context.Context) {
	s.mu.RLock()
	stale := s.index != nil && time.Since(s.loadedAt) > s.refreshInterval
	s.mu.RUnlock()
	if !stale || !s.refreshing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer s.refreshing.Store(false)
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		if err := s.Load(rctx); err != nil {
			s.logger.Warn("concept index refresh failed", "error", err)
		}
	}()
}
