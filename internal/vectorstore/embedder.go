package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wandersure/wandersure-api/internal/errs"
)

// Embedder turns one query into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedClient is the slice of the LLM gateway the embedder needs.
type EmbedClient interface {
	Embed(ctx context.Context, model string, texts []string, dimensions int) ([][]float32, error)
}

// CachingEmbedder embeds queries through the gateway with a bounded LRU in
// front. Identical queries within the cache window cost nothing; the key
// covers model and dimensionality so a config change never serves stale
// vectors.
type CachingEmbedder struct {
	client     EmbedClient
	model      string
	dimensions int
	cache      *lru.Cache[string, []float32]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingEmbedder creates an embedder caching up to cacheSize vectors.
func NewCachingEmbedder(client EmbedClient, model string, dimensions, cacheSize int) (*CachingEmbedder, error) {
	if model == "" {
		return nil, errs.New(errs.KindInvalidArgument, "embedding model is required")
	}
	if cacheSize <= 0 {
		return nil, errs.New(errs.KindInvalidArgument, "embedding cache size must be positive")
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntime, "create embedding cache", err)
	}
	return &CachingEmbedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
		cache:      cache,
	}, nil
}

// EmbedQuery returns the vector for text, from cache when possible.
func (e *CachingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)
	if vec, ok := e.cache.Get(key); ok {
		e.hits.Add(1)
		return vec, nil
	}
	e.misses.Add(1)

	vectors, err := e.client.Embed(ctx, e.model, []string{text}, e.dimensions)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errs.Newf(errs.KindRuntime, "expected 1 vector, got %d", len(vectors))
	}
	e.cache.Add(key, vectors[0])
	return vectors[0], nil
}

// AssertDimensions embeds a probe and checks it matches the configured
// dimensionality. Called once at startup so a misconfigured model fails fast
// instead of returning garbage similarity scores.
func (e *CachingEmbedder) AssertDimensions(ctx context.Context) error {
	vec, err := e.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return err
	}
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return errs.Newf(errs.KindRuntime,
			"embedding dimension mismatch: model %s returned %d, configured %d",
			e.model, len(vec), e.dimensions)
	}
	return nil
}

// Stats reports cache hit and miss counts.
func (e *CachingEmbedder) Stats() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}

func (e *CachingEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(e.model))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(e.dimensions)))
	h.Write([]byte{'|'})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
