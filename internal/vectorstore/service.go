package vectorstore

import (
	"context"
	"log/slog"
	"strings"

	"github.com/wandersure/wandersure-api/internal/errs"
	"github.com/wandersure/wandersure-api/internal/models"
)

// TableSearcher runs an embedded query against one table.
type TableSearcher interface {
	SearchTable(ctx context.Context, table string, queryVec []float32, k int) ([]models.PolicyMatch, error)
}

// Searcher is the text-query surface consumed by the routing engine and the
// tool layer.
type Searcher interface {
	Search(ctx context.Context, table, query string, k int) ([]models.PolicyMatch, error)
}

// Service validates queries, embeds them once, and fans the vector into the
// table procedures.
type Service struct {
	store    TableSearcher
	embedder Embedder
	logger   *slog.Logger
}

// NewService wires the store and embedder together.
func NewService(store TableSearcher, embedder Embedder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, embedder: embedder, logger: logger}
}

// Search embeds query and returns the top-k matches for table, sorted by
// similarity descending.
func (s *Service) Search(ctx context.Context, table, query string, k int) ([]models.PolicyMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "query must not be empty")
	}
	if k < MinSearchK || k > MaxSearchK {
		return nil, errs.Newf(errs.KindInvalidArgument, "k must be in [%d, %d], got %d", MinSearchK, MaxSearchK, k)
	}
	if !models.IsSearchableTable(table) {
		return nil, errs.Newf(errs.KindInvalidArgument, "unknown search table %q", table)
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.SearchTable(ctx, table, vec, k)
	if err != nil {
		return nil, err
	}

	// The procedures order by similarity already; re-assert so ranking never
	// depends on backend behavior.
	SortByScoreDesc(matches)
	return matches, nil
}

// SearchGeneralConditions returns the top-k general-condition matches.
func (s *Service) SearchGeneralConditions(ctx context.Context, query string, k int) ([]models.PolicyMatch, error) {
	return s.Search(ctx, models.TableGeneralConditions, query, k)
}

// SearchBenefits returns the top-k benefit matches.
func (s *Service) SearchBenefits(ctx context.Context, query string, k int) ([]models.PolicyMatch, error) {
	return s.Search(ctx, models.TableBenefits, query, k)
}

// SearchBenefitConditions returns the top-k benefit-condition matches.
func (s *Service) SearchBenefitConditions(ctx context.Context, query string, k int) ([]models.PolicyMatch, error) {
	return s.Search(ctx, models.TableBenefitConditions, query, k)
}

// SearchOriginalText returns the top-k raw policy text chunks.
func (s *Service) SearchOriginalText(ctx context.Context, query string, k int) ([]models.PolicyMatch, error) {
	return s.Search(ctx, models.TableOriginalText, query, k)
}
