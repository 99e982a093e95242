// Package vectorstore queries the policy vector database. Searches go
// through server-side stored procedures (search_<table>_vector) that return
// the top-k rows with a similarity_score column; the store shapes those rows
// into table-tagged matches without ever shipping the vectors back out.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/wandersure/wandersure-api/internal/errs"
	"github.com/wandersure/wandersure-api/internal/models"
)

const (
	// MinSearchK and MaxSearchK bound the per-table result count.
	MinSearchK = 1
	MaxSearchK = 50

	poolMinConns   = 2
	poolMaxConns   = 10
	connectTimeout = 10 * time.Second
)

// Store runs similarity searches against the vector database.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects a pooled store to databaseURL.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidArgument, "parse vector database url", err)
	}
	cfg.MinConns = poolMinConns
	cfg.MaxConns = poolMaxConns
	cfg.ConnConfig.ConnectTimeout = connectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, "connect vector database", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SearchTable runs the similarity procedure for table with an
// already-embedded query vector.
func (s *Store) SearchTable(ctx context.Context, table string, queryVec []float32, k int) ([]models.PolicyMatch, error) {
	if !models.IsSearchableTable(table) {
		return nil, errs.Newf(errs.KindInvalidArgument, "unknown search table %q", table)
	}

	query := fmt.Sprintf("SELECT * FROM search_%s_vector($1, $2)", table)
	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(queryVec), k)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, "vector search query", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, fd := range fields {
		names[i] = string(fd.Name)
	}

	matches := make([]models.PolicyMatch, 0, k)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errs.Wrap(errs.KindRuntime, "read vector search row", err)
		}
		if match, ok := matchFromRow(table, names, values); ok {
			matches = append(matches, match)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, "vector search rows", err)
	}

	s.logger.Debug("vector search", "table", table, "k", k, "matches", len(matches))
	return matches, nil
}

// matchFromRow shapes one procedure row into a match. Embedding columns are
// dropped, similarity_score is promoted, and condition_exists=false sentinel
// rows (present so every benefit has a row, but carrying no content) are
// filtered out entirely.
func matchFromRow(table string, names []string, values []any) (models.PolicyMatch, bool) {
	match := models.PolicyMatch{
		Table:  table,
		Fields: make(map[string]any, len(names)),
	}
	for i, name := range names {
		if i >= len(values) {
			break
		}
		if strings.HasPrefix(name, "embedding") {
			continue
		}
		if name == "similarity_score" {
			if f, ok := toFloat64(values[i]); ok {
				match.SimilarityScore = &f
			}
			continue
		}
		match.Fields[name] = values[i]
	}
	if exists, ok := match.Fields["condition_exists"].(bool); ok && !exists {
		return models.PolicyMatch{}, false
	}
	return match, true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// SortByScoreDesc orders matches by similarity descending, stably, with
// unscored rows after all scored ones. Stability preserves per-table
// insertion order on ties.
func SortByScoreDesc(matches []models.PolicyMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		si, sj := matches[i].SimilarityScore, matches[j].SimilarityScore
		switch {
		case si == nil:
			return false
		case sj == nil:
			return true
		default:
			return *si > *sj
		}
	})
}
