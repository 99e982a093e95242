// Package routing picks the policy tables relevant to a question with a
// fast model, fans the searches out in parallel, and merges the hits into a
// single ranked list.
package routing

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/wandersure/wandersure-api/internal/errs"
	"github.com/wandersure/wandersure-api/internal/llm"
	"github.com/wandersure/wandersure-api/internal/llmjson"
	"github.com/wandersure/wandersure-api/internal/models"
	"github.com/wandersure/wandersure-api/internal/vectorstore"
)

// Route outcome codes.
const (
	StatusOK     = 0
	StatusFailed = 1
)

const defaultMaxRetries = 3

// ChatClient is the slice of the LLM gateway the router needs.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []llm.Message, opts llm.CallOptions) (*llm.CallResult, error)
}

// Config tunes the engine.
type Config struct {
	RouterModel string
	MaxRetries  int // table-selection retries (default 3)
}

// Result is a routed search outcome. Status is StatusFailed when table
// selection exhausted its retries or any fanned-out search failed; Results
// is nil in that case.
type Result struct {
	Status         int                  `json:"status"`
	TablesSearched []string             `json:"tables_searched,omitempty"`
	Results        []models.PolicyMatch `json:"results,omitempty"`
}

// Engine routes questions to policy tables.
type Engine struct {
	chat       ChatClient
	searcher   vectorstore.Searcher
	model      string
	maxRetries int
	logger     *slog.Logger
}

// New creates a routing engine.
func New(chat ChatClient, searcher vectorstore.Searcher, cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		chat:       chat,
		searcher:   searcher,
		model:      cfg.RouterModel,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

// Route selects tables for query, searches them in parallel with the same k,
// and merges the results by similarity. The error return is reserved for
// invalid arguments and cancelled contexts.
func (e *Engine) Route(ctx context.Context, query string, k int) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "query must not be empty")
	}
	if k < vectorstore.MinSearchK || k > vectorstore.MaxSearchK {
		return nil, errs.Newf(errs.KindInvalidArgument, "k must be in [%d, %d], got %d",
			vectorstore.MinSearchK, vectorstore.MaxSearchK, k)
	}

	tables, err := e.selectTables(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		e.logger.Warn("routing gave up after retries", "query_length", len(query))
		return &Result{Status: StatusFailed}, nil
	}

	perTable := make([][]models.PolicyMatch, len(tables))
	searchErrs := make([]error, len(tables))
	var wg sync.WaitGroup
	for i, table := range tables {
		wg.Add(1)
		go func() {
			defer wg.Done()
			perTable[i], searchErrs[i] = e.searcher.Search(ctx, table, query, k)
		}()
	}
	wg.Wait()

	for i, serr := range searchErrs {
		if serr != nil {
			e.logger.Error("routed search failed", "table", tables[i], "error", serr)
			return &Result{Status: StatusFailed, TablesSearched: tables}, nil
		}
	}

	merged := mergeMatches(perTable)
	e.logger.Debug("routed search", "tables", tables, "k", k, "results", len(merged))
	return &Result{Status: StatusOK, TablesSearched: tables, Results: merged}, nil
}

// selectTables asks the router model which tables to search, retrying while
// the reply yields no usable table names. Returns nil after exhausting
// retries.
func (e *Engine) selectTables(ctx context.Context, query string) ([]string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: routerSystemPrompt},
		{Role: llm.RoleUser, Content: query},
	}
	opts := llm.CallOptions{JSONMode: true}

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		res, err := e.chat.Chat(ctx, e.model, messages, opts)
		if err != nil {
			return nil, err
		}
		if res.Status != llm.StatusOK {
			e.logger.Warn("router model call failed",
				"attempt", attempt, "error_kind", res.ErrorKind)
			continue
		}

		v := llmjson.Validate(res.Content)
		if v.Parsed == nil {
			e.logger.Warn("router reply unparseable",
				"attempt", attempt, "error_kind", v.ErrorKind, "repairs", v.RepairSteps)
			continue
		}
		items, ok := llmjson.ExtractList(v.Parsed, "tables")
		if !ok {
			e.logger.Warn("router reply missing tables list", "attempt", attempt)
			continue
		}

		tables := filterTables(llmjson.StringItems(items))
		if len(tables) == 0 {
			e.logger.Warn("router picked no known tables", "attempt", attempt)
			continue
		}
		if len(v.RepairSteps) > 0 {
			e.logger.Debug("router reply repaired", "repairs", v.RepairSteps)
		}
		return tables, nil
	}
	return nil, nil
}

// filterTables drops unknown names and duplicates, preserving order.
func filterTables(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		if !models.IsRoutableTable(name) || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// mergeMatches concatenates per-table results in selection order, then
// re-sorts globally by score. Stability keeps per-table insertion order on
// ties and leaves unscored rows after all scored ones.
func mergeMatches(perTable [][]models.PolicyMatch) []models.PolicyMatch {
	var merged []models.PolicyMatch
	for _, matches := range perTable {
		merged = append(merged, matches...)
	}
	vectorstore.SortByScoreDesc(merged)
	return merged
}
