package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wandersure/wandersure-api/internal/errs"
	"github.com/wandersure/wandersure-api/internal/llm"
	"github.com/wandersure/wandersure-api/internal/llmjson"
)

const (
	// StatusOK means the analysis produced a usable summary.
	StatusOK = 0
	// StatusFailed means no summary could be produced.
	StatusFailed = 1

	defaultMaxTopics     = 10
	defaultWorkerLimit   = 5
	defaultPlanTimeout   = 120 * time.Second
	defaultSQLGenTimeout = 120 * time.Second
	defaultSynthTimeout  = 300 * time.Second
)

// ChatClient is the LLM surface the orchestrator needs.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []llm.Message, opts llm.CallOptions) (*llm.CallResult, error)
}

// SQLRunner executes sandboxed SQL against the claims warehouse.
type SQLRunner interface {
	Execute(ctx context.Context, sql string) (*QueryResult, error)
}

// Config tunes the analysis pipeline. Zero values fall back to defaults;
// the three models must be set.
type Config struct {
	PlannerModel string
	SQLModel     string
	SynthModel   string

	MaxTopics     int
	WorkerLimit   int
	PlanTimeout   time.Duration
	SQLGenTimeout time.Duration
	SynthTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxTopics <= 0 {
		c.MaxTopics = defaultMaxTopics
	}
	if c.WorkerLimit <= 0 {
		c.WorkerLimit = defaultWorkerLimit
	}
	if c.PlanTimeout <= 0 {
		c.PlanTimeout = defaultPlanTimeout
	}
	if c.SQLGenTimeout <= 0 {
		c.SQLGenTimeout = defaultSQLGenTimeout
	}
	if c.SynthTimeout <= 0 {
		c.SynthTimeout = defaultSynthTimeout
	}
	return c
}

// TopicResult tracks one analysis topic through SQL generation and
// execution. GenErr and ExecErr are kept apart so the synthesizer can tell
// "no query was produced" from "the query failed".
type TopicResult struct {
	Topic      string `json:"topic"`
	Focus      string `json:"focus,omitempty"`
	SQL        string `json:"sql,omitempty"`
	GenErr     string `json:"generation_error,omitempty"`
	ExecErr    string `json:"execution_error,omitempty"`
	RowCount   int    `json:"row_count"`
	SampleRows []Row  `json:"sample_rows,omitempty"`
}

// Report is the outcome of one analysis run.
type Report struct {
	Status  int           `json:"status"`
	Summary string        `json:"summary"`
	RunID   string        `json:"run_id"`
	Topics  []TopicResult `json:"topics,omitempty"`
}

// Orchestrator drives the four-phase claims analysis: plan topics,
// generate SQL per topic, execute, synthesize insights.
type Orchestrator struct {
	chat   ChatClient
	runner SQLRunner
	cfg    Config
	logger *slog.Logger
}

func NewOrchestrator(chat ChatClient, runner SQLRunner, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{chat: chat, runner: runner, cfg: cfg.withDefaults(), logger: logger}
}

// Analyze answers query with topicCount data-grounded insights. Individual
// topic failures are reported inside the summary input rather than
// aborting the run; only planning or synthesis failure yields StatusFailed.
func (o *Orchestrator) Analyze(ctx context.Context, query string, topicCount int) (*Report, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "query must not be empty")
	}
	if topicCount < 1 || topicCount > o.cfg.MaxTopics {
		return nil, errs.Newf(errs.KindInvalidArgument, "topic count must be between 1 and %d", o.cfg.MaxTopics)
	}

	runID := ulid.Make().String()
	logger := o.logger.With("run_id", runID)
	logger.Info("claims analysis started", "topics_requested", topicCount)

	topics, failMsg := o.plan(ctx, query, topicCount, logger)
	if failMsg != "" {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("claims analysis planning failed", "error", failMsg)
		return &Report{Status: StatusFailed, Summary: failMsg, RunID: runID}, nil
	}

	o.generateAll(ctx, topics, logger)
	o.executeAll(ctx, topics, logger)

	summary, failMsg := o.synthesize(ctx, query, topics, topicCount, logger)
	if failMsg != "" {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("claims analysis synthesis failed", "error", failMsg)
		return &Report{Status: StatusFailed, Summary: failMsg, RunID: runID, Topics: derefTopics(topics)}, nil
	}

	logger.Info("claims analysis complete", "topics", len(topics))
	return &Report{Status: StatusOK, Summary: summary, RunID: runID, Topics: derefTopics(topics)}, nil
}

// plan asks the manager model to break the query into focused topics. One
// attempt only: a malformed plan fails the run.
func (o *Orchestrator) plan(ctx context.Context, query string, topicCount int, logger *slog.Logger) ([]*TopicResult, string) {
	pctx, cancel := context.WithTimeout(ctx, o.cfg.PlanTimeout)
	defer cancel()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: plannerSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Break this question into exactly %d analysis topics:\n\n%s", topicCount, query)},
	}
	res, err := o.chat.Chat(pctx, o.cfg.PlannerModel, messages, llm.CallOptions{JSONMode: true, Timeout: o.cfg.PlanTimeout})
	if err != nil {
		return nil, fmt.Sprintf("planning failed: %v", err)
	}
	if res.Status != llm.StatusOK {
		return nil, fmt.Sprintf("planning failed: %s", res.ErrorMessage)
	}

	v := llmjson.Validate(res.Content)
	if v.Parsed == nil {
		return nil, fmt.Sprintf("planning produced unparseable output (%s)", v.ErrorKind)
	}
	items, ok := llmjson.ExtractList(v.Parsed, "topics")
	if !ok {
		return nil, "planning output had no topics list"
	}

	var topics []*TopicResult
	for _, item := range items {
		if t, ok := topicFromItem(item); ok {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		return nil, "planning produced no usable topics"
	}
	if len(topics) > topicCount {
		topics = topics[:topicCount]
	}
	logger.Debug("claims analysis planned", "topics", len(topics))
	return topics, ""
}

func topicFromItem(item any) (*TopicResult, bool) {
	switch t := item.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, false
		}
		return &TopicResult{Topic: strings.TrimSpace(t)}, true
	case map[string]any:
		topic, _ := t["topic"].(string)
		if strings.TrimSpace(topic) == "" {
			return nil, false
		}
		focus, _ := t["focus"].(string)
		return &TopicResult{Topic: strings.TrimSpace(topic), Focus: strings.TrimSpace(focus)}, true
	default:
		return nil, false
	}
}

// generateAll runs SQL generation for every topic in parallel, capped by
// WorkerLimit so a large plan cannot stampede the provider.
func (o *Orchestrator) generateAll(ctx context.Context, topics []*TopicResult, logger *slog.Logger) {
	sem := make(chan struct{}, o.cfg.WorkerLimit)
	var wg sync.WaitGroup
	for _, t := range topics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			o.generateSQL(ctx, t, logger)
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) generateSQL(ctx context.Context, t *TopicResult, logger *slog.Logger) {
	gctx, cancel := context.WithTimeout(ctx, o.cfg.SQLGenTimeout)
	defer cancel()

	userPrompt := fmt.Sprintf("Topic: %s", t.Topic)
	if t.Focus != "" {
		userPrompt += fmt.Sprintf("\nFocus: %s", t.Focus)
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: sqlSystemPrompt},
		{Role: llm.RoleUser, Content: userPrompt},
	}
	res, err := o.chat.Chat(gctx, o.cfg.SQLModel, messages, llm.CallOptions{JSONMode: true, Timeout: o.cfg.SQLGenTimeout})
	if err != nil {
		t.GenErr = err.Error()
		return
	}
	if res.Status != llm.StatusOK {
		t.GenErr = res.ErrorMessage
		return
	}

	v := llmjson.Validate(res.Content)
	if v.Parsed == nil {
		t.GenErr = fmt.Sprintf("SQL generation produced unparseable output (%s)", v.ErrorKind)
		return
	}
	sql, ok := extractSQLCode(v.Parsed)
	if !ok || strings.TrimSpace(sql) == "" {
		t.GenErr = "SQL generation output had no SQL_code field"
		return
	}
	t.SQL = strings.TrimSpace(sql)
	logger.Debug("claims SQL generated", "topic", t.Topic)
}

// extractSQLCode pulls the generated statement out of the model reply.
// The expected shape is {"SQL_code": "..."} but key casing drifts between
// models, so any case-insensitive match is accepted.
func extractSQLCode(parsed any) (string, bool) {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return "", false
	}
	if s, ok := obj["SQL_code"].(string); ok {
		return s, true
	}
	for k, val := range obj {
		if strings.EqualFold(k, "sql_code") {
			if s, ok := val.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// executeAll runs every generated statement, again capped by WorkerLimit.
// Topics whose generation failed are skipped.
func (o *Orchestrator) executeAll(ctx context.Context, topics []*TopicResult, logger *slog.Logger) {
	sem := make(chan struct{}, o.cfg.WorkerLimit)
	var wg sync.WaitGroup
	for _, t := range topics {
		if t.GenErr != "" || t.SQL == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			o.executeTopic(ctx, t, logger)
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) executeTopic(ctx context.Context, t *TopicResult, logger *slog.Logger) {
	result, err := o.runner.Execute(ctx, t.SQL)
	if err != nil {
		t.ExecErr = err.Error()
		logger.Warn("claims topic query failed", "topic", t.Topic, "error", err)
		return
	}
	t.RowCount = result.RowCount
	if len(result.Rows) > sampleRowLimit {
		t.SampleRows = result.Rows[:sampleRowLimit]
	} else {
		t.SampleRows = result.Rows
	}
}

// synthesize collates per-topic evidence in plan order and asks the
// synthesizer model for exactly topicCount insights.
func (o *Orchestrator) synthesize(ctx context.Context, query string, topics []*TopicResult, topicCount int, logger *slog.Logger) (string, string) {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.SynthTimeout)
	defer cancel()

	evidence, err := json.Marshal(derefTopics(topics))
	if err != nil {
		return "", fmt.Sprintf("collating evidence failed: %v", err)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: synthSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Question: %s\n\nProduce exactly %d insights from this evidence:\n%s", query, topicCount, evidence)},
	}
	res, err := o.chat.Chat(sctx, o.cfg.SynthModel, messages, llm.CallOptions{JSONMode: true, Timeout: o.cfg.SynthTimeout})
	if err != nil {
		return "", fmt.Sprintf("synthesis failed: %v", err)
	}
	if res.Status != llm.StatusOK {
		return "", fmt.Sprintf("synthesis failed: %s", res.ErrorMessage)
	}

	v := llmjson.Validate(res.Content)
	if v.Parsed == nil {
		return "", fmt.Sprintf("synthesis produced unparseable output (%s)", v.ErrorKind)
	}
	items, ok := llmjson.ExtractList(v.Parsed, "insights")
	if !ok {
		return "", "synthesis output had no insights list"
	}
	insights := llmjson.StringItems(items)
	if len(insights) == 0 {
		return "", "synthesis produced no insights"
	}
	if len(insights) > topicCount {
		insights = insights[:topicCount]
	}

	var b strings.Builder
	for i, insight := range insights {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "insight_%d: %s", i+1, insight)
	}
	return b.String(), ""
}

func derefTopics(topics []*TopicResult) []TopicResult {
	out := make([]TopicResult, len(topics))
	for i, t := range topics {
		out[i] = *t
	}
	return out
}
