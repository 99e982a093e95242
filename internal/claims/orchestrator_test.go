package claims

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wandersure/wandersure-api/internal/errs"
	"github.com/wandersure/wandersure-api/internal/llm"
)

const (
	testPlannerModel = "planner-model"
	testSQLModel     = "sql-model"
	testSynthModel   = "synth-model"
)

func okReply(content string) *llm.CallResult {
	return &llm.CallResult{Status: llm.StatusOK, Content: content}
}

// fakeChat dispatches on model name. SQL-generation replies are keyed by a
// substring of the user prompt so parallel generation stays deterministic.
type fakeChat struct {
	mu          sync.Mutex
	plan        *llm.CallResult
	sqlReplies  map[string]*llm.CallResult
	synth       *llm.CallResult
	synthPrompt string
	planCalls   int
	sqlCalls    int
	synthCalls  int
	inflight    int
	maxInflight int
	genDelay    time.Duration
}

func (f *fakeChat) Chat(ctx context.Context, model string, messages []llm.Message, opts llm.CallOptions) (*llm.CallResult, error) {
	user := messages[len(messages)-1].Content
	switch model {
	case testPlannerModel:
		f.mu.Lock()
		defer f.mu.Unlock()
		f.planCalls++
		return f.plan, nil
	case testSQLModel:
		f.mu.Lock()
		f.sqlCalls++
		f.inflight++
		if f.inflight > f.maxInflight {
			f.maxInflight = f.inflight
		}
		delay := f.genDelay
		f.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.inflight--
		for key, reply := range f.sqlReplies {
			if strings.Contains(user, key) {
				return reply, nil
			}
		}
		return &llm.CallResult{Status: llm.StatusError, ErrorKind: llm.ErrKindServer, ErrorMessage: "no reply scripted for topic"}, nil
	case testSynthModel:
		f.mu.Lock()
		defer f.mu.Unlock()
		f.synthCalls++
		f.synthPrompt = user
		return f.synth, nil
	}
	return &llm.CallResult{Status: llm.StatusError, ErrorKind: llm.ErrKindClient, ErrorMessage: "unknown model"}, nil
}

type fakeRunner struct {
	mu       sync.Mutex
	results  map[string]*QueryResult
	failures map[string]error
	executed []string
}

func (f *fakeRunner) Execute(ctx context.Context, sql string) (*QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, sql)
	if err, ok := f.failures[sql]; ok {
		return nil, err
	}
	if res, ok := f.results[sql]; ok {
		return res, nil
	}
	return &QueryResult{
		Columns:  []string{"n"},
		Rows:     []Row{{Columns: []string{"n"}, Values: []any{int64(1)}}},
		RowCount: 1,
	}, nil
}

func testConfig() Config {
	return Config{
		PlannerModel: testPlannerModel,
		SQLModel:     testSQLModel,
		SynthModel:   testSynthModel,
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	chat := &fakeChat{
		plan: okReply(`{"topics": [
			{"topic": "rejection rate", "focus": "by claim type"},
			{"topic": "payout trend", "focus": "monthly"}
		]}`),
		sqlReplies: map[string]*llm.CallResult{
			"rejection rate": okReply(`{"SQL_code": "SELECT claim_type, COUNT(*) FROM claims GROUP BY claim_type"}`),
			"payout trend":   okReply(`{"SQL_code": "SELECT date_trunc('month', resolved_at), SUM(approved_amount) FROM claims GROUP BY 1"}`),
		},
		synth: okReply(`{"insights": ["medical claims are rejected most often", "payouts rose 12% quarter over quarter"]}`),
	}
	runner := &fakeRunner{}
	o := NewOrchestrator(chat, runner, testConfig(), nil)

	report, err := o.Analyze(context.Background(), "why are claim costs rising?", 2)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Status != StatusOK {
		t.Fatalf("status = %d, want %d (summary %q)", report.Status, StatusOK, report.Summary)
	}
	want := "insight_1: medical claims are rejected most often, insight_2: payouts rose 12% quarter over quarter"
	if report.Summary != want {
		t.Fatalf("summary = %q, want %q", report.Summary, want)
	}
	if report.RunID == "" {
		t.Error("run ID not set")
	}
	if len(report.Topics) != 2 {
		t.Fatalf("topics = %d, want 2", len(report.Topics))
	}
	if report.Topics[0].Topic != "rejection rate" || report.Topics[1].Topic != "payout trend" {
		t.Fatalf("topic order not preserved: %+v", report.Topics)
	}
	for _, topic := range report.Topics {
		if topic.GenErr != "" || topic.ExecErr != "" {
			t.Fatalf("topic %q has errors: %+v", topic.Topic, topic)
		}
		if topic.RowCount != 1 {
			t.Errorf("topic %q row count = %d, want 1", topic.Topic, topic.RowCount)
		}
	}
	if len(runner.executed) != 2 {
		t.Fatalf("queries executed = %d, want 2", len(runner.executed))
	}

	// Evidence is collated in plan order.
	first := strings.Index(chat.synthPrompt, "rejection rate")
	second := strings.Index(chat.synthPrompt, "payout trend")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("synthesis evidence out of order (first=%d second=%d)", first, second)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	chat := &fakeChat{}
	o := NewOrchestrator(chat, &fakeRunner{}, testConfig(), nil)

	cases := []struct {
		name   string
		query  string
		topics int
	}{
		{"empty query", "", 3},
		{"whitespace query", "   ", 3},
		{"zero topics", "costs", 0},
		{"too many topics", "costs", 11},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.Analyze(context.Background(), tc.query, tc.topics)
			if errs.KindOf(err) != errs.KindInvalidArgument {
				t.Fatalf("kind = %s, want %s", errs.KindOf(err), errs.KindInvalidArgument)
			}
		})
	}
	if chat.planCalls != 0 {
		t.Fatalf("planner called %d times for invalid input", chat.planCalls)
	}
}

func TestAnalyzePlanFailure(t *testing.T) {
	chat := &fakeChat{plan: okReply("I could not think of any topics, sorry!")}
	o := NewOrchestrator(chat, &fakeRunner{}, testConfig(), nil)

	report, err := o.Analyze(context.Background(), "costs", 2)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Status != StatusFailed {
		t.Fatalf("status = %d, want %d", report.Status, StatusFailed)
	}
	if !strings.Contains(report.Summary, "planning") {
		t.Fatalf("summary %q should mention planning", report.Summary)
	}
	if chat.sqlCalls != 0 || chat.synthCalls != 0 {
		t.Fatal("later phases ran despite plan failure")
	}
}

func TestAnalyzePlanBareArray(t *testing.T) {
	chat := &fakeChat{
		plan: okReply(`[{"topic": "volume"}, {"topic": "severity"}]`),
		sqlReplies: map[string]*llm.CallResult{
			"volume":   okReply(`{"SQL_code": "SELECT COUNT(*) FROM claims"}`),
			"severity": okReply(`{"SQL_code": "SELECT AVG(claim_amount) FROM claims"}`),
		},
		synth: okReply(`{"insights": ["a", "b"]}`),
	}
	o := NewOrchestrator(chat, &fakeRunner{}, testConfig(), nil)

	report, err := o.Analyze(context.Background(), "costs", 2)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Status != StatusOK || len(report.Topics) != 2 {
		t.Fatalf("status=%d topics=%d, want 0 and 2", report.Status, len(report.Topics))
	}
}

func TestAnalyzePlanStringTopics(t *testing.T) {
	chat := &fakeChat{
		plan: okReply(`{"topics": ["volume by country"]}`),
		sqlReplies: map[string]*llm.CallResult{
			"volume by country": okReply(`{"SQL_code": "SELECT incident_country, COUNT(*) FROM claims GROUP BY 1"}`),
		},
		synth: okReply(`{"insights": ["most claims come from Thailand"]}`),
	}
	o := NewOrchestrator(chat, &fakeRunner{}, testConfig(), nil)

	report, err := o.Analyze(context.Background(), "where do claims come from?", 1)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Status != StatusOK {
		t.Fatalf("status = %d, want %d (summary %q)", report.Status, StatusOK, report.Summary)
	}
	if report.Topics[0].Topic != "volume by country" {
		t.Fatalf("topic = %q", report.Topics[0].Topic)
	}
}

func TestAnalyzePlanTruncatesToRequested(t *testing.T) {
	chat := &fakeChat{
		plan: okReply(`{"topics": [{"topic": "a"}, {"topic": "b"}, {"topic": "c"}, {"topic": "d"}]}`),
		sqlReplies: map[string]*llm.CallResult{
			"a": okReply(`{"SQL_code": "SELECT 1"}`),
			"b": okReply(`{"SQL_code": "SELECT 2"}`),
		},
		synth: okReply(`{"insights": ["x", "y"]}`),
	}
	o := NewOrchestrator(chat, &fakeRunner{}, testConfig(), nil)

	report, err := o.Analyze(context.Background(), "costs", 2)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(report.Topics) != 2 {
		t.Fatalf("topics = %d, want 2", len(report.Topics))
	}
}

func TestAnalyzeTopicGenerationFailure(t *testing.T) {
	chat := &fakeChat{
		plan: okReply(`{"topics": [{"topic": "good topic"}, {"topic": "doomed topic"}]}`),
		sqlReplies: map[string]*llm.CallResult{
			"good topic": okReply(`{"SQL_code": "SELECT COUNT(*) FROM claims"}`),
		},
		synth: okReply(`{"insights": ["partial evidence still yields insight", "second"]}`),
	}
	runner := &fakeRunner{}
	o := NewOrchestrator(chat, runner, testConfig(), nil)

	report, err := o.Analyze(context.Background(), "costs", 2)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Status != StatusOK {
		t.Fatalf("status = %d, want %d", report.Status, StatusOK)
	}
	var doomed TopicResult
	for _, topic := range report.Topics {
		if topic.Topic == "doomed topic" {
			doomed = topic
		}
	}
	if doomed.GenErr == "" {
		t.Fatal("doomed topic should carry a generation error")
	}
	if doomed.SQL != "" || doomed.ExecErr != "" {
		t.Fatalf("doomed topic should not have run: %+v", doomed)
	}
	if len(runner.executed) != 1 {
		t.Fatalf("queries executed = %d, want 1", len(runner.executed))
	}
}

func TestAnalyzeTopicExecutionFailure(t *testing.T) {
	sql := "SELECT broken FROM claims"
	chat := &fakeChat{
		plan: okReply(`{"topics": [{"topic": "only topic"}]}`),
		sqlReplies: map[string]*llm.CallResult{
			"only topic": okReply(`{"SQL_code": "` + sql + `"}`),
		},
		synth: okReply(`{"insights": ["no data for this one"]}`),
	}
	runner := &fakeRunner{failures: map[string]error{
		sql: errs.New(errs.KindRuntime, "column broken does not exist"),
	}}
	o := NewOrchestrator(chat, runner, testConfig(), nil)

	report, err := o.Analyze(context.Background(), "costs", 1)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Status != StatusOK {
		t.Fatalf("status = %d, want %d", report.Status, StatusOK)
	}
	topic := report.Topics[0]
	if topic.ExecErr == "" {
		t.Fatal("execution error not recorded")
	}
	if topic.GenErr != "" {
		t.Fatalf("execution failure must not set GenErr: %+v", topic)
	}
	if topic.RowCount != 0 || len(topic.SampleRows) != 0 {
		t.Fatalf("failed topic should carry no rows: %+v", topic)
	}
}

func TestAnalyzeSynthesisFailure(t *testing.T) {
	chat := &fakeChat{
		plan: okReply(`{"topics": [{"topic": "only topic"}]}`),
		sqlReplies: map[string]*llm.CallResult{
			"only topic": okReply(`{"SQL_code": "SELECT 1"}`),
		},
		synth: okReply("here are my thoughts in plain prose"),
	}
	o := NewOrchestrator(chat, &fakeRunner{}, testConfig(), nil)

	report, err := o.Analyze(context.Background(), "costs", 1)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Status != StatusFailed {
		t.Fatalf("status = %d, want %d", report.Status, StatusFailed)
	}
	if !strings.Contains(report.Summary, "synthesis") {
		t.Fatalf("summary %q should mention synthesis", report.Summary)
	}
	if len(report.Topics) != 1 {
		t.Fatalf("failed report should keep topic detail, got %d topics", len(report.Topics))
	}
}

func TestAnalyzeSynthesisArrayFormAndTruncation(t *testing.T) {
	chat := &fakeChat{
		plan: okReply(`{"topics": [{"topic": "only topic"}]}`),
		sqlReplies: map[string]*llm.CallResult{
			"only topic": okReply(`{"SQL_code": "SELECT 1"}`),
		},
		synth: okReply(`["first", "second", "third"]`),
	}
	o := NewOrchestrator(chat, &fakeRunner{}, testConfig(), nil)

	report, err := o.Analyze(context.Background(), "costs", 1)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Status != StatusOK {
		t.Fatalf("status = %d, want %d (summary %q)", report.Status, StatusOK, report.Summary)
	}
	if report.Summary != "insight_1: first" {
		t.Fatalf("summary = %q, want truncation to one insight", report.Summary)
	}
}

func TestAnalyzeSQLKeyCaseInsensitive(t *testing.T) {
	chat := &fakeChat{
		plan: okReply(`{"topics": [{"topic": "only topic"}]}`),
		sqlReplies: map[string]*llm.CallResult{
			"only topic": okReply(`{"sql_code": "SELECT COUNT(*) FROM claims"}`),
		},
		synth: okReply(`{"insights": ["counted"]}`),
	}
	runner := &fakeRunner{}
	o := NewOrchestrator(chat, runner, testConfig(), nil)

	report, err := o.Analyze(context.Background(), "costs", 1)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Status != StatusOK {
		t.Fatalf("status = %d, want %d (summary %q)", report.Status, StatusOK, report.Summary)
	}
	if len(runner.executed) != 1 {
		t.Fatalf("queries executed = %d, want 1", len(runner.executed))
	}
}

func TestAnalyzeSampleRowCap(t *testing.T) {
	sql := "SELECT claim_id FROM claims"
	rows := make([]Row, 8)
	for i := range rows {
		rows[i] = Row{Columns: []string{"claim_id"}, Values: []any{int64(i)}}
	}
	chat := &fakeChat{
		plan: okReply(`{"topics": [{"topic": "only topic"}]}`),
		sqlReplies: map[string]*llm.CallResult{
			"only topic": okReply(`{"SQL_code": "` + sql + `"}`),
		},
		synth: okReply(`{"insights": ["rows sampled"]}`),
	}
	runner := &fakeRunner{results: map[string]*QueryResult{
		sql: {Columns: []string{"claim_id"}, Rows: rows, RowCount: 8},
	}}
	o := NewOrchestrator(chat, runner, testConfig(), nil)

	report, err := o.Analyze(context.Background(), "costs", 1)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	topic := report.Topics[0]
	if topic.RowCount != 8 {
		t.Fatalf("row count = %d, want 8", topic.RowCount)
	}
	if len(topic.SampleRows) != sampleRowLimit {
		t.Fatalf("sample rows = %d, want %d", len(topic.SampleRows), sampleRowLimit)
	}
}

func TestAnalyzeWorkerLimit(t *testing.T) {
	const topicCount = 6
	topics := make([]string, topicCount)
	sqlReplies := make(map[string]*llm.CallResult, topicCount)
	for i := range topics {
		name := "topic-" + string(rune('a'+i))
		topics[i] = `{"topic": "` + name + `"}`
		sqlReplies[name] = okReply(`{"SQL_code": "SELECT 1"}`)
	}
	chat := &fakeChat{
		plan:       okReply(`{"topics": [` + strings.Join(topics, ",") + `]}`),
		sqlReplies: sqlReplies,
		synth:      okReply(`{"insights": ["a", "b", "c", "d", "e", "f"]}`),
		genDelay:   20 * time.Millisecond,
	}
	cfg := testConfig()
	cfg.WorkerLimit = 2
	cfg.MaxTopics = topicCount
	o := NewOrchestrator(chat, &fakeRunner{}, cfg, nil)

	report, err := o.Analyze(context.Background(), "costs", topicCount)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Status != StatusOK {
		t.Fatalf("status = %d, want %d (summary %q)", report.Status, StatusOK, report.Summary)
	}
	if chat.maxInflight > cfg.WorkerLimit {
		t.Fatalf("max concurrent generations = %d, want <= %d", chat.maxInflight, cfg.WorkerLimit)
	}
}
