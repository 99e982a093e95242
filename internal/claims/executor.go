package claims

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wandersure/wandersure-api/internal/errs"
)

const (
	defaultQueryTimeout = 30 * time.Second
	executorMinConns    = 2
	executorMaxConns    = 10
	executorConnTimeout = 10 * time.Second
	sampleRowLimit      = 5
)

// Row is a single result row that serializes with its columns in query
// order. encoding/json sorts map keys, which would scramble SELECT output,
// so rows carry an ordered column list instead of a map.
type Row struct {
	Columns []string
	Values  []any
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(normalizeValue(r.Values[i]))
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// normalizeValue rewrites driver-specific types into JSON-friendly ones.
// pgx returns uuid columns as [16]byte, which encoding/json would render
// as an array of numbers.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	default:
		return v
	}
}

// QueryResult is the full output of one sandboxed query.
type QueryResult struct {
	Columns  []string `json:"columns"`
	Rows     []Row    `json:"rows"`
	RowCount int      `json:"row_count"`
}

// Executor runs validated read-only SQL against the claims warehouse.
type Executor struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
	logger       *slog.Logger
}

// NewExecutor connects to the warehouse at databaseURL.
func NewExecutor(ctx context.Context, databaseURL string, logger *slog.Logger) (*Executor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidArgument, "parse claims database URL", err)
	}
	cfg.MinConns = executorMinConns
	cfg.MaxConns = executorMaxConns
	cfg.ConnConfig.ConnectTimeout = executorConnTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, "connect to claims database", err)
	}
	return &Executor{pool: pool, queryTimeout: defaultQueryTimeout, logger: logger}, nil
}

// SetQueryTimeout overrides the per-query timeout.
func (e *Executor) SetQueryTimeout(d time.Duration) {
	if d > 0 {
		e.queryTimeout = d
	}
}

func (e *Executor) Close() {
	e.pool.Close()
}

func (e *Executor) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return errs.Wrap(errs.KindUnavailable, "claims database unreachable", err)
	}
	return nil
}

// Execute validates sql through the read-only sandbox and runs it with the
// executor's query timeout. SQL rejected by the sandbox never reaches the
// database.
func (e *Executor) Execute(ctx context.Context, sql string) (*QueryResult, error) {
	if err := ValidateReadOnly(sql); err != nil {
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	started := time.Now()
	rows, err := e.pool.Query(qctx, sql)
	if err != nil {
		return nil, classifyQueryError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errs.Wrap(errs.KindRuntime, "read claims row", err)
		}
		out = append(out, Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryError(err)
	}

	e.logger.Debug("claims query executed",
		"rows", len(out),
		"columns", len(columns),
		"duration_ms", time.Since(started).Milliseconds())

	return &QueryResult{Columns: columns, Rows: out, RowCount: len(out)}, nil
}

// classifyQueryError separates SQL the server rejected from infrastructure
// failures. A PgError means the statement reached Postgres and failed
// there; anything else is a connectivity problem.
func classifyQueryError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(errs.KindRuntime, "claims query failed", err)
	}
	return errs.Wrap(errs.KindUnavailable, "claims database unavailable", err)
}
