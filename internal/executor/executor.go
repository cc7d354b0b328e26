// Package executor runs validated SQL against the HR store under hard
// resource bounds. Validation already happened; the executor's job is to
// make sure even an accepted query cannot hold the store hostage.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"time"
)

type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "success"
	OutcomeRejected     OutcomeKind = "rejected"
	OutcomeTimeout      OutcomeKind = "timeout"
	OutcomeEngineError  OutcomeKind = "engine_error"
	OutcomeBackpressure OutcomeKind = "backpressure"
)

// Outcome is the terminal result of one execution attempt. Error holds a
// sanitized engine message safe to return to callers.
type Outcome struct {
	Kind      OutcomeKind   `json:"kind"`
	Columns   []string      `json:"columns,omitempty"`
	Rows      [][]any       `json:"rows,omitempty"`
	RowCount  int           `json:"row_count"`
	Truncated bool          `json:"truncated,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
}

type Options struct {
	RowCap        int
	Timeout       time.Duration
	MaxConcurrent int
}

// Executor bounds every query three ways: a read-only transaction, a
// wall-clock deadline, and a row cap applied while scanning. Concurrency is
// limited by a slot pool that never blocks; a full pool is reported as
// backpressure instead of queueing.
type Executor struct {
	db      *sql.DB
	rowCap  int
	timeout time.Duration
	slots   chan struct{}
}

func New(db *sql.DB, opts Options) *Executor {
	if opts.RowCap <= 0 {
		opts.RowCap = 2000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	return &Executor{
		db:      db,
		rowCap:  opts.RowCap,
		timeout: opts.Timeout,
		slots:   make(chan struct{}, opts.MaxConcurrent),
	}
}

// Execute runs one validated SELECT. It never returns an error: every
// failure mode maps to an Outcome kind so the caller has exactly one shape
// to audit.
func (e *Executor) Execute(ctx context.Context, sqlText string) Outcome {
	started := time.Now()

	select {
	case e.slots <- struct{}{}:
	default:
		return Outcome{
			Kind:    OutcomeBackpressure,
			Elapsed: time.Since(started),
			Error:   "query pool exhausted, try again shortly",
		}
	}
	defer func() { <-e.slots }()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return e.failure(ctx, started, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return e.failure(ctx, started, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return e.failure(ctx, started, err)
	}

	outcome := Outcome{Kind: OutcomeSuccess, Columns: columns}
	for rows.Next() {
		if outcome.RowCount >= e.rowCap {
			outcome.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return e.failure(ctx, started, err)
		}
		outcome.Rows = append(outcome.Rows, normalizeRow(values))
		outcome.RowCount++
	}
	if err := rows.Err(); err != nil {
		return e.failure(ctx, started, err)
	}

	outcome.Elapsed = time.Since(started)
	return outcome
}

func (e *Executor) failure(ctx context.Context, started time.Time, err error) Outcome {
	kind := OutcomeEngineError
	message := sanitizeMessage(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = OutcomeTimeout
		message = "query exceeded its time limit"
	}
	return Outcome{Kind: kind, Elapsed: time.Since(started), Error: message}
}

func normalizeRow(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

// Engine errors can echo file paths or connection strings. Callers only need
// the gist, so anything resembling either is scrubbed before the message
// leaves the executor.
var (
	credentialPattern = regexp.MustCompile(`(?i)(password|passwd|user|host|sslmode|token)=[^\s]+`)
	pathPattern       = regexp.MustCompile(`(?:[A-Za-z]:)?(?:/[\w.\-]+){2,}`)
)

func sanitizeMessage(message string) string {
	message = credentialPattern.ReplaceAllString(message, "$1=[redacted]")
	message = pathPattern.ReplaceAllString(message, "[path]")
	return message
}
