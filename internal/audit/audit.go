// Package audit keeps the durable trail of every assistant run: the
// question, what was generated, what the validator decided, and what the
// store did about it. Records are write-once and appended for every run,
// including rejections and generation failures.
package audit

import (
	"context"
	"time"
)

// Record is one completed pipeline run. Candidate and execution fields stay
// empty when the chain short-circuited before reaching them.
type Record struct {
	ID       int64     `json:"id,omitempty"`
	TraceID  string    `json:"trace_id"`
	UserID   string    `json:"user_id"`
	Question string    `json:"question"`
	Shape    string    `json:"shape"`
	AskedAt  time.Time `json:"asked_at"`

	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	GeneratedSQL string `json:"generated_sql,omitempty"`

	Verdict       string `json:"verdict"`
	VerdictReason string `json:"verdict_reason,omitempty"`
	ExecutedSQL   string `json:"executed_sql,omitempty"`

	Outcome      string        `json:"outcome"`
	OutcomeError string        `json:"outcome_error,omitempty"`
	RowCount     int           `json:"row_count"`
	Elapsed      time.Duration `json:"elapsed"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Sink appends records. Implementations must never mutate existing rows.
type Sink interface {
	Append(ctx context.Context, record Record) (Record, error)
}
