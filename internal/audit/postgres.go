package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository stores audit records in the same Postgres instance as the HR
// data, in a table the validator's schema snapshot never exposes.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Append(ctx context.Context, record Record) (Record, error) {
	query := `
INSERT INTO query_audit (
	trace_id, user_id, question, shape, asked_at,
	provider, model, generated_sql,
	verdict, verdict_reason, executed_sql,
	outcome, outcome_error, row_count, elapsed_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING audit_id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		record.TraceID,
		record.UserID,
		record.Question,
		record.Shape,
		record.AskedAt,
		record.Provider,
		record.Model,
		record.GeneratedSQL,
		record.Verdict,
		record.VerdictReason,
		record.ExecutedSQL,
		record.Outcome,
		record.OutcomeError,
		record.RowCount,
		record.Elapsed.Milliseconds(),
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("append audit record: %w", err)
	}
	return record, nil
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping audit db: %w", err)
	}
	return nil
}
