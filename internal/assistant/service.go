// Package assistant runs the question-to-answer pipeline: schema snapshot,
// prompt, generation, validation, bounded execution, shaping, audit. The
// chain short-circuits on failure but every run that reaches generation
// leaves exactly one audit record.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yamini-Krishna/employee-management/internal/audit"
	"github.com/yamini-Krishna/employee-management/internal/executor"
	"github.com/yamini-Krishna/employee-management/internal/hrschema"
	"github.com/yamini-Krishna/employee-management/internal/nl2sql"
	"github.com/yamini-Krishna/employee-management/internal/observability"
	"github.com/yamini-Krishna/employee-management/internal/shape"
	"github.com/yamini-Krishna/employee-management/internal/sqlguard"
)

var ErrEmptyQuestion = errors.New("question is required")

// Audit outcome labels for runs that stop before execution.
const (
	outcomeGenerationUnavailable = "generation_unavailable"
	outcomeGenerationTimeout     = "generation_timeout"
)

type Request struct {
	Question string
	UserID   string
	Output   shape.Output
}

// Result is what a completed run looks like to the API layer. Outcome is
// always set; Presentation only on success.
type Result struct {
	TraceID      string               `json:"trace_id"`
	Question     string               `json:"question"`
	GeneratedSQL string               `json:"generated_sql,omitempty"`
	ExecutedSQL  string               `json:"executed_sql,omitempty"`
	Verdict      sqlguard.Verdict     `json:"verdict"`
	Outcome      executor.OutcomeKind `json:"outcome"`
	Error        string               `json:"error,omitempty"`
	Presentation *shape.Presentation  `json:"presentation,omitempty"`
	RowCount     int                  `json:"row_count"`
	Truncated    bool                 `json:"truncated,omitempty"`
	Elapsed      time.Duration        `json:"elapsed"`
}

type SchemaSource interface {
	Describe(ctx context.Context) (*hrschema.Description, error)
}

type QueryRunner interface {
	Execute(ctx context.Context, sqlText string) executor.Outcome
}

type Dependencies struct {
	Logger    *slog.Logger
	Schema    SchemaSource
	Generator nl2sql.Generator
	Validator *sqlguard.Validator
	Runner    QueryRunner
	Sink      audit.Sink
}

type Service struct {
	logger    *slog.Logger
	schema    SchemaSource
	generator nl2sql.Generator
	validator *sqlguard.Validator
	runner    QueryRunner
	sink      audit.Sink

	auditTimeout time.Duration
}

func NewService(deps Dependencies) *Service {
	return &Service{
		logger:       deps.Logger,
		schema:       deps.Schema,
		generator:    deps.Generator,
		validator:    deps.Validator,
		runner:       deps.Runner,
		sink:         deps.Sink,
		auditTimeout: 5 * time.Second,
	}
}

// Ask answers one question. Errors are returned only for failures before a
// candidate exists or for generation failures; from validation onward every
// failure is a typed outcome inside the Result.
func (s *Service) Ask(ctx context.Context, req Request) (Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Result{}, ErrEmptyQuestion
	}
	if err := req.Output.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid output shape: %w", err)
	}

	observability.ObserveQuestion()
	askedAt := time.Now().UTC()
	result := Result{
		TraceID:  observability.TraceIDFromContext(ctx),
		Question: question,
	}
	record := audit.Record{
		TraceID:  result.TraceID,
		UserID:   req.UserID,
		Question: question,
		Shape:    string(shapeKind(req.Output)),
		AskedAt:  askedAt,
	}

	desc, err := s.schema.Describe(ctx)
	if err != nil {
		// Fatal before generation. No candidate exists, so nothing to audit.
		return Result{}, fmt.Errorf("describe schema: %w", err)
	}

	prompt, err := nl2sql.BuildPrompt(question, desc, req.Output)
	if err != nil {
		return Result{}, fmt.Errorf("build prompt: %w", err)
	}

	genStart := time.Now()
	candidate, err := s.generator.Generate(ctx, prompt)
	observability.ObserveGeneration(time.Since(genStart))
	if err != nil {
		record.Verdict = "skipped"
		record.Outcome = outcomeGenerationUnavailable
		if errors.Is(err, nl2sql.ErrTimeout) {
			record.Outcome = outcomeGenerationTimeout
		}
		record.OutcomeError = err.Error()
		record.Elapsed = time.Since(askedAt)
		s.appendAudit(ctx, record)
		return Result{}, fmt.Errorf("generate SQL: %w", err)
	}
	result.GeneratedSQL = candidate.SQL
	record.Provider = candidate.Provider
	record.Model = candidate.Model
	record.GeneratedSQL = candidate.SQL

	verdict := s.validator.Validate(candidate.SQL, desc)
	observability.ObserveVerdict(string(verdict.Kind))
	result.Verdict = verdict
	record.Verdict = string(verdict.Kind)
	record.VerdictReason = verdict.Reason

	if verdict.Kind == sqlguard.VerdictRejected {
		result.Outcome = executor.OutcomeRejected
		result.Error = verdict.Reason
		result.Elapsed = time.Since(askedAt)
		record.Outcome = string(executor.OutcomeRejected)
		record.OutcomeError = verdict.Reason
		record.Elapsed = result.Elapsed
		s.appendAudit(ctx, record)
		return result, nil
	}
	result.ExecutedSQL = verdict.SQL
	record.ExecutedSQL = verdict.SQL

	outcome := s.runner.Execute(ctx, verdict.SQL)
	observability.ObserveExecution(outcome.Elapsed)
	if outcome.Kind == executor.OutcomeBackpressure {
		observability.IncrementBackpressure()
	}

	result.Outcome = outcome.Kind
	result.RowCount = outcome.RowCount
	result.Truncated = outcome.Truncated
	result.Error = outcome.Error

	if outcome.Kind == executor.OutcomeSuccess {
		presentation, err := shape.Shape(outcome.Columns, outcome.Rows, req.Output)
		if err != nil {
			// The flat result did not fit the requested pivot. The store did
			// its part, so this is reported as an engine-side failure of the
			// run, not a validation one.
			result.Outcome = executor.OutcomeEngineError
			result.Error = err.Error()
			result.Presentation = nil
		} else {
			result.Presentation = &presentation
		}
	}

	result.Elapsed = time.Since(askedAt)
	record.Outcome = string(result.Outcome)
	record.OutcomeError = result.Error
	record.RowCount = result.RowCount
	record.Elapsed = result.Elapsed
	s.appendAudit(ctx, record)

	return result, nil
}

// appendAudit writes on a detached context so a caller hanging up cannot
// drop the trail. One retry, then the failure is logged and counted.
func (s *Service) appendAudit(ctx context.Context, record audit.Record) {
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)
	defer cancel()

	_, err := s.sink.Append(auditCtx, record)
	if err != nil {
		_, err = s.sink.Append(auditCtx, record)
	}
	if err != nil {
		observability.IncrementAuditWriteFailure()
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "audit append failed",
				slog.String("user", record.UserID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func shapeKind(output shape.Output) shape.Kind {
	if output.IsPivot() {
		return shape.KindPivot
	}
	return shape.KindFlat
}
