package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamini-Krishna/employee-management/internal/audit"
	"github.com/yamini-Krishna/employee-management/internal/executor"
	"github.com/yamini-Krishna/employee-management/internal/hrschema"
	"github.com/yamini-Krishna/employee-management/internal/nl2sql"
	"github.com/yamini-Krishna/employee-management/internal/shape"
	"github.com/yamini-Krishna/employee-management/internal/sqlguard"
)

type fakeSchema struct {
	desc *hrschema.Description
	err  error
}

func (f *fakeSchema) Describe(context.Context) (*hrschema.Description, error) {
	return f.desc, f.err
}

type fakeGenerator struct {
	candidate nl2sql.Candidate
	err       error
	prompts   []nl2sql.Prompt
}

func (f *fakeGenerator) Generate(_ context.Context, prompt nl2sql.Prompt) (nl2sql.Candidate, error) {
	f.prompts = append(f.prompts, prompt)
	return f.candidate, f.err
}

type fakeRunner struct {
	outcome executor.Outcome
	gotSQL  []string
}

func (f *fakeRunner) Execute(_ context.Context, sqlText string) executor.Outcome {
	f.gotSQL = append(f.gotSQL, sqlText)
	return f.outcome
}

type fakeSink struct {
	records  []audit.Record
	failures int
}

func (f *fakeSink) Append(_ context.Context, record audit.Record) (audit.Record, error) {
	if f.failures > 0 {
		f.failures--
		return audit.Record{}, errors.New("audit store down")
	}
	f.records = append(f.records, record)
	return record, nil
}

func testSchema() *hrschema.Description {
	return hrschema.NewDescription([]hrschema.TableInfo{
		{Name: "employee", Columns: []hrschema.ColumnInfo{
			{Name: "employee_id", DataType: "integer"},
			{Name: "employee_name", DataType: "character varying"},
			{Name: "department_name", DataType: "character varying"},
		}},
		{Name: "timesheet", Columns: []hrschema.ColumnInfo{
			{Name: "employee_id", DataType: "integer"},
			{Name: "project_code", DataType: "character varying"},
			{Name: "hours_worked", DataType: "numeric"},
		}},
	})
}

func newTestService(schema SchemaSource, generator nl2sql.Generator, runner QueryRunner, sink audit.Sink) *Service {
	return NewService(Dependencies{
		Logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Schema:    schema,
		Generator: generator,
		Validator: sqlguard.NewValidator(2000),
		Runner:    runner,
		Sink:      sink,
	})
}

func TestAskRewritesUnboundedSelectAndAuditsBothTexts(t *testing.T) {
	generator := &fakeGenerator{candidate: nl2sql.Candidate{
		SQL:      "SELECT * FROM employee",
		Provider: "openai-compatible",
		Model:    "gpt-5",
	}}
	runner := &fakeRunner{outcome: executor.Outcome{
		Kind:     executor.OutcomeSuccess,
		Columns:  []string{"employee_id", "employee_name"},
		Rows:     [][]any{{int64(1), "Asha"}},
		RowCount: 1,
		Elapsed:  12 * time.Millisecond,
	}}
	sink := &fakeSink{}
	svc := newTestService(&fakeSchema{desc: testSchema()}, generator, runner, sink)

	result, err := svc.Ask(context.Background(), Request{Question: "show all employees", UserID: "maria"})
	require.NoError(t, err)

	assert.Equal(t, sqlguard.VerdictRewritten, result.Verdict.Kind)
	assert.Equal(t, "SELECT * FROM employee LIMIT 2000", result.ExecutedSQL)
	assert.Equal(t, executor.OutcomeSuccess, result.Outcome)
	require.NotNil(t, result.Presentation)
	assert.Equal(t, []string{"employee_id", "employee_name"}, result.Presentation.Columns)

	require.Equal(t, []string{"SELECT * FROM employee LIMIT 2000"}, runner.gotSQL)
	require.Len(t, sink.records, 1)
	record := sink.records[0]
	assert.Equal(t, "maria", record.UserID)
	assert.Equal(t, "SELECT * FROM employee", record.GeneratedSQL)
	assert.Equal(t, "SELECT * FROM employee LIMIT 2000", record.ExecutedSQL)
	assert.Equal(t, "rewritten", record.Verdict)
	assert.Equal(t, "success", record.Outcome)
}

func TestAskRejectsGeneratedDeleteWithoutExecuting(t *testing.T) {
	generator := &fakeGenerator{candidate: nl2sql.Candidate{SQL: "DELETE FROM employee"}}
	runner := &fakeRunner{}
	sink := &fakeSink{}
	svc := newTestService(&fakeSchema{desc: testSchema()}, generator, runner, sink)

	result, err := svc.Ask(context.Background(), Request{Question: "delete all employees", UserID: "maria"})
	require.NoError(t, err)

	assert.Equal(t, sqlguard.VerdictRejected, result.Verdict.Kind)
	assert.Equal(t, executor.OutcomeRejected, result.Outcome)
	assert.Equal(t, "non-select or multi-statement", result.Error)
	assert.Empty(t, runner.gotSQL)

	require.Len(t, sink.records, 1)
	assert.Equal(t, "rejected", sink.records[0].Verdict)
	assert.Equal(t, "rejected", sink.records[0].Outcome)
	assert.Equal(t, "non-select or multi-statement", sink.records[0].VerdictReason)
}

func TestAskPivotsSuccessfulResults(t *testing.T) {
	generator := &fakeGenerator{candidate: nl2sql.Candidate{
		SQL: "SELECT department_name, project_code, hours_worked FROM timesheet LIMIT 100",
	}}
	runner := &fakeRunner{outcome: executor.Outcome{
		Kind:    executor.OutcomeSuccess,
		Columns: []string{"department_name", "project_code", "hours_worked"},
		Rows: [][]any{
			{"Eng", "A", 5.0},
			{"Eng", "A", 3.0},
			{"Sales", "A", 2.0},
		},
		RowCount: 3,
	}}
	sink := &fakeSink{}
	svc := newTestService(&fakeSchema{desc: testSchema()}, generator, runner, sink)

	result, err := svc.Ask(context.Background(), Request{
		Question: "hours per department and project",
		UserID:   "maria",
		Output: shape.Output{
			Kind: shape.KindPivot,
			Pivot: &shape.PivotSpec{
				RowDims:     []string{"department_name"},
				ColDims:     []string{"project_code"},
				ValueMetric: "hours_worked",
				Aggregation: shape.AggSum,
			},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, result.Presentation)
	assert.Equal(t, []string{"department_name", "A"}, result.Presentation.Columns)
	assert.Equal(t, []any{"Eng", 8.0}, result.Presentation.Rows[0])
	assert.Equal(t, []any{"Sales", 2.0}, result.Presentation.Rows[1])
	assert.Equal(t, "pivot", sink.records[0].Shape)

	// The generator was told to produce the flat source query.
	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0].User, "pivoted locally")
}

func TestAskGenerationFailureIsAuditedAndReturned(t *testing.T) {
	generator := &fakeGenerator{err: fmt.Errorf("%w: dial tcp: connection refused", nl2sql.ErrUnavailable)}
	runner := &fakeRunner{}
	sink := &fakeSink{}
	svc := newTestService(&fakeSchema{desc: testSchema()}, generator, runner, sink)

	_, err := svc.Ask(context.Background(), Request{Question: "who is on leave?", UserID: "maria"})
	require.ErrorIs(t, err, nl2sql.ErrUnavailable)

	assert.Empty(t, runner.gotSQL)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "generation_unavailable", sink.records[0].Outcome)
	assert.Equal(t, "skipped", sink.records[0].Verdict)
}

func TestAskGenerationTimeoutUsesTimeoutOutcome(t *testing.T) {
	generator := &fakeGenerator{err: fmt.Errorf("%w: deadline exceeded", nl2sql.ErrTimeout)}
	sink := &fakeSink{}
	svc := newTestService(&fakeSchema{desc: testSchema()}, generator, &fakeRunner{}, sink)

	_, err := svc.Ask(context.Background(), Request{Question: "who is on leave?", UserID: "maria"})
	require.ErrorIs(t, err, nl2sql.ErrTimeout)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "generation_timeout", sink.records[0].Outcome)
}

func TestAskCatalogFailureAbortsBeforeGeneration(t *testing.T) {
	generator := &fakeGenerator{candidate: nl2sql.Candidate{SQL: "SELECT 1"}}
	sink := &fakeSink{}
	svc := newTestService(&fakeSchema{err: hrschema.ErrUnavailable}, generator, &fakeRunner{}, sink)

	_, err := svc.Ask(context.Background(), Request{Question: "anything", UserID: "maria"})
	require.ErrorIs(t, err, hrschema.ErrUnavailable)
	assert.Empty(t, generator.prompts)
	assert.Empty(t, sink.records)
}

func TestAskExecutionFailuresBecomeTypedOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		outcome executor.Outcome
	}{
		{"timeout", executor.Outcome{Kind: executor.OutcomeTimeout, Error: "query exceeded its time limit"}},
		{"engine error", executor.Outcome{Kind: executor.OutcomeEngineError, Error: "syntax error"}},
		{"backpressure", executor.Outcome{Kind: executor.OutcomeBackpressure, Error: "query pool exhausted, try again shortly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator := &fakeGenerator{candidate: nl2sql.Candidate{SQL: "SELECT employee_name FROM employee LIMIT 5"}}
			sink := &fakeSink{}
			svc := newTestService(&fakeSchema{desc: testSchema()}, generator, &fakeRunner{outcome: tt.outcome}, sink)

			result, err := svc.Ask(context.Background(), Request{Question: "q", UserID: "maria"})
			require.NoError(t, err)
			assert.Equal(t, tt.outcome.Kind, result.Outcome)
			assert.Equal(t, tt.outcome.Error, result.Error)
			assert.Nil(t, result.Presentation)
			require.Len(t, sink.records, 1)
			assert.Equal(t, string(tt.outcome.Kind), sink.records[0].Outcome)
		})
	}
}

func TestAskRetriesAuditAppendOnce(t *testing.T) {
	generator := &fakeGenerator{candidate: nl2sql.Candidate{SQL: "SELECT employee_name FROM employee LIMIT 5"}}
	runner := &fakeRunner{outcome: executor.Outcome{Kind: executor.OutcomeSuccess, Columns: []string{"employee_name"}}}
	sink := &fakeSink{failures: 1}
	svc := newTestService(&fakeSchema{desc: testSchema()}, generator, runner, sink)

	result, err := svc.Ask(context.Background(), Request{Question: "q", UserID: "maria"})
	require.NoError(t, err)
	assert.Equal(t, executor.OutcomeSuccess, result.Outcome)
	require.Len(t, sink.records, 1)
}

func TestAskAuditFailureNeverBlocksTheAnswer(t *testing.T) {
	generator := &fakeGenerator{candidate: nl2sql.Candidate{SQL: "SELECT employee_name FROM employee LIMIT 5"}}
	runner := &fakeRunner{outcome: executor.Outcome{Kind: executor.OutcomeSuccess, Columns: []string{"employee_name"}}}
	sink := &fakeSink{failures: 2}
	svc := newTestService(&fakeSchema{desc: testSchema()}, generator, runner, sink)

	result, err := svc.Ask(context.Background(), Request{Question: "q", UserID: "maria"})
	require.NoError(t, err)
	assert.Equal(t, executor.OutcomeSuccess, result.Outcome)
	assert.Empty(t, sink.records)
}

func TestAskValidatesRequest(t *testing.T) {
	svc := newTestService(&fakeSchema{desc: testSchema()}, &fakeGenerator{}, &fakeRunner{}, &fakeSink{})

	_, err := svc.Ask(context.Background(), Request{Question: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = svc.Ask(context.Background(), Request{Question: "q", Output: shape.Output{Kind: shape.KindPivot}})
	assert.Error(t, err)
}
