package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yamini-Krishna/employee-management/internal/assistant"
	"github.com/yamini-Krishna/employee-management/internal/auth"
	"github.com/yamini-Krishna/employee-management/internal/executor"
	"github.com/yamini-Krishna/employee-management/internal/hrschema"
	"github.com/yamini-Krishna/employee-management/internal/nl2sql"
	"github.com/yamini-Krishna/employee-management/internal/shape"
)

type askRequest struct {
	Question string       `json:"question"`
	Output   shape.Output `json:"output"`
}

type askResponse struct {
	TraceID      string   `json:"trace_id"`
	Question     string   `json:"question"`
	GeneratedSQL string   `json:"generated_sql"`
	ExecutedSQL  string   `json:"executed_sql"`
	Verdict      string   `json:"verdict"`
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowCount     int      `json:"row_count"`
	Truncated    bool     `json:"truncated,omitempty"`
	ElapsedMs    int64    `json:"elapsed_ms"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "identity is required", false, nil)
		return
	}
	if !identity.HasRole(auth.RoleAssistantUser) {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "assistant_user role is required", false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	result, err := deps.Assistant.Ask(r.Context(), assistant.Request{
		Question: request.Question,
		UserID:   identity.UserID,
		Output:   request.Output,
	})
	if err != nil {
		writeAskError(w, r, err)
		return
	}
	if result.Outcome != executor.OutcomeSuccess {
		writeOutcomeError(w, r, result)
		return
	}

	response := askResponse{
		TraceID:      result.TraceID,
		Question:     result.Question,
		GeneratedSQL: result.GeneratedSQL,
		ExecutedSQL:  result.ExecutedSQL,
		Verdict:      string(result.Verdict.Kind),
		RowCount:     result.RowCount,
		Truncated:    result.Truncated,
		ElapsedMs:    result.Elapsed.Milliseconds(),
	}
	if result.Presentation != nil {
		response.Columns = result.Presentation.Columns
		response.Rows = result.Presentation.Rows
	}
	writeJSON(w, http.StatusOK, response)
}

func writeAskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, assistant.ErrEmptyQuestion):
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
	case errors.Is(err, hrschema.ErrUnavailable):
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "the HR schema could not be read", true, nil)
	case errors.Is(err, nl2sql.ErrTimeout):
		writeError(r.Context(), w, http.StatusGatewayTimeout, "GENERATION_TIMEOUT", "SQL generation timed out", true, nil)
	case errors.Is(err, nl2sql.ErrUnavailable):
		writeError(r.Context(), w, http.StatusServiceUnavailable, "GENERATION_UNAVAILABLE", "SQL generation is unavailable", true, nil)
	default:
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
	}
}

// writeOutcomeError maps non-success pipeline outcomes. The generated SQL
// travels in the context so a rejected question can be debugged without
// consulting the audit table.
func writeOutcomeError(w http.ResponseWriter, r *http.Request, result assistant.Result) {
	extra := map[string]any{
		"outcome":       string(result.Outcome),
		"generated_sql": result.GeneratedSQL,
	}
	switch result.Outcome {
	case executor.OutcomeRejected:
		extra["reason"] = result.Verdict.Reason
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "QUERY_REJECTED", result.Error, false, extra)
	case executor.OutcomeTimeout:
		writeError(r.Context(), w, http.StatusGatewayTimeout, "QUERY_TIMEOUT", result.Error, true, extra)
	case executor.OutcomeBackpressure:
		writeError(r.Context(), w, http.StatusTooManyRequests, "BACKPRESSURE", result.Error, true, extra)
	default:
		writeError(r.Context(), w, http.StatusBadGateway, "QUERY_FAILED", result.Error, true, extra)
	}
}
