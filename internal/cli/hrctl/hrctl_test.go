package hrctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWithServer(t *testing.T, handler http.HandlerFunc, args []string) (int, string, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, Options{
		BaseURL: server.URL,
		APIKey:  "test-key",
		UserID:  "maria",
		Timeout: 2 * time.Second,
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	return code, stdout.String(), stderr.String()
}

func TestAskRendersTable(t *testing.T) {
	var gotPath, gotKey, gotUser string
	var gotBody map[string]any
	code, stdout, stderr := runWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotUser = r.Header.Get("X-User-ID")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"trace_id":     "trace-1",
			"verdict":      "accepted",
			"executed_sql": "SELECT employee_name FROM employee LIMIT 10",
			"columns":      []string{"employee_name"},
			"rows":         [][]any{{"Asha"}, {"Bram"}},
			"row_count":    2,
		})
	}, []string{"ask", "who", "works", "here?"})

	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "/v1/assistant/ask", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "maria", gotUser)
	assert.Equal(t, "who works here?", gotBody["question"])
	assert.Contains(t, stdout, "Asha")
	assert.Contains(t, stdout, "(2 rows)")
}

func TestAskSendsPivotSpec(t *testing.T) {
	var gotBody struct {
		Output struct {
			Kind  string `json:"kind"`
			Pivot struct {
				RowDims     []string `json:"row_dims"`
				Aggregation string   `json:"aggregation"`
			} `json:"pivot"`
		} `json:"output"`
	}
	code, _, stderr := runWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"columns": []string{"x"}, "rows": [][]any{}})
	}, []string{
		"ask", "hours per department",
		"--pivot-rows", "department_name",
		"--pivot-cols", "project_code",
		"--pivot-value", "hours_worked",
		"--pivot-agg", "avg",
	})

	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "pivot", gotBody.Output.Kind)
	assert.Equal(t, []string{"department_name"}, gotBody.Output.Pivot.RowDims)
	assert.Equal(t, "avg", gotBody.Output.Pivot.Aggregation)
}

func TestAskRejectsIncompletePivotFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"ask", "q", "--pivot-rows", "department_name"}, Options{
		BaseURL: "http://localhost:1",
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	require.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "pivot")
}

func TestAskSurfacesAPIErrors(t *testing.T) {
	code, _, stderr := runWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_code": "QUERY_REJECTED",
			"message":    "non-select or multi-statement",
			"retryable":  false,
		})
	}, []string{"ask", "delete all employees"})

	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "QUERY_REJECTED")
	assert.Contains(t, stderr, "non-select or multi-statement")
}

func TestSchemaListsColumns(t *testing.T) {
	code, stdout, stderr := runWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/schema", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tables": []map[string]any{
				{"name": "employee", "columns": []map[string]any{
					{"name": "employee_id", "data_type": "integer", "nullable": false},
				}},
			},
			"built_at": time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		})
	}, []string{"schema"})

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "employee_id")
	assert.Contains(t, stdout, "integer")
}

func TestSchemaRefresh(t *testing.T) {
	code, stdout, stderr := runWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/schema/refresh", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tables":   []string{"employee", "department"},
			"built_at": time.Now().UTC(),
		})
	}, []string{"schema", "refresh"})

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "refreshed: 2 tables")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "abc", formatValue([]byte("abc")))
	assert.Equal(t, "3.5", formatValue(3.5))
}

func TestRenderTableEmpty(t *testing.T) {
	var out strings.Builder
	renderTable(&out, []string{"a"}, nil)
	assert.Equal(t, "(0 rows)\n", out.String())
}
