package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/yamini-Krishna/employee-management/internal/hrschema"
)

type schemaResponse struct {
	Tables  []hrschema.TableInfo   `json:"tables"`
	BuiltAt time.Time              `json:"built_at"`
	Samples map[string]tableSample `json:"samples,omitempty"`
}

type tableSample struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func handleGetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema catalog is not configured", false, nil)
		return
	}

	desc, err := deps.Catalog.Describe(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "the HR schema could not be read", true, nil)
		return
	}

	response := schemaResponse{Tables: desc.Tables, BuiltAt: desc.BuiltAt}

	if includeSamples(r) {
		limit := deps.SchemaSampleRows
		if limit <= 0 {
			limit = 5
		}
		response.Samples = map[string]tableSample{}
		for _, table := range desc.Tables {
			columns, rows, err := deps.Catalog.SampleRows(r.Context(), desc, table.Name, limit)
			if err != nil {
				// One unreadable table should not hide the rest of the schema.
				continue
			}
			response.Samples[table.Name] = tableSample{Columns: columns, Rows: rows}
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func handleRefreshSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema catalog is not configured", false, nil)
		return
	}

	desc, err := deps.Catalog.Refresh(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "the HR schema could not be refreshed", true, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tables":   desc.TableNames(),
		"built_at": desc.BuiltAt,
	})
}

func includeSamples(r *http.Request) bool {
	raw := r.URL.Query().Get("samples")
	if raw == "" {
		return false
	}
	include, err := strconv.ParseBool(raw)
	return err == nil && include
}
