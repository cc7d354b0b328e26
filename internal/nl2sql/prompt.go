package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yamini-Krishna/employee-management/internal/hrschema"
	"github.com/yamini-Krishna/employee-management/internal/shape"
)

// Prompt is the full generation request, split into the system and user
// messages of a chat-completion call.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

const systemPrompt = "You convert natural language HR questions into a single PostgreSQL SELECT query. " +
	"Return ONLY SQL. No markdown, no explanation."

// BuildPrompt is a pure function of (question, schema, output shape): the
// same inputs always produce byte-identical prompts, so an audited question
// can be replayed against the snapshot it saw.
func BuildPrompt(question string, desc *hrschema.Description, output shape.Output) (Prompt, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Prompt{}, fmt.Errorf("empty question")
	}
	if desc == nil || len(desc.Tables) == 0 {
		return Prompt{}, fmt.Errorf("schema description is required")
	}

	schemaJSON, err := json.Marshal(desc.Tables)
	if err != nil {
		return Prompt{}, fmt.Errorf("marshal schema context: %w", err)
	}

	var user strings.Builder
	user.WriteString("Database schema (JSON):\n")
	user.Write(schemaJSON)
	user.WriteString("\n\nQuestion:\n")
	user.WriteString(question)
	user.WriteString("\n\nRules:\n")
	user.WriteString("- Produce exactly one SELECT statement. Never modify data.\n")
	user.WriteString("- Reference only tables and columns listed in the schema above.\n")
	user.WriteString("- Prefer explicit column lists over SELECT *.\n")
	if output.IsPivot() {
		// Pivoting happens locally after execution. The generator only ever
		// produces the flat row-per-fact query feeding it.
		spec := output.Pivot
		fmt.Fprintf(&user,
			"- The result will be pivoted locally. Return a flat query with one row per fact, selecting the columns %s and %s as plain dimensions and %s as the value. Do not use crosstab, PIVOT, or FILTER clauses.\n",
			strings.Join(spec.RowDims, ", "),
			strings.Join(spec.ColDims, ", "),
			spec.ValueMetric,
		)
	}
	user.WriteString("- Output a single SQL query only.")

	return Prompt{System: systemPrompt, User: user.String()}, nil
}
