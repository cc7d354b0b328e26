// Package sqlguard decides whether generated SQL may touch the HR store.
// Generated text is treated as adversarial input: every check is an
// allow-list, and anything the validator does not recognize is rejected.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yamini-Krishna/employee-management/internal/hrschema"
)

type VerdictKind string

const (
	VerdictAccepted  VerdictKind = "accepted"
	VerdictRewritten VerdictKind = "rewritten"
	VerdictRejected  VerdictKind = "rejected"
)

// Verdict is terminal: SQL holds the text cleared for execution, Original
// the candidate as generated, Reason the rejection cause.
type Verdict struct {
	Kind     VerdictKind `json:"kind"`
	SQL      string      `json:"sql,omitempty"`
	Original string      `json:"original"`
	Reason   string      `json:"reason,omitempty"`
}

const ReasonNonSelect = "non-select or multi-statement"

type Validator struct {
	RowCap int
}

func NewValidator(rowCap int) *Validator {
	if rowCap <= 0 {
		rowCap = 2000
	}
	return &Validator{RowCap: rowCap}
}

// Validate runs the fixed check pipeline against a schema snapshot,
// short-circuiting at the first failure. The only rewrites it ever performs
// bound the row count: the cap is appended when no top-level limit exists and
// clamps one that exceeds it. Everything else ambiguous is rejected, because
// a false rejection costs a retry while a false acceptance costs the data.
func (v *Validator) Validate(candidateSQL string, desc *hrschema.Description) Verdict {
	original := strings.TrimSpace(candidateSQL)
	if original == "" {
		return rejected(original, "empty statement")
	}

	stmt, err := Parse(original)
	if err != nil {
		if errors.Is(err, ErrMultiStatement) {
			return rejected(original, ReasonNonSelect)
		}
		return rejected(original, fmt.Sprintf("malformed SQL: %v", err))
	}

	if stmt.Kind != KindSelect && stmt.Kind != KindWith {
		return rejected(original, ReasonNonSelect)
	}
	for _, word := range stmt.Words {
		if _, ok := forbiddenKeywords[word]; ok {
			return rejected(original, ReasonNonSelect)
		}
	}
	if stmt.Kind == KindWith && !containsWord(stmt.Words, "select") {
		return rejected(original, ReasonNonSelect)
	}

	for _, ident := range stmt.Identifiers {
		if desc.HasTable(ident) || desc.HasColumn(ident) {
			continue
		}
		return rejected(original, fmt.Sprintf("unknown identifier: %s", ident))
	}

	for _, fn := range stmt.Functions {
		if _, ok := allowedFunctions[fn]; !ok {
			return rejected(original, fmt.Sprintf("unknown function: %s", fn))
		}
	}

	switch {
	case stmt.LimitValue < 0:
		return Verdict{
			Kind:     VerdictRewritten,
			SQL:      fmt.Sprintf("%s LIMIT %d", stmt.Text, v.RowCap),
			Original: original,
		}
	case stmt.LimitValue > v.RowCap:
		// Wrapping clamps an over-cap limit without editing the statement
		// body.
		return Verdict{
			Kind:     VerdictRewritten,
			SQL:      fmt.Sprintf("SELECT * FROM (%s) AS bounded LIMIT %d", stmt.Text, v.RowCap),
			Original: original,
		}
	}
	return Verdict{Kind: VerdictAccepted, SQL: stmt.Text, Original: original}
}

func rejected(original, reason string) Verdict {
	return Verdict{Kind: VerdictRejected, Original: original, Reason: reason}
}

func containsWord(words []string, want string) bool {
	for _, word := range words {
		if word == want {
			return true
		}
	}
	return false
}

// forbiddenKeywords reject a statement wherever they appear, including
// inside a CTE: Postgres allows data-modifying WITH clauses, so position is
// no excuse.
var forbiddenKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "drop": {}, "alter": {},
	"create": {}, "grant": {}, "revoke": {}, "truncate": {}, "copy": {},
	"merge": {}, "call": {}, "do": {}, "execute": {}, "prepare": {},
	"vacuum": {}, "analyze": {}, "reindex": {}, "cluster": {}, "lock": {},
	"listen": {}, "notify": {}, "set": {}, "reset": {}, "refresh": {},
	"returning": {}, "into": {},
}

// allowedFunctions is the complete set of callables generated SQL may use.
// Unknown means unsafe: anything touching files, roles, or server state is
// absent by construction.
var allowedFunctions = map[string]struct{}{
	// aggregates
	"count": {}, "sum": {}, "avg": {}, "min": {}, "max": {},
	"string_agg": {}, "array_agg": {}, "bool_and": {}, "bool_or": {},
	// numeric
	"round": {}, "abs": {}, "ceil": {}, "ceiling": {}, "floor": {},
	"trunc": {}, "mod": {}, "power": {}, "sqrt": {}, "sign": {},
	"greatest": {}, "least": {},
	// strings
	"lower": {}, "upper": {}, "initcap": {}, "length": {}, "char_length": {},
	"trim": {}, "ltrim": {}, "rtrim": {}, "substring": {}, "substr": {},
	"concat": {}, "concat_ws": {}, "replace": {}, "split_part": {},
	"position": {}, "lpad": {}, "rpad": {}, "left": {}, "right": {},
	// null handling and conversion
	"coalesce": {}, "nullif": {}, "cast": {},
	// dates
	"now": {}, "age": {}, "extract": {}, "date_trunc": {}, "date_part": {},
	"to_char": {}, "to_date": {}, "to_timestamp": {}, "to_number": {},
	"make_date": {}, "justify_interval": {},
	// window
	"row_number": {}, "rank": {}, "dense_rank": {}, "ntile": {},
	"lag": {}, "lead": {}, "first_value": {}, "last_value": {},
}
