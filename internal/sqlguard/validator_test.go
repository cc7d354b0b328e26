package sqlguard

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamini-Krishna/employee-management/internal/hrschema"
)

func hrDescription() *hrschema.Description {
	return hrschema.NewDescription([]hrschema.TableInfo{
		{Name: "employee", Columns: []hrschema.ColumnInfo{
			{Name: "employee_id", DataType: "integer"},
			{Name: "employee_name", DataType: "character varying"},
			{Name: "department_id", DataType: "integer"},
		}},
		{Name: "department", Columns: []hrschema.ColumnInfo{
			{Name: "department_id", DataType: "integer"},
			{Name: "department_name", DataType: "character varying"},
		}},
		{Name: "timesheet", Columns: []hrschema.ColumnInfo{
			{Name: "employee_id", DataType: "integer"},
			{Name: "project_code", DataType: "character varying"},
			{Name: "hours_worked", DataType: "numeric", Nullable: true},
		}},
	})
}

func TestValidateAcceptsBoundedSelect(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate("SELECT employee_name FROM employee LIMIT 10", hrDescription())
	require.Equal(t, VerdictAccepted, verdict.Kind, verdict.Reason)
	assert.Equal(t, "SELECT employee_name FROM employee LIMIT 10", verdict.SQL)
}

func TestValidateRewritesUnboundedSelect(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate("SELECT * FROM employee", hrDescription())
	require.Equal(t, VerdictRewritten, verdict.Kind, verdict.Reason)
	assert.Equal(t, "SELECT * FROM employee LIMIT 2000", verdict.SQL)
	assert.Equal(t, "SELECT * FROM employee", verdict.Original)
}

func TestValidateRejectsNonSelectStatements(t *testing.T) {
	v := NewValidator(2000)
	tests := []string{
		"DELETE FROM employee",
		"INSERT INTO employee (employee_name) VALUES ('x')",
		"UPDATE employee SET employee_name = 'x'",
		"DROP TABLE employee",
		"ALTER TABLE employee ADD COLUMN x integer",
		"CREATE TABLE x (id integer)",
		"GRANT ALL ON employee TO PUBLIC",
		"TRUNCATE employee",
	}
	for _, sql := range tests {
		verdict := v.Validate(sql, hrDescription())
		require.Equal(t, VerdictRejected, verdict.Kind, sql)
		assert.Equal(t, ReasonNonSelect, verdict.Reason, sql)
	}
}

func TestValidateRejectsSecondStatementHoweverSeparated(t *testing.T) {
	v := NewValidator(2000)
	tests := []string{
		"SELECT 1; DELETE FROM employee",
		"SELECT employee_name FROM employee;DROP TABLE employee",
		"SELECT 1 /* x */; SELECT 2",
		"SELECT 1;\n-- harmless\nSELECT 2",
	}
	for _, sql := range tests {
		verdict := v.Validate(sql, hrDescription())
		require.Equal(t, VerdictRejected, verdict.Kind, sql)
		assert.Equal(t, ReasonNonSelect, verdict.Reason, sql)
	}
}

func TestValidateRejectsDataModifyingCTE(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate("WITH gone AS (DELETE FROM employee RETURNING employee_id) SELECT * FROM gone", hrDescription())
	require.Equal(t, VerdictRejected, verdict.Kind)
	assert.Equal(t, ReasonNonSelect, verdict.Reason)
}

func TestValidateRejectsUnknownIdentifiers(t *testing.T) {
	v := NewValidator(2000)
	tests := []struct {
		sql   string
		ident string
	}{
		{"SELECT salary FROM employee", "salary"},
		{"SELECT employee_name FROM payroll", "payroll"},
		{"SELECT usename FROM pg_shadow", "usename"},
	}
	for _, tt := range tests {
		verdict := v.Validate(tt.sql, hrDescription())
		require.Equal(t, VerdictRejected, verdict.Kind, tt.sql)
		assert.Equal(t, fmt.Sprintf("unknown identifier: %s", tt.ident), verdict.Reason)
	}
}

func TestValidateRejectsAuditTrailReads(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate("SELECT user_id, question, generated_sql FROM query_audit", hrDescription())
	require.Equal(t, VerdictRejected, verdict.Kind)
	assert.True(t, strings.HasPrefix(verdict.Reason, "unknown identifier:"), verdict.Reason)
}

func TestValidateIdentifierCheckIgnoresCasingTricks(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate("SeLeCt UsEnAmE FrOm Pg_ShAdOw", hrDescription())
	require.Equal(t, VerdictRejected, verdict.Kind)
	assert.True(t, strings.HasPrefix(verdict.Reason, "unknown identifier:"), verdict.Reason)
}

func TestValidateRejectsUnknownFunctions(t *testing.T) {
	v := NewValidator(2000)
	tests := []string{
		"SELECT pg_read_file('/etc/passwd')",
		"SELECT pg_sleep(60) FROM employee",
		"SELECT lo_import('/etc/passwd')",
	}
	for _, sql := range tests {
		verdict := v.Validate(sql, hrDescription())
		require.Equal(t, VerdictRejected, verdict.Kind, sql)
		assert.True(t, strings.HasPrefix(verdict.Reason, "unknown function:"), verdict.Reason)
	}
}

func TestValidateAllowsListedFunctions(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate(
		"SELECT department_name, COUNT(*), ROUND(AVG(hours_worked)::numeric, 2) "+
			"FROM timesheet JOIN employee ON timesheet.employee_id = employee.employee_id "+
			"JOIN department ON employee.department_id = department.department_id "+
			"GROUP BY department_name LIMIT 100",
		hrDescription())
	require.Equal(t, VerdictAccepted, verdict.Kind, verdict.Reason)
}

func TestValidateAcceptsWithSelect(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate(
		"WITH busy AS (SELECT employee_id, SUM(hours_worked) AS total FROM timesheet GROUP BY employee_id) "+
			"SELECT employee_name, total FROM employee JOIN busy ON employee.employee_id = busy.employee_id LIMIT 50",
		hrDescription())
	require.Equal(t, VerdictAccepted, verdict.Kind, verdict.Reason)
}

func TestValidateRewritesWhenOnlySubqueryHasLimit(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate("SELECT e1.employee_id FROM employee e1, employee e2, (SELECT 1 LIMIT 1) x", hrDescription())
	require.Equal(t, VerdictRewritten, verdict.Kind, verdict.Reason)
	assert.True(t, strings.HasSuffix(verdict.SQL, "LIMIT 2000"), verdict.SQL)
}

func TestValidateClampsOvercapLimit(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate("SELECT employee_id FROM employee LIMIT 999999", hrDescription())
	require.Equal(t, VerdictRewritten, verdict.Kind, verdict.Reason)
	assert.Equal(t, "SELECT * FROM (SELECT employee_id FROM employee LIMIT 999999) AS bounded LIMIT 2000", verdict.SQL)
}

func TestValidateAllowsStandardCast(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate("SELECT CAST(hours_worked AS integer) FROM timesheet LIMIT 10", hrDescription())
	require.Equal(t, VerdictAccepted, verdict.Kind, verdict.Reason)
}

func TestValidateRewriteKeepsCap(t *testing.T) {
	v := NewValidator(500)
	verdict := v.Validate("SELECT employee_name FROM employee ORDER BY employee_name", hrDescription())
	require.Equal(t, VerdictRewritten, verdict.Kind, verdict.Reason)
	assert.True(t, strings.HasSuffix(verdict.SQL, "LIMIT 500"), verdict.SQL)
}

func TestValidateRewriteStripsTrailingSemicolon(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate("SELECT employee_name FROM employee;", hrDescription())
	require.Equal(t, VerdictRewritten, verdict.Kind, verdict.Reason)
	assert.Equal(t, "SELECT employee_name FROM employee LIMIT 2000", verdict.SQL)
}

func TestValidateRejectsMalformedSQL(t *testing.T) {
	v := NewValidator(2000)
	verdict := v.Validate("SELECT 'oops", hrDescription())
	require.Equal(t, VerdictRejected, verdict.Kind)
	assert.Contains(t, verdict.Reason, "malformed SQL")

	verdict = v.Validate("   ", hrDescription())
	require.Equal(t, VerdictRejected, verdict.Kind)
}
