package hrschema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrUnavailable indicates the HR store could not be introspected. There is
// no cached fallback: a stale schema snapshot is worse than an outage because
// the validator's allow-list would admit identifiers that no longer exist.
var ErrUnavailable = errors.New("schema catalog unavailable")

type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// Description is an immutable snapshot of the live HR schema, taken at
// BuiltAt. Safe for concurrent reads.
type Description struct {
	Tables  []TableInfo `json:"tables"`
	BuiltAt time.Time   `json:"built_at"`

	tableSet  map[string]struct{}
	columnSet map[string]struct{}
}

// NewDescription builds a snapshot from already-known table definitions,
// mainly for wiring tests and fakes.
func NewDescription(tables []TableInfo) *Description {
	desc := &Description{
		Tables:    tables,
		BuiltAt:   time.Now().UTC(),
		tableSet:  map[string]struct{}{},
		columnSet: map[string]struct{}{},
	}
	for _, table := range tables {
		desc.tableSet[strings.ToLower(table.Name)] = struct{}{}
		for _, column := range table.Columns {
			desc.columnSet[strings.ToLower(column.Name)] = struct{}{}
		}
	}
	return desc
}

func (d *Description) HasTable(name string) bool {
	_, ok := d.tableSet[strings.ToLower(name)]
	return ok
}

func (d *Description) HasColumn(name string) bool {
	_, ok := d.columnSet[strings.ToLower(name)]
	return ok
}

func (d *Description) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, table := range d.Tables {
		names = append(names, table.Name)
	}
	return names
}

// Catalog introspects the relational store and caches one Description per
// session. Refresh discards the snapshot after a schema migration.
type Catalog struct {
	db *sql.DB

	mu      sync.RWMutex
	current *Description
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// The assistant's own tables never enter the snapshot. The validator admits
// any identifier the snapshot knows, so exposing query_audit here would let
// generated SQL read every user's questions back out.
const introspectionQuery = `
SELECT c.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = 'public' AND t.table_type = 'BASE TABLE'
  AND c.table_name NOT IN ('query_audit', 'hrapp_schema_migrations')
ORDER BY c.table_name, c.ordinal_position`

// Describe returns the current schema snapshot, introspecting the store on
// first use. Idempotent within a session.
func (c *Catalog) Describe(ctx context.Context) (*Description, error) {
	c.mu.RLock()
	current := c.current
	c.mu.RUnlock()
	if current != nil {
		return current, nil
	}
	return c.Refresh(ctx)
}

// Refresh rebuilds the snapshot from the live store, replacing any cached
// Description.
func (c *Catalog) Refresh(ctx context.Context) (*Description, error) {
	rows, err := c.db.QueryContext(ctx, introspectionQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: introspect columns: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	desc := &Description{
		BuiltAt:   time.Now().UTC(),
		tableSet:  map[string]struct{}{},
		columnSet: map[string]struct{}{},
	}
	var currentTable *TableInfo
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("%w: scan column row: %v", ErrUnavailable, err)
		}
		if currentTable == nil || currentTable.Name != tableName {
			desc.Tables = append(desc.Tables, TableInfo{Name: tableName})
			currentTable = &desc.Tables[len(desc.Tables)-1]
			desc.tableSet[strings.ToLower(tableName)] = struct{}{}
		}
		currentTable.Columns = append(currentTable.Columns, ColumnInfo{
			Name:     columnName,
			DataType: dataType,
			Nullable: strings.EqualFold(isNullable, "YES"),
		})
		desc.columnSet[strings.ToLower(columnName)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate column rows: %v", ErrUnavailable, err)
	}
	if len(desc.Tables) == 0 {
		return nil, fmt.Errorf("%w: no tables found in schema", ErrUnavailable)
	}

	c.mu.Lock()
	c.current = desc
	c.mu.Unlock()
	return desc, nil
}

// SampleRows reads up to limit rows from a table known to the snapshot, for
// generator context. Unknown tables are refused before any SQL is issued.
func (c *Catalog) SampleRows(ctx context.Context, desc *Description, table string, limit int) ([]string, [][]any, error) {
	if desc == nil || !desc.HasTable(table) {
		return nil, nil, fmt.Errorf("unknown table %q", table)
	}
	if limit <= 0 {
		limit = 5
	}

	query := "SELECT * FROM " + quoteIdent(table) + " LIMIT " + strconv.Itoa(limit)
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("sample rows for %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("sample columns for %q: %w", table, err)
	}

	sampled := make([][]any, 0, limit)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan sample row: %w", err)
		}
		sampled = append(sampled, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate sample rows: %w", err)
	}
	return columns, sampled, nil
}

func (c *Catalog) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping hr store: %w", err)
	}
	return nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
