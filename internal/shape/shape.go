// Package shape converts executed query results into their requested
// presentation. Pivoting happens here, never in generated SQL: pivot syntax
// varies by engine and the generator is not trusted to emit it.
package shape

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindFlat  Kind = "flat"
	KindPivot Kind = "pivot"
)

type Aggregation string

const (
	AggCount Aggregation = "count"
	AggSum   Aggregation = "sum"
	AggAvg   Aggregation = "avg"
)

type PivotSpec struct {
	RowDims     []string    `json:"row_dims"`
	ColDims     []string    `json:"col_dims"`
	ValueMetric string      `json:"value_metric"`
	Aggregation Aggregation `json:"aggregation"`
}

// Output describes the requested presentation of a query result. The zero
// value means flat.
type Output struct {
	Kind  Kind       `json:"kind"`
	Pivot *PivotSpec `json:"pivot,omitempty"`
}

func (o Output) Validate() error {
	switch o.Kind {
	case "", KindFlat:
		return nil
	case KindPivot:
	default:
		return fmt.Errorf("unknown output kind %q", o.Kind)
	}
	if o.Pivot == nil {
		return fmt.Errorf("pivot output requires a pivot spec")
	}
	if len(o.Pivot.RowDims) == 0 || len(o.Pivot.ColDims) == 0 {
		return fmt.Errorf("pivot requires at least one row and one column dimension")
	}
	if strings.TrimSpace(o.Pivot.ValueMetric) == "" {
		return fmt.Errorf("pivot requires a value metric")
	}
	switch o.Pivot.Aggregation {
	case AggCount, AggSum, AggAvg:
		return nil
	default:
		return fmt.Errorf("unknown aggregation %q", o.Pivot.Aggregation)
	}
}

func (o Output) IsPivot() bool {
	return o.Kind == KindPivot
}

type Presentation struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Shape produces the requested presentation from flat result rows. Flat
// output passes rows through in store order. Pivot output groups by the
// row and column dimension tuples in first-seen order, so repeated shaping
// of the same input is byte-identical.
func Shape(columns []string, rows [][]any, output Output) (Presentation, error) {
	if err := output.Validate(); err != nil {
		return Presentation{}, err
	}
	if !output.IsPivot() {
		return Presentation{Columns: columns, Rows: rows}, nil
	}
	return pivot(columns, rows, *output.Pivot)
}

type cell struct {
	count int64
	sum   float64
}

func pivot(columns []string, rows [][]any, spec PivotSpec) (Presentation, error) {
	rowIdx, err := columnIndexes(columns, spec.RowDims)
	if err != nil {
		return Presentation{}, err
	}
	colIdx, err := columnIndexes(columns, spec.ColDims)
	if err != nil {
		return Presentation{}, err
	}
	metricIdx, err := columnIndex(columns, spec.ValueMetric)
	if err != nil {
		return Presentation{}, err
	}

	var rowKeys, colKeys []string
	rowSeen := map[string]bool{}
	colSeen := map[string]bool{}
	rowLabels := map[string][]any{}
	cells := map[string]*cell{}

	for _, row := range rows {
		rowKey, rowVals := tupleKey(row, rowIdx)
		colKey, _ := tupleKey(row, colIdx)
		if !rowSeen[rowKey] {
			rowSeen[rowKey] = true
			rowKeys = append(rowKeys, rowKey)
			rowLabels[rowKey] = rowVals
		}
		if !colSeen[colKey] {
			colSeen[colKey] = true
			colKeys = append(colKeys, colKey)
		}

		cellKey := rowKey + "\x1e" + colKey
		c := cells[cellKey]
		if c == nil {
			c = &cell{}
			cells[cellKey] = c
		}
		c.count++
		if spec.Aggregation != AggCount {
			value, err := toFloat(row[metricIdx])
			if err != nil {
				return Presentation{}, fmt.Errorf("value metric %q: %w", spec.ValueMetric, err)
			}
			c.sum += value
		}
	}

	out := Presentation{Columns: append([]string{}, spec.RowDims...)}
	for _, colKey := range colKeys {
		out.Columns = append(out.Columns, strings.ReplaceAll(colKey, "\x1f", " / "))
	}

	for _, rowKey := range rowKeys {
		row := append([]any{}, rowLabels[rowKey]...)
		for _, colKey := range colKeys {
			row = append(row, cellValue(cells[rowKey+"\x1e"+colKey], spec.Aggregation))
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// cellValue fills empty intersections with zero for count/sum and blank for
// avg, where an average is undefined.
func cellValue(c *cell, agg Aggregation) any {
	switch agg {
	case AggCount:
		if c == nil {
			return int64(0)
		}
		return c.count
	case AggSum:
		if c == nil {
			return float64(0)
		}
		return c.sum
	default:
		if c == nil || c.count == 0 {
			return nil
		}
		return c.sum / float64(c.count)
	}
}

func tupleKey(row []any, indexes []int) (string, []any) {
	parts := make([]string, 0, len(indexes))
	values := make([]any, 0, len(indexes))
	for _, idx := range indexes {
		parts = append(parts, formatKey(row[idx]))
		values = append(values, row[idx])
	}
	return strings.Join(parts, "\x1f"), values
}

func formatKey(value any) string {
	if value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func columnIndexes(columns, names []string) ([]int, error) {
	indexes := make([]int, 0, len(names))
	for _, name := range names {
		idx, err := columnIndex(columns, name)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

func columnIndex(columns []string, name string) (int, error) {
	for i, column := range columns {
		if strings.EqualFold(column, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %q is not present in the result", name)
}

func toFloat(value any) (float64, error) {
	switch typed := value.(type) {
	case nil:
		return 0, nil
	case int:
		return float64(typed), nil
	case int32:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case float32:
		return float64(typed), nil
	case float64:
		return typed, nil
	case []byte:
		return parseFloat(string(typed))
	case string:
		return parseFloat(typed)
	default:
		return 0, fmt.Errorf("non-numeric value %v (%T)", value, value)
	}
}

func parseFloat(raw string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric value %q", raw)
	}
	return value, nil
}
