// Package table holds the tabular results returned by the SMHI clients: a set
// of ordered, labelled string columns with an optional UTC time index.
package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownColumn is returned when a column name is not part of the table.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrNotIndexed is returned by index operations on an unindexed table.
	ErrNotIndexed = errors.New("table has no time index")
)

// Table is a column-labelled result set. Tables built with NewIndexed carry
// one UTC timestamp per row; tables built with New do not.
type Table struct {
	columns []string
	indexed bool
	index   []time.Time
	rows    [][]string
}

// New creates an empty table without a time index.
func New(columns ...string) *Table {
	return &Table{columns: append([]string(nil), columns...)}
}

// NewIndexed creates an empty time-indexed table.
func NewIndexed(columns ...string) *Table {
	return &Table{columns: append([]string(nil), columns...), indexed: true}
}

// Columns returns the ordered column names.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Indexed reports whether rows carry timestamps.
func (t *Table) Indexed() bool {
	return t.indexed
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Index returns a copy of the time index, nil for unindexed tables.
func (t *Table) Index() []time.Time {
	if !t.indexed {
		return nil
	}
	return append([]time.Time(nil), t.index...)
}

// Time returns the index value of row i.
func (t *Table) Time(i int) time.Time {
	return t.index[i]
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []string {
	return append([]string(nil), t.rows[i]...)
}

// Append adds a row to an unindexed table. Missing cells are left empty.
func (t *Table) Append(cells ...string) {
	t.rows = append(t.rows, t.fit(cells))
}

// AppendAt adds a row stamped with ts (converted to UTC) to an indexed table.
func (t *Table) AppendAt(ts time.Time, cells ...string) {
	t.index = append(t.index, ts.UTC())
	t.rows = append(t.rows, t.fit(cells))
}

func (t *Table) fit(cells []string) []string {
	row := make([]string, len(t.columns))
	copy(row, cells)
	return row
}

// ColumnIndex returns the position of a column.
func (t *Table) ColumnIndex(name string) (int, error) {
	for i, c := range t.columns {
		if c == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
}

// Value returns the raw cell at row i of the named column.
func (t *Table) Value(i int, column string) (string, error) {
	c, err := t.ColumnIndex(column)
	if err != nil {
		return "", err
	}
	return t.rows[i][c], nil
}

// Float coerces the cell at row i of the named column to a number.
func (t *Table) Float(i int, column string) (float64, error) {
	v, err := t.Value(i, column)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("row %d column %q: %w", i, column, err)
	}
	return f, nil
}

// Floats coerces a whole column; cells that are not numbers become NaN.
func (t *Table) Floats(column string) ([]float64, error) {
	c, err := t.ColumnIndex(column)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.rows))
	for i, row := range t.rows {
		f, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
		if err != nil {
			f = math.NaN()
		}
		out[i] = f
	}
	return out, nil
}

// At returns the row stamped exactly ts.
func (t *Table) At(ts time.Time) ([]string, bool) {
	if !t.indexed {
		return nil, false
	}
	for i, x := range t.index {
		if x.Equal(ts) {
			return t.Row(i), true
		}
	}
	return nil, false
}

// RenameColumn renames a column in place.
func (t *Table) RenameColumn(from, to string) error {
	c, err := t.ColumnIndex(from)
	if err != nil {
		return err
	}
	t.columns[c] = to
	return nil
}

// Between returns the rows whose timestamps lie strictly between from and to.
func (t *Table) Between(from, to time.Time) (*Table, error) {
	if !t.indexed {
		return nil, ErrNotIndexed
	}
	out := NewIndexed(t.columns...)
	for i, ts := range t.index {
		if ts.After(from) && ts.Before(to) {
			out.AppendAt(ts, t.rows[i]...)
		}
	}
	return out, nil
}

// Merge returns a new table holding every row of t plus the rows of other
// whose timestamp is not already present in t. Columns are matched by
// position; the result is sorted by time.
func (t *Table) Merge(other *Table) (*Table, error) {
	if !t.indexed || !other.indexed {
		return nil, ErrNotIndexed
	}
	seen := make(map[time.Time]struct{}, len(t.index))
	out := NewIndexed(t.columns...)
	for i, ts := range t.index {
		seen[ts] = struct{}{}
		out.AppendAt(ts, t.rows[i]...)
	}
	for i, ts := range other.index {
		if _, dup := seen[ts]; dup {
			continue
		}
		seen[ts] = struct{}{}
		out.AppendAt(ts, other.rows[i]...)
	}
	out.SortByIndex()
	return out, nil
}

// SortByIndex orders rows by timestamp, keeping the relative order of equal stamps.
func (t *Table) SortByIndex() {
	if !t.indexed || t.sorted() {
		return
	}
	order := make([]int, len(t.index))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return t.index[order[a]].Before(t.index[order[b]]) })

	index := make([]time.Time, len(order))
	rows := make([][]string, len(order))
	for i, o := range order {
		index[i] = t.index[o]
		rows[i] = t.rows[o]
	}
	t.index, t.rows = index, rows
}

func (t *Table) sorted() bool {
	return sort.SliceIsSorted(t.index, func(a, b int) bool { return t.index[a].Before(t.index[b]) })
}

// Spacings returns the durations between consecutive timestamps.
func (t *Table) Spacings() []time.Duration {
	if !t.indexed || len(t.index) < 2 {
		return nil
	}
	out := make([]time.Duration, 0, len(t.index)-1)
	for i := 1; i < len(t.index); i++ {
		out = append(out, t.index[i].Sub(t.index[i-1]))
	}
	return out
}

// MarshalJSON encodes the table as {"columns": [...], "index": [...], "rows": [...]}.
func (t *Table) MarshalJSON() ([]byte, error) {
	payload := struct {
		Columns []string    `json:"columns"`
		Index   []time.Time `json:"index,omitempty"`
		Rows    [][]string  `json:"rows"`
	}{
		Columns: t.columns,
		Index:   t.index,
		Rows:    t.rows,
	}
	if payload.Rows == nil {
		payload.Rows = [][]string{}
	}
	return json.Marshal(payload)
}
