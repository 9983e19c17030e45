package tablesmasher

import (
	"fmt"
)

// EntityIDHeader returns the wire-format entity id header for a table,
// e.g. "entity:sample_id". Table stores require it as the first column
// of every uploaded table.
func EntityIDHeader(tableName string) string {
	return fmt.Sprintf("entity:%s_id", tableName)
}

// EntityIDColumn returns the canonical in-memory entity id column name
// for an entity type, e.g. "sample_entity_id".
func EntityIDColumn(entityType string) string {
	return entityType + "_entity_id"
}

// Table is a named, ordered set of columns and rows. Cells are strings;
// the empty string represents a null value. All rows have exactly
// len(Columns) cells.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// NewTable creates an empty table with the given columns.
func NewTable(name string, columns []string) *Table {
	return &Table{Name: name, Columns: append([]string(nil), columns...)}
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// ColumnCount returns the number of columns.
func (t *Table) ColumnCount() int {
	return len(t.Columns)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// ColumnValues returns the values of the named column in row order.
// The second result is false when the column does not exist.
func (t *Table) ColumnValues(name string) ([]string, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, true
}

// AppendRow adds a row. The row must have exactly one cell per column.
func (t *Table) AppendRow(row []string) error {
	if len(row) != len(t.Columns) {
		return NewInternalError(fmt.Sprintf("row has %d cells, table %q has %d columns", len(row), t.Name, len(t.Columns)), nil)
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// InsertColumn inserts a column at the given position with the supplied
// values, one per existing row.
func (t *Table) InsertColumn(pos int, name string, values []string) error {
	if pos < 0 || pos > len(t.Columns) {
		return NewInternalError(fmt.Sprintf("column position %d out of range for table %q", pos, t.Name), nil)
	}
	if len(values) != len(t.Rows) {
		return NewInternalError(fmt.Sprintf("column %q has %d values, table %q has %d rows", name, len(values), t.Name, len(t.Rows)), nil)
	}
	t.Columns = append(t.Columns, "")
	copy(t.Columns[pos+1:], t.Columns[pos:])
	t.Columns[pos] = name
	for i := range t.Rows {
		row := append(t.Rows[i], "")
		copy(row[pos+1:], row[pos:])
		row[pos] = values[i]
		t.Rows[i] = row
	}
	return nil
}

// FilterRows keeps only the rows for which keep returns true, preserving
// order, and returns the number of rows removed.
func (t *Table) FilterRows(keep func(row []string) bool) int {
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		if keep(row) {
			kept = append(kept, row)
		}
	}
	removed := len(t.Rows) - len(kept)
	t.Rows = kept
	return removed
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{
		Name:    t.Name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		c.Rows[i] = append([]string(nil), row...)
	}
	return c
}

// TableInfo describes a table as reported by a table store listing.
type TableInfo struct {
	RowCount       int      `json:"count"`
	AttributeNames []string `json:"attributeNames"`
}

// ColumnCount is the attribute count plus one for the entity id column.
func (i TableInfo) ColumnCount() int {
	return len(i.AttributeNames) + 1
}
