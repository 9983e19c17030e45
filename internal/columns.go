package internal

import (
	"github.com/databiosphere/tablesmasher"
)

// ColumnNamer derives canonical column names so same-named columns from
// different tables never collide except where they are meant to be join
// keys.
type ColumnNamer struct {
	entityTypes map[string]struct{}
}

// NewColumnNamer builds a namer over the known entity type names.
func NewColumnNamer(entityTypes []string) *ColumnNamer {
	set := make(map[string]struct{}, len(entityTypes))
	for _, name := range entityTypes {
		set[name] = struct{}{}
	}
	return &ColumnNamer{entityTypes: set}
}

// Rename canonicalizes the table's column names in place:
//   - the entity id header "entity:<table>_id" becomes "<table>_entity_id"
//   - a column named after a known entity type is a foreign key and
//     becomes "<type>_entity_id"
//   - every other column is prefixed with the table name
//
// Duplicate columns produced by the renaming are collapsed, keeping the
// first occurrence.
func (n *ColumnNamer) Rename(t *tablesmasher.Table) {
	for i, col := range t.Columns {
		switch {
		case col == tablesmasher.EntityIDHeader(t.Name):
			t.Columns[i] = tablesmasher.EntityIDColumn(t.Name)
		case n.isEntityType(col):
			t.Columns[i] = tablesmasher.EntityIDColumn(col)
		default:
			t.Columns[i] = t.Name + "_" + col
		}
	}
	CollapseDuplicateColumns(t)
}

func (n *ColumnNamer) isEntityType(name string) bool {
	_, ok := n.entityTypes[name]
	return ok
}

// CollapseDuplicateColumns drops all but the first occurrence of each
// column name, removing the corresponding cells from every row.
func CollapseDuplicateColumns(t *tablesmasher.Table) {
	seen := make(map[string]struct{}, len(t.Columns))
	keep := make([]int, 0, len(t.Columns))
	for i, col := range t.Columns {
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		keep = append(keep, i)
	}
	if len(keep) == len(t.Columns) {
		return
	}

	columns := make([]string, len(keep))
	for out, in := range keep {
		columns[out] = t.Columns[in]
	}
	t.Columns = columns
	for r, row := range t.Rows {
		cells := make([]string, len(keep))
		for out, in := range keep {
			cells[out] = row[in]
		}
		t.Rows[r] = cells
	}
}
