package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databiosphere/tablesmasher"
)

func TestColumnNamerRename(t *testing.T) {
	namer := NewColumnNamer([]string{"subject", "sample", "study"})

	tests := []struct {
		name     string
		table    string
		columns  []string
		expected []string
	}{
		{
			name:     "entity id header and plain attributes",
			table:    "sample",
			columns:  []string{"entity:sample_id", "tissue", "collection_date"},
			expected: []string{"sample_entity_id", "sample_tissue", "sample_collection_date"},
		},
		{
			name:     "foreign key column gets entity id suffix",
			table:    "sample",
			columns:  []string{"entity:sample_id", "subject", "tissue"},
			expected: []string{"sample_entity_id", "subject_entity_id", "sample_tissue"},
		},
		{
			name:     "unknown name is prefixed, not treated as a key",
			table:    "sample",
			columns:  []string{"entity:sample_id", "donor"},
			expected: []string{"sample_entity_id", "sample_donor"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := tablesmasher.NewTable(tt.table, tt.columns)
			namer.Rename(table)
			assert.Equal(t, tt.expected, table.Columns)
		})
	}
}

func TestColumnNamerRenameIsInjectiveForNonIDColumns(t *testing.T) {
	namer := NewColumnNamer([]string{"subject"})
	table := tablesmasher.NewTable("lab_result", []string{"entity:lab_result_id", "value", "unit", "subject"})
	namer.Rename(table)

	seen := make(map[string]int)
	for _, c := range table.Columns {
		seen[c]++
	}
	for c, n := range seen {
		assert.Equal(t, 1, n, "column %q appears %d times", c, n)
	}
}

func TestCollapseDuplicateColumnsKeepsFirst(t *testing.T) {
	table := &tablesmasher.Table{
		Name:    "merged",
		Columns: []string{"subject_entity_id", "sample_tissue", "subject_entity_id", "sample_tissue"},
		Rows: [][]string{
			{"s1", "blood", "dup1", "dup2"},
			{"s2", "saliva", "dup3", "dup4"},
		},
	}
	CollapseDuplicateColumns(table)

	require.Equal(t, []string{"subject_entity_id", "sample_tissue"}, table.Columns)
	assert.Equal(t, [][]string{{"s1", "blood"}, {"s2", "saliva"}}, table.Rows)
}

func TestCollapseDuplicateColumnsNoOpWithoutDuplicates(t *testing.T) {
	table := &tablesmasher.Table{
		Name:    "subject",
		Columns: []string{"subject_entity_id", "subject_age"},
		Rows:    [][]string{{"s1", "40"}},
	}
	CollapseDuplicateColumns(table)
	assert.Equal(t, []string{"subject_entity_id", "subject_age"}, table.Columns)
	assert.Equal(t, [][]string{{"s1", "40"}}, table.Rows)
}
