package tablesmasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMergeSpec(t *testing.T) {
	doc := `{
		"default_join_type": "outer",
		"default_merge_parameters": {"how": "left", "on": "subject"},
		"merge_sequence": [
			{"join_column": "subject", "table_names": ["subject", "sample"]},
			{"table_names": ["demographic"], "join_type": "inner",
			 "merge_parameters": {"left_on": "subject", "right_on": "demographic"}}
		],
		"final_index_source_column": "subject_submitter_id"
	}`

	spec, err := ParseMergeSpec([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, JoinOuter, spec.DefaultJoinType)
	require.NotNil(t, spec.DefaultMergeParameters)
	assert.Equal(t, JoinLeft, spec.DefaultMergeParameters.How)
	assert.Equal(t, "subject", spec.DefaultMergeParameters.On)
	require.Len(t, spec.MergeSequence, 2)
	assert.Equal(t, []string{"subject", "sample"}, spec.MergeSequence[0].TableNames)
	assert.Equal(t, JoinInner, spec.MergeSequence[1].JoinType)
	require.NotNil(t, spec.MergeSequence[1].MergeParameters)
	assert.Equal(t, "demographic", spec.MergeSequence[1].MergeParameters.RightOn)
	assert.Equal(t, "subject_submitter_id", spec.FinalIndexSourceColumn)
}

func TestParseMergeSpecRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "not JSON",
			doc:  `{"merge_sequence": [`,
		},
		{
			name: "missing final index source column",
			doc:  `{"merge_sequence": [{"join_column": "subject", "table_names": ["subject", "sample"]}]}`,
		},
		{
			name: "empty final index source column",
			doc: `{"merge_sequence": [{"join_column": "subject", "table_names": ["subject", "sample"]}],
			      "final_index_source_column": ""}`,
		},
		{
			name: "empty merge sequence",
			doc:  `{"merge_sequence": [], "final_index_source_column": "subject_entity_id"}`,
		},
		{
			name: "unknown join type",
			doc: `{"default_join_type": "cross",
			      "merge_sequence": [{"join_column": "subject", "table_names": ["subject", "sample"]}],
			      "final_index_source_column": "subject_entity_id"}`,
		},
		{
			name: "step without table names",
			doc: `{"merge_sequence": [{"join_column": "subject"}],
			      "final_index_source_column": "subject_entity_id"}`,
		},
		{
			name: "first step with one table",
			doc: `{"merge_sequence": [{"join_column": "subject", "table_names": ["subject"]}],
			      "final_index_source_column": "subject_entity_id"}`,
		},
		{
			name: "step without a join column or parameters",
			doc: `{"merge_sequence": [{"table_names": ["subject", "sample"]}],
			      "final_index_source_column": "subject_entity_id"}`,
		},
		{
			name: "left_on without right_on",
			doc: `{"merge_sequence": [{"table_names": ["subject", "sample"],
			       "merge_parameters": {"left_on": "subject"}}],
			      "final_index_source_column": "subject_entity_id"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMergeSpec([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, IsInvalidSpecification(err), "expected an invalid specification error, got %v", err)
		})
	}
}

func TestParseMergeSpecOnAloneIsUsable(t *testing.T) {
	doc := `{"merge_sequence": [{"table_names": ["subject", "sample"],
	         "merge_parameters": {"on": "subject"}}],
	        "final_index_source_column": "subject_entity_id"}`
	spec, err := ParseMergeSpec([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "subject", spec.MergeSequence[0].MergeParameters.On)
}

func TestJoinTypeValid(t *testing.T) {
	for _, j := range []JoinType{JoinInner, JoinOuter, JoinLeft, JoinRight} {
		assert.True(t, j.Valid())
	}
	assert.False(t, JoinType("cross").Valid())
	assert.False(t, JoinType("").Valid())
}
