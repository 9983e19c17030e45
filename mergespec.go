package tablesmasher

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// JoinType identifies the kind of SQL-style join applied at a merge step.
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinOuter JoinType = "outer"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
)

// Valid reports whether the join type is one of the supported kinds.
func (j JoinType) Valid() bool {
	switch j {
	case JoinInner, JoinOuter, JoinLeft, JoinRight:
		return true
	}
	return false
}

// MergeParameters are the overridable knobs of a single join operation.
// Column names are entity-type names; the planner substitutes them with
// canonical entity id column names before execution.
type MergeParameters struct {
	How     JoinType `json:"how,omitempty"`
	On      string   `json:"on,omitempty"`
	LeftOn  string   `json:"left_on,omitempty"`
	RightOn string   `json:"right_on,omitempty"`
}

// JoinStep is one unit of the merge sequence: the tables to bring in and
// how to join them into the accumulator.
type JoinStep struct {
	JoinColumn      string           `json:"join_column"`
	TableNames      []string         `json:"table_names"`
	JoinType        JoinType         `json:"join_type,omitempty"`
	MergeParameters *MergeParameters `json:"merge_parameters,omitempty"`
}

// MergeSpec is the immutable declarative document driving one
// consolidation run.
type MergeSpec struct {
	DefaultJoinType        JoinType         `json:"default_join_type,omitempty"`
	DefaultMergeParameters *MergeParameters `json:"default_merge_parameters,omitempty"`
	MergeSequence          []JoinStep       `json:"merge_sequence"`
	FinalIndexSourceColumn string           `json:"final_index_source_column"`
}

const mergeSpecSchema = `{
  "type": "object",
  "required": ["merge_sequence", "final_index_source_column"],
  "properties": {
    "default_join_type": {"type": "string", "enum": ["inner", "outer", "left", "right"]},
    "default_merge_parameters": {"$ref": "#/$defs/mergeParameters"},
    "final_index_source_column": {"type": "string", "minLength": 1},
    "merge_sequence": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["table_names"],
        "properties": {
          "join_column": {"type": "string"},
          "join_type": {"type": "string", "enum": ["inner", "outer", "left", "right"]},
          "table_names": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
          "merge_parameters": {"$ref": "#/$defs/mergeParameters"}
        }
      }
    }
  },
  "$defs": {
    "mergeParameters": {
      "type": "object",
      "properties": {
        "how": {"type": "string", "enum": ["inner", "outer", "left", "right"]},
        "on": {"type": "string"},
        "left_on": {"type": "string"},
        "right_on": {"type": "string"}
      }
    }
  }
}`

// ParseMergeSpec decodes and validates a merge specification document.
// All structural problems are reported here, before any network call.
func ParseMergeSpec(data []byte) (*MergeSpec, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(mergeSpecSchema), &schema); err != nil {
		return nil, NewInternalError("merge specification schema is invalid", err)
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, NewInternalError("merge specification schema failed to resolve", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, NewInvalidSpecificationError("merge specification is not valid JSON").WithCause(err)
	}
	if err := resolved.Validate(doc); err != nil {
		return nil, NewInvalidSpecificationError("merge specification does not match schema").WithCause(err)
	}

	var spec MergeSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, NewInvalidSpecificationError("merge specification could not be decoded").WithCause(err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the semantic constraints the JSON Schema cannot express:
// the first step needs at least two tables to seed the accumulator, later
// steps need at least one, and every step must yield a usable join column.
func (s *MergeSpec) Validate() error {
	if s.FinalIndexSourceColumn == "" {
		return NewInvalidSpecificationError("final_index_source_column is missing or empty")
	}
	if len(s.MergeSequence) == 0 {
		return NewInvalidSpecificationError("merge_sequence is empty")
	}
	if s.DefaultJoinType != "" && !s.DefaultJoinType.Valid() {
		return NewInvalidSpecificationError(fmt.Sprintf("default_join_type %q is not one of inner, outer, left, right", s.DefaultJoinType))
	}
	for i, step := range s.MergeSequence {
		if i == 0 && len(step.TableNames) < 2 {
			return NewInvalidSpecificationError("the first merge step requires at least two table names")
		}
		if len(step.TableNames) < 1 {
			return NewInvalidSpecificationError(fmt.Sprintf("merge step %d requires at least one table name", i))
		}
		if step.JoinType != "" && !step.JoinType.Valid() {
			return NewInvalidSpecificationError(fmt.Sprintf("merge step %d join_type %q is not one of inner, outer, left, right", i, step.JoinType))
		}
		if step.JoinColumn == "" && (step.MergeParameters == nil || (step.MergeParameters.On == "" && (step.MergeParameters.LeftOn == "" || step.MergeParameters.RightOn == ""))) {
			return NewInvalidSpecificationError(fmt.Sprintf("merge step %d has no join_column and no usable merge_parameters", i))
		}
	}
	return nil
}
