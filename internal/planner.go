package internal

import (
	"fmt"

	"github.com/databiosphere/tablesmasher"
)

// ResolvedStep is one concrete join operation produced by the planner.
// Key columns are canonical entity id column names, ready for the join
// engine.
type ResolvedStep struct {
	TableNames []string
	How        tablesmasher.JoinType
	LeftKey    string
	RightKey   string
}

// PlanMerge interprets a merge specification into an ordered list of
// concrete join operations. Join parameters are resolved with later
// sources winning: standard defaults, then the spec's defaults, then
// step-local merge_parameters, then the step's join_column/join_type.
// Entity type names in on/left_on/right_on are substituted with their
// canonical entity id column names.
func PlanMerge(spec *tablesmasher.MergeSpec) ([]ResolvedStep, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	defaults := tablesmasher.MergeParameters{How: tablesmasher.JoinInner}
	if spec.DefaultMergeParameters != nil {
		applyParameters(&defaults, spec.DefaultMergeParameters)
	}
	if spec.DefaultJoinType != "" {
		defaults.How = spec.DefaultJoinType
	}

	steps := make([]ResolvedStep, 0, len(spec.MergeSequence))
	for i, step := range spec.MergeSequence {
		params := defaults
		if step.MergeParameters != nil {
			applyParameters(&params, step.MergeParameters)
		}
		if step.JoinColumn != "" {
			params.On = step.JoinColumn
			params.LeftOn, params.RightOn = "", ""
		}
		if step.JoinType != "" {
			params.How = step.JoinType
		}

		resolved := ResolvedStep{
			TableNames: append([]string(nil), step.TableNames...),
			How:        params.How,
		}
		switch {
		case params.On != "":
			key := tablesmasher.EntityIDColumn(params.On)
			resolved.LeftKey, resolved.RightKey = key, key
		case params.LeftOn != "" && params.RightOn != "":
			resolved.LeftKey = tablesmasher.EntityIDColumn(params.LeftOn)
			resolved.RightKey = tablesmasher.EntityIDColumn(params.RightOn)
		default:
			return nil, tablesmasher.NewInvalidSpecificationError(
				fmt.Sprintf("merge step %d resolves to no join column", i))
		}
		steps = append(steps, resolved)
	}
	return steps, nil
}

func applyParameters(dst, src *tablesmasher.MergeParameters) {
	if src.How != "" {
		dst.How = src.How
	}
	if src.On != "" {
		dst.On = src.On
	}
	if src.LeftOn != "" {
		dst.LeftOn = src.LeftOn
	}
	if src.RightOn != "" {
		dst.RightOn = src.RightOn
	}
}
