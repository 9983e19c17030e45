package internal

import (
	"github.com/databiosphere/tablesmasher"
)

// Join merges right into left with a hash join. The result carries every
// left column followed by the right columns not already present on the
// left (duplicate columns collapse, keeping the left side). Row order is
// deterministic: probe-side order with fan-out matches in build-side
// order, and for outer joins unmatched right rows appended in right-table
// order. Rows with an empty join key never match.
func Join(left, right *tablesmasher.Table, how tablesmasher.JoinType, leftKey, rightKey string) (*tablesmasher.Table, error) {
	leftKeyIdx := left.ColumnIndex(leftKey)
	if leftKeyIdx < 0 {
		return nil, tablesmasher.NewJoinKeyError(leftKey, left.Name)
	}
	rightKeyIdx := right.ColumnIndex(rightKey)
	if rightKeyIdx < 0 {
		return nil, tablesmasher.NewJoinKeyError(rightKey, right.Name)
	}

	// Right columns that survive the collapse, mapped to their source index.
	leftCols := make(map[string]struct{}, len(left.Columns))
	for _, c := range left.Columns {
		leftCols[c] = struct{}{}
	}
	var rightKeep []int
	columns := append([]string(nil), left.Columns...)
	for i, c := range right.Columns {
		if _, dup := leftCols[c]; dup {
			continue
		}
		columns = append(columns, c)
		rightKeep = append(rightKeep, i)
	}

	out := &tablesmasher.Table{Name: left.Name, Columns: columns}

	emit := func(leftRow, rightRow []string, rightKeyValue string) {
		row := make([]string, 0, len(columns))
		if leftRow != nil {
			row = append(row, leftRow...)
		} else {
			row = append(row, make([]string, len(left.Columns))...)
			// A right-only row still carries the join key.
			row[leftKeyIdx] = rightKeyValue
		}
		for _, i := range rightKeep {
			if rightRow != nil {
				row = append(row, rightRow[i])
			} else {
				row = append(row, "")
			}
		}
		out.Rows = append(out.Rows, row)
	}

	if how == tablesmasher.JoinRight {
		// Probe from the right so the result follows right-table order.
		leftIndex := make(map[string][]int, len(left.Rows))
		for i, row := range left.Rows {
			if key := row[leftKeyIdx]; key != "" {
				leftIndex[key] = append(leftIndex[key], i)
			}
		}
		for _, rightRow := range right.Rows {
			key := rightRow[rightKeyIdx]
			matches := leftIndex[key]
			if key == "" || len(matches) == 0 {
				emit(nil, rightRow, key)
				continue
			}
			for _, i := range matches {
				emit(left.Rows[i], rightRow, key)
			}
		}
		return out, nil
	}

	rightIndex := make(map[string][]int, len(right.Rows))
	for i, row := range right.Rows {
		if key := row[rightKeyIdx]; key != "" {
			rightIndex[key] = append(rightIndex[key], i)
		}
	}
	rightMatched := make([]bool, len(right.Rows))

	for _, leftRow := range left.Rows {
		key := leftRow[leftKeyIdx]
		matches := rightIndex[key]
		if key == "" || len(matches) == 0 {
			if how == tablesmasher.JoinLeft || how == tablesmasher.JoinOuter {
				emit(leftRow, nil, "")
			}
			continue
		}
		for _, i := range matches {
			rightMatched[i] = true
			emit(leftRow, right.Rows[i], key)
		}
	}

	if how == tablesmasher.JoinOuter {
		for i, rightRow := range right.Rows {
			if !rightMatched[i] {
				emit(nil, rightRow, rightRow[rightKeyIdx])
			}
		}
	}
	return out, nil
}
