package internal

import (
	"go.uber.org/zap"

	"github.com/databiosphere/tablesmasher"
)

// warnIDListLimit bounds the id lists included in dedup warnings. Counts
// are always exact.
const warnIDListLimit = 20

// Deduplicate removes rows of candidate that repeat a value in keyColumn,
// keeping the first occurrence in table order. The entity ids of the
// removed rows are then used to delete matching rows from the accumulator
// (when non-nil), so outer joins cannot re-create rows for entities that
// were just dropped. Returns the entity ids of the removed candidate rows.
//
// Source graphs legitimately contain one-to-many edges that are expected
// to be one-to-one for these tables (multiple physical samples per
// logical subject). Keeping only the first is the documented policy; the
// warning makes the data loss auditable.
func Deduplicate(accumulator, candidate *tablesmasher.Table, keyColumn string) []string {
	keyIdx := candidate.ColumnIndex(keyColumn)
	if keyIdx < 0 {
		return nil
	}
	idColumn := tablesmasher.EntityIDColumn(candidate.Name)
	idIdx := candidate.ColumnIndex(idColumn)

	seen := make(map[string]struct{}, len(candidate.Rows))
	var dupKeys []string
	var removedIDs []string
	kept := candidate.Rows[:0]
	for _, row := range candidate.Rows {
		key := row[keyIdx]
		if _, dup := seen[key]; dup {
			dupKeys = append(dupKeys, key)
			if idIdx >= 0 {
				removedIDs = append(removedIDs, row[idIdx])
			}
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	candidate.Rows = kept

	if len(dupKeys) == 0 {
		zap.S().Debugw("no duplicates found",
			"table", candidate.Name,
			"key_column", keyColumn)
		return nil
	}

	zap.S().Warnw("removed duplicate rows, retaining the first entry found",
		"table", candidate.Name,
		"key_column", keyColumn,
		"removed_count", len(dupKeys),
		"duplicate_keys", boundIDs(dupKeys),
		"removed_ids", boundIDs(removedIDs))

	// Remove orphan rows already merged into the accumulator.
	if accumulator != nil && len(removedIDs) > 0 {
		fkIdx := accumulator.ColumnIndex(idColumn)
		if fkIdx >= 0 {
			removed := make(map[string]struct{}, len(removedIDs))
			for _, id := range removedIDs {
				removed[id] = struct{}{}
			}
			dropped := accumulator.FilterRows(func(row []string) bool {
				_, orphan := removed[row[fkIdx]]
				return !orphan
			})
			if dropped > 0 {
				zap.S().Warnw("removed orphan rows from merged data",
					"column", idColumn,
					"removed_count", dropped)
			}
		}
	}
	return removedIDs
}

func boundIDs(ids []string) []string {
	if len(ids) > warnIDListLimit {
		return ids[:warnIDListLimit]
	}
	return ids
}
