package internal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/databiosphere/tablesmasher"
)

// Engine drives a consolidation run: plan the merge, execute the join
// steps in order, insert the final entity id column, upload the result
// in chunks and verify the store-side size. It implements
// tablesmasher.Consolidator.
//
// The engine is single-threaded by design: each step's accumulator
// depends on the exact state left by all earlier steps. There is no
// resume point; a failed run is restarted from the first step, which is
// safe because uploads are row-id-keyed upserts.
type Engine struct {
	cfg      tablesmasher.Config
	store    tablesmasher.TableStore
	blobs    tablesmasher.BlobStore
	fetcher  *Fetcher
	registry *Registry
	uploader *Uploader
	retry    tablesmasher.RetryPolicy
}

// NewEngine wires an engine over the given stores. blobs may be nil when
// snapshot copies are disabled.
func NewEngine(cfg tablesmasher.Config, store tablesmasher.TableStore, blobs tablesmasher.BlobStore) *Engine {
	retry := tablesmasher.NewRetryPolicy(cfg.Retry)
	namer := NewColumnNamer(cfg.EntityTypes)
	return &Engine{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		fetcher:  NewFetcher(store, namer, retry),
		registry: NewRegistry(store, retry),
		uploader: NewUploader(store, retry, cfg.Upload.ChunkSize),
		retry:    retry,
	}
}

// Registry exposes the engine's table registry for callers that need
// listings or explicit refreshes.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Consolidate merges the tables named by the specification into a single
// flattened table and uploads it under newTableName.
func (e *Engine) Consolidate(ctx context.Context, spec *tablesmasher.MergeSpec, newTableName string) (*tablesmasher.ConsolidationReport, error) {
	runID := uuid.NewString()
	log := zap.S().With("run_id", runID, "new_table", newTableName)

	steps, err := PlanMerge(spec)
	if err != nil {
		return nil, err
	}

	if info, p, err := e.registry.TableInfo(ctx, newTableName, false); err != nil {
		return nil, err
	} else if p == PresenceExists {
		log.Infow("a table with this name already exists; matching rows will be updated and other data left unchanged",
			"existing_rows", info.RowCount,
			"existing_columns", info.ColumnCount())
	}

	merged, err := e.merge(ctx, steps, log)
	if err != nil {
		return nil, err
	}

	indexValues, ok := merged.ColumnValues(spec.FinalIndexSourceColumn)
	if !ok {
		return nil, tablesmasher.NewInvalidSpecificationError(
			fmt.Sprintf("final_index_source_column %q is not present in the merged table", spec.FinalIndexSourceColumn))
	}
	if err := merged.InsertColumn(0, tablesmasher.EntityIDHeader(newTableName), indexValues); err != nil {
		return nil, err
	}
	merged.Name = newTableName

	memRows, memCols := merged.RowCount(), merged.ColumnCount()
	log.Infow("consolidated table built in memory", "rows", memRows, "columns", memCols)

	written, err := e.uploader.Upload(ctx, merged)
	if err != nil {
		return nil, err
	}

	report := &tablesmasher.ConsolidationReport{
		RunID:        runID,
		TableName:    newTableName,
		Rows:         memRows,
		Columns:      memCols,
		RowsUploaded: written,
	}

	info, p, err := e.registry.TableInfo(ctx, newTableName, true)
	if err != nil {
		return nil, err
	}
	if p != PresenceExists {
		return nil, tablesmasher.NewTruncationError(newTableName, memRows, memCols, 0, 0)
	}
	report.StoreRows = info.RowCount
	report.StoreColumns = info.ColumnCount()
	switch {
	case memRows == info.RowCount && memCols == info.ColumnCount():
		log.Infow("consolidated table uploaded",
			"rows", info.RowCount,
			"columns", info.ColumnCount())
	case memRows > info.RowCount || memCols > info.ColumnCount():
		return nil, tablesmasher.NewTruncationError(newTableName, memRows, memCols, info.RowCount, info.ColumnCount())
	default:
		log.Warnw("uploaded table is larger than the in-memory table, likely pre-existing rows or columns",
			"memory_rows", memRows,
			"memory_columns", memCols,
			"store_rows", info.RowCount,
			"store_columns", info.ColumnCount())
	}

	if e.cfg.Upload.SnapshotToBucket && e.blobs != nil {
		key := e.cfg.Upload.SnapshotPrefix + newTableName + ".tsv"
		if err := e.blobs.PutObject(ctx, key, []byte(merged.TSV())); err != nil {
			return nil, err
		}
		log.Infow("wrote consolidated table snapshot to bucket", "key", key)
	}
	return report, nil
}

// merge executes the resolved steps in listed order, carrying the
// accumulator between them.
func (e *Engine) merge(ctx context.Context, steps []ResolvedStep, log *zap.SugaredLogger) (*tablesmasher.Table, error) {
	var acc *tablesmasher.Table
	for i, step := range steps {
		var err error
		acc, err = e.runStep(ctx, acc, step, log)
		if err != nil {
			return nil, err
		}
		log.Debugw("completed merge step",
			"step", i,
			"rows", acc.RowCount(),
			"columns", acc.ColumnCount())
	}
	return acc, nil
}

// runStep joins every table the step names into the accumulator. A table
// absent from the workspace is skipped, not an error: users may have
// imported only a subset of the full graph.
func (e *Engine) runStep(ctx context.Context, acc *tablesmasher.Table, step ResolvedStep, log *zap.SugaredLogger) (*tablesmasher.Table, error) {
	names := step.TableNames
	if acc == nil {
		seed := names[0]
		names = names[1:]
		table, err := e.fetcher.Fetch(ctx, seed)
		if err != nil {
			return nil, err
		}
		if key, ok := e.dedupKey(seed); ok {
			Deduplicate(nil, table, key)
		}
		acc = table
	}

	for _, name := range names {
		exists, err := e.registry.Exists(ctx, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			log.Infow("table not found in this workspace, skipping", "table", name)
			continue
		}

		table, err := e.fetcher.Fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		if key, ok := e.dedupKey(name); ok {
			Deduplicate(acc, table, key)
		}

		before := acc.RowCount()
		log.Debugw("merging table",
			"table", name,
			"join_type", step.How,
			"left_key", step.LeftKey,
			"right_key", step.RightKey)
		acc, err = Join(acc, table, step.How, step.LeftKey, step.RightKey)
		if err != nil {
			return nil, err
		}

		if acc.RowCount() > before {
			delta := acc.RowCount() - before
			log.Warnw("row count increased unexpectedly, potentially meaning some empty cells",
				"table", name,
				"anticipated_empty_cells", delta)
		}
		log.Infow("merged table",
			"table", name,
			"join_type", step.How,
			"rows", acc.RowCount(),
			"columns", acc.ColumnCount())
	}
	return acc, nil
}

func (e *Engine) dedupKey(table string) (string, bool) {
	entity, ok := e.cfg.Dedup.Tables[table]
	if !ok {
		return "", false
	}
	return tablesmasher.EntityIDColumn(entity), true
}

// DeleteTable removes every row of a table, in bounded id chunks so one
// oversized delete call cannot time out the whole operation.
func (e *Engine) DeleteTable(ctx context.Context, name string) error {
	_, p, err := e.registry.TableInfo(ctx, name, true)
	if err != nil {
		return err
	}
	if p != PresenceExists {
		return tablesmasher.NewTableNotFoundError(name)
	}

	idHeader := tablesmasher.EntityIDHeader(name)
	table, err := e.fetcher.FetchColumns(ctx, name, []string{idHeader})
	if err != nil {
		return err
	}
	ids, ok := table.ColumnValues(idHeader)
	if !ok {
		return tablesmasher.NewInternalError("entity id column missing from fetched table", nil).WithTable(name)
	}

	zap.S().Infow("starting table deletion, this may take several minutes for large tables",
		"table", name,
		"rows", len(ids))
	chunkSize := e.cfg.Upload.DeleteChunkSize
	if chunkSize < 1 {
		chunkSize = 100
	}
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		err := e.retry.Do(ctx, "delete_rows", func() error {
			return e.store.DeleteRows(ctx, name, chunk)
		})
		if err != nil {
			return err
		}
	}
	zap.S().Infow("finished table deletion", "table", name)
	return nil
}
