package internal

import (
	"context"

	"go.uber.org/zap"

	"github.com/databiosphere/tablesmasher"
)

// Fetcher retrieves one named table from the table store and canonicalizes
// its columns. It always goes to the store; existence checks belong to the
// registry.
type Fetcher struct {
	store tablesmasher.TableStore
	namer *ColumnNamer
	retry tablesmasher.RetryPolicy
}

// NewFetcher builds a fetcher over the store with the given retry policy.
func NewFetcher(store tablesmasher.TableStore, namer *ColumnNamer, retry tablesmasher.RetryPolicy) *Fetcher {
	return &Fetcher{store: store, namer: namer, retry: retry}
}

// Fetch downloads, parses and renames one table. Transient store failures
// are retried per the policy; a missing table is surfaced immediately.
func (f *Fetcher) Fetch(ctx context.Context, name string) (*tablesmasher.Table, error) {
	var tsv string
	err := f.retry.Do(ctx, "fetch_table", func() error {
		var fetchErr error
		tsv, fetchErr = f.store.FetchTableTSV(ctx, name, nil)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	table, err := tablesmasher.ParseTableTSV(name, tsv)
	if err != nil {
		return nil, err
	}
	f.namer.Rename(table)
	zap.S().Debugw("fetched table",
		"table", name,
		"rows", table.RowCount(),
		"columns", table.ColumnCount())
	return table, nil
}

// FetchColumns downloads only the requested attributes of a table, without
// renaming. Used for id-only reads such as table deletion.
func (f *Fetcher) FetchColumns(ctx context.Context, name string, columns []string) (*tablesmasher.Table, error) {
	var tsv string
	err := f.retry.Do(ctx, "fetch_table_columns", func() error {
		var fetchErr error
		tsv, fetchErr = f.store.FetchTableTSV(ctx, name, columns)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return tablesmasher.ParseTableTSV(name, tsv)
}
