package tablesmasher

import (
	"context"
)

// TableStore is the narrow interface the engine uses to talk to a
// workspace's entity tables. Implementations signal missing tables with a
// table-not-found error and retryable failures with a transient store
// error; everything else is treated as fatal.
type TableStore interface {
	// ListTables returns every table with its row count and attribute names.
	ListTables(ctx context.Context) (map[string]TableInfo, error)

	// FetchTableTSV downloads a table in the wire TSV format. A non-nil
	// columns slice restricts the attributes returned; the entity id column
	// is always included.
	FetchTableTSV(ctx context.Context, name string, columns []string) (string, error)

	// UploadTSV writes one TSV chunk. Rows keyed by an entity id already
	// present are overwritten, not duplicated.
	UploadTSV(ctx context.Context, tsv string) error

	// DeleteRows removes the named rows from a table.
	DeleteRows(ctx context.Context, table string, ids []string) error
}

// BlobObject is one object in a bucket listing.
type BlobObject struct {
	Key  string
	URL  string
	Size int64
}

// BlobStore is the narrow interface to the workspace bucket.
type BlobStore interface {
	ListObjects(ctx context.Context, prefix string) ([]BlobObject, error)
	PutObject(ctx context.Context, key string, body []byte) error
}

// ConsolidationReport summarizes one completed consolidation run.
type ConsolidationReport struct {
	RunID        string
	TableName    string
	Rows         int
	Columns      int
	RowsUploaded int
	StoreRows    int
	StoreColumns int
}

// Consolidator merges workspace tables per a merge specification and
// writes the result back as a new table.
type Consolidator interface {
	Consolidate(ctx context.Context, spec *MergeSpec, newTableName string) (*ConsolidationReport, error)
	DeleteTable(ctx context.Context, name string) error
}
