package internal

import (
	"context"

	"go.uber.org/zap"

	"github.com/databiosphere/tablesmasher"
)

// Uploader writes a table to the store in bounded-size chunks, each chunk
// retried independently. A chunk that exhausts its retries aborts the
// upload and leaves the store partially written; earlier chunks are not
// rolled back.
type Uploader struct {
	store     tablesmasher.TableStore
	retry     tablesmasher.RetryPolicy
	chunkSize int
}

// NewUploader builds an uploader. chunkSize values below 1 fall back to
// the default of 500 rows.
func NewUploader(store tablesmasher.TableStore, retry tablesmasher.RetryPolicy, chunkSize int) *Uploader {
	if chunkSize < 1 {
		chunkSize = 500
	}
	return &Uploader{store: store, retry: retry, chunkSize: chunkSize}
}

// Upload writes every row of the table exactly once, in order, and
// returns the number of rows written. On a mid-upload failure the
// returned count covers the chunks already committed.
func (u *Uploader) Upload(ctx context.Context, t *tablesmasher.Table) (int, error) {
	rowCount := t.RowCount()
	zap.S().Infow("starting table upload, this may take several minutes for large tables",
		"rows", rowCount,
		"chunk_size", u.chunkSize)

	written := 0
	for start := 0; start < rowCount; start += u.chunkSize {
		end := start + u.chunkSize
		if end > rowCount {
			end = rowCount
		}
		chunk := tablesmasher.Table{Columns: t.Columns, Rows: t.Rows[start:end]}
		tsv := chunk.TSV()

		err := u.retry.Do(ctx, "upload_chunk", func() error {
			return u.store.UploadTSV(ctx, tsv)
		})
		if err != nil {
			zap.S().Errorw("chunk upload failed, table store left partially written",
				"rows_written", written,
				"failed_chunk_start", start,
				"error", err)
			return written, err
		}
		written = end
		zap.S().Debugw("uploaded chunk", "rows_written", written, "rows_total", rowCount)
	}

	zap.S().Infow("finished table upload", "rows_written", written)
	return written, nil
}
