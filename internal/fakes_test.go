package internal

import (
	"context"
	"strings"
	"sync"

	"github.com/databiosphere/tablesmasher"
)

// fakeTableStore is an in-memory TableStore. Tables are held in wire
// format (entity id header first). Uploads apply row-id-keyed upserts so
// post-upload size checks behave like the real store.
type fakeTableStore struct {
	mu     sync.Mutex
	tables map[string]*tablesmasher.Table

	uploads        []string
	uploadFailures int
	fetchFailures  map[string]int
	deletes        map[string][][]string
	listCalls      int
}

func newFakeTableStore() *fakeTableStore {
	return &fakeTableStore{
		tables:        make(map[string]*tablesmasher.Table),
		fetchFailures: make(map[string]int),
		deletes:       make(map[string][][]string),
	}
}

func (f *fakeTableStore) putTable(name string, columns []string, rows [][]string) {
	t := tablesmasher.NewTable(name, columns)
	for _, row := range rows {
		t.Rows = append(t.Rows, append([]string(nil), row...))
	}
	f.mu.Lock()
	f.tables[name] = t
	f.mu.Unlock()
}

func (f *fakeTableStore) ListTables(ctx context.Context) (map[string]tablesmasher.TableInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	info := make(map[string]tablesmasher.TableInfo, len(f.tables))
	for name, t := range f.tables {
		info[name] = tablesmasher.TableInfo{
			RowCount:       t.RowCount(),
			AttributeNames: append([]string(nil), t.Columns[1:]...),
		}
	}
	return info, nil
}

func (f *fakeTableStore) FetchTableTSV(ctx context.Context, name string, columns []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.fetchFailures[name]; n > 0 {
		f.fetchFailures[name] = n - 1
		return "", tablesmasher.NewTransientStoreError("injected fetch failure", nil).WithTable(name)
	}
	t, ok := f.tables[name]
	if !ok {
		return "", tablesmasher.NewTableNotFoundError(name)
	}
	if len(columns) == 0 {
		return t.TSV(), nil
	}
	want := map[string]struct{}{t.Columns[0]: {}}
	for _, c := range columns {
		want[c] = struct{}{}
	}
	restricted := tablesmasher.NewTable(name, nil)
	var keep []int
	for i, c := range t.Columns {
		if _, ok := want[c]; ok {
			restricted.Columns = append(restricted.Columns, c)
			keep = append(keep, i)
		}
	}
	for _, row := range t.Rows {
		cells := make([]string, len(keep))
		for out, in := range keep {
			cells[out] = row[in]
		}
		restricted.Rows = append(restricted.Rows, cells)
	}
	return restricted.TSV(), nil
}

func (f *fakeTableStore) UploadTSV(ctx context.Context, tsv string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadFailures > 0 {
		f.uploadFailures--
		return tablesmasher.NewTransientStoreError("injected upload failure", nil)
	}
	f.uploads = append(f.uploads, tsv)

	chunk, err := tablesmasher.ParseTableTSV("", tsv)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(strings.TrimPrefix(chunk.Columns[0], "entity:"), "_id")
	existing, ok := f.tables[name]
	if !ok {
		existing = tablesmasher.NewTable(name, chunk.Columns)
		f.tables[name] = existing
	}
	idx := make(map[string]int, len(existing.Rows))
	for i, row := range existing.Rows {
		idx[row[0]] = i
	}
	for _, row := range chunk.Rows {
		if i, ok := idx[row[0]]; ok {
			existing.Rows[i] = row
		} else {
			existing.Rows = append(existing.Rows, row)
		}
	}
	return nil
}

func (f *fakeTableStore) DeleteRows(ctx context.Context, table string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes[table] = append(f.deletes[table], append([]string(nil), ids...))
	t, ok := f.tables[table]
	if !ok {
		return tablesmasher.NewTableNotFoundError(table)
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	t.FilterRows(func(row []string) bool {
		_, gone := drop[row[0]]
		return !gone
	})
	if t.RowCount() == 0 {
		delete(f.tables, table)
	}
	return nil
}

// fakeBlobStore is an in-memory BlobStore.
type fakeBlobStore struct {
	objects []tablesmasher.BlobObject
	puts    map[string][]byte
}

func newFakeBlobStore(keys ...string) *fakeBlobStore {
	b := &fakeBlobStore{puts: make(map[string][]byte)}
	for _, key := range keys {
		b.objects = append(b.objects, tablesmasher.BlobObject{
			Key: key,
			URL: "gs://test-bucket/" + key,
		})
	}
	return b
}

func (b *fakeBlobStore) ListObjects(ctx context.Context, prefix string) ([]tablesmasher.BlobObject, error) {
	var out []tablesmasher.BlobObject
	for _, obj := range b.objects {
		if strings.HasPrefix(obj.Key, prefix) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (b *fakeBlobStore) PutObject(ctx context.Context, key string, body []byte) error {
	b.puts[key] = append([]byte(nil), body...)
	return nil
}

// testConfig returns a config with retries that do not sleep.
func testConfig() tablesmasher.Config {
	cfg := tablesmasher.DefaultConfig()
	cfg.Retry.InitialInterval = 1
	cfg.Retry.MaxInterval = 1
	return cfg
}
