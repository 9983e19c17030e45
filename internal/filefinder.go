package internal

import (
	"context"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/databiosphere/tablesmasher"
)

// placeholderName is the zero-byte object pseudofolders are created with;
// it never belongs in a data table.
const placeholderName = "placeholder"

type bucketFile struct {
	base     string
	ext      string
	filename string
	url      string
}

func listBucketFiles(ctx context.Context, blobs tablesmasher.BlobStore, prefix string) ([]bucketFile, error) {
	objects, err := blobs.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var files []bucketFile
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		filename := path.Base(obj.Key)
		if filename == placeholderName {
			continue
		}
		ext := strings.TrimPrefix(path.Ext(filename), ".")
		files = append(files, bucketFile{
			base:     strings.TrimSuffix(filename, path.Ext(filename)),
			ext:      ext,
			filename: filename,
			url:      obj.URL,
		})
	}
	return files, nil
}

// BuildFileTable creates a table from a bucket pseudofolder listing: one
// row per object, keyed by the object's basename, with the full object
// URL in a file_location column.
func BuildFileTable(ctx context.Context, blobs tablesmasher.BlobStore, prefix, tableName string) (*tablesmasher.Table, error) {
	files, err := listBucketFiles(ctx, blobs, prefix)
	if err != nil {
		return nil, err
	}
	table := tablesmasher.NewTable(tableName, []string{
		tablesmasher.EntityIDHeader(tableName),
		"file_location",
	})
	for _, f := range files {
		table.Rows = append(table.Rows, []string{f.filename, f.url})
	}
	zap.S().Infow("built file table from bucket listing",
		"table", tableName,
		"prefix", prefix,
		"rows", table.RowCount())
	return table, nil
}

// BuildPedigreeTable creates a table with one row per "parent" file
// (chosen by extension), linking each child file sharing the parent's
// base name as <ext> and <ext>_location columns. Child extensions are
// discovered from the listing. Files that are neither parents nor
// children of a parent are dropped with a warning.
func BuildPedigreeTable(ctx context.Context, blobs tablesmasher.BlobStore, prefix, tableName, parentExt string) (*tablesmasher.Table, error) {
	if parentExt == "" {
		return nil, tablesmasher.NewInvalidSpecificationError("parent file extension is required")
	}
	files, err := listBucketFiles(ctx, blobs, prefix)
	if err != nil {
		return nil, err
	}

	// Child file names may or may not carry the parent extension
	// ("x.cram.crai" vs "x.crai"); stripping a trailing parent extension
	// normalizes both conventions to the same base id.
	baseID := func(f bucketFile) string {
		return strings.TrimSuffix(f.base, "."+parentExt)
	}

	var childExts []string
	seenExt := map[string]struct{}{parentExt: {}}
	for _, f := range files {
		if _, ok := seenExt[f.ext]; ok {
			continue
		}
		seenExt[f.ext] = struct{}{}
		childExts = append(childExts, f.ext)
	}
	zap.S().Infow("discovered child file types, check the bucket for junk files if this looks wrong",
		"parent_ext", parentExt,
		"child_exts", childExts)

	children := make(map[string]map[string]bucketFile)
	matched := make(map[string]bool)
	for _, f := range files {
		if f.ext == parentExt {
			continue
		}
		id := baseID(f)
		if children[id] == nil {
			children[id] = make(map[string]bucketFile)
		}
		children[id][f.ext] = f
	}

	columns := []string{
		tablesmasher.EntityIDHeader(tableName),
		"filename",
		"location",
		"parent_file_ext",
	}
	for _, ext := range childExts {
		columns = append(columns, ext, ext+"_location")
	}
	table := tablesmasher.NewTable(tableName, columns)

	for _, f := range files {
		if f.ext != parentExt {
			continue
		}
		id := baseID(f)
		row := []string{id, f.filename, f.url, parentExt}
		for _, ext := range childExts {
			child, ok := children[id][ext]
			if !ok {
				zap.S().Warnw("could not find child for parent",
					"parent", f.filename,
					"child_ext", ext)
				row = append(row, "", "")
				continue
			}
			matched[child.filename] = true
			row = append(row, child.filename, child.url)
		}
		table.Rows = append(table.Rows, row)
	}

	dropped := 0
	for _, f := range files {
		if f.ext == parentExt || matched[f.filename] {
			continue
		}
		dropped++
		zap.S().Warnw("file is neither a parent nor the child of a parent, dropping",
			"file", f.filename)
	}

	zap.S().Infow("built pedigree table from bucket listing",
		"table", tableName,
		"prefix", prefix,
		"rows", table.RowCount(),
		"dropped_files", dropped)
	return table, nil
}
