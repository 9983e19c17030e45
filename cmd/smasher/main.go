package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/databiosphere/tablesmasher"
	"github.com/databiosphere/tablesmasher/factory"
	"github.com/databiosphere/tablesmasher/internal"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	switch os.Args[1] {
	case "consolidate":
		if err := runConsolidate(ctx, os.Args[2:]); err != nil {
			sugar.Fatalf("consolidate: %v", err)
		}
	case "file-finder":
		if err := runFileFinder(ctx, os.Args[2:]); err != nil {
			sugar.Fatalf("file-finder: %v", err)
		}
	case "paternity":
		if err := runPaternity(ctx, os.Args[2:]); err != nil {
			sugar.Fatalf("paternity: %v", err)
		}
	case "list":
		if err := runList(ctx); err != nil {
			sugar.Fatalf("list: %v", err)
		}
	case "delete":
		if err := runDelete(ctx, os.Args[2:]); err != nil {
			sugar.Fatalf("delete: %v", err)
		}
	default:
		sugar.Errorf("unknown command %q", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: smasher <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  consolidate   Merge workspace tables per a merge specification into one table")
	logger.Info("  file-finder   Build a table from a bucket pseudofolder listing, one row per file")
	logger.Info("  paternity     Build a table linking parent files to their children")
	logger.Info("  list          List the workspace's tables with their sizes")
	logger.Info("  delete        Delete a workspace table")
	logger.Info("")
	logger.Info("Environment:")
	logger.Info("  WORKSPACE_NAMESPACE, WORKSPACE_NAME, FIRECLOUD_API_URL, FIRECLOUD_TOKEN, WORKSPACE_BUCKET")
}

func configFromEnv() tablesmasher.Config {
	cfg := tablesmasher.DefaultConfig()
	cfg.Workspace.Namespace = os.Getenv("WORKSPACE_NAMESPACE")
	cfg.Workspace.Name = os.Getenv("WORKSPACE_NAME")
	cfg.Workspace.APIBase = getEnv("FIRECLOUD_API_URL", "https://api.firecloud.org")
	cfg.Workspace.Bucket = os.Getenv("WORKSPACE_BUCKET")
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newConsolidator(ctx context.Context, cfg tablesmasher.Config) (tablesmasher.Consolidator, error) {
	return factory.NewConsolidator(ctx, cfg, os.Getenv("FIRECLOUD_TOKEN"))
}

func newTableStore(cfg tablesmasher.Config) tablesmasher.TableStore {
	return internal.NewFireCloudStore(
		cfg.Workspace.APIBase,
		cfg.Workspace.Namespace,
		cfg.Workspace.Name,
		os.Getenv("FIRECLOUD_TOKEN"),
		cfg.Workspace.HTTPTimeout,
		nil,
	)
}

func runConsolidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("consolidate", flag.ExitOnError)
	specPath := fs.String("spec", "", "path to the merge specification JSON document")
	tableName := fs.String("table", "", "name of the consolidated table to create")
	snapshot := fs.Bool("snapshot", false, "also write the merged TSV to the workspace bucket")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *specPath == "" || *tableName == "" {
		return fmt.Errorf("-spec and -table are required")
	}

	data, err := os.ReadFile(*specPath)
	if err != nil {
		return err
	}
	spec, err := tablesmasher.ParseMergeSpec(data)
	if err != nil {
		return err
	}

	cfg := configFromEnv()
	cfg.Upload.SnapshotToBucket = *snapshot
	c, err := newConsolidator(ctx, cfg)
	if err != nil {
		return err
	}
	report, err := c.Consolidate(ctx, spec, *tableName)
	if err != nil {
		return err
	}
	zap.S().Infow("consolidation complete",
		"run_id", report.RunID,
		"table", report.TableName,
		"rows", report.Rows,
		"columns", report.Columns,
		"rows_uploaded", report.RowsUploaded)
	return nil
}

func runFileFinder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("file-finder", flag.ExitOnError)
	prefix := fs.String("prefix", "", "bucket pseudofolder prefix to list")
	tableName := fs.String("table", "", "name of the table to create")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tableName == "" {
		return fmt.Errorf("-table is required")
	}

	cfg := configFromEnv()
	blobs, err := internal.NewS3BlobStore(ctx, internal.S3Config{Bucket: cfg.Workspace.Bucket})
	if err != nil {
		return err
	}
	table, err := internal.BuildFileTable(ctx, blobs, *prefix, *tableName)
	if err != nil {
		return err
	}
	return uploadTable(ctx, cfg, table)
}

func runPaternity(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("paternity", flag.ExitOnError)
	prefix := fs.String("prefix", "", "bucket pseudofolder prefix to list")
	tableName := fs.String("table", "", "name of the table to create")
	parentExt := fs.String("parent-ext", "", "file extension identifying parent files, e.g. cram")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tableName == "" || *parentExt == "" {
		return fmt.Errorf("-table and -parent-ext are required")
	}

	cfg := configFromEnv()
	blobs, err := internal.NewS3BlobStore(ctx, internal.S3Config{Bucket: cfg.Workspace.Bucket})
	if err != nil {
		return err
	}
	table, err := internal.BuildPedigreeTable(ctx, blobs, *prefix, *tableName, *parentExt)
	if err != nil {
		return err
	}
	return uploadTable(ctx, cfg, table)
}

func uploadTable(ctx context.Context, cfg tablesmasher.Config, table *tablesmasher.Table) error {
	store := newTableStore(cfg)
	uploader := internal.NewUploader(store, tablesmasher.NewRetryPolicy(cfg.Retry), cfg.Upload.ChunkSize)
	written, err := uploader.Upload(ctx, table)
	if err != nil {
		return err
	}
	zap.S().Infow("table uploaded", "table", table.Name, "rows", written)
	return nil
}

func runList(ctx context.Context) error {
	cfg := configFromEnv()
	info, err := newTableStore(cfg).ListTables(ctx)
	if err != nil {
		return err
	}
	for name, i := range info {
		zap.S().Infow("table", "name", name, "rows", i.RowCount, "columns", i.ColumnCount())
	}
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	tableName := fs.String("table", "", "name of the table to delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tableName == "" {
		return fmt.Errorf("-table is required")
	}

	cfg := configFromEnv()
	c, err := newConsolidator(ctx, cfg)
	if err != nil {
		return err
	}
	return c.DeleteTable(ctx, *tableName)
}
