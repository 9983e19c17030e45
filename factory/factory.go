// Package factory wires the consolidation engine to concrete stores.
package factory

import (
	"context"
	"fmt"

	"github.com/databiosphere/tablesmasher"
	"github.com/databiosphere/tablesmasher/internal"
)

// NewConsolidator creates a Consolidator over the FireCloud workspace API
// named by the config, with an optional S3 blob store for TSV snapshots.
//
// Usage:
//
//	config := tablesmasher.DefaultConfig()
//	config.Workspace.Namespace = "my-billing-project"
//	config.Workspace.Name = "my-workspace"
//	config.Workspace.APIBase = "https://api.firecloud.org"
//	c, err := factory.NewConsolidator(context.Background(), config, token)
func NewConsolidator(ctx context.Context, config tablesmasher.Config, token string) (tablesmasher.Consolidator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Workspace.Namespace == "" || config.Workspace.Name == "" {
		return nil, fmt.Errorf("workspace namespace and name are required")
	}
	if config.Workspace.APIBase == "" {
		return nil, fmt.Errorf("workspace API base URL is required")
	}

	store := internal.NewFireCloudStore(
		config.Workspace.APIBase,
		config.Workspace.Namespace,
		config.Workspace.Name,
		token,
		config.Workspace.HTTPTimeout,
		nil,
	)

	var blobs tablesmasher.BlobStore
	if config.Upload.SnapshotToBucket {
		s3Store, err := internal.NewS3BlobStore(ctx, internal.S3Config{Bucket: config.Workspace.Bucket})
		if err != nil {
			return nil, err
		}
		blobs = s3Store
	}
	return internal.NewEngine(config, store, blobs), nil
}

// NewConsolidatorWithStores creates a Consolidator over caller-supplied
// stores. This is how tests and Postgres-backed workspaces wire the engine.
func NewConsolidatorWithStores(config tablesmasher.Config, store tablesmasher.TableStore, blobs tablesmasher.BlobStore) (tablesmasher.Consolidator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return internal.NewEngine(config, store, blobs), nil
}

// NewPostgresConsolidator creates a Consolidator over a Postgres-backed
// workspace, for local or offline use.
func NewPostgresConsolidator(ctx context.Context, config tablesmasher.Config, pg internal.PostgresConfig) (tablesmasher.Consolidator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	store, err := internal.NewPostgresStore(ctx, pg)
	if err != nil {
		return nil, err
	}
	return internal.NewEngine(config, store, nil), nil
}
