package internal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/databiosphere/tablesmasher"
)

// startTestPostgres provisions a throwaway Postgres container. Set
// TABLESMASHER_INTEGRATION=1 to run these tests; they need a Docker daemon.
func startTestPostgres(t *testing.T, ctx context.Context) *PostgresStore {
	t.Helper()

	if os.Getenv("TABLESMASHER_INTEGRATION") == "" {
		t.Skip("TABLESMASHER_INTEGRATION not set; skipping integration test")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "tablesmasher",
				"POSTGRES_PASSWORD": "tablesmasher",
				"POSTGRES_DB":       "workspace",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(cleanupCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	store, err := NewPostgresStore(ctx, PostgresConfig{
		Host:     host,
		Port:     port.Int(),
		Database: "workspace",
		User:     "tablesmasher",
		Password: "tablesmasher",
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestIntegration_PostgresStoreRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)
	store := startTestPostgres(t, ctx)

	require.NoError(t, store.UploadTSV(ctx,
		"entity:subject_id\tsubmitter_id\ns1\tsub-1\ns2\tsub-2\n"))
	require.NoError(t, store.UploadTSV(ctx,
		"entity:sample_id\tsubject\nsm1\ts1\n"))

	info, err := store.ListTables(ctx)
	require.NoError(t, err)
	require.Contains(t, info, "subject")
	assert.Equal(t, 2, info["subject"].RowCount)
	assert.Equal(t, []string{"submitter_id"}, info["subject"].AttributeNames)

	tsv, err := store.FetchTableTSV(ctx, "subject", nil)
	require.NoError(t, err)
	table, err := tablesmasher.ParseTableTSV("subject", tsv)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"s1", "sub-1"}, {"s2", "sub-2"}}, table.Rows)

	// Re-uploading the same rows is an upsert, not an append.
	require.NoError(t, store.UploadTSV(ctx,
		"entity:subject_id\tsubmitter_id\ns1\tsub-1-renamed\n"))
	info, err = store.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info["subject"].RowCount)

	require.NoError(t, store.DeleteRows(ctx, "subject", []string{"s1"}))
	info, err = store.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info["subject"].RowCount)
}

func TestIntegration_ConsolidationAgainstPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)
	store := startTestPostgres(t, ctx)

	require.NoError(t, store.UploadTSV(ctx,
		"entity:subject_id\tsubmitter_id\ns1\tsub-1\ns2\tsub-2\n"))
	require.NoError(t, store.UploadTSV(ctx,
		"entity:sample_id\tsubject\nsm1\ts1\nsm2\ts2\n"))

	cfg := tablesmasher.DefaultConfig()
	engine := NewEngine(cfg, store, nil)

	spec := &tablesmasher.MergeSpec{
		DefaultJoinType: tablesmasher.JoinOuter,
		MergeSequence: []tablesmasher.JoinStep{
			{JoinColumn: "subject", TableNames: []string{"subject", "sample"}},
		},
		FinalIndexSourceColumn: "subject_submitter_id",
	}
	report, err := engine.Consolidate(ctx, spec, "consolidated")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, 2, report.StoreRows)

	tsv, err := store.FetchTableTSV(ctx, "consolidated", nil)
	require.NoError(t, err)
	table, err := tablesmasher.ParseTableTSV("consolidated", tsv)
	require.NoError(t, err)
	assert.Equal(t, 2, table.RowCount())
	ids, ok := table.ColumnValues("entity:consolidated_id")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"sub-1", "sub-2"}, ids)
}
