package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/databiosphere/tablesmasher"
)

// PgxPool is the subset of pgxpool.Pool the store uses; pgxmock
// implements it for unit tests.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresConfig describes the connection to a Postgres-backed workspace.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	Schema   string

	// UseIAM generates a DSQL DB-connect token instead of Password.
	UseIAM bool
	Region string
}

// PostgresStore is a tablesmasher.TableStore over a Postgres database.
// Each workspace table is a SQL table whose primary key column is
// entity_id; every attribute is a TEXT column. Uploads are row-id-keyed
// upserts, which gives consolidation runs their idempotency.
type PostgresStore struct {
	pool   PgxPool
	schema string
}

// NewPostgresStore connects a pool per the config. When IAM auth is
// enabled the password is a freshly generated DSQL token.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	password := cfg.Password
	if cfg.UseIAM {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, tablesmasher.NewInternalError("loading AWS config for IAM auth failed", err)
		}
		region := cfg.Region
		if region == "" {
			region = awsCfg.Region
		}
		endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, region, awsCfg.Credentials)
		if err != nil {
			zap.S().Warnw("failed to generate IAM auth token, falling back to configured password", "error", err)
		} else if token != "" {
			password = token
			zap.S().Infow("generated IAM auth token for Postgres connection")
		}
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, password, cfg.Database, sslMode)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, tablesmasher.NewTransientStoreError("connecting to Postgres failed", err)
	}
	return NewPostgresStoreWithPool(pool, cfg.Schema), nil
}

// NewPostgresStoreWithPool wraps an existing pool. An empty schema
// defaults to public.
func NewPostgresStoreWithPool(pool PgxPool, schema string) *PostgresStore {
	if schema == "" {
		schema = "public"
	}
	return &PostgresStore{pool: pool, schema: schema}
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) qualified(table string) string {
	return pgx.Identifier{s.schema, table}.Sanitize()
}

// ListTables reads the schema's tables from information_schema and counts
// their rows.
func (s *PostgresStore) ListTables(ctx context.Context) (map[string]tablesmasher.TableInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT table_name, column_name FROM information_schema.columns
		 WHERE table_schema = $1 ORDER BY table_name, ordinal_position`, s.schema)
	if err != nil {
		return nil, tablesmasher.NewTransientStoreError("listing tables failed", err)
	}
	defer rows.Close()

	attrs := make(map[string][]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, tablesmasher.NewInternalError("scanning table listing failed", err)
		}
		if column == "entity_id" {
			if _, ok := attrs[table]; !ok {
				attrs[table] = []string{}
			}
			continue
		}
		attrs[table] = append(attrs[table], column)
	}
	if err := rows.Err(); err != nil {
		return nil, tablesmasher.NewTransientStoreError("iterating table listing failed", err)
	}

	info := make(map[string]tablesmasher.TableInfo, len(attrs))
	for table, columns := range attrs {
		countRows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.qualified(table)))
		if err != nil {
			return nil, tablesmasher.NewTransientStoreError("counting table rows failed", err).WithTable(table)
		}
		var count int
		if countRows.Next() {
			if err := countRows.Scan(&count); err != nil {
				countRows.Close()
				return nil, tablesmasher.NewInternalError("scanning row count failed", err).WithTable(table)
			}
		}
		countRows.Close()
		info[table] = tablesmasher.TableInfo{RowCount: count, AttributeNames: columns}
	}
	return info, nil
}

// FetchTableTSV reads a table into the wire TSV format, ordered by entity
// id for deterministic output.
func (s *PostgresStore) FetchTableTSV(ctx context.Context, name string, columns []string) (string, error) {
	listing, err := s.ListTables(ctx)
	if err != nil {
		return "", err
	}
	info, ok := listing[name]
	if !ok {
		return "", tablesmasher.NewTableNotFoundError(name)
	}

	idHeader := tablesmasher.EntityIDHeader(name)
	headers := append([]string{idHeader}, info.AttributeNames...)
	if len(columns) > 0 {
		headers = restrictHeaders(headers, columns, idHeader)
	}

	selects := make([]string, len(headers))
	for i, h := range headers {
		col := h
		if h == idHeader {
			col = "entity_id"
		}
		selects[i] = pgx.Identifier{col}.Sanitize()
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY entity_id",
		strings.Join(selects, ", "), s.qualified(name))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return "", tablesmasher.NewTransientStoreError("fetching table failed", err).WithTable(name)
	}
	defer rows.Close()

	table := tablesmasher.NewTable(name, headers)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return "", tablesmasher.NewInternalError("reading table row failed", err).WithTable(name)
		}
		cells := make([]string, len(values))
		for i, v := range values {
			if v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		table.Rows = append(table.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return "", tablesmasher.NewTransientStoreError("iterating table rows failed", err).WithTable(name)
	}
	return table.TSV(), nil
}

func restrictHeaders(headers, requested []string, idHeader string) []string {
	want := make(map[string]struct{}, len(requested)+1)
	want[idHeader] = struct{}{}
	for _, c := range requested {
		want[c] = struct{}{}
	}
	out := headers[:0]
	for _, h := range headers {
		if _, ok := want[h]; ok {
			out = append(out, h)
		}
	}
	return out
}

// UploadTSV upserts one TSV chunk. The target table is derived from the
// entity id header; missing tables and attribute columns are created.
func (s *PostgresStore) UploadTSV(ctx context.Context, tsv string) error {
	chunk, err := tablesmasher.ParseTableTSV("", tsv)
	if err != nil {
		return err
	}
	if len(chunk.Columns) == 0 || !strings.HasPrefix(chunk.Columns[0], "entity:") || !strings.HasSuffix(chunk.Columns[0], "_id") {
		return tablesmasher.NewInternalError("uploaded TSV has no entity id header", nil)
	}
	table := strings.TrimSuffix(strings.TrimPrefix(chunk.Columns[0], "entity:"), "_id")
	attrs := chunk.Columns[1:]

	if _, err := s.pool.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (entity_id TEXT PRIMARY KEY)", s.qualified(table))); err != nil {
		return tablesmasher.NewTransientStoreError("creating table failed", err).WithTable(table)
	}
	for _, attr := range attrs {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT",
			s.qualified(table), pgx.Identifier{attr}.Sanitize())); err != nil {
			return tablesmasher.NewTransientStoreError("adding attribute column failed", err).WithTable(table)
		}
	}

	insert := upsertStatement(s.qualified(table), attrs)
	for _, row := range chunk.Rows {
		args := make([]any, len(row))
		for i, cell := range row {
			args[i] = cell
		}
		if _, err := s.pool.Exec(ctx, insert, args...); err != nil {
			return tablesmasher.NewTransientStoreError("upserting row failed", err).WithTable(table)
		}
	}
	zap.S().Debugw("upserted chunk", "table", table, "rows", len(chunk.Rows))
	return nil
}

func upsertStatement(qualifiedTable string, attrs []string) string {
	columns := []string{pgx.Identifier{"entity_id"}.Sanitize()}
	placeholders := []string{"$1"}
	var updates []string
	for i, attr := range attrs {
		ident := pgx.Identifier{attr}.Sanitize()
		columns = append(columns, ident)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", ident, ident))
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (entity_id) DO ",
		qualifiedTable, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if len(updates) == 0 {
		return stmt + "NOTHING"
	}
	return stmt + "UPDATE SET " + strings.Join(updates, ", ")
}

// DeleteRows removes the named rows from a table.
func (s *PostgresStore) DeleteRows(ctx context.Context, table string, ids []string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE entity_id = ANY($1)", s.qualified(table)), ids)
	if err != nil {
		return tablesmasher.NewTransientStoreError("deleting rows failed", err).WithTable(table)
	}
	return nil
}
