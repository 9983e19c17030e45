package tablesmasher

import (
	"fmt"
	"time"
)

// Config holds all settings for a consolidation run.
type Config struct {
	Workspace   WorkspaceConfig `json:"workspace"`
	Retry       RetryConfig     `json:"retry"`
	Upload      UploadConfig    `json:"upload"`
	Dedup       DedupConfig     `json:"dedup"`
	EntityTypes []string        `json:"entityTypes"`
	Logging     LoggingConfig   `json:"logging"`
}

// WorkspaceConfig identifies the target workspace and its stores.
type WorkspaceConfig struct {
	Namespace   string        `json:"namespace"`
	Name        string        `json:"name"`
	APIBase     string        `json:"apiBase"`
	Bucket      string        `json:"bucket"`
	HTTPTimeout time.Duration `json:"httpTimeout"`
}

// RetryConfig controls retry of transient store failures.
type RetryConfig struct {
	MaxAttempts     int           `json:"maxAttempts"`
	InitialInterval time.Duration `json:"initialInterval"`
	MaxInterval     time.Duration `json:"maxInterval"`
}

// UploadConfig controls the chunked upload and the optional TSV snapshot.
type UploadConfig struct {
	ChunkSize        int    `json:"chunkSize"`
	DeleteChunkSize  int    `json:"deleteChunkSize"`
	SnapshotToBucket bool   `json:"snapshotToBucket"`
	SnapshotPrefix   string `json:"snapshotPrefix"`
}

// DedupConfig names the tables that must be collapsed to one row per key
// before merging. Keys are table names, values the entity type whose id
// column is the dedup key.
type DedupConfig struct {
	Tables map[string]string `json:"tables"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultEntityTypes is the set of table names in the Gen3 graph data
// model. Columns whose raw name matches one of these are treated as
// foreign-key entity id columns during renaming.
func DefaultEntityTypes() []string {
	return []string{
		"aligned_reads_index",
		"aliquot",
		"blood_pressure_test",
		"cardiac_mri",
		"demographic",
		"electrocardiogram_test",
		"exposure",
		"germline_variation_index",
		"lab_result",
		"medical_history",
		"medication",
		"program",
		"project",
		"read_group",
		"read_group_qc",
		"reference_file",
		"reference_file_index",
		"sample",
		"simple_germline_variation",
		"study",
		"subject",
		"submitted_aligned_reads",
		"submitted_cnv_array",
		"submitted_snp_array",
		"submitted_unaligned_reads",
	}
}

// DefaultConfig returns the configuration used unless overridden.
func DefaultConfig() Config {
	return Config{
		Workspace: WorkspaceConfig{
			HTTPTimeout: 60 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 2 * time.Second,
			MaxInterval:     10 * time.Second,
		},
		Upload: UploadConfig{
			ChunkSize:       500,
			DeleteChunkSize: 100,
			SnapshotPrefix:  "consolidated/",
		},
		Dedup: DedupConfig{
			Tables: map[string]string{"sample": "subject"},
		},
		EntityTypes: DefaultEntityTypes(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config field %q: %s", e.Field, e.Message)
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return &ConfigError{Field: "retry.maxAttempts", Message: "must be at least 1"}
	}
	if c.Retry.InitialInterval <= 0 {
		return &ConfigError{Field: "retry.initialInterval", Message: "must be positive"}
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		return &ConfigError{Field: "retry.maxInterval", Message: "must be at least the initial interval"}
	}
	if c.Upload.ChunkSize < 1 {
		return &ConfigError{Field: "upload.chunkSize", Message: "must be at least 1"}
	}
	if c.Upload.DeleteChunkSize < 1 {
		return &ConfigError{Field: "upload.deleteChunkSize", Message: "must be at least 1"}
	}
	if c.Upload.SnapshotToBucket && c.Workspace.Bucket == "" {
		return &ConfigError{Field: "workspace.bucket", Message: "required when snapshotToBucket is enabled"}
	}
	for table, entity := range c.Dedup.Tables {
		if table == "" || entity == "" {
			return &ConfigError{Field: "dedup.tables", Message: "table and entity names must be non-empty"}
		}
	}
	return nil
}
