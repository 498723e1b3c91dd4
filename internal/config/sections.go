package config

import (
	"fmt"
	"os"

	"hiring-data-sync/internal/migration"
	"hiring-data-sync/internal/schema"
	"hiring-data-sync/internal/snapshot"
	"hiring-data-sync/internal/storage"
)

const (
	DefaultSnapshotDir = "./backups"
	DefaultSourceDir   = "./raw_data"
	// DefaultSourcePrefix is where the source files live in a bucket
	DefaultSourcePrefix = "raw_data/"
)

// SnapshotConfig selects where snapshots are kept and how they are encoded
type SnapshotConfig struct {
	Storage     storage.Config             `mapstructure:"storage" yaml:"storage"`
	Compression snapshot.CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Encryption  snapshot.EncryptionConfig  `mapstructure:"encryption" yaml:"encryption"`
	// ChunkSize is the number of records applied per restore chunk
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`
}

// MigrationConfig selects the source files and the loader tuning
type MigrationConfig struct {
	Source    storage.Config       `mapstructure:"source" yaml:"source"`
	Workers   int                  `mapstructure:"workers" yaml:"workers"`
	BatchSize int                  `mapstructure:"batch_size" yaml:"batch_size"`
	Files     map[string]string    `mapstructure:"files" yaml:"files"`
	CSV       migration.CSVOptions `mapstructure:"csv" yaml:"csv"`
}

// DefaultFiles maps each table to its source file name
func DefaultFiles() map[string]string {
	return map[string]string{
		schema.TableDepartments:    "departments.csv",
		schema.TableJobs:           "jobs.csv",
		schema.TableHiredEmployees: "hired_employees.csv",
	}
}

// Options converts the section into snapshot writer options
func (sc *SnapshotConfig) Options() snapshot.Options {
	opts := snapshot.Options{Compression: sc.Compression}
	if sc.Encryption.Enabled {
		enc := sc.Encryption
		opts.Encryption = &enc
	}
	return opts
}

// SetDefaults sets default values for snapshot configuration
func (sc *SnapshotConfig) SetDefaults() {
	sc.Storage.SetDefaults(DefaultSnapshotDir)
	if sc.Storage.Provider == storage.ProviderS3 && sc.Storage.S3 != nil {
		setS3Defaults(sc.Storage.S3)
	}
	if sc.Compression.Algorithm == "" {
		sc.Compression.Algorithm = snapshot.CompressionGzip
	}
	if sc.Encryption.Enabled && sc.Encryption.KeySource == "" {
		sc.Encryption.KeySource = snapshot.KeySourceEnv
	}
	if sc.ChunkSize == 0 {
		sc.ChunkSize = 1000
	}
}

// Validate validates the snapshot configuration
func (sc *SnapshotConfig) Validate() error {
	if err := sc.Storage.Validate(); err != nil {
		return err
	}
	if err := sc.Compression.Validate(); err != nil {
		return err
	}
	if err := sc.Encryption.Validate(); err != nil {
		return err
	}
	if sc.ChunkSize < 1 || sc.ChunkSize > 1000 {
		return fmt.Errorf("chunk_size must be between 1 and 1000, got %d", sc.ChunkSize)
	}
	return nil
}

// LoadFromEnvironment fills an s3 snapshot store from the AWS variables
func (sc *SnapshotConfig) LoadFromEnvironment() {
	if sc.Storage.Provider != storage.ProviderS3 {
		return
	}
	if sc.Storage.S3 == nil {
		sc.Storage.S3 = &storage.S3Config{}
	}
	applyS3Environment(sc.Storage.S3)
}

// SetDefaults sets default values for migration configuration
func (mc *MigrationConfig) SetDefaults() {
	mc.Source.SetDefaults(DefaultSourceDir)
	if mc.Workers == 0 {
		mc.Workers = 1
	}
	if mc.BatchSize == 0 {
		mc.BatchSize = migration.DefaultBatchSize
	}
	if mc.Files == nil {
		mc.Files = DefaultFiles()
	}
	if mc.Source.Provider == storage.ProviderS3 && mc.Source.S3 != nil {
		setS3Defaults(mc.Source.S3)
		if mc.Source.S3.Prefix == "" {
			mc.Source.S3.Prefix = DefaultSourcePrefix
		}
	}
}

// Validate validates the migration configuration
func (mc *MigrationConfig) Validate() error {
	if err := mc.Source.Validate(); err != nil {
		return err
	}
	if mc.Workers < 1 || mc.Workers > 64 {
		return fmt.Errorf("workers must be between 1 and 64, got %d", mc.Workers)
	}
	if mc.BatchSize < 1 || mc.BatchSize > 1000 {
		return fmt.Errorf("batch_size must be between 1 and 1000, got %d", mc.BatchSize)
	}

	catalog := schema.DefaultCatalog()
	for table := range mc.Files {
		if _, err := catalog.Lookup(table); err != nil {
			return fmt.Errorf("files: %w", err)
		}
	}
	return nil
}

// LoadFromEnvironment points the source at S3_BUCKET_NAME when it is set
// and no other provider was chosen.
func (mc *MigrationConfig) LoadFromEnvironment() {
	bucket := os.Getenv("S3_BUCKET_NAME")
	switch mc.Source.Provider {
	case "":
		if bucket == "" {
			return
		}
		mc.Source.Provider = storage.ProviderS3
	case storage.ProviderS3:
	default:
		return
	}

	if mc.Source.S3 == nil {
		mc.Source.S3 = &storage.S3Config{}
	}
	applyS3Environment(mc.Source.S3)
}

func setS3Defaults(c *storage.S3Config) {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
}

func applyS3Environment(c *storage.S3Config) {
	if val := os.Getenv("S3_BUCKET_NAME"); val != "" && c.Bucket == "" {
		c.Bucket = val
	}
	if val := os.Getenv("S3_REGION"); val != "" {
		c.Region = val
	}
	if val := os.Getenv("AWS_ACCESS_KEY_ID"); val != "" {
		c.AccessKey = val
	}
	if val := os.Getenv("AWS_SECRET_ACCESS_KEY"); val != "" {
		c.SecretKey = val
	}
}
