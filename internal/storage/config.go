package storage

import (
	"fmt"
	"os"

	"hiring-data-sync/internal/errors"
)

// Config selects and configures a storage provider
type Config struct {
	Provider ProviderType `yaml:"provider" mapstructure:"provider"`
	Local    *LocalConfig `yaml:"local,omitempty" mapstructure:"local"`
	S3       *S3Config    `yaml:"s3,omitempty" mapstructure:"s3"`
	GCS      *GCSConfig   `yaml:"gcs,omitempty" mapstructure:"gcs"`
	Azure    *AzureConfig `yaml:"azure,omitempty" mapstructure:"azure"`
	MinIO    *MinIOConfig `yaml:"minio,omitempty" mapstructure:"minio"`
}

// LocalConfig for local file system storage
type LocalConfig struct {
	BasePath    string      `yaml:"base_path" mapstructure:"base_path"`
	Permissions os.FileMode `yaml:"permissions" mapstructure:"permissions"`
}

// S3Config for Amazon S3 storage
type S3Config struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	CredentialsPath string `yaml:"credentials_path" mapstructure:"credentials_path"`
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `yaml:"account_name" mapstructure:"account_name"`
	AccountKey    string `yaml:"account_key" mapstructure:"account_key"`
	ContainerName string `yaml:"container_name" mapstructure:"container_name"`
	Prefix        string `yaml:"prefix" mapstructure:"prefix"`
}

// MinIOConfig for MinIO or any S3-compatible endpoint
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Region    string `yaml:"region" mapstructure:"region"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// SetDefaults fills in a local provider rooted at basePath when nothing is configured
func (c *Config) SetDefaults(basePath string) {
	if c.Provider == "" {
		c.Provider = ProviderLocal
	}
	if c.Provider == ProviderLocal {
		if c.Local == nil {
			c.Local = &LocalConfig{}
		}
		if c.Local.BasePath == "" {
			c.Local.BasePath = basePath
		}
		if c.Local.Permissions == 0 {
			c.Local.Permissions = 0750
		}
	}
}

// Validate checks that the selected provider has its section filled in
func (c *Config) Validate() error {
	var err error
	switch c.Provider {
	case ProviderLocal:
		err = c.Local.Validate()
	case ProviderS3:
		err = c.S3.Validate()
	case ProviderGCS:
		err = c.GCS.Validate()
	case ProviderAzure:
		err = c.Azure.Validate()
	case ProviderMinIO:
		err = c.MinIO.Validate()
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unsupported storage provider %q", c.Provider), nil)
	}
	if err != nil {
		return errors.NewConfigurationError(fmt.Sprintf("invalid %s storage configuration", c.Provider), err)
	}
	return nil
}

// Validate validates local storage configuration
func (c *LocalConfig) Validate() error {
	if c == nil || c.BasePath == "" {
		return fmt.Errorf("base_path is required")
	}
	return nil
}

// Validate validates S3 storage configuration
func (c *S3Config) Validate() error {
	if c == nil || c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	return nil
}

// Validate validates GCS storage configuration
func (c *GCSConfig) Validate() error {
	if c == nil || c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	return nil
}

// Validate validates Azure storage configuration
func (c *AzureConfig) Validate() error {
	if c == nil || c.AccountName == "" {
		return fmt.Errorf("account_name is required")
	}
	if c.AccountKey == "" {
		return fmt.Errorf("account_key is required")
	}
	if c.ContainerName == "" {
		return fmt.Errorf("container_name is required")
	}
	return nil
}

// Validate validates MinIO storage configuration
func (c *MinIOConfig) Validate() error {
	if c == nil || c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	return nil
}
