package storage

import (
	"context"
	"fmt"

	"hiring-data-sync/internal/errors"
)

// NewStore creates the store selected by config.Provider
func NewStore(ctx context.Context, config *Config) (Store, error) {
	if config == nil {
		return nil, errors.NewConfigurationError("storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case ProviderLocal:
		return NewLocalStore(config.Local)
	case ProviderS3:
		return NewS3Store(config.S3)
	case ProviderGCS:
		return NewGCSStore(ctx, config.GCS)
	case ProviderAzure:
		return NewAzureStore(config.Azure)
	case ProviderMinIO:
		return NewMinIOStore(config.MinIO)
	default:
		return nil, errors.NewConfigurationError(fmt.Sprintf("unsupported storage provider %q", config.Provider), nil)
	}
}

// SupportedProviders lists the provider names accepted by NewStore
func SupportedProviders() []ProviderType {
	return []ProviderType{ProviderLocal, ProviderS3, ProviderGCS, ProviderAzure, ProviderMinIO}
}
