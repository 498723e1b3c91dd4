package migration

import (
	"context"
	"io"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/logging"
	"hiring-data-sync/internal/storage"
)

// Source fetches raw migration files from a store. Opening is retried with
// backoff while the store reports recoverable errors.
type Source struct {
	store  storage.Store
	retry  *errors.RetryHandler
	logger *logging.Logger
}

// NewSource creates a source over store. A nil retry handler uses the defaults.
func NewSource(store storage.Store, retry *errors.RetryHandler, logger *logging.Logger) *Source {
	if retry == nil {
		retry = errors.NewDefaultRetryHandler()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Source{store: store, retry: retry, logger: logger}
}

// Open opens the named source file
func (s *Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	attempt := 0
	err := s.retry.Retry(ctx, func() error {
		attempt++
		r, err := s.store.Open(ctx, name)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"source":  s.store.Location(name),
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("Failed to open migration source")
			return err
		}
		rc = r
		return nil
	})
	if err != nil {
		return nil, errors.WrapError(err, "cannot open migration source "+s.store.Location(name)).
			WithContext("source", name)
	}
	return rc, nil
}

// Location describes where name is read from
func (s *Source) Location(name string) string {
	return s.store.Location(name)
}
