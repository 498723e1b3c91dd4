package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeValidation represents bad input shape, type or in-batch duplicate keys
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeBatchSize represents a batch outside the accepted size bound
	ErrorTypeBatchSize ErrorType = "batch_size"
	// ErrorTypeConstraint represents a store-level conflict such as a duplicate or missing reference
	ErrorTypeConstraint ErrorType = "constraint"
	// ErrorTypeSchemaDrift represents a snapshot or live schema that differs from the expected one
	ErrorTypeSchemaDrift ErrorType = "schema_drift"
	// ErrorTypeSerialization represents a value that cannot be encoded or decoded
	ErrorTypeSerialization ErrorType = "serialization"
	// ErrorTypeStorageRead represents a failed read from the relational store
	ErrorTypeStorageRead ErrorType = "storage_read"
	// ErrorTypeStorage represents snapshot or source file storage failures
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeCancellation represents an operation stopped at a safe boundary
	ErrorTypeCancellation ErrorType = "cancellation"
	// ErrorTypeConnection represents database or network connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeSchema represents unknown tables or columns reported by the store
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeSQL represents other SQL execution errors
	ErrorTypeSQL ErrorType = "sql"
	// ErrorTypePermission represents permission/access errors
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConfiguration represents invalid configuration
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// AppError represents an application-specific error with context
type AppError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsRecoverable returns whether the error is recoverable
func (e *AppError) IsRecoverable() bool {
	return e.Recoverable
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewRecoverableError creates a new recoverable error
func NewRecoverableError(errorType ErrorType, message string, cause error) *AppError {
	e := NewAppError(errorType, message, cause)
	e.Recoverable = true
	return e
}

// Common constructors

func NewBatchSizeError(size, min, max int) *AppError {
	return NewRecoverableError(ErrorTypeBatchSize,
		fmt.Sprintf("batch size %d outside allowed range %d..%d", size, min, max), nil).
		WithContext("size", size)
}

func NewConstraintError(message string, cause error) *AppError {
	return NewRecoverableError(ErrorTypeConstraint, message, cause)
}

func NewSchemaDriftError(message string, columns []string) *AppError {
	return NewAppError(ErrorTypeSchemaDrift, message, nil).WithContext("columns", columns)
}

func NewSerializationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeSerialization, message, cause)
}

func NewStorageReadError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeStorageRead, message, cause)
}

func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeStorage, message, cause)
}

func NewCancellationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeCancellation, message, cause)
}

func NewConfigurationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeConfiguration, message, cause)
}

// ValidationKind identifies which record check failed
type ValidationKind string

const (
	// SchemaMismatch is an unknown column or a missing required column
	SchemaMismatch ValidationKind = "SchemaMismatch"
	// TypeError is a value that cannot be coerced to the column type
	TypeError ValidationKind = "TypeError"
	// DuplicateKey is a key collision between two records of one batch
	DuplicateKey ValidationKind = "DuplicateKey"
)

// ValidationError reports a rejected record by its ordinal position in the batch
type ValidationError struct {
	Kind    ValidationKind
	Ordinal int
	Column  string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s at record %d, column %q: %s", e.Kind, e.Ordinal, e.Column, e.Message)
	}
	return fmt.Sprintf("%s at record %d: %s", e.Kind, e.Ordinal, e.Message)
}

// Unwrap exposes the validation category so callers can branch on ErrorTypeValidation
func (e *ValidationError) Unwrap() error {
	return NewRecoverableError(ErrorTypeValidation, e.Message, nil).
		WithContext("kind", string(e.Kind)).
		WithContext("ordinal", e.Ordinal)
}

// NewValidationError creates a new ValidationError
func NewValidationError(kind ValidationKind, ordinal int, column, message string) *ValidationError {
	return &ValidationError{Kind: kind, Ordinal: ordinal, Column: column, Message: message}
}

// ErrorClassifier provides methods to classify and handle different types of errors
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError analyzes an error and returns an AppError with appropriate classification
func (ec *ErrorClassifier) ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if mysqlErr := ec.classifyMySQLError(err); mysqlErr != nil {
		return mysqlErr
	}

	// Context errors are checked before network ones: a canceled dial is still a cancellation.
	if ctxErr := ec.classifyContextError(err); ctxErr != nil {
		return ctxErr
	}

	if netErr := ec.classifyNetworkError(err); netErr != nil {
		return netErr
	}

	if fsErr := ec.classifyFileSystemError(err); fsErr != nil {
		return fsErr
	}

	return NewAppError(ErrorTypeUnknown, "An unexpected error occurred", err)
}

var duplicateEntryPattern = regexp.MustCompile(`Duplicate entry '([^']*)' for key '([^']*)'`)

// DuplicateEntry extracts the key value and key name from a MySQL 1062 message
func DuplicateEntry(message string) (value, key string, ok bool) {
	m := duplicateEntryPattern.FindStringSubmatch(message)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// classifyMySQLError classifies MySQL-specific errors
func (ec *ErrorClassifier) classifyMySQLError(err error) *AppError {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1045: // Access denied
			return NewAppError(ErrorTypePermission,
				"Database access denied - check username and password", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 1146: // Table doesn't exist
			return NewAppError(ErrorTypeSchema, "Table does not exist", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 1054: // Unknown column
			return NewAppError(ErrorTypeSchema, "Column does not exist", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 1062: // Duplicate entry
			appErr := NewConstraintError("Duplicate entry - record already exists", err).
				WithContext("mysql_error_code", mysqlErr.Number)
			if value, key, ok := DuplicateEntry(mysqlErr.Message); ok {
				appErr.WithContext("key_value", value).WithContext("key_name", key)
			}
			return appErr
		case 1451, 1452: // Foreign key constraint fails
			return NewConstraintError("Foreign key constraint fails - referenced row missing or in use", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 1213, 1205: // Deadlock, lock wait timeout
			return NewRecoverableError(ErrorTypeSQL, "Transaction aborted by lock conflict", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 2003: // Can't connect to MySQL server
			return NewRecoverableError(ErrorTypeConnection,
				"Cannot connect to MySQL server - server may be down or unreachable", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 2006: // MySQL server has gone away
			return NewRecoverableError(ErrorTypeConnection,
				"MySQL server connection lost", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		default:
			return NewAppError(ErrorTypeSQL,
				fmt.Sprintf("MySQL error: %s", mysqlErr.Message), err).
				WithContext("mysql_error_code", mysqlErr.Number)
		}
	}

	if errors.Is(err, sql.ErrTxDone) {
		return NewAppError(ErrorTypeSQL, "Transaction has already been committed or rolled back", err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return NewRecoverableError(ErrorTypeConnection, "Database connection is closed", err)
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return NewRecoverableError(ErrorTypeConnection, "Invalid database connection", err)
	}

	return nil
}

// classifyNetworkError marks transport failures towards the store or a
// source bucket as recoverable so they are retried.
func (ec *ErrorClassifier) classifyNetworkError(err error) *AppError {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		appErr := NewRecoverableError(ErrorTypeConnection, "failed to establish network connection", err)
		if opErr.Addr != nil {
			appErr.WithContext("address", opErr.Addr.String())
		}
		return appErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewRecoverableError(ErrorTypeTimeout, "network round trip timed out", err)
		}
		return NewRecoverableError(ErrorTypeConnection, "network transfer failed", err)
	}
	return nil
}

// classifyContextError classifies context-related errors
func (ec *ErrorClassifier) classifyContextError(err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewAppError(ErrorTypeTimeout, "Operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewCancellationError("Operation was canceled", err)
	}
	return nil
}

// classifyFileSystemError maps the local file failures the stores surface:
// a missing file and a file the process may not read or write.
func (ec *ErrorClassifier) classifyFileSystemError(err error) *AppError {
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NewStorageReadError(fmt.Sprintf("%s does not exist", pathErr.Path), err)
	case errors.Is(err, fs.ErrPermission):
		return NewAppError(ErrorTypePermission, fmt.Sprintf("not allowed to %s %s", pathErr.Op, pathErr.Path), err)
	}
	return nil
}

// RetryConfig holds configuration for retry operations
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryHandler provides retry functionality for operations
type RetryHandler struct {
	config     RetryConfig
	classifier *ErrorClassifier
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(config RetryConfig) *RetryHandler {
	return &RetryHandler{
		config:     config,
		classifier: NewErrorClassifier(),
	}
}

// NewDefaultRetryHandler creates a retry handler with default configuration
func NewDefaultRetryHandler() *RetryHandler {
	return NewRetryHandler(DefaultRetryConfig())
}

// Retry executes a function with retry logic for recoverable errors
func (rh *RetryHandler) Retry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= rh.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return NewCancellationError("Operation canceled", ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err
		appErr := rh.classifier.ClassifyError(err)
		if !appErr.IsRecoverable() {
			return appErr
		}

		if attempt == rh.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return NewCancellationError("Operation canceled during retry", ctx.Err())
		case <-time.After(rh.calculateDelay(attempt)):
		}
	}

	return rh.classifier.ClassifyError(lastErr).
		WithContext("attempts", rh.config.MaxAttempts)
}

// calculateDelay calculates the delay for a given attempt using exponential backoff
func (rh *RetryHandler) calculateDelay(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= rh.config.Multiplier
	}

	delay := time.Duration(float64(rh.config.BaseDelay) * multiplier)
	if delay > rh.config.MaxDelay {
		delay = rh.config.MaxDelay
	}
	return delay
}

// IsRecoverableError checks if an error is recoverable
func IsRecoverableError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.IsRecoverable()
	}
	return false
}

// GetErrorType returns the error type of an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries the given error type anywhere in its chain
func IsType(err error, errorType ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errorType {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// AsValidation returns the ValidationError in err's chain, if any
func AsValidation(err error) (*ValidationError, bool) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}

// WrapError wraps an existing error with additional context, keeping its classification
func WrapError(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		wrapped := NewAppError(appErr.Type, message, err)
		wrapped.Recoverable = appErr.Recoverable
		return wrapped
	}

	classified := NewErrorClassifier().ClassifyError(err)
	wrapped := NewAppError(classified.Type, message, err)
	wrapped.Recoverable = classified.Recoverable
	for k, v := range classified.Context {
		wrapped.Context[k] = v
	}
	return wrapped
}
