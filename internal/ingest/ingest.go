// Package ingest commits validated batches to the relational store.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/logging"
	"hiring-data-sync/internal/schema"
	"hiring-data-sync/internal/validator"
)

const (
	// MinBatchSize is the smallest batch accepted by Ingest
	MinBatchSize = 1
	// MaxBatchSize is the largest batch accepted by Ingest
	MaxBatchSize = 1000
)

// Execer is the subset of *sql.Tx and *sql.DB used for writes
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Result reports the outcome of a committed batch
type Result struct {
	Table    string
	Inserted int64
}

// Ingestor writes validated batches, one transaction per call
type Ingestor struct {
	db         *sql.DB
	logger     *logging.Logger
	classifier *errors.ErrorClassifier
}

// NewIngestor creates an ingestor bound to db
func NewIngestor(db *sql.DB, logger *logging.Logger) *Ingestor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Ingestor{
		db:         db,
		logger:     logger,
		classifier: errors.NewErrorClassifier(),
	}
}

// CheckSize rejects batch sizes outside [MinBatchSize, MaxBatchSize]
func CheckSize(n int) error {
	if n < MinBatchSize || n > MaxBatchSize {
		return errors.NewBatchSizeError(n, MinBatchSize, MaxBatchSize)
	}
	return nil
}

// Ingest inserts every record of batch or none of them
func (i *Ingestor) Ingest(ctx context.Context, batch *validator.ValidatedBatch) (*Result, error) {
	if err := CheckSize(batch.Len()); err != nil {
		return nil, err
	}
	if i.db == nil {
		return nil, errors.NewConfigurationError("database connection is nil", nil)
	}

	table := batch.Schema.Name
	var inserted int64
	err := i.inTx(ctx, func(tx *sql.Tx) error {
		n, err := i.InsertTx(ctx, tx, batch)
		inserted = n
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Result{Table: table, Inserted: inserted}, nil
}

// InsertTx inserts batch through an existing transaction without committing it
func (i *Ingestor) InsertTx(ctx context.Context, tx Execer, batch *validator.ValidatedBatch) (int64, error) {
	if err := CheckSize(batch.Len()); err != nil {
		return 0, err
	}
	query, args := buildInsert(batch.Schema, batch.Records, false)
	return i.exec(ctx, tx, batch.Schema.Name, query, args, batch.Len())
}

// UpsertTx inserts batch or updates the rows whose primary key already exists.
// Running it twice with the same batch leaves the same table state.
func (i *Ingestor) UpsertTx(ctx context.Context, tx Execer, batch *validator.ValidatedBatch) (int64, error) {
	if err := CheckSize(batch.Len()); err != nil {
		return 0, err
	}
	if !batch.Schema.HasKey() {
		return 0, errors.NewConfigurationError(
			fmt.Sprintf("table %s has no key columns to upsert on", batch.Schema.Name), nil)
	}
	query, args := buildInsert(batch.Schema, batch.Records, true)
	if _, err := i.exec(ctx, tx, batch.Schema.Name, query, args, batch.Len()); err != nil {
		return 0, err
	}
	// MySQL reports 2 affected rows per updated record, so count records instead
	return int64(batch.Len()), nil
}

func (i *Ingestor) exec(ctx context.Context, tx Execer, table, query string, args []interface{}, size int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.NewCancellationError("ingest canceled before write", err)
	}

	start := time.Now()
	res, err := tx.ExecContext(ctx, query, args...)
	duration := time.Since(start)

	var affected int64
	if res != nil {
		affected, _ = res.RowsAffected()
	}
	i.logger.LogSQLExecution(query, duration, affected, err)

	if err != nil {
		return 0, i.storeError(err, table, size)
	}
	return affected, nil
}

// storeError maps a driver failure to the error taxonomy, naming the failing key when known
func (i *Ingestor) storeError(err error, table string, size int) error {
	classified := i.classifier.ClassifyError(err)
	if classified.Type != errors.ErrorTypeConstraint {
		return errors.WrapError(err, fmt.Sprintf("failed to write batch of %d records to %s", size, table)).
			WithContext("table", table)
	}

	msg := fmt.Sprintf("constraint violation writing to %s", table)
	if key, ok := classified.Context["key_value"]; ok {
		msg = fmt.Sprintf("constraint violation writing to %s: key %v", table, key)
	}

	out := errors.NewConstraintError(msg, err).WithContext("table", table).WithContext("batch_size", size)
	for k, v := range classified.Context {
		out.WithContext(k, v)
	}
	return out
}

func (i *Ingestor) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapError(err, "failed to begin transaction")
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
				i.logger.WithField("error", rollbackErr.Error()).Error("Failed to rollback transaction")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.WrapError(err, "failed to commit transaction")
	}
	return nil
}

// buildInsert renders a multi-row INSERT for records in schema column order
func buildInsert(ts *schema.TableSchema, records []schema.Record, upsert bool) (string, []interface{}) {
	columns := ts.ColumnNames()
	quoted := make([]string, len(columns))
	for idx, name := range columns {
		quoted[idx] = quoteIdent(name)
	}

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", quoteIdent(ts.Name), strings.Join(quoted, ", "))

	args := make([]interface{}, 0, len(records)*len(columns))
	for idx, rec := range records {
		if idx > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
		for _, v := range rec.Values(ts) {
			args = append(args, v.SQLValue())
		}
	}

	if upsert {
		var updates []string
		for _, col := range ts.Columns {
			if col.Key {
				continue
			}
			q := quoteIdent(col.Name)
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", q, q))
		}
		if len(updates) == 0 {
			// key-only table: make the duplicate a no-op
			key := quoteIdent(ts.KeyColumns()[0])
			updates = append(updates, fmt.Sprintf("%s = %s", key, key))
		}
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		b.WriteString(strings.Join(updates, ", "))
	}

	return b.String(), args
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
