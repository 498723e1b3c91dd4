// Package snapshot writes and reads point-in-time table snapshots in a
// self-describing binary container.
package snapshot

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/lock"
	"hiring-data-sync/internal/logging"
	"hiring-data-sync/internal/schema"
	"hiring-data-sync/internal/storage"
)

// cancelCheckInterval is how many rows are streamed between context checks
const cancelCheckInterval = 1000

// Options control the body encoding of new snapshots
type Options struct {
	Compression CompressionConfig
	Encryption  *EncryptionConfig
}

// Snapshot describes a committed snapshot
type Snapshot struct {
	Ref         string
	Location    string
	Table       string
	Fingerprint string
	Records     int64
	Bytes       int64
	CreatedAt   time.Time
}

// Writer takes snapshots of live tables
type Writer struct {
	db      *sql.DB
	store   storage.Store
	locks   lock.Locker
	logger  *logging.Logger
	options Options
	now     func() time.Time
}

// NewWriter creates a snapshot writer. A nil locker disables table locking.
func NewWriter(db *sql.DB, store storage.Store, locks lock.Locker, options Options, logger *logging.Logger) *Writer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if locks == nil {
		locks = lock.Nop{}
	}
	return &Writer{
		db:      db,
		store:   store,
		locks:   locks,
		logger:  logger,
		options: options,
		now:     time.Now,
	}
}

// Snapshot streams the full contents of ts.Name, read in one repeatable-read
// transaction, into a new snapshot object. On any failure the staged object
// is discarded and nothing is published.
func (w *Writer) Snapshot(ctx context.Context, ts *schema.TableSchema) (snap *Snapshot, err error) {
	if ts == nil {
		return nil, errors.NewConfigurationError("table schema is required", nil)
	}
	if err := ts.Validate(); err != nil {
		return nil, errors.NewConfigurationError("invalid table schema", err)
	}
	if w.db == nil || w.store == nil {
		return nil, errors.NewConfigurationError("snapshot writer requires a database and a store", nil)
	}

	lease, err := w.locks.Acquire(ctx, ts.Name)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	done := w.logger.LogOperationStart("snapshot", map[string]interface{}{"table": ts.Name})
	defer func() { done(err) }()

	created := w.now().UTC()
	header := newHeader(ts, created)
	header.Compression = w.options.Compression.algorithm()

	var sealKey []byte
	if enc := w.options.Encryption; enc != nil && enc.Enabled {
		header.Encryption, sealKey, err = enc.newEncryptionHeader()
		if err != nil {
			return nil, err
		}
	}

	key := Key(ts.Name, created)
	up, err := w.store.Create(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if abortErr := up.Abort(); abortErr != nil {
				w.logger.WithField("error", abortErr.Error()).Warn("Failed to discard staged snapshot")
			}
		}
	}()

	counter := &countingWriter{w: up}
	buffered := bufio.NewWriterSize(counter, 64<<10)

	if err = writePreamble(buffered, header); err != nil {
		return nil, writeError(err)
	}

	body, closeBody, err := w.bodyWriter(buffered, header, sealKey)
	if err != nil {
		return nil, err
	}

	count, err := w.copyRows(ctx, ts, body)
	if err != nil {
		return nil, err
	}

	if err = writeFrame(body, frameEnd, encodeCount(count)); err != nil {
		return nil, writeError(err)
	}
	if err = closeBody(); err != nil {
		return nil, writeError(err)
	}
	if err = buffered.Flush(); err != nil {
		return nil, writeError(err)
	}
	if err = up.Commit(ctx); err != nil {
		return nil, err
	}

	snap = &Snapshot{
		Ref:         key,
		Location:    w.store.Location(key),
		Table:       ts.Name,
		Fingerprint: header.Fingerprint,
		Records:     count,
		Bytes:       counter.n,
		CreatedAt:   created,
	}

	w.logger.WithFields(map[string]interface{}{
		"table":    ts.Name,
		"ref":      key,
		"records":  count,
		"bytes":    counter.n,
		"location": snap.Location,
	}).Info("Snapshot committed")

	return snap, nil
}

// bodyWriter layers compression over sealing. The returned close func
// finishes both layers in order.
func (w *Writer) bodyWriter(out io.Writer, header *Header, sealKey []byte) (io.Writer, func() error, error) {
	var sealer *sealWriter
	target := out
	if sealKey != nil {
		s, err := newSealWriter(out, sealKey)
		if err != nil {
			return nil, nil, err
		}
		sealer = s
		target = s
	}

	compressor, err := newCompressWriter(target, w.options.Compression)
	if err != nil {
		return nil, nil, err
	}

	closeBody := func() error {
		if err := compressor.Close(); err != nil {
			return err
		}
		if sealer != nil {
			return sealer.Close()
		}
		return nil
	}
	return compressor, closeBody, nil
}

func (w *Writer) copyRows(ctx context.Context, ts *schema.TableSchema, body io.Writer) (int64, error) {
	tx, err := w.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return 0, errors.NewStorageReadError("failed to begin snapshot transaction", err)
	}
	defer tx.Rollback()

	query := selectQuery(ts)
	start := time.Now()
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		w.logger.LogSQLExecution(query, time.Since(start), 0, err)
		return 0, errors.NewStorageReadError(fmt.Sprintf("failed to read table %s", ts.Name), err)
	}
	defer rows.Close()

	raw := make([]interface{}, len(ts.Columns))
	dest := make([]interface{}, len(ts.Columns))
	for i := range raw {
		dest[i] = &raw[i]
	}

	var count int64
	var buf []byte
	for rows.Next() {
		if count%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return count, errors.NewCancellationError("snapshot canceled", err).WithContext("records", count)
			}
		}

		if err := rows.Scan(dest...); err != nil {
			return count, errors.NewStorageReadError(fmt.Sprintf("failed to scan row %d of %s", count, ts.Name), err)
		}

		rec := make(schema.Record, len(ts.Columns))
		for i, col := range ts.Columns {
			v, err := schema.FromSQL(raw[i], col.Type)
			if err != nil {
				return count, errors.NewSerializationError(
					fmt.Sprintf("row %d column %s cannot be encoded", count, col.Name), err)
			}
			rec[col.Name] = v
		}

		buf, err = encodeRecord(buf[:0], ts, rec)
		if err != nil {
			return count, errors.WrapError(err, fmt.Sprintf("row %d of %s cannot be encoded", count, ts.Name))
		}
		if err := writeFrame(body, frameRecord, buf); err != nil {
			return count, writeError(err)
		}
		count++
	}

	if err := rows.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return count, errors.NewCancellationError("snapshot canceled", ctxErr).WithContext("records", count)
		}
		return count, errors.NewStorageReadError(fmt.Sprintf("failed while reading table %s", ts.Name), err)
	}
	w.logger.LogSQLExecution(query, time.Since(start), count, nil)

	if err := tx.Commit(); err != nil {
		return count, errors.NewStorageReadError("failed to finish snapshot transaction", err)
	}
	return count, nil
}

// selectQuery reads every column in schema order, sorted by key for a stable byte layout
func selectQuery(ts *schema.TableSchema) string {
	cols := make([]string, len(ts.Columns))
	for i, c := range ts.Columns {
		cols[i] = quoteIdent(c.Name)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), quoteIdent(ts.Name))
	if keys := ts.KeyColumns(); len(keys) > 0 {
		for i, k := range keys {
			keys[i] = quoteIdent(k)
		}
		query += " ORDER BY " + strings.Join(keys, ", ")
	}
	return query
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// writeError keeps classified errors and marks raw I/O failures as storage errors
func writeError(err error) error {
	if errors.GetErrorType(err) != errors.ErrorTypeUnknown {
		return err
	}
	return errors.NewStorageError("failed to write snapshot", err)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
