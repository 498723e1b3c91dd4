// Package migration bulk-loads external tabular sources into the store in
// independent batches.
package migration

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/ingest"
	"hiring-data-sync/internal/logging"
	"hiring-data-sync/internal/schema"
	"hiring-data-sync/internal/validator"

	"golang.org/x/sync/errgroup"
)

// Options tune a Loader
type Options struct {
	Workers   int
	BatchSize int
	CSV       CSVOptions
	// OnBatch is called once per finished batch. Calls are serialized.
	OnBatch func(BatchReport)
}

// batchIngestor is the part of the ingestor the loader needs
type batchIngestor interface {
	Ingest(ctx context.Context, batch *validator.ValidatedBatch) (*ingest.Result, error)
}

// Loader migrates sources batch by batch. A failed batch is recorded and
// the migration moves on; each batch is still all-or-nothing.
type Loader struct {
	ingestor  batchIngestor
	validator *validator.Validator
	source    *Source
	logger    *logging.Logger
	options   Options
}

// NewLoader creates a loader. Workers defaults to 1 and BatchSize to 1000.
func NewLoader(ingestor *ingest.Ingestor, source *Source, options Options, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if options.Workers < 1 {
		options.Workers = 1
	}
	if ingest.CheckSize(options.BatchSize) != nil {
		options.BatchSize = DefaultBatchSize
	}
	return &Loader{
		ingestor:  ingestor,
		validator: validator.NewValidator(),
		source:    source,
		logger:    logger,
		options:   options,
	}
}

// batch is a group of consecutive source rows
type batch struct {
	index     int
	firstLine int64
	records   []schema.Record
	lines     []int64
	size      int
	err       error
}

// Migrate loads the named source into ts.Name
func (l *Loader) Migrate(ctx context.Context, sourceRef string, ts *schema.TableSchema) (*Result, error) {
	if l.source == nil {
		return nil, errors.NewConfigurationError("no migration source configured", nil)
	}
	rc, err := l.source.Open(ctx, sourceRef)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return l.MigrateReader(ctx, l.source.Location(sourceRef), rc, ts)
}

// MigrateReader loads CSV rows from r. Batches are dispatched to the worker
// pool in source order. Cancellation stops dispatching; batches already
// running finish and are counted.
func (l *Loader) MigrateReader(ctx context.Context, name string, r io.Reader, ts *schema.TableSchema) (res *Result, err error) {
	if ts == nil {
		return nil, errors.NewConfigurationError("table schema is required", nil)
	}
	start := time.Now()
	res = &Result{Table: ts.Name, Source: name}

	done := l.logger.LogOperationStart("migrate", map[string]interface{}{
		"table":   ts.Name,
		"source":  name,
		"workers": l.options.Workers,
	})
	defer func() {
		res.Duration = time.Since(start)
		done(err)
	}()

	rows, err := newRowReader(r, ts, l.options.CSV)
	if err != nil {
		return res, err
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(l.options.Workers)

	// in-flight batches must not be cut off half way
	work := context.WithoutCancel(ctx)

	var readErr error
	canceled := false
	for index := 0; ; index++ {
		if ctx.Err() != nil {
			canceled = true
			break
		}

		b, eof, err := l.readBatch(rows, index)
		if err != nil {
			readErr = err
			break
		}
		if b.size == 0 {
			break
		}
		res.Rows += int64(b.size)
		res.Batches++

		g.Go(func() error {
			began := time.Now()
			inserted, batchErr := l.runBatch(work, ts, b)
			elapsed := time.Since(began)

			mu.Lock()
			defer mu.Unlock()
			l.record(res, ts, b, inserted, elapsed, batchErr)
			return nil
		})

		if eof {
			break
		}
	}
	g.Wait()
	res.sortFailures()

	if readErr != nil {
		return res, readErr
	}
	if canceled {
		res.Canceled = true
		return res, errors.NewCancellationError(
			fmt.Sprintf("migration of %s canceled after %d batches", ts.Name, res.Batches), ctx.Err()).
			WithContext("batches", res.Batches).
			WithContext("inserted", res.TotalInserted)
	}

	l.logger.WithFields(map[string]interface{}{
		"table":          ts.Name,
		"rows":           res.Rows,
		"batches":        res.Batches,
		"inserted":       res.TotalInserted,
		"batches_failed": res.BatchesFailed,
	}).Info("Migration finished")
	return res, nil
}

// readBatch collects up to BatchSize rows. A malformed row marks the batch
// failed but the rest of its rows are still consumed.
func (l *Loader) readBatch(rows *rowReader, index int) (*batch, bool, error) {
	b := &batch{index: index, records: make([]schema.Record, 0, l.options.BatchSize)}
	for b.size < l.options.BatchSize {
		rec, line, err := rows.next()
		if err == io.EOF {
			return b, true, nil
		}
		if b.size == 0 {
			b.firstLine = line
		}
		if rowErr, ok := err.(*rowError); ok {
			b.size++
			if b.err == nil {
				b.err = errors.NewAppError(errors.ErrorTypeValidation, rowErr.Error(), rowErr.err).
					WithContext("line", rowErr.line)
			}
			continue
		}
		if err != nil {
			return nil, false, err
		}
		b.records = append(b.records, rec)
		b.lines = append(b.lines, line)
		b.size++
	}
	return b, false, nil
}

func (l *Loader) runBatch(ctx context.Context, ts *schema.TableSchema, b *batch) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	validated, err := l.validator.Validate(b.records, ts)
	if err != nil {
		return 0, err
	}
	result, err := l.ingestor.Ingest(ctx, validated)
	if err != nil {
		return 0, err
	}
	return result.Inserted, nil
}

// record folds one batch outcome into res. Callers hold the result lock.
func (l *Loader) record(res *Result, ts *schema.TableSchema, b *batch, inserted int64, elapsed time.Duration, err error) {
	l.logger.LogBatch(ts.Name, b.index, b.size, inserted, elapsed, err)
	if err != nil {
		res.addFailure(BatchFailure{
			Index:     b.index,
			FirstLine: b.firstLine,
			Size:      b.size,
			Reason:    describe(err, b),
			Err:       err,
		})
	} else {
		res.TotalInserted += inserted
	}

	if l.options.OnBatch != nil {
		l.options.OnBatch(BatchReport{Table: ts.Name, Index: b.index, Size: b.size, Inserted: inserted, Err: err})
	}
}

// describe names the failing line when the error points at a record
func describe(err error, b *batch) string {
	if vErr, ok := errors.AsValidation(err); ok && vErr.Ordinal >= 0 && vErr.Ordinal < len(b.lines) {
		return fmt.Sprintf("line %d: %s", b.lines[vErr.Ordinal], vErr.Error())
	}
	return err.Error()
}

// MigrateAll migrates every table of catalog that has a source file, in
// dependency order. Batch failures do not stop it; an unreadable source or
// a cancellation does, and the results so far are returned with the error.
func (l *Loader) MigrateAll(ctx context.Context, catalog *schema.Catalog, files map[string]string) ([]*Result, error) {
	tables, err := catalog.Ordered()
	if err != nil {
		return nil, errors.NewConfigurationError("cannot order tables", err)
	}

	var results []*Result
	for _, ts := range tables {
		file, ok := files[ts.Name]
		if !ok || file == "" {
			l.logger.WithField("table", ts.Name).Debug("No migration source configured, skipping")
			continue
		}
		res, err := l.Migrate(ctx, file, ts)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, errors.WrapError(err, fmt.Sprintf("migration of %s stopped", ts.Name)).
				WithContext("table", ts.Name)
		}
	}
	return results, nil
}
