// Package restore applies snapshots back onto live tables.
package restore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/ingest"
	"hiring-data-sync/internal/lock"
	"hiring-data-sync/internal/logging"
	"hiring-data-sync/internal/schema"
	"hiring-data-sync/internal/snapshot"
	"hiring-data-sync/internal/validator"
)

// Policy decides what happens to rows already in the target table
type Policy string

const (
	// PolicyReplace empties the table and loads the snapshot
	PolicyReplace Policy = "replace"
	// PolicyMerge upserts snapshot records by key and keeps every other row
	PolicyMerge Policy = "merge"
)

// ParsePolicy parses a policy name
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyReplace, PolicyMerge:
		return p, nil
	}
	return "", errors.NewAppError(errors.ErrorTypeValidation,
		fmt.Sprintf("unknown restore policy %q (expected replace or merge)", s), nil)
}

// State is a step of the restore state machine
type State string

const (
	StatePending    State = "pending"
	StateValidating State = "validating"
	StateApplying   State = "applying"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// Terminal reports whether no further transition can follow s
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack
}

// Plan describes one restore request
type Plan struct {
	Table       string
	SnapshotRef string
	Policy      Policy
	// KeyColumns must equal the table's primary key for merge
	KeyColumns []string
	// Revalidate runs every snapshot record through the validator before writing it
	Revalidate bool
	// CheckLive compares the live table definition with the expected schema first
	CheckLive bool
}

// Result reports the outcome of a restore. It is returned alongside the
// error when a restore fails after it started.
type Result struct {
	Table    string
	Ref      string
	Policy   Policy
	State    State
	Applied  int64
	Chunks   int
	Duration time.Duration
}

// chunkWriter writes one chunk of records inside the restore transaction
type chunkWriter interface {
	InsertTx(ctx context.Context, tx ingest.Execer, batch *validator.ValidatedBatch) (int64, error)
	UpsertTx(ctx context.Context, tx ingest.Execer, batch *validator.ValidatedBatch) (int64, error)
}

// Coordinator runs restores. Restores and snapshots of the same table are
// serialized through the shared locker.
type Coordinator struct {
	db        *sql.DB
	schemas   *schema.Catalog
	snapshots *snapshot.Catalog
	reader    *snapshot.Reader
	ingestor  chunkWriter
	validator *validator.Validator
	inspector *schema.Inspector
	locks     lock.Locker
	logger    *logging.Logger
	chunkSize int
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithChunkSize sets how many records are written per statement. Values
// outside 1..1000 are ignored.
func WithChunkSize(n int) Option {
	return func(c *Coordinator) {
		if ingest.CheckSize(n) == nil {
			c.chunkSize = n
		}
	}
}

// WithInspector enables live schema checks for plans that ask for them
func WithInspector(i *schema.Inspector) Option {
	return func(c *Coordinator) { c.inspector = i }
}

// NewCoordinator creates a restore coordinator
func NewCoordinator(db *sql.DB, schemas *schema.Catalog, snapshots *snapshot.Catalog, reader *snapshot.Reader,
	locks lock.Locker, logger *logging.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if locks == nil {
		locks = lock.Nop{}
	}
	c := &Coordinator{
		db:        db,
		schemas:   schemas,
		snapshots: snapshots,
		reader:    reader,
		ingestor:  ingest.NewIngestor(db, logger),
		validator: validator.NewValidator(),
		locks:     locks,
		logger:    logger,
		chunkSize: ingest.MaxBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run tracks the state of one restore
type run struct {
	c      *Coordinator
	result *Result
}

func (r *run) moveTo(s State) {
	r.c.logger.LogRestoreTransition(r.result.Table, string(r.result.State), string(s))
	r.result.State = s
}

// fail ends the run as RolledBack and tags err with where it stopped
func (r *run) fail(err error) (*Result, error) {
	if r.result.State != StatePending {
		r.moveTo(StateRolledBack)
	}
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.WrapError(err, fmt.Sprintf("restore of %s failed", r.result.Table))
	}
	appErr.WithContext("table", r.result.Table).
		WithContext("restore_state", string(r.result.State)).
		WithContext("applied", r.result.Applied)
	return r.result, appErr
}

// Restore applies the plan's snapshot to its table. The whole restore runs
// in one transaction, so the table ends either unchanged or fully restored.
func (c *Coordinator) Restore(ctx context.Context, plan Plan) (res *Result, err error) {
	start := time.Now()
	if p, perr := ParsePolicy(string(plan.Policy)); perr == nil {
		plan.Policy = p
	}
	r := &run{c: c, result: &Result{Table: plan.Table, Policy: plan.Policy, State: StatePending}}
	defer func() {
		r.result.Duration = time.Since(start)
	}()

	expected, err := c.checkPlan(plan)
	if err != nil {
		return r.fail(err)
	}

	lease, err := c.locks.Acquire(ctx, plan.Table)
	if err != nil {
		return r.fail(err)
	}
	defer lease.Release()

	// resolved under the lease so "latest" cannot move before the snapshot is opened
	ref, err := c.snapshots.Resolve(ctx, plan.Table, plan.SnapshotRef)
	if err != nil {
		return r.fail(err)
	}
	r.result.Ref = ref

	done := c.logger.LogOperationStart("restore", map[string]interface{}{
		"table":  plan.Table,
		"ref":    ref,
		"policy": string(plan.Policy),
	})
	defer func() { done(err) }()

	r.moveTo(StateValidating)
	it, err := c.validate(ctx, plan, ref, expected)
	if err != nil {
		return r.fail(err)
	}
	defer it.Close()

	r.moveTo(StateApplying)
	if err = c.apply(ctx, r, plan, expected, it); err != nil {
		return r.fail(err)
	}

	r.moveTo(StateCommitted)
	c.logger.WithFields(map[string]interface{}{
		"table":   plan.Table,
		"ref":     ref,
		"policy":  string(plan.Policy),
		"applied": r.result.Applied,
		"chunks":  r.result.Chunks,
	}).Info("Restore committed")

	return r.result, nil
}

// checkPlan validates the request itself before anything is read
func (c *Coordinator) checkPlan(plan Plan) (*schema.TableSchema, error) {
	if c.db == nil || c.snapshots == nil || c.reader == nil || c.schemas == nil {
		return nil, errors.NewConfigurationError("restore coordinator is not fully configured", nil)
	}
	if _, err := ParsePolicy(string(plan.Policy)); err != nil {
		return nil, err
	}

	expected, err := c.schemas.Lookup(plan.Table)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeValidation, err.Error(), err)
	}

	if plan.Policy == PolicyMerge {
		if len(plan.KeyColumns) == 0 {
			return nil, errors.NewAppError(errors.ErrorTypeValidation, "merge restore requires key columns", nil)
		}
		for _, k := range plan.KeyColumns {
			if !expected.HasColumn(k) {
				return nil, errors.NewAppError(errors.ErrorTypeValidation,
					fmt.Sprintf("key column %s does not exist in table %s", k, plan.Table), nil)
			}
		}
		if !expected.IsKey(plan.KeyColumns) {
			return nil, errors.NewAppError(errors.ErrorTypeValidation,
				fmt.Sprintf("key columns (%s) must match the primary key (%s) of %s",
					strings.Join(plan.KeyColumns, ", "), strings.Join(expected.KeyColumns(), ", "), plan.Table), nil)
		}
	}
	return expected, nil
}

// validate opens the snapshot with the fingerprint check and optionally
// compares the live table. Nothing has been written when it fails.
func (c *Coordinator) validate(ctx context.Context, plan Plan, ref string, expected *schema.TableSchema) (*snapshot.Iterator, error) {
	if plan.CheckLive && c.inspector != nil {
		live, err := c.inspector.Describe(ctx, c.db, plan.Table)
		if err != nil {
			return nil, errors.WrapError(err, fmt.Sprintf("failed to inspect live table %s", plan.Table))
		}
		if live.Fingerprint() != expected.Fingerprint() {
			return nil, errors.NewSchemaDriftError(
				fmt.Sprintf("live table %s does not match the expected schema", plan.Table), expected.Diff(live)).
				WithContext("live_fingerprint", live.Fingerprint()).
				WithContext("expected_fingerprint", expected.Fingerprint())
		}
	}

	it, err := c.reader.Open(ctx, ref, expected)
	if err != nil {
		return nil, err
	}

	if plan.Policy == PolicyMerge {
		written := it.Schema()
		for _, k := range plan.KeyColumns {
			if !written.HasColumn(k) {
				it.Close()
				return nil, errors.NewSchemaDriftError(
					fmt.Sprintf("snapshot %s has no key column %s", ref, k), []string{k})
			}
		}
	}
	return it, nil
}

// apply writes the snapshot in one transaction on a pinned connection.
// Replacing a table other tables reference runs with foreign key checks
// off for that session; the dependents are checked for dangling rows
// before commit instead.
func (c *Coordinator) apply(ctx context.Context, r *run, plan Plan, expected *schema.TableSchema, it *snapshot.Iterator) (err error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return errors.WrapError(err, "failed to reserve a connection for restore")
	}
	defer conn.Close()

	var dependents []schema.Dependent
	if plan.Policy == PolicyReplace {
		dependents = c.schemas.Dependents(expected.Name)
	}
	if len(dependents) > 0 {
		if err = c.setForeignKeyChecks(ctx, conn, false); err != nil {
			return err
		}
		defer c.resetForeignKeyChecks(ctx, conn)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapError(err, "failed to begin restore transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
				c.logger.WithField("error", rollbackErr.Error()).Error("Failed to roll back restore")
			}
		}
	}()

	if plan.Policy == PolicyReplace {
		if err = c.clear(ctx, tx, expected.Name); err != nil {
			return err
		}
	}

	chunk := &validator.ValidatedBatch{Schema: expected, Records: make([]schema.Record, 0, c.chunkSize)}
	for {
		chunk.Records = chunk.Records[:0]
		for chunk.Len() < c.chunkSize && it.Next() {
			chunk.Records = append(chunk.Records, it.Record())
		}
		if err = it.Err(); err != nil {
			return errors.WrapError(err, fmt.Sprintf("failed reading snapshot at chunk %d", r.result.Chunks))
		}
		if chunk.Len() == 0 {
			break
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.NewCancellationError(
				fmt.Sprintf("restore canceled before chunk %d", r.result.Chunks), ctxErr).
				WithContext("chunk", r.result.Chunks)
		}

		n, chunkErr := c.writeChunk(ctx, tx, plan, r.result.Chunks, chunk)
		if chunkErr != nil {
			return errors.WrapError(chunkErr, fmt.Sprintf("chunk %d of %s failed", r.result.Chunks, expected.Name)).
				WithContext("chunk", r.result.Chunks)
		}
		r.result.Applied += n
		r.result.Chunks++

		if chunk.Len() < c.chunkSize {
			break
		}
	}

	for _, dep := range dependents {
		if err = c.checkDependents(ctx, tx, expected.Name, dep); err != nil {
			return err
		}
	}

	// The last point where a cancel still rolls back
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.NewCancellationError("restore canceled before commit", ctxErr)
	}
	if err = tx.Commit(); err != nil {
		return errors.WrapError(err, "failed to commit restore")
	}
	return nil
}

func (c *Coordinator) writeChunk(ctx context.Context, tx *sql.Tx, plan Plan, index int, chunk *validator.ValidatedBatch) (int64, error) {
	batch := chunk
	if plan.Revalidate {
		validated, err := c.validator.Validate(chunk.Records, chunk.Schema)
		if err != nil {
			return 0, err
		}
		batch = validated
	}

	start := time.Now()
	var n int64
	var err error
	if plan.Policy == PolicyMerge {
		n, err = c.ingestor.UpsertTx(ctx, tx, batch)
	} else {
		n, err = c.ingestor.InsertTx(ctx, tx, batch)
	}
	c.logger.LogBatch(batch.Schema.Name, index, batch.Len(), n, time.Since(start), err)
	return n, err
}

// clear empties the table inside tx. TRUNCATE commits implicitly in MySQL
// and cannot be part of the restore transaction.
func (c *Coordinator) clear(ctx context.Context, tx *sql.Tx, table string) error {
	query := "DELETE FROM " + quoteIdent(table)
	start := time.Now()
	res, err := tx.ExecContext(ctx, query)
	var affected int64
	if res != nil {
		affected, _ = res.RowsAffected()
	}
	c.logger.LogSQLExecution(query, time.Since(start), affected, err)
	if err != nil {
		return errors.WrapError(err, fmt.Sprintf("failed to clear table %s", table))
	}
	return nil
}

func (c *Coordinator) setForeignKeyChecks(ctx context.Context, conn *sql.Conn, on bool) error {
	query := "SET FOREIGN_KEY_CHECKS = 0"
	if on {
		query = "SET FOREIGN_KEY_CHECKS = 1"
	}
	start := time.Now()
	_, err := conn.ExecContext(ctx, query)
	c.logger.LogSQLExecution(query, time.Since(start), 0, err)
	if err != nil {
		return errors.WrapError(err, "failed to switch foreign key checks")
	}
	return nil
}

// resetForeignKeyChecks turns the checks back on before conn returns to the
// pool. A connection that cannot be reset is discarded.
func (c *Coordinator) resetForeignKeyChecks(ctx context.Context, conn *sql.Conn) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.setForeignKeyChecks(ctx, conn, true); err != nil {
		c.logger.WithField("error", err.Error()).Error("Discarding restore connection with foreign key checks off")
		conn.Raw(func(interface{}) error { return driver.ErrBadConn })
	}
}

// checkDependents fails when rows of a referencing table no longer find
// their parent in the restored table
func (c *Coordinator) checkDependents(ctx context.Context, tx *sql.Tx, table string, dep schema.Dependent) error {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s AS d LEFT JOIN %s AS p ON d.%s = p.%s WHERE d.%s IS NOT NULL AND p.%s IS NULL",
		quoteIdent(dep.Table), quoteIdent(table), quoteIdent(dep.Column), quoteIdent(dep.RefColumn),
		quoteIdent(dep.Column), quoteIdent(dep.RefColumn))

	start := time.Now()
	var orphans int64
	err := tx.QueryRowContext(ctx, query).Scan(&orphans)
	c.logger.LogSQLExecution(query, time.Since(start), 0, err)
	if err != nil {
		return errors.WrapError(err, fmt.Sprintf("failed to check rows of %s referencing %s", dep.Table, table))
	}
	if orphans > 0 {
		return errors.NewConstraintError(
			fmt.Sprintf("restoring %s would leave %d rows of %s without a matching %s.%s",
				table, orphans, dep.Table, table, dep.RefColumn), nil).
			WithContext("dependent_table", dep.Table).
			WithContext("dependent_column", dep.Column).
			WithContext("orphans", orphans)
	}
	return nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
