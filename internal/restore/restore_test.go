package restore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"regexp"
	"testing"
	"time"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/ingest"
	"hiring-data-sync/internal/lock"
	"hiring-data-sync/internal/schema"
	"hiring-data-sync/internal/snapshot"
	"hiring-data-sync/internal/storage"
	"hiring-data-sync/internal/validator"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	store, err := storage.NewLocalStore(&storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return store
}

// takeSnapshot writes a snapshot of ts holding rows into store
func takeSnapshot(t *testing.T, store storage.Store, ts *schema.TableSchema, rows *sqlmock.Rows) string {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `" + ts.Name + "`").WillReturnRows(rows)
	mock.ExpectCommit()

	snap, err := snapshot.NewWriter(db, store, nil, snapshot.Options{}, nil).Snapshot(context.Background(), ts)
	require.NoError(t, err)
	return snap.Ref
}

func jobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "Analyst").
		AddRow(int64(2), "Engineer").
		AddRow(int64(3), "Manager")
}

// expectParentReplace expects the session setup of a replace restore of a
// table hired_employees references, up to the DELETE
func expectParentReplace(mock sqlmock.Sqlmock, table string, deleted int64) {
	mock.ExpectExec(regexp.QuoteMeta("SET FOREIGN_KEY_CHECKS = 0")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `" + table + "`")).WillReturnResult(sqlmock.NewResult(0, deleted))
}

// expectDependentCheck expects the dangling row count of hired_employees against table
func expectDependentCheck(mock sqlmock.Sqlmock, table, column string, orphans int64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `hired_employees` AS d LEFT JOIN `" + table +
		"` AS p ON d.`" + column + "` = p.`id` WHERE d.`" + column + "` IS NOT NULL AND p.`id` IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(orphans))
}

func expectChecksBackOn(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("SET FOREIGN_KEY_CHECKS = 1")).WillReturnResult(sqlmock.NewResult(0, 0))
}

func newCoordinator(t *testing.T, store storage.Store, opts ...Option) (*Coordinator, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := NewCoordinator(db, schema.DefaultCatalog(), snapshot.NewCatalog(store), snapshot.NewReader(store, nil),
		lock.NewLocal(), nil, opts...)
	return c, mock, db
}

func TestRestore_Replace(t *testing.T) {
	store := newStore(t)
	ref := takeSnapshot(t, store, schema.Jobs(), jobRows())
	c, mock, _ := newCoordinator(t, store)

	expectParentReplace(mock, "jobs", 7)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `jobs` (`id`, `name`) VALUES (?, ?), (?, ?), (?, ?)")).
		WithArgs(int64(1), "Analyst", int64(2), "Engineer", int64(3), "Manager").
		WillReturnResult(sqlmock.NewResult(0, 3))
	expectDependentCheck(mock, "jobs", "job_id", 0)
	mock.ExpectCommit()
	expectChecksBackOn(mock)

	res, err := c.Restore(context.Background(), Plan{Table: schema.TableJobs, SnapshotRef: ref, Policy: PolicyReplace})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, int64(3), res.Applied)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, ref, res.Ref)
}

func TestRestore_ReplaceLatestInChunks(t *testing.T) {
	store := newStore(t)
	takeSnapshot(t, store, schema.Jobs(), sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(9), "Old"))
	time.Sleep(2 * time.Millisecond)
	latest := takeSnapshot(t, store, schema.Jobs(), jobRows())

	c, mock, _ := newCoordinator(t, store, WithChunkSize(2))

	expectParentReplace(mock, "jobs", 0)
	mock.ExpectExec("INSERT INTO `jobs`").WithArgs(int64(1), "Analyst", int64(2), "Engineer").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO `jobs`").WithArgs(int64(3), "Manager").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectDependentCheck(mock, "jobs", "job_id", 0)
	mock.ExpectCommit()
	expectChecksBackOn(mock)

	res, err := c.Restore(context.Background(), Plan{Table: schema.TableJobs, SnapshotRef: snapshot.LatestRef, Policy: "Replace"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, latest, res.Ref)
	assert.Equal(t, PolicyReplace, res.Policy)
	assert.Equal(t, int64(3), res.Applied)
	assert.Equal(t, 2, res.Chunks)
}

func TestRestore_ReplaceEmptySnapshot(t *testing.T) {
	store := newStore(t)
	ref := takeSnapshot(t, store, schema.Departments(), sqlmock.NewRows([]string{"id", "name"}))
	c, mock, _ := newCoordinator(t, store)

	expectParentReplace(mock, "departments", 4)
	expectDependentCheck(mock, "departments", "department_id", 0)
	mock.ExpectCommit()
	expectChecksBackOn(mock)

	res, err := c.Restore(context.Background(), Plan{Table: schema.TableDepartments, SnapshotRef: ref, Policy: PolicyReplace})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(0), res.Applied)
	assert.Equal(t, StateCommitted, res.State)
}

func TestRestore_ChunkFailureRollsBackEverything(t *testing.T) {
	store := newStore(t)
	ref := takeSnapshot(t, store, schema.Jobs(), jobRows())
	c, mock, _ := newCoordinator(t, store, WithChunkSize(2))

	expectParentReplace(mock, "jobs", 3)
	mock.ExpectExec("INSERT INTO `jobs`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO `jobs`").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '3' for key 'PRIMARY'"})
	mock.ExpectRollback()
	expectChecksBackOn(mock)

	res, err := c.Restore(context.Background(), Plan{Table: schema.TableJobs, SnapshotRef: ref, Policy: PolicyReplace})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.True(t, errors.IsType(err, errors.ErrorTypeConstraint), "got %v", err)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, 1, err.(*errors.AppError).Context["chunk"])
}

func TestRestore_ReplaceParentKeepsDependentsIntact(t *testing.T) {
	store := newStore(t)
	// job 3 is gone from the snapshot but two employees still hold it
	ref := takeSnapshot(t, store, schema.Jobs(), sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "Analyst").
		AddRow(int64(2), "Engineer"))
	c, mock, _ := newCoordinator(t, store)

	expectParentReplace(mock, "jobs", 3)
	mock.ExpectExec("INSERT INTO `jobs`").WithArgs(int64(1), "Analyst", int64(2), "Engineer").
		WillReturnResult(sqlmock.NewResult(0, 2))
	expectDependentCheck(mock, "jobs", "job_id", 2)
	mock.ExpectRollback()
	expectChecksBackOn(mock)

	res, err := c.Restore(context.Background(), Plan{Table: schema.TableJobs, SnapshotRef: ref, Policy: PolicyReplace})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.True(t, errors.IsType(err, errors.ErrorTypeConstraint), "got %v", err)
	assert.Contains(t, err.Error(), "2 rows of hired_employees")
	appErr := err.(*errors.AppError)
	assert.Equal(t, schema.TableHiredEmployees, appErr.Context["dependent_table"])
	assert.Equal(t, int64(2), appErr.Context["orphans"])
	assert.Equal(t, StateRolledBack, res.State)
}

func TestRestore_ReplaceParentWhileReferenced(t *testing.T) {
	store := newStore(t)
	ref := takeSnapshot(t, store, schema.Departments(), sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "Supply Chain").
		AddRow(int64(2), "Maintenance"))
	c, mock, _ := newCoordinator(t, store)

	// with checks on the DELETE would fail with 1451 while employees point at the rows
	expectParentReplace(mock, "departments", 2)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `departments` (`id`, `name`) VALUES (?, ?), (?, ?)")).
		WithArgs(int64(1), "Supply Chain", int64(2), "Maintenance").
		WillReturnResult(sqlmock.NewResult(0, 2))
	expectDependentCheck(mock, "departments", "department_id", 0)
	mock.ExpectCommit()
	expectChecksBackOn(mock)

	res, err := c.Restore(context.Background(), Plan{Table: schema.TableDepartments, SnapshotRef: ref, Policy: PolicyReplace})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, int64(2), res.Applied)
}

func TestRestore_ConnectionDiscardedWhenChecksStayOff(t *testing.T) {
	store := newStore(t)
	ref := takeSnapshot(t, store, schema.Jobs(), jobRows())
	c, mock, _ := newCoordinator(t, store)

	expectParentReplace(mock, "jobs", 0)
	mock.ExpectExec("INSERT INTO `jobs`").WillReturnResult(sqlmock.NewResult(0, 3))
	expectDependentCheck(mock, "jobs", "job_id", 0)
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("SET FOREIGN_KEY_CHECKS = 1")).WillReturnError(mysql.ErrInvalidConn)
	mock.ExpectClose()

	res, err := c.Restore(context.Background(), Plan{Table: schema.TableJobs, SnapshotRef: ref, Policy: PolicyReplace})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.NoError(t, mock.ExpectationsWereMet(), "the session is closed instead of pooled")
}

func TestRestore_ReplaceTenThousandRows(t *testing.T) {
	const total = 10000
	base := time.Date(2021, 1, 1, 8, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "name", "datetime", "department_id", "job_id"})
	args := make([][]driver.Value, 0, total)
	for i := 1; i <= total; i++ {
		row := []driver.Value{
			int64(i),
			fmt.Sprintf("Employee %05d", i),
			base.Add(time.Duration(i) * time.Minute),
			int64(i%12 + 1),
			int64(i%180 + 1),
		}
		rows.AddRow(row...)
		args = append(args, row)
	}

	store := newStore(t)
	ref := takeSnapshot(t, store, schema.HiredEmployees(), rows)
	c, mock, _ := newCoordinator(t, store)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `hired_employees`")).WillReturnResult(sqlmock.NewResult(0, 0))
	for chunk := 0; chunk < total/1000; chunk++ {
		var want []driver.Value
		for _, row := range args[chunk*1000 : (chunk+1)*1000] {
			want = append(want, row...)
		}
		mock.ExpectExec("INSERT INTO `hired_employees`").WithArgs(want...).
			WillReturnResult(sqlmock.NewResult(0, 1000))
	}
	mock.ExpectCommit()

	res, err := c.Restore(context.Background(), Plan{Table: schema.TableHiredEmployees, SnapshotRef: ref, Policy: PolicyReplace})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, int64(total), res.Applied)
	assert.Equal(t, 10, res.Chunks)
}

func TestRestore_Merge(t *testing.T) {
	store := newStore(t)
	ref := takeSnapshot(t, store, schema.Jobs(), jobRows())
	c, mock, _ := newCoordinator(t, store)

	upsert := regexp.QuoteMeta("INSERT INTO `jobs` (`id`, `name`) VALUES (?, ?), (?, ?), (?, ?) ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)")
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(upsert).
			WithArgs(int64(1), "Analyst", int64(2), "Engineer", int64(3), "Manager").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
	}

	plan := Plan{Table: schema.TableJobs, SnapshotRef: ref, Policy: PolicyMerge, KeyColumns: []string{"id"}, Revalidate: true}
	first, err := c.Restore(context.Background(), plan)
	require.NoError(t, err)
	second, err := c.Restore(context.Background(), plan)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "merge never deletes and repeats the same statements")

	assert.Equal(t, int64(3), first.Applied)
	assert.Equal(t, first.Applied, second.Applied)
}

func TestRestore_MergeKeyChecks(t *testing.T) {
	store := newStore(t)
	ref := takeSnapshot(t, store, schema.Jobs(), jobRows())
	c, mock, _ := newCoordinator(t, store)

	tests := []struct {
		name string
		keys []string
	}{
		{"missing keys", nil},
		{"unknown column", []string{"code"}},
		{"not the primary key", []string{"name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Restore(context.Background(), Plan{
				Table: schema.TableJobs, SnapshotRef: ref, Policy: PolicyMerge, KeyColumns: tt.keys,
			})
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), "got %v", err)
			assert.Equal(t, StatePending, res.State)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_RejectsBadPlans(t *testing.T) {
	store := newStore(t)
	c, mock, _ := newCoordinator(t, store)

	_, err := c.Restore(context.Background(), Plan{Table: schema.TableJobs, Policy: "overwrite"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = c.Restore(context.Background(), Plan{Table: "salaries", Policy: PolicyReplace})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = c.Restore(context.Background(), Plan{Table: schema.TableJobs, SnapshotRef: snapshot.LatestRef, Policy: PolicyReplace})
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorageRead), "no snapshots yet")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_SchemaDriftLeavesTableUntouched(t *testing.T) {
	store := newStore(t)
	widened := schema.NewTableSchema(schema.TableJobs,
		schema.Column{Name: "id", Type: schema.TypeInt, Key: true},
		schema.Column{Name: "name", Type: schema.TypeString},
		schema.Column{Name: "level", Type: schema.TypeInt, Nullable: true},
	)
	ref := takeSnapshot(t, store, widened,
		sqlmock.NewRows([]string{"id", "name", "level"}).AddRow(int64(1), "Analyst", int64(2)))

	c, mock, _ := newCoordinator(t, store)

	res, err := c.Restore(context.Background(), Plan{Table: schema.TableJobs, SnapshotRef: ref, Policy: PolicyReplace})
	require.True(t, errors.IsType(err, errors.ErrorTypeSchemaDrift), "got %v", err)
	assert.Equal(t, []string{"level"}, err.(*errors.AppError).Context["columns"])
	assert.Equal(t, StateRolledBack, res.State)
	assert.NoError(t, mock.ExpectationsWereMet(), "no statement reached the store")
}

func TestRestore_LiveSchemaDrift(t *testing.T) {
	store := newStore(t)
	ref := takeSnapshot(t, store, schema.Jobs(), jobRows())
	c, mock, _ := newCoordinator(t, store, WithInspector(schema.NewInspector()))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").WithArgs(schema.TableJobs).
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_KEY"}).
			AddRow("id", "int", "int", "NO", "PRI").
			AddRow("name", "varchar", "varchar(255)", "YES", ""))

	_, err := c.Restore(context.Background(), Plan{Table: schema.TableJobs, SnapshotRef: ref, Policy: PolicyReplace, CheckLive: true})
	require.True(t, errors.IsType(err, errors.ErrorTypeSchemaDrift), "got %v", err)
	assert.Equal(t, []string{"name"}, err.(*errors.AppError).Context["columns"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_LiveSchemaMatches(t *testing.T) {
	store := newStore(t)
	ref := takeSnapshot(t, store, schema.Jobs(), jobRows())
	c, mock, _ := newCoordinator(t, store, WithInspector(schema.NewInspector()))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").WithArgs(schema.TableJobs).
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_KEY"}).
			AddRow("id", "int", "int", "NO", "PRI").
			AddRow("name", "varchar", "varchar(255)", "NO", ""))
	expectParentReplace(mock, "jobs", 0)
	mock.ExpectExec("INSERT INTO `jobs`").WillReturnResult(sqlmock.NewResult(0, 3))
	expectDependentCheck(mock, "jobs", "job_id", 0)
	mock.ExpectCommit()
	expectChecksBackOn(mock)

	res, err := c.Restore(context.Background(), Plan{Table: schema.TableJobs, SnapshotRef: ref, Policy: PolicyReplace, CheckLive: true})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// cancelAfter cancels the restore context once n chunks were written
type cancelAfter struct {
	inner  chunkWriter
	n      int
	cancel context.CancelFunc
	calls  int
}

func (c *cancelAfter) InsertTx(ctx context.Context, tx ingest.Execer, batch *validator.ValidatedBatch) (int64, error) {
	n, err := c.inner.InsertTx(ctx, tx, batch)
	c.calls++
	if c.calls == c.n {
		c.cancel()
	}
	return n, err
}

func (c *cancelAfter) UpsertTx(ctx context.Context, tx ingest.Execer, batch *validator.ValidatedBatch) (int64, error) {
	return c.inner.UpsertTx(ctx, tx, batch)
}

func TestRestore_CanceledBetweenChunks(t *testing.T) {
	store := newStore(t)
	ref := takeSnapshot(t, store, schema.Jobs(), jobRows())
	c, mock, _ := newCoordinator(t, store, WithChunkSize(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writer := &cancelAfter{inner: c.ingestor, n: 1, cancel: cancel}
	c.ingestor = writer

	// the cancel may roll back from database/sql before the reset runs or after it
	mock.MatchExpectationsInOrder(false)
	expectParentReplace(mock, "jobs", 3)
	mock.ExpectExec("INSERT INTO `jobs`").WithArgs(int64(1), "Analyst").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()
	expectChecksBackOn(mock)

	res, err := c.Restore(ctx, Plan{Table: schema.TableJobs, SnapshotRef: ref, Policy: PolicyReplace})
	assert.True(t, errors.IsType(err, errors.ErrorTypeCancellation), "got %v", err)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, 1, writer.calls, "no chunk starts after cancel")
	assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
}

func TestRestore_WaitsForTableLock(t *testing.T) {
	store := newStore(t)
	ref := takeSnapshot(t, store, schema.Jobs(), jobRows())

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	locks := lock.NewLocal()
	held, err := locks.Acquire(context.Background(), schema.TableJobs)
	require.NoError(t, err)
	defer held.Release()

	c := NewCoordinator(db, schema.DefaultCatalog(), snapshot.NewCatalog(store), snapshot.NewReader(store, nil), locks, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.Restore(ctx, Plan{Table: schema.TableJobs, SnapshotRef: ref, Policy: PolicyReplace})
	assert.True(t, errors.IsType(err, errors.ErrorTypeCancellation), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore_LatestResolvedOnceLockIsHeld(t *testing.T) {
	store := newStore(t)
	takeSnapshot(t, store, schema.Jobs(), sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(9), "Old"))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	locks := lock.NewLocal()
	held, err := locks.Acquire(context.Background(), schema.TableJobs)
	require.NoError(t, err)

	c := NewCoordinator(db, schema.DefaultCatalog(), snapshot.NewCatalog(store), snapshot.NewReader(store, nil), locks, nil)

	expectParentReplace(mock, "jobs", 1)
	mock.ExpectExec("INSERT INTO `jobs`").WithArgs(int64(1), "Analyst", int64(2), "Engineer", int64(3), "Manager").
		WillReturnResult(sqlmock.NewResult(0, 3))
	expectDependentCheck(mock, "jobs", "job_id", 0)
	mock.ExpectCommit()
	expectChecksBackOn(mock)

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := c.Restore(context.Background(), Plan{Table: schema.TableJobs, SnapshotRef: snapshot.LatestRef, Policy: PolicyReplace})
		done <- outcome{res, err}
	}()

	// the snapshot holding the lock finishes while the restore waits
	time.Sleep(20 * time.Millisecond)
	latest := takeSnapshot(t, store, schema.Jobs(), jobRows())
	held.Release()

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.Equal(t, latest, out.res.Ref)
		assert.Equal(t, int64(3), out.res.Applied)
	case <-time.After(5 * time.Second):
		t.Fatal("restore did not finish after the lock was released")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy(" MERGE ")
	require.NoError(t, err)
	assert.Equal(t, PolicyMerge, p)

	_, err = ParsePolicy("truncate")
	assert.Error(t, err)

	assert.True(t, StateCommitted.Terminal())
	assert.True(t, StateRolledBack.Terminal())
	assert.False(t, StateApplying.Terminal())
}
