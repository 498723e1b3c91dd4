package snapshot

import (
	"context"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/lock"
	"hiring-data-sync/internal/schema"
	"hiring-data-sync/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var snapshotTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func newTestStore(t *testing.T) (*storage.LocalStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(&storage.LocalConfig{BasePath: dir})
	require.NoError(t, err)
	return store, dir
}

func newTestWriter(t *testing.T, store storage.Store, options Options) (*Writer, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	w := NewWriter(db, store, lock.NewLocal(), options, nil)
	w.now = func() time.Time { return snapshotTime }
	return w, mock, db
}

func employeeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "datetime", "department_id", "job_id"}).
		AddRow(int64(1), "Harold", time.Date(2021, 11, 7, 2, 48, 42, 0, time.UTC), int64(2), int64(96)).
		AddRow(int64(2), "Ty", "2021-07-27T16:02:08Z", int64(1), int64(4)).
		AddRow(int64(3), []byte("Lyman"), time.Date(2021, 9, 1, 23, 27, 38, 0, time.UTC), int64(3), int64(1))
}

var employeeQuery = regexp.QuoteMeta(
	"SELECT `id`, `name`, `datetime`, `department_id`, `job_id` FROM `hired_employees` ORDER BY `id`")

func expectEmployeeSnapshot(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(employeeQuery).WillReturnRows(employeeRows())
	mock.ExpectCommit()
}

func readAll(t *testing.T, r *Reader, ref string, expected *schema.TableSchema) []schema.Record {
	t.Helper()
	it, err := r.Open(context.Background(), ref, expected)
	require.NoError(t, err)
	defer it.Close()

	var out []schema.Record
	for it.Next() {
		out = append(out, it.Record())
	}
	require.NoError(t, it.Err())
	return out
}

func TestWriter_SnapshotRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		compression CompressionConfig
	}{
		{"none", CompressionConfig{}},
		{"gzip", CompressionConfig{Algorithm: CompressionGzip, Level: 9}},
		{"lz4", CompressionConfig{Algorithm: CompressionLZ4}},
		{"zstd", CompressionConfig{Algorithm: CompressionZstd, Level: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			w, mock, _ := newTestWriter(t, store, Options{Compression: tt.compression})
			expectEmployeeSnapshot(mock)

			snap, err := w.Snapshot(context.Background(), schema.HiredEmployees())
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())

			assert.Equal(t, Key(schema.TableHiredEmployees, snapshotTime), snap.Ref)
			assert.Equal(t, int64(3), snap.Records)
			assert.Equal(t, schema.HiredEmployees().Fingerprint(), snap.Fingerprint)
			assert.True(t, snap.Bytes > 0)

			records := readAll(t, NewReader(store, nil), snap.Ref, schema.HiredEmployees())
			require.Len(t, records, 3)
			assert.Equal(t, int64(1), records[0]["id"].Int())
			assert.Equal(t, "Harold", records[0]["name"].Str())
			assert.True(t, records[1]["datetime"].Time().Equal(time.Date(2021, 7, 27, 16, 2, 8, 0, time.UTC)))
			assert.Equal(t, "Lyman", records[2]["name"].Str())
			assert.Equal(t, int64(1), records[2]["job_id"].Int())

			header, err := NewReader(store, nil).Header(context.Background(), snap.Ref)
			require.NoError(t, err)
			assert.Equal(t, tt.compression.algorithm(), header.Compression)
		})
	}
}

func TestWriter_EmptyTable(t *testing.T) {
	store, _ := newTestStore(t)
	w, mock, _ := newTestWriter(t, store, Options{})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `name` FROM `jobs` ORDER BY `id`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	mock.ExpectCommit()

	snap, err := w.Snapshot(context.Background(), schema.Jobs())
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Records)

	assert.Empty(t, readAll(t, NewReader(store, nil), snap.Ref, schema.Jobs()))
}

func TestWriter_Encrypted(t *testing.T) {
	tests := []struct {
		name   string
		config *EncryptionConfig
		setup  func(t *testing.T)
	}{
		{
			name:   "env key",
			config: &EncryptionConfig{Enabled: true, KeySource: KeySourceEnv, KeyEnvVar: "SNAPSHOT_TEST_KEY"},
			setup: func(t *testing.T) {
				t.Setenv("SNAPSHOT_TEST_KEY", hex.EncodeToString(make([]byte, 32)))
			},
		},
		{
			name:   "passphrase",
			config: &EncryptionConfig{Enabled: true, KeySource: KeySourcePassphrase, KeyEnvVar: "SNAPSHOT_TEST_PASS"},
			setup: func(t *testing.T) {
				t.Setenv("SNAPSHOT_TEST_PASS", "correct horse battery staple")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t)
			store, _ := newTestStore(t)
			w, mock, _ := newTestWriter(t, store, Options{
				Compression: CompressionConfig{Algorithm: CompressionGzip},
				Encryption:  tt.config,
			})
			expectEmployeeSnapshot(mock)

			snap, err := w.Snapshot(context.Background(), schema.HiredEmployees())
			require.NoError(t, err)

			records := readAll(t, NewReader(store, tt.config), snap.Ref, schema.HiredEmployees())
			assert.Len(t, records, 3)

			_, err = NewReader(store, nil).Open(context.Background(), snap.Ref, schema.HiredEmployees())
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration), "no key configured")
		})
	}
}

func TestWriter_WrongPassphrase(t *testing.T) {
	config := &EncryptionConfig{Enabled: true, KeySource: KeySourcePassphrase, KeyEnvVar: "SNAPSHOT_TEST_PASS"}
	t.Setenv("SNAPSHOT_TEST_PASS", "first")

	store, _ := newTestStore(t)
	w, mock, _ := newTestWriter(t, store, Options{Encryption: config})
	expectEmployeeSnapshot(mock)

	snap, err := w.Snapshot(context.Background(), schema.HiredEmployees())
	require.NoError(t, err)

	t.Setenv("SNAPSHOT_TEST_PASS", "second")
	it, err := NewReader(store, config).Open(context.Background(), snap.Ref, schema.HiredEmployees())
	if err == nil {
		defer it.Close()
		for it.Next() {
		}
		err = it.Err()
	}
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorageRead), "got %v", err)
}

func TestWriter_UnencodableRowPublishesNothing(t *testing.T) {
	store, _ := newTestStore(t)
	w, mock, _ := newTestWriter(t, store, Options{})

	mock.ExpectBegin()
	mock.ExpectQuery(employeeQuery).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "datetime", "department_id", "job_id"}).
			AddRow(int64(1), "Harold", time.Now(), int64(2), int64(96)).
			AddRow(int64(2), "Ty", "not a timestamp", int64(1), int64(4)))
	mock.ExpectRollback()

	_, err := w.Snapshot(context.Background(), schema.HiredEmployees())
	assert.True(t, errors.IsType(err, errors.ErrorTypeSerialization), "got %v", err)

	objects, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestWriter_NullInRequiredColumn(t *testing.T) {
	store, _ := newTestStore(t)
	w, mock, _ := newTestWriter(t, store, Options{})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `name` FROM `jobs` ORDER BY `id`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), nil))
	mock.ExpectRollback()

	_, err := w.Snapshot(context.Background(), schema.Jobs())
	assert.True(t, errors.IsType(err, errors.ErrorTypeSerialization), "got %v", err)

	entries, err := NewCatalog(store).List(context.Background(), schema.TableJobs)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriter_QueryFailure(t *testing.T) {
	store, _ := newTestStore(t)
	w, mock, _ := newTestWriter(t, store, Options{})

	mock.ExpectBegin()
	mock.ExpectQuery(employeeQuery).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := w.Snapshot(context.Background(), schema.HiredEmployees())
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorageRead), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())

	objects, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestWriter_CanceledBeforeRows(t *testing.T) {
	store, _ := newTestStore(t)
	w, _, _ := newTestWriter(t, store, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Snapshot(ctx, schema.HiredEmployees())
	assert.Error(t, err)

	objects, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestWriter_TableLocked(t *testing.T) {
	store, _ := newTestStore(t)
	locks := lock.NewLocal()
	held, err := locks.Acquire(context.Background(), schema.TableJobs)
	require.NoError(t, err)
	defer held.Release()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = NewWriter(db, store, locks, Options{}, nil).Snapshot(ctx, schema.Jobs())
	assert.True(t, errors.IsType(err, errors.ErrorTypeCancellation), "got %v", err)
}

func TestReader_SchemaDrift(t *testing.T) {
	store, _ := newTestStore(t)
	w, mock, _ := newTestWriter(t, store, Options{})
	expectEmployeeSnapshot(mock)

	snap, err := w.Snapshot(context.Background(), schema.HiredEmployees())
	require.NoError(t, err)

	expected := schema.HiredEmployees()
	expected.Columns = append(expected.Columns, schema.Column{Name: "salary", Type: schema.TypeFloat, Nullable: true})
	expected.Columns[1].Nullable = true

	_, err = NewReader(store, nil).Open(context.Background(), snap.Ref, expected)
	require.True(t, errors.IsType(err, errors.ErrorTypeSchemaDrift), "got %v", err)

	appErr := err.(*errors.AppError)
	assert.ElementsMatch(t, []string{"name", "salary"}, appErr.Context["columns"])
	assert.Equal(t, snap.Ref, appErr.Context["ref"])
}

func TestReader_ReopenYieldsSameSequence(t *testing.T) {
	store, _ := newTestStore(t)
	w, mock, _ := newTestWriter(t, store, Options{Compression: CompressionConfig{Algorithm: CompressionZstd}})
	expectEmployeeSnapshot(mock)

	snap, err := w.Snapshot(context.Background(), schema.HiredEmployees())
	require.NoError(t, err)

	r := NewReader(store, nil)
	first := readAll(t, r, snap.Ref, schema.HiredEmployees())
	second := readAll(t, r, snap.Ref, schema.HiredEmployees())
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Equal(second[i]), "record %d differs", i)
	}
}

func TestReader_DamagedSnapshot(t *testing.T) {
	store, dir := newTestStore(t)
	w, mock, _ := newTestWriter(t, store, Options{})
	expectEmployeeSnapshot(mock)

	snap, err := w.Snapshot(context.Background(), schema.HiredEmployees())
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(snap.Ref)))
	require.NoError(t, err)

	tests := []struct {
		name  string
		bytes []byte
	}{
		{"truncated body", raw[:len(raw)-4]},
		{"missing end frame", raw[:len(raw)-10]},
		{"flipped byte", func() []byte {
			b := append([]byte(nil), raw...)
			b[len(b)-20] ^= 0x01
			return b
		}()},
		{"trailing garbage", append(append([]byte(nil), raw...), 0, 0, 0, 9, 1, 2, 3, 4, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "damaged/" + tt.name
			require.NoError(t, os.MkdirAll(filepath.Join(dir, "damaged"), 0750))
			require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.FromSlash(key)), tt.bytes, 0640))

			it, err := NewReader(store, nil).Open(context.Background(), key, schema.HiredEmployees())
			require.NoError(t, err, "header is intact")
			defer it.Close()

			for it.Next() {
			}
			assert.True(t, errors.IsType(it.Err(), errors.ErrorTypeStorageRead), "got %v", it.Err())
		})
	}
}

func TestReader_MissingSnapshot(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := NewReader(store, nil).Open(context.Background(), "jobs/none.snap", schema.Jobs())
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorageRead), "got %v", err)
}

func TestCatalog_ListAndResolve(t *testing.T) {
	store, dir := newTestStore(t)
	w, mock, _ := newTestWriter(t, store, Options{})

	times := []time.Time{
		snapshotTime,
		snapshotTime.Add(time.Hour),
		snapshotTime.Add(-time.Hour),
	}
	for _, at := range times {
		at := at
		w.now = func() time.Time { return at }
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `name` FROM `jobs` ORDER BY `id`")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Analyst"))
		mock.ExpectCommit()
		_, err := w.Snapshot(context.Background(), schema.Jobs())
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs", "notes.txt"), []byte("x"), 0640))

	catalog := NewCatalog(store)
	entries, err := catalog.List(context.Background(), schema.TableJobs)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].CreatedAt.Equal(times[1]))
	assert.True(t, entries[2].CreatedAt.Equal(times[2]))

	ref, err := catalog.Resolve(context.Background(), schema.TableJobs, LatestRef)
	require.NoError(t, err)
	assert.Equal(t, Key(schema.TableJobs, times[1]), ref)

	ref, err = catalog.Resolve(context.Background(), schema.TableJobs, "/"+Key(schema.TableJobs, times[0]))
	require.NoError(t, err)
	assert.Equal(t, Key(schema.TableJobs, times[0]), ref)

	_, err = catalog.Latest(context.Background(), schema.TableDepartments)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorageRead))
}
