// Package application wires configuration, the store connection and the
// sync components into the operations the commands run.
package application

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"hiring-data-sync/internal/config"
	"hiring-data-sync/internal/database"
	appErrors "hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/ingest"
	"hiring-data-sync/internal/lock"
	"hiring-data-sync/internal/logging"
	"hiring-data-sync/internal/migration"
	"hiring-data-sync/internal/restore"
	"hiring-data-sync/internal/schema"
	"hiring-data-sync/internal/snapshot"
	"hiring-data-sync/internal/storage"
	"hiring-data-sync/internal/validator"
)

// Application owns the connection and every component built on it
type Application struct {
	config    *config.Config
	db        *sql.DB
	ownsDB    bool
	logger    *logging.Logger
	schemas   *schema.Catalog
	inspector *schema.Inspector
	validator *validator.Validator
	retry     *appErrors.RetryHandler

	snapshotStore storage.Store
	locks         lock.Locker
	ingestor      *ingest.Ingestor
	writer        *snapshot.Writer
	reader        *snapshot.Reader
	catalog       *snapshot.Catalog
	coordinator   *restore.Coordinator

	sourceOnce  sync.Once
	sourceStore storage.Store
	sourceErr   error
}

// NewApplication finalizes cfg, builds the logger and connects to the store
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging.Logger())
	if err != nil {
		return nil, appErrors.NewConfigurationError("failed to create logger", err)
	}

	service := database.NewServiceWithLogger(logger)
	db, err := service.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	app, err := NewWithDB(ctx, cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	app.ownsDB = true
	return app, nil
}

// NewWithDB builds the application around an open connection. cfg must
// already be finalized. The caller keeps ownership of db.
func NewWithDB(ctx context.Context, cfg *config.Config, db *sql.DB, logger *logging.Logger) (*Application, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	store, err := storage.NewStore(ctx, &cfg.Snapshot.Storage)
	if err != nil {
		return nil, appErrors.WrapError(err, "failed to open snapshot storage")
	}

	app := &Application{
		config:        cfg,
		db:            db,
		logger:        logger,
		schemas:       schema.DefaultCatalog(),
		inspector:     schema.NewInspectorWithTimeout(cfg.Database.Timeout),
		validator:     validator.NewValidator(),
		retry:         appErrors.NewDefaultRetryHandler(),
		snapshotStore: store,
		locks:         newLocker(db, cfg.Lock, logger),
		ingestor:      ingest.NewIngestor(db, logger),
	}

	options := cfg.Snapshot.Options()
	app.writer = snapshot.NewWriter(db, store, app.locks, options, logger)
	app.reader = snapshot.NewReader(store, options.Encryption)
	app.catalog = snapshot.NewCatalog(store)
	app.coordinator = restore.NewCoordinator(db, app.schemas, app.catalog, app.reader, app.locks, logger,
		restore.WithChunkSize(cfg.Snapshot.ChunkSize),
		restore.WithInspector(app.inspector))

	return app, nil
}

// newLocker always serializes tables in-process and, when configured, across
// processes through MySQL advisory locks
func newLocker(db *sql.DB, cfg config.LockConfig, logger *logging.Logger) lock.Locker {
	local := lock.NewLocal()
	if !cfg.Advisory {
		return local
	}
	return lock.Chain{local, lock.NewMySQL(db, cfg.Prefix, cfg.Timeout, logger)}
}

// Logger returns the application logger
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// Config returns the finalized configuration
func (app *Application) Config() *config.Config {
	return app.config
}

// Schemas returns the table catalog
func (app *Application) Schemas() *schema.Catalog {
	return app.schemas
}

// Ingest decodes a JSON request and commits it in one transaction
func (app *Application) Ingest(ctx context.Context, data []byte) (*ingest.RequestResult, error) {
	req, err := ingest.DecodeRequest(data)
	if err != nil {
		return nil, err
	}

	done := app.logger.LogOperationStart("ingest", map[string]interface{}{"records": req.Total()})
	res, err := app.ingestor.IngestRequest(ctx, app.schemas, app.validator, req)
	done(err)
	return res, err
}

// MigrateOptions override the configured loader settings for one run
type MigrateOptions struct {
	// Workers overrides the configured worker count when positive
	Workers int
	OnBatch func(migration.BatchReport)
}

// Migrate loads one table from source. An empty source uses the file
// configured for the table.
func (app *Application) Migrate(ctx context.Context, table, source string, opts MigrateOptions) (*migration.Result, error) {
	ts, err := app.schemas.Lookup(table)
	if err != nil {
		return nil, appErrors.NewAppError(appErrors.ErrorTypeValidation, fmt.Sprintf("unknown table %q", table), err)
	}
	if source == "" {
		source = app.config.Migration.Files[table]
	}
	if source == "" {
		return nil, appErrors.NewConfigurationError(fmt.Sprintf("no source file configured for %s", table), nil)
	}

	loader, err := app.loader(ctx, opts)
	if err != nil {
		return nil, err
	}
	return loader.Migrate(ctx, source, ts)
}

// MigrateAll loads every configured source in dependency order
func (app *Application) MigrateAll(ctx context.Context, opts MigrateOptions) ([]*migration.Result, error) {
	loader, err := app.loader(ctx, opts)
	if err != nil {
		return nil, err
	}
	return loader.MigrateAll(ctx, app.schemas, app.config.Migration.Files)
}

func (app *Application) loader(ctx context.Context, opts MigrateOptions) (*migration.Loader, error) {
	store, err := app.openSource(ctx)
	if err != nil {
		return nil, err
	}

	options := migration.Options{
		Workers:   app.config.Migration.Workers,
		BatchSize: app.config.Migration.BatchSize,
		CSV:       app.config.Migration.CSV,
		OnBatch:   opts.OnBatch,
	}
	if opts.Workers > 0 {
		options.Workers = opts.Workers
	}
	source := migration.NewSource(store, app.retry, app.logger)
	return migration.NewLoader(app.ingestor, source, options, app.logger), nil
}

// openSource opens the migration source store on first use
func (app *Application) openSource(ctx context.Context) (storage.Store, error) {
	app.sourceOnce.Do(func() {
		store, err := storage.NewStore(ctx, &app.config.Migration.Source)
		if err != nil {
			app.sourceErr = appErrors.WrapError(err, "failed to open migration source storage")
			return
		}
		app.sourceStore = store
	})
	return app.sourceStore, app.sourceErr
}

// Snapshot writes a snapshot of one table
func (app *Application) Snapshot(ctx context.Context, table string) (*snapshot.Snapshot, error) {
	ts, err := app.schemas.Lookup(table)
	if err != nil {
		return nil, appErrors.NewAppError(appErrors.ErrorTypeValidation, fmt.Sprintf("unknown table %q", table), err)
	}
	return app.writer.Snapshot(ctx, ts)
}

// SnapshotAll snapshots every table in dependency order and stops at the
// first failure
func (app *Application) SnapshotAll(ctx context.Context) ([]*snapshot.Snapshot, error) {
	tables, err := app.schemas.Ordered()
	if err != nil {
		return nil, appErrors.NewConfigurationError("cannot order tables", err)
	}

	var snaps []*snapshot.Snapshot
	for _, ts := range tables {
		snap, err := app.writer.Snapshot(ctx, ts)
		if err != nil {
			return snaps, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// ListSnapshots lists the snapshots of table, newest first. An empty table
// lists every table.
func (app *Application) ListSnapshots(ctx context.Context, table string) ([]snapshot.Entry, error) {
	if table == "" {
		var all []snapshot.Entry
		for _, name := range app.schemas.Names() {
			entries, err := app.catalog.List(ctx, name)
			if err != nil {
				return nil, err
			}
			all = append(all, entries...)
		}
		return all, nil
	}

	if _, err := app.schemas.Lookup(table); err != nil {
		return nil, appErrors.NewAppError(appErrors.ErrorTypeValidation, fmt.Sprintf("unknown table %q", table), err)
	}
	return app.catalog.List(ctx, table)
}

// SnapshotHeader resolves ref for table and reads the snapshot header
func (app *Application) SnapshotHeader(ctx context.Context, table, ref string) (string, *snapshot.Header, error) {
	key, err := app.catalog.Resolve(ctx, table, ref)
	if err != nil {
		return "", nil, err
	}
	header, err := app.reader.Header(ctx, key)
	if err != nil {
		return key, nil, err
	}
	return key, header, nil
}

// Restore applies a snapshot to its table
func (app *Application) Restore(ctx context.Context, plan restore.Plan) (*restore.Result, error) {
	return app.coordinator.Restore(ctx, plan)
}

// TableCheck compares one live table with the definition the engine expects
type TableCheck struct {
	Table       string   `json:"table" yaml:"table"`
	Matches     bool     `json:"matches" yaml:"matches"`
	Differences []string `json:"differences,omitempty" yaml:"differences,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// CheckReport describes the store the application is connected to
type CheckReport struct {
	Host          string       `json:"host" yaml:"host"`
	Database      string       `json:"database" yaml:"database"`
	ServerVersion string       `json:"server_version" yaml:"server_version"`
	Tables        []TableCheck `json:"tables" yaml:"tables"`
}

// Drifted returns the tables that are missing or differ from their definition
func (r *CheckReport) Drifted() []string {
	var names []string
	for _, t := range r.Tables {
		if !t.Matches {
			names = append(names, t.Table)
		}
	}
	return names
}

// Check pings the store, reads the server version and compares every
// catalog table with its live definition. A table that cannot be described
// is reported in the result rather than failing the check.
func (app *Application) Check(ctx context.Context) (report *CheckReport, err error) {
	done := app.logger.LogOperationStart("check", map[string]interface{}{
		"host":     app.config.Database.Host,
		"database": app.config.Database.Database,
	})
	defer func() { done(err) }()

	service := database.NewServiceWithLogger(app.logger)
	if err = service.TestConnection(ctx, app.db); err != nil {
		return nil, err
	}
	version, err := service.GetVersion(ctx, app.db)
	if err != nil {
		return nil, err
	}

	ordered, err := app.schemas.Ordered()
	if err != nil {
		return nil, appErrors.NewConfigurationError("invalid table catalog", err)
	}

	report = &CheckReport{
		Host:          app.config.Database.Host,
		Database:      app.config.Database.Database,
		ServerVersion: version,
	}
	for _, ts := range ordered {
		tc := TableCheck{Table: ts.Name}
		live, derr := app.inspector.Describe(ctx, app.db, ts.Name)
		if derr != nil {
			tc.Error = derr.Error()
		} else {
			tc.Matches = live.Fingerprint() == ts.Fingerprint()
			tc.Differences = ts.Diff(live)
		}
		report.Tables = append(report.Tables, tc)
	}
	return report, nil
}

// Close releases the stores and, when the application opened it, the connection
func (app *Application) Close() error {
	var errs []error
	if app.sourceStore != nil {
		if err := app.sourceStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if app.snapshotStore != nil {
		if err := app.snapshotStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if app.ownsDB && app.db != nil {
		if err := app.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close failed: %v", errs)
	}
	return nil
}
