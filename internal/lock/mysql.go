package lock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/logging"
)

// maxLockName is the MySQL limit on user lock names
const maxLockName = 64

// MySQL holds a server-side advisory lock per table so that separate
// processes sharing the store do not snapshot or restore the same table at once.
// Each lease pins one pooled connection, since GET_LOCK is owned by the session.
type MySQL struct {
	db      *sql.DB
	prefix  string
	timeout time.Duration
	logger  *logging.Logger
}

// NewMySQL creates an advisory locker. timeout bounds the server-side wait.
func NewMySQL(db *sql.DB, prefix string, timeout time.Duration, logger *logging.Logger) *MySQL {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if prefix == "" {
		prefix = "hiring-data-sync:"
	}
	return &MySQL{db: db, prefix: prefix, timeout: timeout, logger: logger}
}

// Name returns the advisory lock name for table
func (m *MySQL) Name(table string) string {
	name := m.prefix + table
	if len(name) > maxLockName {
		name = name[:maxLockName]
	}
	return name
}

// Acquire implements Locker
func (m *MySQL) Acquire(ctx context.Context, table string) (Lease, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, errors.WrapError(err, "failed to reserve connection for advisory lock")
	}

	name := m.Name(table)
	seconds := int64(m.timeout / time.Second)

	var got sql.NullInt64
	start := time.Now()
	err = conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", name, seconds).Scan(&got)
	m.logger.LogSQLExecution("SELECT GET_LOCK(?, ?)", time.Since(start), 1, err)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, errors.NewCancellationError(fmt.Sprintf("gave up waiting for lock on table %s", table), ctx.Err())
		}
		return nil, errors.WrapError(err, fmt.Sprintf("failed to acquire advisory lock %s", name))
	}
	if !got.Valid || got.Int64 != 1 {
		conn.Close()
		return nil, busyError(table).WithContext("lock_name", name)
	}

	m.logger.WithFields(map[string]interface{}{"table": table, "lock_name": name}).Debug("Advisory lock acquired")
	return &mysqlLease{conn: conn, name: name, logger: m.logger}, nil
}

type mysqlLease struct {
	conn   *sql.Conn
	name   string
	logger *logging.Logger
}

func (l *mysqlLease) Release() error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var released sql.NullInt64
	if err := l.conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", l.name).Scan(&released); err != nil {
		// discarding the session drops every lock it holds
		l.conn.Raw(func(interface{}) error { return driver.ErrBadConn })
		l.logger.WithField("lock_name", l.name).Warn("Failed to release advisory lock, discarded its connection")
		return errors.WrapError(err, fmt.Sprintf("failed to release advisory lock %s", l.name))
	}
	return nil
}
