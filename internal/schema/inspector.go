package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Inspector reads live table definitions from information_schema
type Inspector struct {
	queryTimeout time.Duration
}

// NewInspector creates a new schema inspector
func NewInspector() *Inspector {
	return &Inspector{queryTimeout: 30 * time.Second}
}

// NewInspectorWithTimeout creates a schema inspector whose queries give up
// after timeout. A non-positive timeout keeps the default.
func NewInspectorWithTimeout(timeout time.Duration) *Inspector {
	if timeout <= 0 {
		return NewInspector()
	}
	return &Inspector{queryTimeout: timeout}
}

const describeColumnsQuery = `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			COLUMN_TYPE,
			IS_NULLABLE,
			COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

// Describe returns the live schema of a table in the connected database
func (i *Inspector) Describe(ctx context.Context, db *sql.DB, table string) (*TableSchema, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if table == "" {
		return nil, fmt.Errorf("table name cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, i.queryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, describeColumnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for table %s: %w", table, err)
	}
	defer rows.Close()

	ts := &TableSchema{Name: table}
	for rows.Next() {
		var name, dataType, columnType, isNullable, columnKey string
		if err := rows.Scan(&name, &dataType, &columnType, &isNullable, &columnKey); err != nil {
			return nil, fmt.Errorf("failed to scan column for table %s: %w", table, err)
		}

		colType, err := MapMySQLType(dataType, columnType)
		if err != nil {
			return nil, fmt.Errorf("column %s.%s: %w", table, name, err)
		}

		ts.Columns = append(ts.Columns, Column{
			Name:     name,
			Type:     colType,
			Nullable: strings.EqualFold(isNullable, "YES"),
			Key:      columnKey == "PRI",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns for table %s: %w", table, err)
	}

	if len(ts.Columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist or has no columns", table)
	}
	return ts, nil
}

// MapMySQLType maps an information_schema DATA_TYPE/COLUMN_TYPE pair onto a semantic type
func MapMySQLType(dataType, columnType string) (ColumnType, error) {
	switch strings.ToLower(dataType) {
	case "tinyint":
		if strings.HasPrefix(strings.ToLower(columnType), "tinyint(1)") {
			return TypeBool, nil
		}
		return TypeInt, nil
	case "smallint", "mediumint", "int", "integer", "bigint", "year":
		return TypeInt, nil
	case "bool", "boolean", "bit":
		return TypeBool, nil
	case "float", "double", "decimal", "numeric", "real":
		return TypeFloat, nil
	case "char", "varchar", "tinytext", "text", "mediumtext", "longtext", "enum", "set":
		return TypeString, nil
	case "date", "datetime", "timestamp":
		return TypeDate, nil
	default:
		return "", fmt.Errorf("unsupported MySQL type %s", columnType)
	}
}
