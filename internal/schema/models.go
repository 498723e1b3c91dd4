package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ColumnType is the semantic type of a column
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeInt    ColumnType = "int"
	TypeFloat  ColumnType = "float"
	TypeBool   ColumnType = "bool"
	TypeDate   ColumnType = "date"
)

// Valid reports whether t is one of the known column types
func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeDate:
		return true
	}
	return false
}

// Column describes one column of a table
type Column struct {
	Name     string     `json:"name" yaml:"name"`
	Type     ColumnType `json:"type" yaml:"type"`
	Nullable bool       `json:"nullable" yaml:"nullable"`
	Key      bool       `json:"key" yaml:"key"`
}

// definition is the canonical text used for fingerprinting and drift reports
func (c Column) definition() string {
	return fmt.Sprintf("%s:%s:nullable=%t:key=%t", c.Name, c.Type, c.Nullable, c.Key)
}

// Reference is a foreign key from a column to another table's column
type Reference struct {
	Column    string `json:"column" yaml:"column"`
	Table     string `json:"table" yaml:"table"`
	RefColumn string `json:"ref_column" yaml:"ref_column"`
}

// TableSchema is the ordered column layout of one logical table.
// Columns marked Key together form the primary key.
type TableSchema struct {
	Name       string      `json:"name" yaml:"name"`
	Columns    []Column    `json:"columns" yaml:"columns"`
	References []Reference `json:"references,omitempty" yaml:"references,omitempty"`
}

// NewTableSchema creates a table schema from ordered columns
func NewTableSchema(name string, columns ...Column) *TableSchema {
	return &TableSchema{Name: name, Columns: columns}
}

// Validate checks the schema for structural consistency
func (ts *TableSchema) Validate() error {
	if ts.Name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	if len(ts.Columns) == 0 {
		return fmt.Errorf("table %s must have at least one column", ts.Name)
	}

	seen := make(map[string]bool, len(ts.Columns))
	for _, col := range ts.Columns {
		if col.Name == "" {
			return fmt.Errorf("table %s has a column with an empty name", ts.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("table %s has duplicate column %s", ts.Name, col.Name)
		}
		seen[col.Name] = true

		if !col.Type.Valid() {
			return fmt.Errorf("column %s.%s has unknown type %q", ts.Name, col.Name, col.Type)
		}
		if col.Key && col.Nullable {
			return fmt.Errorf("key column %s.%s cannot be nullable", ts.Name, col.Name)
		}
	}

	for _, ref := range ts.References {
		if !seen[ref.Column] {
			return fmt.Errorf("reference on unknown column %s.%s", ts.Name, ref.Column)
		}
	}

	return nil
}

// Column returns the column with the given name
func (ts *TableSchema) Column(name string) (Column, bool) {
	for _, col := range ts.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the schema declares the named column
func (ts *TableSchema) HasColumn(name string) bool {
	_, ok := ts.Column(name)
	return ok
}

// ColumnNames returns the column names in declaration order
func (ts *TableSchema) ColumnNames() []string {
	names := make([]string, len(ts.Columns))
	for i, col := range ts.Columns {
		names[i] = col.Name
	}
	return names
}

// KeyColumns returns the primary key columns in declaration order
func (ts *TableSchema) KeyColumns() []string {
	var keys []string
	for _, col := range ts.Columns {
		if col.Key {
			keys = append(keys, col.Name)
		}
	}
	return keys
}

// HasKey reports whether the schema declares a primary key
func (ts *TableSchema) HasKey() bool {
	return len(ts.KeyColumns()) > 0
}

// IsKey reports whether names is exactly the primary key column set, in any order
func (ts *TableSchema) IsKey(names []string) bool {
	keys := ts.KeyColumns()
	if len(keys) == 0 || len(keys) != len(names) {
		return false
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	for _, n := range names {
		if !want[n] {
			return false
		}
		delete(want, n)
	}
	return len(want) == 0
}

// Fingerprint returns a stable hash of the ordered column definitions
func (ts *TableSchema) Fingerprint() string {
	h := sha256.New()
	for _, col := range ts.Columns {
		h.Write([]byte(col.definition()))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Diff returns the names of columns whose definition or position differs between
// the two schemas, including columns present in only one of them
func (ts *TableSchema) Diff(other *TableSchema) []string {
	var diff []string
	seen := make(map[string]bool)

	for i, col := range ts.Columns {
		seen[col.Name] = true
		if i >= len(other.Columns) || other.Columns[i].definition() != col.definition() {
			diff = append(diff, col.Name)
		}
	}
	for _, col := range other.Columns {
		if !seen[col.Name] {
			diff = append(diff, col.Name)
		}
	}
	return diff
}

// Clone returns a deep copy of the schema
func (ts *TableSchema) Clone() *TableSchema {
	clone := &TableSchema{
		Name:    ts.Name,
		Columns: append([]Column(nil), ts.Columns...),
	}
	if len(ts.References) > 0 {
		clone.References = append([]Reference(nil), ts.References...)
	}
	return clone
}

// String renders the schema as name(col type, ...)
func (ts *TableSchema) String() string {
	parts := make([]string, len(ts.Columns))
	for i, col := range ts.Columns {
		parts[i] = fmt.Sprintf("%s %s", col.Name, col.Type)
	}
	return fmt.Sprintf("%s(%s)", ts.Name, strings.Join(parts, ", "))
}

// Record maps column names to typed values for one row
type Record map[string]Value

// Values returns the record's values in the schema's column order; absent columns are null
func (r Record) Values(ts *TableSchema) []Value {
	values := make([]Value, len(ts.Columns))
	for i, col := range ts.Columns {
		values[i] = r[col.Name]
	}
	return values
}

// KeyString renders the record's key columns as a comparable string
func (r Record) KeyString(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = r[k].String()
	}
	return strings.Join(parts, "|")
}

// Equal reports whether two records hold equal values for the same columns
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// RecordFromValues builds a record from values in the schema's column order
func RecordFromValues(ts *TableSchema, values []Value) (Record, error) {
	if len(values) != len(ts.Columns) {
		return nil, fmt.Errorf("table %s expects %d values, got %d", ts.Name, len(ts.Columns), len(values))
	}
	record := make(Record, len(values))
	for i, col := range ts.Columns {
		record[col.Name] = values[i]
	}
	return record, nil
}
