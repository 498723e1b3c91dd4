package migration

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/schema"
)

// CSVOptions controls how source files are parsed
type CSVOptions struct {
	// HasHeader maps columns by the first row instead of by position
	HasHeader bool   `yaml:"has_header" mapstructure:"has_header"`
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
	TrimSpace bool   `yaml:"trim_space" mapstructure:"trim_space"`
	// HeaderMap renames header fields to column names
	HeaderMap map[string]string `yaml:"header_map" mapstructure:"header_map"`
	// SkipUnknown drops header fields that are not columns of the table
	SkipUnknown bool `yaml:"skip_unknown" mapstructure:"skip_unknown"`
	// Defaults fill columns the source lacks or leaves empty
	Defaults map[string]string `yaml:"defaults" mapstructure:"defaults"`
}

func (o CSVOptions) comma() (rune, error) {
	if o.Delimiter == "" {
		return ',', nil
	}
	r, size := utf8.DecodeRuneInString(o.Delimiter)
	if size != len(o.Delimiter) || r == '"' || r == '\n' || r == '\r' || r == utf8.RuneError {
		return 0, errors.NewConfigurationError(fmt.Sprintf("invalid csv delimiter %q", o.Delimiter), nil)
	}
	return r, nil
}

// rowError is a malformed source row. It fails its batch but not the migration.
type rowError struct {
	line int64
	err  error
}

func (e *rowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.line, e.err)
}

func (e *rowError) Unwrap() error { return e.err }

// rowReader turns CSV lines into raw records keyed by column name. Values
// stay strings; the validator coerces them. Empty fields become null.
type rowReader struct {
	csv      *csv.Reader
	ts       *schema.TableSchema
	columns  []string
	defaults map[string]string
	trim     bool
	line     int64
}

func newRowReader(r io.Reader, ts *schema.TableSchema, opts CSVOptions) (*rowReader, error) {
	comma, err := opts.comma()
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	for name := range opts.Defaults {
		if !ts.HasColumn(name) {
			return nil, errors.NewConfigurationError(
				fmt.Sprintf("default given for %q, which is not a column of %s", name, ts.Name), nil)
		}
	}

	rr := &rowReader{csv: cr, ts: ts, columns: ts.ColumnNames(), defaults: opts.Defaults, trim: opts.TrimSpace}
	if !opts.HasHeader {
		return rr, nil
	}

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewAppError(errors.ErrorTypeValidation, "source is empty but a header row is expected", nil)
	}
	if err != nil {
		return nil, errors.NewStorageReadError("failed to read csv header", err)
	}
	rr.line = 1

	rr.columns = make([]string, len(header))
	for i, field := range header {
		name := strings.TrimSpace(strings.TrimPrefix(field, "\ufeff"))
		if mapped, ok := opts.HeaderMap[name]; ok {
			name = mapped
		}
		if !ts.HasColumn(name) {
			if opts.SkipUnknown {
				continue
			}
			return nil, errors.NewAppError(errors.ErrorTypeValidation,
				fmt.Sprintf("header field %q is not a column of %s", name, ts.Name), nil)
		}
		rr.columns[i] = name
	}
	return rr, nil
}

// next returns the next record and its line number. io.EOF ends the source;
// a *rowError marks a malformed line and reading may continue.
func (rr *rowReader) next() (schema.Record, int64, error) {
	fields, err := rr.csv.Read()
	if err == io.EOF {
		return nil, rr.line, io.EOF
	}
	rr.line++
	if err != nil {
		if parseErr, ok := err.(*csv.ParseError); ok {
			rr.line = int64(parseErr.Line)
			return nil, rr.line, &rowError{line: rr.line, err: parseErr.Err}
		}
		return nil, rr.line, errors.NewStorageReadError(fmt.Sprintf("failed to read source at line %d", rr.line), err)
	}

	if line, _ := rr.csv.FieldPos(0); line > 0 {
		rr.line = int64(line)
	}

	if len(fields) != len(rr.columns) {
		return nil, rr.line, &rowError{
			line: rr.line,
			err:  fmt.Errorf("expected %d fields, found %d", len(rr.columns), len(fields)),
		}
	}

	rec := make(schema.Record, len(fields)+len(rr.defaults))
	for i, field := range fields {
		name := rr.columns[i]
		if name == "" {
			continue
		}
		if rr.trim {
			field = strings.TrimSpace(field)
		}
		if field == "" {
			rec[name] = schema.Null()
			continue
		}
		rec[name] = schema.String(field)
	}
	for name, value := range rr.defaults {
		if v, ok := rec[name]; !ok || v.IsNull() {
			rec[name] = schema.String(value)
		}
	}
	return rec, rr.line, nil
}
