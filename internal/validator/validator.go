// Package validator checks batches of incoming records against a table schema
// before they reach the store.
package validator

import (
	"fmt"
	"sort"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/schema"
)

// ValidatedBatch is a batch whose records conform to Schema, with values
// coerced to the column types and absent nullable columns set to null
type ValidatedBatch struct {
	Schema  *schema.TableSchema
	Records []schema.Record
}

// Len returns the number of records in the batch
func (b *ValidatedBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// Validator validates record batches. It holds no state and is safe for concurrent use.
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks every record of the batch and returns the coerced batch.
// The first failing record rejects the whole batch; ordinals are zero-based.
func (v *Validator) Validate(records []schema.Record, ts *schema.TableSchema) (*ValidatedBatch, error) {
	if ts == nil {
		return nil, errors.NewConfigurationError("table schema is required", nil)
	}

	keys := ts.KeyColumns()
	seen := make(map[string]int, len(records))
	out := make([]schema.Record, len(records))

	for ordinal, record := range records {
		coerced, err := v.validateRecord(ordinal, record, ts)
		if err != nil {
			return nil, err
		}

		if len(keys) > 0 {
			key := coerced.KeyString(keys)
			if first, dup := seen[key]; dup {
				return nil, errors.NewValidationError(errors.DuplicateKey, ordinal, keys[0],
					fmt.Sprintf("key (%s) already used by record %d", key, first))
			}
			seen[key] = ordinal
		}

		out[ordinal] = coerced
	}

	return &ValidatedBatch{Schema: ts, Records: out}, nil
}

func (v *Validator) validateRecord(ordinal int, record schema.Record, ts *schema.TableSchema) (schema.Record, error) {
	if unknown := unknownColumns(record, ts); len(unknown) > 0 {
		return nil, errors.NewValidationError(errors.SchemaMismatch, ordinal, unknown[0],
			fmt.Sprintf("column not in table %s", ts.Name))
	}

	coerced := make(schema.Record, len(ts.Columns))
	for _, col := range ts.Columns {
		value, present := record[col.Name]
		if !present {
			if !col.Nullable {
				return nil, errors.NewValidationError(errors.SchemaMismatch, ordinal, col.Name,
					"required column missing")
			}
			coerced[col.Name] = schema.Null()
			continue
		}

		if value.IsNull() {
			if !col.Nullable {
				return nil, errors.NewValidationError(errors.TypeError, ordinal, col.Name,
					"null not allowed in non-nullable column")
			}
			coerced[col.Name] = value
			continue
		}

		converted, err := schema.Coerce(value, col.Type)
		if err != nil {
			return nil, errors.NewValidationError(errors.TypeError, ordinal, col.Name, err.Error())
		}
		coerced[col.Name] = converted
	}

	return coerced, nil
}

// unknownColumns returns the record's columns missing from the schema, sorted for stable reports
func unknownColumns(record schema.Record, ts *schema.TableSchema) []string {
	var unknown []string
	for name := range record {
		if !ts.HasColumn(name) {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}
