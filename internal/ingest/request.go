package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/schema"
	"hiring-data-sync/internal/validator"
)

// Request carries records for one or more tables, keyed by table name.
// The whole request commits in one transaction.
type Request map[string][]schema.Record

// DecodeRequest parses the JSON request shape {"table": [{...}, ...], ...}
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeValidation, "malformed ingestion request", err)
	}
	return req, nil
}

// Total returns the record count across all tables
func (r Request) Total() int {
	total := 0
	for _, records := range r {
		total += len(records)
	}
	return total
}

// RequestResult holds the inserted count per table
type RequestResult struct {
	Tables   []Result
	Inserted int64
}

// IngestRequest validates every table batch of req, then inserts them in
// catalog dependency order inside one transaction. Any failure rolls back all tables.
func (i *Ingestor) IngestRequest(ctx context.Context, catalog *schema.Catalog, v *validator.Validator, req Request) (*RequestResult, error) {
	if err := CheckSize(req.Total()); err != nil {
		return nil, err
	}

	ordered, err := catalog.Ordered()
	if err != nil {
		return nil, err
	}

	for name := range req {
		if _, err := catalog.Lookup(name); err != nil {
			return nil, errors.NewAppError(errors.ErrorTypeValidation,
				fmt.Sprintf("unknown table %q in request", name), err)
		}
	}

	var batches []*validator.ValidatedBatch
	for _, ts := range ordered {
		records, ok := req[ts.Name]
		if !ok || len(records) == 0 {
			continue
		}
		batch, err := v.Validate(records, ts)
		if err != nil {
			return nil, errors.WrapError(err, fmt.Sprintf("table %s rejected", ts.Name)).
				WithContext("table", ts.Name)
		}
		batches = append(batches, batch)
	}

	if i.db == nil {
		return nil, errors.NewConfigurationError("database connection is nil", nil)
	}

	result := &RequestResult{}
	err = i.inTx(ctx, func(tx *sql.Tx) error {
		for _, batch := range batches {
			n, err := i.InsertTx(ctx, tx, batch)
			if err != nil {
				return err
			}
			result.Tables = append(result.Tables, Result{Table: batch.Schema.Name, Inserted: n})
			result.Inserted += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	i.logger.WithFields(map[string]interface{}{
		"tables":   len(result.Tables),
		"inserted": result.Inserted,
	}).Info("Ingestion request committed")

	return result, nil
}
