package snapshot

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/schema"
	"hiring-data-sync/internal/storage"
)

// Reader opens snapshots for streaming. Snapshots are immutable, so opening
// the same reference again yields the same sequence of records.
type Reader struct {
	store      storage.Store
	encryption *EncryptionConfig
}

// NewReader creates a reader. encryption supplies keys for sealed snapshots and may be nil.
func NewReader(store storage.Store, encryption *EncryptionConfig) *Reader {
	return &Reader{store: store, encryption: encryption}
}

// Header reads only the preamble of a snapshot
func (r *Reader) Header(ctx context.Context, ref string) (*Header, error) {
	rc, err := r.store.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return readPreamble(bufio.NewReader(rc))
}

// Open checks the snapshot's schema fingerprint against expected and returns
// an iterator over its records. A mismatch fails with SchemaDrift before any
// record is read. A nil expected schema skips the check.
func (r *Reader) Open(ctx context.Context, ref string, expected *schema.TableSchema) (*Iterator, error) {
	rc, err := r.store.Open(ctx, ref)
	if err != nil {
		return nil, err
	}

	it, err := r.open(rc, expected)
	if err != nil {
		rc.Close()
		if appErr, ok := err.(*errors.AppError); ok {
			return nil, appErr.WithContext("ref", ref)
		}
		return nil, errors.WrapError(err, fmt.Sprintf("cannot read snapshot %s", ref)).WithContext("ref", ref)
	}
	it.ref = ref
	return it, nil
}

func (r *Reader) open(rc io.ReadCloser, expected *schema.TableSchema) (*Iterator, error) {
	buffered := bufio.NewReaderSize(rc, 64<<10)

	header, err := readPreamble(buffered)
	if err != nil {
		return nil, err
	}

	written := header.Schema()
	if expected != nil && header.Fingerprint != expected.Fingerprint() {
		columns := expected.Diff(written)
		return nil, errors.NewSchemaDriftError(
			fmt.Sprintf("snapshot schema %s does not match %s", written, expected), columns).
			WithContext("snapshot_fingerprint", header.Fingerprint).
			WithContext("expected_fingerprint", expected.Fingerprint())
	}

	var body io.Reader = buffered
	if header.Encryption != nil {
		if header.Encryption.Algorithm != algorithmAESGCM {
			return nil, errors.NewStorageReadError(
				fmt.Sprintf("unsupported snapshot encryption %q", header.Encryption.Algorithm), nil)
		}
		if r.encryption == nil {
			return nil, errors.NewConfigurationError("snapshot is encrypted but no key is configured", nil)
		}
		key, err := r.encryption.key(header.Encryption.KeySource, header.Encryption.Salt)
		if err != nil {
			return nil, err
		}
		opener, err := newOpenReader(buffered, key)
		if err != nil {
			return nil, err
		}
		body = opener
	}

	decompressed, err := newDecompressReader(body, header.Compression)
	if err != nil {
		return nil, err
	}

	return &Iterator{
		header: header,
		schema: written,
		file:   rc,
		body:   decompressed,
		frames: bufio.NewReader(decompressed),
	}, nil
}

// Iterator yields the records of one snapshot in stored order
type Iterator struct {
	ref    string
	header *Header
	schema *schema.TableSchema
	file   io.ReadCloser
	body   io.ReadCloser
	frames *bufio.Reader

	record schema.Record
	count  int64
	done   bool
	err    error
}

// Next advances to the next record. It returns false at the end of the
// snapshot or on error; check Err to tell them apart.
func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	typ, payload, err := readFrame(it.frames)
	if err == io.EOF {
		it.err = errors.NewStorageReadError("snapshot truncated: missing end frame", nil).
			WithContext("records_read", it.count)
		return false
	}
	if err != nil {
		it.err = errors.WrapError(err, fmt.Sprintf("failed reading record %d", it.count))
		return false
	}

	switch typ {
	case frameRecord:
		rec, err := decodeRecord(payload, it.schema)
		if err != nil {
			it.err = errors.WrapError(err, fmt.Sprintf("failed decoding record %d", it.count))
			return false
		}
		it.record = rec
		it.count++
		return true
	case frameEnd:
		it.done = true
		it.record = nil
		it.err = it.finish(payload)
		return false
	default:
		it.err = errors.NewStorageReadError(fmt.Sprintf("unexpected frame type %d", typ), nil)
		return false
	}
}

// finish checks the end frame count and that nothing follows it
func (it *Iterator) finish(payload []byte) error {
	want, err := decodeCount(payload)
	if err != nil {
		return err
	}
	if want != it.count {
		return errors.NewStorageReadError(
			fmt.Sprintf("snapshot declares %d records but %d were read", want, it.count), nil)
	}
	if _, _, err := readFrame(it.frames); err != io.EOF {
		if err != nil {
			return err
		}
		return errors.NewStorageReadError("data after end frame", nil)
	}
	return nil
}

// Record returns the current record
func (it *Iterator) Record() schema.Record {
	return it.record
}

// Err returns the first error met while iterating
func (it *Iterator) Err() error {
	return it.err
}

// Count returns the number of records yielded so far
func (it *Iterator) Count() int64 {
	return it.count
}

// Header returns the snapshot header
func (it *Iterator) Header() *Header {
	return it.header
}

// Schema returns the schema the snapshot was written with
func (it *Iterator) Schema() *schema.TableSchema {
	return it.schema
}

// Ref returns the storage key the iterator was opened from
func (it *Iterator) Ref() string {
	return it.ref
}

// Close releases the underlying object
func (it *Iterator) Close() error {
	it.body.Close()
	return it.file.Close()
}
