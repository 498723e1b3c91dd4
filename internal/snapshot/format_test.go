package snapshot

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"testing"
	"time"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wideSchema() *schema.TableSchema {
	return schema.NewTableSchema("wide",
		schema.Column{Name: "id", Type: schema.TypeInt, Key: true},
		schema.Column{Name: "name", Type: schema.TypeString},
		schema.Column{Name: "score", Type: schema.TypeFloat, Nullable: true},
		schema.Column{Name: "active", Type: schema.TypeBool},
		schema.Column{Name: "seen", Type: schema.TypeDate, Nullable: true},
	)
}

func TestRecordCodec_RoundTrip(t *testing.T) {
	ts := wideSchema()
	records := []schema.Record{
		{
			"id":     schema.Int(-42),
			"name":   schema.String("Zoë"),
			"score":  schema.Float(3.25),
			"active": schema.Bool(true),
			"seen":   schema.Date(time.Date(1850, 3, 1, 12, 0, 0, 123456789, time.UTC)),
		},
		{
			"id":     schema.Int(math.MaxInt64),
			"name":   schema.String(""),
			"score":  schema.Null(),
			"active": schema.Bool(false),
			"seen":   schema.Null(),
		},
	}

	for _, rec := range records {
		payload, err := encodeRecord(nil, ts, rec)
		require.NoError(t, err)

		back, err := decodeRecord(payload, ts)
		require.NoError(t, err)
		assert.True(t, rec.Equal(back), "want %v got %v", rec, back)
	}
}

func TestRecordCodec_Deterministic(t *testing.T) {
	ts := wideSchema()
	rec := schema.Record{"id": schema.Int(1), "name": schema.String("a"), "active": schema.Bool(true)}

	a, err := encodeRecord(nil, ts, rec)
	require.NoError(t, err)
	b, err := encodeRecord(nil, ts, rec)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeRecord_Unrepresentable(t *testing.T) {
	ts := wideSchema()
	base := func() schema.Record {
		return schema.Record{"id": schema.Int(1), "name": schema.String("a"), "active": schema.Bool(true)}
	}

	tests := []struct {
		name   string
		mutate func(schema.Record)
	}{
		{"kind mismatch", func(r schema.Record) { r["name"] = schema.Int(3) }},
		{"invalid utf8", func(r schema.Record) { r["name"] = schema.String("\xff\xfe") }},
		{"null in required", func(r schema.Record) { r["active"] = schema.Null() }},
		{"nan", func(r schema.Record) { r["score"] = schema.Float(math.NaN()) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := base()
			tt.mutate(rec)
			_, err := encodeRecord(nil, ts, rec)
			assert.True(t, errors.IsType(err, errors.ErrorTypeSerialization), "got %v", err)
		})
	}
}

func TestDecodeRecord_Corrupted(t *testing.T) {
	ts := wideSchema()
	payload, err := encodeRecord(nil, ts, schema.Record{"id": schema.Int(1), "name": schema.String("abc"), "active": schema.Bool(true)})
	require.NoError(t, err)

	_, err = decodeRecord(payload[:len(payload)-3], ts)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorageRead))

	_, err = decodeRecord(append(payload, 0), ts)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorageRead))

	_, err = decodeRecord(payload, schema.Jobs())
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorageRead), "column count mismatch")
}

func TestFrame_ChecksumAndTruncation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, frameRecord, []byte("hello")))
	raw := buf.Bytes()

	typ, payload, err := readFrame(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, frameRecord, typ)
	assert.Equal(t, []byte("hello"), payload)

	_, _, err = readFrame(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)

	_, _, err = readFrame(bytes.NewReader(raw[:len(raw)-1]))
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorageRead))

	corrupted := append([]byte(nil), raw...)
	corrupted[len(corrupted)-1] ^= 0xFF
	_, _, err = readFrame(bytes.NewReader(corrupted))
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorageRead))
}

func TestPreamble(t *testing.T) {
	created := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	h := newHeader(schema.HiredEmployees(), created)

	var buf bytes.Buffer
	require.NoError(t, writePreamble(&buf, h))

	got, err := readPreamble(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, schema.TableHiredEmployees, got.Table)
	assert.Equal(t, schema.HiredEmployees().Fingerprint(), got.Fingerprint)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Equal(t, schema.HiredEmployees().Fingerprint(), got.Schema().Fingerprint())

	_, err = readPreamble(bufio.NewReader(bytes.NewReader([]byte("NOTSNAP!"))))
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorageRead))
}

func TestKeyNaming(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	key := Key("jobs", at)
	assert.Equal(t, "jobs/jobs-20240102T030405.000000006Z.snap", key)

	table, parsed, err := ParseKey(key)
	require.NoError(t, err)
	assert.Equal(t, "jobs", table)
	assert.True(t, parsed.Equal(at))

	for _, bad := range []string{"jobs.snap", "jobs/other-20240102T030405.000000006Z.snap", "jobs/jobs-yesterday.snap"} {
		_, _, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}
