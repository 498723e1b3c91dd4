package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"time"
	"unicode/utf8"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/schema"
)

// File layout:
//
//	magic "HDSNAP" | version:1 | header frame | body
//
// The body is a sequence of record frames closed by an end frame. It is
// optionally compressed and then sealed, as recorded in the header.
// Every frame is [len:4 BE][crc32:4][type:1][payload], where len counts
// the crc, type and payload bytes.
var magic = []byte("HDSNAP")

const (
	formatVersion byte = 1

	frameHeader byte = 1
	frameRecord byte = 2
	frameEnd    byte = 3

	maxFrameSize = 64 << 20
)

// ColumnHeader is a column definition as recorded in a snapshot
type ColumnHeader struct {
	Name     string            `json:"name"`
	Type     schema.ColumnType `json:"type"`
	Nullable bool              `json:"nullable,omitempty"`
	Key      bool              `json:"key,omitempty"`
}

// EncryptionHeader records how the body was sealed
type EncryptionHeader struct {
	Algorithm string `json:"algorithm"`
	KeySource string `json:"key_source"`
	Salt      []byte `json:"salt,omitempty"`
}

// Header is the self-describing preamble of a snapshot
type Header struct {
	Version     byte              `json:"version"`
	Table       string            `json:"table"`
	Fingerprint string            `json:"fingerprint"`
	Columns     []ColumnHeader    `json:"columns"`
	CreatedAt   time.Time         `json:"created_at"`
	Compression CompressionType   `json:"compression"`
	Encryption  *EncryptionHeader `json:"encryption,omitempty"`
}

func newHeader(ts *schema.TableSchema, createdAt time.Time) *Header {
	cols := make([]ColumnHeader, len(ts.Columns))
	for i, c := range ts.Columns {
		cols[i] = ColumnHeader{Name: c.Name, Type: c.Type, Nullable: c.Nullable, Key: c.Key}
	}
	return &Header{
		Version:     formatVersion,
		Table:       ts.Name,
		Fingerprint: ts.Fingerprint(),
		Columns:     cols,
		CreatedAt:   createdAt.UTC(),
		Compression: CompressionNone,
	}
}

// Schema rebuilds the table schema the snapshot was written with
func (h *Header) Schema() *schema.TableSchema {
	cols := make([]schema.Column, len(h.Columns))
	for i, c := range h.Columns {
		cols[i] = schema.Column{Name: c.Name, Type: c.Type, Nullable: c.Nullable, Key: c.Key}
	}
	return schema.NewTableSchema(h.Table, cols...)
}

func writeFrame(w io.Writer, typ byte, payload []byte) error {
	if len(payload)+5 > maxFrameSize {
		return errors.NewSerializationError(fmt.Sprintf("frame of %d bytes exceeds limit", len(payload)), nil)
	}

	var head [9]byte
	binary.BigEndian.PutUint32(head[0:4], uint32(4+1+len(payload)))
	crc := crc32.NewIEEE()
	crc.Write([]byte{typ})
	crc.Write(payload)
	binary.BigEndian.PutUint32(head[4:8], crc.Sum32())
	head[8] = typ

	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame returns io.EOF only when the stream ends cleanly on a frame boundary
func readFrame(r io.Reader) (byte, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, errors.NewStorageReadError("truncated frame length", err)
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 5 || length > maxFrameSize {
		return 0, nil, errors.NewStorageReadError(fmt.Sprintf("corrupted frame length %d", length), nil)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return 0, nil, errors.NewStorageReadError("truncated frame", err)
	}

	want := binary.BigEndian.Uint32(frame[:4])
	if got := crc32.ChecksumIEEE(frame[4:]); got != want {
		return 0, nil, errors.NewStorageReadError("frame checksum mismatch", nil)
	}

	return frame[4], frame[5:], nil
}

func writePreamble(w io.Writer, h *Header) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return errors.NewSerializationError("failed to encode snapshot header", err)
	}
	if _, err := w.Write(magic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{formatVersion}); err != nil {
		return err
	}
	return writeFrame(w, frameHeader, payload)
}

func readPreamble(r *bufio.Reader) (*Header, error) {
	prefix := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, errors.NewStorageReadError("not a snapshot: file too short", err)
	}
	if !bytes.Equal(prefix[:len(magic)], magic) {
		return nil, errors.NewStorageReadError("not a snapshot: bad magic", nil)
	}
	if v := prefix[len(magic)]; v != formatVersion {
		return nil, errors.NewStorageReadError(fmt.Sprintf("unsupported snapshot version %d", v), nil)
	}

	typ, payload, err := readFrame(r)
	if err == io.EOF {
		return nil, errors.NewStorageReadError("snapshot has no header", nil)
	}
	if err != nil {
		return nil, err
	}
	if typ != frameHeader {
		return nil, errors.NewStorageReadError(fmt.Sprintf("expected header frame, found type %d", typ), nil)
	}

	var h Header
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, errors.NewStorageReadError("corrupted snapshot header", err)
	}
	if h.Schema().Fingerprint() != h.Fingerprint {
		return nil, errors.NewStorageReadError("snapshot header columns do not match its fingerprint", nil)
	}
	return &h, nil
}

// encodeRecord appends the record in column order. Each value is a kind byte
// followed by its payload; the encoding is deterministic.
func encodeRecord(buf []byte, ts *schema.TableSchema, rec schema.Record) ([]byte, error) {
	buf = binary.AppendUvarint(buf, uint64(len(ts.Columns)))
	for _, col := range ts.Columns {
		v := rec[col.Name]
		if err := checkRepresentable(col, v); err != nil {
			return nil, err
		}

		buf = append(buf, byte(v.Kind()))
		switch v.Kind() {
		case schema.KindNull:
		case schema.KindString:
			buf = binary.AppendUvarint(buf, uint64(len(v.Str())))
			buf = append(buf, v.Str()...)
		case schema.KindInt:
			buf = binary.AppendVarint(buf, v.Int())
		case schema.KindFloat:
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v.Float()))
		case schema.KindBool:
			if v.Bool() {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case schema.KindDate:
			t := v.Time()
			buf = binary.AppendVarint(buf, t.Unix())
			buf = binary.AppendUvarint(buf, uint64(t.Nanosecond()))
		}
	}
	return buf, nil
}

func checkRepresentable(col schema.Column, v schema.Value) error {
	if v.IsNull() {
		if !col.Nullable {
			return errors.NewSerializationError(fmt.Sprintf("column %s: null in non-nullable column", col.Name), nil)
		}
		return nil
	}
	if want := kindOf(col.Type); v.Kind() != want {
		return errors.NewSerializationError(
			fmt.Sprintf("column %s: %s value in %s column", col.Name, v.Kind(), col.Type), nil)
	}
	if v.Kind() == schema.KindString && !utf8.ValidString(v.Str()) {
		return errors.NewSerializationError(fmt.Sprintf("column %s: string is not valid UTF-8", col.Name), nil)
	}
	if v.Kind() == schema.KindFloat && (math.IsNaN(v.Float()) || math.IsInf(v.Float(), 0)) {
		return errors.NewSerializationError(fmt.Sprintf("column %s: non-finite float", col.Name), nil)
	}
	return nil
}

func kindOf(t schema.ColumnType) schema.Kind {
	switch t {
	case schema.TypeString:
		return schema.KindString
	case schema.TypeInt:
		return schema.KindInt
	case schema.TypeFloat:
		return schema.KindFloat
	case schema.TypeBool:
		return schema.KindBool
	case schema.TypeDate:
		return schema.KindDate
	}
	return schema.KindNull
}

func decodeRecord(payload []byte, ts *schema.TableSchema) (schema.Record, error) {
	r := bytes.NewReader(payload)

	n, err := binary.ReadUvarint(r)
	if err != nil || n != uint64(len(ts.Columns)) {
		return nil, errors.NewStorageReadError("record column count does not match header", err)
	}

	rec := make(schema.Record, len(ts.Columns))
	for _, col := range ts.Columns {
		v, err := decodeValue(r)
		if err != nil {
			return nil, errors.NewStorageReadError(fmt.Sprintf("corrupted value in column %s", col.Name), err)
		}
		rec[col.Name] = v
	}
	if r.Len() != 0 {
		return nil, errors.NewStorageReadError("trailing bytes after record", nil)
	}
	return rec, nil
}

func decodeValue(r *bytes.Reader) (schema.Value, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return schema.Null(), err
	}

	switch schema.Kind(kind) {
	case schema.KindNull:
		return schema.Null(), nil
	case schema.KindString:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return schema.Null(), err
		}
		if n > uint64(r.Len()) {
			return schema.Null(), io.ErrUnexpectedEOF
		}
		s := make([]byte, n)
		if _, err := io.ReadFull(r, s); err != nil {
			return schema.Null(), err
		}
		return schema.String(string(s)), nil
	case schema.KindInt:
		i, err := binary.ReadVarint(r)
		if err != nil {
			return schema.Null(), err
		}
		return schema.Int(i), nil
	case schema.KindFloat:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return schema.Null(), err
		}
		return schema.Float(math.Float64frombits(binary.BigEndian.Uint64(b[:]))), nil
	case schema.KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return schema.Null(), err
		}
		return schema.Bool(b != 0), nil
	case schema.KindDate:
		sec, err := binary.ReadVarint(r)
		if err != nil {
			return schema.Null(), err
		}
		nsec, err := binary.ReadUvarint(r)
		if err != nil {
			return schema.Null(), err
		}
		return schema.Date(time.Unix(sec, int64(nsec))), nil
	default:
		return schema.Null(), fmt.Errorf("unknown value kind %d", kind)
	}
}

func encodeCount(n int64) []byte {
	return binary.AppendUvarint(nil, uint64(n))
}

func decodeCount(payload []byte) (int64, error) {
	n, read := binary.Uvarint(payload)
	if read <= 0 || read != len(payload) {
		return 0, errors.NewStorageReadError("corrupted end frame", nil)
	}
	return int64(n), nil
}
