package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind tags which field of a Value is populated
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TimestampLayout is the wire layout used for dates in sources and requests
const TimestampLayout = "2006-01-02T15:04:05Z"

// dateLayouts are tried in order when coercing a string to a date
var dateLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// maxExactFloatInt bounds integers that survive a float64 round trip
const maxExactFloatInt = 1 << 53

// Value is a tagged scalar. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

func Null() Value {
	return Value{}
}

func String(s string) Value {
	return Value{kind: KindString, s: s}
}

func Int(i int64) Value {
	return Value{kind: KindInt, i: i}
}

func Float(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func Date(t time.Time) Value {
	return Value{kind: KindDate, t: t.UTC()}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) Str() string {
	return v.s
}

func (v Value) Int() int64 {
	return v.i
}

func (v Value) Float() float64 {
	return v.f
}

func (v Value) Bool() bool {
	return v.b
}

func (v Value) Time() time.Time {
	return v.t
}

// Equal compares kind and payload
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == other.s
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f || (math.IsNaN(v.f) && math.IsNaN(other.f))
	case KindBool:
		return v.b == other.b
	case KindDate:
		return v.t.Equal(other.t)
	}
	return false
}

// String renders the value for keys, logs and tables
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format(time.RFC3339Nano)
	default:
		return "NULL"
	}
}

// SQLValue returns the value as a database/sql argument
func (v Value) SQLValue() interface{} {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindDate:
		return v.t
	default:
		return nil
	}
}

// MarshalJSON encodes the payload; dates use TimestampLayout when they carry no sub-second part
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindDate:
		if v.t.Nanosecond() == 0 {
			return json.Marshal(v.t.Format(TimestampLayout))
		}
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	case KindNull:
		return []byte("null"), nil
	default:
		return json.Marshal(v.SQLValue())
	}
}

// UnmarshalJSON decodes loosely: numbers become int when integral, strings stay strings
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts a loosely-typed Go value into a Value without coercion
func FromAny(raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case []byte:
		return String(string(x)), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q", x.String())
		}
		return Float(f), nil
	case time.Time:
		return Date(x), nil
	default:
		return Null(), fmt.Errorf("unsupported value type %T", raw)
	}
}

// Coerce converts v to the target column type using the explicit coercion table:
//
//	string -> string
//	int    -> int, float (when |i| <= 2^53)
//	float  -> float, int (when integral and in range)
//	bool   -> bool
//	date   -> date
//	string -> int, float (strict parse), date (known layouts)
//
// Null passes through unchanged; nullability is the caller's concern.
func Coerce(v Value, target ColumnType) (Value, error) {
	if v.kind == KindNull {
		return v, nil
	}

	switch target {
	case TypeString:
		if v.kind == KindString {
			return v, nil
		}
	case TypeInt:
		switch v.kind {
		case KindInt:
			return v, nil
		case KindFloat:
			if v.f == math.Trunc(v.f) && math.Abs(v.f) <= maxExactFloatInt {
				return Int(int64(v.f)), nil
			}
		case KindString:
			if i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
				return Int(i), nil
			}
		}
	case TypeFloat:
		switch v.kind {
		case KindFloat:
			return v, nil
		case KindInt:
			if v.i <= maxExactFloatInt && v.i >= -maxExactFloatInt {
				return Float(float64(v.i)), nil
			}
		case KindString:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil && !math.IsInf(f, 0) {
				return Float(f), nil
			}
		}
	case TypeBool:
		if v.kind == KindBool {
			return v, nil
		}
	case TypeDate:
		switch v.kind {
		case KindDate:
			return v, nil
		case KindString:
			if t, ok := ParseTimestamp(v.s); ok {
				return Date(t), nil
			}
		}
	default:
		return Null(), fmt.Errorf("unknown column type %q", target)
	}

	return Null(), fmt.Errorf("cannot coerce %s value %q to %s", v.kind, v.String(), target)
}

// ParseTimestamp parses s with the accepted date layouts, returning UTC
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseField turns a raw text field into a Value of the column type.
// Empty fields become null. Used when normalizing textual sources, so it
// accepts the textual forms of bool as well.
func ParseField(raw string, target ColumnType) (Value, error) {
	if strings.TrimSpace(raw) == "" {
		return Null(), nil
	}
	if target == TypeBool {
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Null(), fmt.Errorf("cannot parse %q as bool", raw)
		}
		return Bool(b), nil
	}
	return Coerce(String(raw), target)
}

// FromSQL converts a scanned database value into a Value of the column type
func FromSQL(src interface{}, target ColumnType) (Value, error) {
	switch x := src.(type) {
	case nil:
		return Null(), nil
	case []byte:
		if target == TypeString {
			return String(string(x)), nil
		}
		return ParseField(string(x), target)
	case string:
		if target == TypeString {
			return String(x), nil
		}
		return ParseField(x, target)
	case int64:
		if target == TypeBool {
			return Bool(x != 0), nil
		}
		return Coerce(Int(x), target)
	case bool:
		return Coerce(Bool(x), target)
	default:
		v, err := FromAny(src)
		if err != nil {
			return Null(), err
		}
		return Coerce(v, target)
	}
}
