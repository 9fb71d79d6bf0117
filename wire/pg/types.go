package pg

import (
	"encoding/binary"
	"fmt"
	"math"
)

// OID constants for the column/parameter types this relay understands.
// These are the real, stable PostgreSQL catalog OIDs (pg_type.oid) for
// built-in scalar types — the same values any PG driver hardcodes, since
// they're part of the wire protocol's fixed vocabulary, not something a
// catalog lookup is needed for.
const (
	OIDBool        = 16
	OIDBytea       = 17
	OIDInt8        = 20
	OIDInt2        = 21
	OIDInt4        = 23
	OIDText        = 25
	OIDFloat4      = 700
	OIDFloat8      = 701
	OIDTimestamp   = 1114
	OIDTimestampTZ = 1184
)

// ParamKind tags the dynamic type of a bound query parameter.
type ParamKind uint8

const (
	KindNull ParamKind = iota
	KindBool
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindText
	KindBytes
	// KindTimestamp carries a pre-formatted text timestamp, sent with the
	// text format code per spec.md 4.3.1 ("timestamp (text)") — every other
	// kind here is sent binary.
	KindTimestamp
)

// Param is one bound parameter value, typed per spec.md 4.3.1's supported
// parameter types.
type Param struct {
	Kind  ParamKind
	I64   int64
	F64   float64
	Bool  bool
	Bytes []byte // Text, Bytes, Timestamp payload (Timestamp as formatted ASCII)
}

func NullParam() Param                { return Param{Kind: KindNull} }
func BoolParam(v bool) Param          { return Param{Kind: KindBool, Bool: v} }
func Int16Param(v int16) Param        { return Param{Kind: KindInt16, I64: int64(v)} }
func Int32Param(v int32) Param        { return Param{Kind: KindInt32, I64: int64(v)} }
func Int64Param(v int64) Param        { return Param{Kind: KindInt64, I64: v} }
func Float32Param(v float32) Param    { return Param{Kind: KindFloat32, F64: float64(v)} }
func Float64Param(v float64) Param    { return Param{Kind: KindFloat64, F64: v} }
func TextParam(v string) Param        { return Param{Kind: KindText, Bytes: []byte(v)} }
func BytesParam(v []byte) Param       { return Param{Kind: KindBytes, Bytes: v} }
func TimestampParam(text string) Param { return Param{Kind: KindTimestamp, Bytes: []byte(text)} }

// formatCode reports the wire format (0 = text, 1 = binary) this parameter
// is sent with.
func (p Param) formatCode() int16 {
	if p.Kind == KindTimestamp {
		return 0
	}
	return 1
}

// encode returns the wire representation of the parameter value, or nil to
// signal SQL NULL (encoded on the wire as a -1 length with no bytes).
func (p Param) encode() []byte {
	switch p.Kind {
	case KindNull:
		return nil
	case KindBool:
		if p.Bool {
			return []byte{1}
		}
		return []byte{0}
	case KindInt16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(p.I64))
		return b[:]
	case KindInt32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(p.I64))
		return b[:]
	case KindInt64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(p.I64))
		return b[:]
	case KindFloat32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(float32(p.F64)))
		return b[:]
	case KindFloat64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(p.F64))
		return b[:]
	case KindText, KindBytes, KindTimestamp:
		return p.Bytes
	default:
		panic(fmt.Sprintf("pg: unknown param kind %d", p.Kind))
	}
}

// Column is a single decoded DataRow value, still in wire form plus the
// type OID and format code from the matching RowDescription field, so the
// caller can interpret it.
type Column struct {
	OID        int32
	FormatCode int16
	Null       bool
	Raw        []byte
}

// DecodeColumnValue interprets a Column's raw bytes according to its OID
// and format code. Returns nil for a NULL column, a string for any
// text-format column, and for binary format the Go value (bool,
// int16/32/64, float32/64, string for text, []byte for bytea, timestamps
// and unrecognized OIDs), or an error if a fixed-width value has the wrong
// length.
func DecodeColumnValue(c Column) (any, error) {
	if c.Null {
		return nil, nil
	}
	if c.FormatCode == 0 {
		// Text format: timestamps and any column the server chose to send
		// as text are passed through as strings.
		return string(c.Raw), nil
	}
	switch c.OID {
	case OIDBool:
		if len(c.Raw) != 1 {
			return nil, fmt.Errorf("pg: bool column has %d bytes, want 1", len(c.Raw))
		}
		return c.Raw[0] != 0, nil
	case OIDInt2:
		if len(c.Raw) != 2 {
			return nil, fmt.Errorf("pg: int2 column has %d bytes, want 2", len(c.Raw))
		}
		return int16(binary.BigEndian.Uint16(c.Raw)), nil
	case OIDInt4:
		if len(c.Raw) != 4 {
			return nil, fmt.Errorf("pg: int4 column has %d bytes, want 4", len(c.Raw))
		}
		return int32(binary.BigEndian.Uint32(c.Raw)), nil
	case OIDInt8:
		if len(c.Raw) != 8 {
			return nil, fmt.Errorf("pg: int8 column has %d bytes, want 8", len(c.Raw))
		}
		return int64(binary.BigEndian.Uint64(c.Raw)), nil
	case OIDFloat4:
		if len(c.Raw) != 4 {
			return nil, fmt.Errorf("pg: float4 column has %d bytes, want 4", len(c.Raw))
		}
		return math.Float32frombits(binary.BigEndian.Uint32(c.Raw)), nil
	case OIDFloat8:
		if len(c.Raw) != 8 {
			return nil, fmt.Errorf("pg: float8 column has %d bytes, want 8", len(c.Raw))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(c.Raw)), nil
	case OIDText:
		return string(c.Raw), nil
	case OIDBytea:
		return c.Raw, nil
	default:
		return c.Raw, nil
	}
}
