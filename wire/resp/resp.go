// Package resp implements RESP2, the text request/reply protocol Redis and
// its wire-compatible peers speak: a writer producing multi-bulk,
// binary-safe command arrays, and an incremental parser recognizing
// simple strings, errors, integers, bulk strings, and arrays — null bulk
// strings and null arrays are distinct values, per spec.md 4.3.2.
package resp

import "fmt"

// Kind tags the RESP2 type of a decoded Value.
type Kind int

const (
	SimpleString Kind = iota
	Error
	Integer
	BulkString
	Array
)

// Value is one decoded (or to-be-encoded) RESP2 value.
//
// Null distinguishes a null bulk string ($-1\r\n) or null array (*-1\r\n)
// from an empty one — Str == "" and Array == nil are both legitimate
// non-null values (an empty bulk string, an empty array).
type Value struct {
	Kind  Kind
	Str   string  // SimpleString, Error, BulkString payload
	Int   int64   // Integer
	Null  bool    // BulkString, Array
	Array []Value // Array elements, when not Null
}

func (v Value) String() string {
	switch v.Kind {
	case SimpleString:
		return v.Str
	case Error:
		return "ERR " + v.Str
	case Integer:
		return fmt.Sprintf("%d", v.Int)
	case BulkString:
		if v.Null {
			return "<nil>"
		}
		return v.Str
	case Array:
		if v.Null {
			return "<nil array>"
		}
		return fmt.Sprintf("%v", v.Array)
	default:
		return "<invalid>"
	}
}

// IsError reports whether v is a RESP2 Error reply.
func (v Value) IsError() bool { return v.Kind == Error }

// ProtocolError marks malformed RESP2 input. Per spec.md 4.3, the
// Connection that produced it must be torn down.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "resp: protocol error: " + e.Reason }
