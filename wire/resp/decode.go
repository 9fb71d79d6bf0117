package resp

import (
	"bytes"
	"fmt"
	"strconv"
)

// Decoder incrementally parses a stream of RESP2 values. Feed appends
// bytes; Next decodes the next complete top-level value, or reports
// ok=false when the buffered bytes don't yet hold one.
//
// Unlike pg.Decoder's length-prefixed frames, a RESP2 array's extent isn't
// known until its elements are themselves parsed, so Next re-attempts the
// whole current top-level value from the decoder's unconsumed offset on
// every call rather than resuming a partially-built structure — it never
// re-scans bytes belonging to an already-emitted value, only the one still
// being assembled, which keeps parsing proportional to the bytes in the
// frame actually being decoded.
type Decoder struct {
	buf []byte
	off int
}

func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

func (d *Decoder) Next() (Value, bool, error) {
	if d.off > 0 && d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	}
	v, rest, ok, err := parseValue(d.buf[d.off:])
	if err != nil {
		return Value{}, false, err
	}
	if !ok {
		return Value{}, false, nil
	}
	consumed := len(d.buf[d.off:]) - len(rest)
	d.off += consumed
	return v, true, nil
}

// parseValue attempts to decode one value from data. On success it returns
// the value and the unconsumed remainder. If data doesn't yet hold a
// complete value, ok is false and data is returned unmodified — the caller
// must not treat this as an error, only as "need more bytes".
func parseValue(data []byte) (v Value, rest []byte, ok bool, err error) {
	if len(data) == 0 {
		return Value{}, data, false, nil
	}
	typ := data[0]
	body := data[1:]
	switch typ {
	case '+':
		line, after, found := readLine(body)
		if !found {
			return Value{}, data, false, nil
		}
		return Value{Kind: SimpleString, Str: string(line)}, after, true, nil
	case '-':
		line, after, found := readLine(body)
		if !found {
			return Value{}, data, false, nil
		}
		return Value{Kind: Error, Str: string(line)}, after, true, nil
	case ':':
		line, after, found := readLine(body)
		if !found {
			return Value{}, data, false, nil
		}
		n, perr := strconv.ParseInt(string(line), 10, 64)
		if perr != nil {
			return Value{}, nil, false, &ProtocolError{Reason: "malformed integer: " + perr.Error()}
		}
		return Value{Kind: Integer, Int: n}, after, true, nil
	case '$':
		return parseBulkString(body, data)
	case '*':
		return parseArray(body, data)
	default:
		return Value{}, nil, false, &ProtocolError{Reason: fmt.Sprintf("unrecognized type byte %q", typ)}
	}
}

func parseBulkString(body, orig []byte) (Value, []byte, bool, error) {
	line, after, found := readLine(body)
	if !found {
		return Value{}, orig, false, nil
	}
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return Value{}, nil, false, &ProtocolError{Reason: "malformed bulk string length: " + err.Error()}
	}
	if n < 0 {
		return Value{Kind: BulkString, Null: true}, after, true, nil
	}
	need := int(n) + 2
	if len(after) < need {
		return Value{}, orig, false, nil
	}
	if after[n] != '\r' || after[n+1] != '\n' {
		return Value{}, nil, false, &ProtocolError{Reason: "bulk string missing CRLF terminator"}
	}
	return Value{Kind: BulkString, Str: string(after[:n])}, after[need:], true, nil
}

func parseArray(body, orig []byte) (Value, []byte, bool, error) {
	line, after, found := readLine(body)
	if !found {
		return Value{}, orig, false, nil
	}
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return Value{}, nil, false, &ProtocolError{Reason: "malformed array length: " + err.Error()}
	}
	if n < 0 {
		return Value{Kind: Array, Null: true}, after, true, nil
	}
	elems := make([]Value, 0, n)
	cur := after
	for i := int64(0); i < n; i++ {
		elem, next, ok, err := parseValue(cur)
		if err != nil {
			return Value{}, nil, false, err
		}
		if !ok {
			return Value{}, orig, false, nil
		}
		elems = append(elems, elem)
		cur = next
	}
	return Value{Kind: Array, Array: elems}, cur, true, nil
}

func readLine(data []byte) (line []byte, rest []byte, ok bool) {
	idx := bytes.Index(data, []byte("\r\n"))
	if idx < 0 {
		return nil, nil, false
	}
	return data[:idx], data[idx+2:], true
}
