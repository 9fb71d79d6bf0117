package pg

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EventKind tags a decoded backend message.
type EventKind int

const (
	EventParseComplete EventKind = iota
	EventBindComplete
	EventRowDescription
	EventDataRow
	EventCommandComplete
	EventReadyForQuery
	EventError
	EventNotice
	EventNoData
	EventEmptyQuery
	EventAuthenticationOK
	EventAuthenticationUnsupported
	EventParameterStatus
	EventBackendKeyData
)

// FieldDescriptor is one column's metadata from a RowDescription message.
type FieldDescriptor struct {
	Name         string
	TableOID     int32
	ColumnAttr   int16
	DataTypeOID  int32
	TypeSize     int16
	TypeModifier int32
	FormatCode   int16
}

// Event is one fully-decoded backend message.
type Event struct {
	Kind   EventKind
	Fields []FieldDescriptor // EventRowDescription
	Row    []Column          // EventDataRow
	Tag    string            // EventCommandComplete
	Status byte              // EventReadyForQuery: 'I' idle, 'T' in transaction, 'E' failed transaction
	Info   map[byte]string   // EventError, EventNotice: field code -> text (e.g. 'M' message, 'C' sqlstate)
	Name   string            // EventParameterStatus: parameter name
	Value  string            // EventParameterStatus: parameter value
	PID    int32             // EventBackendKeyData
	Secret int32             // EventBackendKeyData
}

// ProtocolError marks malformed input: a message whose internal structure
// doesn't match its declared length, an unrecognized message type, or a
// truncated field terminator. Per spec.md 4.3, any ProtocolError is
// permanent — the Connection that produced it must be torn down.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "pg: protocol error: " + e.Reason }

// Decoder incrementally parses a stream of backend messages. Bytes are
// appended with Feed; Next returns the next complete message, or ok=false
// if the buffered bytes don't yet contain one. Decoder never backtracks:
// once Next consumes a message it never re-inspects those bytes. It
// remembers the most recent RowDescription so DataRow columns can be
// annotated with their type OID and format code, since the wire DataRow
// message itself carries only raw bytes.
type Decoder struct {
	buf        []byte
	off        int
	lastFields []FieldDescriptor
}

// Feed appends newly-read bytes to the decoder's buffer.
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// Next attempts to decode one message from the buffered bytes. ok is false
// when more bytes are needed; the caller should Feed more and call Next
// again. A non-nil error is permanent: per spec.md 4.3, the Connection
// must be torn down.
func (d *Decoder) Next() (Event, bool, error) {
	if d.off > 0 && d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	}
	remaining := d.buf[d.off:]
	const headerLen = 5 // 1 type byte + 4 length bytes
	if len(remaining) < headerLen {
		return Event{}, false, nil
	}
	typ := remaining[0]
	length := binary.BigEndian.Uint32(remaining[1:5])
	if length < 4 {
		return Event{}, false, &ProtocolError{Reason: fmt.Sprintf("message length %d smaller than its own header", length)}
	}
	total := 1 + int(length)
	if len(remaining) < total {
		return Event{}, false, nil
	}
	body := remaining[5:total]
	d.off += total

	ev, err := d.decodeBody(typ, body)
	return ev, true, err
}

func (d *Decoder) decodeBody(typ byte, body []byte) (Event, error) {
	switch typ {
	case MsgParseComplete:
		return Event{Kind: EventParseComplete}, nil
	case MsgBindComplete:
		return Event{Kind: EventBindComplete}, nil
	case MsgNoData:
		return Event{Kind: EventNoData}, nil
	case MsgEmptyQueryResponse:
		return Event{Kind: EventEmptyQuery}, nil
	case MsgRowDescription:
		return d.decodeRowDescription(body)
	case MsgDataRow:
		return d.decodeDataRow(body)
	case MsgCommandComplete:
		tag, _, ok := readCString(body)
		if !ok {
			return Event{}, &ProtocolError{Reason: "CommandComplete missing tag"}
		}
		return Event{Kind: EventCommandComplete, Tag: tag}, nil
	case MsgReadyForQuery:
		if len(body) != 1 {
			return Event{}, &ProtocolError{Reason: "ReadyForQuery body must be 1 byte"}
		}
		return Event{Kind: EventReadyForQuery, Status: body[0]}, nil
	case MsgErrorResponse:
		info, err := decodeFields(body)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventError, Info: info}, nil
	case MsgNoticeResponse:
		info, err := decodeFields(body)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventNotice, Info: info}, nil
	case MsgAuthenticationOK:
		if len(body) < 4 {
			return Event{}, &ProtocolError{Reason: "Authentication message too short"}
		}
		if binary.BigEndian.Uint32(body) == 0 {
			return Event{Kind: EventAuthenticationOK}, nil
		}
		return Event{Kind: EventAuthenticationUnsupported}, nil
	case MsgParameterStatus:
		name, rest, ok := readCString(body)
		if !ok {
			return Event{}, &ProtocolError{Reason: "ParameterStatus name truncated"}
		}
		value, _, ok := readCString(rest)
		if !ok {
			return Event{}, &ProtocolError{Reason: "ParameterStatus value truncated"}
		}
		return Event{Kind: EventParameterStatus, Name: name, Value: value}, nil
	case MsgBackendKeyData:
		if len(body) != 8 {
			return Event{}, &ProtocolError{Reason: "BackendKeyData must be 8 bytes"}
		}
		return Event{
			Kind:   EventBackendKeyData,
			PID:    int32(binary.BigEndian.Uint32(body[0:4])),
			Secret: int32(binary.BigEndian.Uint32(body[4:8])),
		}, nil
	default:
		return Event{}, &ProtocolError{Reason: fmt.Sprintf("unrecognized message type %q", typ)}
	}
}

func (d *Decoder) decodeRowDescription(body []byte) (Event, error) {
	if len(body) < 2 {
		return Event{}, &ProtocolError{Reason: "RowDescription too short"}
	}
	count := int(binary.BigEndian.Uint16(body))
	body = body[2:]
	fields := make([]FieldDescriptor, 0, count)
	for i := 0; i < count; i++ {
		name, rest, ok := readCString(body)
		if !ok {
			return Event{}, &ProtocolError{Reason: "RowDescription field name truncated"}
		}
		body = rest
		if len(body) < 18 {
			return Event{}, &ProtocolError{Reason: "RowDescription field metadata truncated"}
		}
		f := FieldDescriptor{
			Name:         name,
			TableOID:     int32(binary.BigEndian.Uint32(body[0:4])),
			ColumnAttr:   int16(binary.BigEndian.Uint16(body[4:6])),
			DataTypeOID:  int32(binary.BigEndian.Uint32(body[6:10])),
			TypeSize:     int16(binary.BigEndian.Uint16(body[10:12])),
			TypeModifier: int32(binary.BigEndian.Uint32(body[12:16])),
			FormatCode:   int16(binary.BigEndian.Uint16(body[16:18])),
		}
		body = body[18:]
		fields = append(fields, f)
	}
	d.lastFields = fields
	return Event{Kind: EventRowDescription, Fields: fields}, nil
}

func (d *Decoder) decodeDataRow(body []byte) (Event, error) {
	if len(body) < 2 {
		return Event{}, &ProtocolError{Reason: "DataRow too short"}
	}
	count := int(binary.BigEndian.Uint16(body))
	body = body[2:]
	row := make([]Column, 0, count)
	for i := 0; i < count; i++ {
		if len(body) < 4 {
			return Event{}, &ProtocolError{Reason: "DataRow column length truncated"}
		}
		n := int32(binary.BigEndian.Uint32(body[0:4]))
		body = body[4:]
		var col Column
		if i < len(d.lastFields) {
			col.OID = d.lastFields[i].DataTypeOID
			col.FormatCode = d.lastFields[i].FormatCode
		}
		if n < 0 {
			col.Null = true
		} else {
			if len(body) < int(n) {
				return Event{}, &ProtocolError{Reason: "DataRow column value truncated"}
			}
			col.Raw = body[:n]
			body = body[n:]
		}
		row = append(row, col)
	}
	return Event{Kind: EventDataRow, Row: row}, nil
}

// decodeFields parses the repeated (code byte, cstring value) pairs used
// by ErrorResponse and NoticeResponse, terminated by a zero byte.
func decodeFields(body []byte) (map[byte]string, error) {
	info := make(map[byte]string)
	for len(body) > 0 {
		code := body[0]
		if code == 0 {
			return info, nil
		}
		body = body[1:]
		idx := bytes.IndexByte(body, 0)
		if idx < 0 {
			return nil, &ProtocolError{Reason: "error/notice field value not terminated"}
		}
		info[code] = string(body[:idx])
		body = body[idx+1:]
	}
	return nil, &ProtocolError{Reason: "error/notice fields missing terminator"}
}

func readCString(data []byte) (string, []byte, bool) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return "", nil, false
	}
	return string(data[:idx]), data[idx+1:], true
}
