// Package pg implements the client side of the PostgreSQL extended-query
// binary protocol (protocol version 3): a stream-oriented encoder that
// produces Parse/Bind/Describe/Execute/Sync message sequences, and an
// incremental decoder that turns a byte stream into high-level events
// without backtracking over partial frames.
//
// Neither side interprets SQL; the encoder only frames parameters the
// caller has already typed (see Param), and the decoder only frames bytes
// the caller interprets against column type OIDs (see DecodeColumnValue).
package pg

import "encoding/binary"

// Frontend (client→server) message type bytes.
const (
	msgParse    = 'P'
	msgBind     = 'B'
	msgDescribe = 'D'
	msgExecute  = 'E'
	msgSync     = 'S'
	msgFlush    = 'H'
)

// Backend (server→client) message type bytes.
const (
	MsgParseComplete        = '1'
	MsgBindComplete         = '2'
	MsgRowDescription       = 'T'
	MsgDataRow              = 'D'
	MsgCommandComplete      = 'C'
	MsgReadyForQuery        = 'Z'
	MsgErrorResponse        = 'E'
	MsgNoticeResponse       = 'N'
	MsgNoData               = 'n'
	MsgEmptyQueryResponse   = 'I'
	MsgParameterStatus      = 'S'
	MsgBackendKeyData       = 'K'
	MsgAuthenticationOK     = 'R'
	MsgParameterDescription = 't'
)

// DescribeTarget selects what a Describe message describes.
type DescribeTarget byte

const (
	DescribeStatement DescribeTarget = 'S'
	DescribePortal    DescribeTarget = 'P'
)

// appendMessage writes a length-prefixed frontend message: 1 type byte, a
// big-endian int32 length (including itself, excluding the type byte), then
// body. Mirrors how every PG frontend message is framed.
func appendMessage(buf []byte, typ byte, body []byte) []byte {
	buf = append(buf, typ)
	lenPos := len(buf)
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, body...)
	binary.BigEndian.PutUint32(buf[lenPos:], uint32(len(body)+4))
	return buf
}

func appendInt16(buf []byte, v int16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(v))
	return append(buf, tmp[:]...)
}

func appendInt32(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

func appendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}
