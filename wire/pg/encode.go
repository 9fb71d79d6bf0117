package pg

const protocolVersion3 = 3 << 16

// StartupMessage builds the one frontend message with no leading type byte:
// a protocol version followed by null-terminated key/value parameter pairs,
// terminated by an empty string. This is what opens a PG connection before
// any extended-query message is valid — spec.md 4.4's Connecting to
// Handshaking transition.
func StartupMessage(user, database string) []byte {
	var body []byte
	body = appendInt32(body, protocolVersion3)
	body = appendCString(body, "user")
	body = appendCString(body, user)
	body = appendCString(body, "database")
	body = appendCString(body, database)
	body = append(body, 0)

	var buf []byte
	lenPos := len(buf)
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, body...)
	return putMessageLength(buf, lenPos)
}

func putMessageLength(buf []byte, lenPos int) []byte {
	length := len(buf) - lenPos
	buf[lenPos] = byte(length >> 24)
	buf[lenPos+1] = byte(length >> 16)
	buf[lenPos+2] = byte(length >> 8)
	buf[lenPos+3] = byte(length)
	return buf
}

// resultFormatBinary requests every result column in binary format: a
// format-code count of 1 applies that single code to all columns, per the
// Bind message's format.
var resultFormatBinary = []int16{1}

// Exec builds the Parse/Bind/Describe/Execute/Sync sequence for a one-shot
// parameterized query against the unnamed statement and unnamed portal —
// Connection.exec in spec.md 4.4.
func Exec(sql string, params []Param) []byte {
	var buf []byte
	buf = appendParse(buf, "", sql, nil)
	buf = appendBind(buf, "", "", params)
	buf = appendDescribe(buf, DescribePortal, "")
	buf = appendExecute(buf, "", 0)
	buf = appendSync(buf)
	return buf
}

// Prepare builds the Parse/Sync sequence that defines a named statement —
// Connection.prepare in spec.md 4.4.
func Prepare(name, sql string) []byte {
	var buf []byte
	buf = appendParse(buf, name, sql, nil)
	buf = appendSync(buf)
	return buf
}

// ExecPrepared builds the Bind/Describe/Execute/Sync sequence that invokes
// an already-prepared named statement — Connection.exec_prepared in
// spec.md 4.4.
func ExecPrepared(name string, params []Param) []byte {
	var buf []byte
	buf = appendBind(buf, "", name, params)
	buf = appendDescribe(buf, DescribePortal, "")
	buf = appendExecute(buf, "", 0)
	buf = appendSync(buf)
	return buf
}

func appendParse(buf []byte, name, sql string, paramOIDs []int32) []byte {
	var body []byte
	body = appendCString(body, name)
	body = appendCString(body, sql)
	body = appendInt16(body, int16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		body = appendInt32(body, oid)
	}
	return appendMessage(buf, msgParse, body)
}

func appendBind(buf []byte, portal, statement string, params []Param) []byte {
	var body []byte
	body = appendCString(body, portal)
	body = appendCString(body, statement)

	body = appendInt16(body, int16(len(params)))
	for _, p := range params {
		body = appendInt16(body, p.formatCode())
	}

	body = appendInt16(body, int16(len(params)))
	for _, p := range params {
		enc := p.encode()
		if p.Kind == KindNull {
			body = appendInt32(body, -1)
			continue
		}
		body = appendInt32(body, int32(len(enc)))
		body = append(body, enc...)
	}

	body = appendInt16(body, int16(len(resultFormatBinary)))
	for _, fc := range resultFormatBinary {
		body = appendInt16(body, fc)
	}

	return appendMessage(buf, msgBind, body)
}

func appendDescribe(buf []byte, target DescribeTarget, name string) []byte {
	var body []byte
	body = append(body, byte(target))
	body = appendCString(body, name)
	return appendMessage(buf, msgDescribe, body)
}

func appendExecute(buf []byte, portal string, maxRows int32) []byte {
	var body []byte
	body = appendCString(body, portal)
	body = appendInt32(body, maxRows)
	return appendMessage(buf, msgExecute, body)
}

func appendSync(buf []byte) []byte {
	return appendMessage(buf, msgSync, nil)
}
