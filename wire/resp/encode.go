package resp

import "strconv"

// EncodeCommand builds the multi-bulk array RESP2 uses to frame an outbound
// command: every argument is sent as a binary-safe bulk string, regardless
// of whether it looks like text.
func EncodeCommand(args ...[]byte) []byte {
	buf := append([]byte{'*'}, []byte(strconv.Itoa(len(args)))...)
	buf = append(buf, '\r', '\n')
	for _, a := range args {
		buf = appendBulkString(buf, a)
	}
	return buf
}

// EncodeCommandStrings is EncodeCommand for plain string arguments, the
// common case of a command name plus string arguments.
func EncodeCommandStrings(args ...string) []byte {
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	return EncodeCommand(raw...)
}

// Encode renders an arbitrary Value back to its RESP2 wire form. The
// Connection never needs this for requests (EncodeCommand covers the only
// outbound shape, per spec.md 4.3.2), but it's useful for constructing test
// fixtures that exercise the decoder end-to-end.
func Encode(v Value) []byte {
	switch v.Kind {
	case SimpleString:
		return append([]byte{'+'}, appendCRLF([]byte(v.Str))...)
	case Error:
		return append([]byte{'-'}, appendCRLF([]byte(v.Str))...)
	case Integer:
		return append([]byte{':'}, appendCRLF([]byte(strconv.FormatInt(v.Int, 10)))...)
	case BulkString:
		if v.Null {
			return []byte("$-1\r\n")
		}
		return appendBulkString(nil, []byte(v.Str))
	case Array:
		if v.Null {
			return []byte("*-1\r\n")
		}
		buf := append([]byte{'*'}, []byte(strconv.Itoa(len(v.Array)))...)
		buf = append(buf, '\r', '\n')
		for _, elem := range v.Array {
			buf = append(buf, Encode(elem)...)
		}
		return buf
	default:
		panic("resp: unknown value kind")
	}
}

func appendBulkString(buf []byte, data []byte) []byte {
	buf = append(buf, '$')
	buf = append(buf, strconv.Itoa(len(data))...)
	buf = append(buf, '\r', '\n')
	buf = append(buf, data...)
	buf = append(buf, '\r', '\n')
	return buf
}

func appendCRLF(s []byte) []byte {
	return append(s, '\r', '\n')
}
