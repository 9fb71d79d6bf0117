package querykey

import (
	"strconv"
	"strings"

	"github.com/jcailloux/relais-core/wire/pg"
)

// Parser extracts the normalized statement shape and an ordered typed
// parameter list from a raw SQL statement, per spec.md 4.8. Literal
// values (quoted strings, numbers, booleans, NULL) are replaced with
// positional placeholders in the returned template and collected as
// pg.Param values in encounter order — the same typed parameter vocabulary
// wire/pg's extended-query encoder already speaks, so a cache hit's
// template and params can be re-bound directly against a prepared
// statement without re-deriving their wire types.
type Parser struct{}

// Parse normalizes raw into a template with `$1`, `$2`, ... placeholders
// and the ordered parameter values those placeholders stand for.
func (Parser) Parse(raw string) (template string, params []pg.Param) {
	var tmpl strings.Builder
	n := len(raw)
	i := 0
	for i < n {
		c := raw[i]
		switch {
		case c == '\'':
			lit, next := scanQuoted(raw, i, '\'')
			params = append(params, pg.TextParam(lit))
			tmpl.WriteString(placeholder(len(params)))
			i = next

		case c == '"':
			// double-quoted identifier: copy through verbatim, it is not a
			// literal value and must not be parameterized.
			lit, next := scanQuoted(raw, i, '"')
			tmpl.WriteByte('"')
			tmpl.WriteString(strings.ReplaceAll(lit, `"`, `""`))
			tmpl.WriteByte('"')
			i = next

		case isNumberStart(raw, i):
			lit, next := scanNumber(raw, i)
			params = append(params, numberParam(lit))
			tmpl.WriteString(placeholder(len(params)))
			i = next

		case matchesKeyword(raw, i, "true"):
			params = append(params, pg.BoolParam(true))
			tmpl.WriteString(placeholder(len(params)))
			i += len("true")

		case matchesKeyword(raw, i, "false"):
			params = append(params, pg.BoolParam(false))
			tmpl.WriteString(placeholder(len(params)))
			i += len("false")

		case matchesKeyword(raw, i, "null"):
			params = append(params, pg.NullParam())
			tmpl.WriteString(placeholder(len(params)))
			i += len("null")

		default:
			tmpl.WriteByte(c)
			i++
		}
	}
	return tmpl.String(), params
}

func placeholder(n int) string { return "$" + strconv.Itoa(n) }

// scanQuoted consumes a quote-delimited literal starting at raw[i] (which
// must equal quote), honoring the SQL convention of a doubled quote as an
// escaped literal quote character, and returns its unescaped content plus
// the index just past the closing quote.
func scanQuoted(raw string, i int, quote byte) (content string, next int) {
	var sb strings.Builder
	j := i + 1
	n := len(raw)
	for j < n {
		if raw[j] == quote {
			if j+1 < n && raw[j+1] == quote {
				sb.WriteByte(quote)
				j += 2
				continue
			}
			j++
			break
		}
		sb.WriteByte(raw[j])
		j++
	}
	return sb.String(), j
}

// isNumberStart reports whether raw[i] begins a numeric literal not
// already part of an identifier (e.g. the `1` in `col1`).
func isNumberStart(raw string, i int) bool {
	c := raw[i]
	if c < '0' || c > '9' {
		if c != '-' || i+1 >= len(raw) || raw[i+1] < '0' || raw[i+1] > '9' {
			return false
		}
	}
	if i > 0 && isIdentByte(raw[i-1]) {
		return false
	}
	return true
}

func scanNumber(raw string, i int) (lit string, next int) {
	j := i
	n := len(raw)
	if raw[j] == '-' {
		j++
	}
	for j < n && (isDigit(raw[j]) || raw[j] == '.') {
		j++
	}
	return raw[i:j], j
}

func numberParam(lit string) pg.Param {
	if strings.Contains(lit, ".") {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return pg.TextParam(lit)
		}
		return pg.Float64Param(f)
	}
	v, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return pg.TextParam(lit)
	}
	return pg.Int64Param(v)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c)
}

// matchesKeyword reports whether raw contains the case-insensitive
// keyword kw starting at i, bounded on both sides by non-identifier
// characters so it doesn't match inside a longer identifier.
func matchesKeyword(raw string, i int, kw string) bool {
	if i > 0 && isIdentByte(raw[i-1]) {
		return false
	}
	if i+len(kw) > len(raw) {
		return false
	}
	if !strings.EqualFold(raw[i:i+len(kw)], kw) {
		return false
	}
	end := i + len(kw)
	if end < len(raw) && isIdentByte(raw[end]) {
		return false
	}
	return true
}
