package backendconn

import (
	"fmt"
	"strconv"
	"strings"
)

// PGConnConfig is the parsed form of a PostgreSQL KV connection string, per
// spec.md 6's "connection string KV-encoded with at least host, port,
// dbname, user, password".
type PGConnConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ParsePGConnString parses a whitespace-separated `key=value` connection
// string. Values containing spaces may be single-quoted; inside quotes a
// backslash makes the next character literal (so `\'` and `\\` yield `'`
// and `\`), matching the form PG client libraries accept.
func ParsePGConnString(s string) (PGConnConfig, error) {
	var cfg PGConnConfig
	pairs, err := splitPGConnPairs(s)
	if err != nil {
		return PGConnConfig{}, err
	}
	for _, p := range pairs {
		switch p.key {
		case "host":
			cfg.Host = p.value
		case "port":
			n, err := strconv.Atoi(p.value)
			if err != nil {
				return PGConnConfig{}, fmt.Errorf("backendconn: invalid port %q: %w", p.value, err)
			}
			cfg.Port = n
		case "dbname":
			cfg.Database = p.value
		case "user":
			cfg.User = p.value
		case "password":
			cfg.Password = p.value
		default:
			// unrecognized keys are ignored, matching real PG client
			// libraries' tolerance of libpq options this relay doesn't need.
		}
	}
	if cfg.Host == "" {
		return PGConnConfig{}, fmt.Errorf("backendconn: connection string missing host")
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	return cfg, nil
}

type pgConnPair struct{ key, value string }

func splitPGConnPairs(s string) ([]pgConnPair, error) {
	var pairs []pgConnPair
	i := 0
	for i < len(s) {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		for i < len(s) && s[i] != '=' && !isSpace(s[i]) {
			i++
		}
		key := s[start:i]
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) || s[i] != '=' {
			return nil, fmt.Errorf("backendconn: malformed connection string near %q", key)
		}
		i++ // consume '='
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		var value string
		if i < len(s) && s[i] == '\'' {
			i++
			var b strings.Builder
			for i < len(s) && s[i] != '\'' {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				b.WriteByte(s[i])
				i++
			}
			if i >= len(s) {
				return nil, fmt.Errorf("backendconn: unterminated quoted value for %q", key)
			}
			i++ // consume closing quote
			value = b.String()
		} else {
			start = i
			for i < len(s) && !isSpace(s[i]) {
				i++
			}
			value = s[start:i]
		}
		pairs = append(pairs, pgConnPair{key: key, value: value})
	}
	return pairs, nil
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }
