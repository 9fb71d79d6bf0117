package logging

import (
	"io"
	"strings"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// New builds a *logiface.Logger[logiface.Event] writing JSON lines to w at
// level, backed by zerolog the way the teacher monorepo's izerolog package
// intends: zerolog owns encoding and timestamps, logiface owns the level
// filter and structured-field API every subsystem in this module calls
// through.
func New(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	zl := zerolog.New(w).With().Timestamp().Logger()
	return izerolog.L.New(
		izerolog.L.WithZerolog(zl),
		izerolog.L.WithLevel(level),
	).Logger()
}

// Disabled returns a non-nil logger that drops every event, for call sites
// that want an explicit value rather than relying on nil's disabled
// behaviour (every accepting package treats nil identically).
func Disabled() *logiface.Logger[logiface.Event] {
	return logiface.L.New(logiface.L.WithLevel(logiface.LevelDisabled))
}

// ParseLevel maps the LOG_LEVEL config string (syslog keywords,
// case-insensitive) to a logiface.Level, defaulting to
// LevelInformational for an empty or unrecognised value.
func ParseLevel(s string) logiface.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "none":
		return logiface.LevelDisabled
	case "emerg", "emergency", "panic":
		return logiface.LevelEmergency
	case "alert", "fatal":
		return logiface.LevelAlert
	case "crit", "critical":
		return logiface.LevelCritical
	case "err", "error":
		return logiface.LevelError
	case "warn", "warning":
		return logiface.LevelWarning
	case "notice":
		return logiface.LevelNotice
	case "debug":
		return logiface.LevelDebug
	case "trace":
		return logiface.LevelTrace
	case "", "info", "informational":
		return logiface.LevelInformational
	default:
		return logiface.LevelInformational
	}
}
