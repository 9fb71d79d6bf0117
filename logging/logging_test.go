package logging

import (
	"bytes"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

func TestNewWritesStructuredJSONAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logiface.LevelWarning)

	log.Info().Log("should be filtered out")
	require.Empty(t, buf.String())

	log.Warning().Str("backend", "pg").Log("pool degraded")
	out := buf.String()
	require.Contains(t, out, `"message":"pool degraded"`)
	require.Contains(t, out, `"backend":"pg"`)
}

func TestDisabledDropsEverything(t *testing.T) {
	log := Disabled()
	require.Equal(t, logiface.LevelDisabled, log.Level())
	log.Err().Log("never written")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]logiface.Level{
		"":        logiface.LevelInformational,
		"info":    logiface.LevelInformational,
		"DEBUG":   logiface.LevelDebug,
		"warn":    logiface.LevelWarning,
		"warning": logiface.LevelWarning,
		"error":   logiface.LevelError,
		"trace":   logiface.LevelTrace,
		"off":     logiface.LevelDisabled,
		"bogus":   logiface.LevelInformational,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}
