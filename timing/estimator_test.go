package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPGNetworkTimeBootstrapsAsRunningMean(t *testing.T) {
	e := New()
	require.True(t, e.IsPGBootstrapping())

	e.UpdatePGNetworkTime(1_000_000, 0)
	e.UpdatePGNetworkTime(3_000_000, 0)
	// running mean of two samples: (1ms + 3ms) / 2 = 2ms
	require.InDelta(t, 2_000_000, float64(e.pg.value()), 1)
}

func TestPGNetworkTimeSwitchesToEMAAfterBootstrapThreshold(t *testing.T) {
	e := New()
	for i := 0; i < kBootstrapThreshold; i++ {
		e.UpdatePGNetworkTime(1_000_000, 0)
	}
	require.False(t, e.IsPGBootstrapping())
	before := e.pg.value()

	e.UpdatePGNetworkTime(2_000_000, 0)
	after := e.pg.value()
	require.Greater(t, after, before)
	// EMA step, not a running-mean step: moves by exactly alpha * delta.
	want := float64(before) + emaAlpha*(2_000_000-float64(before))
	require.InDelta(t, want, float64(after), 1)
}

func TestNetworkTimeSubtractsAttributedSQLTime(t *testing.T) {
	e := New()
	e.UpdatePGNetworkTime(5_000_000, 3_000_000)
	require.Equal(t, time.Duration(2_000_000), e.pg.value())
}

func TestNetworkTimeClampsNegativeRemainderToZero(t *testing.T) {
	e := New()
	e.UpdatePGNetworkTime(1_000_000, 5_000_000)
	require.Equal(t, time.Duration(0), e.pg.value())
}

func TestPGStalenessAfterFiveSeconds(t *testing.T) {
	e := New()
	require.True(t, e.IsPGStale(), "no sample yet should read as stale")
	e.UpdatePGNetworkTime(1_000_000, 0)
	require.False(t, e.IsPGStale())
}

func TestSQLTimingPerKeyKeyedByStringIdentityNotContent(t *testing.T) {
	e := New()
	sqlA := "SELECT * FROM widgets WHERE id = ANY($1)"
	sqlB := string([]byte("SELECT * FROM widgets WHERE id = ANY($1)")) // same text, distinct backing array

	e.UpdateSQLTimingPerKey(sqlA, 4, 4_000_000)
	require.Equal(t, time.Duration(1_000_000), e.GetRequestTime(sqlA))
	require.Equal(t, time.Duration(0), e.GetRequestTime(sqlB))
}

func TestSQLTimingPerKeyEMAConverges(t *testing.T) {
	e := New()
	sql := "SELECT * FROM widgets WHERE id = ANY($1)"
	e.UpdateSQLTimingPerKey(sql, 1, 1_000_000)
	require.Equal(t, time.Duration(1_000_000), e.GetRequestTime(sql))

	e.UpdateSQLTimingPerKey(sql, 1, 2_000_000)
	want := (1-emaAlpha)*1_000_000 + emaAlpha*2_000_000
	require.InDelta(t, want, float64(e.GetRequestTime(sql)), 1)
}

func TestIsSQLBootstrappingUntilFirstSample(t *testing.T) {
	e := New()
	sql := "SELECT * FROM widgets WHERE id = ANY($1)"
	require.True(t, e.IsSQLBootstrapping(sql))
	e.UpdateSQLTimingPerKey(sql, 1, 1_000_000)
	require.False(t, e.IsSQLBootstrapping(sql))
}

func TestSQLTimingPerKeyIgnoresZeroKeys(t *testing.T) {
	e := New()
	e.UpdateSQLTimingPerKey("anything", 0, 1_000_000)
	require.Equal(t, time.Duration(0), e.GetRequestTime("anything"))
}

func TestCanMergePG(t *testing.T) {
	require.True(t, CanMergePG(0, 5*time.Millisecond))
	require.True(t, CanMergePG(1*time.Millisecond, 5*time.Millisecond))
	require.False(t, CanMergePG(1*time.Millisecond, 5*time.Millisecond+time.Nanosecond))
	require.True(t, CanMergePG(3*time.Millisecond, 3*time.Millisecond))
}
