package timing

import (
	"sync"
	"time"
)

// Estimator is TimingEstimator from spec.md 4.6. Zero value is usable but
// New is preferred; it pre-sizes the per-SQL map for typical handler
// counts.
type Estimator struct {
	pg    networkEstimate
	redis networkEstimate

	mu     sync.RWMutex
	perSQL map[sqlKey]*sqlEstimate
}

type sqlEstimate struct {
	mu          sync.Mutex
	ns          float64
	initialized bool
}

// New returns a ready-to-use Estimator.
func New() *Estimator {
	return &Estimator{perSQL: make(map[sqlKey]*sqlEstimate, 64)}
}

// UpdatePGNetworkTime folds in one PG round-trip sample, attributing
// sqlTimeNs of it to backend processing.
func (e *Estimator) UpdatePGNetworkTime(sampleNs, sqlTimeNs int64) {
	e.pg.update(sampleNs, sqlTimeNs)
}

// UpdateRedisNetworkTime is UpdatePGNetworkTime's Redis analogue.
func (e *Estimator) UpdateRedisNetworkTime(sampleNs, sqlTimeNs int64) {
	e.redis.update(sampleNs, sqlTimeNs)
}

// UpdateSQLTimingPerKey folds a completed multi-key fetch's cost into sql's
// per-key EMA: per_key = max(total - pg_network_time, 0) / n_keys.
func (e *Estimator) UpdateSQLTimingPerKey(sql string, nKeys int, totalNs int64) {
	if nKeys <= 0 {
		return
	}
	perKey := float64(totalNs) - float64(e.pg.value())
	if perKey < 0 {
		perKey = 0
	}
	perKey /= float64(nKeys)

	est := e.entry(sql)
	est.mu.Lock()
	defer est.mu.Unlock()
	if !est.initialized {
		est.ns = perKey
		est.initialized = true
	} else {
		est.ns = (1-emaAlpha)*est.ns + emaAlpha*perKey
	}
}

func (e *Estimator) entry(sql string) *sqlEstimate {
	key := keyOf(sql)

	e.mu.RLock()
	est, ok := e.perSQL[key]
	e.mu.RUnlock()
	if ok {
		return est
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if est, ok := e.perSQL[key]; ok {
		return est
	}
	if e.perSQL == nil {
		e.perSQL = make(map[sqlKey]*sqlEstimate)
	}
	est = &sqlEstimate{}
	e.perSQL[key] = est
	return est
}

// GetRequestTime returns the current per-key EMA for sql, or zero if no
// sample has ever been recorded for it.
func (e *Estimator) GetRequestTime(sql string) time.Duration {
	e.mu.RLock()
	est, ok := e.perSQL[keyOf(sql)]
	e.mu.RUnlock()
	if !ok {
		return 0
	}
	est.mu.Lock()
	defer est.mu.Unlock()
	return time.Duration(est.ns)
}

// IsSQLBootstrapping reports whether sql's per-key estimate has never
// received a sample yet, distinct from a genuinely-observed zero cost.
func (e *Estimator) IsSQLBootstrapping(sql string) bool {
	e.mu.RLock()
	est, ok := e.perSQL[keyOf(sql)]
	e.mu.RUnlock()
	if !ok {
		return true
	}
	est.mu.Lock()
	defer est.mu.Unlock()
	return !est.initialized
}

// IsPGBootstrapping reports whether the PG network-time estimate hasn't
// yet seen kBootstrapThreshold samples.
func (e *Estimator) IsPGBootstrapping() bool { return e.pg.isBootstrapping() }

// IsPGStale reports whether the PG network-time estimate's last sample is
// older than 5s.
func (e *Estimator) IsPGStale() bool { return e.pg.isStale() }

// IsRedisBootstrapping is IsPGBootstrapping's Redis analogue.
func (e *Estimator) IsRedisBootstrapping() bool { return e.redis.isBootstrapping() }

// IsRedisStale is IsPGStale's Redis analogue.
func (e *Estimator) IsRedisStale() bool { return e.redis.isStale() }

// CanMergePG reports whether two PG batch cost estimates are close enough
// to merge without one dominating the other's latency budget: true iff
// either side is zero or the larger is at most 5x the smaller.
func CanMergePG(a, b time.Duration) bool {
	if a <= 0 || b <= 0 {
		return true
	}
	big, small := a, b
	if small > big {
		big, small = small, big
	}
	return big <= 5*small
}
