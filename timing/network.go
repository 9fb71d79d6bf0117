package timing

import (
	"sync"
	"time"
)

const (
	// kBootstrapThreshold is spec.md 4.6's direct-assignment-to-EMA switch
	// point: the first 16 samples blend via a running mean so a cold
	// estimator doesn't start from zero and take forever to converge.
	kBootstrapThreshold = 16
	emaAlpha            = 0.1
	staleAfter          = 5 * time.Second
)

// networkEstimate is one backend's network-time moving average: the
// component of request latency not explained by the backend's own
// processing time, per spec.md 4.6's `update_*_network_time`.
type networkEstimate struct {
	mu             sync.RWMutex
	ns             float64
	bootstrapCount int
	lastSample     time.Time
}

// update folds in one sample: sampleNs is the observed round-trip time,
// subtractNs is the portion attributable to backend processing (the
// caller's own timing, e.g. a PG sql_time_ns). Only the non-negative
// remainder counts as network time.
func (e *networkEstimate) update(sampleNs, subtractNs int64) {
	delta := float64(sampleNs - subtractNs)
	if delta < 0 {
		delta = 0
	}
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bootstrapCount < kBootstrapThreshold {
		e.ns = (e.ns*float64(e.bootstrapCount) + delta) / float64(e.bootstrapCount+1)
		e.bootstrapCount++
	} else {
		e.ns = (1-emaAlpha)*e.ns + emaAlpha*delta
	}
	e.lastSample = now
}

func (e *networkEstimate) value() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return time.Duration(e.ns)
}

func (e *networkEstimate) isBootstrapping() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bootstrapCount < kBootstrapThreshold
}

func (e *networkEstimate) isStale() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSample.IsZero() || time.Since(e.lastSample) > staleAfter
}
