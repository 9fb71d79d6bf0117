package cache

import (
	"github.com/jcailloux/relais-core/entity"
	"github.com/jcailloux/relais-core/querykey"
	"github.com/jcailloux/relais-core/reactor"
)

// segment is which half of the segmented LRU a cacheEntry currently lives
// in, per spec.md 4.9.2.
type segment uint8

const (
	segmentProbation segment = iota
	segmentProtected
)

type cacheEntry[T any] struct {
	key      querykey.QueryCacheKey
	artifact *entity.Wrapper[T]
	tags     []string
	size     int
	segment  segment
}

// ghostRecord is the memory left behind by an evicted fingerprint: just a
// hit counter, per the original's GhostEntry carrying no data of its own.
type ghostRecord struct {
	hits int
}

// inflightEntry tracks a single producer Task shared by every concurrent
// get-or-produce caller for the same fingerprint.
type inflightEntry[T any] struct {
	key         querykey.QueryCacheKey
	task        *reactor.Task[*entity.Wrapper[T]]
	tags        []string
	invalidated bool
}

// Producer produces the artifact for a fingerprint miss. It returns a Task
// so production can suspend on I/O (a backend query via pool/batch) like
// everything else in this module.
type Producer[T any] func() *reactor.Task[*entity.Wrapper[T]]

// SizeFunc reports the byte weight an artifact counts against the cache's
// total-byte capacity.
type SizeFunc[T any] func(*entity.Wrapper[T]) int
