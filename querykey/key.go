package querykey

import (
	"bytes"

	"github.com/jcailloux/relais-core/wire/pg"
	"github.com/zeebo/xxh3"
)

// QueryCacheKey is a request's fingerprint, per spec.md 4.8: a 64-bit
// xxh3 hash of a buffer the normalized template and ordered typed
// parameters were written into, plus the buffer itself for the
// tie-breaking byte-identical comparison a hash match alone can't prove.
type QueryCacheKey struct {
	Hash   uint64
	Buffer []byte
}

// BuildKey constructs the QueryCacheKey for a normalized template and its
// ordered parameter values, as produced by Parser.Parse.
func BuildKey(template string, params []pg.Param) QueryCacheKey {
	var w writer
	w.writeTemplate(template)
	w.writeParams(params)
	buf := w.bytes()
	return QueryCacheKey{Hash: xxh3.Hash(buf), Buffer: buf}
}

// Equal reports whether k and other are the same fingerprint: their
// hashes must match AND their underlying buffers must be byte-identical,
// per spec.md 4.8 ("hash is not a proof of equality").
func (k QueryCacheKey) Equal(other QueryCacheKey) bool {
	return k.Hash == other.Hash && bytes.Equal(k.Buffer, other.Buffer)
}
