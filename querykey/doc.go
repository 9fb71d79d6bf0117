// Package querykey implements QueryParser and QueryCacheKey from
// spec.md 4.8: it normalizes a raw SQL statement into a parameterized
// template plus an ordered typed parameter list, and builds a
// QueryCacheKey whose fingerprint hash (xxh3-64) is a candidate equality
// test, confirmed only by a byte-identical comparison of the underlying
// buffer the parameters and template were written into.
package querykey
