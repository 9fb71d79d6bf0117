// Package entity implements the cache-artifact wrapper spec.md treats as an
// external collaborator: a generated, per-entity mapping produces a binary
// and a JSON view of a value on demand, and this package gives both views a
// shared, lazily-computed, refcounted home so cache.Cache can hand the same
// artifact to many concurrent readers.
package entity

// Codec supplies the two serializations a Wrapper lazily materializes. A
// project's code generator (spec.md 9's "annotated IDL" replacement for the
// source's template-metaprogrammed mapping) produces one Codec value per
// entity type; this package never generates these itself.
type Codec[T any] struct {
	EncodeBinary func(T) []byte
	EncodeJSON   func(T) []byte
}
