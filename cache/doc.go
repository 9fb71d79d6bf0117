// Package cache implements Cache from spec.md 4.9: a per-reactor,
// single-flight get-or-produce store over entity.Wrapper artifacts, with
// a segmented (probation/protected) LRU admission policy backed by a
// capped ghost set, and a tag-to-fingerprint secondary index for
// O(#entries-with-tag) tag invalidation.
package cache
