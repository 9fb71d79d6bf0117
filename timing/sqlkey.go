package timing

import "unsafe"

// sqlKey identifies a SQL template by the address of its string data, not
// its contents — spec.md 4.6 is explicit that this is intentional: callers
// pass stable string literals (the statement templates baked into the
// relay's query handlers), so the backing array's address is a fast,
// allocation-free stand-in for the template's identity. Passing a
// dynamically-built string with the same text but a different backing
// array is, by design, a distinct key.
type sqlKey uintptr

func keyOf(sql string) sqlKey {
	return sqlKey(uintptr(unsafe.Pointer(unsafe.StringData(sql))))
}
