package batch

import "errors"

// ErrNotFound completes a PendingLookup whose key was absent from its
// batch's result set, per spec.md 4.7: "missing keys produce a not-found
// completion for those waiters."
var ErrNotFound = errors.New("batch: key not found")

// CancelledError marks a lookup whose caller cancelled its Task before the
// batch it landed in was issued or completed.
type CancelledError struct{}

func (e *CancelledError) Error() string { return "batch: lookup cancelled" }
