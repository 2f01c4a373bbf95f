// Package hints provides a mechanism for identifying "soft failures" or
// ignorable errors within the system.
//
// Some errors are not failures that should count against a run: a duplicate
// that vanished before deletion, or a scan that found nothing to do. Producers
// label these errors as hints; consumers detect them behaviorally without
// importing sentinel errors from the producing package.
package hints

import "errors"

type hintErr struct {
	err error
}

func (h *hintErr) Error() string {
	if h == nil || h.err == nil {
		return "unknown hint"
	}
	return h.err.Error()
}
func (h *hintErr) IsHint() bool  { return true }
func (h *hintErr) Unwrap() error { return h.err }

// Wrap takes an existing error and "promotes" it to a hint.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &hintErr{err: err}
}

// IsHint checks if any error in the chain behaves like a hint.
func IsHint(err error) bool {
	var h interface{ IsHint() bool }
	return errors.As(err, &h) && h.IsHint()
}
