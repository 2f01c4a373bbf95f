// Package fail classifies the errors this system produces into a small fixed
// taxonomy, so callers can decide between "log and continue" and "abort"
// without inspecting concrete error types across package boundaries.
package fail

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Kind identifies the failure class of an error.
type Kind int

const (
	// KindIO covers read/write/copy failures.
	KindIO Kind = iota
	// KindPermission covers access-denied failures.
	KindPermission
	// KindNotFound covers paths that vanished between scan and action.
	KindNotFound
	// KindCorruptCache covers a persisted cache that fails to parse.
	// Recovered by treating the cache as empty, never a fatal abort.
	KindCorruptCache
	// KindConfig covers invalid arguments and setup-time failures.
	// Always fatal, reported before any work starts.
	KindConfig
)

var kindNames = map[Kind]string{
	KindIO:           "io",
	KindPermission:   "permission",
	KindNotFound:     "not found",
	KindCorruptCache: "corrupt cache",
	KindConfig:       "config",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown_kind(%d)", k)
}

// Error carries a failure kind alongside the operation and path that failed.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches a kind to err. Permission and not-found conditions detected in
// the wrapped chain take precedence over the suggested kind, so callers can
// pass KindIO for generic filesystem operations.
func Wrap(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	if kind == KindIO {
		switch {
		case errors.Is(err, fs.ErrPermission):
			kind = KindPermission
		case errors.Is(err, fs.ErrNotExist):
			kind = KindNotFound
		}
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Config builds a fatal configuration error.
func Config(format string, args ...any) error {
	return &Error{Kind: KindConfig, Op: "setup", Err: fmt.Errorf(format, args...)}
}

// ClassOf reports the kind of err, unwrapping as needed. Errors without an
// explicit kind are classified from the os error predicates, defaulting to IO.
func ClassOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, fs.ErrPermission) || os.IsPermission(err):
		return KindPermission
	case errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err):
		return KindNotFound
	}
	return KindIO
}

// Is reports whether err belongs to kind k.
func Is(err error, k Kind) bool {
	return err != nil && ClassOf(err) == k
}
