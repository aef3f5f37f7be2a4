// Package errkind defines the error kinds shared by every engine operation.
//
// Callers classify failures with errors.Is against the sentinel kinds:
//
//	if errors.Is(err, errkind.ErrNotFound) { ... }
//
// Operations wrap causes with Wrap so the op name and the cause survive.
package errkind

import (
	"errors"
	"strings"
)

// Sentinel kinds.
var (
	// ErrValidation marks malformed input rejected before any state change.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an unknown event or venue.
	ErrNotFound = errors.New("not found")
	// ErrUpstream marks a failure of the durable store or the cache primitive.
	ErrUpstream = errors.New("upstream error")
)

// Error carries the failing operation, its kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		if e.Kind != nil {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports a match on the kind, so errors.Is(err, ErrNotFound) holds
// regardless of the cause.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// New returns an error of the given kind with a message.
func New(op string, kind error, msg string) error {
	var cause error
	if msg != "" {
		cause = errors.New(msg)
	}
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Wrap classifies err under kind. A nil err returns nil.
func Wrap(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Upstream wraps err as ErrUpstream unless it already carries a kind.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return Wrap(op, ErrUpstream, err)
}

// KindOf returns the first known kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrUpstream} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Label returns a short metric label for err's kind.
func Label(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation"
	case ErrNotFound:
		return "not_found"
	case ErrUpstream:
		return "upstream"
	default:
		return "internal"
	}
}
