// Package errkind attaches an operation name and a sentinel kind to errors.
//
// Packages declare their sentinel kinds in errors.go and wrap causes with
// Wrap so callers can match either the kind or the cause via errors.Is.
package errkind

import (
	"errors"
	"strings"
)

// Error carries the failing operation, its kind, and the underlying cause.
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

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// New returns an error of the given kind with no cause.
func New(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap returns err tagged with op and kind. A nil err yields nil.
func Wrap(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Op returns err prefixed with op and no kind. A nil err yields nil.
func Op(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Is reports whether err is of the given kind. It is a shorthand for errors.Is.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
