package errors

import "errors"

// Kind classifies a domain failure so callers can branch on it without
// matching individual sentinel values.
type Kind string

const (
	KindNotFound        Kind = ErrCodeNotFound
	KindForbidden       Kind = ErrCodeForbidden
	KindValidation      Kind = ErrCodeValidation
	KindEmptyCollection Kind = ErrCodeEmptyCollection
	KindConflict        Kind = ErrCodeConflict
)

// Error is a domain error carrying a kind and a human readable reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the bare kind values below, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of its reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrEmptyCollection = &Error{Kind: KindEmptyCollection}
	ErrConflict        = &Error{Kind: KindConflict}
)

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap attaches a kind to an underlying cause.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
