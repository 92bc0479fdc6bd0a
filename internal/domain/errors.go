package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the session, the capture pipeline and the
// outer surfaces (web, GPIO). Check with errors.Is.
var (
	ErrPermissionDenied  = fmt.Errorf("permission denied")
	ErrDeviceUnavailable = fmt.Errorf("camera device unavailable")
	ErrCaptureBusy       = fmt.Errorf("capture already in progress")
	ErrDecode            = fmt.Errorf("decode captured image")
	ErrIO                = fmt.Errorf("persist captured image")

	ErrNotPreviewing  = fmt.Errorf("camera session is not previewing")
	ErrSurfaceInvalid = fmt.Errorf("display surface is not valid")
)

// Error wraps a sentinel with the operation that produced it.
type Error struct {
	Op     string // e.g. "session.Open"
	Err    error  // sentinel or wrapped cause
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates an *Error.
func NewError(op string, err error, detail string) *Error {
	return &Error{Op: op, Err: err, Detail: detail}
}

// Wrap attaches a sentinel to a lower-level cause so that both
// errors.Is(err, sentinel) and errors.Is(err, cause) hold.
func Wrap(op string, sentinel, cause error) error {
	if cause == nil {
		return &Error{Op: op, Err: sentinel}
	}
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}

// IsUserVisible reports whether err should be surfaced to the viewer.
// CaptureBusy is deliberately silent; device trouble is a log event only.
func IsUserVisible(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
