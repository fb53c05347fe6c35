package errors

import (
	"fmt"
)

// contextError adds a short description of what was being attempted when an
// error occurred. Chains of contextErrors read like a backtrace, e.g.
// "load root manifest: open: file does not exist".
type contextError struct {
	context string
	err     error
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// WithContext wraps err with a description of the operation that failed.
// A nil err stays nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{context: context, err: err}
}

// New creates a new error. The arguments are handled in the same way as
// fmt.Sprintf.
func New(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// FriendlyError is an error whose message is meant to be shown to the user
// as is, without any of the surrounding context.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a FriendlyError. The arguments are handled in the
// same way as fmt.Sprintf.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{fmt.Sprintf(format, args...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the message to print to the user.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// Friendly is implemented by errors that know how to describe themselves to
// the user.
type Friendly interface {
	FriendlyMessage() string
}

// RootCause returns the innermost error wrapped by WithContext.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// GetFriendlyError returns the first friendly error in err's context chain.
func GetFriendlyError(err error) (Friendly, bool) {
	for err != nil {
		if friendly, ok := err.(Friendly); ok {
			return friendly, true
		}

		ctxErr, ok := err.(contextError)
		if !ok {
			return nil, false
		}
		err = ctxErr.err
	}
	return nil, false
}
