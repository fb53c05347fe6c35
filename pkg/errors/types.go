package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// StructuralError means the repository can't be checked at all, e.g. the
// root manifest is malformed or doesn't point at exactly one package list.
// It always aborts the run.
type StructuralError struct {
	Reason string
}

func (err StructuralError) Error() string {
	return fmt.Sprintf("fatal: %s", err.Reason)
}

// NewStructuralError creates a StructuralError. The arguments are handled in
// the same way as fmt.Sprintf.
func NewStructuralError(format string, args ...interface{}) error {
	return StructuralError{Reason: fmt.Sprintf(format, args...)}
}

// VerificationError describes a file that failed its integrity check.
type VerificationError struct {
	Path     string
	Status   string
	Expected string
	Actual   string
}

func (err VerificationError) Error() string {
	switch {
	case err.Expected == "" && err.Actual == "":
		return fmt.Sprintf("%s: %s", err.Path, err.Status)
	default:
		return fmt.Sprintf("%s: %s (expected %s, got %s)",
			err.Path, err.Status, err.Expected, err.Actual)
	}
}

// FetchError describes a failed download. Transient errors (network
// problems, server errors, cancellation) may succeed on a later run; the
// others won't without intervention.
type FetchError struct {
	URL       string
	Transient bool
	Err       error
}

func (err FetchError) Error() string {
	kind := "fatal"
	if err.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("fetch %s (%s): %s", err.URL, kind, err.Err)
}

func (err FetchError) Unwrap() error {
	return err.Err
}

// TypePolicyError means a manifest entry has a kind that isn't allowed at its
// level of the repository.
type TypePolicyError struct {
	Path string
	Kind string
	Want string
}

func (err TypePolicyError) Error() string {
	return fmt.Sprintf("%s has type %q, expected %q", err.Path, err.Kind, err.Want)
}
