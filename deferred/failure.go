// File: deferred/failure.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package deferred

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrAlreadyCalled is raised (as a panic) on a second resolution.
	ErrAlreadyCalled = errors.New("deferred: already called")

	// ErrInvalidResult is raised (as a panic) when a Deferred is resolved
	// with, or chained to, something it cannot accept.
	ErrInvalidResult = errors.New("deferred: invalid result")

	// ErrCancelled is the failure delivered by Cancel when the canceller
	// did not resolve the Deferred itself.
	ErrCancelled = errors.New("deferred: cancelled")
)

// IsContractViolation reports whether a recovered panic value is one of the
// programming errors raised by this package.
func IsContractViolation(v any) bool {
	err, ok := v.(error)
	if !ok {
		return false
	}
	return errors.Is(err, ErrAlreadyCalled) || errors.Is(err, ErrInvalidResult)
}

// Failure is the error-path result of a Deferred. It records the stack at
// the point the error entered the chain.
type Failure struct {
	err error
}

// NewFailure wraps err. A *Failure is returned unchanged.
func NewFailure(err error) *Failure {
	if f, ok := err.(*Failure); ok {
		return f
	}
	return &Failure{err: pkgerrors.WithStack(err)}
}

func (f *Failure) Error() string {
	return f.err.Error()
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (f *Failure) Unwrap() error {
	return f.err
}

// Cause returns the original error without the stack wrapper.
func (f *Failure) Cause() error {
	return pkgerrors.Cause(f.err)
}

// Check returns the first target the failure matches, or nil.
func (f *Failure) Check(targets ...error) error {
	for _, t := range targets {
		if errors.Is(f.err, t) {
			return t
		}
	}
	return nil
}

// Format supports %+v to print the recorded stack.
func (f *Failure) Format(s fmt.State, verb rune) {
	if formatter, ok := f.err.(fmt.Formatter); ok {
		formatter.Format(s, verb)
		return
	}
	fmt.Fprint(s, f.err.Error())
}

func panicFailure(r any) *Failure {
	if err, ok := r.(error); ok {
		return &Failure{err: pkgerrors.Wrap(err, "panic in deferred callback")}
	}
	return &Failure{err: pkgerrors.Errorf("panic in deferred callback: %v", r)}
}
