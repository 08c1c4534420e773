// Package errors provides comprehensive error handling utilities for rforest.
//
// This file contains panic recovery utilities that keep worker goroutines
// alive by converting unexpected panics into structured errors.

package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/sourcegraph/conc/panics"
)

// PanicError represents an error that was created from a recovered panic.
// It includes the original panic value and stack trace information.
type PanicError struct {
	// PanicValue is the original value passed to panic()
	PanicValue interface{}

	// StackTrace contains the stack trace at the time of panic
	StackTrace string

	// Operation identifies where the panic was recovered
	Operation string
}

// Error implements the error interface for PanicError.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.PanicValue.(error); ok {
		return err
	}
	return nil
}

// String provides detailed information including stack trace.
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s",
		e.Operation, e.PanicValue, e.StackTrace)
}

// NewPanicError creates a new PanicError with the given operation context and panic value.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover is a utility function to be used with defer to recover from panics
// and convert them into errors.
//
// Usage:
//
//	func SomeMethod() (err error) {
//	    defer Recover(&err, "SomeMethod")
//	    // ... method implementation ...
//	    return nil
//	}
//
// If the function already has an error, the panic information will be wrapped.
func Recover(err *error, operation string) {
	if r := recover(); r != nil {
		panicErr := NewPanicError(operation, r)

		if *err != nil {
			*err = fmt.Errorf("panic in %s: %v (original error: %w)",
				operation, r, *err)
		} else {
			*err = panicErr
		}
	}
}

// SafeExecute executes fn and converts any panic into a *PanicError carrying
// the stack of the panicking goroutine. Worker tasks are run through it so
// that a misbehaving learner surfaces as a task failure instead of crashing
// the process.
//
// Example:
//
//	err := SafeExecute("tree 3 fit", func() error {
//	    return learner.Fit(X, y)
//	})
func SafeExecute(operation string, fn func() error) error {
	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() { err = fn() })
	if rec := pc.Recovered(); rec != nil {
		return &PanicError{
			PanicValue: rec.Value,
			StackTrace: string(rec.Stack),
			Operation:  operation,
		}
	}
	return err
}
