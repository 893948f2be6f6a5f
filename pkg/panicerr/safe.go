package panicerr

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/panics"
)

// ErrPanic is wrapped by every error produced from a recovered panic.
var ErrPanic = errors.New("panic")

// Try runs fn and converts a panic into an error carrying the panic value
// and stack.
func Try(fn func() error) error {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		err = fn()
	})
	if r := catcher.Recovered(); r != nil {
		return fmt.Errorf("%w: %v\n%s", ErrPanic, r.Value, r.Stack)
	}
	return err
}

// Safe wraps fn so that a panic is returned as an error.
func Safe(fn func() error) func() error {
	return func() error {
		return Try(fn)
	}
}

// SafeContext is Safe for functions taking a context.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Try(func() error { return fn(ctx) })
	}
}
