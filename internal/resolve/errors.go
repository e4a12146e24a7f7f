package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedKey classifies MalformedKeyError values.
	ErrMalformedKey = errors.New("malformed test key")

	// ErrUnresolvedCallable classifies UnresolvedCallableError values.
	ErrUnresolvedCallable = errors.New("unresolved callable")

	// ErrDirective classifies DirectiveError values.
	ErrDirective = errors.New("invalid directive")
)

// MalformedKeyError reports a test key that does not split into a callable
// and a discriminator.
type MalformedKeyError struct {
	Key    string
	Line   int
	Reason string
}

func (e *MalformedKeyError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed test key %q (line %d): %s", e.Key, e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed test key %q: %s", e.Key, e.Reason)
}

// Is reports ErrMalformedKey.
func (e *MalformedKeyError) Is(target error) bool { return target == ErrMalformedKey }

// UnresolvedCallableError reports a callable the target module does not
// define.
type UnresolvedCallableError struct {
	Key      string
	Callable string
	Module   string
}

func (e *UnresolvedCallableError) Error() string {
	module := e.Module
	if module == "" {
		module = "target module"
	}
	return fmt.Sprintf("%s has no attribute %q (test key %q)", module, e.Callable, e.Key)
}

// Is reports ErrUnresolvedCallable.
func (e *UnresolvedCallableError) Is(target error) bool { return target == ErrUnresolvedCallable }

// DirectiveError reports a directive whose value cannot be used.
type DirectiveError struct {
	Key       string
	Directive string
	Reason    string
	Err       error
}

func (e *DirectiveError) Error() string {
	msg := fmt.Sprintf("test key %q: directive %q: %s", e.Key, e.Directive, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports ErrDirective.
func (e *DirectiveError) Is(target error) bool { return target == ErrDirective }

func (e *DirectiveError) Unwrap() error { return e.Err }
