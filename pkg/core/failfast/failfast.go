// Package failfast turns broken invariants into immediate panics.
//
// The pool treats a handful of situations as contract violations rather than
// recoverable errors (submitting to a torn-down pool through MustExecute, nil
// jobs, nil collaborators). These helpers give those panics a uniform
// "fail-fast:" prefix and, for wrapped errors, a stack trace.
package failfast

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

// Violation is the value panicked by Err. It keeps the original error
// reachable through errors.Is / errors.As after recover().
type Violation struct {
	Err   error
	Stack []byte
}

func (v *Violation) Error() string {
	return fmt.Sprintf("fail-fast: %v\n%s", v.Err, v.Stack)
}

func (v *Violation) Unwrap() error { return v.Err }

// Err panics with a *Violation if err != nil.
func Err(err error) {
	if err != nil {
		panic(&Violation{Err: err, Stack: debug.Stack()})
	}
}

// If panics if condition is false
// Allows formatted messages with args
func If(condition bool, message string, args ...interface{}) {
	if !condition {
		panic(fmt.Errorf("fail-fast: "+message, args...))
	}
}

// NotNil panics if ptr is nil, including typed nil pointers and nil funcs.
func NotNil(ptr interface{}, name string) {
	if ptr == nil {
		panic(fmt.Errorf("fail-fast: %s is nil", name))
	}
	v := reflect.ValueOf(ptr)
	switch v.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Chan, reflect.Slice, reflect.Interface:
		if v.IsNil() {
			panic(fmt.Errorf("fail-fast: %s is nil", name))
		}
	}
}

// Catch runs fn and reports whether it panicked. The recovered value and the
// stack of the panicking goroutine are returned so callers can log them.
// runtime.Goexit is not intercepted.
func Catch(fn func()) (recovered interface{}, stack []byte, panicked bool) {
	panicked = true
	defer func() {
		if panicked {
			recovered = recover()
			stack = debug.Stack()
		}
	}()
	fn()
	panicked = false
	return nil, nil, false
}

// AsError converts a recovered panic value into an error.
func AsError(recovered interface{}) error {
	switch v := recovered.(type) {
	case nil:
		return nil
	case error:
		return v
	default:
		return errors.New(fmt.Sprint(v))
	}
}
