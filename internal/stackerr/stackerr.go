// Package stackerr attaches a captured call stack to the handful of
// unrecoverable initialization errors (log file open failure, aligned
// buffer allocation failure). These are the errors an operator has to go
// dig through a stack trace for, unlike a full staging buffer, which is
// routine and handled inline. It uses github.com/go-stack/stack.
package stackerr

import (
	"fmt"

	"github.com/go-stack/stack"
)

// Fatal wraps an error with the call stack captured where it was
// constructed.
type Fatal struct {
	Err   error
	Trace stack.CallStack
}

// New captures the caller's stack (skipping this frame) and wraps err.
func New(err error) *Fatal {
	return &Fatal{Err: err, Trace: stack.Trace()[1:].TrimRuntime()}
}

func (f *Fatal) Error() string {
	return f.Err.Error()
}

func (f *Fatal) Unwrap() error {
	return f.Err
}

// Format implements fmt.Formatter: "%v" prints the wrapped error alone,
// "%+v" appends the captured stack, one frame per line.
func (f *Fatal) Format(s fmt.State, verb rune) {
	fmt.Fprint(s, f.Err.Error())
	if verb == 'v' && s.Flag('+') {
		for _, call := range f.Trace {
			fmt.Fprintf(s, "\n\t%+v", call)
		}
	}
}
