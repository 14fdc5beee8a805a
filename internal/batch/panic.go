package batch

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrPanic matches every error produced by Recover.
var ErrPanic = errors.New("panic")

// PanicError carries a recovered panic value and the stack it was raised on.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("recovered panic: %v", e.Value)
}

func (e *PanicError) Is(target error) bool { return target == ErrPanic }

// Recover turns a panic into a *PanicError stored in *err. It must be
// deferred directly:
//
//	defer batch.Recover(&err)
func Recover(err *error) {
	if v := recover(); v != nil {
		*err = &PanicError{Value: v, Stack: debug.Stack()}
	}
}
