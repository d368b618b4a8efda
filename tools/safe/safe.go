package safe

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"dyadchat/logger"
	"dyadchat/tools/errs"
)

// MustNotNil panics if the given value is nil.
// Used by constructors that take required collaborators.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Go starts a goroutine that recovers from panic and logs it.
func Go(name string, f func()) {
	go func() {
		defer Recover(name)
		f()
	}()
}

// Recover is meant to be deferred directly; it logs a recovered panic with its stack.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered",
			zap.String("where", name),
			zap.Error(errs.ErrPanic(r)),
			zap.Stack("stack"))
	}
}

// Call runs f and converts a panic into an error.
func Call(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
		}
	}()
	return f()
}
