package bridge

import (
	"errors"
	"fmt"

	"github.com/caffeineduck/starbridge/foreign"
)

// ErrorKind classifies bridge failures.
type ErrorKind string

const (
	KindUsage          ErrorKind = "UsageError"
	KindType           ErrorKind = "TypeError"
	KindConversion     ErrorKind = "ConversionError"
	KindForeignRuntime ErrorKind = "ForeignRuntimeError"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrUsage          = &Error{Kind: KindUsage}
	ErrType           = &Error{Kind: KindType}
	ErrConversion     = &Error{Kind: KindConversion}
	ErrForeignRuntime = &Error{Kind: KindForeignRuntime}
)

// Error is a failure surfaced to host code. Foreign is set when the
// foreign interpreter raised.
type Error struct {
	Kind    ErrorKind
	Op      string
	Msg     string
	Foreign *foreign.Exception
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.message()
}

func (e *Error) message() string {
	if e.Op == "" {
		return e.Msg
	}
	return e.Op + ": " + e.Msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == ""
}

func (e *Error) Unwrap() error {
	if e.Foreign == nil {
		return nil
	}
	return e.Foreign
}

func usageError(op, format string, args ...any) *Error {
	return &Error{Kind: KindUsage, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func typeError(op, format string, args ...any) *Error {
	return &Error{Kind: KindType, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func conversionError(op, format string, args ...any) *Error {
	return &Error{Kind: KindConversion, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// failure converts err into an *Error attributed to op.
func failure(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			c := *e
			c.Op = op
			return &c
		}
		return e
	}
	if errors.Is(err, foreign.ErrClosed) {
		return usageError(op, "interpreter closed")
	}
	var exc *foreign.Exception
	if errors.As(err, &exc) {
		return &Error{Kind: KindForeignRuntime, Op: op, Msg: exc.Error(), Foreign: exc}
	}
	return &Error{Kind: KindForeignRuntime, Op: op, Msg: err.Error()}
}
