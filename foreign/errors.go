package foreign

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Exception is a failure raised by the foreign interpreter. Type names the
// exception class (SyntaxError, NameError, IndexError, KeyError,
// AttributeError, TypeError, ImportError, EvalError) and Msg is its text.
type Exception struct {
	Type      string
	Msg       string
	Backtrace string
}

func (e *Exception) Error() string {
	return e.Type + ": " + e.Msg
}

func raise(typ, format string, args ...any) *Exception {
	return &Exception{Type: typ, Msg: fmt.Sprintf(format, args...)}
}

// translate maps an error produced by go.starlark.net to an *Exception.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrClosed) {
		return err
	}

	var exc *Exception
	if errors.As(err, &exc) {
		return exc
	}

	var serr syntax.Error
	if errors.As(err, &serr) {
		return &Exception{Type: "SyntaxError", Msg: serr.Error()}
	}

	var rerrs resolve.ErrorList
	if errors.As(err, &rerrs) {
		typ := "SyntaxError"
		if len(rerrs) > 0 && strings.HasPrefix(rerrs[0].Msg, "undefined:") {
			typ = "NameError"
		}
		return &Exception{Type: typ, Msg: rerrs.Error()}
	}

	var eerr *starlark.EvalError
	if errors.As(err, &eerr) {
		return &Exception{Type: classify(eerr.Msg), Msg: eerr.Msg, Backtrace: eerr.Backtrace()}
	}

	return &Exception{Type: classify(err.Error()), Msg: err.Error()}
}

// classify infers the exception class from a go.starlark.net error
// message, which carries no type of its own.
func classify(msg string) string {
	switch {
	case strings.Contains(msg, "out of range"):
		return "IndexError"
	case strings.Contains(msg, "not in dict"), strings.Contains(msg, "key ") && strings.Contains(msg, "not found"):
		return "KeyError"
	case strings.Contains(msg, "has no .") && strings.Contains(msg, "field or method"):
		return "AttributeError"
	case strings.Contains(msg, "unhashable"), strings.Contains(msg, "not callable"),
		strings.Contains(msg, "unsupported"), strings.Contains(msg, "got ") && strings.Contains(msg, "want "):
		return "TypeError"
	case strings.Contains(msg, "cannot load"), strings.Contains(msg, "no module named"):
		return "ImportError"
	default:
		return "EvalError"
	}
}
