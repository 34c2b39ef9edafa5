package foreign

import (
	"go.starlark.net/starlark"
)

// Eval evaluates the expression src. globals and locals are references to
// dicts with string keys, or zero for an empty scope; locals shadow
// globals and both shadow the predeclared names.
func (in *Interpreter) Eval(src string, globals, locals Ref) (Ref, error) {
	if in.closed {
		return 0, ErrClosed
	}
	env := make(starlark.StringDict, len(in.predeclared))
	for k, v := range in.predeclared {
		env[k] = v
	}
	for _, scope := range []Ref{globals, locals} {
		if scope == 0 {
			continue
		}
		if err := in.mergeScope(env, scope); err != nil {
			return 0, err
		}
	}

	v, err := starlark.EvalOptions(in.fileOptions, in.thread(), "<eval>", src, env)
	if err != nil {
		return 0, translate(err)
	}
	return in.newRef(v), nil
}

// Exec executes src as a module body and returns its globals as a module
// value.
func (in *Interpreter) Exec(filename, src string) (Ref, error) {
	if in.closed {
		return 0, ErrClosed
	}
	globals, err := starlark.ExecFileOptions(in.fileOptions, in.thread(), filename, src, in.predeclared)
	if err != nil {
		return 0, translate(err)
	}
	return in.newRef(moduleOf(filename, globals)), nil
}

func (in *Interpreter) mergeScope(env starlark.StringDict, scope Ref) error {
	v, err := in.value(scope)
	if err != nil {
		return err
	}
	d, ok := v.(*starlark.Dict)
	if !ok {
		return raise("TypeError", "eval scope: got %s, want dict", v.Type())
	}
	for _, item := range d.Items() {
		name, ok := item[0].(starlark.String)
		if !ok {
			return raise("TypeError", "eval scope keys must be strings, not %s", item[0].Type())
		}
		env[string(name)] = item[1]
	}
	return nil
}
