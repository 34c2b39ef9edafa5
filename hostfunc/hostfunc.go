package hostfunc

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/caffeineduck/starbridge/foreign"
)

// Func is a host function callable from Starlark. Arguments arrive by
// parameter name, converted to plain Go values.
type Func func(ctx context.Context, args map[string]any) (any, error)

type function struct {
	fn     Func
	params []string
}

// Registry holds host functions under dotted names such as "kv.get". The
// part before the dot names the Starlark module the function belongs to.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]function
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]function)}
}

// Register adds fn under name. params lists the names positional
// arguments bind to, in order.
func (r *Registry) Register(name string, fn Func, params ...string) {
	r.mu.Lock()
	r.funcs[name] = function{fn: fn, params: params}
	r.mu.Unlock()
}

// Merge copies every function of src into r, replacing same-named ones.
func (r *Registry) Merge(src *Registry) {
	if src == nil || src == r {
		return
	}
	src.mu.RLock()
	defer src.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, f := range src.funcs {
		r.funcs[name] = f
	}
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	f, ok := r.funcs[name]
	r.mu.RUnlock()
	return f.fn, ok
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Modules returns the module names that have at least one function.
func (r *Registry) Modules() []string {
	seen := make(map[string]bool)
	var mods []string
	for _, name := range r.List() {
		mod, _, ok := strings.Cut(name, ".")
		if !ok || seen[mod] {
			continue
		}
		seen[mod] = true
		mods = append(mods, mod)
	}
	return mods
}

// Module builds the Starlark module exposing every function registered
// under "module.".
func (r *Registry) Module(module string) *starlarkstruct.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make(starlark.StringDict)
	prefix := module + "."
	for name, f := range r.funcs {
		short, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		members[short] = builtin(name, f)
	}
	return &starlarkstruct.Module{Name: module, Members: members}
}

func builtin(name string, f function) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > len(f.params) {
			return nil, fmt.Errorf("%s: got %d arguments, want at most %d", b.Name(), len(args), len(f.params))
		}
		in := make(map[string]any, len(args)+len(kwargs))
		for i, a := range args {
			v, err := FromStarlark(a)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", b.Name(), f.params[i], err)
			}
			in[f.params[i]] = v
		}
		for _, kv := range kwargs {
			key := string(kv[0].(starlark.String))
			if !slices.Contains(f.params, key) {
				return nil, fmt.Errorf("%s: unexpected keyword argument %s", b.Name(), key)
			}
			if _, dup := in[key]; dup {
				return nil, fmt.Errorf("%s: got multiple values for %s", b.Name(), key)
			}
			v, err := FromStarlark(kv[1])
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", b.Name(), key, err)
			}
			in[key] = v
		}

		out, err := f.fn(foreign.ContextOf(thread), in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return ToStarlark(out)
	})
}
