package foreign

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

var libModules = map[string]starlark.Value{
	"json": json.Module,
	"math": math.Module,
	"time": time.Module,
}

type moduleEntry struct {
	value   starlark.Value
	globals starlark.StringDict // nil for builtin modules
	loading bool
}

// Import returns a new reference to the module name. Host modules shadow
// library modules, which shadow NAME.star files on the module path.
// Modules are loaded once per interpreter.
func (in *Interpreter) Import(name string) (Ref, error) {
	if in.closed {
		return 0, ErrClosed
	}
	e, err := in.resolve(name)
	if err != nil {
		return 0, err
	}
	return in.newRef(e.value), nil
}

func (in *Interpreter) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	name := strings.TrimSuffix(module, ".star")
	e, err := in.resolve(name)
	if err != nil {
		return nil, err
	}
	if e.globals != nil {
		return e.globals, nil
	}
	return starlark.StringDict{name: e.value}, nil
}

func (in *Interpreter) resolve(name string) (*moduleEntry, error) {
	if e, ok := in.modules[name]; ok {
		if e.loading {
			return nil, raise("ImportError", "import cycle through module %q", name)
		}
		return e, nil
	}
	if v, ok := in.cfg.modules[name]; ok {
		e := &moduleEntry{value: v}
		in.modules[name] = e
		return e, nil
	}
	if v, ok := libModules[name]; ok {
		e := &moduleEntry{value: v}
		in.modules[name] = e
		return e, nil
	}

	path, err := in.findFile(name)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, raise("ImportError", "reading module %q: %v", name, err)
	}

	e := &moduleEntry{loading: true}
	in.modules[name] = e
	th := in.newThread(ContextOf(in.thread()))
	globals, err := starlark.ExecFileOptions(in.fileOptions, th, path, src, in.predeclared)
	if err != nil {
		delete(in.modules, name)
		return nil, translate(err)
	}
	globals.Freeze()
	e.globals = globals
	e.value = moduleOf(name, globals)
	e.loading = false
	return e, nil
}

func (in *Interpreter) findFile(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", raise("ImportError", "invalid module name %q", name)
	}
	for _, dir := range in.cfg.modulePath {
		path := filepath.Join(dir, name+".star")
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", raise("ImportError", "no module named %q", name)
}

func moduleOf(name string, globals starlark.StringDict) *starlarkstruct.Module {
	members := make(starlark.StringDict, len(globals))
	for k, v := range globals {
		if !strings.HasPrefix(k, "_") {
			members[k] = v
		}
	}
	return &starlarkstruct.Module{Name: strings.TrimSuffix(filepath.Base(name), ".star"), Members: members}
}

// Builtin returns a new reference to a predeclared or universal name.
func (in *Interpreter) Builtin(name string) (Ref, error) {
	if in.closed {
		return 0, ErrClosed
	}
	if v, ok := in.predeclared[name]; ok {
		return in.newRef(v), nil
	}
	if v, ok := starlark.Universe[name]; ok {
		return in.newRef(v), nil
	}
	return 0, raise("NameError", "undefined: %s", name)
}

// Modules lists the importable module names: host modules, library
// modules and the .star files on the module path.
func (in *Interpreter) Modules() []string {
	seen := make(map[string]bool)
	for name := range in.cfg.modules {
		seen[name] = true
	}
	for name := range libModules {
		seen[name] = true
	}
	for _, dir := range in.cfg.modulePath {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, ent := range entries {
			if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".star") {
				continue
			}
			seen[strings.TrimSuffix(ent.Name(), ".star")] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
