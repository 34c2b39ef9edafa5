package foreign

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Slice is the value produced by the slice builtin. Indexing a sliceable
// value with a Slice selects the corresponding subsequence.
type Slice struct {
	Start, Stop, Step starlark.Value
}

var (
	_ starlark.Value    = (*Slice)(nil)
	_ starlark.HasAttrs = (*Slice)(nil)
)

func (s *Slice) String() string {
	return fmt.Sprintf("slice(%s, %s, %s)", s.Start, s.Stop, s.Step)
}

func (s *Slice) Type() string          { return "slice" }
func (s *Slice) Freeze()               {}
func (s *Slice) Truth() starlark.Bool  { return starlark.True }
func (s *Slice) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: slice") }

func (s *Slice) Attr(name string) (starlark.Value, error) {
	switch name {
	case "start":
		return s.Start, nil
	case "stop":
		return s.Stop, nil
	case "step":
		return s.Step, nil
	}
	return nil, nil
}

func (s *Slice) AttrNames() []string {
	return []string{"start", "step", "stop"}
}

// indices resolves the slice against a sequence of length n, following the
// rules of Python's slice.indices.
func (s *Slice) indices(n int) (start, stop, step int, err error) {
	step = 1
	if s.Step != starlark.None {
		if step, err = starlark.AsInt32(s.Step); err != nil {
			return 0, 0, 0, fmt.Errorf("slice step: %w", err)
		}
		if step == 0 {
			return 0, 0, 0, fmt.Errorf("slice step cannot be zero")
		}
	}

	lower, upper := 0, n
	if step < 0 {
		lower, upper = -1, n-1
	}

	bound := func(v starlark.Value, def int) (int, error) {
		if v == starlark.None {
			return def, nil
		}
		i, err := starlark.AsInt32(v)
		if err != nil {
			return 0, err
		}
		if i < 0 {
			i += n
			if i < lower {
				i = lower
			}
		} else if i > upper {
			i = upper
		}
		return i, nil
	}

	if step > 0 {
		start, err = bound(s.Start, lower)
		if err == nil {
			stop, err = bound(s.Stop, upper)
		}
	} else {
		start, err = bound(s.Start, upper)
		if err == nil {
			stop, err = bound(s.Stop, lower)
		}
	}
	if err != nil {
		return 0, 0, 0, fmt.Errorf("slice index: %w", err)
	}
	return start, stop, step, nil
}

// makeSlice implements slice(stop) and slice(start, stop[, step]).
func makeSlice(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	for _, a := range args {
		if a == starlark.None {
			continue
		}
		if _, ok := a.(starlark.Int); !ok {
			return nil, fmt.Errorf("%s: got %s, want int or None", b.Name(), a.Type())
		}
	}
	switch len(args) {
	case 1:
		return &Slice{Start: starlark.None, Stop: args[0], Step: starlark.None}, nil
	case 2:
		return &Slice{Start: args[0], Stop: args[1], Step: starlark.None}, nil
	case 3:
		return &Slice{Start: args[0], Stop: args[1], Step: args[2]}, nil
	}
	return nil, fmt.Errorf("%s: got %d arguments, want 1 to 3", b.Name(), len(args))
}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"slice":  starlark.NewBuiltin("slice", makeSlice),
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"module": starlark.NewBuiltin("module", starlarkstruct.MakeModule),
	}
}
