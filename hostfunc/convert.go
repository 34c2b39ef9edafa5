package hostfunc

import (
	"fmt"
	"math/big"
	"sort"

	"go.starlark.net/starlark"
)

// FromStarlark converts a Starlark value into plain Go: nil, bool, int64
// (or *big.Int), float64, string, []any and map[string]any.
func FromStarlark(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return v.BigInt(), nil
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case starlark.Bytes:
		return string(v), nil
	case *starlark.Dict:
		out := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict keys must be strings, not %s", item[0].Type())
			}
			x, err := FromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[string(k)] = x
		}
		return out, nil
	case starlark.Iterable:
		var out []any
		iter := v.Iterate()
		defer iter.Done()
		var x starlark.Value
		for iter.Next(&x) {
			y, err := FromStarlark(x)
			if err != nil {
				return nil, err
			}
			out = append(out, y)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot pass %s to a host function", v.Type())
}

// ToStarlark converts the result of a host function into a Starlark
// value.
func ToStarlark(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case *big.Int:
		return starlark.MakeBigInt(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case []byte:
		return starlark.Bytes(v), nil
	case []string:
		list := make([]starlark.Value, len(v))
		for i, s := range v {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, len(v))
		for i, x := range v {
			y, err := ToStarlark(x)
			if err != nil {
				return nil, err
			}
			list[i] = y
		}
		return starlark.NewList(list), nil
	case []map[string]any:
		list := make([]starlark.Value, len(v))
		for i, x := range v {
			y, err := ToStarlark(x)
			if err != nil {
				return nil, err
			}
			list[i] = y
		}
		return starlark.NewList(list), nil
	case map[string]string:
		d := starlark.NewDict(len(v))
		for _, k := range sortedKeys(v) {
			d.SetKey(starlark.String(k), starlark.String(v[k]))
		}
		return d, nil
	case map[string]any:
		d := starlark.NewDict(len(v))
		for _, k := range sortedKeys(v) {
			x, err := ToStarlark(v[k])
			if err != nil {
				return nil, err
			}
			d.SetKey(starlark.String(k), x)
		}
		return d, nil
	}
	return nil, fmt.Errorf("host function returned unsupported %T", v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
