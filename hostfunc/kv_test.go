package hostfunc

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestKVSetGet(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	if _, err := kv.Set(ctx, map[string]any{"key": "foo", "value": "bar"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := kv.Get(ctx, map[string]any{"key": "foo"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "bar" {
		t.Errorf("expected bar, got %v", val)
	}
}

func TestKVGetDefault(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want any
	}{
		{"with default", map[string]any{"key": "missing", "default": "fallback"}, "fallback"},
		{"without default", map[string]any{"key": "missing"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, err := kv.Get(ctx, tt.args)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if val != tt.want {
				t.Errorf("expected %v, got %v", tt.want, val)
			}
		})
	}
}

func TestKVDeleteAndKeys(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	for _, k := range []string{"c", "a", "b"} {
		kv.Set(ctx, map[string]any{"key": k, "value": int64(1)})
	}

	existed, err := kv.Delete(ctx, map[string]any{"key": "b"})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if existed != true {
		t.Error("expected Delete to report the existing key")
	}
	if existed, _ := kv.Delete(ctx, map[string]any{"key": "b"}); existed != false {
		t.Error("expected second Delete to report a missing key")
	}

	keys, err := kv.Keys(ctx, nil)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "c"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestKVStructuredValues(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	tests := []struct {
		name  string
		value any
	}{
		{"string", "hello"},
		{"int", int64(42)},
		{"float", 3.14},
		{"bool", true},
		{"list", []any{int64(1), "two"}},
		{"dict", map[string]any{"nested": []any{"value"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := kv.Set(ctx, map[string]any{"key": tt.name, "value": tt.value}); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			got, err := kv.Get(ctx, map[string]any{"key": tt.name})
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if diff := cmp.Diff(tt.value, got); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestKVLimits(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  KVConfig
		sets []map[string]any
	}{
		{"key too large", KVConfig{MaxKeySize: 10}, []map[string]any{
			{"key": "this-key-is-too-long", "value": "x"},
		}},
		{"value too large", KVConfig{MaxValueSize: 10}, []map[string]any{
			{"key": "k", "value": "this-value-is-way-too-large"},
		}},
		{"too many entries", KVConfig{MaxEntries: 2}, []map[string]any{
			{"key": "a", "value": "1"},
			{"key": "b", "value": "2"},
			{"key": "c", "value": "3"},
		}},
		{"missing key", KVConfig{}, []map[string]any{
			{"value": "x"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := NewKV(tt.cfg)
			var err error
			for _, args := range tt.sets {
				_, err = kv.Set(ctx, args)
			}
			if err == nil {
				t.Error("expected the last Set to fail")
			}
		})
	}
}

func TestKVOverwriteAtCapacity(t *testing.T) {
	kv := NewKV(KVConfig{MaxEntries: 1})
	ctx := context.Background()

	kv.Set(ctx, map[string]any{"key": "a", "value": "1"})
	if _, err := kv.Set(ctx, map[string]any{"key": "a", "value": "2"}); err != nil {
		t.Fatalf("overwrite at capacity should succeed: %v", err)
	}
	if val, _ := kv.Get(ctx, map[string]any{"key": "a"}); val != "2" {
		t.Errorf("expected 2, got %v", val)
	}
}

func TestKVConcurrent(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + (i % 26)))
			kv.Set(ctx, map[string]any{"key": key, "value": int64(i)})
			kv.Get(ctx, map[string]any{"key": key})
		}()
	}
	wg.Wait()
}
