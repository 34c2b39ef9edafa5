package hostfunc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	DefaultKVMaxKeySize   = 256
	DefaultKVMaxValueSize = 64 << 10 // 64KB
	DefaultKVMaxEntries   = 1000
)

// KVConfig limits the in-memory store.
type KVConfig struct {
	MaxKeySize   int
	MaxValueSize int // measured on the JSON encoding of the value
	MaxEntries   int
}

func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize:   DefaultKVMaxKeySize,
		MaxValueSize: DefaultKVMaxValueSize,
		MaxEntries:   DefaultKVMaxEntries,
	}
}

// KV is an in-memory key-value store shared by every session of an
// executor. Values are any JSON-compatible Starlark value.
type KV struct {
	cfg  KVConfig
	mu   sync.RWMutex
	data map[string]any
}

func NewKV(cfg KVConfig) *KV {
	def := DefaultKVConfig()
	if cfg.MaxKeySize == 0 {
		cfg.MaxKeySize = def.MaxKeySize
	}
	if cfg.MaxValueSize == 0 {
		cfg.MaxValueSize = def.MaxValueSize
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	return &KV{cfg: cfg, data: make(map[string]any)}
}

// Register installs the kv module functions into r.
func (s *KV) Register(r *Registry) {
	r.Register("kv.get", s.Get, "key", "default")
	r.Register("kv.set", s.Set, "key", "value")
	r.Register("kv.delete", s.Delete, "key")
	r.Register("kv.keys", s.Keys)
}

func (s *KV) key(args map[string]any) (string, error) {
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return "", errors.New("key required")
	}
	if len(key) > s.cfg.MaxKeySize {
		return "", fmt.Errorf("key exceeds max size (%d bytes)", s.cfg.MaxKeySize)
	}
	return key, nil
}

// Get returns the value stored under key, or default when absent.
func (s *KV) Get(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	val, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return args["default"], nil
	}
	return val, nil
}

func (s *KV) Set(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}
	val, ok := args["value"]
	if !ok {
		return nil, errors.New("value required")
	}
	encoded, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("value not storable: %w", err)
	}
	if len(encoded) > s.cfg.MaxValueSize {
		return nil, fmt.Errorf("value exceeds max size (%d bytes)", s.cfg.MaxValueSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; !exists && len(s.data) >= s.cfg.MaxEntries {
		return nil, fmt.Errorf("store full (%d entries)", s.cfg.MaxEntries)
	}
	s.data[key] = val
	return nil, nil
}

func (s *KV) Delete(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, existed := s.data[key]
	delete(s.data, key)
	s.mu.Unlock()

	return existed, nil
}

// Keys returns the stored keys, sorted.
func (s *KV) Keys(ctx context.Context, args map[string]any) (any, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}
