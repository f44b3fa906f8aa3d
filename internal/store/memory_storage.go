package store

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/spf13/cast"
)

// MemoryStorage is a process-local Storage used by tests and by
// single-node development setups. It mirrors the redis hash semantics:
// values are flattened into fields by their `redis` struct tags.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	fields    map[string]any
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]*memoryEntry)}
}

// live returns the entry under key, lazily dropping it when expired.
// Callers must hold s.mu.
func (s *MemoryStorage) live(key string) *memoryEntry {
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if entry.expired() {
		delete(s.entries, key)
		return nil
	}
	return entry
}

func (s *MemoryStorage) Get(ctx context.Context, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.live(key)
	if entry == nil {
		return ErrNotFound
	}
	return decodeFields(entry.fields, val)
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	if expiresIn == -1 {
		return s.Save(ctx, key, val)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &memoryEntry{
		fields:    encodeFields(val),
		expiresAt: time.Now().Add(expiresIn),
	}
	return nil
}

func (s *MemoryStorage) Save(ctx context.Context, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.live(key)
	if entry == nil {
		entry = &memoryEntry{fields: make(map[string]any)}
		s.entries[key] = entry
	}
	for k, v := range encodeFields(val) {
		entry.fields[k] = v
	}
	return nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live(key) == nil {
		return ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.live(key); entry != nil {
		entry.expiresAt = expiresAt
	}
	return nil
}

func (s *MemoryStorage) SetAttr(ctx context.Context, key string, field string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.live(key)
	if entry == nil {
		entry = &memoryEntry{fields: make(map[string]any)}
		s.entries[key] = entry
	}
	entry.fields[field] = val
	return nil
}

func (s *MemoryStorage) GetAttr(ctx context.Context, key, field string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.live(key)
	if entry == nil {
		return ErrNotFound
	}
	raw, ok := entry.fields[field]
	if !ok {
		return ErrNotFound
	}
	return assignValue(reflect.ValueOf(val).Elem(), raw)
}

func (s *MemoryStorage) IncrAttr(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.live(key)
	if entry == nil {
		entry = &memoryEntry{fields: make(map[string]any)}
		s.entries[key] = entry
	}
	current := cast.ToInt64(entry.fields[field])
	current += delta
	entry.fields[field] = current
	return current, nil
}

// encodeFields flattens a struct (or map) into hash fields keyed by
// the `redis` tags, matching what go-redis HSet does.
func encodeFields(val any) map[string]any {
	fields := make(map[string]any)
	rv := reflect.Indirect(reflect.ValueOf(val))
	if rv.Kind() == reflect.Map {
		for _, mk := range rv.MapKeys() {
			fields[cast.ToString(mk.Interface())] = rv.MapIndex(mk).Interface()
		}
		return fields
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("redis")
		if tag == "" || tag == "-" {
			continue
		}
		fields[tag] = rv.Field(i).Interface()
	}
	return fields
}

func decodeFields(fields map[string]any, val any) error {
	rv := reflect.Indirect(reflect.ValueOf(val))
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("redis")
		if tag == "" || tag == "-" {
			continue
		}
		raw, ok := fields[tag]
		if !ok {
			continue
		}
		if err := assignValue(rv.Field(i), raw); err != nil {
			return err
		}
	}
	return nil
}

func assignValue(dst reflect.Value, raw any) error {
	if reflect.TypeOf(raw) == dst.Type() {
		dst.Set(reflect.ValueOf(raw))
		return nil
	}
	switch dst.Interface().(type) {
	case time.Time:
		t, err := cast.ToTimeE(raw)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}
	switch dst.Kind() {
	case reflect.String:
		dst.SetString(cast.ToString(raw))
	case reflect.Bool:
		dst.SetBool(cast.ToBool(raw))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(cast.ToInt64(raw))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetUint(cast.ToUint64(raw))
	case reflect.Float32, reflect.Float64:
		dst.SetFloat(cast.ToFloat64(raw))
	}
	return nil
}
