package kv

import (
	"context"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MemoryStore is an in-process Store. Values are cloned on the way in and out.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]*structpb.Value
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]*structpb.Value)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*structpb.Value, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}

	//nolint:forcetypeassert // Clone preserves the concrete type.
	return proto.Clone(value).(*structpb.Value), nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, value *structpb.Value) error {
	if err := checkKey(key); err != nil {
		return err
	}

	if value == nil {
		return errNilValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	//nolint:forcetypeassert // Clone preserves the concrete type.
	s.values[key] = proto.Clone(value).(*structpb.Value)

	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)

	return nil
}

// Keys returns the number of stored keys.
func (s *MemoryStore) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.values)
}
