package kv

import (
	"context"
	"errors"
	"regexp"

	"google.golang.org/protobuf/types/known/structpb"
)

// Store is the primitive-typed durable key-value contract.
type Store interface {
	// Get returns ErrNotFound for absent keys.
	Get(ctx context.Context, key string) (*structpb.Value, error)
	Put(ctx context.Context, key string, value *structpb.Value) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
}

var (
	// ErrNotFound is returned when a key has never been written or was deleted.
	ErrNotFound = errors.New("key not found")
	// ErrInvalidKey is returned for keys that are not lower-case identifiers.
	ErrInvalidKey = errors.New("invalid key")
	// errNilValue is returned when Put receives a nil value.
	errNilValue = errors.New("value must not be nil")
)

// keyPattern keeps keys usable as file names on every platform.
var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

func checkKey(key string) error {
	if !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}

	return nil
}
