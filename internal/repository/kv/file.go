package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// fileExtension is appended to every key to form its file name.
	fileExtension = ".json"
	// dirPermissions is used when the store directory is created.
	dirPermissions = 0o700
	// filePermissions restricts value files to the owner.
	filePermissions = 0o600
)

// FileStore persists each key as a protojson file inside a directory.
type FileStore struct {
	// dir is the directory holding one file per key.
	dir string
	// mu serialises writers inside one process; cross-process writes rely on rename atomicity.
	mu sync.Mutex
}

// NewFileStore creates the directory if needed and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	dir = filepath.Clean(dir)

	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory of the store.
func (s *FileStore) Dir() string {
	return s.dir
}

// Get reads and decodes the value stored under key.
func (s *FileStore) Get(_ context.Context, key string) (*structpb.Value, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	contents, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	value := new(structpb.Value)
	if err = protojson.Unmarshal(contents, value); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	return value, nil
}

// Put encodes value and atomically replaces the file for key.
func (s *FileStore) Put(_ context.Context, key string, value *structpb.Value) error {
	if err := checkKey(key); err != nil {
		return err
	}

	if value == nil {
		return errNilValue
	}

	data, err := protojson.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}

	tmpName := tmp.Name()

	defer func() {
		// Nothing to remove after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write %s: %w", key, err)
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("sync %s: %w", key, err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}

	if err = os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("chmod %s: %w", key, err)
	}

	if err = os.Rename(tmpName, s.path(key)); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}

	return nil
}

// Delete removes the file for key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileExtension)
}
