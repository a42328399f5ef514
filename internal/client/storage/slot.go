// Package storage holds the client side storage slot for the encrypted
// permission snapshot and the AEAD used to seal it.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SlotKey is the reserved name of the single permission slot.
const SlotKey = "encryptedPermissionData"

var (
	// ErrSlotEmpty is returned by Get when nothing is stored.
	ErrSlotEmpty = errors.New("storage slot empty")
	// ErrStorageUnavailable is returned when the medium cannot be used at all.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Slot is a single string-valued storage location. Writes replace the
// previous value; the last writer wins.
type Slot interface {
	// Get returns the stored value, ErrSlotEmpty or ErrStorageUnavailable.
	Get(ctx context.Context) (string, error)
	// Set overwrites the stored value.
	Set(ctx context.Context, value string) error
	// Clear removes the value. Clearing an empty slot is not an error.
	Clear(ctx context.Context) error
}

// Driver names a Slot implementation.
type Driver string

const (
	DriverFile   Driver = "file"
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// MemorySlot keeps the value in process memory.
type MemorySlot struct {
	mu    sync.Mutex
	value string
	set   bool
}

// NewMemorySlot returns an empty in-memory slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (s *MemorySlot) Get(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return "", ErrSlotEmpty
	}
	return s.value, nil
}

func (s *MemorySlot) Set(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.set = value, true
	return nil
}

func (s *MemorySlot) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.set = "", false
	return nil
}

// FileSlot stores the value in a JSON document named after the slot key
// inside dir.
type FileSlot struct {
	path string
	key  string
	mu   sync.Mutex
}

type fileDocument struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewFileSlot creates dir when missing and returns a slot backed by
// dir/<key>.json.
func NewFileSlot(dir, key string) (*FileSlot, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create dir: %v", ErrStorageUnavailable, err)
	}
	return &FileSlot{path: filepath.Join(dir, key+".json"), key: key}, nil
}

// Path returns the backing file.
func (s *FileSlot) Path() string { return s.path }

func (s *FileSlot) Get(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrSlotEmpty
		}
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer f.Close()

	var doc fileDocument
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		// a half-written or foreign file is as good as nothing
		return "", ErrSlotEmpty
	}
	return doc.Value, nil
}

func (s *FileSlot) Set(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".slot-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(fileDocument{Key: s.key, Value: value}); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: rename: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *FileSlot) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
