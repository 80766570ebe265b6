package core

// kv_store.go – embedded key/value contract shared by the KV-backed block
// store and the governance persistence layer, with an in-memory
// implementation and a JSON-snapshot file implementation.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
)

// KVStore is the minimal embedded database contract.
type KVStore interface {
	Set(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Iterator(start, end []byte) Iterator
}

// Iterator walks a key range in lexicographic order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// InMemoryKV is a mutex-guarded map store.
type InMemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemoryKV returns an empty store.
func NewInMemoryKV() *InMemoryKV {
	return &InMemoryKV{data: make(map[string][]byte)}
}

// Set stores value under key.
func (s *InMemoryKV) Set(key, value []byte) error {
	s.mu.Lock()
	s.data[string(key)] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}

// Get returns the value for key or ErrNotFound.
func (s *InMemoryKV) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	v, ok := s.data[string(key)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: key %q", ErrNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

// Delete removes key if present.
func (s *InMemoryKV) Delete(key []byte) error {
	s.mu.Lock()
	delete(s.data, string(key))
	s.mu.Unlock()
	return nil
}

type sliceIterator struct {
	keys   [][]byte
	values [][]byte
	index  int
}

func (it *sliceIterator) Next() bool {
	it.index++
	return it.index < len(it.keys)
}

func (it *sliceIterator) Key() []byte   { return it.keys[it.index] }
func (it *sliceIterator) Value() []byte { return it.values[it.index] }
func (it *sliceIterator) Error() error  { return nil }
func (it *sliceIterator) Close() error  { return nil }

// Iterator returns a sorted snapshot iterator over [start, end). A nil end
// means no upper bound.
func (s *InMemoryKV) Iterator(start, end []byte) Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		kb := []byte(k)
		if start != nil && bytes.Compare(kb, start) < 0 {
			continue
		}
		if end != nil && bytes.Compare(kb, end) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	it := &sliceIterator{index: -1}
	for _, k := range keys {
		it.keys = append(it.keys, []byte(k))
		it.values = append(it.values, append([]byte(nil), s.data[k]...))
	}
	return it
}

// FileKV persists an InMemoryKV image as a JSON snapshot after every
// mutation. Suited to the embedded single-node deployments the durable
// governance and block stores target.
type FileKV struct {
	mu   sync.Mutex
	path string
	mem  *InMemoryKV
}

// OpenFileKV loads (or initializes) a snapshot at path.
func OpenFileKV(path string) (*FileKV, error) {
	s := &FileKV{path: path, mem: NewInMemoryKV()}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDatabase, path, err)
	}
	var image map[string][]byte
	if err := json.Unmarshal(raw, &image); err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %v", ErrDeserialization, path, err)
	}
	for k, v := range image {
		s.mem.data[k] = v
	}
	return s, nil
}

func (s *FileKV) flushLocked() error {
	s.mem.mu.RLock()
	raw, err := json.Marshal(s.mem.data)
	s.mem.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("%w: snapshot: %v", ErrSerialization, err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("%w: flush %s: %v", ErrDatabase, s.path, err)
	}
	return nil
}

// Set stores value under key and flushes.
func (s *FileKV) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Set(key, value); err != nil {
		return err
	}
	return s.flushLocked()
}

// Get returns the value for key or ErrNotFound.
func (s *FileKV) Get(key []byte) ([]byte, error) { return s.mem.Get(key) }

// Delete removes key and flushes.
func (s *FileKV) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Delete(key); err != nil {
		return err
	}
	return s.flushLocked()
}

// Iterator walks the snapshot range.
func (s *FileKV) Iterator(start, end []byte) Iterator { return s.mem.Iterator(start, end) }

var (
	_ KVStore = (*InMemoryKV)(nil)
	_ KVStore = (*FileKV)(nil)
)
