package core

// kv_block_store.go – block store over the embedded KVStore contract.
// Blocks live under "dag:block:<cid>", metadata under "dag:meta:<cid>",
// the current root under "dag:root".

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

const (
	kvBlockPrefix = "dag:block:"
	kvMetaPrefix  = "dag:meta:"
	kvRootKey     = "dag:root"
)

// KVBlockStore adapts any KVStore into a StorageService.
type KVBlockStore struct {
	mu sync.Mutex
	db KVStore
}

// NewKVBlockStore wraps db.
func NewKVBlockStore(db KVStore) *KVBlockStore { return &KVBlockStore{db: db} }

// Put verifies and stores b, then rewrites the root key.
func (s *KVBlockStore) Put(b *DagBlock) error {
	if err := VerifyBlockIntegrity(b); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := []byte(kvBlockPrefix + string(b.Cid))
	if _, err := s.db.Get(key); err == nil {
		return nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("%w: block %s: %v", ErrSerialization, b.Cid, err)
	}
	if err := s.db.Set(key, raw); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrDatabase, b.Cid, err)
	}
	meta, _ := json.Marshal(&BlockMetadata{})
	if err := s.db.Set([]byte(kvMetaPrefix+string(b.Cid)), meta); err != nil {
		return fmt.Errorf("%w: meta %s: %v", ErrDatabase, b.Cid, err)
	}
	return s.refreshRootLocked()
}

// Get loads the block for id, or nil when absent.
func (s *KVBlockStore) Get(id Cid) (*DagBlock, error) {
	raw, err := s.db.Get([]byte(kvBlockPrefix + string(id)))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrDatabase, id, err)
	}
	var b DagBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: block %s: %v", ErrDeserialization, id, err)
	}
	if b.Cid != id {
		return nil, fmt.Errorf("%w: CID mismatch: key %s holds %s", ErrIntegrity, id, b.Cid)
	}
	return &b, nil
}

// Delete removes id and its metadata.
func (s *KVBlockStore) Delete(id Cid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete([]byte(kvBlockPrefix + string(id))); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrDatabase, id, err)
	}
	_ = s.db.Delete([]byte(kvMetaPrefix + string(id)))
	return s.refreshRootLocked()
}

// Contains reports presence of id.
func (s *KVBlockStore) Contains(id Cid) (bool, error) {
	_, err := s.db.Get([]byte(kvBlockPrefix + string(id)))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: contains %s: %v", ErrDatabase, id, err)
	}
	return true, nil
}

// ListBlocks iterates the block prefix.
func (s *KVBlockStore) ListBlocks() ([]*DagBlock, error) {
	it := s.db.Iterator([]byte(kvBlockPrefix), []byte(kvBlockPrefix+"\xff"))
	defer it.Close()
	var out []*DagBlock
	for it.Next() {
		var b DagBlock
		if err := json.Unmarshal(it.Value(), &b); err != nil {
			return nil, fmt.Errorf("%w: list: %v", ErrDeserialization, err)
		}
		out = append(out, &b)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %v", ErrDatabase, err)
	}
	return out, nil
}

// PinBlock marks id pinned.
func (s *KVBlockStore) PinBlock(id Cid) error {
	return s.updateMeta(id, func(m *BlockMetadata) { m.Pinned = true })
}

// UnpinBlock clears the pin flag.
func (s *KVBlockStore) UnpinBlock(id Cid) error {
	return s.updateMeta(id, func(m *BlockMetadata) { m.Pinned = false })
}

// SetTTL stamps an expiry on id.
func (s *KVBlockStore) SetTTL(id Cid, ttl uint64) error {
	return s.updateMeta(id, func(m *BlockMetadata) { m.TTL = &ttl })
}

func (s *KVBlockStore) updateMeta(id Cid, f func(*BlockMetadata)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.getMeta(id)
	if err != nil {
		return err
	}
	f(m)
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: meta %s: %v", ErrSerialization, id, err)
	}
	if err := s.db.Set([]byte(kvMetaPrefix+string(id)), raw); err != nil {
		return fmt.Errorf("%w: meta %s: %v", ErrDatabase, id, err)
	}
	return nil
}

// GetMetadata loads metadata for id.
func (s *KVBlockStore) GetMetadata(id Cid) (*BlockMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMeta(id)
}

func (s *KVBlockStore) getMeta(id Cid) (*BlockMetadata, error) {
	if _, err := s.db.Get([]byte(kvBlockPrefix + string(id))); errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: metadata %s", ErrNotFound, id)
	}
	raw, err := s.db.Get([]byte(kvMetaPrefix + string(id)))
	if errors.Is(err, ErrNotFound) {
		return &BlockMetadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: meta %s: %v", ErrDatabase, id, err)
	}
	var m BlockMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: meta %s: %v", ErrDeserialization, id, err)
	}
	return &m, nil
}

// PruneExpired removes unpinned blocks whose TTL is at or before now.
func (s *KVBlockStore) PruneExpired(now uint64) ([]Cid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blocks, err := s.ListBlocks()
	if err != nil {
		return nil, err
	}
	var removed []Cid
	for _, b := range blocks {
		m, err := s.getMeta(b.Cid)
		if err != nil {
			return nil, err
		}
		if m.Pinned || m.TTL == nil || *m.TTL > now {
			continue
		}
		if err := s.db.Delete([]byte(kvBlockPrefix + string(b.Cid))); err != nil {
			return nil, fmt.Errorf("%w: prune %s: %v", ErrDatabase, b.Cid, err)
		}
		_ = s.db.Delete([]byte(kvMetaPrefix + string(b.Cid)))
		removed = append(removed, b.Cid)
	}
	if len(removed) > 0 {
		if err := s.refreshRootLocked(); err != nil {
			return nil, err
		}
	}
	return SortCids(removed), nil
}

// CurrentRoot reads the persisted root key.
func (s *KVBlockStore) CurrentRoot() (string, error) {
	raw, err := s.db.Get([]byte(kvRootKey))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: root: %v", ErrDatabase, err)
	}
	return string(raw), nil
}

func (s *KVBlockStore) refreshRootLocked() error {
	blocks, err := s.ListBlocks()
	if err != nil {
		return err
	}
	return s.db.Set([]byte(kvRootKey), []byte(DagRootHex(blocks)))
}

var _ StorageService = (*KVBlockStore)(nil)
