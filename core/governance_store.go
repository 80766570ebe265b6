package core

// governance_store.go – proposal persistence backends: a mutex-guarded map
// and the embedded KV store under "gov:proposal:" keys.

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MemoryGovernanceStore keeps proposals in process memory.
type MemoryGovernanceStore struct {
	mu        sync.RWMutex
	proposals map[string]*Proposal
}

// NewMemoryGovernanceStore returns an empty store.
func NewMemoryGovernanceStore() *MemoryGovernanceStore {
	return &MemoryGovernanceStore{proposals: make(map[string]*Proposal)}
}

// SaveProposal stores a deep copy of p.
func (s *MemoryGovernanceStore) SaveProposal(p *Proposal) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: proposal %s: %v", ErrSerialization, p.ID, err)
	}
	var cp Proposal
	if err := json.Unmarshal(raw, &cp); err != nil {
		return fmt.Errorf("%w: proposal %s: %v", ErrDeserialization, p.ID, err)
	}
	s.mu.Lock()
	s.proposals[p.ID] = &cp
	s.mu.Unlock()
	return nil
}

// LoadProposal returns a copy of the proposal, or nil when absent.
func (s *MemoryGovernanceStore) LoadProposal(id string) (*Proposal, error) {
	s.mu.RLock()
	p, ok := s.proposals[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	raw, _ := json.Marshal(p)
	var cp Proposal
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("%w: proposal %s: %v", ErrDeserialization, id, err)
	}
	return &cp, nil
}

// ListProposals snapshots all proposals in id order.
func (s *MemoryGovernanceStore) ListProposals() ([]*Proposal, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.proposals))
	for id := range s.proposals {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	out := make([]*Proposal, 0, len(ids))
	for _, id := range ids {
		p, err := s.LoadProposal(id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

const govProposalPrefix = "gov:proposal:"

// KVGovernanceStore persists proposals in an embedded KV store.
type KVGovernanceStore struct {
	db KVStore
}

// NewKVGovernanceStore wraps db.
func NewKVGovernanceStore(db KVStore) *KVGovernanceStore { return &KVGovernanceStore{db: db} }

// SaveProposal serializes p under its key.
func (s *KVGovernanceStore) SaveProposal(p *Proposal) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: proposal %s: %v", ErrSerialization, p.ID, err)
	}
	if err := s.db.Set([]byte(govProposalPrefix+p.ID), raw); err != nil {
		return fmt.Errorf("%w: proposal %s: %v", ErrDatabase, p.ID, err)
	}
	return nil
}

// LoadProposal returns the proposal, or nil when absent.
func (s *KVGovernanceStore) LoadProposal(id string) (*Proposal, error) {
	raw, err := s.db.Get([]byte(govProposalPrefix + id))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: proposal %s: %v", ErrDatabase, id, err)
	}
	var p Proposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: proposal %s: %v", ErrDeserialization, id, err)
	}
	return &p, nil
}

// ListProposals iterates the proposal prefix.
func (s *KVGovernanceStore) ListProposals() ([]*Proposal, error) {
	it := s.db.Iterator([]byte(govProposalPrefix), []byte(govProposalPrefix+"\xff"))
	defer it.Close()
	var out []*Proposal
	for it.Next() {
		var p Proposal
		if err := json.Unmarshal(it.Value(), &p); err != nil {
			return nil, fmt.Errorf("%w: proposals: %v", ErrDeserialization, err)
		}
		out = append(out, &p)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: proposals: %v", ErrDatabase, err)
	}
	return out, nil
}

var (
	_ GovernanceStore = (*MemoryGovernanceStore)(nil)
	_ GovernanceStore = (*KVGovernanceStore)(nil)
)
