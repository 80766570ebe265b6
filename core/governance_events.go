package core

// governance_events.go – append-only governance event log with replay.
// Events append in order under sequence-numbered KV keys; replay
// reconstructs the proposal store from scratch. Adapted from the event
// manager that persists typed events under deterministic keys and lists
// them back by prefix.

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// GovernanceEventType discriminates the event records.
type GovernanceEventType string

const (
	EventProposalSubmitted GovernanceEventType = "proposal_submitted"
	EventVoteCast          GovernanceEventType = "vote_cast"
	EventStatusUpdated     GovernanceEventType = "status_updated"
)

// GovernanceEvent is one log record; exactly the fields for its type are
// set.
type GovernanceEvent struct {
	Seq        uint64              `json:"seq"`
	Type       GovernanceEventType `json:"type"`
	Proposal   *Proposal           `json:"proposal,omitempty"`
	Vote       *Vote               `json:"vote,omitempty"`
	ProposalID string              `json:"proposal_id,omitempty"`
	Status     ProposalStatus      `json:"status,omitempty"`
	AppendedAt time.Time           `json:"appended_at"`
}

// GovernanceEventStore is the append-only log contract.
type GovernanceEventStore interface {
	Append(ev GovernanceEvent) error
	List() ([]GovernanceEvent, error)
}

const govEventPrefix = "gov:event:"

// KVGovernanceEventLog appends events into an embedded KV store under
// zero-padded sequence keys so iteration returns them in order.
type KVGovernanceEventLog struct {
	mu  sync.Mutex
	db  KVStore
	seq uint64
}

// NewKVGovernanceEventLog opens the log, resuming the sequence from the
// existing tail.
func NewKVGovernanceEventLog(db KVStore) (*KVGovernanceEventLog, error) {
	l := &KVGovernanceEventLog{db: db}
	events, err := l.List()
	if err != nil {
		return nil, err
	}
	if n := len(events); n > 0 {
		l.seq = events[n-1].Seq
	}
	return l, nil
}

// Append stamps the next sequence number and persists ev.
func (l *KVGovernanceEventLog) Append(ev GovernanceEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	ev.Seq = l.seq
	raw, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("%w: event %d: %v", ErrSerialization, ev.Seq, err)
	}
	key := fmt.Sprintf("%s%020d", govEventPrefix, ev.Seq)
	if err := l.db.Set([]byte(key), raw); err != nil {
		return fmt.Errorf("%w: event %d: %v", ErrDatabase, ev.Seq, err)
	}
	return nil
}

// List returns every event in append order.
func (l *KVGovernanceEventLog) List() ([]GovernanceEvent, error) {
	it := l.db.Iterator([]byte(govEventPrefix), []byte(govEventPrefix+"\xff"))
	defer it.Close()
	var out []GovernanceEvent
	for it.Next() {
		var ev GovernanceEvent
		if err := json.Unmarshal(it.Value(), &ev); err != nil {
			return nil, fmt.Errorf("%w: events: %v", ErrDeserialization, err)
		}
		out = append(out, ev)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: events: %v", ErrDatabase, err)
	}
	return out, nil
}

// MemoryGovernanceEventLog keeps the log in a slice; test and embedded use.
type MemoryGovernanceEventLog struct {
	mu     sync.Mutex
	seq    uint64
	events []GovernanceEvent
}

// NewMemoryGovernanceEventLog returns an empty log.
func NewMemoryGovernanceEventLog() *MemoryGovernanceEventLog {
	return &MemoryGovernanceEventLog{}
}

// Append stamps and stores ev.
func (l *MemoryGovernanceEventLog) Append(ev GovernanceEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	ev.Seq = l.seq
	l.events = append(l.events, ev)
	return nil
}

// List snapshots the log.
func (l *MemoryGovernanceEventLog) List() ([]GovernanceEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]GovernanceEvent(nil), l.events...), nil
}

// ReplayGovernanceEvents rebuilds a proposal store image from the log.
func ReplayGovernanceEvents(events GovernanceEventStore) (GovernanceStore, error) {
	log, err := events.List()
	if err != nil {
		return nil, err
	}
	store := NewMemoryGovernanceStore()
	for _, ev := range log {
		switch ev.Type {
		case EventProposalSubmitted:
			if ev.Proposal == nil {
				return nil, fmt.Errorf("%w: submitted event %d without proposal", ErrInvalidInput, ev.Seq)
			}
			if err := store.SaveProposal(ev.Proposal); err != nil {
				return nil, err
			}
		case EventVoteCast:
			if ev.Vote == nil {
				return nil, fmt.Errorf("%w: vote event %d without vote", ErrInvalidInput, ev.Seq)
			}
			p, err := store.LoadProposal(ev.Vote.ProposalID)
			if err != nil {
				return nil, err
			}
			if p == nil {
				return nil, fmt.Errorf("%w: vote for unknown proposal %s", ErrInvalidInput, ev.Vote.ProposalID)
			}
			p.Votes[ev.Vote.Voter] = *ev.Vote
			if err := store.SaveProposal(p); err != nil {
				return nil, err
			}
		case EventStatusUpdated:
			p, err := store.LoadProposal(ev.ProposalID)
			if err != nil {
				return nil, err
			}
			if p == nil {
				return nil, fmt.Errorf("%w: status for unknown proposal %s", ErrInvalidInput, ev.ProposalID)
			}
			p.Status = ev.Status
			if err := store.SaveProposal(p); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: event type %q", ErrInvalidInput, ev.Type)
		}
	}
	return store, nil
}

var (
	_ GovernanceEventStore = (*KVGovernanceEventLog)(nil)
	_ GovernanceEventStore = (*MemoryGovernanceEventLog)(nil)
)
