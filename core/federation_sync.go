package core

// federation_sync.go – federation membership records and DAG-state sync
// over the overlay. The manager advertises the federations this node
// participates in, answers discover and sync requests from peers, and can
// probe a peer for a scope's current root to decide whether a sync is
// needed.

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// FederationInfo is the advertised record for one federation.
type FederationInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Members []DID  `json:"members"`
	Scope   string `json:"scope"` // DAG scope the federation anchors into
}

// FederationManager owns this node's federation memberships.
type FederationManager struct {
	mu      sync.RWMutex
	network NetworkService
	store   StorageService
	local   map[string]*FederationInfo
	log     *logrus.Logger
}

// NewFederationManager wires a manager over the overlay and block store.
func NewFederationManager(network NetworkService, store StorageService, logger *logrus.Logger) *FederationManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FederationManager{
		network: network,
		store:   store,
		local:   make(map[string]*FederationInfo),
		log:     logger,
	}
}

// Join registers a federation locally and advertises it in the DHT under
// the fedinfo namespace.
func (m *FederationManager) Join(info FederationInfo) error {
	if info.ID == "" {
		return fmt.Errorf("%w: federation without id", ErrInvalidInput)
	}
	m.mu.Lock()
	m.local[info.ID] = &info
	m.mu.Unlock()
	raw, err := json.Marshal(&info)
	if err != nil {
		return fmt.Errorf("%w: federation %s: %v", ErrSerialization, info.ID, err)
	}
	if err := m.network.StoreRecord(FedInfoRecordKey(info.ID), raw); err != nil {
		return err
	}
	m.log.WithField("federation", info.ID).Info("federation joined")
	return nil
}

// Leave forgets a federation locally.
func (m *FederationManager) Leave(id string) {
	m.mu.Lock()
	delete(m.local, id)
	m.mu.Unlock()
}

// Federations lists the locally joined federation ids.
func (m *FederationManager) Federations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.local))
	for id := range m.local {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LookupInfo resolves a federation record from the DHT.
func (m *FederationManager) LookupInfo(id string) (*FederationInfo, error) {
	raw, err := m.network.GetRecord(FedInfoRecordKey(id))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: federation %s", ErrNotFound, id)
	}
	var info FederationInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: federation %s: %v", ErrDeserialization, id, err)
	}
	return &info, nil
}

// RequestSync asks peer for its view of a federation's DAG scope.
func (m *FederationManager) RequestSync(peer PeerID, federationID, sinceRoot string) error {
	return m.network.SendMessage(peer, ProtocolMessage{
		Type:        MsgFederationSyncRequest,
		SyncRequest: &FederationSyncRequest{FederationID: federationID, SinceRoot: sinceRoot},
	})
}

// Discover probes peer for the federations it participates in.
func (m *FederationManager) Discover(peer PeerID, probe string) error {
	return m.network.SendMessage(peer, ProtocolMessage{
		Type:            MsgFederationDiscoverRequest,
		DiscoverRequest: &FederationDiscoverRequest{Probe: probe},
	})
}

// Run answers inbound sync and discover requests until ctx is cancelled.
func (m *FederationManager) Run(ctx context.Context) error {
	sub, cancel, err := m.network.Subscribe()
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rm := <-sub:
			m.Handle(rm)
		}
	}
}

// Handle serves one inbound federation message. Exposed for transports
// that dispatch their own streams.
func (m *FederationManager) Handle(rm ReceivedMessage) {
	switch rm.Message.Type {
	case MsgFederationSyncRequest:
		if rm.Message.SyncRequest != nil {
			m.answerSync(rm.From, *rm.Message.SyncRequest)
		}
	case MsgFederationDiscoverRequest:
		m.answerDiscover(rm.From)
	}
}

// answerSync responds with the scope's current root and block set. An
// unchanged root (matching SinceRoot) answers with an empty block list so
// the requester knows it is current.
func (m *FederationManager) answerSync(from PeerID, req FederationSyncRequest) {
	m.mu.RLock()
	info, ok := m.local[req.FederationID]
	m.mu.RUnlock()
	if !ok {
		m.log.WithField("federation", req.FederationID).Debug("sync request for unknown federation")
		return
	}
	root, err := m.store.CurrentRoot()
	if err != nil {
		m.log.WithError(err).Warn("sync: read root")
		return
	}
	resp := FederationSyncResponse{FederationID: req.FederationID, Root: root}
	if root != req.SinceRoot {
		blocks, err := m.store.ListBlocks()
		if err != nil {
			m.log.WithError(err).Warn("sync: list blocks")
			return
		}
		for _, b := range blocks {
			if info.Scope == "" || b.Scope == info.Scope {
				resp.Blocks = append(resp.Blocks, b.Cid)
			}
		}
		SortCids(resp.Blocks)
	}
	msg := ProtocolMessage{Type: MsgFederationSyncResponse, SyncResponse: &resp}
	if err := m.network.SendMessage(from, msg); err != nil {
		m.log.WithError(err).Warn("sync: respond")
	}
}

func (m *FederationManager) answerDiscover(from PeerID) {
	msg := ProtocolMessage{
		Type:             MsgFederationDiscoverResponse,
		DiscoverResponse: &FederationDiscoverResponse{Federations: m.Federations()},
	}
	if err := m.network.SendMessage(from, msg); err != nil {
		m.log.WithError(err).Warn("discover: respond")
	}
}
