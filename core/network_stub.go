package core

// network_stub.go – in-process overlay used by tests and embedded
// single-process wiring. A hub routes envelopes between endpoints; the DHT
// is a shared map. Outbound calls still flow through the shared breaker and
// retry policy so resilience semantics match the real transport.

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// StubNetworkHub connects StubNetwork endpoints in one process.
type StubNetworkHub struct {
	mu        sync.RWMutex
	endpoints map[PeerID]*StubNetwork
	dht       map[string][]byte
}

// NewStubNetworkHub returns an empty hub.
func NewStubNetworkHub() *StubNetworkHub {
	return &StubNetworkHub{
		endpoints: make(map[PeerID]*StubNetwork),
		dht:       make(map[string][]byte),
	}
}

// Join registers a new endpoint for peer. The resolver and replay cache
// guard the signed subscription stream.
func (h *StubNetworkHub) Join(peer PeerID, resolver KeyResolver, logger *logrus.Logger) *StubNetwork {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	n := &StubNetwork{
		hub:      h,
		local:    peer,
		resolver: resolver,
		replay:   NewReplayCache(DefaultReplayWindow),
		breaker:  NewCircuitBreaker(3, 0),
		retry:    DefaultRetryPolicy(),
		stats:    &statsRecorder{},
		log:      logger,
	}
	h.mu.Lock()
	h.endpoints[peer] = n
	h.mu.Unlock()
	return n
}

// Leave removes peer from the hub.
func (h *StubNetworkHub) Leave(peer PeerID) {
	h.mu.Lock()
	delete(h.endpoints, peer)
	h.mu.Unlock()
}

func (h *StubNetworkHub) peers() []PeerID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]PeerID, 0, len(h.endpoints))
	for p := range h.endpoints {
		out = append(out, p)
	}
	return out
}

func (h *StubNetworkHub) endpoint(peer PeerID) *StubNetwork {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.endpoints[peer]
}

// StubNetwork is one endpoint on the hub.
type StubNetwork struct {
	hub      *StubNetworkHub
	local    PeerID
	resolver KeyResolver
	replay   *ReplayCache
	breaker  *CircuitBreaker
	retry    RetryPolicy
	stats    *statsRecorder
	log      *logrus.Logger

	subMu      sync.Mutex
	plainSubs  []chan ReceivedMessage
	signedSubs []chan *SignedMessage
}

// LocalPeer returns this endpoint's id.
func (n *StubNetwork) LocalPeer() PeerID { return n.local }

// DiscoverPeers lists every other endpoint on the hub; target filters by
// substring match on the peer id.
func (n *StubNetwork) DiscoverPeers(target string) ([]PeerID, error) {
	var out []PeerID
	for _, p := range n.hub.peers() {
		if p == n.local {
			continue
		}
		if target != "" && !containsFold(string(p), target) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SendMessage delivers msg to one peer through the resilience wrapper.
func (n *StubNetwork) SendMessage(peer PeerID, msg ProtocolMessage) error {
	raw, err := EncodeProtocolMessage(&msg)
	if err != nil {
		return err
	}
	return CallWithResilience(context.Background(), n.breaker, n.retry, func() error {
		ep := n.hub.endpoint(peer)
		if ep == nil {
			n.stats.recordFailure()
			return fmt.Errorf("%w: %s", ErrPeerNotFound, peer)
		}
		ep.deliverPlain(ReceivedMessage{From: n.local, Message: msg})
		n.stats.recordSend(len(raw))
		return nil
	})
}

// BroadcastMessage delivers msg to every other endpoint.
func (n *StubNetwork) BroadcastMessage(msg ProtocolMessage) error {
	raw, err := EncodeProtocolMessage(&msg)
	if err != nil {
		return err
	}
	return CallWithResilience(context.Background(), n.breaker, n.retry, func() error {
		for _, p := range n.hub.peers() {
			if p == n.local {
				continue
			}
			if ep := n.hub.endpoint(p); ep != nil {
				ep.deliverPlain(ReceivedMessage{From: n.local, Message: msg})
				n.stats.recordSend(len(raw))
			}
		}
		return nil
	})
}

// Subscribe opens a buffered stream of inbound plain messages.
func (n *StubNetwork) Subscribe() (<-chan ReceivedMessage, func(), error) {
	ch := make(chan ReceivedMessage, 128)
	n.subMu.Lock()
	n.plainSubs = append(n.plainSubs, ch)
	n.subMu.Unlock()
	cancel := func() {
		n.subMu.Lock()
		defer n.subMu.Unlock()
		for i, c := range n.plainSubs {
			if c == ch {
				n.plainSubs = append(n.plainSubs[:i], n.plainSubs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel, nil
}

// SendSignedMessage delivers a signed envelope to one peer.
func (n *StubNetwork) SendSignedMessage(peer PeerID, sm *SignedMessage) error {
	raw, err := EncodeSignedMessage(sm)
	if err != nil {
		return err
	}
	return CallWithResilience(context.Background(), n.breaker, n.retry, func() error {
		ep := n.hub.endpoint(peer)
		if ep == nil {
			n.stats.recordFailure()
			return fmt.Errorf("%w: %s", ErrPeerNotFound, peer)
		}
		ep.deliverSigned(sm)
		n.stats.recordSend(len(raw))
		return nil
	})
}

// BroadcastSignedMessage delivers a signed envelope to every other endpoint.
func (n *StubNetwork) BroadcastSignedMessage(sm *SignedMessage) error {
	raw, err := EncodeSignedMessage(sm)
	if err != nil {
		return err
	}
	return CallWithResilience(context.Background(), n.breaker, n.retry, func() error {
		for _, p := range n.hub.peers() {
			if p == n.local {
				continue
			}
			if ep := n.hub.endpoint(p); ep != nil {
				ep.deliverSigned(sm)
				n.stats.recordSend(len(raw))
			}
		}
		return nil
	})
}

// SubscribeSigned opens a stream of verified signed envelopes. Envelopes
// failing verification or replay protection are dropped with a warning.
func (n *StubNetwork) SubscribeSigned() (<-chan *SignedMessage, func(), error) {
	ch := make(chan *SignedMessage, 128)
	n.subMu.Lock()
	n.signedSubs = append(n.signedSubs, ch)
	n.subMu.Unlock()
	cancel := func() {
		n.subMu.Lock()
		defer n.subMu.Unlock()
		for i, c := range n.signedSubs {
			if c == ch {
				n.signedSubs = append(n.signedSubs[:i], n.signedSubs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel, nil
}

func (n *StubNetwork) deliverPlain(rm ReceivedMessage) {
	raw, _ := EncodeProtocolMessage(&rm.Message)
	n.stats.recordReceive(len(raw))
	n.stats.recordLatency(1)
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for _, ch := range n.plainSubs {
		select {
		case ch <- rm:
		default:
			n.log.Warn("stub network: plain subscriber backlogged, dropping")
		}
	}
}

func (n *StubNetwork) deliverSigned(sm *SignedMessage) {
	raw, _ := EncodeSignedMessage(sm)
	n.stats.recordReceive(len(raw))
	n.stats.recordLatency(1)
	if n.resolver != nil {
		if err := VerifyMessageSignature(sm, n.resolver, n.replay); err != nil {
			n.log.WithError(err).Warn("stub network: dropping signed message")
			return
		}
	}
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for _, ch := range n.signedSubs {
		select {
		case ch <- sm:
		default:
			n.log.Warn("stub network: signed subscriber backlogged, dropping")
		}
	}
}

// StoreRecord writes value under the namespaced key in the shared DHT.
func (n *StubNetwork) StoreRecord(key string, value []byte) error {
	n.hub.mu.Lock()
	n.hub.dht[key] = append([]byte(nil), value...)
	n.hub.mu.Unlock()
	return nil
}

// GetRecord reads the DHT; absent keys return (nil, nil).
func (n *StubNetwork) GetRecord(key string) ([]byte, error) {
	n.hub.mu.RLock()
	defer n.hub.mu.RUnlock()
	v, ok := n.hub.dht[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// GetNetworkStats snapshots the endpoint counters.
func (n *StubNetwork) GetNetworkStats() NetworkStats {
	return n.stats.snapshot(len(n.hub.peers()) - 1)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

var _ NetworkService = (*StubNetwork)(nil)
