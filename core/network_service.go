package core

// network_service.go – abstract authenticated overlay contract. Concrete
// transports (in-process bus, libp2p) implement NetworkService; everything
// above the interface is transport-agnostic.

import "sync"

// PeerID identifies a transport-level peer.
type PeerID string

// DHT key namespaces.
const (
	DhtServicePrefix = "/icn/service/"
	DhtDidPrefix     = "/icn/did/"
	DhtFedInfoPrefix = "/icn/fedinfo/"
)

// ServiceRecordKey keys a service advertisement for did.
func ServiceRecordKey(did DID) string { return DhtServicePrefix + did.String() }

// DidRecordKey keys the DID document for did.
func DidRecordKey(did DID) string { return DhtDidPrefix + did.String() }

// FedInfoRecordKey keys federation info for id.
func FedInfoRecordKey(id string) string { return DhtFedInfoPrefix + id }

// ReceivedMessage is one delivery from the subscription stream.
type ReceivedMessage struct {
	From    PeerID
	Message ProtocolMessage
}

// NetworkStats aggregates transport counters.
type NetworkStats struct {
	PeerCount         int    `json:"peer_count"`
	BytesSent         uint64 `json:"bytes_sent"`
	BytesReceived     uint64 `json:"bytes_received"`
	MessagesSent      uint64 `json:"messages_sent"`
	MessagesReceived  uint64 `json:"messages_received"`
	FailedConnections uint64 `json:"failed_connections"`
	MinLatencyMs      uint64 `json:"min_latency_ms"`
	AvgLatencyMs      uint64 `json:"avg_latency_ms"`
	MaxLatencyMs      uint64 `json:"max_latency_ms"`
	LastLatencyMs     uint64 `json:"last_latency_ms"`
}

// NetworkService is the authenticated overlay used by every component.
//
// Subscribe returns a stream of verified-or-unsigned inbound messages plus a
// cancel func; SubscribeSigned delivers only envelopes that passed signature
// verification and replay protection. StoreRecord/GetRecord expose the
// namespaced DHT; GetRecord returns (nil, nil) when the key is absent.
type NetworkService interface {
	LocalPeer() PeerID
	DiscoverPeers(target string) ([]PeerID, error)
	SendMessage(peer PeerID, msg ProtocolMessage) error
	BroadcastMessage(msg ProtocolMessage) error
	Subscribe() (<-chan ReceivedMessage, func(), error)
	SendSignedMessage(peer PeerID, sm *SignedMessage) error
	BroadcastSignedMessage(sm *SignedMessage) error
	SubscribeSigned() (<-chan *SignedMessage, func(), error)
	StoreRecord(key string, value []byte) error
	GetRecord(key string) ([]byte, error)
	GetNetworkStats() NetworkStats
}

// statsRecorder folds latency samples and counters into NetworkStats.
type statsRecorder struct {
	mu       sync.Mutex
	stats    NetworkStats
	latSum   uint64
	latCount uint64
}

func (s *statsRecorder) recordSend(bytes int) {
	s.mu.Lock()
	s.stats.MessagesSent++
	s.stats.BytesSent += uint64(bytes)
	s.mu.Unlock()
}

func (s *statsRecorder) recordReceive(bytes int) {
	s.mu.Lock()
	s.stats.MessagesReceived++
	s.stats.BytesReceived += uint64(bytes)
	s.mu.Unlock()
}

func (s *statsRecorder) recordFailure() {
	s.mu.Lock()
	s.stats.FailedConnections++
	s.mu.Unlock()
}

func (s *statsRecorder) recordLatency(ms uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latCount == 0 || ms < s.stats.MinLatencyMs {
		s.stats.MinLatencyMs = ms
	}
	if ms > s.stats.MaxLatencyMs {
		s.stats.MaxLatencyMs = ms
	}
	s.stats.LastLatencyMs = ms
	s.latSum += ms
	s.latCount++
	s.stats.AvgLatencyMs = s.latSum / s.latCount
}

func (s *statsRecorder) snapshot(peerCount int) NetworkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.PeerCount = peerCount
	return out
}
