package core

// network_libp2p.go – libp2p-backed overlay. Broadcast rides a shared
// gossipsub topic, direct sends ride a per-peer topic, and DHT records are
// replicated over a record topic into each node's local table. Peer
// discovery combines mDNS with bootstrap dialing, following the node
// bootstrap flow in the network layer this is adapted from.

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
)

const (
	broadcastTopicName = "icn.broadcast"
	recordTopicName    = "icn.records"
	peerTopicPrefix    = "icn.peer."
)

// NetworkConfig tunes the libp2p overlay.
type NetworkConfig struct {
	ListenAddresses     []string      `mapstructure:"listen_addresses"`
	MaxPeers            int           `mapstructure:"max_peers"`
	MaxPeersPerIP       int           `mapstructure:"max_peers_per_ip"`
	ConnectionTimeout   time.Duration `mapstructure:"connection_timeout"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`
	BootstrapInterval   time.Duration `mapstructure:"bootstrap_interval"`
	DiscoveryInterval   time.Duration `mapstructure:"peer_discovery_interval"`
	EnableMDNS          bool          `mapstructure:"enable_mdns"`
	KademliaReplication int           `mapstructure:"kademlia_replication_factor"`
	BootstrapPeers      []string      `mapstructure:"bootstrap_peers"`
	DiscoveryTag        string        `mapstructure:"discovery_tag"`
}

// DefaultNetworkConfig mirrors the node defaults.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ListenAddresses:     []string{"/ip4/0.0.0.0/tcp/0"},
		MaxPeers:            100,
		MaxPeersPerIP:       4,
		ConnectionTimeout:   30 * time.Second,
		RequestTimeout:      30 * time.Second,
		HeartbeatInterval:   15 * time.Second,
		BootstrapInterval:   5 * time.Minute,
		DiscoveryInterval:   time.Minute,
		EnableMDNS:          true,
		KademliaReplication: 20,
		DiscoveryTag:        "icn-network",
	}
}

type dhtRecord struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// Libp2pNetwork implements NetworkService over a libp2p host.
type Libp2pNetwork struct {
	host     host.Host
	ps       *pubsub.PubSub
	cfg      NetworkConfig
	resolver KeyResolver
	replay   *ReplayCache
	breaker  *CircuitBreaker
	retry    RetryPolicy
	stats    *statsRecorder
	log      *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	topicMu sync.Mutex
	topics  map[string]*pubsub.Topic

	dhtMu sync.RWMutex
	dht   map[string][]byte

	subMu      sync.Mutex
	plainSubs  []chan ReceivedMessage
	signedSubs []chan *SignedMessage
}

// NewLibp2pNetwork boots a host, joins the shared topics and starts the
// reader loops.
func NewLibp2pNetwork(cfg NetworkConfig, resolver KeyResolver, logger *logrus.Logger) (*Libp2pNetwork, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddresses...))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: create host: %v", ErrNetwork, err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("%w: create pubsub: %v", ErrNetwork, err)
	}
	n := &Libp2pNetwork{
		host:     h,
		ps:       ps,
		cfg:      cfg,
		resolver: resolver,
		replay:   NewReplayCache(DefaultReplayWindow),
		breaker:  NewCircuitBreaker(3, 5*time.Second),
		retry:    DefaultRetryPolicy(),
		stats:    &statsRecorder{},
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
		topics:   make(map[string]*pubsub.Topic),
		dht:      make(map[string][]byte),
	}

	if err := n.dialBootstrap(cfg.BootstrapPeers); err != nil {
		logger.Warnf("bootstrap: %v", err)
	}
	if cfg.EnableMDNS {
		mdns.NewMdnsService(h, cfg.DiscoveryTag, n)
	}

	for _, name := range []string{broadcastTopicName, peerTopicPrefix + string(n.LocalPeer()), recordTopicName} {
		if err := n.listenTopic(name); err != nil {
			n.Close()
			return nil, err
		}
	}
	return n, nil
}

// Close tears down the host and reader loops.
func (n *Libp2pNetwork) Close() error {
	n.cancel()
	return n.host.Close()
}

// HandlePeerFound implements mdns.Notifee: connect to a discovered peer,
// ignoring ourselves.
func (n *Libp2pNetwork) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(n.ctx, info); err != nil {
		n.stats.recordFailure()
		n.log.Warnf("connect to discovered peer %s: %v", info.ID, err)
	}
}

var _ mdns.Notifee = (*Libp2pNetwork)(nil)

func (n *Libp2pNetwork) dialBootstrap(seeds []string) error {
	var firstErr error
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: bootstrap addr %s: %v", ErrInvalidInput, addr, err)
			}
			continue
		}
		if err := n.host.Connect(n.ctx, *pi); err != nil {
			n.stats.recordFailure()
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: dial %s: %v", ErrNetwork, addr, err)
			}
		}
	}
	return firstErr
}

func (n *Libp2pNetwork) topic(name string) (*pubsub.Topic, error) {
	n.topicMu.Lock()
	defer n.topicMu.Unlock()
	if t, ok := n.topics[name]; ok {
		return t, nil
	}
	t, err := n.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("%w: join %s: %v", ErrNetwork, name, err)
	}
	n.topics[name] = t
	return t, nil
}

func (n *Libp2pNetwork) listenTopic(name string) error {
	t, err := n.topic(name)
	if err != nil {
		return err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", ErrNetwork, name, err)
	}
	go n.readLoop(name, sub)
	return nil
}

func (n *Libp2pNetwork) readLoop(name string, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}
		start := time.Now()
		n.stats.recordReceive(len(msg.Data))
		switch name {
		case recordTopicName:
			n.applyRecord(msg.Data)
		default:
			n.dispatch(PeerID(msg.ReceivedFrom.String()), msg.Data)
		}
		n.stats.recordLatency(uint64(time.Since(start).Milliseconds()) + 1)
	}
}

func (n *Libp2pNetwork) applyRecord(raw []byte) {
	var rec dhtRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		n.log.WithError(err).Warn("bad dht record")
		return
	}
	n.dhtMu.Lock()
	n.dht[rec.Key] = rec.Value
	n.dhtMu.Unlock()
}

// dispatch fans one wire payload into plain or signed subscriber streams.
func (n *Libp2pNetwork) dispatch(from PeerID, raw []byte) {
	if sm, err := DecodeSignedMessage(raw); err == nil && len(sm.Signature) > 0 {
		if n.resolver != nil {
			if err := VerifyMessageSignature(sm, n.resolver, n.replay); err != nil {
				n.log.WithError(err).Warn("dropping signed message")
				return
			}
		}
		n.subMu.Lock()
		defer n.subMu.Unlock()
		for _, ch := range n.signedSubs {
			select {
			case ch <- sm:
			default:
				n.log.Warn("signed subscriber backlogged, dropping")
			}
		}
		return
	}
	pm, err := DecodeProtocolMessage(raw)
	if err != nil {
		n.log.WithError(err).Warn("dropping malformed message")
		return
	}
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for _, ch := range n.plainSubs {
		select {
		case ch <- ReceivedMessage{From: from, Message: *pm}:
		default:
			n.log.Warn("plain subscriber backlogged, dropping")
		}
	}
}

// LocalPeer returns the host peer id.
func (n *Libp2pNetwork) LocalPeer() PeerID { return PeerID(n.host.ID().String()) }

// DiscoverPeers lists connected peers, filtered by substring when target is
// non-empty.
func (n *Libp2pNetwork) DiscoverPeers(target string) ([]PeerID, error) {
	var out []PeerID
	for _, p := range n.host.Network().Peers() {
		id := PeerID(p.String())
		if target != "" && !containsFold(string(id), target) {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (n *Libp2pNetwork) publish(topicName string, raw []byte) error {
	return CallWithResilience(n.ctx, n.breaker, n.retry, func() error {
		t, err := n.topic(topicName)
		if err != nil {
			n.stats.recordFailure()
			return err
		}
		ctx, cancel := context.WithTimeout(n.ctx, n.cfg.RequestTimeout)
		defer cancel()
		if err := t.Publish(ctx, raw); err != nil {
			n.stats.recordFailure()
			return fmt.Errorf("%w: publish %s: %v", ErrSendFailure, topicName, err)
		}
		n.stats.recordSend(len(raw))
		return nil
	})
}

// SendMessage publishes msg on the target peer's direct topic.
func (n *Libp2pNetwork) SendMessage(peer PeerID, msg ProtocolMessage) error {
	raw, err := EncodeProtocolMessage(&msg)
	if err != nil {
		return err
	}
	return n.publish(peerTopicPrefix+string(peer), raw)
}

// BroadcastMessage publishes msg on the shared broadcast topic.
func (n *Libp2pNetwork) BroadcastMessage(msg ProtocolMessage) error {
	raw, err := EncodeProtocolMessage(&msg)
	if err != nil {
		return err
	}
	return n.publish(broadcastTopicName, raw)
}

// Subscribe opens a stream of inbound plain messages.
func (n *Libp2pNetwork) Subscribe() (<-chan ReceivedMessage, func(), error) {
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

// SendSignedMessage publishes a signed envelope on the peer topic.
func (n *Libp2pNetwork) SendSignedMessage(peer PeerID, sm *SignedMessage) error {
	raw, err := EncodeSignedMessage(sm)
	if err != nil {
		return err
	}
	return n.publish(peerTopicPrefix+string(peer), raw)
}

// BroadcastSignedMessage publishes a signed envelope on the broadcast topic.
func (n *Libp2pNetwork) BroadcastSignedMessage(sm *SignedMessage) error {
	raw, err := EncodeSignedMessage(sm)
	if err != nil {
		return err
	}
	return n.publish(broadcastTopicName, raw)
}

// SubscribeSigned opens a stream of verified signed envelopes.
func (n *Libp2pNetwork) SubscribeSigned() (<-chan *SignedMessage, func(), error) {
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

// StoreRecord writes locally and replicates over the record topic.
func (n *Libp2pNetwork) StoreRecord(key string, value []byte) error {
	n.dhtMu.Lock()
	n.dht[key] = append([]byte(nil), value...)
	n.dhtMu.Unlock()
	raw, err := json.Marshal(dhtRecord{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("%w: record %s: %v", ErrSerialization, key, err)
	}
	return n.publish(recordTopicName, raw)
}

// GetRecord reads the replicated table; absent keys return (nil, nil).
func (n *Libp2pNetwork) GetRecord(key string) ([]byte, error) {
	n.dhtMu.RLock()
	defer n.dhtMu.RUnlock()
	v, ok := n.dht[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// GetNetworkStats snapshots the transport counters.
func (n *Libp2pNetwork) GetNetworkStats() NetworkStats {
	return n.stats.snapshot(len(n.host.Network().Peers()))
}

var _ NetworkService = (*Libp2pNetwork)(nil)
