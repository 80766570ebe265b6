package core

// smart_router.go – reputation-weighted multi-hop message routing. The
// router keeps a routing table fed by topology discovery, selects a
// strategy per message, and drains prioritized queues with bounded
// per-message retries.

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// SmartRouterConfig tunes queue caps and background intervals.
type SmartRouterConfig struct {
	Queues            QueueSizeLimits `mapstructure:"queues"`
	DispatchInterval  time.Duration   `mapstructure:"dispatch_interval"`
	DiscoveryInterval time.Duration   `mapstructure:"discovery_interval"`
	DefaultAttempts   int             `mapstructure:"default_attempts"`
	CongestionLevel   int             `mapstructure:"congestion_level"`
	FewPeersLevel     int             `mapstructure:"few_peers_level"`
}

// DefaultSmartRouterConfig returns the node defaults.
func DefaultSmartRouterConfig() SmartRouterConfig {
	return SmartRouterConfig{
		Queues:            DefaultQueueSizeLimits(),
		DispatchInterval:  50 * time.Millisecond,
		DiscoveryInterval: 30 * time.Second,
		DefaultAttempts:   3,
		CongestionLevel:   512,
		FewPeersLevel:     3,
	}
}

// peerResolver maps overlay identities to transport peers. The DHT-backed
// implementation reads /icn/service records.
type peerResolver func(DID) (PeerID, error)

// SmartP2pRouter routes messages across heterogeneous peers.
type SmartP2pRouter struct {
	cfg        SmartRouterConfig
	self       DID
	network    NetworkService
	reputation ReputationProvider
	table      *RoutingTable
	queue      *RouterMessageQueue
	resolve    peerResolver
	log        *logrus.Logger

	metrics RoutingMetrics
}

// NewSmartP2pRouter wires a router. resolve may be nil, in which case peers
// are resolved from the DHT service namespace.
func NewSmartP2pRouter(cfg SmartRouterConfig, self DID, network NetworkService, rep ReputationProvider, resolve peerResolver, logger *logrus.Logger) *SmartP2pRouter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	def := DefaultSmartRouterConfig()
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = def.DispatchInterval
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = def.DiscoveryInterval
	}
	if cfg.DefaultAttempts <= 0 {
		cfg.DefaultAttempts = def.DefaultAttempts
	}
	if cfg.CongestionLevel <= 0 {
		cfg.CongestionLevel = def.CongestionLevel
	}
	if cfg.FewPeersLevel <= 0 {
		cfg.FewPeersLevel = def.FewPeersLevel
	}
	r := &SmartP2pRouter{
		cfg:        cfg,
		self:       self,
		network:    network,
		reputation: rep,
		table:      NewRoutingTable(),
		queue:      NewRouterMessageQueue(cfg.Queues),
		resolve:    resolve,
		log:        logger,
	}
	if r.resolve == nil {
		r.resolve = r.resolveFromDht
	}
	return r
}

// Table exposes the routing table for the discovery loop and tests.
func (r *SmartP2pRouter) Table() *RoutingTable { return r.table }

// Metrics snapshots router counters.
func (r *SmartP2pRouter) Metrics() RoutingMetrics { return r.metrics }

func (r *SmartP2pRouter) resolveFromDht(target DID) (PeerID, error) {
	raw, err := r.network.GetRecord(ServiceRecordKey(target))
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", fmt.Errorf("%w: no service record for %s", ErrPeerNotFound, target)
	}
	return PeerID(raw), nil
}

// RouteMessage enqueues msg toward target with the given priority. Enqueue
// fails fast when the priority queue is full.
func (r *SmartP2pRouter) RouteMessage(target DID, msg ProtocolMessage, priority MessagePriority, deadline *time.Time) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return r.queue.Enqueue(&QueuedMessage{
		Target:      target,
		Message:     msg,
		Priority:    priority,
		MaxAttempts: r.cfg.DefaultAttempts,
		Deadline:    deadline,
	})
}

// Run drains the queues and refreshes topology until ctx is cancelled.
func (r *SmartP2pRouter) Run(ctx context.Context) {
	dispatch := time.NewTicker(r.cfg.DispatchInterval)
	discovery := time.NewTicker(r.cfg.DiscoveryInterval)
	defer dispatch.Stop()
	defer discovery.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-discovery.C:
			r.table.DiscoverRoutes(r.self)
		case <-dispatch.C:
			for {
				m := r.queue.Dequeue()
				if m == nil {
					break
				}
				r.dispatch(m)
			}
		}
	}
}

// dispatch attempts one delivery, requeueing on failure until the message
// exhausts its attempts or deadline.
func (r *SmartP2pRouter) dispatch(m *QueuedMessage) {
	if m.Deadline != nil && time.Now().After(*m.Deadline) {
		r.metrics.Dropped++
		r.log.WithField("target", m.Target.String()).Warn("routed message past deadline, dropped")
		return
	}
	m.Attempts++
	r.metrics.Dispatched++
	if err := r.deliver(m); err != nil {
		r.metrics.PathFailures++
		if m.Attempts >= m.MaxAttempts {
			r.metrics.Dropped++
			r.log.WithField("target", m.Target.String()).WithError(err).Warn("routed message exhausted attempts")
			return
		}
		r.metrics.Retried++
		if qerr := r.queue.Requeue(m); qerr != nil {
			r.metrics.Dropped++
			r.log.WithField("target", m.Target.String()).Warn("retry queue full, message dropped")
		}
		return
	}
	r.metrics.Delivered++
}

// deliver selects a strategy and sends along the chosen path.
func (r *SmartP2pRouter) deliver(m *QueuedMessage) error {
	strategy := r.SelectStrategy(m.Target)
	switch strategy.Kind {
	case RouteDirect:
		return r.sendDirect(m.Target, m.Message)
	case RouteRedundant:
		return r.sendRedundant(m.Target, m.Message, strategy.PathCount)
	default:
		path, err := r.pickPath(m.Target, strategy)
		if err != nil {
			// No composed path: fall back to a direct attempt.
			return r.sendDirect(m.Target, m.Message)
		}
		return r.sendVia(path, m.Message)
	}
}

// SelectStrategy applies the selection policy: direct when the link is
// good; reputation-gated for high-reputation targets; otherwise an
// adaptive branch keyed on overlay size and queue congestion.
func (r *SmartP2pRouter) SelectStrategy(target DID) RoutingStrategy {
	if info, ok := r.table.DirectPeer(target); ok && directUsable(info.Direct) {
		return RoutingStrategy{Kind: RouteDirect}
	}
	rep := 0.0
	if r.reputation != nil {
		rep = r.reputation.GetReputation(target)
	}
	if rep > 500 {
		return RoutingStrategy{Kind: RouteReputationBased, MinReputation: 500}
	}
	if len(r.table.DirectPeers()) <= r.cfg.FewPeersLevel {
		return RoutingStrategy{Kind: RouteMostReliable, MinReliability: 0.5}
	}
	if r.queue.Len() >= r.cfg.CongestionLevel {
		return RoutingStrategy{Kind: RouteLoadBalanced}
	}
	return RoutingStrategy{Kind: RouteLowestLatency}
}

// pickPath ranks candidate paths for the strategy and returns the best.
func (r *SmartP2pRouter) pickPath(target DID, strategy RoutingStrategy) (RoutePath, error) {
	paths := r.table.Paths(target)
	if len(paths) == 0 {
		return RoutePath{}, fmt.Errorf("%w: no path to %s", ErrPeerNotFound, target)
	}
	candidates := paths[:0:0]
	for _, p := range paths {
		if strategy.Kind == RouteReputationBased && r.reputation != nil {
			ok := true
			for _, hop := range p.PathPeers {
				if r.reputation.GetReputation(hop) < strategy.MinReputation {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
		}
		if strategy.Kind == RouteMostReliable && p.Reliability < strategy.MinReliability {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return RoutePath{}, fmt.Errorf("%w: no path to %s satisfies %s", ErrPeerNotFound, target, strategy.Kind)
	}
	switch strategy.Kind {
	case RouteLowestLatency:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].EstLatencyMs < candidates[j].EstLatencyMs })
	case RouteMostReliable:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Reliability > candidates[j].Reliability })
	case RouteLoadBalanced:
		// Spread load by rotating on the dispatch counter.
		return candidates[int(r.metrics.Dispatched)%len(candidates)], nil
	default:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Quality > candidates[j].Quality })
	}
	return candidates[0], nil
}

func (r *SmartP2pRouter) sendDirect(target DID, msg ProtocolMessage) error {
	peer, err := r.resolve(target)
	if err != nil {
		return err
	}
	return r.network.SendMessage(peer, msg)
}

// sendVia forwards to the first hop of the path; intermediate peers relay.
func (r *SmartP2pRouter) sendVia(path RoutePath, msg ProtocolMessage) error {
	if len(path.PathPeers) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidInput)
	}
	peer, err := r.resolve(path.PathPeers[0])
	if err != nil {
		return err
	}
	return r.network.SendMessage(peer, msg)
}

// sendRedundant fires over up to pathCount distinct paths plus the direct
// link; success if any attempt succeeds.
func (r *SmartP2pRouter) sendRedundant(target DID, msg ProtocolMessage, pathCount int) error {
	if pathCount <= 0 {
		pathCount = 2
	}
	var lastErr error
	delivered := false
	if err := r.sendDirect(target, msg); err == nil {
		delivered = true
	} else {
		lastErr = err
	}
	for i, p := range r.table.Paths(target) {
		if i >= pathCount {
			break
		}
		if err := r.sendVia(p, msg); err == nil {
			delivered = true
		} else {
			lastErr = err
		}
	}
	if delivered {
		return nil
	}
	return fmt.Errorf("%w: all redundant paths to %s failed: %v", ErrSendFailure, target, lastErr)
}
