package core

// routing_table.go – the router's view of the overlay: direct peers with
// measured link quality and up to five ranked multi-hop paths per target.

import (
	"sort"
	"sync"
	"time"
)

// RoutingTable is mutex-guarded; the router and the topology discovery loop
// both write it.
type RoutingTable struct {
	mu                 sync.RWMutex
	direct             map[DID]*PeerRouteInfo
	multiHop           map[DID][]RoutePath
	lastTopologyUpdate time.Time
}

// NewRoutingTable returns an empty table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{
		direct:   make(map[DID]*PeerRouteInfo),
		multiHop: make(map[DID][]RoutePath),
	}
}

// UpsertDirectPeer records or refreshes a directly connected peer.
func (t *RoutingTable) UpsertDirectPeer(info PeerRouteInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info.LastSeen = time.Now()
	t.direct[info.Peer] = &info
}

// RemovePeer forgets a peer and any paths through or to it.
func (t *RoutingTable) RemovePeer(peer DID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.direct, peer)
	delete(t.multiHop, peer)
	for target, paths := range t.multiHop {
		kept := paths[:0]
		for _, p := range paths {
			through := false
			for _, hop := range p.PathPeers {
				if hop == peer {
					through = true
					break
				}
			}
			if !through {
				kept = append(kept, p)
			}
		}
		t.multiHop[target] = kept
	}
}

// DirectPeer returns the info for a directly connected peer.
func (t *RoutingTable) DirectPeer(peer DID) (PeerRouteInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.direct[peer]
	if !ok {
		return PeerRouteInfo{}, false
	}
	return *info, true
}

// DirectPeers snapshots all direct peers.
func (t *RoutingTable) DirectPeers() []PeerRouteInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PeerRouteInfo, 0, len(t.direct))
	for _, info := range t.direct {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Peer.String() < out[j].Peer.String() })
	return out
}

// Paths returns the ranked multi-hop paths toward target.
func (t *RoutingTable) Paths(target DID) []RoutePath {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]RoutePath(nil), t.multiHop[target]...)
}

// SetPaths replaces the paths toward target, keeping the top entries by
// quality.
func (t *RoutingTable) SetPaths(target DID, paths []RoutePath) {
	sort.Slice(paths, func(i, j int) bool { return paths[i].Quality > paths[j].Quality })
	if len(paths) > routeMaxAlternativePaths {
		paths = paths[:routeMaxAlternativePaths]
	}
	t.mu.Lock()
	t.multiHop[target] = paths
	t.lastTopologyUpdate = time.Now()
	t.mu.Unlock()
}

// LastTopologyUpdate reports when paths last changed.
func (t *RoutingTable) LastTopologyUpdate() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastTopologyUpdate
}

// linkQuality folds a connection measurement into a 0..1 score.
func linkQuality(q ConnectionQuality) float64 {
	latency := q.LatencyMs
	if latency < 1 {
		latency = 1
	}
	score := (1.0 / (1.0 + latency/200.0)) * (1.0 - q.PacketLossRate)
	if q.Stability > 0 {
		score *= q.Stability
	}
	if score < 0 {
		score = 0
	}
	return score
}

// directUsable reports whether a direct link meets the admission
// thresholds for the Direct strategy.
func directUsable(q ConnectionQuality) bool {
	return q.LatencyMs < directMaxLatencyMs && q.PacketLossRate < directMaxLossRate
}
