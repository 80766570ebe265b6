package core

// path_discovery.go – multi-hop route composition. Each direct peer
// advertises its own connections; two-hop paths come straight from those
// advertisements and three-hop paths prepend a direct neighbor to a
// two-hop path. Composed quality is the product of per-link qualities
// discounted once by the multi-hop factor, whatever the hop count; latency
// is the sum plus a penalty per hop beyond the first.

// DiscoverRoutes rebuilds the multi-hop path set for every reachable
// target from the current direct-peer advertisements.
func (t *RoutingTable) DiscoverRoutes(self DID) {
	direct := t.DirectPeers()
	twoHop := make(map[DID][]RoutePath)

	for _, first := range direct {
		firstQ := linkQuality(first.Direct)
		for _, second := range first.Connections {
			if second == self || t.isDirect(second) {
				continue
			}
			// Without a measurement for the advertised link, assume the
			// first hop's quality also bounds the second.
			path := composePath([]DID{first.Peer, second}, []float64{firstQ, firstQ}, []float64{first.Direct.LatencyMs, first.Direct.LatencyMs})
			twoHop[second] = append(twoHop[second], path)
		}
	}

	threeHop := make(map[DID][]RoutePath)
	for _, first := range direct {
		firstQ := linkQuality(first.Direct)
		for target, paths := range twoHop {
			for _, p := range paths {
				if p.PathPeers[0] == first.Peer || contains(p.PathPeers, first.Peer) {
					continue
				}
				extended := composePath(
					append([]DID{first.Peer}, p.PathPeers...),
					[]float64{firstQ, p.Quality / multiHopQualityFactor},
					[]float64{first.Direct.LatencyMs, p.EstLatencyMs - perHopLatencyPenaltyMs},
				)
				threeHop[target] = append(threeHop[target], extended)
			}
		}
	}

	merged := make(map[DID][]RoutePath, len(twoHop)+len(threeHop))
	for target, paths := range twoHop {
		merged[target] = append(merged[target], paths...)
	}
	for target, paths := range threeHop {
		merged[target] = append(merged[target], paths...)
	}
	for target, paths := range merged {
		t.SetPaths(target, paths)
	}
}

// composePath folds per-link qualities and latencies into one RoutePath.
func composePath(peers []DID, linkQualities, linkLatencies []float64) RoutePath {
	quality := 1.0
	reliability := 1.0
	latency := 0.0
	for i := range linkQualities {
		quality *= linkQualities[i]
		reliability *= linkQualities[i]
		latency += linkLatencies[i]
	}
	quality *= multiHopQualityFactor
	hops := len(peers)
	if hops > 1 {
		latency += float64(hops-1) * perHopLatencyPenaltyMs
	}
	return RoutePath{
		PathPeers:    append([]DID(nil), peers...),
		Quality:      quality,
		EstLatencyMs: latency,
		Reliability:  reliability,
		SuccessRate:  reliability,
	}
}

func (t *RoutingTable) isDirect(peer DID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.direct[peer]
	return ok
}

func contains(peers []DID, peer DID) bool {
	for _, p := range peers {
		if p == peer {
			return true
		}
	}
	return false
}
