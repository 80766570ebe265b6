package core

import (
	"math"
	"testing"
)

func routeInfo(did string, latency, loss float64, connections ...string) PeerRouteInfo {
	info := PeerRouteInfo{
		Peer:   MustDID("did:icn:" + did),
		Direct: ConnectionQuality{LatencyMs: latency, PacketLossRate: loss, Stability: 1},
	}
	for _, c := range connections {
		info.Connections = append(info.Connections, MustDID("did:icn:"+c))
	}
	return info
}

//-------------------------------------------------------------
// Two-hop composition math
//-------------------------------------------------------------

func TestDiscoverTwoHopRoutes(t *testing.T) {
	table := NewRoutingTable()
	self := MustDID("did:icn:self")
	table.UpsertDirectPeer(routeInfo("relay", 100, 0, "far"))
	table.DiscoverRoutes(self)

	far := MustDID("did:icn:far")
	paths := table.Paths(far)
	if len(paths) != 1 {
		t.Fatalf("expected one 2-hop path, got %v", paths)
	}
	p := paths[0]
	if len(p.PathPeers) != 2 || p.PathPeers[0] != MustDID("did:icn:relay") || p.PathPeers[1] != far {
		t.Fatalf("path peers %v", p.PathPeers)
	}
	linkQ := linkQuality(ConnectionQuality{LatencyMs: 100, PacketLossRate: 0, Stability: 1})
	wantQuality := linkQ * linkQ * multiHopQualityFactor
	if math.Abs(p.Quality-wantQuality) > 1e-9 {
		t.Fatalf("quality %f, want %f", p.Quality, wantQuality)
	}
	wantLatency := 100.0 + 100.0 + perHopLatencyPenaltyMs
	if math.Abs(p.EstLatencyMs-wantLatency) > 1e-9 {
		t.Fatalf("latency %f, want %f", p.EstLatencyMs, wantLatency)
	}
}

func TestPathsKeepTopFive(t *testing.T) {
	table := NewRoutingTable()
	target := MustDID("did:icn:target")
	var paths []RoutePath
	for i := 0; i < 8; i++ {
		paths = append(paths, RoutePath{
			PathPeers: []DID{MustDID("did:icn:hop"), target},
			Quality:   float64(i) / 10,
		})
	}
	table.SetPaths(target, paths)
	kept := table.Paths(target)
	if len(kept) != routeMaxAlternativePaths {
		t.Fatalf("kept %d paths, want %d", len(kept), routeMaxAlternativePaths)
	}
	if kept[0].Quality != 0.7 {
		t.Fatalf("best path quality %f, want 0.7", kept[0].Quality)
	}
}

func TestRemovePeerPrunesPaths(t *testing.T) {
	table := NewRoutingTable()
	self := MustDID("did:icn:self")
	table.UpsertDirectPeer(routeInfo("relay", 50, 0, "far"))
	table.DiscoverRoutes(self)
	far := MustDID("did:icn:far")
	if len(table.Paths(far)) == 0 {
		t.Fatalf("no path composed")
	}
	table.RemovePeer(MustDID("did:icn:relay"))
	if got := table.Paths(far); len(got) != 0 {
		t.Fatalf("paths through removed peer survived: %v", got)
	}
}

//-------------------------------------------------------------
// Strategy selection policy
//-------------------------------------------------------------

func TestSelectStrategy(t *testing.T) {
	rep := NewStaticReputation(map[DID]float64{
		MustDID("did:icn:famous"): 800,
	})
	hub := NewStubNetworkHub()
	net := hub.Join("router-peer", nil, quietLogger())
	r := NewSmartP2pRouter(DefaultSmartRouterConfig(), MustDID("did:icn:self"), net, rep, nil, quietLogger())

	// Good direct link ⇒ direct.
	direct := MustDID("did:icn:direct")
	r.Table().UpsertDirectPeer(PeerRouteInfo{Peer: direct, Direct: ConnectionQuality{LatencyMs: 40, PacketLossRate: 0.01, Stability: 1}})
	if s := r.SelectStrategy(direct); s.Kind != RouteDirect {
		t.Fatalf("good link selected %s", s.Kind)
	}

	// Bad direct link but famous peer ⇒ reputation-based.
	famous := MustDID("did:icn:famous")
	r.Table().UpsertDirectPeer(PeerRouteInfo{Peer: famous, Direct: ConnectionQuality{LatencyMs: 900, PacketLossRate: 0.2}})
	if s := r.SelectStrategy(famous); s.Kind != RouteReputationBased {
		t.Fatalf("famous peer selected %s", s.Kind)
	}

	// Few peers ⇒ most reliable.
	stranger := MustDID("did:icn:stranger")
	if s := r.SelectStrategy(stranger); s.Kind != RouteMostReliable {
		t.Fatalf("thin overlay selected %s", s.Kind)
	}

	// Enough peers and no congestion ⇒ lowest latency.
	for _, name := range []string{"p1", "p2", "p3", "p4"} {
		r.Table().UpsertDirectPeer(routeInfo(name, 600, 0.1))
	}
	if s := r.SelectStrategy(stranger); s.Kind != RouteLowestLatency {
		t.Fatalf("wide overlay selected %s", s.Kind)
	}
}

func TestDirectUsableThresholds(t *testing.T) {
	cases := []struct {
		q    ConnectionQuality
		want bool
	}{
		{ConnectionQuality{LatencyMs: 100, PacketLossRate: 0.01}, true},
		{ConnectionQuality{LatencyMs: 600, PacketLossRate: 0.01}, false},
		{ConnectionQuality{LatencyMs: 100, PacketLossRate: 0.10}, false},
	}
	for i, tc := range cases {
		if got := directUsable(tc.q); got != tc.want {
			t.Fatalf("case %d: directUsable = %v, want %v", i, got, tc.want)
		}
	}
}
