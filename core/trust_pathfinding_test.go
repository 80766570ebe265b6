package core

import (
	"errors"
	"math"
	"testing"
)

func TestFindBestPathDirect(t *testing.T) {
	f := NewTrustPathfinder()
	a := MustDID("did:icn:a")
	b := MustDID("did:icn:b")
	f.AddTrust(a, b, 0.8)

	p, err := f.FindBestPath(a, b)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if len(p.Edges) != 1 {
		t.Fatalf("edges %v", p.Edges)
	}
	cfg := DefaultPathDiscoveryConfig()
	want := 0.8 * cfg.DecayFactor * (1 - cfg.DistancePenalty)
	if math.Abs(p.Score-want) > 1e-9 {
		t.Fatalf("score %f, want %f", p.Score, want)
	}
}

func TestFindBestPathPrefersStrongerRoute(t *testing.T) {
	f := NewTrustPathfinder()
	a := MustDID("did:icn:a")
	weak := MustDID("did:icn:weak")
	strong := MustDID("did:icn:strong")
	target := MustDID("did:icn:target")
	f.AddTrust(a, weak, 0.3)
	f.AddTrust(weak, target, 0.3)
	f.AddTrust(a, strong, 0.9)
	f.AddTrust(strong, target, 0.9)

	p, err := f.FindBestPath(a, target)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if !p.ContainsNode(strong) || p.ContainsNode(weak) {
		t.Fatalf("picked path through %v", p.IntermediateNodes())
	}
}

func TestFindBestPathUnreachable(t *testing.T) {
	f := NewTrustPathfinder()
	a := MustDID("did:icn:a")
	island := MustDID("did:icn:island")
	f.AddTrust(a, MustDID("did:icn:b"), 0.9)
	if _, err := f.FindBestPath(a, island); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecayCutsLongWeakChains(t *testing.T) {
	cfg := DefaultPathDiscoveryConfig()
	cfg.MinScore = 0.3
	f := NewTrustPathfinderWithConfig(cfg)
	nodes := []DID{
		MustDID("did:icn:n0"), MustDID("did:icn:n1"),
		MustDID("did:icn:n2"), MustDID("did:icn:n3"),
	}
	for i := 0; i+1 < len(nodes); i++ {
		f.AddTrust(nodes[i], nodes[i+1], 0.6)
	}
	// 0.6³·0.9³ ≈ 0.157 < 0.3: the chain decays below the floor.
	if _, err := f.FindBestPath(nodes[0], nodes[3]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("weak chain accepted: %v", err)
	}
}

func TestFindMultiplePathsDisjoint(t *testing.T) {
	f := NewTrustPathfinder()
	a := MustDID("did:icn:a")
	target := MustDID("did:icn:target")
	mid1 := MustDID("did:icn:mid1")
	mid2 := MustDID("did:icn:mid2")
	f.AddTrust(a, mid1, 0.9)
	f.AddTrust(mid1, target, 0.9)
	f.AddTrust(a, mid2, 0.8)
	f.AddTrust(mid2, target, 0.8)

	paths := f.FindMultiplePaths(a, target)
	if len(paths) != 2 {
		t.Fatalf("found %d paths", len(paths))
	}
	if paths[0].Score < paths[1].Score {
		t.Fatalf("paths not sorted by score")
	}
	if paths[0].IntermediateNodes()[0] == paths[1].IntermediateNodes()[0] {
		t.Fatalf("paths share an intermediate node")
	}
}

func TestFindReachableNodes(t *testing.T) {
	f := NewTrustPathfinder()
	a := MustDID("did:icn:a")
	b := MustDID("did:icn:b")
	c := MustDID("did:icn:c")
	f.AddTrust(a, b, 0.9)
	f.AddTrust(b, c, 0.9)

	reach := f.FindReachableNodes(a, 0.1)
	if len(reach) != 2 {
		t.Fatalf("reachable %v", reach)
	}
	if reach[b] <= reach[c] {
		t.Fatalf("closer node scored lower: %v", reach)
	}
}
