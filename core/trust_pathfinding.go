package core

// trust_pathfinding.go – transitive trust over the identity graph. Edge
// weights multiply along a path and decay per hop, giving an effective score
// for peers that are not directly trusted. The pathfinder is standalone: the
// router and the dispute code do not call it.

import (
	"container/heap"
	"fmt"
	"sort"
)

// TrustEdge is one directed trust statement.
type TrustEdge struct {
	From   DID     `json:"from"`
	To     DID     `json:"to"`
	Weight float64 `json:"weight"` // 0..1
}

// TrustPath is an ordered chain of edges from source to target.
type TrustPath struct {
	Source DID         `json:"source"`
	Target DID         `json:"target"`
	Edges  []TrustEdge `json:"edges"`
	Score  float64     `json:"score"`
}

// IntermediateNodes lists the hops strictly between source and target.
func (p *TrustPath) IntermediateNodes() []DID {
	if len(p.Edges) <= 1 {
		return nil
	}
	out := make([]DID, 0, len(p.Edges)-1)
	for _, e := range p.Edges[:len(p.Edges)-1] {
		out = append(out, e.To)
	}
	return out
}

// ContainsNode reports whether node appears anywhere on the path.
func (p *TrustPath) ContainsNode(node DID) bool {
	if p.Source == node || p.Target == node {
		return true
	}
	for _, hop := range p.IntermediateNodes() {
		if hop == node {
			return true
		}
	}
	return false
}

// PathDiscoveryConfig tunes the search.
type PathDiscoveryConfig struct {
	MaxDepth        int     `mapstructure:"max_depth"`
	DecayFactor     float64 `mapstructure:"decay_factor"`
	MinScore        float64 `mapstructure:"min_score"`
	MaxPaths        int     `mapstructure:"max_paths"`
	DistancePenalty float64 `mapstructure:"distance_penalty"`
}

// DefaultPathDiscoveryConfig returns the node defaults.
func DefaultPathDiscoveryConfig() PathDiscoveryConfig {
	return PathDiscoveryConfig{
		MaxDepth:        4,
		DecayFactor:     0.9,
		MinScore:        0.1,
		MaxPaths:        3,
		DistancePenalty: 0.05,
	}
}

// TrustPathfinder searches the trust graph.
type TrustPathfinder struct {
	cfg   PathDiscoveryConfig
	edges map[DID][]TrustEdge
}

// NewTrustPathfinder builds a pathfinder with default config.
func NewTrustPathfinder() *TrustPathfinder {
	return NewTrustPathfinderWithConfig(DefaultPathDiscoveryConfig())
}

// NewTrustPathfinderWithConfig builds a pathfinder with cfg.
func NewTrustPathfinderWithConfig(cfg PathDiscoveryConfig) *TrustPathfinder {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultPathDiscoveryConfig().MaxDepth
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor > 1 {
		cfg.DecayFactor = DefaultPathDiscoveryConfig().DecayFactor
	}
	if cfg.MaxPaths <= 0 {
		cfg.MaxPaths = DefaultPathDiscoveryConfig().MaxPaths
	}
	return &TrustPathfinder{cfg: cfg, edges: make(map[DID][]TrustEdge)}
}

// AddTrust records a directed trust edge, clamping weight into [0, 1].
func (f *TrustPathfinder) AddTrust(from, to DID, weight float64) {
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}
	for i, e := range f.edges[from] {
		if e.To == to {
			f.edges[from][i].Weight = weight
			return
		}
	}
	f.edges[from] = append(f.edges[from], TrustEdge{From: from, To: to, Weight: weight})
}

type pathCandidate struct {
	node  DID
	score float64
	path  []TrustEdge
}

type candidateHeap []pathCandidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(pathCandidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// FindBestPath returns the highest-scoring path from source to target, with
// multiplicative decay per hop and the configured distance penalty applied
// to the final score.
func (f *TrustPathfinder) FindBestPath(source, target DID) (*TrustPath, error) {
	h := &candidateHeap{{node: source, score: 1.0}}
	heap.Init(h)
	best := make(map[DID]float64)
	best[source] = 1.0

	for h.Len() > 0 {
		cur := heap.Pop(h).(pathCandidate)
		if cur.node == target {
			score := cur.score * (1.0 - f.cfg.DistancePenalty*float64(len(cur.path)))
			if score < f.cfg.MinScore {
				break
			}
			return &TrustPath{Source: source, Target: target, Edges: cur.path, Score: score}, nil
		}
		if len(cur.path) >= f.cfg.MaxDepth {
			continue
		}
		for _, e := range f.edges[cur.node] {
			next := cur.score * e.Weight * f.cfg.DecayFactor
			if next <= best[e.To] || next < f.cfg.MinScore {
				continue
			}
			best[e.To] = next
			heap.Push(h, pathCandidate{
				node:  e.To,
				score: next,
				path:  append(append([]TrustEdge(nil), cur.path...), e),
			})
		}
	}
	return nil, fmt.Errorf("%w: no trust path from %s to %s", ErrNotFound, source, target)
}

// FindMultiplePaths returns up to MaxPaths node-disjoint paths, best first.
func (f *TrustPathfinder) FindMultiplePaths(source, target DID) []TrustPath {
	var paths []TrustPath
	excluded := make(map[DID]bool)
	for len(paths) < f.cfg.MaxPaths {
		p, err := f.findPathExcluding(source, target, excluded)
		if err != nil {
			break
		}
		paths = append(paths, *p)
		for _, hop := range p.IntermediateNodes() {
			excluded[hop] = true
		}
		if len(p.IntermediateNodes()) == 0 {
			break // direct edge, no disjoint alternative through it
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].Score > paths[j].Score })
	return paths
}

func (f *TrustPathfinder) findPathExcluding(source, target DID, excluded map[DID]bool) (*TrustPath, error) {
	h := &candidateHeap{{node: source, score: 1.0}}
	heap.Init(h)
	best := map[DID]float64{source: 1.0}
	for h.Len() > 0 {
		cur := heap.Pop(h).(pathCandidate)
		if cur.node == target {
			score := cur.score * (1.0 - f.cfg.DistancePenalty*float64(len(cur.path)))
			if score < f.cfg.MinScore {
				break
			}
			return &TrustPath{Source: source, Target: target, Edges: cur.path, Score: score}, nil
		}
		if len(cur.path) >= f.cfg.MaxDepth {
			continue
		}
		for _, e := range f.edges[cur.node] {
			if excluded[e.To] && e.To != target {
				continue
			}
			next := cur.score * e.Weight * f.cfg.DecayFactor
			if next <= best[e.To] || next < f.cfg.MinScore {
				continue
			}
			best[e.To] = next
			heap.Push(h, pathCandidate{
				node:  e.To,
				score: next,
				path:  append(append([]TrustEdge(nil), cur.path...), e),
			})
		}
	}
	return nil, fmt.Errorf("%w: no trust path from %s to %s", ErrNotFound, source, target)
}

// FindReachableNodes returns every node whose best-path score from source
// stays at or above minScore, excluding source itself.
func (f *TrustPathfinder) FindReachableNodes(source DID, minScore float64) map[DID]float64 {
	reach := make(map[DID]float64)
	h := &candidateHeap{{node: source, score: 1.0}}
	heap.Init(h)
	best := map[DID]float64{source: 1.0}
	for h.Len() > 0 {
		cur := heap.Pop(h).(pathCandidate)
		if len(cur.path) >= f.cfg.MaxDepth {
			continue
		}
		for _, e := range f.edges[cur.node] {
			next := cur.score * e.Weight * f.cfg.DecayFactor
			if next <= best[e.To] || next < minScore {
				continue
			}
			best[e.To] = next
			reach[e.To] = next
			heap.Push(h, pathCandidate{
				node:  e.To,
				score: next,
				path:  append(append([]TrustEdge(nil), cur.path...), e),
			})
		}
	}
	return reach
}
