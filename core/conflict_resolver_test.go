package core

import (
	"errors"
	"testing"
)

//-------------------------------------------------------------
// FirstWins: earliest timestamp wins
//-------------------------------------------------------------

func TestResolveFirstWins(t *testing.T) {
	r, store := testResolver(t, StrategyFirstWins)
	early := mustBlock(t, "early", nil, 1000)
	late := mustBlock(t, "late", nil, 2000)
	for _, b := range []*DagBlock{early, late} {
		if err := store.Put(b); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	conflicts, err := r.DetectConflicts()
	if err != nil || len(conflicts) != 1 {
		t.Fatalf("detect: %v %v", conflicts, err)
	}
	status, err := r.ResolveConflict(conflicts[0].ConflictID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if status.Phase != PhaseResolved {
		t.Fatalf("phase %s", status.Phase)
	}
	if status.Winner != early.Cid {
		t.Fatalf("winner %s, want block@1000 %s", status.Winner, early.Cid)
	}
	if status.AppliedAt == 0 {
		t.Fatalf("applied_at unset")
	}

	// Resolved conflicts move to the history ring.
	if len(r.ActiveConflicts()) != 0 {
		t.Fatalf("conflict still active after resolution")
	}
	hist := r.ResolutionHistory()
	if len(hist) != 1 || hist[0].Status.Winner != early.Cid {
		t.Fatalf("history %v", hist)
	}
}

func TestResolveUnknownConflict(t *testing.T) {
	r, _ := testResolver(t, StrategyFirstWins)
	if _, err := r.ResolveConflict("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

//-------------------------------------------------------------
// PopularityBased: most inbound links wins
//-------------------------------------------------------------

func TestResolveByPopularity(t *testing.T) {
	r, store := testResolver(t, StrategyPopularityBased)
	popular := mustBlock(t, "popular", nil, 1)
	lonely := mustBlock(t, "lonely", nil, 2)
	fan1 := mustBlock(t, "fan1", []DagLink{{Cid: popular.Cid}}, 3)
	fan2 := mustBlock(t, "fan2", []DagLink{{Cid: popular.Cid}}, 4)
	for _, b := range []*DagBlock{popular, lonely, fan1, fan2} {
		if err := store.Put(b); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	conflict := DagConflict{
		ConflictID:        "pop-test",
		ConflictingBlocks: []Cid{popular.Cid, lonely.Cid},
		Type:              RootConflict,
		NodePositions:     map[DID]ConflictPosition{},
		Status:            ResolutionStatus{Phase: PhaseDetected},
	}
	r.mu.Lock()
	r.active[conflict.ConflictID] = &conflict
	r.mu.Unlock()

	status, err := r.ResolveConflict("pop-test")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if status.Winner != popular.Cid {
		t.Fatalf("winner %s, want %s", status.Winner, popular.Cid)
	}
}

//-------------------------------------------------------------
// LongestChain: deepest first-link chain wins
//-------------------------------------------------------------

func TestResolveByChainLength(t *testing.T) {
	r, store := testResolver(t, StrategyLongestChain)
	deep3 := mustBlock(t, "d3", nil, 1)
	deep2 := mustBlock(t, "d2", []DagLink{{Cid: deep3.Cid}}, 2)
	deep1 := mustBlock(t, "d1", []DagLink{{Cid: deep2.Cid}}, 3)
	shallow := mustBlock(t, "s1", nil, 4)
	for _, b := range []*DagBlock{deep3, deep2, deep1, shallow} {
		if err := store.Put(b); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	conflict := DagConflict{
		ConflictID:        "chain-test",
		ConflictingBlocks: []Cid{deep1.Cid, shallow.Cid},
		Type:              RootConflict,
		NodePositions:     map[DID]ConflictPosition{},
		Status:            ResolutionStatus{Phase: PhaseDetected},
	}
	r.mu.Lock()
	r.active[conflict.ConflictID] = &conflict
	r.mu.Unlock()

	status, err := r.ResolveConflict("chain-test")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if status.Winner != deep1.Cid {
		t.Fatalf("winner %s, want deep chain head %s", status.Winner, deep1.Cid)
	}
}

//-------------------------------------------------------------
// MultiCriteria: with equal timestamps, references decide
//-------------------------------------------------------------

func TestResolveByMultipleCriteria(t *testing.T) {
	r, store := testResolver(t, StrategyMultiCriteria)
	referenced := mustBlock(t, "referenced", nil, 1)
	fresh := mustBlock(t, "fresh", nil, 1)
	for i := 0; i < 3; i++ {
		fan := mustBlock(t, string(rune('a'+i)), []DagLink{{Cid: referenced.Cid}}, uint64(10+i))
		if err := store.Put(fan); err != nil {
			t.Fatalf("put fan: %v", err)
		}
	}
	for _, b := range []*DagBlock{referenced, fresh} {
		if err := store.Put(b); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	conflict := DagConflict{
		ConflictID:        "multi-test",
		ConflictingBlocks: []Cid{referenced.Cid, fresh.Cid},
		Type:              RootConflict,
		NodePositions:     map[DID]ConflictPosition{},
		Status:            ResolutionStatus{Phase: PhaseDetected},
	}
	r.mu.Lock()
	r.active[conflict.ConflictID] = &conflict
	r.mu.Unlock()

	status, err := r.ResolveConflict("multi-test")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if status.Winner != referenced.Cid {
		t.Fatalf("winner %s, want referenced %s", status.Winner, referenced.Cid)
	}
	// Winner is always one of the conflicting blocks.
	if status.Winner != referenced.Cid && status.Winner != fresh.Cid {
		t.Fatalf("winner %s outside candidate set", status.Winner)
	}
}

//-------------------------------------------------------------
// ReputationBased: oracle decides, not timestamps
//-------------------------------------------------------------

func TestResolveByReputation(t *testing.T) {
	store := NewMemoryBlockStore()
	cfg := DefaultConflictResolutionConfig()
	cfg.Strategy = StrategyReputationBased
	rep := NewStaticReputation(nil)
	r := NewConflictResolver(store, cfg, MustDID("did:icn:self"), rep, nil)

	trusted := MustDID("did:icn:trusted")
	shady := MustDID("did:icn:shady")
	rep.SetScore(trusted, 900)
	rep.SetScore(shady, 10)

	// The shady author's block is older; reputation must still win.
	older, err := NewDagBlock([]byte("older"), nil, 1, shady, nil, "")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	newer, err := NewDagBlock([]byte("newer"), nil, 100, trusted, nil, "")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	for _, b := range []*DagBlock{older, newer} {
		if err := store.Put(b); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	conflicts, err := r.DetectConflicts()
	if err != nil || len(conflicts) != 1 {
		t.Fatalf("detect: %v %v", conflicts, err)
	}
	status, err := r.ResolveConflict(conflicts[0].ConflictID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if status.Winner != newer.Cid {
		t.Fatalf("winner %s, want high-reputation author's %s", status.Winner, newer.Cid)
	}
}
