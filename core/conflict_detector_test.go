package core

import "testing"

func testResolver(t *testing.T, strategy ResolutionStrategy) (*ConflictResolver, *MemoryBlockStore) {
	t.Helper()
	store := NewMemoryBlockStore()
	cfg := DefaultConflictResolutionConfig()
	cfg.Strategy = strategy
	r := NewConflictResolver(store, cfg, MustDID("did:icn:self"), NewStaticReputation(nil), quietLogger())
	return r, store
}

//-------------------------------------------------------------
// Root conflict: two unlinked blocks with distinct payloads
//-------------------------------------------------------------

func TestDetectRootConflict(t *testing.T) {
	r, store := testResolver(t, StrategyFirstWins)
	a := mustBlock(t, "A", nil, 1000)
	b := mustBlock(t, "B", nil, 2000)
	for _, blk := range []*DagBlock{a, b} {
		if err := store.Put(blk); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	conflicts, err := r.DetectConflicts()
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.Type != RootConflict {
		t.Fatalf("expected root conflict, got %s", c.Type)
	}
	if !sameCidSet(c.ConflictingBlocks, []Cid{a.Cid, b.Cid}) {
		t.Fatalf("conflicting blocks %v", c.ConflictingBlocks)
	}
	if c.Status.Phase != PhaseDetected {
		t.Fatalf("fresh conflict in phase %s", c.Status.Phase)
	}

	// A second scan of the same state registers nothing new.
	again, err := r.DetectConflicts()
	if err != nil {
		t.Fatalf("re-detect: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("duplicate detection: %v", again)
	}
}

//-------------------------------------------------------------
// Chain fork: Y and Z both link ancestor X
//-------------------------------------------------------------

func TestDetectChainFork(t *testing.T) {
	r, store := testResolver(t, StrategyFirstWins)
	x := mustBlock(t, "X", nil, 1)
	y := mustBlock(t, "Y", []DagLink{{Cid: x.Cid, Name: "prev"}}, 2)
	z := mustBlock(t, "Z", []DagLink{{Cid: x.Cid, Name: "prev"}}, 3)
	for _, blk := range []*DagBlock{x, y, z} {
		if err := store.Put(blk); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	conflicts, err := r.DetectConflicts()
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	var fork *DagConflict
	for i := range conflicts {
		if conflicts[i].Type == ChainFork {
			fork = &conflicts[i]
		}
	}
	if fork == nil {
		t.Fatalf("no chain fork among %v", conflicts)
	}
	if fork.ForkPoint == nil || *fork.ForkPoint != x.Cid {
		t.Fatalf("fork point %v, want %s", fork.ForkPoint, x.Cid)
	}
	if !sameCidSet(fork.ConflictingBlocks, []Cid{y.Cid, z.Cid}) {
		t.Fatalf("fork candidates %v", fork.ConflictingBlocks)
	}
}

//-------------------------------------------------------------
// Missing references
//-------------------------------------------------------------

func TestDetectMissingBlocks(t *testing.T) {
	r, store := testResolver(t, StrategyFirstWins)
	ghost := mustBlock(t, "ghost", nil, 1) // never stored
	holder := mustBlock(t, "holder", []DagLink{{Cid: ghost.Cid, Name: "gone"}}, 2)
	if err := store.Put(holder); err != nil {
		t.Fatalf("put: %v", err)
	}
	conflicts, err := r.DetectConflicts()
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	var missing *DagConflict
	for i := range conflicts {
		if conflicts[i].Type == MissingBlocks {
			missing = &conflicts[i]
		}
	}
	if missing == nil {
		t.Fatalf("no missing-blocks conflict among %v", conflicts)
	}
	if len(missing.ConflictingBlocks) != 1 || missing.ConflictingBlocks[0] != ghost.Cid {
		t.Fatalf("missing set %v", missing.ConflictingBlocks)
	}
}

//-------------------------------------------------------------
// Cycle detection on a hand-built structure. A cycle cannot pass the
// integrity check, so it is exercised at the index level.
//-------------------------------------------------------------

func TestFindCycle(t *testing.T) {
	a := &DagBlock{Cid: "cycA", Links: []DagLink{{Cid: "cycB"}}}
	b := &DagBlock{Cid: "cycB", Links: []DagLink{{Cid: "cycC"}}}
	c := &DagBlock{Cid: "cycC", Links: []DagLink{{Cid: "cycA"}}}
	s := BuildDagStructure([]*DagBlock{a, b, c})
	cycle := s.findCycle()
	if len(cycle) == 0 {
		t.Fatalf("cycle not detected")
	}

	acyclic := BuildDagStructure([]*DagBlock{
		{Cid: "n1", Links: []DagLink{{Cid: "n2"}}},
		{Cid: "n2"},
	})
	if got := acyclic.findCycle(); got != nil {
		t.Fatalf("false cycle %v", got)
	}
}

func TestConflictTrackerCap(t *testing.T) {
	r, store := testResolver(t, StrategyFirstWins)
	r.config.MaxConcurrentConflicts = 1
	a := mustBlock(t, "A", nil, 1)
	b := mustBlock(t, "B", nil, 2)
	ghost := mustBlock(t, "ghost2", nil, 3)
	holder := mustBlock(t, "holder2", []DagLink{{Cid: ghost.Cid}}, 4)
	for _, blk := range []*DagBlock{a, b, holder} {
		if err := store.Put(blk); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	fresh, err := r.DetectConflicts()
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("tracker cap ignored, registered %d", len(fresh))
	}
}
