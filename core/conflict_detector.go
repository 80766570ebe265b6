package core

// conflict_detector.go – structural anomaly detection over the block set.
// Detection walks the children/parents index from dag_root.go; each anomaly
// yields a DagConflict in phase Detected.

import "fmt"

// findCycle runs DFS with a recursion-stack set and returns one cycle as the
// CIDs on the back-edge path, or nil when the structure is acyclic.
func (s *DagStructure) findCycle() []Cid {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[Cid]int, len(s.Blocks))
	var stack []Cid
	var cycle []Cid

	var visit func(Cid) bool
	visit = func(id Cid) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, child := range s.Children[id] {
			if _, ok := s.Blocks[child]; !ok {
				continue
			}
			switch color[child] {
			case gray:
				// Back edge: slice the recursion stack from child onward.
				for i, c := range stack {
					if c == child {
						cycle = append([]Cid(nil), stack[i:]...)
						return true
					}
				}
				cycle = append([]Cid(nil), child)
				return true
			case white:
				if visit(child) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for id := range s.Blocks {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// findMissingReferences returns linked CIDs absent from the block set.
func (s *DagStructure) findMissingReferences() []Cid {
	seen := make(map[Cid]bool)
	var missing []Cid
	for _, b := range s.Blocks {
		for _, l := range b.Links {
			if _, ok := s.Blocks[l.Cid]; !ok && !seen[l.Cid] {
				seen[l.Cid] = true
				missing = append(missing, l.Cid)
			}
		}
	}
	return SortCids(missing)
}

// DetectConflicts scans all stored blocks and registers every structural
// anomaly not already tracked. Newly detected conflicts are returned.
func (r *ConflictResolver) DetectConflicts() ([]DagConflict, error) {
	blocks, err := r.store.ListBlocks()
	if err != nil {
		return nil, err
	}
	dag := BuildDagStructure(blocks)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var fresh []DagConflict

	// Multiple roots: every block set has exactly one agreed tip set.
	if roots := dag.FindRoots(); len(roots) > 1 {
		c := DagConflict{
			ConflictID:        fmt.Sprintf("root-%d", now),
			ConflictingBlocks: roots,
			DetectedAt:        now,
			Type:              RootConflict,
			NodePositions:     make(map[DID]ConflictPosition),
			Status:            ResolutionStatus{Phase: PhaseDetected},
		}
		fresh = r.trackLocked(fresh, c)
	}

	// Chain forks: an ancestor referenced by more than one block, visited
	// once per fork point.
	visited := make(map[Cid]bool)
	for _, parent := range sortedKeys(dag.Parents) {
		branches := dag.Parents[parent]
		if len(branches) <= 1 || visited[parent] {
			continue
		}
		visited[parent] = true
		fp := parent
		c := DagConflict{
			ConflictID:        fmt.Sprintf("fork-%s-%d", parent, now),
			ConflictingBlocks: SortCids(append([]Cid(nil), branches...)),
			ForkPoint:         &fp,
			DetectedAt:        now,
			Type:              ChainFork,
			NodePositions:     make(map[DID]ConflictPosition),
			Status:            ResolutionStatus{Phase: PhaseDetected},
		}
		fresh = r.trackLocked(fresh, c)
	}

	// Cycles: a DAG must stay acyclic.
	if cycle := dag.findCycle(); len(cycle) > 0 {
		c := DagConflict{
			ConflictID:        fmt.Sprintf("cycle-%d", now),
			ConflictingBlocks: cycle,
			DetectedAt:        now,
			Type:              CyclicDependency,
			NodePositions:     make(map[DID]ConflictPosition),
			Status:            ResolutionStatus{Phase: PhaseDetected},
		}
		fresh = r.trackLocked(fresh, c)
	}

	// Dangling links.
	if missing := dag.findMissingReferences(); len(missing) > 0 {
		c := DagConflict{
			ConflictID:        fmt.Sprintf("missing-%d", now),
			ConflictingBlocks: missing,
			DetectedAt:        now,
			Type:              MissingBlocks,
			NodePositions:     make(map[DID]ConflictPosition),
			Status:            ResolutionStatus{Phase: PhaseDetected},
		}
		fresh = r.trackLocked(fresh, c)
	}

	r.pruneOldLocked(now)
	return fresh, nil
}

// trackLocked registers c unless an active conflict of the same type already
// covers the same block set, or the tracker is at capacity.
func (r *ConflictResolver) trackLocked(fresh []DagConflict, c DagConflict) []DagConflict {
	for _, existing := range r.active {
		if existing.Type == c.Type && sameCidSet(existing.ConflictingBlocks, c.ConflictingBlocks) {
			return fresh
		}
	}
	if len(r.active) >= r.config.MaxConcurrentConflicts {
		r.log.WithField("conflict", c.ConflictID).Warn("conflict tracker full, dropping detection")
		return fresh
	}
	r.active[c.ConflictID] = &c
	r.log.WithField("conflict", c.ConflictID).WithField("type", string(c.Type)).Info("dag conflict detected")
	return append(fresh, c)
}

// pruneOldLocked drops unresolved conflicts older than the evidence timeout.
func (r *ConflictResolver) pruneOldLocked(now uint64) {
	for id, c := range r.active {
		if now > c.DetectedAt && now-c.DetectedAt > r.config.EvidenceTimeoutS {
			delete(r.active, id)
			r.log.WithField("conflict", id).Warn("conflict pruned after evidence timeout")
		}
	}
}

func sameCidSet(a, b []Cid) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[Cid]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

func sortedKeys(m map[Cid][]Cid) []Cid {
	keys := make([]Cid, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return SortCids(keys)
}
