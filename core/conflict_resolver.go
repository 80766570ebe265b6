package core

// conflict_resolver.go – pluggable winner selection over detected DAG
// conflicts. Resolution walks Detected → GatheringEvidence → Analyzing and
// lands in ResolutionFound (then Resolved) or hands off to federation
// voting. Resolved conflicts move into a bounded history ring; losing
// blocks are logged for archival, never silently dropped.

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ConflictResolver owns active conflicts and their resolution.
type ConflictResolver struct {
	mu         sync.Mutex
	store      StorageService
	config     ConflictResolutionConfig
	reputation ReputationProvider
	identity   DID

	active  map[string]*DagConflict
	history []*DagConflict

	federation map[DID]bool
	votes      map[string][]FederationVote

	log *logrus.Logger
	now func() uint64
}

// NewConflictResolver builds a resolver over store with the given config.
// A nil reputation provider disables reputation weighting.
func NewConflictResolver(store StorageService, cfg ConflictResolutionConfig, identity DID, rep ReputationProvider, logger *logrus.Logger) *ConflictResolver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ConflictResolver{
		store:      store,
		config:     cfg,
		reputation: rep,
		identity:   identity,
		active:     make(map[string]*DagConflict),
		federation: make(map[DID]bool),
		votes:      make(map[string][]FederationVote),
		log:        logger,
		now:        func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// AddFederationNode marks node as eligible to vote on conflicts.
func (r *ConflictResolver) AddFederationNode(node DID) {
	r.mu.Lock()
	r.federation[node] = true
	r.mu.Unlock()
}

// RemoveFederationNode revokes voting eligibility.
func (r *ConflictResolver) RemoveFederationNode(node DID) {
	r.mu.Lock()
	delete(r.federation, node)
	r.mu.Unlock()
}

// ActiveConflicts snapshots the currently tracked conflicts.
func (r *ConflictResolver) ActiveConflicts() []DagConflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DagConflict, 0, len(r.active))
	for _, c := range r.active {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConflictID < out[j].ConflictID })
	return out
}

// ResolutionHistory snapshots the bounded resolved-conflict ring.
func (r *ConflictResolver) ResolutionHistory() []DagConflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DagConflict, 0, len(r.history))
	for _, c := range r.history {
		out = append(out, *c)
	}
	return out
}

// GetConflict returns the tracked conflict for id.
func (r *ConflictResolver) GetConflict(id string) (DagConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.active[id]
	if !ok {
		return DagConflict{}, fmt.Errorf("%w: conflict %s", ErrNotFound, id)
	}
	return *c, nil
}

// ResolveConflict drives one conflict through analysis with the configured
// strategy. Federation voting returns with phase FederationVoting; other
// strategies land in Resolved immediately.
func (r *ConflictResolver) ResolveConflict(id string) (ResolutionStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.active[id]
	if !ok {
		return ResolutionStatus{}, fmt.Errorf("%w: conflict %s", ErrNotFound, id)
	}

	c.Status = ResolutionStatus{Phase: PhaseGatheringEvidence}
	c.Status = ResolutionStatus{Phase: PhaseAnalyzing}

	if r.config.Strategy == StrategyFederationVote {
		return r.openFederationVoteLocked(c)
	}

	winner, err := r.pickWinnerLocked(c)
	if err != nil {
		c.Status = ResolutionStatus{Phase: PhaseFailed, Reason: err.Error()}
		return c.Status, err
	}
	c.Status = ResolutionStatus{Phase: PhaseResolutionFound, Winner: winner}
	r.applyResolutionLocked(c, winner)
	return c.Status, nil
}

func (r *ConflictResolver) pickWinnerLocked(c *DagConflict) (Cid, error) {
	if len(c.ConflictingBlocks) == 0 {
		return "", fmt.Errorf("%w: conflict %s has no candidates", ErrNotFound, c.ConflictID)
	}
	switch r.config.Strategy {
	case StrategyFirstWins:
		return r.resolveByTimestamp(c)
	case StrategyReputationBased:
		return r.resolveByReputation(c)
	case StrategyPopularityBased:
		return r.resolveByPopularity(c)
	case StrategyLongestChain:
		return r.resolveByChainLength(c)
	case StrategyMultiCriteria:
		return r.resolveByMultipleCriteria(c)
	default:
		return "", fmt.Errorf("%w: strategy %q", ErrInvalidInput, r.config.Strategy)
	}
}

// resolveByTimestamp picks the earliest block; ties break on lexicographic
// CID so every node agrees.
func (r *ConflictResolver) resolveByTimestamp(c *DagConflict) (Cid, error) {
	var winner Cid
	earliest := uint64(1<<63 - 1)
	for _, id := range SortCids(append([]Cid(nil), c.ConflictingBlocks...)) {
		b, err := r.store.Get(id)
		if err != nil || b == nil {
			continue
		}
		if b.Timestamp < earliest {
			earliest = b.Timestamp
			winner = id
		}
	}
	if winner == "" {
		return "", fmt.Errorf("%w: no candidate blocks loadable", ErrNotFound)
	}
	return winner, nil
}

// resolveByReputation picks the candidate whose author scores highest with
// the reputation oracle.
func (r *ConflictResolver) resolveByReputation(c *DagConflict) (Cid, error) {
	if r.reputation == nil {
		return "", fmt.Errorf("%w: reputation provider not configured", ErrInvalidInput)
	}
	var winner Cid
	best := -1.0
	for _, id := range SortCids(append([]Cid(nil), c.ConflictingBlocks...)) {
		b, err := r.store.Get(id)
		if err != nil || b == nil {
			continue
		}
		if score := r.reputation.GetReputation(b.Author); score > best {
			best = score
			winner = id
		}
	}
	if winner == "" {
		return "", fmt.Errorf("%w: no candidate blocks loadable", ErrNotFound)
	}
	return winner, nil
}

// resolveByPopularity picks the candidate with the most inbound links.
func (r *ConflictResolver) resolveByPopularity(c *DagConflict) (Cid, error) {
	blocks, err := r.store.ListBlocks()
	if err != nil {
		return "", err
	}
	counts := make(map[Cid]int, len(c.ConflictingBlocks))
	for _, id := range c.ConflictingBlocks {
		counts[id] = 0
	}
	for _, b := range blocks {
		for _, l := range b.Links {
			if _, ok := counts[l.Cid]; ok {
				counts[l.Cid]++
			}
		}
	}
	var winner Cid
	best := -1
	for _, id := range SortCids(append([]Cid(nil), c.ConflictingBlocks...)) {
		if counts[id] > best {
			best = counts[id]
			winner = id
		}
	}
	return winner, nil
}

// chainLength follows first links from start, stopping on repeats so cycles
// cannot hang the walk.
func (r *ConflictResolver) chainLength(start Cid) int {
	length := 0
	visited := make(map[Cid]bool)
	current := start
	for current != "" && !visited[current] {
		visited[current] = true
		b, err := r.store.Get(current)
		if err != nil || b == nil {
			break
		}
		length++
		if len(b.Links) == 0 {
			break
		}
		current = b.Links[0].Cid
	}
	return length
}

// resolveByChainLength picks the root of the longest first-link chain.
func (r *ConflictResolver) resolveByChainLength(c *DagConflict) (Cid, error) {
	var winner Cid
	best := -1
	for _, id := range SortCids(append([]Cid(nil), c.ConflictingBlocks...)) {
		if l := r.chainLength(id); l > best {
			best = l
			winner = id
		}
	}
	return winner, nil
}

// resolveByMultipleCriteria scores each candidate on recency, chain length
// and reference count, highest composite wins. NaN comparisons fall back to
// keeping the current best so the walk stays total.
func (r *ConflictResolver) resolveByMultipleCriteria(c *DagConflict) (Cid, error) {
	blocks, err := r.store.ListBlocks()
	if err != nil {
		return "", err
	}
	refs := make(map[Cid]int)
	for _, b := range blocks {
		for _, l := range b.Links {
			refs[l.Cid]++
		}
	}
	now := r.now()
	var winner Cid
	best := -1.0
	for _, id := range SortCids(append([]Cid(nil), c.ConflictingBlocks...)) {
		score := 0.0
		if b, err := r.store.Get(id); err == nil && b != nil {
			ageHours := 0.0
			if now > b.Timestamp {
				ageHours = float64(now-b.Timestamp) / 3600.0
			}
			score += 1.0 / (1.0 + ageHours*0.1)
		}
		score += float64(r.chainLength(id)) * 0.1
		score += float64(refs[id]) * 0.2
		if score > best {
			best = score
			winner = id
		}
	}
	if winner == "" {
		return "", fmt.Errorf("%w: no candidates scored", ErrNotFound)
	}
	return winner, nil
}

// applyResolutionLocked marks c resolved with winner, moves it into the
// bounded history ring and logs the losing branches.
func (r *ConflictResolver) applyResolutionLocked(c *DagConflict, winner Cid) {
	c.Status = ResolutionStatus{Phase: PhaseResolved, Winner: winner, AppliedAt: r.now()}
	for _, id := range c.ConflictingBlocks {
		if id != winner {
			r.log.WithField("conflict", c.ConflictID).WithField("loser", string(id)).Info("conflict branch archived")
		}
	}
	delete(r.active, c.ConflictID)
	delete(r.votes, c.ConflictID)
	r.history = append(r.history, c)
	if len(r.history) > maxResolutionHistory {
		r.history = r.history[len(r.history)-maxResolutionHistory:]
	}
	r.log.WithField("conflict", c.ConflictID).WithField("winner", string(winner)).Info("dag conflict resolved")
}

// failLocked marks c failed and retires it into history.
func (r *ConflictResolver) failLocked(c *DagConflict, reason string) {
	c.Status = ResolutionStatus{Phase: PhaseFailed, Reason: reason}
	delete(r.active, c.ConflictID)
	delete(r.votes, c.ConflictID)
	r.history = append(r.history, c)
	if len(r.history) > maxResolutionHistory {
		r.history = r.history[len(r.history)-maxResolutionHistory:]
	}
	r.log.WithField("conflict", c.ConflictID).WithField("reason", reason).Warn("dag conflict failed")
}
