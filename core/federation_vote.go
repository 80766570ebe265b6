package core

// federation_vote.go – quorum/threshold voting on conflict winners. A vote
// window opens when the resolver's strategy is FederationVote; eligible
// nodes cast FederationVotes, and the tally weighs them either uniformly or
// clamped against the reputation oracle.

import "fmt"

// openFederationVoteLocked transitions c into the voting phase. Voting with
// fewer eligible members than the quorum fails immediately.
func (r *ConflictResolver) openFederationVoteLocked(c *DagConflict) (ResolutionStatus, error) {
	cfg := r.config.FederationVote
	if len(r.federation) < cfg.Quorum {
		r.failLocked(c, "insufficient quorum: not enough federation members")
		return c.Status, fmt.Errorf("%w: federation has %d members, quorum %d", ErrPolicyDenied, len(r.federation), cfg.Quorum)
	}
	c.Status = ResolutionStatus{
		Phase:       PhaseFederationVoting,
		VotesNeeded: cfg.Quorum,
		Deadline:    r.now() + cfg.VotingDurationS,
	}
	r.log.WithField("conflict", c.ConflictID).WithField("deadline", c.Status.Deadline).Info("federation vote opened")
	return c.Status, nil
}

// CastFederationVote records a vote from an eligible federation member on an
// open voting window.
func (r *ConflictResolver) CastFederationVote(vote FederationVote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.federation[vote.Voter] {
		return fmt.Errorf("%w: %s is not a federation member", ErrPolicyDenied, vote.Voter)
	}
	c, ok := r.active[vote.ConflictID]
	if !ok {
		return fmt.Errorf("%w: conflict %s", ErrNotFound, vote.ConflictID)
	}
	if c.Status.Phase != PhaseFederationVoting {
		return fmt.Errorf("%w: conflict %s is not voting", ErrInvalidState, vote.ConflictID)
	}
	if r.now() > c.Status.Deadline {
		return fmt.Errorf("%w: voting window for %s closed", ErrTimeout, vote.ConflictID)
	}
	for _, existing := range r.votes[vote.ConflictID] {
		if existing.Voter == vote.Voter {
			return fmt.Errorf("%w: %s already voted on %s", ErrDuplicateMessage, vote.Voter, vote.ConflictID)
		}
	}
	valid := false
	for _, id := range c.ConflictingBlocks {
		if id == vote.PreferredWinner {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s is not a conflict candidate", ErrInvalidInput, vote.PreferredWinner)
	}
	r.votes[vote.ConflictID] = append(r.votes[vote.ConflictID], vote)
	c.Status.VotesReceived = len(r.votes[vote.ConflictID])
	c.NodePositions[vote.Voter] = ConflictPosition{
		PreferredBranch: vote.PreferredWinner,
		Confidence:      1.0,
		DeclaredAt:      vote.Timestamp,
	}
	return nil
}

// TallyFederationVotes aggregates the votes cast so far without closing the
// window.
func (r *ConflictResolver) TallyFederationVotes(conflictID string) (FederationVoteResults, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[conflictID]; !ok {
		return FederationVoteResults{}, fmt.Errorf("%w: conflict %s", ErrNotFound, conflictID)
	}
	return r.tallyLocked(conflictID), nil
}

func (r *ConflictResolver) tallyLocked(conflictID string) FederationVoteResults {
	cfg := r.config.FederationVote
	votes := r.votes[conflictID]
	results := FederationVoteResults{
		TotalVotes:        len(votes),
		VotesPerCandidate: make(map[Cid]float64),
		VoteDetails:       append([]FederationVote(nil), votes...),
	}
	total := 0.0
	for _, v := range votes {
		weight := 1.0
		if cfg.WeightedVoting {
			weight = v.Weight
			if r.reputation != nil {
				if rep := r.reputation.GetReputation(v.Voter); rep > weight {
					weight = rep
				}
			}
			if weight < 1.0 {
				weight = 1.0
			}
		}
		results.VotesPerCandidate[v.PreferredWinner] += weight
		total += weight
	}
	results.QuorumMet = len(votes) >= cfg.Quorum
	if results.QuorumMet && total > 0 {
		var winner Cid
		best := -1.0
		for _, id := range sortedVoteCandidates(results.VotesPerCandidate) {
			if w := results.VotesPerCandidate[id]; w > best {
				best = w
				winner = id
			}
		}
		if best/total >= cfg.Threshold {
			results.ThresholdMet = true
			results.Winner = &winner
		}
	}
	return results
}

// CheckFederationVoting closes the window once the deadline passed or the
// needed vote count arrived, applying the winner or failing the conflict.
// It reports whether voting completed.
func (r *ConflictResolver) CheckFederationVoting(conflictID string) (bool, ResolutionStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.active[conflictID]
	if !ok {
		return false, ResolutionStatus{}, fmt.Errorf("%w: conflict %s", ErrNotFound, conflictID)
	}
	if c.Status.Phase != PhaseFederationVoting {
		return false, c.Status, fmt.Errorf("%w: conflict %s is not voting", ErrInvalidState, conflictID)
	}
	if r.now() < c.Status.Deadline && len(r.votes[conflictID]) < c.Status.VotesNeeded {
		return false, c.Status, nil
	}
	return true, r.completeFederationVotingLocked(c), nil
}

// CompleteFederationVoting force-closes the window regardless of deadline.
func (r *ConflictResolver) CompleteFederationVoting(conflictID string) (ResolutionStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.active[conflictID]
	if !ok {
		return ResolutionStatus{}, fmt.Errorf("%w: conflict %s", ErrNotFound, conflictID)
	}
	if c.Status.Phase != PhaseFederationVoting {
		return c.Status, fmt.Errorf("%w: conflict %s is not voting", ErrInvalidState, conflictID)
	}
	return r.completeFederationVotingLocked(c), nil
}

func (r *ConflictResolver) completeFederationVotingLocked(c *DagConflict) ResolutionStatus {
	results := r.tallyLocked(c.ConflictID)
	if results.Winner != nil {
		r.applyResolutionLocked(c, *results.Winner)
		return c.Status
	}
	switch {
	case !results.QuorumMet:
		r.failLocked(c, "insufficient quorum")
	default:
		r.failLocked(c, "threshold not met")
	}
	return c.Status
}

func sortedVoteCandidates(m map[Cid]float64) []Cid {
	keys := make([]Cid, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return SortCids(keys)
}
