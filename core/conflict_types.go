package core

// conflict_types.go – structures tracked by the DAG conflict resolver.

// ConflictType classifies a detected DAG anomaly.
type ConflictType string

const (
	RootConflict     ConflictType = "root_conflict"
	ChainFork        ConflictType = "chain_fork"
	ContentFork      ConflictType = "content_fork"
	CyclicDependency ConflictType = "cyclic_dependency"
	MissingBlocks    ConflictType = "missing_blocks"
)

// ResolutionPhase is the lifecycle position of a conflict.
type ResolutionPhase string

const (
	PhaseDetected          ResolutionPhase = "detected"
	PhaseGatheringEvidence ResolutionPhase = "gathering_evidence"
	PhaseAnalyzing         ResolutionPhase = "analyzing"
	PhaseFederationVoting  ResolutionPhase = "federation_voting"
	PhaseResolutionFound   ResolutionPhase = "resolution_found"
	PhaseResolved          ResolutionPhase = "resolved"
	PhaseFailed            ResolutionPhase = "failed"
)

// ResolutionStatus carries the phase plus its phase-specific fields.
type ResolutionStatus struct {
	Phase         ResolutionPhase `json:"phase"`
	Winner        Cid             `json:"winner,omitempty"`
	AppliedAt     uint64          `json:"applied_at,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	VotesReceived int             `json:"votes_received,omitempty"`
	VotesNeeded   int             `json:"votes_needed,omitempty"`
	Deadline      uint64          `json:"deadline,omitempty"`
}

// ConflictPosition records the side a node takes in a conflict.
type ConflictPosition struct {
	PreferredBranch Cid     `json:"preferred_branch"`
	Confidence      float64 `json:"confidence"`
	DeclaredAt      uint64  `json:"declared_at"`
}

// DagConflict is one detected anomaly and its resolution state.
type DagConflict struct {
	ConflictID        string                   `json:"conflict_id"`
	ConflictingBlocks []Cid                    `json:"conflicting_blocks"`
	ForkPoint         *Cid                     `json:"fork_point,omitempty"`
	DetectedAt        uint64                   `json:"detected_at"`
	Type              ConflictType             `json:"type"`
	NodePositions     map[DID]ConflictPosition `json:"node_positions"`
	Status            ResolutionStatus         `json:"status"`
}

// ResolutionStrategy names the configured winner-selection algorithm.
type ResolutionStrategy string

const (
	StrategyFirstWins       ResolutionStrategy = "first_wins"
	StrategyReputationBased ResolutionStrategy = "reputation_based"
	StrategyPopularityBased ResolutionStrategy = "popularity_based"
	StrategyLongestChain    ResolutionStrategy = "longest_chain"
	StrategyMultiCriteria   ResolutionStrategy = "multi_criteria"
	StrategyFederationVote  ResolutionStrategy = "federation_vote"
)

// FederationVoteConfig tunes conflict voting.
type FederationVoteConfig struct {
	VotingDurationS  uint64  `json:"voting_duration_s" mapstructure:"voting_duration_s"`
	Quorum           int     `json:"quorum" mapstructure:"quorum"`
	Threshold        float64 `json:"threshold" mapstructure:"threshold"`
	BroadcastTimeout uint64  `json:"broadcast_timeout_s" mapstructure:"broadcast_timeout_s"`
	WeightedVoting   bool    `json:"weighted_voting" mapstructure:"weighted_voting"`
}

// DefaultFederationVoteConfig matches the federation defaults: ten-minute
// window, quorum of three, supermajority threshold.
func DefaultFederationVoteConfig() FederationVoteConfig {
	return FederationVoteConfig{
		VotingDurationS:  600,
		Quorum:           3,
		Threshold:        0.67,
		BroadcastTimeout: 60,
	}
}

// ConflictResolutionConfig tunes the resolver.
type ConflictResolutionConfig struct {
	EvidenceTimeoutS       uint64               `json:"evidence_timeout_s" mapstructure:"evidence_timeout_s"`
	MinParticipants        int                  `json:"min_participants" mapstructure:"min_participants"`
	MaxConcurrentConflicts int                  `json:"max_concurrent_conflicts" mapstructure:"max_concurrent_conflicts"`
	AutoResolve            bool                 `json:"auto_resolve" mapstructure:"auto_resolve"`
	Strategy               ResolutionStrategy   `json:"resolution_strategy" mapstructure:"resolution_strategy"`
	FederationVote         FederationVoteConfig `json:"federation_vote" mapstructure:"federation_vote"`
}

// DefaultConflictResolutionConfig mirrors the federation defaults.
func DefaultConflictResolutionConfig() ConflictResolutionConfig {
	return ConflictResolutionConfig{
		EvidenceTimeoutS:       300,
		MinParticipants:        3,
		MaxConcurrentConflicts: 10,
		AutoResolve:            true,
		Strategy:               StrategyMultiCriteria,
		FederationVote:         DefaultFederationVoteConfig(),
	}
}

// FederationVote is one node's vote on a conflict winner.
type FederationVote struct {
	Voter           DID       `json:"voter"`
	ConflictID      string    `json:"conflict_id"`
	PreferredWinner Cid       `json:"preferred_winner"`
	Timestamp       uint64    `json:"timestamp"`
	Weight          float64   `json:"weight"`
	Signature       Signature `json:"signature,omitempty"`
	Reasoning       string    `json:"reasoning,omitempty"`
}

// FederationVoteResults aggregates a tally.
type FederationVoteResults struct {
	TotalVotes        int              `json:"total_votes"`
	VotesPerCandidate map[Cid]float64  `json:"votes_per_candidate"`
	QuorumMet         bool             `json:"quorum_met"`
	ThresholdMet      bool             `json:"threshold_met"`
	Winner            *Cid             `json:"winner,omitempty"`
	VoteDetails       []FederationVote `json:"vote_details"`
}

// maxResolutionHistory bounds the resolved-conflict ring buffer.
const maxResolutionHistory = 100
