package core

// governance.go – federation governance: proposal lifecycle, membership,
// one-hop vote delegation and quorum/threshold tallying. All mutating
// operations take the module mutex; per-proposal transitions are totally
// ordered.

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProposalType selects execution side effects.
type ProposalType string

const (
	ProposalGenericText         ProposalType = "generic_text"
	ProposalNewMemberInvitation ProposalType = "new_member_invitation"
	ProposalRemoveMember        ProposalType = "remove_member"
	ProposalParameterChange     ProposalType = "parameter_change"
	ProposalSoftwareUpgrade     ProposalType = "software_upgrade"
)

// ProposalStatus is the lifecycle position of a proposal.
type ProposalStatus string

const (
	StatusDeliberation ProposalStatus = "deliberation"
	StatusVotingOpen   ProposalStatus = "voting_open"
	StatusAccepted     ProposalStatus = "accepted"
	StatusRejected     ProposalStatus = "rejected"
	StatusExecuted     ProposalStatus = "executed"
	StatusFailed       ProposalStatus = "failed"
)

// VoteOption is a ballot choice.
type VoteOption string

const (
	VoteYes     VoteOption = "yes"
	VoteNo      VoteOption = "no"
	VoteAbstain VoteOption = "abstain"
)

// Vote is one member's ballot on a proposal.
type Vote struct {
	Voter      DID        `json:"voter"`
	ProposalID string     `json:"proposal_id"`
	Option     VoteOption `json:"option"`
	VotedAt    time.Time  `json:"voted_at"`
}

// Proposal is a governance item under deliberation or vote. Quorum and
// Threshold override the module defaults when set.
type Proposal struct {
	ID             string         `json:"id"`
	Proposer       DID            `json:"proposer"`
	Type           ProposalType   `json:"type"`
	Description    string         `json:"description"`
	Subject        DID            `json:"subject,omitempty"` // member targeted by invitation/removal
	CreatedAt      time.Time      `json:"created_at"`
	VotingDeadline time.Time      `json:"voting_deadline"`
	Status         ProposalStatus `json:"status"`
	Votes          map[DID]Vote   `json:"votes"`
	Quorum         *int           `json:"quorum,omitempty"`
	Threshold      *float64       `json:"threshold,omitempty"`
	ContentCid     *Cid           `json:"content_cid,omitempty"`
}

// TallyResult summarizes a vote count.
type TallyResult struct {
	Yes       int  `json:"yes"`
	No        int  `json:"no"`
	Abstain   int  `json:"abstain"`
	Total     int  `json:"total"`
	QuorumMet bool `json:"quorum_met"`
	Accepted  bool `json:"accepted"`
}

// GovernanceStore persists proposals. Backends: in-memory map, embedded KV.
type GovernanceStore interface {
	SaveProposal(p *Proposal) error
	LoadProposal(id string) (*Proposal, error)
	ListProposals() ([]*Proposal, error)
}

// ExecutionCallback observes accepted proposals during execution. An error
// marks the proposal Failed.
type ExecutionCallback func(p *Proposal) error

// GovernanceModule owns proposals, members and delegations.
type GovernanceModule struct {
	mu          sync.Mutex
	store       GovernanceStore
	events      GovernanceEventStore
	members     map[DID]bool
	delegations map[DID]DID
	quorum      int
	threshold   float64
	callbacks   []ExecutionCallback
	log         *logrus.Logger
	now         func() time.Time
}

// NewGovernanceModule wires a module with default quorum and threshold. A
// nil events store disables event sourcing.
func NewGovernanceModule(store GovernanceStore, events GovernanceEventStore, quorum int, threshold float64, logger *logrus.Logger) *GovernanceModule {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if quorum <= 0 {
		quorum = 1
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	return &GovernanceModule{
		store:       store,
		events:      events,
		members:     make(map[DID]bool),
		delegations: make(map[DID]DID),
		quorum:      quorum,
		threshold:   threshold,
		log:         logger,
		now:         time.Now,
	}
}

// RegisterCallback appends an execution observer.
func (g *GovernanceModule) RegisterCallback(cb ExecutionCallback) {
	g.mu.Lock()
	g.callbacks = append(g.callbacks, cb)
	g.mu.Unlock()
}

// AddMember grants did membership.
func (g *GovernanceModule) AddMember(did DID) {
	g.mu.Lock()
	g.members[did] = true
	g.mu.Unlock()
}

// RemoveMember revokes membership and any delegation did held or gave.
func (g *GovernanceModule) RemoveMember(did DID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, did)
	delete(g.delegations, did)
	for from, to := range g.delegations {
		if to == did {
			delete(g.delegations, from)
		}
	}
}

// Members lists current members.
func (g *GovernanceModule) Members() []DID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]DID, 0, len(g.members))
	for d := range g.members {
		out = append(out, d)
	}
	return out
}

// DelegateVote points from's vote at to. Delegation is one-hop for
// tallying; a delegation that would close a two-member loop is rejected.
func (g *GovernanceModule) DelegateVote(from, to DID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.members[from] || !g.members[to] {
		return fmt.Errorf("%w: delegation requires both members", ErrPolicyDenied)
	}
	if from == to {
		return fmt.Errorf("%w: self-delegation", ErrInvalidInput)
	}
	if g.delegations[to] == from {
		return fmt.Errorf("%w: delegation cycle %s <-> %s", ErrInvalidInput, from, to)
	}
	g.delegations[from] = to
	return nil
}

// RevokeDelegation clears from's delegation.
func (g *GovernanceModule) RevokeDelegation(from DID) {
	g.mu.Lock()
	delete(g.delegations, from)
	g.mu.Unlock()
}

// SubmitProposal creates a proposal in Deliberation.
func (g *GovernanceModule) SubmitProposal(proposer DID, ptype ProposalType, description string, subject DID, votingPeriod time.Duration, quorum *int, threshold *float64) (*Proposal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.members[proposer] {
		return nil, fmt.Errorf("%w: proposer %s is not a member", ErrPolicyDenied, proposer)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: empty proposal description", ErrInvalidInput)
	}
	now := g.now()
	p := &Proposal{
		ID:             uuid.New().String(),
		Proposer:       proposer,
		Type:           ptype,
		Description:    description,
		Subject:        subject,
		CreatedAt:      now,
		VotingDeadline: now.Add(votingPeriod),
		Status:         StatusDeliberation,
		Votes:          make(map[DID]Vote),
		Quorum:         quorum,
		Threshold:      threshold,
	}
	if err := g.store.SaveProposal(p); err != nil {
		return nil, err
	}
	g.appendEvent(GovernanceEvent{Type: EventProposalSubmitted, Proposal: p})
	g.log.WithField("proposal", p.ID).Info("proposal submitted")
	return p, nil
}

// InsertExternalProposal accepts a proposal received from a peer, enforcing
// id uniqueness.
func (g *GovernanceModule) InsertExternalProposal(p *Proposal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: external proposal without id", ErrInvalidInput)
	}
	if existing, err := g.store.LoadProposal(p.ID); err == nil && existing != nil {
		return fmt.Errorf("%w: proposal %s already known", ErrInvalidInput, p.ID)
	}
	if p.Votes == nil {
		p.Votes = make(map[DID]Vote)
	}
	if err := g.store.SaveProposal(p); err != nil {
		return err
	}
	g.appendEvent(GovernanceEvent{Type: EventProposalSubmitted, Proposal: p})
	return nil
}

// OpenVoting moves a proposal from Deliberation to VotingOpen.
func (g *GovernanceModule) OpenVoting(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.loadLocked(id)
	if err != nil {
		return err
	}
	if p.Status != StatusDeliberation {
		return fmt.Errorf("%w: proposal %s is %s", ErrInvalidState, id, p.Status)
	}
	p.Status = StatusVotingOpen
	if err := g.store.SaveProposal(p); err != nil {
		return err
	}
	g.appendEvent(GovernanceEvent{Type: EventStatusUpdated, ProposalID: p.ID, Status: p.Status})
	return nil
}

// CastVote records a member's ballot on an open proposal, replacing any
// earlier ballot from the same voter.
func (g *GovernanceModule) CastVote(voter DID, proposalID string, option VoteOption) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.members[voter] {
		return fmt.Errorf("%w: voter %s is not a member", ErrPolicyDenied, voter)
	}
	p, err := g.loadLocked(proposalID)
	if err != nil {
		return err
	}
	if p.Status != StatusVotingOpen {
		return fmt.Errorf("%w: proposal %s is %s", ErrInvalidState, proposalID, p.Status)
	}
	if g.now().After(p.VotingDeadline) {
		return fmt.Errorf("%w: voting on %s closed", ErrTimeout, proposalID)
	}
	v := Vote{Voter: voter, ProposalID: proposalID, Option: option, VotedAt: g.now()}
	p.Votes[voter] = v
	if err := g.store.SaveProposal(p); err != nil {
		return err
	}
	g.appendEvent(GovernanceEvent{Type: EventVoteCast, Vote: &v})
	return nil
}

// InsertExternalVote accepts a peer-synced ballot, enforcing one ballot per
// voter.
func (g *GovernanceModule) InsertExternalVote(v Vote) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.loadLocked(v.ProposalID)
	if err != nil {
		return err
	}
	if p.Status != StatusVotingOpen {
		return fmt.Errorf("%w: proposal %s is %s", ErrInvalidState, v.ProposalID, p.Status)
	}
	if _, ok := p.Votes[v.Voter]; ok {
		return fmt.Errorf("%w: %s already voted on %s", ErrDuplicateMessage, v.Voter, v.ProposalID)
	}
	p.Votes[v.Voter] = v
	if err := g.store.SaveProposal(p); err != nil {
		return err
	}
	g.appendEvent(GovernanceEvent{Type: EventVoteCast, Vote: &v})
	return nil
}

// Tally counts ballots across members with one-hop delegation fallback.
func (g *GovernanceModule) Tally(id string) (TallyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.loadLocked(id)
	if err != nil {
		return TallyResult{}, err
	}
	return g.tallyLocked(p), nil
}

func (g *GovernanceModule) tallyLocked(p *Proposal) TallyResult {
	var res TallyResult
	for member := range g.members {
		vote, ok := p.Votes[member]
		if !ok {
			if delegate, has := g.delegations[member]; has {
				vote, ok = p.Votes[delegate]
			}
		}
		if !ok {
			continue
		}
		switch vote.Option {
		case VoteYes:
			res.Yes++
		case VoteNo:
			res.No++
		case VoteAbstain:
			res.Abstain++
		}
	}
	res.Total = res.Yes + res.No + res.Abstain
	quorum := g.quorum
	if p.Quorum != nil {
		quorum = *p.Quorum
	}
	threshold := g.threshold
	if p.Threshold != nil {
		threshold = *p.Threshold
	}
	res.QuorumMet = res.Total >= quorum
	res.Accepted = res.QuorumMet && float64(res.Yes) >= float64(res.Total)*threshold
	return res
}

// CloseVotingPeriod tallies an open proposal and freezes it as Accepted or
// Rejected. Votes are immutable afterwards.
func (g *GovernanceModule) CloseVotingPeriod(id string) (TallyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.loadLocked(id)
	if err != nil {
		return TallyResult{}, err
	}
	if p.Status != StatusVotingOpen {
		return TallyResult{}, fmt.Errorf("%w: proposal %s is %s", ErrInvalidState, id, p.Status)
	}
	res := g.tallyLocked(p)
	if res.Accepted {
		p.Status = StatusAccepted
	} else {
		p.Status = StatusRejected
	}
	if err := g.store.SaveProposal(p); err != nil {
		return TallyResult{}, err
	}
	g.appendEvent(GovernanceEvent{Type: EventStatusUpdated, ProposalID: p.ID, Status: p.Status})
	g.log.WithField("proposal", p.ID).WithField("status", string(p.Status)).Info("voting closed")
	return res, nil
}

// ExecuteProposal applies an accepted proposal's side effects and runs the
// registered callbacks sequentially. Any callback error marks the proposal
// Failed and surfaces.
func (g *GovernanceModule) ExecuteProposal(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.loadLocked(id)
	if err != nil {
		return err
	}
	if p.Status != StatusAccepted {
		return fmt.Errorf("%w: proposal %s is %s", ErrInvalidState, id, p.Status)
	}
	switch p.Type {
	case ProposalNewMemberInvitation:
		if !p.Subject.IsZero() {
			g.members[p.Subject] = true
		}
	case ProposalRemoveMember:
		if !p.Subject.IsZero() {
			delete(g.members, p.Subject)
			delete(g.delegations, p.Subject)
		}
	}
	for _, cb := range g.callbacks {
		if err := cb(p); err != nil {
			p.Status = StatusFailed
			if serr := g.store.SaveProposal(p); serr != nil {
				g.log.WithError(serr).Warn("persist failed proposal")
			}
			g.appendEvent(GovernanceEvent{Type: EventStatusUpdated, ProposalID: p.ID, Status: p.Status})
			return fmt.Errorf("execute proposal %s: %w", id, err)
		}
	}
	p.Status = StatusExecuted
	if err := g.store.SaveProposal(p); err != nil {
		return err
	}
	g.appendEvent(GovernanceEvent{Type: EventStatusUpdated, ProposalID: p.ID, Status: p.Status})
	g.log.WithField("proposal", p.ID).Info("proposal executed")
	return nil
}

// ExpireProposals rejects every non-terminal proposal whose deadline is
// past.
func (g *GovernanceModule) ExpireProposals(now time.Time) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	proposals, err := g.store.ListProposals()
	if err != nil {
		return nil, err
	}
	var expired []string
	for _, p := range proposals {
		switch p.Status {
		case StatusAccepted, StatusRejected, StatusExecuted, StatusFailed:
			continue
		}
		if now.After(p.VotingDeadline) {
			p.Status = StatusRejected
			if err := g.store.SaveProposal(p); err != nil {
				return nil, err
			}
			g.appendEvent(GovernanceEvent{Type: EventStatusUpdated, ProposalID: p.ID, Status: p.Status})
			expired = append(expired, p.ID)
		}
	}
	return expired, nil
}

// CloseExpiredProposals tallies open proposals past their deadline instead
// of rejecting them outright.
func (g *GovernanceModule) CloseExpiredProposals(now time.Time) ([]string, error) {
	g.mu.Lock()
	proposals, err := g.store.ListProposals()
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var closed []string
	for _, p := range proposals {
		if p.Status != StatusVotingOpen || now.Before(p.VotingDeadline) {
			continue
		}
		if _, err := g.CloseVotingPeriod(p.ID); err != nil {
			return closed, err
		}
		closed = append(closed, p.ID)
	}
	return closed, nil
}

// GetProposal loads a proposal by id.
func (g *GovernanceModule) GetProposal(id string) (*Proposal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loadLocked(id)
}

// ListProposals loads every proposal.
func (g *GovernanceModule) ListProposals() ([]*Proposal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.ListProposals()
}

func (g *GovernanceModule) loadLocked(id string) (*Proposal, error) {
	p, err := g.store.LoadProposal(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: proposal %s", ErrNotFound, id)
	}
	return p, nil
}

func (g *GovernanceModule) appendEvent(ev GovernanceEvent) {
	if g.events == nil {
		return
	}
	ev.AppendedAt = g.now()
	if err := g.events.Append(ev); err != nil {
		g.log.WithError(err).Warn("append governance event")
	}
}
