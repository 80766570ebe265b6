package core

// dispute_engine.go – economic dispute lifecycle: filing validation, phase
// transitions through mediation/arbitration/community voting, bounded
// auto-resolution and resolution application against the mana ledger.

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EconomicDisputeResolver owns active disputes and their history ring.
type EconomicDisputeResolver struct {
	mu     sync.Mutex
	config EconomicDisputeConfig
	ledger ManaLedger

	detectorIdentity DID
	authorities      map[DID]bool
	arbitrators      []DID
	reputation       ReputationProvider

	active  map[string]*EconomicDispute
	history []*EconomicDispute

	log *logrus.Logger
	now func() uint64
}

// NewEconomicDisputeResolver wires a resolver over the mana ledger.
func NewEconomicDisputeResolver(cfg EconomicDisputeConfig, ledger ManaLedger, identity DID, rep ReputationProvider, logger *logrus.Logger) *EconomicDisputeResolver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &EconomicDisputeResolver{
		config:           cfg,
		ledger:           ledger,
		detectorIdentity: identity,
		authorities:      make(map[DID]bool),
		reputation:       rep,
		active:           make(map[string]*EconomicDispute),
		log:              logger,
		now:              func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// AddEconomicAuthority grants did the right to resolve disputes manually.
func (r *EconomicDisputeResolver) AddEconomicAuthority(did DID) {
	r.mu.Lock()
	r.authorities[did] = true
	r.mu.Unlock()
}

// AddArbitrator registers an arbitrator for escalated disputes.
func (r *EconomicDisputeResolver) AddArbitrator(did DID) {
	r.mu.Lock()
	r.arbitrators = append(r.arbitrators, did)
	r.mu.Unlock()
}

// FileDispute validates and registers a dispute, returning its id. Disputes
// eligible for auto-resolution are resolved inline.
func (r *EconomicDisputeResolver) FileDispute(d EconomicDispute) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.Amount < r.config.MinimumDisputeAmount {
		return "", fmt.Errorf("%w: amount %d below minimum %d", ErrInvalidInput, d.Amount, r.config.MinimumDisputeAmount)
	}
	if len(d.Parties) == 0 {
		return "", fmt.Errorf("%w: dispute without parties", ErrInvalidInput)
	}
	if len(d.Evidence) == 0 {
		return "", fmt.Errorf("%w: dispute without evidence", ErrInvalidInput)
	}
	open := 0
	for _, existing := range r.active {
		if existing.Filer == d.Filer {
			open++
		}
	}
	if open >= r.config.MaxDisputesPerAccount {
		return "", fmt.Errorf("%w: %s already has %d open disputes", ErrPolicyDenied, d.Filer, open)
	}

	d.DisputeID = uuid.New().String()
	d.FiledAt = r.now()
	d.Status = DisputeStatus{Phase: DisputeFiled}
	r.active[d.DisputeID] = &d
	r.log.WithField("dispute", d.DisputeID).WithField("type", string(d.Type)).Info("economic dispute filed")

	if d.Severity <= r.config.AutoResolutionThreshold {
		if res, ok := r.autoResolutionLocked(&d); ok {
			r.applyResolutionLocked(&d, res)
		}
	}
	return d.DisputeID, nil
}

// autoResolutionLocked proposes a remedy for clearly patterned disputes.
func (r *EconomicDisputeResolver) autoResolutionLocked(d *EconomicDispute) (EconomicResolution, bool) {
	switch d.Type {
	case DoubleSpending:
		if len(d.TransactionIDs) >= 2 {
			return EconomicResolution{
				Kind:         ResolutionReverseTransactions,
				Transactions: append([]string(nil), d.TransactionIDs...),
				Note:         "clear double spend, reversal surfaced for manual handling",
			}, true
		}
	case TokenTransferDispute:
		if d.Amount <= 10*r.config.MinimumDisputeAmount && len(d.Parties) > 0 {
			return EconomicResolution{
				Kind:         ResolutionCompensation,
				Recipient:    d.Parties[0],
				CreditAmount: d.Amount / 2,
				Note:         "small transfer dispute, proportional compensation",
			}, true
		}
	}
	return EconomicResolution{}, false
}

// StartInvestigation moves a filed dispute into investigation with its
// phase deadline.
func (r *EconomicDisputeResolver) StartInvestigation(id string) error {
	return r.transition(id, DisputeFiled, DisputeStatus{
		Phase:    DisputeUnderInvestigation,
		Deadline: r.now() + r.config.InvestigationTimeoutS,
	})
}

// StartMediation moves a dispute into mediation.
func (r *EconomicDisputeResolver) StartMediation(id string) error {
	return r.transition(id, DisputeUnderInvestigation, DisputeStatus{
		Phase:    DisputeMediation,
		Deadline: r.now() + r.config.MediationTimeoutS,
	})
}

// StartArbitration assigns an arbitrator, preferring the highest-reputation
// one when reputation-based arbitration is enabled.
func (r *EconomicDisputeResolver) StartArbitration(id string) error {
	r.mu.Lock()
	arbitrator, err := r.pickArbitratorLocked()
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.transition(id, DisputeMediation, DisputeStatus{
		Phase:      DisputeArbitration,
		Arbitrator: arbitrator,
		Deadline:   r.now() + r.config.ArbitrationTimeoutS,
	})
}

// StartCommunityVoting opens a community vote on a mediated dispute that
// no arbitrator will take.
func (r *EconomicDisputeResolver) StartCommunityVoting(id string) error {
	return r.transition(id, DisputeMediation, DisputeStatus{
		Phase:    DisputeCommunityVoting,
		Deadline: r.now() + r.config.VotingPeriodS,
	})
}

func (r *EconomicDisputeResolver) pickArbitratorLocked() (DID, error) {
	if len(r.arbitrators) == 0 {
		return DID{}, fmt.Errorf("%w: no arbitrators registered", ErrNotFound)
	}
	if !r.config.ReputationArbitration || r.reputation == nil {
		return r.arbitrators[0], nil
	}
	best := r.arbitrators[0]
	bestScore := r.reputation.GetReputation(best)
	for _, a := range r.arbitrators[1:] {
		if s := r.reputation.GetReputation(a); s > bestScore {
			best, bestScore = a, s
		}
	}
	return best, nil
}

func (r *EconomicDisputeResolver) transition(id string, from DisputePhase, to DisputeStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.active[id]
	if !ok {
		return fmt.Errorf("%w: dispute %s", ErrNotFound, id)
	}
	if d.Status.Phase != from {
		return fmt.Errorf("%w: dispute %s is %s, expected %s", ErrInvalidState, id, d.Status.Phase, from)
	}
	d.Status = to
	r.log.WithField("dispute", id).WithField("phase", string(to.Phase)).Info("dispute transitioned")
	return nil
}

// ResolveDispute applies a resolution chosen by an economic authority or
// the assigned arbitrator.
func (r *EconomicDisputeResolver) ResolveDispute(id string, actor DID, res EconomicResolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.active[id]
	if !ok {
		return fmt.Errorf("%w: dispute %s", ErrNotFound, id)
	}
	if !r.authorities[actor] && d.Status.Arbitrator != actor {
		return fmt.Errorf("%w: %s may not resolve dispute %s", ErrPolicyDenied, actor, id)
	}
	return r.applyResolutionLocked(d, res)
}

// applyResolutionLocked executes the remedy against the ledger and retires
// the dispute into the history ring.
func (r *EconomicDisputeResolver) applyResolutionLocked(d *EconomicDispute, res EconomicResolution) error {
	switch res.Kind {
	case ResolutionAdjustBalances:
		for _, adj := range res.Adjustments {
			if adj.Delta >= 0 {
				if err := r.ledger.Credit(adj.Account, uint64(adj.Delta)); err != nil {
					return err
				}
			} else if err := r.ledger.Spend(adj.Account, uint64(-adj.Delta)); err != nil {
				return err
			}
		}
	case ResolutionCompensation:
		if err := r.ledger.Credit(res.Recipient, res.CreditAmount); err != nil {
			return err
		}
	case ResolutionReverseTransactions:
		// Reversal semantics need governance sign-off; the resolution is
		// recorded and surfaced for manual handling.
		r.log.WithField("dispute", d.DisputeID).WithField("transactions", res.Transactions).
			Warn("transaction reversal recorded, manual handling required")
	case ResolutionEscalateToGovernance:
		d.Status = DisputeStatus{Phase: DisputeEscalatedToGovernance, Resolution: &res}
		r.retireLocked(d)
		return nil
	case ResolutionDismiss:
		// No ledger effect.
	default:
		return fmt.Errorf("%w: resolution kind %q", ErrInvalidInput, res.Kind)
	}
	d.Status = DisputeStatus{Phase: DisputeResolved, Resolution: &res, AppliedAt: r.now()}
	r.retireLocked(d)
	r.log.WithField("dispute", d.DisputeID).WithField("resolution", string(res.Kind)).Info("dispute resolved")
	return nil
}

func (r *EconomicDisputeResolver) retireLocked(d *EconomicDispute) {
	delete(r.active, d.DisputeID)
	r.history = append(r.history, d)
	if len(r.history) > maxDisputeHistory {
		r.history = r.history[len(r.history)-maxDisputeHistory:]
	}
}

// ProcessPeriodicTasks escalates or fails disputes whose phase deadline has
// passed, returning the ids it touched.
func (r *EconomicDisputeResolver) ProcessPeriodicTasks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var touched []string
	for _, id := range ids {
		d := r.active[id]
		if d.Status.Deadline == 0 || now <= d.Status.Deadline {
			continue
		}
		switch d.Status.Phase {
		case DisputeUnderInvestigation, DisputeMediation:
			d.Status = DisputeStatus{Phase: DisputeEscalatedToGovernance, Reason: "phase timeout"}
			r.retireLocked(d)
		case DisputeArbitration, DisputeCommunityVoting:
			d.Status = DisputeStatus{Phase: DisputeFailed, Reason: "timeout"}
			r.retireLocked(d)
		default:
			continue
		}
		touched = append(touched, id)
		r.log.WithField("dispute", id).WithField("phase", string(d.Status.Phase)).Warn("dispute deadline passed")
	}
	return touched
}

// ActiveDisputes snapshots the open disputes.
func (r *EconomicDisputeResolver) ActiveDisputes() []EconomicDispute {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EconomicDispute, 0, len(r.active))
	for _, d := range r.active {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisputeID < out[j].DisputeID })
	return out
}

// ResolutionHistory snapshots the bounded history ring.
func (r *EconomicDisputeResolver) ResolutionHistory() []EconomicDispute {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EconomicDispute, 0, len(r.history))
	for _, d := range r.history {
		out = append(out, *d)
	}
	return out
}

// GetDispute returns the active dispute for id.
func (r *EconomicDisputeResolver) GetDispute(id string) (EconomicDispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.active[id]
	if !ok {
		return EconomicDispute{}, fmt.Errorf("%w: dispute %s", ErrNotFound, id)
	}
	return *d, nil
}
