package core

// governance_automation.go – background steward for the governance module.
// It opens voting on deliberated proposals after the configured delay,
// emits reminder gossip as deadlines approach, closes voting past the
// deadline and optionally auto-executes accepted proposals.

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// GovernanceAutomationConfig tunes the steward loop.
type GovernanceAutomationConfig struct {
	CheckInterval     time.Duration `mapstructure:"check_interval"`
	DeliberationDelay time.Duration `mapstructure:"deliberation_delay"`
	ReminderFraction  float64       `mapstructure:"reminder_fraction"`
	AutoExecute       bool          `mapstructure:"auto_execute"`
}

// DefaultGovernanceAutomationConfig returns the node defaults.
func DefaultGovernanceAutomationConfig() GovernanceAutomationConfig {
	return GovernanceAutomationConfig{
		CheckInterval:     30 * time.Second,
		DeliberationDelay: time.Minute,
		ReminderFraction:  0.8,
		AutoExecute:       true,
	}
}

// GovernanceAutomation drives proposals through their deadlines.
type GovernanceAutomation struct {
	cfg      GovernanceAutomationConfig
	module   *GovernanceModule
	network  NetworkService
	log      *logrus.Logger
	reminded map[string]bool
}

// NewGovernanceAutomation wires the steward. network may be nil to skip
// reminder gossip.
func NewGovernanceAutomation(cfg GovernanceAutomationConfig, module *GovernanceModule, network NetworkService, logger *logrus.Logger) *GovernanceAutomation {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultGovernanceAutomationConfig().CheckInterval
	}
	if cfg.ReminderFraction <= 0 || cfg.ReminderFraction >= 1 {
		cfg.ReminderFraction = DefaultGovernanceAutomationConfig().ReminderFraction
	}
	return &GovernanceAutomation{
		cfg:      cfg,
		module:   module,
		network:  network,
		log:      logger,
		reminded: make(map[string]bool),
	}
}

// Run ticks until ctx is cancelled, logging and continuing on errors.
func (a *GovernanceAutomation) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Step(time.Now()); err != nil {
				a.log.WithError(err).Warn("governance automation step")
			}
		}
	}
}

// Step performs one pass over the proposal set at the given instant.
func (a *GovernanceAutomation) Step(now time.Time) error {
	proposals, err := a.module.ListProposals()
	if err != nil {
		return err
	}
	for _, p := range proposals {
		switch p.Status {
		case StatusDeliberation:
			if now.Sub(p.CreatedAt) >= a.cfg.DeliberationDelay {
				if err := a.module.OpenVoting(p.ID); err != nil {
					a.log.WithField("proposal", p.ID).WithError(err).Warn("auto-open voting")
				}
			}
		case StatusVotingOpen:
			a.maybeRemind(p, now)
			if now.After(p.VotingDeadline) {
				if _, err := a.module.CloseVotingPeriod(p.ID); err != nil {
					a.log.WithField("proposal", p.ID).WithError(err).Warn("auto-close voting")
				}
			}
		case StatusAccepted:
			if a.cfg.AutoExecute {
				if err := a.module.ExecuteProposal(p.ID); err != nil {
					a.log.WithField("proposal", p.ID).WithError(err).Warn("auto-execute")
				}
			}
		}
	}
	return nil
}

// maybeRemind gossips one reminder once the voting window is mostly spent.
func (a *GovernanceAutomation) maybeRemind(p *Proposal, now time.Time) {
	if a.network == nil || a.reminded[p.ID] {
		return
	}
	window := p.VotingDeadline.Sub(p.CreatedAt)
	if window <= 0 {
		return
	}
	elapsed := now.Sub(p.CreatedAt)
	if float64(elapsed) < float64(window)*a.cfg.ReminderFraction {
		return
	}
	a.reminded[p.ID] = true
	msg := ProtocolMessage{
		Type: MsgGossip,
		Gossip: &GossipMessage{
			Topic:   "governance.reminder",
			Payload: []byte(p.ID),
			TTL:     3,
		},
	}
	if err := a.network.BroadcastMessage(msg); err != nil {
		a.log.WithField("proposal", p.ID).WithError(err).Warn("broadcast reminder")
	}
}
