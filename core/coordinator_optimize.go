package core

// coordinator_optimize.go – optimization opportunities and autonomous
// adaptation. Opportunities move Discovered → Evaluating → Ready →
// Implementing → Implemented|Failed; autonomous actions are rate-limited
// per hour and recorded in a bounded ring.

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// OptimizationAction names the adaptation applied by an opportunity.
type OptimizationAction string

const (
	ActionParameterAdjustment    OptimizationAction = "parameter_adjustment"
	ActionResourceRedistribution OptimizationAction = "resource_redistribution"
	ActionAlgorithmChange        OptimizationAction = "algorithm_change"
	ActionComponentScaling       OptimizationAction = "component_scaling"
	ActionFeatureToggle          OptimizationAction = "feature_toggle"
)

// OpportunityPhase is the lifecycle position of an opportunity.
type OpportunityPhase string

const (
	OpportunityDiscovered   OpportunityPhase = "discovered"
	OpportunityEvaluating   OpportunityPhase = "evaluating"
	OpportunityReady        OpportunityPhase = "ready"
	OpportunityImplementing OpportunityPhase = "implementing"
	OpportunityImplemented  OpportunityPhase = "implemented"
	OpportunityFailed       OpportunityPhase = "failed"
)

// OptimizationOpportunity is one discovered adaptation. Apply is invoked
// during implementation; a nil Apply implements trivially.
type OptimizationOpportunity struct {
	ID           string             `json:"id"`
	Component    string             `json:"component"`
	Action       OptimizationAction `json:"action"`
	Description  string             `json:"description"`
	Phase        OpportunityPhase   `json:"phase"`
	Reason       string             `json:"reason,omitempty"`
	DiscoveredAt time.Time          `json:"discovered_at"`
	Apply        func() error       `json:"-"`
}

// AutonomousActionRecord logs one executed adaptation.
type AutonomousActionRecord struct {
	ID        string             `json:"id"`
	Component string             `json:"component"`
	Action    OptimizationAction `json:"action"`
	TakenAt   time.Time          `json:"taken_at"`
	Succeeded bool               `json:"succeeded"`
	Detail    string             `json:"detail,omitempty"`
}

// maxActionRecords bounds the autonomous action ring.
const maxActionRecords = 100

// ProposeOpportunity registers an externally discovered opportunity.
func (c *CrossComponentCoordinator) ProposeOpportunity(op OptimizationOpportunity) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	op.ID = uuid.New().String()
	op.Phase = OpportunityDiscovered
	op.DiscoveredAt = time.Now()
	c.opportunities[op.ID] = &op
	return op.ID
}

// DiscoverOpportunities inspects the last health snapshot for degraded
// components and proposes parameter adjustments for them.
func (c *CrossComponentCoordinator) DiscoverOpportunities() []string {
	health := c.Health()
	var proposed []string
	for name, report := range health.Components {
		if report.Score >= c.cfg.DegradedThreshold {
			continue
		}
		already := false
		c.mu.Lock()
		for _, op := range c.opportunities {
			if op.Component == name && op.Phase != OpportunityImplemented && op.Phase != OpportunityFailed {
				already = true
				break
			}
		}
		c.mu.Unlock()
		if already {
			continue
		}
		id := c.ProposeOpportunity(OptimizationOpportunity{
			Component:   name,
			Action:      ActionParameterAdjustment,
			Description: fmt.Sprintf("component %s degraded (score %.2f)", name, report.Score),
		})
		proposed = append(proposed, id)
	}
	return proposed
}

// EvaluateOpportunity moves an opportunity Discovered → Evaluating → Ready.
// Evaluation passes when the component is still degraded; otherwise the
// opportunity fails as no longer relevant.
func (c *CrossComponentCoordinator) EvaluateOpportunity(id string) error {
	health := c.Health()
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.opportunities[id]
	if !ok {
		return fmt.Errorf("%w: opportunity %s", ErrNotFound, id)
	}
	if op.Phase != OpportunityDiscovered {
		return fmt.Errorf("%w: opportunity %s is %s", ErrInvalidState, id, op.Phase)
	}
	op.Phase = OpportunityEvaluating
	if report, ok := health.Components[op.Component]; ok && report.Score >= c.cfg.DegradedThreshold {
		op.Phase = OpportunityFailed
		op.Reason = "component recovered before implementation"
		return nil
	}
	op.Phase = OpportunityReady
	return nil
}

// ExecuteReadyOpportunities evaluates discovered opportunities and
// implements the ready ones under the hourly rate limit.
func (c *CrossComponentCoordinator) ExecuteReadyOpportunities() []AutonomousActionRecord {
	c.mu.Lock()
	ids := make([]string, 0, len(c.opportunities))
	for id, op := range c.opportunities {
		if op.Phase == OpportunityDiscovered || op.Phase == OpportunityReady {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()
	sort.Strings(ids)

	var executed []AutonomousActionRecord
	for _, id := range ids {
		c.mu.Lock()
		phase := OpportunityFailed
		if op, ok := c.opportunities[id]; ok {
			phase = op.Phase
		}
		c.mu.Unlock()
		if phase == OpportunityDiscovered {
			if err := c.EvaluateOpportunity(id); err != nil {
				continue
			}
		}
		rec, err := c.ImplementOpportunity(id)
		if err != nil {
			continue
		}
		executed = append(executed, rec)
	}
	return executed
}

// ImplementOpportunity runs a ready opportunity's Apply under the hourly
// autonomous-action budget.
func (c *CrossComponentCoordinator) ImplementOpportunity(id string) (AutonomousActionRecord, error) {
	c.mu.Lock()
	op, ok := c.opportunities[id]
	if !ok {
		c.mu.Unlock()
		return AutonomousActionRecord{}, fmt.Errorf("%w: opportunity %s", ErrNotFound, id)
	}
	if op.Phase != OpportunityReady {
		c.mu.Unlock()
		return AutonomousActionRecord{}, fmt.Errorf("%w: opportunity %s is %s", ErrInvalidState, id, op.Phase)
	}
	if c.actionsInLastHourLocked() >= c.cfg.MaxAutonomousPerHour {
		c.mu.Unlock()
		return AutonomousActionRecord{}, fmt.Errorf("%w: autonomous action budget exhausted", ErrPolicyDenied)
	}
	op.Phase = OpportunityImplementing
	apply := op.Apply
	c.mu.Unlock()

	var applyErr error
	if apply != nil {
		applyErr = apply()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rec := AutonomousActionRecord{
		ID:        uuid.New().String(),
		Component: op.Component,
		Action:    op.Action,
		TakenAt:   time.Now(),
		Succeeded: applyErr == nil,
	}
	if applyErr != nil {
		op.Phase = OpportunityFailed
		op.Reason = applyErr.Error()
		rec.Detail = applyErr.Error()
	} else {
		op.Phase = OpportunityImplemented
	}
	c.actions = append(c.actions, rec)
	if len(c.actions) > maxActionRecords {
		c.actions = c.actions[len(c.actions)-maxActionRecords:]
	}
	c.log.WithField("opportunity", id).WithField("succeeded", rec.Succeeded).Info("autonomous action executed")
	if applyErr != nil {
		return rec, fmt.Errorf("implement opportunity %s: %w", id, applyErr)
	}
	return rec, nil
}

func (c *CrossComponentCoordinator) actionsInLastHourLocked() int {
	cutoff := time.Now().Add(-time.Hour)
	n := 0
	for _, rec := range c.actions {
		if rec.TakenAt.After(cutoff) {
			n++
		}
	}
	return n
}

// Opportunities snapshots the tracked opportunities.
func (c *CrossComponentCoordinator) Opportunities() []OptimizationOpportunity {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OptimizationOpportunity, 0, len(c.opportunities))
	for _, op := range c.opportunities {
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActionHistory snapshots the autonomous action ring.
func (c *CrossComponentCoordinator) ActionHistory() []AutonomousActionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AutonomousActionRecord(nil), c.actions...)
}
