package core

// coordinator.go – cross-component health monitoring. The coordinator polls
// registered component checks on an interval, folds them into a
// SystemHealthStatus and feeds per-metric trend windows. Optimization and
// autonomous adaptation live in coordinator_optimize.go.

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ComponentHealth is one component's self-report.
type ComponentHealth struct {
	Component string    `json:"component"`
	Healthy   bool      `json:"healthy"`
	Score     float64   `json:"score"` // 0..1
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// SystemHealthStatus aggregates all component reports.
type SystemHealthStatus struct {
	Overall     float64                    `json:"overall"`
	Components  map[string]ComponentHealth `json:"components"`
	RefreshedAt time.Time                  `json:"refreshed_at"`
}

// HealthCheck produces a component report on demand.
type HealthCheck func() ComponentHealth

// CoordinatorConfig tunes the background loops.
type CoordinatorConfig struct {
	HealthInterval       time.Duration `mapstructure:"health_interval"`
	OptimizeInterval     time.Duration `mapstructure:"optimize_interval"`
	TrendInterval        time.Duration `mapstructure:"trend_interval"`
	TrendWindow          int           `mapstructure:"trend_window"`
	MaxAutonomousPerHour int           `mapstructure:"max_autonomous_actions_per_hour"`
	DegradedThreshold    float64       `mapstructure:"degraded_threshold"`
}

// DefaultCoordinatorConfig returns the node defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		HealthInterval:       15 * time.Second,
		OptimizeInterval:     time.Minute,
		TrendInterval:        30 * time.Second,
		TrendWindow:          32,
		MaxAutonomousPerHour: 10,
		DegradedThreshold:    0.6,
	}
}

// TrendAnalysis is a sliding window over one metric with its fitted slope.
type TrendAnalysis struct {
	Metric  string    `json:"metric"`
	Samples []float64 `json:"samples"`
	Slope   float64   `json:"slope"`
}

// CrossComponentCoordinator observes every subsystem and adapts parameters.
type CrossComponentCoordinator struct {
	cfg CoordinatorConfig
	log *logrus.Logger

	mu            sync.Mutex
	checks        map[string]HealthCheck
	health        SystemHealthStatus
	trends        map[string]*TrendAnalysis
	opportunities map[string]*OptimizationOpportunity
	actions       []AutonomousActionRecord
}

// NewCrossComponentCoordinator builds an empty coordinator.
func NewCrossComponentCoordinator(cfg CoordinatorConfig, logger *logrus.Logger) *CrossComponentCoordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	def := DefaultCoordinatorConfig()
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = def.HealthInterval
	}
	if cfg.OptimizeInterval <= 0 {
		cfg.OptimizeInterval = def.OptimizeInterval
	}
	if cfg.TrendInterval <= 0 {
		cfg.TrendInterval = def.TrendInterval
	}
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = def.TrendWindow
	}
	if cfg.MaxAutonomousPerHour <= 0 {
		cfg.MaxAutonomousPerHour = def.MaxAutonomousPerHour
	}
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = def.DegradedThreshold
	}
	return &CrossComponentCoordinator{
		cfg:           cfg,
		log:           logger,
		checks:        make(map[string]HealthCheck),
		health:        SystemHealthStatus{Components: make(map[string]ComponentHealth)},
		trends:        make(map[string]*TrendAnalysis),
		opportunities: make(map[string]*OptimizationOpportunity),
	}
}

// RegisterHealthCheck adds or replaces the check for component.
func (c *CrossComponentCoordinator) RegisterHealthCheck(component string, check HealthCheck) {
	c.mu.Lock()
	c.checks[component] = check
	c.mu.Unlock()
}

// RefreshHealth polls every check and recomputes the aggregate.
func (c *CrossComponentCoordinator) RefreshHealth() SystemHealthStatus {
	c.mu.Lock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make([]HealthCheck, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		checks = append(checks, c.checks[name])
	}
	c.mu.Unlock()

	components := make(map[string]ComponentHealth, len(names))
	total := 0.0
	for i, name := range names {
		report := checks[i]()
		report.Component = name
		report.CheckedAt = time.Now()
		components[name] = report
		total += report.Score
	}
	overall := 1.0
	if len(names) > 0 {
		overall = total / float64(len(names))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.health = SystemHealthStatus{Overall: overall, Components: components, RefreshedAt: time.Now()}
	c.recordSampleLocked("system.health", overall)
	for name, report := range components {
		c.recordSampleLocked("component."+name, report.Score)
	}
	return c.health
}

// Health returns the last refreshed aggregate.
func (c *CrossComponentCoordinator) Health() SystemHealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := SystemHealthStatus{
		Overall:     c.health.Overall,
		Components:  make(map[string]ComponentHealth, len(c.health.Components)),
		RefreshedAt: c.health.RefreshedAt,
	}
	for k, v := range c.health.Components {
		out.Components[k] = v
	}
	return out
}

// RecordMetric feeds one sample into the metric's trend window.
func (c *CrossComponentCoordinator) RecordMetric(metric string, value float64) {
	c.mu.Lock()
	c.recordSampleLocked(metric, value)
	c.mu.Unlock()
}

func (c *CrossComponentCoordinator) recordSampleLocked(metric string, value float64) {
	t, ok := c.trends[metric]
	if !ok {
		t = &TrendAnalysis{Metric: metric}
		c.trends[metric] = t
	}
	t.Samples = append(t.Samples, value)
	if len(t.Samples) > c.cfg.TrendWindow {
		t.Samples = t.Samples[len(t.Samples)-c.cfg.TrendWindow:]
	}
	t.Slope = fitSlope(t.Samples)
}

// Trend returns the analysis for metric.
func (c *CrossComponentCoordinator) Trend(metric string) (TrendAnalysis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.trends[metric]
	if !ok {
		return TrendAnalysis{}, false
	}
	return TrendAnalysis{Metric: t.Metric, Samples: append([]float64(nil), t.Samples...), Slope: t.Slope}, true
}

// fitSlope least-squares fits the sample index against value.
func fitSlope(samples []float64) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range samples {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / denom
}

// Run drives the background loops until ctx is cancelled. Loop errors are
// logged and the loops continue.
func (c *CrossComponentCoordinator) Run(ctx context.Context) {
	health := time.NewTicker(c.cfg.HealthInterval)
	optimize := time.NewTicker(c.cfg.OptimizeInterval)
	trend := time.NewTicker(c.cfg.TrendInterval)
	defer health.Stop()
	defer optimize.Stop()
	defer trend.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-health.C:
			c.RefreshHealth()
		case <-trend.C:
			c.analyzeTrends()
		case <-optimize.C:
			c.DiscoverOpportunities()
			c.ExecuteReadyOpportunities()
		}
	}
}

// analyzeTrends flags metrics trending sharply downward.
func (c *CrossComponentCoordinator) analyzeTrends() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for metric, t := range c.trends {
		if len(t.Samples) >= 4 && t.Slope < -0.05 {
			c.log.WithField("metric", metric).WithField("slope", t.Slope).Warn("metric trending down")
		}
	}
}
