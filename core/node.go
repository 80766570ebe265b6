package core

// node.go – assembles the ICN runtime: store, ledger, network, router,
// mesh manager, governance, dispute resolver and coordinator, with the
// background loops spawned under one context.

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// NodeConfig aggregates the per-subsystem configurations.
type NodeConfig struct {
	Identity    string                     `mapstructure:"identity"`
	DataDir     string                     `mapstructure:"data_dir"`
	Network     NetworkConfig              `mapstructure:"network"`
	Conflicts   ConflictResolutionConfig   `mapstructure:"conflicts"`
	Mesh        MeshManagerConfig          `mapstructure:"mesh"`
	Executor    MeshExecutorConfig         `mapstructure:"executor"`
	Router      SmartRouterConfig          `mapstructure:"router"`
	Disputes    EconomicDisputeConfig      `mapstructure:"disputes"`
	Governance  GovernanceAutomationConfig `mapstructure:"governance"`
	Coordinator CoordinatorConfig          `mapstructure:"coordinator"`
	Quorum      int                        `mapstructure:"quorum"`
	Threshold   float64                    `mapstructure:"threshold"`
}

// DefaultNodeConfig returns a runnable single-node default.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Identity:    "did:icn:node",
		DataDir:     "icn-data",
		Network:     DefaultNetworkConfig(),
		Conflicts:   DefaultConflictResolutionConfig(),
		Mesh:        DefaultMeshManagerConfig(),
		Executor:    DefaultMeshExecutorConfig(),
		Router:      DefaultSmartRouterConfig(),
		Disputes:    DefaultEconomicDisputeConfig(),
		Governance:  DefaultGovernanceAutomationConfig(),
		Coordinator: DefaultCoordinatorConfig(),
		Quorum:      3,
		Threshold:   0.5,
	}
}

// Node is the wired runtime.
type Node struct {
	Identity   DID
	Signer     *Ed25519Signer
	Resolver   *MemoryKeyResolver
	Store      StorageService
	Ledger     *MemoryManaLedger
	Network    NetworkService
	Router     *SmartP2pRouter
	Mesh       *MeshManager
	Executor   *MeshExecutor
	Governance *GovernanceModule
	Automation *GovernanceAutomation
	Conflicts  *ConflictResolver
	Disputes   *EconomicDisputeResolver
	Federation *FederationManager
	Coord      *CrossComponentCoordinator
	Metrics    *Metrics

	cfg    NodeConfig
	log    *logrus.Logger
	cancel context.CancelFunc
}

// NewNode wires a node over the given transport. A nil network boots the
// libp2p overlay from cfg.Network.
func NewNode(cfg NodeConfig, network NetworkService, logger *logrus.Logger) (*Node, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	identity, err := ParseDID(cfg.Identity)
	if err != nil {
		return nil, err
	}
	resolver := NewMemoryKeyResolver()
	signer, err := NewEd25519Signer(identity)
	if err != nil {
		return nil, err
	}
	resolver.RegisterSigner(signer)

	if network == nil {
		network, err = NewLibp2pNetwork(cfg.Network, resolver, logger)
		if err != nil {
			return nil, fmt.Errorf("boot overlay: %w", err)
		}
	}

	store, err := NewFileBlockStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	ledger := NewMemoryManaLedger(nil)
	// Seed the local account so the node can stake bids on its own mesh.
	ledger.CreateAccount(identity, 1000)
	reputation := NewStaticReputation(nil)

	govStore := NewMemoryGovernanceStore()
	events := NewMemoryGovernanceEventLog()
	governance := NewGovernanceModule(govStore, events, cfg.Quorum, cfg.Threshold, logger)
	governance.AddMember(identity)

	node := &Node{
		Identity:   identity,
		Signer:     signer,
		Resolver:   resolver,
		Store:      store,
		Ledger:     ledger,
		Network:    network,
		Router:     NewSmartP2pRouter(cfg.Router, identity, network, reputation, nil, logger),
		Mesh:       NewMeshManager(cfg.Mesh, network, store, ledger, reputation, resolver, logger),
		Executor:   NewMeshExecutor(cfg.Executor, signer, network, ledger, store, nil, zap.NewNop()),
		Governance: governance,
		Conflicts:  NewConflictResolver(store, cfg.Conflicts, identity, reputation, logger),
		Disputes:   NewEconomicDisputeResolver(cfg.Disputes, ledger, identity, reputation, logger),
		Federation: NewFederationManager(network, store, logger),
		Coord:      NewCrossComponentCoordinator(cfg.Coordinator, logger),
		Metrics:    NewMetrics(),
		cfg:        cfg,
		log:        logger,
	}
	node.Automation = NewGovernanceAutomation(cfg.Governance, governance, network, logger)
	node.registerHealthChecks()
	return node, nil
}

func (n *Node) registerHealthChecks() {
	n.Coord.RegisterHealthCheck("dag", func() ComponentHealth {
		if _, err := n.Store.CurrentRoot(); err != nil {
			return ComponentHealth{Healthy: false, Score: 0, Detail: err.Error()}
		}
		return ComponentHealth{Healthy: true, Score: 1}
	})
	n.Coord.RegisterHealthCheck("p2p", func() ComponentHealth {
		stats := n.Network.GetNetworkStats()
		score := 1.0
		if total := stats.MessagesSent + stats.FailedConnections; total > 0 {
			score = float64(stats.MessagesSent) / float64(total)
		}
		return ComponentHealth{Healthy: score > 0.5, Score: score}
	})
	n.Coord.RegisterHealthCheck("conflicts", func() ComponentHealth {
		open := len(n.Conflicts.ActiveConflicts())
		score := 1.0 / (1.0 + float64(open))
		return ComponentHealth{Healthy: open < n.cfg.Conflicts.MaxConcurrentConflicts, Score: score}
	})
	n.Coord.RegisterHealthCheck("disputes", func() ComponentHealth {
		open := len(n.Disputes.ActiveDisputes())
		score := 1.0 / (1.0 + float64(open))
		return ComponentHealth{Healthy: true, Score: score}
	})
}

// Start spawns the background loops. Call Stop to cancel them.
func (n *Node) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	n.cancel = cancel
	go n.Mesh.Run(ctx)
	go func() {
		if err := n.Executor.Run(ctx); err != nil && ctx.Err() == nil {
			n.log.WithError(err).Warn("executor stopped")
		}
	}()
	go n.Router.Run(ctx)
	go func() {
		if err := n.Federation.Run(ctx); err != nil && ctx.Err() == nil {
			n.log.WithError(err).Warn("federation manager stopped")
		}
	}()
	go n.Automation.Run(ctx)
	go n.Coord.Run(ctx)
	go n.conflictScanLoop(ctx)
	go n.disputeScanLoop(ctx)
	n.log.WithField("identity", n.Identity.String()).Info("icn node started")
}

// Stop cancels the background loops.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.log.Info("icn node stopped")
}

func (n *Node) conflictScanLoop(ctx context.Context) {
	interval := time.Duration(n.cfg.Conflicts.EvidenceTimeoutS) * time.Second / 4
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fresh, err := n.Conflicts.DetectConflicts()
			if err != nil {
				n.log.WithError(err).Warn("conflict scan")
				continue
			}
			for _, c := range fresh {
				n.Metrics.ConflictsDetected.WithLabelValues(string(c.Type)).Inc()
				if !n.cfg.Conflicts.AutoResolve {
					continue
				}
				if status, err := n.Conflicts.ResolveConflict(c.ConflictID); err != nil {
					n.log.WithField("conflict", c.ConflictID).WithError(err).Warn("auto-resolve")
				} else if status.Phase == PhaseResolved {
					n.Metrics.ConflictsResolved.Inc()
				}
			}
		}
	}
}

func (n *Node) disputeScanLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.Disputes.ProcessPeriodicTasks()
		}
	}
}
