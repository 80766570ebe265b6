package core

// router_types.go – data model for reputation-weighted smart routing.

import "time"

// ConnectionQuality measures a direct link.
type ConnectionQuality struct {
	LatencyMs      float64 `json:"latency_ms"`
	PacketLossRate float64 `json:"packet_loss_rate"`
	Stability      float64 `json:"stability"`
	BandwidthKbps  *uint64 `json:"bandwidth_kbps,omitempty"`
}

// RoutePath is one ranked multi-hop route toward a target.
type RoutePath struct {
	PathPeers    []DID   `json:"path_peers"`
	Quality      float64 `json:"quality"`
	EstLatencyMs float64 `json:"est_latency_ms"`
	Reliability  float64 `json:"reliability"`
	SuccessRate  float64 `json:"success_rate"`
}

// PeerRouteInfo is everything the router knows about a direct peer.
type PeerRouteInfo struct {
	Peer        DID               `json:"peer"`
	Reputation  float64           `json:"reputation"`
	Direct      ConnectionQuality `json:"direct"`
	Connections []DID             `json:"connections"` // peers this peer advertises
	LastSeen    time.Time         `json:"last_seen"`
}

// RoutingStrategyKind names a path-selection algorithm.
type RoutingStrategyKind string

const (
	RouteDirect          RoutingStrategyKind = "direct"
	RouteReputationBased RoutingStrategyKind = "reputation_based"
	RouteLowestLatency   RoutingStrategyKind = "lowest_latency"
	RouteMostReliable    RoutingStrategyKind = "most_reliable"
	RouteRedundant       RoutingStrategyKind = "redundant"
	RouteAdaptive        RoutingStrategyKind = "adaptive"
	RouteLoadBalanced    RoutingStrategyKind = "load_balanced"
)

// RoutingStrategy carries a kind plus its parameters.
type RoutingStrategy struct {
	Kind           RoutingStrategyKind `json:"kind"`
	MinReputation  float64             `json:"min_reputation,omitempty"`
	MinReliability float64             `json:"min_reliability,omitempty"`
	PathCount      int                 `json:"path_count,omitempty"`
}

// MessagePriority orders the dispatch queues.
type MessagePriority int

const (
	PriorityCritical MessagePriority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// QueueSizeLimits caps each priority FIFO plus the retry queue.
type QueueSizeLimits struct {
	Critical int `mapstructure:"critical"`
	High     int `mapstructure:"high"`
	Normal   int `mapstructure:"normal"`
	Low      int `mapstructure:"low"`
	Retry    int `mapstructure:"retry"`
}

// DefaultQueueSizeLimits returns the node defaults.
func DefaultQueueSizeLimits() QueueSizeLimits {
	return QueueSizeLimits{Critical: 64, High: 256, Normal: 1024, Low: 2048, Retry: 256}
}

// QueuedMessage is one routed send awaiting dispatch.
type QueuedMessage struct {
	Target      DID             `json:"target"`
	Message     ProtocolMessage `json:"message"`
	Priority    MessagePriority `json:"priority"`
	MaxAttempts int             `json:"max_attempts"`
	Attempts    int             `json:"attempts"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	nextTry     time.Time
}

// RoutingMetrics aggregates router activity.
type RoutingMetrics struct {
	Dispatched   uint64 `json:"dispatched"`
	Delivered    uint64 `json:"delivered"`
	Retried      uint64 `json:"retried"`
	Dropped      uint64 `json:"dropped"`
	PathFailures uint64 `json:"path_failures"`
}

// routeMaxAlternativePaths bounds the ranked paths kept per target.
const routeMaxAlternativePaths = 5

// Direct-route admission thresholds.
const (
	directMaxLatencyMs = 500.0
	directMaxLossRate  = 0.05
)

// multiHopQualityFactor discounts composed path quality per link product.
const multiHopQualityFactor = 0.85

// perHopLatencyPenaltyMs is added per hop beyond the first.
const perHopLatencyPenaltyMs = 150.0
