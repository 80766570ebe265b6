package core

// dispute_types.go – economic dispute model: dispute records, lifecycle
// states, resolutions and the resolver configuration.

// EconomicDisputeType classifies what is being contested.
type EconomicDisputeType string

const (
	ManaDispute                EconomicDisputeType = "mana_dispute"
	ResourceAllocationConflict EconomicDisputeType = "resource_allocation_conflict"
	TokenTransferDispute       EconomicDisputeType = "token_transfer_dispute"
	MarketplaceDispute         EconomicDisputeType = "marketplace_dispute"
	MutualCreditDispute        EconomicDisputeType = "mutual_credit_dispute"
	PricingDispute             EconomicDisputeType = "pricing_dispute"
	DoubleSpending             EconomicDisputeType = "double_spending"
)

// DisputeSeverity orders disputes for auto-resolution eligibility.
type DisputeSeverity int

const (
	SeverityLow DisputeSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// DisputePhase is the lifecycle position of a dispute.
type DisputePhase string

const (
	DisputeFiled                 DisputePhase = "filed"
	DisputeUnderInvestigation    DisputePhase = "under_investigation"
	DisputeMediation             DisputePhase = "mediation"
	DisputeArbitration           DisputePhase = "arbitration"
	DisputeCommunityVoting       DisputePhase = "community_voting"
	DisputeResolved              DisputePhase = "resolved"
	DisputeFailed                DisputePhase = "failed"
	DisputeEscalatedToGovernance DisputePhase = "escalated_to_governance"
)

// DisputeStatus carries the phase plus its phase-specific fields.
type DisputeStatus struct {
	Phase      DisputePhase        `json:"phase"`
	Arbitrator DID                 `json:"arbitrator,omitempty"`
	Deadline   uint64              `json:"deadline,omitempty"`
	Resolution *EconomicResolution `json:"resolution,omitempty"`
	AppliedAt  uint64              `json:"applied_at,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

// EconomicDispute is one contested economic event.
type EconomicDispute struct {
	DisputeID      string              `json:"dispute_id"`
	Type           EconomicDisputeType `json:"type"`
	Filer          DID                 `json:"filer"`
	Parties        []DID               `json:"parties"`
	Amount         uint64              `json:"amount"`
	Evidence       []string            `json:"evidence"`
	TransactionIDs []string            `json:"transaction_ids,omitempty"`
	Severity       DisputeSeverity     `json:"severity"`
	FiledAt        uint64              `json:"filed_at"`
	Status         DisputeStatus       `json:"status"`
}

// ResolutionKind names the remedy applied to a resolved dispute.
type ResolutionKind string

const (
	ResolutionAdjustBalances       ResolutionKind = "adjust_balances"
	ResolutionCompensation         ResolutionKind = "compensation"
	ResolutionReverseTransactions  ResolutionKind = "reverse_transactions"
	ResolutionEscalateToGovernance ResolutionKind = "escalate_to_governance"
	ResolutionDismiss              ResolutionKind = "dismiss"
)

// BalanceAdjustment credits (positive) or debits (negative) one account.
type BalanceAdjustment struct {
	Account DID   `json:"account"`
	Delta   int64 `json:"delta"`
}

// EconomicResolution is the remedy attached to a resolved dispute.
type EconomicResolution struct {
	Kind         ResolutionKind      `json:"kind"`
	Adjustments  []BalanceAdjustment `json:"adjustments,omitempty"`
	Recipient    DID                 `json:"recipient,omitempty"`
	CreditAmount uint64              `json:"credit_amount,omitempty"`
	Transactions []string            `json:"transactions,omitempty"`
	Note         string              `json:"note,omitempty"`
}

// LedgerTransaction is one recorded mana movement examined by detection.
// Negative amounts are debits.
type LedgerTransaction struct {
	ID        string `json:"id"`
	Account   DID    `json:"account"`
	Amount    int64  `json:"amount"`
	Timestamp uint64 `json:"timestamp"`
}

// EconomicDisputeConfig tunes filing validation, detection and timeouts.
type EconomicDisputeConfig struct {
	AutoDetection           bool            `json:"auto_detection" mapstructure:"auto_detection"`
	AutoResolutionThreshold DisputeSeverity `json:"auto_resolution_threshold" mapstructure:"auto_resolution_threshold"`
	InvestigationTimeoutS   uint64          `json:"investigation_timeout_s" mapstructure:"investigation_timeout_s"`
	MediationTimeoutS       uint64          `json:"mediation_timeout_s" mapstructure:"mediation_timeout_s"`
	ArbitrationTimeoutS     uint64          `json:"arbitration_timeout_s" mapstructure:"arbitration_timeout_s"`
	VotingPeriodS           uint64          `json:"voting_period_s" mapstructure:"voting_period_s"`
	MinimumDisputeAmount    uint64          `json:"minimum_dispute_amount" mapstructure:"minimum_dispute_amount"`
	ReputationArbitration   bool            `json:"reputation_based_arbitration" mapstructure:"reputation_based_arbitration"`
	MaxDisputesPerAccount   int             `json:"max_disputes_per_account" mapstructure:"max_disputes_per_account"`
}

// DefaultEconomicDisputeConfig returns the node defaults.
func DefaultEconomicDisputeConfig() EconomicDisputeConfig {
	return EconomicDisputeConfig{
		AutoDetection:           true,
		AutoResolutionThreshold: SeverityMedium,
		InvestigationTimeoutS:   3600,
		MediationTimeoutS:       7200,
		ArbitrationTimeoutS:     14400,
		VotingPeriodS:           86400,
		MinimumDisputeAmount:    10,
		MaxDisputesPerAccount:   5,
	}
}

// maxDisputeHistory bounds the resolved-dispute ring buffer.
const maxDisputeHistory = 100
