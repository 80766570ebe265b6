package core

// mesh_types.go – mesh computation job model: manifests, bids, receipts and
// the per-job state machine.

import (
	"encoding/json"
	"fmt"
)

// JobSpec describes what an executor must run and the resources it needs.
type JobSpec struct {
	Kind        string `json:"kind"`
	Payload     []byte `json:"payload,omitempty"`
	MinCPUCores uint32 `json:"min_cpu_cores"`
	MinMemoryMB uint32 `json:"min_memory_mb"`
}

// ActualMeshJob is a job accepted into the lifecycle. Its ID is the CID of
// the job manifest, so identical submissions collapse to one identity.
type ActualMeshJob struct {
	ID        Cid     `json:"id"`
	Creator   DID     `json:"creator"`
	Spec      JobSpec `json:"spec"`
	CostMana  uint64  `json:"cost_mana"`
	MaxWaitMs uint64  `json:"max_wait_ms"`
	CreatedAt uint64  `json:"created_at"`
}

// NewMeshJob assembles a job and derives its manifest CID.
func NewMeshJob(creator DID, spec JobSpec, costMana, maxWaitMs, createdAt uint64) (*ActualMeshJob, error) {
	manifest, err := json.Marshal(struct {
		Creator   DID     `json:"creator"`
		Spec      JobSpec `json:"spec"`
		CostMana  uint64  `json:"cost_mana"`
		CreatedAt uint64  `json:"created_at"`
	}{creator, spec, costMana, createdAt})
	if err != nil {
		return nil, fmt.Errorf("%w: job manifest: %v", ErrSerialization, err)
	}
	id, err := ComputeMerkleCid(DefaultCodec, manifest, nil, createdAt, creator, nil, "job")
	if err != nil {
		return nil, err
	}
	return &ActualMeshJob{
		ID:        id,
		Creator:   creator,
		Spec:      spec,
		CostMana:  costMana,
		MaxWaitMs: maxWaitMs,
		CreatedAt: createdAt,
	}, nil
}

// BidResources is the capacity an executor commits in a bid.
type BidResources struct {
	CPUCores uint32 `json:"cpu_cores"`
	MemoryMB uint32 `json:"memory_mb"`
}

// MeshJobBid is an executor's priced offer for a job.
type MeshJobBid struct {
	JobID       Cid          `json:"job_id"`
	Executor    DID          `json:"executor"`
	PriceMana   uint64       `json:"price_mana"`
	Resources   BidResources `json:"resources"`
	SubmittedAt uint64       `json:"submitted_at"`
}

// ExecutionReceipt is the executor's signed attestation that a job ran.
type ExecutionReceipt struct {
	JobID     Cid       `json:"job_id"`
	Executor  DID       `json:"executor"`
	ResultCid Cid       `json:"result_cid"`
	CPUMs     uint64    `json:"cpu_ms"`
	Success   bool      `json:"success"`
	Signature Signature `json:"signature,omitempty"`
}

// signable returns the receipt bytes covered by the signature.
func (r *ExecutionReceipt) signable() ([]byte, error) {
	cp := *r
	cp.Signature = nil
	raw, err := json.Marshal(&cp)
	if err != nil {
		return nil, fmt.Errorf("%w: receipt: %v", ErrSerialization, err)
	}
	return raw, nil
}

// SignReceipt stamps the receipt with the executor's signature. The signer
// identity must match the receipt executor.
func SignReceipt(r *ExecutionReceipt, signer Signer) error {
	if signer.Did() != r.Executor {
		return fmt.Errorf("%w: signer %s is not receipt executor %s", ErrPolicyDenied, signer.Did(), r.Executor)
	}
	body, err := r.signable()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(body)
	if err != nil {
		return err
	}
	r.Signature = sig
	return nil
}

// VerifyReceipt checks the receipt signature against the executor's
// resolved key.
func VerifyReceipt(r *ExecutionReceipt, resolver KeyResolver) error {
	if len(r.Signature) == 0 {
		return fmt.Errorf("%w: receipt for %s is unsigned", ErrSignature, r.JobID)
	}
	body, err := r.signable()
	if err != nil {
		return err
	}
	return resolver.Verify(r.Executor, body, r.Signature)
}

// JobPhase is the lifecycle position of a job.
type JobPhase string

const (
	JobPending   JobPhase = "pending"
	JobAssigned  JobPhase = "assigned"
	JobCompleted JobPhase = "completed"
	JobFailed    JobPhase = "failed"
)

// Job failure reasons.
const (
	FailNoBids         = "no bids"
	FailTimeout        = "receipt timeout"
	FailInvalidReceipt = "invalid receipt"
	FailAnchorFailed   = "anchor failed"
)

// JobState is the single-writer per-job state. Snapshots handed to callers
// are copies.
type JobState struct {
	Phase    JobPhase          `json:"phase"`
	Executor DID               `json:"executor,omitempty"`
	Receipt  *ExecutionReceipt `json:"receipt,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}
