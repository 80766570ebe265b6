package core

// mesh_executor.go – the executor side of the mesh. A cooperative task
// subscribes to announcements, bids when the job fits its capacity and
// mana position, and on winning the assignment executes the spec and
// returns a signed receipt.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ExecFunc runs a job spec and returns the raw result bytes.
type ExecFunc func(ctx context.Context, spec JobSpec) ([]byte, error)

// MeshExecutorConfig bounds what the executor offers.
type MeshExecutorConfig struct {
	CPUCores  uint32        `mapstructure:"cpu_cores"`
	MemoryMB  uint32        `mapstructure:"memory_mb"`
	BidMargin uint64        `mapstructure:"bid_margin"`
	ExecLimit time.Duration `mapstructure:"exec_limit"`
}

// DefaultMeshExecutorConfig returns a small single-core profile.
func DefaultMeshExecutorConfig() MeshExecutorConfig {
	return MeshExecutorConfig{CPUCores: 1, MemoryMB: 512, ExecLimit: time.Minute}
}

// MeshExecutor bids on and executes announced jobs.
type MeshExecutor struct {
	cfg     MeshExecutorConfig
	signer  Signer
	network NetworkService
	ledger  ManaLedger
	store   StorageService
	execute ExecFunc
	log     *zap.SugaredLogger

	mu      sync.Mutex
	pending map[Cid]ActualMeshJob // jobs we bid on, awaiting assignment
}

// NewMeshExecutor wires an executor identity. execute may be nil, in which
// case the spec payload is echoed back as the result.
func NewMeshExecutor(cfg MeshExecutorConfig, signer Signer, network NetworkService, ledger ManaLedger, store StorageService, execute ExecFunc, logger *zap.Logger) *MeshExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if execute == nil {
		execute = func(_ context.Context, spec JobSpec) ([]byte, error) {
			return append([]byte(nil), spec.Payload...), nil
		}
	}
	if cfg.ExecLimit <= 0 {
		cfg.ExecLimit = DefaultMeshExecutorConfig().ExecLimit
	}
	return &MeshExecutor{
		cfg:     cfg,
		signer:  signer,
		network: network,
		ledger:  ledger,
		store:   store,
		execute: execute,
		log:     logger.Sugar(),
		pending: make(map[Cid]ActualMeshJob),
	}
}

// Run consumes the announcement/assignment stream until ctx is cancelled.
func (e *MeshExecutor) Run(ctx context.Context) error {
	sub, cancel, err := e.network.Subscribe()
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rm := <-sub:
			switch rm.Message.Type {
			case MsgMeshJobAnnouncement:
				if rm.Message.JobAnnouncement != nil {
					e.handleAnnouncement(rm.Message.JobAnnouncement.Job)
				}
			case MsgJobAssignmentNotification:
				if rm.Message.Assignment != nil {
					e.handleAssignment(ctx, *rm.Message.Assignment)
				}
			}
		}
	}
}

// handleAnnouncement bids when the spec fits this executor's capacity and
// the creator's cost covers our price.
func (e *MeshExecutor) handleAnnouncement(job ActualMeshJob) {
	if job.Spec.MinCPUCores > e.cfg.CPUCores || job.Spec.MinMemoryMB > e.cfg.MemoryMB {
		return
	}
	price := e.price(job)
	if price > job.CostMana {
		e.log.Debugf("job %s cost %d below price %d, skipping", job.ID, job.CostMana, price)
		return
	}
	// Bidding stakes mana; skip jobs we cannot cover.
	if e.ledger != nil {
		bal, err := e.ledger.Balance(e.signer.Did())
		if err != nil || bal < price {
			e.log.Debugf("job %s needs stake %d, balance unavailable or short", job.ID, price)
			return
		}
	}
	bid := MeshJobBid{
		JobID:       job.ID,
		Executor:    e.signer.Did(),
		PriceMana:   price,
		Resources:   BidResources{CPUCores: e.cfg.CPUCores, MemoryMB: e.cfg.MemoryMB},
		SubmittedAt: uint64(time.Now().UnixMilli()),
	}
	if err := e.network.BroadcastMessage(ProtocolMessage{Type: MsgBidSubmission, Bid: &BidSubmission{Bid: bid}}); err != nil {
		e.log.Warnf("broadcast bid for %s: %v", job.ID, err)
		return
	}
	e.mu.Lock()
	e.pending[job.ID] = job
	e.mu.Unlock()
	e.log.Infof("bid %d mana on job %s", price, job.ID)
}

// price asks half the job's cost plus the configured margin.
func (e *MeshExecutor) price(job ActualMeshJob) uint64 {
	return job.CostMana/2 + e.cfg.BidMargin
}

// handleAssignment executes the job if the assignment names this executor.
func (e *MeshExecutor) handleAssignment(ctx context.Context, a JobAssignmentNotification) {
	if a.Executor != e.signer.Did() {
		e.mu.Lock()
		delete(e.pending, a.JobID)
		e.mu.Unlock()
		return
	}
	e.mu.Lock()
	job, ok := e.pending[a.JobID]
	delete(e.pending, a.JobID)
	e.mu.Unlock()
	if !ok {
		e.log.Warnf("assignment for unknown job %s", a.JobID)
		return
	}
	if err := e.runJob(ctx, job); err != nil {
		e.log.Warnf("job %s execution failed: %v", job.ID, err)
	}
}

func (e *MeshExecutor) runJob(ctx context.Context, job ActualMeshJob) error {
	execCtx, cancel := context.WithTimeout(ctx, e.cfg.ExecLimit)
	defer cancel()

	start := time.Now()
	result, err := e.execute(execCtx, job.Spec)
	success := err == nil
	if err != nil {
		result = []byte(err.Error())
	}

	// Anchor the raw result so the receipt's result CID resolves.
	resultBlock, err := NewDagBlock(result, nil, uint64(time.Now().Unix()), e.signer.Did(), nil, "results")
	if err != nil {
		return err
	}
	if e.store != nil {
		if err := e.store.Put(resultBlock); err != nil {
			return fmt.Errorf("anchor result: %w", err)
		}
	}

	receipt := ExecutionReceipt{
		JobID:     job.ID,
		Executor:  e.signer.Did(),
		ResultCid: resultBlock.Cid,
		CPUMs:     uint64(time.Since(start).Milliseconds()),
		Success:   success,
	}
	if err := SignReceipt(&receipt, e.signer); err != nil {
		return err
	}
	if err := e.network.BroadcastMessage(ProtocolMessage{Type: MsgSubmitReceipt, Receipt: &SubmitReceipt{Receipt: receipt}}); err != nil {
		return err
	}
	e.log.Infof("receipt submitted for job %s (cpu %dms)", job.ID, receipt.CPUMs)
	return nil
}
