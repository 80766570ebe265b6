package core

// mesh_lifecycle.go – the job manager side of the mesh: queue, announce,
// collect bids, select an executor, assign, await the signed receipt and
// anchor it into the DAG. Per-job transitions are serialized under the
// manager's state mutex; jobs themselves run in parallel.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MeshManagerConfig tunes the bid window and queue polling.
type MeshManagerConfig struct {
	BidWindow    time.Duration `mapstructure:"bid_window"`
	MaxBids      int           `mapstructure:"max_bids"`
	QueuePoll    time.Duration `mapstructure:"queue_poll"`
	AnchorScope  string        `mapstructure:"anchor_scope"`
	MinExecutors int           `mapstructure:"min_executors"`
}

// DefaultMeshManagerConfig returns the node defaults.
func DefaultMeshManagerConfig() MeshManagerConfig {
	return MeshManagerConfig{
		BidWindow:   5 * time.Second,
		MaxBids:     16,
		QueuePoll:   200 * time.Millisecond,
		AnchorScope: "receipts",
	}
}

// MeshManager owns the pending queue and the job state map.
type MeshManager struct {
	cfg        MeshManagerConfig
	network    NetworkService
	store      StorageService
	ledger     ManaLedger
	reputation ReputationProvider
	resolver   KeyResolver
	log        *logrus.Logger

	mu     sync.Mutex
	queue  []*ActualMeshJob
	states map[Cid]*JobState

	wg sync.WaitGroup
}

// NewMeshManager wires the manager. A nil reputation provider degrades
// selection to price-then-arrival.
func NewMeshManager(cfg MeshManagerConfig, network NetworkService, store StorageService, ledger ManaLedger, rep ReputationProvider, resolver KeyResolver, logger *logrus.Logger) *MeshManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.BidWindow <= 0 {
		cfg.BidWindow = DefaultMeshManagerConfig().BidWindow
	}
	if cfg.MaxBids <= 0 {
		cfg.MaxBids = DefaultMeshManagerConfig().MaxBids
	}
	if cfg.QueuePoll <= 0 {
		cfg.QueuePoll = DefaultMeshManagerConfig().QueuePoll
	}
	return &MeshManager{
		cfg:        cfg,
		network:    network,
		store:      store,
		ledger:     ledger,
		reputation: rep,
		resolver:   resolver,
		log:        logger,
		states:     make(map[Cid]*JobState),
	}
}

// QueueJob validates the submitter's mana and appends the job to the FIFO
// pending queue.
func (m *MeshManager) QueueJob(job *ActualMeshJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job without id", ErrInvalidInput)
	}
	if bal, err := m.ledger.Balance(job.Creator); err != nil {
		return err
	} else if bal < job.CostMana {
		return fmt.Errorf("%w: creator %s has %d, job costs %d", ErrInsufficientMana, job.Creator, bal, job.CostMana)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[job.ID]; ok {
		return fmt.Errorf("%w: job %s already queued", ErrInvalidInput, job.ID)
	}
	m.queue = append(m.queue, job)
	m.states[job.ID] = &JobState{Phase: JobPending}
	m.log.WithField("job", string(job.ID)).Info("mesh job queued")
	return nil
}

// JobState returns a snapshot of the state for id.
func (m *MeshManager) JobState(id Cid) (JobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return JobState{}, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	cp := *st
	if st.Receipt != nil {
		rc := *st.Receipt
		cp.Receipt = &rc
	}
	return cp, nil
}

// Run polls the queue until ctx is cancelled, processing each job in its
// own goroutine.
func (m *MeshManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.QueuePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return
		case <-ticker.C:
			for _, job := range m.drainQueue() {
				job := job
				m.wg.Add(1)
				go func() {
					defer m.wg.Done()
					m.ProcessJob(ctx, job)
				}()
			}
		}
	}
}

func (m *MeshManager) drainQueue() []*ActualMeshJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := m.queue
	m.queue = nil
	return jobs
}

// ProcessJob drives one job through announce → bids → assign → receipt →
// anchor. Failures set the job state; they are reported, not retried.
func (m *MeshManager) ProcessJob(ctx context.Context, job *ActualMeshJob) {
	sub, cancel, err := m.network.Subscribe()
	if err != nil {
		m.fail(job.ID, fmt.Sprintf("subscribe: %v", err))
		return
	}
	defer cancel()

	if err := m.announce(job); err != nil {
		m.fail(job.ID, fmt.Sprintf("announce: %v", err))
		return
	}

	bids := m.collectBids(ctx, job, sub)
	if len(bids) == 0 {
		m.fail(job.ID, FailNoBids)
		return
	}

	winner := m.SelectExecutor(job, bids)
	if err := m.assign(job, winner); err != nil {
		m.fail(job.ID, fmt.Sprintf("assign: %v", err))
		return
	}

	receipt, err := m.awaitReceipt(ctx, job, winner.Executor, sub)
	if err != nil {
		return // awaitReceipt already set the failure state
	}
	if err := m.anchorReceipt(job, receipt); err != nil {
		m.fail(job.ID, FailAnchorFailed)
		return
	}
	m.complete(job.ID, receipt)
}

func (m *MeshManager) announce(job *ActualMeshJob) error {
	return m.network.BroadcastMessage(ProtocolMessage{
		Type:            MsgMeshJobAnnouncement,
		JobAnnouncement: &MeshJobAnnouncement{Job: *job},
	})
}

// collectBids accumulates matching bids until the window elapses or the cap
// is reached. The window rides a monotonic timer.
func (m *MeshManager) collectBids(ctx context.Context, job *ActualMeshJob, sub <-chan ReceivedMessage) []MeshJobBid {
	timer := time.NewTimer(m.cfg.BidWindow)
	defer timer.Stop()
	var bids []MeshJobBid
	for {
		select {
		case <-ctx.Done():
			return bids
		case <-timer.C:
			return bids
		case rm := <-sub:
			if rm.Message.Type != MsgBidSubmission || rm.Message.Bid == nil {
				continue
			}
			bid := rm.Message.Bid.Bid
			if bid.JobID != job.ID {
				continue
			}
			if bid.Resources.CPUCores < job.Spec.MinCPUCores || bid.Resources.MemoryMB < job.Spec.MinMemoryMB {
				continue
			}
			bids = append(bids, bid)
			if len(bids) >= m.cfg.MaxBids {
				return bids
			}
		}
	}
}

// SelectExecutor picks the lowest price, breaking ties by higher reputation
// and then earliest arrival.
func (m *MeshManager) SelectExecutor(job *ActualMeshJob, bids []MeshJobBid) MeshJobBid {
	best := bids[0]
	for _, b := range bids[1:] {
		if b.PriceMana < best.PriceMana {
			best = b
			continue
		}
		if b.PriceMana > best.PriceMana {
			continue
		}
		if m.reputation != nil {
			br, cr := m.reputation.GetReputation(b.Executor), m.reputation.GetReputation(best.Executor)
			if br > cr {
				best = b
				continue
			}
			if br < cr {
				continue
			}
		}
		if b.SubmittedAt < best.SubmittedAt {
			best = b
		}
	}
	return best
}

func (m *MeshManager) assign(job *ActualMeshJob, bid MeshJobBid) error {
	if err := m.network.BroadcastMessage(ProtocolMessage{
		Type:       MsgJobAssignmentNotification,
		Assignment: &JobAssignmentNotification{JobID: job.ID, Executor: bid.Executor},
	}); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[job.ID]
	st.Phase = JobAssigned
	st.Executor = bid.Executor
	m.log.WithField("job", string(job.ID)).WithField("executor", bid.Executor.String()).Info("mesh job assigned")
	return nil
}

// awaitReceipt waits for a receipt matching the assignment, verifying the
// executor's signature. Timeouts and verification failures move the job to
// Failed.
func (m *MeshManager) awaitReceipt(ctx context.Context, job *ActualMeshJob, executor DID, sub <-chan ReceivedMessage) (*ExecutionReceipt, error) {
	wait := time.Duration(job.MaxWaitMs) * time.Millisecond
	if wait <= 0 {
		wait = 30 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			m.fail(job.ID, FailTimeout)
			return nil, ctx.Err()
		case <-timer.C:
			m.fail(job.ID, FailTimeout)
			return nil, fmt.Errorf("%w: receipt for %s", ErrTimeout, job.ID)
		case rm := <-sub:
			if rm.Message.Type != MsgSubmitReceipt || rm.Message.Receipt == nil {
				continue
			}
			receipt := rm.Message.Receipt.Receipt
			if receipt.JobID != job.ID {
				continue
			}
			if receipt.Executor != executor {
				m.log.WithField("job", string(job.ID)).Warn("receipt from non-assigned executor ignored")
				continue
			}
			if err := VerifyReceipt(&receipt, m.resolver); err != nil {
				m.fail(job.ID, FailInvalidReceipt)
				return nil, err
			}
			return &receipt, nil
		}
	}
}

// anchorReceipt serializes the receipt into a DAG block authored by the
// executor and stores it.
func (m *MeshManager) anchorReceipt(job *ActualMeshJob, receipt *ExecutionReceipt) error {
	raw, err := receipt.signable()
	if err != nil {
		return err
	}
	block, err := NewDagBlock(raw, nil, uint64(time.Now().Unix()), receipt.Executor, receipt.Signature, m.cfg.AnchorScope)
	if err != nil {
		return err
	}
	if err := m.store.Put(block); err != nil {
		return err
	}
	m.log.WithField("job", string(job.ID)).WithField("anchor", string(block.Cid)).Info("receipt anchored")
	return nil
}

func (m *MeshManager) complete(id Cid, receipt *ExecutionReceipt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[id]
	st.Phase = JobCompleted
	st.Receipt = receipt
	m.log.WithField("job", string(id)).Info("mesh job completed")
}

func (m *MeshManager) fail(id Cid, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return
	}
	if st.Phase == JobCompleted || st.Phase == JobFailed {
		return
	}
	st.Phase = JobFailed
	st.Reason = reason
	m.log.WithField("job", string(id)).WithField("reason", reason).Warn("mesh job failed")
}
