package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"icn-network/internal/testutil"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

type meshFixture struct {
	hub      *StubNetworkHub
	resolver *MemoryKeyResolver
	manager  *MeshManager
	store    *MemoryBlockStore
	ledger   *MemoryManaLedger
	creator  *Ed25519Signer
}

func newMeshFixture(t *testing.T) *meshFixture {
	t.Helper()
	resolver := NewMemoryKeyResolver()
	hub := NewStubNetworkHub()
	creator, err := NewEd25519Signer(MustDID("did:icn:creator"))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	resolver.RegisterSigner(creator)

	store := NewMemoryBlockStore()
	ledger := NewMemoryManaLedger(map[DID]uint64{creator.Did(): 1000})
	net := hub.Join("peer-manager", resolver, quietLogger())

	cfg := MeshManagerConfig{BidWindow: 300 * time.Millisecond, MaxBids: 4, QueuePoll: 20 * time.Millisecond, AnchorScope: "receipts"}
	manager := NewMeshManager(cfg, net, store, ledger, NewStaticReputation(nil), resolver, quietLogger())
	return &meshFixture{hub: hub, resolver: resolver, manager: manager, store: store, ledger: ledger, creator: creator}
}

func (f *meshFixture) addExecutor(t *testing.T, did string, margin uint64) (*MeshExecutor, context.CancelFunc) {
	t.Helper()
	signer, err := NewEd25519Signer(MustDID(did))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	f.resolver.RegisterSigner(signer)
	f.ledger.CreateAccount(signer.Did(), 1000)
	net := f.hub.Join(PeerID("peer-"+did), f.resolver, quietLogger())
	cfg := MeshExecutorConfig{CPUCores: 4, MemoryMB: 2048, BidMargin: margin, ExecLimit: time.Second}
	exec := NewMeshExecutor(cfg, signer, net, f.ledger, NewMemoryBlockStore(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go exec.Run(ctx)
	return exec, cancel
}

//-------------------------------------------------------------
// Happy path: announce → bid → assign → receipt → anchor
//-------------------------------------------------------------

func TestMeshJobHappyPath(t *testing.T) {
	f := newMeshFixture(t)
	_, cancel := f.addExecutor(t, "did:icn:executor", 0)
	defer cancel()
	// Give the executor loop a beat to register its subscription.
	time.Sleep(100 * time.Millisecond)

	job, err := NewMeshJob(f.creator.Did(), JobSpec{Kind: "echo", Payload: []byte("hi"), MinCPUCores: 1, MinMemoryMB: 64}, 10, 5000, 1)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := f.manager.QueueJob(job); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if st, _ := f.manager.JobState(job.ID); st.Phase != JobPending {
		t.Fatalf("queued job in phase %s", st.Phase)
	}

	go f.manager.ProcessJob(context.Background(), job)

	testutil.WaitUntil(t, 5*time.Second, "job completion", func() bool {
		st, err := f.manager.JobState(job.ID)
		return err == nil && (st.Phase == JobCompleted || st.Phase == JobFailed)
	})
	st, err := f.manager.JobState(job.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Phase != JobCompleted {
		t.Fatalf("job ended %s (%s)", st.Phase, st.Reason)
	}
	if st.Receipt == nil || st.Receipt.Executor != MustDID("did:icn:executor") {
		t.Fatalf("receipt %+v", st.Receipt)
	}
	if err := VerifyReceipt(st.Receipt, f.resolver); err != nil {
		t.Fatalf("stored receipt does not verify: %v", err)
	}

	// The receipt must be anchored in the DAG under the receipts scope.
	blocks, _ := f.store.ListBlocks()
	found := false
	for _, b := range blocks {
		if b.Scope == "receipts" && b.Author == st.Receipt.Executor {
			found = true
		}
	}
	if !found {
		t.Fatalf("no anchored receipt block among %d blocks", len(blocks))
	}
}

//-------------------------------------------------------------
// Failure paths
//-------------------------------------------------------------

func TestMeshJobNoBids(t *testing.T) {
	f := newMeshFixture(t)
	job, err := NewMeshJob(f.creator.Did(), JobSpec{Kind: "echo"}, 10, 1000, 1)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := f.manager.QueueJob(job); err != nil {
		t.Fatalf("queue: %v", err)
	}
	f.manager.ProcessJob(context.Background(), job)
	st, _ := f.manager.JobState(job.ID)
	if st.Phase != JobFailed || st.Reason != FailNoBids {
		t.Fatalf("expected no-bids failure, got %s (%s)", st.Phase, st.Reason)
	}
}

func TestQueueJobValidation(t *testing.T) {
	f := newMeshFixture(t)
	poor, err := NewMeshJob(MustDID("did:icn:pauper"), JobSpec{}, 10, 1000, 1)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := f.manager.QueueJob(poor); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("unknown creator: %v", err)
	}

	f.ledger.CreateAccount(MustDID("did:icn:pauper"), 1)
	if err := f.manager.QueueJob(poor); !errors.Is(err, ErrInsufficientMana) {
		t.Fatalf("underfunded creator: %v", err)
	}

	rich, err := NewMeshJob(f.creator.Did(), JobSpec{}, 10, 1000, 2)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := f.manager.QueueJob(rich); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := f.manager.QueueJob(rich); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("duplicate queue: %v", err)
	}
}

//-------------------------------------------------------------
// Executor selection policy
//-------------------------------------------------------------

func TestSelectExecutorPolicy(t *testing.T) {
	rep := NewStaticReputation(map[DID]float64{
		MustDID("did:icn:famous"):  900,
		MustDID("did:icn:unknown"): 10,
	})
	m := NewMeshManager(DefaultMeshManagerConfig(), nil, nil, nil, rep, nil, quietLogger())
	job := &ActualMeshJob{ID: "bafyjob"}

	cheap := MeshJobBid{JobID: job.ID, Executor: MustDID("did:icn:cheap"), PriceMana: 3, SubmittedAt: 30}
	pricey := MeshJobBid{JobID: job.ID, Executor: MustDID("did:icn:pricey"), PriceMana: 9, SubmittedAt: 10}
	famous := MeshJobBid{JobID: job.ID, Executor: MustDID("did:icn:famous"), PriceMana: 5, SubmittedAt: 20}
	unknown := MeshJobBid{JobID: job.ID, Executor: MustDID("did:icn:unknown"), PriceMana: 5, SubmittedAt: 5}

	// Lowest price wins outright.
	if got := m.SelectExecutor(job, []MeshJobBid{pricey, famous, cheap}); got.Executor != cheap.Executor {
		t.Fatalf("price selection picked %s", got.Executor)
	}
	// Price tie breaks on reputation.
	if got := m.SelectExecutor(job, []MeshJobBid{unknown, famous}); got.Executor != famous.Executor {
		t.Fatalf("reputation tiebreak picked %s", got.Executor)
	}
	// Full tie breaks on earliest arrival.
	early := MeshJobBid{JobID: job.ID, Executor: MustDID("did:icn:early"), PriceMana: 5, SubmittedAt: 1}
	late := MeshJobBid{JobID: job.ID, Executor: MustDID("did:icn:late"), PriceMana: 5, SubmittedAt: 2}
	if got := m.SelectExecutor(job, []MeshJobBid{late, early}); got.Executor != early.Executor {
		t.Fatalf("arrival tiebreak picked %s", got.Executor)
	}
}

//-------------------------------------------------------------
// Receipt signing
//-------------------------------------------------------------

func TestReceiptSignVerify(t *testing.T) {
	signer, resolver := testSigner(t, "did:icn:exec")
	r := ExecutionReceipt{JobID: "bafyjob", Executor: signer.Did(), ResultCid: "bafyresult", CPUMs: 12, Success: true}
	if err := SignReceipt(&r, signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifyReceipt(&r, resolver); err != nil {
		t.Fatalf("verify: %v", err)
	}

	forged := r
	forged.CPUMs = 99999
	if err := VerifyReceipt(&forged, resolver); !errors.Is(err, ErrSignature) {
		t.Fatalf("forged receipt verified: %v", err)
	}

	other, _ := NewEd25519Signer(MustDID("did:icn:other"))
	wrong := ExecutionReceipt{JobID: "bafyjob", Executor: signer.Did()}
	if err := SignReceipt(&wrong, other); !errors.Is(err, ErrPolicyDenied) {
		t.Fatalf("cross-signing allowed: %v", err)
	}
}
