package core

import (
	"errors"
	"testing"
)

func disputeFixture(t *testing.T, balances map[DID]uint64) (*EconomicDisputeResolver, *MemoryManaLedger) {
	t.Helper()
	ledger := NewMemoryManaLedger(balances)
	cfg := DefaultEconomicDisputeConfig()
	r := NewEconomicDisputeResolver(cfg, ledger, MustDID("did:icn:detector"), NewStaticReputation(nil), quietLogger())
	return r, ledger
}

//-------------------------------------------------------------
// Filing validation
//-------------------------------------------------------------

func TestFileDisputeValidation(t *testing.T) {
	r, _ := disputeFixture(t, nil)
	filer := MustDID("did:icn:filer")
	party := MustDID("did:icn:party")

	cases := []struct {
		name string
		d    EconomicDispute
	}{
		{"below minimum", EconomicDispute{Filer: filer, Parties: []DID{party}, Amount: 1, Evidence: []string{"e"}}},
		{"no parties", EconomicDispute{Filer: filer, Amount: 50, Evidence: []string{"e"}}},
		{"no evidence", EconomicDispute{Filer: filer, Parties: []DID{party}, Amount: 50}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := r.FileDispute(tc.d); err == nil {
				t.Fatalf("invalid dispute accepted")
			}
		})
	}
}

func TestFileDisputePerAccountCap(t *testing.T) {
	r, _ := disputeFixture(t, nil)
	r.config.MaxDisputesPerAccount = 2
	r.config.AutoResolutionThreshold = SeverityLow // keep disputes open
	filer := MustDID("did:icn:filer")
	d := EconomicDispute{
		Type:     MarketplaceDispute,
		Filer:    filer,
		Parties:  []DID{MustDID("did:icn:party")},
		Amount:   100,
		Evidence: []string{"overcharged"},
		Severity: SeverityHigh,
	}
	for i := 0; i < 2; i++ {
		if _, err := r.FileDispute(d); err != nil {
			t.Fatalf("file %d: %v", i, err)
		}
	}
	if _, err := r.FileDispute(d); !errors.Is(err, ErrPolicyDenied) {
		t.Fatalf("cap ignored: %v", err)
	}
}

//-------------------------------------------------------------
// Detection patterns
//-------------------------------------------------------------

func TestDetectDoubleSpend(t *testing.T) {
	spender := MustDID("did:icn:spender")
	r, _ := disputeFixture(t, map[DID]uint64{spender: 50})
	r.config.AutoResolutionThreshold = SeverityCritical
	txs := []LedgerTransaction{
		{ID: "tx1", Account: spender, Amount: -40, Timestamp: 100},
		{ID: "tx2", Account: spender, Amount: -40, Timestamp: 100},
	}
	filed, err := r.DetectDisputes(txs)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(filed) == 0 {
		t.Fatalf("double spend undetected")
	}
	// Auto-resolution reverses clear double spends into history.
	hist := r.ResolutionHistory()
	found := false
	for _, d := range hist {
		if d.Type == DoubleSpending && d.Status.Resolution != nil && d.Status.Resolution.Kind == ResolutionReverseTransactions {
			found = true
			if len(d.Status.Resolution.Transactions) != 2 {
				t.Fatalf("reversal cites %v", d.Status.Resolution.Transactions)
			}
		}
	}
	if !found {
		t.Fatalf("double spend not auto-resolved: %+v", hist)
	}
}

func TestDetectBalanceAnomaly(t *testing.T) {
	drained := MustDID("did:icn:drained")
	r, _ := disputeFixture(t, map[DID]uint64{drained: 10})
	r.config.AutoResolutionThreshold = SeverityLow // keep it open for inspection
	txs := []LedgerTransaction{
		{ID: "t1", Account: drained, Amount: -200, Timestamp: 1},
	}
	filed, err := r.DetectDisputes(txs)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(filed) != 1 {
		t.Fatalf("filed %v", filed)
	}
	d, err := r.GetDispute(filed[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Type != ManaDispute || d.Severity != SeverityHigh {
		t.Fatalf("dispute %+v", d)
	}
}

func TestDetectPricingAnomaly(t *testing.T) {
	r, _ := disputeFixture(t, nil)
	r.config.AutoResolutionThreshold = SeverityLow
	normal := MustDID("did:icn:normal")
	whale := MustDID("did:icn:whale")
	var txs []LedgerTransaction
	for i := 0; i < 20; i++ {
		txs = append(txs, LedgerTransaction{ID: string(rune('a' + i)), Account: normal, Amount: 10, Timestamp: uint64(i)})
	}
	txs = append(txs, LedgerTransaction{ID: "outlier", Account: whale, Amount: 100000, Timestamp: 99})
	filed, err := r.DetectDisputes(txs)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	foundPricing := false
	for _, id := range filed {
		if d, err := r.GetDispute(id); err == nil && d.Type == PricingDispute {
			foundPricing = true
			if len(d.TransactionIDs) != 1 || d.TransactionIDs[0] != "outlier" {
				t.Fatalf("pricing dispute cites %v", d.TransactionIDs)
			}
		}
	}
	if !foundPricing {
		t.Fatalf("pricing outlier undetected (filed %v)", filed)
	}
}

//-------------------------------------------------------------
// Lifecycle and resolution application
//-------------------------------------------------------------

func TestDisputeLifecycleAndResolution(t *testing.T) {
	victim := MustDID("did:icn:victim")
	r, ledger := disputeFixture(t, map[DID]uint64{victim: 0})
	r.config.AutoResolutionThreshold = SeverityLow
	authority := MustDID("did:icn:authority")
	r.AddEconomicAuthority(authority)

	id, err := r.FileDispute(EconomicDispute{
		Type:     MarketplaceDispute,
		Filer:    victim,
		Parties:  []DID{victim},
		Amount:   100,
		Evidence: []string{"goods not delivered"},
		Severity: SeverityHigh,
	})
	if err != nil {
		t.Fatalf("file: %v", err)
	}

	if err := r.StartInvestigation(id); err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if err := r.StartInvestigation(id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double transition: %v", err)
	}

	stranger := MustDID("did:icn:stranger")
	res := EconomicResolution{Kind: ResolutionCompensation, Recipient: victim, CreditAmount: 60}
	if err := r.ResolveDispute(id, stranger, res); !errors.Is(err, ErrPolicyDenied) {
		t.Fatalf("stranger resolved: %v", err)
	}
	if err := r.ResolveDispute(id, authority, res); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if bal, _ := ledger.Balance(victim); bal != 60 {
		t.Fatalf("compensation not applied, balance %d", bal)
	}
	if len(r.ActiveDisputes()) != 0 {
		t.Fatalf("dispute still active")
	}
}

func TestDisputeAdjustBalances(t *testing.T) {
	a := MustDID("did:icn:a")
	b := MustDID("did:icn:b")
	r, ledger := disputeFixture(t, map[DID]uint64{a: 100, b: 10})
	r.config.AutoResolutionThreshold = SeverityLow
	authority := MustDID("did:icn:authority")
	r.AddEconomicAuthority(authority)

	id, err := r.FileDispute(EconomicDispute{
		Type:     ManaDispute,
		Filer:    b,
		Parties:  []DID{a, b},
		Amount:   30,
		Evidence: []string{"mispriced job"},
		Severity: SeverityHigh,
	})
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	res := EconomicResolution{Kind: ResolutionAdjustBalances, Adjustments: []BalanceAdjustment{
		{Account: a, Delta: -30},
		{Account: b, Delta: 30},
	}}
	if err := r.ResolveDispute(id, authority, res); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if bal, _ := ledger.Balance(a); bal != 70 {
		t.Fatalf("debit not applied: %d", bal)
	}
	if bal, _ := ledger.Balance(b); bal != 40 {
		t.Fatalf("credit not applied: %d", bal)
	}
}

func TestDisputePeriodicTimeouts(t *testing.T) {
	r, _ := disputeFixture(t, nil)
	r.config.AutoResolutionThreshold = SeverityLow
	id, err := r.FileDispute(EconomicDispute{
		Type:     MutualCreditDispute,
		Filer:    MustDID("did:icn:filer"),
		Parties:  []DID{MustDID("did:icn:party")},
		Amount:   100,
		Evidence: []string{"stale credit line"},
		Severity: SeverityHigh,
	})
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if err := r.StartInvestigation(id); err != nil {
		t.Fatalf("investigate: %v", err)
	}
	// Jump the clock past the investigation deadline.
	r.now = func() uint64 { return 1 << 40 }
	touched := r.ProcessPeriodicTasks()
	if len(touched) != 1 || touched[0] != id {
		t.Fatalf("periodic pass touched %v", touched)
	}
	hist := r.ResolutionHistory()
	if len(hist) != 1 || hist[0].Status.Phase != DisputeEscalatedToGovernance {
		t.Fatalf("expected escalation, got %+v", hist)
	}
}
