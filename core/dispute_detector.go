package core

// dispute_detector.go – pattern detection over recent ledger transactions:
// double-spends, balance anomalies and pricing outliers. Detection runs
// periodically and files disputes on the resolver with the detector as
// filer.

import (
	"fmt"
	"math"
	"sort"
)

// DetectDisputes scans transactions against current ledger balances and
// files one dispute per detected pattern. The ids of filed disputes are
// returned.
func (r *EconomicDisputeResolver) DetectDisputes(txs []LedgerTransaction) ([]string, error) {
	if !r.config.AutoDetection {
		return nil, nil
	}
	var filed []string
	filed = append(filed, r.detectDoubleSpends(txs)...)
	filed = append(filed, r.detectBalanceAnomalies(txs)...)
	filed = append(filed, r.detectPricingAnomalies(txs)...)
	return filed, nil
}

type spendGroup struct {
	account DID
	ts      uint64
	txs     []LedgerTransaction
}

// detectDoubleSpends groups debits by (account, timestamp); a group whose
// combined debit exceeds the current balance indicates the same mana was
// spent more than once.
func (r *EconomicDisputeResolver) detectDoubleSpends(txs []LedgerTransaction) []string {
	groups := make(map[string]*spendGroup)
	for _, tx := range txs {
		if tx.Amount >= 0 {
			continue
		}
		key := fmt.Sprintf("%s@%d", tx.Account, tx.Timestamp)
		g, ok := groups[key]
		if !ok {
			g = &spendGroup{account: tx.Account, ts: tx.Timestamp}
			groups[key] = g
		}
		g.txs = append(g.txs, tx)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var filed []string
	for _, k := range keys {
		g := groups[k]
		if len(g.txs) < 2 {
			continue
		}
		var debitSum uint64
		var ids []string
		for _, tx := range g.txs {
			debitSum += uint64(-tx.Amount)
			ids = append(ids, tx.ID)
		}
		balance, err := r.ledger.Balance(g.account)
		if err != nil {
			continue
		}
		if debitSum <= balance {
			continue
		}
		dispute := EconomicDispute{
			Type:           DoubleSpending,
			Filer:          r.detectorIdentity,
			Parties:        []DID{g.account},
			Amount:         debitSum,
			Evidence:       []string{fmt.Sprintf("concurrent debits of %d against balance %d at t=%d", debitSum, balance, g.ts)},
			TransactionIDs: ids,
			Severity:       SeverityCritical,
		}
		if id, err := r.FileDispute(dispute); err == nil {
			filed = append(filed, id)
		}
	}
	return filed
}

// detectBalanceAnomalies applies the per-account drain heuristics.
func (r *EconomicDisputeResolver) detectBalanceAnomalies(txs []LedgerTransaction) []string {
	type accountFlow struct {
		debits uint64
		net    int64
	}
	flows := make(map[DID]*accountFlow)
	for _, tx := range txs {
		f, ok := flows[tx.Account]
		if !ok {
			f = &accountFlow{}
			flows[tx.Account] = f
		}
		if tx.Amount < 0 {
			f.debits += uint64(-tx.Amount)
		}
		f.net += tx.Amount
	}

	accounts := make([]DID, 0, len(flows))
	for a := range flows {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].String() < accounts[j].String() })

	minAmount := r.config.MinimumDisputeAmount
	var filed []string
	for _, account := range accounts {
		f := flows[account]
		balance, err := r.ledger.Balance(account)
		if err != nil {
			continue
		}
		var severity DisputeSeverity
		var evidence string
		switch {
		case f.debits > balance+10*minAmount:
			severity = SeverityHigh
			evidence = fmt.Sprintf("cumulative debits %d exceed balance %d by more than %d", f.debits, balance, 10*minAmount)
		case balance == 0 && f.net > 0:
			severity = SeverityMedium
			evidence = fmt.Sprintf("zero balance despite positive net inflow %d", f.net)
		case f.net < 0 && balance > 0 && uint64(-f.net) > 2*balance:
			severity = SeverityHigh
			evidence = fmt.Sprintf("net outflow %d exceeds twice the balance %d", -f.net, balance)
		default:
			continue
		}
		dispute := EconomicDispute{
			Type:     ManaDispute,
			Filer:    r.detectorIdentity,
			Parties:  []DID{account},
			Amount:   f.debits + minAmount,
			Evidence: []string{evidence},
			Severity: severity,
		}
		if id, err := r.FileDispute(dispute); err == nil {
			filed = append(filed, id)
		}
	}
	return filed
}

// detectPricingAnomalies flags transactions whose amount is a strong
// statistical outlier: |z| > 3 and magnitude above five times the minimum
// dispute amount.
func (r *EconomicDisputeResolver) detectPricingAnomalies(txs []LedgerTransaction) []string {
	if len(txs) < 2 {
		return nil
	}
	mean := 0.0
	for _, tx := range txs {
		mean += float64(tx.Amount)
	}
	mean /= float64(len(txs))
	variance := 0.0
	for _, tx := range txs {
		d := float64(tx.Amount) - mean
		variance += d * d
	}
	variance /= float64(len(txs))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return nil
	}

	floor := float64(5 * r.config.MinimumDisputeAmount)
	var filed []string
	for _, tx := range txs {
		z := (float64(tx.Amount) - mean) / stddev
		if math.Abs(z) <= 3 || math.Abs(float64(tx.Amount)) <= floor {
			continue
		}
		amount := tx.Amount
		if amount < 0 {
			amount = -amount
		}
		dispute := EconomicDispute{
			Type:           PricingDispute,
			Filer:          r.detectorIdentity,
			Parties:        []DID{tx.Account},
			Amount:         uint64(amount),
			Evidence:       []string{fmt.Sprintf("transaction %s amount %d deviates %.1f sigma from mean %.1f", tx.ID, tx.Amount, z, mean)},
			TransactionIDs: []string{tx.ID},
			Severity:       SeverityMedium,
		}
		if id, err := r.FileDispute(dispute); err == nil {
			filed = append(filed, id)
		}
	}
	return filed
}
