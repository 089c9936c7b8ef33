package sync

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ynab-sync/ynab-sync/internal/gocardless"
	"github.com/ynab-sync/ynab-sync/internal/importid"
	"github.com/ynab-sync/ynab-sync/internal/model"
	"github.com/ynab-sync/ynab-sync/internal/ynab"
)

type fakeBank struct {
	txns map[string][]model.BankTransaction
	errs map[string]error
}

func (f *fakeBank) Transactions(_ context.Context, accountID string) ([]model.BankTransaction, error) {
	if err := f.errs[accountID]; err != nil {
		return nil, err
	}
	return f.txns[accountID], nil
}

type fakeBudget struct {
	existing    map[string]map[string]struct{} // budget account -> import ids
	createErr   error
	dupes       []string
	submissions map[string][]model.BudgetTransaction // budget account -> submitted
}

func (f *fakeBudget) ExistingImportIDs(_ context.Context, _, accountID string) (map[string]struct{}, error) {
	ids := f.existing[accountID]
	if ids == nil {
		ids = map[string]struct{}{}
	}
	return ids, nil
}

func (f *fakeBudget) CreateTransactions(_ context.Context, _ string, txns []model.BudgetTransaction) (ynab.CreateResult, error) {
	if f.createErr != nil {
		return ynab.CreateResult{}, f.createErr
	}
	if f.submissions == nil {
		f.submissions = make(map[string][]model.BudgetTransaction)
	}
	dupes := make(map[string]struct{}, len(f.dupes))
	for _, d := range f.dupes {
		dupes[d] = struct{}{}
	}
	var res ynab.CreateResult
	for i, t := range txns {
		f.submissions[t.AccountID] = append(f.submissions[t.AccountID], t)
		if _, ok := dupes[t.ImportID]; ok {
			res.DuplicateImportIDs = append(res.DuplicateImportIDs, t.ImportID)
			continue
		}
		res.CreatedIDs = append(res.CreatedIDs, fmt.Sprintf("y%d", i))
	}
	return res, nil
}

func mkTxn(id, amount string, day int) model.BankTransaction {
	return model.BankTransaction{
		ExternalID:  id,
		BookingDate: time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
		Payee:       "PAYEE " + id,
		Currency:    "GBP",
	}
}

func newEngine(bank BankClient, budget BudgetClient) *Engine {
	return NewEngine(bank, budget, log.New(io.Discard))
}

func TestRun_FiltersExisting(t *testing.T) {
	// 5 fetched, 2 already at the service -> 3 created.
	txns := []model.BankTransaction{
		mkTxn("t1", "-4.00", 1), mkTxn("t2", "-5.00", 2), mkTxn("t3", "-6.00", 3),
		mkTxn("t4", "-7.00", 4), mkTxn("t5", "-8.00", 5),
	}
	bank := &fakeBank{txns: map[string][]model.BankTransaction{"bank-a": txns}}
	budget := &fakeBudget{existing: map[string]map[string]struct{}{
		"ynab-a": {"gc:t1": {}, "gc:t2": {}},
	}}

	results, err := newEngine(bank, budget).Run(context.Background(), Plan{
		BudgetID:       "b1",
		Mappings:       []Mapping{{BankAccountID: "bank-a", BudgetAccountID: "ynab-a"}},
		LinkedAccounts: []string{"bank-a"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, 5, r.Fetched)
	assert.Equal(t, 2, r.Skipped)
	assert.Equal(t, 3, r.Created)
	assert.Equal(t, 0, r.Failed)
	assert.NoError(t, r.Err)
	assert.False(t, r.HardFailed())
}

func TestRun_Idempotent(t *testing.T) {
	txns := []model.BankTransaction{mkTxn("t1", "-4.00", 1), mkTxn("t2", "-5.00", 2)}
	bank := &fakeBank{txns: map[string][]model.BankTransaction{"bank-a": txns}}
	budget := &fakeBudget{existing: map[string]map[string]struct{}{"ynab-a": {}}}

	plan := Plan{
		BudgetID:       "b1",
		Mappings:       []Mapping{{BankAccountID: "bank-a", BudgetAccountID: "ynab-a"}},
		LinkedAccounts: []string{"bank-a"},
	}
	engine := newEngine(bank, budget)

	first, err := engine.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 2, first[0].Created)

	// Second run sees the first run's import ids at the service.
	for _, submitted := range budget.submissions["ynab-a"] {
		budget.existing["ynab-a"][submitted.ImportID] = struct{}{}
	}
	second, err := engine.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 2, second[0].Fetched)
	assert.Equal(t, 2, second[0].Skipped)
	assert.Equal(t, 0, second[0].Created)
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	bank := &fakeBank{
		txns: map[string][]model.BankTransaction{
			"bank-a": {mkTxn("a1", "-1.00", 1)},
			"bank-c": {mkTxn("c1", "-3.00", 3)},
		},
		errs: map[string]error{"bank-b": fmt.Errorf("boom")},
	}
	budget := &fakeBudget{}

	results, err := newEngine(bank, budget).Run(context.Background(), Plan{
		BudgetID: "b1",
		Mappings: []Mapping{
			{BankAccountID: "bank-a", BudgetAccountID: "ynab-a"},
			{BankAccountID: "bank-b", BudgetAccountID: "ynab-b"},
			{BankAccountID: "bank-c", BudgetAccountID: "ynab-c"},
		},
		LinkedAccounts: []string{"bank-a", "bank-b", "bank-c"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 1, results[0].Created)
	assert.True(t, results[1].HardFailed())
	assert.ErrorContains(t, results[1].Err, "boom")
	assert.Equal(t, 1, results[2].Created)
	assert.True(t, AnyHardFailed(results))
}

func TestRun_NoCrossAccountLeakage(t *testing.T) {
	bank := &fakeBank{txns: map[string][]model.BankTransaction{
		"bank-a": {mkTxn("a1", "-1.00", 1)},
		"bank-b": {mkTxn("b1", "-2.00", 2)},
	}}
	budget := &fakeBudget{}

	_, err := newEngine(bank, budget).Run(context.Background(), Plan{
		BudgetID: "b1",
		Mappings: []Mapping{
			{BankAccountID: "bank-a", BudgetAccountID: "ynab-a"},
			{BankAccountID: "bank-b", BudgetAccountID: "ynab-b"},
		},
		LinkedAccounts: []string{"bank-a", "bank-b"},
	})
	require.NoError(t, err)

	require.Len(t, budget.submissions["ynab-a"], 1)
	require.Len(t, budget.submissions["ynab-b"], 1)
	assert.Equal(t, "gc:a1", budget.submissions["ynab-a"][0].ImportID)
	assert.Equal(t, "gc:b1", budget.submissions["ynab-b"][0].ImportID)
}

func TestRun_ZeroAmountIncluded(t *testing.T) {
	bank := &fakeBank{txns: map[string][]model.BankTransaction{
		"bank-a": {mkTxn("t1", "0.00", 1)},
	}}
	budget := &fakeBudget{}

	results, err := newEngine(bank, budget).Run(context.Background(), Plan{
		BudgetID:       "b1",
		Mappings:       []Mapping{{BankAccountID: "bank-a", BudgetAccountID: "ynab-a"}},
		LinkedAccounts: []string{"bank-a"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Created)
	require.Len(t, budget.submissions["ynab-a"], 1)
	assert.Equal(t, int64(0), budget.submissions["ynab-a"][0].Amount)
}

func TestRun_UnmappedLinkedAccountWarnsOnly(t *testing.T) {
	bank := &fakeBank{txns: map[string][]model.BankTransaction{
		"bank-a": {mkTxn("a1", "-1.00", 1)},
	}}
	budget := &fakeBudget{}

	results, err := newEngine(bank, budget).Run(context.Background(), Plan{
		BudgetID:       "b1",
		Mappings:       []Mapping{{BankAccountID: "bank-a", BudgetAccountID: "ynab-a"}},
		LinkedAccounts: []string{"bank-a", "bank-unmapped"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.ErrorIs(t, results[0].Err, ErrMappingMissing)
	assert.Equal(t, "bank-unmapped", results[0].BankAccountID)
	assert.False(t, results[0].HardFailed())

	// The mapped account still syncs.
	assert.Equal(t, 1, results[1].Created)
	assert.False(t, AnyHardFailed(results))
}

func TestRun_MappingNotLinkedWarnsOnly(t *testing.T) {
	bank := &fakeBank{}
	budget := &fakeBudget{}

	results, err := newEngine(bank, budget).Run(context.Background(), Plan{
		BudgetID:       "b1",
		Mappings:       []Mapping{{BankAccountID: "bank-gone", BudgetAccountID: "ynab-a"}},
		LinkedAccounts: []string{"bank-a"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2) // unmapped warning + not-linked warning

	var notLinked *AccountResult
	for i := range results {
		if results[i].BankAccountID == "bank-gone" {
			notLinked = &results[i]
		}
	}
	require.NotNil(t, notLinked)
	assert.ErrorIs(t, notLinked.Err, ErrNotLinked)
	assert.False(t, AnyHardFailed(results))
}

func TestRun_ExpiredConnectionAborts(t *testing.T) {
	bank := &fakeBank{
		errs: map[string]error{"bank-a": gocardless.ErrConnectionExpired},
	}
	budget := &fakeBudget{}

	results, err := newEngine(bank, budget).Run(context.Background(), Plan{
		BudgetID: "b1",
		Mappings: []Mapping{
			{BankAccountID: "bank-a", BudgetAccountID: "ynab-a"},
			{BankAccountID: "bank-b", BudgetAccountID: "ynab-b"},
		},
		LinkedAccounts: []string{"bank-a", "bank-b"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gocardless.ErrConnectionExpired)
	// Aborted before the second mapping.
	assert.Len(t, results, 1)
}

func TestRun_ServiceDuplicatesCountAsSkipped(t *testing.T) {
	txns := []model.BankTransaction{mkTxn("t1", "-1.00", 1), mkTxn("t2", "-2.00", 2)}
	bank := &fakeBank{txns: map[string][]model.BankTransaction{"bank-a": txns}}
	budget := &fakeBudget{dupes: []string{"gc:t2"}}

	results, err := newEngine(bank, budget).Run(context.Background(), Plan{
		BudgetID:       "b1",
		Mappings:       []Mapping{{BankAccountID: "bank-a", BudgetAccountID: "ynab-a"}},
		LinkedAccounts: []string{"bank-a"},
	})
	require.NoError(t, err)

	r := results[0]
	assert.Equal(t, 2, r.Fetched)
	assert.Equal(t, 1, r.Created)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 0, r.Failed)
	assert.False(t, r.HardFailed())
}

func TestRun_SubmitFailureContinues(t *testing.T) {
	bank := &fakeBank{txns: map[string][]model.BankTransaction{
		"bank-a": {mkTxn("a1", "-1.00", 1), mkTxn("a2", "-2.00", 2)},
	}}
	budget := &fakeBudget{createErr: fmt.Errorf("400 bad request")}

	results, err := newEngine(bank, budget).Run(context.Background(), Plan{
		BudgetID:       "b1",
		Mappings:       []Mapping{{BankAccountID: "bank-a", BudgetAccountID: "ynab-a"}},
		LinkedAccounts: []string{"bank-a"},
	})
	require.NoError(t, err)

	r := results[0]
	assert.Equal(t, 2, r.Fetched)
	assert.Equal(t, 2, r.Failed)
	assert.Equal(t, 0, r.Created)
	assert.True(t, r.HardFailed())
}

func TestRun_NoFetchNoCreateCall(t *testing.T) {
	bank := &fakeBank{txns: map[string][]model.BankTransaction{"bank-a": nil}}
	budget := &fakeBudget{}

	results, err := newEngine(bank, budget).Run(context.Background(), Plan{
		BudgetID:       "b1",
		Mappings:       []Mapping{{BankAccountID: "bank-a", BudgetAccountID: "ynab-a"}},
		LinkedAccounts: []string{"bank-a"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, results[0].Fetched)
	assert.Empty(t, budget.submissions)
}

func TestSummarize(t *testing.T) {
	results := []AccountResult{
		{Fetched: 5, Skipped: 2, Created: 3},
		{Fetched: 1, Failed: 1},
	}
	s := Summarize(results)
	assert.Equal(t, Summary{Fetched: 6, Skipped: 2, Created: 3, Failed: 1}, s)
}

func TestDeriveKeyMatchesSubmittedImportID(t *testing.T) {
	// The key used for filtering must be the key submitted, otherwise a
	// second run would not recognize its own imports.
	txn := mkTxn("", "-9.99", 9)
	bank := &fakeBank{txns: map[string][]model.BankTransaction{"bank-a": {txn}}}
	budget := &fakeBudget{}

	_, err := newEngine(bank, budget).Run(context.Background(), Plan{
		BudgetID:       "b1",
		Mappings:       []Mapping{{BankAccountID: "bank-a", BudgetAccountID: "ynab-a"}},
		LinkedAccounts: []string{"bank-a"},
	})
	require.NoError(t, err)

	require.Len(t, budget.submissions["ynab-a"], 1)
	assert.Equal(t, importid.Derive(txn), budget.submissions["ynab-a"][0].ImportID)
}
