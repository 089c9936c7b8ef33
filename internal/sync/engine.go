// Package sync holds the core engine: one pass over the configured
// account mappings, pushing only not-yet-imported bank transactions to
// the budgeting service.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/ynab-sync/ynab-sync/internal/gocardless"
	"github.com/ynab-sync/ynab-sync/internal/importid"
	"github.com/ynab-sync/ynab-sync/internal/model"
	"github.com/ynab-sync/ynab-sync/internal/ynab"
)

var (
	// ErrMappingMissing marks a linked bank account with no configured
	// budget account. The account is skipped with a warning.
	ErrMappingMissing = errors.New("no budget account mapped")

	// ErrNotLinked marks a configured mapping whose bank account is not
	// part of the current connection.
	ErrNotLinked = errors.New("bank account not linked in current connection")
)

// BankClient is the slice of the bank data API the engine needs.
type BankClient interface {
	Transactions(ctx context.Context, accountID string) ([]model.BankTransaction, error)
}

// BudgetClient is the slice of the budgeting service the engine needs.
type BudgetClient interface {
	ExistingImportIDs(ctx context.Context, budgetID, accountID string) (map[string]struct{}, error)
	CreateTransactions(ctx context.Context, budgetID string, txns []model.BudgetTransaction) (ynab.CreateResult, error)
}

// Mapping associates one bank account with one budget account.
type Mapping struct {
	BankAccountID   string
	BudgetAccountID string
}

// Plan is everything one run needs, resolved by the caller up front.
type Plan struct {
	BudgetID       string
	Mappings       []Mapping // processed in order
	LinkedAccounts []string  // bank accounts on the current connection
}

// AccountResult reports the counts for one mapping.
type AccountResult struct {
	BankAccountID   string
	BudgetAccountID string
	Fetched         int
	Skipped         int
	Created         int
	Failed          int
	Err             error
}

// HardFailed reports whether this account's fetch or submission failed.
// Skipped-as-unmapped and not-linked accounts are warnings, not failures.
func (r AccountResult) HardFailed() bool {
	if r.Failed > 0 {
		return true
	}
	if r.Err == nil {
		return false
	}
	return !errors.Is(r.Err, ErrMappingMissing) && !errors.Is(r.Err, ErrNotLinked)
}

// Engine runs the sync. Clients are injected so the engine is testable
// with fakes; it holds no ambient state.
type Engine struct {
	bank   BankClient
	budget BudgetClient
	log    *log.Logger
}

// NewEngine creates an Engine.
func NewEngine(bank BankClient, budget BudgetClient, logger *log.Logger) *Engine {
	return &Engine{bank: bank, budget: budget, log: logger}
}

// Run processes every mapping in plan order, isolating per-account
// failures so one bad account never blocks the rest. It returns an
// error only when the whole run must abort, which happens on an
// expired connection since every later fetch would fail the same way.
func (e *Engine) Run(ctx context.Context, plan Plan) ([]AccountResult, error) {
	var results []AccountResult

	linked := make(map[string]struct{}, len(plan.LinkedAccounts))
	mapped := make(map[string]struct{}, len(plan.Mappings))
	for _, id := range plan.LinkedAccounts {
		linked[id] = struct{}{}
	}
	for _, m := range plan.Mappings {
		mapped[m.BankAccountID] = struct{}{}
	}

	// Linked accounts with no mapping are skipped, not fatal.
	for _, id := range plan.LinkedAccounts {
		if _, ok := mapped[id]; !ok {
			e.log.Warn("skipping unmapped bank account, run 'ynab-sync map-accounts'", "bank_account", id)
			results = append(results, AccountResult{BankAccountID: id, Err: ErrMappingMissing})
		}
	}

	for _, m := range plan.Mappings {
		res := AccountResult{BankAccountID: m.BankAccountID, BudgetAccountID: m.BudgetAccountID}

		if len(plan.LinkedAccounts) > 0 {
			if _, ok := linked[m.BankAccountID]; !ok {
				e.log.Warn("mapped bank account not found on current connection", "bank_account", m.BankAccountID)
				res.Err = ErrNotLinked
				results = append(results, res)
				continue
			}
		}

		e.syncAccount(ctx, plan.BudgetID, m, &res)
		results = append(results, res)

		if errors.Is(res.Err, gocardless.ErrConnectionExpired) {
			return results, fmt.Errorf("bank connection expired, run 'ynab-sync connect': %w", res.Err)
		}
	}

	return results, nil
}

func (e *Engine) syncAccount(ctx context.Context, budgetID string, m Mapping, res *AccountResult) {
	txns, err := e.bank.Transactions(ctx, m.BankAccountID)
	if err != nil {
		e.log.Error("fetching bank transactions", "bank_account", m.BankAccountID, "err", err)
		res.Err = fmt.Errorf("fetching transactions: %w", err)
		return
	}
	res.Fetched = len(txns)
	if len(txns) == 0 {
		return
	}

	existing, err := e.budget.ExistingImportIDs(ctx, budgetID, m.BudgetAccountID)
	if err != nil {
		e.log.Error("listing existing import ids", "budget_account", m.BudgetAccountID, "err", err)
		res.Err = fmt.Errorf("listing existing transactions: %w", err)
		return
	}

	fresh := make([]model.BankTransaction, 0, len(txns))
	for _, t := range txns {
		if _, ok := existing[importid.Derive(t)]; ok {
			res.Skipped++
			continue
		}
		fresh = append(fresh, t)
	}
	if len(fresh) == 0 {
		e.log.Debug("nothing new to submit", "bank_account", m.BankAccountID, "fetched", res.Fetched)
		return
	}

	created, err := e.budget.CreateTransactions(ctx, budgetID, ynab.BuildBudgetTransactions(fresh, m.BudgetAccountID))
	if err != nil {
		e.log.Error("submitting transactions", "budget_account", m.BudgetAccountID, "count", len(fresh), "err", err)
		res.Failed = len(fresh)
		res.Err = fmt.Errorf("submitting transactions: %w", err)
		return
	}

	// The service rejects repeats on import_id on its own; anything it
	// reports as duplicate counts as skipped, not failed.
	dupes := len(created.DuplicateImportIDs)
	res.Created = len(created.CreatedIDs)
	res.Skipped += dupes
	if rejected := len(fresh) - res.Created - dupes; rejected > 0 {
		res.Failed = rejected
	}
}

// Summary aggregates per-account results for reporting.
type Summary struct {
	Fetched int
	Skipped int
	Created int
	Failed  int
}

// Summarize totals all account results.
func Summarize(results []AccountResult) Summary {
	var s Summary
	for _, r := range results {
		s.Fetched += r.Fetched
		s.Skipped += r.Skipped
		s.Created += r.Created
		s.Failed += r.Failed
	}
	return s
}

// AnyHardFailed reports whether any account hard-failed; the CLI turns
// this into a non-zero exit code.
func AnyHardFailed(results []AccountResult) bool {
	for _, r := range results {
		if r.HardFailed() {
			return true
		}
	}
	return false
}
