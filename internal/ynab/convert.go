package ynab

import (
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/ynab-sync/ynab-sync/internal/importid"
	"github.com/ynab-sync/ynab-sync/internal/model"
)

// YNAB caps payee_name and memo lengths.
const (
	maxPayeeLen = 200
	maxMemoLen  = 500
)

var milliunits = decimal.NewFromInt(1000)

// BuildBudgetTransactions converts bank transactions into the budgeting
// service's shape for one budget account. The amount sign is preserved:
// expenses stay negative in milliunits. Each transaction is tagged with
// its dedup key as import_id so a repeat run over the same window is a
// no-op at the service.
func BuildBudgetTransactions(txns []model.BankTransaction, budgetAccountID string) []model.BudgetTransaction {
	out := make([]model.BudgetTransaction, 0, len(txns))
	for _, t := range txns {
		payee := t.Payee
		if payee == "" {
			payee = "Unknown"
		}
		out = append(out, model.BudgetTransaction{
			AccountID: budgetAccountID,
			Date:      t.BookingDate.Format("2006-01-02"),
			Amount:    t.Amount.Mul(milliunits).IntPart(),
			PayeeName: truncate(payee, maxPayeeLen),
			Memo:      truncate(t.Memo, maxMemoLen),
			ImportID:  importid.Derive(t),
		})
	}
	return out
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
