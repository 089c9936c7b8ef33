package ynab

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ynab-sync/ynab-sync/internal/model"
)

func bankTxn(amount string) model.BankTransaction {
	return model.BankTransaction{
		ExternalID:  "t1",
		BookingDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
		Payee:       "John Doe",
		Memo:        "INVOICE 42",
		Currency:    "GBP",
	}
}

func TestBuildBudgetTransactions(t *testing.T) {
	txns := []model.BankTransaction{bankTxn("100.50"), bankTxn("-50.25")}

	got := BuildBudgetTransactions(txns, "acct-y")
	require.Len(t, got, 2)

	assert.Equal(t, "acct-y", got[0].AccountID)
	assert.Equal(t, "2023-01-01", got[0].Date)
	assert.Equal(t, int64(100500), got[0].Amount)
	assert.Equal(t, "John Doe", got[0].PayeeName)
	assert.Equal(t, "INVOICE 42", got[0].Memo)
	assert.Equal(t, "gc:t1", got[0].ImportID)

	// Sign preserved for expenses.
	assert.Equal(t, int64(-50250), got[1].Amount)
}

func TestBuildBudgetTransactions_ZeroAmountKept(t *testing.T) {
	got := BuildBudgetTransactions([]model.BankTransaction{bankTxn("0.00")}, "acct-y")
	require.Len(t, got, 1)
	assert.Equal(t, int64(0), got[0].Amount)
}

func TestBuildBudgetTransactions_UnknownPayee(t *testing.T) {
	txn := bankTxn("-1.00")
	txn.Payee = ""
	got := BuildBudgetTransactions([]model.BankTransaction{txn}, "acct-y")
	require.Len(t, got, 1)
	assert.Equal(t, "Unknown", got[0].PayeeName)
}

func TestBuildBudgetTransactions_Truncation(t *testing.T) {
	txn := bankTxn("-1.00")
	txn.Payee = strings.Repeat("p", 300)
	txn.Memo = strings.Repeat("m", 600)
	got := BuildBudgetTransactions([]model.BankTransaction{txn}, "acct-y")
	require.Len(t, got, 1)
	assert.Len(t, got[0].PayeeName, 200)
	assert.Len(t, got[0].Memo, 500)
}

func TestBuildBudgetTransactions_TruncationKeepsRunesWhole(t *testing.T) {
	txn := bankTxn("-1.00")
	// "é" is two bytes; 199 ASCII bytes put it astride the 200-byte cap.
	txn.Payee = strings.Repeat("p", 199) + "émore"
	txn.Memo = strings.Repeat("m", 499) + "émore"
	got := BuildBudgetTransactions([]model.BankTransaction{txn}, "acct-y")
	require.Len(t, got, 1)

	assert.True(t, utf8.ValidString(got[0].PayeeName))
	assert.LessOrEqual(t, len(got[0].PayeeName), 200)
	assert.Equal(t, strings.Repeat("p", 199), got[0].PayeeName)

	assert.True(t, utf8.ValidString(got[0].Memo))
	assert.LessOrEqual(t, len(got[0].Memo), 500)
	assert.Equal(t, strings.Repeat("m", 499), got[0].Memo)
}

func TestBuildBudgetTransactions_Empty(t *testing.T) {
	got := BuildBudgetTransactions(nil, "acct-y")
	assert.Empty(t, got)
}
