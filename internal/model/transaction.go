package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankTransaction is a booked transaction fetched from the bank data
// provider. The value is never mutated after fetch and never persisted
// locally; each run derives it fresh from the remote API.
type BankTransaction struct {
	ExternalID  string // provider transactionId, may be empty
	BookingDate time.Time
	Amount      decimal.Decimal // negative = expense, positive = income
	Payee       string
	Memo        string // unstructured remittance information
	Currency    string // ISO 4217 code
}

// BudgetTransaction is one transaction in the shape the budgeting
// service accepts. Amount is in milliunits (1/1000 of a currency unit),
// sign preserved.
type BudgetTransaction struct {
	AccountID string `json:"account_id"`
	Date      string `json:"date"` // YYYY-MM-DD
	Amount    int64  `json:"amount"`
	PayeeName string `json:"payee_name"`
	Memo      string `json:"memo,omitempty"`
	ImportID  string `json:"import_id"`
}
