// Package gocardless wraps the GoCardless Bank Account Data API v2:
// access tokens, institution discovery, requisition (bank connection)
// setup, and transaction listing for linked accounts.
package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ynab-sync/ynab-sync/internal/model"
)

const (
	defaultBaseURL = "https://bankaccountdata.gocardless.com/api/v2"
	defaultTimeout = 30 * time.Second

	bookingDateFormat = "2006-01-02"
)

// AuthStatus is the observable state of a requisition.
type AuthStatus string

const (
	StatusAuthorized AuthStatus = "authorized"
	StatusPending    AuthStatus = "pending"
	StatusExpired    AuthStatus = "expired"
)

// Institution describes one bank available at the provider.
type Institution struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	BIC                  string `json:"bic"`
	TransactionTotalDays string `json:"transaction_total_days"`
}

// Authorization is the result of beginning the consent flow: an opaque
// requisition ID plus the URL the user must open to approve access.
type Authorization struct {
	ID   string
	Link string
}

// RequisitionState is the polled view of a requisition.
type RequisitionState struct {
	Status   AuthStatus
	Accounts []string // linked bank account IDs, once authorized
}

// AccountDetails is the subset of account metadata shown during mapping.
type AccountDetails struct {
	Name     string
	IBAN     string
	Currency string
}

// Client talks to the bank data API. Not safe for concurrent use; the
// tool is single-threaded by design.
type Client struct {
	// BaseURL may be overridden in tests.
	BaseURL string

	httpClient  *http.Client
	secretID    string
	secretKey   string
	accessToken string
}

// NewClient creates a client from the secret credentials. The access
// token is fetched lazily before the first authenticated call.
func NewClient(secretID, secretKey string) *Client {
	return &Client{
		BaseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		secretID:   secretID,
		secretKey:  secretKey,
	}
}

// Institutions lists banks available for a two-letter country code.
func (c *Client) Institutions(ctx context.Context, country string) ([]Institution, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}
	endpoint := "/institutions/?" + url.Values{"country": {country}}.Encode()
	var insts []Institution
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &insts); err != nil {
		return nil, err
	}
	return insts, nil
}

// CreateAgreement creates an end-user agreement with a custom history
// window. historyDays <= 0 uses the provider default.
func (c *Client) CreateAgreement(ctx context.Context, institutionID string, historyDays int) (string, error) {
	if err := c.ensureToken(ctx); err != nil {
		return "", err
	}
	payload := map[string]any{"institution_id": institutionID}
	if historyDays > 0 {
		payload["max_historical_days"] = historyDays
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/agreements/enduser/", payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// BeginAuthorization creates a requisition and returns its ID plus the
// consent URL the user must open. agreementID may be empty.
func (c *Client) BeginAuthorization(ctx context.Context, institutionID, redirectURL, agreementID string) (Authorization, error) {
	if err := c.ensureToken(ctx); err != nil {
		return Authorization{}, err
	}
	payload := map[string]any{
		"redirect":       redirectURL,
		"institution_id": institutionID,
		"reference":      uuid.NewString(),
	}
	if agreementID != "" {
		payload["agreement"] = agreementID
	}
	var resp struct {
		ID   string `json:"id"`
		Link string `json:"link"`
	}
	if err := c.do(ctx, http.MethodPost, "/requisitions/", payload, &resp); err != nil {
		return Authorization{}, err
	}
	return Authorization{ID: resp.ID, Link: resp.Link}, nil
}

// PollAuthorization fetches the current state of a requisition. The
// provider statuses collapse to three: LN is authorized, EX and SU are
// expired, everything else is still pending user action.
func (c *Client) PollAuthorization(ctx context.Context, requisitionID string) (RequisitionState, error) {
	if err := c.ensureToken(ctx); err != nil {
		return RequisitionState{}, err
	}
	var resp struct {
		Status   string   `json:"status"`
		Accounts []string `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/requisitions/"+requisitionID+"/", nil, &resp); err != nil {
		return RequisitionState{}, err
	}

	state := RequisitionState{Accounts: resp.Accounts}
	switch resp.Status {
	case "LN":
		state.Status = StatusAuthorized
	case "EX", "SU":
		state.Status = StatusExpired
	default:
		state.Status = StatusPending
	}
	return state, nil
}

// AccountDetails fetches display metadata for a linked bank account.
func (c *Client) AccountDetails(ctx context.Context, accountID string) (AccountDetails, error) {
	if err := c.ensureToken(ctx); err != nil {
		return AccountDetails{}, err
	}
	var resp struct {
		Account struct {
			Name     string `json:"name"`
			IBAN     string `json:"iban"`
			Currency string `json:"currency"`
		} `json:"account"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts/"+accountID+"/details/", nil, &resp); err != nil {
		return AccountDetails{}, err
	}
	return AccountDetails{
		Name:     resp.Account.Name,
		IBAN:     resp.Account.IBAN,
		Currency: resp.Account.Currency,
	}, nil
}

// bookedTransaction mirrors the provider's booked-transaction shape.
type bookedTransaction struct {
	TransactionID     string `json:"transactionId"`
	BookingDate       string `json:"bookingDate"`
	TransactionAmount struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"transactionAmount"`
	DebtorName                        string `json:"debtorName"`
	CreditorName                      string `json:"creditorName"`
	RemittanceInformationUnstructured string `json:"remittanceInformationUnstructured"`
}

// Transactions fetches booked transactions for a linked account. The
// window is whatever the provider retains (commonly 90 days). A 401 or
// 403 here means consent lapsed and is reported as ErrConnectionExpired.
func (c *Client) Transactions(ctx context.Context, accountID string) ([]model.BankTransaction, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}
	var resp struct {
		Transactions struct {
			Booked []bookedTransaction `json:"booked"`
		} `json:"transactions"`
	}
	endpoint := "/accounts/" + accountID + "/transactions/"
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %v", ErrConnectionExpired, err)
		}
		return nil, err
	}

	txns := make([]model.BankTransaction, 0, len(resp.Transactions.Booked))
	for i, b := range resp.Transactions.Booked {
		txn, err := parseBooked(b)
		if err != nil {
			return nil, fmt.Errorf("account %s transaction %d: %w", accountID, i, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseBooked(b bookedTransaction) (model.BankTransaction, error) {
	date, err := time.Parse(bookingDateFormat, b.BookingDate)
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("parsing booking date %q: %w", b.BookingDate, err)
	}
	amount, err := decimal.NewFromString(b.TransactionAmount.Amount)
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("parsing amount %q: %w", b.TransactionAmount.Amount, err)
	}

	payee := b.DebtorName
	if payee == "" {
		payee = b.CreditorName
	}
	if payee == "" {
		payee = b.RemittanceInformationUnstructured
	}

	return model.BankTransaction{
		ExternalID:  b.TransactionID,
		BookingDate: date,
		Amount:      amount,
		Payee:       payee,
		Memo:        b.RemittanceInformationUnstructured,
		Currency:    b.TransactionAmount.Currency,
	}, nil
}

// ensureToken obtains an access token once per process.
func (c *Client) ensureToken(ctx context.Context) error {
	if c.accessToken != "" {
		return nil
	}
	payload := map[string]string{
		"secret_id":  c.secretID,
		"secret_key": c.secretKey,
	}
	var resp struct {
		Access string `json:"access"`
	}
	if err := c.do(ctx, http.MethodPost, "/token/new/", payload, &resp); err != nil {
		return fmt.Errorf("obtaining access token: %w", err)
	}
	c.accessToken = resp.Access
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Endpoint: endpoint, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", endpoint, err)
		}
	}
	return nil
}
