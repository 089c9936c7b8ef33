// Package ynab wraps the YNAB v1 API surface the sync needs: listing
// import identifiers already present for an account and bulk-creating
// transactions.
package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ynab-sync/ynab-sync/internal/model"
)

const (
	defaultBaseURL = "https://api.ynab.com/v1"
	defaultTimeout = 30 * time.Second
)

// APIError carries a non-2xx response from the budgeting service.
type APIError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ynab %s returned %d: %s", e.Endpoint, e.Status, e.Body)
}

// CreateResult reports the outcome of a bulk create.
type CreateResult struct {
	CreatedIDs         []string
	DuplicateImportIDs []string
}

// Client talks to the budgeting service.
type Client struct {
	// BaseURL may be overridden in tests.
	BaseURL string

	httpClient *http.Client
	apiKey     string
}

// NewClient creates a client from a personal access token.
func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiKey:     apiKey,
	}
}

// ExistingImportIDs returns the set of import identifiers already
// present on one budget account. Transactions created by hand carry no
// import_id and are skipped.
func (c *Client) ExistingImportIDs(ctx context.Context, budgetID, accountID string) (map[string]struct{}, error) {
	endpoint := fmt.Sprintf("/budgets/%s/accounts/%s/transactions", budgetID, accountID)
	var resp struct {
		Data struct {
			Transactions []struct {
				ImportID *string `json:"import_id"`
			} `json:"transactions"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	ids := make(map[string]struct{}, len(resp.Data.Transactions))
	for _, t := range resp.Data.Transactions {
		if t.ImportID != nil && *t.ImportID != "" {
			ids[*t.ImportID] = struct{}{}
		}
	}
	return ids, nil
}

// CreateTransactions bulk-creates transactions on a budget. The service
// is itself idempotent on import_id; duplicates it rejects come back in
// DuplicateImportIDs rather than as an error.
func (c *Client) CreateTransactions(ctx context.Context, budgetID string, txns []model.BudgetTransaction) (CreateResult, error) {
	endpoint := fmt.Sprintf("/budgets/%s/transactions", budgetID)
	payload := map[string]any{"transactions": txns}
	var resp struct {
		Data struct {
			TransactionIDs     []string `json:"transaction_ids"`
			DuplicateImportIDs []string `json:"duplicate_import_ids"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{
		CreatedIDs:         resp.Data.TransactionIDs,
		DuplicateImportIDs: resp.Data.DuplicateImportIDs,
	}, nil
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
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

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
