package gocardless

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorizationPending means the user has not yet completed the
	// bank's consent flow for a created requisition.
	ErrAuthorizationPending = errors.New("bank authorization pending")

	// ErrConnectionExpired means the bank consent has lapsed and
	// `ynab-sync connect` must be re-run.
	ErrConnectionExpired = errors.New("bank connection expired")
)

// APIError carries a non-2xx response from the bank data API, with the
// provider body surfaced verbatim for diagnosis.
type APIError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gocardless %s returned %d: %s", e.Endpoint, e.Status, e.Body)
}
