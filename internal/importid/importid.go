// Package importid derives the stable dedup key attached to each
// submitted transaction as its import identifier.
package importid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ynab-sync/ynab-sync/internal/model"
)

// maxLen is the budgeting service's import_id length limit.
const maxLen = 36

const (
	externalPrefix     = "gc:"
	externalHashPrefix = "gc:e:"
	compositePrefix    = "gc:h:"
	hashHexLen         = 16
)

// Derive returns the dedup key for a bank transaction. When the provider
// supplies a stable external ID the key is "gc:<id>", or "gc:e:<hash>"
// when the ID would not fit the length limit, so distinct long IDs never
// collapse onto one key. Without an external ID it falls back to a hash
// of (booking date, amount, payee); two genuinely distinct transactions
// sharing all three collapse to one key, which is accepted for providers
// that omit transaction IDs.
func Derive(t model.BankTransaction) string {
	if id := strings.TrimSpace(t.ExternalID); id != "" {
		key := externalPrefix + id
		if len(key) <= maxLen {
			return key
		}
		return externalHashPrefix + shortHash(id)
	}
	input := fmt.Sprintf("%s|%s|%s",
		t.BookingDate.Format("2006-01-02"),
		t.Amount.String(),
		strings.TrimSpace(t.Payee),
	)
	return compositePrefix + shortHash(input)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashHexLen]
}
