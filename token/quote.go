package token

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// QuoteState tracks a quote through its lifecycle. Mint quotes move
// unpaid -> paid -> issued; melt quotes move unpaid -> pending -> paid.
type QuoteState string

const (
	QuoteStateUnpaid  QuoteState = "unpaid"
	QuoteStatePaid    QuoteState = "paid"
	QuoteStateIssued  QuoteState = "issued"
	QuoteStatePending QuoteState = "pending"
)

// MintQuote gates issuance on an incoming payment: the wallet pays Request,
// the mint signs outputs worth Amount once the payment is confirmed.
type MintQuote struct {
	ID         string     `json:"id"`
	Request    string     `json:"request"`
	CheckingID string     `json:"checking_id"`
	Amount     uint64     `json:"amount"`
	Unit       string     `json:"unit"`
	State      QuoteState `json:"state"`
	CreatedAt  int64      `json:"created_at"`
	ExpiresAt  int64      `json:"expires_at"`
}

// MeltQuote gates an outgoing payment on received proofs: the wallet hands
// over Amount plus FeeReserve in proofs, the mint pays Request.
// InputSecrets links a pending quote to its reserved proofs so a restart can
// resolve the payment; it is cleared once the quote settles.
type MeltQuote struct {
	ID           string     `json:"id"`
	Request      string     `json:"request"`
	CheckingID   string     `json:"checking_id"`
	Amount       uint64     `json:"amount"`
	FeeReserve   uint64     `json:"fee_reserve"`
	Unit         string     `json:"unit"`
	State        QuoteState `json:"state"`
	FeePaid      uint64     `json:"fee_paid,omitempty"`
	Preimage     string     `json:"preimage,omitempty"`
	InputSecrets []string   `json:"input_secrets,omitempty"`
	CreatedAt    int64      `json:"created_at"`
	ExpiresAt    int64      `json:"expires_at"`
}

// Expired reports whether the quote's expiry has passed at the given unix
// time. Quotes without an expiry never expire.
func (q *MintQuote) Expired(now int64) bool {
	return q.ExpiresAt != 0 && now > q.ExpiresAt
}

// Expired reports whether the quote's expiry has passed at the given unix time.
func (q *MeltQuote) Expired(now int64) bool {
	return q.ExpiresAt != 0 && now > q.ExpiresAt
}

// NewQuoteID returns a fresh unpredictable quote identifier.
func NewQuoteID() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate quote id: %w", err)
	}
	sum := sha256.Sum256(buf[:])
	return base58.Encode(sum[:]), nil
}
