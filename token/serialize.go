package token

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/veilmint/veilmint/jsonx"
)

const serializedPrefix = "cashuA"

// Entry groups the proofs issued by one mint inside a serialized token.
type Entry struct {
	Mint   string  `json:"mint"`
	Proofs []Proof `json:"proofs"`
}

// Token is the wallet-side bearer format: proofs grouped per mint plus an
// optional unit and memo, serialized as prefix + base64url(JSON).
type Token struct {
	Token []Entry `json:"token"`
	Unit  string  `json:"unit,omitempty"`
	Memo  string  `json:"memo,omitempty"`
}

// TotalAmount returns the value carried across all entries.
func (t *Token) TotalAmount() uint64 {
	var total uint64
	for _, entry := range t.Token {
		total += SumProofs(entry.Proofs)
	}
	return total
}

// Serialize encodes the token into its transferable string form.
func (t *Token) Serialize() (string, error) {
	payload, err := jsonx.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to serialize token: %w", err)
	}
	return serializedPrefix + base64.URLEncoding.EncodeToString(payload), nil
}

// Deserialize parses a serialized token string. Both padded and unpadded
// base64 are accepted since wallets disagree on which to emit.
func Deserialize(s string) (*Token, error) {
	if !strings.HasPrefix(s, serializedPrefix) {
		return nil, fmt.Errorf("invalid token: prefix %q missing", serializedPrefix)
	}
	encoded := strings.TrimPrefix(s, serializedPrefix)

	payload, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		payload, err = base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid token encoding: %w", err)
		}
	}

	var t Token
	if err := jsonx.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("invalid token payload: %w", err)
	}
	return &t, nil
}
