// Package token defines the wire-level data model of the mint: blinded
// messages and signatures exchanged during issuance, proofs presented for
// redemption, and the serialized bearer token format wallets pass around.
package token

// BlindedMessage is an output the wallet asks the mint to sign. B_ is the
// blinded secret point in compressed hex; the blinding factor never travels.
type BlindedMessage struct {
	Amount uint64 `json:"amount"`
	ID     string `json:"id"`
	B      string `json:"B_"`
}

// DLEQ carries the discrete-log-equality proof attached to a signature.
// R is only populated wallet-side when a proof is forwarded to a third
// party that has to re-verify without the original blinding factor.
type DLEQ struct {
	E string `json:"e"`
	S string `json:"s"`
	R string `json:"r,omitempty"`
}

// BlindedSignature is the mint's signature over a blinded message.
type BlindedSignature struct {
	Amount uint64 `json:"amount"`
	ID     string `json:"id"`
	C      string `json:"C_"`
	DLEQ   *DLEQ  `json:"dleq,omitempty"`
}

// Proof is the unblinded bearer token: the secret plus its signature C.
// It is valid when C equals the denomination key applied to
// hashToCurve(secret) and the secret is absent from the spent set.
type Proof struct {
	Amount uint64 `json:"amount"`
	ID     string `json:"id"`
	Secret string `json:"secret"`
	C      string `json:"C"`
	DLEQ   *DLEQ  `json:"dleq,omitempty"`
}

// ProofState reports the ledger's view of one secret.
type ProofState struct {
	Secret    string `json:"secret"`
	Spendable bool   `json:"spendable"`
	Pending   bool   `json:"pending"`
}

// KeysetInfo describes one keyset without exposing any key material.
type KeysetInfo struct {
	ID     string `json:"id"`
	Unit   string `json:"unit"`
	Active bool   `json:"active"`
}

// SumProofs returns the total value of the given proofs.
func SumProofs(proofs []Proof) uint64 {
	var total uint64
	for _, p := range proofs {
		total += p.Amount
	}
	return total
}

// SumMessages returns the total value requested by the given outputs.
func SumMessages(messages []BlindedMessage) uint64 {
	var total uint64
	for _, m := range messages {
		total += m.Amount
	}
	return total
}

// SumSignatures returns the total value of the given signatures.
func SumSignatures(signatures []BlindedSignature) uint64 {
	var total uint64
	for _, s := range signatures {
		total += s.Amount
	}
	return total
}

// HasDuplicateSecrets reports whether two proofs share a secret.
func HasDuplicateSecrets(proofs []Proof) bool {
	seen := make(map[string]struct{}, len(proofs))
	for _, p := range proofs {
		if _, ok := seen[p.Secret]; ok {
			return true
		}
		seen[p.Secret] = struct{}{}
	}
	return false
}

// HasDuplicateMessages reports whether two outputs share a blinded point.
func HasDuplicateMessages(messages []BlindedMessage) bool {
	seen := make(map[string]struct{}, len(messages))
	for _, m := range messages {
		if _, ok := seen[m.B]; ok {
			return true
		}
		seen[m.B] = struct{}{}
	}
	return false
}
