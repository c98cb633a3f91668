// Package wallet implements the client side of the blind-signature protocol:
// generating secrets, blinding them for signing, unblinding the mint's
// signatures into proofs and preparing blank outputs for fee change.
package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/veilmint/veilmint/bdhke"
	"github.com/veilmint/veilmint/token"
)

// BlindingData is the per-output state the wallet keeps between requesting a
// signature and unblinding it. R never leaves the wallet.
type BlindingData struct {
	Secret string
	R      *secp256k1.PrivateKey
}

// NewSecret returns a fresh random secret.
func NewSecret() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// CreateBlindedMessages builds one blinded output per amount for the given
// keyset and returns the blinding data needed to unblind the signatures.
func CreateBlindedMessages(amounts []uint64, keysetID string) ([]token.BlindedMessage, []BlindingData, error) {
	outputs := make([]token.BlindedMessage, 0, len(amounts))
	blinding := make([]BlindingData, 0, len(amounts))

	for _, amount := range amounts {
		secret, err := NewSecret()
		if err != nil {
			return nil, nil, err
		}
		blinded, r, err := bdhke.Blind([]byte(secret))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to blind secret: %w", err)
		}
		outputs = append(outputs, token.BlindedMessage{
			Amount: amount,
			ID:     keysetID,
			B:      bdhke.PointToHex(blinded),
		})
		blinding = append(blinding, BlindingData{Secret: secret, R: r})
	}
	return outputs, blinding, nil
}

// OutputsForAmount decomposes an amount into power-of-two denominations and
// builds one blinded output per part.
func OutputsForAmount(amount uint64, keysetID string) ([]token.BlindedMessage, []BlindingData, error) {
	amounts, err := token.Partition(amount)
	if err != nil {
		return nil, nil, err
	}
	return CreateBlindedMessages(amounts, keysetID)
}

// BlankOutputs prepares change outputs for a melt: enough blanks that any
// overpaid fee up to feeReserve can come back. Blank amounts are
// placeholders, the mint assigns the real values at settlement.
func BlankOutputs(feeReserve uint64, keysetID string) ([]token.BlindedMessage, []BlindingData, error) {
	count := token.NumBlankOutputs(feeReserve)
	if count == 0 {
		return nil, nil, nil
	}
	amounts := make([]uint64, count)
	for i := range amounts {
		amounts[i] = 1
	}
	return CreateBlindedMessages(amounts, keysetID)
}

// ConstructProofs unblinds the mint's signatures into spendable proofs. keys
// holds the mint's denomination public keys in compressed hex, as served by
// the keys endpoints. Signatures carrying a DLEQ proof are checked against
// the mint key; a proof that fails the check is rejected because the mint
// may have signed with a key it never published.
func ConstructProofs(signatures []token.BlindedSignature, blinding []BlindingData, keys map[uint64]string) ([]token.Proof, error) {
	if len(signatures) != len(blinding) {
		return nil, fmt.Errorf("got %d signatures for %d blinded messages", len(signatures), len(blinding))
	}

	proofs := make([]token.Proof, 0, len(signatures))
	for i := range signatures {
		keyHex, ok := keys[signatures[i].Amount]
		if !ok {
			return nil, fmt.Errorf("mint published no key for amount %d", signatures[i].Amount)
		}
		mintKey, err := bdhke.ParsePoint(keyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid mint key for amount %d: %w", signatures[i].Amount, err)
		}
		signed, err := bdhke.ParsePoint(signatures[i].C)
		if err != nil {
			return nil, fmt.Errorf("invalid signature point: %w", err)
		}

		unblinded, err := bdhke.Unblind(signed, blinding[i].R, mintKey)
		if err != nil {
			return nil, fmt.Errorf("failed to unblind signature: %w", err)
		}
		if signatures[i].DLEQ != nil {
			if !bdhke.VerifyProofDLEQ([]byte(blinding[i].Secret), blinding[i].R, unblinded, signatures[i].DLEQ, mintKey) {
				return nil, fmt.Errorf("dleq verification failed for amount %d", signatures[i].Amount)
			}
		}

		proofs = append(proofs, token.Proof{
			Amount: signatures[i].Amount,
			ID:     signatures[i].ID,
			Secret: blinding[i].Secret,
			C:      bdhke.PointToHex(unblinded),
		})
	}
	return proofs, nil
}
