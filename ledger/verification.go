package ledger

import (
	"github.com/veilmint/veilmint/bdhke"
	"github.com/veilmint/veilmint/errors"
	"github.com/veilmint/veilmint/monitoring"
	"github.com/veilmint/veilmint/token"
)

// verifyInputs checks a batch of proofs: denominations, secret criteria,
// uniqueness and the BDHKE signature of every proof. It reads no shared
// mutable state, so batches verify concurrently without coordination.
func (l *Ledger) verifyInputs(proofs []token.Proof) error {
	if len(proofs) == 0 {
		return errors.ErrEmptyInputs
	}

	for i := range proofs {
		if !token.IsValidDenomination(proofs[i].Amount) {
			return errors.NewErrorf(errors.ErrCodeInvalidAmount, "invalid amount: %d", proofs[i].Amount)
		}
	}

	for i := range proofs {
		if proofs[i].Secret == "" {
			return errors.ErrEmptySecret
		}
		if len(proofs[i].Secret) > l.maxSecretLength {
			return errors.NewErrorf(errors.ErrCodeSecretTooLong, "secret too long, max %d characters", l.maxSecretLength)
		}
	}

	if token.HasDuplicateSecrets(proofs) {
		return errors.ErrDuplicateInput
	}

	for i := range proofs {
		ks, ok := l.keysets[proofs[i].ID]
		if !ok {
			monitoring.RecordRejectedRequest(monitoring.RejectedUnknownKeyset)
			return errors.ErrUnknownKeyset
		}

		privKey, err := ks.PrivateKey(proofs[i].Amount)
		if err != nil {
			return err
		}

		c, err := bdhke.ParsePoint(proofs[i].C)
		if err != nil {
			monitoring.RecordRejectedRequest(monitoring.RejectedInvalidPoint)
			return errors.ErrInvalidPoint
		}

		if !bdhke.Verify([]byte(proofs[i].Secret), c, privKey) {
			monitoring.RecordRejectedRequest(monitoring.RejectedInvalidSignature)
			return errors.ErrInvalidSignature
		}
	}

	return nil
}

// verifyOutputs checks a batch of blinded messages before signing: one known
// active keyset, well-formed points, uniqueness, and that none was signed
// before. The amount check is skipped for blank melt-change outputs, whose
// amounts are assigned only after the paid fee is known.
func (l *Ledger) verifyOutputs(outputs []token.BlindedMessage, skipAmountCheck bool) error {
	if len(outputs) == 0 {
		return errors.ErrEmptyOutputs
	}

	for i := range outputs {
		if outputs[i].ID != outputs[0].ID {
			return errors.ErrMixedKeysets
		}
	}

	ks, ok := l.keysets[outputs[0].ID]
	if !ok {
		monitoring.RecordRejectedRequest(monitoring.RejectedUnknownKeyset)
		return errors.ErrUnknownKeyset
	}
	if !ks.Active {
		return errors.ErrInactiveKeyset
	}

	if !skipAmountCheck {
		for i := range outputs {
			if !token.IsValidDenomination(outputs[i].Amount) {
				return errors.NewErrorf(errors.ErrCodeInvalidAmount, "invalid amount: %d", outputs[i].Amount)
			}
			if !ks.HasAmount(outputs[i].Amount) {
				return errors.ErrUnknownDenomination
			}
		}
	}

	for i := range outputs {
		if _, err := bdhke.ParsePoint(outputs[i].B); err != nil {
			monitoring.RecordRejectedRequest(monitoring.RejectedInvalidPoint)
			return errors.ErrInvalidPoint
		}
	}

	if token.HasDuplicateMessages(outputs) {
		return errors.ErrDuplicateOutput
	}

	blindedPoints := make([]string, len(outputs))
	for i := range outputs {
		blindedPoints[i] = outputs[i].B
	}
	issued, err := l.promiseStore.GetBatch(blindedPoints)
	if err != nil {
		return errors.NewErrorf(errors.ErrCodeInternal, "failed to check issued outputs: %v", err)
	}
	if len(issued) > 0 {
		return errors.ErrOutputAlreadySigned
	}

	return nil
}

// verifyBalanced enforces value conservation for a swap: input value must
// equal output value plus input fees. With the default zero fee this is
// strict equality.
func (l *Ledger) verifyBalanced(proofs []token.Proof, outputs []token.BlindedMessage) error {
	inputUnit := l.keysets[proofs[0].ID].Unit
	for i := range proofs {
		if l.keysets[proofs[i].ID].Unit != inputUnit {
			return errors.NewError(errors.ErrCodeUnsupportedUnit, "inputs have different units")
		}
	}
	if l.keysets[outputs[0].ID].Unit != inputUnit {
		return errors.NewError(errors.ErrCodeUnsupportedUnit, "input and output keysets have different units")
	}

	sumInputs := token.SumProofs(proofs)
	sumOutputs := token.SumMessages(outputs)
	fees := l.feesForProofs(proofs)
	if sumOutputs+fees != sumInputs {
		monitoring.RecordRejectedRequest(monitoring.RejectedAmountMismatch)
		return errors.NewErrorf(errors.ErrCodeAmountMismatch,
			"inputs (%d) minus fees (%d) do not equal outputs (%d)", sumInputs, fees, sumOutputs)
	}
	return nil
}

// feesForProofs sums the per-proof input fee in parts per thousand and
// rounds the total up to whole units. Callers verify keysets first.
func (l *Ledger) feesForProofs(proofs []token.Proof) uint64 {
	var ppk uint64
	for i := range proofs {
		if ks, ok := l.keysets[proofs[i].ID]; ok {
			ppk += ks.InputFeePPK
		}
	}
	return (ppk + 999) / 1000
}
