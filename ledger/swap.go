package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/veilmint/veilmint/bdhke"
	"github.com/veilmint/veilmint/errors"
	"github.com/veilmint/veilmint/logx"
	"github.com/veilmint/veilmint/monitoring"
	"github.com/veilmint/veilmint/store"
	"github.com/veilmint/veilmint/token"
)

// RequestSignatures signs a batch of blinded messages with the active
// keyset. This is raw issuance: callers are responsible for gating it on a
// confirmed payment, which is what MintTokens does.
func (l *Ledger) RequestSignatures(outputs []token.BlindedMessage) ([]token.BlindedSignature, error) {
	if err := l.verifyOutputs(outputs, false); err != nil {
		return nil, err
	}
	return l.signOutputs(outputs)
}

// signOutputs signs already-verified outputs and records the promises. Each
// signature carries a DLEQ proof so wallets can check it was produced with
// the published keyset.
func (l *Ledger) signOutputs(outputs []token.BlindedMessage) ([]token.BlindedSignature, error) {
	signatures := make([]token.BlindedSignature, 0, len(outputs))
	promises := make([]store.Promise, 0, len(outputs))
	now := time.Now().Unix()

	for i := range outputs {
		ks, ok := l.keysets[outputs[i].ID]
		if !ok {
			return nil, errors.ErrUnknownKeyset
		}
		privKey, err := ks.PrivateKey(outputs[i].Amount)
		if err != nil {
			return nil, err
		}

		blinded, err := bdhke.ParsePoint(outputs[i].B)
		if err != nil {
			return nil, errors.ErrInvalidPoint
		}
		signed, err := bdhke.Sign(blinded, privKey)
		if err != nil {
			return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to sign output: %v", err)
		}
		dleq, err := bdhke.GenerateDLEQ(privKey, blinded, signed)
		if err != nil {
			return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to generate dleq proof: %v", err)
		}

		signature := token.BlindedSignature{
			Amount: outputs[i].Amount,
			ID:     outputs[i].ID,
			C:      bdhke.PointToHex(signed),
			DLEQ:   dleq,
		}
		signatures = append(signatures, signature)
		promises = append(promises, store.Promise{
			B:         outputs[i].B,
			Amount:    outputs[i].Amount,
			C:         signature.C,
			E:         dleq.E,
			S:         dleq.S,
			KeysetID:  outputs[i].ID,
			CreatedAt: now,
		})
	}

	if err := l.promiseStore.StoreBatch(promises); err != nil {
		return nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to store promises: %v", err)
	}

	monitoring.RecordSignaturesIssued(len(signatures), token.SumSignatures(signatures))
	return signatures, nil
}

// Split invalidates inputs and issues outputs of equal total value. Inputs
// are admitted before any signing, so concurrent requests reusing the same
// proofs collapse to exactly one success. Zero outputs is a valid degenerate
// form: pure invalidation.
func (l *Ledger) Split(ctx context.Context, inputs []token.Proof, outputs []token.BlindedMessage) ([]token.BlindedSignature, error) {
	if err := l.verifyInputs(inputs); err != nil {
		return nil, err
	}

	if len(outputs) == 0 {
		if err := l.admitProofs(inputs, "split"); err != nil {
			return nil, err
		}
		logx.Info("LEDGER", fmt.Sprintf("Split invalidated %d proofs without reissue", len(inputs)))
		return []token.BlindedSignature{}, nil
	}

	if err := l.verifyOutputs(outputs, false); err != nil {
		return nil, err
	}
	if err := l.verifyBalanced(inputs, outputs); err != nil {
		return nil, err
	}

	if err := l.admitProofs(inputs, "split"); err != nil {
		return nil, err
	}

	signatures, err := l.signOutputs(outputs)
	if err != nil {
		// The inputs are already spent and stay spent; failing to issue
		// here means promise storage is broken.
		logx.Error("LEDGER", "Signing failed after admission, split is half-applied:", err.Error())
		return nil, err
	}

	logx.Info("LEDGER", fmt.Sprintf("Split %d proofs into %d outputs (%d)", len(inputs), len(outputs), token.SumSignatures(signatures)))
	return signatures, nil
}

// Redeem invalidates inputs without reissue and returns the settled amount
// net of input fees.
func (l *Ledger) Redeem(ctx context.Context, inputs []token.Proof) (uint64, error) {
	if err := l.verifyInputs(inputs); err != nil {
		return 0, err
	}

	if err := l.admitProofs(inputs, "redeem"); err != nil {
		return 0, err
	}

	amount := token.SumProofs(inputs) - l.feesForProofs(inputs)
	logx.Info("LEDGER", fmt.Sprintf("Redeemed %d proofs for %d", len(inputs), amount))
	return amount, nil
}

// generateChangePromises returns fee change for a melt that overpaid its fee
// reserve. The overpaid amount is decomposed into powers of two and assigned
// to the wallet's blank outputs, largest parts first when blanks run short.
func (l *Ledger) generateChangePromises(provided, quoteAmount, feePaid uint64, outputs []token.BlindedMessage) ([]token.BlindedSignature, error) {
	if provided <= quoteAmount+feePaid || len(outputs) == 0 {
		return nil, nil
	}
	overpaid := provided - quoteAmount - feePaid

	amounts := token.ChangeAmounts(overpaid, len(outputs))
	changeOutputs := make([]token.BlindedMessage, len(amounts))
	for i := range amounts {
		changeOutputs[i] = token.BlindedMessage{
			Amount: amounts[i],
			ID:     outputs[i].ID,
			B:      outputs[i].B,
		}
	}
	return l.signOutputs(changeOutputs)
}
