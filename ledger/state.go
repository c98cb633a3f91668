package ledger

import (
	"context"

	"github.com/veilmint/veilmint/errors"
	"github.com/veilmint/veilmint/token"
)

// CheckState reports the ledger's view of each secret: spendable, reserved by
// an in-flight payment, or spent. Unknown secrets are spendable; the ledger
// only tracks what it has seen.
func (l *Ledger) CheckState(ctx context.Context, secrets []string) ([]token.ProofState, error) {
	states := make([]token.ProofState, len(secrets))

	l.mu.Lock()
	for i, secret := range secrets {
		_, spent := l.spentSecrets[secret]
		_, pending := l.pendingSecrets[secret]
		states[i] = token.ProofState{
			Secret:    secret,
			Spendable: !spent && !pending,
			Pending:   pending,
		}
	}
	l.mu.Unlock()

	return states, nil
}

// Restore returns the signatures previously issued for the given outputs, in
// request order, skipping outputs this mint has never signed. Wallets walk
// their deterministic secrets through it to recover from seed.
func (l *Ledger) Restore(ctx context.Context, outputs []token.BlindedMessage) ([]token.BlindedMessage, []token.BlindedSignature, error) {
	if len(outputs) == 0 {
		return nil, nil, errors.ErrEmptyOutputs
	}

	bs := make([]string, len(outputs))
	for i := range outputs {
		bs[i] = outputs[i].B
	}
	promises, err := l.promiseStore.GetBatch(bs)
	if err != nil {
		return nil, nil, errors.NewErrorf(errors.ErrCodeInternal, "failed to load promises: %v", err)
	}

	matched := make([]token.BlindedMessage, 0, len(promises))
	signatures := make([]token.BlindedSignature, 0, len(promises))
	for i := range outputs {
		promise, ok := promises[outputs[i].B]
		if !ok {
			continue
		}
		matched = append(matched, outputs[i])
		signature := token.BlindedSignature{
			Amount: promise.Amount,
			ID:     promise.KeysetID,
			C:      promise.C,
		}
		if promise.E != "" {
			signature.DLEQ = &token.DLEQ{E: promise.E, S: promise.S}
		}
		signatures = append(signatures, signature)
	}
	return matched, signatures, nil
}
