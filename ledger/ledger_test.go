package ledger

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmint/veilmint/db"
	"github.com/veilmint/veilmint/errors"
	"github.com/veilmint/veilmint/events"
	"github.com/veilmint/veilmint/lightning"
	"github.com/veilmint/veilmint/store"
	"github.com/veilmint/veilmint/token"
	"github.com/veilmint/veilmint/wallet"
)

func testConfig() *Config {
	return &Config{
		Seed:           []byte("ledger test seed"),
		DerivationPath: "m/0'/0'/0'",
		MaxOrder:       16,
		Unit:           "sat",
	}
}

// openLedger builds a ledger over a fresh provider for dir. The returned
// closer must run before the same dir is opened again.
func openLedger(t *testing.T, dir string, cfg *Config, backend lightning.Backend) (*Ledger, func()) {
	t.Helper()

	provider, err := db.NewLevelDBProvider(dir)
	require.NoError(t, err)

	proofStore, err := store.NewGenericProofStore(provider)
	require.NoError(t, err)
	promiseStore, err := store.NewGenericPromiseStore(provider)
	require.NoError(t, err)
	quoteStore, err := store.NewGenericQuoteStore(provider)
	require.NoError(t, err)
	keysetStore, err := store.NewGenericKeysetStore(provider)
	require.NoError(t, err)

	ledger, err := NewLedger(cfg, proofStore, promiseStore, quoteStore, keysetStore, backend, events.NewEventRouter(nil))
	require.NoError(t, err)
	return ledger, func() { require.NoError(t, provider.Close()) }
}

func newTestLedger(t *testing.T) (*Ledger, *lightning.FakeBackend) {
	t.Helper()
	backend := lightning.NewFakeBackend(0)
	ledger, closer := openLedger(t, t.TempDir(), testConfig(), backend)
	t.Cleanup(closer)
	return ledger, backend
}

// mintProofs issues real proofs through the signing path, skipping the
// payment gate the way a funded wallet would have passed it.
func mintProofs(t *testing.T, l *Ledger, amounts ...uint64) []token.Proof {
	t.Helper()

	outputs, blinding, err := wallet.CreateBlindedMessages(amounts, l.ActiveKeysetID())
	require.NoError(t, err)
	signatures, err := l.RequestSignatures(outputs)
	require.NoError(t, err)

	_, keys, err := l.GetKeys()
	require.NoError(t, err)
	proofs, err := wallet.ConstructProofs(signatures, blinding, keys)
	require.NoError(t, err)
	return proofs
}

func TestRedeemTwiceIsRejected(t *testing.T) {
	l, _ := newTestLedger(t)
	proofs := mintProofs(t, l, 8)

	amount, err := l.Redeem(context.Background(), proofs)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), amount)

	_, err = l.Redeem(context.Background(), proofs)
	require.ErrorIs(t, err, errors.ErrAlreadySpent)
}

func TestSplitPreservesValue(t *testing.T) {
	l, _ := newTestLedger(t)
	proofs := mintProofs(t, l, 4, 4)

	outputs, blinding, err := wallet.CreateBlindedMessages([]uint64{2, 2, 4}, l.ActiveKeysetID())
	require.NoError(t, err)

	signatures, err := l.Split(context.Background(), proofs, outputs)
	require.NoError(t, err)
	require.Len(t, signatures, 3)
	assert.Equal(t, uint64(8), token.SumSignatures(signatures))

	// inputs are gone
	_, err = l.Redeem(context.Background(), proofs)
	require.ErrorIs(t, err, errors.ErrAlreadySpent)

	// outputs are spendable
	_, keys, err := l.GetKeys()
	require.NoError(t, err)
	newProofs, err := wallet.ConstructProofs(signatures, blinding, keys)
	require.NoError(t, err)
	amount, err := l.Redeem(context.Background(), newProofs)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), amount)
}

func TestSplitAmountMismatchLeavesInputsSpendable(t *testing.T) {
	l, _ := newTestLedger(t)
	proofs := mintProofs(t, l, 4)

	outputs, _, err := wallet.CreateBlindedMessages([]uint64{4, 8}, l.ActiveKeysetID())
	require.NoError(t, err)

	_, err = l.Split(context.Background(), proofs, outputs)
	require.Error(t, err)
	var mintErr *errors.MintError
	require.True(t, stderrors.As(err, &mintErr))
	assert.Equal(t, errors.ErrCodeAmountMismatch, mintErr.Code)

	// the rejected batch left no trace
	amount, err := l.Redeem(context.Background(), proofs)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), amount)
}

func TestSplitZeroOutputsInvalidates(t *testing.T) {
	l, _ := newTestLedger(t)
	proofs := mintProofs(t, l, 4)

	signatures, err := l.Split(context.Background(), proofs, nil)
	require.NoError(t, err)
	assert.Empty(t, signatures)

	_, err = l.Redeem(context.Background(), proofs)
	require.ErrorIs(t, err, errors.ErrAlreadySpent)
}

func TestConcurrentRedeemSingleWinner(t *testing.T) {
	l, _ := newTestLedger(t)
	proofs := mintProofs(t, l, 16)

	const contenders = 16
	results := make(chan error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Redeem(context.Background(), proofs)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case stderrors.Is(err, errors.ErrAlreadySpent):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, contenders-1, rejected)
}

func TestBatchRejectionIsAtomic(t *testing.T) {
	l, _ := newTestLedger(t)
	proofs := mintProofs(t, l, 2, 4)

	_, err := l.Redeem(context.Background(), proofs[:1])
	require.NoError(t, err)

	// one spent member poisons the whole batch
	outputs, _, err := wallet.CreateBlindedMessages([]uint64{2, 4}, l.ActiveKeysetID())
	require.NoError(t, err)
	_, err = l.Split(context.Background(), proofs, outputs)
	require.ErrorIs(t, err, errors.ErrAlreadySpent)

	// the unspent member is untouched
	amount, err := l.Redeem(context.Background(), proofs[1:])
	require.NoError(t, err)
	assert.Equal(t, uint64(4), amount)
}

func TestVerifyInputRejections(t *testing.T) {
	l, _ := newTestLedger(t)
	proofs := mintProofs(t, l, 8)

	_, err := l.Redeem(context.Background(), nil)
	require.ErrorIs(t, err, errors.ErrEmptyInputs)

	forged := proofs[0]
	forged.Secret = "not-the-signed-secret"
	_, err = l.Redeem(context.Background(), []token.Proof{forged})
	require.ErrorIs(t, err, errors.ErrInvalidSignature)

	unknownKeyset := proofs[0]
	unknownKeyset.ID = "00deadbeef001122"
	_, err = l.Redeem(context.Background(), []token.Proof{unknownKeyset})
	require.ErrorIs(t, err, errors.ErrUnknownKeyset)

	badAmount := proofs[0]
	badAmount.Amount = 3
	_, err = l.Redeem(context.Background(), []token.Proof{badAmount})
	var mintErr *errors.MintError
	require.True(t, stderrors.As(err, &mintErr))
	assert.Equal(t, errors.ErrCodeInvalidAmount, mintErr.Code)

	empty := proofs[0]
	empty.Secret = ""
	_, err = l.Redeem(context.Background(), []token.Proof{empty})
	require.ErrorIs(t, err, errors.ErrEmptySecret)

	long := proofs[0]
	long.Secret = strings.Repeat("x", 513)
	_, err = l.Redeem(context.Background(), []token.Proof{long})
	require.True(t, stderrors.As(err, &mintErr))
	assert.Equal(t, errors.ErrCodeSecretTooLong, mintErr.Code)

	_, err = l.Redeem(context.Background(), []token.Proof{proofs[0], proofs[0]})
	require.ErrorIs(t, err, errors.ErrDuplicateInput)

	badPoint := proofs[0]
	badPoint.C = "zz"
	_, err = l.Redeem(context.Background(), []token.Proof{badPoint})
	require.ErrorIs(t, err, errors.ErrInvalidPoint)

	// nothing above admitted the valid proof
	_, err = l.Redeem(context.Background(), proofs)
	require.NoError(t, err)
}

func TestVerifyOutputRejections(t *testing.T) {
	l, _ := newTestLedger(t)
	proofs := mintProofs(t, l, 8)

	outputs, _, err := wallet.CreateBlindedMessages([]uint64{4, 4}, l.ActiveKeysetID())
	require.NoError(t, err)

	mixed := make([]token.BlindedMessage, 2)
	copy(mixed, outputs)
	mixed[1].ID = "00deadbeef001122"
	_, err = l.Split(context.Background(), proofs, mixed)
	require.ErrorIs(t, err, errors.ErrMixedKeysets)

	unknown := make([]token.BlindedMessage, 2)
	copy(unknown, outputs)
	unknown[0].ID = "00deadbeef001122"
	unknown[1].ID = "00deadbeef001122"
	_, err = l.Split(context.Background(), proofs, unknown)
	require.ErrorIs(t, err, errors.ErrUnknownKeyset)

	duplicate := []token.BlindedMessage{outputs[0], outputs[0]}
	_, err = l.Split(context.Background(), proofs, duplicate)
	require.ErrorIs(t, err, errors.ErrDuplicateOutput)

	already, _, err := wallet.CreateBlindedMessages([]uint64{8}, l.ActiveKeysetID())
	require.NoError(t, err)
	_, err = l.RequestSignatures(already)
	require.NoError(t, err)
	_, err = l.Split(context.Background(), proofs, already)
	require.ErrorIs(t, err, errors.ErrOutputAlreadySigned)

	// the inputs survived every rejection
	_, err = l.Redeem(context.Background(), proofs)
	require.NoError(t, err)
}

func TestRestartKeepsSpentSet(t *testing.T) {
	dir := t.TempDir()
	backend := lightning.NewFakeBackend(0)

	first, closeFirst := openLedger(t, dir, testConfig(), backend)
	proofs := mintProofs(t, first, 2, 8)
	activeID := first.ActiveKeysetID()

	_, err := first.Redeem(context.Background(), proofs[:1])
	require.NoError(t, err)
	closeFirst()

	second, closeSecond := openLedger(t, dir, testConfig(), backend)
	defer closeSecond()

	// same seed and path derive the same keyset
	assert.Equal(t, activeID, second.ActiveKeysetID())

	_, err = second.Redeem(context.Background(), proofs[:1])
	require.ErrorIs(t, err, errors.ErrAlreadySpent)

	amount, err := second.Redeem(context.Background(), proofs[1:])
	require.NoError(t, err)
	assert.Equal(t, uint64(8), amount)
}

func TestKeysetRotation(t *testing.T) {
	dir := t.TempDir()
	backend := lightning.NewFakeBackend(0)

	first, closeFirst := openLedger(t, dir, testConfig(), backend)
	oldID := first.ActiveKeysetID()
	oldProofs := mintProofs(t, first, 4)
	closeFirst()

	rotated := testConfig()
	rotated.DerivationPath = "m/0'/0'/1'"
	second, closeSecond := openLedger(t, dir, rotated, backend)
	defer closeSecond()

	require.NotEqual(t, oldID, second.ActiveKeysetID())

	infos, err := second.GetKeysets()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.Equal(t, info.ID == second.ActiveKeysetID(), info.Active)
	}

	// proofs issued under the old keyset still redeem
	amount, err := second.Redeem(context.Background(), oldProofs)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), amount)

	// but the old keyset no longer signs
	outputs, _, err := wallet.CreateBlindedMessages([]uint64{4}, oldID)
	require.NoError(t, err)
	_, err = second.RequestSignatures(outputs)
	require.ErrorIs(t, err, errors.ErrInactiveKeyset)
}

func TestSeedMismatchIsFatal(t *testing.T) {
	dir := t.TempDir()
	backend := lightning.NewFakeBackend(0)

	first, closeFirst := openLedger(t, dir, testConfig(), backend)
	_ = first.ActiveKeysetID()
	closeFirst()

	provider, err := db.NewLevelDBProvider(dir)
	require.NoError(t, err)
	defer func() { _ = provider.Close() }()

	proofStore, err := store.NewGenericProofStore(provider)
	require.NoError(t, err)
	promiseStore, err := store.NewGenericPromiseStore(provider)
	require.NoError(t, err)
	quoteStore, err := store.NewGenericQuoteStore(provider)
	require.NoError(t, err)
	keysetStore, err := store.NewGenericKeysetStore(provider)
	require.NoError(t, err)

	badSeed := testConfig()
	badSeed.Seed = []byte("a different seed")
	badSeed.DerivationPath = "m/0'/0'/1'"
	_, err = NewLedger(badSeed, proofStore, promiseStore, quoteStore, keysetStore, backend, events.NewEventRouter(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed does not match storage")
}

func TestInputFeesChargedOnSwap(t *testing.T) {
	cfg := testConfig()
	cfg.InputFeePPK = 1000 // one unit per input proof

	backend := lightning.NewFakeBackend(0)
	l, closer := openLedger(t, t.TempDir(), cfg, backend)
	t.Cleanup(closer)

	proofs := mintProofs(t, l, 4, 4)

	// 8 in, 2 proofs at 1000 ppk = 2 fee, so 6 out balances
	balanced, _, err := wallet.CreateBlindedMessages([]uint64{2, 4}, l.ActiveKeysetID())
	require.NoError(t, err)
	signatures, err := l.Split(context.Background(), proofs, balanced)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), token.SumSignatures(signatures))

	// full value without the fee does not
	proofs = mintProofs(t, l, 4, 4)
	unbalanced, _, err := wallet.CreateBlindedMessages([]uint64{4, 4}, l.ActiveKeysetID())
	require.NoError(t, err)
	_, err = l.Split(context.Background(), proofs, unbalanced)
	var mintErr *errors.MintError
	require.True(t, stderrors.As(err, &mintErr))
	assert.Equal(t, errors.ErrCodeAmountMismatch, mintErr.Code)

	// redeem nets fees out as well
	amount, err := l.Redeem(context.Background(), proofs)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), amount)
}

func TestCheckState(t *testing.T) {
	l, _ := newTestLedger(t)
	proofs := mintProofs(t, l, 2, 4)

	states, err := l.CheckState(context.Background(), []string{proofs[0].Secret, proofs[1].Secret, "never-seen"})
	require.NoError(t, err)
	require.Len(t, states, 3)
	for _, state := range states {
		assert.True(t, state.Spendable)
		assert.False(t, state.Pending)
	}

	_, err = l.Redeem(context.Background(), proofs[:1])
	require.NoError(t, err)

	states, err = l.CheckState(context.Background(), []string{proofs[0].Secret, proofs[1].Secret})
	require.NoError(t, err)
	assert.False(t, states[0].Spendable)
	assert.False(t, states[0].Pending)
	assert.True(t, states[1].Spendable)
}

func TestRestoreReturnsIssuedSignatures(t *testing.T) {
	l, _ := newTestLedger(t)

	outputs, _, err := wallet.CreateBlindedMessages([]uint64{2, 8}, l.ActiveKeysetID())
	require.NoError(t, err)
	issued, err := l.RequestSignatures(outputs)
	require.NoError(t, err)

	// one output the mint has never seen
	stranger, _, err := wallet.CreateBlindedMessages([]uint64{4}, l.ActiveKeysetID())
	require.NoError(t, err)
	query := append(append([]token.BlindedMessage{}, outputs...), stranger...)

	matched, signatures, err := l.Restore(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, matched, 2)
	require.Len(t, signatures, 2)
	for i := range issued {
		assert.Equal(t, issued[i].C, signatures[i].C)
		assert.Equal(t, issued[i].Amount, signatures[i].Amount)
		require.NotNil(t, signatures[i].DLEQ)
		assert.Equal(t, issued[i].DLEQ.E, signatures[i].DLEQ.E)
	}

	_, _, err = l.Restore(context.Background(), nil)
	require.ErrorIs(t, err, errors.ErrEmptyOutputs)
}
