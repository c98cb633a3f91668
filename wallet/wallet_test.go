package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmint/veilmint/bdhke"
	"github.com/veilmint/veilmint/keyset"
	"github.com/veilmint/veilmint/token"
)

func testKeyset(t *testing.T) *keyset.MintKeyset {
	t.Helper()
	ks, err := keyset.Derive([]byte("wallet test seed"), "m/0'/0'/0'", 16, "sat")
	require.NoError(t, err)
	return ks
}

func signAll(t *testing.T, ks *keyset.MintKeyset, outputs []token.BlindedMessage) []token.BlindedSignature {
	t.Helper()
	signatures := make([]token.BlindedSignature, 0, len(outputs))
	for i := range outputs {
		privKey, err := ks.PrivateKey(outputs[i].Amount)
		require.NoError(t, err)
		blinded, err := bdhke.ParsePoint(outputs[i].B)
		require.NoError(t, err)
		signed, err := bdhke.Sign(blinded, privKey)
		require.NoError(t, err)
		dleq, err := bdhke.GenerateDLEQ(privKey, blinded, signed)
		require.NoError(t, err)
		signatures = append(signatures, token.BlindedSignature{
			Amount: outputs[i].Amount,
			ID:     outputs[i].ID,
			C:      bdhke.PointToHex(signed),
			DLEQ:   dleq,
		})
	}
	return signatures
}

func TestBlindSignUnblindRoundTrip(t *testing.T) {
	ks := testKeyset(t)

	outputs, blinding, err := CreateBlindedMessages([]uint64{1, 4, 16}, ks.ID)
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	require.Len(t, blinding, 3)

	signatures := signAll(t, ks, outputs)
	proofs, err := ConstructProofs(signatures, blinding, ks.PublicKeysHex())
	require.NoError(t, err)
	require.Len(t, proofs, 3)

	for i := range proofs {
		privKey, err := ks.PrivateKey(proofs[i].Amount)
		require.NoError(t, err)
		c, err := bdhke.ParsePoint(proofs[i].C)
		require.NoError(t, err)
		assert.True(t, bdhke.Verify([]byte(proofs[i].Secret), c, privKey))
		assert.Equal(t, ks.ID, proofs[i].ID)
	}
}

func TestCreateBlindedMessagesUniqueSecrets(t *testing.T) {
	ks := testKeyset(t)

	outputs, blinding, err := CreateBlindedMessages([]uint64{2, 2, 2, 2}, ks.ID)
	require.NoError(t, err)

	seenB := make(map[string]struct{})
	seenSecret := make(map[string]struct{})
	for i := range outputs {
		seenB[outputs[i].B] = struct{}{}
		seenSecret[blinding[i].Secret] = struct{}{}
	}
	assert.Len(t, seenB, 4)
	assert.Len(t, seenSecret, 4)
}

func TestConstructProofsRejectsTamperedDLEQ(t *testing.T) {
	ks := testKeyset(t)

	outputs, blinding, err := CreateBlindedMessages([]uint64{8}, ks.ID)
	require.NoError(t, err)

	signatures := signAll(t, ks, outputs)
	if signatures[0].DLEQ.E[0] == '0' {
		signatures[0].DLEQ.E = "1" + signatures[0].DLEQ.E[1:]
	} else {
		signatures[0].DLEQ.E = "0" + signatures[0].DLEQ.E[1:]
	}

	_, err = ConstructProofs(signatures, blinding, ks.PublicKeysHex())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dleq")
}

func TestConstructProofsLengthMismatch(t *testing.T) {
	ks := testKeyset(t)

	outputs, blinding, err := CreateBlindedMessages([]uint64{1, 2}, ks.ID)
	require.NoError(t, err)

	signatures := signAll(t, ks, outputs)
	_, err = ConstructProofs(signatures[:1], blinding, ks.PublicKeysHex())
	require.Error(t, err)
}

func TestOutputsForAmount(t *testing.T) {
	ks := testKeyset(t)

	outputs, blinding, err := OutputsForAmount(13, ks.ID)
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	require.Len(t, blinding, 3)

	amounts := []uint64{outputs[0].Amount, outputs[1].Amount, outputs[2].Amount}
	assert.Equal(t, []uint64{1, 4, 8}, amounts)

	_, _, err = OutputsForAmount(0, ks.ID)
	require.Error(t, err)
}

func TestBlankOutputs(t *testing.T) {
	ks := testKeyset(t)

	outputs, blinding, err := BlankOutputs(0, ks.ID)
	require.NoError(t, err)
	assert.Empty(t, outputs)
	assert.Empty(t, blinding)

	outputs, blinding, err = BlankOutputs(1000, ks.ID)
	require.NoError(t, err)
	assert.Len(t, outputs, 10)
	assert.Len(t, blinding, 10)
	for i := range outputs {
		assert.Equal(t, uint64(1), outputs[i].Amount)
	}
}
