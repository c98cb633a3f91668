package bdhke

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLEQRoundTrip(t *testing.T) {
	k, err := RandomScalar()
	require.NoError(t, err)

	blinded, _, err := Blind([]byte("abc"))
	require.NoError(t, err)
	signed, err := Sign(blinded, k)
	require.NoError(t, err)

	proof, err := GenerateDLEQ(k, blinded, signed)
	require.NoError(t, err)

	assert.True(t, VerifyDLEQ(proof, k.PubKey(), blinded, signed))
}

func TestDLEQDeterministicNonce(t *testing.T) {
	k := privKeyFromHex(t, oneHex)
	nonce := privKeyFromHex(t, oneHex)

	blinded, err := BlindWithFactor([]byte("test_message"), privKeyFromHex(t, oneHex))
	require.NoError(t, err)
	signed, err := Sign(blinded, k)
	require.NoError(t, err)

	first, err := generateDLEQWithNonce(k, blinded, signed, nonce)
	require.NoError(t, err)
	second, err := generateDLEQWithNonce(k, blinded, signed, nonce)
	require.NoError(t, err)

	assert.Equal(t, first.E, second.E)
	assert.Equal(t, first.S, second.S)
	assert.True(t, VerifyDLEQ(first, k.PubKey(), blinded, signed))
}

func TestDLEQRejectsWrongKey(t *testing.T) {
	k, err := RandomScalar()
	require.NoError(t, err)
	other, err := RandomScalar()
	require.NoError(t, err)

	blinded, _, err := Blind([]byte("abc"))
	require.NoError(t, err)
	signed, err := Sign(blinded, k)
	require.NoError(t, err)

	proof, err := GenerateDLEQ(k, blinded, signed)
	require.NoError(t, err)

	assert.False(t, VerifyDLEQ(proof, other.PubKey(), blinded, signed))
}

func TestDLEQRejectsTamperedSignature(t *testing.T) {
	k, err := RandomScalar()
	require.NoError(t, err)

	blinded, _, err := Blind([]byte("abc"))
	require.NoError(t, err)
	signed, err := Sign(blinded, k)
	require.NoError(t, err)

	proof, err := GenerateDLEQ(k, blinded, signed)
	require.NoError(t, err)

	// swap in a signature over a different blinded message
	otherBlinded, _, err := Blind([]byte("def"))
	require.NoError(t, err)
	otherSigned, err := Sign(otherBlinded, k)
	require.NoError(t, err)

	assert.False(t, VerifyDLEQ(proof, k.PubKey(), blinded, otherSigned))
}

func TestDLEQRejectsGarbageScalars(t *testing.T) {
	k, err := RandomScalar()
	require.NoError(t, err)
	blinded, _, err := Blind([]byte("abc"))
	require.NoError(t, err)
	signed, err := Sign(blinded, k)
	require.NoError(t, err)

	proof, err := GenerateDLEQ(k, blinded, signed)
	require.NoError(t, err)
	proof.E = "zz not hex"

	assert.False(t, VerifyDLEQ(proof, k.PubKey(), blinded, signed))
	assert.False(t, VerifyDLEQ(nil, k.PubKey(), blinded, signed))
}

func TestVerifyProofDLEQ(t *testing.T) {
	k, err := RandomScalar()
	require.NoError(t, err)

	secret := []byte("wallet secret")
	blinded, r, err := Blind(secret)
	require.NoError(t, err)
	signed, err := Sign(blinded, k)
	require.NoError(t, err)
	proof, err := GenerateDLEQ(k, blinded, signed)
	require.NoError(t, err)

	unblinded, err := Unblind(signed, r, k.PubKey())
	require.NoError(t, err)

	assert.True(t, VerifyProofDLEQ(secret, r, unblinded, proof, k.PubKey()))

	wrongR, err := RandomScalar()
	require.NoError(t, err)
	assert.False(t, VerifyProofDLEQ(secret, wrongR, unblinded, proof, k.PubKey()))
}
