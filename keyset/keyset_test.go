package keyset

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmint/veilmint/errors"
)

var testSeed = []byte("keyset test seed 000000000000000")

func TestDeriveDeterministic(t *testing.T) {
	first, err := Derive(testSeed, "m/0'/0'/0'", 64, "sat")
	require.NoError(t, err)
	second, err := Derive(testSeed, "m/0'/0'/0'", 64, "sat")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	for _, amount := range first.Amounts() {
		a, err := first.PublicKey(amount)
		require.NoError(t, err)
		b, err := second.PublicKey(amount)
		require.NoError(t, err)
		assert.True(t, a.IsEqual(b), "amount %d", amount)
	}
}

func TestDeriveIDFormat(t *testing.T) {
	ks, err := Derive(testSeed, "m/0'/0'/0'", 64, "sat")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^00[0-9a-f]{14}$`), ks.ID)
}

func TestDerivePathChangesKeys(t *testing.T) {
	base, err := Derive(testSeed, "m/0'/0'/0'", 64, "sat")
	require.NoError(t, err)
	rotated, err := Derive(testSeed, "m/0'/0'/1'", 64, "sat")
	require.NoError(t, err)

	assert.NotEqual(t, base.ID, rotated.ID)

	baseKey, err := base.PublicKey(1)
	require.NoError(t, err)
	rotatedKey, err := rotated.PublicKey(1)
	require.NoError(t, err)
	assert.False(t, baseKey.IsEqual(rotatedKey))
}

func TestDeriveSeedChangesKeys(t *testing.T) {
	base, err := Derive(testSeed, "m/0'/0'/0'", 64, "sat")
	require.NoError(t, err)
	other, err := Derive([]byte("another seed entirely 0000000000"), "m/0'/0'/0'", 64, "sat")
	require.NoError(t, err)
	assert.NotEqual(t, base.ID, other.ID)
}

func TestDeriveAmounts(t *testing.T) {
	ks, err := Derive(testSeed, "m/0'/0'/0'", 8, "sat")
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2, 4, 8, 16, 32, 64, 128}, ks.Amounts())
	assert.True(t, ks.HasAmount(64))
	assert.False(t, ks.HasAmount(256))
	assert.False(t, ks.HasAmount(3))
}

func TestDeriveDistinctKeysPerAmount(t *testing.T) {
	ks, err := Derive(testSeed, "m/0'/0'/0'", 16, "sat")
	require.NoError(t, err)

	seen := make(map[string]uint64)
	for amount, keyHex := range ks.PublicKeysHex() {
		if prev, ok := seen[keyHex]; ok {
			t.Fatalf("amounts %d and %d share a key", prev, amount)
		}
		seen[keyHex] = amount
	}
}

func TestPrivateKeyUnknownDenomination(t *testing.T) {
	ks, err := Derive(testSeed, "m/0'/0'/0'", 8, "sat")
	require.NoError(t, err)

	_, err = ks.PrivateKey(256)
	require.ErrorIs(t, err, errors.ErrUnknownDenomination)

	_, err = ks.PrivateKey(3)
	require.ErrorIs(t, err, errors.ErrUnknownDenomination)

	_, err = ks.PrivateKey(8)
	require.NoError(t, err)
}

func TestDeriveRejectsBadArguments(t *testing.T) {
	_, err := Derive(nil, "m/0'/0'/0'", 64, "sat")
	assert.Error(t, err)

	_, err = Derive(testSeed, "m/0'/0'/0'", 0, "sat")
	assert.Error(t, err)

	_, err = Derive(testSeed, "m/0'/0'/0'", 65, "sat")
	assert.Error(t, err)
}
