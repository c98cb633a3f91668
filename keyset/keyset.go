// Package keyset manages the mint's denomination keys: one secp256k1
// keypair per power-of-two amount, derived deterministically from the
// master seed so a restart with the same seed reproduces the same keyset.
package keyset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/veilmint/veilmint/errors"
	"github.com/veilmint/veilmint/token"
)

// MintKeyset holds the private and public halves of one keyset. Private
// keys never leave this package except through PrivateKey, which only the
// signing path calls.
type MintKeyset struct {
	ID             string
	Unit           string
	Active         bool
	DerivationPath string
	InputFeePPK    uint64

	privateKeys map[uint64]*secp256k1.PrivateKey
	publicKeys  map[uint64]*secp256k1.PublicKey
}

// Derive builds a keyset from the master seed and derivation path. The key
// for the i-th denomination (amount 2^i) is sha256(seed || path || i),
// rejected if it reduces to zero or past the group order, which would mean
// the derivation itself is broken.
func Derive(seed []byte, derivationPath string, maxOrder int, unit string) (*MintKeyset, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("empty keyset seed")
	}
	if maxOrder <= 0 || maxOrder > token.MaxOrder {
		return nil, fmt.Errorf("max order %d out of range (1..%d)", maxOrder, token.MaxOrder)
	}

	privateKeys := make(map[uint64]*secp256k1.PrivateKey, maxOrder)
	publicKeys := make(map[uint64]*secp256k1.PublicKey, maxOrder)

	for i := 0; i < maxOrder; i++ {
		material := make([]byte, 0, len(seed)+len(derivationPath)+2)
		material = append(material, seed...)
		material = append(material, []byte(derivationPath)...)
		material = append(material, []byte(strconv.Itoa(i))...)
		digest := sha256.Sum256(material)

		var scalar secp256k1.ModNScalar
		if overflow := scalar.SetByteSlice(digest[:]); overflow || scalar.IsZero() {
			return nil, fmt.Errorf("derived invalid scalar for order %d", i)
		}

		privKey := secp256k1.NewPrivateKey(&scalar)
		amount := uint64(1) << uint(i)
		privateKeys[amount] = privKey
		publicKeys[amount] = privKey.PubKey()
	}

	return &MintKeyset{
		ID:             DeriveID(publicKeys),
		Unit:           unit,
		DerivationPath: derivationPath,
		privateKeys:    privateKeys,
		publicKeys:     publicKeys,
	}, nil
}

// DeriveID computes the keyset identifier: "00" plus the first 14 hex
// characters of the hash over the compressed public keys in amount order.
func DeriveID(publicKeys map[uint64]*secp256k1.PublicKey) string {
	amounts := make([]uint64, 0, len(publicKeys))
	for amount := range publicKeys {
		amounts = append(amounts, amount)
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i] < amounts[j] })

	var concat []byte
	for _, amount := range amounts {
		concat = append(concat, publicKeys[amount].SerializeCompressed()...)
	}
	digest := sha256.Sum256(concat)
	return "00" + hex.EncodeToString(digest[:])[:14]
}

// PrivateKey returns the signing key for the given denomination.
func (ks *MintKeyset) PrivateKey(amount uint64) (*secp256k1.PrivateKey, error) {
	privKey, ok := ks.privateKeys[amount]
	if !ok {
		return nil, errors.ErrUnknownDenomination
	}
	return privKey, nil
}

// PublicKey returns the public key for the given denomination.
func (ks *MintKeyset) PublicKey(amount uint64) (*secp256k1.PublicKey, error) {
	pubKey, ok := ks.publicKeys[amount]
	if !ok {
		return nil, errors.ErrUnknownDenomination
	}
	return pubKey, nil
}

// HasAmount reports whether the keyset carries the given denomination.
func (ks *MintKeyset) HasAmount(amount uint64) bool {
	_, ok := ks.publicKeys[amount]
	return ok
}

// Amounts returns the supported denominations in ascending order.
func (ks *MintKeyset) Amounts() []uint64 {
	amounts := make([]uint64, 0, len(ks.publicKeys))
	for amount := range ks.publicKeys {
		amounts = append(amounts, amount)
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i] < amounts[j] })
	return amounts
}

// PublicKeysHex returns the distributable keyset: amount to compressed hex.
func (ks *MintKeyset) PublicKeysHex() map[uint64]string {
	keys := make(map[uint64]string, len(ks.publicKeys))
	for amount, pubKey := range ks.publicKeys {
		keys[amount] = hex.EncodeToString(pubKey.SerializeCompressed())
	}
	return keys
}

// Info returns the keyset metadata without any key material.
func (ks *MintKeyset) Info() token.KeysetInfo {
	return token.KeysetInfo{
		ID:     ks.ID,
		Unit:   ks.Unit,
		Active: ks.Active,
	}
}
