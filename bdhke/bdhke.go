// Package bdhke implements the blind Diffie-Hellman key exchange the mint
// issues tokens with: the wallet blinds a secret, the mint signs the blinded
// point with a per-denomination key, the wallet unblinds, and the mint later
// verifies the unblinded signature against the same key.
//
// All four stages are pure functions over secp256k1. Nothing here touches
// the spent set; signing and spending authorization are separate decisions.
package bdhke

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/veilmint/veilmint/errors"
)

// hashToCurve iterations are bounded to keep the loop provably finite; with
// ~50% success probability per round the bound is unreachable in practice.
const maxHashToCurveRounds = 1 << 16

// HashToCurve maps an arbitrary message to a curve point by hashing, trying
// the digest as the x coordinate of a compressed even-y point, and
// re-hashing the digest until one parses.
func HashToCurve(message []byte) (*secp256k1.PublicKey, error) {
	msgHash := sha256.Sum256(message)
	buf := make([]byte, 33)
	buf[0] = secp256k1.PubKeyFormatCompressedEven
	for i := 0; i < maxHashToCurveRounds; i++ {
		copy(buf[1:], msgHash[:])
		if pubKey, err := secp256k1.ParsePubKey(buf); err == nil {
			return pubKey, nil
		}
		msgHash = sha256.Sum256(msgHash[:])
	}
	return nil, errors.ErrInvalidPoint
}

// RandomScalar samples a cryptographically secure nonzero scalar.
func RandomScalar() (*secp256k1.PrivateKey, error) {
	scalar, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to sample scalar: %w", err)
	}
	return scalar, nil
}

// Blind computes B_ = hashToCurve(secret) + r*G with a fresh blinding
// factor r. The caller keeps r private; it never goes on the wire.
func Blind(secret []byte) (*secp256k1.PublicKey, *secp256k1.PrivateKey, error) {
	r, err := RandomScalar()
	if err != nil {
		return nil, nil, err
	}
	blinded, err := BlindWithFactor(secret, r)
	if err != nil {
		return nil, nil, err
	}
	return blinded, r, nil
}

// BlindWithFactor computes B_ = hashToCurve(secret) + r*G for a caller-
// chosen blinding factor. Wallets use it to rebuild blinded messages during
// signature restore.
func BlindWithFactor(secret []byte, r *secp256k1.PrivateKey) (*secp256k1.PublicKey, error) {
	y, err := HashToCurve(secret)
	if err != nil {
		return nil, err
	}
	return AddPoints(y, r.PubKey())
}

// Sign computes C_ = k*B_ with the mint's denomination key k.
func Sign(blinded *secp256k1.PublicKey, k *secp256k1.PrivateKey) (*secp256k1.PublicKey, error) {
	return ScalarMulPoint(&k.Key, blinded)
}

// Unblind computes C = C_ - r*K where K is the denomination public key.
func Unblind(signed *secp256k1.PublicKey, r *secp256k1.PrivateKey, mintKey *secp256k1.PublicKey) (*secp256k1.PublicKey, error) {
	rK, err := ScalarMulPoint(&r.Key, mintKey)
	if err != nil {
		return nil, err
	}
	return SubPoints(signed, rK)
}

// Verify checks C == k*hashToCurve(secret). A true result proves the proof
// was issued by this key; it says nothing about whether the secret has been
// spent.
func Verify(secret []byte, c *secp256k1.PublicKey, k *secp256k1.PrivateKey) bool {
	y, err := HashToCurve(secret)
	if err != nil {
		return false
	}
	expected, err := ScalarMulPoint(&k.Key, y)
	if err != nil {
		return false
	}
	return c.IsEqual(expected)
}

// ParsePoint decodes a compressed point from hex.
func ParsePoint(s string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.ErrInvalidPoint
	}
	pubKey, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, errors.ErrInvalidPoint
	}
	return pubKey, nil
}

// PointToHex encodes a point as compressed hex.
func PointToHex(p *secp256k1.PublicKey) string {
	return hex.EncodeToString(p.SerializeCompressed())
}

// AddPoints returns a + b.
func AddPoints(a, b *secp256k1.PublicKey) (*secp256k1.PublicKey, error) {
	var aj, bj, result secp256k1.JacobianPoint
	a.AsJacobian(&aj)
	b.AsJacobian(&bj)
	secp256k1.AddNonConst(&aj, &bj, &result)
	return jacobianToPubKey(&result)
}

// SubPoints returns a - b.
func SubPoints(a, b *secp256k1.PublicKey) (*secp256k1.PublicKey, error) {
	var aj, bj, result secp256k1.JacobianPoint
	a.AsJacobian(&aj)
	b.AsJacobian(&bj)
	bj.Y.Negate(1)
	bj.Y.Normalize()
	secp256k1.AddNonConst(&aj, &bj, &result)
	return jacobianToPubKey(&result)
}

// ScalarMulPoint returns s*P.
func ScalarMulPoint(s *secp256k1.ModNScalar, p *secp256k1.PublicKey) (*secp256k1.PublicKey, error) {
	var pj, result secp256k1.JacobianPoint
	p.AsJacobian(&pj)
	secp256k1.ScalarMultNonConst(s, &pj, &result)
	return jacobianToPubKey(&result)
}

// ScalarBaseMul returns s*G.
func ScalarBaseMul(s *secp256k1.ModNScalar) (*secp256k1.PublicKey, error) {
	var result secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(s, &result)
	return jacobianToPubKey(&result)
}

// jacobianToPubKey converts back to an affine public key, rejecting the
// point at infinity which is not a usable group element here.
func jacobianToPubKey(p *secp256k1.JacobianPoint) (*secp256k1.PublicKey, error) {
	var z secp256k1.FieldVal
	z.Set(&p.Z).Normalize()
	if z.IsZero() {
		return nil, errors.ErrInvalidPoint
	}
	p.ToAffine()
	return secp256k1.NewPublicKey(&p.X, &p.Y), nil
}
