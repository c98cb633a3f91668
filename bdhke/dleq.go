package bdhke

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/veilmint/veilmint/token"
)

// GenerateDLEQ produces a proof that the same key k links the published
// public key K = k*G and the signature C_ = k*B_, so wallets can check a
// signature against the advertised keyset without knowing k.
func GenerateDLEQ(k *secp256k1.PrivateKey, blinded, signed *secp256k1.PublicKey) (*token.DLEQ, error) {
	nonce, err := RandomScalar()
	if err != nil {
		return nil, err
	}
	return generateDLEQWithNonce(k, blinded, signed, nonce)
}

func generateDLEQWithNonce(k *secp256k1.PrivateKey, blinded, signed *secp256k1.PublicKey, nonce *secp256k1.PrivateKey) (*token.DLEQ, error) {
	r1 := nonce.PubKey()
	r2, err := ScalarMulPoint(&nonce.Key, blinded)
	if err != nil {
		return nil, err
	}

	e := challengeScalar(r1, r2, k.PubKey(), signed)

	// s = nonce + e*k
	var ek, s secp256k1.ModNScalar
	ek.Mul2(e, &k.Key)
	s.Add2(&nonce.Key, &ek)

	return &token.DLEQ{
		E: scalarToHex(e),
		S: scalarToHex(&s),
	}, nil
}

// VerifyDLEQ checks a proof against the signature pair it was issued for:
// R1 = s*G - e*K and R2 = s*B_ - e*C_ must hash back to e.
func VerifyDLEQ(proof *token.DLEQ, mintKey, blinded, signed *secp256k1.PublicKey) bool {
	if proof == nil {
		return false
	}
	e, err := scalarFromHex(proof.E)
	if err != nil {
		return false
	}
	s, err := scalarFromHex(proof.S)
	if err != nil {
		return false
	}

	sG, err := ScalarBaseMul(s)
	if err != nil {
		return false
	}
	eK, err := ScalarMulPoint(e, mintKey)
	if err != nil {
		return false
	}
	r1, err := SubPoints(sG, eK)
	if err != nil {
		return false
	}

	sB, err := ScalarMulPoint(s, blinded)
	if err != nil {
		return false
	}
	eC, err := ScalarMulPoint(e, signed)
	if err != nil {
		return false
	}
	r2, err := SubPoints(sB, eC)
	if err != nil {
		return false
	}

	return challengeScalar(r1, r2, mintKey, signed).Equals(e)
}

// VerifyProofDLEQ is the wallet-side check on an unblinded proof: with the
// blinding factor r it rebuilds B_ = hashToCurve(secret) + r*G and
// C_ = C + r*K, then verifies the proof against that pair.
func VerifyProofDLEQ(secret []byte, r *secp256k1.PrivateKey, c *secp256k1.PublicKey, proof *token.DLEQ, mintKey *secp256k1.PublicKey) bool {
	blinded, err := BlindWithFactor(secret, r)
	if err != nil {
		return false
	}
	rK, err := ScalarMulPoint(&r.Key, mintKey)
	if err != nil {
		return false
	}
	signed, err := AddPoints(c, rK)
	if err != nil {
		return false
	}
	return VerifyDLEQ(proof, mintKey, blinded, signed)
}

// challengeScalar hashes the uncompressed hex of the transcript points, the
// exact transcript the reference wallets expect.
func challengeScalar(points ...*secp256k1.PublicKey) *secp256k1.ModNScalar {
	var sb strings.Builder
	for _, p := range points {
		sb.WriteString(hex.EncodeToString(p.SerializeUncompressed()))
	}
	digest := sha256.Sum256([]byte(sb.String()))

	var e secp256k1.ModNScalar
	e.SetBytes(&digest)
	return &e
}

func scalarToHex(s *secp256k1.ModNScalar) string {
	raw := s.Bytes()
	return hex.EncodeToString(raw[:])
}

func scalarFromHex(s string) (*secp256k1.ModNScalar, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	// values are reduced mod N, matching how the challenge scalar is built
	var scalar secp256k1.ModNScalar
	scalar.SetByteSlice(raw)
	return &scalar, nil
}
