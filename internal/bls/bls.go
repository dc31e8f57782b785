// Package bls implements the availability-vote signatures: BLS over
// BN254 with signatures in G1 and public keys in G2, so an aggregated
// vote stays checkable by an EVM anchor contract through the pairing
// precompiles. Aggregation is point addition — commutative, associative,
// and therefore order-independent across scale nodes.
package bls

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"math/bits"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// dst is the hash-to-curve domain separation tag for availability votes.
var dst = []byte("ACED-BLS-BN254G1-AVAILABILITY-V1")

// SecretKey is a BLS signing key.
type SecretKey struct {
	s fr.Element
}

// PublicKey is the G2 point corresponding to a secret key.
type PublicKey struct {
	p bn254.G2Affine
}

// Signature is a G1 point: one node's signature or any aggregate.
type Signature struct {
	p bn254.G1Affine
}

// GenerateKey samples a fresh keypair.
func GenerateKey() (*SecretKey, *PublicKey, error) {
	var sk SecretKey
	if _, err := sk.s.SetRandom(); err != nil {
		return nil, nil, fmt.Errorf("sample secret key: %w", err)
	}
	return &sk, sk.Public(), nil
}

// Public derives the public key.
func (sk *SecretKey) Public() *PublicKey {
	var s big.Int
	sk.s.BigInt(&s)

	_, _, _, g2 := bn254.Generators()
	var pk PublicKey
	pk.p.ScalarMultiplication(&g2, &s)
	return &pk
}

// Sign signs a message: sk * HashToG1(msg).
func (sk *SecretKey) Sign(msg []byte) (*Signature, error) {
	h, err := bn254.HashToG1(msg, dst)
	if err != nil {
		return nil, fmt.Errorf("hash to curve: %w", err)
	}
	var s big.Int
	sk.s.BigInt(&s)

	var sig Signature
	sig.p.ScalarMultiplication(&h, &s)
	return &sig, nil
}

// Aggregate returns the sum of two signatures; neither input is modified.
// Aggregating the same contribution twice is the caller's bug; the
// bitset in the vote state is what enforces at-most-once.
func Aggregate(a, b *Signature) *Signature {
	var acc, add bn254.G1Jac
	acc.FromAffine(&a.p)
	add.FromAffine(&b.p)
	acc.AddAssign(&add)

	var out Signature
	out.p.FromJacobian(&acc)
	return &out
}

// AggregatePublicKeys sums public keys for aggregate verification.
func AggregatePublicKeys(keys ...*PublicKey) *PublicKey {
	var acc bn254.G2Jac
	for i, key := range keys {
		var add bn254.G2Jac
		add.FromAffine(&key.p)
		if i == 0 {
			acc = add
			continue
		}
		acc.AddAssign(&add)
	}
	var out PublicKey
	out.p.FromJacobian(&acc)
	return &out
}

// Verify checks a (possibly aggregated) signature on msg against the
// (correspondingly aggregated) public key:
// e(sig, g2) * e(H(msg), -pk) == 1.
func Verify(pk *PublicKey, msg []byte, sig *Signature) (bool, error) {
	h, err := bn254.HashToG1(msg, dst)
	if err != nil {
		return false, fmt.Errorf("hash to curve: %w", err)
	}
	_, _, _, g2 := bn254.Generators()

	var negPk bn254.G2Affine
	negPk.Neg(&pk.p)

	return bn254.PairingCheck(
		[]bn254.G1Affine{sig.p, h},
		[]bn254.G2Affine{g2, negPk},
	)
}

// Coordinates returns the signature's affine coordinates as decimal
// strings, the wire form carried by MySign messages and the contract ABI.
func (sig *Signature) Coordinates() (x, y string) {
	return sig.p.X.String(), sig.p.Y.String()
}

// SignatureFromCoordinates rebuilds a signature from its wire form.
func SignatureFromCoordinates(x, y string) (*Signature, error) {
	var sig Signature
	if _, err := sig.p.X.SetString(x); err != nil {
		return nil, fmt.Errorf("parse sigx: %w", err)
	}
	if _, err := sig.p.Y.SetString(y); err != nil {
		return nil, fmt.Errorf("parse sigy: %w", err)
	}
	if !sig.p.IsOnCurve() {
		return nil, fmt.Errorf("signature point is not on the curve")
	}
	return &sig, nil
}

// CountBits returns the number of contributors recorded in a vote bitset.
func CountBits(bitset uint64) int {
	return bits.OnesCount64(bitset)
}

// LoadOrCreateKey loads the hex-encoded secret key at path, generating
// and persisting a fresh one if the file does not exist, so the key stays
// the same across restarts.
func LoadOrCreateKey(path string) (*SecretKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		raw, err := hex.DecodeString(string(data))
		if err != nil || len(raw) != fr.Bytes {
			return nil, fmt.Errorf("malformed key file %s", path)
		}
		var sk SecretKey
		sk.s.SetBytes(raw)
		return &sk, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	sk, _, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	raw := sk.s.Bytes()
	if err := os.WriteFile(path, []byte(hex.EncodeToString(raw[:])), 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return sk, nil
}
