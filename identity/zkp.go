package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/hkdf"

	"github.com/rorocorp/uns/internal/uerr"
)

// This file implements the PRIVATE-share Schnorr membership proof of
// spec §4.1/§4.9. The spec describes the AccessGrant commitment as a plain
// hash, C = H(user_id ‖ salt_share), which by itself is not something a
// discrete-log Schnorr proof can be built over — there is no "exponent"
// to prove knowledge of for a bare preimage. The standard construction
// that satisfies the stated property ("prove knowledge of user_sk
// corresponding to some commitment, without revealing user_id") is to
// commit to the user's *public point* instead of their user_id directly:
//
//	X = x·B                          (the user's ZK public point)
//	C = H(X ‖ salt_share)             (the AccessGrant commitment)
//
// and have the prover reveal X alongside a Schnorr proof of knowledge of x,
// rather than reveal which grant/user_id it corresponds to. The verifier
// only learns "some grant's commitment opens to this X", never the
// identity behind it. x itself is deterministically derived from the
// user's Ed25519 seed so nothing new needs to be persisted per user.

const zkScalarInfo = "uns:zk-schnorr-scalar:v1"

// ZKScalar deterministically derives the Schnorr secret scalar for a user
// from their folder-independent Ed25519 private key.
func ZKScalar(userSK ed25519.PrivateKey) (*edwards25519.Scalar, error) {
	wide := make([]byte, 64)
	kdf := hkdf.New(sha256.New, userSK.Seed(), nil, []byte(zkScalarInfo))
	if _, err := io.ReadFull(kdf, wide); err != nil {
		return nil, fmt.Errorf("identity: derive zk scalar: %w", err)
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(wide)
	if err != nil {
		return nil, fmt.Errorf("identity: reduce zk scalar: %w", err)
	}
	return s, nil
}

// ZKPublicPoint computes X = x·B, the value an AccessGrant's commitment is
// built over.
func ZKPublicPoint(userSK ed25519.PrivateKey) ([]byte, error) {
	x, err := ZKScalar(userSK)
	if err != nil {
		return nil, err
	}
	X := new(edwards25519.Point).ScalarBaseMult(x)
	return X.Bytes(), nil
}

// GrantCommitment computes C = H(X ‖ salt_share) for a given user's ZK
// public point, the value stored in AccessGrant.Commitment.
func GrantCommitment(zkPublicPoint, saltShare []byte) []byte {
	h := sha256.New()
	h.Write(zkPublicPoint)
	h.Write(saltShare)
	return h.Sum(nil)
}

// MembershipProof is a non-interactive (Fiat-Shamir) Schnorr proof of
// knowledge of x for X = x·B, scoped to one share_id so a proof captured
// for one share can't be replayed against another.
type MembershipProof struct {
	X []byte // the prover's ZK public point, revealed but not linked to a user_id
	R []byte // commitment point
	S []byte // response scalar
}

// ProveMembership builds a MembershipProof for userSK, scoped to shareID.
func ProveMembership(userSK ed25519.PrivateKey, shareID string) (*MembershipProof, error) {
	x, err := ZKScalar(userSK)
	if err != nil {
		return nil, err
	}
	X := new(edwards25519.Point).ScalarBaseMult(x)

	var seed [64]byte
	kdf := hkdf.New(sha256.New, x.Bytes(), []byte(shareID), []byte("uns:zk-nonce:v1"))
	if _, err := io.ReadFull(kdf, seed[:]); err != nil {
		return nil, fmt.Errorf("identity: derive zk nonce: %w", err)
	}
	k, err := edwards25519.NewScalar().SetUniformBytes(seed[:])
	if err != nil {
		return nil, fmt.Errorf("identity: reduce zk nonce: %w", err)
	}
	R := new(edwards25519.Point).ScalarBaseMult(k)

	c := fiatShamirChallenge(shareID, X.Bytes(), R.Bytes())
	// s = k + c*x (mod L)
	s := edwards25519.NewScalar().MultiplyAdd(c, x, k)

	return &MembershipProof{X: X.Bytes(), R: R.Bytes(), S: s.Bytes()}, nil
}

// VerifyMembership checks proof against the set of known AccessGrant
// commitments for a share. It returns nil if proof is well-formed AND its
// X opens one of the commitments; it never reveals which one to the
// caller beyond that fact.
func VerifyMembership(proof *MembershipProof, shareID, saltShare string, commitments [][]byte) error {
	X, err := new(edwards25519.Point).SetBytes(proof.X)
	if err != nil {
		return uerr.New(uerr.KindIntegrity, "identity.VerifyMembership", "malformed X")
	}
	R, err := new(edwards25519.Point).SetBytes(proof.R)
	if err != nil {
		return uerr.New(uerr.KindIntegrity, "identity.VerifyMembership", "malformed R")
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(proof.S)
	if err != nil {
		return uerr.New(uerr.KindIntegrity, "identity.VerifyMembership", "malformed S")
	}

	c := fiatShamirChallenge(shareID, proof.X, proof.R)
	// Check s·B == R + c·X
	lhs := new(edwards25519.Point).ScalarBaseMult(s)
	rhs := new(edwards25519.Point).Add(R, new(edwards25519.Point).ScalarMult(c, X))
	if lhs.Equal(rhs) != 1 {
		return uerr.New(uerr.KindIntegrity, "identity.VerifyMembership", "schnorr check failed")
	}

	commitment := GrantCommitment(proof.X, []byte(saltShare))
	for _, c := range commitments {
		if constantTimeEqual(commitment, c) {
			return nil
		}
	}
	return uerr.New(uerr.KindAuth, "identity.VerifyMembership", "no matching access grant")
}

func fiatShamirChallenge(shareID string, X, R []byte) *edwards25519.Scalar {
	h := sha256.New()
	h.Write([]byte("uns:zk-challenge:v1"))
	h.Write([]byte(shareID))
	h.Write(X)
	h.Write(R)
	wide := make([]byte, 64)
	copy(wide, h.Sum(nil))
	c, _ := edwards25519.NewScalar().SetUniformBytes(wide)
	return c
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
