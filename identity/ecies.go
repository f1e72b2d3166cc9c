package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/rorocorp/uns/internal/uerr"
)

// This file implements the PRIVATE-share key wrap of spec §4.7:
// "K is wrapped for each authorized user via ECIES-style encapsulation to
// user.public_key." Every user already has an Ed25519 keypair (used for
// signing and, via ZKScalar, the membership proof); rather than asking
// users to manage a second keypair, the wrap reuses the same Ed25519 key
// through the standard Ed25519<->X25519 birational map — the same
// conversion libsodium uses for crypto_sign_ed25519_pk_to_curve25519: an
// Edwards point's Montgomery u-coordinate is a deterministic function of
// the point alone, and the corresponding private scalar is the clamped
// SHA-512 of the Ed25519 seed, exactly as crypto/ed25519 derives its own
// signing scalar internally.

// wrappedKeySize is nonce(12) + 32-byte content key + 16-byte GCM tag.
const wrappedKeySize = 12 + 32 + 16

// ed25519SigningScalar recovers the clamped scalar crypto/ed25519 derives
// internally from a seed (RFC 8032 §5.1.5), needed for the X25519 side of
// the wrap since the stdlib does not expose it.
func ed25519SigningScalar(sk ed25519.PrivateKey) []byte {
	h := sha512.Sum512(sk.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32]
}

// ed25519PublicToMontgomery converts an Ed25519 public key to its
// birational X25519 counterpart.
func ed25519PublicToMontgomery(pk ed25519.PublicKey) ([]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(pk)
	if err != nil {
		return nil, uerr.New(uerr.KindValidation, "identity.ed25519PublicToMontgomery", "malformed ed25519 public key")
	}
	return p.BytesMontgomery(), nil
}

// WrapKeyForUser encapsulates contentKey to recipientPK via X25519 ECDH
// (through the Ed25519<->X25519 map above) followed by HKDF and an
// AEAD seal. Returns the ephemeral public key the recipient needs to
// reconstruct the shared secret, concatenated with the sealed key.
func WrapKeyForUser(recipientPK ed25519.PublicKey, contentKey []byte) ([]byte, error) {
	recipientMont, err := ed25519PublicToMontgomery(recipientPK)
	if err != nil {
		return nil, err
	}

	var ephemeralScalar [32]byte
	if _, err := rand.Read(ephemeralScalar[:]); err != nil {
		return nil, fmt.Errorf("identity: generate ephemeral scalar: %w", err)
	}
	ephemeralPub, err := curve25519.X25519(ephemeralScalar[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("identity: derive ephemeral public key: %w", err)
	}
	shared, err := curve25519.X25519(ephemeralScalar[:], recipientMont)
	if err != nil {
		return nil, uerr.Wrap(uerr.KindValidation, "identity.WrapKeyForUser", "", err)
	}

	key, err := wrapKDF(shared, ephemeralPub, recipientPK)
	if err != nil {
		return nil, err
	}
	sealed, err := EncryptBlob(key, contentKey, ephemeralPub)
	if err != nil {
		return nil, err
	}
	return append(ephemeralPub, sealed...), nil
}

// UnwrapKeyForUser is WrapKeyForUser's inverse, run by the recipient with
// their own Ed25519 private key.
func UnwrapKeyForUser(recipientSK ed25519.PrivateKey, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 32 {
		return nil, uerr.New(uerr.KindIntegrity, "identity.UnwrapKeyForUser", "wrapped key too short")
	}
	ephemeralPub, sealed := wrapped[:32], wrapped[32:]

	scalar := ed25519SigningScalar(recipientSK)
	shared, err := curve25519.X25519(scalar, ephemeralPub)
	if err != nil {
		return nil, uerr.Wrap(uerr.KindAuth, "identity.UnwrapKeyForUser", "", err)
	}

	recipientPK, ok := recipientSK.Public().(ed25519.PublicKey)
	if !ok {
		return nil, uerr.New(uerr.KindValidation, "identity.UnwrapKeyForUser", "invalid private key")
	}
	key, err := wrapKDF(shared, ephemeralPub, recipientPK)
	if err != nil {
		return nil, err
	}
	return DecryptBlob(key, sealed, ephemeralPub)
}

func wrapKDF(shared, ephemeralPub, recipientPK []byte) ([]byte, error) {
	kdf := hkdf.New(sha256.New, shared, ephemeralPub, append([]byte("uns:ecies-wrap:v1:"), recipientPK...))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("identity: derive wrap key: %w", err)
	}
	return key, nil
}
