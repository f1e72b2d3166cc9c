package identity

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/rorocorp/uns/internal/uerr"
)

// domainTag separates UNS signatures from any other use of the same
// Ed25519 key, per spec §4.1: "Ed25519 over domain-separated payload
// H("UNS-v1" ‖ data)".
const domainTag = "UNS-v1"

func domainSeparate(data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domainTag))
	h.Write(data)
	return h.Sum(nil)
}

// Sign signs data under the folder's derived Ed25519 key.
func Sign(folderSK ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(folderSK, domainSeparate(data))
}

// Verify checks a signature produced by Sign. Returns uerr.KindIntegrity
// on failure so callers uniformly route signature failures through the
// same "refuse, don't half-trust" path as ciphertext tag failures.
func Verify(folderPK ed25519.PublicKey, data, sig []byte) error {
	if !ed25519.Verify(folderPK, domainSeparate(data), sig) {
		return uerr.New(uerr.KindIntegrity, "identity.Verify", "manifest signature mismatch")
	}
	return nil
}
