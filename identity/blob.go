package identity

import (
	"crypto/rand"
	"fmt"

	"github.com/rorocorp/uns/internal/uerr"
)

// EncryptBlob seals an arbitrary plaintext blob under a raw 32-byte key
// with a random 12-byte nonce prepended — used for the encrypted share
// index (spec §4.7), which is a single opaque payload rather than a
// sequence of independently-addressable segments, so it has no natural
// (folder, file, segment) triple to derive a deterministic nonce from the
// way EncryptSegment does.
func EncryptBlob(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("identity: generate blob nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	return append(nonce, sealed...), nil
}

// DecryptBlob is EncryptBlob's inverse.
func DecryptBlob(key, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	n := aead.NonceSize()
	if len(ciphertext) < n {
		return nil, uerr.New(uerr.KindIntegrity, "identity.DecryptBlob", "ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:n], ciphertext[n:]
	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, uerr.Wrap(uerr.KindIntegrity, "identity.DecryptBlob", "", err)
	}
	return plaintext, nil
}
