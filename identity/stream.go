package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"fmt"

	"github.com/rorocorp/uns/internal/uerr"
)

// EncryptSegment seals one segment's plaintext under a key derived from
// the folder key, file id and segment index (spec §4.1). Because every
// segment gets its own derived key, the nonce derivation only needs to be
// unique *within* a segment's key, not globally — see segmentNonce.
//
// Grounded on the teacher's storage.Encrypt chunk-framing
// (storage/storage.go): there, one random salt/nonce-prefix pair served an
// entire file and every chunk carried a counter-derived nonce. Here the
// "file" is a single segment (already bounded by PAYLOAD_MAX), so sealing
// happens in one Seal call instead of a chunk loop.
func EncryptSegment(folderKey ed25519.PrivateKey, folder FolderID, fileID FileID, segmentIndex uint32, plaintext []byte) ([]byte, error) {
	key, err := deriveSegmentKey(folderKey, fileID, segmentIndex)
	if err != nil {
		return nil, err
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := segmentNonce(folder, fileID, segmentIndex)
	aad := segmentAAD(folder, fileID, segmentIndex)
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// DecryptSegment is EncryptSegment's inverse. A tag mismatch — corrupted
// ciphertext, wrong key, or wrong segment index — surfaces as
// uerr.KindIntegrity so callers know to try a redundancy copy (spec §4.8).
func DecryptSegment(folderKey ed25519.PrivateKey, folder FolderID, fileID FileID, segmentIndex uint32, ciphertext []byte) ([]byte, error) {
	key, err := deriveSegmentKey(folderKey, fileID, segmentIndex)
	if err != nil {
		return nil, err
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := segmentNonce(folder, fileID, segmentIndex)
	aad := segmentAAD(folder, fileID, segmentIndex)
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, uerr.Wrap(uerr.KindIntegrity, "identity.DecryptSegment",
			fmt.Sprintf("folder=%s file=%d segment=%d", folder, fileID, segmentIndex), err)
	}
	return plaintext, nil
}

func segmentAAD(folder FolderID, fileID FileID, segmentIndex uint32) []byte {
	aad := make([]byte, 0, len(folder)+12)
	aad = append(aad, folder[:]...)
	aad = append(aad, byte(fileID>>56), byte(fileID>>48), byte(fileID>>40), byte(fileID>>32),
		byte(fileID>>24), byte(fileID>>16), byte(fileID>>8), byte(fileID))
	aad = append(aad, byte(segmentIndex>>24), byte(segmentIndex>>16), byte(segmentIndex>>8), byte(segmentIndex))
	return aad
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("identity: aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
