package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// folderKeySeedInfo domain-separates the Ed25519 seed derivation from every
// other HKDF use in this package (segment keys, public-share keys, ...).
const folderKeySeedInfo = "uns:folder-ed25519-seed:v1"

// FolderKeysFromID deterministically derives the Ed25519 keypair used to
// sign and verify everything tied to a folder (spec §4.1). Same input
// always yields the same output, on any host, in any process — there is no
// persisted private key; it is regenerated on demand from FolderID and a
// module-wide static HKDF salt.
//
// The static salt (as opposed to a random one) is required for the
// determinism invariant in spec §8 ("folder_keys_from_id(id) is a function
// ... across runs and hosts"): a random salt would mean only the host that
// generated the folder could ever re-derive its keys.
func FolderKeysFromID(id FolderID) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	seed := make([]byte, ed25519.SeedSize)
	kdf := hkdf.New(sha256.New, id[:], folderSalt(), []byte(folderKeySeedInfo))
	if _, err := io.ReadFull(kdf, seed); err != nil {
		return nil, nil, fmt.Errorf("identity: derive folder seed: %w", err)
	}
	sk := ed25519.NewKeyFromSeed(seed)
	return sk.Public().(ed25519.PublicKey), sk, nil
}

// folderSalt is fixed, not secret: HKDF's salt parameter only needs to be
// independent per *purpose*, not per folder (the folder id itself is the
// per-folder entropy). Keeping it as a named constant rather than inlining
// it documents that this value must never change once folders exist,
// or every previously derived folder key becomes unrecoverable.
func folderSalt() []byte {
	return []byte("uns-v1-folder-key-salt")
}

// deriveSegmentKey derives the per-segment AES-256 key used by
// EncryptSegment/DecryptSegment, binding the key to the folder, file and
// segment so that no two segments anywhere ever share a key.
func deriveSegmentKey(folderKey ed25519.PrivateKey, fileID FileID, segmentIndex uint32) ([]byte, error) {
	info := fmt.Sprintf("uns:segment-key:v1:%d:%d", fileID, segmentIndex)
	kdf := hkdf.New(sha256.New, folderKey.Seed(), nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("identity: derive segment key: %w", err)
	}
	return key, nil
}

// segmentNonce derives the 12-byte GCM nonce for a segment from
// (folder_unique_id, file_id, segment_index), per spec §4.1: "AES-256-GCM
// with a per-segment nonce derived from (folder_unique_id, file_id,
// segment_index)".
func segmentNonce(folder FolderID, fileID FileID, segmentIndex uint32) []byte {
	h := sha256.New()
	h.Write(folder[:])
	var be [12]byte
	for i := 0; i < 8; i++ {
		be[i] = byte(fileID >> (56 - 8*i))
	}
	be[8] = byte(segmentIndex >> 24)
	be[9] = byte(segmentIndex >> 16)
	be[10] = byte(segmentIndex >> 8)
	be[11] = byte(segmentIndex)
	h.Write(be[:])
	sum := h.Sum(nil)
	return sum[:12]
}
