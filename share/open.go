package share

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
)

// OpenPublic decrypts and verifies a PUBLIC share's index. No credential
// is needed beyond folder (the folder_unique_id) and the folder's public
// key; share_id alone is not enough to derive the key.
func OpenPublic(folderPK ed25519.PublicKey, folder identity.FolderID, idx EncryptedIndex) (*Manifest, error) {
	if idx.AccessType != AccessPublic {
		return nil, uerr.New(uerr.KindValidation, "share.OpenPublic", "index is not a PUBLIC share")
	}
	key, err := identity.PublicShareKey(folder)
	if err != nil {
		return nil, err
	}
	plaintext, err := identity.DecryptBlob(key, idx.Payload, folder[:])
	if err != nil {
		return nil, err
	}
	return verifySignedEnvelope(folderPK, plaintext)
}

// OpenProtected decrypts and verifies a PROTECTED share's index. A wrong
// password surfaces as uerr.KindIntegrity from the first failed GCM tag
// check (spec §8 seed scenario 2: "no plaintext leaked").
func OpenProtected(folderPK ed25519.PublicKey, shareID, password string, idx EncryptedIndex) (*Manifest, error) {
	if idx.AccessType != AccessProtected {
		return nil, uerr.New(uerr.KindValidation, "share.OpenProtected", "index is not a PROTECTED share")
	}
	params, ciphertext, err := unmarshalProtectedPayload(idx.Payload)
	if err != nil {
		return nil, err
	}
	pdk := identity.DeriveFromPassword(password, params)
	key, err := identity.ProtectedShareKey(pdk, shareID)
	if err != nil {
		return nil, err
	}
	plaintext, err := identity.DecryptBlob(key, ciphertext, []byte(shareID))
	if err != nil {
		return nil, err
	}
	return verifySignedEnvelope(folderPK, plaintext)
}

// OpenPrivate decrypts and verifies a PRIVATE share's index for one
// recipient, trying every wrapped content key until one unwraps — the
// index never indicates which entry belongs to which user (spec §4.9).
func OpenPrivate(folderPK ed25519.PublicKey, shareID string, recipientSK ed25519.PrivateKey, idx EncryptedIndex) (*Manifest, error) {
	if idx.AccessType != AccessPrivate {
		return nil, uerr.New(uerr.KindValidation, "share.OpenPrivate", "index is not a PRIVATE share")
	}
	wrapped, ciphertext, err := splitPrivatePayload(idx.Payload)
	if err != nil {
		return nil, err
	}

	for _, w := range wrapped {
		contentKey, err := identity.UnwrapKeyForUser(recipientSK, w)
		if err != nil {
			continue // not this recipient's entry; try the next
		}
		plaintext, err := identity.DecryptBlob(contentKey, ciphertext, []byte(shareID))
		if err != nil {
			continue
		}
		return verifySignedEnvelope(folderPK, plaintext)
	}
	return nil, uerr.New(uerr.KindAuth, "share.OpenPrivate", "no wrapped key unwraps for this recipient")
}

func splitPrivatePayload(b []byte) ([][]byte, []byte, error) {
	if len(b) < 2 {
		return nil, nil, uerr.New(uerr.KindValidation, "share.splitPrivatePayload", "truncated payload")
	}
	count := int(binary.BigEndian.Uint16(b[:2]))
	off := 2
	wrapped := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if len(b) < off+2 {
			return nil, nil, uerr.New(uerr.KindValidation, "share.splitPrivatePayload", "truncated wrapped-key length")
		}
		wlen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if len(b) < off+wlen {
			return nil, nil, uerr.New(uerr.KindValidation, "share.splitPrivatePayload", "truncated wrapped key")
		}
		wrapped = append(wrapped, b[off:off+wlen])
		off += wlen
	}
	return wrapped, b[off:], nil
}
