package share

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
)

// PrivateRecipient is one PRIVATE-share authorized user, as known to the
// publisher: their Ed25519 public key (used for the ECIES wrap) and their
// ZK public point (used for the AccessGrant commitment). Both are public
// values the recipient hands the publisher out of band when requesting
// access — the publisher never learns or stores anything else about them.
type PrivateRecipient struct {
	UserID        string
	PublicKey     ed25519.PublicKey
	ZKPublicPoint []byte
}

// Grant is one AccessGrant row the caller should persist alongside the
// Share (spec §4.9: "the publisher side stores only commitments").
type Grant struct {
	AuthorizedUserID string
	Commitment       []byte
}

// BuildPublic signs and encrypts manifest for a PUBLIC share under
// identity.PublicShareKey(folder): anyone who knows folder_unique_id can
// decrypt it. The key is not derived from share_id, and folder_unique_id
// cannot be recovered from share_id.
func BuildPublic(folderSK ed25519.PrivateKey, folder identity.FolderID, manifest *Manifest) (EncryptedIndex, error) {
	plaintext, err := signManifest(folderSK, manifest)
	if err != nil {
		return EncryptedIndex{}, err
	}
	key, err := identity.PublicShareKey(folder)
	if err != nil {
		return EncryptedIndex{}, err
	}
	payload, err := identity.EncryptBlob(key, plaintext, folder[:])
	if err != nil {
		return EncryptedIndex{}, err
	}
	return EncryptedIndex{AccessType: AccessPublic, CipherSuite: CipherAES256GCMHKDFSHA256, Payload: payload}, nil
}

// protectedHeaderMaxSalt is the largest salt the one-byte saltLen field of
// the PROTECTED header (saltLen(1) + salt + time(4) + memory(4) +
// threads(1)) can describe.
const protectedHeaderMaxSalt = 255

// BuildProtected signs and encrypts manifest under a password-derived key
// (spec §4.7); the Argon2id params and salt travel alongside the
// ciphertext since they're required, not secret, inputs to decryption.
func BuildProtected(folderSK ed25519.PrivateKey, shareID string, password string, manifest *Manifest) (EncryptedIndex, error) {
	plaintext, err := signManifest(folderSK, manifest)
	if err != nil {
		return EncryptedIndex{}, err
	}
	params, err := identity.NewPasswordParams()
	if err != nil {
		return EncryptedIndex{}, err
	}
	if len(params.Salt) > protectedHeaderMaxSalt {
		return EncryptedIndex{}, uerr.New(uerr.KindValidation, "share.BuildProtected", "salt too long")
	}
	pdk := identity.DeriveFromPassword(password, params)
	key, err := identity.ProtectedShareKey(pdk, shareID)
	if err != nil {
		return EncryptedIndex{}, err
	}
	ciphertext, err := identity.EncryptBlob(key, plaintext, []byte(shareID))
	if err != nil {
		return EncryptedIndex{}, err
	}

	payload := marshalProtectedPayload(params, ciphertext)
	return EncryptedIndex{AccessType: AccessProtected, CipherSuite: CipherAES256GCMHKDFSHA256, Payload: payload}, nil
}

func marshalProtectedPayload(params identity.PasswordParams, ciphertext []byte) []byte {
	buf := make([]byte, 0, 1+len(params.Salt)+4+4+1+len(ciphertext))
	buf = append(buf, byte(len(params.Salt)))
	buf = append(buf, params.Salt...)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], params.Time)
	buf = append(buf, u32[:]...)
	binary.BigEndian.PutUint32(u32[:], params.Memory)
	buf = append(buf, u32[:]...)
	buf = append(buf, params.Threads)
	buf = append(buf, ciphertext...)
	return buf
}

func unmarshalProtectedPayload(b []byte) (identity.PasswordParams, []byte, error) {
	if len(b) < 1 {
		return identity.PasswordParams{}, nil, uerr.New(uerr.KindValidation, "share.unmarshalProtectedPayload", "empty payload")
	}
	saltLen := int(b[0])
	need := 1 + saltLen + 4 + 4 + 1
	if len(b) < need {
		return identity.PasswordParams{}, nil, uerr.New(uerr.KindValidation, "share.unmarshalProtectedPayload", "truncated header")
	}
	salt := append([]byte(nil), b[1:1+saltLen]...)
	off := 1 + saltLen
	t := binary.BigEndian.Uint32(b[off : off+4])
	m := binary.BigEndian.Uint32(b[off+4 : off+8])
	threads := b[off+8]
	ciphertext := b[need:]
	return identity.PasswordParams{Salt: salt, Time: t, Memory: m, Threads: threads}, ciphertext, nil
}

// BuildPrivate signs and encrypts manifest under a fresh random content
// key K, then wraps K for every recipient via ECIES (spec §4.7), and
// returns both the encrypted index and the AccessGrant rows to persist.
func BuildPrivate(folderSK ed25519.PrivateKey, shareID, saltShare string, manifest *Manifest, recipients []PrivateRecipient) (EncryptedIndex, []Grant, error) {
	plaintext, err := signManifest(folderSK, manifest)
	if err != nil {
		return EncryptedIndex{}, nil, err
	}

	var contentKey [32]byte
	if _, err := rand.Read(contentKey[:]); err != nil {
		return EncryptedIndex{}, nil, fmt.Errorf("share: generate content key: %w", err)
	}
	ciphertext, err := identity.EncryptBlob(contentKey[:], plaintext, []byte(shareID))
	if err != nil {
		return EncryptedIndex{}, nil, err
	}

	var wrappedBlock []byte
	var grants []Grant
	var count [2]byte
	binary.BigEndian.PutUint16(count[:], uint16(len(recipients)))
	wrappedBlock = append(wrappedBlock, count[:]...)

	for _, r := range recipients {
		wrapped, err := identity.WrapKeyForUser(r.PublicKey, contentKey[:])
		if err != nil {
			return EncryptedIndex{}, nil, err
		}
		var wlen [2]byte
		binary.BigEndian.PutUint16(wlen[:], uint16(len(wrapped)))
		wrappedBlock = append(wrappedBlock, wlen[:]...)
		wrappedBlock = append(wrappedBlock, wrapped...)

		grants = append(grants, Grant{
			AuthorizedUserID: r.UserID,
			Commitment:       identity.GrantCommitment(r.ZKPublicPoint, []byte(saltShare)),
		})
	}

	payload := append(wrappedBlock, ciphertext...)
	return EncryptedIndex{AccessType: AccessPrivate, CipherSuite: CipherAES256GCMHKDFSHA256, Payload: payload}, grants, nil
}
