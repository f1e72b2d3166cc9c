package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Argon2id cost parameters for the PROTECTED-share KDF (spec §4.7, §9 Open
// Question: "any memory-hard KDF with cost parameters stored alongside the
// salt satisfies the spec"). These are policy, not invariants, and are
// stored in PasswordParams so a future share can raise them without
// breaking shares already published under the old cost.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	saltSize     = 16
)

// PasswordParams are the KDF cost parameters and salt stored alongside a
// PROTECTED share's ciphertext (never secret — only the password is).
type PasswordParams struct {
	Salt    []byte
	Time    uint32
	Memory  uint32
	Threads uint8
}

// NewPasswordParams generates a fresh random salt for a new PROTECTED
// share under the current default cost parameters.
func NewPasswordParams() (PasswordParams, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return PasswordParams{}, fmt.Errorf("identity: generate password salt: %w", err)
	}
	return PasswordParams{Salt: salt, Time: argonTime, Memory: argonMemory, Threads: argonThreads}, nil
}

// DeriveFromPassword runs Argon2id over the password under the stored
// params to produce the password-derived-key used in
// HKDF(password-derived-key ‖ share_id) (spec §4.7).
func DeriveFromPassword(password string, params PasswordParams) []byte {
	return argon2.IDKey([]byte(password), params.Salt, params.Time, params.Memory, params.Threads, argonKeyLen)
}

// ProtectedShareKey derives the final AES-256-GCM key for a PROTECTED
// share from the password-derived key and the share id.
func ProtectedShareKey(passwordDerivedKey []byte, shareID string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, passwordDerivedKey, []byte(shareID), []byte("uns:protected-share-key:v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("identity: derive protected share key: %w", err)
	}
	return key, nil
}

// PublicShareKey derives the PUBLIC-share key by HKDF over folder_unique_id
// alone, so anyone who knows folder_unique_id can compute it. share_id is
// not an input, and folder_unique_id cannot be recovered from share_id
// (ShareID is an HMAC keyed by the folder's private key).
func PublicShareKey(folder FolderID) ([]byte, error) {
	kdf := hkdf.New(sha256.New, folder[:], nil, []byte("uns:public-share-key:v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("identity: derive public share key: %w", err)
	}
	return key, nil
}
