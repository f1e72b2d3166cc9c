// Package identity implements the cryptographic primitives of C1: folder
// key derivation, streaming AEAD, Ed25519 signing, subject obfuscation,
// share ids, the PROTECTED-share KDF, and the PRIVATE-share ZK membership
// proof.
//
// Every primitive that used to take a "folder identifier" in the teacher's
// original system took whatever numeric value happened to be on hand,
// including the local database surrogate key. The spec calls that out as a
// known defect (§9): a local numeric id was sometimes passed where the
// cryptographic folder_unique_id was expected. FolderID and a local numeric
// surrogate are distinct, non-convertible Go types here on purpose — there
// is no implicit or explicit conversion path between them, so that bug
// class cannot compile.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// FolderID is the 128-bit folder_unique_id, the only identifier accepted
// at any cryptographic boundary (key derivation, signing, subject
// generation, share derivation). It is not an integer and does not convert
// to or from one.
type FolderID [16]byte

func (f FolderID) String() string { return hex.EncodeToString(f[:]) }

// Short returns the first 8 hex characters, used in NNTP Message-IDs
// (spec §4.5: `Message-ID = "<" random-uuid "@" folder_unique_id[:8] ">"`).
func (f FolderID) Short() string { return hex.EncodeToString(f[:4]) }

// NewFolderID generates a fresh random folder_unique_id.
func NewFolderID() (FolderID, error) {
	var id FolderID
	if _, err := rand.Read(id[:]); err != nil {
		return FolderID{}, fmt.Errorf("identity: generate folder id: %w", err)
	}
	return id, nil
}

// ParseFolderID decodes a hex-encoded folder_unique_id, as read back from
// storage or a share URL.
func ParseFolderID(s string) (FolderID, error) {
	var id FolderID
	b, err := hex.DecodeString(s)
	if err != nil {
		return FolderID{}, fmt.Errorf("identity: parse folder id: %w", err)
	}
	if len(b) != len(id) {
		return FolderID{}, fmt.Errorf("identity: folder id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// FileID identifies a File within its owning Folder. It is per-folder, not
// globally unique, and — like FolderID — is a distinct type so it can never
// be handed to a function expecting a folder_unique_id.
type FileID uint64
