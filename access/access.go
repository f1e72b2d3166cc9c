// Package access implements access control (C9): the gate a consumer
// must pass before a share's manifest is handed back, for the two access
// types that need more than "hold the share_id" (spec §4.9).
//
// Grounded on the teacher's bcrypt/session auth (auth/utils.go,
// auth/session.go) — there, a password check and a session-token check
// both gated a single resource type (a user's own files). Here the same
// shape generalizes to two independent share policies: PROTECTED (a
// password, same as the teacher) and PRIVATE (a Schnorr proof instead of
// a session token, since no server-held session can exist on a
// no-server-state consumer path).
package access

import (
	"context"
	"crypto/ed25519"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
	"github.com/rorocorp/uns/share"
	"github.com/rorocorp/uns/store"
)

// OpenProtected gates a PROTECTED share on a non-empty password before
// ever touching the ciphertext: an empty password is rejected as
// AuthError "before any network access" (spec §8 seed scenario 2), while
// a wrong-but-present password still fails inside share.OpenProtected's
// GCM tag check and surfaces as KindIntegrity, never leaking plaintext.
func OpenProtected(folderPK ed25519.PublicKey, shareID, password string, idx share.EncryptedIndex) (*share.Manifest, error) {
	if password == "" {
		return nil, uerr.New(uerr.KindAuth, "access.OpenProtected", "password required")
	}
	return share.OpenProtected(folderPK, shareID, password, idx)
}

// OpenPrivate verifies proof against the share's stored AccessGrant
// commitments (spec §4.9: "the publisher side stores only commitments,
// never plaintext user IDs") before decrypting the index for recipientSK.
// Membership is checked independently of decryption — a recipient who
// holds a valid key-wrap entry but whose grant was revoked (no commitment
// opens their proof) is refused here even though the wrap would still
// unwrap cleanly.
func OpenPrivate(ctx context.Context, st *store.Store, folderPK ed25519.PublicKey, sh *store.Share, recipientSK ed25519.PrivateKey, proof *identity.MembershipProof, idx share.EncryptedIndex) (*share.Manifest, error) {
	commitments, err := st.ListAccessGrantCommitments(ctx, sh.ShareID)
	if err != nil {
		return nil, err
	}
	if err := identity.VerifyMembership(proof, sh.ShareID, sh.SaltShare, commitments); err != nil {
		return nil, err
	}
	return share.OpenPrivate(folderPK, sh.ShareID, recipientSK, idx)
}
