package share

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
	"github.com/rorocorp/uns/store"
)

// PublishInput carries everything Publish needs beyond the folder's own
// state: the access type and, depending on it, a password or recipient
// list. Exactly one of Password/Recipients is meaningful per AccessType;
// Publish ignores the other.
type PublishInput struct {
	AccessType AccessType
	Password   string
	Recipients []PrivateRecipient
}

// Publish materializes, signs and encrypts folder's manifest and writes
// the resulting Share (and, for PRIVATE, AccessGrant rows) to st. The
// folder must already be in StateUploaded (spec §5: "share publication is
// linearizable with respect to completed uploads... you cannot publish a
// folder in state != UPLOADED"); RequireState enforces that before the
// caller reaches here.
func Publish(ctx context.Context, st *store.Store, folder *store.Folder, in PublishInput, nowUnix int64) (*store.Share, error) {
	folderID, err := identity.ParseFolderID(folder.FolderUniqueID)
	if err != nil {
		return nil, err
	}
	_, folderSK, err := identity.FolderKeysFromID(folderID)
	if err != nil {
		return nil, err
	}

	manifest, err := BuildManifest(ctx, st, folder, nowUnix)
	if err != nil {
		return nil, err
	}

	shareID := identity.ShareID(folderSK, in.AccessType.String())
	exists, err := st.ShareExists(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, uerr.New(uerr.KindConflict, "share.Publish", "share already published for this folder and access type")
	}

	var idx EncryptedIndex
	var grants []Grant
	var saltShare string

	switch in.AccessType {
	case AccessPublic:
		idx, err = BuildPublic(folderSK, folderID, manifest)
	case AccessProtected:
		if in.Password == "" {
			return nil, uerr.New(uerr.KindValidation, "share.Publish", "PROTECTED share requires a password")
		}
		idx, err = BuildProtected(folderSK, shareID, in.Password, manifest)
	case AccessPrivate:
		saltShare, err = randomSaltShare()
		if err == nil {
			idx, grants, err = BuildPrivate(folderSK, shareID, saltShare, manifest, in.Recipients)
		}
	default:
		return nil, uerr.New(uerr.KindValidation, "share.Publish", "unknown access type")
	}
	if err != nil {
		return nil, err
	}

	share := &store.Share{
		ShareID:        shareID,
		FolderUniqueID: folder.FolderUniqueID,
		ShareType:      in.AccessType.String(),
		EncryptedIndex: idx.Marshal(),
		OwnerID:        folder.OwnerID,
		SaltShare:      saltShare,
	}
	if err := st.CreateShare(ctx, share); err != nil {
		return nil, err
	}

	if len(grants) > 0 {
		rows := make([]store.AccessGrant, len(grants))
		for i, g := range grants {
			rows[i] = store.AccessGrant{ShareID: shareID, AuthorizedUserID: g.AuthorizedUserID, Commitment: g.Commitment}
		}
		if err := st.CreateAccessGrants(ctx, rows); err != nil {
			return nil, err
		}
	}

	return share, nil
}

func randomSaltShare() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("share: generate salt_share: %w", err)
	}
	return hex.EncodeToString(b), nil
}
