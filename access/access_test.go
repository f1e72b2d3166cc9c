package access

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
	"github.com/rorocorp/uns/share"
)

func sampleManifest() *share.Manifest {
	return &share.Manifest{
		FolderUniqueID: "deadbeefdeadbeefdeadbeefdeadbeef",
		Files: []share.ManifestFile{
			{FileID: 1, RelativePath: "a.txt", Size: 4, ContentHash: "h", Segments: []share.ManifestSegment{
				{SegmentIndex: 0, Size: 4, PlaintextHash: "ph", UsenetSubject: "s", MessageID: "<m@x>"},
			}},
		},
	}
}

func TestOpenProtectedRejectsEmptyPassword(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	folderPK, folderSK, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	shareID := identity.ShareID(folderSK, "PROTECTED")
	idx, err := share.BuildProtected(folderSK, shareID, "s3cret!", sampleManifest())
	require.NoError(t, err)

	_, err = OpenProtected(folderPK, shareID, "", idx)
	require.Error(t, err)
	assert.True(t, uerr.Is(err, uerr.KindAuth))
}

func TestOpenProtectedWrongPasswordIsIntegrityError(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	folderPK, folderSK, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	shareID := identity.ShareID(folderSK, "PROTECTED")
	idx, err := share.BuildProtected(folderSK, shareID, "s3cret!", sampleManifest())
	require.NoError(t, err)

	_, err = OpenProtected(folderPK, shareID, "wrong", idx)
	require.Error(t, err)
	assert.True(t, uerr.Is(err, uerr.KindIntegrity))
}

func TestOpenProtectedCorrectPasswordSucceeds(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	folderPK, folderSK, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	shareID := identity.ShareID(folderSK, "PROTECTED")
	idx, err := share.BuildProtected(folderSK, shareID, "s3cret!", sampleManifest())
	require.NoError(t, err)

	got, err := OpenProtected(folderPK, shareID, "s3cret!", idx)
	require.NoError(t, err)
	assert.Equal(t, sampleManifest().FolderUniqueID, got.FolderUniqueID)
}

func TestPrivateMembershipFailsAgainstEmptyGrantSet(t *testing.T) {
	_, folderSK, err := func() (identity.FolderID, ed25519.PrivateKey, error) {
		id, err := identity.NewFolderID()
		if err != nil {
			return id, nil, err
		}
		_, sk, err := identity.FolderKeysFromID(id)
		return id, sk, err
	}()
	require.NoError(t, err)

	_, strangerSK, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	shareID := identity.ShareID(folderSK, "PRIVATE")
	strangerProof, err := identity.ProveMembership(strangerSK, shareID)
	require.NoError(t, err)

	err = identity.VerifyMembership(strangerProof, shareID, "saltysalt", nil)
	require.Error(t, err)
	assert.True(t, uerr.Is(err, uerr.KindAuth))
}
