package share

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rorocorp/uns/identity"
)

func sampleManifest() *Manifest {
	return &Manifest{
		FolderUniqueID: "deadbeefdeadbeefdeadbeefdeadbeef",
		CreatedAt:      1700000000,
		Files: []ManifestFile{
			{
				FileID:       1,
				RelativePath: "a.txt",
				Size:         4,
				ContentHash:  "hash-a",
				Segments: []ManifestSegment{
					{SegmentIndex: 0, Size: 4, PlaintextHash: "ph0", UsenetSubject: "subj0", MessageID: "<m0@x>"},
				},
			},
		},
	}
}

func TestEncryptedIndexMarshalRoundTrip(t *testing.T) {
	idx := EncryptedIndex{AccessType: AccessProtected, CipherSuite: CipherAES256GCMHKDFSHA256, Payload: []byte("payload-bytes")}
	parsed, err := UnmarshalEncryptedIndex(idx.Marshal())
	require.NoError(t, err)
	assert.Equal(t, idx.AccessType, parsed.AccessType)
	assert.Equal(t, idx.CipherSuite, parsed.CipherSuite)
	assert.Equal(t, idx.Payload, parsed.Payload)
}

func TestUnmarshalEncryptedIndexRejectsBadMagic(t *testing.T) {
	_, err := UnmarshalEncryptedIndex([]byte("XXXX\x00\x01\x00\x00"))
	assert.Error(t, err)
}

func TestBuildOpenPublicRoundTrip(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	folderPK, folderSK, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	manifest := sampleManifest()
	idx, err := BuildPublic(folderSK, folder, manifest)
	require.NoError(t, err)
	assert.Equal(t, AccessPublic, idx.AccessType)

	got, err := OpenPublic(folderPK, folder, idx)
	require.NoError(t, err)
	assert.Equal(t, manifest.Files[0].RelativePath, got.Files[0].RelativePath)
}

func TestBuildOpenProtectedRoundTrip(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	folderPK, folderSK, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	manifest := sampleManifest()
	shareID := identity.ShareID(folderSK, "PROTECTED")
	idx, err := BuildProtected(folderSK, shareID, "s3cret!", manifest)
	require.NoError(t, err)

	got, err := OpenProtected(folderPK, shareID, "s3cret!", idx)
	require.NoError(t, err)
	assert.Equal(t, manifest.FolderUniqueID, got.FolderUniqueID)
}

func TestOpenProtectedWrongPasswordFails(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	_, folderSK, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	manifest := sampleManifest()
	shareID := identity.ShareID(folderSK, "PROTECTED")
	idx, err := BuildProtected(folderSK, shareID, "s3cret!", manifest)
	require.NoError(t, err)

	folderPK := folderSK.Public().(ed25519.PublicKey)
	_, err = OpenProtected(folderPK, shareID, "wrong-password", idx)
	assert.Error(t, err)
}

func TestBuildOpenPrivateRoundTrip(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	folderPK, folderSK, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	alicePK, aliceSK, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	bobPK, bobSK, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	aliceX, err := identity.ZKPublicPoint(aliceSK)
	require.NoError(t, err)
	bobX, err := identity.ZKPublicPoint(bobSK)
	require.NoError(t, err)

	manifest := sampleManifest()
	shareID := identity.ShareID(folderSK, "PRIVATE")
	saltShare := "saltysalt"

	idx, grants, err := BuildPrivate(folderSK, shareID, saltShare, manifest, []PrivateRecipient{
		{UserID: "alice", PublicKey: alicePK, ZKPublicPoint: aliceX},
		{UserID: "bob", PublicKey: bobPK, ZKPublicPoint: bobX},
	})
	require.NoError(t, err)
	require.Len(t, grants, 2)

	gotAlice, err := OpenPrivate(folderPK, shareID, aliceSK, idx)
	require.NoError(t, err)
	assert.Equal(t, manifest.FolderUniqueID, gotAlice.FolderUniqueID)

	gotBob, err := OpenPrivate(folderPK, shareID, bobSK, idx)
	require.NoError(t, err)
	assert.Equal(t, manifest.FolderUniqueID, gotBob.FolderUniqueID)

	strangerPK, strangerSK, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_ = strangerPK
	_, err = OpenPrivate(folderPK, shareID, strangerSK, idx)
	assert.Error(t, err)
}

func TestBuildPrivateCommitmentsMatchMembershipProof(t *testing.T) {
	_, folderSK, err := func() (identity.FolderID, ed25519.PrivateKey, error) {
		id, err := identity.NewFolderID()
		if err != nil {
			return id, nil, err
		}
		_, sk, err := identity.FolderKeysFromID(id)
		return id, sk, err
	}()
	require.NoError(t, err)

	_, aliceSK, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	aliceX, err := identity.ZKPublicPoint(aliceSK)
	require.NoError(t, err)

	manifest := sampleManifest()
	shareID := identity.ShareID(folderSK, "PRIVATE")
	saltShare := "saltysalt"

	_, grants, err := BuildPrivate(folderSK, shareID, saltShare, manifest, []PrivateRecipient{
		{UserID: "alice", PublicKey: aliceSK.Public().(ed25519.PublicKey), ZKPublicPoint: aliceX},
	})
	require.NoError(t, err)

	proof, err := identity.ProveMembership(aliceSK, shareID)
	require.NoError(t, err)

	commitments := make([][]byte, len(grants))
	for i, g := range grants {
		commitments[i] = g.Commitment
	}
	assert.NoError(t, identity.VerifyMembership(proof, shareID, saltShare, commitments))
}
