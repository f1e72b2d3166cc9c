package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderKeysFromIDDeterministic(t *testing.T) {
	id, err := NewFolderID()
	require.NoError(t, err)

	pk1, sk1, err := FolderKeysFromID(id)
	require.NoError(t, err)
	pk2, sk2, err := FolderKeysFromID(id)
	require.NoError(t, err)

	assert.Equal(t, pk1, pk2)
	assert.Equal(t, sk1, sk2)

	other, err := NewFolderID()
	require.NoError(t, err)
	pk3, _, err := FolderKeysFromID(other)
	require.NoError(t, err)
	assert.NotEqual(t, pk1, pk3)
}

func TestEncryptDecryptSegmentRoundTrip(t *testing.T) {
	id, err := NewFolderID()
	require.NoError(t, err)
	_, sk, err := FolderKeysFromID(id)
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	ciphertext, err := EncryptSegment(sk, id, FileID(7), 3, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := DecryptSegment(sk, id, FileID(7), 3, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptSegmentWrongIndexFailsIntegrity(t *testing.T) {
	id, err := NewFolderID()
	require.NoError(t, err)
	_, sk, err := FolderKeysFromID(id)
	require.NoError(t, err)

	ciphertext, err := EncryptSegment(sk, id, FileID(1), 0, []byte("payload"))
	require.NoError(t, err)

	_, err = DecryptSegment(sk, id, FileID(1), 1, ciphertext)
	require.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	id, err := NewFolderID()
	require.NoError(t, err)
	pk, sk, err := FolderKeysFromID(id)
	require.NoError(t, err)

	data := []byte("manifest bytes")
	sig := Sign(sk, data)
	assert.NoError(t, Verify(pk, data, sig))
	assert.Error(t, Verify(pk, []byte("tampered"), sig))
}

func TestObfuscatedSubjectShapeAndIndependence(t *testing.T) {
	a, err := ObfuscatedSubject()
	require.NoError(t, err)
	b, err := ObfuscatedSubject()
	require.NoError(t, err)

	assert.Len(t, a, subjectLength)
	assert.Len(t, b, subjectLength)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.True(t, r >= 'a' && r <= 'z')
	}
}

func TestShareIDDeterministicAndTypeScoped(t *testing.T) {
	id, err := NewFolderID()
	require.NoError(t, err)
	_, sk, err := FolderKeysFromID(id)
	require.NoError(t, err)

	a1 := ShareID(sk, "PUBLIC")
	a2 := ShareID(sk, "PUBLIC")
	b := ShareID(sk, "PRIVATE")

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.Len(t, a1, 26) // base32 of 16 bytes, no padding
}

func TestMembershipProofRoundTrip(t *testing.T) {
	id, err := NewFolderID()
	require.NoError(t, err)
	_, userSK, err := FolderKeysFromID(id) // any Ed25519 keypair serves as a stand-in user key here
	require.NoError(t, err)

	saltShare := "salt-for-this-share"
	shareID := "SHAREID123"

	X, err := ZKPublicPoint(userSK)
	require.NoError(t, err)
	commitment := GrantCommitment(X, []byte(saltShare))

	proof, err := ProveMembership(userSK, shareID)
	require.NoError(t, err)

	assert.NoError(t, VerifyMembership(proof, shareID, saltShare, [][]byte{commitment}))
	assert.Error(t, VerifyMembership(proof, shareID, saltShare, [][]byte{[]byte("not-a-match")}))
	assert.Error(t, VerifyMembership(proof, "different-share", saltShare, [][]byte{commitment}))
}

func TestPasswordDerivationDeterministic(t *testing.T) {
	params, err := NewPasswordParams()
	require.NoError(t, err)

	k1 := DeriveFromPassword("s3cret!", params)
	k2 := DeriveFromPassword("s3cret!", params)
	assert.Equal(t, k1, k2)

	wrong := DeriveFromPassword("wrong-password", params)
	assert.NotEqual(t, k1, wrong)
}
