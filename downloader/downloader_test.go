package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/nntppool"
	"github.com/rorocorp/uns/segment"
	"github.com/rorocorp/uns/share"
)

type fakeNNTP struct {
	mu      sync.Mutex
	byMsgID map[string][]byte
	fetched []string
}

func newFakeNNTP() *fakeNNTP { return &fakeNNTP{byMsgID: map[string][]byte{}} }

func (p *fakeNNTP) Post(ctx context.Context, a nntppool.Article) error { return nil }

func (p *fakeNNTP) Fetch(ctx context.Context, messageID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetched = append(p.fetched, messageID)
	data, ok := p.byMsgID[messageID]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (p *fakeNNTP) Stat(ctx context.Context, messageID string) (bool, error) { return true, nil }
func (p *fakeNNTP) Close() error                                            { return nil }
func (p *fakeNNTP) FetchBySubject(ctx context.Context, subject string, since time.Time) ([]byte, string, error) {
	return nil, "", os.ErrNotExist
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestDownloadShareSingleFileSingleSegment(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	_, folderSK, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	plaintext := []byte("hello usenet world")
	fileID := uint64(1)
	ciphertext, err := identity.EncryptSegment(folderSK, folder, identity.FileID(fileID), 0, plaintext)
	require.NoError(t, err)

	nntp := newFakeNNTP()
	nntp.byMsgID["<seg0@uns>"] = ciphertext

	manifest := &share.Manifest{
		FolderUniqueID: folder.String(),
		Files: []share.ManifestFile{
			{
				FileID:       fileID,
				RelativePath: "greeting.txt",
				Size:         int64(len(plaintext)),
				ContentHash:  hashHex(plaintext),
				Segments: []share.ManifestSegment{
					{SegmentIndex: 0, PrimaryFileID: fileID, Size: int64(len(plaintext)), PlaintextHash: hashHex(plaintext), UsenetSubject: "subj0", MessageID: "<seg0@uns>"},
				},
			},
		},
	}

	destRoot := t.TempDir()
	d := New(nntp, Config{Workers: 2, CkptInterval: 1}, zap.NewNop())
	result, err := d.DownloadShare(context.Background(), folder, manifest, destRoot)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Empty(t, result.Failed)

	got, err := os.ReadFile(filepath.Join(destRoot, "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	_, err = os.Stat(filepath.Join(destRoot, "greeting.txt"+checkpointSuffix))
	assert.True(t, os.IsNotExist(err), "checkpoint sidecar should be removed on success")
}

func TestDownloadShareFallsBackToRedundancyMessageID(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	_, folderSK, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	plaintext := []byte("redundant bytes")
	fileID := uint64(7)
	ciphertext, err := identity.EncryptSegment(folderSK, folder, identity.FileID(fileID), 0, plaintext)
	require.NoError(t, err)

	nntp := newFakeNNTP()
	// Primary message_id is missing; only the redundancy copy resolves.
	nntp.byMsgID["<seg0-redundant@uns>"] = ciphertext

	manifest := &share.Manifest{
		FolderUniqueID: folder.String(),
		Files: []share.ManifestFile{
			{
				FileID:       fileID,
				RelativePath: "nested/dir/file.bin",
				Size:         int64(len(plaintext)),
				ContentHash:  hashHex(plaintext),
				Segments: []share.ManifestSegment{
					{
						SegmentIndex:         0,
						PrimaryFileID:        fileID,
						Size:                 int64(len(plaintext)),
						PlaintextHash:        hashHex(plaintext),
						UsenetSubject:        "subj0",
						MessageID:            "<seg0-missing@uns>",
						RedundancyMessageIDs: []string{"<seg0-redundant@uns>"},
					},
				},
			},
		},
	}

	destRoot := t.TempDir()
	d := New(nntp, Config{Workers: 1, CkptInterval: 1}, zap.NewNop())
	result, err := d.DownloadShare(context.Background(), folder, manifest, destRoot)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)

	got, err := os.ReadFile(filepath.Join(destRoot, "nested/dir/file.bin"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDownloadSharePackedSegmentSlicesOwnFile(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	_, folderSK, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	primaryID, siblingID := uint64(10), uint64(11)
	primaryBytes := []byte("AAAA")
	siblingBytes := []byte("BBBBBBBB")

	header := segment.PackingHeader{Entries: []segment.PackEntry{
		{FileID: identity.FileID(primaryID), Offset: 0, Length: uint64(len(primaryBytes))},
		{FileID: identity.FileID(siblingID), Offset: uint64(len(primaryBytes)), Length: uint64(len(siblingBytes))},
	}}.Marshal()
	payload := append(header, append(append([]byte{}, primaryBytes...), siblingBytes...)...)

	ciphertext, err := identity.EncryptSegment(folderSK, folder, identity.FileID(primaryID), 0, payload)
	require.NoError(t, err)

	nntp := newFakeNNTP()
	nntp.byMsgID["<packed@uns>"] = ciphertext

	segTemplate := share.ManifestSegment{
		SegmentIndex:  0,
		PrimaryFileID: primaryID,
		Size:          int64(len(payload)),
		PlaintextHash: hashHex(payload),
		UsenetSubject: "subjpacked",
		MessageID:     "<packed@uns>",
		Packed:        true,
		PackedWith:    []uint64{siblingID},
	}

	manifest := &share.Manifest{
		FolderUniqueID: folder.String(),
		Files: []share.ManifestFile{
			{FileID: primaryID, RelativePath: "primary.txt", Size: int64(len(primaryBytes)), ContentHash: hashHex(primaryBytes), Segments: []share.ManifestSegment{segTemplate}},
			{FileID: siblingID, RelativePath: "sibling.txt", Size: int64(len(siblingBytes)), ContentHash: hashHex(siblingBytes), Segments: []share.ManifestSegment{segTemplate}},
		},
	}

	destRoot := t.TempDir()
	d := New(nntp, Config{Workers: 2, CkptInterval: 1}, zap.NewNop())
	result, err := d.DownloadShare(context.Background(), folder, manifest, destRoot)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Completed)

	gotPrimary, err := os.ReadFile(filepath.Join(destRoot, "primary.txt"))
	require.NoError(t, err)
	assert.Equal(t, primaryBytes, gotPrimary)

	gotSibling, err := os.ReadFile(filepath.Join(destRoot, "sibling.txt"))
	require.NoError(t, err)
	assert.Equal(t, siblingBytes, gotSibling)
}

func TestDownloadShareContentHashMismatchFails(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	_, folderSK, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	plaintext := []byte("trustworthy bytes")
	fileID := uint64(3)
	ciphertext, err := identity.EncryptSegment(folderSK, folder, identity.FileID(fileID), 0, plaintext)
	require.NoError(t, err)

	nntp := newFakeNNTP()
	nntp.byMsgID["<seg0@uns>"] = ciphertext

	manifest := &share.Manifest{
		FolderUniqueID: folder.String(),
		Files: []share.ManifestFile{
			{
				FileID:       fileID,
				RelativePath: "bad.txt",
				Size:         int64(len(plaintext)),
				ContentHash:  "0000000000000000000000000000000000000000000000000000000000000",
				Segments: []share.ManifestSegment{
					{SegmentIndex: 0, PrimaryFileID: fileID, Size: int64(len(plaintext)), PlaintextHash: hashHex(plaintext), UsenetSubject: "subj0", MessageID: "<seg0@uns>"},
				},
			},
		},
	}

	destRoot := t.TempDir()
	d := New(nntp, Config{Workers: 1, CkptInterval: 1}, zap.NewNop())
	result, err := d.DownloadShare(context.Background(), folder, manifest, destRoot)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Completed)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "bad.txt", result.Failed[0].Name)
}
