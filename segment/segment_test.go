package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rorocorp/uns/identity"
)

func TestPlanSplitsLargeFile(t *testing.T) {
	files := []FileInput{
		{FileID: 1, RelativePath: "big.bin", Size: 2_000_000, ContentHash: "h1"},
	}
	segs := Plan(files, Policy{PayloadMax: 768_000})
	require.Len(t, segs, 3)
	assert.EqualValues(t, 0, segs[0].Chunks[0].SegmentIndex)
	assert.EqualValues(t, 1, segs[1].Chunks[0].SegmentIndex)
	assert.EqualValues(t, 2, segs[2].Chunks[0].SegmentIndex)
	assert.EqualValues(t, 768_000, segs[0].Chunks[0].Length)
	assert.EqualValues(t, 768_000, segs[1].Chunks[0].Length)
	assert.EqualValues(t, 2_000_000-2*768_000, segs[2].Chunks[0].Length)
}

func TestPlanLeavesSmallFileAloneWhenPackingDisabled(t *testing.T) {
	files := []FileInput{{FileID: 1, RelativePath: "tiny.txt", Size: 100, ContentHash: "h1"}}
	segs := Plan(files, Policy{PayloadMax: 768_000, PackingEnabled: false})
	require.Len(t, segs, 1)
	assert.False(t, segs[0].Packed)
}

func TestPlanPacksSmallFilesWhenEnabled(t *testing.T) {
	files := []FileInput{
		{FileID: 1, RelativePath: "b.txt", Size: 50, ContentHash: "hb"},
		{FileID: 2, RelativePath: "a.txt", Size: 50, ContentHash: "ha"},
	}
	segs := Plan(files, Policy{PayloadMax: 768_000, PackingEnabled: true, MaxPackCount: 8})
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Packed)
	// tie-break: distinct content hashes sort by hash, "ha" < "hb"
	assert.Equal(t, "a.txt", segs[0].Chunks[0].RelativePath)
}

func TestPlanPackTieBreakOnIdenticalContentHash(t *testing.T) {
	files := []FileInput{
		{FileID: 1, RelativePath: "z.txt", Size: 10, ContentHash: "same"},
		{FileID: 2, RelativePath: "a.txt", Size: 10, ContentHash: "same"},
	}
	segs := Plan(files, Policy{PayloadMax: 768_000, PackingEnabled: true, MaxPackCount: 8})
	require.Len(t, segs, 1)
	assert.Equal(t, "a.txt", segs[0].Chunks[0].RelativePath)
	assert.Equal(t, "z.txt", segs[0].Chunks[1].RelativePath)
}

type fakeReader map[string][]byte

func (r fakeReader) ReadRange(relativePath string, offset, length int64) ([]byte, error) {
	return r[relativePath][offset : offset+length], nil
}

func TestBuildRoundTripsThroughDecrypt(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	_, sk, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	reader := fakeReader{"file.txt": []byte("hello segment world")}
	ps := PhysicalSegment{Chunks: []ChunkRef{{FileID: 1, RelativePath: "file.txt", SegmentIndex: 0, Offset: 0, Length: 19}}}

	built, err := Build(reader, sk, folder, ps, Policy{Redundancy: 1})
	require.NoError(t, err)
	require.Len(t, built, 2) // primary + 1 redundancy copy

	for _, b := range built {
		plain, err := identity.DecryptSegment(sk, folder, b.FileID, b.SegmentIndex, b.Ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "hello segment world", string(plain))
	}
	assert.Equal(t, built[0].PlaintextHash, built[1].PlaintextHash)
}

func TestBuildPackedSegmentHeaderRoundTrips(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)
	_, sk, err := identity.FolderKeysFromID(folder)
	require.NoError(t, err)

	reader := fakeReader{
		"a.txt": []byte("AAAA"),
		"b.txt": []byte("BB"),
	}
	ps := PhysicalSegment{
		Packed: true,
		Chunks: []ChunkRef{
			{FileID: 1, RelativePath: "a.txt", SegmentIndex: 0, Offset: 0, Length: 4},
			{FileID: 2, RelativePath: "b.txt", SegmentIndex: 0, Offset: 0, Length: 2},
		},
	}

	built, err := Build(reader, sk, folder, ps, Policy{})
	require.NoError(t, err)
	require.Len(t, built, 1)
	require.Equal(t, []identity.FileID{2}, built[0].PackedWith)

	plain, err := identity.DecryptSegment(sk, folder, built[0].FileID, built[0].SegmentIndex, built[0].Ciphertext)
	require.NoError(t, err)

	header, n, err := UnmarshalPackingHeader(plain)
	require.NoError(t, err)
	require.Len(t, header.Entries, 2)
	body := plain[n:]
	assert.Equal(t, "AAAA", string(body[header.Entries[0].Offset:header.Entries[0].Offset+header.Entries[0].Length]))
	assert.Equal(t, "BB", string(body[header.Entries[1].Offset:header.Entries[1].Offset+header.Entries[1].Length]))
}
