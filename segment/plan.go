package segment

import (
	"sort"

	"github.com/rorocorp/uns/identity"
)

// DefaultPayloadMax is spec §4.4's PAYLOAD_MAX default (bytes).
const DefaultPayloadMax int64 = 768_000

// DefaultMaxPackCount bounds how many small files one packed segment may
// hold; the spec names the cap "P" without fixing a value, so this is
// folder policy like PackingEnabled, not an invariant.
const DefaultMaxPackCount = 32

// Policy is the per-folder segmentation policy (spec §4.4).
type Policy struct {
	PayloadMax     int64
	PackingEnabled bool
	MaxPackCount   int
	Redundancy     int // k extra copies per segment
}

// DefaultPolicy returns spec §4.4's stated defaults (PAYLOAD_MAX=768000,
// REDUNDANCY=0; packing off until a folder opts in).
func DefaultPolicy() Policy {
	return Policy{PayloadMax: DefaultPayloadMax, MaxPackCount: DefaultMaxPackCount}
}

// FileInput is what the planner needs from the scanner/store about one
// file to decide how it gets segmented.
type FileInput struct {
	FileID       identity.FileID
	RelativePath string
	Size         int64
	ContentHash  string
}

// ChunkRef is one file's contribution to a PhysicalSegment: which bytes
// of that file's plaintext land in this segment, and at what
// segment_index that file records it under.
type ChunkRef struct {
	FileID       identity.FileID
	RelativePath string
	SegmentIndex uint32
	Offset       int64
	Length       int64
}

// PhysicalSegment is one segment's worth of work: the article that will
// eventually be posted once, and the one-or-more files whose bytes it
// carries. Packed segments have more than one Chunk; the segment is
// recorded under the first Chunk's file, whose packed_with list names the
// files of the remaining Chunks.
type PhysicalSegment struct {
	Chunks []ChunkRef
	Packed bool
}

// Plan splits and packs a folder's files per policy (spec §4.4). Input
// order does not matter; output preserves, for split files, ascending
// segment_index, and applies the packing tie-break (equal content_hash →
// lexicographically smaller relative_path first) when policy allows
// packing.
func Plan(files []FileInput, policy Policy) []PhysicalSegment {
	if policy.PayloadMax <= 0 {
		policy.PayloadMax = DefaultPayloadMax
	}
	if policy.MaxPackCount <= 0 {
		policy.MaxPackCount = DefaultMaxPackCount
	}

	var segments []PhysicalSegment
	var packable []FileInput
	packThreshold := policy.PayloadMax / 4

	for _, f := range files {
		switch {
		case f.Size > policy.PayloadMax:
			segments = append(segments, splitLarge(f, policy.PayloadMax)...)
		case policy.PackingEnabled && f.Size <= packThreshold:
			packable = append(packable, f)
		default:
			segments = append(segments, PhysicalSegment{
				Chunks: []ChunkRef{{FileID: f.FileID, RelativePath: f.RelativePath, SegmentIndex: 0, Offset: 0, Length: f.Size}},
			})
		}
	}

	if len(packable) > 0 {
		segments = append(segments, packSmallFiles(packable, policy)...)
	}

	return segments
}

func splitLarge(f FileInput, payloadMax int64) []PhysicalSegment {
	var segments []PhysicalSegment
	var index uint32
	for offset := int64(0); offset < f.Size; offset += payloadMax {
		length := payloadMax
		if offset+length > f.Size {
			length = f.Size - offset
		}
		segments = append(segments, PhysicalSegment{
			Chunks: []ChunkRef{{FileID: f.FileID, RelativePath: f.RelativePath, SegmentIndex: index, Offset: offset, Length: length}},
		})
		index++
	}
	return segments
}

// packSmallFiles groups files into batches of at most MaxPackCount whose
// combined plaintext plus packing header still fits PAYLOAD_MAX.
func packSmallFiles(files []FileInput, policy Policy) []PhysicalSegment {
	sort.Slice(files, func(i, j int) bool {
		if files[i].ContentHash != files[j].ContentHash {
			return files[i].ContentHash < files[j].ContentHash
		}
		return files[i].RelativePath < files[j].RelativePath
	})

	var segments []PhysicalSegment
	var batch []FileInput
	var batchSize int64

	flush := func() {
		if len(batch) == 0 {
			return
		}
		chunks := make([]ChunkRef, len(batch))
		var offset int64
		for i, f := range batch {
			chunks[i] = ChunkRef{FileID: f.FileID, RelativePath: f.RelativePath, SegmentIndex: 0, Offset: offset, Length: f.Size}
			offset += f.Size
		}
		segments = append(segments, PhysicalSegment{Chunks: chunks, Packed: len(batch) > 1})
		batch = nil
		batchSize = 0
	}

	for _, f := range files {
		headerSize := int64(HeaderSize(len(batch) + 1))
		if len(batch) >= policy.MaxPackCount || (len(batch) > 0 && batchSize+f.Size+headerSize > policy.PayloadMax) {
			flush()
		}
		batch = append(batch, f)
		batchSize += f.Size
	}
	flush()

	return segments
}
