// Package share implements the index/share builder (C7): materializing
// the signed manifest described in spec §3 from a folder's stored files
// and segments, then encrypting it per access type (PUBLIC, PROTECTED,
// PRIVATE) into the opaque encrypted_index blob stored on Share.
//
// Grounded on the teacher's storage/manifest.go — there, a DirManifest
// was a flat {name, enc, type, size} record tree encrypted wholesale
// under the user's master key. Here the manifest is folder-wide and
// signed (not just encrypted), and the encryption key depends on the
// share's access type rather than being a single fixed master key.
package share

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
	"github.com/rorocorp/uns/store"
)

// ManifestSegment is one physical segment's addressing and integrity
// record, exactly what the downloader (C8) needs to retrieve, verify and
// place a segment's bytes (spec §4.8).
type ManifestSegment struct {
	SegmentIndex uint32 `json:"segment_index"`
	// PrimaryFileID is the file_id the segment was encrypted under
	// (segment.Build always derives the key/nonce from the physical
	// segment's primary file, even for a sibling packed alongside it) —
	// the downloader must decrypt with this id, not the owning
	// ManifestFile's own FileID, when the two differ.
	PrimaryFileID        uint64   `json:"primary_file_id"`
	Size                 int64    `json:"size"`
	PlaintextHash        string   `json:"plaintext_hash"`
	UsenetSubject        string   `json:"usenet_subject"`
	MessageID            string   `json:"message_id"`
	RedundancyMessageIDs []string `json:"redundancy_message_ids,omitempty"`
	Packed               bool     `json:"packed,omitempty"`
	PackedWith           []uint64 `json:"packed_with,omitempty"`
}

// ManifestFile is one file's identity and its ordered segment list.
type ManifestFile struct {
	FileID       uint64            `json:"file_id"`
	RelativePath string            `json:"relative_path"`
	Size         int64             `json:"size"`
	ContentHash  string            `json:"content_hash"`
	Segments     []ManifestSegment `json:"segments"`
}

// Manifest is the folder-wide record signed by the folder key and then
// encrypted per access type (spec §4.7, §3).
type Manifest struct {
	FolderUniqueID string         `json:"folder_unique_id"`
	Files          []ManifestFile `json:"files"`
	CreatedAt      int64          `json:"created_at"` // unix seconds, caller-supplied
}

// segmentRow pairs a physical segment row with the primary file id it was
// actually encrypted under — for a packed segment's siblings, that is not
// the row's own FileID column (segment.Build always derives the key/nonce
// from the physical segment's primary file).
type segmentRow struct {
	store.Segment
	primaryFileID uint64
}

// BuildManifest scans every segment of folder and assembles the manifest,
// grouping redundancy copies of the same (file, segment_index) together
// and recording every other message_id as a fallback (spec §4.8 step 3:
// "iterate redundancy_message_ids in order").
func BuildManifest(ctx context.Context, st *store.Store, folder *store.Folder, createdAtUnix int64) (*Manifest, error) {
	files, err := st.ListFiles(ctx, folder)
	if err != nil {
		return nil, err
	}
	segs, err := st.ListSegmentsForFolder(ctx, folder.FolderUniqueID)
	if err != nil {
		return nil, err
	}

	// A packed segment is stored once, under its primary file's row, with
	// PackedWith naming the sibling files sharing that physical segment.
	// Every sibling still needs a manifest entry pointing at the same
	// message_id/subject so the downloader knows where to fetch its own
	// data from (the packing header inside the decrypted payload carries
	// the per-file offset, so the manifest itself only needs the pointer
	// plus the primary file id needed to reproduce the decryption key).
	byFile := make(map[uint64][]segmentRow, len(files))
	for _, s := range segs {
		byFile[s.FileID] = append(byFile[s.FileID], segmentRow{Segment: s, primaryFileID: s.FileID})
		for _, sibling := range parsePackedWith(s.PackedWith) {
			byFile[sibling] = append(byFile[sibling], segmentRow{Segment: s, primaryFileID: s.FileID})
		}
	}

	manifest := &Manifest{FolderUniqueID: folder.FolderUniqueID, CreatedAt: createdAtUnix}
	for _, f := range files {
		mf := ManifestFile{FileID: f.FileID, RelativePath: f.RelativePath, Size: f.Size, ContentHash: f.ContentHash}
		mf.Segments = groupSegments(byFile[f.FileID])
		manifest.Files = append(manifest.Files, mf)
	}
	sort.Slice(manifest.Files, func(i, j int) bool { return manifest.Files[i].RelativePath < manifest.Files[j].RelativePath })
	return manifest, nil
}

// groupSegments collapses every (segment_index, redundancy_group) row for
// a file into one ManifestSegment per segment_index, the primary copy's
// message_id first and every other copy's message_id as a fallback.
func groupSegments(rows []segmentRow) []ManifestSegment {
	byIndex := make(map[uint32][]segmentRow)
	for _, r := range rows {
		byIndex[r.SegmentIndex] = append(byIndex[r.SegmentIndex], r)
	}

	indices := make([]uint32, 0, len(byIndex))
	for idx := range byIndex {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	out := make([]ManifestSegment, 0, len(indices))
	for _, idx := range indices {
		copies := byIndex[idx]
		sort.Slice(copies, func(i, j int) bool { return copies[i].RedundancyGroup < copies[j].RedundancyGroup })
		primary := copies[0]
		var fallbacks []string
		for _, c := range copies[1:] {
			fallbacks = append(fallbacks, c.MessageID)
		}
		packedWith := parsePackedWith(primary.PackedWith)
		out = append(out, ManifestSegment{
			SegmentIndex:         idx,
			PrimaryFileID:        primary.primaryFileID,
			Size:                 primary.Size,
			PlaintextHash:        primary.PlaintextHash,
			UsenetSubject:        primary.UsenetSubject,
			MessageID:            primary.MessageID,
			RedundancyMessageIDs: fallbacks,
			Packed:               len(packedWith) > 0,
			PackedWith:           packedWith,
		})
	}
	return out
}

func parsePackedWith(raw string) []uint64 {
	if raw == "" {
		return nil
	}
	var ids []uint64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}

// signedEnvelope is the {manifest, signature} pair that gets encrypted
// for every access type, so verification always happens against the same
// shape regardless of how the bytes were decrypted (spec §4.8 step 2:
// "Verify the folder-key signature over the manifest").
type signedEnvelope struct {
	Manifest  json.RawMessage `json:"manifest"`
	Signature []byte          `json:"signature"`
}

func signManifest(folderSK ed25519.PrivateKey, m *Manifest) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("share: marshal manifest: %w", err)
	}
	sig := identity.Sign(folderSK, raw)
	env := signedEnvelope{Manifest: raw, Signature: sig}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("share: marshal signed envelope: %w", err)
	}
	return out, nil
}

// verifySignedEnvelope unmarshals the envelope and checks the folder-key
// signature before handing back a parsed Manifest (spec §4.8 step 2:
// "refuse on verification failure").
func verifySignedEnvelope(folderPK ed25519.PublicKey, plaintext []byte) (*Manifest, error) {
	var env signedEnvelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, uerr.Wrap(uerr.KindIntegrity, "share.verifySignedEnvelope", "", err)
	}
	if err := identity.Verify(folderPK, env.Manifest, env.Signature); err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(env.Manifest, &m); err != nil {
		return nil, uerr.Wrap(uerr.KindIntegrity, "share.verifySignedEnvelope", "", err)
	}
	return &m, nil
}
